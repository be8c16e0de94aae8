package client

import (
	"errors"
	"fmt"
	"strings"

	"wpmcp/internal/protocol"
)

// RPCError is a JSON-RPC error or a non-2xx HTTP reply from the server.
type RPCError struct {
	Code          int
	Message       string
	CanonicalCode string
	Retryable     bool
	HTTPStatus    int
	// ExpiredReason is the X-MCP-Session-Expired value, when present.
	ExpiredReason string
	RetryAfter    string
}

func (e *RPCError) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if e.CanonicalCode != "" {
		msg = e.CanonicalCode + ": " + msg
	}
	if e.HTTPStatus <= 0 {
		return fmt.Sprintf("json-rpc error %d: %s", e.Code, msg)
	}
	return fmt.Sprintf("json-rpc error %d: %s (http %d)", e.Code, msg, e.HTTPStatus)
}

// CanonicalCodeFromError extracts the server's canonical code when present.
func CanonicalCodeFromError(err error) string {
	if err == nil {
		return ""
	}
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		if rpcErr.CanonicalCode != "" {
			return rpcErr.CanonicalCode
		}
		if rpcErr.HTTPStatus == 429 {
			return protocol.ErrorCodeRateLimited
		}
	}
	return canonicalCodeFromText(err.Error())
}

// ActionableMessageForCode maps a canonical code to operator guidance.
func ActionableMessageForCode(code string) string {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case protocol.ErrorCodeSessionNotFound:
		return "The MCP session expired or was not found. Reconnect and retry."
	case protocol.ErrorCodeRateLimited:
		return "Request rate limit reached. Wait briefly and retry."
	case protocol.ErrorCodeOriginNotAllowed:
		return "The server rejected this Origin. Add it to security.allowed_origins (WPMCP_ALLOWED_ORIGINS)."
	case protocol.ErrorCodeRequestTooLarge:
		return "The request body is too large. Send fewer or smaller arguments."
	case protocol.ErrorCodeMethodNotFound:
		return "The server does not implement this method. Check the server version and MCP path."
	case protocol.ErrorCodeConfigurationMissing:
		return "The server is missing configuration for this tool. Check its environment variables."
	default:
		return ""
	}
}

// ActionableMessageFromError derives the canonical code and returns guidance.
func ActionableMessageFromError(err error) string {
	return ActionableMessageForCode(CanonicalCodeFromError(err))
}

func canonicalCodeFromText(text string) string {
	upper := strings.ToUpper(text)
	for _, code := range []string{
		protocol.ErrorCodeSessionNotFound,
		protocol.ErrorCodeRateLimited,
		protocol.ErrorCodeOriginNotAllowed,
		protocol.ErrorCodeRequestTooLarge,
		protocol.ErrorCodeMethodNotFound,
		protocol.ErrorCodeConfigurationMissing,
	} {
		if strings.Contains(upper, code) {
			return code
		}
	}
	if strings.Contains(upper, "SESSION NOT FOUND") {
		return protocol.ErrorCodeSessionNotFound
	}
	if strings.Contains(upper, "TOO MANY REQUESTS") || strings.Contains(upper, "RATE LIMIT") {
		return protocol.ErrorCodeRateLimited
	}
	return ""
}
