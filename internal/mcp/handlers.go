package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"

	"wpmcp/internal/protocol"
	"wpmcp/internal/resources"
	"wpmcp/internal/schema"
	"wpmcp/internal/tool"
)

// supportedProtocolVersions are the revisions whose wire format this
// transport speaks. A client asking for one of them gets it echoed back.
var supportedProtocolVersions = []string{"2025-06-18", "2025-03-26", "2024-11-05"}

type initializeParams struct {
	ProtocolVersion string `json:"protocolVersion"`
}

type toolsCallParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
}

type resourcesReadParams struct {
	URI string `json:"uri"`
}

func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	if origin := r.Header.Get("Origin"); origin != "" {
		if !s.origins.allows(origin) {
			if isPreflight(r) {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			writeError(w, http.StatusForbidden, nil, newRPCError(rpcCodeInvalidRequest, "origin not allowed", protocol.ErrorCodeOriginNotAllowed, false))
			return
		}
		if isPreflight(r) {
			setPreflightHeaders(w, origin)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		setCORSHeaders(w, origin)
	}

	if s.cfg.Server.Public && !s.limiter.allow(s.proxies.clientIP(r)) {
		w.Header().Set("Retry-After", s.limiter.retryAfter())
		writeError(w, http.StatusTooManyRequests, nil, newRPCError(rpcCodeServerError, "rate limit exceeded", protocol.ErrorCodeRateLimited, true))
		return
	}

	switch r.Method {
	case http.MethodPost:
		s.handlePost(w, r)
	case http.MethodDelete:
		s.handleDelete(w, r)
	default:
		w.Header().Set("Allow", "POST, DELETE")
		writeError(w, http.StatusMethodNotAllowed, nil, newRPCError(rpcCodeInvalidRequest, "method not allowed", protocol.ErrorCodeMethodNotFound, false))
	}
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.Header.Get(protocol.MCPSessionHeader))
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, nil, newRPCError(rpcCodeInvalidRequest, "missing "+protocol.MCPSessionHeader+" header", protocol.ErrorCodeMissingField, false))
		return
	}
	if !s.sessions.remove(sessionID) {
		writeError(w, http.StatusNotFound, nil, newRPCError(rpcCodeInvalidRequest, "session not found", protocol.ErrorCodeSessionNotFound, false))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, nil, newRPCError(rpcCodeInvalidRequest, "request body too large", protocol.ErrorCodeRequestTooLarge, false))
			return
		}
		writeError(w, http.StatusBadRequest, nil, newRPCError(rpcCodeParseError, "read request body", "", false))
		return
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		writeError(w, http.StatusBadRequest, nil, newRPCError(rpcCodeInvalidRequest, "batch requests are not supported", protocol.ErrorCodeInvalidField, false))
		return
	}
	var req rpcRequest
	if err := json.Unmarshal(trimmed, &req); err != nil {
		writeError(w, http.StatusBadRequest, nil, newRPCError(rpcCodeParseError, "parse error", "", false))
		return
	}
	if err := validateRequest(req); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, invalidRequest(rpcCodeInvalidRequest, err))
		return
	}

	if req.Method == protocol.RPCMethodInitialize {
		s.handleInitialize(w, req)
		return
	}

	sessionID := strings.TrimSpace(r.Header.Get(protocol.MCPSessionHeader))
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, req.ID, newRPCError(rpcCodeInvalidRequest, "missing "+protocol.MCPSessionHeader+" header", protocol.ErrorCodeMissingField, false))
		return
	}
	if expired, ok := s.sessions.touch(sessionID); !ok {
		if expired != "" {
			w.Header().Set(protocol.SessionExpiredHeader, expired)
		}
		writeError(w, http.StatusNotFound, req.ID, newRPCError(rpcCodeInvalidRequest, "session not found", protocol.ErrorCodeSessionNotFound, false))
		return
	}

	if req.isNotification() {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	result, status, rpcErr := s.dispatch(r.Context(), req)
	if rpcErr != nil {
		writeError(w, status, req.ID, rpcErr)
		return
	}
	writeResult(w, status, req.ID, result)
}

func validateRequest(req rpcRequest) error {
	if req.JSONRPC != "2.0" {
		return validationError{message: `jsonrpc must be "2.0"`, canonicalCode: protocol.ErrorCodeInvalidField}
	}
	if strings.TrimSpace(req.Method) == "" {
		return validationError{message: "method is required", canonicalCode: protocol.ErrorCodeMissingField}
	}
	return nil
}

// invalidRequest renders a validationError, defaulting to INVALID_FIELD.
func invalidRequest(code int, err error) *rpcError {
	canonical := protocol.ErrorCodeInvalidField
	var vErr validationError
	if errors.As(err, &vErr) && vErr.canonicalCode != "" {
		canonical = vErr.canonicalCode
	}
	return newRPCError(code, err.Error(), canonical, false)
}

func (s *Server) dispatch(ctx context.Context, req rpcRequest) (interface{}, int, *rpcError) {
	switch req.Method {
	case protocol.RPCMethodPing:
		return map[string]interface{}{}, http.StatusOK, nil
	case protocol.RPCMethodToolsList:
		return map[string]interface{}{"tools": s.dispatcher.Registry().List()}, http.StatusOK, nil
	case protocol.RPCMethodToolsCall:
		return s.handleToolsCall(ctx, req.Params)
	case protocol.RPCMethodResourcesList:
		return map[string]interface{}{"resources": resources.List()}, http.StatusOK, nil
	case protocol.RPCMethodResourcesRead:
		return s.handleResourcesRead(req.Params)
	default:
		return nil, http.StatusOK, newRPCError(rpcCodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method), protocol.ErrorCodeMethodNotFound, false)
	}
}

func (s *Server) handleInitialize(w http.ResponseWriter, req rpcRequest) {
	var params initializeParams
	if len(req.Params) > 0 && string(req.Params) != "null" {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, newRPCError(rpcCodeInvalidParams, "invalid initialize params", protocol.ErrorCodeInvalidField, false))
			return
		}
	}
	version := s.negotiateVersion(params.ProtocolVersion)

	sess, err := s.sessions.create(version)
	if err != nil {
		s.logger.Error("create session", "error", err)
		writeError(w, http.StatusInternalServerError, req.ID, newRPCError(rpcCodeInternalError, "could not create session", protocol.ErrorCodeHandlerFault, true))
		return
	}
	s.logger.Debug("session created", "session", sess.id, "protocol_version", version)

	w.Header().Set(protocol.MCPSessionHeader, sess.id)
	writeResult(w, http.StatusOK, req.ID, map[string]interface{}{
		"protocolVersion": version,
		"capabilities": map[string]interface{}{
			"tools":     map[string]interface{}{"listChanged": false},
			"resources": map[string]interface{}{"listChanged": false, "subscribe": false},
		},
		"serverInfo": map[string]interface{}{
			"name":    protocol.ServerName,
			"version": protocol.ServerVersion,
		},
	})
}

func (s *Server) negotiateVersion(requested string) string {
	requested = strings.TrimSpace(requested)
	if requested != "" && slices.Contains(supportedProtocolVersions, requested) {
		return requested
	}
	return s.cfg.Server.ProtocolVersion
}

func (s *Server) handleToolsCall(ctx context.Context, raw json.RawMessage) (interface{}, int, *rpcError) {
	params, err := parseToolsCallParams(raw)
	if err != nil {
		return nil, http.StatusBadRequest, invalidRequest(rpcCodeInvalidParams, err)
	}

	res, err := s.dispatcher.Invoke(ctx, params.Name, params.Arguments)
	if err != nil {
		var invErr *tool.InvocationError
		if !errors.As(err, &invErr) {
			invErr = &tool.InvocationError{
				Kind:    tool.KindHandlerError,
				Code:    protocol.ErrorCodeHandlerFault,
				Message: "internal error",
			}
		}
		return toolErrorResult(invErr), http.StatusOK, nil
	}
	return res, http.StatusOK, nil
}

func parseToolsCallParams(raw json.RawMessage) (toolsCallParams, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return toolsCallParams{}, validationError{
			message:       "params is required",
			canonicalCode: protocol.ErrorCodeMissingField,
		}
	}

	var params toolsCallParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return toolsCallParams{}, validationError{
			message:       "invalid tools/call params",
			canonicalCode: protocol.ErrorCodeInvalidField,
		}
	}

	params.Name = strings.TrimSpace(params.Name)
	if params.Name == "" {
		return toolsCallParams{}, validationError{
			message:       "tools/call params.name is required",
			canonicalCode: protocol.ErrorCodeMissingField,
		}
	}
	if params.Arguments == nil {
		params.Arguments = map[string]interface{}{}
	}
	return params, nil
}

// toolErrorResult renders a rejected invocation as an isError tool result so
// the model sees the failure instead of a transport error.
func toolErrorResult(invErr *tool.InvocationError) tool.Result {
	issues := invErr.Issues
	if issues == nil {
		issues = []schema.Issue{}
	}
	return tool.Result{
		IsError: true,
		Content: []tool.Content{
			{Type: "text", Text: fmt.Sprintf("ERROR: %s: %s", invErr.Code, invErr.Message)},
		},
		StructuredContent: map[string]interface{}{
			"error": map[string]interface{}{
				"code":      invErr.Code,
				"kind":      string(invErr.Kind),
				"message":   invErr.Message,
				"retryable": invErr.Retryable,
				"issues":    issues,
			},
		},
	}
}

func (s *Server) handleResourcesRead(raw json.RawMessage) (interface{}, int, *rpcError) {
	var params resourcesReadParams
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, http.StatusBadRequest, newRPCError(rpcCodeInvalidParams, "invalid resources/read params", protocol.ErrorCodeInvalidField, false)
		}
	}
	if strings.TrimSpace(params.URI) == "" {
		return nil, http.StatusBadRequest, newRPCError(rpcCodeInvalidParams, "resources/read params.uri is required", protocol.ErrorCodeMissingField, false)
	}

	contents, err := resources.Read(params.URI)
	if err != nil {
		var notFound *resources.NotFoundError
		if errors.As(err, &notFound) {
			return nil, http.StatusOK, newRPCError(rpcCodeResourceNotFound, err.Error(), protocol.ErrorCodeResourceNotFound, false)
		}
		return nil, http.StatusInternalServerError, newRPCError(rpcCodeInternalError, "read resource", protocol.ErrorCodeHandlerFault, false)
	}
	return map[string]interface{}{"contents": contents}, http.StatusOK, nil
}
