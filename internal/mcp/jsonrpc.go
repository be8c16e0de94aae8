package mcp

import (
	"encoding/json"
	"net/http"
)

const (
	rpcCodeParseError       = -32700
	rpcCodeInvalidRequest   = -32600
	rpcCodeMethodNotFound   = -32601
	rpcCodeInvalidParams    = -32602
	rpcCodeInternalError    = -32603
	rpcCodeResourceNotFound = -32002
	rpcCodeServerError      = -32000
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// isNotification reports a request without an id; it gets no response body.
func (r rpcRequest) isNotification() bool {
	return len(r.ID) == 0 || string(r.ID) == "null"
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int           `json:"code"`
	Message string        `json:"message"`
	Data    *rpcErrorData `json:"data,omitempty"`
}

// rpcErrorData carries the canonical error code alongside the numeric
// JSON-RPC one.
type rpcErrorData struct {
	Code      string `json:"code"`
	Retryable bool   `json:"retryable"`
}

// validationError is a malformed request that never reached a handler.
type validationError struct {
	message       string
	canonicalCode string
}

func (e validationError) Error() string {
	return e.message
}

func newRPCError(code int, message, canonicalCode string, retryable bool) *rpcError {
	e := &rpcError{Code: code, Message: message}
	if canonicalCode != "" {
		e.Data = &rpcErrorData{Code: canonicalCode, Retryable: retryable}
	}
	return e
}

func responseID(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return json.RawMessage("null")
	}
	return id
}

func writeResult(w http.ResponseWriter, statusCode int, id json.RawMessage, result interface{}) {
	writeResponse(w, statusCode, rpcResponse{
		JSONRPC: "2.0",
		ID:      responseID(id),
		Result:  result,
	})
}

func writeError(w http.ResponseWriter, statusCode int, id json.RawMessage, rpcErr *rpcError) {
	writeResponse(w, statusCode, rpcResponse{
		JSONRPC: "2.0",
		ID:      responseID(id),
		Error:   rpcErr,
	})
}

func writeResponse(w http.ResponseWriter, statusCode int, resp rpcResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(resp)
}
