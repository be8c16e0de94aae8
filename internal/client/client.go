// Package client is a minimal streamable HTTP MCP client used by the
// diagnostic commands to probe a running server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"wpmcp/internal/config"
	"wpmcp/internal/logging"
	"wpmcp/internal/protocol"
)

const clientName = "wpmcp-check"

type Client struct {
	endpoint        string
	protocolVersion string
	httpClient      *http.Client
	logger          *slog.Logger

	mu        sync.Mutex
	sessionID string
	nextID    int
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger traces every request at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithProtocolVersion(version string) Option {
	return func(c *Client) {
		if v := strings.TrimSpace(version); v != "" {
			c.protocolVersion = v
		}
	}
}

func New(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint:        strings.TrimSpace(endpoint),
		protocolVersion: config.DefaultProtocolVersion,
		httpClient:      &http.Client{Timeout: 45 * time.Second},
		logger:          logging.Discard(),
		nextID:          1,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint joins a server origin with the MCP path.
func Endpoint(origin, mcpPath string) (string, error) {
	base, err := url.Parse(strings.TrimSpace(origin))
	if err != nil {
		return "", fmt.Errorf("parse origin: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return "", fmt.Errorf("origin %q must be an http or https URL", origin)
	}
	if mcpPath == "" {
		mcpPath = protocol.DefaultMCPPath
	}
	return base.ResolveReference(&url.URL{Path: mcpPath}).String(), nil
}

type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

type ContentItem struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type ToolCallResult struct {
	Content           []ContentItem  `json:"content"`
	StructuredContent map[string]any `json:"structuredContent,omitempty"`
	IsError           bool           `json:"isError,omitempty"`
	Elapsed           time.Duration  `json:"-"`
}

// Text joins every text block of the result.
func (r *ToolCallResult) Text() string {
	parts := make([]string, 0, len(r.Content))
	for _, item := range r.Content {
		if item.Type == "text" {
			parts = append(parts, item.Text)
		}
	}
	return strings.Join(parts, "\n")
}

type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type InitializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ServerInfo      ServerInfo     `json:"serverInfo"`
}

type jsonRPCRequest struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      *int           `json:"id,omitempty"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params,omitempty"`
}

type jsonRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Data    *struct {
			Code      string `json:"code"`
			Retryable bool   `json:"retryable"`
		} `json:"data,omitempty"`
	} `json:"error,omitempty"`
}

// Initialize opens a session and acknowledges it with
// notifications/initialized.
func (c *Client) Initialize(ctx context.Context) (*InitializeResult, error) {
	params := map[string]any{
		"protocolVersion": c.protocolVersion,
		"capabilities":    map[string]any{"tools": map[string]any{}, "resources": map[string]any{}},
		"clientInfo":      map[string]any{"name": clientName, "version": protocol.ServerVersion},
	}
	raw, headers, err := c.call(ctx, protocol.RPCMethodInitialize, params, true)
	if err != nil {
		return nil, err
	}
	sessionID := headers.Get(protocol.MCPSessionHeader)
	if sessionID == "" {
		return nil, fmt.Errorf("initialize response missing %s", protocol.MCPSessionHeader)
	}
	var result InitializeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode initialize result: %w", err)
	}
	c.mu.Lock()
	c.sessionID = sessionID
	c.mu.Unlock()

	if _, _, err := c.call(ctx, protocol.RPCMethodNotificationsInitialized, nil, false); err != nil {
		return nil, fmt.Errorf("notifications/initialized failed: %w", err)
	}
	return &result, nil
}

func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	raw, _, err := c.callWithRecovery(ctx, protocol.RPCMethodToolsList, map[string]any{})
	if err != nil {
		return nil, err
	}
	var result struct {
		Tools []Tool `json:"tools"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode tools/list result: %w", err)
	}
	return result.Tools, nil
}

// CallTool runs one tool. A rejected invocation comes back as a result with
// IsError set, not as an error.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (*ToolCallResult, error) {
	if args == nil {
		args = map[string]any{}
	}
	start := time.Now()
	raw, _, err := c.callWithRecovery(ctx, protocol.RPCMethodToolsCall, map[string]any{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return nil, err
	}
	var result ToolCallResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode tools/call result: %w", err)
	}
	result.Elapsed = time.Since(start)
	return &result, nil
}

// Close ends the server-side session. A session the server already dropped
// is not an error.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	sessionID := c.sessionID
	c.sessionID = ""
	c.mu.Unlock()
	if sessionID == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set(protocol.MCPSessionHeader, sessionID)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusNotFound {
		return nil
	}
	return fmt.Errorf("delete session: http status %d", resp.StatusCode)
}

// callWithRecovery re-initializes once when the server no longer knows the
// session, then retries the call.
func (c *Client) callWithRecovery(ctx context.Context, method string, params map[string]any) (json.RawMessage, http.Header, error) {
	raw, headers, err := c.call(ctx, method, params, true)
	if err == nil || CanonicalCodeFromError(err) != protocol.ErrorCodeSessionNotFound {
		return raw, headers, err
	}
	c.logger.Debug("session lost; re-initializing", "method", method, "error", err)
	if _, initErr := c.Initialize(ctx); initErr != nil {
		return nil, nil, fmt.Errorf("session recovery failed: %w", initErr)
	}
	return c.call(ctx, method, params, true)
}

func (c *Client) call(ctx context.Context, method string, params map[string]any, withID bool) (json.RawMessage, http.Header, error) {
	var id *int
	if withID {
		c.mu.Lock()
		n := c.nextID
		c.nextID++
		c.mu.Unlock()
		id = &n
	}
	payload, err := json.Marshal(jsonRPCRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	req.Header.Set(protocol.MCPProtocolVersionHeader, c.protocolVersion)
	if sessionID := c.SessionID(); sessionID != "" {
		req.Header.Set(protocol.MCPSessionHeader, sessionID)
	}

	c.logger.Debug("mcp request", "method", method)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.Header, err
	}
	c.logger.Debug("mcp response", "method", method, "status", resp.StatusCode, "bytes", len(body))

	if len(bytes.TrimSpace(body)) == 0 {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, resp.Header, &RPCError{Message: http.StatusText(resp.StatusCode), HTTPStatus: resp.StatusCode}
		}
		return nil, resp.Header, nil
	}

	var envelope jsonRPCResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, resp.Header, &RPCError{
				Message:    strings.TrimSpace(string(body)),
				HTTPStatus: resp.StatusCode,
			}
		}
		return nil, resp.Header, fmt.Errorf("decode %s response: %w", method, err)
	}
	if envelope.Error != nil {
		rpcErr := &RPCError{
			Code:          envelope.Error.Code,
			Message:       envelope.Error.Message,
			HTTPStatus:    resp.StatusCode,
			ExpiredReason: resp.Header.Get(protocol.SessionExpiredHeader),
			RetryAfter:    resp.Header.Get("Retry-After"),
		}
		if envelope.Error.Data != nil {
			rpcErr.CanonicalCode = envelope.Error.Data.Code
			rpcErr.Retryable = envelope.Error.Data.Retryable
		}
		return nil, resp.Header, rpcErr
	}
	return envelope.Result, resp.Header, nil
}
