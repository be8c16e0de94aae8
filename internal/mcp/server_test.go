package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"wpmcp/internal/config"
	"wpmcp/internal/logging"
	"wpmcp/internal/protocol"
	"wpmcp/internal/resources"
	"wpmcp/internal/schema"
	"wpmcp/internal/tool"
)

func testDispatcher() *tool.Dispatcher {
	reg := tool.NewRegistry()
	reg.MustRegister(
		tool.Definition{
			Name:        "echo",
			Description: "Echo text back.",
			Input:       schema.New(schema.String("text").Required()),
			Handler: func(_ context.Context, args schema.Args) (tool.Result, error) {
				return tool.Text(args.String("text")), nil
			},
		},
		tool.Definition{
			Name:        "broken",
			Description: "Always fails upstream.",
			Input:       schema.New(),
			Handler: func(_ context.Context, _ schema.Args) (tool.Result, error) {
				return tool.Result{}, errors.New("boom")
			},
		},
	)
	return tool.NewDispatcher(reg, tool.WithLogger(logging.Discard()))
}

func newTestServer(cfg config.Config, opts ...Option) *Server {
	opts = append([]Option{WithLogger(logging.Discard())}, opts...)
	return NewServer(cfg, testDispatcher(), opts...)
}

func postRPC(t *testing.T, h http.Handler, body, sessionID string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.Header.Set(protocol.MCPSessionHeader, sessionID)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func initializeSession(t *testing.T, h http.Handler) string {
	t.Helper()
	rr := postRPC(t, h, `{"jsonrpc":"2.0","id":"init-1","method":"initialize","params":{}}`, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("initialize failed status=%d body=%s", rr.Code, rr.Body.String())
	}
	sessionID := rr.Header().Get(protocol.MCPSessionHeader)
	if sessionID == "" {
		t.Fatal("missing MCP-Session-Id on initialize")
	}
	return sessionID
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v body=%s", err, rr.Body.String())
	}
	return resp
}

func resultOf(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	resp := decodeBody(t, rr)
	result, ok := resp["result"].(map[string]any)
	if !ok {
		t.Fatalf("expected result object, got: %#v", resp)
	}
	return result
}

func assertRPCError(t *testing.T, rr *httptest.ResponseRecorder, wantCode int, wantCanonical string) {
	t.Helper()
	resp := decodeBody(t, rr)
	errObj, ok := resp["error"].(map[string]any)
	if !ok {
		t.Fatalf("expected error object, got: %#v", resp)
	}
	if got := int(errObj["code"].(float64)); got != wantCode {
		t.Fatalf("error.code=%d want=%d", got, wantCode)
	}
	if wantCanonical == "" {
		return
	}
	data, ok := errObj["data"].(map[string]any)
	if !ok {
		t.Fatalf("expected error.data, got: %#v", errObj)
	}
	if data["code"] != wantCanonical {
		t.Fatalf("error.data.code=%v want=%s", data["code"], wantCanonical)
	}
}

func TestServer_Initialize(t *testing.T) {
	h := newTestServer(config.Default()).Handler()

	rr := postRPC(t, h, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26"}}`, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if rr.Header().Get(protocol.MCPSessionHeader) == "" {
		t.Fatal("missing session header")
	}
	result := resultOf(t, rr)
	if result["protocolVersion"] != "2025-03-26" {
		t.Fatalf("protocolVersion=%v want echoed 2025-03-26", result["protocolVersion"])
	}
	info := result["serverInfo"].(map[string]any)
	if info["name"] != protocol.ServerName {
		t.Fatalf("serverInfo.name=%v", info["name"])
	}
	caps := result["capabilities"].(map[string]any)
	if _, ok := caps["tools"]; !ok {
		t.Fatalf("capabilities missing tools: %#v", caps)
	}
	if _, ok := caps["resources"]; !ok {
		t.Fatalf("capabilities missing resources: %#v", caps)
	}
}

func TestServer_Initialize_UnknownVersionFallsBackToConfigured(t *testing.T) {
	h := newTestServer(config.Default()).Handler()

	rr := postRPC(t, h, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"1999-01-01"}}`, "")
	if got := resultOf(t, rr)["protocolVersion"]; got != config.DefaultProtocolVersion {
		t.Fatalf("protocolVersion=%v want=%s", got, config.DefaultProtocolVersion)
	}
}

func TestServer_RequiresSession(t *testing.T) {
	h := newTestServer(config.Default()).Handler()

	rr := postRPC(t, h, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`, "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d want=400", rr.Code)
	}
	assertRPCError(t, rr, rpcCodeInvalidRequest, protocol.ErrorCodeMissingField)

	rr = postRPC(t, h, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`, "not-a-session")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d want=404", rr.Code)
	}
	assertRPCError(t, rr, rpcCodeInvalidRequest, protocol.ErrorCodeSessionNotFound)
	if rr.Header().Get(protocol.SessionExpiredHeader) != "" {
		t.Fatal("unknown session must not report an expiry reason")
	}
}

func TestServer_NotificationsInitializedAccepted(t *testing.T) {
	h := newTestServer(config.Default()).Handler()
	sessionID := initializeSession(t, h)

	rr := postRPC(t, h, `{"jsonrpc":"2.0","method":"notifications/initialized"}`, sessionID)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status=%d want=202", rr.Code)
	}
	if rr.Body.Len() != 0 {
		t.Fatalf("notification must have no body, got %q", rr.Body.String())
	}
}

func TestServer_Ping(t *testing.T) {
	h := newTestServer(config.Default()).Handler()
	sessionID := initializeSession(t, h)

	rr := postRPC(t, h, `{"jsonrpc":"2.0","id":7,"method":"ping"}`, sessionID)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	resp := decodeBody(t, rr)
	if resp["id"].(float64) != 7 {
		t.Fatalf("id=%v", resp["id"])
	}
	if len(resultOf(t, rr)) != 0 {
		t.Fatalf("ping result should be empty")
	}
}

func TestServer_ToolsList(t *testing.T) {
	h := newTestServer(config.Default()).Handler()
	sessionID := initializeSession(t, h)

	rr := postRPC(t, h, `{"jsonrpc":"2.0","id":1,"method":"tools/list","params":{}}`, sessionID)
	tools, ok := resultOf(t, rr)["tools"].([]any)
	if !ok || len(tools) != 2 {
		t.Fatalf("tools=%#v", resultOf(t, rr)["tools"])
	}
	first := tools[0].(map[string]any)
	if first["name"] != "echo" {
		t.Fatalf("first tool=%v want echo", first["name"])
	}
	inputSchema, ok := first["inputSchema"].(map[string]any)
	if !ok || inputSchema["type"] != "object" {
		t.Fatalf("inputSchema=%#v", first["inputSchema"])
	}
}

func TestServer_ToolsCall_Success(t *testing.T) {
	h := newTestServer(config.Default()).Handler()
	sessionID := initializeSession(t, h)

	rr := postRPC(t, h, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"echo","arguments":{"text":"hi"}}}`, sessionID)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	result := resultOf(t, rr)
	if isErr, _ := result["isError"].(bool); isErr {
		t.Fatalf("unexpected isError result: %#v", result)
	}
	content := result["content"].([]any)
	if text := content[0].(map[string]any)["text"]; text != "hi" {
		t.Fatalf("text=%v want hi", text)
	}
}

func toolError(t *testing.T, rr *httptest.ResponseRecorder) (string, map[string]any) {
	t.Helper()
	if rr.Code != http.StatusOK {
		t.Fatalf("tool errors are results: status=%d body=%s", rr.Code, rr.Body.String())
	}
	result := resultOf(t, rr)
	if isErr, _ := result["isError"].(bool); !isErr {
		t.Fatalf("expected isError result, got %#v", result)
	}
	text := result["content"].([]any)[0].(map[string]any)["text"].(string)
	structured := result["structuredContent"].(map[string]any)
	return text, structured["error"].(map[string]any)
}

func TestServer_ToolsCall_UnknownTool(t *testing.T) {
	h := newTestServer(config.Default()).Handler()
	sessionID := initializeSession(t, h)

	rr := postRPC(t, h, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"nope"}}`, sessionID)
	text, errObj := toolError(t, rr)
	if !strings.HasPrefix(text, "ERROR: TOOL_NOT_FOUND: ") {
		t.Fatalf("text=%q", text)
	}
	if errObj["code"] != protocol.ErrorCodeToolNotFound || errObj["kind"] != string(tool.KindToolNotFound) {
		t.Fatalf("error=%#v", errObj)
	}
	if errObj["retryable"] != false {
		t.Fatalf("retryable=%v", errObj["retryable"])
	}
}

func TestServer_ToolsCall_InvalidArgumentsCarryIssues(t *testing.T) {
	h := newTestServer(config.Default()).Handler()
	sessionID := initializeSession(t, h)

	rr := postRPC(t, h, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"echo","arguments":{}}}`, sessionID)
	_, errObj := toolError(t, rr)
	if errObj["code"] != protocol.ErrorCodeInvalidArguments {
		t.Fatalf("code=%v", errObj["code"])
	}
	issues, ok := errObj["issues"].([]any)
	if !ok || len(issues) != 1 {
		t.Fatalf("issues=%#v", errObj["issues"])
	}
	if field := issues[0].(map[string]any)["field"]; field != "text" {
		t.Fatalf("issue field=%v want text", field)
	}
}

func TestServer_ToolsCall_HandlerFailureIsResult(t *testing.T) {
	h := newTestServer(config.Default()).Handler()
	sessionID := initializeSession(t, h)

	rr := postRPC(t, h, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"broken"}}`, sessionID)
	_, errObj := toolError(t, rr)
	if errObj["kind"] != string(tool.KindHandlerError) {
		t.Fatalf("kind=%v", errObj["kind"])
	}
	if issues, ok := errObj["issues"].([]any); !ok || len(issues) != 0 {
		t.Fatalf("issues=%#v want empty list", errObj["issues"])
	}
}

func TestServer_ToolsCall_MissingParams(t *testing.T) {
	h := newTestServer(config.Default()).Handler()
	sessionID := initializeSession(t, h)

	rr := postRPC(t, h, `{"jsonrpc":"2.0","id":1,"method":"tools/call"}`, sessionID)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d want=400", rr.Code)
	}
	assertRPCError(t, rr, rpcCodeInvalidParams, protocol.ErrorCodeMissingField)

	rr = postRPC(t, h, `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"  "}}`, sessionID)
	assertRPCError(t, rr, rpcCodeInvalidParams, protocol.ErrorCodeMissingField)
}

func TestServer_MalformedRequests(t *testing.T) {
	h := newTestServer(config.Default()).Handler()

	rr := postRPC(t, h, `{not json`, "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d want=400", rr.Code)
	}
	assertRPCError(t, rr, rpcCodeParseError, "")

	rr = postRPC(t, h, `{"jsonrpc":"1.0","id":1,"method":"ping"}`, "")
	assertRPCError(t, rr, rpcCodeInvalidRequest, protocol.ErrorCodeInvalidField)

	rr = postRPC(t, h, `{"jsonrpc":"2.0","id":1}`, "")
	assertRPCError(t, rr, rpcCodeInvalidRequest, protocol.ErrorCodeMissingField)

	rr = postRPC(t, h, `[{"jsonrpc":"2.0","id":1,"method":"ping"}]`, "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("batch status=%d want=400", rr.Code)
	}
}

func TestServer_RequestTooLarge(t *testing.T) {
	h := newTestServer(config.Default()).Handler()

	huge := `{"jsonrpc":"2.0","id":1,"method":"ping","params":{"pad":"` + strings.Repeat("x", maxRequestBytes) + `"}}`
	rr := postRPC(t, h, huge, "")
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status=%d want=413", rr.Code)
	}
	assertRPCError(t, rr, rpcCodeInvalidRequest, protocol.ErrorCodeRequestTooLarge)
}

func TestServer_UnknownMethod(t *testing.T) {
	h := newTestServer(config.Default()).Handler()
	sessionID := initializeSession(t, h)

	rr := postRPC(t, h, `{"jsonrpc":"2.0","id":1,"method":"prompts/list"}`, sessionID)
	assertRPCError(t, rr, rpcCodeMethodNotFound, protocol.ErrorCodeMethodNotFound)
}

func TestServer_Resources(t *testing.T) {
	h := newTestServer(config.Default()).Handler()
	sessionID := initializeSession(t, h)

	rr := postRPC(t, h, `{"jsonrpc":"2.0","id":1,"method":"resources/list"}`, sessionID)
	list := resultOf(t, rr)["resources"].([]any)
	if len(list) != 1 || list[0].(map[string]any)["uri"] != resources.ReportPromptURI {
		t.Fatalf("resources=%#v", list)
	}

	rr = postRPC(t, h, `{"jsonrpc":"2.0","id":2,"method":"resources/read","params":{"uri":"`+resources.ReportPromptURI+`"}}`, sessionID)
	contents := resultOf(t, rr)["contents"].([]any)
	first := contents[0].(map[string]any)
	if first["mimeType"] != "text/markdown" || first["text"] == "" {
		t.Fatalf("contents=%#v", first)
	}

	rr = postRPC(t, h, `{"jsonrpc":"2.0","id":3,"method":"resources/read","params":{"uri":"missing"}}`, sessionID)
	assertRPCError(t, rr, rpcCodeResourceNotFound, protocol.ErrorCodeResourceNotFound)

	rr = postRPC(t, h, `{"jsonrpc":"2.0","id":4,"method":"resources/read","params":{}}`, sessionID)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d want=400", rr.Code)
	}
}

func TestServer_DeleteEndsSession(t *testing.T) {
	h := newTestServer(config.Default()).Handler()
	sessionID := initializeSession(t, h)

	req := httptest.NewRequest(http.MethodDelete, "/mcp", nil)
	req.Header.Set(protocol.MCPSessionHeader, sessionID)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete status=%d want=204", rr.Code)
	}

	rr = postRPC(t, h, `{"jsonrpc":"2.0","id":1,"method":"ping"}`, sessionID)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status after delete=%d want=404", rr.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/mcp", nil)
	req.Header.Set(protocol.MCPSessionHeader, sessionID)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("second delete status=%d want=404", rr.Code)
	}
}

func TestServer_MethodNotAllowed(t *testing.T) {
	h := newTestServer(config.Default()).Handler()

	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d want=405", rr.Code)
	}
	if rr.Header().Get("Allow") != "POST, DELETE" {
		t.Fatalf("Allow=%q", rr.Header().Get("Allow"))
	}
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func TestServer_SessionExpiresAfterInactivity(t *testing.T) {
	cfg := config.Default()
	cfg.Server.SessionInactivityTimeout = config.Duration(time.Hour)
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	h := newTestServer(cfg, withClock(clock.Now)).Handler()
	sessionID := initializeSession(t, h)

	clock.advance(59 * time.Minute)
	if rr := postRPC(t, h, `{"jsonrpc":"2.0","id":1,"method":"ping"}`, sessionID); rr.Code != http.StatusOK {
		t.Fatalf("status=%d want=200 before timeout", rr.Code)
	}

	clock.advance(61 * time.Minute)
	rr := postRPC(t, h, `{"jsonrpc":"2.0","id":2,"method":"ping"}`, sessionID)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d want=404", rr.Code)
	}
	if got := rr.Header().Get(protocol.SessionExpiredHeader); got != expiredInactivity {
		t.Fatalf("%s=%q want=%q", protocol.SessionExpiredHeader, got, expiredInactivity)
	}
}

func TestServer_SessionExpiresAtMaxLifetime(t *testing.T) {
	cfg := config.Default()
	cfg.Server.SessionInactivityTimeout = config.Duration(time.Hour)
	cfg.Server.SessionMaxLifetime = config.Duration(2 * time.Hour)
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	h := newTestServer(cfg, withClock(clock.Now)).Handler()
	sessionID := initializeSession(t, h)

	for i := 0; i < 2; i++ {
		clock.advance(50 * time.Minute)
		if rr := postRPC(t, h, `{"jsonrpc":"2.0","id":1,"method":"ping"}`, sessionID); rr.Code != http.StatusOK {
			t.Fatalf("touch %d status=%d", i, rr.Code)
		}
	}
	clock.advance(50 * time.Minute)
	rr := postRPC(t, h, `{"jsonrpc":"2.0","id":2,"method":"ping"}`, sessionID)
	if got := rr.Header().Get(protocol.SessionExpiredHeader); got != expiredMaxLifetime {
		t.Fatalf("%s=%q want=%q", protocol.SessionExpiredHeader, got, expiredMaxLifetime)
	}
}

func TestServer_SweepDropsExpiredSessions(t *testing.T) {
	cfg := config.Default()
	cfg.Server.SessionInactivityTimeout = config.Duration(time.Minute)
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	srv := newTestServer(cfg, withClock(clock.Now))
	h := srv.Handler()
	initializeSession(t, h)
	initializeSession(t, h)

	clock.advance(2 * time.Minute)
	initializeSession(t, h)
	srv.sweep()
	if got := srv.sessions.len(); got != 1 {
		t.Fatalf("live sessions=%d want=1", got)
	}
}

func TestServer_RunMaintenanceRejectsBadSchedule(t *testing.T) {
	cfg := config.Default()
	cfg.Server.MaintenanceSchedule = "not a schedule"
	srv := newTestServer(cfg)

	if err := srv.RunMaintenance(context.Background()); err == nil {
		t.Fatal("expected schedule error")
	}
}

func TestServer_RunMaintenanceStopsOnCancel(t *testing.T) {
	srv := newTestServer(config.Default())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.RunMaintenance(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("RunMaintenance: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("RunMaintenance did not stop")
	}
}

func TestServer_HealthProbe(t *testing.T) {
	h := newTestServer(config.Default()).Handler()

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusOK || rr.Body.String() != "OK" {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/elsewhere", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d want=404", rr.Code)
	}
}

func TestServer_ServeShutsDownOnCancel(t *testing.T) {
	srv := newTestServer(config.Default())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/")
	if err != nil {
		t.Fatalf("health request: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
