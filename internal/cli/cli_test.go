package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"wpmcp/internal/config"
	"wpmcp/internal/logging"
	"wpmcp/internal/mcp"
	"wpmcp/internal/protocol"
	"wpmcp/internal/schema"
	"wpmcp/internal/tool"
)

// isolateEnv blanks every variable the config layer reads; blank values are
// treated as unset.
func isolateEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"PORT", "WPMCP_LISTEN", "WPMCP_MCP_PATH", "WPMCP_PUBLIC", "WPMCP_TOOL_PROFILE", "WPMCP_TOOL_TIMEOUT",
		"WPMCP_LOG_LEVEL", "WPMCP_LOG_FORMAT", "WPMCP_ALLOWED_ORIGINS", "WPMCP_TRUSTED_PROXIES",
		"CAMPAIGN_FINANCE_SUPABASE_URL", "SUPABASE_SECONDARY_URL",
		"CAMPAIGN_FINANCE_SUPABASE_SERVICE_KEY", "SUPABASE_SECONDARY_SERVICE_ROLE_KEY",
		"CAMPAIGN_FINANCE_SUPABASE_ANON_KEY", "SUPABASE_SECONDARY_ANON_KEY",
		"SUPABASE_PRIMARY_URL", "SUPABASE_URL", "SUPABASE_PRIMARY_SERVICE_ROLE_KEY",
		"EMBEDDING_PROVIDER", "OPENAI_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY",
		"DB_DRIVER", "DATABASE_URL", "DB_PASSWORD",
	} {
		t.Setenv(name, "")
	}
}

// runCLI executes the command tree in an empty directory without dotenv.
func runCLI(t *testing.T, dir string, args ...string) (int, string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	full := append([]string{"--dir", dir, "--no-dotenv"}, args...)
	code := run(context.Background(), full, &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestVersion(t *testing.T) {
	code, out, _ := runCLI(t, t.TempDir(), "version")
	if code != ExitSuccess {
		t.Fatalf("exit=%d", code)
	}
	want := "wpmcp " + protocol.ServerVersion + " (protocol " + config.DefaultProtocolVersion + ")"
	if strings.TrimSpace(out) != want {
		t.Fatalf("out=%q want=%q", out, want)
	}
}

func TestVersion_JSON(t *testing.T) {
	code, out, _ := runCLI(t, t.TempDir(), "--json", "version")
	if code != ExitSuccess {
		t.Fatalf("exit=%d", code)
	}
	var event struct {
		Event string            `json:"event"`
		Data  map[string]string `json:"data"`
	}
	if err := json.Unmarshal([]byte(out), &event); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if event.Event != "version" || event.Data["name"] != protocol.ServerName {
		t.Fatalf("event=%#v", event)
	}
}

func TestConfigPrint_RedactsSecrets(t *testing.T) {
	isolateEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test-secret")

	code, out, errOut := runCLI(t, t.TempDir(), "config", "print")
	if code != ExitSuccess {
		t.Fatalf("exit=%d stderr=%s", code, errOut)
	}
	if strings.Contains(out, "sk-test-secret") {
		t.Fatalf("secret leaked: %s", out)
	}
	if !strings.Contains(out, "<from env OPENAI_API_KEY>") {
		t.Fatalf("expected redaction marker, got:\n%s", out)
	}

	code, out, _ = runCLI(t, t.TempDir(), "config", "print", "--format", "toml")
	if code != ExitSuccess {
		t.Fatalf("toml exit=%d", code)
	}
	if !strings.Contains(out, "[server]") || strings.Contains(out, "sk-test-secret") {
		t.Fatalf("toml output:\n%s", out)
	}
}

func TestConfigPrint_UnknownFormat(t *testing.T) {
	isolateEnv(t)
	code, _, errOut := runCLI(t, t.TempDir(), "config", "print", "--format", "ini")
	if code != ExitGenericError {
		t.Fatalf("exit=%d", code)
	}
	if !strings.Contains(errOut, "unsupported format") {
		t.Fatalf("stderr=%q", errOut)
	}
}

func TestConfigInit(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()

	code, out, errOut := runCLI(t, dir, "config", "init")
	if code != ExitSuccess {
		t.Fatalf("exit=%d stderr=%s", code, errOut)
	}
	path := filepath.Join(dir, "wpmcp.yaml")
	if !strings.Contains(out, path) {
		t.Fatalf("out=%q", out)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(raw) != config.DefaultYAML {
		t.Fatal("written file differs from the template")
	}

	code, _, errOut = runCLI(t, dir, "config", "init")
	if code != ExitGenericError || !strings.Contains(errOut, "already exists") {
		t.Fatalf("second init exit=%d stderr=%q", code, errOut)
	}
	if code, _, _ = runCLI(t, dir, "config", "init", "--force"); code != ExitSuccess {
		t.Fatalf("forced init exit=%d", code)
	}

	// The template must load cleanly.
	if code, _, errOut = runCLI(t, dir, "tools"); code != ExitSuccess {
		t.Fatalf("tools with template exit=%d stderr=%s", code, errOut)
	}
}

func TestConfigInit_TOML(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	if code, _, errOut := runCLI(t, dir, "config", "init", "--format", "toml"); code != ExitSuccess {
		t.Fatalf("exit=%d stderr=%s", code, errOut)
	}
	if _, err := os.Stat(filepath.Join(dir, "wpmcp.toml")); err != nil {
		t.Fatalf("stat: %v", err)
	}
	if code, _, errOut := runCLI(t, dir, "tools"); code != ExitSuccess {
		t.Fatalf("tools with toml template exit=%d stderr=%s", code, errOut)
	}
}

func TestInvalidConfigExitCode(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "wpmcp.yaml"), []byte("tools:\n  profile: everything\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	code, _, errOut := runCLI(t, dir, "tools")
	if code != ExitConfigInvalid {
		t.Fatalf("exit=%d want=%d stderr=%s", code, ExitConfigInvalid, errOut)
	}
	if !strings.Contains(errOut, "CONFIG_INVALID") {
		t.Fatalf("stderr=%q", errOut)
	}
}

func TestTools_ListsProfile(t *testing.T) {
	isolateEnv(t)

	code, out, errOut := runCLI(t, t.TempDir(), "tools")
	if code != ExitSuccess {
		t.Fatalf("exit=%d stderr=%s", code, errOut)
	}
	if !strings.Contains(out, protocol.ToolNameSearch) || !strings.Contains(out, protocol.ToolNameFetch) {
		t.Fatalf("out=%s", out)
	}

	code, out, _ = runCLI(t, t.TempDir(), "--json", "tools", "--profile", "direct")
	if code != ExitSuccess {
		t.Fatalf("exit=%d", code)
	}
	var listing struct {
		Profile string `json:"profile"`
		Tools   []struct {
			Name string `json:"name"`
		} `json:"tools"`
	}
	if err := json.Unmarshal([]byte(out), &listing); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if listing.Profile != "direct" || len(listing.Tools) != 12 {
		t.Fatalf("listing=%#v", listing)
	}
}

func TestCall_MissingConfiguration(t *testing.T) {
	isolateEnv(t)
	code, _, errOut := runCLI(t, t.TempDir(),
		"call", protocol.ToolNameGetBillText, "--profile", "direct", "--args", `{"p_bill_id":1}`)
	if code != ExitGenericError {
		t.Fatalf("exit=%d", code)
	}
	if !strings.Contains(errOut, "ERROR: "+protocol.ErrorCodeConfigurationMissing) {
		t.Fatalf("stderr=%q", errOut)
	}
	if !strings.Contains(errOut, "CAMPAIGN_FINANCE_SUPABASE_URL") {
		t.Fatalf("expected the missing setting to be named, stderr=%q", errOut)
	}
}

func TestCall_SoftErrorExitsNonZero(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	args := []string{"call", "run-sql-query", "--profile", "legacy", "--args", `{"query":"DROP TABLE v2_events"}`}

	code, out, errOut := runCLI(t, dir, args...)
	if code != ExitGenericError {
		t.Fatalf("exit=%d stderr=%q", code, errOut)
	}
	if !strings.Contains(out, "Only SELECT/WITH queries are allowed") {
		t.Fatalf("stdout=%q", out)
	}
	if !strings.Contains(errOut, "tool reported an error result") {
		t.Fatalf("stderr=%q", errOut)
	}

	code, out, _ = runCLI(t, dir, append([]string{"--json"}, args...)...)
	if code != ExitGenericError {
		t.Fatalf("json exit=%d", code)
	}
	if strings.Contains(out, "isError") || !strings.Contains(out, "Only SELECT/WITH queries are allowed") {
		t.Fatalf("json stdout=%q", out)
	}
}

func TestCall_BadInput(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()

	code, _, errOut := runCLI(t, dir, "call", protocol.ToolNameSearch, "--args", "[1,2]")
	if code != ExitGenericError || !strings.Contains(errOut, "--args must be a JSON object") {
		t.Fatalf("exit=%d stderr=%q", code, errOut)
	}

	code, _, errOut = runCLI(t, dir, "call", "no_such_tool")
	if code != ExitGenericError || !strings.Contains(errOut, protocol.ErrorCodeToolNotFound) {
		t.Fatalf("exit=%d stderr=%q", code, errOut)
	}

	code, _, errOut = runCLI(t, dir, "call", protocol.ToolNameFetch)
	if code != ExitGenericError || !strings.Contains(errOut, protocol.ErrorCodeInvalidArguments) {
		t.Fatalf("exit=%d stderr=%q", code, errOut)
	}
}

func TestServe_BindFailure(t *testing.T) {
	isolateEnv(t)
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer busy.Close()

	code, _, errOut := runCLI(t, t.TempDir(), "serve", "--listen", busy.Addr().String())
	if code != ExitBindFailure {
		t.Fatalf("exit=%d want=%d stderr=%s", code, ExitBindFailure, errOut)
	}
	if !strings.Contains(errOut, "server bind failure") {
		t.Fatalf("stderr=%q", errOut)
	}
}

func TestCheck_JSONReport(t *testing.T) {
	reg := tool.NewRegistry()
	reg.MustRegister(tool.Definition{
		Name:        "echo",
		Description: "Echo the input.\nSecond line.",
		Input:       schema.New(schema.String("text").Required()),
		Handler: func(_ context.Context, args schema.Args) (tool.Result, error) {
			return tool.Text(args.String("text")), nil
		},
	})
	dispatcher := tool.NewDispatcher(reg, tool.WithLogger(logging.Discard()))
	srv := mcp.NewServer(config.Default(), dispatcher, mcp.WithLogger(logging.Discard()))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	code, out, errOut := runCLI(t, t.TempDir(), "--json", "check", ts.URL)
	if code != ExitSuccess {
		t.Fatalf("exit=%d stderr=%s", code, errOut)
	}
	var report checkReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if report.Metadata == nil || report.Metadata.Resource != ts.URL || report.MetadataErr != "" {
		t.Fatalf("metadata=%#v err=%q", report.Metadata, report.MetadataErr)
	}
	if report.Initialize == nil || report.Initialize.ServerInfo.Name != protocol.ServerName {
		t.Fatalf("initialize=%#v", report.Initialize)
	}
	if len(report.Tools) != 1 || report.Tools[0].Name != "echo" {
		t.Fatalf("tools=%#v", report.Tools)
	}

	code, out, _ = runCLI(t, t.TempDir(), "check", ts.URL)
	if code != ExitSuccess {
		t.Fatalf("text exit=%d", code)
	}
	if !strings.Contains(out, "Tools (1)") || !strings.Contains(out, "Echo the input.") || strings.Contains(out, "Second line.") {
		t.Fatalf("text report:\n%s", out)
	}
}

func TestCheck_Unreachable(t *testing.T) {
	ts := httptest.NewServer(nil)
	url := ts.URL
	ts.Close()

	code, _, errOut := runCLI(t, t.TempDir(), "check", url, "--timeout", "2s")
	if code != ExitGenericError {
		t.Fatalf("exit=%d", code)
	}
	if !strings.Contains(errOut, "initialize") {
		t.Fatalf("stderr=%q", errOut)
	}
}

func TestExitCode(t *testing.T) {
	if exitCode(nil) != ExitSuccess {
		t.Fatal("nil error must exit 0")
	}
	if exitCode(errors.New("boom")) != ExitGenericError {
		t.Fatal("plain errors exit 1")
	}
	wrapped := errors.Join(errors.New("ctx"), withExit(ExitBindFailure, errors.New("bind")))
	if exitCode(wrapped) != ExitBindFailure {
		t.Fatal("wrapped exit codes survive")
	}
	if withExit(ExitConfigInvalid, nil) != nil {
		t.Fatal("withExit(nil) must stay nil")
	}
}

func TestStyles_PlainOutsideTerminal(t *testing.T) {
	s := newStyles(&bytes.Buffer{}, false)

	if got := s.toolLine("get_bill_text", "Fetch the bill text.\nSecond line."); got != "  get_bill_text  Fetch the bill text." {
		t.Fatalf("toolLine=%q", got)
	}
	if got := s.httpStatus(200); got != "200 OK" {
		t.Fatalf("httpStatus(200)=%q", got)
	}
	if got := s.httpStatus(599); got != "599" {
		t.Fatalf("httpStatus(599)=%q", got)
	}
	if got := s.kv("Profile", "legacy"); got != "  Profile:       legacy" {
		t.Fatalf("kv=%q", got)
	}
	if got := s.banner("1.0.0"); got != protocol.ServerName+" 1.0.0" {
		t.Fatalf("banner=%q", got)
	}
}
