package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"wpmcp/internal/client"
	"wpmcp/internal/protocol"
)

// checkReport is what one probe of a remote server found.
type checkReport struct {
	Origin      string                   `json:"origin"`
	Endpoint    string                   `json:"endpoint"`
	Metadata    *client.Metadata         `json:"metadata,omitempty"`
	MetadataErr string                   `json:"metadata_error,omitempty"`
	Initialize  *client.InitializeResult `json:"initialize,omitempty"`
	SessionID   string                   `json:"session_id,omitempty"`
	Tools       []client.Tool            `json:"tools"`
	Elapsed     time.Duration            `json:"elapsed_ns"`
}

func (a *app) newCheckCmd() *cobra.Command {
	var (
		mcpPath string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "check <origin>",
		Short: "Probe a running server: metadata document, initialize, tools/list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runCheck(cmd.Context(), args[0], mcpPath, timeout)
		},
	}
	cmd.Flags().StringVar(&mcpPath, "mcp-path", protocol.DefaultMCPPath, "HTTP path of the MCP endpoint")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "overall probe deadline")
	return cmd
}

func (a *app) runCheck(ctx context.Context, origin, mcpPath string, timeout time.Duration) error {
	endpoint, err := client.Endpoint(origin, mcpPath)
	if err != nil {
		return err
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	hc := &http.Client{Timeout: timeout}
	probe := func(ctx context.Context) (*checkReport, error) {
		return probeServer(ctx, hc, origin, endpoint)
	}

	var report *checkReport
	if a.interactive() {
		report, err = runWithSpinner(ctx, a.out, "Connecting to "+endpoint, probe)
	} else {
		report, err = probe(ctx)
	}

	if a.flags.JSON {
		if report != nil {
			enc := json.NewEncoder(a.out)
			enc.SetIndent("", "  ")
			if encErr := enc.Encode(report); encErr != nil {
				return encErr
			}
		}
		return err
	}
	if report != nil {
		a.printReport(report)
	}
	return err
}

// probeServer mirrors what an MCP client does on connect. A failing metadata
// document is reported but does not stop the MCP handshake.
func probeServer(ctx context.Context, hc *http.Client, origin, endpoint string) (*checkReport, error) {
	started := time.Now()
	report := &checkReport{Origin: origin, Endpoint: endpoint}

	md, err := client.FetchMetadata(ctx, hc, origin)
	report.Metadata = md
	if err != nil {
		report.MetadataErr = err.Error()
	}

	c := client.New(endpoint, client.WithHTTPClient(hc))
	info, err := c.Initialize(ctx)
	if err != nil {
		report.Elapsed = time.Since(started)
		return report, fmt.Errorf("initialize: %w", err)
	}
	report.Initialize = info
	report.SessionID = c.SessionID()

	tools, err := c.ListTools(ctx)
	if err != nil {
		report.Elapsed = time.Since(started)
		return report, fmt.Errorf("tools/list: %w", err)
	}
	report.Tools = tools
	_ = c.Close(ctx)
	report.Elapsed = time.Since(started)
	return report, nil
}

func (a *app) printReport(r *checkReport) {
	s := newStyles(a.out, a.flags.JSON)
	out := a.out

	fmt.Fprintln(out, s.sectionHeader("Protected resource metadata"))
	switch {
	case r.Metadata == nil:
		fmt.Fprintln(out, s.errPrefix(), r.MetadataErr)
	default:
		fmt.Fprintln(out, s.kv("Status", s.httpStatus(r.Metadata.Status)))
		fmt.Fprintln(out, s.kv("Content-Type", r.Metadata.ContentType))
		if r.MetadataErr != "" {
			fmt.Fprintln(out, s.warnPrefix(), r.MetadataErr)
			fmt.Fprintln(out, s.kv("Body", truncate(r.Metadata.Body, 200)))
		} else {
			fmt.Fprintln(out, s.kv("Resource", r.Metadata.Resource))
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, s.sectionHeader("MCP"))
	fmt.Fprintln(out, s.kv("Endpoint", s.url(r.Endpoint)))
	if r.Initialize == nil {
		return
	}
	fmt.Fprintln(out, s.kv("Server", r.Initialize.ServerInfo.Name+" "+r.Initialize.ServerInfo.Version))
	fmt.Fprintln(out, s.kv("Protocol", r.Initialize.ProtocolVersion))
	fmt.Fprintln(out, s.kv("Elapsed", r.Elapsed.Round(time.Millisecond).String()))

	fmt.Fprintln(out)
	fmt.Fprintln(out, s.sectionHeader(fmt.Sprintf("Tools (%d)", len(r.Tools))))
	fmt.Fprintln(out, s.separator(40))
	for _, t := range r.Tools {
		fmt.Fprintln(out, s.toolLine(t.Name, t.Description))
	}
}

// interactive reports whether the spinner may take over the terminal.
func (a *app) interactive() bool {
	if a.flags.JSON || a.flags.Quiet {
		return false
	}
	f, ok := a.out.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func firstLine(text string) string {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	return truncate(strings.TrimSpace(text), 100)
}

func truncate(text string, n int) string {
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n]) + "…"
}
