package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"wpmcp/internal/config"
	"wpmcp/internal/dependency"
	"wpmcp/internal/protocol"
)

func (a *app) newServeCmd() *cobra.Command {
	var (
		listen      string
		mcpPath     string
		public      bool
		profile     string
		toolTimeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Flags win only when set; otherwise file and env values stand.
			o := &config.Overrides{}
			flags := cmd.Flags()
			if flags.Changed("listen") {
				o.Listen = &listen
			}
			if flags.Changed("mcp-path") {
				o.MCPPath = &mcpPath
			}
			if flags.Changed("public") {
				o.Public = &public
			}
			if flags.Changed("profile") {
				o.ToolProfile = &profile
			}
			if flags.Changed("tool-timeout") {
				o.ToolTimeout = &toolTimeout
			}
			return a.runServe(cmd.Context(), o)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", protocol.DefaultListenAddr, "host:port to listen on")
	cmd.Flags().StringVar(&mcpPath, "mcp-path", protocol.DefaultMCPPath, "HTTP path for the MCP endpoint")
	cmd.Flags().BoolVar(&public, "public", false, "enable per-client rate limiting for internet-facing use")
	cmd.Flags().StringVar(&profile, "profile", "search", "tool profile: search|direct|legacy")
	cmd.Flags().DurationVar(&toolTimeout, "tool-timeout", 60*time.Second, "per-invocation execution budget")
	return cmd
}

func (a *app) runServe(ctx context.Context, o *config.Overrides) error {
	cfg, err := a.loadConfig(o, false)
	if err != nil {
		return err
	}
	logger, err := a.newLogger(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := dependency.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		_ = c.Close()
	}()

	listener, err := net.Listen("tcp", cfg.Server.Listen)
	if err != nil {
		return withExit(ExitBindFailure, fmt.Errorf("server bind failure: %w", err))
	}
	mcpURL := "http://" + listener.Addr().String() + cfg.Server.MCPPath
	tools := c.Dispatcher().Registry().Names()

	switch {
	case a.flags.JSON:
		a.emitNDJSON("info", "server_started", map[string]interface{}{
			"url":              mcpURL,
			"protocol_version": cfg.Server.ProtocolVersion,
			"profile":          cfg.Tools.Profile,
			"tools":            tools,
			"public":           cfg.Server.Public,
		})
	case !a.flags.Quiet:
		s := newStyles(a.out, false)
		fmt.Fprintln(a.out, s.banner(protocol.ServerVersion))
		fmt.Fprintln(a.out, s.kv("MCP endpoint", s.url(mcpURL)))
		fmt.Fprintln(a.out, s.kv("Profile", cfg.Tools.Profile))
		fmt.Fprintln(a.out, s.kv("Tools", fmt.Sprintf("%d", len(tools))))
		fmt.Fprintln(a.out, s.kv("Protocol", cfg.Server.ProtocolVersion))
		if cfg.Server.Public {
			fmt.Fprintln(a.out, s.warnPrefix(), "public mode: rate limiting is on, put TLS in front of this listener")
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.Server().Serve(gctx, listener)
	})
	g.Go(func() error {
		return c.Server().RunMaintenance(gctx)
	})
	err = g.Wait()

	if a.flags.JSON {
		data := map[string]interface{}{}
		if err != nil {
			data["error"] = err.Error()
		}
		a.emitNDJSON("info", "server_stopped", data)
	}
	return err
}

// emitNDJSON writes one automation event per line to stdout.
func (a *app) emitNDJSON(level, event string, data interface{}) {
	line, err := json.Marshal(map[string]interface{}{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"level": level,
		"event": event,
		"data":  data,
	})
	if err != nil {
		return
	}
	_, _ = fmt.Fprintln(a.out, string(line))
}
