// Package mcp serves the tool registry over the MCP streamable HTTP
// transport: JSON-RPC requests on a single POST path with server-assigned
// sessions.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"

	"wpmcp/internal/config"
	"wpmcp/internal/protocol"
	"wpmcp/internal/tool"
)

const (
	maxRequestBytes = 1 << 20
	// rateBucketIdleTTL is how long an idle client's bucket is kept; a full
	// refill takes far less at any sane rate.
	rateBucketIdleTTL     = 10 * time.Minute
	defaultMaintenanceJob = "@every 1m"
)

type Server struct {
	cfg        config.Config
	dispatcher *tool.Dispatcher
	logger     *slog.Logger
	now        func() time.Time

	sessions *sessionStore
	limiter  *rateLimiter
	proxies  trustedProxies
	origins  originPolicy
}

type Option func(*Server)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func withClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// NewServer builds the transport around dispatcher. A nil dispatcher serves
// an empty registry.
func NewServer(cfg config.Config, dispatcher *tool.Dispatcher, opts ...Option) *Server {
	if dispatcher == nil {
		dispatcher = tool.NewDispatcher(nil)
	}
	if cfg.Server.MCPPath == "" {
		cfg.Server.MCPPath = protocol.DefaultMCPPath
	}
	if cfg.Server.ProtocolVersion == "" {
		cfg.Server.ProtocolVersion = config.DefaultProtocolVersion
	}

	s := &Server{
		cfg:        cfg,
		dispatcher: dispatcher,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.sessions = newSessionStore(cfg.Server.SessionInactivityTimeout.Std(), cfg.Server.SessionMaxLifetime.Std(), s.now)
	s.limiter = newRateLimiter(float64(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst, s.now)
	s.proxies = parseTrustedProxies(cfg.Security.TrustedProxies)
	s.origins = newOriginPolicy(cfg.Security.AllowedOrigins)
	return s
}

// Handler routes the MCP path, the protected-resource metadata document and
// the root health probe.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHealth)
	mux.HandleFunc(protocol.ProtectedResourceMetadataPath, s.handleProtectedResourceMetadata)
	mux.HandleFunc(s.cfg.Server.MCPPath, s.handleMCP)
	return mux
}

// Serve blocks while handling HTTP on listener. Cancel ctx to shut down;
// in-flight requests are allowed to drain.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      s.writeTimeout(),
		IdleTimeout:       60 * time.Second,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}
	s.logger.Info("server listening",
		"addr", listener.Addr().String(),
		"mcp_path", s.cfg.Server.MCPPath,
		"profile", s.cfg.Tools.Profile,
		"tools", s.dispatcher.Registry().Len(),
		"public", s.cfg.Server.Public,
	)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(listener) }()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// writeTimeout leaves room for the slowest tool plus response encoding.
func (s *Server) writeTimeout() time.Duration {
	budget := s.cfg.Tools.Timeout.Std()
	if budget <= 0 {
		budget = tool.DefaultTimeout
	}
	return budget + 10*time.Second
}

// RunMaintenance expires idle sessions and forgets idle rate-limit buckets on
// the configured cron schedule until ctx is done.
func (s *Server) RunMaintenance(ctx context.Context) error {
	schedule := s.cfg.Server.MaintenanceSchedule
	if schedule == "" {
		schedule = defaultMaintenanceJob
	}
	c := cron.New()
	if _, err := c.AddFunc(schedule, s.sweep); err != nil {
		return fmt.Errorf("schedule maintenance %q: %w", schedule, err)
	}
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

func (s *Server) sweep() {
	expired := s.sessions.sweep()
	dropped := s.limiter.cleanup(rateBucketIdleTTL)
	if expired == 0 && dropped == 0 {
		return
	}
	s.logger.Debug("maintenance sweep",
		"sessions_expired", expired,
		"sessions_live", s.sessions.len(),
		"rate_buckets_dropped", dropped,
	)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
