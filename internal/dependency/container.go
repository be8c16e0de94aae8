// Package dependency wires the server's collaborators using go.uber.org/dig.
package dependency

import (
	"context"
	"fmt"
	"log/slog"

	"go.uber.org/dig"

	"wpmcp/internal/config"
	"wpmcp/internal/embedding"
	"wpmcp/internal/gateway"
	"wpmcp/internal/mcp"
	"wpmcp/internal/store"
	"wpmcp/internal/tool"
	"wpmcp/internal/tools"
)

// Container holds the resolved singletons. Callers use the typed getters and
// never import dig directly.
type Container struct {
	cfg        *config.Config
	dispatcher *tool.Dispatcher
	server     *mcp.Server
	pool       *store.Pool
}

func (c *Container) Config() *config.Config       { return c.cfg }
func (c *Container) Dispatcher() *tool.Dispatcher { return c.dispatcher }
func (c *Container) Server() *mcp.Server          { return c.server }

// Close releases the SQL pool if it was ever opened.
func (c *Container) Close() error {
	if c == nil || c.pool == nil {
		return nil
	}
	return c.pool.Close()
}

// CampaignFinanceGateway and PrimaryGateway let dig tell the two Supabase
// projects apart.
type CampaignFinanceGateway struct{ *gateway.Client }

type PrimaryGateway struct{ *gateway.Client }

// New builds and wires every service from cfg. ctx bounds provider client
// construction only.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("dependency: nil config")
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := dig.New()

	providers := []interface{}{
		func() *config.Config { return cfg },
		func() *slog.Logger { return logger },
		newCampaignFinanceGateway,
		newPrimaryGateway,
		func(cfg *config.Config) (embedding.Embedder, error) { return newEmbedder(ctx, cfg) },
		newPool,
		newRegistry,
		newDispatcher,
		newServer,
	}
	for _, p := range providers {
		if err := d.Provide(p); err != nil {
			return nil, err
		}
	}

	var result *Container
	err := d.Invoke(func(dispatcher *tool.Dispatcher, server *mcp.Server, pool *store.Pool) {
		result = &Container{
			cfg:        cfg,
			dispatcher: dispatcher,
			server:     server,
			pool:       pool,
		}
	})
	if err != nil {
		return nil, dig.RootCause(err)
	}
	return result, nil
}

func newCampaignFinanceGateway(cfg *config.Config) CampaignFinanceGateway {
	return CampaignFinanceGateway{gateway.New(gateway.Options{
		Name:       "Supabase RPC",
		BaseURL:    cfg.CampaignFinance.URL,
		APIKey:     cfg.CampaignFinance.Key,
		URLSetting: "CAMPAIGN_FINANCE_SUPABASE_URL",
		KeySetting: "CAMPAIGN_FINANCE_SUPABASE_SERVICE_KEY",
		Timeout:    cfg.Tools.Timeout.Std(),
	})}
}

func newPrimaryGateway(cfg *config.Config) PrimaryGateway {
	return PrimaryGateway{gateway.New(gateway.Options{
		Name:       "Primary Supabase",
		BaseURL:    cfg.Primary.URL,
		APIKey:     cfg.Primary.Key,
		URLSetting: "SUPABASE_PRIMARY_URL",
		KeySetting: "SUPABASE_PRIMARY_SERVICE_ROLE_KEY",
		Timeout:    cfg.Tools.Timeout.Std(),
	})}
}

func newEmbedder(ctx context.Context, cfg *config.Config) (embedding.Embedder, error) {
	return embedding.New(ctx, embedding.Config{
		Provider:   cfg.Embedding.Provider,
		APIKey:     cfg.Embedding.APIKey(),
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Timeout:    cfg.Embedding.Timeout.Std(),
		KeySetting: cfg.Embedding.KeySetting(),
	})
}

func newPool(cfg *config.Config) *store.Pool {
	db := cfg.Database
	return store.NewPool(store.Config{
		Driver:         db.Driver,
		DSN:            db.DSN,
		Host:           db.Host,
		Port:           db.Port,
		Name:           db.Name,
		User:           db.User,
		Password:       db.Password,
		MaxOpenConns:   db.MaxOpenConns,
		IdleTimeout:    db.IdleTimeout.Std(),
		AcquireTimeout: db.AcquireTimeout.Std(),
	})
}

func newRegistry(
	cfg *config.Config,
	cf CampaignFinanceGateway,
	primary PrimaryGateway,
	embedder embedding.Embedder,
	pool *store.Pool,
	logger *slog.Logger,
) (*tool.Registry, error) {
	return tools.Build(cfg.Tools.Profile, tools.Deps{
		CampaignFinance: cf.Client,
		Primary:         primary.Client,
		Embedder:        embedder,
		SQL:             pool,
		AllowSQLWrite:   cfg.SQL.AllowWrite,
		Logger:          logger,
	})
}

func newDispatcher(cfg *config.Config, registry *tool.Registry, logger *slog.Logger) *tool.Dispatcher {
	return tool.NewDispatcher(registry,
		tool.WithTimeout(cfg.Tools.Timeout.Std()),
		tool.WithSecrets(config.Secrets(cfg)...),
		tool.WithLogger(logger),
	)
}

func newServer(cfg *config.Config, dispatcher *tool.Dispatcher, logger *slog.Logger) *mcp.Server {
	return mcp.NewServer(*cfg, dispatcher, mcp.WithLogger(logger))
}
