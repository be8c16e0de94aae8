package config

import (
	"fmt"
	"net"
	"slices"
	"strings"

	"github.com/robfig/cron/v3"

	"wpmcp/internal/protocol"
)

// Validate checks enum constraints and value ranges. Missing credentials are
// not config errors: the tools that need them report ConfigurationMissing
// when called.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("CONFIG_INVALID: nil config")
	}
	if err := validateEnums(cfg); err != nil {
		return err
	}

	if strings.TrimSpace(cfg.Server.Listen) == "" {
		return fmt.Errorf("CONFIG_INVALID: server.listen is required\nSet env: WPMCP_LISTEN=127.0.0.1:8087")
	}
	if !strings.HasPrefix(cfg.Server.MCPPath, "/") {
		return fmt.Errorf("CONFIG_INVALID: server.mcp_path=%q must start with /", cfg.Server.MCPPath)
	}
	if cfg.Server.MCPPath == "/" || cfg.Server.MCPPath == protocol.ProtectedResourceMetadataPath {
		return fmt.Errorf("CONFIG_INVALID: server.mcp_path=%q collides with a fixed route", cfg.Server.MCPPath)
	}
	for name, d := range map[string]Duration{
		"server.session_inactivity_timeout": cfg.Server.SessionInactivityTimeout,
		"server.session_max_lifetime":       cfg.Server.SessionMaxLifetime,
		"tools.timeout":                     cfg.Tools.Timeout,
		"embedding.timeout":                 cfg.Embedding.Timeout,
		"database.idle_timeout":             cfg.Database.IdleTimeout,
		"database.acquire_timeout":          cfg.Database.AcquireTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("CONFIG_INVALID: %s=%s must be positive", name, d)
		}
	}
	if _, err := cron.ParseStandard(cfg.Server.MaintenanceSchedule); err != nil {
		return fmt.Errorf("CONFIG_INVALID: server.maintenance_schedule=%q: %v", cfg.Server.MaintenanceSchedule, err)
	}
	if cfg.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("CONFIG_INVALID: database.max_open_conns=%d must be positive", cfg.Database.MaxOpenConns)
	}
	if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
		return fmt.Errorf("CONFIG_INVALID: database.port=%d is out of range", cfg.Database.Port)
	}
	if cfg.Security.RateLimitRPS <= 0 || cfg.Security.RateLimitBurst <= 0 {
		return fmt.Errorf("CONFIG_INVALID: security.rate_limit_rps and security.rate_limit_burst must be positive")
	}
	for _, proxy := range cfg.Security.TrustedProxies {
		if !validProxy(proxy) {
			return fmt.Errorf("CONFIG_INVALID: security.trusted_proxies entry %q is not an IP or CIDR", proxy)
		}
	}
	return nil
}

func validateEnums(cfg *Config) error {
	checks := []struct {
		key     string
		value   string
		allowed []string
	}{
		{"tools.profile", cfg.Tools.Profile, ToolProfiles},
		{"embedding.provider", cfg.Embedding.Provider, EmbeddingProviders},
		{"database.driver", cfg.Database.Driver, DatabaseDrivers},
		{"log.level", cfg.Log.Level, LogLevels},
		{"log.format", cfg.Log.Format, LogFormats},
	}
	for _, c := range checks {
		if !slices.Contains(c.allowed, c.value) {
			return fmt.Errorf("CONFIG_INVALID: %s=%q; allowed: %s", c.key, c.value, strings.Join(c.allowed, ", "))
		}
	}
	return nil
}

func validProxy(v string) bool {
	if _, _, err := net.ParseCIDR(v); err == nil {
		return true
	}
	return net.ParseIP(v) != nil
}
