package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type lookupFunc func(string) string

// first returns the first non-empty variable among names.
func (lookup lookupFunc) first(names ...string) (string, bool) {
	for _, name := range names {
		if v := strings.TrimSpace(lookup(name)); v != "" {
			return v, true
		}
	}
	return "", false
}

// applyEnv overlays environment variables. The Supabase names mirror the
// deployment the server replaces; service keys are preferred over anon keys.
func applyEnv(cfg *Config, getenv func(string) string) error {
	env := lookupFunc(getenv)
	var errs []error

	str := func(dst *string, names ...string) {
		if v, ok := env.first(names...); ok {
			*dst = v
		}
	}
	integer := func(dst *int, name string) {
		if v, ok := env.first(name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s=%q is not an integer", name, v))
				return
			}
			*dst = n
		}
	}
	boolean := func(dst *bool, name string) {
		if v, ok := env.first(name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s=%q is not a boolean", name, v))
				return
			}
			*dst = b
		}
	}
	duration := func(dst *Duration, name string) {
		if v, ok := env.first(name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s=%q is not a duration", name, v))
				return
			}
			*dst = Duration(d)
		}
	}
	list := func(dst *[]string, name string) {
		if v, ok := env.first(name); ok {
			*dst = splitList(v)
		}
	}

	if port, ok := env.first("PORT"); ok {
		cfg.Server.Listen = ":" + port
	}
	str(&cfg.Server.Listen, "WPMCP_LISTEN")
	str(&cfg.Server.MCPPath, "WPMCP_MCP_PATH")
	boolean(&cfg.Server.Public, "WPMCP_PUBLIC")
	duration(&cfg.Server.SessionInactivityTimeout, "WPMCP_SESSION_INACTIVITY_TIMEOUT")
	duration(&cfg.Server.SessionMaxLifetime, "WPMCP_SESSION_MAX_LIFETIME")
	str(&cfg.Server.MaintenanceSchedule, "WPMCP_MAINTENANCE_SCHEDULE")

	str(&cfg.Tools.Profile, "WPMCP_TOOL_PROFILE")
	duration(&cfg.Tools.Timeout, "WPMCP_TOOL_TIMEOUT")

	str(&cfg.CampaignFinance.URL, "CAMPAIGN_FINANCE_SUPABASE_URL", "SUPABASE_SECONDARY_URL")
	str(&cfg.CampaignFinance.Key,
		"CAMPAIGN_FINANCE_SUPABASE_SERVICE_KEY", "SUPABASE_SECONDARY_SERVICE_ROLE_KEY",
		"CAMPAIGN_FINANCE_SUPABASE_ANON_KEY", "SUPABASE_SECONDARY_ANON_KEY")
	str(&cfg.Primary.URL, "SUPABASE_PRIMARY_URL", "SUPABASE_URL")
	str(&cfg.Primary.Key,
		"SUPABASE_PRIMARY_SERVICE_ROLE_KEY", "SUPABASE_SERVICE_KEY",
		"SUPABASE_PRIMARY_ANON_KEY", "SUPABASE_ANON_KEY")

	str(&cfg.Embedding.Provider, "EMBEDDING_PROVIDER")
	str(&cfg.Embedding.Model, "EMBEDDING_MODEL")
	str(&cfg.Embedding.BaseURL, "OPENAI_BASE_URL")
	str(&cfg.Embedding.OpenAIAPIKey, "OPENAI_API_KEY")
	str(&cfg.Embedding.GeminiAPIKey, "GEMINI_API_KEY", "GOOGLE_API_KEY")

	str(&cfg.Database.Driver, "DB_DRIVER")
	str(&cfg.Database.DSN, "DATABASE_URL")
	str(&cfg.Database.Host, "DB_HOST")
	integer(&cfg.Database.Port, "DB_PORT")
	str(&cfg.Database.Name, "DB_NAME")
	str(&cfg.Database.User, "DB_USER")
	str(&cfg.Database.Password, "DB_PASSWORD")

	// Anything but "true" keeps the sql tool read-only.
	if v, ok := env.first("SQL_TOOL_ALLOW_WRITE"); ok {
		cfg.SQL.AllowWrite = strings.EqualFold(v, "true")
	}

	list(&cfg.Security.AllowedOrigins, "WPMCP_ALLOWED_ORIGINS")
	list(&cfg.Security.TrustedProxies, "WPMCP_TRUSTED_PROXIES")
	integer(&cfg.Security.RateLimitRPS, "WPMCP_RATE_LIMIT_RPS")
	integer(&cfg.Security.RateLimitBurst, "WPMCP_RATE_LIMIT_BURST")

	str(&cfg.Log.Level, "WPMCP_LOG_LEVEL")
	str(&cfg.Log.Format, "WPMCP_LOG_FORMAT")

	if len(errs) > 0 {
		return fmt.Errorf("CONFIG_INVALID: %w", errors.Join(errs...))
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
