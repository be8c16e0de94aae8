// Package config resolves the server's effective settings from defaults, an
// optional YAML or TOML file, dotenv files, the environment and CLI flags.
package config

import (
	"fmt"
	"time"
)

const DefaultProtocolVersion = "2025-06-18"

// Allowed values for constrained settings.
var (
	ToolProfiles       = []string{"search", "direct", "legacy"}
	EmbeddingProviders = []string{"openai", "gemini"}
	DatabaseDrivers    = []string{"pgx", "sqlite"}
	LogLevels          = []string{"debug", "info", "warn", "error"}
	LogFormats         = []string{"text", "json"}
)

type Config struct {
	Server          Server    `yaml:"server" toml:"server"`
	Tools           Tools     `yaml:"tools" toml:"tools"`
	CampaignFinance Supabase  `yaml:"campaign_finance" toml:"campaign_finance"`
	Primary         Supabase  `yaml:"primary" toml:"primary"`
	Embedding       Embedding `yaml:"embedding" toml:"embedding"`
	Database        Database  `yaml:"database" toml:"database"`
	SQL             SQL       `yaml:"sql" toml:"sql"`
	Security        Security  `yaml:"security" toml:"security"`
	Log             Log       `yaml:"log" toml:"log"`
}

type Server struct {
	Listen          string `yaml:"listen" toml:"listen"`
	MCPPath         string `yaml:"mcp_path" toml:"mcp_path"`
	ProtocolVersion string `yaml:"protocol_version" toml:"protocol_version"`
	// Public enables per-client rate limiting for internet-facing deployments.
	Public                   bool     `yaml:"public" toml:"public"`
	SessionInactivityTimeout Duration `yaml:"session_inactivity_timeout" toml:"session_inactivity_timeout"`
	SessionMaxLifetime       Duration `yaml:"session_max_lifetime" toml:"session_max_lifetime"`
	// MaintenanceSchedule is a cron spec for session and rate-limit sweeps.
	MaintenanceSchedule string `yaml:"maintenance_schedule" toml:"maintenance_schedule"`
}

type Tools struct {
	Profile string   `yaml:"profile" toml:"profile"`
	Timeout Duration `yaml:"timeout" toml:"timeout"`
}

// Supabase addresses one PostgREST project. Key is the service key when one
// is configured, otherwise the anon key.
type Supabase struct {
	URL string `yaml:"url" toml:"url"`
	Key string `yaml:"key" toml:"key"`
}

type Embedding struct {
	Provider     string   `yaml:"provider" toml:"provider"`
	Model        string   `yaml:"model" toml:"model"`
	BaseURL      string   `yaml:"base_url" toml:"base_url"`
	OpenAIAPIKey string   `yaml:"openai_api_key" toml:"openai_api_key"`
	GeminiAPIKey string   `yaml:"gemini_api_key" toml:"gemini_api_key"`
	Timeout      Duration `yaml:"timeout" toml:"timeout"`
}

// APIKey returns the key of the selected provider.
func (e Embedding) APIKey() string {
	if e.Provider == "gemini" {
		return e.GeminiAPIKey
	}
	return e.OpenAIAPIKey
}

// KeySetting names the environment variable that supplies APIKey.
func (e Embedding) KeySetting() string {
	if e.Provider == "gemini" {
		return "GEMINI_API_KEY"
	}
	return "OPENAI_API_KEY"
}

type Database struct {
	Driver         string   `yaml:"driver" toml:"driver"`
	DSN            string   `yaml:"dsn" toml:"dsn"`
	Host           string   `yaml:"host" toml:"host"`
	Port           int      `yaml:"port" toml:"port"`
	Name           string   `yaml:"name" toml:"name"`
	User           string   `yaml:"user" toml:"user"`
	Password       string   `yaml:"password" toml:"password"`
	MaxOpenConns   int      `yaml:"max_open_conns" toml:"max_open_conns"`
	IdleTimeout    Duration `yaml:"idle_timeout" toml:"idle_timeout"`
	AcquireTimeout Duration `yaml:"acquire_timeout" toml:"acquire_timeout"`
}

type SQL struct {
	AllowWrite bool `yaml:"allow_write" toml:"allow_write"`
}

type Security struct {
	AllowedOrigins []string `yaml:"allowed_origins" toml:"allowed_origins"`
	// TrustedProxies lists IPs or CIDRs whose X-Forwarded-For is honored.
	TrustedProxies []string `yaml:"trusted_proxies" toml:"trusted_proxies"`
	RateLimitRPS   int      `yaml:"rate_limit_rps" toml:"rate_limit_rps"`
	RateLimitBurst int      `yaml:"rate_limit_burst" toml:"rate_limit_burst"`
}

type Log struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Duration reads and writes Go duration strings ("60s", "5m") in both file
// formats.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	*d = Duration(parsed)
	return nil
}
