package config

import (
	"bytes"
	"fmt"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Snapshot returns a copy safe to print or persist: secrets are replaced
// with the name of the variable that supplies them.
func Snapshot(cfg *Config) *Config {
	if cfg == nil {
		return nil
	}
	c := *cfg
	c.CampaignFinance.Key = redactSecret(cfg.CampaignFinance.Key, "CAMPAIGN_FINANCE_SUPABASE_SERVICE_KEY")
	c.Primary.Key = redactSecret(cfg.Primary.Key, "SUPABASE_PRIMARY_SERVICE_ROLE_KEY")
	c.Embedding.OpenAIAPIKey = redactSecret(cfg.Embedding.OpenAIAPIKey, "OPENAI_API_KEY")
	c.Embedding.GeminiAPIKey = redactSecret(cfg.Embedding.GeminiAPIKey, "GEMINI_API_KEY")
	c.Database.Password = redactSecret(cfg.Database.Password, "DB_PASSWORD")
	c.Database.DSN = redactSecret(cfg.Database.DSN, "DATABASE_URL")
	c.Security.AllowedOrigins = append([]string(nil), cfg.Security.AllowedOrigins...)
	c.Security.TrustedProxies = append([]string(nil), cfg.Security.TrustedProxies...)
	return &c
}

func redactSecret(value, envName string) string {
	if value == "" {
		return ""
	}
	return "<from env " + envName + ">"
}

// Secrets lists the plaintext secret values of cfg so log and error output
// can scrub them.
func Secrets(cfg *Config) []string {
	if cfg == nil {
		return nil
	}
	var out []string
	for _, v := range []string{
		cfg.CampaignFinance.Key,
		cfg.Primary.Key,
		cfg.Embedding.OpenAIAPIKey,
		cfg.Embedding.GeminiAPIKey,
		cfg.Database.Password,
	} {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Marshal renders the redacted snapshot of cfg as "yaml" or "toml".
func Marshal(cfg *Config, format string) ([]byte, error) {
	snap := Snapshot(cfg)
	if snap == nil {
		return nil, fmt.Errorf("config is nil")
	}
	switch format {
	case "", "yaml", "yml":
		return yaml.Marshal(snap)
	case "toml":
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(snap); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported format %q (want yaml or toml)", format)
	}
}
