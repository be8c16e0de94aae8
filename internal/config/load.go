package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFiles are tried in order when no path is given.
var DefaultConfigFiles = []string{"wpmcp.yaml", "wpmcp.yml", "wpmcp.toml"}

type Options struct {
	// ConfigPath is relative to RootDir if not absolute. When empty the
	// first existing DefaultConfigFiles entry is used.
	ConfigPath string
	RootDir    string
	// SkipDotEnv leaves .env.local and .env unread.
	SkipDotEnv   bool
	SkipValidate bool
	Overrides    *Overrides
}

// Overrides holds CLI flag values. Only non-nil fields are applied.
type Overrides struct {
	Listen      *string
	MCPPath     *string
	Public      *bool
	ToolProfile *string
	ToolTimeout *time.Duration
	LogLevel    *string
	LogFormat   *string
}

// Load builds config with precedence: defaults, config file, dotenv files,
// environment, Overrides. Every failure starts with CONFIG_INVALID.
func Load(opts Options) (*Config, error) {
	cfg := Default()

	path, err := resolvePath(opts)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return nil, err
		}
	}

	if !opts.SkipDotEnv {
		if err := loadDotEnvFiles(dotEnvPaths(opts.RootDir)...); err != nil {
			return nil, fmt.Errorf("CONFIG_INVALID: failed loading dotenv files: %w", err)
		}
	}

	resolvePlaceholders(&cfg)
	if err := applyEnv(&cfg, os.Getenv); err != nil {
		return nil, err
	}
	if opts.Overrides != nil {
		applyOverrides(&cfg, opts.Overrides)
	}

	if !opts.SkipValidate {
		if err := Validate(&cfg); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

func resolvePath(opts Options) (string, error) {
	if opts.ConfigPath != "" {
		path := opts.ConfigPath
		if !filepath.IsAbs(path) && opts.RootDir != "" {
			path = filepath.Join(opts.RootDir, path)
		}
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("CONFIG_INVALID: cannot read config file %s: %w", path, err)
		}
		return path, nil
	}
	for _, name := range DefaultConfigFiles {
		path := name
		if opts.RootDir != "" {
			path = filepath.Join(opts.RootDir, name)
		}
		if _, err := os.Stat(path); err == nil {
			return path, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("CONFIG_INVALID: cannot read config file %s: %w", path, err)
		}
	}
	return "", nil
}

func dotEnvPaths(root string) []string {
	paths := []string{".env.local", ".env"}
	if root == "" {
		return paths
	}
	for i := range paths {
		paths[i] = filepath.Join(root, paths[i])
	}
	return paths
}

// applyFile decodes path over cfg. Keys the schema does not know are
// rejected so typos surface instead of silently falling back to defaults.
func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("CONFIG_INVALID: cannot read config file %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		meta, err := toml.Decode(string(data), cfg)
		if err != nil {
			return fmt.Errorf("CONFIG_INVALID: malformed TOML in %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, key := range undecoded {
				keys = append(keys, key.String())
			}
			return fmt.Errorf("CONFIG_INVALID: unknown keys in %s: %s", path, strings.Join(keys, ", "))
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return fmt.Errorf("CONFIG_INVALID: malformed YAML in %s: %w", path, err)
		}
	default:
		return fmt.Errorf("CONFIG_INVALID: unsupported config file extension %q (want .yaml, .yml or .toml)", filepath.Ext(path))
	}
	return nil
}

// resolvePlaceholders replaces "${NAME}" secret values from a config file
// with the named environment variable.
func resolvePlaceholders(cfg *Config) {
	for _, field := range []*string{
		&cfg.CampaignFinance.Key,
		&cfg.Primary.Key,
		&cfg.Embedding.OpenAIAPIKey,
		&cfg.Embedding.GeminiAPIKey,
		&cfg.Database.Password,
		&cfg.Database.DSN,
	} {
		v := strings.TrimSpace(*field)
		if strings.HasPrefix(v, "${") && strings.HasSuffix(v, "}") {
			*field = os.Getenv(strings.TrimSuffix(strings.TrimPrefix(v, "${"), "}"))
		}
	}
}

func applyOverrides(cfg *Config, o *Overrides) {
	if o.Listen != nil {
		cfg.Server.Listen = *o.Listen
	}
	if o.MCPPath != nil {
		cfg.Server.MCPPath = *o.MCPPath
	}
	if o.Public != nil {
		cfg.Server.Public = *o.Public
	}
	if o.ToolProfile != nil {
		cfg.Tools.Profile = *o.ToolProfile
	}
	if o.ToolTimeout != nil {
		cfg.Tools.Timeout = Duration(*o.ToolTimeout)
	}
	if o.LogLevel != nil {
		cfg.Log.Level = *o.LogLevel
	}
	if o.LogFormat != nil {
		cfg.Log.Format = *o.LogFormat
	}
}
