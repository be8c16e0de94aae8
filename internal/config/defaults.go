package config

import (
	"time"

	"wpmcp/internal/protocol"
)

// Default returns the built-in settings every other layer overrides.
func Default() Config {
	return Config{
		Server: Server{
			Listen:                   protocol.DefaultListenAddr,
			MCPPath:                  protocol.DefaultMCPPath,
			ProtocolVersion:          DefaultProtocolVersion,
			SessionInactivityTimeout: Duration(24 * time.Hour),
			SessionMaxLifetime:       Duration(7 * 24 * time.Hour),
			MaintenanceSchedule:      "@every 1m",
		},
		Tools: Tools{
			Profile: "search",
			Timeout: Duration(60 * time.Second),
		},
		Embedding: Embedding{
			Provider: "openai",
			Model:    "text-embedding-3-small",
			Timeout:  Duration(30 * time.Second),
		},
		Database: Database{
			Driver:         "pgx",
			Port:           5432,
			MaxOpenConns:   5,
			IdleTimeout:    Duration(30 * time.Second),
			AcquireTimeout: Duration(5 * time.Second),
		},
		Security: Security{
			AllowedOrigins: []string{"http://localhost", "http://127.0.0.1"},
			TrustedProxies: []string{"127.0.0.1/32", "::1/128"},
			RateLimitRPS:   60,
			RateLimitBurst: 20,
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
	}
}
