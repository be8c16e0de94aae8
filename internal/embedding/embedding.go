// Package embedding turns free text into the fixed-length query vectors used
// by the vector-ranked database functions.
package embedding

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"wpmcp/internal/model"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"

	DefaultOpenAIModel = "text-embedding-3-small"
	DefaultGeminiModel = "gemini-embedding-001"

	maxBodyExcerpt = 512
)

// Embedder converts one text into one vector. Implementations make a single
// upstream call per Embed and never cache, batch or retry.
type Embedder interface {
	Embed(ctx context.Context, text string) (model.QueryVector, error)
}

// Config selects and configures a provider.
type Config struct {
	Provider string
	APIKey   string
	BaseURL  string
	Model    string
	Timeout  time.Duration
	// KeySetting names the credential setting in configuration errors.
	KeySetting string
	HTTPClient *http.Client
}

// New returns the embedder for cfg.Provider. A missing credential is not an
// error here: the returned embedder fails with ConfigurationMissing when used.
func New(ctx context.Context, cfg Config) (Embedder, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderOpenAI:
		return NewOpenAI(cfg), nil
	case ProviderGemini:
		return NewGemini(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

func requestFailed(statusCode int, body string, cause error) error {
	return &model.UpstreamError{
		Service:    "Embedding request",
		StatusCode: statusCode,
		Status:     http.StatusText(statusCode),
		Body:       excerpt(body),
		Cause:      cause,
	}
}

func invalidResponse() error {
	return &model.UpstreamError{Service: "Embedding request", Body: "Invalid embedding response"}
}

func excerpt(body string) string {
	body = strings.TrimSpace(body)
	if len(body) <= maxBodyExcerpt {
		return body
	}
	cut := maxBodyExcerpt
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return body[:cut] + "..."
}

func scrub(text, secret string) string {
	if secret == "" {
		return text
	}
	return strings.ReplaceAll(text, secret, "[redacted]")
}
