package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"wpmcp/internal/model"
)

// Gemini embeds text with the Gemini API, truncated to the vector width the
// database functions expect.
type Gemini struct {
	apiKey     string
	model      string
	keySetting string
	client     *genai.Client
}

func NewGemini(ctx context.Context, cfg Config) (*Gemini, error) {
	modelName := strings.TrimSpace(cfg.Model)
	if modelName == "" || strings.HasPrefix(modelName, "text-embedding-") {
		modelName = DefaultGeminiModel
	}
	keySetting := cfg.KeySetting
	if keySetting == "" {
		keySetting = "GEMINI_API_KEY"
	}
	g := &Gemini{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		model:      modelName,
		keySetting: keySetting,
	}
	if g.apiKey == "" {
		return g, nil
	}

	clientCfg := &genai.ClientConfig{
		APIKey:     g.apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	g.client = client
	return g, nil
}

func (g *Gemini) Embed(ctx context.Context, text string) (model.QueryVector, error) {
	if g.client == nil {
		return nil, &model.ConfigurationMissingError{
			Component: "Embedding",
			Settings:  []string{g.keySetting},
		}
	}

	resp, err := g.client.Models.EmbedContent(ctx, g.model, genai.Text(text), &genai.EmbedContentConfig{
		OutputDimensionality: genai.Ptr[int32](model.EmbeddingDimensions),
	})
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return nil, requestFailed(apiErr.Code, scrub(apiErr.Message, g.apiKey), nil)
		}
		var apiErrPtr *genai.APIError
		if errors.As(err, &apiErrPtr) {
			return nil, requestFailed(apiErrPtr.Code, scrub(apiErrPtr.Message, g.apiKey), nil)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, requestFailed(0, "", fmt.Errorf("%s", scrub(err.Error(), g.apiKey)))
	}
	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil ||
		len(resp.Embeddings[0].Values) != model.EmbeddingDimensions {
		return nil, invalidResponse()
	}

	values := resp.Embeddings[0].Values
	vec := make(model.QueryVector, len(values))
	for i, v := range values {
		vec[i] = float64(v)
	}
	return vec, nil
}
