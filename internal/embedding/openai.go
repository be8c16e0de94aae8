package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"wpmcp/internal/model"
)

// OpenAI embeds text with the OpenAI embeddings endpoint.
type OpenAI struct {
	apiKey     string
	model      string
	keySetting string
	client     openai.Client
}

func NewOpenAI(cfg Config) *OpenAI {
	modelName := strings.TrimSpace(cfg.Model)
	if modelName == "" {
		modelName = DefaultOpenAIModel
	}
	keySetting := cfg.KeySetting
	if keySetting == "" {
		keySetting = "OPENAI_API_KEY"
	}

	clientOpts := []option.RequestOption{option.WithMaxRetries(0)}
	if cfg.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		clientOpts = append(clientOpts, option.WithHTTPClient(cfg.HTTPClient))
	}
	if cfg.Timeout > 0 {
		clientOpts = append(clientOpts, option.WithRequestTimeout(cfg.Timeout))
	}
	return &OpenAI{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		model:      modelName,
		keySetting: keySetting,
		client:     openai.NewClient(clientOpts...),
	}
}

func (o *OpenAI) Embed(ctx context.Context, text string) (model.QueryVector, error) {
	if o.apiKey == "" {
		return nil, &model.ConfigurationMissingError{
			Component: "Embedding",
			Settings:  []string{o.keySetting},
		}
	}

	resp, err := o.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model:      openai.EmbeddingModel(o.model),
		Dimensions: openai.Int(model.EmbeddingDimensions),
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, requestFailed(apiErr.StatusCode, scrub(apiErr.RawJSON(), o.apiKey), nil)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, requestFailed(0, "", fmt.Errorf("%s", scrub(err.Error(), o.apiKey)))
	}
	if resp == nil || len(resp.Data) == 0 || len(resp.Data[0].Embedding) != model.EmbeddingDimensions {
		return nil, invalidResponse()
	}
	return model.QueryVector(resp.Data[0].Embedding), nil
}
