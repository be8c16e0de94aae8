package tools

import (
	"context"
	"strings"

	"wpmcp/internal/embedding"
	"wpmcp/internal/model"
	"wpmcp/internal/schema"
)

// resolveVector produces the one ranking vector a call needs: a supplied
// p_query_vec wins, otherwise query_text is embedded. When required and
// neither is present the call fails before any downstream request.
func resolveVector(ctx context.Context, args schema.Args, embedder embedding.Embedder, required bool) (model.QueryVector, error) {
	if vec := args.Floats("p_query_vec"); vec != nil {
		return model.QueryVector(vec), nil
	}
	if text := strings.TrimSpace(args.String("query_text")); text != "" {
		if embedder == nil {
			return nil, &model.ConfigurationMissingError{Component: "Embedding"}
		}
		return embedder.Embed(ctx, text)
	}
	if required {
		return nil, schema.Invalid("query_text", "either query_text or p_query_vec is required")
	}
	return nil, nil
}
