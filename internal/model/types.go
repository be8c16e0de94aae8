package model

// EmbeddingDimensions is the fixed length of every QueryVector.
const EmbeddingDimensions = 1536

// QueryVector is a ranking vector, supplied by the caller or derived from
// free text by the embedding client.
type QueryVector []float64

// SearchResult is one lightweight hit returned by the composite search tool.
// ID is opaque and only meaningful to the fetch tool.
type SearchResult struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Title   string `json:"title"`
	Summary string `json:"summary"`
	Source  string `json:"source"`
}
