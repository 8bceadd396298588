// Package embedder provides the query embedding boundary. The retrieval
// service embeds only the incoming query text; document embeddings are
// produced by the (external) ingestion pipeline.
package embedder

import "context"

// Embedder generates the dense query vector for the dense candidate source.
type Embedder interface {
	// Embed generates an embedding vector for a single text input.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the dimensionality of the embedding vectors.
	Dimension() int

	// ModelName returns the name of the embedding model being used.
	ModelName() string
}
