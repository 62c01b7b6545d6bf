package embeddings

import "context"

// Embedder defines the interface for generating text embeddings.
type Embedder interface {
	// Embed generates embeddings for one or more texts, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the number of dimensions in the embedding vectors.
	Dimensions() int

	// Name returns the provider-qualified model identifier.
	Name() string
}

// modelNamer is implemented by embedders backed by a single provider model.
type modelNamer interface {
	Model() string
}

// CacheModel returns the namespace e's vectors are cached under: the bare
// model name when e exposes one, otherwise Name.
func CacheModel(e Embedder) string {
	if m, ok := e.(modelNamer); ok {
		return m.Model()
	}
	return e.Name()
}
