// Package embeddings converts text into fixed-dimension vectors through a
// configurable provider.
package embeddings

import (
	"context"
	"fmt"

	"github.com/fabfab/docchat/config"
)

// Embedder embeds a batch of texts, returning one vector per input in the
// same order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type Options struct {
	Provider  string
	Model     string
	Dimension int

	OllamaHost    string
	OpenAIAPIKey  string
	OpenAIBaseURL string
}

func NewEmbedder(cfg config.Config) (Embedder, error) {
	opts := Options{
		Provider:      cfg.Embeddings.Provider,
		Model:         cfg.Embeddings.Model,
		Dimension:     cfg.Embeddings.Dimension,
		OllamaHost:    cfg.OllamaHost,
		OpenAIAPIKey:  cfg.OpenAIAPIKey,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
	}

	switch opts.Provider {
	case config.ProviderOllama:
		return NewOllamaEmbedder(opts), nil
	case config.ProviderOpenAI:
		if opts.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai provider selected but OPENAI_API_KEY not set")
		}
		return NewOpenAIEmbedder(opts), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", opts.Provider)
	}
}

// ProbeDimension embeds a short probe string and reports the vector length.
// The dimension is treated as constant for the lifetime of an index.
func ProbeDimension(ctx context.Context, embedder Embedder) (int, error) {
	if embedder == nil {
		return 0, fmt.Errorf("embedder is nil")
	}
	vectors, err := embedder.Embed(ctx, []string{"dimension probe"})
	if err != nil {
		return 0, fmt.Errorf("embed probe string: %w", err)
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return 0, fmt.Errorf("embedder returned an empty probe vector")
	}
	return len(vectors[0]), nil
}
