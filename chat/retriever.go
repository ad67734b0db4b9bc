package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/fabfab/docchat/embeddings"
	"github.com/fabfab/docchat/vectorstore"
)

// Retriever embeds a query and returns the most similar stored passages.
// The index's ranking is authoritative; results are never re-sorted here,
// and external-service failures propagate to the caller without retries.
type Retriever struct {
	embedder  embeddings.Embedder
	index     vectorstore.Index
	namespace string
}

func NewRetriever(embedder embeddings.Embedder, index vectorstore.Index, namespace string) (*Retriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is nil")
	}
	if index == nil {
		return nil, fmt.Errorf("vector index is nil")
	}
	if namespace == "" {
		return nil, fmt.Errorf("namespace cannot be empty")
	}
	return &Retriever{embedder: embedder, index: index, namespace: namespace}, nil
}

func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]ScoredPassage, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}

	vectors, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embedder returned no vectors")
	}

	matches, err := r.index.Query(ctx, r.namespace, vectors[0], k)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	passages := make([]ScoredPassage, len(matches))
	for i, match := range matches {
		content := ""
		if text, ok := match.Metadata[vectorstore.MetadataText].(string); ok {
			content = text
		}
		passages[i] = ScoredPassage{
			ID:       match.ID,
			Score:    match.Score,
			Content:  content,
			Metadata: match.Metadata,
		}
	}

	return passages, nil
}
