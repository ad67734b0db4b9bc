// Package vectorstore provides namespaced vector index backends for
// similarity search over embedded chunks.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrInitTimeout reports that an index did not become ready within the
// allowed poll window.
var ErrInitTimeout = errors.New("index initialization timeout")

// Shared record metadata keys.
const (
	// MetadataText holds the original chunk text inside record metadata.
	MetadataText = "text"
	// MetadataDocumentID holds the parent document identifier.
	MetadataDocumentID = "originalDocumentId"
)

// Record is one stored vector with its metadata.
type Record struct {
	ID       string
	Vector   []float32
	Metadata map[string]any
}

// Match is one similarity-search hit, ranked by the index.
type Match struct {
	ID       string
	Score    float64
	Metadata map[string]any
}

// Stats summarizes index contents.
type Stats struct {
	Dimension    int
	TotalRecords int
	Namespaces   map[string]int
}

// Index is a namespaced vector store. Query results come back ranked by
// descending similarity; callers must not re-sort them.
type Index interface {
	Create(ctx context.Context, dimension int) error
	Ready(ctx context.Context) (bool, error)
	Upsert(ctx context.Context, namespace string, records []Record) error
	Query(ctx context.Context, namespace string, vector []float32, topK int) ([]Match, error)
	DeleteByIDs(ctx context.Context, namespace string, ids []string) error
	DeleteAll(ctx context.Context, namespace string) error
	Stats(ctx context.Context) (Stats, error)
}

// WaitUntilReady polls the index at the given interval until it reports
// ready, the context is cancelled, or maxWait elapses.
func WaitUntilReady(ctx context.Context, index Index, interval, maxWait time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	deadline := time.Now().Add(maxWait)

	for {
		ready, err := index.Ready(ctx)
		if err != nil {
			return fmt.Errorf("check index readiness: %w", err)
		}
		if ready {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w after %s", ErrInitTimeout, maxWait)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}
