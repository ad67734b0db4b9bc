package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// MemoryIndex is a brute-force cosine-similarity index kept entirely in
// process memory. It backs tests and zero-infrastructure runs.
type MemoryIndex struct {
	mu        sync.RWMutex
	dimension int
	records   map[string]map[string]Record
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{records: make(map[string]map[string]Record)}
}

func (x *MemoryIndex) Create(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive, got %d", dimension)
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	x.dimension = dimension
	return nil
}

func (x *MemoryIndex) Ready(_ context.Context) (bool, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.dimension > 0, nil
}

func (x *MemoryIndex) Upsert(_ context.Context, namespace string, records []Record) error {
	if namespace == "" {
		return fmt.Errorf("namespace cannot be empty")
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if x.dimension == 0 {
		return fmt.Errorf("index has not been created")
	}

	for _, record := range records {
		if len(record.Vector) != x.dimension {
			return fmt.Errorf("vector dimension mismatch for %s: expected %d, got %d", record.ID, x.dimension, len(record.Vector))
		}
	}

	ns, ok := x.records[namespace]
	if !ok {
		ns = make(map[string]Record, len(records))
		x.records[namespace] = ns
	}
	for _, record := range records {
		ns[record.ID] = record
	}
	return nil
}

func (x *MemoryIndex) Query(_ context.Context, namespace string, vector []float32, topK int) ([]Match, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("query vector is empty")
	}
	if topK <= 0 {
		topK = 5
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	ns := x.records[namespace]
	matches := make([]Match, 0, len(ns))
	for _, record := range ns {
		matches = append(matches, Match{
			ID:       record.ID,
			Score:    cosineSimilarity(vector, record.Vector),
			Metadata: record.Metadata,
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (x *MemoryIndex) DeleteByIDs(_ context.Context, namespace string, ids []string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	ns := x.records[namespace]
	for _, id := range ids {
		delete(ns, id)
	}
	return nil
}

func (x *MemoryIndex) DeleteAll(_ context.Context, namespace string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.records, namespace)
	return nil
}

func (x *MemoryIndex) Stats(_ context.Context) (Stats, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	stats := Stats{Dimension: x.dimension, Namespaces: make(map[string]int, len(x.records))}
	for namespace, ns := range x.records {
		stats.Namespaces[namespace] = len(ns)
		stats.TotalRecords += len(ns)
	}
	return stats, nil
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

var _ Index = (*MemoryIndex)(nil)
