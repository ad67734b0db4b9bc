package ingestion_test

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fabfab/docchat/chunker"
	"github.com/fabfab/docchat/embeddings"
	"github.com/fabfab/docchat/ingestion"
	"github.com/fabfab/docchat/vectorstore"
)

const testDimension = 4

type countingEmbedder struct {
	batchSizes []int
	failAfter  int
}

func (e *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if e.failAfter > 0 && len(e.batchSizes) >= e.failAfter {
		return nil, fmt.Errorf("embeddings provider unavailable")
	}
	e.batchSizes = append(e.batchSizes, len(texts))
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = make([]float32, testDimension)
		vectors[i][0] = 1
	}
	return vectors, nil
}

var _ embeddings.Embedder = (*countingEmbedder)(nil)

func newService(t *testing.T, embedder embeddings.Embedder, index vectorstore.Index, size, overlap int) *ingestion.Service {
	t.Helper()
	splitter, err := chunker.NewSplitter(size, overlap)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	service, err := ingestion.NewService(splitter, embedder, index, "default", nil, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return service
}

func newIndex(t *testing.T) *vectorstore.MemoryIndex {
	t.Helper()
	index := vectorstore.NewMemoryIndex()
	if err := index.Create(context.Background(), testDimension); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return index
}

func TestProcessIndexesEveryChunk(t *testing.T) {
	ctx := context.Background()
	embedder := &countingEmbedder{}
	index := newIndex(t)
	service := newService(t, embedder, index, 50, 10)

	content := strings.TrimSpace(strings.Repeat("the quick brown fox jumps over the lazy dog. ", 10))
	indexed, err := service.Process(ctx, []chunker.Document{{ID: "doc-1", Content: content}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if indexed < 2 {
		t.Fatalf("expected multiple chunks indexed, got %d", indexed)
	}

	stats, err := index.Stats(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Namespaces["default"] != indexed {
		t.Fatalf("expected %d records in the namespace, got %d", indexed, stats.Namespaces["default"])
	}

	// Stored records must carry the chunk text for retrieval.
	query := make([]float32, testDimension)
	query[0] = 1
	matches, err := index.Query(ctx, "default", query, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected a match, got %d", len(matches))
	}
	text, ok := matches[0].Metadata[vectorstore.MetadataText].(string)
	if !ok || text == "" {
		t.Fatalf("expected stored chunk text, got %+v", matches[0].Metadata)
	}
	if matches[0].Metadata[vectorstore.MetadataDocumentID] != "doc-1" {
		t.Fatalf("expected the parent document id in metadata, got %+v", matches[0].Metadata)
	}
}

func TestProcessBatchesEmbeddings(t *testing.T) {
	embedder := &countingEmbedder{}
	service := newService(t, embedder, newIndex(t), 10, 0)

	// Words chunked at 10 runes with no overlap give well over 96 chunks.
	content := strings.TrimSpace(strings.Repeat("alpha beta ", 150))
	indexed, err := service.Process(context.Background(), []chunker.Document{{ID: "doc-1", Content: content}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if indexed <= 96 {
		t.Fatalf("expected more than one batch worth of chunks, got %d", indexed)
	}
	if len(embedder.batchSizes) < 2 {
		t.Fatalf("expected multiple embedding batches, got %d", len(embedder.batchSizes))
	}
	total := 0
	for i, size := range embedder.batchSizes {
		if size > 96 {
			t.Fatalf("batch %d exceeds the batch bound: %d", i, size)
		}
		total += size
	}
	if total != indexed {
		t.Fatalf("expected every chunk embedded exactly once: %d embedded, %d indexed", total, indexed)
	}
}

func TestProcessAbortsOnEmbeddingFailure(t *testing.T) {
	ctx := context.Background()
	embedder := &countingEmbedder{failAfter: 1}
	index := newIndex(t)
	service := newService(t, embedder, index, 10, 0)

	content := strings.TrimSpace(strings.Repeat("alpha beta ", 150))
	indexed, err := service.Process(ctx, []chunker.Document{{ID: "doc-1", Content: content}})
	if err == nil {
		t.Fatal("expected the embedding failure to propagate")
	}
	if indexed != 96 {
		t.Fatalf("expected only the first batch indexed, got %d", indexed)
	}

	stats, statsErr := index.Stats(ctx)
	if statsErr != nil {
		t.Fatalf("unexpected error: %v", statsErr)
	}
	if stats.TotalRecords != 96 {
		t.Fatalf("expected the aborted remainder unindexed, got %d records", stats.TotalRecords)
	}
}

func TestProcessSkipsEmptyDocuments(t *testing.T) {
	embedder := &countingEmbedder{}
	service := newService(t, embedder, newIndex(t), 50, 10)

	indexed, err := service.Process(context.Background(), []chunker.Document{
		{ID: "empty", Content: "   \n "},
		{ID: "real", Content: "one small document"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if indexed != 1 {
		t.Fatalf("expected only the real document indexed, got %d", indexed)
	}
}

func TestProcessDirectoryParsesSupportedFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, dir, "guides/raft.md", "# Raft\n\nLeaders serve one term.")
	writeFile(t, dir, "notes.txt", "Operations Handbook\nRestart the broker first.")
	writeFile(t, dir, "ignored.bin", "\x00\x01binary")

	embedder := &countingEmbedder{}
	index := newIndex(t)
	service := newService(t, embedder, index, 500, 100)

	indexed, err := service.ProcessDirectory(ctx, dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if indexed != 2 {
		t.Fatalf("expected one chunk per supported file, got %d", indexed)
	}

	query := make([]float32, testDimension)
	query[0] = 1
	matches, err := index.Query(ctx, "default", query, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sources := make(map[string]bool, len(matches))
	for _, match := range matches {
		if source, ok := match.Metadata["source"].(string); ok {
			sources[source] = true
		}
	}
	if !sources["guides/raft.md"] || !sources["notes.txt"] {
		t.Fatalf("expected relative source paths in metadata, got %v", sources)
	}
}

func TestProcessDirectorySkipsUnparsableFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "broken.csv", "a,\"b\nc")
	writeFile(t, dir, "fine.md", "# Fine\n\ncontent here")

	service := newService(t, &countingEmbedder{}, newIndex(t), 500, 100)

	indexed, err := service.ProcessDirectory(context.Background(), dir)
	if err != nil {
		t.Fatalf("a parse failure must not abort the walk, got %v", err)
	}
	if indexed != 1 {
		t.Fatalf("expected only the parsable file indexed, got %d", indexed)
	}
}

func TestProcessDirectoryFailsForMissingDirectory(t *testing.T) {
	service := newService(t, &countingEmbedder{}, newIndex(t), 500, 100)
	if _, err := service.ProcessDirectory(context.Background(), filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("expected error for a missing data directory")
	}
}

func TestDeleteDocumentRemovesItsChunks(t *testing.T) {
	ctx := context.Background()
	index := newIndex(t)
	service := newService(t, &countingEmbedder{}, index, 20, 0)

	indexed, err := service.Process(ctx, []chunker.Document{
		{ID: "doc-1", Content: "keep these words apart. and some more text here."},
		{ID: "doc-2", Content: "a second document entirely."},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Missing ids are ignored, so a generous range covers every chunk.
	chunkIDs := make([]string, indexed)
	for i := range chunkIDs {
		chunkIDs[i] = fmt.Sprintf("doc-1_chunk_%d", i)
	}

	if err := service.DeleteDocument(ctx, "doc-1", chunkIDs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := service.DeleteDocument(ctx, "", nil); err == nil {
		t.Fatal("expected error for empty document id")
	}

	query := make([]float32, testDimension)
	query[0] = 1
	matches, err := index.Query(ctx, "default", query, 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, match := range matches {
		if match.Metadata[vectorstore.MetadataDocumentID] == "doc-1" {
			t.Fatalf("expected doc-1 chunks removed, found %s", match.ID)
		}
	}
}

func TestResetWipesTheNamespace(t *testing.T) {
	ctx := context.Background()
	index := newIndex(t)
	service := newService(t, &countingEmbedder{}, index, 50, 10)

	if _, err := service.Process(ctx, []chunker.Document{{ID: "doc", Content: "some content to index"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := service.Reset(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stats, err := index.Stats(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.TotalRecords != 0 {
		t.Fatalf("expected an empty namespace after reset, got %d records", stats.TotalRecords)
	}
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
