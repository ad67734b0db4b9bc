package ingestion

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"os"
	stdpath "path"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/fabfab/docchat/chunker"
	"github.com/fabfab/docchat/embeddings"
	"github.com/fabfab/docchat/knowledge"
	"github.com/fabfab/docchat/vectorstore"
)

// embedBatchSize bounds texts per embedding/upsert round trip. Batches are
// issued sequentially; an error in one batch aborts the remainder.
const embedBatchSize = 96

type Service struct {
	splitter  *chunker.Splitter
	embedder  embeddings.Embedder
	index     vectorstore.Index
	namespace string
	graph     neo4j.DriverWithContext
	logger    *log.Logger
}

// NewService wires the ingestion pipeline. The graph driver is optional; a
// nil driver disables graph sync.
func NewService(splitter *chunker.Splitter, embedder embeddings.Embedder, index vectorstore.Index, namespace string, graph neo4j.DriverWithContext, logger *log.Logger) (*Service, error) {
	if splitter == nil {
		return nil, fmt.Errorf("splitter is nil")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is nil")
	}
	if index == nil {
		return nil, fmt.Errorf("vector index is nil")
	}
	if namespace == "" {
		return nil, fmt.Errorf("namespace cannot be empty")
	}
	if logger == nil {
		logger = log.Default()
	}

	return &Service{
		splitter:  splitter,
		embedder:  embedder,
		index:     index,
		namespace: namespace,
		graph:     graph,
		logger:    logger,
	}, nil
}

// Process chunks the documents, embeds the chunk texts in sequential
// batches, and upserts the resulting records. It returns the number of
// chunks indexed.
func (s *Service) Process(ctx context.Context, docs []chunker.Document) (int, error) {
	indexed := 0
	for _, doc := range docs {
		chunks := s.splitter.Split(doc)
		if len(chunks) == 0 {
			s.logger.Printf("skip empty document %s", doc.ID)
			continue
		}

		for start := 0; start < len(chunks); start += embedBatchSize {
			end := start + embedBatchSize
			if end > len(chunks) {
				end = len(chunks)
			}
			if err := s.indexBatch(ctx, chunks[start:end]); err != nil {
				return indexed, fmt.Errorf("index document %s: %w", doc.ID, err)
			}
			indexed += end - start
		}

		if s.graph != nil {
			if err := s.syncGraph(ctx, doc, chunks); err != nil {
				s.logger.Printf("graph sync failed for %s: %v", doc.ID, err)
			}
		}

		s.logger.Printf("ingested %s (%d chunks)", doc.ID, len(chunks))
	}
	return indexed, nil
}

// ProcessDirectory walks dir, parses every supported file into a document,
// and processes them. Per-file parse failures are logged and skipped.
func (s *Service) ProcessDirectory(ctx context.Context, dir string) (int, error) {
	if _, err := os.Stat(dir); err != nil {
		return 0, fmt.Errorf("data directory: %w", err)
	}

	docs := make([]chunker.Document, 0)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}

		format := DetectFormat(path)
		if format == FormatUnknown {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			s.logger.Printf("read failed for %s: %v", path, err)
			return nil
		}

		parsed, err := Parse(format, path, data)
		if err != nil {
			s.logger.Printf("parse failed for %s: %v", path, err)
			return nil
		}

		relPath, relErr := filepath.Rel(dir, path)
		if relErr != nil {
			relPath = path
		}
		relPath = filepath.ToSlash(relPath)

		metadata := map[string]any{
			"source": relPath,
			"title":  parsed.Title,
			"format": string(format),
		}
		if folder := stdpath.Dir(relPath); folder != "." && folder != "/" {
			metadata["tags"] = []string{folder}
		}

		docs = append(docs, chunker.Document{
			ID:       uuid.NewString(),
			Content:  parsed.Content,
			Metadata: metadata,
		})
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("walk data directory: %w", err)
	}

	if len(docs) == 0 {
		s.logger.Printf("no supported documents found in %s", dir)
		return 0, nil
	}

	return s.Process(ctx, docs)
}

// DeleteChunks removes the given record ids from the index.
func (s *Service) DeleteChunks(ctx context.Context, ids []string) error {
	if err := s.index.DeleteByIDs(ctx, s.namespace, ids); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	return nil
}

// DeleteDocument removes a document's chunk records and, when graph sync
// is enabled, its graph node. Chunk ids come from prior search results.
func (s *Service) DeleteDocument(ctx context.Context, docID string, chunkIDs []string) error {
	if docID == "" {
		return fmt.Errorf("document id cannot be empty")
	}
	if err := s.DeleteChunks(ctx, chunkIDs); err != nil {
		return err
	}
	if s.graph != nil {
		if err := knowledge.RemoveDocument(ctx, s.graph, docID); err != nil {
			s.logger.Printf("graph remove failed for %s: %v", docID, err)
		}
	}
	return nil
}

// Reset wipes every record in the configured namespace.
func (s *Service) Reset(ctx context.Context) error {
	if err := s.index.DeleteAll(ctx, s.namespace); err != nil {
		return fmt.Errorf("reset namespace: %w", err)
	}
	return nil
}

func (s *Service) indexBatch(ctx context.Context, chunks []chunker.Chunk) error {
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
	}

	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("generate embeddings: %w", err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("embedding count mismatch: have %d chunks, %d embeddings", len(chunks), len(vectors))
	}

	records := make([]vectorstore.Record, len(chunks))
	for i, chunk := range chunks {
		metadata := make(map[string]any, len(chunk.Metadata)+1)
		for k, v := range chunk.Metadata {
			metadata[k] = v
		}
		metadata[vectorstore.MetadataText] = chunk.Content

		records[i] = vectorstore.Record{
			ID:       chunk.ID,
			Vector:   vectors[i],
			Metadata: metadata,
		}
	}

	if err := s.index.Upsert(ctx, s.namespace, records); err != nil {
		return fmt.Errorf("upsert records: %w", err)
	}
	return nil
}

func (s *Service) syncGraph(ctx context.Context, doc chunker.Document, chunks []chunker.Chunk) error {
	graphDoc := knowledge.Document{
		ID:     doc.ID,
		Title:  metadataString(doc.Metadata, "title"),
		Source: metadataString(doc.Metadata, "source"),
		Tags:   metadataTags(doc.Metadata),
		Chunks: make([]knowledge.Chunk, len(chunks)),
	}
	for i, chunk := range chunks {
		graphDoc.Chunks[i] = knowledge.Chunk{ID: chunk.ID, Index: chunk.ChunkIndex}
	}
	return knowledge.SyncDocument(ctx, s.graph, graphDoc)
}

func metadataString(meta map[string]any, key string) string {
	if meta == nil {
		return ""
	}
	if value, ok := meta[key].(string); ok {
		return value
	}
	return ""
}

func metadataTags(meta map[string]any) []string {
	if meta == nil {
		return nil
	}
	switch tags := meta["tags"].(type) {
	case []string:
		return tags
	case []any:
		result := make([]string, 0, len(tags))
		for _, tag := range tags {
			if s, ok := tag.(string); ok && s != "" {
				result = append(result, s)
			}
		}
		return result
	case string:
		if tags == "" {
			return nil
		}
		return []string{tags}
	default:
		return nil
	}
}
