// Package agent wires the ingestion and query pipelines into a single
// facade: process documents into the index, ask grounded questions out of
// it.
package agent

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/fabfab/docchat/chat"
	"github.com/fabfab/docchat/chunker"
	"github.com/fabfab/docchat/config"
	"github.com/fabfab/docchat/conversation"
	"github.com/fabfab/docchat/database"
	"github.com/fabfab/docchat/embeddings"
	"github.com/fabfab/docchat/ingestion"
	"github.com/fabfab/docchat/llm"
	"github.com/fabfab/docchat/vectorstore"
)

const (
	readyPollInterval = 2 * time.Second
	readyMaxWait      = 60 * time.Second
)

// Agent is the assembled pipeline.
type Agent struct {
	cfg    config.Config
	logger *log.Logger

	pool   *pgxpool.Pool
	graph  neo4j.DriverWithContext
	index  vectorstore.Index
	ingest *ingestion.Service
	chat   *chat.Service
}

// New builds every component from configuration, creates the vector index
// with the configured or probed embedding dimension, and waits for it to
// become ready.
func New(ctx context.Context, cfg config.Config, logger *log.Logger) (*Agent, error) {
	if logger == nil {
		logger = log.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(cfg)
	if err != nil {
		return nil, fmt.Errorf("embedder setup: %w", err)
	}

	llmClient, err := llm.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("llm setup: %w", err)
	}

	store := conversation.NewBoundedMemoryStore(cfg.Chat.MaxHistoryTurns)
	session, err := llm.NewSessionClient(llmClient, store)
	if err != nil {
		return nil, fmt.Errorf("session setup: %w", err)
	}

	a := &Agent{cfg: cfg, logger: logger}

	index, err := a.openIndex(ctx, cfg)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.index = index

	dimension := cfg.Embeddings.Dimension
	if dimension <= 0 {
		dimension, err = embeddings.ProbeDimension(ctx, embedder)
		if err != nil {
			a.Close(ctx)
			return nil, fmt.Errorf("probe embedding dimension: %w", err)
		}
	}

	if err := index.Create(ctx, dimension); err != nil {
		a.Close(ctx)
		logger.Printf("index creation failed: %v", err)
		return nil, fmt.Errorf("create index: %w", err)
	}
	if err := vectorstore.WaitUntilReady(ctx, index, readyPollInterval, readyMaxWait); err != nil {
		a.Close(ctx)
		return nil, err
	}

	if cfg.Neo4jURI != "" {
		driver, err := database.NewNeo4jDriver(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPass)
		if err != nil {
			a.Close(ctx)
			return nil, fmt.Errorf("neo4j connection: %w", err)
		}
		a.graph = driver
	}

	splitter, err := chunker.NewSplitter(cfg.Chunking.Size, cfg.Chunking.Overlap)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("splitter setup: %w", err)
	}

	ingestSvc, err := ingestion.NewService(splitter, embedder, index, cfg.Vector.Namespace, a.graph, logger)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("ingestion setup: %w", err)
	}
	a.ingest = ingestSvc

	retriever, err := chat.NewRetriever(embedder, index, cfg.Vector.Namespace)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("retriever setup: %w", err)
	}

	var graphStore chat.GraphStore
	if a.graph != nil {
		graphStore = chat.NewNeo4jGraphStore(a.graph)
	}

	chatSvc, err := chat.NewService(retriever, session, graphStore, logger, chat.Options{
		TopK:            cfg.Chat.TopK,
		MaxContextChars: cfg.Chat.MaxContextChars,
	})
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("chat setup: %w", err)
	}
	a.chat = chatSvc

	return a, nil
}

func (a *Agent) openIndex(ctx context.Context, cfg config.Config) (vectorstore.Index, error) {
	switch cfg.Vector.Store {
	case config.StoreMemory:
		return vectorstore.NewMemoryIndex(), nil
	case config.StorePostgres:
		pool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("postgres connection: %w", err)
		}
		a.pool = pool
		index, err := vectorstore.NewPostgresIndex(pool, cfg.Vector.IndexName)
		if err != nil {
			return nil, fmt.Errorf("postgres index setup: %w", err)
		}
		return index, nil
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.Vector.Store)
	}
}

// Ingest chunks, embeds, and indexes the given documents.
func (a *Agent) Ingest(ctx context.Context, docs []chunker.Document) (int, error) {
	return a.ingest.Process(ctx, docs)
}

// IngestDirectory ingests every supported file under dir.
func (a *Agent) IngestDirectory(ctx context.Context, dir string) (int, error) {
	return a.ingest.ProcessDirectory(ctx, dir)
}

// Ask answers a question grounded in indexed documents.
func (a *Agent) Ask(ctx context.Context, question string, opts chat.AskOptions) (chat.AnswerResult, error) {
	return a.chat.Ask(ctx, question, opts)
}

// AskWithHistory answers using a caller-supplied message sequence.
func (a *Agent) AskWithHistory(ctx context.Context, question string, history []llm.Message, opts chat.AskOptions) (chat.AnswerResult, error) {
	return a.chat.AskWithHistory(ctx, question, history, opts)
}

// Search returns ranked passages without generation.
func (a *Agent) Search(ctx context.Context, query string, k int) ([]chat.ScoredPassage, error) {
	return a.chat.Search(ctx, query, k)
}

// History returns the stored conversation turns for an identifier.
func (a *Agent) History(conversationID string) []llm.Message {
	return a.chat.History(conversationID)
}

// ClearHistory wipes the stored conversation turns for an identifier.
func (a *Agent) ClearHistory(conversationID string) {
	a.chat.ClearHistory(conversationID)
}

// DeleteChunks removes specific chunk records from the index.
func (a *Agent) DeleteChunks(ctx context.Context, ids []string) error {
	return a.ingest.DeleteChunks(ctx, ids)
}

// DeleteDocument removes a document's chunk records and graph node.
func (a *Agent) DeleteDocument(ctx context.Context, docID string, chunkIDs []string) error {
	return a.ingest.DeleteDocument(ctx, docID, chunkIDs)
}

// Reset wipes every indexed record in the configured namespace.
func (a *Agent) Reset(ctx context.Context) error {
	return a.ingest.Reset(ctx)
}

// Stats summarizes the vector index contents.
func (a *Agent) Stats(ctx context.Context) (vectorstore.Stats, error) {
	return a.index.Stats(ctx)
}

// Close releases database connections.
func (a *Agent) Close(ctx context.Context) {
	if a.pool != nil {
		a.pool.Close()
	}
	if a.graph != nil {
		if err := a.graph.Close(ctx); err != nil {
			a.logger.Printf("close neo4j driver: %v", err)
		}
	}
}
