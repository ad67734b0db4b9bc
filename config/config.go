package config

import (
	"fmt"
	"os"
	"strconv"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"

	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type ProviderConfig struct {
	Provider string
	Model    string
}

type EmbeddingsConfig struct {
	Provider  string
	Model     string
	Dimension int
}

type ChunkingConfig struct {
	Size    int
	Overlap int
}

type VectorConfig struct {
	Store     string
	IndexName string
	Namespace string
}

type ChatConfig struct {
	TopK            int
	MaxContextChars int
	MaxHistoryTurns int
}

type Config struct {
	PostgresDSN string
	Neo4jURI    string
	Neo4jUser   string
	Neo4jPass   string

	OllamaHost    string
	OpenAIAPIKey  string
	OpenAIBaseURL string

	LLM        ProviderConfig
	Embeddings EmbeddingsConfig
	Chunking   ChunkingConfig
	Vector     VectorConfig
	Chat       ChatConfig

	DataDir  string
	HTTPAddr string
}

func Load() Config {
	return Config{
		PostgresDSN: getEnv("POSTGRES_DSN", "postgres://localhost:5432/docchat?sslmode=disable"),
		Neo4jURI:    getEnv("NEO4J_URI", ""),
		Neo4jUser:   getEnv("NEO4J_USERNAME", "neo4j"),
		Neo4jPass:   getEnv("NEO4J_PASSWORD", ""),

		OllamaHost:    getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),

		LLM: ProviderConfig{
			Provider: getEnv("LLM_PROVIDER", ProviderOllama),
			Model:    getEnv("LLM_MODEL", "llama3.1"),
		},
		Embeddings: EmbeddingsConfig{
			Provider:  getEnv("EMBEDDINGS_PROVIDER", ProviderOllama),
			Model:     getEnv("EMBEDDINGS_MODEL", "nomic-embed-text"),
			Dimension: getEnvInt("EMBEDDINGS_DIMENSION", 0),
		},
		Chunking: ChunkingConfig{
			Size:    getEnvInt("CHUNK_SIZE", 1000),
			Overlap: getEnvInt("CHUNK_OVERLAP", 200),
		},
		Vector: VectorConfig{
			Store:     getEnv("VECTOR_STORE", StorePostgres),
			IndexName: getEnv("VECTOR_INDEX", "docchat_chunks"),
			Namespace: getEnv("VECTOR_NAMESPACE", "default"),
		},
		Chat: ChatConfig{
			TopK:            getEnvInt("TOP_K", 5),
			MaxContextChars: getEnvInt("MAX_CONTEXT_CHARS", 6000),
			MaxHistoryTurns: getEnvInt("MAX_HISTORY_TURNS", 0),
		},

		DataDir:  getEnv("DATA_DIR", "./data"),
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
	}
}

// Validate reports configuration problems that would otherwise only surface
// deep inside a service constructor.
func (c Config) Validate() error {
	if c.Chunking.Size <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.Chunking.Size)
	}
	if c.Chunking.Overlap < 0 {
		return fmt.Errorf("chunk overlap must not be negative, got %d", c.Chunking.Overlap)
	}
	if c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", c.Chunking.Overlap, c.Chunking.Size)
	}
	switch c.Vector.Store {
	case StorePostgres, StoreMemory:
	default:
		return fmt.Errorf("unknown vector store: %s", c.Vector.Store)
	}
	if c.Vector.IndexName == "" {
		return fmt.Errorf("vector index name must not be empty")
	}
	if c.Vector.Namespace == "" {
		return fmt.Errorf("vector namespace must not be empty")
	}
	if c.Chat.TopK <= 0 {
		return fmt.Errorf("top-k must be positive, got %d", c.Chat.TopK)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
