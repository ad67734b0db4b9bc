package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

var indexNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// PostgresIndex stores vectors in a pgvector-backed table, one table per
// index name, partitioned logically by a namespace column.
type PostgresIndex struct {
	pool      *pgxpool.Pool
	name      string
	dimension int
}

func NewPostgresIndex(pool *pgxpool.Pool, name string) (*PostgresIndex, error) {
	if pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if !indexNamePattern.MatchString(name) {
		return nil, fmt.Errorf("invalid index name %q: must match %s", name, indexNamePattern)
	}
	return &PostgresIndex{pool: pool, name: name}, nil
}

func (x *PostgresIndex) Create(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive, got %d", dimension)
	}

	stmts := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT NOT NULL,
			namespace TEXT NOT NULL,
			embedding VECTOR(%d) NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (namespace, id)
		)`, x.name, dimension),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_embedding ON %s USING ivfflat (embedding vector_l2_ops)", x.name, x.name),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_namespace ON %s(namespace)", x.name, x.name),
	}

	for _, stmt := range stmts {
		if _, err := x.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("execute index schema statement: %w", err)
		}
	}

	x.dimension = dimension
	return nil
}

func (x *PostgresIndex) Ready(ctx context.Context) (bool, error) {
	var exists bool
	err := x.pool.QueryRow(ctx, "SELECT to_regclass($1) IS NOT NULL", x.name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check index table: %w", err)
	}
	return exists, nil
}

func (x *PostgresIndex) Upsert(ctx context.Context, namespace string, records []Record) error {
	if namespace == "" {
		return fmt.Errorf("namespace cannot be empty")
	}
	if len(records) == 0 {
		return nil
	}

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, namespace, embedding, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (namespace, id) DO UPDATE
		SET embedding = EXCLUDED.embedding,
		    metadata = EXCLUDED.metadata,
		    updated_at = NOW()
	`, x.name)

	for _, record := range records {
		meta, err := json.Marshal(record.Metadata)
		if err != nil {
			return fmt.Errorf("marshal record metadata: %w", err)
		}
		if _, err := x.pool.Exec(ctx, stmt, record.ID, namespace, pgvector.NewVector(record.Vector), meta); err != nil {
			return fmt.Errorf("upsert record %s: %w", record.ID, err)
		}
	}
	return nil
}

func (x *PostgresIndex) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]Match, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("query vector is empty")
	}
	if topK <= 0 {
		topK = 5
	}

	conn, err := x.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	probes := topK * 10
	if probes < 10 {
		probes = 10
	}
	if _, err := conn.Exec(ctx, fmt.Sprintf("SET ivfflat.probes = %d", probes)); err != nil {
		return nil, fmt.Errorf("set ivfflat probes: %w", err)
	}

	rows, err := conn.Query(ctx, fmt.Sprintf(`
		SELECT id, metadata, (embedding <-> $1::vector) AS distance
		FROM %s
		WHERE namespace = $2
		ORDER BY embedding <-> $1::vector
		LIMIT $3
	`, x.name), pgvector.NewVector(vector), namespace, topK)
	if err != nil {
		return nil, fmt.Errorf("query similar vectors: %w", err)
	}
	defer rows.Close()

	matches := make([]Match, 0, topK)
	for rows.Next() {
		var (
			match    Match
			meta     []byte
			distance float64
		)
		if err := rows.Scan(&match.ID, &meta, &distance); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &match.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal match metadata: %w", err)
			}
		}
		match.Score = 1 / (1 + distance)
		matches = append(matches, match)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return matches, nil
}

func (x *PostgresIndex) DeleteByIDs(ctx context.Context, namespace string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	stmt := fmt.Sprintf("DELETE FROM %s WHERE namespace = $1 AND id = ANY($2)", x.name)
	if _, err := x.pool.Exec(ctx, stmt, namespace, ids); err != nil {
		return fmt.Errorf("delete records by id: %w", err)
	}
	return nil
}

func (x *PostgresIndex) DeleteAll(ctx context.Context, namespace string) error {
	stmt := fmt.Sprintf("DELETE FROM %s WHERE namespace = $1", x.name)
	if _, err := x.pool.Exec(ctx, stmt, namespace); err != nil {
		return fmt.Errorf("delete namespace records: %w", err)
	}
	return nil
}

func (x *PostgresIndex) Stats(ctx context.Context) (Stats, error) {
	rows, err := x.pool.Query(ctx, fmt.Sprintf("SELECT namespace, COUNT(*) FROM %s GROUP BY namespace", x.name))
	if err != nil {
		return Stats{}, fmt.Errorf("query index stats: %w", err)
	}
	defer rows.Close()

	stats := Stats{Dimension: x.dimension, Namespaces: make(map[string]int)}
	for rows.Next() {
		var (
			namespace string
			count     int
		)
		if err := rows.Scan(&namespace, &count); err != nil {
			return Stats{}, fmt.Errorf("scan stats row: %w", err)
		}
		stats.Namespaces[namespace] = count
		stats.TotalRecords += count
	}
	if rows.Err() != nil {
		return Stats{}, rows.Err()
	}

	return stats, nil
}

var _ Index = (*PostgresIndex)(nil)
