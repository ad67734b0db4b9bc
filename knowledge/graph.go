// Package knowledge mirrors ingested documents into a Neo4j graph so that
// retrieval results can be enriched with document-level relations.
package knowledge

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

type Document struct {
	ID     string
	Title  string
	Source string
	Tags   []string
	Chunks []Chunk
}

type Chunk struct {
	ID    string
	Index int
}

// SyncDocument upserts the document node and rebuilds its chunk, tag, and
// source relations.
func SyncDocument(ctx context.Context, driver neo4j.DriverWithContext, doc Document) error {
	if driver == nil {
		return fmt.Errorf("neo4j driver is nil")
	}

	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	params := map[string]any{
		"id":     doc.ID,
		"title":  doc.Title,
		"source": doc.Source,
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, `
			MERGE (d:Document {id: $id})
			SET d.title = $title,
			    d.updated_at = datetime()
		`, params); err != nil {
			return nil, fmt.Errorf("upsert document node: %w", err)
		}

		if doc.Source != "" {
			if _, err := tx.Run(ctx, `
				MATCH (d:Document {id: $id})-[r:FROM_SOURCE]->(:Source)
				DELETE r
			`, params); err != nil {
				return nil, fmt.Errorf("remove stale source relation: %w", err)
			}
			if _, err := tx.Run(ctx, `
				MATCH (d:Document {id: $id})
				MERGE (s:Source {name: $source})
				MERGE (d)-[:FROM_SOURCE]->(s)
			`, params); err != nil {
				return nil, fmt.Errorf("upsert source relation: %w", err)
			}
		}

		if _, err := tx.Run(ctx, `
			MATCH (d:Document {id: $id})-[:HAS_CHUNK]->(c:Chunk)
			DETACH DELETE c
		`, params); err != nil {
			return nil, fmt.Errorf("clear existing chunks: %w", err)
		}

		for _, chunk := range doc.Chunks {
			if _, err := tx.Run(ctx, `
				MATCH (d:Document {id: $doc_id})
				MERGE (c:Chunk {id: $chunk_id})
				SET c.index = $chunk_index
				MERGE (d)-[:HAS_CHUNK]->(c)
			`, map[string]any{
				"doc_id":      doc.ID,
				"chunk_id":    chunk.ID,
				"chunk_index": chunk.Index,
			}); err != nil {
				return nil, fmt.Errorf("upsert chunk node %s: %w", chunk.ID, err)
			}
		}

		if _, err := tx.Run(ctx, `
			MATCH (d:Document {id: $id})-[r:HAS_TAG]->(:Tag)
			DELETE r
		`, params); err != nil {
			return nil, fmt.Errorf("clear existing tags: %w", err)
		}

		for _, tag := range doc.Tags {
			if tag == "" {
				continue
			}
			if _, err := tx.Run(ctx, `
				MATCH (d:Document {id: $doc_id})
				MERGE (t:Tag {name: $tag})
				MERGE (d)-[:HAS_TAG]->(t)
			`, map[string]any{"doc_id": doc.ID, "tag": tag}); err != nil {
				return nil, fmt.Errorf("upsert tag %s: %w", tag, err)
			}
		}

		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("sync document %s: %w", doc.ID, err)
	}

	return nil
}

// RemoveDocument deletes the document node and its chunk nodes, leaving
// shared tags and sources in place.
func RemoveDocument(ctx context.Context, driver neo4j.DriverWithContext, docID string) error {
	if driver == nil {
		return fmt.Errorf("neo4j driver is nil")
	}

	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, `
			MATCH (d:Document {id: $id})
			OPTIONAL MATCH (d)-[:HAS_CHUNK]->(c:Chunk)
			DETACH DELETE d, c
		`, map[string]any{"id": docID}); err != nil {
			return nil, fmt.Errorf("delete document node: %w", err)
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("remove document %s: %w", docID, err)
	}

	return nil
}
