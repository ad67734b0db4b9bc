package chat

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// GraphStore looks up graph-derived insights for documents backing
// retrieved passages.
type GraphStore interface {
	DocumentInsights(ctx context.Context, docIDs []string) (map[string]DocumentInsight, error)
}

type Neo4jGraphStore struct {
	driver neo4j.DriverWithContext
}

func NewNeo4jGraphStore(driver neo4j.DriverWithContext) *Neo4jGraphStore {
	return &Neo4jGraphStore{driver: driver}
}

func (s *Neo4jGraphStore) DocumentInsights(ctx context.Context, docIDs []string) (map[string]DocumentInsight, error) {
	if s.driver == nil {
		return nil, fmt.Errorf("neo4j driver is nil")
	}
	if len(docIDs) == 0 {
		return map[string]DocumentInsight{}, nil
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (d:Document)
		WHERE d.id IN $ids
		OPTIONAL MATCH (d)-[:HAS_CHUNK]->(c:Chunk)
		OPTIONAL MATCH (d)-[:HAS_TAG]->(tag:Tag)
		OPTIONAL MATCH (tag)<-[:HAS_TAG]-(byTag:Document)
		OPTIONAL MATCH (d)-[:FROM_SOURCE]->(src:Source)<-[:FROM_SOURCE]-(bySource:Document)
		WITH d,
		     count(DISTINCT c) AS chunkCount,
		     collect(DISTINCT tag.name) AS tagNames,
		     collect(DISTINCT {id: byTag.id, title: byTag.title, reason: 'shared tag'}) AS tagRelated,
		     collect(DISTINCT {id: bySource.id, title: bySource.title, reason: 'shared source'}) AS sourceRelated
		RETURN d.id AS id,
		       chunkCount,
		       [t IN tagNames WHERE t IS NOT NULL] AS tags,
		       [r IN tagRelated + sourceRelated WHERE r.id IS NOT NULL AND r.id <> d.id] AS relatedDocuments
	`, map[string]any{"ids": docIDs})
	if err != nil {
		return nil, fmt.Errorf("run neo4j insights query: %w", err)
	}

	insights := make(map[string]DocumentInsight, len(docIDs))
	for result.Next(ctx) {
		record := result.Record()
		idVal, _ := record.Get("id")
		id, ok := idVal.(string)
		if !ok {
			continue
		}

		insight := DocumentInsight{}
		if countVal, found := record.Get("chunkCount"); found {
			if count, isInt := countVal.(int64); isInt {
				insight.ChunkCount = int(count)
			}
		}
		if tagsVal, found := record.Get("tags"); found {
			insight.Tags = toStringSlice(tagsVal)
		}
		if relatedVal, found := record.Get("relatedDocuments"); found {
			insight.RelatedDocuments = toRelatedDocuments(relatedVal)
		}

		insights[id] = insight
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("read neo4j insights result: %w", err)
	}

	return insights, nil
}

func toStringSlice(value any) []string {
	items, ok := value.([]any)
	if !ok {
		return nil
	}
	result := make([]string, 0, len(items))
	for _, item := range items {
		if s, isString := item.(string); isString && s != "" {
			result = append(result, s)
		}
	}
	return result
}

func toRelatedDocuments(value any) []RelatedDocument {
	items, ok := value.([]any)
	if !ok {
		return nil
	}
	seen := make(map[string]struct{}, len(items))
	result := make([]RelatedDocument, 0, len(items))
	for _, item := range items {
		entry, isMap := item.(map[string]any)
		if !isMap {
			continue
		}
		related := RelatedDocument{}
		if id, isString := entry["id"].(string); isString {
			related.ID = id
		}
		if title, isString := entry["title"].(string); isString {
			related.Title = title
		}
		if reason, isString := entry["reason"].(string); isString {
			related.Reason = reason
		}
		if related.ID == "" {
			continue
		}
		if _, duplicate := seen[related.ID]; duplicate {
			continue
		}
		seen[related.ID] = struct{}{}
		result = append(result, related)
	}
	return result
}

var _ GraphStore = (*Neo4jGraphStore)(nil)
