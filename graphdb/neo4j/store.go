// Package neo4j implements the graphdb.Store contract over the Neo4j
// bolt driver.
package neo4j

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/servicegraph/ruleloader/graphdb"
)

const defaultBatchSize = 100

const (
	clearQuery = `MATCH (n) DETACH DELETE n`

	upsertNodesQuery = `
UNWIND $rows AS row
MERGE (n:ServiceRule {id: row.id})
ON CREATE SET n.created_at = datetime()
SET n.name = row.name,
    n.description = row.description,
    n.type = row.type`

	// Unmatched endpoints drop the row, so edges referencing unknown ids
	// are a silent no-op.
	upsertEdgesQuery = `
UNWIND $rows AS row
MATCH (a:ServiceRule {id: row.from_id})
MATCH (b:ServiceRule {id: row.to_id})
MERGE (a)-[:RELATED_TO {type: row.relation_type}]->(b)`

	nodeCountQuery = `MATCH (n) RETURN count(n) AS total`
	relCountQuery  = `MATCH ()-[r]->() RETURN count(r) AS total`

	typeBreakdownQuery = `
MATCH (n:ServiceRule)
RETURN n.type AS node_type, count(n) AS count
ORDER BY count DESC
LIMIT 10`
)

// Store owns one driver for the lifetime of a run.
type Store struct {
	driver neo4j.DriverWithContext
}

// New connects and verifies reachability; unreachable servers surface as a
// startup precondition error.
func New(ctx context.Context, uri, user, password string) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver %v: %w", uri, err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4j connectivity %v: %w", uri, err)
	}
	return &Store{driver: driver}, nil
}

// Close releases the driver. Safe to call after failed runs.
func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// Clear removes all nodes and relationships in one write transaction.
func (s *Store) Clear(ctx context.Context) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)
	if err := s.write(ctx, session, clearQuery, nil); err != nil {
		return fmt.Errorf("clear graph: %w", err)
	}
	return nil
}

// UpsertNodes merges nodes keyed by id, batchSize rows per write transaction.
func (s *Store) UpsertNodes(ctx context.Context, nodes []graphdb.Node, batchSize int) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)
	rows := nodeRows(nodes)
	for _, batch := range chunk(rows, batchSize) {
		if err := s.write(ctx, session, upsertNodesQuery, map[string]any{"rows": batch}); err != nil {
			return fmt.Errorf("upsert %d nodes: %w", len(batch), err)
		}
	}
	return nil
}

// UpsertEdges merges typed directed edges between existing nodes,
// batchSize rows per write transaction.
func (s *Store) UpsertEdges(ctx context.Context, edges []graphdb.Edge, batchSize int) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)
	rows := edgeRows(edges)
	for _, batch := range chunk(rows, batchSize) {
		if err := s.write(ctx, session, upsertEdgesQuery, map[string]any{"rows": batch}); err != nil {
			return fmt.Errorf("upsert %d edges: %w", len(batch), err)
		}
	}
	return nil
}

// Stats reports node count, relationship count and the top node types.
func (s *Store) Stats(ctx context.Context) (graphdb.Stats, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)
	var out graphdb.Stats
	var err error
	if out.Nodes, err = s.count(ctx, session, nodeCountQuery); err != nil {
		return out, fmt.Errorf("count nodes: %w", err)
	}
	if out.Relationships, err = s.count(ctx, session, relCountQuery); err != nil {
		return out, fmt.Errorf("count relationships: %w", err)
	}
	result, err := session.Run(ctx, typeBreakdownQuery, nil)
	if err != nil {
		return out, fmt.Errorf("type breakdown: %w", err)
	}
	for result.Next(ctx) {
		record := result.Record()
		out.TopTypes = append(out.TopTypes, graphdb.TypeCount{
			Type:  recordString(record, "node_type"),
			Count: recordInt64(record, "count"),
		})
	}
	if err := result.Err(); err != nil {
		return out, fmt.Errorf("type breakdown: %w", err)
	}
	return out, nil
}

func (s *Store) write(ctx context.Context, session neo4j.SessionWithContext, cypher string, params map[string]any) error {
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		return nil, result.Err()
	})
	return err
}

func (s *Store) count(ctx context.Context, session neo4j.SessionWithContext, cypher string) (int64, error) {
	result, err := session.Run(ctx, cypher, nil)
	if err != nil {
		return 0, err
	}
	record, err := result.Single(ctx)
	if err != nil {
		return 0, err
	}
	return recordInt64(record, "total"), nil
}

func nodeRows(nodes []graphdb.Node) []any {
	rows := make([]any, len(nodes))
	for i, node := range nodes {
		rows[i] = map[string]any{
			"id":          node.ID,
			"name":        node.Name,
			"description": node.Description,
			"type":        node.Type,
		}
	}
	return rows
}

func edgeRows(edges []graphdb.Edge) []any {
	rows := make([]any, len(edges))
	for i, edge := range edges {
		rows[i] = map[string]any{
			"from_id":       edge.FromID,
			"to_id":         edge.ToID,
			"relation_type": edge.Type,
		}
	}
	return rows
}

func chunk(rows []any, size int) [][]any {
	if size <= 0 {
		size = defaultBatchSize
	}
	var out [][]any
	for start := 0; start < len(rows); start += size {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		out = append(out, rows[start:end])
	}
	return out
}

func recordString(record *neo4j.Record, key string) string {
	value, ok := record.Get(key)
	if !ok || value == nil {
		return ""
	}
	if s, ok := value.(string); ok {
		return s
	}
	return ""
}

func recordInt64(record *neo4j.Record, key string) int64 {
	value, ok := record.Get(key)
	if !ok || value == nil {
		return 0
	}
	if n, ok := value.(int64); ok {
		return n
	}
	return 0
}
