// Package graphdb defines the graph store contract for service-rule nodes
// and their typed relations.
package graphdb

import "context"

// Node is one service rule keyed by id; upserts never duplicate an id.
type Node struct {
	ID          string
	Name        string
	Description string
	Type        string
}

// Edge is a directed, typed relation between two nodes identified by id.
// An edge whose endpoint does not exist is silently skipped by the store.
type Edge struct {
	FromID string
	ToID   string
	Type   string
}

// TypeCount is one row of the per-type node breakdown.
type TypeCount struct {
	Type  string
	Count int64
}

// Stats summarizes graph content for reporting.
type Stats struct {
	Nodes         int64
	Relationships int64
	TopTypes      []TypeCount
}

// Store executes idempotent upserts against the graph. Callers must upsert
// all nodes before any edges: edge writes match both endpoints by id.
type Store interface {
	// Clear removes every node and relationship. Destructive.
	Clear(ctx context.Context) error
	UpsertNodes(ctx context.Context, nodes []Node, batchSize int) error
	UpsertEdges(ctx context.Context, edges []Edge, batchSize int) error
	Stats(ctx context.Context) (Stats, error)
	Close(ctx context.Context) error
}
