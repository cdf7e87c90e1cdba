package vectordb

import "context"

// Entry is one (id, vector, metadata) tuple bound for the index.
type Entry struct {
	ID       string
	Values   []float32
	Metadata map[string]any
}

// Stats summarizes index state for reporting.
type Stats struct {
	TotalVectorCount uint32
	Dimension        int32
}

// Store defines upserting entry batches into a named vector index.
type Store interface {
	// EnsureIndex connects to the index, creating it when absent.
	EnsureIndex(ctx context.Context, name string, dimension int) error
	// Upsert writes one batch in a single call.
	Upsert(ctx context.Context, entries []Entry) error
	Stats(ctx context.Context) (Stats, error)
}
