package service

import (
	"context"
	"fmt"

	"github.com/servicegraph/ruleloader/embeddings"
	"github.com/servicegraph/ruleloader/graphdb"
	"github.com/servicegraph/ruleloader/vectordb"
)

// Option configures the Service.
type Option func(*Service)

// WithEmbedder sets the embedding client.
func WithEmbedder(embedder embeddings.Embedder) Option {
	return func(s *Service) { s.embedder = embedder }
}

// WithVectorStore sets the vector index client.
func WithVectorStore(store vectordb.Store) Option {
	return func(s *Service) { s.vectors = store }
}

// WithGraphStore sets the graph store client.
func WithGraphStore(store graphdb.Store) Option {
	return func(s *Service) { s.graph = store }
}

// Service exposes the upload and verify workflows over injected store and
// embedding clients.
type Service struct {
	embedder embeddings.Embedder
	vectors  vectordb.Store
	graph    graphdb.Store
}

// New creates a new Service.
func New(opts ...Option) (*Service, error) {
	s := &Service{}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the graph store connection; callers defer it so the
// connection is released regardless of run outcome.
func (s *Service) Close(ctx context.Context) error {
	if s.graph != nil {
		return s.graph.Close(ctx)
	}
	return nil
}

func (s *Service) ensureStores(needEmbedder bool) error {
	if s.vectors == nil {
		return fmt.Errorf("vector store is required")
	}
	if s.graph == nil {
		return fmt.Errorf("graph store is required")
	}
	if needEmbedder && s.embedder == nil {
		return fmt.Errorf("embedder is required")
	}
	return nil
}

func ensureLogf(logf func(format string, args ...any)) func(format string, args ...any) {
	if logf != nil {
		return logf
	}
	return func(string, ...any) {}
}
