// Package pinecone implements the vectordb.Store contract on top of the
// official Pinecone client.
package pinecone

import (
	"context"
	"fmt"

	"github.com/pinecone-io/go-pinecone/v3/pinecone"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/servicegraph/ruleloader/vectordb"
)

const (
	defaultCloud  = pinecone.Aws
	defaultRegion = "us-east-1"
)

// Option configures the Store.
type Option func(*Store)

// WithRegion sets the serverless region used when creating an index.
func WithRegion(region string) Option {
	return func(s *Store) {
		if region != "" {
			s.region = region
		}
	}
}

// WithCloud sets the serverless cloud used when creating an index.
func WithCloud(cloud pinecone.Cloud) Option {
	return func(s *Store) {
		if cloud != "" {
			s.cloud = cloud
		}
	}
}

// Store talks to one Pinecone index.
type Store struct {
	client *pinecone.Client
	index  *pinecone.IndexConnection
	cloud  pinecone.Cloud
	region string
}

// New creates a Store. When host is non-empty the index connection is
// established immediately; otherwise EnsureIndex resolves it by name.
func New(apiKey, host string, opts ...Option) (*Store, error) {
	client, err := pinecone.NewClient(pinecone.NewClientParams{ApiKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("pinecone client: %w", err)
	}
	s := &Store{client: client, cloud: defaultCloud, region: defaultRegion}
	for _, opt := range opts {
		opt(s)
	}
	if host != "" {
		if err := s.connect(host); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) connect(host string) error {
	index, err := s.client.Index(pinecone.NewIndexConnParams{Host: host})
	if err != nil {
		return fmt.Errorf("connect index %v: %w", host, err)
	}
	s.index = index
	return nil
}

// Connect resolves the named index host and connects, without ever
// creating an index; used by read-only callers.
func (s *Store) Connect(ctx context.Context, name string) error {
	if s.index != nil {
		return nil
	}
	indexes, err := s.client.ListIndexes(ctx)
	if err != nil {
		return fmt.Errorf("list indexes: %w", err)
	}
	for _, index := range indexes {
		if index.Name == name {
			return s.connect(index.Host)
		}
	}
	return fmt.Errorf("index %v does not exist", name)
}

// EnsureIndex connects to the named index, creating a serverless cosine
// index when none exists yet.
func (s *Store) EnsureIndex(ctx context.Context, name string, dimension int) error {
	if s.index != nil {
		return nil
	}
	indexes, err := s.client.ListIndexes(ctx)
	if err != nil {
		return fmt.Errorf("list indexes: %w", err)
	}
	for _, index := range indexes {
		if index.Name == name {
			return s.connect(index.Host)
		}
	}
	dim := int32(dimension)
	metric := pinecone.Cosine
	index, err := s.client.CreateServerlessIndex(ctx, &pinecone.CreateServerlessIndexRequest{
		Name:      name,
		Cloud:     s.cloud,
		Region:    s.region,
		Metric:    &metric,
		Dimension: &dim,
	})
	if err != nil {
		return fmt.Errorf("create index %v: %w", name, err)
	}
	return s.connect(index.Host)
}

// Upsert writes one batch of entries in a single call.
func (s *Store) Upsert(ctx context.Context, entries []vectordb.Entry) error {
	if s.index == nil {
		return fmt.Errorf("pinecone index is not connected")
	}
	vectors := make([]*pinecone.Vector, 0, len(entries))
	for i := range entries {
		entry := &entries[i]
		var metadata *pinecone.Metadata
		if len(entry.Metadata) > 0 {
			md, err := structpb.NewStruct(entry.Metadata)
			if err != nil {
				return fmt.Errorf("metadata for %v: %w", entry.ID, err)
			}
			metadata = md
		}
		values := entry.Values
		vectors = append(vectors, &pinecone.Vector{
			Id:       entry.ID,
			Values:   &values,
			Metadata: metadata,
		})
	}
	if _, err := s.index.UpsertVectors(ctx, vectors); err != nil {
		return fmt.Errorf("upsert %d vectors: %w", len(vectors), err)
	}
	return nil
}

// Stats reports total vector count and index dimension.
func (s *Store) Stats(ctx context.Context) (vectordb.Stats, error) {
	if s.index == nil {
		return vectordb.Stats{}, fmt.Errorf("pinecone index is not connected")
	}
	stats, err := s.index.DescribeIndexStats(ctx)
	if err != nil {
		return vectordb.Stats{}, fmt.Errorf("describe index stats: %w", err)
	}
	out := vectordb.Stats{TotalVectorCount: stats.TotalVectorCount}
	if stats.Dimension != nil {
		out.Dimension = int32(*stats.Dimension)
	}
	return out, nil
}
