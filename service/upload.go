package service

import (
	"context"
	"fmt"

	"github.com/servicegraph/ruleloader/dataset"
	"github.com/servicegraph/ruleloader/graphdb"
	"github.com/servicegraph/ruleloader/vectordb"
)

// metadataTextLimit bounds the embedding-text copy stored in vector
// metadata.
const metadataTextLimit = 1000

// defaultRelationType is used for connections that omit a type.
const defaultRelationType = "RELATED"

// Upload loads the dataset and writes it into both stores: embeddings into
// the vector index in fixed-size batches, then nodes and edges into the
// graph. There is no retry and no partial-progress persistence; the first
// error aborts the run. The graph is cleared up front, so a re-run starts
// from scratch.
func (s *Service) Upload(ctx context.Context, request UploadRequest) (*UploadStats, error) {
	if err := s.ensureStores(true); err != nil {
		return nil, err
	}
	logf := ensureLogf(request.Logf)
	records, err := dataset.Load(ctx, request.DataURL)
	if err != nil {
		return nil, err
	}
	logf("loaded %d records from %v", len(records), request.DataURL)

	stats := &UploadStats{Records: len(records)}
	if err := s.uploadVectors(ctx, records, &request, stats); err != nil {
		return stats, err
	}
	if err := s.uploadGraph(ctx, records, &request, stats); err != nil {
		return stats, err
	}
	return stats, nil
}

// uploadVectors embeds records batch by batch and upserts each batch with
// one call; the final batch carries the remainder.
func (s *Service) uploadVectors(ctx context.Context, records []dataset.Record, request *UploadRequest, stats *UploadStats) error {
	logf := ensureLogf(request.Logf)
	if err := s.vectors.EnsureIndex(ctx, request.IndexName, request.Dimension); err != nil {
		return err
	}
	batchSize := request.VectorBatchSize
	if batchSize <= 0 {
		batchSize = DefaultVectorBatchSize
	}
	for start := 0; start < len(records); start += batchSize {
		end := start + batchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]
		texts := make([]string, len(batch))
		for i := range batch {
			texts[i] = batch[i].EmbeddingText()
		}
		vectors, err := s.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed records %d..%d: %w", start, end-1, err)
		}
		if len(vectors) != len(batch) {
			return fmt.Errorf("embed records %d..%d: got %d vectors for %d texts", start, end-1, len(vectors), len(batch))
		}
		entries := make([]vectordb.Entry, len(batch))
		for i := range batch {
			entries[i] = vectorEntry(&batch[i], texts[i], vectors[i])
		}
		if err := s.vectors.Upsert(ctx, entries); err != nil {
			return fmt.Errorf("upsert vectors %d..%d: %w", start, end-1, err)
		}
		stats.VectorBatches++
		logf("upserted vectors %d/%d", end, len(records))
	}
	return nil
}

// uploadGraph clears the graph, then upserts all nodes before any edge so
// edge matches find both endpoints.
func (s *Service) uploadGraph(ctx context.Context, records []dataset.Record, request *UploadRequest, stats *UploadStats) error {
	logf := ensureLogf(request.Logf)
	logf("clearing graph store")
	if err := s.graph.Clear(ctx); err != nil {
		return err
	}
	nodes := nodeList(records)
	if err := s.graph.UpsertNodes(ctx, nodes, request.GraphBatchSize); err != nil {
		return err
	}
	stats.Nodes = len(nodes)
	logf("upserted %d nodes", len(nodes))
	edges := edgeList(records)
	if err := s.graph.UpsertEdges(ctx, edges, request.GraphBatchSize); err != nil {
		return err
	}
	stats.Edges = len(edges)
	logf("upserted %d edges", len(edges))
	return nil
}

func vectorEntry(record *dataset.Record, text string, values []float32) vectordb.Entry {
	return vectordb.Entry{
		ID:     record.ID.String(),
		Values: values,
		Metadata: map[string]any{
			"id":          record.ID.String(),
			"name":        record.Name,
			"description": record.Description,
			"type":        record.Type,
			"text":        truncate(text, metadataTextLimit),
		},
	}
}

func nodeList(records []dataset.Record) []graphdb.Node {
	nodes := make([]graphdb.Node, len(records))
	for i := range records {
		record := &records[i]
		nodes[i] = graphdb.Node{
			ID:          record.ID.String(),
			Name:        record.Name,
			Description: record.Description,
			Type:        record.Type,
		}
	}
	return nodes
}

func edgeList(records []dataset.Record) []graphdb.Edge {
	var edges []graphdb.Edge
	for i := range records {
		record := &records[i]
		for _, connection := range record.Connections {
			relation := connection.Type
			if relation == "" {
				relation = defaultRelationType
			}
			edges = append(edges, graphdb.Edge{
				FromID: record.ID.String(),
				ToID:   connection.ID.String(),
				Type:   relation,
			})
		}
	}
	return edges
}

// truncate limits s to at most limit characters, counting code points the
// way the metadata consumers do.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
