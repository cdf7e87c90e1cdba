package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/servicegraph/ruleloader/dataset"
	"github.com/servicegraph/ruleloader/graphdb"
	"github.com/servicegraph/ruleloader/vectordb"
)

type fakeEmbedder struct {
	dim   int
	calls int
}

func (f *fakeEmbedder) EmbedDocuments(_ context.Context, docs []string) ([][]float32, error) {
	f.calls++
	out := make([][]float32, len(docs))
	for i := range docs {
		out[i] = make([]float32, f.dim)
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := f.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

type fakeVectorStore struct {
	ensuredName string
	ensuredDim  int
	batches     [][]vectordb.Entry
	upsertErr   error
}

func (f *fakeVectorStore) EnsureIndex(_ context.Context, name string, dimension int) error {
	f.ensuredName = name
	f.ensuredDim = dimension
	return nil
}

func (f *fakeVectorStore) Upsert(_ context.Context, entries []vectordb.Entry) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	batch := make([]vectordb.Entry, len(entries))
	copy(batch, entries)
	f.batches = append(f.batches, batch)
	return nil
}

func (f *fakeVectorStore) Stats(context.Context) (vectordb.Stats, error) {
	var total uint32
	for _, batch := range f.batches {
		total += uint32(len(batch))
	}
	return vectordb.Stats{TotalVectorCount: total, Dimension: int32(f.ensuredDim)}, nil
}

type fakeGraphStore struct {
	calls  []string
	nodes  []graphdb.Node
	edges  []graphdb.Edge
	closed bool
}

func (f *fakeGraphStore) Clear(context.Context) error {
	f.calls = append(f.calls, "clear")
	f.nodes = nil
	f.edges = nil
	return nil
}

func (f *fakeGraphStore) UpsertNodes(_ context.Context, nodes []graphdb.Node, _ int) error {
	f.calls = append(f.calls, "nodes")
	f.nodes = append(f.nodes, nodes...)
	return nil
}

func (f *fakeGraphStore) UpsertEdges(_ context.Context, edges []graphdb.Edge, _ int) error {
	f.calls = append(f.calls, "edges")
	f.edges = append(f.edges, edges...)
	return nil
}

func (f *fakeGraphStore) Stats(context.Context) (graphdb.Stats, error) {
	return graphdb.Stats{Nodes: int64(len(f.nodes)), Relationships: int64(len(f.edges))}, nil
}

func (f *fakeGraphStore) Close(context.Context) error {
	f.closed = true
	return nil
}

func writeDataset(t *testing.T, records []dataset.Record) string {
	t.Helper()
	data, err := json.Marshal(records)
	if err != nil {
		t.Fatalf("marshal dataset: %v", err)
	}
	path := filepath.Join(t.TempDir(), "rules.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write dataset: %v", err)
	}
	return path
}

func newTestService(t *testing.T) (*Service, *fakeEmbedder, *fakeVectorStore, *fakeGraphStore) {
	t.Helper()
	embedder := &fakeEmbedder{dim: 8}
	vectors := &fakeVectorStore{}
	graph := &fakeGraphStore{}
	svc, err := New(WithEmbedder(embedder), WithVectorStore(vectors), WithGraphStore(graph))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, embedder, vectors, graph
}

func TestUploadBatching(t *testing.T) {
	testCases := []struct {
		records     int
		wantBatches int
		wantLast    int
	}{
		{records: 1, wantBatches: 1, wantLast: 1},
		{records: 31, wantBatches: 1, wantLast: 31},
		{records: 32, wantBatches: 1, wantLast: 32},
		{records: 33, wantBatches: 2, wantLast: 1},
		{records: 64, wantBatches: 2, wantLast: 32},
		{records: 70, wantBatches: 3, wantLast: 6},
	}
	for _, testCase := range testCases {
		t.Run(fmt.Sprintf("%d records", testCase.records), func(t *testing.T) {
			records := make([]dataset.Record, testCase.records)
			for i := range records {
				records[i] = dataset.Record{ID: dataset.ID(fmt.Sprintf("%d", i)), Name: fmt.Sprintf("rule %d", i)}
			}
			svc, _, vectors, _ := newTestService(t)
			stats, err := svc.Upload(context.Background(), UploadRequest{
				DataURL:   writeDataset(t, records),
				IndexName: "rules-test",
				Dimension: 8,
			})
			if err != nil {
				t.Fatalf("upload: %v", err)
			}
			if stats.VectorBatches != testCase.wantBatches {
				t.Fatalf("batches: got %d want %d", stats.VectorBatches, testCase.wantBatches)
			}
			if len(vectors.batches) != testCase.wantBatches {
				t.Fatalf("upsert calls: got %d want %d", len(vectors.batches), testCase.wantBatches)
			}
			last := vectors.batches[len(vectors.batches)-1]
			if len(last) != testCase.wantLast {
				t.Fatalf("last batch: got %d want %d", len(last), testCase.wantLast)
			}
		})
	}
}

func TestUploadOrdering(t *testing.T) {
	records := []dataset.Record{
		{ID: "1", Name: "A", Connections: []dataset.Connection{{ID: "2", Type: "NEXT"}}},
		{ID: "2", Name: "B"},
	}
	svc, _, vectors, graph := newTestService(t)
	if _, err := svc.Upload(context.Background(), UploadRequest{
		DataURL:   writeDataset(t, records),
		IndexName: "rules-test",
		Dimension: 8,
	}); err != nil {
		t.Fatalf("upload: %v", err)
	}
	want := []string{"clear", "nodes", "edges"}
	if len(graph.calls) != len(want) {
		t.Fatalf("graph calls: got %v", graph.calls)
	}
	for i, call := range want {
		if graph.calls[i] != call {
			t.Fatalf("graph call %d: got %v want %v", i, graph.calls[i], call)
		}
	}
	if vectors.ensuredName != "rules-test" || vectors.ensuredDim != 8 {
		t.Fatalf("ensure index: got %q/%d", vectors.ensuredName, vectors.ensuredDim)
	}
}

func TestUploadEndToEnd(t *testing.T) {
	records := []dataset.Record{
		{ID: "1", Name: "A", Description: "d1", Type: "t1", Connections: []dataset.Connection{{ID: "2", Type: "NEXT"}}},
		{ID: "2", Name: "B", Description: "d2", Type: "t2"},
	}
	svc, _, vectors, graph := newTestService(t)
	stats, err := svc.Upload(context.Background(), UploadRequest{
		DataURL:   writeDataset(t, records),
		IndexName: "rules-test",
		Dimension: 8,
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if stats.Records != 2 || stats.Nodes != 2 || stats.Edges != 1 {
		t.Fatalf("stats: %+v", stats)
	}
	if len(vectors.batches) != 1 || len(vectors.batches[0]) != 2 {
		t.Fatalf("vector entries: %+v", vectors.batches)
	}
	entry := vectors.batches[0][0]
	if entry.ID != "1" {
		t.Fatalf("entry id: got %q", entry.ID)
	}
	if entry.Metadata["text"] != "A d1 t1" {
		t.Fatalf("entry text: got %q", entry.Metadata["text"])
	}
	edge := graph.edges[0]
	if edge.FromID != "1" || edge.ToID != "2" || edge.Type != "NEXT" {
		t.Fatalf("edge: %+v", edge)
	}
}

func TestUploadEdgeWithUnknownTarget(t *testing.T) {
	records := []dataset.Record{
		{ID: "1", Name: "A", Connections: []dataset.Connection{{ID: "99", Type: "NEXT"}}},
	}
	svc, _, _, graph := newTestService(t)
	if _, err := svc.Upload(context.Background(), UploadRequest{
		DataURL:   writeDataset(t, records),
		IndexName: "rules-test",
		Dimension: 8,
	}); err != nil {
		t.Fatalf("upload: %v", err)
	}
	// The dangling edge reaches the store; the store's conditional match is
	// what makes it a no-op.
	if len(graph.edges) != 1 || graph.edges[0].ToID != "99" {
		t.Fatalf("edges: %+v", graph.edges)
	}
}

func TestUploadDefaultRelationType(t *testing.T) {
	records := []dataset.Record{
		{ID: "1", Name: "A", Connections: []dataset.Connection{{ID: "2"}}},
		{ID: "2", Name: "B"},
	}
	svc, _, _, graph := newTestService(t)
	if _, err := svc.Upload(context.Background(), UploadRequest{
		DataURL:   writeDataset(t, records),
		IndexName: "rules-test",
		Dimension: 8,
	}); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if graph.edges[0].Type != "RELATED" {
		t.Fatalf("relation type: got %q", graph.edges[0].Type)
	}
}

func TestUploadRerunConverges(t *testing.T) {
	records := []dataset.Record{
		{ID: "1", Name: "A", Connections: []dataset.Connection{{ID: "2", Type: "NEXT"}}},
		{ID: "2", Name: "B"},
	}
	svc, _, _, graph := newTestService(t)
	request := UploadRequest{
		DataURL:   writeDataset(t, records),
		IndexName: "rules-test",
		Dimension: 8,
	}
	for run := 0; run < 2; run++ {
		stats, err := svc.Upload(context.Background(), request)
		if err != nil {
			t.Fatalf("upload run %d: %v", run, err)
		}
		if stats.Nodes != 2 || stats.Edges != 1 {
			t.Fatalf("run %d stats: %+v", run, stats)
		}
	}
	if len(graph.nodes) != 2 {
		t.Fatalf("expected 2 nodes after re-run, got %d", len(graph.nodes))
	}
	if len(graph.edges) != 1 {
		t.Fatalf("expected 1 edge after re-run, got %d", len(graph.edges))
	}
}

func TestUploadVectorFailureAbortsRun(t *testing.T) {
	records := []dataset.Record{{ID: "1", Name: "A"}}
	embedder := &fakeEmbedder{dim: 8}
	vectors := &fakeVectorStore{upsertErr: fmt.Errorf("quota exceeded")}
	graph := &fakeGraphStore{}
	svc, err := New(WithEmbedder(embedder), WithVectorStore(vectors), WithGraphStore(graph))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	_, err = svc.Upload(context.Background(), UploadRequest{
		DataURL:   writeDataset(t, records),
		IndexName: "rules-test",
		Dimension: 8,
	})
	if err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("expected upsert failure, got: %v", err)
	}
	if len(graph.calls) != 0 {
		t.Fatalf("graph must not be touched after vector failure: %v", graph.calls)
	}
}

func TestVectorEntryTruncation(t *testing.T) {
	description := strings.Repeat("x", 1500)
	record := dataset.Record{ID: "1", Name: "A", Description: description, Type: "t"}
	text := record.EmbeddingText()
	values := make([]float32, 8)
	entry := vectorEntry(&record, text, values)
	stored, ok := entry.Metadata["text"].(string)
	if !ok {
		t.Fatalf("metadata text missing: %+v", entry.Metadata)
	}
	if len(stored) != metadataTextLimit {
		t.Fatalf("stored text length: got %d want %d", len(stored), metadataTextLimit)
	}
	if entry.ID != "1" || len(entry.Values) != 8 {
		t.Fatalf("id/values affected by truncation: %+v", entry)
	}
	if entry.Metadata["description"] != description {
		t.Fatalf("description field must not be truncated")
	}
}

func TestVerify(t *testing.T) {
	svc, _, vectors, graph := newTestService(t)
	vectors.ensuredDim = 8
	vectors.batches = [][]vectordb.Entry{{{ID: "1"}, {ID: "2"}}}
	graph.nodes = []graphdb.Node{{ID: "1"}, {ID: "2"}}
	graph.edges = []graphdb.Edge{{FromID: "1", ToID: "2", Type: "NEXT"}}

	report, err := svc.Verify(context.Background(), VerifyRequest{})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if report.VectorCount != 2 || report.Dimension != 8 {
		t.Fatalf("vector report: %+v", report)
	}
	if report.Nodes != 2 || report.Relationships != 1 {
		t.Fatalf("graph report: %+v", report)
	}
	if len(graph.calls) != 0 {
		t.Fatalf("verify must not mutate the graph: %v", graph.calls)
	}
}
