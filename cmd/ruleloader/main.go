package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/gops/agent"

	"github.com/servicegraph/ruleloader/embeddings"
	"github.com/servicegraph/ruleloader/embeddings/huggingface"
	"github.com/servicegraph/ruleloader/embeddings/openai"
	"github.com/servicegraph/ruleloader/embeddings/simple"
	"github.com/servicegraph/ruleloader/graphdb/neo4j"
	"github.com/servicegraph/ruleloader/service"
	"github.com/servicegraph/ruleloader/vectordb/pinecone"
)

func main() {
	startGops()
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "upload":
		uploadCmd(os.Args[2:])
	case "verify":
		verifyCmd(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: ruleloader <command> [options]")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  upload  Load the service-rule dataset into Pinecone and Neo4j")
	fmt.Fprintln(os.Stderr, "  verify  Report record counts from both stores")
}

func uploadCmd(args []string) {
	flags := flag.NewFlagSet("upload", flag.ExitOnError)
	dataURL := flags.String("data", "", "dataset JSON file (defaults to config)")
	configPath := flags.String("config", "", "config yaml (optional)")
	dotenvPath := flags.String("dotenv", ".env.local", "dotenv file, loaded when present")
	indexName := flags.String("index", "", "vector index name (defaults to config)")
	dimension := flags.Int("dim", 0, "vector dimension (defaults to config)")
	batch := flags.Int("batch", 0, "vector upsert batch size")
	graphBatch := flags.Int("graph-batch", 0, "graph write batch size")
	provider := flags.String("provider", "", "embedding provider: openai|huggingface|simple")
	model := flags.String("model", "", "embedding model override")
	flags.Parse(args)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := service.LoadConfig(ctx, *configPath, *dotenvPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	overrideString(&cfg.Data, *dataURL)
	overrideString(&cfg.Pinecone.IndexName, *indexName)
	overrideString(&cfg.Provider, *provider)
	overrideString(&cfg.EmbeddingModel, *model)
	overrideInt(&cfg.Pinecone.Dimension, *dimension)
	overrideInt(&cfg.VectorBatchSize, *batch)
	overrideInt(&cfg.GraphBatchSize, *graphBatch)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("%v", err)
	}

	log.Printf("starting upload: data=%v index=%v dim=%d", cfg.Data, cfg.Pinecone.IndexName, cfg.Pinecone.Dimension)
	svc := newService(ctx, cfg, true)
	runErr := runUpload(ctx, svc, cfg)
	if closeErr := svc.Close(context.Background()); closeErr != nil {
		log.Printf("close graph store: %v", closeErr)
	}
	if runErr != nil {
		log.Printf("upload failed: %+v", runErr)
		os.Exit(1)
	}
}

func runUpload(ctx context.Context, svc *service.Service, cfg *service.Config) error {
	stats, err := svc.Upload(ctx, service.UploadRequest{
		DataURL:         cfg.Data,
		IndexName:       cfg.Pinecone.IndexName,
		Dimension:       cfg.Pinecone.Dimension,
		VectorBatchSize: cfg.VectorBatchSize,
		GraphBatchSize:  cfg.GraphBatchSize,
		Logf:            log.Printf,
	})
	if err != nil {
		return err
	}
	log.Printf("upload complete: %d records, %d vector batches, %d nodes, %d edges",
		stats.Records, stats.VectorBatches, stats.Nodes, stats.Edges)
	report, err := svc.Verify(ctx, service.VerifyRequest{})
	if err != nil {
		return fmt.Errorf("post-upload verification: %w", err)
	}
	log.Printf("verification: %d vectors, %d nodes", report.VectorCount, report.Nodes)
	return nil
}

func verifyCmd(args []string) {
	flags := flag.NewFlagSet("verify", flag.ExitOnError)
	configPath := flags.String("config", "", "config yaml (optional)")
	dotenvPath := flags.String("dotenv", ".env.local", "dotenv file, loaded when present")
	indexName := flags.String("index", "", "vector index name (defaults to config)")
	flags.Parse(args)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := service.LoadConfig(ctx, *configPath, *dotenvPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	overrideString(&cfg.Pinecone.IndexName, *indexName)

	svc := newService(ctx, cfg, false)
	report, runErr := svc.Verify(ctx, service.VerifyRequest{})
	if closeErr := svc.Close(context.Background()); closeErr != nil {
		log.Printf("close graph store: %v", closeErr)
	}
	if runErr != nil {
		log.Printf("verify failed: %v", runErr)
		os.Exit(1)
	}
	fmt.Printf("vectors: %d (dimension %d)\n", report.VectorCount, report.Dimension)
	fmt.Printf("nodes: %d\n", report.Nodes)
	fmt.Printf("relationships: %d\n", report.Relationships)
	if len(report.TopTypes) > 0 {
		fmt.Println("node types:")
		for _, item := range report.TopTypes {
			fmt.Printf("  - %s: %d nodes\n", item.Type, item.Count)
		}
	}
}

// newService wires the external clients; any unreachable store or missing
// credential is a startup precondition failure.
func newService(ctx context.Context, cfg *service.Config, withEmbedder bool) *service.Service {
	vectors, err := pinecone.New(cfg.Pinecone.APIKey, cfg.Pinecone.Host)
	if err != nil {
		log.Fatalf("pinecone: %v", err)
	}
	if cfg.Pinecone.Host == "" && !withEmbedder {
		if err := vectors.Connect(ctx, cfg.Pinecone.IndexName); err != nil {
			log.Fatalf("pinecone: %v", err)
		}
	}
	graph, err := neo4j.New(ctx, cfg.Neo4j.URI, cfg.Neo4j.User, cfg.Neo4j.Password)
	if err != nil {
		log.Fatalf("neo4j: %v", err)
	}
	opts := []service.Option{
		service.WithVectorStore(vectors),
		service.WithGraphStore(graph),
	}
	if withEmbedder {
		embedder, err := selectEmbedder(cfg)
		if err != nil {
			log.Fatalf("embedder: %v", err)
		}
		opts = append(opts, service.WithEmbedder(embedder))
	}
	svc, err := service.New(opts...)
	if err != nil {
		log.Fatalf("service init: %v", err)
	}
	return svc
}

func selectEmbedder(cfg *service.Config) (embeddings.Embedder, error) {
	switch cfg.Provider {
	case "openai":
		client := openai.NewClient(cfg.OpenAIKey, cfg.EmbeddingModel, cfg.Pinecone.Dimension)
		return &openai.Embedder{C: client}, nil
	case "huggingface":
		client := huggingface.NewClient(cfg.HuggingFaceKey, cfg.EmbeddingModel)
		return &huggingface.Embedder{C: client}, nil
	case "simple":
		return simple.New(cfg.Pinecone.Dimension), nil
	}
	return nil, fmt.Errorf("unsupported provider: %v", cfg.Provider)
}

func overrideString(dest *string, value string) {
	if value != "" {
		*dest = value
	}
}

func overrideInt(dest *int, value int) {
	if value > 0 {
		*dest = value
	}
}

func startGops() {
	if err := agent.Listen(agent.Options{ShutdownCleanup: true}); err != nil {
		log.Printf("gops: %v", err)
	}
}
