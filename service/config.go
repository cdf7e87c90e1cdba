package service

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/viant/scy/cred/secret"
	"gopkg.in/yaml.v3"
)

const (
	DefaultVectorBatchSize = 32
	DefaultGraphBatchSize  = 100
	DefaultDimension       = 1024
	DefaultTopK            = 5
	DefaultIndexName       = "service-rules"

	defaultNeo4jURI  = "neo4j+s://your-neo4j-uri.databases.neo4j.io"
	defaultNeo4jUser = "neo4j"
	defaultDataURL   = "public/service-rules-dataset.json"
	defaultAPIHost   = "0.0.0.0"
	defaultAPIPort   = 8000
	defaultCORS      = "http://localhost:5173,http://localhost:3000"
)

// Neo4jConfig holds graph store connection settings. Password may be
// resolved through a secret reference.
type Neo4jConfig struct {
	URI      string `yaml:"uri"`
	User     string `yaml:"user"`
	Password string `yaml:"password,omitempty"`
	Secret   string `yaml:"secret,omitempty"`
}

// PineconeConfig holds vector store settings.
type PineconeConfig struct {
	APIKey    string `yaml:"apiKey,omitempty"`
	Host      string `yaml:"host"`
	IndexName string `yaml:"indexName"`
	Dimension int    `yaml:"dimension"`
	TopK      int    `yaml:"topK"`
}

// APIConfig holds serving-component settings; parsed and carried here,
// served by a separate component.
type APIConfig struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"corsOrigins"`
}

// Config is the explicit per-run configuration; constructed once at startup
// and passed into components, never read from globals.
type Config struct {
	Data            string         `yaml:"data"`
	VectorBatchSize int            `yaml:"vectorBatchSize"`
	GraphBatchSize  int            `yaml:"graphBatchSize"`
	Provider        string         `yaml:"provider"`
	EmbeddingModel  string         `yaml:"embeddingModel"`
	OpenAIKey       string         `yaml:"openAIKey,omitempty"`
	HuggingFaceKey  string         `yaml:"huggingFaceKey,omitempty"`
	Neo4j           Neo4jConfig    `yaml:"neo4j"`
	Pinecone        PineconeConfig `yaml:"pinecone"`
	API             APIConfig      `yaml:"api"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Data:            defaultDataURL,
		VectorBatchSize: DefaultVectorBatchSize,
		GraphBatchSize:  DefaultGraphBatchSize,
		Provider:        "huggingface",
		Neo4j: Neo4jConfig{
			URI:  defaultNeo4jURI,
			User: defaultNeo4jUser,
		},
		Pinecone: PineconeConfig{
			IndexName: DefaultIndexName,
			Dimension: DefaultDimension,
			TopK:      DefaultTopK,
		},
		API: APIConfig{
			Host:        defaultAPIHost,
			Port:        defaultAPIPort,
			CORSOrigins: splitCSV(defaultCORS),
		},
	}
}

// LoadConfig builds the configuration: defaults, then an optional YAML
// config file, then environment variables. A dotenv file, when present,
// seeds the environment first without overriding existing variables.
func LoadConfig(ctx context.Context, configPath, dotenvPath string) (*Config, error) {
	if dotenvPath != "" {
		if _, err := os.Stat(dotenvPath); err == nil {
			if err := godotenv.Load(dotenvPath); err != nil {
				return nil, fmt.Errorf("load %v: %w", dotenvPath, err)
			}
		}
	}
	cfg := DefaultConfig()
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("load config %v: %w", configPath, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %v: %w", configPath, err)
		}
	}
	cfg.applyEnv()
	if cfg.Neo4j.Secret != "" {
		expanded, err := ExpandWithSecret(ctx, cfg.Neo4j.Password, cfg.Neo4j.Secret)
		if err != nil {
			return nil, err
		}
		cfg.Neo4j.Password = expanded
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	envString(&c.Neo4j.URI, "NEO4J_URI")
	envString(&c.Neo4j.User, "NEO4J_USER")
	envString(&c.Neo4j.Password, "NEO4J_PASSWORD")
	envString(&c.Pinecone.APIKey, "PINECONE_API_KEY")
	envString(&c.Pinecone.Host, "PINECONE_HOST")
	envString(&c.Pinecone.IndexName, "PINECONE_INDEX_NAME")
	envInt(&c.Pinecone.Dimension, "PINECONE_VECTOR_DIM")
	envInt(&c.Pinecone.TopK, "PINECONE_TOP_K")
	envString(&c.Provider, "LLM_PROVIDER")
	envString(&c.EmbeddingModel, "EMBEDDING_MODEL")
	envString(&c.OpenAIKey, "OPENAI_API_KEY")
	envString(&c.HuggingFaceKey, "HUGGINGFACE_API_KEY")
	envString(&c.Data, "DATA_FILE")
	envString(&c.API.Host, "API_HOST")
	envInt(&c.API.Port, "API_PORT")
	if value := os.Getenv("CORS_ORIGINS"); value != "" {
		c.API.CORSOrigins = splitCSV(value)
	}
}

// Validate reports every missing or misconfigured mandatory setting at
// once; it never fails fast on the first problem.
func (c *Config) Validate() error {
	var errors []string
	if c.Pinecone.APIKey == "" {
		errors = append(errors, "PINECONE_API_KEY is not set")
	}
	if c.Neo4j.Password == "" {
		errors = append(errors, "NEO4J_PASSWORD is not set")
	}
	switch c.Provider {
	case "openai":
		if c.OpenAIKey == "" {
			errors = append(errors, "OPENAI_API_KEY is not set (LLM_PROVIDER=openai)")
		}
	case "huggingface":
		if c.HuggingFaceKey == "" {
			errors = append(errors, "HUGGINGFACE_API_KEY is not set (LLM_PROVIDER=huggingface)")
		}
	case "simple":
		// Deterministic local embedder, no credential.
	default:
		errors = append(errors, fmt.Sprintf("LLM_PROVIDER %q is not supported (openai, huggingface or simple)", c.Provider))
	}
	if strings.Contains(c.Neo4j.URI, "your-neo4j-uri") {
		errors = append(errors, "NEO4J_URI is not properly configured")
	}
	if c.Pinecone.Dimension <= 0 {
		errors = append(errors, "PINECONE_VECTOR_DIM must be positive")
	}
	if len(errors) == 0 {
		return nil
	}
	return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errors, "\n  - "))
}

// ExpandWithSecret loads a secret and expands placeholders in value.
func ExpandWithSecret(ctx context.Context, value, secretRef string) (string, error) {
	secretRef = strings.TrimSpace(secretRef)
	if secretRef == "" {
		return value, nil
	}
	svc := secret.New()
	sec, err := svc.Lookup(ctx, secret.Resource(secretRef))
	if err != nil {
		return "", fmt.Errorf("lookup secret %v: %w", secretRef, err)
	}
	return sec.Expand(value), nil
}

func envString(dest *string, key string) {
	if value := os.Getenv(key); value != "" {
		*dest = value
	}
}

func envInt(dest *int, key string) {
	value := os.Getenv(key)
	if value == "" {
		return
	}
	if n, err := strconv.Atoi(value); err == nil {
		*dest = n
	}
}

func splitCSV(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
