package huggingface

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	defaultBaseURL     = "https://api-inference.huggingface.co"
	extractionEndpoint = "/pipeline/feature-extraction/"
	defaultModel       = "BAAI/bge-large-en-v1.5"
	defaultHTTPTimeout = 60 * time.Second
)

type ClientOption func(*Client)

func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		if baseURL != "" {
			c.BaseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// Client calls the HuggingFace inference API feature-extraction pipeline
// for sentence-transformers models.
type Client struct {
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
}

type extractRequest struct {
	Inputs  []string       `json:"inputs"`
	Options extractOptions `json:"options"`
}

type extractOptions struct {
	WaitForModel bool `json:"wait_for_model"`
}

func NewClient(apiKey, model string, opts ...ClientOption) *Client {
	c := &Client{
		BaseURL:    defaultBaseURL,
		APIKey:     apiKey,
		Model:      model,
		HTTPClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	if c.APIKey == "" {
		c.APIKey = os.Getenv("HUGGINGFACE_API_KEY")
	}
	if c.Model == "" {
		c.Model = defaultModel
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Embed computes one embedding per input text.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if c == nil {
		return nil, fmt.Errorf("huggingface client is nil")
	}
	if len(texts) == 0 {
		return nil, fmt.Errorf("no input texts provided")
	}
	reqBody, err := json.Marshal(extractRequest{Inputs: texts, Options: extractOptions{WaitForModel: true}})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+extractionEndpoint+c.Model, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
			return nil, fmt.Errorf("huggingface API error: %s", errResp.Error)
		}
		return nil, fmt.Errorf("huggingface API error: %s", strings.TrimSpace(string(body)))
	}
	var out [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(out) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d want %d", len(out), len(texts))
	}
	return out, nil
}

// Embedder bridges the client to the embeddings.Embedder interface.
type Embedder struct{ C *Client }

func (e *Embedder) EmbedDocuments(ctx context.Context, docs []string) ([][]float32, error) {
	return e.C.Embed(ctx, docs)
}

func (e *Embedder) EmbedQuery(ctx context.Context, q string) ([]float32, error) {
	v, err := e.C.Embed(ctx, []string{q})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}
