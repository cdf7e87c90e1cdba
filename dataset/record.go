// Package dataset defines the service-rule input model and JSON loading.
package dataset

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/viant/afs"
)

// Connection declares a directed, typed relation to another record.
type Connection struct {
	ID   ID     `json:"id"`
	Type string `json:"type"`
}

// Record is one service-rule entry. Records are read-only inputs; the
// dataset file is the sole source of truth.
type Record struct {
	ID          ID           `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Type        string       `json:"type"`
	Connections []Connection `json:"connections,omitempty"`
}

// ID normalizes record identifiers: the dataset mixes JSON strings and
// numbers for the same field.
type ID string

// UnmarshalJSON accepts both "12" and 12.
func (i *ID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*i = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid record id: %s", data)
	}
	*i = ID(n.String())
	return nil
}

func (i ID) String() string { return string(i) }

// EmbeddingText joins the non-empty name, description and type fields,
// in that order, with single spaces.
func (r *Record) EmbeddingText() string {
	parts := make([]string, 0, 3)
	for _, part := range []string{r.Name, r.Description, r.Type} {
		if part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, " ")
}

// Load reads a whole JSON array of records from URL. The URL goes through
// afs, so plain paths and scheme-qualified locations both work.
func Load(ctx context.Context, URL string) ([]Record, error) {
	fs := afs.New()
	ok, err := fs.Exists(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("check dataset %v: %w", URL, err)
	}
	if !ok {
		return nil, fmt.Errorf("dataset not found: %v", URL)
	}
	data, err := fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("read dataset %v: %w", URL, err)
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse dataset %v: %w", URL, err)
	}
	return records, nil
}
