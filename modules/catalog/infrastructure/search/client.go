package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	elasticsearch "github.com/elastic/go-elasticsearch/v8"
	"github.com/pkg/errors"
)

// Document is the denormalized dataset projection stored in the search
// index.
type Document struct {
	DatasetID   string            `json:"dataset_id"`
	FileName    string            `json:"file_name"`
	Checksum    string            `json:"checksum"`
	Description string            `json:"description"`
	Region      string            `json:"region,omitempty"`
	PeriodStart *time.Time        `json:"period_start,omitempty"`
	PeriodEnd   *time.Time        `json:"period_end,omitempty"`
	SizeBytes   int64             `json:"size_bytes"`
	RowCount    int64             `json:"row_count"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	UploadedAt  time.Time         `json:"uploaded_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// IndexError is a failed index-engine response. It is deliberately distinct
// from transport errors so callers can treat indexing as a degraded, not
// failed, outcome.
type IndexError struct {
	StatusCode int
	Body       string
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("index request failed with status %d: %s", e.StatusCode, e.Body)
}

// Client is the index-engine port used by the catalog services.
type Client interface {
	IndexExists(ctx context.Context, name string) (bool, error)
	CreateIndex(ctx context.Context, name string, mapping string) error
	UpsertDocument(ctx context.Context, index, docID string, doc *Document) error
}

type ElasticClient struct {
	es *elasticsearch.Client
}

type Config struct {
	Addresses []string
	Username  string
	Password  string
}

func NewElasticClient(cfg Config) (*ElasticClient, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to build search client")
	}
	return &ElasticClient{es: es}, nil
}

func (c *ElasticClient) IndexExists(ctx context.Context, name string) (bool, error) {
	res, err := c.es.Indices.Exists(
		[]string{name},
		c.es.Indices.Exists.WithContext(ctx),
	)
	if err != nil {
		return false, errors.Wrap(err, "index existence check failed")
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case 200:
		return true, nil
	case 404:
		return false, nil
	default:
		return false, responseError(res.StatusCode, res.Body)
	}
}

func (c *ElasticClient) CreateIndex(ctx context.Context, name string, mapping string) error {
	res, err := c.es.Indices.Create(
		name,
		c.es.Indices.Create.WithBody(strings.NewReader(mapping)),
		c.es.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return errors.Wrap(err, "index creation failed")
	}
	defer res.Body.Close()

	if res.IsError() {
		return responseError(res.StatusCode, res.Body)
	}
	return nil
}

// UpsertDocument indexes doc under docID. The engine's index API replaces an
// existing document with the same id, which is what makes publishing
// idempotent.
func (c *ElasticClient) UpsertDocument(ctx context.Context, index, docID string, doc *Document) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "failed to encode index document")
	}

	res, err := c.es.Index(
		index,
		bytes.NewReader(body),
		c.es.Index.WithDocumentID(docID),
		c.es.Index.WithContext(ctx),
	)
	if err != nil {
		return errors.Wrap(err, "index upsert failed")
	}
	defer res.Body.Close()

	if res.IsError() {
		return responseError(res.StatusCode, res.Body)
	}
	return nil
}

func responseError(statusCode int, body io.Reader) error {
	raw, _ := io.ReadAll(io.LimitReader(body, 4096))
	return &IndexError{StatusCode: statusCode, Body: string(raw)}
}
