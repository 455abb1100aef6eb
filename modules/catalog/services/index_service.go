package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"github.com/quarry-data/quarry/modules/catalog/domain/entities/dataset"
	"github.com/quarry-data/quarry/modules/catalog/infrastructure/search"
)

// TopicDatasetIndex is the outbox topic carrying re-index intents.
const TopicDatasetIndex = "catalog.dataset.index"

// OutboxTable is where index intents are stored, shared with every writer
// that wants a dataset (re)indexed.
var OutboxTable = pgx.Identifier{"search_outbox"}

var (
	// documentNamespace fixes the derivation of index document ids, so the
	// same dataset always maps onto the same document no matter how many
	// times or from which path it is published.
	documentNamespace = uuid.MustParse("8f2f9aa1-64e3-4ea6-9d0d-2f6a3a7c51b4")

	// intentNamespace fixes the derivation of outbox event ids from their
	// source record, making intent enqueueing idempotent across retries.
	intentNamespace = uuid.MustParse("c0a2d5de-5b19-4e07-9be0-7f5c7a1c9d22")
)

// DocumentID returns the deterministic index document id for a dataset.
func DocumentID(datasetID uuid.UUID) string {
	return uuid.NewSHA1(documentNamespace, datasetID[:]).String()
}

// IndexIntentEventID derives the outbox idempotency key from the record that
// produced the intent.
func IndexIntentEventID(sourceID uuid.UUID) uuid.UUID {
	return uuid.NewSHA1(intentNamespace, sourceID[:])
}

type indexIntent struct {
	DatasetID uuid.UUID `json:"dataset_id"`
}

func IndexIntentPayload(datasetID uuid.UUID) json.RawMessage {
	payload, _ := json.Marshal(indexIntent{DatasetID: datasetID})
	return payload
}

// ParseIndexIntent decodes an outbox payload back into the dataset id.
func ParseIndexIntent(payload json.RawMessage) (uuid.UUID, error) {
	var intent indexIntent
	if err := json.Unmarshal(payload, &intent); err != nil {
		return uuid.Nil, fmt.Errorf("malformed index intent: %w", err)
	}
	if intent.DatasetID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("index intent without dataset id")
	}
	return intent.DatasetID, nil
}

var indexPublishTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "quarry",
	Subsystem: "catalog",
	Name:      "index_publish_total",
	Help:      "Dataset index publish attempts by result.",
}, []string{"result"})

// IndexService projects datasets into the search index.
type IndexService struct {
	client    search.Client
	indexName string
	datasets  dataset.Repository
	logger    *logrus.Entry
}

func NewIndexService(
	client search.Client,
	indexName string,
	datasets dataset.Repository,
	logger *logrus.Logger,
) *IndexService {
	return &IndexService{
		client:    client,
		indexName: indexName,
		datasets:  datasets,
		logger:    logger.WithField("component", "catalog.index"),
	}
}

// EnsureIndex creates the dataset index with its mapping if it is missing.
func (s *IndexService) EnsureIndex(ctx context.Context) error {
	exists, err := s.client.IndexExists(ctx, s.indexName)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	s.logger.WithField("index", s.indexName).Info("creating search index")
	return s.client.CreateIndex(ctx, s.indexName, search.DatasetsMapping)
}

// Publish upserts the dataset's projection under its deterministic document
// id. Publishing the same dataset twice yields one document. No retries
// here; retry policy belongs to the outbox relay.
func (s *IndexService) Publish(ctx context.Context, d *dataset.Dataset) error {
	doc := &search.Document{
		DatasetID:   d.ID.String(),
		FileName:    d.FileName,
		Checksum:    d.Checksum,
		Description: d.Description,
		Region:      d.Region,
		PeriodStart: d.PeriodStart,
		PeriodEnd:   d.PeriodEnd,
		SizeBytes:   d.SizeBytes,
		RowCount:    d.RowCount,
		Metadata:    d.Metadata,
		UploadedAt:  d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}

	if err := s.client.UpsertDocument(ctx, s.indexName, DocumentID(d.ID), doc); err != nil {
		indexPublishTotal.WithLabelValues("failure").Inc()
		return err
	}
	indexPublishTotal.WithLabelValues("success").Inc()
	return nil
}

// PublishByID loads the dataset and publishes it. Used by the outbox
// dispatcher, where only the dataset id travels on the wire.
func (s *IndexService) PublishByID(ctx context.Context, datasetID uuid.UUID) error {
	d, err := s.datasets.GetByID(ctx, datasetID)
	if err != nil {
		return err
	}
	return s.Publish(ctx, d)
}
