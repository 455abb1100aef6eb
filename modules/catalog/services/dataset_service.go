package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/quarry-data/quarry/modules/catalog/domain/entities/dataset"
	"github.com/quarry-data/quarry/modules/catalog/infrastructure/search"
	"github.com/quarry-data/quarry/pkg/composables"
	"github.com/quarry-data/quarry/pkg/outbox"
)

// CreateDatasetResult reports a committed dataset together with the outcome
// of its immediate index publish. IndexErr set means the dataset is stored
// but search visibility is deferred to the outbox relay.
type CreateDatasetResult struct {
	Dataset  *dataset.Dataset
	IndexErr *search.IndexError
}

type DatasetService struct {
	datasets    dataset.Repository
	indexer     *IndexService
	publisher   outbox.Publisher
	outboxTable pgx.Identifier
	logger      *logrus.Entry
}

func NewDatasetService(
	datasets dataset.Repository,
	indexer *IndexService,
	publisher outbox.Publisher,
	outboxTable pgx.Identifier,
	logger *logrus.Logger,
) *DatasetService {
	return &DatasetService{
		datasets:    datasets,
		indexer:     indexer,
		publisher:   publisher,
		outboxTable: outboxTable,
		logger:      logger.WithField("component", "catalog.datasets"),
	}
}

// Create stores the dataset and its index intent in one transaction, then
// attempts one synchronous publish for immediate search visibility. A failed
// publish degrades the result instead of failing it; the relay retries from
// the intent.
func (s *DatasetService) Create(ctx context.Context, params dataset.CreateParams) (*CreateDatasetResult, error) {
	if err := authorizeCatalog(ctx, "create"); err != nil {
		return nil, err
	}

	d, err := dataset.New(params, time.Now())
	if err != nil {
		return nil, err
	}

	err = composables.InTx(ctx, func(txCtx context.Context) error {
		if err := s.datasets.Create(txCtx, d); err != nil {
			return err
		}
		tx, err := composables.UseTx(txCtx)
		if err != nil {
			return err
		}
		_, err = s.publisher.Enqueue(txCtx, tx, s.outboxTable, outbox.Message{
			Topic:   TopicDatasetIndex,
			EventID: IndexIntentEventID(d.ID),
			Payload: IndexIntentPayload(d.ID),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	result := &CreateDatasetResult{Dataset: d}
	if err := s.indexer.Publish(ctx, d); err != nil {
		var indexErr *search.IndexError
		if !errors.As(err, &indexErr) {
			indexErr = &search.IndexError{Body: err.Error()}
		}
		s.logger.WithFields(logrus.Fields{
			"dataset_id": d.ID,
			"status":     indexErr.StatusCode,
		}).WithError(err).Warn("dataset stored but index publish failed")
		result.IndexErr = indexErr
	}
	return result, nil
}

func (s *DatasetService) GetByID(ctx context.Context, id uuid.UUID) (*dataset.Dataset, error) {
	if err := authorizeCatalog(ctx, "view"); err != nil {
		return nil, err
	}
	return s.datasets.GetByID(ctx, id)
}

func (s *DatasetService) List(ctx context.Context, params *dataset.FindParams) ([]*dataset.Dataset, int64, error) {
	if err := authorizeCatalog(ctx, "view"); err != nil {
		return nil, 0, err
	}
	if params == nil {
		params = &dataset.FindParams{}
	}

	datasets, err := s.datasets.GetPaginated(ctx, params)
	if err != nil {
		return nil, 0, err
	}
	count, err := s.datasets.Count(ctx, params)
	if err != nil {
		return nil, 0, err
	}
	return datasets, count, nil
}
