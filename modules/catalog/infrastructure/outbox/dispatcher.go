package outbox

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/quarry-data/quarry/modules/catalog/domain/entities/dataset"
	"github.com/quarry-data/quarry/modules/catalog/services"
	"github.com/quarry-data/quarry/pkg/composables"
	"github.com/quarry-data/quarry/pkg/outbox"
)

// IndexDispatcher drains index intents from the outbox into the index
// service. It acknowledges intents whose dataset has vanished, since
// retrying those can never succeed.
type IndexDispatcher struct {
	indexer *services.IndexService
	pool    *pgxpool.Pool
	logger  *logrus.Entry
}

func NewIndexDispatcher(indexer *services.IndexService, pool *pgxpool.Pool, logger *logrus.Logger) *IndexDispatcher {
	return &IndexDispatcher{
		indexer: indexer,
		pool:    pool,
		logger:  logger.WithField("component", "catalog.index_dispatcher"),
	}
}

func (d *IndexDispatcher) Dispatch(ctx context.Context, msg outbox.DispatchedMessage) error {
	if msg.Meta.Topic != services.TopicDatasetIndex {
		d.logger.WithField("topic", msg.Meta.Topic).Warn("skipping message with unknown topic")
		return nil
	}

	datasetID, err := services.ParseIndexIntent(msg.Payload)
	if err != nil {
		// A malformed payload will never parse on retry either.
		d.logger.WithField("event_id", msg.Meta.EventID).WithError(err).Error("dropping unparsable index intent")
		return nil
	}

	ctx = composables.WithPool(ctx, d.pool)
	if err := d.indexer.PublishByID(ctx, datasetID); err != nil {
		if errors.Is(err, dataset.ErrNotFound) {
			d.logger.WithField("dataset_id", datasetID).Warn("dataset gone before indexing, acknowledging intent")
			return nil
		}
		return err
	}
	return nil
}
