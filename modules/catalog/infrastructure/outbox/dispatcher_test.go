package outbox

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/quarry-data/quarry/modules/catalog/domain/entities/dataset"
	"github.com/quarry-data/quarry/modules/catalog/infrastructure/search"
	"github.com/quarry-data/quarry/modules/catalog/services"
	"github.com/quarry-data/quarry/pkg/outbox"
)

func newDispatcherEnv(t *testing.T) (*IndexDispatcher, *stubClient, *stubDatasets) {
	t.Helper()
	client := &stubClient{docs: map[string]*search.Document{}}
	datasets := &stubDatasets{items: map[uuid.UUID]*dataset.Dataset{}}
	indexer := services.NewIndexService(client, "datasets", datasets, logrus.New())
	return NewIndexDispatcher(indexer, nil, logrus.New()), client, datasets
}

func intentMessage(datasetID uuid.UUID) outbox.DispatchedMessage {
	return outbox.DispatchedMessage{
		Meta: outbox.Meta{
			Topic:   services.TopicDatasetIndex,
			EventID: services.IndexIntentEventID(datasetID),
		},
		Payload: services.IndexIntentPayload(datasetID),
	}
}

func TestIndexDispatcher_PublishesDataset(t *testing.T) {
	dispatcher, client, datasets := newDispatcherEnv(t)

	d, err := dataset.New(dataset.CreateParams{
		FileName:   "trade.parquet",
		Checksum:   "sha256:abc",
		UploaderID: uuid.New(),
	}, time.Now())
	require.NoError(t, err)
	datasets.items[d.ID] = d

	require.NoError(t, dispatcher.Dispatch(context.Background(), intentMessage(d.ID)))
	require.Len(t, client.docs, 1)
	require.NotNil(t, client.docs[services.DocumentID(d.ID)])
}

func TestIndexDispatcher_AcksMissingDataset(t *testing.T) {
	dispatcher, client, _ := newDispatcherEnv(t)

	require.NoError(t, dispatcher.Dispatch(context.Background(), intentMessage(uuid.New())))
	require.Empty(t, client.docs)
}

func TestIndexDispatcher_AcksMalformedPayload(t *testing.T) {
	dispatcher, client, _ := newDispatcherEnv(t)

	msg := outbox.DispatchedMessage{
		Meta:    outbox.Meta{Topic: services.TopicDatasetIndex, EventID: uuid.New()},
		Payload: []byte(`not json`),
	}
	require.NoError(t, dispatcher.Dispatch(context.Background(), msg))
	require.Empty(t, client.docs)
}

func TestIndexDispatcher_SkipsForeignTopic(t *testing.T) {
	dispatcher, client, _ := newDispatcherEnv(t)

	msg := outbox.DispatchedMessage{
		Meta:    outbox.Meta{Topic: "billing.invoice.created", EventID: uuid.New()},
		Payload: []byte(`{}`),
	}
	require.NoError(t, dispatcher.Dispatch(context.Background(), msg))
	require.Empty(t, client.docs)
}

func TestIndexDispatcher_PropagatesIndexFailure(t *testing.T) {
	dispatcher, client, datasets := newDispatcherEnv(t)
	client.upsertErr = &search.IndexError{StatusCode: 500, Body: "boom"}

	d, err := dataset.New(dataset.CreateParams{
		FileName:   "trade.parquet",
		Checksum:   "sha256:abc",
		UploaderID: uuid.New(),
	}, time.Now())
	require.NoError(t, err)
	datasets.items[d.ID] = d

	err = dispatcher.Dispatch(context.Background(), intentMessage(d.ID))
	var indexErr *search.IndexError
	require.ErrorAs(t, err, &indexErr)
}

type stubClient struct {
	mu        sync.Mutex
	docs      map[string]*search.Document
	upsertErr error
}

func (c *stubClient) IndexExists(ctx context.Context, name string) (bool, error) { return true, nil }

func (c *stubClient) CreateIndex(ctx context.Context, name string, mapping string) error {
	return nil
}

func (c *stubClient) UpsertDocument(ctx context.Context, index, docID string, doc *search.Document) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.upsertErr != nil {
		return c.upsertErr
	}
	c.docs[docID] = doc
	return nil
}

type stubDatasets struct {
	mu    sync.Mutex
	items map[uuid.UUID]*dataset.Dataset
}

func (r *stubDatasets) Count(ctx context.Context, params *dataset.FindParams) (int64, error) {
	return int64(len(r.items)), nil
}

func (r *stubDatasets) GetPaginated(ctx context.Context, params *dataset.FindParams) ([]*dataset.Dataset, error) {
	var out []*dataset.Dataset
	for _, d := range r.items {
		out = append(out, d)
	}
	return out, nil
}

func (r *stubDatasets) GetByID(ctx context.Context, id uuid.UUID) (*dataset.Dataset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.items[id]
	if !ok {
		return nil, dataset.ErrNotFound
	}
	return d, nil
}

func (r *stubDatasets) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.items[id]
	return ok, nil
}

func (r *stubDatasets) Create(ctx context.Context, d *dataset.Dataset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[d.ID] = d
	return nil
}

func (r *stubDatasets) Update(ctx context.Context, d *dataset.Dataset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[d.ID] = d
	return nil
}
