package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/quarry-data/quarry/modules/approvals/domain/entities/ledger"
	"github.com/quarry-data/quarry/modules/approvals/domain/entities/request"
	"github.com/quarry-data/quarry/modules/catalog/domain/entities/dataset"
	catalogservices "github.com/quarry-data/quarry/modules/catalog/services"
	"github.com/quarry-data/quarry/pkg/composables"
	"github.com/quarry-data/quarry/pkg/constants"
	"github.com/quarry-data/quarry/pkg/eventbus"
	"github.com/quarry-data/quarry/pkg/outbox"
	"github.com/quarry-data/quarry/pkg/repo"
)

type testEnv struct {
	service   *ApprovalService
	access    *AccessService
	requests  *memRequestRepo
	entries   *memLedgerRepo
	datasets  *memDatasetRepo
	publisher *fakePublisher
	admins    map[uuid.UUID]bool
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		requests:  newMemRequestRepo(),
		entries:   newMemLedgerRepo(),
		datasets:  newMemDatasetRepo(),
		publisher: &fakePublisher{},
		admins:    map[uuid.UUID]bool{},
	}

	prevAuthorize := authorizeApprovalsFn
	prevIsAdmin := isAdministratorFn
	authorizeApprovalsFn = func(ctx context.Context, action string) error { return nil }
	isAdministratorFn = func(ctx context.Context, actorID uuid.UUID) (bool, error) {
		return env.admins[actorID], nil
	}
	t.Cleanup(func() {
		authorizeApprovalsFn = prevAuthorize
		isAdministratorFn = prevIsAdmin
	})

	logger := logrus.New()
	env.service = NewApprovalService(
		env.requests,
		env.entries,
		env.datasets,
		env.publisher,
		pgx.Identifier{"search_outbox"},
		eventbus.NewEventPublisher(logger),
		logger,
	)
	env.access = NewAccessService(env.requests, env.datasets)
	return env
}

func actorContext(actorID uuid.UUID) context.Context {
	ctx := composables.WithActorID(context.Background(), actorID)
	return context.WithValue(ctx, constants.TxKey, noopTx{})
}

func (e *testEnv) seedDataset(t *testing.T) uuid.UUID {
	t.Helper()
	d, err := dataset.New(dataset.CreateParams{
		FileName:   "flows-2025.parquet",
		Checksum:   "sha256:aabbcc",
		SizeBytes:  1024,
		UploaderID: uuid.New(),
	}, time.Now())
	require.NoError(t, err)
	require.NoError(t, e.datasets.Create(context.Background(), d))
	return d.ID
}

func TestApprovalService_Create_WritesBirthLedgerEntry(t *testing.T) {
	env := newTestEnv(t)
	requester := uuid.New()
	datasetID := env.seedDataset(t)

	req, err := env.service.Create(actorContext(requester), CreateRequestInput{
		Kind:          request.FullDataAccess,
		DatasetID:     &datasetID,
		Justification: "research",
	})
	require.NoError(t, err)
	require.Equal(t, request.StatusPending, req.Status)
	require.Equal(t, "research", req.Justification)

	entries := env.entries.forRequest(req.ID)
	require.Len(t, entries, 1)
	require.Equal(t, request.StatusPending, entries[0].FromStatus)
	require.Equal(t, request.StatusPending, entries[0].ToStatus)
	require.Equal(t, "created", entries[0].Comment)
	require.Empty(t, env.publisher.messages())
}

func TestApprovalService_Create_RejectsMissingDataset(t *testing.T) {
	env := newTestEnv(t)
	missing := uuid.New()

	_, err := env.service.Create(actorContext(uuid.New()), CreateRequestInput{
		Kind:          request.FullDataAccess,
		DatasetID:     &missing,
		Justification: "research",
	})
	require.ErrorIs(t, err, dataset.ErrNotFound)
}

func TestApprovalService_Create_RequiresJustification(t *testing.T) {
	env := newTestEnv(t)
	datasetID := env.seedDataset(t)

	_, err := env.service.Create(actorContext(uuid.New()), CreateRequestInput{
		Kind:      request.FullDataAccess,
		DatasetID: &datasetID,
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "justification")
}

func TestApprovalService_Create_RejectsDuplicateOpenRequest(t *testing.T) {
	env := newTestEnv(t)
	requester := uuid.New()
	datasetID := env.seedDataset(t)
	ctx := actorContext(requester)

	_, err := env.service.Create(ctx, CreateRequestInput{Kind: request.FullDataAccess, DatasetID: &datasetID, Justification: "research"})
	require.NoError(t, err)

	_, err = env.service.Create(ctx, CreateRequestInput{Kind: request.FullDataAccess, DatasetID: &datasetID, Justification: "research"})
	require.ErrorIs(t, err, ErrDuplicateRequest)
}

func TestApprovalService_Create_AllowsRetryAfterRejection(t *testing.T) {
	env := newTestEnv(t)
	requester := uuid.New()
	admin := uuid.New()
	env.admins[admin] = true
	datasetID := env.seedDataset(t)

	req, err := env.service.Create(actorContext(requester), CreateRequestInput{Kind: request.FullDataAccess, DatasetID: &datasetID, Justification: "research"})
	require.NoError(t, err)
	_, err = env.service.Reject(actorContext(admin), req.ID, admin, "not yet")
	require.NoError(t, err)

	_, err = env.service.Create(actorContext(requester), CreateRequestInput{Kind: request.FullDataAccess, DatasetID: &datasetID, Justification: "research"})
	require.NoError(t, err)
}

func TestApprovalService_Approve_AppendsLedger(t *testing.T) {
	env := newTestEnv(t)
	requester := uuid.New()
	admin := uuid.New()
	env.admins[admin] = true
	datasetID := env.seedDataset(t)

	req, err := env.service.Create(actorContext(requester), CreateRequestInput{Kind: request.FullDataAccess, DatasetID: &datasetID, Justification: "research"})
	require.NoError(t, err)

	approved, err := env.service.Approve(actorContext(admin), req.ID, admin, "granted")
	require.NoError(t, err)
	require.Equal(t, request.StatusApproved, approved.Status)
	require.NotNil(t, approved.ProcessedAt)
	require.NotNil(t, approved.AdminID)
	require.Equal(t, admin, *approved.AdminID)
	require.EqualValues(t, 1, approved.Version)

	entries := env.entries.forRequest(req.ID)
	require.Len(t, entries, 2)
	require.NoError(t, ledger.Verify(entries))
	require.Equal(t, request.StatusApproved, entries[1].ToStatus)
	require.Equal(t, "granted", entries[1].Comment)
}

func TestApprovalService_ApproveAccess_NoIndexIntent(t *testing.T) {
	// Granting access does not change the dataset; nothing to re-index.
	env := newTestEnv(t)
	requester := uuid.New()
	admin := uuid.New()
	env.admins[admin] = true
	datasetID := env.seedDataset(t)

	req, err := env.service.Create(actorContext(requester), CreateRequestInput{Kind: request.FullDataAccess, DatasetID: &datasetID, Justification: "research"})
	require.NoError(t, err)

	_, err = env.service.Approve(actorContext(admin), req.ID, admin, "granted")
	require.NoError(t, err)
	require.Empty(t, env.publisher.messages())
}

func TestApprovalService_ApproveUpload_EnqueuesIndexIntent(t *testing.T) {
	env := newTestEnv(t)
	requester := uuid.New()
	admin := uuid.New()
	env.admins[admin] = true
	datasetID := env.seedDataset(t)

	req, err := env.service.Create(actorContext(requester), CreateRequestInput{Kind: request.NewDatasetUpload, Justification: "new flows"})
	require.NoError(t, err)

	attached, err := env.service.AttachDataset(actorContext(requester), req.ID, datasetID, requester)
	require.NoError(t, err)
	require.NotNil(t, attached.DatasetID)
	require.Equal(t, datasetID, *attached.DatasetID)

	_, err = env.service.Approve(actorContext(admin), req.ID, admin, "accepted")
	require.NoError(t, err)

	msgs := env.publisher.messages()
	require.Len(t, msgs, 1)
	require.Equal(t, catalogservices.TopicDatasetIndex, msgs[0].Topic)
	require.Equal(t, catalogservices.IndexIntentEventID(req.ID), msgs[0].EventID)
	payloadID, err := catalogservices.ParseIndexIntent(msgs[0].Payload)
	require.NoError(t, err)
	require.Equal(t, datasetID, payloadID)
}

func TestApprovalService_ApproveUploadWithoutDataset_NoIntent(t *testing.T) {
	env := newTestEnv(t)
	requester := uuid.New()
	admin := uuid.New()
	env.admins[admin] = true

	req, err := env.service.Create(actorContext(requester), CreateRequestInput{Kind: request.NewDatasetUpload, Justification: "new flows"})
	require.NoError(t, err)

	approved, err := env.service.Approve(actorContext(admin), req.ID, admin, "")
	require.NoError(t, err)
	require.Equal(t, request.StatusApproved, approved.Status)
	require.Empty(t, env.publisher.messages())
}

func TestApprovalService_AttachDataset_Rules(t *testing.T) {
	env := newTestEnv(t)
	requester := uuid.New()
	datasetID := env.seedDataset(t)

	req, err := env.service.Create(actorContext(requester), CreateRequestInput{Kind: request.NewDatasetUpload, Justification: "new flows"})
	require.NoError(t, err)

	stranger := uuid.New()
	_, err = env.service.AttachDataset(actorContext(stranger), req.ID, datasetID, stranger)
	var authzErr *request.AuthorizationError
	require.ErrorAs(t, err, &authzErr)

	missing := uuid.New()
	_, err = env.service.AttachDataset(actorContext(requester), req.ID, missing, requester)
	require.ErrorIs(t, err, dataset.ErrNotFound)

	_, err = env.service.AttachDataset(actorContext(requester), req.ID, datasetID, requester)
	require.NoError(t, err)

	other := env.seedDataset(t)
	_, err = env.service.AttachDataset(actorContext(requester), req.ID, other, requester)
	require.Error(t, err)
}

func TestApprovalService_Reject_NonAdminDenied(t *testing.T) {
	env := newTestEnv(t)
	requester := uuid.New()
	datasetID := env.seedDataset(t)

	req, err := env.service.Create(actorContext(requester), CreateRequestInput{Kind: request.FullDataAccess, DatasetID: &datasetID, Justification: "research"})
	require.NoError(t, err)

	outsider := uuid.New()
	_, err = env.service.Reject(actorContext(outsider), req.ID, outsider, "")
	var authzErr *request.AuthorizationError
	require.ErrorAs(t, err, &authzErr)
	require.Empty(t, env.publisher.messages())
}

func TestApprovalService_Cancel_OnlyRequester(t *testing.T) {
	env := newTestEnv(t)
	requester := uuid.New()
	datasetID := env.seedDataset(t)

	req, err := env.service.Create(actorContext(requester), CreateRequestInput{Kind: request.FullDataAccess, DatasetID: &datasetID, Justification: "research"})
	require.NoError(t, err)

	stranger := uuid.New()
	_, err = env.service.Cancel(actorContext(stranger), req.ID, stranger)
	var authzErr *request.AuthorizationError
	require.ErrorAs(t, err, &authzErr)

	canceled, err := env.service.Cancel(actorContext(requester), req.ID, requester)
	require.NoError(t, err)
	require.Equal(t, request.StatusCanceled, canceled.Status)
	require.Nil(t, canceled.AdminID)
}

func TestApprovalService_SecondDecisionSeesGuardError(t *testing.T) {
	env := newTestEnv(t)
	requester := uuid.New()
	admin := uuid.New()
	env.admins[admin] = true
	datasetID := env.seedDataset(t)

	req, err := env.service.Create(actorContext(requester), CreateRequestInput{Kind: request.FullDataAccess, DatasetID: &datasetID, Justification: "research"})
	require.NoError(t, err)

	_, err = env.service.Approve(actorContext(admin), req.ID, admin, "")
	require.NoError(t, err)

	_, err = env.service.Reject(actorContext(admin), req.ID, admin, "")
	var guardErr *request.GuardError
	require.ErrorAs(t, err, &guardErr)
	require.Equal(t, request.StatusApproved, guardErr.Status)
}

func TestApprovalService_ConcurrentDecisions_OneWinner(t *testing.T) {
	env := newTestEnv(t)
	requester := uuid.New()
	admin := uuid.New()
	env.admins[admin] = true
	datasetID := env.seedDataset(t)

	req, err := env.service.Create(actorContext(requester), CreateRequestInput{Kind: request.FullDataAccess, DatasetID: &datasetID, Justification: "research"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = env.service.Approve(actorContext(admin), req.ID, admin, "")
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = env.service.Reject(actorContext(admin), req.ID, admin, "")
	}()
	wg.Wait()

	var guardErrs, successes int
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		var guardErr *request.GuardError
		require.ErrorAs(t, err, &guardErr)
		guardErrs++
	}
	require.Equal(t, 1, successes)
	require.Equal(t, 1, guardErrs)

	final, err := env.requests.GetByID(context.Background(), req.ID)
	require.NoError(t, err)
	require.True(t, final.Status.Terminal())

	entries := env.entries.forRequest(req.ID)
	require.Len(t, entries, 2)
	require.NoError(t, ledger.Verify(entries))
}

func TestApprovalService_LedgerForRequest_Visibility(t *testing.T) {
	env := newTestEnv(t)
	requester := uuid.New()
	datasetID := env.seedDataset(t)

	req, err := env.service.Create(actorContext(requester), CreateRequestInput{Kind: request.FullDataAccess, DatasetID: &datasetID, Justification: "research"})
	require.NoError(t, err)

	entries, err := env.service.LedgerForRequest(actorContext(requester), req.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	_, err = env.service.LedgerForRequest(actorContext(uuid.New()), req.ID)
	var authzErr *request.AuthorizationError
	require.ErrorAs(t, err, &authzErr)

	admin := uuid.New()
	env.admins[admin] = true
	_, err = env.service.LedgerForRequest(actorContext(admin), req.ID)
	require.NoError(t, err)
}

func TestApprovalService_ListPending(t *testing.T) {
	env := newTestEnv(t)
	admin := uuid.New()
	env.admins[admin] = true
	datasetID := env.seedDataset(t)

	req, err := env.service.Create(actorContext(uuid.New()), CreateRequestInput{Kind: request.FullDataAccess, DatasetID: &datasetID, Justification: "research"})
	require.NoError(t, err)
	_, err = env.service.Create(actorContext(uuid.New()), CreateRequestInput{Kind: request.NewDatasetUpload, Justification: "new flows"})
	require.NoError(t, err)
	_, err = env.service.Approve(actorContext(admin), req.ID, admin, "")
	require.NoError(t, err)

	pending, count, err := env.service.ListPending(actorContext(admin), 10, 0)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
	require.Len(t, pending, 1)
	require.Equal(t, request.NewDatasetUpload, pending[0].Kind)
}

func TestAccessLifecycle(t *testing.T) {
	env := newTestEnv(t)
	requester := uuid.New()
	admin := uuid.New()
	env.admins[admin] = true
	datasetID := env.seedDataset(t)
	ctx := actorContext(requester)

	status, err := env.access.Evaluate(ctx, requester, uuid.New())
	require.NoError(t, err)
	require.EqualValues(t, "not_available", status)

	status, err = env.access.Evaluate(ctx, requester, datasetID)
	require.NoError(t, err)
	require.EqualValues(t, "not_requested", status)

	req, err := env.service.Create(ctx, CreateRequestInput{Kind: request.FullDataAccess, DatasetID: &datasetID, Justification: "research"})
	require.NoError(t, err)

	status, err = env.access.Evaluate(ctx, requester, datasetID)
	require.NoError(t, err)
	require.EqualValues(t, "requested", status)

	_, err = env.service.Approve(actorContext(admin), req.ID, admin, "ok")
	require.NoError(t, err)

	status, err = env.access.Evaluate(ctx, requester, datasetID)
	require.NoError(t, err)
	require.EqualValues(t, "approved", status)

	status, err = env.access.Evaluate(actorContext(admin), admin, datasetID)
	require.NoError(t, err)
	require.EqualValues(t, "approved", status)
}

// In-memory ports.

type memRequestRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]request.ApprovalRequest
}

func newMemRequestRepo() *memRequestRepo {
	return &memRequestRepo{items: map[uuid.UUID]request.ApprovalRequest{}}
}

func (r *memRequestRepo) Count(ctx context.Context, params *request.FindParams) (int64, error) {
	list, err := r.GetPaginated(ctx, &request.FindParams{Status: params.Status, Kind: params.Kind})
	if err != nil {
		return 0, err
	}
	return int64(len(list)), nil
}

func (r *memRequestRepo) GetPaginated(ctx context.Context, params *request.FindParams) ([]*request.ApprovalRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*request.ApprovalRequest
	for _, item := range r.items {
		if params != nil && params.Status != nil && item.Status != *params.Status {
			continue
		}
		if params != nil && params.Kind != nil && item.Kind != *params.Kind {
			continue
		}
		copied := item
		out = append(out, &copied)
	}
	return out, nil
}

func (r *memRequestRepo) GetByID(ctx context.Context, id uuid.UUID) (*request.ApprovalRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return nil, request.ErrNotFound
	}
	copied := item
	return &copied, nil
}

func (r *memRequestRepo) FindByRequesterAndDataset(ctx context.Context, requesterID, datasetID uuid.UUID) ([]*request.ApprovalRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*request.ApprovalRequest
	for _, item := range r.items {
		if item.RequesterID != requesterID || item.DatasetID == nil || *item.DatasetID != datasetID {
			continue
		}
		copied := item
		out = append(out, &copied)
	}
	return out, nil
}

func (r *memRequestRepo) Create(ctx context.Context, req *request.ApprovalRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[req.ID] = *req
	return nil
}

func (r *memRequestRepo) Save(ctx context.Context, req *request.ApprovalRequest, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.items[req.ID]
	if !ok {
		return request.ErrNotFound
	}
	if stored.Version != expectedVersion {
		return request.ErrVersionConflict
	}
	updated := *req
	updated.Version = expectedVersion + 1
	r.items[req.ID] = updated
	req.Version = updated.Version
	return nil
}

type memLedgerRepo struct {
	mu      sync.Mutex
	entries map[uuid.UUID][]*ledger.Entry
}

func newMemLedgerRepo() *memLedgerRepo {
	return &memLedgerRepo{entries: map[uuid.UUID][]*ledger.Entry{}}
}

func (r *memLedgerRepo) Append(ctx context.Context, entry *ledger.Entry) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seq := int64(len(r.entries[entry.RequestID]))
	copied := *entry
	copied.Sequence = seq
	r.entries[entry.RequestID] = append(r.entries[entry.RequestID], &copied)
	entry.Sequence = seq
	return seq, nil
}

func (r *memLedgerRepo) ForRequest(ctx context.Context, requestID uuid.UUID) ([]*ledger.Entry, error) {
	return r.forRequest(requestID), nil
}

func (r *memLedgerRepo) forRequest(requestID uuid.UUID) []*ledger.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*ledger.Entry(nil), r.entries[requestID]...)
}

type memDatasetRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*dataset.Dataset
}

func newMemDatasetRepo() *memDatasetRepo {
	return &memDatasetRepo{items: map[uuid.UUID]*dataset.Dataset{}}
}

func (r *memDatasetRepo) Count(ctx context.Context, params *dataset.FindParams) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.items)), nil
}

func (r *memDatasetRepo) GetPaginated(ctx context.Context, params *dataset.FindParams) ([]*dataset.Dataset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*dataset.Dataset
	for _, d := range r.items {
		out = append(out, d)
	}
	return out, nil
}

func (r *memDatasetRepo) GetByID(ctx context.Context, id uuid.UUID) (*dataset.Dataset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.items[id]
	if !ok {
		return nil, dataset.ErrNotFound
	}
	return d, nil
}

func (r *memDatasetRepo) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.items[id]
	return ok, nil
}

func (r *memDatasetRepo) Create(ctx context.Context, d *dataset.Dataset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[d.ID] = d
	return nil
}

func (r *memDatasetRepo) Update(ctx context.Context, d *dataset.Dataset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[d.ID]; !ok {
		return dataset.ErrNotFound
	}
	r.items[d.ID] = d
	return nil
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []outbox.Message
}

func (p *fakePublisher) Enqueue(ctx context.Context, tx repo.Tx, table pgx.Identifier, msg outbox.Message) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return int64(len(p.msgs)), nil
}

func (p *fakePublisher) messages() []outbox.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]outbox.Message(nil), p.msgs...)
}

type noopTx struct{}

func (noopTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (noopTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}

func (noopTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}

func (noopTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	return nil
}

func (noopTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
