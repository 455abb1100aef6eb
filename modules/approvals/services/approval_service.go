package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/quarry-data/quarry/modules/approvals/domain/entities/ledger"
	"github.com/quarry-data/quarry/modules/approvals/domain/entities/request"
	"github.com/quarry-data/quarry/modules/catalog/domain/entities/dataset"
	catalogservices "github.com/quarry-data/quarry/modules/catalog/services"
	"github.com/quarry-data/quarry/pkg/composables"
	"github.com/quarry-data/quarry/pkg/eventbus"
	"github.com/quarry-data/quarry/pkg/outbox"
	"github.com/quarry-data/quarry/pkg/serrors"
)

var (
	ErrDuplicateRequest = serrors.NewError("APPROVAL_DUPLICATE_REQUEST", "an open request for this dataset already exists", "approvals.errors.duplicate")
	ErrLedgerCorrupt    = serrors.NewError("APPROVAL_LEDGER_CORRUPT", "approval ledger failed verification", "approvals.errors.ledger_corrupt")
)

type CreateRequestInput struct {
	Kind          request.Kind
	DatasetID     *uuid.UUID
	Justification string
}

// ApprovalService drives the request lifecycle. Every state change commits
// the request row, its ledger entry and any index intent in one transaction;
// search indexing itself happens after commit via the outbox relay.
type ApprovalService struct {
	requests       request.Repository
	entries        ledger.Repository
	datasets       dataset.Repository
	publisher      outbox.Publisher
	outboxTable    pgx.Identifier
	eventPublisher eventbus.EventBus
	logger         *logrus.Entry
}

func NewApprovalService(
	requests request.Repository,
	entries ledger.Repository,
	datasets dataset.Repository,
	publisher outbox.Publisher,
	outboxTable pgx.Identifier,
	eventPublisher eventbus.EventBus,
	logger *logrus.Logger,
) *ApprovalService {
	return &ApprovalService{
		requests:       requests,
		entries:        entries,
		datasets:       datasets,
		publisher:      publisher,
		outboxTable:    outboxTable,
		eventPublisher: eventPublisher,
		logger:         logger.WithField("component", "approvals.service"),
	}
}

// Create opens a pending request and writes its birth ledger entry in the
// same transaction. FullDataAccess requests require the dataset to exist and
// the requester to have no open request for it.
func (s *ApprovalService) Create(ctx context.Context, input CreateRequestInput) (*request.ApprovalRequest, error) {
	actorID, err := composables.UseActorID(ctx)
	if err != nil {
		return nil, err
	}
	if err := authorizeApprovals(ctx, "create"); err != nil {
		return nil, err
	}

	req, err := request.New(input.Kind, actorID, input.DatasetID, input.Justification, time.Now())
	if err != nil {
		return nil, err
	}

	err = composables.InTx(ctx, func(txCtx context.Context) error {
		if req.Kind == request.FullDataAccess {
			exists, err := s.datasets.Exists(txCtx, *req.DatasetID)
			if err != nil {
				return err
			}
			if !exists {
				return dataset.ErrNotFound
			}
			existing, err := s.requests.FindByRequesterAndDataset(txCtx, req.RequesterID, *req.DatasetID)
			if err != nil {
				return err
			}
			for _, prior := range existing {
				if prior.Kind == request.FullDataAccess &&
					(prior.Status == request.StatusPending || prior.Status == request.StatusApproved) {
					return ErrDuplicateRequest
				}
			}
		}
		if err := s.requests.Create(txCtx, req); err != nil {
			return err
		}
		_, err := s.entries.Append(txCtx, ledger.Initial(req))
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"request_id": req.ID,
		"kind":       req.Kind,
	}).Info("approval request created")
	s.eventPublisher.Publish(&request.CreatedEvent{Result: *req})
	return req, nil
}

func (s *ApprovalService) Approve(ctx context.Context, requestID, adminID uuid.UUID, comments string) (*request.ApprovalRequest, error) {
	req, err := s.decide(ctx, requestID, request.TriggerApprove, adminID, comments)
	if err != nil {
		return nil, err
	}
	s.eventPublisher.Publish(&request.ApprovedEvent{AdminID: adminID, Result: *req})
	return req, nil
}

func (s *ApprovalService) Reject(ctx context.Context, requestID, adminID uuid.UUID, comments string) (*request.ApprovalRequest, error) {
	req, err := s.decide(ctx, requestID, request.TriggerReject, adminID, comments)
	if err != nil {
		return nil, err
	}
	s.eventPublisher.Publish(&request.RejectedEvent{AdminID: adminID, Result: *req})
	return req, nil
}

func (s *ApprovalService) Cancel(ctx context.Context, requestID, requesterID uuid.UUID) (*request.ApprovalRequest, error) {
	req, err := s.decide(ctx, requestID, request.TriggerCancel, requesterID, "")
	if err != nil {
		return nil, err
	}
	s.eventPublisher.Publish(&request.CanceledEvent{Result: *req})
	return req, nil
}

// AttachDataset links an ingested dataset to a pending upload request. Only
// the requester may attach, the dataset must exist, and the link is written
// once; the approval later indexes exactly this dataset.
func (s *ApprovalService) AttachDataset(ctx context.Context, requestID, datasetID, actorID uuid.UUID) (*request.ApprovalRequest, error) {
	var updated *request.ApprovalRequest
	err := composables.InTx(ctx, func(txCtx context.Context) error {
		exists, err := s.datasets.Exists(txCtx, datasetID)
		if err != nil {
			return err
		}
		if !exists {
			return dataset.ErrNotFound
		}
		for {
			req, err := s.requests.GetByID(txCtx, requestID)
			if err != nil {
				return err
			}
			if actorID != req.RequesterID {
				return &request.AuthorizationError{ActorID: actorID, Trigger: request.TriggerAttachDataset}
			}
			if err := req.AttachDataset(datasetID); err != nil {
				return err
			}
			if err := s.requests.Save(txCtx, req, req.Version); err != nil {
				if errors.Is(err, request.ErrVersionConflict) {
					continue
				}
				return err
			}
			updated = req
			return nil
		}
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"request_id": updated.ID,
		"dataset_id": datasetID,
	}).Info("dataset attached to upload request")
	return updated, nil
}

// decide fires one trigger under optimistic concurrency. A version conflict
// means another writer moved the request first; the row is re-read and the
// guard re-evaluated, so of two concurrent decisions exactly one wins and
// the loser sees a GuardError against the now-terminal state.
func (s *ApprovalService) decide(ctx context.Context, requestID uuid.UUID, trigger request.Trigger, actorID uuid.UUID, comment string) (*request.ApprovalRequest, error) {
	admin, err := isAdministrator(ctx, actorID)
	if err != nil {
		return nil, err
	}
	actor := request.Actor{ID: actorID, Admin: admin}

	var updated *request.ApprovalRequest
	err = composables.InTx(ctx, func(txCtx context.Context) error {
		for {
			req, err := s.requests.GetByID(txCtx, requestID)
			if err != nil {
				return err
			}
			tr, err := request.Apply(req, trigger, actor, comment, time.Now())
			if err != nil {
				return err
			}
			if err := s.requests.Save(txCtx, req, req.Version); err != nil {
				if errors.Is(err, request.ErrVersionConflict) {
					continue
				}
				return err
			}
			if _, err := s.entries.Append(txCtx, ledger.FromTransition(req.ID, tr)); err != nil {
				return err
			}
			if trigger == request.TriggerApprove && req.Kind == request.NewDatasetUpload && req.DatasetID != nil {
				if err := s.enqueueIndexIntent(txCtx, *req.DatasetID, req.ID); err != nil {
					return err
				}
			}
			updated = req
			return nil
		}
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"request_id": updated.ID,
		"trigger":    trigger,
		"status":     updated.Status,
	}).Info("approval request transitioned")
	return updated, nil
}

// enqueueIndexIntent stores the re-index intent in the caller's transaction.
// The event id derives from the request id, so a retried decision collapses
// onto the same outbox row.
func (s *ApprovalService) enqueueIndexIntent(ctx context.Context, datasetID, sourceID uuid.UUID) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	_, err = s.publisher.Enqueue(ctx, tx, s.outboxTable, outbox.Message{
		Topic:   catalogservices.TopicDatasetIndex,
		EventID: catalogservices.IndexIntentEventID(sourceID),
		Payload: catalogservices.IndexIntentPayload(datasetID),
	})
	return err
}

func (s *ApprovalService) ListPending(ctx context.Context, limit, offset int) ([]*request.ApprovalRequest, int64, error) {
	if err := authorizeApprovals(ctx, "list"); err != nil {
		return nil, 0, err
	}

	status := request.StatusPending
	params := &request.FindParams{
		Limit:  limit,
		Offset: offset,
		Status: &status,
		SortBy: request.SortBy{Field: request.FieldRequestedAt, Ascending: true},
	}

	requests, err := s.requests.GetPaginated(ctx, params)
	if err != nil {
		return nil, 0, err
	}
	count, err := s.requests.Count(ctx, params)
	if err != nil {
		return nil, 0, err
	}
	return requests, count, nil
}

// LedgerForRequest returns the full history of one request. Visible to the
// requester and to administrators.
func (s *ApprovalService) LedgerForRequest(ctx context.Context, requestID uuid.UUID) ([]*ledger.Entry, error) {
	actorID, err := composables.UseActorID(ctx)
	if err != nil {
		return nil, err
	}

	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if actorID != req.RequesterID {
		admin, err := isAdministrator(ctx, actorID)
		if err != nil {
			return nil, err
		}
		if !admin {
			return nil, &request.AuthorizationError{ActorID: actorID, Trigger: request.Trigger("inspect")}
		}
	}

	entries, err := s.entries.ForRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := ledger.Verify(entries); err != nil {
		s.logger.WithField("request_id", requestID).WithError(err).Error("ledger verification failed")
		return nil, ErrLedgerCorrupt
	}
	return entries, nil
}
