package request

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/quarry-data/quarry/pkg/serrors"
)

// Kind distinguishes what the requester is asking for: access to an existing
// dataset, or permission to contribute a new one.
type Kind string

const (
	FullDataAccess   Kind = "full_data_access"
	NewDatasetUpload Kind = "new_dataset_upload"
)

func (k Kind) IsValid() bool {
	return k == FullDataAccess || k == NewDatasetUpload
}

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusCanceled Status = "canceled"
)

// Terminal reports whether no further transition may leave this status.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusCanceled
}

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusCanceled:
		return true
	}
	return false
}

// ApprovalRequest is a single approval case. DatasetID is set at creation
// for FullDataAccess requests and attached once ingestion finishes for
// NewDatasetUpload requests. Version supports optimistic concurrency: every
// successful state change increments it, and writers must name the version
// they read.
type ApprovalRequest struct {
	ID            uuid.UUID
	Kind          Kind
	RequesterID   uuid.UUID
	DatasetID     *uuid.UUID
	Justification string
	Status        Status
	AdminID       *uuid.UUID
	AdminComments *string
	RequestedAt   time.Time
	ProcessedAt   *time.Time
	Version       int64
}

var (
	ErrNotFound        = serrors.NewError("APPROVAL_REQUEST_NOT_FOUND", "approval request not found", "approvals.errors.not_found")
	ErrVersionConflict = serrors.NewError("APPROVAL_VERSION_CONFLICT", "approval request was modified concurrently", "approvals.errors.version_conflict")
)

// New builds a pending request. FullDataAccess requires a dataset at
// creation; a NewDatasetUpload starts without one and gets it through
// AttachDataset once ingestion assigns an id. Every request must say why it
// is being made.
func New(kind Kind, requesterID uuid.UUID, datasetID *uuid.UUID, justification string, now time.Time) (*ApprovalRequest, error) {
	if !kind.IsValid() {
		return nil, errors.Errorf("unknown request kind %q", kind)
	}
	if requesterID == uuid.Nil {
		return nil, errors.New("requester id is required")
	}
	if strings.TrimSpace(justification) == "" {
		return nil, errors.New("justification is required")
	}
	switch kind {
	case FullDataAccess:
		if datasetID == nil || *datasetID == uuid.Nil {
			return nil, errors.New("full data access requests require a dataset id")
		}
	case NewDatasetUpload:
		if datasetID != nil {
			return nil, errors.New("new dataset upload requests must not reference a dataset at creation")
		}
	}
	return &ApprovalRequest{
		ID:            uuid.New(),
		Kind:          kind,
		RequesterID:   requesterID,
		DatasetID:     datasetID,
		Justification: justification,
		Status:        StatusPending,
		RequestedAt:   now.UTC(),
		Version:       0,
	}, nil
}

// AttachDataset links the ingested dataset to a pending upload request. The
// link is written once; FullDataAccess requests carry their dataset from
// creation and never go through here.
func (r *ApprovalRequest) AttachDataset(datasetID uuid.UUID) error {
	if r.Kind != NewDatasetUpload {
		return errors.New("only new dataset upload requests accept a dataset attachment")
	}
	if r.Status != StatusPending {
		return &GuardError{Status: r.Status, Trigger: TriggerAttachDataset}
	}
	if datasetID == uuid.Nil {
		return errors.New("dataset id is required")
	}
	if r.DatasetID != nil {
		return errors.New("a dataset is already attached to this request")
	}
	r.DatasetID = &datasetID
	return nil
}

type Field string

const (
	FieldRequestedAt Field = "requested_at"
	FieldProcessedAt Field = "processed_at"
	FieldStatus      Field = "status"
)

type SortBy struct {
	Field     Field
	Ascending bool
}

type FindParams struct {
	Limit       int
	Offset      int
	Status      *Status
	Kind        *Kind
	RequesterID *uuid.UUID
	DatasetID   *uuid.UUID
	SortBy      SortBy
}

type Repository interface {
	Count(ctx context.Context, params *FindParams) (int64, error)
	GetPaginated(ctx context.Context, params *FindParams) ([]*ApprovalRequest, error)
	GetByID(ctx context.Context, id uuid.UUID) (*ApprovalRequest, error)
	// FindByRequesterAndDataset returns every request the given user has made
	// for the given dataset, newest first.
	FindByRequesterAndDataset(ctx context.Context, requesterID, datasetID uuid.UUID) ([]*ApprovalRequest, error)
	Create(ctx context.Context, req *ApprovalRequest) error
	// Save persists req only if the stored row still carries expectedVersion,
	// returning ErrVersionConflict otherwise. On success req.Version is the
	// incremented version.
	Save(ctx context.Context, req *ApprovalRequest, expectedVersion int64) error
}
