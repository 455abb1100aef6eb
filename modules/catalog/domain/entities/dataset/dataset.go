package dataset

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/quarry-data/quarry/pkg/serrors"
)

// Dataset is a cataloged data file. Region and the period bounds are
// optional descriptive fields used by search; Metadata carries free-form
// key/value pairs supplied at upload time.
type Dataset struct {
	ID          uuid.UUID
	FileName    string
	Checksum    string
	SizeBytes   int64
	RowCount    int64
	Description string
	Region      string
	PeriodStart *time.Time
	PeriodEnd   *time.Time
	Metadata    map[string]string
	UploaderID  uuid.UUID
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

var ErrNotFound = serrors.NewError("DATASET_NOT_FOUND", "dataset not found", "catalog.errors.not_found")

type CreateParams struct {
	FileName    string
	Checksum    string
	SizeBytes   int64
	RowCount    int64
	Description string
	Region      string
	PeriodStart *time.Time
	PeriodEnd   *time.Time
	Metadata    map[string]string
	UploaderID  uuid.UUID
}

func New(params CreateParams, now time.Time) (*Dataset, error) {
	if params.FileName == "" {
		return nil, errors.New("file name is required")
	}
	if params.Checksum == "" {
		return nil, errors.New("checksum is required")
	}
	if params.SizeBytes < 0 {
		return nil, errors.New("size must not be negative")
	}
	if params.UploaderID == uuid.Nil {
		return nil, errors.New("uploader id is required")
	}
	if params.PeriodStart != nil && params.PeriodEnd != nil && params.PeriodEnd.Before(*params.PeriodStart) {
		return nil, errors.New("period end precedes period start")
	}
	ts := now.UTC()
	return &Dataset{
		ID:          uuid.New(),
		FileName:    params.FileName,
		Checksum:    params.Checksum,
		SizeBytes:   params.SizeBytes,
		RowCount:    params.RowCount,
		Description: params.Description,
		Region:      params.Region,
		PeriodStart: params.PeriodStart,
		PeriodEnd:   params.PeriodEnd,
		Metadata:    params.Metadata,
		UploaderID:  params.UploaderID,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}, nil
}

type FindParams struct {
	Limit  int
	Offset int
	Region *string
}

type Repository interface {
	Count(ctx context.Context, params *FindParams) (int64, error)
	GetPaginated(ctx context.Context, params *FindParams) ([]*Dataset, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Dataset, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	Create(ctx context.Context, d *Dataset) error
	Update(ctx context.Context, d *Dataset) error
}
