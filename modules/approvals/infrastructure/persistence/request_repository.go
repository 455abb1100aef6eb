package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/quarry-data/quarry/modules/approvals/domain/entities/request"
	"github.com/quarry-data/quarry/modules/approvals/infrastructure/persistence/models"
	"github.com/quarry-data/quarry/pkg/composables"
	"github.com/quarry-data/quarry/pkg/repo"
)

const approvalRequestColumns = `id, kind, requester_id, dataset_id, justification, status, admin_id, admin_comments, requested_at, processed_at, version`

type ApprovalRequestRepository struct{}

func NewApprovalRequestRepository() request.Repository {
	return &ApprovalRequestRepository{}
}

func (r *ApprovalRequestRepository) Count(ctx context.Context, params *request.FindParams) (int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}
	where, args := buildRequestFilters(params)

	var count int64
	if err := tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM approval_requests
		WHERE `+strings.Join(where, " AND "),
		args...,
	).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *ApprovalRequestRepository) GetPaginated(ctx context.Context, params *request.FindParams) ([]*request.ApprovalRequest, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	where, args := buildRequestFilters(params)
	query := `
		SELECT ` + approvalRequestColumns + `
		FROM approval_requests
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY ` + requestOrderClause(params)
	if params != nil {
		query += " " + repo.FormatLimitOffset(params.Limit, params.Offset)
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRequests(rows)
}

func (r *ApprovalRequestRepository) GetByID(ctx context.Context, id uuid.UUID) (*request.ApprovalRequest, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	var row models.ApprovalRequest
	err = tx.QueryRow(ctx, `
		SELECT `+approvalRequestColumns+`
		FROM approval_requests
		WHERE id = $1`,
		id,
	).Scan(
		&row.ID, &row.Kind, &row.RequesterID, &row.DatasetID, &row.Justification, &row.Status,
		&row.AdminID, &row.AdminComments, &row.RequestedAt, &row.ProcessedAt, &row.Version,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, request.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return toDomainApprovalRequest(&row)
}

func (r *ApprovalRequestRepository) FindByRequesterAndDataset(ctx context.Context, requesterID, datasetID uuid.UUID) ([]*request.ApprovalRequest, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT `+approvalRequestColumns+`
		FROM approval_requests
		WHERE requester_id = $1 AND dataset_id = $2
		ORDER BY requested_at DESC`,
		requesterID, datasetID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRequests(rows)
}

func (r *ApprovalRequestRepository) Create(ctx context.Context, req *request.ApprovalRequest) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	row := toDBApprovalRequest(req)
	_, err = tx.Exec(ctx, `
		INSERT INTO approval_requests (`+approvalRequestColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		row.ID, row.Kind, row.RequesterID, row.DatasetID, row.Justification, row.Status,
		row.AdminID, row.AdminComments, row.RequestedAt, row.ProcessedAt, row.Version,
	)
	return err
}

// Save writes the mutated row only if nobody moved it since it was read.
// Zero affected rows means the version predicate failed, which the service
// layer resolves by reloading.
func (r *ApprovalRequestRepository) Save(ctx context.Context, req *request.ApprovalRequest, expectedVersion int64) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	row := toDBApprovalRequest(req)
	tag, err := tx.Exec(ctx, `
		UPDATE approval_requests
		SET status = $1,
		    dataset_id = $2,
		    admin_id = $3,
		    admin_comments = $4,
		    processed_at = $5,
		    version = version + 1
		WHERE id = $6 AND version = $7`,
		row.Status, row.DatasetID, row.AdminID, row.AdminComments, row.ProcessedAt,
		row.ID, expectedVersion,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return request.ErrVersionConflict
	}
	req.Version = expectedVersion + 1
	return nil
}

func scanRequests(rows pgx.Rows) ([]*request.ApprovalRequest, error) {
	var results []*request.ApprovalRequest
	for rows.Next() {
		var row models.ApprovalRequest
		if err := rows.Scan(
			&row.ID, &row.Kind, &row.RequesterID, &row.DatasetID, &row.Justification, &row.Status,
			&row.AdminID, &row.AdminComments, &row.RequestedAt, &row.ProcessedAt, &row.Version,
		); err != nil {
			return nil, err
		}
		req, err := toDomainApprovalRequest(&row)
		if err != nil {
			return nil, err
		}
		results = append(results, req)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func buildRequestFilters(params *request.FindParams) ([]string, []interface{}) {
	where := []string{"1 = 1"}
	args := []interface{}{}
	argPos := 1
	if params == nil {
		return where, args
	}

	if params.Status != nil {
		where = append(where, fmt.Sprintf("status = $%d", argPos))
		args = append(args, string(*params.Status))
		argPos++
	}
	if params.Kind != nil {
		where = append(where, fmt.Sprintf("kind = $%d", argPos))
		args = append(args, string(*params.Kind))
		argPos++
	}
	if params.RequesterID != nil {
		where = append(where, fmt.Sprintf("requester_id = $%d", argPos))
		args = append(args, *params.RequesterID)
		argPos++
	}
	if params.DatasetID != nil {
		where = append(where, fmt.Sprintf("dataset_id = $%d", argPos))
		args = append(args, *params.DatasetID)
	}
	return where, args
}

func requestOrderClause(params *request.FindParams) string {
	field := "requested_at"
	if params != nil {
		switch params.SortBy.Field {
		case request.FieldProcessedAt:
			field = "processed_at"
		case request.FieldStatus:
			field = "status"
		}
	}
	dir := "DESC"
	if params != nil && params.SortBy.Ascending {
		dir = "ASC"
	}
	return field + " " + dir
}
