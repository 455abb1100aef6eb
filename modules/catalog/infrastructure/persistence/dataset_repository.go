package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/quarry-data/quarry/modules/catalog/domain/entities/dataset"
	"github.com/quarry-data/quarry/modules/catalog/infrastructure/persistence/models"
	"github.com/quarry-data/quarry/pkg/composables"
	"github.com/quarry-data/quarry/pkg/repo"
)

const datasetColumns = `id, file_name, checksum, size_bytes, row_count, description, region, period_start, period_end, metadata, uploader_id, created_at, updated_at`

type DatasetRepository struct{}

func NewDatasetRepository() dataset.Repository {
	return &DatasetRepository{}
}

func (r *DatasetRepository) Count(ctx context.Context, params *dataset.FindParams) (int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}
	where, args := buildDatasetFilters(params)

	var count int64
	if err := tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM datasets
		WHERE `+strings.Join(where, " AND "),
		args...,
	).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *DatasetRepository) GetPaginated(ctx context.Context, params *dataset.FindParams) ([]*dataset.Dataset, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	where, args := buildDatasetFilters(params)
	query := `
		SELECT ` + datasetColumns + `
		FROM datasets
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_at DESC`
	if params != nil {
		query += " " + repo.FormatLimitOffset(params.Limit, params.Offset)
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*dataset.Dataset
	for rows.Next() {
		var row models.Dataset
		if err := scanDataset(rows, &row); err != nil {
			return nil, err
		}
		d, err := toDomainDataset(&row)
		if err != nil {
			return nil, err
		}
		results = append(results, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (r *DatasetRepository) GetByID(ctx context.Context, id uuid.UUID) (*dataset.Dataset, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	var row models.Dataset
	err = scanDataset(tx.QueryRow(ctx, `
		SELECT `+datasetColumns+`
		FROM datasets
		WHERE id = $1`,
		id,
	), &row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, dataset.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return toDomainDataset(&row)
}

func (r *DatasetRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return false, err
	}

	var exists bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM datasets WHERE id = $1)`,
		id,
	).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *DatasetRepository) Create(ctx context.Context, d *dataset.Dataset) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	row, err := toDBDataset(d)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO datasets (`+datasetColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		row.ID, row.FileName, row.Checksum, row.SizeBytes, row.RowCount,
		row.Description, row.Region, row.PeriodStart, row.PeriodEnd,
		row.Metadata, row.UploaderID, row.CreatedAt, row.UpdatedAt,
	)
	return err
}

func (r *DatasetRepository) Update(ctx context.Context, d *dataset.Dataset) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	row, err := toDBDataset(d)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `
		UPDATE datasets
		SET file_name = $1,
		    checksum = $2,
		    size_bytes = $3,
		    row_count = $4,
		    description = $5,
		    region = $6,
		    period_start = $7,
		    period_end = $8,
		    metadata = $9,
		    updated_at = now()
		WHERE id = $10`,
		row.FileName, row.Checksum, row.SizeBytes, row.RowCount,
		row.Description, row.Region, row.PeriodStart, row.PeriodEnd,
		row.Metadata, row.ID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return dataset.ErrNotFound
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanDataset(row scannable, dst *models.Dataset) error {
	return row.Scan(
		&dst.ID, &dst.FileName, &dst.Checksum, &dst.SizeBytes, &dst.RowCount,
		&dst.Description, &dst.Region, &dst.PeriodStart, &dst.PeriodEnd,
		&dst.Metadata, &dst.UploaderID, &dst.CreatedAt, &dst.UpdatedAt,
	)
}

func buildDatasetFilters(params *dataset.FindParams) ([]string, []interface{}) {
	where := []string{"1 = 1"}
	args := []interface{}{}
	if params == nil {
		return where, args
	}

	if params.Region != nil {
		where = append(where, fmt.Sprintf("region = $%d", len(args)+1))
		args = append(args, *params.Region)
	}
	return where, args
}
