package persistence

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/quarry-data/quarry/modules/catalog/domain/entities/dataset"
	"github.com/quarry-data/quarry/modules/catalog/infrastructure/persistence/models"
)

func toDBDataset(d *dataset.Dataset) (*models.Dataset, error) {
	var metadata []byte
	if len(d.Metadata) > 0 {
		var err error
		metadata, err = json.Marshal(d.Metadata)
		if err != nil {
			return nil, err
		}
	}
	row := &models.Dataset{
		ID:          d.ID.String(),
		FileName:    d.FileName,
		Checksum:    d.Checksum,
		SizeBytes:   d.SizeBytes,
		RowCount:    d.RowCount,
		Description: d.Description,
		PeriodStart: d.PeriodStart,
		PeriodEnd:   d.PeriodEnd,
		Metadata:    metadata,
		UploaderID:  d.UploaderID.String(),
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
	if d.Region != "" {
		region := d.Region
		row.Region = &region
	}
	return row, nil
}

func toDomainDataset(row *models.Dataset) (*dataset.Dataset, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return nil, err
	}
	uploaderID, err := uuid.Parse(row.UploaderID)
	if err != nil {
		return nil, err
	}
	var metadata map[string]string
	if len(row.Metadata) > 0 {
		if err := json.Unmarshal(row.Metadata, &metadata); err != nil {
			return nil, err
		}
	}
	d := &dataset.Dataset{
		ID:          id,
		FileName:    row.FileName,
		Checksum:    row.Checksum,
		SizeBytes:   row.SizeBytes,
		RowCount:    row.RowCount,
		Description: row.Description,
		PeriodStart: row.PeriodStart,
		PeriodEnd:   row.PeriodEnd,
		Metadata:    metadata,
		UploaderID:  uploaderID,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
	if row.Region != nil {
		d.Region = *row.Region
	}
	return d, nil
}
