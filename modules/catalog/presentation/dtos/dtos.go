package dtos

import (
	"time"

	"github.com/quarry-data/quarry/pkg/constants"
)

type CreateDatasetDTO struct {
	FileName    string            `json:"file_name" validate:"required,max=512"`
	Checksum    string            `json:"checksum" validate:"required,max=128"`
	SizeBytes   int64             `json:"size_bytes" validate:"gte=0"`
	RowCount    int64             `json:"row_count" validate:"gte=0"`
	Description string            `json:"description" validate:"max=4000"`
	Region      string            `json:"region" validate:"max=128"`
	PeriodStart *time.Time        `json:"period_start"`
	PeriodEnd   *time.Time        `json:"period_end"`
	Metadata    map[string]string `json:"metadata"`
}

func (d *CreateDatasetDTO) Ok() error {
	return constants.Validate.Struct(d)
}
