package dtos

import (
	"github.com/google/uuid"

	"github.com/quarry-data/quarry/pkg/constants"
)

type CreateRequestDTO struct {
	Kind          string     `json:"kind" validate:"required,oneof=full_data_access new_dataset_upload"`
	DatasetID     *uuid.UUID `json:"dataset_id" validate:"omitempty"`
	Justification string     `json:"justification" validate:"required,max=4000"`
}

func (d *CreateRequestDTO) Ok() error {
	return constants.Validate.Struct(d)
}

type AttachDatasetDTO struct {
	DatasetID uuid.UUID `json:"dataset_id" validate:"required"`
}

func (d *AttachDatasetDTO) Ok() error {
	return constants.Validate.Struct(d)
}

type DecisionDTO struct {
	Comments string `json:"comments" validate:"max=2000"`
}

func (d *DecisionDTO) Ok() error {
	return constants.Validate.Struct(d)
}
