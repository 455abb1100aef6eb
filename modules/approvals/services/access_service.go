package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/quarry-data/quarry/modules/approvals/domain/access"
	"github.com/quarry-data/quarry/modules/approvals/domain/entities/request"
	"github.com/quarry-data/quarry/modules/catalog/domain/entities/dataset"
)

// AccessService answers "what access does this user hold on this dataset"
// by loading a snapshot and delegating to the pure evaluator.
type AccessService struct {
	requests request.Repository
	datasets dataset.Repository
}

func NewAccessService(requests request.Repository, datasets dataset.Repository) *AccessService {
	return &AccessService{
		requests: requests,
		datasets: datasets,
	}
}

func (s *AccessService) Evaluate(ctx context.Context, requesterID, datasetID uuid.UUID) (access.Status, error) {
	exists, err := s.datasets.Exists(ctx, datasetID)
	if err != nil {
		return "", err
	}
	if !exists {
		return access.NotAvailable, nil
	}

	admin, err := isAdministrator(ctx, requesterID)
	if err != nil {
		return "", err
	}

	requests, err := s.requests.FindByRequesterAndDataset(ctx, requesterID, datasetID)
	if err != nil {
		return "", err
	}
	return access.Evaluate(requesterID, exists, admin, requests), nil
}
