package persistence

import (
	"github.com/google/uuid"

	"github.com/quarry-data/quarry/modules/approvals/domain/entities/ledger"
	"github.com/quarry-data/quarry/modules/approvals/domain/entities/request"
	"github.com/quarry-data/quarry/modules/approvals/infrastructure/persistence/models"
)

func toDBApprovalRequest(req *request.ApprovalRequest) *models.ApprovalRequest {
	row := &models.ApprovalRequest{
		ID:            req.ID.String(),
		Kind:          string(req.Kind),
		RequesterID:   req.RequesterID.String(),
		Justification: req.Justification,
		Status:        string(req.Status),
		AdminComments: req.AdminComments,
		RequestedAt:   req.RequestedAt,
		ProcessedAt:   req.ProcessedAt,
		Version:       req.Version,
	}
	if req.DatasetID != nil {
		s := req.DatasetID.String()
		row.DatasetID = &s
	}
	if req.AdminID != nil {
		s := req.AdminID.String()
		row.AdminID = &s
	}
	return row
}

func toDomainApprovalRequest(row *models.ApprovalRequest) (*request.ApprovalRequest, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return nil, err
	}
	requesterID, err := uuid.Parse(row.RequesterID)
	if err != nil {
		return nil, err
	}
	req := &request.ApprovalRequest{
		ID:            id,
		Kind:          request.Kind(row.Kind),
		RequesterID:   requesterID,
		Justification: row.Justification,
		Status:        request.Status(row.Status),
		AdminComments: row.AdminComments,
		RequestedAt:   row.RequestedAt,
		ProcessedAt:   row.ProcessedAt,
		Version:       row.Version,
	}
	if row.DatasetID != nil {
		datasetID, err := uuid.Parse(*row.DatasetID)
		if err != nil {
			return nil, err
		}
		req.DatasetID = &datasetID
	}
	if row.AdminID != nil {
		adminID, err := uuid.Parse(*row.AdminID)
		if err != nil {
			return nil, err
		}
		req.AdminID = &adminID
	}
	return req, nil
}

func toDomainLedgerEntry(row *models.LedgerEntry) (*ledger.Entry, error) {
	requestID, err := uuid.Parse(row.RequestID)
	if err != nil {
		return nil, err
	}
	actorID, err := uuid.Parse(row.ActorID)
	if err != nil {
		return nil, err
	}
	return &ledger.Entry{
		RequestID:  requestID,
		Sequence:   row.Sequence,
		FromStatus: request.Status(row.FromStatus),
		ToStatus:   request.Status(row.ToStatus),
		ActorID:    actorID,
		Comment:    row.Comment,
		OccurredAt: row.OccurredAt,
	}, nil
}
