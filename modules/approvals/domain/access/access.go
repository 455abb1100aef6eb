package access

import (
	"github.com/google/uuid"

	"github.com/quarry-data/quarry/modules/approvals/domain/entities/request"
)

// Status is the effective access a user has to a dataset, derived purely
// from approval history.
type Status string

const (
	Approved     Status = "approved"
	Requested    Status = "requested"
	NotRequested Status = "not_requested"
	NotAvailable Status = "not_available"
)

// Evaluate derives the requester's access to a dataset. It is a pure
// function of its inputs. Administrators always hold access to existing
// datasets; otherwise an approved request wins over a pending one, and a
// history of only rejected or canceled requests counts as not requested.
func Evaluate(requesterID uuid.UUID, datasetExists, isAdmin bool, requests []*request.ApprovalRequest) Status {
	if !datasetExists {
		return NotAvailable
	}
	if isAdmin {
		return Approved
	}

	status := NotRequested
	for _, req := range requests {
		if req.Kind != request.FullDataAccess || req.RequesterID != requesterID {
			continue
		}
		switch req.Status {
		case request.StatusApproved:
			return Approved
		case request.StatusPending:
			status = Requested
		}
	}
	return status
}
