package controllers

import (
	"errors"
	"net/http"
	"time"

	"github.com/quarry-data/quarry/modules/approvals/domain/entities/ledger"
	"github.com/quarry-data/quarry/modules/approvals/domain/entities/request"
	"github.com/quarry-data/quarry/pkg/composables"
	"github.com/quarry-data/quarry/pkg/httpapi"
	"github.com/quarry-data/quarry/pkg/serrors"
)

// writeApprovalError maps the service error taxonomy onto HTTP statuses:
// guard failures conflict with current state (409), authorization failures
// are forbidden (403), unknown records are 404 and everything else is an
// internal failure the client cannot repair.
func writeApprovalError(w http.ResponseWriter, err error) {
	var guardErr *request.GuardError
	if errors.As(err, &guardErr) {
		_ = httpapi.WriteError(w, http.StatusConflict, "APPROVAL_GUARD_FAILURE", guardErr.Error(), map[string]string{
			"status": string(guardErr.Status),
		})
		return
	}

	var authzErr *request.AuthorizationError
	if errors.As(err, &authzErr) {
		_ = httpapi.WriteError(w, http.StatusForbidden, "APPROVAL_FORBIDDEN", authzErr.Error(), nil)
		return
	}

	if errors.Is(err, composables.ErrNoActor) {
		_ = httpapi.WriteError(w, http.StatusUnauthorized, "MISSING_ACTOR", "missing identity header", nil)
		return
	}

	var base *serrors.Base
	if errors.As(err, &base) {
		switch base.Code {
		case "AUTHZ_FORBIDDEN":
			_ = httpapi.WriteError(w, http.StatusForbidden, base.Code, base.Message, nil)
		case "APPROVAL_REQUEST_NOT_FOUND", "DATASET_NOT_FOUND":
			_ = httpapi.WriteError(w, http.StatusNotFound, base.Code, base.Message, nil)
		case "APPROVAL_DUPLICATE_REQUEST", "APPROVAL_VERSION_CONFLICT":
			_ = httpapi.WriteError(w, http.StatusConflict, base.Code, base.Message, nil)
		default:
			_ = httpapi.WriteError(w, http.StatusInternalServerError, base.Code, base.Message, nil)
		}
		return
	}

	_ = httpapi.WriteError(w, http.StatusInternalServerError, "INTERNAL", "internal server error", nil)
}

func requestToJSON(req *request.ApprovalRequest) map[string]any {
	out := map[string]any{
		"id":            req.ID,
		"kind":          req.Kind,
		"requester_id":  req.RequesterID,
		"justification": req.Justification,
		"status":        req.Status,
		"requested_at":  req.RequestedAt.Format(time.RFC3339Nano),
		"version":       req.Version,
	}
	if req.DatasetID != nil {
		out["dataset_id"] = *req.DatasetID
	}
	if req.AdminID != nil {
		out["admin_id"] = *req.AdminID
	}
	if req.AdminComments != nil {
		out["admin_comments"] = *req.AdminComments
	}
	if req.ProcessedAt != nil {
		out["processed_at"] = req.ProcessedAt.Format(time.RFC3339Nano)
	}
	return out
}

func ledgerEntryToJSON(entry *ledger.Entry) map[string]any {
	return map[string]any{
		"request_id":  entry.RequestID,
		"sequence":    entry.Sequence,
		"from_status": entry.FromStatus,
		"to_status":   entry.ToStatus,
		"actor_id":    entry.ActorID,
		"comment":     entry.Comment,
		"occurred_at": entry.OccurredAt.Format(time.RFC3339Nano),
	}
}
