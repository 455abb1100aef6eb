package controllers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/quarry-data/quarry/modules/approvals/domain/entities/request"
	"github.com/quarry-data/quarry/modules/approvals/presentation/dtos"
	"github.com/quarry-data/quarry/modules/approvals/services"
	"github.com/quarry-data/quarry/pkg/application"
	"github.com/quarry-data/quarry/pkg/composables"
	"github.com/quarry-data/quarry/pkg/configuration"
	"github.com/quarry-data/quarry/pkg/httpapi"
)

type ApprovalsController struct {
	app       application.Application
	approvals *services.ApprovalService
	basePath  string
}

func NewApprovalsController(app application.Application) application.Controller {
	return &ApprovalsController{
		app:       app,
		approvals: app.Service(services.ApprovalService{}).(*services.ApprovalService),
		basePath:  "/api/approvals",
	}
}

func (c *ApprovalsController) Key() string {
	return c.basePath
}

func (c *ApprovalsController) Register(r *mux.Router) {
	router := r.PathPrefix(c.basePath).Subrouter()
	router.HandleFunc("", c.Create).Methods(http.MethodPost)
	router.HandleFunc("", c.ListPending).Methods(http.MethodGet)
	router.HandleFunc("/{id}/dataset", c.AttachDataset).Methods(http.MethodPost)
	router.HandleFunc("/{id}/approve", c.Approve).Methods(http.MethodPost)
	router.HandleFunc("/{id}/reject", c.Reject).Methods(http.MethodPost)
	router.HandleFunc("/{id}/cancel", c.Cancel).Methods(http.MethodPost)
	router.HandleFunc("/{id}/ledger", c.Ledger).Methods(http.MethodGet)
}

func (c *ApprovalsController) Create(w http.ResponseWriter, r *http.Request) {
	var dto dtos.CreateRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "INVALID_JSON", "invalid json", nil)
		return
	}
	if err := dto.Ok(); err != nil {
		_ = httpapi.WriteError(w, http.StatusUnprocessableEntity, "VALIDATION_FAILED", err.Error(), nil)
		return
	}

	created, err := c.approvals.Create(r.Context(), services.CreateRequestInput{
		Kind:          request.Kind(dto.Kind),
		DatasetID:     dto.DatasetID,
		Justification: dto.Justification,
	})
	if err != nil {
		writeApprovalError(w, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusCreated, requestToJSON(created))
}

func (c *ApprovalsController) AttachDataset(w http.ResponseWriter, r *http.Request) {
	requestID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "INVALID_REQUEST_ID", "request id is not a valid UUID", nil)
		return
	}
	actorID, err := composables.UseActorID(r.Context())
	if err != nil {
		writeApprovalError(w, err)
		return
	}

	var dto dtos.AttachDatasetDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "INVALID_JSON", "invalid json", nil)
		return
	}
	if err := dto.Ok(); err != nil {
		_ = httpapi.WriteError(w, http.StatusUnprocessableEntity, "VALIDATION_FAILED", err.Error(), nil)
		return
	}

	updated, err := c.approvals.AttachDataset(r.Context(), requestID, dto.DatasetID, actorID)
	if err != nil {
		writeApprovalError(w, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, requestToJSON(updated))
}

func (c *ApprovalsController) Approve(w http.ResponseWriter, r *http.Request) {
	c.decide(w, r, func(requestID, actorID uuid.UUID, comments string) (*request.ApprovalRequest, error) {
		return c.approvals.Approve(r.Context(), requestID, actorID, comments)
	})
}

func (c *ApprovalsController) Reject(w http.ResponseWriter, r *http.Request) {
	c.decide(w, r, func(requestID, actorID uuid.UUID, comments string) (*request.ApprovalRequest, error) {
		return c.approvals.Reject(r.Context(), requestID, actorID, comments)
	})
}

func (c *ApprovalsController) Cancel(w http.ResponseWriter, r *http.Request) {
	c.decide(w, r, func(requestID, actorID uuid.UUID, _ string) (*request.ApprovalRequest, error) {
		return c.approvals.Cancel(r.Context(), requestID, actorID)
	})
}

func (c *ApprovalsController) decide(
	w http.ResponseWriter,
	r *http.Request,
	fire func(requestID, actorID uuid.UUID, comments string) (*request.ApprovalRequest, error),
) {
	requestID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "INVALID_REQUEST_ID", "request id is not a valid UUID", nil)
		return
	}
	actorID, err := composables.UseActorID(r.Context())
	if err != nil {
		writeApprovalError(w, err)
		return
	}

	var dto dtos.DecisionDTO
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
			_ = httpapi.WriteError(w, http.StatusBadRequest, "INVALID_JSON", "invalid json", nil)
			return
		}
		if err := dto.Ok(); err != nil {
			_ = httpapi.WriteError(w, http.StatusUnprocessableEntity, "VALIDATION_FAILED", err.Error(), nil)
			return
		}
	}

	updated, err := fire(requestID, actorID, dto.Comments)
	if err != nil {
		writeApprovalError(w, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, requestToJSON(updated))
}

func (c *ApprovalsController) ListPending(w http.ResponseWriter, r *http.Request) {
	conf := configuration.Use()
	limit := conf.PageSize
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed <= conf.MaxPageSize {
			limit = parsed
		}
	}
	offset := 0
	if v := r.URL.Query().Get("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	pending, total, err := c.approvals.ListPending(r.Context(), limit, offset)
	if err != nil {
		writeApprovalError(w, err)
		return
	}

	items := make([]map[string]any, 0, len(pending))
	for _, req := range pending {
		items = append(items, requestToJSON(req))
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"total": total,
	})
}

func (c *ApprovalsController) Ledger(w http.ResponseWriter, r *http.Request) {
	requestID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "INVALID_REQUEST_ID", "request id is not a valid UUID", nil)
		return
	}

	entries, err := c.approvals.LedgerForRequest(r.Context(), requestID)
	if err != nil {
		writeApprovalError(w, err)
		return
	}

	items := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		items = append(items, ledgerEntryToJSON(entry))
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}
