package controllers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/quarry-data/quarry/modules/approvals/services"
	"github.com/quarry-data/quarry/pkg/application"
	"github.com/quarry-data/quarry/pkg/composables"
	"github.com/quarry-data/quarry/pkg/httpapi"
)

// AccessController answers dataset access questions for the calling user.
type AccessController struct {
	app    application.Application
	access *services.AccessService
}

func NewAccessController(app application.Application) application.Controller {
	return &AccessController{
		app:    app,
		access: app.Service(services.AccessService{}).(*services.AccessService),
	}
}

func (c *AccessController) Key() string {
	return "/api/datasets/access"
}

func (c *AccessController) Register(r *mux.Router) {
	r.HandleFunc("/api/datasets/{id}/access", c.Evaluate).Methods(http.MethodGet)
}

func (c *AccessController) Evaluate(w http.ResponseWriter, r *http.Request) {
	datasetID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "INVALID_DATASET_ID", "dataset id is not a valid UUID", nil)
		return
	}
	actorID, err := composables.UseActorID(r.Context())
	if err != nil {
		writeApprovalError(w, err)
		return
	}

	status, err := c.access.Evaluate(r.Context(), actorID, datasetID)
	if err != nil {
		writeApprovalError(w, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, map[string]any{
		"dataset_id": datasetID,
		"access":     status,
	})
}
