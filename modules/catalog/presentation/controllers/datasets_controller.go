package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/quarry-data/quarry/modules/catalog/domain/entities/dataset"
	"github.com/quarry-data/quarry/modules/catalog/presentation/dtos"
	"github.com/quarry-data/quarry/modules/catalog/services"
	"github.com/quarry-data/quarry/pkg/application"
	"github.com/quarry-data/quarry/pkg/composables"
	"github.com/quarry-data/quarry/pkg/configuration"
	"github.com/quarry-data/quarry/pkg/httpapi"
	"github.com/quarry-data/quarry/pkg/serrors"
)

type DatasetsController struct {
	app      application.Application
	datasets *services.DatasetService
	basePath string
}

func NewDatasetsController(app application.Application) application.Controller {
	return &DatasetsController{
		app:      app,
		datasets: app.Service(services.DatasetService{}).(*services.DatasetService),
		basePath: "/api/datasets",
	}
}

func (c *DatasetsController) Key() string {
	return c.basePath
}

func (c *DatasetsController) Register(r *mux.Router) {
	router := r.PathPrefix(c.basePath).Subrouter()
	router.HandleFunc("", c.Create).Methods(http.MethodPost)
	router.HandleFunc("", c.List).Methods(http.MethodGet)
	router.HandleFunc("/{id}", c.GetByID).Methods(http.MethodGet)
}

func (c *DatasetsController) Create(w http.ResponseWriter, r *http.Request) {
	actorID, err := composables.UseActorID(r.Context())
	if err != nil {
		_ = httpapi.WriteError(w, http.StatusUnauthorized, "MISSING_ACTOR", "missing identity header", nil)
		return
	}

	var dto dtos.CreateDatasetDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "INVALID_JSON", "invalid json", nil)
		return
	}
	if err := dto.Ok(); err != nil {
		_ = httpapi.WriteError(w, http.StatusUnprocessableEntity, "VALIDATION_FAILED", err.Error(), nil)
		return
	}
	if dto.PeriodStart != nil && dto.PeriodEnd != nil && dto.PeriodEnd.Before(*dto.PeriodStart) {
		_ = httpapi.WriteError(w, http.StatusUnprocessableEntity, "VALIDATION_FAILED", "period end precedes period start", nil)
		return
	}

	result, err := c.datasets.Create(r.Context(), dataset.CreateParams{
		FileName:    dto.FileName,
		Checksum:    dto.Checksum,
		SizeBytes:   dto.SizeBytes,
		RowCount:    dto.RowCount,
		Description: dto.Description,
		Region:      dto.Region,
		PeriodStart: dto.PeriodStart,
		PeriodEnd:   dto.PeriodEnd,
		Metadata:    dto.Metadata,
		UploaderID:  actorID,
	})
	if err != nil {
		writeCatalogError(w, err)
		return
	}

	visibility := "immediate"
	if result.IndexErr != nil {
		visibility = "deferred"
	}
	payload := datasetToJSON(result.Dataset)
	payload["search_visibility"] = visibility
	_ = httpapi.WriteJSON(w, http.StatusCreated, payload)
}

func (c *DatasetsController) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "INVALID_DATASET_ID", "dataset id is not a valid UUID", nil)
		return
	}

	d, err := c.datasets.GetByID(r.Context(), id)
	if err != nil {
		writeCatalogError(w, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, datasetToJSON(d))
}

func (c *DatasetsController) List(w http.ResponseWriter, r *http.Request) {
	conf := configuration.Use()
	params := &dataset.FindParams{Limit: conf.PageSize}
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed <= conf.MaxPageSize {
			params.Limit = parsed
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			params.Offset = parsed
		}
	}
	if region := r.URL.Query().Get("region"); region != "" {
		params.Region = &region
	}

	items, total, err := c.datasets.List(r.Context(), params)
	if err != nil {
		writeCatalogError(w, err)
		return
	}

	out := make([]map[string]any, 0, len(items))
	for _, d := range items {
		out = append(out, datasetToJSON(d))
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, map[string]any{
		"items": out,
		"total": total,
	})
}

func writeCatalogError(w http.ResponseWriter, err error) {
	if errors.Is(err, composables.ErrNoActor) {
		_ = httpapi.WriteError(w, http.StatusUnauthorized, "MISSING_ACTOR", "missing identity header", nil)
		return
	}

	var base *serrors.Base
	if errors.As(err, &base) {
		switch base.Code {
		case "AUTHZ_FORBIDDEN":
			_ = httpapi.WriteError(w, http.StatusForbidden, base.Code, base.Message, nil)
		case "DATASET_NOT_FOUND":
			_ = httpapi.WriteError(w, http.StatusNotFound, base.Code, base.Message, nil)
		default:
			_ = httpapi.WriteError(w, http.StatusInternalServerError, base.Code, base.Message, nil)
		}
		return
	}

	_ = httpapi.WriteError(w, http.StatusInternalServerError, "INTERNAL", "internal server error", nil)
}

func datasetToJSON(d *dataset.Dataset) map[string]any {
	out := map[string]any{
		"id":          d.ID,
		"file_name":   d.FileName,
		"checksum":    d.Checksum,
		"size_bytes":  d.SizeBytes,
		"row_count":   d.RowCount,
		"description": d.Description,
		"uploader_id": d.UploaderID,
		"created_at":  d.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":  d.UpdatedAt.Format(time.RFC3339Nano),
	}
	if d.Region != "" {
		out["region"] = d.Region
	}
	if d.PeriodStart != nil {
		out["period_start"] = d.PeriodStart.Format(time.RFC3339Nano)
	}
	if d.PeriodEnd != nil {
		out["period_end"] = d.PeriodEnd.Format(time.RFC3339Nano)
	}
	if len(d.Metadata) > 0 {
		out["metadata"] = d.Metadata
	}
	return out
}
