package handler

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atendai/conversation-pipeline/internal/middleware"
	"github.com/atendai/conversation-pipeline/internal/model"
	"github.com/atendai/conversation-pipeline/internal/store"
	"github.com/atendai/conversation-pipeline/pkg/logger"
)

// DealHandler manages the CRM pipeline the timeout monitor consults.
type DealHandler struct {
	store  *store.Store
	logger *logger.Logger
}

// NewDealHandler creates a new deal handler.
func NewDealHandler(st *store.Store, log *logger.Logger) *DealHandler {
	return &DealHandler{
		store:  st,
		logger: log,
	}
}

type createDealRequest struct {
	CustomerID string          `json:"customer_id"`
	Title      string          `json:"title"`
	Stage      model.DealStage `json:"stage"`
	Value      float64         `json:"value"`
}

func validDealStage(s model.DealStage) bool {
	switch s {
	case model.DealStageNew, model.DealStageQualified, model.DealStageProposal,
		model.DealStageNegotiation, model.DealStageWon, model.DealStageLost:
		return true
	}
	return false
}

// Create handles POST /api/v1/deals
func (h *DealHandler) Create(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())

	var req createDealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CustomerID == "" {
		writeError(w, http.StatusBadRequest, "customer_id is required")
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	if req.Stage == "" {
		req.Stage = model.DealStageNew
	}
	if !validDealStage(req.Stage) {
		writeError(w, http.StatusBadRequest, "unknown stage")
		return
	}

	deal := &model.Deal{
		ID:         uuid.Must(uuid.NewV7()).String(),
		TenantID:   tenantID,
		CustomerID: req.CustomerID,
		Title:      req.Title,
		Stage:      req.Stage,
		Value:      req.Value,
	}
	if err := h.store.CreateDeal(r.Context(), deal); err != nil {
		h.logger.Error("deal create failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create deal")
		return
	}

	writeJSON(w, http.StatusCreated, deal)
}

// List handles GET /api/v1/deals
func (h *DealHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())

	deals, err := h.store.ListDeals(r.Context(), tenantID, r.URL.Query().Get("customer_id"))
	if err != nil {
		h.logger.Error("deal list failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list deals")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"deals": deals,
	})
}
