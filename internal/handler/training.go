package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/atendai/conversation-pipeline/internal/middleware"
	natsclient "github.com/atendai/conversation-pipeline/internal/nats"
	"github.com/atendai/conversation-pipeline/internal/store"
	"github.com/atendai/conversation-pipeline/pkg/logger"
)

// TrainingHandler manages knowledge-base training sources.
type TrainingHandler struct {
	store  *store.Store
	queue  *natsclient.JobQueue
	logger *logger.Logger
}

// NewTrainingHandler creates a new training handler.
func NewTrainingHandler(st *store.Store, queue *natsclient.JobQueue, log *logger.Logger) *TrainingHandler {
	return &TrainingHandler{
		store:  st,
		queue:  queue,
		logger: log,
	}
}

// Reindex handles POST /api/v1/training/{id}/reindex
func (h *TrainingHandler) Reindex(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())
	id := chi.URLParam(r, "id")

	src, err := h.store.GetSource(r.Context(), id)
	if err != nil || src.TenantID != tenantID {
		writeError(w, http.StatusNotFound, "training source not found")
		return
	}

	if err := h.queue.RequestReindex(src.ID); err != nil {
		h.logger.Error("reindex request failed", zap.String("source_id", src.ID), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "failed to request reindex")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "reindex requested",
	})
}
