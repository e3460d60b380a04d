package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atendai/conversation-pipeline/internal/middleware"
	"github.com/atendai/conversation-pipeline/internal/model"
	"github.com/atendai/conversation-pipeline/internal/store"
	"github.com/atendai/conversation-pipeline/internal/webhook"
	"github.com/atendai/conversation-pipeline/pkg/logger"
)

// WebhookHandler manages webhook subscriptions for a tenant.
type WebhookHandler struct {
	store      *store.Store
	dispatcher *webhook.Dispatcher
	logger     *logger.Logger
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(st *store.Store, d *webhook.Dispatcher, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		store:      st,
		dispatcher: d,
		logger:     log,
	}
}

// createWebhookRequest is the subscription creation payload.
type createWebhookRequest struct {
	URL            string            `json:"url"`
	Events         []string          `json:"events"`
	Secret         string            `json:"secret,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	TimeoutSeconds int               `json:"timeout_seconds,omitempty"`
	MaxRetries     int               `json:"max_retries,omitempty"`
}

// Create handles POST /api/v1/webhooks
func (h *WebhookHandler) Create(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())

	var req createWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateWebhookURL(req.URL); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Events) == 0 {
		writeError(w, http.StatusBadRequest, "at least one event is required")
		return
	}
	for _, e := range req.Events {
		if !model.ValidEventType(e) {
			writeError(w, http.StatusBadRequest, "unknown event type: "+e)
			return
		}
	}

	wh := &model.Webhook{
		ID:             uuid.Must(uuid.NewV7()).String(),
		TenantID:       tenantID,
		URL:            req.URL,
		Events:         req.Events,
		Secret:         req.Secret,
		Headers:        req.Headers,
		TimeoutSeconds: req.TimeoutSeconds,
		MaxRetries:     req.MaxRetries,
		Active:         true,
	}

	if err := h.store.CreateWebhook(r.Context(), wh); err != nil {
		h.logger.Error("webhook create failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create webhook")
		return
	}

	writeJSON(w, http.StatusCreated, wh)
}

// List handles GET /api/v1/webhooks
func (h *WebhookHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())

	hooks, err := h.store.ListWebhooks(r.Context(), tenantID)
	if err != nil {
		h.logger.Error("webhook list failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list webhooks")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"webhooks": hooks,
	})
}

// Delete handles DELETE /api/v1/webhooks/{id}
func (h *WebhookHandler) Delete(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())
	id := chi.URLParam(r, "id")

	if err := h.store.DeleteWebhook(r.Context(), tenantID, id); err != nil {
		if err == store.ErrNotFound {
			writeError(w, http.StatusNotFound, "webhook not found")
			return
		}
		h.logger.Error("webhook delete failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to delete webhook")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Test handles POST /api/v1/webhooks/{id}/test: fires a TEST event at
// the single subscription, synchronously enough to report the outcome.
func (h *WebhookHandler) Test(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())
	id := chi.URLParam(r, "id")

	wh, err := h.store.GetWebhook(r.Context(), tenantID, id)
	if err != nil {
		if err == store.ErrNotFound {
			writeError(w, http.StatusNotFound, "webhook not found")
			return
		}
		h.logger.Error("webhook lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load webhook")
		return
	}

	body, err := json.Marshal(model.WebhookPayload{
		Event:     model.EventTest,
		Timestamp: time.Now().UTC(),
		Data: map[string]any{
			"webhook_id": wh.ID,
			"message":    "test delivery",
		},
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to build payload")
		return
	}

	h.dispatcher.Deliver(r.Context(), wh, model.EventTest, body)

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "delivered",
	})
}
