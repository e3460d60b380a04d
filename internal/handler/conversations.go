package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/atendai/conversation-pipeline/internal/middleware"
	"github.com/atendai/conversation-pipeline/internal/model"
	"github.com/atendai/conversation-pipeline/internal/store"
	"github.com/atendai/conversation-pipeline/pkg/logger"
)

// ConversationHandler exposes read access to conversations for tenant
// dashboards.
type ConversationHandler struct {
	store  *store.Store
	logger *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(st *store.Store, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		store:  st,
		logger: log,
	}
}

// List handles GET /api/v1/conversations
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}
	status := model.ConversationStatus(r.URL.Query().Get("status"))

	convs, err := h.store.ListConversations(r.Context(), tenantID, status, limit)
	if err != nil {
		h.logger.Error("conversation list failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"conversations": convs,
	})
}

// Messages handles GET /api/v1/conversations/{id}/messages
func (h *ConversationHandler) Messages(w http.ResponseWriter, r *http.Request) {
	tenantID := middleware.GetTenantID(r.Context())
	conversationID := chi.URLParam(r, "id")

	conv, err := h.store.GetConversation(r.Context(), conversationID)
	if err != nil || conv.TenantID != tenantID {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}

	msgs, err := h.store.ListMessages(r.Context(), conversationID, limit)
	if err != nil {
		h.logger.Error("message list failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"messages": msgs,
	})
}
