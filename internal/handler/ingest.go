package handler

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atendai/conversation-pipeline/internal/middleware"
	"github.com/atendai/conversation-pipeline/internal/model"
	natsclient "github.com/atendai/conversation-pipeline/internal/nats"
	"github.com/atendai/conversation-pipeline/pkg/logger"
)

// IngestHandler accepts inbound channel messages and enqueues them as
// durable jobs.
type IngestHandler struct {
	queue  *natsclient.JobQueue
	logger *logger.Logger
}

// NewIngestHandler creates a new ingest handler.
func NewIngestHandler(queue *natsclient.JobQueue, log *logger.Logger) *IngestHandler {
	return &IngestHandler{
		queue:  queue,
		logger: log,
	}
}

// Ingest handles POST /api/v1/messages
func (h *IngestHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var job model.InboundJob
	if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateSessionID(job.SessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if job.MessageData.From == "" {
		writeError(w, http.StatusBadRequest, "messageData.from is required")
		return
	}
	if err := middleware.ValidateMessageContent(job.MessageData.Body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if job.MessageID == "" {
		job.MessageID = uuid.Must(uuid.NewV7()).String()
	}

	if err := h.queue.Enqueue(r.Context(), &job); err != nil {
		h.logger.Error("job enqueue failed",
			zap.String("session_id", job.SessionID),
			zap.Error(err),
		)
		writeError(w, http.StatusServiceUnavailable, "failed to enqueue message")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "queued",
	})
}
