package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atendai/conversation-pipeline/internal/model"
	"github.com/atendai/conversation-pipeline/internal/store"
	"github.com/atendai/conversation-pipeline/pkg/logger"
	"github.com/atendai/conversation-pipeline/pkg/metrics"
)

const (
	defaultTimeout    = 10 * time.Second
	defaultMaxRetries = 3
	responseSnippet   = 512
)

// Dispatcher fans out integration events to a tenant's subscribed
// webhooks. Dispatch is fire-and-forget relative to the pipeline: delivery
// failures are logged and recorded, never propagated.
type Dispatcher struct {
	store  *store.Store
	client *http.Client
	logger *logger.Logger

	sleep func(time.Duration)
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(st *store.Store, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		store:  st,
		client: &http.Client{},
		logger: log,
		sleep:  time.Sleep,
	}
}

// Dispatch delivers the event to every matching subscription in parallel.
// It returns immediately; each delivery runs in its own supervised
// goroutine with its own retry loop and timeout.
func (d *Dispatcher) Dispatch(tenantID string, event model.EventType, data map[string]any) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("webhook dispatch panicked", zap.Any("panic", r))
			}
		}()

		ctx := context.Background()
		hooks, err := d.store.ActiveWebhooksFor(ctx, tenantID, event)
		if err != nil {
			d.logger.Error("webhook lookup failed",
				zap.String("tenant_id", tenantID),
				zap.String("event", string(event)),
				zap.Error(err),
			)
			return
		}

		payload := model.WebhookPayload{
			Event:     event,
			Timestamp: time.Now().UTC(),
			Data:      data,
		}
		body, err := json.Marshal(payload)
		if err != nil {
			d.logger.Error("webhook payload marshal failed", zap.Error(err))
			return
		}

		for i := range hooks {
			hook := hooks[i]
			go func() {
				defer func() {
					if r := recover(); r != nil {
						d.logger.Error("webhook delivery panicked",
							zap.String("webhook_id", hook.ID),
							zap.Any("panic", r),
						)
					}
				}()
				d.Deliver(ctx, &hook, event, body)
			}()
		}
	}()
}

// Deliver POSTs the payload to one webhook. MaxRetries counts retries
// beyond the first attempt, with linear backoff between them. Every
// attempt is recorded in the delivery log.
func (d *Dispatcher) Deliver(ctx context.Context, hook *model.Webhook, event model.EventType, body []byte) {
	maxRetries := hook.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	maxAttempts := maxRetries + 1
	timeout := time.Duration(hook.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		status, snippet, err := d.attempt(ctx, hook, body, timeout)
		success := err == nil && status >= 200 && status < 300

		entry := &model.WebhookDeliveryLog{
			ID:         uuid.Must(uuid.NewV7()).String(),
			WebhookID:  hook.ID,
			TenantID:   hook.TenantID,
			Event:      string(event),
			StatusCode: status,
			Response:   snippet,
			Attempt:    attempt,
			Success:    success,
			CreatedAt:  time.Now(),
		}
		if err != nil {
			entry.Error = err.Error()
		}
		if logErr := d.store.CreateDeliveryLog(ctx, entry); logErr != nil {
			d.logger.Error("delivery log write failed", zap.String("webhook_id", hook.ID), zap.Error(logErr))
		}

		if success {
			metrics.WebhookDeliveries.WithLabelValues(string(event), "success").Inc()
			return
		}
		metrics.WebhookDeliveries.WithLabelValues(string(event), "failure").Inc()
		d.logger.Warn("webhook delivery attempt failed",
			zap.String("webhook_id", hook.ID),
			zap.String("event", string(event)),
			zap.Int("attempt", attempt),
			zap.Int("status", status),
			zap.Error(err),
		)

		if attempt < maxAttempts {
			d.sleep(time.Duration(attempt) * time.Second)
		}
	}
}

func (d *Dispatcher) attempt(ctx context.Context, hook *model.Webhook, body []byte, timeout time.Duration) (int, string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, hook.URL, bytes.NewReader(body))
	if err != nil {
		return 0, "", fmt.Errorf("building request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if hook.Secret != "" {
		req.Header.Set(SignatureHeader, Sign(body, hook.Secret))
	}
	for k, v := range hook.Headers {
		req.Header.Set(k, v)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, responseSnippet))
	return resp.StatusCode, string(snippet), nil
}
