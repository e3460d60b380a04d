// Package realtime bridges pipeline events to live dashboards.
package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/atendai/conversation-pipeline/internal/model"
	"github.com/atendai/conversation-pipeline/pkg/logger"
)

// SubjectPrefix is the prefix for realtime event subjects.
const SubjectPrefix = "realtime"

// Subscriber receives events delivered through the in-process fallback.
type Subscriber func(event model.RealtimeEvent)

// Emitter publishes events over the NATS bridge with a direct-call
// fallback to in-process subscribers when the bridge is unavailable. Both
// paths are best-effort; consumers must tolerate missed events.
type Emitter struct {
	conn   *nats.Conn
	logger *logger.Logger

	mu    sync.RWMutex
	local []Subscriber
}

// NewEmitter creates an emitter. conn may be nil; every event then goes
// through the local fallback only.
func NewEmitter(conn *nats.Conn, log *logger.Logger) *Emitter {
	return &Emitter{conn: conn, logger: log}
}

// Subscribe registers an in-process subscriber for the fallback path.
func (e *Emitter) Subscribe(fn Subscriber) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.local = append(e.local, fn)
}

// Emit publishes the event. Failures are logged, never returned: realtime
// delivery must not affect the pipeline's primary path.
func (e *Emitter) Emit(eventType, tenantID, conversationID string, data map[string]any) {
	event := model.RealtimeEvent{
		Type:           eventType,
		TenantID:       tenantID,
		ConversationID: conversationID,
		Data:           data,
		Timestamp:      time.Now().UTC(),
	}

	if e.conn != nil && e.conn.IsConnected() {
		payload, err := json.Marshal(event)
		if err == nil {
			if err := e.conn.Publish(SubjectPrefix+"."+tenantID, payload); err == nil {
				return
			}
			e.logger.Warn("realtime publish failed, using direct fallback",
				zap.String("tenant_id", tenantID),
			)
		}
	}

	e.mu.RLock()
	subs := make([]Subscriber, len(e.local))
	copy(subs, e.local)
	e.mu.RUnlock()

	for _, fn := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.logger.Error("realtime subscriber panicked", zap.Any("panic", r))
				}
			}()
			fn(event)
		}()
	}
}
