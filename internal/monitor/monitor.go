// Package monitor implements the scheduled inactivity sweep over
// AI-handled conversations.
package monitor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/atendai/conversation-pipeline/internal/channel"
	"github.com/atendai/conversation-pipeline/internal/memory"
	"github.com/atendai/conversation-pipeline/internal/model"
	"github.com/atendai/conversation-pipeline/internal/realtime"
	"github.com/atendai/conversation-pipeline/internal/store"
	"github.com/atendai/conversation-pipeline/internal/webhook"
	"github.com/atendai/conversation-pipeline/pkg/logger"
	"github.com/atendai/conversation-pipeline/pkg/metrics"
)

const (
	warningMessage = "Olá! Ainda está por aí? Fiquei aguardando sua resposta. Se precisar de mais alguma coisa é só me avisar. 😊"
	closingMessage = "Como não tivemos retorno, estou encerrando esta conversa por enquanto. Quando quiser continuar, é só mandar uma nova mensagem!"
)

// Monitor periodically inspects stale AI_HANDLING conversations and
// warns or closes them. It runs concurrently with live pipeline workers,
// so every status change is a conditional transition.
type Monitor struct {
	store    *store.Store
	channel  channel.Adapter
	memory   *memory.Manager
	webhooks *webhook.Dispatcher
	emitter  *realtime.Emitter
	logger   *logger.Logger

	warnAfter  time.Duration
	closeAfter time.Duration

	now func() time.Time
}

// New creates a monitor with the given inactivity thresholds.
func New(
	st *store.Store,
	adapter channel.Adapter,
	mem *memory.Manager,
	hooks *webhook.Dispatcher,
	emitter *realtime.Emitter,
	log *logger.Logger,
	warnAfter, closeAfter time.Duration,
) *Monitor {
	return &Monitor{
		store:      st,
		channel:    adapter,
		memory:     mem,
		webhooks:   hooks,
		emitter:    emitter,
		logger:     log,
		warnAfter:  warnAfter,
		closeAfter: closeAfter,
		now:        time.Now,
	}
}

// Start runs sweeps on the given interval until the context is cancelled.
func (m *Monitor) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.logger.Info("timeout monitor started",
		zap.Duration("interval", interval),
		zap.Duration("warn_after", m.warnAfter),
		zap.Duration("close_after", m.closeAfter),
	)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("timeout monitor stopped")
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Sweep runs one pass over all conversations past the warning threshold.
func (m *Monitor) Sweep(ctx context.Context) {
	cutoff := m.now().Add(-m.warnAfter)
	candidates, err := m.store.StaleAIConversations(ctx, cutoff)
	if err != nil {
		m.logger.Error("stale conversation query failed", zap.Error(err))
		return
	}

	for i := range candidates {
		m.inspect(ctx, &candidates[i])
	}
}

// inspect decides and performs the action for one stale conversation.
func (m *Monitor) inspect(ctx context.Context, conv *model.Conversation) {
	log := m.logger.WithConversation(conv.TenantID, conv.ID)

	status, err := m.channel.GetStatus(ctx, conv.SessionID)
	if err != nil || !status.Connected {
		metrics.MonitorActions.WithLabelValues("skip_disconnected").Inc()
		return
	}

	age := m.now().Sub(conv.LastMessageAt)

	done, err := m.aiWorkComplete(ctx, conv)
	if err != nil {
		log.Error("work-complete check failed", zap.Error(err))
		return
	}
	if done {
		// Nobody is waiting on a reply; close quietly once the close
		// threshold passes, never send a warning.
		if age >= m.closeAfter {
			m.close(ctx, conv, log, true)
		} else {
			metrics.MonitorActions.WithLabelValues("skip_work_complete").Inc()
		}
		return
	}

	last, err := m.store.LastMessage(ctx, conv.ID)
	if err != nil {
		log.Error("last message lookup failed", zap.Error(err))
		return
	}
	if last.Sender == model.SenderCustomer {
		// The customer spoke last, so the system owes the next message.
		metrics.MonitorActions.WithLabelValues("skip_customer_waiting").Inc()
		return
	}

	warned, err := m.store.HasRecentAudit(ctx, conv.ID,
		[]model.AuditAction{model.AuditInactivityWarning}, conv.LastMessageAt)
	if err != nil {
		log.Error("warning history lookup failed", zap.Error(err))
		return
	}

	switch {
	case age >= m.closeAfter && warned:
		m.close(ctx, conv, log, false)
	case age >= m.closeAfter:
		// Past the close threshold without a warning on record; warn
		// late rather than close unannounced.
		m.warn(ctx, conv, log, "warn_late")
	case !warned:
		m.warn(ctx, conv, log, "warn")
	default:
		metrics.MonitorActions.WithLabelValues("skip_already_warned").Inc()
	}
}

// aiWorkComplete reports whether the conversation already reached an
// outcome that makes a follow-up pointless.
func (m *Monitor) aiWorkComplete(ctx context.Context, conv *model.Conversation) (bool, error) {
	if ok, err := m.store.HasActiveOrder(ctx, conv.ID); err != nil || ok {
		return ok, err
	}
	if ok, err := m.store.HasSettledAppointment(ctx, conv.TenantID, conv.CustomerID); err != nil || ok {
		return ok, err
	}

	since := m.now().Add(-m.closeAfter)
	if ok, err := m.store.HasRecentAudit(ctx, conv.ID, []model.AuditAction{
		model.AuditHumanTransfer,
		model.AuditAIConversationClosed,
	}, since); err != nil || ok {
		return ok, err
	}
	if ok, err := m.store.HasRecentInterest(ctx, conv.ID, since); err != nil || ok {
		return ok, err
	}
	return m.store.HasAdvancedDeal(ctx, conv.TenantID, conv.CustomerID)
}

// warn sends the inactivity warning exactly once per inactivity episode.
// The warning message is persisted but deliberately does not bump the
// conversation's last-message time, so the close clock keeps running.
func (m *Monitor) warn(ctx context.Context, conv *model.Conversation, log *logger.Logger, action string) {
	if err := m.channel.SendText(ctx, conv.SessionID, conv.CustomerID, warningMessage); err != nil {
		log.Error("warning send failed", zap.Error(err))
		return
	}

	msg := model.NewAIMessage(conv.ID, conv.TenantID, warningMessage)
	if err := m.store.CreateMessage(ctx, msg); err != nil {
		log.Error("warning message persist failed", zap.Error(err))
	}
	if err := m.store.AppendAudit(ctx, conv.TenantID, conv.ID, model.AuditInactivityWarning, "aviso de inatividade enviado"); err != nil {
		log.Error("warning audit persist failed", zap.Error(err))
	}

	metrics.MonitorActions.WithLabelValues(action).Inc()
	log.Info("inactivity warning sent")
}

// close ends the conversation. When silent is set the customer already
// got an outcome and no closing message is sent.
func (m *Monitor) close(ctx context.Context, conv *model.Conversation, log *logger.Logger, silent bool) {
	if err := m.store.TransitionStatus(ctx, conv.ID, model.StatusAIHandling, model.StatusClosed); err != nil {
		if err == store.ErrStaleStatus {
			// A worker or a tool moved the conversation first.
			metrics.MonitorActions.WithLabelValues("skip_raced").Inc()
			return
		}
		log.Error("close transition failed", zap.Error(err))
		return
	}

	if !silent {
		if err := m.channel.SendText(ctx, conv.SessionID, conv.CustomerID, closingMessage); err != nil {
			log.Error("closing message send failed", zap.Error(err))
		} else if err := m.store.CreateMessage(ctx, model.NewAIMessage(conv.ID, conv.TenantID, closingMessage)); err != nil {
			log.Error("closing message persist failed", zap.Error(err))
		}
	}

	detail := "encerrada por inatividade"
	if silent {
		detail = "encerrada silenciosamente, atendimento já concluído"
	}
	if err := m.store.AppendAudit(ctx, conv.TenantID, conv.ID, model.AuditAIConversationClosed, detail); err != nil {
		log.Error("close audit persist failed", zap.Error(err))
	}

	m.webhooks.Dispatch(conv.TenantID, model.EventConversationClosed, map[string]any{
		"conversation_id": conv.ID,
		"customer_id":     conv.CustomerID,
		"closed_by":       "monitor",
		"silent":          silent,
	})
	m.emitter.Emit("conversation_closed", conv.TenantID, conv.ID, map[string]any{
		"closed_by": "monitor",
	})

	// Memory runs detached so a slow summarization never stalls the sweep.
	go func(tenantID, customerID string) {
		defer func() {
			if r := recover(); r != nil {
				m.logger.Error("memory update panicked", zap.Any("panic", r))
			}
		}()
		bg, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := m.memory.Update(bg, tenantID, customerID, memory.Exchange{
			Tags: []string{"conversa_encerrada_por_inatividade"},
		}); err != nil {
			m.logger.Warn("memory update after close failed", zap.Error(err))
		}
	}(conv.TenantID, conv.CustomerID)

	action := "close"
	if silent {
		action = "close_silent"
	}
	metrics.MonitorActions.WithLabelValues(action).Inc()
	log.Info("conversation closed by monitor", zap.Bool("silent", silent))
}
