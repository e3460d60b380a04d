// Package pipeline processes inbound message jobs pulled from the queue.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/atendai/conversation-pipeline/internal/channel"
	"github.com/atendai/conversation-pipeline/internal/memory"
	"github.com/atendai/conversation-pipeline/internal/model"
	"github.com/atendai/conversation-pipeline/internal/orchestrator"
	"github.com/atendai/conversation-pipeline/internal/realtime"
	"github.com/atendai/conversation-pipeline/internal/router"
	"github.com/atendai/conversation-pipeline/internal/store"
	"github.com/atendai/conversation-pipeline/internal/tools"
	"github.com/atendai/conversation-pipeline/internal/webhook"
	"github.com/atendai/conversation-pipeline/pkg/logger"
	"github.com/atendai/conversation-pipeline/pkg/metrics"
)

// Processor turns one inbound job into persisted state, side effects and
// (for AI-handled conversations) a customer-facing reply.
type Processor struct {
	store        *store.Store
	router       *router.Router
	orchestrator *orchestrator.Orchestrator
	channel      channel.Adapter
	memory       *memory.Manager
	webhooks     *webhook.Dispatcher
	emitter      *realtime.Emitter
	logger       *logger.Logger
}

// New creates a processor.
func New(
	st *store.Store,
	rt *router.Router,
	orch *orchestrator.Orchestrator,
	adapter channel.Adapter,
	mem *memory.Manager,
	hooks *webhook.Dispatcher,
	emitter *realtime.Emitter,
	log *logger.Logger,
) *Processor {
	return &Processor{
		store:        st,
		router:       rt,
		orchestrator: orch,
		channel:      adapter,
		memory:       mem,
		webhooks:     hooks,
		emitter:      emitter,
		logger:       log,
	}
}

// HandleJob processes one queue job. A returned error signals the queue
// to redeliver; best-effort side effects never produce one.
func (p *Processor) HandleJob(ctx context.Context, job *model.InboundJob) error {
	start := time.Now()

	session, err := p.store.GetSession(ctx, job.SessionID)
	if err != nil {
		return fmt.Errorf("session %s lookup failed: %w", job.SessionID, err)
	}

	conv, created, err := p.store.FindOrCreateConversation(ctx, session.TenantID, job.MessageData.From, session.ID)
	if err != nil {
		return fmt.Errorf("conversation find-or-create failed: %w", err)
	}

	log := p.logger.WithConversation(conv.TenantID, conv.ID)

	if created {
		if agent := p.router.Select(ctx, conv.TenantID, job.MessageData.Body); agent != nil {
			if err := p.store.AssignAgent(ctx, conv.ID, agent.ID); err != nil {
				return fmt.Errorf("agent assignment failed: %w", err)
			}
			conv.AgentID = &agent.ID
			conv.Status = model.StatusAIHandling
			log.Info("agent routed", zap.String("agent_id", agent.ID), zap.String("agent_name", agent.Name))
		}

		p.webhooks.Dispatch(conv.TenantID, model.EventNewConversation, map[string]any{
			"conversation_id": conv.ID,
			"customer_id":     conv.CustomerID,
			"session_id":      conv.SessionID,
		})
		p.emitter.Emit("new_conversation", conv.TenantID, conv.ID, map[string]any{
			"customer_id": conv.CustomerID,
		})
	}

	inbound := model.NewCustomerMessage(conv.ID, conv.TenantID, job.MessageData.Body,
		messageType(job.MessageData.Type), job.MessageData.MediaURL)
	if job.MessageID != "" {
		inbound.ID = job.MessageID
	}
	stored, err := p.store.InsertMessageOnce(ctx, inbound)
	if err != nil {
		return fmt.Errorf("inbound message persist failed: %w", err)
	}
	if stored {
		if err := p.store.TouchConversation(ctx, conv.ID, time.Now(), true); err != nil {
			log.Error("conversation touch failed", zap.Error(err))
		}
		metrics.MessagesTotal.WithLabelValues(conv.TenantID, string(model.SenderCustomer)).Inc()

		p.webhooks.Dispatch(conv.TenantID, model.EventMessageReceived, map[string]any{
			"conversation_id": conv.ID,
			"customer_id":     conv.CustomerID,
			"message":         job.MessageData.Body,
			"type":            job.MessageData.Type,
		})
		p.emitter.Emit("message_received", conv.TenantID, conv.ID, map[string]any{
			"sender":  string(model.SenderCustomer),
			"content": job.MessageData.Body,
		})
	} else {
		// Redelivered job. The reply is persisted before it is sent, so a
		// non-customer tail means the previous run got at least that far;
		// acking here is what keeps the customer from hearing it twice.
		last, lastErr := p.store.LastMessage(ctx, conv.ID)
		if lastErr == nil && last.Sender != model.SenderCustomer {
			log.Info("redelivered job already replied, acking", zap.String("message_id", inbound.ID))
			metrics.JobsProcessed.WithLabelValues("duplicate").Inc()
			return nil
		}
		log.Warn("redelivered job resumes before reply", zap.String("message_id", inbound.ID))
	}

	if !conv.AIManaged() {
		metrics.JobsProcessed.WithLabelValues("persisted_only").Inc()
		metrics.JobDuration.Observe(time.Since(start).Seconds())
		return nil
	}

	agent, err := p.store.GetAgent(ctx, *conv.AgentID)
	if err != nil {
		return fmt.Errorf("agent %s lookup failed: %w", *conv.AgentID, err)
	}

	reply, err := p.orchestrator.Respond(ctx, conv, agent, inbound)
	if err != nil {
		metrics.JobsProcessed.WithLabelValues("error").Inc()
		return fmt.Errorf("reply generation failed: %w", err)
	}

	if err := p.deliver(ctx, conv, reply); err != nil {
		metrics.JobsProcessed.WithLabelValues("error").Inc()
		return fmt.Errorf("reply delivery failed: %w", err)
	}

	p.emitter.Emit("message_sent", conv.TenantID, conv.ID, map[string]any{
		"sender":  string(model.SenderAI),
		"content": reply.Text,
	})

	p.updateMemoryDetached(conv, job.MessageData.Body, reply, created)

	metrics.JobsProcessed.WithLabelValues("replied").Inc()
	metrics.JobDuration.Observe(time.Since(start).Seconds())
	log.Info("job processed",
		zap.Int("tokens_in", reply.TokensIn),
		zap.Int("tokens_out", reply.TokensOut),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// deliver records the AI message, then sends the reply text plus any
// attachments over the channel. Persisting first is what the redelivery
// check keys on: once the row exists, a retried job never reaches the
// send path again, so a send failure is logged for operator replay
// instead of risking a duplicate message to the customer.
func (p *Processor) deliver(ctx context.Context, conv *model.Conversation, reply *orchestrator.Reply) error {
	msg := model.NewAIMessage(conv.ID, conv.TenantID, reply.Text)
	msg.Model = &reply.Model
	msg.TokensIn = &reply.TokensIn
	msg.TokensOut = &reply.TokensOut
	if err := p.store.CreateMessage(ctx, msg); err != nil {
		return err
	}
	metrics.MessagesTotal.WithLabelValues(conv.TenantID, string(model.SenderAI)).Inc()
	if err := p.store.TouchConversation(ctx, conv.ID, time.Now(), false); err != nil {
		p.logger.Error("conversation touch failed",
			zap.String("conversation_id", conv.ID),
			zap.Error(err),
		)
	}

	if reply.Text != "" {
		if err := p.channel.SendText(ctx, conv.SessionID, conv.CustomerID, reply.Text); err != nil {
			p.logger.Error("reply send failed",
				zap.String("conversation_id", conv.ID),
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
			return nil
		}
	}

	for _, att := range reply.Attachments {
		var err error
		switch att.Kind {
		case tools.AttachmentImage:
			err = p.channel.SendImage(ctx, conv.SessionID, conv.CustomerID, att.URL, att.Caption)
		default:
			err = p.channel.SendFile(ctx, conv.SessionID, conv.CustomerID, att.URL, att.Caption)
		}
		if err != nil {
			p.logger.Error("attachment send failed",
				zap.String("conversation_id", conv.ID),
				zap.String("url", att.URL),
				zap.Error(err),
			)
		}
	}

	return nil
}

// updateMemoryDetached runs the customer-memory update as a supervised
// detached task. It never affects the reply path.
func (p *Processor) updateMemoryDetached(conv *model.Conversation, customerText string, reply *orchestrator.Reply, newConversation bool) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("memory update panicked", zap.Any("panic", r))
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := p.memory.Update(ctx, conv.TenantID, conv.CustomerID, memory.Exchange{
			CustomerText:    customerText,
			AIText:          reply.Text,
			NewConversation: newConversation,
		}); err != nil {
			p.logger.Warn("memory update failed",
				zap.String("conversation_id", conv.ID),
				zap.Error(err),
			)
		}
	}()
}

func messageType(t string) model.MessageType {
	switch t {
	case string(model.MessageTypeImage):
		return model.MessageTypeImage
	case string(model.MessageTypeFile):
		return model.MessageTypeFile
	case string(model.MessageTypeAudio):
		return model.MessageTypeAudio
	default:
		return model.MessageTypeText
	}
}
