// Package orchestrator drives the function-calling exchange with the
// completion service for one inbound message.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/atendai/conversation-pipeline/internal/llm"
	"github.com/atendai/conversation-pipeline/internal/memory"
	"github.com/atendai/conversation-pipeline/internal/model"
	"github.com/atendai/conversation-pipeline/internal/rag"
	"github.com/atendai/conversation-pipeline/internal/resilience"
	"github.com/atendai/conversation-pipeline/internal/store"
	"github.com/atendai/conversation-pipeline/internal/tools"
	"github.com/atendai/conversation-pipeline/pkg/logger"
)

// historyLimit bounds how many prior messages ride along as context.
const historyLimit = 20

// Reply is the final user-facing outcome of one exchange.
type Reply struct {
	Text        string
	Attachments []tools.Attachment
	Model       string
	TokensIn    int
	TokensOut   int
}

// Orchestrator runs the build-prompt / first-completion / tools /
// second-completion state machine.
type Orchestrator struct {
	llm       llm.Client
	tools     *tools.Executor
	retriever *rag.Retriever
	memory    *memory.Manager
	store     *store.Store
	breaker   *resilience.CircuitBreaker
	retryCfg  resilience.RetryConfig
	logger    *logger.Logger
	model     string
}

// New creates an orchestrator.
func New(
	client llm.Client,
	executor *tools.Executor,
	retriever *rag.Retriever,
	mem *memory.Manager,
	st *store.Store,
	breaker *resilience.CircuitBreaker,
	log *logger.Logger,
	completionModel string,
) *Orchestrator {
	return &Orchestrator{
		llm:       client,
		tools:     executor,
		retriever: retriever,
		memory:    mem,
		store:     st,
		breaker:   breaker,
		retryCfg:  resilience.DefaultRetryConfig(),
		logger:    log,
		model:     completionModel,
	}
}

// Respond produces the AI reply for an inbound customer message. The
// message is already persisted by the pipeline, so history loading skips
// it by ID; it rides along once, as the final user turn. A failed
// completion call propagates as a pipeline failure; individual tool
// failures are folded back to the model as structured results instead.
func (o *Orchestrator) Respond(ctx context.Context, conv *model.Conversation, agent *model.Agent, inbound *model.Message) (*Reply, error) {
	system := o.buildSystemPrompt(ctx, conv, agent, inbound.Content)
	messages := o.historyMessages(ctx, conv.ID, inbound.ID)
	messages = append(messages, llm.ChatMessage{Role: llm.RoleUser, Content: inbound.Content})

	first, err := o.complete(ctx, &llm.CompletionRequest{
		Model:    o.model,
		System:   system,
		Messages: messages,
		Tools:    tools.Catalog(),
	})
	if err != nil {
		return nil, fmt.Errorf("first completion failed: %w", err)
	}

	tokensIn := first.TokensIn
	tokensOut := first.TokensOut

	if len(first.ToolCalls) == 0 {
		return &Reply{
			Text:      first.Content,
			Model:     first.Model,
			TokensIn:  tokensIn,
			TokensOut: tokensOut,
		}, nil
	}

	scope := tools.Scope{
		TenantID:       conv.TenantID,
		ConversationID: conv.ID,
		CustomerID:     conv.CustomerID,
	}
	if conv.AgentID != nil {
		scope.AgentID = *conv.AgentID
	}

	messages = append(messages, llm.ChatMessage{
		Role:      llm.RoleAssistant,
		Content:   first.Content,
		ToolCalls: first.ToolCalls,
	})

	var attachments []tools.Attachment
	for _, call := range first.ToolCalls {
		result := o.tools.Execute(ctx, scope, tools.Invocation{
			Kind: tools.Kind(call.Name),
			Args: json.RawMessage(call.Arguments),
		})

		if result.FollowUp != nil {
			followUp := o.tools.Execute(ctx, scope, *result.FollowUp)
			if result.Data == nil {
				result.Data = map[string]any{}
			}
			result.Data["follow_up"] = map[string]any{
				"tool":    string(followUp.Kind),
				"success": followUp.Success,
				"message": followUp.Message,
			}
		}

		if result.Attachment != nil {
			attachments = append(attachments, *result.Attachment)
		}

		messages = append(messages, llm.ChatMessage{
			Role:       llm.RoleTool,
			Content:    result.ModelPayload(),
			ToolCallID: call.ID,
		})
	}

	second, err := o.complete(ctx, &llm.CompletionRequest{
		Model:    o.model,
		System:   system,
		Messages: messages,
	})
	if err != nil {
		// Tool side effects are already persisted and stay persisted; the
		// mismatch is logged so operators can reconcile.
		o.logger.Error("second completion failed after tool effects were persisted",
			zap.String("conversation_id", conv.ID),
			zap.Int("tool_calls", len(first.ToolCalls)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("second completion failed: %w", err)
	}

	return &Reply{
		Text:        second.Content,
		Attachments: attachments,
		Model:       second.Model,
		TokensIn:    tokensIn + second.TokensIn,
		TokensOut:   tokensOut + second.TokensOut,
	}, nil
}

// complete runs one completion call through the circuit breaker and the
// retry policy.
func (o *Orchestrator) complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	cfg := o.retryCfg
	cfg.Retryable = IsRetryable
	cfg.OnAttempt = func(attempt int, err error) {
		o.logger.Warn("completion attempt failed", zap.Int("attempt", attempt), zap.Error(err))
	}

	return resilience.Retry(ctx, cfg, func() (*llm.CompletionResponse, error) {
		var resp *llm.CompletionResponse
		err := o.breaker.Do(func() error {
			var callErr error
			resp, callErr = o.llm.Complete(ctx, req)
			return callErr
		})
		return resp, err
	})
}

// IsRetryable classifies completion-service errors. Credential and quota
// problems are permanent; everything else (timeouts, 5xx, rate spikes) is
// worth retrying.
func IsRetryable(err error) bool {
	if errors.Is(err, resilience.ErrBreakerOpen) {
		return false
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 400, 401, 403, 404:
			return false
		case 429:
			if code, ok := apiErr.Code.(string); ok && code == "insufficient_quota" {
				return false
			}
			return true
		}
		return apiErr.HTTPStatusCode >= 500
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "invalid api key") || strings.Contains(msg, "insufficient_quota") {
		return false
	}
	return true
}

func (o *Orchestrator) buildSystemPrompt(ctx context.Context, conv *model.Conversation, agent *model.Agent, inboundText string) string {
	var b strings.Builder

	b.WriteString(agent.Instructions)
	b.WriteString("\n\n")

	if tenant, err := o.store.GetTenant(ctx, conv.TenantID); err == nil && tenant.Description != "" {
		b.WriteString("SOBRE A EMPRESA:\n")
		b.WriteString(tenant.Description)
		b.WriteString("\n\n")
	}

	if grounding := o.retriever.BuildContext(ctx, agent.ID, inboundText); grounding != "" {
		b.WriteString("BASE DE CONHECIMENTO:\n")
		b.WriteString(grounding)
		b.WriteString("\n\n")
	}

	mem, err := o.memory.Get(ctx, conv.TenantID, conv.CustomerID)
	if err != nil {
		o.logger.Warn("memory load failed, continuing without it",
			zap.String("conversation_id", conv.ID),
			zap.Error(err),
		)
	} else if block := memory.FormatForPrompt(mem); block != "" {
		b.WriteString(block)
		b.WriteString("\n")
	}

	return strings.TrimSpace(b.String())
}

func (o *Orchestrator) historyMessages(ctx context.Context, conversationID, excludeID string) []llm.ChatMessage {
	history, err := o.store.ListMessages(ctx, conversationID, historyLimit)
	if err != nil {
		o.logger.Warn("history load failed, continuing without it",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		return nil
	}

	msgs := make([]llm.ChatMessage, 0, len(history))
	for _, m := range history {
		if m.ID == excludeID {
			continue
		}
		role := llm.RoleAssistant
		if m.Sender == model.SenderCustomer {
			role = llm.RoleUser
		}
		msgs = append(msgs, llm.ChatMessage{Role: role, Content: m.Content})
	}
	return msgs
}
