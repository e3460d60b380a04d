package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atendai/conversation-pipeline/internal/llm"
	"github.com/atendai/conversation-pipeline/internal/memory"
	"github.com/atendai/conversation-pipeline/internal/model"
	"github.com/atendai/conversation-pipeline/internal/rag"
	"github.com/atendai/conversation-pipeline/internal/resilience"
	"github.com/atendai/conversation-pipeline/internal/store"
	"github.com/atendai/conversation-pipeline/internal/tools"
	"github.com/atendai/conversation-pipeline/internal/webhook"
	"github.com/atendai/conversation-pipeline/pkg/logger"
)

type mockLLM struct {
	completeFunc func(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error)
}

func (m *mockLLM) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return m.completeFunc(ctx, req)
}

func (m *mockLLM) Name() string     { return "mock" }
func (m *mockLLM) Models() []string { return []string{"mock-model"} }

type fixture struct {
	store        *store.Store
	orchestrator *Orchestrator
	client       *mockLLM
	conv         *model.Conversation
	agent        *model.Agent
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)

	log := logger.NewNop()
	client := &mockLLM{}
	exec := tools.NewExecutor(st, webhook.NewDispatcher(st, log), log)
	retriever := rag.NewRetriever(st, nil, log, 5, 0.3)
	mem := memory.NewManager(st, nil, "", log)
	breaker := resilience.NewCircuitBreaker("completion", 5, 30*time.Second)

	conv, _, err := st.FindOrCreateConversation(context.Background(), "t1", "5511999990000", "sess-1")
	require.NoError(t, err)

	return &fixture{
		store:        st,
		orchestrator: New(client, exec, retriever, mem, st, breaker, log, "gpt-4o-mini"),
		client:       client,
		conv:         conv,
		agent:        &model.Agent{ID: "agent-1", TenantID: "t1", Instructions: "Você é um atendente da loja."},
	}
}

// inbound persists a customer message the way the pipeline does before
// handing it to the orchestrator.
func (f *fixture) inbound(t *testing.T, text string) *model.Message {
	t.Helper()
	msg := model.NewCustomerMessage(f.conv.ID, f.conv.TenantID, text, model.MessageTypeText, nil)
	require.NoError(t, f.store.CreateMessage(context.Background(), msg))
	return msg
}

func TestRespondWithoutToolCalls(t *testing.T) {
	f := newFixture(t)

	var seen *llm.CompletionRequest
	f.client.completeFunc = func(_ context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
		seen = req
		return &llm.CompletionResponse{
			Content:   "Olá! Como posso ajudar?",
			Model:     "gpt-4o-mini",
			TokensIn:  42,
			TokensOut: 11,
		}, nil
	}

	reply, err := f.orchestrator.Respond(context.Background(), f.conv, f.agent, f.inbound(t, "oi"))
	require.NoError(t, err)

	assert.Equal(t, "Olá! Como posso ajudar?", reply.Text)
	assert.Equal(t, "gpt-4o-mini", reply.Model)
	assert.Equal(t, 42, reply.TokensIn)
	assert.Equal(t, 11, reply.TokensOut)
	assert.Empty(t, reply.Attachments)

	require.NotNil(t, seen)
	assert.Contains(t, seen.System, f.agent.Instructions)
	assert.NotEmpty(t, seen.Tools)
	require.NotEmpty(t, seen.Messages)
	last := seen.Messages[len(seen.Messages)-1]
	assert.Equal(t, llm.RoleUser, last.Role)
	assert.Equal(t, "oi", last.Content)
}

func TestRespondSendsInboundAsSingleUserTurn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Earlier turns plus the just-persisted inbound, as the pipeline
	// leaves them.
	f.inbound(t, "oi")
	require.NoError(t, f.store.CreateMessage(ctx,
		model.NewAIMessage(f.conv.ID, f.conv.TenantID, "Olá! Como posso ajudar?")))
	latest := f.inbound(t, "tem camiseta?")

	var seen *llm.CompletionRequest
	f.client.completeFunc = func(_ context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
		seen = req
		return &llm.CompletionResponse{Content: "Temos!", Model: "gpt-4o-mini"}, nil
	}

	_, err := f.orchestrator.Respond(ctx, f.conv, f.agent, latest)
	require.NoError(t, err)

	require.NotNil(t, seen)
	count := 0
	for _, m := range seen.Messages {
		if m.Role == llm.RoleUser && m.Content == "tem camiseta?" {
			count++
		}
	}
	assert.Equal(t, 1, count)
	assert.Equal(t, "tem camiseta?", seen.Messages[len(seen.Messages)-1].Content)
}

func TestRespondRunsToolCycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.CreateProduct(ctx, &model.Product{
		ID:       "p1",
		TenantID: "t1",
		Name:     "Camiseta Basica",
		Color:    "azul",
		Price:    59.9,
		Stock:    8,
		ImageURL: "https://cdn.example.com/camiseta-azul.jpg",
	}))

	var requests []*llm.CompletionRequest
	f.client.completeFunc = func(_ context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
		requests = append(requests, req)
		if len(requests) == 1 {
			return &llm.CompletionResponse{
				Model:     "gpt-4o-mini",
				TokensIn:  100,
				TokensOut: 20,
				ToolCalls: []llm.ToolCall{{
					ID:        "call_1",
					Name:      "buscarProduto",
					Arguments: `{"termo":"camiseta","cor":"azul"}`,
				}},
			}, nil
		}
		return &llm.CompletionResponse{
			Content:   "Temos a Camiseta Basica azul por R$ 59,90, disponível em estoque!",
			Model:     "gpt-4o-mini",
			TokensIn:  80,
			TokensOut: 30,
		}, nil
	}

	reply, err := f.orchestrator.Respond(ctx, f.conv, f.agent, f.inbound(t, "tem camiseta azul?"))
	require.NoError(t, err)
	require.Len(t, requests, 2)

	// First call offers the catalog; the follow-up runs without tools.
	assert.NotEmpty(t, requests[0].Tools)
	assert.Empty(t, requests[1].Tools)

	// The tool result rides back as a tool-role message tied to the call.
	var toolMsg *llm.ChatMessage
	for i := range requests[1].Messages {
		if requests[1].Messages[i].Role == llm.RoleTool {
			toolMsg = &requests[1].Messages[i]
		}
	}
	require.NotNil(t, toolMsg)
	assert.Equal(t, "call_1", toolMsg.ToolCallID)
	assert.Contains(t, toolMsg.Content, "Camiseta Basica")
	assert.NotContains(t, toolMsg.Content, "cdn.example.com")

	assert.Equal(t, "Temos a Camiseta Basica azul por R$ 59,90, disponível em estoque!", reply.Text)
	assert.Equal(t, 180, reply.TokensIn)
	assert.Equal(t, 50, reply.TokensOut)

	require.Len(t, reply.Attachments, 1)
	assert.Equal(t, tools.AttachmentImage, reply.Attachments[0].Kind)
	assert.Equal(t, "https://cdn.example.com/camiseta-azul.jpg", reply.Attachments[0].URL)
}

func TestRespondFailsFastOnPermanentError(t *testing.T) {
	f := newFixture(t)

	calls := 0
	f.client.completeFunc = func(_ context.Context, _ *llm.CompletionRequest) (*llm.CompletionResponse, error) {
		calls++
		return nil, &openai.APIError{HTTPStatusCode: 401, Message: "invalid api key"}
	}

	_, err := f.orchestrator.Respond(context.Background(), f.conv, f.agent, f.inbound(t, "oi"))
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRespondSecondFailureKeepsToolEffects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	calls := 0
	f.client.completeFunc = func(_ context.Context, _ *llm.CompletionRequest) (*llm.CompletionResponse, error) {
		calls++
		if calls == 1 {
			return &llm.CompletionResponse{
				Model: "gpt-4o-mini",
				ToolCalls: []llm.ToolCall{{
					ID:        "call_1",
					Name:      "criarVenda",
					Arguments: `{"produto":"Camiseta Basica","quantidade":1,"valor_total":59.9}`,
				}},
			}, nil
		}
		return nil, &openai.APIError{HTTPStatusCode: 400, Message: "bad request"}
	}

	_, err := f.orchestrator.Respond(ctx, f.conv, f.agent, f.inbound(t, "pode fechar a venda"))
	require.Error(t, err)

	// The sale written by the tool survives the failed follow-up.
	active, err := f.store.HasActiveOrder(ctx, f.conv.ID)
	require.NoError(t, err)
	assert.True(t, active)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"breaker open", resilience.ErrBreakerOpen, false},
		{"bad request", &openai.APIError{HTTPStatusCode: 400}, false},
		{"unauthorized", &openai.APIError{HTTPStatusCode: 401}, false},
		{"not found", &openai.APIError{HTTPStatusCode: 404}, false},
		{"quota exhausted", &openai.APIError{HTTPStatusCode: 429, Code: "insufficient_quota"}, false},
		{"rate limited", &openai.APIError{HTTPStatusCode: 429}, true},
		{"server error", &openai.APIError{HTTPStatusCode: 500}, true},
		{"bad gateway", &openai.APIError{HTTPStatusCode: 502}, true},
		{"plain network error", errors.New("connection reset by peer"), true},
		{"sniffed bad key", errors.New("Invalid API Key provided"), false},
		{"sniffed quota", errors.New("insufficient_quota: billing hard limit"), false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsRetryable(tc.err))
		})
	}
}
