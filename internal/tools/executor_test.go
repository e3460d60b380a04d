package tools

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atendai/conversation-pipeline/internal/model"
	"github.com/atendai/conversation-pipeline/internal/store"
	"github.com/atendai/conversation-pipeline/internal/webhook"
	"github.com/atendai/conversation-pipeline/pkg/logger"
)

func newTestExecutor(t *testing.T) (*Executor, *store.Store) {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)

	log := logger.NewNop()
	return NewExecutor(st, webhook.NewDispatcher(st, log), log), st
}

func testScope(conversationID string) Scope {
	return Scope{
		TenantID:       "t1",
		ConversationID: conversationID,
		CustomerID:     "5511999990000",
		AgentID:        "agent-1",
	}
}

func seedProduct(t *testing.T, st *store.Store, name, color string, stock int, imageURL string) {
	t.Helper()
	require.NoError(t, st.CreateProduct(context.Background(), &model.Product{
		ID:       name + "-" + color,
		TenantID: "t1",
		Name:     name,
		Color:    color,
		Price:    59.9,
		Stock:    stock,
		ImageURL: imageURL,
	}))
}

func TestBuscarProdutoFound(t *testing.T) {
	exec, st := newTestExecutor(t)
	seedProduct(t, st, "Camiseta Basica", "azul", 12, "https://cdn.example.com/camiseta.jpg")

	res := exec.Execute(context.Background(), testScope("c1"), Invocation{
		Kind: KindBuscarProduto,
		Args: json.RawMessage(`{"termo":"camiseta","cor":"azul"}`),
	})

	require.True(t, res.Success)
	assert.Nil(t, res.FollowUp)
	assert.Equal(t, true, res.Data["found"])

	require.NotNil(t, res.Attachment)
	assert.Equal(t, AttachmentImage, res.Attachment.Kind)
	assert.Equal(t, "https://cdn.example.com/camiseta.jpg", res.Attachment.URL)

	// The model-visible payload carries availability but not media URLs.
	payload := res.ModelPayload()
	assert.Contains(t, payload, "Camiseta Basica")
	assert.NotContains(t, payload, "cdn.example.com")
}

func TestBuscarProdutoEmptyTriggersVerification(t *testing.T) {
	exec, _ := newTestExecutor(t)

	res := exec.Execute(context.Background(), testScope("c1"), Invocation{
		Kind: KindBuscarProduto,
		Args: json.RawMessage(`{"termo":"jaqueta de couro"}`),
	})

	require.True(t, res.Success)
	assert.Equal(t, false, res.Data["found"])
	require.NotNil(t, res.FollowUp)
	assert.Equal(t, KindSolicitarVerificacao, res.FollowUp.Kind)
}

func TestBuscarProdutoColorFilter(t *testing.T) {
	exec, st := newTestExecutor(t)
	seedProduct(t, st, "Camiseta Basica", "azul", 5, "")
	seedProduct(t, st, "Camiseta Basica", "vermelha", 5, "")

	res := exec.Execute(context.Background(), testScope("c1"), Invocation{
		Kind: KindBuscarProduto,
		Args: json.RawMessage(`{"termo":"camiseta","cor":"vermelha"}`),
	})

	require.True(t, res.Success)
	produtos, ok := res.Data["produtos"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, produtos, 1)
	assert.Equal(t, "vermelha", produtos[0]["cor"])
}

func TestCriarVendaPersistsOrderAndAudit(t *testing.T) {
	exec, st := newTestExecutor(t)
	ctx := context.Background()

	res := exec.Execute(ctx, testScope("c1"), Invocation{
		Kind: KindCriarVenda,
		Args: json.RawMessage(`{"produto":"Camiseta Basica","quantidade":2,"valor_total":119.8}`),
	})

	require.True(t, res.Success)
	assert.NotEmpty(t, res.Data["order_id"])

	active, err := st.HasActiveOrder(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, active)

	logged, err := st.HasRecentAudit(ctx, "c1",
		[]model.AuditAction{model.AuditSaleCompleted}, time.Time{})
	require.NoError(t, err)
	assert.True(t, logged)
}

func TestTransferirHumanoChangesStatus(t *testing.T) {
	exec, st := newTestExecutor(t)
	ctx := context.Background()

	conv, _, err := st.FindOrCreateConversation(ctx, "t1", "5511999990000", "sess-1")
	require.NoError(t, err)

	res := exec.Execute(ctx, testScope(conv.ID), Invocation{
		Kind: KindTransferirHumano,
		Args: json.RawMessage(`{"motivo":"cliente pediu atendente"}`),
	})
	require.True(t, res.Success)

	got, err := st.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusHumanHandling, got.Status)
}

func TestEncerrarConversaClosesAndFreesOpenKey(t *testing.T) {
	exec, st := newTestExecutor(t)
	ctx := context.Background()

	conv, _, err := st.FindOrCreateConversation(ctx, "t1", "5511999990000", "sess-1")
	require.NoError(t, err)

	res := exec.Execute(ctx, testScope(conv.ID), Invocation{
		Kind: KindEncerrarConversa,
		Args: json.RawMessage(`{"motivo":"atendimento concluído"}`),
	})
	require.True(t, res.Success)

	got, err := st.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusClosed, got.Status)

	// A new first message may open a fresh conversation afterwards.
	fresh, created, err := st.FindOrCreateConversation(ctx, "t1", "5511999990000", "sess-1")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, conv.ID, fresh.ID)
}

func TestExecuteUnknownTool(t *testing.T) {
	exec, _ := newTestExecutor(t)

	res := exec.Execute(context.Background(), testScope("c1"), Invocation{
		Kind: Kind("apagarTudo"),
		Args: json.RawMessage(`{}`),
	})

	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "ferramenta desconhecida")
}

func TestInvalidArgumentsBecomeFailureResults(t *testing.T) {
	exec, _ := newTestExecutor(t)
	ctx := context.Background()

	res := exec.Execute(ctx, testScope("c1"), Invocation{
		Kind: KindCriarVenda,
		Args: json.RawMessage(`{"produto":""}`),
	})
	assert.False(t, res.Success)

	res = exec.Execute(ctx, testScope("c1"), Invocation{
		Kind: KindBuscarProduto,
		Args: json.RawMessage(`not json`),
	})
	assert.False(t, res.Success)
}
