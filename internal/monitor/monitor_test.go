package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atendai/conversation-pipeline/internal/channel"
	"github.com/atendai/conversation-pipeline/internal/memory"
	"github.com/atendai/conversation-pipeline/internal/model"
	"github.com/atendai/conversation-pipeline/internal/realtime"
	"github.com/atendai/conversation-pipeline/internal/store"
	"github.com/atendai/conversation-pipeline/internal/webhook"
	"github.com/atendai/conversation-pipeline/pkg/logger"
)

type fakeAdapter struct {
	mu        sync.Mutex
	connected bool
	sent      []string
}

func (f *fakeAdapter) SendText(ctx context.Context, sessionID, to, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeAdapter) SendFile(ctx context.Context, sessionID, to, fileURL, caption string) error {
	return nil
}

func (f *fakeAdapter) SendImage(ctx context.Context, sessionID, to, imageURL, caption string) error {
	return nil
}

func (f *fakeAdapter) GetStatus(ctx context.Context, sessionID string) (channel.SessionStatus, error) {
	return channel.SessionStatus{Connected: f.connected, State: "CONNECTED"}, nil
}

func (f *fakeAdapter) StartSession(ctx context.Context, sessionID string) error { return nil }
func (f *fakeAdapter) Logout(ctx context.Context, sessionID string) error       { return nil }

func (f *fakeAdapter) sentMessages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

type fixture struct {
	store   *store.Store
	adapter *fakeAdapter
	monitor *Monitor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)

	log := logger.NewNop()
	adapter := &fakeAdapter{connected: true}
	mem := memory.NewManager(st, nil, "", log)
	hooks := webhook.NewDispatcher(st, log)
	emitter := realtime.NewEmitter(nil, log)

	mon := New(st, adapter, mem, hooks, emitter, log, 15*time.Minute, 30*time.Minute)
	return &fixture{store: st, adapter: adapter, monitor: mon}
}

// staleConversation creates an AI_HANDLING conversation whose last
// message (from the given sender) is inactiveFor old.
func (f *fixture) staleConversation(t *testing.T, sender model.Sender, inactiveFor time.Duration) *model.Conversation {
	t.Helper()
	ctx := context.Background()

	conv, created, err := f.store.FindOrCreateConversation(ctx, "t1", "5511999990000", "sess-1")
	require.NoError(t, err)
	require.True(t, created)
	require.NoError(t, f.store.AssignAgent(ctx, conv.ID, "agent-1"))

	at := time.Now().Add(-inactiveFor)
	msg := model.NewAIMessage(conv.ID, conv.TenantID, "em que mais posso ajudar?")
	if sender == model.SenderCustomer {
		msg = model.NewCustomerMessage(conv.ID, conv.TenantID, "vou pensar", model.MessageTypeText, nil)
	}
	msg.CreatedAt = at
	require.NoError(t, f.store.CreateMessage(ctx, msg))
	require.NoError(t, f.store.TouchConversation(ctx, conv.ID, at, sender == model.SenderCustomer))

	conv, err = f.store.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	return conv
}

func (f *fixture) status(t *testing.T, id string) model.ConversationStatus {
	t.Helper()
	conv, err := f.store.GetConversation(context.Background(), id)
	require.NoError(t, err)
	return conv.Status
}

func TestSweepWarnsInactiveConversation(t *testing.T) {
	f := newFixture(t)
	conv := f.staleConversation(t, model.SenderAI, 20*time.Minute)

	f.monitor.Sweep(context.Background())

	sent := f.adapter.sentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, warningMessage, sent[0])
	assert.Equal(t, model.StatusAIHandling, f.status(t, conv.ID))

	warned, err := f.store.HasRecentAudit(context.Background(), conv.ID,
		[]model.AuditAction{model.AuditInactivityWarning}, conv.LastMessageAt)
	require.NoError(t, err)
	assert.True(t, warned)
}

func TestSweepWarnsOnlyOncePerWindow(t *testing.T) {
	f := newFixture(t)
	f.staleConversation(t, model.SenderAI, 20*time.Minute)

	f.monitor.Sweep(context.Background())
	f.monitor.Sweep(context.Background())
	f.monitor.Sweep(context.Background())

	assert.Len(t, f.adapter.sentMessages(), 1)
}

func TestSweepClosesAfterWarning(t *testing.T) {
	f := newFixture(t)
	conv := f.staleConversation(t, model.SenderAI, 35*time.Minute)

	// Prior warning on record.
	require.NoError(t, f.store.AppendAudit(context.Background(), conv.TenantID, conv.ID,
		model.AuditInactivityWarning, "aviso de inatividade enviado"))

	f.monitor.Sweep(context.Background())

	sent := f.adapter.sentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, closingMessage, sent[0])
	assert.Equal(t, model.StatusClosed, f.status(t, conv.ID))
}

func TestSweepNeverClosesWithoutWarning(t *testing.T) {
	f := newFixture(t)
	conv := f.staleConversation(t, model.SenderAI, 35*time.Minute)

	f.monitor.Sweep(context.Background())

	// Past the close threshold with no warning on record: the warning
	// goes out late instead of closing unannounced.
	sent := f.adapter.sentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, warningMessage, sent[0])
	assert.Equal(t, model.StatusAIHandling, f.status(t, conv.ID))
}

func TestSweepSkipsWhenCustomerSpokeLast(t *testing.T) {
	f := newFixture(t)
	conv := f.staleConversation(t, model.SenderCustomer, 35*time.Minute)

	f.monitor.Sweep(context.Background())

	assert.Empty(t, f.adapter.sentMessages())
	assert.Equal(t, model.StatusAIHandling, f.status(t, conv.ID))
}

func TestSweepSkipsConversationWithActiveOrder(t *testing.T) {
	f := newFixture(t)
	conv := f.staleConversation(t, model.SenderAI, 20*time.Minute)

	require.NoError(t, f.store.CreateOrder(context.Background(), &model.Order{
		ID:             "ord-1",
		TenantID:       conv.TenantID,
		ConversationID: conv.ID,
		CustomerID:     conv.CustomerID,
		Status:         model.OrderActive,
	}))

	f.monitor.Sweep(context.Background())

	assert.Empty(t, f.adapter.sentMessages())
	assert.Equal(t, model.StatusAIHandling, f.status(t, conv.ID))
}

func TestSweepSilentlyClosesCompletedWork(t *testing.T) {
	f := newFixture(t)
	conv := f.staleConversation(t, model.SenderAI, 35*time.Minute)

	require.NoError(t, f.store.CreateOrder(context.Background(), &model.Order{
		ID:             "ord-1",
		TenantID:       conv.TenantID,
		ConversationID: conv.ID,
		CustomerID:     conv.CustomerID,
		Status:         model.OrderActive,
	}))

	f.monitor.Sweep(context.Background())

	// Closed without sending anything: nobody is waiting on a reply.
	assert.Empty(t, f.adapter.sentMessages())
	assert.Equal(t, model.StatusClosed, f.status(t, conv.ID))
}

func TestSweepSkipsDisconnectedSession(t *testing.T) {
	f := newFixture(t)
	conv := f.staleConversation(t, model.SenderAI, 20*time.Minute)
	f.adapter.connected = false

	f.monitor.Sweep(context.Background())

	assert.Empty(t, f.adapter.sentMessages())
	assert.Equal(t, model.StatusAIHandling, f.status(t, conv.ID))
}

func TestSweepIgnoresFreshConversations(t *testing.T) {
	f := newFixture(t)
	conv := f.staleConversation(t, model.SenderAI, 5*time.Minute)

	f.monitor.Sweep(context.Background())

	assert.Empty(t, f.adapter.sentMessages())
	assert.Equal(t, model.StatusAIHandling, f.status(t, conv.ID))
}
