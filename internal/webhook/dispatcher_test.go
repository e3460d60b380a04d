package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atendai/conversation-pipeline/internal/model"
	"github.com/atendai/conversation-pipeline/internal/store"
	"github.com/atendai/conversation-pipeline/pkg/logger"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *store.Store) {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)

	d := NewDispatcher(st, logger.NewNop())
	d.sleep = func(time.Duration) {}
	return d, st
}

func testHook(url string) *model.Webhook {
	return &model.Webhook{
		ID:         "wh-1",
		TenantID:   "t1",
		URL:        url,
		Events:     []string{string(model.EventSaleCompleted)},
		Secret:     "super-secret",
		Headers:    map[string]string{"X-Custom": "yes"},
		MaxRetries: 3,
		Active:     true,
	}
}

func TestDeliverSignsAndSendsPayload(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var gotBody []byte
	var gotSig, gotCustom string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSig = r.Header.Get(SignatureHeader)
		gotCustom = r.Header.Get("X-Custom")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	body, err := json.Marshal(model.WebhookPayload{
		Event:     model.EventSaleCompleted,
		Timestamp: time.Now().UTC(),
		Data:      map[string]any{"total": 149.9},
	})
	require.NoError(t, err)

	hook := testHook(srv.URL)
	d.Deliver(context.Background(), hook, model.EventSaleCompleted, body)

	assert.Equal(t, body, gotBody)
	assert.Equal(t, "yes", gotCustom)
	// The signature verifies against the exact delivered bytes.
	assert.True(t, VerifySignature(gotBody, hook.Secret, gotSig))
}

func TestDeliverRetriesUntilSuccess(t *testing.T) {
	d, st := newTestDispatcher(t)

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	hook := testHook(srv.URL)
	require.NoError(t, st.CreateWebhook(context.Background(), hook))

	d.Deliver(context.Background(), hook, model.EventSaleCompleted, []byte(`{}`))

	assert.Equal(t, int32(3), calls.Load())

	logs, err := st.ListDeliveryLogs(context.Background(), hook.ID)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.False(t, logs[0].Success)
	assert.Equal(t, http.StatusBadGateway, logs[0].StatusCode)
	assert.Equal(t, 1, logs[0].Attempt)
	assert.False(t, logs[1].Success)
	assert.True(t, logs[2].Success)
	assert.Equal(t, 3, logs[2].Attempt)
}

func TestDeliverStopsAfterMaxRetries(t *testing.T) {
	d, st := newTestDispatcher(t)

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	hook := testHook(srv.URL)
	hook.MaxRetries = 2

	d.Deliver(context.Background(), hook, model.EventSaleCompleted, []byte(`{}`))

	// First attempt plus two retries.
	assert.Equal(t, int32(3), calls.Load())

	logs, err := st.ListDeliveryLogs(context.Background(), hook.ID)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	for _, l := range logs {
		assert.False(t, l.Success)
	}
}

func TestDeliverRecordsConnectionErrors(t *testing.T) {
	d, st := newTestDispatcher(t)

	hook := testHook("http://127.0.0.1:1") // nothing listens here
	hook.MaxRetries = 1

	d.Deliver(context.Background(), hook, model.EventSaleCompleted, []byte(`{}`))

	logs, err := st.ListDeliveryLogs(context.Background(), hook.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	for _, l := range logs {
		assert.False(t, l.Success)
		assert.NotEmpty(t, l.Error)
		assert.Zero(t, l.StatusCode)
	}
}

func TestDispatchOnlyHitsSubscribedActiveHooks(t *testing.T) {
	d, st := newTestDispatcher(t)
	ctx := context.Background()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	subscribed := testHook(srv.URL)
	require.NoError(t, st.CreateWebhook(ctx, subscribed))

	otherEvent := testHook(srv.URL)
	otherEvent.ID = "wh-2"
	otherEvent.Events = []string{string(model.EventLeadCaptured)}
	require.NoError(t, st.CreateWebhook(ctx, otherEvent))

	inactive := testHook(srv.URL)
	inactive.ID = "wh-3"
	inactive.Active = false
	require.NoError(t, st.CreateWebhook(ctx, inactive))

	d.Dispatch("t1", model.EventSaleCompleted, map[string]any{"total": 10})

	assert.Eventually(t, func() bool {
		return calls.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Give stray deliveries a moment to show up; none should.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}
