package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atendai/conversation-pipeline/pkg/logger"
)

func newLocalLimiter() (*RateLimiter, *time.Time) {
	rl := NewRateLimiter(nil, logger.NewNop())
	clock := time.Now()
	rl.now = func() time.Time { return clock }
	return rl, &clock
}

func TestRateLimiterEnforcesPresetLimit(t *testing.T) {
	rl, _ := newLocalLimiter()
	ctx := context.Background()

	// auth preset: 10 per minute.
	for i := 1; i <= 10; i++ {
		res := rl.Allow(ctx, PresetAuth, "tenant:t1")
		assert.True(t, res.Allowed, "request %d", i)
		assert.Equal(t, 10, res.Limit)
		assert.Equal(t, 10-i, res.Remaining)
	}

	res := rl.Allow(ctx, PresetAuth, "tenant:t1")
	assert.False(t, res.Allowed)
	assert.Zero(t, res.Remaining)
}

func TestRateLimiterWindowsAreIndependent(t *testing.T) {
	rl, _ := newLocalLimiter()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		rl.Allow(ctx, PresetAuth, "tenant:t1")
	}
	assert.False(t, rl.Allow(ctx, PresetAuth, "tenant:t1").Allowed)

	// Other identities and other presets keep their own windows.
	assert.True(t, rl.Allow(ctx, PresetAuth, "tenant:t2").Allowed)
	assert.True(t, rl.Allow(ctx, PresetAPI, "tenant:t1").Allowed)
}

func TestRateLimiterWindowResets(t *testing.T) {
	rl, clock := newLocalLimiter()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		rl.Allow(ctx, PresetAuth, "tenant:t1")
	}
	require.False(t, rl.Allow(ctx, PresetAuth, "tenant:t1").Allowed)

	*clock = clock.Add(61 * time.Second)

	res := rl.Allow(ctx, PresetAuth, "tenant:t1")
	assert.True(t, res.Allowed)
	assert.Equal(t, 9, res.Remaining)
}

func TestRateLimiterResetAt(t *testing.T) {
	rl, clock := newLocalLimiter()

	res := rl.Allow(context.Background(), PresetWebhook, "ip:1.2.3.4")
	assert.True(t, res.Allowed)
	assert.Equal(t, 50, res.Limit)
	assert.Equal(t, clock.Add(time.Second), res.ResetAt)
}

func TestRateLimiterUnknownPresetFallsBackToAPI(t *testing.T) {
	rl, _ := newLocalLimiter()

	res := rl.Allow(context.Background(), Preset("bogus"), "tenant:t1")
	assert.True(t, res.Allowed)
	assert.Equal(t, 100, res.Limit)
}
