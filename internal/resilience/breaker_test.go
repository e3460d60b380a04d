package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUpstream = errors.New("upstream degraded")

func fail() error    { return errUpstream }
func succeed() error { return nil }

func newTestBreaker(threshold int, coolDown time.Duration) (*CircuitBreaker, *time.Time) {
	cb := NewCircuitBreaker("test", threshold, coolDown)
	clock := time.Now()
	cb.now = func() time.Time { return clock }
	return cb, &clock
}

func TestBreakerStaysClosedUnderThreshold(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Minute)

	assert.ErrorIs(t, cb.Do(fail), errUpstream)
	assert.ErrorIs(t, cb.Do(fail), errUpstream)
	assert.Equal(t, BreakerClosed, cb.State())

	// A success resets the failure run.
	require.NoError(t, cb.Do(succeed))
	assert.ErrorIs(t, cb.Do(fail), errUpstream)
	assert.ErrorIs(t, cb.Do(fail), errUpstream)
	assert.Equal(t, BreakerClosed, cb.State())
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Minute)

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Do(fail), errUpstream)
	}
	assert.Equal(t, BreakerOpen, cb.State())

	// Calls are short-circuited: fn must not run.
	calls := 0
	err := cb.Do(func() error {
		calls++
		return nil
	})
	assert.ErrorIs(t, err, ErrBreakerOpen)
	assert.Zero(t, calls)
}

func TestBreakerHalfOpenProbeSuccessCloses(t *testing.T) {
	cb, clock := newTestBreaker(2, time.Minute)

	assert.Error(t, cb.Do(fail))
	assert.Error(t, cb.Do(fail))
	require.Equal(t, BreakerOpen, cb.State())

	*clock = clock.Add(61 * time.Second)

	require.NoError(t, cb.Do(succeed))
	assert.Equal(t, BreakerClosed, cb.State())
	require.NoError(t, cb.Do(succeed))
}

func TestBreakerHalfOpenAllowsSingleProbe(t *testing.T) {
	cb, clock := newTestBreaker(1, time.Minute)

	assert.Error(t, cb.Do(fail))
	require.Equal(t, BreakerOpen, cb.State())

	*clock = clock.Add(61 * time.Second)

	// First caller gets the probe slot, a concurrent one is rejected
	// until the probe outcome is recorded.
	require.NoError(t, cb.allow())
	assert.ErrorIs(t, cb.allow(), ErrBreakerOpen)
	cb.record(true)
	assert.Equal(t, BreakerClosed, cb.State())
}

func TestBreakerHalfOpenProbeFailureReopens(t *testing.T) {
	cb, clock := newTestBreaker(2, time.Minute)

	assert.Error(t, cb.Do(fail))
	assert.Error(t, cb.Do(fail))
	require.Equal(t, BreakerOpen, cb.State())

	*clock = clock.Add(61 * time.Second)

	assert.ErrorIs(t, cb.Do(fail), errUpstream)
	assert.Equal(t, BreakerOpen, cb.State())

	// The fresh open period starts from the failed probe.
	assert.ErrorIs(t, cb.Do(succeed), ErrBreakerOpen)
	*clock = clock.Add(61 * time.Second)
	require.NoError(t, cb.Do(succeed))
	assert.Equal(t, BreakerClosed, cb.State())
}

func TestBreakerReusesDefaults(t *testing.T) {
	cb := NewCircuitBreaker("defaults", 0, 0)
	assert.Equal(t, 5, cb.threshold)
	assert.Equal(t, 30*time.Second, cb.coolDown)
}
