package resilience

import (
	"errors"
	"sync"
	"time"

	"github.com/atendai/conversation-pipeline/pkg/metrics"
)

// ErrBreakerOpen is returned when the circuit is open and calls are being
// short-circuited.
var ErrBreakerOpen = errors.New("circuit breaker is open")

// BreakerState is the current state of a circuit breaker.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerHalfOpen
	BreakerOpen
)

// CircuitBreaker trips open after a run of consecutive failures,
// short-circuiting calls for a cool-down period before allowing a single
// probe (half-open).
type CircuitBreaker struct {
	name      string
	threshold int
	coolDown  time.Duration

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	probing  bool

	now func() time.Time
}

// NewCircuitBreaker creates a breaker that opens after threshold
// consecutive failures and stays open for coolDown.
func NewCircuitBreaker(name string, threshold int, coolDown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if coolDown <= 0 {
		coolDown = 30 * time.Second
	}
	return &CircuitBreaker{
		name:      name,
		threshold: threshold,
		coolDown:  coolDown,
		now:       time.Now,
	}
}

// State returns the breaker's current state.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Do runs fn through the breaker.
func (cb *CircuitBreaker) Do(fn func() error) error {
	if err := cb.allow(); err != nil {
		return err
	}

	err := fn()
	cb.record(err == nil)
	return err
}

func (cb *CircuitBreaker) allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case BreakerClosed:
		return nil
	case BreakerOpen:
		if cb.now().Sub(cb.openedAt) < cb.coolDown {
			return ErrBreakerOpen
		}
		cb.setState(BreakerHalfOpen)
		cb.probing = true
		return nil
	case BreakerHalfOpen:
		if cb.probing {
			return ErrBreakerOpen
		}
		cb.probing = true
		return nil
	}
	return nil
}

func (cb *CircuitBreaker) record(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.probing = false

	if success {
		cb.failures = 0
		cb.setState(BreakerClosed)
		return
	}

	if cb.state == BreakerHalfOpen {
		cb.openedAt = cb.now()
		cb.setState(BreakerOpen)
		return
	}

	cb.failures++
	if cb.failures >= cb.threshold {
		cb.openedAt = cb.now()
		cb.setState(BreakerOpen)
	}
}

func (cb *CircuitBreaker) setState(s BreakerState) {
	cb.state = s
	metrics.BreakerState.WithLabelValues(cb.name).Set(float64(s))
}
