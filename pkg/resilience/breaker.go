package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without invoking the wrapped operation
// while the breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker open")

type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// CircuitBreaker opens after Threshold consecutive failures and
// rejects calls for Timeout. After the timeout elapses exactly one
// trial call is let through: its success closes the breaker, its
// failure re-opens it.
type CircuitBreaker struct {
	mu        sync.Mutex
	threshold int
	timeout   time.Duration

	state    CircuitState
	failures int
	openedAt time.Time

	now func() time.Time // test hook
}

func NewCircuitBreaker(threshold int, timeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		threshold: threshold,
		timeout:   timeout,
		state:     StateClosed,
		now:       time.Now,
	}
}

func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Execute runs op under the breaker's admission rules.
func (cb *CircuitBreaker) Execute(op func() error) error {
	if err := cb.admit(); err != nil {
		return err
	}

	err := op()
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.timeout {
			return ErrCircuitOpen
		}
		// This caller becomes the single half-open probe.
		cb.state = StateHalfOpen
		return nil
	default: // StateHalfOpen: a probe is already in flight
		return ErrCircuitOpen
	}
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		cb.state = StateClosed
		cb.failures = 0
		return
	}

	if cb.state == StateHalfOpen {
		cb.state = StateOpen
		cb.openedAt = cb.now()
		return
	}

	cb.failures++
	if cb.failures >= cb.threshold {
		cb.state = StateOpen
		cb.openedAt = cb.now()
		cb.failures = 0
	}
}
