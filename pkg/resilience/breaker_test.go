package resilience

import (
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

// testClock lets the tests move the breaker's clock by hand.
type testClock struct {
	t time.Time
}

func (c *testClock) now() time.Time { return c.t }

func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(threshold int, timeout time.Duration) (*CircuitBreaker, *testClock) {
	cb := NewCircuitBreaker(threshold, timeout)
	clock := &testClock{t: time.Unix(1000, 0)}
	cb.now = clock.now
	return cb, clock
}

func fail(cb *CircuitBreaker) error {
	return cb.Execute(func() error { return errBoom })
}

func succeed(cb *CircuitBreaker) error {
	return cb.Execute(func() error { return nil })
}

func TestBreaker_OpensAfterThresholdFailures(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Minute)

	for i := 0; i < 3; i++ {
		if cb.State() != StateClosed {
			t.Fatalf("expected closed before failure %d, got %v", i, cb.State())
		}
		if err := fail(cb); !errors.Is(err, errBoom) {
			t.Fatalf("expected operation error, got %v", err)
		}
	}

	if cb.State() != StateOpen {
		t.Fatalf("expected open after threshold failures, got %v", cb.State())
	}
	if err := fail(cb); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Minute)

	fail(cb)
	fail(cb)
	succeed(cb)
	fail(cb)
	fail(cb)

	if cb.State() != StateClosed {
		t.Fatalf("expected closed, got %v", cb.State())
	}
}

func TestBreaker_RejectsUntilTimeoutElapses(t *testing.T) {
	cb, clock := newTestBreaker(1, time.Minute)

	fail(cb)
	if cb.State() != StateOpen {
		t.Fatalf("expected open, got %v", cb.State())
	}

	clock.advance(59 * time.Second)
	if err := succeed(cb); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected rejection before timeout, got %v", err)
	}

	clock.advance(2 * time.Second)
	if err := succeed(cb); err != nil {
		t.Fatalf("expected trial call after timeout, got %v", err)
	}
	if cb.State() != StateClosed {
		t.Fatalf("expected closed after successful trial, got %v", cb.State())
	}
}

func TestBreaker_FailedTrialReopens(t *testing.T) {
	cb, clock := newTestBreaker(1, time.Minute)

	fail(cb)
	clock.advance(2 * time.Minute)

	if err := fail(cb); !errors.Is(err, errBoom) {
		t.Fatalf("expected trial to run, got %v", err)
	}
	if cb.State() != StateOpen {
		t.Fatalf("expected reopen after failed trial, got %v", cb.State())
	}

	// The open window restarts from the failed trial.
	clock.advance(59 * time.Second)
	if err := succeed(cb); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected rejection inside the new window, got %v", err)
	}
}

func TestBreaker_SingleHalfOpenProbe(t *testing.T) {
	cb, clock := newTestBreaker(1, time.Minute)

	fail(cb)
	clock.advance(2 * time.Minute)

	probeRunning := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- cb.Execute(func() error {
			close(probeRunning)
			<-release
			return nil
		})
	}()

	<-probeRunning
	// While the probe is in flight every other caller is rejected.
	if err := succeed(cb); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected concurrent caller rejection, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("probe failed: %v", err)
	}
	if cb.State() != StateClosed {
		t.Fatalf("expected closed after probe success, got %v", cb.State())
	}
}
