package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func retryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  1 * time.Millisecond,
		MaxDelay:   10 * time.Millisecond,
	}
}

var errTransient = errors.New("transient")
var errPermanent = errors.New("permanent")

func alwaysRetryable(error) bool  { return true }
func neverRetryable(error) bool   { return false }
func retryTransient(err error) bool { return errors.Is(err, errTransient) }

func TestRetry_SucceedsOnFirstAttempt(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), retryConfig(), func(ctx context.Context) error {
		calls++
		return nil
	}, alwaysRetryable)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestRetry_TransientThenSuccess(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), retryConfig(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	}, retryTransient)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestRetry_AllAttemptsFail(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), retryConfig(), func(ctx context.Context) error {
		calls++
		return errTransient
	}, retryTransient)
	if !errors.Is(err, errTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	// 1 initial attempt + MaxRetries retries.
	if calls != 4 {
		t.Fatalf("expected 4 calls, got %d", calls)
	}
}

func TestRetry_NonRetryableStopsImmediately(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), retryConfig(), func(ctx context.Context) error {
		calls++
		return errPermanent
	}, retryTransient)
	if !errors.Is(err, errPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestRetry_NilRetryableRetriesEverything(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), retryConfig(), func(ctx context.Context) error {
		calls++
		return errPermanent
	}, nil)
	if !errors.Is(err, errPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if calls != 4 {
		t.Fatalf("expected 4 calls, got %d", calls)
	}
}

func TestRetry_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	cfg := RetryConfig{MaxRetries: 5, BaseDelay: 50 * time.Millisecond}

	err := RetryWithBackoff(ctx, cfg, func(ctx context.Context) error {
		calls++
		cancel()
		return errTransient
	}, alwaysRetryable)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestRetry_BackoffDoubles(t *testing.T) {
	var gaps []time.Duration
	last := time.Now()
	cfg := RetryConfig{MaxRetries: 2, BaseDelay: 20 * time.Millisecond}

	_ = RetryWithBackoff(context.Background(), cfg, func(ctx context.Context) error {
		now := time.Now()
		gaps = append(gaps, now.Sub(last))
		last = now
		return errTransient
	}, alwaysRetryable)

	if len(gaps) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(gaps))
	}
	// Second retry waits roughly twice the first.
	if gaps[2] < gaps[1] {
		t.Fatalf("expected growing backoff, got %v then %v", gaps[1], gaps[2])
	}
}
