package util

import (
	"errors"
	"fmt"
)

var (
	ErrEmailRegistered    = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrCycleDetected      = errors.New("prerequisite graph would contain a cycle")
)

// ValidationError rejects bad input. Never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// AttemptLimitExceededError is returned when a learner has used up
// max_attempts without passing.
type AttemptLimitExceededError struct {
	AssessmentID string
	MaxAttempts  int
}

func (e *AttemptLimitExceededError) Error() string {
	return fmt.Sprintf("attempt limit (%d) exceeded for assessment %s", e.MaxAttempts, e.AssessmentID)
}

// AlreadyPassedError redirects callers to the existing passing attempt
// instead of accepting a new submission.
type AlreadyPassedError struct {
	AssessmentID string
	AttemptID    uint
}

func (e *AlreadyPassedError) Error() string {
	return fmt.Sprintf("assessment %s already passed (attempt %d)", e.AssessmentID, e.AttemptID)
}

type TimeLimitExceededError struct {
	AssessmentID string
	LimitSeconds int
}

func (e *TimeLimitExceededError) Error() string {
	return fmt.Sprintf("time limit (%ds) exceeded for assessment %s", e.LimitSeconds, e.AssessmentID)
}

// AdvisorError wraps a failure of the recommendation advisor. Retryable
// marks whether the resilience layer may retry the call.
type AdvisorError struct {
	Retryable bool
	Err       error
}

func (e *AdvisorError) Error() string {
	return fmt.Sprintf("advisor error (retryable=%t): %v", e.Retryable, e.Err)
}

func (e *AdvisorError) Unwrap() error { return e.Err }

// ConcurrencyConflictError signals an optimistic-concurrency mismatch.
// Mutations retry once against fresh state before surfacing it.
type ConcurrencyConflictError struct {
	Resource string
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("concurrent modification of %s", e.Resource)
}
