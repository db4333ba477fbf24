package core

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrNotFound is a sentinel error for "not found" cases
var ErrNotFound = errors.New("not found")

// ErrAccessDenied is returned when the authenticated principal does not own the
// resource it is trying to act on
var ErrAccessDenied = errors.New("access denied")

// ErrStaleTransition is returned when a conditional status write lost the race
// because the agent is no longer in the expected status. Callers absorb it
// silently - it is the expected outcome of duplicate or out-of-order callbacks,
// not a fault.
var ErrStaleTransition = errors.New("stale transition")

// ErrFundingNotReady is returned when the brokerage rejects a transfer because
// the underlying bank relationship has not reached a ready state yet. This is a
// transient condition - the owner retries after a delay.
var ErrFundingNotReady = errors.New("bank relationship is still being established, retry funding later")

// ErrConcurrencyLimitExceeded is returned when an owner already has the maximum
// allowed number of agents with a live deployment
var ErrConcurrencyLimitExceeded = errors.New("too many running deployments for owner")

// ValidationFailedError is returned by the submission gateway when strategy code
// fails the static checks. It carries the first violation found.
type ValidationFailedError struct {
	Violation string
}

func (e *ValidationFailedError) Error() string {
	return fmt.Sprintf("validation failed: %s", e.Violation)
}

// InvalidStateError is returned when an owner-initiated operation is not
// allowed from the agent's current status
type InvalidStateError struct {
	Operation string
	Current   string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s is not allowed while agent is in status %q", e.Operation, e.Current)
}

// ExternalServiceError wraps a synchronous failure of an external collaborator
// call. The agent's status is left unchanged when this is returned, so the
// caller can re-attempt the operation.
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s call failed: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}

// IsNotFoundError checks if an error is a "not found" error
// This function handles both the ErrNotFound sentinel error and legacy string-based errors
func IsNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotFound) {
		return true
	}
	// Check for legacy string-based errors for backward compatibility
	return containsNotFound(err.Error())
}

// containsNotFound checks if an error message contains "not found"
func containsNotFound(errMsg string) bool {
	return len(errMsg) > 0 && (regexp.MustCompile(`(?i)not found`).MatchString(errMsg))
}
