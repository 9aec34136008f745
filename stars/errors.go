/*
errors.go - Centralized error types for the star engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The API layer maps these to HTTP status codes; the core never formats
  user-facing messages.

ERROR CATEGORIES:
  1. Balance errors - insufficient stars for a redemption
  2. State errors - illegal redemption/approval transitions
  3. Store errors - missing rows, uniqueness violations

USAGE:
  if errors.Is(err, stars.ErrInsufficientStars) { ... }

  var insuff *stars.InsufficientStarsError
  if errors.As(err, &insuff) {
      log.Printf("short %d stars", insuff.Shortfall())
  }
*/
package stars

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInsufficientStars is returned when a redemption costs more than the
	// child's current balance. No writes are performed.
	ErrInsufficientStars = errors.New("insufficient stars")

	// ErrInvalidState is returned for illegal state-machine transitions,
	// e.g. cancelling a fulfilled redemption or re-approving a completion.
	ErrInvalidState = errors.New("invalid state transition")

	// ErrNotFound is returned when a referenced child, habit, completion,
	// reward, or redemption does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateCompletion is returned when a habit already has a
	// completion for the given calendar day.
	ErrDuplicateCompletion = errors.New("habit already completed for this day")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientStarsError provides details about a balance shortage.
type InsufficientStarsError struct {
	ChildID   string
	Available int
	Requested int
}

func (e *InsufficientStarsError) Error() string {
	return fmt.Sprintf("insufficient stars for child %s: available %d, requested %d",
		e.ChildID, e.Available, e.Requested)
}

func (e *InsufficientStarsError) Unwrap() error { return ErrInsufficientStars }

// Shortfall returns how many stars the child is missing.
func (e *InsufficientStarsError) Shortfall() int { return e.Requested - e.Available }

// InvalidStateError describes an illegal transition attempt.
type InvalidStateError struct {
	Kind    string // "redemption" or "completion"
	ID      string
	Current string
	Attempt string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s %s is %s, cannot %s", e.Kind, e.ID, e.Current, e.Attempt)
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

// CompensationError is returned when a multi-step operation failed AND the
// compensating write that should have restored the balance also failed. The
// stored balance is then known to be wrong until the next reconciliation
// pass heals it, so this must never be swallowed.
type CompensationError struct {
	Op           string // operation that failed, e.g. "redeem"
	Cause        error  // the original failure
	Compensation error  // the failed compensating write
}

func (e *CompensationError) Error() string {
	return fmt.Sprintf("%s failed (%v) and compensation also failed: %v",
		e.Op, e.Cause, e.Compensation)
}

func (e *CompensationError) Unwrap() error { return e.Cause }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound reports whether the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsClientError reports whether the error is due to invalid caller input or
// state, as opposed to a persistence failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInsufficientStars) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrDuplicateCompletion)
}
