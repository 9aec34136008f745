/*
completions.go - Completion lifecycle and approval

PURPOSE:
  A child marks a habit done, creating a pending completion. A parent
  approves or rejects it. Either decision immediately triggers
  reconciliation for that child+day, so the balance reflects the new
  approval state before control returns to the caller.

MONOTONICITY:
  pending -> approved and pending -> rejected are the only transitions.
  Re-approving, re-rejecting, or flipping a decided completion fails with
  ErrInvalidState.
*/
package stars

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateCompletion records that a child marked a habit done on the given day
// (YYYY-MM-DD). The completion starts pending with zero stars. At most one
// completion may exist per habit per day; violations return
// ErrDuplicateCompletion.
func (l *Ledger) CreateCompletion(ctx context.Context, habitID, childID, date string) (*Completion, error) {
	if _, err := time.Parse(DayFormat, date); err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", date, err)
	}

	habit, err := l.store.GetHabit(ctx, habitID)
	if err != nil {
		return nil, fmt.Errorf("get habit: %w", err)
	}
	if habit.ChildID != childID {
		return nil, fmt.Errorf("habit %s does not belong to child %s: %w", habitID, childID, ErrNotFound)
	}

	c := Completion{
		ID:            uuid.NewString(),
		HabitID:       habitID,
		ChildID:       childID,
		CompletedDate: date,
		CompletedAt:   time.Now().UTC(),
	}
	if err := l.store.InsertCompletion(ctx, c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ApproveCompletion marks a pending completion approved and reconciles the
// child's stars for that day.
func (l *Ledger) ApproveCompletion(ctx context.Context, completionID string) (DayResult, error) {
	c, err := l.store.GetCompletion(ctx, completionID)
	if err != nil {
		return DayResult{}, err
	}

	unlock := l.lockChild(c.ChildID)
	defer unlock()

	// Re-read under the lock; a concurrent decision may have landed.
	c, err = l.store.GetCompletion(ctx, completionID)
	if err != nil {
		return DayResult{}, err
	}
	if c.Status() != ApprovalPending {
		return DayResult{}, &InvalidStateError{
			Kind: "completion", ID: completionID,
			Current: string(c.Status()), Attempt: "approve",
		}
	}

	if err := l.store.MarkCompletionApproved(ctx, completionID, time.Now().UTC(), "parent"); err != nil {
		return DayResult{}, fmt.Errorf("approve completion: %w", err)
	}
	return l.reconcileLocked(ctx, c.ChildID, c.CompletedDate)
}

// RejectCompletion marks a pending completion rejected and reconciles the
// child's stars for that day. Rejection can revoke previously visible
// credits (e.g. when a core approval disappears, the whole day zeroes out).
func (l *Ledger) RejectCompletion(ctx context.Context, completionID, reason string) (DayResult, error) {
	c, err := l.store.GetCompletion(ctx, completionID)
	if err != nil {
		return DayResult{}, err
	}

	unlock := l.lockChild(c.ChildID)
	defer unlock()

	c, err = l.store.GetCompletion(ctx, completionID)
	if err != nil {
		return DayResult{}, err
	}
	if c.Status() != ApprovalPending {
		return DayResult{}, &InvalidStateError{
			Kind: "completion", ID: completionID,
			Current: string(c.Status()), Attempt: "reject",
		}
	}

	if err := l.store.MarkCompletionRejected(ctx, completionID, time.Now().UTC(), reason); err != nil {
		return DayResult{}, fmt.Errorf("reject completion: %w", err)
	}
	return l.reconcileLocked(ctx, c.ChildID, c.CompletedDate)
}

// ListPendingApprovals returns the parent approval queue, oldest first.
func (l *Ledger) ListPendingApprovals(ctx context.Context) ([]PendingCompletion, error) {
	return l.store.ListPendingCompletions(ctx)
}

// ListCompletionsOnDate returns a child's completions for one day.
func (l *Ledger) ListCompletionsOnDate(ctx context.Context, childID, date string) ([]Completion, error) {
	return l.store.ListCompletionsOnDate(ctx, childID, date)
}
