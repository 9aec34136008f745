/*
store.go - Persistence interface for the star economy

PURPOSE:
  Defines the interface between the domain logic and the database. The core
  treats persistence as an external transactional system: every method is a
  single round trip, and multi-step operations sequence them with explicit
  compensation (see redemption.go).

BALANCE WRITES:
  Child.Stars has exactly three writers, all on this interface:
  - UpdateChildStars: reconciliation overwriting the derived total
  - DebitChildStars:  conditional decrement (stars >= amount), closing the
                      read-modify-write race on redemption
  - CreditChildStars: additive refund on cancellation
  No other code path may touch the balance.

IMPLEMENTATIONS:
  - store/sqlite: production SQLite store
  - stars/store:  in-memory store for tests and dev

SEE ALSO:
  - reconcile.go: consumes the habit/completion queries
  - redemption.go: consumes the redemption and balance methods
*/
package stars

import (
	"context"
	"time"
)

// Store is the persistence contract the engine runs against.
//
// Missing rows are reported with ErrNotFound (wrapped). Uniqueness
// violations on (habit_id, completed_date) are reported with
// ErrDuplicateCompletion.
type Store interface {
	// Children
	SaveChild(ctx context.Context, c Child) error
	GetChild(ctx context.Context, id string) (*Child, error)
	ListChildren(ctx context.Context, parentID string) ([]Child, error)
	DeleteChild(ctx context.Context, id string) error

	// UpdateChildStars overwrites the stored balance with a derived total.
	UpdateChildStars(ctx context.Context, id string, stars int) error
	// DebitChildStars decrements the balance only if stars >= amount,
	// returning *InsufficientStarsError otherwise.
	DebitChildStars(ctx context.Context, id string, amount int) error
	// CreditChildStars adds amount to the current balance (read-then-add is
	// collapsed into one statement; stars earned since the debit survive).
	CreditChildStars(ctx context.Context, id string, amount int) error

	// Habits
	SaveHabit(ctx context.Context, h Habit) error
	GetHabit(ctx context.Context, id string) (*Habit, error)
	ListActiveHabits(ctx context.Context, childID string) ([]Habit, error)

	// Completions
	InsertCompletion(ctx context.Context, c Completion) error
	GetCompletion(ctx context.Context, id string) (*Completion, error)
	ListCompletionsOnDate(ctx context.Context, childID, date string) ([]Completion, error)
	ListApprovedCompletions(ctx context.Context, childID string) ([]Completion, error)
	ListPendingCompletions(ctx context.Context) ([]PendingCompletion, error)
	UpdateCompletionStars(ctx context.Context, id string, stars int) error
	MarkCompletionApproved(ctx context.Context, id string, at time.Time, by string) error
	MarkCompletionRejected(ctx context.Context, id string, at time.Time, reason string) error

	// Rewards
	SaveReward(ctx context.Context, r Reward) error
	GetReward(ctx context.Context, id string) (*Reward, error)
	ListActiveRewards(ctx context.Context, parentID string) ([]Reward, error)

	// Redemptions
	InsertRedemption(ctx context.Context, r Redemption) error
	GetRedemption(ctx context.Context, id string) (*Redemption, error)
	UpdateRedemptionStatus(ctx context.Context, id string, status RedemptionStatus, fulfilledAt *time.Time) error
	ListRedemptionsForChild(ctx context.Context, childID string) ([]RedemptionDetail, error)
	ListPendingRedemptions(ctx context.Context) ([]RedemptionDetail, error)
}
