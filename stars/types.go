/*
Package stars provides the star-accounting core of the family habit tracker.

PURPOSE:
  This package contains the domain types and algorithms for the star economy:
  children complete habits, parents approve them, approved completions earn
  star credits, and stars are spent on rewards through redemptions.

KEY CONCEPTS IN THIS FILE (types.go):
  - Child: owner of habits, completions, redemptions, and a star balance
  - Habit: a core (must-do) or bonus (optional) daily task
  - Completion: a child marking a habit done on a calendar day, pending
    parent approval
  - Reward / Redemption: the catalog item and the spend record

DESIGN PRINCIPLES:
  1. The balance is derived: Child.Stars is always recomputable from the
     approved completion history. Reconciliation converges it (reconcile.go).
  2. Approval is monotonic: a completion moves from pending to approved or
     rejected exactly once and never reverts.
  3. Redemptions are a one-way state machine: pending -> fulfilled or
     pending -> cancelled, nothing else.

SEE ALSO:
  - reconcile.go: Star award policy and balance reconciliation
  - redemption.go: Redemption state machine
  - store.go: Persistence interface
*/
package stars

import "time"

// DayFormat is the calendar-day format used for completion dates.
const DayFormat = "2006-01-02"

// =============================================================================
// CHILD
// =============================================================================

// Child is the account holder of the star economy. Stars is a materialized
// balance; only reconciliation and the redemption ledger may write it.
type Child struct {
	ID        string
	ParentID  string
	Name      string
	Avatar    string
	Stars     int
	CreatedAt time.Time
}

// =============================================================================
// HABIT
// =============================================================================

// HabitCategory groups habits for display. The engine does not interpret it.
type HabitCategory string

const (
	CategoryLearning HabitCategory = "learning"
	CategoryHelping  HabitCategory = "helping"
	CategorySelfCare HabitCategory = "self_care"
	CategoryGrowth   HabitCategory = "growth"
)

// Habit is a daily task. Core habits gate the daily star; bonus habits each
// earn their own star once the gate is open. Inactive habits are excluded
// from reconciliation input but their historical completions remain.
type Habit struct {
	ID          string
	ParentID    string
	ChildID     string
	Title       string
	Description string
	Category    HabitCategory
	IsCore      bool
	Active      bool
	CreatedAt   time.Time
}

// =============================================================================
// COMPLETION
// =============================================================================

// ApprovalStatus is the derived tri-state of a completion.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// Completion records a child marking a habit done on a specific calendar day.
// CompletedDate is the child-local day (YYYY-MM-DD); CompletedAt is the
// creation timestamp. StarsEarned is written only by reconciliation.
type Completion struct {
	ID              string
	HabitID         string
	ChildID         string
	CompletedDate   string
	CompletedAt     time.Time
	ApprovedAt      *time.Time
	ApprovedBy      string
	RejectedAt      *time.Time
	RejectionReason string
	StarsEarned     int
}

// Status derives the tri-state from the approval timestamps. RejectedAt wins
// so a row that somehow carries both counts as rejected.
func (c Completion) Status() ApprovalStatus {
	switch {
	case c.RejectedAt != nil:
		return ApprovalRejected
	case c.ApprovedAt != nil:
		return ApprovalApproved
	default:
		return ApprovalPending
	}
}

// Approved reports whether the completion counts toward star credits.
func (c Completion) Approved() bool {
	return c.ApprovedAt != nil && c.RejectedAt == nil
}

// PendingCompletion is a completion joined with its habit, for the parent
// approval queue.
type PendingCompletion struct {
	Completion
	HabitTitle  string
	HabitIsCore bool
}

// =============================================================================
// REWARD
// =============================================================================

// Reward is a parent-configured catalog item. StarCost is snapshotted into
// each redemption; editing a reward never changes past spends.
type Reward struct {
	ID          string
	ParentID    string
	Title       string
	Description string
	StarCost    int
	ImageURL    string
	Active      bool
	CreatedAt   time.Time
}

// =============================================================================
// REDEMPTION
// =============================================================================

// RedemptionStatus is the redemption state machine. Pending is the only
// non-terminal state.
type RedemptionStatus string

const (
	RedemptionPending   RedemptionStatus = "pending"
	RedemptionFulfilled RedemptionStatus = "fulfilled"
	RedemptionCancelled RedemptionStatus = "cancelled"
)

// Redemption records a child spending stars on a reward. StarsSpent is the
// cost at redemption time and is immutable thereafter.
type Redemption struct {
	ID          string
	ChildID     string
	RewardID    string
	StarsSpent  int
	Status      RedemptionStatus
	CreatedAt   time.Time
	FulfilledAt *time.Time
}

// RedemptionDetail joins a redemption with display metadata for queues and
// history views.
type RedemptionDetail struct {
	Redemption
	RewardTitle string
	ChildName   string
	ChildAvatar string
}

// DayResult is the outcome of one reconciliation pass.
type DayResult struct {
	DayStars   int
	TotalStars int
}
