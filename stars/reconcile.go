/*
reconcile.go - Star award policy and balance reconciliation

PURPOSE:
  Recomputes, deterministically and idempotently, the star credit of every
  approved completion for one child+day, then resyncs the child's stored
  balance against the full approved history.

AWARD POLICY:
  - A day's single star is earned only when EVERY active core habit has an
    approved completion that day. It is attached to exactly one core
    completion: the earliest by CompletedAt, ties broken by lowest ID.
  - Each approved bonus completion earns 1 star, but only when the core
    gate is open.
  - If any core habit is missing approval, every completion that day
    carries 0 stars.

CONVERGENCE:
  Reconciliation writes only where stored values drift from the computed
  targets. Re-running with unchanged approval state performs zero writes,
  which is what makes retry-after-failure safe without transactions: a
  partially applied pass self-heals on the next run.

BALANCE:
  The balance is never adjusted incrementally. Every pass recomputes the
  total from ALL approved completions and overwrites the stored value only
  when it differs. The stored balance is therefore always a pure function
  of the approved history as of the last pass.

SEE ALSO:
  - completions.go: triggers reconciliation on approve/reject
  - redemption.go: spends against the reconciled balance
*/
package stars

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Ledger is the star-accounting core: reconciliation, completion approval,
// and the redemption state machine. Mutations for the same child are
// serialized through a per-child lock; different children never contend.
type Ledger struct {
	store Store

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLedger creates a ledger over the given store.
func NewLedger(store Store) *Ledger {
	return &Ledger{
		store: store,
		locks: make(map[string]*sync.Mutex),
	}
}

// lockChild serializes mutations for one child. Returns the unlock func.
func (l *Ledger) lockChild(childID string) func() {
	l.mu.Lock()
	lock, ok := l.locks[childID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[childID] = lock
	}
	l.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// Reconcile recomputes star credits for childID on the given day
// (YYYY-MM-DD) and resyncs the child's total balance.
func (l *Ledger) Reconcile(ctx context.Context, childID, date string) (DayResult, error) {
	if _, err := time.Parse(DayFormat, date); err != nil {
		return DayResult{}, fmt.Errorf("invalid date %q: %w", date, err)
	}

	unlock := l.lockChild(childID)
	defer unlock()

	return l.reconcileLocked(ctx, childID, date)
}

// reconcileLocked is the reconciliation pass proper. Callers must hold the
// child's lock.
func (l *Ledger) reconcileLocked(ctx context.Context, childID, date string) (DayResult, error) {
	habits, err := l.store.ListActiveHabits(ctx, childID)
	if err != nil {
		return DayResult{}, fmt.Errorf("list active habits: %w", err)
	}

	coreIDs := make(map[string]bool)
	bonusIDs := make(map[string]bool)
	for _, h := range habits {
		if h.IsCore {
			coreIDs[h.ID] = true
		} else {
			bonusIDs[h.ID] = true
		}
	}

	completions, err := l.store.ListCompletionsOnDate(ctx, childID, date)
	if err != nil {
		return DayResult{}, fmt.Errorf("list completions: %w", err)
	}

	var approved []Completion
	for _, c := range completions {
		if c.Approved() {
			approved = append(approved, c)
		}
	}

	// Stable order so the daily star lands on the same completion every
	// pass: earliest CompletedAt first, lowest ID breaks ties.
	sort.SliceStable(approved, func(i, j int) bool {
		if !approved[i].CompletedAt.Equal(approved[j].CompletedAt) {
			return approved[i].CompletedAt.Before(approved[j].CompletedAt)
		}
		return approved[i].ID < approved[j].ID
	})

	approvedHabits := make(map[string]bool)
	for _, c := range approved {
		approvedHabits[c.HabitID] = true
	}

	allCoresApproved := len(coreIDs) > 0
	for id := range coreIDs {
		if !approvedHabits[id] {
			allCoresApproved = false
			break
		}
	}

	// Compute target credit per approved completion. Duplicate completions
	// for the same habit (possible in legacy data, the store now forbids
	// them) count once: later duplicates get 0.
	targets := make(map[string]int, len(approved))
	seenHabit := make(map[string]bool)
	coreStarAssigned := false
	dayStars := 0

	for _, c := range approved {
		target := 0
		if !seenHabit[c.HabitID] {
			switch {
			case coreIDs[c.HabitID]:
				if allCoresApproved && !coreStarAssigned {
					target = 1
					coreStarAssigned = true
				}
			case bonusIDs[c.HabitID]:
				if allCoresApproved {
					target = 1
				}
			}
		}
		seenHabit[c.HabitID] = true
		targets[c.ID] = target
		dayStars += target
	}

	// Persist only drifted credits. Second pass with the same approval
	// state writes nothing.
	for _, c := range approved {
		if c.StarsEarned != targets[c.ID] {
			if err := l.store.UpdateCompletionStars(ctx, c.ID, targets[c.ID]); err != nil {
				return DayResult{}, fmt.Errorf("update completion stars: %w", err)
			}
		}
	}

	// Full-history resync of the balance, not an incremental delta.
	allApproved, err := l.store.ListApprovedCompletions(ctx, childID)
	if err != nil {
		return DayResult{}, fmt.Errorf("list approved completions: %w", err)
	}
	total := 0
	for _, c := range allApproved {
		total += c.StarsEarned
	}

	child, err := l.store.GetChild(ctx, childID)
	if err != nil {
		return DayResult{}, fmt.Errorf("get child: %w", err)
	}
	if child.Stars != total {
		if err := l.store.UpdateChildStars(ctx, childID, total); err != nil {
			return DayResult{}, fmt.Errorf("update child stars: %w", err)
		}
	}

	return DayResult{DayStars: dayStars, TotalStars: total}, nil
}
