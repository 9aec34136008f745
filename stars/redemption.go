/*
redemption.go - Redemption ledger and state machine

PURPOSE:
  Spends stars against the reward catalog. A redemption debits the child's
  balance atomically with record creation and refunds it atomically with
  cancellation.

STATE MACHINE:
  pending -> fulfilled   (terminal, no balance effect; debit happened at create)
  pending -> cancelled   (terminal, refunds StarsSpent)

ATOMICITY:
  The store offers no multi-statement transactions to the core, so paired
  writes are sequenced with explicit compensation: debit-then-insert on
  create, credit-then-update on cancel. If the second write fails, the first
  is reversed before the error surfaces. A compensation that itself fails is
  reported as CompensationError rather than swallowed: the balance is wrong
  until the next reconciliation pass resyncs it.

RACES:
  The debit is a single conditional update (stars >= cost) at the store, and
  same-child operations are serialized by the ledger's per-child lock, so
  two near-simultaneous redemptions cannot both observe the same balance.
*/
package stars

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Redeem debits starCost from the child and creates a pending redemption.
// Fails with ErrInsufficientStars (no writes) when the balance is short.
func (l *Ledger) Redeem(ctx context.Context, childID, rewardID string, starCost int) (*Redemption, error) {
	if starCost <= 0 {
		return nil, fmt.Errorf("star cost must be positive, got %d", starCost)
	}
	if _, err := l.store.GetReward(ctx, rewardID); err != nil {
		return nil, fmt.Errorf("get reward: %w", err)
	}

	unlock := l.lockChild(childID)
	defer unlock()

	if err := l.store.DebitChildStars(ctx, childID, starCost); err != nil {
		return nil, err
	}

	r := Redemption{
		ID:         uuid.NewString(),
		ChildID:    childID,
		RewardID:   rewardID,
		StarsSpent: starCost,
		Status:     RedemptionPending,
		CreatedAt:  time.Now().UTC(),
	}
	if err := l.store.InsertRedemption(ctx, r); err != nil {
		if cerr := l.store.CreditChildStars(ctx, childID, starCost); cerr != nil {
			return nil, &CompensationError{Op: "redeem", Cause: err, Compensation: cerr}
		}
		return nil, fmt.Errorf("insert redemption: %w", err)
	}
	return &r, nil
}

// Fulfill marks a pending redemption fulfilled. Stars were already debited
// at creation, so there is no balance effect.
func (l *Ledger) Fulfill(ctx context.Context, redemptionID string) error {
	r, err := l.store.GetRedemption(ctx, redemptionID)
	if err != nil {
		return err
	}

	unlock := l.lockChild(r.ChildID)
	defer unlock()

	r, err = l.store.GetRedemption(ctx, redemptionID)
	if err != nil {
		return err
	}
	if r.Status != RedemptionPending {
		return &InvalidStateError{
			Kind: "redemption", ID: redemptionID,
			Current: string(r.Status), Attempt: "fulfill",
		}
	}

	now := time.Now().UTC()
	if err := l.store.UpdateRedemptionStatus(ctx, redemptionID, RedemptionFulfilled, &now); err != nil {
		return fmt.Errorf("fulfill redemption: %w", err)
	}
	return nil
}

// Cancel refunds a pending redemption's stars and marks it cancelled. The
// refund is additive, so stars earned between redemption and cancellation
// are preserved.
func (l *Ledger) Cancel(ctx context.Context, redemptionID string) error {
	r, err := l.store.GetRedemption(ctx, redemptionID)
	if err != nil {
		return err
	}

	unlock := l.lockChild(r.ChildID)
	defer unlock()

	r, err = l.store.GetRedemption(ctx, redemptionID)
	if err != nil {
		return err
	}
	if r.Status != RedemptionPending {
		return &InvalidStateError{
			Kind: "redemption", ID: redemptionID,
			Current: string(r.Status), Attempt: "cancel",
		}
	}

	if err := l.store.CreditChildStars(ctx, r.ChildID, r.StarsSpent); err != nil {
		return fmt.Errorf("refund stars: %w", err)
	}
	if err := l.store.UpdateRedemptionStatus(ctx, redemptionID, RedemptionCancelled, nil); err != nil {
		if cerr := l.store.DebitChildStars(ctx, r.ChildID, r.StarsSpent); cerr != nil {
			return &CompensationError{Op: "cancel", Cause: err, Compensation: cerr}
		}
		return fmt.Errorf("cancel redemption: %w", err)
	}
	return nil
}

// ListRedemptionsForChild returns a child's redemption history, newest
// first, joined with reward metadata.
func (l *Ledger) ListRedemptionsForChild(ctx context.Context, childID string) ([]RedemptionDetail, error) {
	return l.store.ListRedemptionsForChild(ctx, childID)
}

// ListPendingRedemptions returns the system-wide pending queue for the
// parent, joined with reward and child metadata.
func (l *Ledger) ListPendingRedemptions(ctx context.Context) ([]RedemptionDetail, error) {
	return l.store.ListPendingRedemptions(ctx)
}
