package stars_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/familyquest/star-engine/stars"
)

// =============================================================================
// CREATION TESTS
// =============================================================================

func TestCreateCompletion_StartsPendingWithZeroStars(t *testing.T) {
	ledger, mem := newTestLedger()
	ctx := context.Background()

	seedChild(t, mem, "child-1")
	seedHabit(t, mem, "core-1", "child-1", true)

	c, err := ledger.CreateCompletion(ctx, "core-1", "child-1", testDay)
	require.NoError(t, err)

	assert.Equal(t, stars.ApprovalPending, c.Status())
	assert.Equal(t, 0, c.StarsEarned)
	assert.Equal(t, testDay, c.CompletedDate)
}

func TestCreateCompletion_DuplicateDay_Rejected(t *testing.T) {
	// GIVEN: A habit already completed today
	// WHEN: Completing it again for the same day
	// THEN: ErrDuplicateCompletion

	ledger, mem := newTestLedger()
	ctx := context.Background()

	seedChild(t, mem, "child-1")
	seedHabit(t, mem, "core-1", "child-1", true)

	_, err := ledger.CreateCompletion(ctx, "core-1", "child-1", testDay)
	require.NoError(t, err)

	_, err = ledger.CreateCompletion(ctx, "core-1", "child-1", testDay)
	assert.ErrorIs(t, err, stars.ErrDuplicateCompletion)

	// A different day is fine.
	_, err = ledger.CreateCompletion(ctx, "core-1", "child-1", "2025-03-11")
	assert.NoError(t, err)
}

func TestCreateCompletion_HabitOfOtherChild_NotFound(t *testing.T) {
	ledger, mem := newTestLedger()
	ctx := context.Background()

	seedChild(t, mem, "child-1")
	seedChild(t, mem, "child-2")
	seedHabit(t, mem, "core-1", "child-1", true)

	_, err := ledger.CreateCompletion(ctx, "core-1", "child-2", testDay)
	assert.True(t, stars.IsNotFound(err))
}

func TestCreateCompletion_InvalidDate_Rejected(t *testing.T) {
	ledger, mem := newTestLedger()
	seedChild(t, mem, "child-1")
	seedHabit(t, mem, "core-1", "child-1", true)

	_, err := ledger.CreateCompletion(context.Background(), "core-1", "child-1", "March 10")
	assert.Error(t, err)
}

// =============================================================================
// APPROVAL FLOW TESTS
// =============================================================================

func TestApproveCompletion_TriggersReconciliation(t *testing.T) {
	// GIVEN: A single core habit with a pending completion
	// WHEN: The parent approves it
	// THEN: The day reconciles immediately and the balance reflects the star

	ledger, mem := newTestLedger()
	ctx := context.Background()

	seedChild(t, mem, "child-1")
	seedHabit(t, mem, "core-1", "child-1", true)

	c, err := ledger.CreateCompletion(ctx, "core-1", "child-1", testDay)
	require.NoError(t, err)

	result, err := ledger.ApproveCompletion(ctx, c.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, result.DayStars)
	assert.Equal(t, 1, result.TotalStars)

	child, err := mem.GetChild(ctx, "child-1")
	require.NoError(t, err)
	assert.Equal(t, 1, child.Stars)

	stored, err := mem.GetCompletion(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, stars.ApprovalApproved, stored.Status())
	assert.Equal(t, 1, stored.StarsEarned)
}

func TestApproveCompletion_GateStaysClosed_UntilLastCore(t *testing.T) {
	// GIVEN: Two core habits completed, approved one at a time
	// WHEN: Approving the first
	// THEN: Still zero stars; the second approval opens the gate

	ledger, mem := newTestLedger()
	ctx := context.Background()

	seedChild(t, mem, "child-1")
	seedHabit(t, mem, "core-1", "child-1", true)
	seedHabit(t, mem, "core-2", "child-1", true)

	c1, err := ledger.CreateCompletion(ctx, "core-1", "child-1", testDay)
	require.NoError(t, err)
	c2, err := ledger.CreateCompletion(ctx, "core-2", "child-1", testDay)
	require.NoError(t, err)

	mid, err := ledger.ApproveCompletion(ctx, c1.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, mid.DayStars, "gate closed until every core is approved")

	final, err := ledger.ApproveCompletion(ctx, c2.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, final.DayStars)
	assert.Equal(t, 1, final.TotalStars)
}

func TestRejectCompletion_LeavesEarlierCreditsIntact(t *testing.T) {
	// GIVEN: A fully credited day (core + bonus approved)
	// WHEN: A pending completion on a LATER day is rejected
	// THEN: That day reconciles to zero but the earlier credits survive

	ledger, mem := newTestLedger()
	ctx := context.Background()

	seedChild(t, mem, "child-1")
	seedHabit(t, mem, "core-1", "child-1", true)
	seedHabit(t, mem, "bonus-1", "child-1", false)

	c1, err := ledger.CreateCompletion(ctx, "core-1", "child-1", testDay)
	require.NoError(t, err)
	c2, err := ledger.CreateCompletion(ctx, "bonus-1", "child-1", testDay)
	require.NoError(t, err)

	_, err = ledger.ApproveCompletion(ctx, c1.ID)
	require.NoError(t, err)
	result, err := ledger.ApproveCompletion(ctx, c2.ID)
	require.NoError(t, err)
	require.Equal(t, 2, result.TotalStars)

	// Reject a later pending completion of the same bonus on another day:
	// no effect on today's credits.
	c3, err := ledger.CreateCompletion(ctx, "bonus-1", "child-1", "2025-03-11")
	require.NoError(t, err)
	after, err := ledger.RejectCompletion(ctx, c3.ID, "not actually done")
	require.NoError(t, err)
	assert.Equal(t, 0, after.DayStars)
	assert.Equal(t, 2, after.TotalStars)

	stored, err := mem.GetCompletion(ctx, c3.ID)
	require.NoError(t, err)
	assert.Equal(t, stars.ApprovalRejected, stored.Status())
}

// =============================================================================
// MONOTONICITY TESTS
// =============================================================================

func TestApproveCompletion_AlreadyDecided_InvalidState(t *testing.T) {
	ledger, mem := newTestLedger()
	ctx := context.Background()

	seedChild(t, mem, "child-1")
	seedHabit(t, mem, "core-1", "child-1", true)

	c, err := ledger.CreateCompletion(ctx, "core-1", "child-1", testDay)
	require.NoError(t, err)

	_, err = ledger.ApproveCompletion(ctx, c.ID)
	require.NoError(t, err)

	_, err = ledger.ApproveCompletion(ctx, c.ID)
	assert.ErrorIs(t, err, stars.ErrInvalidState)

	_, err = ledger.RejectCompletion(ctx, c.ID, "changed my mind")
	assert.ErrorIs(t, err, stars.ErrInvalidState, "approved never flips to rejected")
}

func TestRejectCompletion_AlreadyRejected_InvalidState(t *testing.T) {
	ledger, mem := newTestLedger()
	ctx := context.Background()

	seedChild(t, mem, "child-1")
	seedHabit(t, mem, "core-1", "child-1", true)

	c, err := ledger.CreateCompletion(ctx, "core-1", "child-1", testDay)
	require.NoError(t, err)

	_, err = ledger.RejectCompletion(ctx, c.ID, "nope")
	require.NoError(t, err)

	_, err = ledger.RejectCompletion(ctx, c.ID, "still no")
	assert.ErrorIs(t, err, stars.ErrInvalidState)

	var stateErr *stars.InvalidStateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, "completion", stateErr.Kind)
	assert.Equal(t, "rejected", stateErr.Current)
}

func TestApproveCompletion_Missing_NotFound(t *testing.T) {
	ledger, _ := newTestLedger()

	_, err := ledger.ApproveCompletion(context.Background(), "ghost")
	assert.True(t, stars.IsNotFound(err))
}

// =============================================================================
// QUEUE TESTS
// =============================================================================

func TestListPendingApprovals_OldestFirst_WithHabitMetadata(t *testing.T) {
	ledger, mem := newTestLedger()
	ctx := context.Background()

	seedChild(t, mem, "child-1")
	seedHabit(t, mem, "core-1", "child-1", true)
	seedHabit(t, mem, "bonus-1", "child-1", false)

	pendingAt(t, mem, "c-late", "bonus-1", "child-1", testDay, dayTime(18))
	pendingAt(t, mem, "c-early", "core-1", "child-1", testDay, dayTime(7))

	queue, err := ledger.ListPendingApprovals(ctx)
	require.NoError(t, err)
	require.Len(t, queue, 2)

	assert.Equal(t, "c-early", queue[0].ID)
	assert.Equal(t, "core-1", queue[0].HabitTitle)
	assert.True(t, queue[0].HabitIsCore)
	assert.Equal(t, "c-late", queue[1].ID)
	assert.False(t, queue[1].HabitIsCore)
}

func TestListPendingApprovals_ExcludesDecided(t *testing.T) {
	ledger, mem := newTestLedger()
	ctx := context.Background()

	seedChild(t, mem, "child-1")
	seedHabit(t, mem, "core-1", "child-1", true)

	c, err := ledger.CreateCompletion(ctx, "core-1", "child-1", testDay)
	require.NoError(t, err)
	_, err = ledger.ApproveCompletion(ctx, c.ID)
	require.NoError(t, err)

	queue, err := ledger.ListPendingApprovals(ctx)
	require.NoError(t, err)
	assert.Empty(t, queue)
}
