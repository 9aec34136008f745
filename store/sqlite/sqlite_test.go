package sqlite_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/familyquest/star-engine/stars"
	"github.com/familyquest/star-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func seedChild(t *testing.T, s *sqlite.Store, id string, balance int) {
	t.Helper()
	require.NoError(t, s.SaveChild(context.Background(), stars.Child{
		ID:        id,
		ParentID:  "parent-1",
		Name:      "Maya",
		Avatar:    "fox",
		Stars:     balance,
		CreatedAt: time.Now().UTC(),
	}))
}

func seedHabit(t *testing.T, s *sqlite.Store, id, childID string, core bool) {
	t.Helper()
	require.NoError(t, s.SaveHabit(context.Background(), stars.Habit{
		ID:        id,
		ParentID:  "parent-1",
		ChildID:   childID,
		Title:     id,
		Category:  stars.CategoryLearning,
		IsCore:    core,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}))
}

func seedReward(t *testing.T, s *sqlite.Store, id string, cost int) {
	t.Helper()
	require.NoError(t, s.SaveReward(context.Background(), stars.Reward{
		ID:        id,
		ParentID:  "parent-1",
		Title:     "Movie night",
		StarCost:  cost,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}))
}

// =============================================================================
// BALANCE TESTS
// =============================================================================

func TestDebitChildStars_Conditional(t *testing.T) {
	// GIVEN: Child with 10 stars
	// WHEN: Debiting 10, then 1 more
	// THEN: First succeeds, second fails with the balance detail

	s := newTestStore(t)
	ctx := context.Background()
	seedChild(t, s, "child-1", 10)

	require.NoError(t, s.DebitChildStars(ctx, "child-1", 10))

	err := s.DebitChildStars(ctx, "child-1", 1)
	assert.ErrorIs(t, err, stars.ErrInsufficientStars)

	var insuff *stars.InsufficientStarsError
	require.ErrorAs(t, err, &insuff)
	assert.Equal(t, 0, insuff.Available)
	assert.Equal(t, 1, insuff.Requested)

	c, err := s.GetChild(ctx, "child-1")
	require.NoError(t, err)
	assert.Equal(t, 0, c.Stars)
}

func TestDebitChildStars_MissingChild_NotFound(t *testing.T) {
	s := newTestStore(t)

	err := s.DebitChildStars(context.Background(), "ghost", 1)
	assert.True(t, stars.IsNotFound(err))
	assert.NotErrorIs(t, err, stars.ErrInsufficientStars)
}

func TestDebitChildStars_ConcurrentDebits_NeverOverdraw(t *testing.T) {
	// GIVEN: Child with 10 stars
	// WHEN: 20 goroutines each debit 1
	// THEN: Exactly 10 succeed, balance ends at 0

	s := newTestStore(t)
	ctx := context.Background()
	seedChild(t, s, "child-1", 10)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.DebitChildStars(ctx, "child-1", 1); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)
	c, err := s.GetChild(ctx, "child-1")
	require.NoError(t, err)
	assert.Equal(t, 0, c.Stars)
}

func TestCreditChildStars_IsAdditive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedChild(t, s, "child-1", 5)

	require.NoError(t, s.CreditChildStars(ctx, "child-1", 10))

	c, err := s.GetChild(ctx, "child-1")
	require.NoError(t, err)
	assert.Equal(t, 15, c.Stars)
}

func TestSaveChild_UpdateDoesNotTouchBalance(t *testing.T) {
	// GIVEN: Child with a reconciled balance
	// WHEN: Re-saving with new name and a stale Stars value
	// THEN: Name updates, balance stays

	s := newTestStore(t)
	ctx := context.Background()
	seedChild(t, s, "child-1", 7)

	require.NoError(t, s.SaveChild(ctx, stars.Child{
		ID: "child-1", ParentID: "parent-1", Name: "Maya R.", Stars: 0,
	}))

	c, err := s.GetChild(ctx, "child-1")
	require.NoError(t, err)
	assert.Equal(t, "Maya R.", c.Name)
	assert.Equal(t, 7, c.Stars)
}

// =============================================================================
// COMPLETION TESTS
// =============================================================================

func TestInsertCompletion_UniquePerHabitPerDay(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedChild(t, s, "child-1", 0)
	seedHabit(t, s, "habit-1", "child-1", true)

	c := stars.Completion{
		ID: "c-1", HabitID: "habit-1", ChildID: "child-1",
		CompletedDate: "2025-03-10", CompletedAt: time.Now().UTC(),
	}
	require.NoError(t, s.InsertCompletion(ctx, c))

	c.ID = "c-2"
	err := s.InsertCompletion(ctx, c)
	assert.ErrorIs(t, err, stars.ErrDuplicateCompletion)

	c.ID = "c-3"
	c.CompletedDate = "2025-03-11"
	assert.NoError(t, s.InsertCompletion(ctx, c), "different day is allowed")
}

func TestMarkCompletionApproved_OnlyPendingRowsMatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedChild(t, s, "child-1", 0)
	seedHabit(t, s, "habit-1", "child-1", true)

	require.NoError(t, s.InsertCompletion(ctx, stars.Completion{
		ID: "c-1", HabitID: "habit-1", ChildID: "child-1",
		CompletedDate: "2025-03-10", CompletedAt: time.Now().UTC(),
	}))

	now := time.Now().UTC()
	require.NoError(t, s.MarkCompletionApproved(ctx, "c-1", now, "parent"))

	// Already approved: the guarded UPDATE matches nothing.
	err := s.MarkCompletionApproved(ctx, "c-1", now, "parent")
	assert.ErrorIs(t, err, stars.ErrInvalidState)

	err = s.MarkCompletionRejected(ctx, "c-1", now, "flip attempt")
	assert.ErrorIs(t, err, stars.ErrInvalidState)

	got, err := s.GetCompletion(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, stars.ApprovalApproved, got.Status())
	assert.Equal(t, "parent", got.ApprovedBy)
}

func TestListCompletionsOnDate_StableOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedChild(t, s, "child-1", 0)
	seedHabit(t, s, "habit-1", "child-1", true)
	seedHabit(t, s, "habit-2", "child-1", true)

	late := time.Date(2025, time.March, 10, 18, 0, 0, 0, time.UTC)
	early := time.Date(2025, time.March, 10, 7, 0, 0, 0, time.UTC)

	require.NoError(t, s.InsertCompletion(ctx, stars.Completion{
		ID: "c-late", HabitID: "habit-1", ChildID: "child-1",
		CompletedDate: "2025-03-10", CompletedAt: late,
	}))
	require.NoError(t, s.InsertCompletion(ctx, stars.Completion{
		ID: "c-early", HabitID: "habit-2", ChildID: "child-1",
		CompletedDate: "2025-03-10", CompletedAt: early,
	}))

	list, err := s.ListCompletionsOnDate(ctx, "child-1", "2025-03-10")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "c-early", list[0].ID)
	assert.Equal(t, "c-late", list[1].ID)
}

func TestListPendingCompletions_JoinsHabitMetadata(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedChild(t, s, "child-1", 0)
	seedHabit(t, s, "habit-1", "child-1", true)

	require.NoError(t, s.InsertCompletion(ctx, stars.Completion{
		ID: "c-1", HabitID: "habit-1", ChildID: "child-1",
		CompletedDate: "2025-03-10", CompletedAt: time.Now().UTC(),
	}))

	pending, err := s.ListPendingCompletions(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "habit-1", pending[0].HabitTitle)
	assert.True(t, pending[0].HabitIsCore)
}

// =============================================================================
// CASCADE TESTS
// =============================================================================

func TestDeleteChild_CascadesEverything(t *testing.T) {
	// GIVEN: Child with a habit, a completion, and a redemption
	// WHEN: Deleting the child
	// THEN: All owned rows vanish; the reward catalog survives

	s := newTestStore(t)
	ctx := context.Background()
	seedChild(t, s, "child-1", 20)
	seedHabit(t, s, "habit-1", "child-1", true)
	seedReward(t, s, "reward-1", 10)

	require.NoError(t, s.InsertCompletion(ctx, stars.Completion{
		ID: "c-1", HabitID: "habit-1", ChildID: "child-1",
		CompletedDate: "2025-03-10", CompletedAt: time.Now().UTC(),
	}))
	require.NoError(t, s.InsertRedemption(ctx, stars.Redemption{
		ID: "r-1", ChildID: "child-1", RewardID: "reward-1",
		StarsSpent: 10, Status: stars.RedemptionPending,
		CreatedAt: time.Now().UTC(),
	}))

	require.NoError(t, s.DeleteChild(ctx, "child-1"))

	_, err := s.GetChild(ctx, "child-1")
	assert.True(t, stars.IsNotFound(err))
	_, err = s.GetHabit(ctx, "habit-1")
	assert.True(t, stars.IsNotFound(err))
	_, err = s.GetCompletion(ctx, "c-1")
	assert.True(t, stars.IsNotFound(err))
	_, err = s.GetRedemption(ctx, "r-1")
	assert.True(t, stars.IsNotFound(err))

	_, err = s.GetReward(ctx, "reward-1")
	assert.NoError(t, err)
}

// =============================================================================
// REDEMPTION TESTS
// =============================================================================

func TestRedemptionDetails_JoinRewardAndChild(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedChild(t, s, "child-1", 20)
	seedReward(t, s, "reward-1", 10)

	require.NoError(t, s.InsertRedemption(ctx, stars.Redemption{
		ID: "r-1", ChildID: "child-1", RewardID: "reward-1",
		StarsSpent: 10, Status: stars.RedemptionPending,
		CreatedAt: time.Now().UTC(),
	}))

	history, err := s.ListRedemptionsForChild(ctx, "child-1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "Movie night", history[0].RewardTitle)
	assert.Equal(t, "Maya", history[0].ChildName)
	assert.Equal(t, "fox", history[0].ChildAvatar)

	queue, err := s.ListPendingRedemptions(ctx)
	require.NoError(t, err)
	assert.Len(t, queue, 1)
}

func TestUpdateRedemptionStatus_PreservesFulfilledAtOnNil(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedChild(t, s, "child-1", 20)
	seedReward(t, s, "reward-1", 10)

	require.NoError(t, s.InsertRedemption(ctx, stars.Redemption{
		ID: "r-1", ChildID: "child-1", RewardID: "reward-1",
		StarsSpent: 10, Status: stars.RedemptionPending,
		CreatedAt: time.Now().UTC(),
	}))

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.UpdateRedemptionStatus(ctx, "r-1", stars.RedemptionFulfilled, &now))

	r, err := s.GetRedemption(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, stars.RedemptionFulfilled, r.Status)
	require.NotNil(t, r.FulfilledAt)
	assert.True(t, r.FulfilledAt.Equal(now))
}

// =============================================================================
// ROUND-TRIP WITH THE LEDGER
// =============================================================================

func TestLedger_OverSQLite_FullFlow(t *testing.T) {
	// GIVEN: One core habit and one reward over a real SQLite store
	// WHEN: Complete -> approve -> redeem -> cancel
	// THEN: The balance tracks every step

	s := newTestStore(t)
	ctx := context.Background()
	ledger := stars.NewLedger(s)

	seedChild(t, s, "child-1", 0)
	seedHabit(t, s, "habit-1", "child-1", true)
	seedReward(t, s, "reward-1", 1)

	c, err := ledger.CreateCompletion(ctx, "habit-1", "child-1", "2025-03-10")
	require.NoError(t, err)

	result, err := ledger.ApproveCompletion(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalStars)

	r, err := ledger.Redeem(ctx, "child-1", "reward-1", 1)
	require.NoError(t, err)

	child, err := s.GetChild(ctx, "child-1")
	require.NoError(t, err)
	assert.Equal(t, 0, child.Stars)

	require.NoError(t, ledger.Cancel(ctx, r.ID))
	child, err = s.GetChild(ctx, "child-1")
	require.NoError(t, err)
	assert.Equal(t, 1, child.Stars)
}
