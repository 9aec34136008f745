// Package store provides an in-memory stars.Store for testing and dev.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/familyquest/star-engine/stars"
)

// Memory implements stars.Store with maps. It counts balance and completion
// writes (for idempotence assertions) and supports targeted failure
// injection (for compensation-path tests).
type Memory struct {
	mu          sync.RWMutex
	children    map[string]stars.Child
	habits      map[string]stars.Habit
	completions map[string]stars.Completion
	rewards     map[string]stars.Reward
	redemptions map[string]stars.Redemption

	writes int

	// Failure injection, consumed by the next matching call.
	FailInsertRedemption error
	FailUpdateRedemption error
	FailCreditStars      error
	FailDebitStars       error
}

var _ stars.Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		children:    make(map[string]stars.Child),
		habits:      make(map[string]stars.Habit),
		completions: make(map[string]stars.Completion),
		rewards:     make(map[string]stars.Reward),
		redemptions: make(map[string]stars.Redemption),
	}
}

// Writes returns the number of mutating calls performed so far.
func (m *Memory) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

// =============================================================================
// CHILDREN
// =============================================================================

func (m *Memory) SaveChild(_ context.Context, c stars.Child) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	m.children[c.ID] = c
	return nil
}

func (m *Memory) GetChild(_ context.Context, id string) (*stars.Child, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.children[id]
	if !ok {
		return nil, stars.ErrNotFound
	}
	return &c, nil
}

func (m *Memory) ListChildren(_ context.Context, parentID string) ([]stars.Child, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []stars.Child
	for _, c := range m.children {
		if parentID == "" || c.ParentID == parentID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) DeleteChild(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.children[id]; !ok {
		return stars.ErrNotFound
	}
	m.writes++
	delete(m.children, id)
	// Cascade like the SQL store's foreign keys.
	for hid, h := range m.habits {
		if h.ChildID == id {
			delete(m.habits, hid)
		}
	}
	for cid, c := range m.completions {
		if c.ChildID == id {
			delete(m.completions, cid)
		}
	}
	for rid, r := range m.redemptions {
		if r.ChildID == id {
			delete(m.redemptions, rid)
		}
	}
	return nil
}

func (m *Memory) UpdateChildStars(_ context.Context, id string, starCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.children[id]
	if !ok {
		return stars.ErrNotFound
	}
	m.writes++
	c.Stars = starCount
	m.children[id] = c
	return nil
}

func (m *Memory) DebitChildStars(_ context.Context, id string, amount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.FailDebitStars; err != nil {
		m.FailDebitStars = nil
		return err
	}
	c, ok := m.children[id]
	if !ok {
		return stars.ErrNotFound
	}
	if c.Stars < amount {
		return &stars.InsufficientStarsError{ChildID: id, Available: c.Stars, Requested: amount}
	}
	m.writes++
	c.Stars -= amount
	m.children[id] = c
	return nil
}

func (m *Memory) CreditChildStars(_ context.Context, id string, amount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.FailCreditStars; err != nil {
		m.FailCreditStars = nil
		return err
	}
	c, ok := m.children[id]
	if !ok {
		return stars.ErrNotFound
	}
	m.writes++
	c.Stars += amount
	m.children[id] = c
	return nil
}

// =============================================================================
// HABITS
// =============================================================================

func (m *Memory) SaveHabit(_ context.Context, h stars.Habit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	m.habits[h.ID] = h
	return nil
}

func (m *Memory) GetHabit(_ context.Context, id string) (*stars.Habit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.habits[id]
	if !ok {
		return nil, stars.ErrNotFound
	}
	return &h, nil
}

func (m *Memory) ListActiveHabits(_ context.Context, childID string) ([]stars.Habit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []stars.Habit
	for _, h := range m.habits {
		if h.ChildID == childID && h.Active {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// =============================================================================
// COMPLETIONS
// =============================================================================

func (m *Memory) InsertCompletion(_ context.Context, c stars.Completion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.completions {
		if existing.HabitID == c.HabitID && existing.CompletedDate == c.CompletedDate {
			return stars.ErrDuplicateCompletion
		}
	}
	m.writes++
	m.completions[c.ID] = c
	return nil
}

func (m *Memory) GetCompletion(_ context.Context, id string) (*stars.Completion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.completions[id]
	if !ok {
		return nil, stars.ErrNotFound
	}
	return &c, nil
}

func (m *Memory) ListCompletionsOnDate(_ context.Context, childID, date string) ([]stars.Completion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []stars.Completion
	for _, c := range m.completions {
		if c.ChildID == childID && c.CompletedDate == date {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) ListApprovedCompletions(_ context.Context, childID string) ([]stars.Completion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []stars.Completion
	for _, c := range m.completions {
		if c.ChildID == childID && c.Approved() {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *Memory) ListPendingCompletions(_ context.Context) ([]stars.PendingCompletion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []stars.PendingCompletion
	for _, c := range m.completions {
		if c.Status() != stars.ApprovalPending {
			continue
		}
		pc := stars.PendingCompletion{Completion: c}
		if h, ok := m.habits[c.HabitID]; ok {
			pc.HabitTitle = h.Title
			pc.HabitIsCore = h.IsCore
		}
		out = append(out, pc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CompletedAt.Before(out[j].CompletedAt) })
	return out, nil
}

func (m *Memory) UpdateCompletionStars(_ context.Context, id string, starCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.completions[id]
	if !ok {
		return stars.ErrNotFound
	}
	m.writes++
	c.StarsEarned = starCount
	m.completions[id] = c
	return nil
}

func (m *Memory) MarkCompletionApproved(_ context.Context, id string, at time.Time, by string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.completions[id]
	if !ok {
		return stars.ErrNotFound
	}
	m.writes++
	c.ApprovedAt = &at
	c.ApprovedBy = by
	m.completions[id] = c
	return nil
}

func (m *Memory) MarkCompletionRejected(_ context.Context, id string, at time.Time, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.completions[id]
	if !ok {
		return stars.ErrNotFound
	}
	m.writes++
	c.RejectedAt = &at
	c.RejectionReason = reason
	m.completions[id] = c
	return nil
}

// =============================================================================
// REWARDS
// =============================================================================

func (m *Memory) SaveReward(_ context.Context, r stars.Reward) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	m.rewards[r.ID] = r
	return nil
}

func (m *Memory) GetReward(_ context.Context, id string) (*stars.Reward, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rewards[id]
	if !ok {
		return nil, stars.ErrNotFound
	}
	return &r, nil
}

func (m *Memory) ListActiveRewards(_ context.Context, parentID string) ([]stars.Reward, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []stars.Reward
	for _, r := range m.rewards {
		if r.Active && (parentID == "" || r.ParentID == parentID) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// =============================================================================
// REDEMPTIONS
// =============================================================================

func (m *Memory) InsertRedemption(_ context.Context, r stars.Redemption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.FailInsertRedemption; err != nil {
		m.FailInsertRedemption = nil
		return err
	}
	m.writes++
	m.redemptions[r.ID] = r
	return nil
}

func (m *Memory) GetRedemption(_ context.Context, id string) (*stars.Redemption, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.redemptions[id]
	if !ok {
		return nil, stars.ErrNotFound
	}
	return &r, nil
}

func (m *Memory) UpdateRedemptionStatus(_ context.Context, id string, status stars.RedemptionStatus, fulfilledAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.FailUpdateRedemption; err != nil {
		m.FailUpdateRedemption = nil
		return err
	}
	r, ok := m.redemptions[id]
	if !ok {
		return stars.ErrNotFound
	}
	m.writes++
	r.Status = status
	if fulfilledAt != nil {
		r.FulfilledAt = fulfilledAt
	}
	m.redemptions[id] = r
	return nil
}

func (m *Memory) ListRedemptionsForChild(_ context.Context, childID string) ([]stars.RedemptionDetail, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []stars.RedemptionDetail
	for _, r := range m.redemptions {
		if r.ChildID == childID {
			out = append(out, m.detailLocked(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) ListPendingRedemptions(_ context.Context) ([]stars.RedemptionDetail, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []stars.RedemptionDetail
	for _, r := range m.redemptions {
		if r.Status == stars.RedemptionPending {
			out = append(out, m.detailLocked(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) detailLocked(r stars.Redemption) stars.RedemptionDetail {
	d := stars.RedemptionDetail{Redemption: r}
	if reward, ok := m.rewards[r.RewardID]; ok {
		d.RewardTitle = reward.Title
	}
	if child, ok := m.children[r.ChildID]; ok {
		d.ChildName = child.Name
		d.ChildAvatar = child.Avatar
	}
	return d
}
