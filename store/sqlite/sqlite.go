/*
Package sqlite provides a SQLite-backed implementation of stars.Store.

PURPOSE:
  Implements the persistence contract for the star economy using SQLite.
  In production the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

KEY TABLES:
  children:          Account holders with the materialized stars balance
  habits:            Core/bonus daily tasks (soft-deleted via active flag)
  habit_completions: The approval ledger reconciliation runs over
  rewards:           Parent-configured catalog (soft-deleted via active flag)
  redemptions:       Spend records (pending/fulfilled/cancelled)

INVARIANTS ENFORCED HERE:
  - idx_unique_habit_day: at most one completion per habit per calendar day
  - DebitChildStars is a single conditional UPDATE (stars >= amount), so a
    concurrent redemption can never overdraw a balance it observed stale
  - Foreign keys cascade child deletion to habits/completions/redemptions

CONCURRENCY:
  Uses sync.RWMutex for thread-safety on top of WAL mode. With PostgreSQL,
  database-level concurrency control would handle this instead.

USAGE:
  store, err := sqlite.New("./data/stars.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := stars.NewLedger(store)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper migration
  tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - stars/store.go: Interface definition
  - stars/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/familyquest/star-engine/stars"
)

// Store implements stars.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ stars.Store = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS children (
		id TEXT PRIMARY KEY,
		parent_id TEXT NOT NULL,
		name TEXT NOT NULL,
		avatar TEXT NOT NULL DEFAULT '',
		stars INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_children_parent ON children(parent_id);

	CREATE TABLE IF NOT EXISTS habits (
		id TEXT PRIMARY KEY,
		parent_id TEXT NOT NULL,
		child_id TEXT NOT NULL REFERENCES children(id) ON DELETE CASCADE,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT 'growth',
		is_core BOOLEAN NOT NULL DEFAULT FALSE,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_habits_child_active ON habits(child_id, active);

	CREATE TABLE IF NOT EXISTS habit_completions (
		id TEXT PRIMARY KEY,
		habit_id TEXT NOT NULL REFERENCES habits(id) ON DELETE CASCADE,
		child_id TEXT NOT NULL REFERENCES children(id) ON DELETE CASCADE,
		completed_date TEXT NOT NULL,
		completed_at TEXT NOT NULL,
		approved_at TEXT,
		approved_by TEXT NOT NULL DEFAULT '',
		rejected_at TEXT,
		rejection_reason TEXT NOT NULL DEFAULT '',
		stars_earned INTEGER NOT NULL DEFAULT 0
	);

	-- CRITICAL: one completion per habit per calendar day. The award policy
	-- assumes this; a duplicated bonus completion would otherwise double-count.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_unique_habit_day
		ON habit_completions(habit_id, completed_date);

	-- Reconciliation hot path: completions for one child+day
	CREATE INDEX IF NOT EXISTS idx_completions_child_date
		ON habit_completions(child_id, completed_date);

	-- Balance resync: all approved completions for a child
	CREATE INDEX IF NOT EXISTS idx_completions_child_approved
		ON habit_completions(child_id, approved_at)
		WHERE approved_at IS NOT NULL AND rejected_at IS NULL;

	-- Approval queue: pending completions, oldest first
	CREATE INDEX IF NOT EXISTS idx_completions_pending
		ON habit_completions(completed_at)
		WHERE approved_at IS NULL AND rejected_at IS NULL;

	CREATE TABLE IF NOT EXISTS rewards (
		id TEXT PRIMARY KEY,
		parent_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		star_cost INTEGER NOT NULL CHECK (star_cost > 0),
		image_url TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_rewards_parent_active ON rewards(parent_id, active);

	CREATE TABLE IF NOT EXISTS redemptions (
		id TEXT PRIMARY KEY,
		child_id TEXT NOT NULL REFERENCES children(id) ON DELETE CASCADE,
		reward_id TEXT NOT NULL REFERENCES rewards(id),
		stars_spent INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at TEXT NOT NULL,
		fulfilled_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_redemptions_child ON redemptions(child_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_redemptions_status ON redemptions(status);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// CHILDREN
// =============================================================================

// SaveChild inserts or updates a child. The stars balance is only written on
// insert; updates leave it to the dedicated balance methods.
func (s *Store) SaveChild(ctx context.Context, c stars.Child) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO children (id, parent_id, name, avatar, stars, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			avatar = excluded.avatar
	`

	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, query,
		c.ID, c.ParentID, c.Name, c.Avatar, c.Stars,
		createdAt.Format(time.RFC3339),
	)
	return err
}

// GetChild retrieves a child by ID.
func (s *Store) GetChild(ctx context.Context, id string) (*stars.Child, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var c stars.Child
	var createdAt string

	err := s.db.QueryRowContext(ctx,
		"SELECT id, parent_id, name, avatar, stars, created_at FROM children WHERE id = ?",
		id,
	).Scan(&c.ID, &c.ParentID, &c.Name, &c.Avatar, &c.Stars, &createdAt)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("child %s: %w", id, stars.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &c, nil
}

// ListChildren returns children, optionally filtered by parent.
func (s *Store) ListChildren(ctx context.Context, parentID string) ([]stars.Child, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT id, parent_id, name, avatar, stars, created_at FROM children"
	var args []any
	if parentID != "" {
		query += " WHERE parent_id = ?"
		args = append(args, parentID)
	}
	query += " ORDER BY name"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var children []stars.Child
	for rows.Next() {
		var c stars.Child
		var createdAt string
		if err := rows.Scan(&c.ID, &c.ParentID, &c.Name, &c.Avatar, &c.Stars, &createdAt); err != nil {
			return nil, err
		}
		c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		children = append(children, c)
	}
	return children, rows.Err()
}

// DeleteChild removes a child. Habits, completions, and redemptions cascade.
func (s *Store) DeleteChild(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM children WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("child %s: %w", id, stars.ErrNotFound)
	}
	return nil
}

// UpdateChildStars overwrites the stored balance.
func (s *Store) UpdateChildStars(ctx context.Context, id string, starCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "UPDATE children SET stars = ? WHERE id = ?", starCount, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("child %s: %w", id, stars.ErrNotFound)
	}
	return nil
}

// DebitChildStars decrements the balance in a single conditional statement.
// The WHERE clause is the whole point: check and debit cannot interleave
// with another writer.
func (s *Store) DebitChildStars(ctx context.Context, id string, amount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE children SET stars = stars - ? WHERE id = ? AND stars >= ?",
		amount, id, amount,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	// Distinguish a missing child from a short balance.
	var available int
	err = s.db.QueryRowContext(ctx, "SELECT stars FROM children WHERE id = ?", id).Scan(&available)
	if err == sql.ErrNoRows {
		return fmt.Errorf("child %s: %w", id, stars.ErrNotFound)
	}
	if err != nil {
		return err
	}
	return &stars.InsufficientStarsError{ChildID: id, Available: available, Requested: amount}
}

// CreditChildStars adds amount to the current balance.
func (s *Store) CreditChildStars(ctx context.Context, id string, amount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE children SET stars = stars + ? WHERE id = ?", amount, id,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("child %s: %w", id, stars.ErrNotFound)
	}
	return nil
}

// =============================================================================
// HABITS
// =============================================================================

// SaveHabit inserts or updates a habit.
func (s *Store) SaveHabit(ctx context.Context, h stars.Habit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO habits (id, parent_id, child_id, title, description, category, is_core, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			category = excluded.category,
			is_core = excluded.is_core,
			active = excluded.active
	`

	createdAt := h.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, query,
		h.ID, h.ParentID, h.ChildID, h.Title, h.Description, string(h.Category),
		h.IsCore, h.Active, createdAt.Format(time.RFC3339),
	)
	return err
}

// GetHabit retrieves a habit by ID.
func (s *Store) GetHabit(ctx context.Context, id string) (*stars.Habit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var h stars.Habit
	var category, createdAt string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, parent_id, child_id, title, description, category, is_core, active, created_at
		 FROM habits WHERE id = ?`,
		id,
	).Scan(&h.ID, &h.ParentID, &h.ChildID, &h.Title, &h.Description, &category, &h.IsCore, &h.Active, &createdAt)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("habit %s: %w", id, stars.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	h.Category = stars.HabitCategory(category)
	h.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &h, nil
}

// ListActiveHabits returns a child's active habits, oldest first.
func (s *Store) ListActiveHabits(ctx context.Context, childID string) ([]stars.Habit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, parent_id, child_id, title, description, category, is_core, active, created_at
		 FROM habits WHERE child_id = ? AND active = TRUE
		 ORDER BY created_at ASC`,
		childID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var habits []stars.Habit
	for rows.Next() {
		var h stars.Habit
		var category, createdAt string
		if err := rows.Scan(&h.ID, &h.ParentID, &h.ChildID, &h.Title, &h.Description,
			&category, &h.IsCore, &h.Active, &createdAt); err != nil {
			return nil, err
		}
		h.Category = stars.HabitCategory(category)
		h.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		habits = append(habits, h)
	}
	return habits, rows.Err()
}

// =============================================================================
// COMPLETIONS
// =============================================================================

const completionColumns = `id, habit_id, child_id, completed_date, completed_at,
	approved_at, approved_by, rejected_at, rejection_reason, stars_earned`

// InsertCompletion adds a pending completion. The unique index on
// (habit_id, completed_date) rejects same-day duplicates.
func (s *Store) InsertCompletion(ctx context.Context, c stars.Completion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO habit_completions
		(id, habit_id, child_id, completed_date, completed_at, approved_at, approved_by,
		 rejected_at, rejection_reason, stars_earned)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		c.ID, c.HabitID, c.ChildID, c.CompletedDate,
		c.CompletedAt.Format(time.RFC3339),
		nullTime(c.ApprovedAt), c.ApprovedBy,
		nullTime(c.RejectedAt), c.RejectionReason,
		c.StarsEarned,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("habit %s on %s: %w", c.HabitID, c.CompletedDate, stars.ErrDuplicateCompletion)
		}
		return fmt.Errorf("failed to insert completion: %w", err)
	}
	return nil
}

// GetCompletion retrieves a completion by ID.
func (s *Store) GetCompletion(ctx context.Context, id string) (*stars.Completion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT "+completionColumns+" FROM habit_completions WHERE id = ?", id)

	c, err := scanCompletion(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("completion %s: %w", id, stars.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListCompletionsOnDate returns a child's completions for one calendar day.
func (s *Store) ListCompletionsOnDate(ctx context.Context, childID, date string) ([]stars.Completion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT " + completionColumns + ` FROM habit_completions
		WHERE child_id = ? AND completed_date = ?
		ORDER BY completed_at ASC, id ASC`

	return s.queryCompletions(ctx, query, childID, date)
}

// ListApprovedCompletions returns ALL approved, non-rejected completions for
// a child, across all dates. This is the balance resync input.
func (s *Store) ListApprovedCompletions(ctx context.Context, childID string) ([]stars.Completion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT " + completionColumns + ` FROM habit_completions
		WHERE child_id = ? AND approved_at IS NOT NULL AND rejected_at IS NULL`

	return s.queryCompletions(ctx, query, childID)
}

// ListPendingCompletions returns the approval queue joined with habit
// metadata, oldest first.
func (s *Store) ListPendingCompletions(ctx context.Context) ([]stars.PendingCompletion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT c.id, c.habit_id, c.child_id, c.completed_date, c.completed_at,
		       c.approved_at, c.approved_by, c.rejected_at, c.rejection_reason, c.stars_earned,
		       h.title, h.is_core
		FROM habit_completions c
		JOIN habits h ON h.id = c.habit_id
		WHERE c.approved_at IS NULL AND c.rejected_at IS NULL
		ORDER BY c.completed_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pending []stars.PendingCompletion
	for rows.Next() {
		var (
			p           stars.PendingCompletion
			completedAt string
			approvedAt  sql.NullString
			rejectedAt  sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.HabitID, &p.ChildID, &p.CompletedDate, &completedAt,
			&approvedAt, &p.ApprovedBy, &rejectedAt, &p.RejectionReason, &p.StarsEarned,
			&p.HabitTitle, &p.HabitIsCore); err != nil {
			return nil, err
		}
		p.CompletedAt, _ = time.Parse(time.RFC3339, completedAt)
		p.ApprovedAt = parseNullTime(approvedAt)
		p.RejectedAt = parseNullTime(rejectedAt)
		pending = append(pending, p)
	}
	return pending, rows.Err()
}

// UpdateCompletionStars corrects a completion's star credit.
func (s *Store) UpdateCompletionStars(ctx context.Context, id string, starCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE habit_completions SET stars_earned = ? WHERE id = ?", starCount, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("completion %s: %w", id, stars.ErrNotFound)
	}
	return nil
}

// MarkCompletionApproved sets the approval timestamp. Only rows still
// pending match; the ledger guards the transition before calling.
func (s *Store) MarkCompletionApproved(ctx context.Context, id string, at time.Time, by string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE habit_completions SET approved_at = ?, approved_by = ?
		 WHERE id = ? AND approved_at IS NULL AND rejected_at IS NULL`,
		at.Format(time.RFC3339), by, id,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("completion %s not pending: %w", id, stars.ErrInvalidState)
	}
	return nil
}

// MarkCompletionRejected sets the rejection timestamp and reason.
func (s *Store) MarkCompletionRejected(ctx context.Context, id string, at time.Time, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE habit_completions SET rejected_at = ?, rejection_reason = ?
		 WHERE id = ? AND approved_at IS NULL AND rejected_at IS NULL`,
		at.Format(time.RFC3339), reason, id,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("completion %s not pending: %w", id, stars.ErrInvalidState)
	}
	return nil
}

func (s *Store) queryCompletions(ctx context.Context, query string, args ...any) ([]stars.Completion, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query completions: %w", err)
	}
	defer rows.Close()

	var completions []stars.Completion
	for rows.Next() {
		var (
			c           stars.Completion
			completedAt string
			approvedAt  sql.NullString
			rejectedAt  sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.HabitID, &c.ChildID, &c.CompletedDate, &completedAt,
			&approvedAt, &c.ApprovedBy, &rejectedAt, &c.RejectionReason, &c.StarsEarned); err != nil {
			return nil, err
		}
		c.CompletedAt, _ = time.Parse(time.RFC3339, completedAt)
		c.ApprovedAt = parseNullTime(approvedAt)
		c.RejectedAt = parseNullTime(rejectedAt)
		completions = append(completions, c)
	}
	return completions, rows.Err()
}

func scanCompletion(row *sql.Row) (*stars.Completion, error) {
	var (
		c           stars.Completion
		completedAt string
		approvedAt  sql.NullString
		rejectedAt  sql.NullString
	)
	err := row.Scan(&c.ID, &c.HabitID, &c.ChildID, &c.CompletedDate, &completedAt,
		&approvedAt, &c.ApprovedBy, &rejectedAt, &c.RejectionReason, &c.StarsEarned)
	if err != nil {
		return nil, err
	}
	c.CompletedAt, _ = time.Parse(time.RFC3339, completedAt)
	c.ApprovedAt = parseNullTime(approvedAt)
	c.RejectedAt = parseNullTime(rejectedAt)
	return &c, nil
}

// =============================================================================
// REWARDS
// =============================================================================

// SaveReward inserts or updates a reward.
func (s *Store) SaveReward(ctx context.Context, r stars.Reward) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO rewards (id, parent_id, title, description, star_cost, image_url, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			star_cost = excluded.star_cost,
			image_url = excluded.image_url,
			active = excluded.active
	`

	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.ParentID, r.Title, r.Description, r.StarCost, r.ImageURL, r.Active,
		createdAt.Format(time.RFC3339),
	)
	return err
}

// GetReward retrieves a reward by ID.
func (s *Store) GetReward(ctx context.Context, id string) (*stars.Reward, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var r stars.Reward
	var createdAt string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, parent_id, title, description, star_cost, image_url, active, created_at
		 FROM rewards WHERE id = ?`,
		id,
	).Scan(&r.ID, &r.ParentID, &r.Title, &r.Description, &r.StarCost, &r.ImageURL, &r.Active, &createdAt)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("reward %s: %w", id, stars.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &r, nil
}

// ListActiveRewards returns a parent's active catalog, oldest first.
func (s *Store) ListActiveRewards(ctx context.Context, parentID string) ([]stars.Reward, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, parent_id, title, description, star_cost, image_url, active, created_at
		FROM rewards WHERE active = TRUE`
	var args []any
	if parentID != "" {
		query += " AND parent_id = ?"
		args = append(args, parentID)
	}
	query += " ORDER BY created_at ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rewards []stars.Reward
	for rows.Next() {
		var r stars.Reward
		var createdAt string
		if err := rows.Scan(&r.ID, &r.ParentID, &r.Title, &r.Description, &r.StarCost,
			&r.ImageURL, &r.Active, &createdAt); err != nil {
			return nil, err
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		rewards = append(rewards, r)
	}
	return rewards, rows.Err()
}

// =============================================================================
// REDEMPTIONS
// =============================================================================

// InsertRedemption adds a redemption row.
func (s *Store) InsertRedemption(ctx context.Context, r stars.Redemption) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO redemptions (id, child_id, reward_id, stars_spent, status, created_at, fulfilled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.ChildID, r.RewardID, r.StarsSpent, string(r.Status),
		r.CreatedAt.Format(time.RFC3339), nullTime(r.FulfilledAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert redemption: %w", err)
	}
	return nil
}

// GetRedemption retrieves a redemption by ID.
func (s *Store) GetRedemption(ctx context.Context, id string) (*stars.Redemption, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		r           stars.Redemption
		status      string
		createdAt   string
		fulfilledAt sql.NullString
	)

	err := s.db.QueryRowContext(ctx,
		`SELECT id, child_id, reward_id, stars_spent, status, created_at, fulfilled_at
		 FROM redemptions WHERE id = ?`,
		id,
	).Scan(&r.ID, &r.ChildID, &r.RewardID, &r.StarsSpent, &status, &createdAt, &fulfilledAt)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("redemption %s: %w", id, stars.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	r.Status = stars.RedemptionStatus(status)
	r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	r.FulfilledAt = parseNullTime(fulfilledAt)
	return &r, nil
}

// UpdateRedemptionStatus moves a redemption to a new status.
func (s *Store) UpdateRedemptionStatus(ctx context.Context, id string, status stars.RedemptionStatus, fulfilledAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE redemptions SET status = ?, fulfilled_at = COALESCE(?, fulfilled_at) WHERE id = ?",
		string(status), nullTime(fulfilledAt), id,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("redemption %s: %w", id, stars.ErrNotFound)
	}
	return nil
}

const redemptionDetailQuery = `
	SELECT r.id, r.child_id, r.reward_id, r.stars_spent, r.status, r.created_at, r.fulfilled_at,
	       w.title, c.name, c.avatar
	FROM redemptions r
	JOIN rewards w ON w.id = r.reward_id
	JOIN children c ON c.id = r.child_id
`

// ListRedemptionsForChild returns a child's redemptions, newest first.
func (s *Store) ListRedemptionsForChild(ctx context.Context, childID string) ([]stars.RedemptionDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := redemptionDetailQuery + " WHERE r.child_id = ? ORDER BY r.created_at DESC"
	return s.queryRedemptionDetails(ctx, query, childID)
}

// ListPendingRedemptions returns all pending redemptions, oldest first.
func (s *Store) ListPendingRedemptions(ctx context.Context) ([]stars.RedemptionDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := redemptionDetailQuery + " WHERE r.status = 'pending' ORDER BY r.created_at ASC"
	return s.queryRedemptionDetails(ctx, query)
}

func (s *Store) queryRedemptionDetails(ctx context.Context, query string, args ...any) ([]stars.RedemptionDetail, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var details []stars.RedemptionDetail
	for rows.Next() {
		var (
			d           stars.RedemptionDetail
			status      string
			createdAt   string
			fulfilledAt sql.NullString
		)
		if err := rows.Scan(&d.ID, &d.ChildID, &d.RewardID, &d.StarsSpent, &status,
			&createdAt, &fulfilledAt, &d.RewardTitle, &d.ChildName, &d.ChildAvatar); err != nil {
			return nil, err
		}
		d.Status = stars.RedemptionStatus(status)
		d.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		d.FulfilledAt = parseNullTime(fulfilledAt)
		details = append(details, d)
	}
	return details, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"redemptions", "habit_completions", "habits", "rewards", "children"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// Helper functions

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339), Valid: true}
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
