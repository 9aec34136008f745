/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.
*/
package api

import (
	"time"

	"github.com/familyquest/star-engine/stars"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// ChildDTO represents a child in API responses.
type ChildDTO struct {
	ID        string `json:"id"`
	ParentID  string `json:"parent_id"`
	Name      string `json:"name"`
	Avatar    string `json:"avatar,omitempty"`
	Stars     int    `json:"stars"`
	CreatedAt string `json:"created_at,omitempty"`
}

// CreateChildRequest is the request to create a child.
type CreateChildRequest struct {
	ParentID string `json:"parent_id"`
	Name     string `json:"name"`
	Avatar   string `json:"avatar"`
}

// HabitDTO represents a habit in API responses.
type HabitDTO struct {
	ID          string `json:"id"`
	ChildID     string `json:"child_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category"`
	IsCore      bool   `json:"is_core"`
	Active      bool   `json:"active"`
}

// CreateHabitRequest is the request to create a habit.
type CreateHabitRequest struct {
	ParentID    string `json:"parent_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	IsCore      bool   `json:"is_core"`
}

// UpdateHabitRequest is the request to edit a habit.
type UpdateHabitRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Category    *string `json:"category,omitempty"`
	IsCore      *bool   `json:"is_core,omitempty"`
}

// CreateCompletionRequest is the request sent when a child marks a habit done.
type CreateCompletionRequest struct {
	HabitID string `json:"habit_id"`
	ChildID string `json:"child_id"`
	Date    string `json:"date"` // YYYY-MM-DD
}

// CompletionDTO represents a completion in API responses.
type CompletionDTO struct {
	ID            string `json:"id"`
	HabitID       string `json:"habit_id"`
	ChildID       string `json:"child_id"`
	CompletedDate string `json:"completed_date"`
	CompletedAt   string `json:"completed_at"`
	Status        string `json:"status"`
	StarsEarned   int    `json:"stars_earned"`
	HabitTitle    string `json:"habit_title,omitempty"`
	HabitIsCore   bool   `json:"habit_is_core,omitempty"`
}

// RejectCompletionRequest carries the rejection reason.
type RejectCompletionRequest struct {
	Reason string `json:"reason"`
}

// ReconcileRequest is the request to reconcile a child's stars for a day.
type ReconcileRequest struct {
	Date string `json:"date"` // YYYY-MM-DD
}

// DayResultDTO is the outcome of a reconciliation pass.
type DayResultDTO struct {
	DayStars   int `json:"day_stars"`
	TotalStars int `json:"total_stars"`
}

// RewardDTO represents a catalog reward.
type RewardDTO struct {
	ID          string `json:"id"`
	ParentID    string `json:"parent_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	StarCost    int    `json:"star_cost"`
	ImageURL    string `json:"image_url,omitempty"`
	Active      bool   `json:"active"`
}

// CreateRewardRequest is the request to create a reward.
type CreateRewardRequest struct {
	ParentID    string `json:"parent_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	StarCost    int    `json:"star_cost"`
	ImageURL    string `json:"image_url"`
}

// UpdateRewardRequest is the request to edit a reward.
type UpdateRewardRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	StarCost    *int    `json:"star_cost,omitempty"`
	ImageURL    *string `json:"image_url,omitempty"`
}

// CreateRedemptionRequest is the request to redeem a reward.
type CreateRedemptionRequest struct {
	ChildID  string `json:"child_id"`
	RewardID string `json:"reward_id"`
	StarCost int    `json:"star_cost"`
}

// RedemptionDTO represents a redemption with display metadata.
type RedemptionDTO struct {
	ID          string `json:"id"`
	ChildID     string `json:"child_id"`
	RewardID    string `json:"reward_id"`
	StarsSpent  int    `json:"stars_spent"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
	FulfilledAt string `json:"fulfilled_at,omitempty"`
	RewardTitle string `json:"reward_title,omitempty"`
	ChildName   string `json:"child_name,omitempty"`
	ChildAvatar string `json:"child_avatar,omitempty"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toChildDTO(c stars.Child) ChildDTO {
	return ChildDTO{
		ID:        c.ID,
		ParentID:  c.ParentID,
		Name:      c.Name,
		Avatar:    c.Avatar,
		Stars:     c.Stars,
		CreatedAt: c.CreatedAt.Format(time.RFC3339),
	}
}

func toHabitDTO(h stars.Habit) HabitDTO {
	return HabitDTO{
		ID:          h.ID,
		ChildID:     h.ChildID,
		Title:       h.Title,
		Description: h.Description,
		Category:    string(h.Category),
		IsCore:      h.IsCore,
		Active:      h.Active,
	}
}

func toCompletionDTO(c stars.Completion) CompletionDTO {
	return CompletionDTO{
		ID:            c.ID,
		HabitID:       c.HabitID,
		ChildID:       c.ChildID,
		CompletedDate: c.CompletedDate,
		CompletedAt:   c.CompletedAt.Format(time.RFC3339),
		Status:        string(c.Status()),
		StarsEarned:   c.StarsEarned,
	}
}

func toRewardDTO(r stars.Reward) RewardDTO {
	return RewardDTO{
		ID:          r.ID,
		ParentID:    r.ParentID,
		Title:       r.Title,
		Description: r.Description,
		StarCost:    r.StarCost,
		ImageURL:    r.ImageURL,
		Active:      r.Active,
	}
}

func toRedemptionDTO(d stars.RedemptionDetail) RedemptionDTO {
	dto := RedemptionDTO{
		ID:          d.ID,
		ChildID:     d.ChildID,
		RewardID:    d.RewardID,
		StarsSpent:  d.StarsSpent,
		Status:      string(d.Status),
		CreatedAt:   d.CreatedAt.Format(time.RFC3339),
		RewardTitle: d.RewardTitle,
		ChildName:   d.ChildName,
		ChildAvatar: d.ChildAvatar,
	}
	if d.FulfilledAt != nil {
		dto.FulfilledAt = d.FulfilledAt.Format(time.RFC3339)
	}
	return dto
}
