/*
handlers.go - HTTP API handlers for the star engine

PURPOSE:
  Exposes the star economy via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the domain ledger.

ENDPOINTS:
  Children:
    GET    /api/children                    List children
    POST   /api/children                    Create child
    GET    /api/children/{id}               Get child (with balance)
    DELETE /api/children/{id}               Delete child (cascades)
    GET    /api/children/{id}/habits        List active habits
    POST   /api/children/{id}/habits        Create habit
    POST   /api/children/{id}/reconcile     Reconcile stars for a date
    GET    /api/children/{id}/redemptions   Redemption history

  Completions:
    POST   /api/completions                 Child marks a habit done
    GET    /api/completions/pending         Parent approval queue
    POST   /api/completions/{id}/approve    Approve + reconcile
    POST   /api/completions/{id}/reject     Reject + reconcile

  Rewards/Redemptions:
    GET    /api/rewards                     List active rewards
    POST   /api/rewards                     Create reward
    POST   /api/redemptions                 Redeem (debit + pending row)
    GET    /api/redemptions/pending         Pending queue
    POST   /api/redemptions/{id}/fulfill    Fulfill
    POST   /api/redemptions/{id}/cancel     Cancel + refund

ERROR HANDLING:
  Domain errors map to HTTP status:
  - 400: invalid input
  - 404: missing child/habit/completion/reward/redemption
  - 409: insufficient stars, invalid state transitions, duplicates
  - 500: persistence failures

SECURITY NOTE:
  No authentication middleware. The surrounding application handles auth
  and parent/child PIN flows; this API trusts its caller.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/familyquest/star-engine/stars"
)

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store  stars.Store
	Ledger *stars.Ledger
}

// NewHandler creates a new handler over the given store.
func NewHandler(store stars.Store) *Handler {
	return &Handler{
		Store:  store,
		Ledger: stars.NewLedger(store),
	}
}

// =============================================================================
// CHILD HANDLERS
// =============================================================================

// ListChildren returns all children, optionally filtered by parent_id.
func (h *Handler) ListChildren(w http.ResponseWriter, r *http.Request) {
	children, err := h.Store.ListChildren(r.Context(), r.URL.Query().Get("parent_id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list children", err)
		return
	}

	dtos := make([]ChildDTO, len(children))
	for i, c := range children {
		dtos[i] = toChildDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetChild returns a single child with its current star balance.
func (h *Handler) GetChild(w http.ResponseWriter, r *http.Request) {
	child, err := h.Store.GetChild(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "Failed to get child", err)
		return
	}
	writeJSON(w, http.StatusOK, toChildDTO(*child))
}

// CreateChild creates a new child with a zero balance.
func (h *Handler) CreateChild(w http.ResponseWriter, r *http.Request) {
	var req CreateChildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" || req.ParentID == "" {
		writeError(w, http.StatusBadRequest, "name and parent_id are required", nil)
		return
	}

	child := stars.Child{
		ID:        uuid.NewString(),
		ParentID:  req.ParentID,
		Name:      req.Name,
		Avatar:    req.Avatar,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.Store.SaveChild(r.Context(), child); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create child", err)
		return
	}
	writeJSON(w, http.StatusCreated, toChildDTO(child))
}

// DeleteChild removes a child and everything it owns.
func (h *Handler) DeleteChild(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeleteChild(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, "Failed to delete child", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Reconcile recomputes star credits for a child+date.
// POST /api/children/{id}/reconcile
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	var req ReconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	result, err := h.Ledger.Reconcile(r.Context(), chi.URLParam(r, "id"), req.Date)
	if err != nil {
		writeDomainError(w, "Reconciliation failed", err)
		return
	}
	writeJSON(w, http.StatusOK, DayResultDTO{DayStars: result.DayStars, TotalStars: result.TotalStars})
}

// =============================================================================
// HABIT HANDLERS
// =============================================================================

// ListHabits returns a child's active habits.
func (h *Handler) ListHabits(w http.ResponseWriter, r *http.Request) {
	habits, err := h.Store.ListActiveHabits(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list habits", err)
		return
	}

	dtos := make([]HabitDTO, len(habits))
	for i, habit := range habits {
		dtos[i] = toHabitDTO(habit)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateHabit creates a habit for a child.
func (h *Handler) CreateHabit(w http.ResponseWriter, r *http.Request) {
	var req CreateHabitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required", nil)
		return
	}

	childID := chi.URLParam(r, "id")
	if _, err := h.Store.GetChild(r.Context(), childID); err != nil {
		writeDomainError(w, "Failed to get child", err)
		return
	}

	habit := stars.Habit{
		ID:          uuid.NewString(),
		ParentID:    req.ParentID,
		ChildID:     childID,
		Title:       req.Title,
		Description: req.Description,
		Category:    stars.HabitCategory(req.Category),
		IsCore:      req.IsCore,
		Active:      true,
		CreatedAt:   time.Now().UTC(),
	}
	if err := h.Store.SaveHabit(r.Context(), habit); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create habit", err)
		return
	}
	writeJSON(w, http.StatusCreated, toHabitDTO(habit))
}

// UpdateHabit edits a habit in place.
func (h *Handler) UpdateHabit(w http.ResponseWriter, r *http.Request) {
	var req UpdateHabitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	habit, err := h.Store.GetHabit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "Failed to get habit", err)
		return
	}

	if req.Title != nil {
		habit.Title = *req.Title
	}
	if req.Description != nil {
		habit.Description = *req.Description
	}
	if req.Category != nil {
		habit.Category = stars.HabitCategory(*req.Category)
	}
	if req.IsCore != nil {
		habit.IsCore = *req.IsCore
	}

	if err := h.Store.SaveHabit(r.Context(), *habit); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update habit", err)
		return
	}
	writeJSON(w, http.StatusOK, toHabitDTO(*habit))
}

// DisableHabit soft-deletes a habit. Historical completions remain.
func (h *Handler) DisableHabit(w http.ResponseWriter, r *http.Request) {
	habit, err := h.Store.GetHabit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "Failed to get habit", err)
		return
	}

	habit.Active = false
	if err := h.Store.SaveHabit(r.Context(), *habit); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to disable habit", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// COMPLETION HANDLERS
// =============================================================================

// CreateCompletion records a child marking a habit done.
func (h *Handler) CreateCompletion(w http.ResponseWriter, r *http.Request) {
	var req CreateCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	c, err := h.Ledger.CreateCompletion(r.Context(), req.HabitID, req.ChildID, req.Date)
	if err != nil {
		writeDomainError(w, "Failed to create completion", err)
		return
	}
	writeJSON(w, http.StatusCreated, toCompletionDTO(*c))
}

// ListPendingCompletions returns the parent approval queue.
func (h *Handler) ListPendingCompletions(w http.ResponseWriter, r *http.Request) {
	pending, err := h.Ledger.ListPendingApprovals(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list pending completions", err)
		return
	}

	dtos := make([]CompletionDTO, len(pending))
	for i, p := range pending {
		dto := toCompletionDTO(p.Completion)
		dto.HabitTitle = p.HabitTitle
		dto.HabitIsCore = p.HabitIsCore
		dtos[i] = dto
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ApproveCompletion approves a completion and returns the reconciled stars.
func (h *Handler) ApproveCompletion(w http.ResponseWriter, r *http.Request) {
	result, err := h.Ledger.ApproveCompletion(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "Failed to approve completion", err)
		return
	}
	writeJSON(w, http.StatusOK, DayResultDTO{DayStars: result.DayStars, TotalStars: result.TotalStars})
}

// RejectCompletion rejects a completion and returns the reconciled stars.
func (h *Handler) RejectCompletion(w http.ResponseWriter, r *http.Request) {
	var req RejectCompletionRequest
	json.NewDecoder(r.Body).Decode(&req)

	result, err := h.Ledger.RejectCompletion(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		writeDomainError(w, "Failed to reject completion", err)
		return
	}
	writeJSON(w, http.StatusOK, DayResultDTO{DayStars: result.DayStars, TotalStars: result.TotalStars})
}

// =============================================================================
// REWARD HANDLERS
// =============================================================================

// ListRewards returns the active catalog, optionally filtered by parent_id.
func (h *Handler) ListRewards(w http.ResponseWriter, r *http.Request) {
	rewards, err := h.Store.ListActiveRewards(r.Context(), r.URL.Query().Get("parent_id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list rewards", err)
		return
	}

	dtos := make([]RewardDTO, len(rewards))
	for i, reward := range rewards {
		dtos[i] = toRewardDTO(reward)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateReward adds a catalog item.
func (h *Handler) CreateReward(w http.ResponseWriter, r *http.Request) {
	var req CreateRewardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Title == "" || req.ParentID == "" {
		writeError(w, http.StatusBadRequest, "title and parent_id are required", nil)
		return
	}
	if req.StarCost <= 0 {
		writeError(w, http.StatusBadRequest, "star_cost must be positive", nil)
		return
	}

	reward := stars.Reward{
		ID:          uuid.NewString(),
		ParentID:    req.ParentID,
		Title:       req.Title,
		Description: req.Description,
		StarCost:    req.StarCost,
		ImageURL:    req.ImageURL,
		Active:      true,
		CreatedAt:   time.Now().UTC(),
	}
	if err := h.Store.SaveReward(r.Context(), reward); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create reward", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRewardDTO(reward))
}

// UpdateReward edits a reward. Past redemptions keep their cost snapshot.
func (h *Handler) UpdateReward(w http.ResponseWriter, r *http.Request) {
	var req UpdateRewardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	reward, err := h.Store.GetReward(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "Failed to get reward", err)
		return
	}

	if req.Title != nil {
		reward.Title = *req.Title
	}
	if req.Description != nil {
		reward.Description = *req.Description
	}
	if req.StarCost != nil {
		if *req.StarCost <= 0 {
			writeError(w, http.StatusBadRequest, "star_cost must be positive", nil)
			return
		}
		reward.StarCost = *req.StarCost
	}
	if req.ImageURL != nil {
		reward.ImageURL = *req.ImageURL
	}

	if err := h.Store.SaveReward(r.Context(), *reward); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update reward", err)
		return
	}
	writeJSON(w, http.StatusOK, toRewardDTO(*reward))
}

// DisableReward soft-deletes a reward.
func (h *Handler) DisableReward(w http.ResponseWriter, r *http.Request) {
	reward, err := h.Store.GetReward(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "Failed to get reward", err)
		return
	}

	reward.Active = false
	if err := h.Store.SaveReward(r.Context(), *reward); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to disable reward", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// REDEMPTION HANDLERS
// =============================================================================

// CreateRedemption redeems a reward for a child.
func (h *Handler) CreateRedemption(w http.ResponseWriter, r *http.Request) {
	var req CreateRedemptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	// Default the cost to the reward's current price.
	cost := req.StarCost
	if cost == 0 {
		reward, err := h.Store.GetReward(r.Context(), req.RewardID)
		if err != nil {
			writeDomainError(w, "Failed to get reward", err)
			return
		}
		cost = reward.StarCost
	}

	redemption, err := h.Ledger.Redeem(r.Context(), req.ChildID, req.RewardID, cost)
	if err != nil {
		writeDomainError(w, "Failed to redeem reward", err)
		return
	}
	writeJSON(w, http.StatusCreated, RedemptionDTO{
		ID:         redemption.ID,
		ChildID:    redemption.ChildID,
		RewardID:   redemption.RewardID,
		StarsSpent: redemption.StarsSpent,
		Status:     string(redemption.Status),
		CreatedAt:  redemption.CreatedAt.Format(time.RFC3339),
	})
}

// ListChildRedemptions returns a child's redemption history, newest first.
func (h *Handler) ListChildRedemptions(w http.ResponseWriter, r *http.Request) {
	details, err := h.Ledger.ListRedemptionsForChild(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list redemptions", err)
		return
	}

	dtos := make([]RedemptionDTO, len(details))
	for i, d := range details {
		dtos[i] = toRedemptionDTO(d)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListPendingRedemptions returns the system-wide pending queue.
func (h *Handler) ListPendingRedemptions(w http.ResponseWriter, r *http.Request) {
	details, err := h.Ledger.ListPendingRedemptions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list pending redemptions", err)
		return
	}

	dtos := make([]RedemptionDTO, len(details))
	for i, d := range details {
		dtos[i] = toRedemptionDTO(d)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// FulfillRedemption marks a pending redemption fulfilled.
func (h *Handler) FulfillRedemption(w http.ResponseWriter, r *http.Request) {
	if err := h.Ledger.Fulfill(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, "Failed to fulfill redemption", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "fulfilled"})
}

// CancelRedemption cancels a pending redemption and refunds the stars.
func (h *Handler) CancelRedemption(w http.ResponseWriter, r *http.Request) {
	if err := h.Ledger.Cancel(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, "Failed to cancel redemption", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "cancelled"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps domain errors to HTTP status codes.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case stars.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case stars.IsClientError(err):
		writeError(w, http.StatusConflict, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
