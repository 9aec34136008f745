/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/children/*      Child profiles, habits, reconciliation
  /api/habits/*        Habit edits
  /api/completions/*   Approval queue and approve/reject
  /api/rewards/*       Reward catalog
  /api/redemptions/*   Redemption ledger

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Child routes
		r.Route("/children", func(r chi.Router) {
			r.Get("/", h.ListChildren)
			r.Post("/", h.CreateChild)
			r.Get("/{id}", h.GetChild)
			r.Delete("/{id}", h.DeleteChild)
			r.Get("/{id}/habits", h.ListHabits)
			r.Post("/{id}/habits", h.CreateHabit)
			r.Post("/{id}/reconcile", h.Reconcile)
			r.Get("/{id}/redemptions", h.ListChildRedemptions)
		})

		// Habit routes
		r.Route("/habits", func(r chi.Router) {
			r.Put("/{id}", h.UpdateHabit)
			r.Delete("/{id}", h.DisableHabit)
		})

		// Completion routes
		r.Route("/completions", func(r chi.Router) {
			r.Post("/", h.CreateCompletion)
			r.Get("/pending", h.ListPendingCompletions)
			r.Post("/{id}/approve", h.ApproveCompletion)
			r.Post("/{id}/reject", h.RejectCompletion)
		})

		// Reward routes
		r.Route("/rewards", func(r chi.Router) {
			r.Get("/", h.ListRewards)
			r.Post("/", h.CreateReward)
			r.Put("/{id}", h.UpdateReward)
			r.Delete("/{id}", h.DisableReward)
		})

		// Redemption routes
		r.Route("/redemptions", func(r chi.Router) {
			r.Post("/", h.CreateRedemption)
			r.Get("/pending", h.ListPendingRedemptions)
			r.Post("/{id}/fulfill", h.FulfillRedemption)
			r.Post("/{id}/cancel", h.CancelRedemption)
		})
	})

	return r
}
