package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// RouterConfig carries what the router needs besides the handlers.
type RouterConfig struct {
	Auth   *Authenticator
	Logger *slog.Logger
	// RateLimit is applied to every API route when set.
	RateLimit func(http.Handler) http.Handler
}

// NewRouter builds the HTTP API.
func NewRouter(h *EventHandler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware stack
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(Logger(cfg.Logger))
	r.Use(CORS)

	r.Get("/health", HealthCheck)

	r.Route("/events", func(r chi.Router) {
		if cfg.RateLimit != nil {
			r.Use(cfg.RateLimit)
		}
		r.Get("/", h.ListEvents)
		r.Get("/{id}", h.GetEvent)

		r.Group(func(r chi.Router) {
			r.Use(RequireAuth(cfg.Auth, h.tr))

			// host
			r.Post("/", h.CreateEvent)
			r.Patch("/{id}/capacity", h.UpdateCapacity)
			r.Post("/{id}/cancel", h.CancelEvent)
			r.Post("/{id}/promote", h.Promote)
			r.Get("/{id}/roster.xlsx", h.Roster)

			// member
			r.Post("/{id}/join", h.Join)
			r.Post("/{id}/leave", h.Leave)
			r.Post("/{id}/waitlist", h.EnqueueWaitlist)
			r.Delete("/{id}/waitlist", h.LeaveWaitlist)
			r.Get("/{id}/status", h.GetStatus)
		})
	})

	return r
}
