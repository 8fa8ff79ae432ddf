// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Shivanand-hulikatti/activity-waitlist/internal/model"
	"github.com/Shivanand-hulikatti/activity-waitlist/internal/service"
)

// Translator renders localized messages.
type Translator interface {
	T(locale, key string, data map[string]any) string
}

// EventHandler holds all HTTP handlers for the activity booking API.
type EventHandler struct {
	svc    *service.EventService
	tr     Translator
	logger *slog.Logger
}

// NewEventHandler constructs an EventHandler.
func NewEventHandler(svc *service.EventService, tr Translator, logger *slog.Logger) *EventHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventHandler{svc: svc, tr: tr, logger: logger}
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// decodeOptionalJSON accepts an empty body as the zero value.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if err := decodeJSON(w, r, dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ─── Catalogue ───────────────────────────────────────────────────────────────

// CreateEvent handles POST /events
// Creates a new event hosted by the caller.
func (h *EventHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req model.CreateEventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	event, err := h.svc.CreateEvent(r.Context(), UserFrom(r.Context()), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, event)
}

// ListEvents handles GET /events
// Returns a JSON array of all events with their occupancy.
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.svc.ListEvents(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	// Return an empty array rather than null for better client compatibility.
	if events == nil {
		events = []model.EventView{}
	}

	writeJSON(w, http.StatusOK, events)
}

// GetEvent handles GET /events/{id}
func (h *EventHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.svc.GetEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, event)
}

// UpdateCapacity handles PATCH /events/{id}/capacity
// A null capacity makes the event unlimited.
func (h *EventHandler) UpdateCapacity(w http.ResponseWriter, r *http.Request) {
	var req model.CapacityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	event, err := h.svc.UpdateCapacity(r.Context(), UserFrom(r.Context()), chi.URLParam(r, "id"), req.Capacity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, event)
}

// CancelEvent handles POST /events/{id}/cancel
func (h *EventHandler) CancelEvent(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.CancelEvent(r.Context(), UserFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Promote handles POST /events/{id}/promote
// Offers up to the requested number of spots to the waitlist.
func (h *EventHandler) Promote(w http.ResponseWriter, r *http.Request) {
	var req model.PromoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	notified, err := h.svc.PromoteAsHost(r.Context(), UserFrom(r.Context()), chi.URLParam(r, "id"), req.Spots)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if notified == nil {
		notified = []model.WaitlistEntry{}
	}

	writeJSON(w, http.StatusOK, notified)
}

// ─── Bookings ─────────────────────────────────────────────────────────────────

// Join handles POST /events/{id}/join
// Performs a concurrency-safe booking for the caller.
func (h *EventHandler) Join(w http.ResponseWriter, r *http.Request) {
	var req model.JoinRequest
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	booking, err := h.svc.Join(r.Context(), UserFrom(r.Context()), chi.URLParam(r, "id"), req.PaymentID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, booking)
}

// Leave handles POST /events/{id}/leave
func (h *EventHandler) Leave(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Leave(r.Context(), UserFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ─── Waitlist ─────────────────────────────────────────────────────────────────

// EnqueueWaitlist handles POST /events/{id}/waitlist
func (h *EventHandler) EnqueueWaitlist(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	pos, err := h.svc.EnqueueWaitlist(r.Context(), UserFrom(r.Context()), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"event_id": id, "position": pos})
}

// LeaveWaitlist handles DELETE /events/{id}/waitlist
func (h *EventHandler) LeaveWaitlist(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.LeaveWaitlist(r.Context(), UserFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetStatus handles GET /events/{id}/status
func (h *EventHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.GetStatus(r.Context(), UserFrom(r.Context()).ID, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, st)
}

// ─── Roster ───────────────────────────────────────────────────────────────────

// Roster handles GET /events/{id}/roster.xlsx
// Streams the host's attendee and waitlist sheet.
func (h *EventHandler) Roster(w http.ResponseWriter, r *http.Request) {
	roster, err := h.svc.Roster(r.Context(), UserFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	data, err := RosterWorkbook(roster)
	if err != nil {
		h.writeError(w, r, fmt.Errorf("build roster workbook: %w", err))
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="roster_%s.xlsx"`, roster.Event.ID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
