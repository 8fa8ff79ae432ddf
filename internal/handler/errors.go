package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/Shivanand-hulikatti/activity-waitlist/internal/model"
	"github.com/Shivanand-hulikatti/activity-waitlist/internal/service"
)

var statusByKind = map[string]int{
	"unauthorized":          http.StatusUnauthorized,
	"forbidden":             http.StatusForbidden,
	"not_found":             http.StatusNotFound,
	"event_cancelled":       http.StatusConflict,
	"already_joined":        http.StatusConflict,
	"not_joined":            http.StatusConflict,
	"event_full":            http.StatusConflict,
	"already_waiting":       http.StatusConflict,
	"not_waiting":           http.StatusConflict,
	"event_not_full":        http.StatusConflict,
	"capacity_below_joined": http.StatusConflict,
	"payment_required":      http.StatusPaymentRequired,
	"validation":            http.StatusBadRequest,
	"conflict":              http.StatusServiceUnavailable,
}

// writeError maps a service error to its HTTP status and a message in the
// caller's language. Unexpected errors are logged and hidden from clients.
func (h *EventHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := service.ErrorKind(err)
	status, ok := statusByKind[kind]
	key := "error." + kind
	if !ok {
		status, kind, key = http.StatusInternalServerError, "internal", "error.internal"
		h.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err)
	}

	resp := model.ErrorResponse{Error: kind}
	var vErr *service.ValidationError
	if errors.As(err, &vErr) {
		key = "error.invalid_request"
		resp.Details = vErr.Error()
	}
	if kind == "conflict" {
		w.Header().Set("Retry-After", "1")
	}
	resp.Message = h.tr.T(localeOf(r), key, nil)
	writeJSON(w, status, resp)
}

func (h *EventHandler) badRequest(w http.ResponseWriter, r *http.Request, err error) {
	writeJSON(w, http.StatusBadRequest, model.ErrorResponse{
		Error:   "invalid_request",
		Message: h.tr.T(localeOf(r), "error.invalid_request", nil),
		Details: err.Error(),
	})
}

// localeOf prefers the locale claim of the signed-in user and falls back to
// the Accept-Language header.
func localeOf(r *http.Request) string {
	if u := UserFrom(r.Context()); u.Locale != "" {
		return u.Locale
	}
	return r.Header.Get("Accept-Language")
}
