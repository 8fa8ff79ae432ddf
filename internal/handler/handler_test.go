package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/Shivanand-hulikatti/activity-waitlist/internal/i18n"
	"github.com/Shivanand-hulikatti/activity-waitlist/internal/model"
	"github.com/Shivanand-hulikatti/activity-waitlist/internal/repository"
	"github.com/Shivanand-hulikatti/activity-waitlist/internal/service"
)

const testSecret = "test-secret"

type apiHarness struct {
	t      *testing.T
	server *httptest.Server
	auth   *Authenticator
	host   model.User
}

func newAPI(t *testing.T, limit func(http.Handler) http.Handler) *apiHarness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.NewEventService(repository.NewMemoryStore(), service.WithLogger(logger))
	tr := i18n.NewTranslator("en", logger)
	auth := NewAuthenticator(testSecret)

	srv := httptest.NewServer(NewRouter(NewEventHandler(svc, tr, logger), RouterConfig{
		Auth:      auth,
		Logger:    logger,
		RateLimit: limit,
	}))
	t.Cleanup(srv.Close)
	return &apiHarness{t: t, server: srv, auth: auth, host: model.User{ID: "host-1", Email: "host@example.com"}}
}

func (a *apiHarness) token(u model.User) string {
	a.t.Helper()
	tok, err := a.auth.Issue(u, time.Hour)
	if err != nil {
		a.t.Fatalf("Issue: %v", err)
	}
	return tok
}

func (a *apiHarness) do(method, path string, user *model.User, body any, header ...string) *http.Response {
	a.t.Helper()
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			a.t.Fatalf("marshal: %v", err)
		}
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, a.server.URL+path, rdr)
	if err != nil {
		a.t.Fatalf("NewRequest: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != nil {
		req.Header.Set("Authorization", "Bearer "+a.token(*user))
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		a.t.Fatalf("%s %s: %v", method, path, err)
	}
	a.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (a *apiHarness) createEvent(capacity int) model.Event {
	a.t.Helper()
	resp := a.do(http.MethodPost, "/events", &a.host, model.CreateEventRequest{Name: "Futsal", Capacity: &capacity})
	wantStatus(a.t, resp, http.StatusCreated)
	var e model.Event
	decode(a.t, resp, &e)
	return e
}

func wantStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("%s %s: status = %d, want %d; body %s", resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, want, body)
	}
}

func decode(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func user(n string) *model.User {
	return &model.User{ID: "user-" + n, Email: n + "@example.com"}
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()
	api := newAPI(t, nil)
	resp := api.do(http.MethodGet, "/health", nil, nil)
	wantStatus(t, resp, http.StatusOK)
}

func TestBookingAndWaitlistFlow(t *testing.T) {
	t.Parallel()
	api := newAPI(t, nil)
	e := api.createEvent(1)
	base := "/events/" + e.ID

	wantStatus(t, api.do(http.MethodPost, base+"/join", user("a"), nil), http.StatusCreated)

	resp := api.do(http.MethodPost, base+"/join", user("b"), model.JoinRequest{})
	wantStatus(t, resp, http.StatusConflict)
	var errResp model.ErrorResponse
	decode(t, resp, &errResp)
	if errResp.Error != "event_full" || !strings.HasPrefix(errResp.Message, "Activity is full") {
		t.Fatalf("error response = %+v", errResp)
	}

	resp = api.do(http.MethodPost, base+"/waitlist", user("b"), nil)
	wantStatus(t, resp, http.StatusCreated)
	var queued struct {
		Position int `json:"position"`
	}
	decode(t, resp, &queued)
	if queued.Position != 1 {
		t.Fatalf("position = %d, want 1", queued.Position)
	}

	resp = api.do(http.MethodGet, base+"/status", user("b"), nil)
	wantStatus(t, resp, http.StatusOK)
	var st model.Status
	decode(t, resp, &st)
	if !st.Waitlisted || st.Position == nil || *st.Position != 1 {
		t.Fatalf("status = %+v", st)
	}

	wantStatus(t, api.do(http.MethodPost, base+"/leave", user("a"), nil), http.StatusNoContent)

	resp = api.do(http.MethodGet, base+"/status", user("b"), nil)
	decode(t, resp, &st)
	if st.Waitlist != model.WaitlistNotified || st.ExpiresAt == nil {
		t.Fatalf("status after leave = %+v, want an offer", st)
	}

	wantStatus(t, api.do(http.MethodPost, base+"/join", user("b"), nil), http.StatusCreated)
	wantStatus(t, api.do(http.MethodDelete, base+"/waitlist", user("b"), nil), http.StatusConflict)

	resp = api.do(http.MethodGet, base, nil, nil)
	wantStatus(t, resp, http.StatusOK)
	var view model.EventView
	decode(t, resp, &view)
	if view.Occupancy.Joined != 1 || view.Occupancy.Held != 0 {
		t.Fatalf("occupancy = %+v", view.Occupancy)
	}
}

func TestErrorsAreLocalized(t *testing.T) {
	t.Parallel()
	api := newAPI(t, nil)
	e := api.createEvent(1)
	api.do(http.MethodPost, "/events/"+e.ID+"/join", user("a"), nil)

	resp := api.do(http.MethodPost, "/events/"+e.ID+"/join", user("b"), nil, "Accept-Language", "id-ID,id;q=0.9")
	wantStatus(t, resp, http.StatusConflict)
	var errResp model.ErrorResponse
	decode(t, resp, &errResp)
	if !strings.HasPrefix(errResp.Message, "Aktivitas sudah penuh") {
		t.Fatalf("message = %q", errResp.Message)
	}
}

func TestAuthRequired(t *testing.T) {
	t.Parallel()
	api := newAPI(t, nil)
	e := api.createEvent(3)

	resp := api.do(http.MethodPost, "/events/"+e.ID+"/join", nil, nil)
	wantStatus(t, resp, http.StatusUnauthorized)

	forged, _ := NewAuthenticator("other-secret").Issue(*user("a"), time.Hour)
	resp = api.do(http.MethodPost, "/events/"+e.ID+"/join", nil, nil, "Authorization", "Bearer "+forged)
	wantStatus(t, resp, http.StatusUnauthorized)

	expired, _ := api.auth.Issue(*user("a"), -time.Minute)
	resp = api.do(http.MethodPost, "/events/"+e.ID+"/join", nil, nil, "Authorization", "Bearer "+expired)
	wantStatus(t, resp, http.StatusUnauthorized)

	// Browsing stays public.
	wantStatus(t, api.do(http.MethodGet, "/events", nil, nil), http.StatusOK)
}

func TestHostOnlyRoutes(t *testing.T) {
	t.Parallel()
	api := newAPI(t, nil)
	e := api.createEvent(2)
	base := "/events/" + e.ID

	wantStatus(t, api.do(http.MethodPatch, base+"/capacity", user("a"), model.CapacityRequest{Capacity: intPtr(5)}), http.StatusForbidden)
	wantStatus(t, api.do(http.MethodPost, base+"/cancel", user("a"), nil), http.StatusForbidden)
	wantStatus(t, api.do(http.MethodPost, base+"/promote", user("a"), model.PromoteRequest{Spots: 1}), http.StatusForbidden)
	wantStatus(t, api.do(http.MethodGet, base+"/roster.xlsx", user("a"), nil), http.StatusForbidden)

	resp := api.do(http.MethodPatch, base+"/capacity", &api.host, model.CapacityRequest{Capacity: intPtr(5)})
	wantStatus(t, resp, http.StatusOK)
	var view model.EventView
	decode(t, resp, &view)
	if view.Capacity == nil || *view.Capacity != 5 {
		t.Fatalf("capacity = %v", view.Capacity)
	}

	wantStatus(t, api.do(http.MethodPost, base+"/cancel", &api.host, nil), http.StatusNoContent)
	wantStatus(t, api.do(http.MethodPost, base+"/join", user("a"), nil), http.StatusConflict)
}

func TestRequestValidation(t *testing.T) {
	t.Parallel()
	api := newAPI(t, nil)

	resp := api.do(http.MethodPost, "/events", &api.host, model.CreateEventRequest{Name: ""})
	wantStatus(t, resp, http.StatusBadRequest)
	var errResp model.ErrorResponse
	decode(t, resp, &errResp)
	if errResp.Error != "validation" || !strings.Contains(errResp.Details, "name") {
		t.Fatalf("error response = %+v", errResp)
	}

	resp = api.do(http.MethodPost, "/events", &api.host, map[string]any{"name": "x", "seats": 3})
	wantStatus(t, resp, http.StatusBadRequest)
	decode(t, resp, &errResp)
	if errResp.Error != "invalid_request" {
		t.Fatalf("error response = %+v", errResp)
	}

	wantStatus(t, api.do(http.MethodGet, "/events/missing", nil, nil), http.StatusNotFound)
}

func TestRosterExport(t *testing.T) {
	t.Parallel()
	api := newAPI(t, nil)
	e := api.createEvent(1)
	base := "/events/" + e.ID
	api.do(http.MethodPost, base+"/join", user("a"), nil)
	api.do(http.MethodPost, base+"/waitlist", user("b"), nil)

	resp := api.do(http.MethodGet, base+"/roster.xlsx", &api.host, nil)
	wantStatus(t, resp, http.StatusOK)
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "spreadsheetml") {
		t.Fatalf("content type = %q", ct)
	}

	f, err := excelize.OpenReader(resp.Body)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()

	attendees, err := f.GetRows(attendeeSheet)
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(attendees) != 2 || attendees[1][0] != "user-a" {
		t.Fatalf("attendees = %v", attendees)
	}
	waiting, err := f.GetRows(waitlistSheet)
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(waiting) != 2 || waiting[1][1] != "user-b" || waiting[1][3] != "WAITING" {
		t.Fatalf("waitlist = %v", waiting)
	}
}

func TestRateLimit(t *testing.T) {
	t.Parallel()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	limit, err := RateLimit("2-M", nil, i18n.NewTranslator("en", logger))
	if err != nil {
		t.Fatalf("RateLimit: %v", err)
	}
	api := newAPI(t, limit)

	for i := 0; i < 2; i++ {
		wantStatus(t, api.do(http.MethodGet, "/events", nil, nil), http.StatusOK)
	}
	resp := api.do(http.MethodGet, "/events", nil, nil)
	wantStatus(t, resp, http.StatusTooManyRequests)

	// Health checks are never limited.
	wantStatus(t, api.do(http.MethodGet, "/health", nil, nil), http.StatusOK)

	if _, err := RateLimit("lots", nil, nil); err == nil {
		t.Fatal("malformed rate accepted")
	}
}

func intPtr(v int) *int { return &v }
