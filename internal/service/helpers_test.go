package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Shivanand-hulikatti/activity-waitlist/internal/model"
	"github.com/Shivanand-hulikatti/activity-waitlist/internal/notify"
	"github.com/Shivanand-hulikatti/activity-waitlist/internal/repository"
)

var referenceTime = time.Date(2026, time.March, 14, 9, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type captureNotifier struct {
	mu      sync.Mutex
	notices []notify.Notice
}

func (c *captureNotifier) Dispatch(n notify.Notice) {
	c.mu.Lock()
	c.notices = append(c.notices, n)
	c.mu.Unlock()
}

func (c *captureNotifier) ofKind(kind notify.Kind) []notify.Notice {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []notify.Notice
	for _, n := range c.notices {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

var errUnknownPayment = errors.New("unknown payment")

type fakeGateway struct {
	mu       sync.Mutex
	captured map[string]int
	refunds  map[string]int
}

func (g *fakeGateway) Verify(_ context.Context, id string) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	amount, ok := g.captured[id]
	if !ok {
		return 0, errUnknownPayment
	}
	return amount, nil
}

func (g *fakeGateway) Refund(_ context.Context, id string, amount int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.refunds == nil {
		g.refunds = map[string]int{}
	}
	g.refunds[id] = amount
	return nil
}

func (g *fakeGateway) refunded() map[string]int {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string]int, len(g.refunds))
	for k, v := range g.refunds {
		out[k] = v
	}
	return out
}

type harness struct {
	svc      *EventService
	store    *repository.MemoryStore
	clock    *testClock
	notices  *captureNotifier
	payments *fakeGateway
	host     model.User
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		store:    repository.NewMemoryStore(),
		clock:    &testClock{now: referenceTime},
		notices:  &captureNotifier{},
		payments: &fakeGateway{captured: map[string]int{}},
		host:     model.User{ID: "host-1", Email: "host@example.com"},
	}
	base := []Option{
		WithNotifier(h.notices),
		WithPayments(h.payments),
		WithClock(h.clock.Now),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	h.svc = NewEventService(h.store, append(base, opts...)...)
	return h
}

func (h *harness) event(t *testing.T, capacity *int) *model.Event {
	t.Helper()
	return h.eventWith(t, model.CreateEventRequest{Name: "Sunday run", Capacity: capacity})
}

func (h *harness) eventWith(t *testing.T, req model.CreateEventRequest) *model.Event {
	t.Helper()
	e, err := h.svc.CreateEvent(context.Background(), h.host, req)
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	return e
}

func (h *harness) join(t *testing.T, eventID string, users ...model.User) {
	t.Helper()
	for _, u := range users {
		if _, err := h.svc.Join(context.Background(), u, eventID, ""); err != nil {
			t.Fatalf("Join(%s): %v", u.ID, err)
		}
	}
}

func (h *harness) enqueue(t *testing.T, eventID string, users ...model.User) {
	t.Helper()
	for _, u := range users {
		if _, err := h.svc.EnqueueWaitlist(context.Background(), u, eventID); err != nil {
			t.Fatalf("EnqueueWaitlist(%s): %v", u.ID, err)
		}
	}
}

func (h *harness) entry(t *testing.T, eventID string, u model.User) *model.WaitlistEntry {
	t.Helper()
	w, err := h.store.GetWaitlistEntry(context.Background(), eventID, u.ID)
	if err != nil {
		t.Fatalf("GetWaitlistEntry(%s): %v", u.ID, err)
	}
	return w
}

func (h *harness) wantEntryStatus(t *testing.T, eventID string, u model.User, want model.WaitlistStatus) {
	t.Helper()
	if got := h.entry(t, eventID, u).Status; got != want {
		t.Fatalf("%s waitlist status = %s, want %s", u.ID, got, want)
	}
}

func member(n int) model.User {
	return model.User{ID: fmt.Sprintf("user-%d", n), Email: fmt.Sprintf("user%d@example.com", n)}
}

func members(from, to int) []model.User {
	var out []model.User
	for i := from; i <= to; i++ {
		out = append(out, member(i))
	}
	return out
}

func intPtr(v int) *int { return &v }

// conflictStore fails the first n transactions with a serialisation conflict.
type conflictStore struct {
	repository.Store
	mu        sync.Mutex
	conflicts int
	calls     int
}

func (c *conflictStore) InTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	c.mu.Lock()
	c.calls++
	fail := c.conflicts > 0
	if fail {
		c.conflicts--
	}
	c.mu.Unlock()
	if fail {
		return fmt.Errorf("commit transaction: %w", repository.ErrTransactionConflict)
	}
	return c.Store.InTx(ctx, fn)
}
