package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Shivanand-hulikatti/activity-waitlist/internal/model"
	"github.com/Shivanand-hulikatti/activity-waitlist/internal/repository"
)

var base = time.Date(2026, time.March, 14, 9, 0, 0, 0, time.UTC)

func intPtr(v int) *int { return &v }

// runStoreSuite checks the behaviour every Store implementation must share.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) repository.Store) {
	t.Run("events", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		e := &model.Event{HostID: "host-1", Name: "Climbing", Capacity: intPtr(8), CreatedAt: base}
		if err := s.CreateEvent(ctx, e); err != nil {
			t.Fatalf("CreateEvent: %v", err)
		}
		if e.ID == "" || e.Status != model.EventActive {
			t.Fatalf("created event = %+v", e)
		}

		got, err := s.GetEvent(ctx, e.ID)
		if err != nil {
			t.Fatalf("GetEvent: %v", err)
		}
		if got.Name != "Climbing" || got.Capacity == nil || *got.Capacity != 8 {
			t.Fatalf("GetEvent = %+v", got)
		}

		unlimited := &model.Event{HostID: "host-1", Name: "Open mic", CreatedAt: base.Add(time.Hour)}
		if err := s.CreateEvent(ctx, unlimited); err != nil {
			t.Fatalf("CreateEvent: %v", err)
		}
		events, err := s.ListEvents(ctx)
		if err != nil {
			t.Fatalf("ListEvents: %v", err)
		}
		if len(events) != 2 || events[0].ID != unlimited.ID || events[0].Capacity != nil {
			t.Fatalf("ListEvents = %+v, want newest first", events)
		}

		if _, err := s.GetEvent(ctx, "00000000-0000-0000-0000-000000000000"); !errors.Is(err, repository.ErrNotFound) {
			t.Fatalf("missing event: err = %v, want ErrNotFound", err)
		}
		err = s.InTx(ctx, func(tx repository.Tx) error {
			_, err := tx.LockEvent(ctx, "00000000-0000-0000-0000-000000000000")
			return err
		})
		if !errors.Is(err, repository.ErrNotFound) {
			t.Fatalf("lock missing event: err = %v, want ErrNotFound", err)
		}

		err = s.InTx(ctx, func(tx repository.Tx) error {
			locked, err := tx.LockEvent(ctx, e.ID)
			if err != nil {
				return err
			}
			locked.Status = model.EventCancelled
			locked.Capacity = nil
			return tx.UpdateEvent(ctx, locked)
		})
		if err != nil {
			t.Fatalf("update event: %v", err)
		}
		got, _ = s.GetEvent(ctx, e.ID)
		if got.Status != model.EventCancelled || got.Capacity != nil {
			t.Fatalf("updated event = %+v", got)
		}
	})

	t.Run("bookings upsert per user", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		e := createEvent(t, s)

		var first model.Booking
		err := s.InTx(ctx, func(tx repository.Tx) error {
			for _, u := range []string{"u1", "u2"} {
				b := &model.Booking{EventID: e.ID, UserID: u, Status: model.BookingJoined, JoinedAt: base}
				if err := tx.SaveBooking(ctx, b); err != nil {
					return err
				}
				if u == "u1" {
					first = *b
				}
			}
			return nil
		})
		if err != nil {
			t.Fatalf("save bookings: %v", err)
		}

		cancelledAt := base.Add(time.Hour)
		err = s.InTx(ctx, func(tx repository.Tx) error {
			b := &model.Booking{EventID: e.ID, UserID: "u1", Status: model.BookingCancelled, JoinedAt: base, CancelledAt: &cancelledAt}
			if err := tx.SaveBooking(ctx, b); err != nil {
				return err
			}
			if b.ID != first.ID {
				t.Errorf("upsert changed id %s -> %s", first.ID, b.ID)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("cancel booking: %v", err)
		}

		if n, _ := s.CountJoined(ctx, e.ID); n != 1 {
			t.Fatalf("CountJoined = %d, want 1", n)
		}
		all, _ := s.ListBookings(ctx, e.ID, "")
		joined, _ := s.ListBookings(ctx, e.ID, model.BookingJoined)
		if len(all) != 2 || len(joined) != 1 || joined[0].UserID != "u2" {
			t.Fatalf("ListBookings all=%+v joined=%+v", all, joined)
		}
		if _, err := s.GetBooking(ctx, e.ID, "u3"); !errors.Is(err, repository.ErrNotFound) {
			t.Fatalf("missing booking: err = %v, want ErrNotFound", err)
		}
	})

	t.Run("waitlist order and re-enqueue", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		e := createEvent(t, s)

		enqueue(t, s, e.ID, base, "u1", "u2", "u3")
		entries, err := s.ListWaitlist(ctx, e.ID, model.WaitlistWaiting, 0)
		if err != nil {
			t.Fatalf("ListWaitlist: %v", err)
		}
		wantOrder(t, entries, "u1", "u2", "u3")

		u3, _ := s.GetWaitlistEntry(ctx, e.ID, "u3")
		if n, _ := s.CountWaitingBefore(ctx, u3); n != 2 {
			t.Fatalf("CountWaitingBefore(u3) = %d, want 2", n)
		}

		// Re-enqueueing at the same instant still lands behind everyone.
		enqueue(t, s, e.ID, base, "u1")
		entries, _ = s.ListWaitlist(ctx, e.ID, "", 0)
		wantOrder(t, entries, "u2", "u3", "u1")

		head, _ := s.ListWaitlist(ctx, e.ID, model.WaitlistWaiting, 1)
		wantOrder(t, head, "u2")
	})

	t.Run("offers expire", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		e := createEvent(t, s)
		enqueue(t, s, e.ID, base, "u1", "u2")

		early, late := base.Add(time.Hour), base.Add(3*time.Hour)
		err := s.InTx(ctx, func(tx repository.Tx) error {
			for u, until := range map[string]time.Time{"u1": early, "u2": late} {
				w, err := tx.GetWaitlistEntry(ctx, e.ID, u)
				if err != nil {
					return err
				}
				notifiedAt, expiresAt := base, until
				w.Status = model.WaitlistNotified
				w.NotifiedAt = &notifiedAt
				w.ExpiresAt = &expiresAt
				if err := tx.SaveWaitlistEntry(ctx, w); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			t.Fatalf("notify: %v", err)
		}

		now := base.Add(2 * time.Hour)
		if n, _ := s.CountHeld(ctx, e.ID, now); n != 1 {
			t.Fatalf("CountHeld = %d, want 1", n)
		}
		ids, err := s.EventsWithExpiredOffers(ctx, now)
		if err != nil || len(ids) != 1 || ids[0] != e.ID {
			t.Fatalf("EventsWithExpiredOffers = %v, %v", ids, err)
		}

		var expired []model.WaitlistEntry
		err = s.InTx(ctx, func(tx repository.Tx) error {
			var err error
			expired, err = tx.ExpireOffers(ctx, e.ID, now)
			return err
		})
		if err != nil {
			t.Fatalf("ExpireOffers: %v", err)
		}
		wantOrder(t, expired, "u1")
		if expired[0].Status != model.WaitlistExpired || expired[0].Locale != "id" {
			t.Fatalf("expired entry = %+v", expired[0])
		}
		if ids, _ := s.EventsWithExpiredOffers(ctx, now); len(ids) != 0 {
			t.Fatalf("events still listed after expiry: %v", ids)
		}
	})

	t.Run("failed transaction leaves no trace", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		e := createEvent(t, s)

		boom := errors.New("boom")
		err := s.InTx(ctx, func(tx repository.Tx) error {
			b := &model.Booking{EventID: e.ID, UserID: "u1", Status: model.BookingJoined, JoinedAt: base}
			if err := tx.SaveBooking(ctx, b); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("InTx err = %v, want boom", err)
		}
		if n, _ := s.CountJoined(ctx, e.ID); n != 0 {
			t.Fatalf("rolled back booking still counted: %d", n)
		}
	})
}

func createEvent(t *testing.T, s repository.Store) *model.Event {
	t.Helper()
	e := &model.Event{HostID: "host-1", Name: "Trail run", Capacity: intPtr(2), CreatedAt: base}
	if err := s.CreateEvent(context.Background(), e); err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	return e
}

func enqueue(t *testing.T, s repository.Store, eventID string, at time.Time, users ...string) {
	t.Helper()
	ctx := context.Background()
	err := s.InTx(ctx, func(tx repository.Tx) error {
		for _, u := range users {
			w, err := tx.GetWaitlistEntry(ctx, eventID, u)
			if errors.Is(err, repository.ErrNotFound) {
				w, err = &model.WaitlistEntry{EventID: eventID, UserID: u}, nil
			}
			if err != nil {
				return err
			}
			w.Locale = "id"
			w.Status = model.WaitlistWaiting
			w.EnqueuedAt = at
			w.NotifiedAt, w.ExpiresAt = nil, nil
			w.Seq = 0
			if err := tx.SaveWaitlistEntry(ctx, w); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("enqueue %v: %v", users, err)
	}
}

func wantOrder(t *testing.T, entries []model.WaitlistEntry, users ...string) {
	t.Helper()
	if len(entries) != len(users) {
		t.Fatalf("got %d entries, want %v", len(entries), users)
	}
	for i, u := range users {
		if entries[i].UserID != u {
			t.Fatalf("entry %d = %s, want %s", i, entries[i].UserID, u)
		}
	}
}
