// Package repository defines the persistence ports for events, bookings and
// the waitlist, and implements them on PostgreSQL (pgx) and in memory.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Shivanand-hulikatti/activity-waitlist/internal/model"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// ErrEventFull is returned when an event has no remaining capacity.
var ErrEventFull = errors.New("event is fully booked")

// ErrEventCancelled is returned when the host has cancelled the event.
var ErrEventCancelled = errors.New("event is cancelled")

// ErrAlreadyJoined is returned when the user already holds a seat.
var ErrAlreadyJoined = errors.New("user already joined this event")

// ErrNotJoined is returned when leaving an event the user has no seat in.
var ErrNotJoined = errors.New("user has not joined this event")

// ErrAlreadyWaiting is returned when the user is already on the waitlist.
var ErrAlreadyWaiting = errors.New("user is already on the waitlist")

// ErrNotWaiting is returned when leaving a waitlist the user is not on.
var ErrNotWaiting = errors.New("user is not on the waitlist")

// ErrEventNotFull is returned when waitlisting an event that still has room.
var ErrEventNotFull = errors.New("event still has free spots")

// ErrTransactionConflict is returned when a concurrent transaction won a
// race on the same rows. It is the only retryable error.
var ErrTransactionConflict = errors.New("transaction conflict")

// Reader holds the read queries shared by stores and transactions.
type Reader interface {
	CountJoined(ctx context.Context, eventID string) (int, error)
	// CountHeld counts NOTIFIED entries whose offer is still running at now.
	CountHeld(ctx context.Context, eventID string, now time.Time) (int, error)
	GetBooking(ctx context.Context, eventID, userID string) (*model.Booking, error)
	// ListBookings returns bookings in join order; an empty status lists all.
	ListBookings(ctx context.Context, eventID string, status model.BookingStatus) ([]model.Booking, error)
	GetWaitlistEntry(ctx context.Context, eventID, userID string) (*model.WaitlistEntry, error)
	// ListWaitlist returns entries in FIFO order. An empty status lists all,
	// limit <= 0 means no limit.
	ListWaitlist(ctx context.Context, eventID string, status model.WaitlistStatus, limit int) ([]model.WaitlistEntry, error)
	// CountWaitingBefore counts WAITING entries ahead of w.
	CountWaitingBefore(ctx context.Context, w *model.WaitlistEntry) (int, error)
}

// Tx is a unit of work holding the lock on one event row.
type Tx interface {
	Reader
	// LockEvent loads the event and serialises every other transaction that
	// locks the same event until this one ends.
	LockEvent(ctx context.Context, eventID string) (*model.Event, error)
	UpdateEvent(ctx context.Context, e *model.Event) error
	// SaveBooking upserts on (event, user) and fills in the row id.
	SaveBooking(ctx context.Context, b *model.Booking) error
	// SaveWaitlistEntry upserts on (event, user). An entry with Seq == 0 is
	// (re)enqueued and receives a fresh insertion id.
	SaveWaitlistEntry(ctx context.Context, w *model.WaitlistEntry) error
	// ExpireOffers moves NOTIFIED entries whose offer ended at or before now
	// to EXPIRED and returns them.
	ExpireOffers(ctx context.Context, eventID string, now time.Time) ([]model.WaitlistEntry, error)
}

// Store is the persistence entry point used by the service layer.
type Store interface {
	Reader
	// InTx runs fn in one atomic transaction; any error rolls back.
	InTx(ctx context.Context, fn func(tx Tx) error) error
	CreateEvent(ctx context.Context, e *model.Event) error
	ListEvents(ctx context.Context) ([]model.Event, error)
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	// EventsWithExpiredOffers lists events holding offers that ended at or before now.
	EventsWithExpiredOffers(ctx context.Context, now time.Time) ([]string, error)
}
