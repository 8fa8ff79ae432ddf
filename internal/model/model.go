// Package model defines the core domain types for activity bookings and the waitlist.
package model

import "time"

// EventStatus is the lifecycle state of an activity.
type EventStatus string

const (
	EventActive    EventStatus = "ACTIVE"
	EventCancelled EventStatus = "CANCELLED"
)

// BookingStatus is the state of a user's seat.
type BookingStatus string

const (
	BookingJoined    BookingStatus = "JOINED"
	BookingCancelled BookingStatus = "CANCELLED"
)

// WaitlistStatus is the state of a waitlist entry.
//
//	WAITING -> NOTIFIED -> CONVERTED | EXPIRED
//	WAITING | NOTIFIED -> LEFT
//
// EXPIRED and LEFT only return to WAITING through a fresh enqueue.
type WaitlistStatus string

const (
	WaitlistWaiting   WaitlistStatus = "WAITING"
	WaitlistNotified  WaitlistStatus = "NOTIFIED"
	WaitlistConverted WaitlistStatus = "CONVERTED"
	WaitlistExpired   WaitlistStatus = "EXPIRED"
	WaitlistLeft      WaitlistStatus = "LEFT"
)

// Active reports whether the entry still occupies a place in the queue.
func (s WaitlistStatus) Active() bool {
	return s == WaitlistWaiting || s == WaitlistNotified
}

// User is the authenticated caller as supplied by the auth provider.
type User struct {
	ID     string
	Email  string
	Locale string
}

// Event represents a bookable activity created by a host.
// A nil Capacity means the activity is unlimited.
type Event struct {
	ID          string      `json:"id"`
	HostID      string      `json:"host_id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Capacity    *int        `json:"capacity"`
	PriceCents  int         `json:"price_cents"`
	Status      EventStatus `json:"status"`
	StartsAt    *time.Time  `json:"starts_at,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// Paid reports whether joining requires a verified payment.
func (e *Event) Paid() bool {
	return e.PriceCents > 0
}

// Booking represents a user's participation in an event.
type Booking struct {
	ID          string        `json:"id"`
	EventID     string        `json:"event_id"`
	UserID      string        `json:"user_id"`
	UserEmail   string        `json:"user_email"`
	Status      BookingStatus `json:"status"`
	PaymentID   string        `json:"payment_id,omitempty"`
	AmountCents int           `json:"amount_cents"`
	JoinedAt    time.Time     `json:"joined_at"`
	CancelledAt *time.Time    `json:"cancelled_at,omitempty"`
}

// WaitlistEntry is a queued request for a spot. Seq is the insertion id used
// to break ties between equal enqueue timestamps.
type WaitlistEntry struct {
	ID         string         `json:"id"`
	Seq        int64          `json:"seq"`
	EventID    string         `json:"event_id"`
	UserID     string         `json:"user_id"`
	UserEmail  string         `json:"user_email"`
	Locale     string         `json:"locale,omitempty"`
	Status     WaitlistStatus `json:"status"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
	NotifiedAt *time.Time     `json:"notified_at,omitempty"`
	ExpiresAt  *time.Time     `json:"expires_at,omitempty"`
}

// Before reports whether e is ahead of o in FIFO order.
func (e *WaitlistEntry) Before(o *WaitlistEntry) bool {
	if e.EnqueuedAt.Equal(o.EnqueuedAt) {
		return e.Seq < o.Seq
	}
	return e.EnqueuedAt.Before(o.EnqueuedAt)
}

// Occupancy summarises capacity usage of an event at a point in time.
type Occupancy struct {
	Joined   int  `json:"joined"`
	Held     int  `json:"held"`
	Capacity *int `json:"capacity"`
}

// IsFull is true once joined bookings reach capacity.
func (o Occupancy) IsFull() bool {
	return o.Capacity != nil && o.Joined >= *o.Capacity
}

// Free returns the spots nobody holds. Unlimited events return -1.
func (o Occupancy) Free() int {
	return o.FreeFor(false)
}

// FreeFor returns the spots available to a caller; a caller holding an
// offer may take the spot reserved for them. Unlimited events return -1.
func (o Occupancy) FreeFor(holdsOffer bool) int {
	if o.Capacity == nil {
		return -1
	}
	free := *o.Capacity - o.Joined - o.Held
	if holdsOffer {
		free++
	}
	return max(free, 0)
}

// EventView is an event with its current occupancy.
type EventView struct {
	Event
	Occupancy Occupancy `json:"occupancy"`
}

// Status is the caller's relation to an event.
type Status struct {
	EventID    string         `json:"event_id"`
	Joined     bool           `json:"joined"`
	Waitlisted bool           `json:"waitlisted"`
	Waitlist   WaitlistStatus `json:"waitlist_status,omitempty"`
	Position   *int           `json:"position,omitempty"`
	ExpiresAt  *time.Time     `json:"expires_at,omitempty"`
}

// Roster lists the people attached to an event for its host.
type Roster struct {
	Event    Event           `json:"event"`
	Bookings []Booking       `json:"bookings"`
	Waitlist []WaitlistEntry `json:"waitlist"`
}

// CreateEventRequest is the payload for creating a new event.
type CreateEventRequest struct {
	Name        string     `json:"name" validate:"required,max=200"`
	Description string     `json:"description" validate:"max=2000"`
	Capacity    *int       `json:"capacity" validate:"omitempty,min=1,max=100000"`
	PriceCents  int        `json:"price_cents" validate:"gte=0"`
	StartsAt    *time.Time `json:"starts_at"`
}

// JoinRequest is the payload for joining an event.
type JoinRequest struct {
	PaymentID string `json:"payment_id"`
}

// CapacityRequest is the payload for a host capacity edit.
type CapacityRequest struct {
	Capacity *int `json:"capacity" validate:"omitempty,min=1,max=100000"`
}

// PromoteRequest is the payload for a manual promotion.
type PromoteRequest struct {
	Spots int `json:"spots" validate:"gte=0"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}
