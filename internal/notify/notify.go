// Package notify delivers waitlist and booking notices outside the booking
// transaction. Delivery is fire-and-forget: failures are logged and never
// reach the caller whose state change triggered the notice.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Shivanand-hulikatti/activity-waitlist/internal/worker"
)

// Kind identifies what happened.
type Kind string

const (
	KindSpotOpened       Kind = "spot_opened"
	KindWaitlisted       Kind = "waitlisted"
	KindLeftWaitlist     Kind = "left_waitlist"
	KindBookingConfirmed Kind = "booking_confirmed"
	KindEventCancelled   Kind = "event_cancelled"
	KindCapacityRaised   Kind = "capacity_raised"
)

// Notice is one message for one user, or for the whole community when
// UserID is empty.
type Notice struct {
	Kind      Kind       `json:"kind"`
	UserID    string     `json:"user_id,omitempty"`
	Email     string     `json:"email,omitempty"`
	Locale    string     `json:"locale,omitempty"`
	EventID   string     `json:"event_id"`
	EventName string     `json:"event_name"`
	Position  int        `json:"position,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Broadcast reports whether the notice addresses the community rather than a user.
func (n Notice) Broadcast() bool {
	return n.UserID == ""
}

// Translator renders message keys for a locale.
type Translator interface {
	T(locale, key string, data map[string]any) string
}

// Render returns the localized subject and body for n.
func Render(tr Translator, n Notice) (subject, body string) {
	data := map[string]any{
		"EventName": n.EventName,
		"Position":  n.Position,
	}
	if n.ExpiresAt != nil {
		data["ExpiresAt"] = n.ExpiresAt.UTC().Format("Mon 2 Jan 15:04 MST")
	}
	subject = tr.T(n.Locale, fmt.Sprintf("notice.%s.subject", n.Kind), data)
	body = tr.T(n.Locale, fmt.Sprintf("notice.%s.body", n.Kind), data)
	return subject, body
}

// Sink delivers notices over one channel.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, n Notice) error
}

// Submitter queues background jobs; *worker.Pool satisfies it.
type Submitter interface {
	Submit(job worker.Job) bool
}

// Dispatcher fans notices out to every sink as independent background jobs.
type Dispatcher struct {
	jobs   Submitter
	sinks  []Sink
	logger *slog.Logger
	now    func() time.Time
}

// NewDispatcher constructs a Dispatcher over the given sinks.
func NewDispatcher(jobs Submitter, logger *slog.Logger, sinks ...Sink) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		jobs:   jobs,
		sinks:  sinks,
		logger: logger.With("component", "notify"),
		now:    time.Now,
	}
}

// Dispatch queues n for delivery and returns immediately.
func (d *Dispatcher) Dispatch(n Notice) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = d.now().UTC()
	}
	for _, sink := range d.sinks {
		sink := sink
		d.jobs.Submit(worker.Job{
			Name: fmt.Sprintf("notify.%s.%s", sink.Name(), n.Kind),
			Run: func(ctx context.Context) error {
				if err := sink.Deliver(ctx, n); err != nil {
					return fmt.Errorf("deliver %s to %s: %w", n.Kind, sink.Name(), err)
				}
				return nil
			},
		})
	}
}

// LogSink records every notice in the service log.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink constructs a LogSink.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Deliver(_ context.Context, n Notice) error {
	attrs := []any{"kind", n.Kind, "event_id", n.EventID}
	if !n.Broadcast() {
		attrs = append(attrs, "user_id", n.UserID)
	}
	if n.ExpiresAt != nil {
		attrs = append(attrs, "expires_at", n.ExpiresAt)
	}
	s.logger.Info("notice", attrs...)
	return nil
}
