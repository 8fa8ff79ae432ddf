// Package service implements booking, waitlist and spot-promotion rules on
// top of the repository layer. Every capacity decision is taken inside one
// store transaction holding the event lock; notices and refunds are handed to
// background workers only after that transaction commits.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Shivanand-hulikatti/activity-waitlist/internal/model"
	"github.com/Shivanand-hulikatti/activity-waitlist/internal/notify"
	"github.com/Shivanand-hulikatti/activity-waitlist/internal/payment"
	"github.com/Shivanand-hulikatti/activity-waitlist/internal/repository"
	"github.com/Shivanand-hulikatti/activity-waitlist/internal/worker"
)

// ErrUnauthorized is returned when no authenticated user is supplied.
var ErrUnauthorized = errors.New("unauthorized")

// ErrForbidden is returned when a non-host tries a host operation.
var ErrForbidden = errors.New("only the host can do this")

// ErrCapacityBelowJoined is returned when a capacity edit would strand
// people who already joined or hold an offer.
var ErrCapacityBelowJoined = errors.New("capacity below current bookings")

// ErrPaymentRequired is returned when joining a paid event without a
// verified payment.
var ErrPaymentRequired = errors.New("payment required")

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Policy holds the waitlist rules that operators may tune.
type Policy struct {
	// OfferWindow is how long a promoted user has to book.
	OfferWindow time.Duration
	// RequireFull rejects waitlist requests while the event has free spots.
	RequireFull bool
}

// DefaultPolicy matches the 24 hour countdown shown to members.
var DefaultPolicy = Policy{OfferWindow: 24 * time.Hour, RequireFull: true}

// Notifier accepts notices for asynchronous delivery.
type Notifier interface {
	Dispatch(n notify.Notice)
}

// Submitter queues background jobs.
type Submitter interface {
	Submit(job worker.Job) bool
}

// EventService orchestrates event, booking and waitlist operations.
type EventService struct {
	store    repository.Store
	notifier Notifier
	payments payment.Gateway
	jobs     Submitter
	policy   Policy
	logger   *slog.Logger
	now      func() time.Time
}

// Option customises an EventService.
type Option func(*EventService)

func WithNotifier(n Notifier) Option { return func(s *EventService) { s.notifier = n } }
func WithPayments(g payment.Gateway) Option { return func(s *EventService) { s.payments = g } }
func WithJobs(j Submitter) Option { return func(s *EventService) { s.jobs = j } }
func WithPolicy(p Policy) Option { return func(s *EventService) { s.policy = p } }
func WithLogger(l *slog.Logger) Option { return func(s *EventService) { s.logger = l } }
func WithClock(now func() time.Time) Option { return func(s *EventService) { s.now = now } }

// NewEventService constructs an EventService with its dependencies.
func NewEventService(store repository.Store, opts ...Option) *EventService {
	s := &EventService{
		store:    store,
		notifier: discardNotifier{},
		jobs:     inlineJobs{},
		policy:   DefaultPolicy,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.payments == nil {
		s.payments = payment.NewManual(s.logger)
	}
	if s.policy.OfferWindow <= 0 {
		s.policy.OfferWindow = DefaultPolicy.OfferWindow
	}
	return s
}

type discardNotifier struct{}

func (discardNotifier) Dispatch(notify.Notice) {}

// inlineJobs runs jobs on the calling goroutine.
type inlineJobs struct{}

func (inlineJobs) Submit(job worker.Job) bool {
	_ = job.Run(context.Background())
	return true
}

type refund struct {
	bookingID   string
	paymentID   string
	amountCents int
}

// effects collects side effects produced inside a transaction; they are
// released only if it commits.
type effects struct {
	notices []notify.Notice
	refunds []refund
}

func (fx *effects) notify(n notify.Notice) {
	fx.notices = append(fx.notices, n)
}

func (fx *effects) refund(b *model.Booking) {
	if b.PaymentID == "" || b.AmountCents <= 0 {
		return
	}
	fx.refunds = append(fx.refunds, refund{bookingID: b.ID, paymentID: b.PaymentID, amountCents: b.AmountCents})
}

// runTx executes fn in a store transaction. A lost capacity race is retried
// once so the loser re-evaluates against the committed state.
func (s *EventService) runTx(ctx context.Context, logger *slog.Logger, fn func(tx repository.Tx, fx *effects) error) error {
	var fx *effects
	attempt := func() error {
		fx = &effects{}
		return s.store.InTx(ctx, func(tx repository.Tx) error {
			return fn(tx, fx)
		})
	}

	err := attempt()
	if errors.Is(err, repository.ErrTransactionConflict) {
		logger.Warn("transaction conflict, retrying", "error", err)
		err = attempt()
	}
	if err != nil {
		return err
	}
	s.release(logger, fx)
	return nil
}

func (s *EventService) release(logger *slog.Logger, fx *effects) {
	for _, n := range fx.notices {
		s.notifier.Dispatch(n)
	}
	for _, r := range fx.refunds {
		r := r
		ok := s.jobs.Submit(worker.Job{
			Name: "payment.refund",
			Run: func(ctx context.Context) error {
				return s.payments.Refund(ctx, r.paymentID, r.amountCents)
			},
		})
		if !ok {
			logger.Error("refund not queued", "booking_id", r.bookingID, "payment_id", r.paymentID)
		}
	}
}

func (s *EventService) clock() time.Time {
	return s.now().UTC()
}

func (s *EventService) logFor(operation string, attrs ...any) *slog.Logger {
	pairs := append([]any{"service", "events", "operation", operation}, attrs...)
	return s.logger.With(pairs...)
}

// logOutcome records the result of an operation; expected business outcomes
// are logged at info, everything else at error.
func logOutcome(logger *slog.Logger, err error) {
	if err == nil {
		logger.Debug("operation succeeded")
		return
	}
	kind := ErrorKind(err)
	if kind == "unexpected" || kind == "conflict" {
		logger.Error("operation failed", "error_kind", kind, "error", err)
		return
	}
	logger.Info("operation rejected", "error_kind", kind, "error", err)
}

// ErrorKind maps sentinel and validation errors to a stable logging label.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, repository.ErrNotFound):
		return "not_found"
	case errors.Is(err, repository.ErrEventCancelled):
		return "event_cancelled"
	case errors.Is(err, repository.ErrAlreadyJoined):
		return "already_joined"
	case errors.Is(err, repository.ErrNotJoined):
		return "not_joined"
	case errors.Is(err, repository.ErrEventFull):
		return "event_full"
	case errors.Is(err, repository.ErrAlreadyWaiting):
		return "already_waiting"
	case errors.Is(err, repository.ErrNotWaiting):
		return "not_waiting"
	case errors.Is(err, repository.ErrEventNotFull):
		return "event_not_full"
	case errors.Is(err, ErrPaymentRequired):
		return "payment_required"
	case errors.Is(err, ErrCapacityBelowJoined):
		return "capacity_below_joined"
	case errors.Is(err, repository.ErrTransactionConflict):
		return "conflict"
	}

	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return "validation"
	}
	return "unexpected"
}

func requireUser(user model.User) error {
	if user.ID == "" {
		return ErrUnauthorized
	}
	return nil
}

func requireHost(user model.User, event *model.Event) error {
	if err := requireUser(user); err != nil {
		return err
	}
	if event.HostID != user.ID {
		return ErrForbidden
	}
	return nil
}

func notFoundOr(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	return err
}
