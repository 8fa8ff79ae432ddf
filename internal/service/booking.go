package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Shivanand-hulikatti/activity-waitlist/internal/model"
	"github.com/Shivanand-hulikatti/activity-waitlist/internal/notify"
	"github.com/Shivanand-hulikatti/activity-waitlist/internal/repository"
)

// Join books a seat for user. A waitlist entry the user holds for the event
// is converted in the same transaction. Paid events need a payment id that
// the payment provider confirms; verification happens before the
// transaction so no provider call holds the event lock.
func (s *EventService) Join(ctx context.Context, user model.User, eventID, paymentID string) (*model.Booking, error) {
	logger := s.logFor("join", "event_id", eventID, "user_id", user.ID)
	booking, err := s.join(ctx, user, eventID, strings.TrimSpace(paymentID))
	logOutcome(logger, err)
	return booking, err
}

func (s *EventService) join(ctx context.Context, user model.User, eventID, paymentID string) (*model.Booking, error) {
	if err := requireUser(user); err != nil {
		return nil, err
	}

	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	amount := 0
	if event.Paid() {
		if paymentID == "" {
			return nil, ErrPaymentRequired
		}
		amount, err = s.payments.Verify(ctx, paymentID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPaymentRequired, err)
		}
		if amount == 0 {
			amount = event.PriceCents
		}
	} else {
		paymentID = ""
	}

	var (
		booking *model.Booking
		full    bool
	)
	logger := s.logFor("join", "event_id", eventID)
	err = s.runTx(ctx, logger, func(tx repository.Tx, fx *effects) error {
		full = false
		event, err := tx.LockEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if event.Status == model.EventCancelled {
			return repository.ErrEventCancelled
		}

		existing, err := tx.GetBooking(ctx, eventID, user.ID)
		if err := notFoundOr(err); err != nil {
			return fmt.Errorf("load booking: %w", err)
		}
		if existing != nil && existing.Status == model.BookingJoined {
			return repository.ErrAlreadyJoined
		}

		// Lapsed offers, the caller's included, expire here and pass their
		// spots down the queue before this join competes for a seat.
		now := s.clock()
		if _, err := s.promote(ctx, tx, event, 0, now, fx, logger); err != nil {
			return fmt.Errorf("promote: %w", err)
		}

		entry, err := tx.GetWaitlistEntry(ctx, eventID, user.ID)
		if err := notFoundOr(err); err != nil {
			return fmt.Errorf("load waitlist entry: %w", err)
		}
		holdsOffer := entry != nil && entry.Status == model.WaitlistNotified &&
			entry.ExpiresAt != nil && entry.ExpiresAt.After(now)

		occ, err := s.occupancy(ctx, tx, event, now)
		if err != nil {
			return fmt.Errorf("count occupancy: %w", err)
		}
		if occ.FreeFor(holdsOffer) == 0 {
			// Commit the cascade above; the refusal is reported after.
			full = true
			return nil
		}

		b := &model.Booking{
			EventID:     eventID,
			UserID:      user.ID,
			UserEmail:   user.Email,
			Status:      model.BookingJoined,
			PaymentID:   paymentID,
			AmountCents: amount,
			JoinedAt:    now,
		}
		if existing != nil {
			b.ID = existing.ID
		}
		if err := tx.SaveBooking(ctx, b); err != nil {
			return err
		}

		if entry != nil && entry.Status.Active() {
			entry.Status = model.WaitlistConverted
			if err := tx.SaveWaitlistEntry(ctx, entry); err != nil {
				return err
			}
		}

		fx.notify(notify.Notice{
			Kind:      notify.KindBookingConfirmed,
			UserID:    user.ID,
			Email:     user.Email,
			Locale:    user.Locale,
			EventID:   event.ID,
			EventName: event.Name,
		})
		booking = b
		return nil
	})
	if err == nil && full {
		err = repository.ErrEventFull
	}
	if err != nil {
		if paymentID != "" {
			logger.Warn("payment verified but seat not booked, refund manually",
				"user_id", user.ID, "payment_id", paymentID, "amount_cents", amount)
		}
		return nil, err
	}
	return booking, nil
}

// Leave cancels the user's seat and offers it to the waitlist in the same
// transaction. Paid seats are refunded after commit.
func (s *EventService) Leave(ctx context.Context, user model.User, eventID string) error {
	logger := s.logFor("leave", "event_id", eventID, "user_id", user.ID)
	err := s.leave(ctx, user, eventID)
	logOutcome(logger, err)
	return err
}

func (s *EventService) leave(ctx context.Context, user model.User, eventID string) error {
	if err := requireUser(user); err != nil {
		return err
	}

	logger := s.logFor("leave", "event_id", eventID)
	return s.runTx(ctx, logger, func(tx repository.Tx, fx *effects) error {
		event, err := tx.LockEvent(ctx, eventID)
		if err != nil {
			return err
		}

		b, err := tx.GetBooking(ctx, eventID, user.ID)
		if errors.Is(err, repository.ErrNotFound) || (err == nil && b.Status != model.BookingJoined) {
			return repository.ErrNotJoined
		}
		if err != nil {
			return fmt.Errorf("load booking: %w", err)
		}

		now := s.clock()
		b.Status = model.BookingCancelled
		b.CancelledAt = &now
		if err := tx.SaveBooking(ctx, b); err != nil {
			return err
		}
		fx.refund(b)

		if _, err := s.promote(ctx, tx, event, 1, now, fx, logger); err != nil {
			return fmt.Errorf("promote: %w", err)
		}
		return nil
	})
}
