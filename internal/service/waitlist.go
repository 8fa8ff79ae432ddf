package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Shivanand-hulikatti/activity-waitlist/internal/model"
	"github.com/Shivanand-hulikatti/activity-waitlist/internal/notify"
	"github.com/Shivanand-hulikatti/activity-waitlist/internal/repository"
)

// EnqueueWaitlist puts user at the back of the event's waitlist and returns
// their 1-based position. A user whose earlier entry expired, converted or
// was left starts again from the back.
func (s *EventService) EnqueueWaitlist(ctx context.Context, user model.User, eventID string) (int, error) {
	logger := s.logFor("enqueue_waitlist", "event_id", eventID, "user_id", user.ID)
	if err := requireUser(user); err != nil {
		logOutcome(logger, err)
		return 0, err
	}

	var position int
	err := s.runTx(ctx, logger, func(tx repository.Tx, fx *effects) error {
		event, err := tx.LockEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if event.Status == model.EventCancelled {
			return repository.ErrEventCancelled
		}

		b, err := tx.GetBooking(ctx, eventID, user.ID)
		if err := notFoundOr(err); err != nil {
			return fmt.Errorf("load booking: %w", err)
		}
		if b != nil && b.Status == model.BookingJoined {
			return repository.ErrAlreadyJoined
		}

		entry, err := tx.GetWaitlistEntry(ctx, eventID, user.ID)
		if err := notFoundOr(err); err != nil {
			return fmt.Errorf("load waitlist entry: %w", err)
		}
		if entry != nil && entry.Status.Active() {
			return repository.ErrAlreadyWaiting
		}

		if event.Capacity == nil {
			return repository.ErrEventNotFull
		}
		now := s.clock()
		if s.policy.RequireFull {
			occ, err := s.occupancy(ctx, tx, event, now)
			if err != nil {
				return fmt.Errorf("count occupancy: %w", err)
			}
			if occ.Free() != 0 {
				return repository.ErrEventNotFull
			}
		}

		if entry == nil {
			entry = &model.WaitlistEntry{EventID: eventID, UserID: user.ID}
		}
		entry.UserEmail = user.Email
		entry.Locale = user.Locale
		entry.Status = model.WaitlistWaiting
		entry.EnqueuedAt = now
		entry.NotifiedAt = nil
		entry.ExpiresAt = nil
		entry.Seq = 0
		if err := tx.SaveWaitlistEntry(ctx, entry); err != nil {
			return err
		}

		ahead, err := tx.CountWaitingBefore(ctx, entry)
		if err != nil {
			return err
		}
		position = ahead + 1

		fx.notify(notify.Notice{
			Kind:      notify.KindWaitlisted,
			UserID:    user.ID,
			Email:     user.Email,
			Locale:    user.Locale,
			EventID:   event.ID,
			EventName: event.Name,
			Position:  position,
		})
		return nil
	})
	logOutcome(logger, err)
	if err != nil {
		return 0, err
	}
	return position, nil
}

// LeaveWaitlist takes user off the waitlist. Leaving while holding an offer
// releases the held spot to the next waiting user.
func (s *EventService) LeaveWaitlist(ctx context.Context, user model.User, eventID string) error {
	logger := s.logFor("leave_waitlist", "event_id", eventID, "user_id", user.ID)
	if err := requireUser(user); err != nil {
		logOutcome(logger, err)
		return err
	}

	err := s.runTx(ctx, logger, func(tx repository.Tx, fx *effects) error {
		event, err := tx.LockEvent(ctx, eventID)
		if err != nil {
			return err
		}

		entry, err := tx.GetWaitlistEntry(ctx, eventID, user.ID)
		if errors.Is(err, repository.ErrNotFound) || (err == nil && !entry.Status.Active()) {
			return repository.ErrNotWaiting
		}
		if err != nil {
			return fmt.Errorf("load waitlist entry: %w", err)
		}

		now := s.clock()
		heldSpot := entry.Status == model.WaitlistNotified && entry.ExpiresAt != nil && entry.ExpiresAt.After(now)
		entry.Status = model.WaitlistLeft
		if err := tx.SaveWaitlistEntry(ctx, entry); err != nil {
			return err
		}

		if heldSpot {
			if _, err := s.promote(ctx, tx, event, 1, now, fx, logger); err != nil {
				return fmt.Errorf("promote: %w", err)
			}
		}

		fx.notify(notify.Notice{
			Kind:      notify.KindLeftWaitlist,
			UserID:    user.ID,
			Email:     user.Email,
			Locale:    user.Locale,
			EventID:   event.ID,
			EventName: event.Name,
		})
		return nil
	})
	logOutcome(logger, err)
	return err
}

// Position returns the user's 1-based place among WAITING entries, or nil
// when the user is not waiting. Positions are computed on read.
func (s *EventService) Position(ctx context.Context, userID, eventID string) (*int, error) {
	entry, err := s.store.GetWaitlistEntry(ctx, eventID, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load waitlist entry: %w", err)
	}
	return s.positionOf(ctx, entry)
}

func (s *EventService) positionOf(ctx context.Context, entry *model.WaitlistEntry) (*int, error) {
	if entry.Status != model.WaitlistWaiting {
		return nil, nil
	}
	ahead, err := s.store.CountWaitingBefore(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("count waiting: %w", err)
	}
	pos := ahead + 1
	return &pos, nil
}
