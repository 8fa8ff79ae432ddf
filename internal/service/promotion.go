package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Shivanand-hulikatti/activity-waitlist/internal/model"
	"github.com/Shivanand-hulikatti/activity-waitlist/internal/notify"
	"github.com/Shivanand-hulikatti/activity-waitlist/internal/repository"
)

type promotion struct {
	notified []model.WaitlistEntry
	expired  int
}

// promote offers freed spots to the head of the waitlist. Offers that ran
// out are expired first and each one cascades one more spot down the queue.
// The number of offers is capped by what the ledger says is actually free,
// so spots taken by concurrent joins since the trigger are not offered twice.
func (s *EventService) promote(ctx context.Context, tx repository.Tx, event *model.Event, spotsOpened int, now time.Time, fx *effects, logger *slog.Logger) (promotion, error) {
	var res promotion

	expired, err := tx.ExpireOffers(ctx, event.ID, now)
	if err != nil {
		return res, err
	}
	res.expired = len(expired)

	spots := spotsOpened + res.expired
	if spots <= 0 || event.Status == model.EventCancelled {
		return res, nil
	}

	occ, err := s.occupancy(ctx, tx, event, now)
	if err != nil {
		return res, fmt.Errorf("count occupancy: %w", err)
	}
	available := spots
	if free := occ.Free(); free >= 0 {
		available = min(available, free)
	}
	if available == 0 {
		return res, nil
	}

	waiting, err := tx.ListWaitlist(ctx, event.ID, model.WaitlistWaiting, available)
	if err != nil {
		return res, err
	}

	expiresAt := now.Add(s.policy.OfferWindow)
	for i := range waiting {
		w := &waiting[i]
		notifiedAt, until := now, expiresAt
		w.Status = model.WaitlistNotified
		w.NotifiedAt = &notifiedAt
		w.ExpiresAt = &until
		if err := tx.SaveWaitlistEntry(ctx, w); err != nil {
			return res, err
		}
		fx.notify(notify.Notice{
			Kind:      notify.KindSpotOpened,
			UserID:    w.UserID,
			Email:     w.UserEmail,
			Locale:    w.Locale,
			EventID:   event.ID,
			EventName: event.Name,
			ExpiresAt: &until,
		})
	}
	res.notified = waiting

	if len(waiting) > 0 || res.expired > 0 {
		logger.Info("waitlist promoted",
			"event_id", event.ID,
			"spots_opened", spotsOpened,
			"expired", res.expired,
			"notified", len(waiting),
			"free", occ.Free())
	}
	return res, nil
}

// Promote offers up to spotsOpened spots of eventID to waiting users and
// returns the entries that were notified.
func (s *EventService) Promote(ctx context.Context, eventID string, spotsOpened int) ([]model.WaitlistEntry, error) {
	logger := s.logFor("promote", "event_id", eventID)
	if err := validateStruct(model.PromoteRequest{Spots: spotsOpened}); err != nil {
		return nil, err
	}

	var notified []model.WaitlistEntry
	err := s.runTx(ctx, logger, func(tx repository.Tx, fx *effects) error {
		event, err := tx.LockEvent(ctx, eventID)
		if err != nil {
			return err
		}
		res, err := s.promote(ctx, tx, event, spotsOpened, s.clock(), fx, logger)
		if err != nil {
			return err
		}
		notified = res.notified
		return nil
	})
	logOutcome(logger, err)
	if err != nil {
		return nil, err
	}
	return notified, nil
}

// PromoteAsHost is Promote restricted to the event's host.
func (s *EventService) PromoteAsHost(ctx context.Context, host model.User, eventID string, spotsOpened int) ([]model.WaitlistEntry, error) {
	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if err := requireHost(host, event); err != nil {
		return nil, err
	}
	return s.Promote(ctx, eventID, spotsOpened)
}

// SweepExpired expires every offer whose window has passed and cascades the
// released spots to the next waiting users. It returns the number of offers
// expired. Events are swept independently; one failing event does not stop
// the others.
func (s *EventService) SweepExpired(ctx context.Context) (int, error) {
	logger := s.logFor("sweep")
	now := s.clock()

	eventIDs, err := s.store.EventsWithExpiredOffers(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list expired offers: %w", err)
	}

	total := 0
	var errs []error
	for _, eventID := range eventIDs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		var expired int
		err := s.runTx(ctx, logger, func(tx repository.Tx, fx *effects) error {
			event, err := tx.LockEvent(ctx, eventID)
			if err != nil {
				return err
			}
			res, err := s.promote(ctx, tx, event, 0, s.clock(), fx, logger)
			if err != nil {
				return err
			}
			expired = res.expired
			return nil
		})
		if err != nil {
			logger.Error("sweep event failed", "event_id", eventID, "error", err)
			errs = append(errs, fmt.Errorf("sweep %s: %w", eventID, err))
			continue
		}
		total += expired
	}
	return total, errors.Join(errs...)
}
