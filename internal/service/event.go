package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/Shivanand-hulikatti/activity-waitlist/internal/model"
	"github.com/Shivanand-hulikatti/activity-waitlist/internal/notify"
	"github.com/Shivanand-hulikatti/activity-waitlist/internal/repository"
)

// CreateEvent validates the request and persists a new event hosted by host.
func (s *EventService) CreateEvent(ctx context.Context, host model.User, req model.CreateEventRequest) (*model.Event, error) {
	logger := s.logFor("create_event", "host_id", host.ID)
	if err := requireUser(host); err != nil {
		logOutcome(logger, err)
		return nil, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Description = strings.TrimSpace(req.Description)
	if err := validateStruct(req); err != nil {
		logOutcome(logger, err)
		return nil, err
	}

	event := &model.Event{
		HostID:      host.ID,
		Name:        req.Name,
		Description: req.Description,
		Capacity:    req.Capacity,
		PriceCents:  req.PriceCents,
		Status:      model.EventActive,
		StartsAt:    req.StartsAt,
		CreatedAt:   s.clock(),
	}
	if err := s.store.CreateEvent(ctx, event); err != nil {
		err = fmt.Errorf("create event: %w", err)
		logOutcome(logger, err)
		return nil, err
	}
	logger.Info("event created", "event_id", event.ID)
	return event, nil
}

// ListEvents returns all events with their current occupancy.
func (s *EventService) ListEvents(ctx context.Context) ([]model.EventView, error) {
	events, err := s.store.ListEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	now := s.clock()
	views := make([]model.EventView, 0, len(events))
	for i := range events {
		occ, err := s.occupancy(ctx, s.store, &events[i], now)
		if err != nil {
			return nil, fmt.Errorf("count occupancy: %w", err)
		}
		views = append(views, model.EventView{Event: events[i], Occupancy: occ})
	}
	return views, nil
}

// GetEvent returns a single event with its current occupancy.
func (s *EventService) GetEvent(ctx context.Context, id string) (*model.EventView, error) {
	event, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	occ, err := s.occupancy(ctx, s.store, event, s.clock())
	if err != nil {
		return nil, fmt.Errorf("count occupancy: %w", err)
	}
	return &model.EventView{Event: *event, Occupancy: occ}, nil
}

// UpdateCapacity changes the event's capacity. A nil capacity makes the event
// unlimited. Raising capacity offers the new spots to the waitlist in the
// same transaction; lowering it below the seats already taken or held is
// rejected.
func (s *EventService) UpdateCapacity(ctx context.Context, host model.User, eventID string, capacity *int) (*model.EventView, error) {
	logger := s.logFor("update_capacity", "event_id", eventID, "host_id", host.ID)
	if err := requireUser(host); err != nil {
		logOutcome(logger, err)
		return nil, err
	}
	if err := validateStruct(model.CapacityRequest{Capacity: capacity}); err != nil {
		logOutcome(logger, err)
		return nil, err
	}

	var view *model.EventView
	err := s.runTx(ctx, logger, func(tx repository.Tx, fx *effects) error {
		event, err := tx.LockEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if err := requireHost(host, event); err != nil {
			return err
		}
		if event.Status == model.EventCancelled {
			return repository.ErrEventCancelled
		}

		now := s.clock()
		occ, err := s.occupancy(ctx, tx, event, now)
		if err != nil {
			return fmt.Errorf("count occupancy: %w", err)
		}
		if capacity != nil && *capacity < occ.Joined+occ.Held {
			return ErrCapacityBelowJoined
		}

		opened := 0
		switch {
		case capacity == nil && event.Capacity != nil:
			waiting, err := tx.ListWaitlist(ctx, eventID, model.WaitlistWaiting, 0)
			if err != nil {
				return err
			}
			opened = len(waiting)
		case capacity != nil && event.Capacity != nil:
			opened = max(*capacity-*event.Capacity, 0)
		}

		event.Capacity = capacity
		if err := tx.UpdateEvent(ctx, event); err != nil {
			return err
		}

		if _, err := s.promote(ctx, tx, event, opened, now, fx, logger); err != nil {
			return fmt.Errorf("promote: %w", err)
		}
		if opened > 0 {
			fx.notify(notify.Notice{
				Kind:      notify.KindCapacityRaised,
				EventID:   event.ID,
				EventName: event.Name,
			})
		}

		occ, err = s.occupancy(ctx, tx, event, now)
		if err != nil {
			return fmt.Errorf("count occupancy: %w", err)
		}
		view = &model.EventView{Event: *event, Occupancy: occ}
		return nil
	})
	logOutcome(logger, err)
	if err != nil {
		return nil, err
	}
	return view, nil
}

// CancelEvent cancels the event, every seat and every open waitlist entry in
// one transaction. Paid seats are refunded after commit.
func (s *EventService) CancelEvent(ctx context.Context, host model.User, eventID string) error {
	logger := s.logFor("cancel_event", "event_id", eventID, "host_id", host.ID)
	if err := requireUser(host); err != nil {
		logOutcome(logger, err)
		return err
	}

	err := s.runTx(ctx, logger, func(tx repository.Tx, fx *effects) error {
		event, err := tx.LockEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if err := requireHost(host, event); err != nil {
			return err
		}
		if event.Status == model.EventCancelled {
			return repository.ErrEventCancelled
		}

		event.Status = model.EventCancelled
		if err := tx.UpdateEvent(ctx, event); err != nil {
			return err
		}

		now := s.clock()
		bookings, err := tx.ListBookings(ctx, eventID, model.BookingJoined)
		if err != nil {
			return err
		}
		for i := range bookings {
			b := &bookings[i]
			b.Status = model.BookingCancelled
			b.CancelledAt = &now
			if err := tx.SaveBooking(ctx, b); err != nil {
				return err
			}
			fx.refund(b)
			fx.notify(notify.Notice{
				Kind:      notify.KindEventCancelled,
				UserID:    b.UserID,
				Email:     b.UserEmail,
				EventID:   event.ID,
				EventName: event.Name,
			})
		}

		entries, err := tx.ListWaitlist(ctx, eventID, "", 0)
		if err != nil {
			return err
		}
		left := 0
		for i := range entries {
			w := &entries[i]
			if !w.Status.Active() {
				continue
			}
			w.Status = model.WaitlistLeft
			if err := tx.SaveWaitlistEntry(ctx, w); err != nil {
				return err
			}
			fx.notify(notify.Notice{
				Kind:      notify.KindEventCancelled,
				UserID:    w.UserID,
				Email:     w.UserEmail,
				EventID:   event.ID,
				EventName: event.Name,
			})
			left++
		}

		fx.notify(notify.Notice{
			Kind:      notify.KindEventCancelled,
			EventID:   event.ID,
			EventName: event.Name,
		})
		logger.Info("event cancelled", "bookings", len(bookings), "waitlist", left)
		return nil
	})
	logOutcome(logger, err)
	return err
}

// Roster returns every booking and waitlist entry of the event for its host.
func (s *EventService) Roster(ctx context.Context, host model.User, eventID string) (*model.Roster, error) {
	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if err := requireHost(host, event); err != nil {
		return nil, err
	}

	bookings, err := s.store.ListBookings(ctx, eventID, "")
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	waitlist, err := s.store.ListWaitlist(ctx, eventID, "", 0)
	if err != nil {
		return nil, fmt.Errorf("list waitlist: %w", err)
	}
	return &model.Roster{Event: *event, Bookings: bookings, Waitlist: waitlist}, nil
}
