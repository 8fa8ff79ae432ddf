package service

import (
	"context"
	"time"

	"github.com/Shivanand-hulikatti/activity-waitlist/internal/model"
	"github.com/Shivanand-hulikatti/activity-waitlist/internal/repository"
)

// occupancy derives the event's usage from the booking ledger and running
// offers. Callers deciding on capacity must pass the transaction that holds
// the event lock; there is no stored counter to drift.
func (s *EventService) occupancy(ctx context.Context, r repository.Reader, event *model.Event, now time.Time) (model.Occupancy, error) {
	joined, err := r.CountJoined(ctx, event.ID)
	if err != nil {
		return model.Occupancy{}, err
	}
	held, err := r.CountHeld(ctx, event.ID, now)
	if err != nil {
		return model.Occupancy{}, err
	}
	return model.Occupancy{Joined: joined, Held: held, Capacity: event.Capacity}, nil
}

// Occupancy returns a point-in-time read of the event's capacity usage, for
// display only.
func (s *EventService) Occupancy(ctx context.Context, eventID string) (model.Occupancy, error) {
	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return model.Occupancy{}, err
	}
	return s.occupancy(ctx, s.store, event, s.clock())
}
