package service

import (
	"context"
	"fmt"

	"github.com/Shivanand-hulikatti/activity-waitlist/internal/model"
)

// GetStatus reports whether the user holds a seat or a waitlist entry for
// the event.
func (s *EventService) GetStatus(ctx context.Context, userID, eventID string) (*model.Status, error) {
	if userID == "" {
		return nil, ErrUnauthorized
	}
	if _, err := s.store.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}

	st := &model.Status{EventID: eventID}

	b, err := s.store.GetBooking(ctx, eventID, userID)
	if err := notFoundOr(err); err != nil {
		return nil, fmt.Errorf("load booking: %w", err)
	}
	st.Joined = b != nil && b.Status == model.BookingJoined

	entry, err := s.store.GetWaitlistEntry(ctx, eventID, userID)
	if err := notFoundOr(err); err != nil {
		return nil, fmt.Errorf("load waitlist entry: %w", err)
	}
	if entry == nil {
		return st, nil
	}

	st.Waitlist = entry.Status
	st.Waitlisted = entry.Status.Active()
	if entry.Status == model.WaitlistNotified {
		st.ExpiresAt = entry.ExpiresAt
	}
	if st.Position, err = s.positionOf(ctx, entry); err != nil {
		return nil, err
	}
	return st, nil
}
