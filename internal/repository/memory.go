package repository

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/activity-waitlist/internal/model"
)

// MemoryStore implements Store in process memory. Transactions run one at a
// time against a private copy of the state which replaces the shared state on
// commit, so a failed transaction leaves nothing behind.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemState()}
}

type pairKey struct {
	eventID string
	userID  string
}

type memState struct {
	events   map[string]model.Event
	bookings map[pairKey]model.Booking
	waitlist map[pairKey]model.WaitlistEntry
	seq      int64
}

func newMemState() *memState {
	return &memState{
		events:   make(map[string]model.Event),
		bookings: make(map[pairKey]model.Booking),
		waitlist: make(map[pairKey]model.WaitlistEntry),
	}
}

func (s *memState) clone() *memState {
	c := &memState{
		events:   make(map[string]model.Event, len(s.events)),
		bookings: make(map[pairKey]model.Booking, len(s.bookings)),
		waitlist: make(map[pairKey]model.WaitlistEntry, len(s.waitlist)),
		seq:      s.seq,
	}
	for k, v := range s.events {
		c.events[k] = v
	}
	for k, v := range s.bookings {
		c.bookings[k] = v
	}
	for k, v := range s.waitlist {
		c.waitlist[k] = v
	}
	return c
}

// InTx runs fn against a copy of the state and publishes it on success.
func (m *MemoryStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	work := m.state.clone()
	if err := fn(work); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (m *MemoryStore) CreateEvent(_ context.Context, e *model.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Status == "" {
		e.Status = model.EventActive
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	m.state.events[e.ID] = *e
	return nil
}

func (m *MemoryStore) ListEvents(_ context.Context) ([]model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Event
	for _, e := range m.state.events {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b model.Event) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) GetEvent(_ context.Context, id string) (*model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.state.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

func (m *MemoryStore) EventsWithExpiredOffers(_ context.Context, now time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]bool)
	var ids []string
	for _, w := range m.state.waitlist {
		if w.Status == model.WaitlistNotified && w.ExpiresAt != nil && !w.ExpiresAt.After(now) && !seen[w.EventID] {
			seen[w.EventID] = true
			ids = append(ids, w.EventID)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (m *MemoryStore) CountJoined(ctx context.Context, eventID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.CountJoined(ctx, eventID)
}

func (m *MemoryStore) CountHeld(ctx context.Context, eventID string, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.CountHeld(ctx, eventID, now)
}

func (m *MemoryStore) GetBooking(ctx context.Context, eventID, userID string) (*model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.GetBooking(ctx, eventID, userID)
}

func (m *MemoryStore) ListBookings(ctx context.Context, eventID string, status model.BookingStatus) ([]model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.ListBookings(ctx, eventID, status)
}

func (m *MemoryStore) GetWaitlistEntry(ctx context.Context, eventID, userID string) (*model.WaitlistEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.GetWaitlistEntry(ctx, eventID, userID)
}

func (m *MemoryStore) ListWaitlist(ctx context.Context, eventID string, status model.WaitlistStatus, limit int) ([]model.WaitlistEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.ListWaitlist(ctx, eventID, status, limit)
}

func (m *MemoryStore) CountWaitingBefore(ctx context.Context, w *model.WaitlistEntry) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.CountWaitingBefore(ctx, w)
}

// memState doubles as the transaction handle; the caller holds MemoryStore.mu.

func (s *memState) LockEvent(_ context.Context, eventID string) (*model.Event, error) {
	e, ok := s.events[eventID]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

func (s *memState) UpdateEvent(_ context.Context, e *model.Event) error {
	if _, ok := s.events[e.ID]; !ok {
		return ErrNotFound
	}
	s.events[e.ID] = *e
	return nil
}

func (s *memState) SaveBooking(_ context.Context, b *model.Booking) error {
	key := pairKey{b.EventID, b.UserID}
	if prev, ok := s.bookings[key]; ok {
		b.ID = prev.ID
	} else if b.ID == "" {
		b.ID = uuid.New().String()
	}
	s.bookings[key] = *b
	return nil
}

func (s *memState) SaveWaitlistEntry(_ context.Context, w *model.WaitlistEntry) error {
	key := pairKey{w.EventID, w.UserID}
	if prev, ok := s.waitlist[key]; ok {
		w.ID = prev.ID
	} else if w.ID == "" {
		w.ID = uuid.New().String()
	}
	if w.Seq == 0 {
		s.seq++
		w.Seq = s.seq
	}
	s.waitlist[key] = *w
	return nil
}

func (s *memState) ExpireOffers(_ context.Context, eventID string, now time.Time) ([]model.WaitlistEntry, error) {
	var out []model.WaitlistEntry
	for key, w := range s.waitlist {
		if w.EventID != eventID || w.Status != model.WaitlistNotified || w.ExpiresAt == nil || w.ExpiresAt.After(now) {
			continue
		}
		w.Status = model.WaitlistExpired
		s.waitlist[key] = w
		out = append(out, w)
	}
	sortFIFO(out)
	return out, nil
}

func (s *memState) CountJoined(_ context.Context, eventID string) (int, error) {
	n := 0
	for _, b := range s.bookings {
		if b.EventID == eventID && b.Status == model.BookingJoined {
			n++
		}
	}
	return n, nil
}

func (s *memState) CountHeld(_ context.Context, eventID string, now time.Time) (int, error) {
	n := 0
	for _, w := range s.waitlist {
		if w.EventID == eventID && w.Status == model.WaitlistNotified && w.ExpiresAt != nil && w.ExpiresAt.After(now) {
			n++
		}
	}
	return n, nil
}

func (s *memState) GetBooking(_ context.Context, eventID, userID string) (*model.Booking, error) {
	b, ok := s.bookings[pairKey{eventID, userID}]
	if !ok {
		return nil, ErrNotFound
	}
	return &b, nil
}

func (s *memState) ListBookings(_ context.Context, eventID string, status model.BookingStatus) ([]model.Booking, error) {
	var out []model.Booking
	for _, b := range s.bookings {
		if b.EventID == eventID && (status == "" || b.Status == status) {
			out = append(out, b)
		}
	}
	slices.SortFunc(out, func(a, b model.Booking) int {
		if c := a.JoinedAt.Compare(b.JoinedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return out, nil
}

func (s *memState) GetWaitlistEntry(_ context.Context, eventID, userID string) (*model.WaitlistEntry, error) {
	w, ok := s.waitlist[pairKey{eventID, userID}]
	if !ok {
		return nil, ErrNotFound
	}
	return &w, nil
}

func (s *memState) ListWaitlist(_ context.Context, eventID string, status model.WaitlistStatus, limit int) ([]model.WaitlistEntry, error) {
	var out []model.WaitlistEntry
	for _, w := range s.waitlist {
		if w.EventID == eventID && (status == "" || w.Status == status) {
			out = append(out, w)
		}
	}
	sortFIFO(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memState) CountWaitingBefore(_ context.Context, w *model.WaitlistEntry) (int, error) {
	n := 0
	for _, o := range s.waitlist {
		if o.EventID == w.EventID && o.Status == model.WaitlistWaiting && o.Before(w) {
			n++
		}
	}
	return n, nil
}

func sortFIFO(entries []model.WaitlistEntry) {
	slices.SortFunc(entries, func(a, b model.WaitlistEntry) int {
		switch {
		case a.Before(&b):
			return -1
		case b.Before(&a):
			return 1
		}
		return 0
	})
}
