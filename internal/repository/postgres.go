package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/activity-waitlist/internal/model"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store on PostgreSQL using pgx directly (no ORM).
type PostgresStore struct {
	queries
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{queries: queries{db: pool}, pool: pool}
}

// InTx runs fn inside a READ COMMITTED transaction. Capacity decisions are
// serialised by the row lock taken in LockEvent, not by the isolation level.
func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Tx) error) (err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", classify(err))
	}
	// Ensure the transaction is always resolved.
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(&pgTx{queries: queries{db: tx}}); err != nil {
		return classify(err)
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", classify(err))
	}
	return nil
}

// CreateEvent inserts a new event and fills in its generated id.
func (s *PostgresStore) CreateEvent(ctx context.Context, e *model.Event) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Status == "" {
		e.Status = model.EventActive
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO events (id, host_id, name, description, capacity, price_cents, status, starts_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.HostID, e.Name, e.Description, e.Capacity, e.PriceCents, string(e.Status), e.StartsAt, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// ListEvents returns all events ordered by creation time descending.
func (s *PostgresStore) ListEvents(ctx context.Context) ([]model.Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+eventColumns+`
		 FROM events
		 ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

// GetEvent returns a single event or ErrNotFound.
func (s *PostgresStore) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	e, err := scanEvent(s.pool.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

// EventsWithExpiredOffers lists events with NOTIFIED entries past their expiry.
func (s *PostgresStore) EventsWithExpiredOffers(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT event_id
		 FROM waitlist_entries
		 WHERE status = 'NOTIFIED' AND expires_at <= $1`,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("list expired offers: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan event id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// pgTx implements Tx on an open pgx transaction.
type pgTx struct {
	queries
}

// LockEvent takes a row-level exclusive lock on the event.
//
// Two concurrent joins that both read joined = capacity-1 before either writes
// would both succeed and overbook the event. SELECT … FOR UPDATE blocks every
// other transaction locking the same row until this one commits or rolls
// back, so the count read below it and the write that follows are atomic with
// respect to other joins, leaves and promotions on the same event.
func (t *pgTx) LockEvent(ctx context.Context, eventID string) (*model.Event, error) {
	e, err := scanEvent(t.db.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1 FOR UPDATE`, eventID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lock event row: %w", err)
	}
	return e, nil
}

func (t *pgTx) UpdateEvent(ctx context.Context, e *model.Event) error {
	_, err := t.db.Exec(ctx,
		`UPDATE events SET name = $2, description = $3, capacity = $4, price_cents = $5, status = $6, starts_at = $7
		 WHERE id = $1`,
		e.ID, e.Name, e.Description, e.Capacity, e.PriceCents, string(e.Status), e.StartsAt,
	)
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	return nil
}

func (t *pgTx) SaveBooking(ctx context.Context, b *model.Booking) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	err := t.db.QueryRow(ctx,
		`INSERT INTO bookings (id, event_id, user_id, user_email, status, payment_id, amount_cents, joined_at, cancelled_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (event_id, user_id) DO UPDATE SET
		   user_email = EXCLUDED.user_email,
		   status = EXCLUDED.status,
		   payment_id = EXCLUDED.payment_id,
		   amount_cents = EXCLUDED.amount_cents,
		   joined_at = EXCLUDED.joined_at,
		   cancelled_at = EXCLUDED.cancelled_at
		 RETURNING id`,
		b.ID, b.EventID, b.UserID, b.UserEmail, string(b.Status), b.PaymentID, b.AmountCents, b.JoinedAt, b.CancelledAt,
	).Scan(&b.ID)
	if err != nil {
		return fmt.Errorf("save booking: %w", err)
	}
	return nil
}

func (t *pgTx) SaveWaitlistEntry(ctx context.Context, w *model.WaitlistEntry) error {
	if w.Seq != 0 {
		_, err := t.db.Exec(ctx,
			`UPDATE waitlist_entries
			 SET user_email = $2, locale = $3, status = $4, enqueued_at = $5, notified_at = $6, expires_at = $7
			 WHERE id = $1`,
			w.ID, w.UserEmail, w.Locale, string(w.Status), w.EnqueuedAt, w.NotifiedAt, w.ExpiresAt,
		)
		if err != nil {
			return fmt.Errorf("update waitlist entry: %w", err)
		}
		return nil
	}

	if w.ID == "" {
		w.ID = uuid.New().String()
	}
	err := t.db.QueryRow(ctx,
		`INSERT INTO waitlist_entries (id, event_id, user_id, user_email, locale, status, enqueued_at, notified_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (event_id, user_id) DO UPDATE SET
		   user_email = EXCLUDED.user_email,
		   locale = EXCLUDED.locale,
		   status = EXCLUDED.status,
		   enqueued_at = EXCLUDED.enqueued_at,
		   notified_at = EXCLUDED.notified_at,
		   expires_at = EXCLUDED.expires_at,
		   seq = nextval(pg_get_serial_sequence('waitlist_entries', 'seq'))
		 RETURNING id, seq`,
		w.ID, w.EventID, w.UserID, w.UserEmail, w.Locale, string(w.Status), w.EnqueuedAt, w.NotifiedAt, w.ExpiresAt,
	).Scan(&w.ID, &w.Seq)
	if err != nil {
		return fmt.Errorf("enqueue waitlist entry: %w", err)
	}
	return nil
}

func (t *pgTx) ExpireOffers(ctx context.Context, eventID string, now time.Time) ([]model.WaitlistEntry, error) {
	rows, err := t.db.Query(ctx,
		`UPDATE waitlist_entries SET status = 'EXPIRED'
		 WHERE event_id = $1 AND status = 'NOTIFIED' AND expires_at <= $2
		 RETURNING `+waitlistColumns,
		eventID, now,
	)
	if err != nil {
		return nil, fmt.Errorf("expire offers: %w", err)
	}
	return collectWaitlist(rows)
}

// queries implements Reader over any querier.
type queries struct {
	db querier
}

func (q queries) CountJoined(ctx context.Context, eventID string) (int, error) {
	var n int
	err := q.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM bookings WHERE event_id = $1 AND status = 'JOINED'`,
		eventID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count joined: %w", err)
	}
	return n, nil
}

func (q queries) CountHeld(ctx context.Context, eventID string, now time.Time) (int, error) {
	var n int
	err := q.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM waitlist_entries
		 WHERE event_id = $1 AND status = 'NOTIFIED' AND expires_at > $2`,
		eventID, now,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count held: %w", err)
	}
	return n, nil
}

func (q queries) GetBooking(ctx context.Context, eventID, userID string) (*model.Booking, error) {
	b, err := scanBooking(q.db.QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE event_id = $1 AND user_id = $2`,
		eventID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get booking: %w", err)
	}
	return b, nil
}

func (q queries) ListBookings(ctx context.Context, eventID string, status model.BookingStatus) ([]model.Booking, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+bookingColumns+`
		 FROM bookings
		 WHERE event_id = $1 AND ($2 = '' OR status = $2)
		 ORDER BY joined_at ASC, id ASC`,
		eventID, string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (q queries) GetWaitlistEntry(ctx context.Context, eventID, userID string) (*model.WaitlistEntry, error) {
	w, err := scanWaitlist(q.db.QueryRow(ctx,
		`SELECT `+waitlistColumns+` FROM waitlist_entries WHERE event_id = $1 AND user_id = $2`,
		eventID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get waitlist entry: %w", err)
	}
	return w, nil
}

func (q queries) ListWaitlist(ctx context.Context, eventID string, status model.WaitlistStatus, limit int) ([]model.WaitlistEntry, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+waitlistColumns+`
		 FROM waitlist_entries
		 WHERE event_id = $1 AND ($2 = '' OR status = $2)
		 ORDER BY enqueued_at ASC, seq ASC
		 LIMIT NULLIF($3, 0)`,
		eventID, string(status), max(limit, 0),
	)
	if err != nil {
		return nil, fmt.Errorf("list waitlist: %w", err)
	}
	return collectWaitlist(rows)
}

func (q queries) CountWaitingBefore(ctx context.Context, w *model.WaitlistEntry) (int, error) {
	var n int
	err := q.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM waitlist_entries
		 WHERE event_id = $1 AND status = 'WAITING' AND (enqueued_at, seq) < ($2, $3)`,
		w.EventID, w.EnqueuedAt, w.Seq,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count waiting before: %w", err)
	}
	return n, nil
}

const (
	eventColumns    = `id, host_id, name, description, capacity, price_cents, status, starts_at, created_at`
	bookingColumns  = `id, event_id, user_id, user_email, status, payment_id, amount_cents, joined_at, cancelled_at`
	waitlistColumns = `id, seq, event_id, user_id, user_email, locale, status, enqueued_at, notified_at, expires_at`
)

func scanEvent(row pgx.Row) (*model.Event, error) {
	var (
		e      model.Event
		status string
	)
	err := row.Scan(&e.ID, &e.HostID, &e.Name, &e.Description, &e.Capacity, &e.PriceCents, &status, &e.StartsAt, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	e.Status = model.EventStatus(status)
	return &e, nil
}

func scanBooking(row pgx.Row) (*model.Booking, error) {
	var (
		b      model.Booking
		status string
	)
	err := row.Scan(&b.ID, &b.EventID, &b.UserID, &b.UserEmail, &status, &b.PaymentID, &b.AmountCents, &b.JoinedAt, &b.CancelledAt)
	if err != nil {
		return nil, err
	}
	b.Status = model.BookingStatus(status)
	return &b, nil
}

func scanWaitlist(row pgx.Row) (*model.WaitlistEntry, error) {
	var (
		w      model.WaitlistEntry
		status string
	)
	err := row.Scan(&w.ID, &w.Seq, &w.EventID, &w.UserID, &w.UserEmail, &w.Locale, &status, &w.EnqueuedAt, &w.NotifiedAt, &w.ExpiresAt)
	if err != nil {
		return nil, err
	}
	w.Status = model.WaitlistStatus(status)
	return &w, nil
}

func collectWaitlist(rows pgx.Rows) ([]model.WaitlistEntry, error) {
	defer rows.Close()
	var out []model.WaitlistEntry
	for rows.Next() {
		w, err := scanWaitlist(rows)
		if err != nil {
			return nil, fmt.Errorf("scan waitlist entry: %w", err)
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

// classify turns Postgres errors caused by a lost race into ErrTransactionConflict.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "40001", // serialization_failure
		"40P01", // deadlock_detected
		"55P03", // lock_not_available
		"23505": // unique_violation on (event_id, user_id)
		return fmt.Errorf("%w: %s", ErrTransactionConflict, pgErr.Message)
	}
	return err
}
