package app

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/oauth2"
)

//go:embed schema.sql
var schemaSQL string

const (
	pgUniqueViolation    = "23505"
	pgExclusionViolation = "23P01"
)

// PGStore is the Postgres Store. Overlapping live bookings of a host are
// rejected by the bookings_no_overlap exclusion constraint; WithHostLock
// additionally serialises commits per host with an advisory lock.
type PGStore struct {
	DB *pgxpool.Pool
}

func NewPGStore(ctx context.Context, databaseURL string) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to db: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &PGStore{DB: pool}, nil
}

// Migrate creates the schema if it does not exist yet.
func (s *PGStore) Migrate(ctx context.Context) error {
	if _, err := s.DB.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *PGStore) Close() { s.DB.Close() }

func (s *PGStore) Ping(ctx context.Context) error { return s.DB.Ping(ctx) }

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

const hostColumns = `id,name,email,slug,timezone,bio,busy_feed_url,created_at,updated_at`

func scanHost(row pgx.Row) (*Host, error) {
	var h Host
	err := row.Scan(&h.ID, &h.Name, &h.Email, &h.Slug, &h.Timezone, &h.Bio, &h.BusyFeedURL, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func (s *PGStore) GetHostByID(ctx context.Context, id string) (*Host, error) {
	h, err := scanHost(s.DB.QueryRow(ctx, `SELECT `+hostColumns+` FROM hosts WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("host", id)
	}
	return h, err
}

func (s *PGStore) GetHostBySlug(ctx context.Context, slug string) (*Host, error) {
	h, err := scanHost(s.DB.QueryRow(ctx, `SELECT `+hostColumns+` FROM hosts WHERE slug=$1`, slug))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("host", slug)
	}
	return h, err
}

func (s *PGStore) SaveHost(ctx context.Context, h *Host) error {
	q := `INSERT INTO hosts (id,name,email,slug,timezone,bio,busy_feed_url,created_at,updated_at)
	      VALUES ($1,$2,$3,$4,$5,$6,$7,now(),now())
	      ON CONFLICT (id) DO UPDATE
	      SET name=EXCLUDED.name, email=EXCLUDED.email, slug=EXCLUDED.slug, timezone=EXCLUDED.timezone,
	          bio=EXCLUDED.bio, busy_feed_url=EXCLUDED.busy_feed_url, updated_at=now()
	      RETURNING created_at, updated_at`
	err := s.DB.QueryRow(ctx, q, h.ID, h.Name, h.Email, h.Slug, h.Timezone, h.Bio, h.BusyFeedURL).
		Scan(&h.CreatedAt, &h.UpdatedAt)
	if pgCode(err) == pgUniqueViolation {
		return ErrSlugTaken
	}
	return err
}

const eventTypeColumns = `id,host_id,title,slug,description,duration,buffer_before,buffer_after,is_active,color,created_at,updated_at`

func scanEventType(row pgx.Row) (*EventType, error) {
	var et EventType
	err := row.Scan(&et.ID, &et.HostID, &et.Title, &et.Slug, &et.Description, &et.Duration,
		&et.BufferBefore, &et.BufferAfter, &et.IsActive, &et.Color, &et.CreatedAt, &et.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &et, nil
}

func (s *PGStore) ListEventTypes(ctx context.Context, hostID string) ([]EventType, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+eventTypeColumns+` FROM event_types WHERE host_id=$1 ORDER BY created_at DESC`, hostID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EventType
	for rows.Next() {
		et, err := scanEventType(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *et)
	}
	return out, rows.Err()
}

func (s *PGStore) GetEventType(ctx context.Context, id string) (*EventType, error) {
	et, err := scanEventType(s.DB.QueryRow(ctx, `SELECT `+eventTypeColumns+` FROM event_types WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("event type", id)
	}
	return et, err
}

func (s *PGStore) GetEventTypeBySlug(ctx context.Context, hostID, slug string) (*EventType, error) {
	et, err := scanEventType(s.DB.QueryRow(ctx,
		`SELECT `+eventTypeColumns+` FROM event_types WHERE host_id=$1 AND slug=$2`, hostID, slug))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("event type", slug)
	}
	return et, err
}

func (s *PGStore) CreateEventType(ctx context.Context, et *EventType) error {
	q := `INSERT INTO event_types
	      (id,host_id,title,slug,description,duration,buffer_before,buffer_after,is_active,color,created_at,updated_at)
	      VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,now(),now())
	      RETURNING created_at, updated_at`
	err := s.DB.QueryRow(ctx, q, et.ID, et.HostID, et.Title, et.Slug, et.Description, et.Duration,
		et.BufferBefore, et.BufferAfter, et.IsActive, et.Color).Scan(&et.CreatedAt, &et.UpdatedAt)
	if pgCode(err) == pgUniqueViolation {
		return ErrSlugTaken
	}
	return err
}

func (s *PGStore) UpdateEventType(ctx context.Context, et *EventType) error {
	q := `UPDATE event_types
	      SET title=$1, slug=$2, description=$3, duration=$4, buffer_before=$5, buffer_after=$6,
	          is_active=$7, color=$8, updated_at=now()
	      WHERE id=$9
	      RETURNING updated_at`
	err := s.DB.QueryRow(ctx, q, et.Title, et.Slug, et.Description, et.Duration,
		et.BufferBefore, et.BufferAfter, et.IsActive, et.Color, et.ID).Scan(&et.UpdatedAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return notFound("event type", et.ID)
	case pgCode(err) == pgUniqueViolation:
		return ErrSlugTaken
	}
	return err
}

func (s *PGStore) DeleteEventType(ctx context.Context, id string) error {
	res, err := s.DB.Exec(ctx, `DELETE FROM event_types WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return notFound("event type", id)
	}
	return nil
}

func (s *PGStore) ListAvailability(ctx context.Context, hostID string) ([]AvailabilityTemplate, error) {
	q := `SELECT host_id,day_of_week,start_time,end_time,is_enabled
	      FROM availability_templates WHERE host_id=$1 ORDER BY day_of_week`
	rows, err := s.DB.Query(ctx, q, hostID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AvailabilityTemplate
	for rows.Next() {
		var t AvailabilityTemplate
		if err := rows.Scan(&t.HostID, &t.DayOfWeek, &t.StartTime, &t.EndTime, &t.IsEnabled); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PGStore) ReplaceAvailability(ctx context.Context, hostID string, tmpl []AvailabilityTemplate) error {
	return pgx.BeginFunc(ctx, s.DB, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM availability_templates WHERE host_id=$1`, hostID); err != nil {
			return err
		}
		for _, t := range tmpl {
			_, err := tx.Exec(ctx,
				`INSERT INTO availability_templates (host_id,day_of_week,start_time,end_time,is_enabled)
				 VALUES ($1,$2,$3,$4,$5)`,
				hostID, t.DayOfWeek, t.StartTime, t.EndTime, t.IsEnabled)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

const bookingColumns = `id,event_type_id,host_id,guest_name,guest_email,guest_timezone,guest_notes,
	start_time,end_time,status,cancel_reason,external_event_id,created_at`

func scanBooking(row pgx.Row, extra ...any) (*Booking, error) {
	var b Booking
	dest := append([]any{&b.ID, &b.EventTypeID, &b.HostID, &b.GuestName, &b.GuestEmail, &b.GuestTimezone,
		&b.GuestNotes, &b.StartTime, &b.EndTime, &b.Status, &b.CancelReason, &b.ExternalEventID, &b.CreatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &b, nil
}

func collectBookings(rows pgx.Rows) ([]Booking, error) {
	defer rows.Close()
	var out []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (s *PGStore) ListActiveBookings(ctx context.Context, hostID string, from, to time.Time) ([]Booking, error) {
	q := `SELECT ` + bookingColumns + ` FROM bookings
	      WHERE host_id=$1 AND start_time >= $2 AND start_time < $3 AND status <> 'CANCELLED'
	      ORDER BY start_time`
	rows, err := s.DB.Query(ctx, q, hostID, from, to)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (s *PGStore) ListBookings(ctx context.Context, hostID string, filter BookingFilter, now time.Time) ([]BookingSummary, error) {
	args := []any{hostID}
	where, order := "", "b.start_time ASC"
	switch filter {
	case FilterUpcoming:
		where = ` AND b.start_time >= $2 AND b.status <> 'CANCELLED'`
		args = append(args, now)
	case FilterPast:
		where, order = ` AND b.start_time < $2`, "b.start_time DESC"
		args = append(args, now)
	}
	q := `SELECT b.id,b.event_type_id,b.host_id,b.guest_name,b.guest_email,b.guest_timezone,b.guest_notes,
	             b.start_time,b.end_time,b.status,b.cancel_reason,b.external_event_id,b.created_at,
	             e.title,e.duration,e.color
	      FROM bookings b JOIN event_types e ON e.id = b.event_type_id
	      WHERE b.host_id=$1` + where + ` ORDER BY ` + order

	rows, err := s.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BookingSummary
	for rows.Next() {
		var sum BookingSummary
		b, err := scanBooking(rows, &sum.EventTitle, &sum.EventDuration, &sum.EventColor)
		if err != nil {
			return nil, err
		}
		sum.Booking = *b
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *PGStore) GetBooking(ctx context.Context, id string) (*Booking, error) {
	b, err := scanBooking(s.DB.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("booking", id)
	}
	return b, err
}

func (s *PGStore) ListConfirmedStarting(ctx context.Context, from, to time.Time) ([]Booking, error) {
	q := `SELECT ` + bookingColumns + ` FROM bookings
	      WHERE status='CONFIRMED' AND start_time >= $1 AND start_time < $2
	      ORDER BY start_time`
	rows, err := s.DB.Query(ctx, q, from, to)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (s *PGStore) CancelBooking(ctx context.Context, id, reason string) error {
	res, err := s.DB.Exec(ctx,
		`UPDATE bookings SET status='CANCELLED', cancel_reason=$2 WHERE id=$1 AND status <> 'CANCELLED'`,
		id, reason)
	if err != nil {
		return err
	}
	if res.RowsAffected() > 0 {
		return nil
	}
	// lost a race with another cancel, or the id is unknown
	if _, err := s.GetBooking(ctx, id); err != nil {
		return err
	}
	return ErrAlreadyCancelled
}

func (s *PGStore) WithHostLock(ctx context.Context, hostID string, fn func(tx BookingTx) error) error {
	err := pgx.BeginFunc(ctx, s.DB, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, hostID); err != nil {
			return fmt.Errorf("lock host: %w", err)
		}
		return fn(pgBookingTx{tx: tx})
	})
	if pgCode(err) == pgExclusionViolation {
		return ErrSlotUnavailable
	}
	return err
}

type pgBookingTx struct {
	tx pgx.Tx
}

func (t pgBookingTx) FindOverlapping(ctx context.Context, hostID string, start, end time.Time) (*Booking, error) {
	// starts inside, ends inside, or contains the requested interval
	q := `SELECT ` + bookingColumns + ` FROM bookings
	      WHERE host_id=$1 AND status <> 'CANCELLED' AND (
	            (start_time <= $2 AND end_time > $2)
	         OR (start_time < $3 AND end_time >= $3)
	         OR (start_time >= $2 AND end_time <= $3 AND start_time < end_time))
	      LIMIT 1`
	b, err := scanBooking(t.tx.QueryRow(ctx, q, hostID, start, end))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return b, err
}

func (t pgBookingTx) InsertBooking(ctx context.Context, b *Booking) error {
	q := `INSERT INTO bookings
	      (id,event_type_id,host_id,guest_name,guest_email,guest_timezone,guest_notes,
	       start_time,end_time,status,cancel_reason,external_event_id,created_at)
	      VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,now())
	      RETURNING created_at`
	return t.tx.QueryRow(ctx, q, b.ID, b.EventTypeID, b.HostID, b.GuestName, b.GuestEmail, b.GuestTimezone,
		b.GuestNotes, b.StartTime, b.EndTime, b.Status, b.CancelReason, b.ExternalEventID).Scan(&b.CreatedAt)
}

func (s *PGStore) LoadToken(ctx context.Context, hostID string) (*oauth2.Token, error) {
	var (
		tok    oauth2.Token
		expiry *time.Time
	)
	err := s.DB.QueryRow(ctx,
		`SELECT access_token,refresh_token,token_type,expiry FROM calendar_credentials WHERE host_id=$1`, hostID).
		Scan(&tok.AccessToken, &tok.RefreshToken, &tok.TokenType, &expiry)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if expiry != nil {
		tok.Expiry = *expiry
	}
	return &tok, nil
}

// SaveToken upserts the host's token. A refreshed token without a refresh
// token keeps the stored one.
func (s *PGStore) SaveToken(ctx context.Context, hostID string, tok *oauth2.Token) error {
	var expiry *time.Time
	if !tok.Expiry.IsZero() {
		expiry = &tok.Expiry
	}
	q := `INSERT INTO calendar_credentials (host_id,access_token,refresh_token,token_type,expiry,updated_at)
	      VALUES ($1,$2,$3,$4,$5,now())
	      ON CONFLICT (host_id) DO UPDATE
	      SET access_token=EXCLUDED.access_token,
	          refresh_token=COALESCE(NULLIF(EXCLUDED.refresh_token,''), calendar_credentials.refresh_token),
	          token_type=EXCLUDED.token_type, expiry=EXCLUDED.expiry, updated_at=now()`
	_, err := s.DB.Exec(ctx, q, hostID, tok.AccessToken, tok.RefreshToken, tok.TokenType, expiry)
	return err
}

func (s *PGStore) BusyFeedURL(ctx context.Context, hostID string) (string, error) {
	var url string
	err := s.DB.QueryRow(ctx, `SELECT busy_feed_url FROM hosts WHERE id=$1`, hostID).Scan(&url)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return url, err
}
