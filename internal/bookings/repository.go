package bookings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/booklinehq/bookline-platform/internal/scheduling"
)

// ErrNotFound is returned when a booking does not exist in the business's scope.
var ErrNotFound = errors.New("bookings: not found")

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository provides persistence for bookings. Every query is scoped to a
// business id; a missing scope filter is a correctness bug, not a style issue.
type Repository struct {
	db DB
}

// NewRepository creates a booking repository.
func NewRepository(db DB) *Repository {
	return &Repository{db: db}
}

const bookingColumns = `id, business_id, customer_id, service_type_id, scheduled_start, scheduled_end, status, notes, created_at, updated_at`

// Get fetches a booking scoped to the business.
func (r *Repository) Get(ctx context.Context, businessID string, id uuid.UUID) (*Booking, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE business_id = $1 AND id = $2`, businessID, id)
	b, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("bookings: get: %w", err)
	}
	return b, nil
}

// NearestUpcoming returns the customer's earliest active booking starting at or
// after the given instant, or nil when none exists.
func (r *Repository) NearestUpcoming(ctx context.Context, businessID string, customerID uuid.UUID, from time.Time) (*Booking, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE business_id = $1 AND customer_id = $2
			AND status IN ('pending', 'confirmed', 'rescheduled')
			AND scheduled_start >= $3
		ORDER BY scheduled_start ASC
		LIMIT 1`, businessID, customerID, from)
	b, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("bookings: nearest upcoming: %w", err)
	}
	return b, nil
}

// ListActiveInWindow returns active bookings starting inside [from, to].
func (r *Repository) ListActiveInWindow(ctx context.Context, businessID string, from, to time.Time) ([]Booking, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE business_id = $1
			AND status IN ('pending', 'confirmed', 'rescheduled')
			AND scheduled_start >= $2 AND scheduled_start <= $3
		ORDER BY scheduled_start ASC`, businessID, from, to)
	if err != nil {
		return nil, fmt.Errorf("bookings: list active in window: %w", err)
	}
	defer rows.Close()
	return scanBookings(rows)
}

// BusyIntervals returns the occupied windows of active bookings starting
// inside [from, to], in the shape the slot finder consumes.
func (r *Repository) BusyIntervals(ctx context.Context, businessID string, from, to time.Time) ([]scheduling.BusyInterval, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, scheduled_start, scheduled_end
		FROM bookings
		WHERE business_id = $1
			AND status IN ('pending', 'confirmed', 'rescheduled')
			AND scheduled_start >= $2 AND scheduled_start <= $3
		ORDER BY scheduled_start ASC`, businessID, from, to)
	if err != nil {
		return nil, fmt.Errorf("bookings: busy intervals: %w", err)
	}
	defer rows.Close()

	var intervals []scheduling.BusyInterval
	for rows.Next() {
		var iv scheduling.BusyInterval
		if err := rows.Scan(&iv.BookingID, &iv.Start, &iv.End); err != nil {
			return nil, fmt.Errorf("bookings: scan busy interval: %w", err)
		}
		intervals = append(intervals, iv)
	}
	return intervals, rows.Err()
}

// Reschedule moves the booking to the chosen window and confirms it.
func (r *Repository) Reschedule(ctx context.Context, businessID string, id uuid.UUID, start, end time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE bookings
		SET scheduled_start = $3, scheduled_end = $4, status = 'confirmed', updated_at = now()
		WHERE business_id = $1 AND id = $2`, businessID, id, start, end)
	if err != nil {
		return fmt.Errorf("bookings: reschedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStatus transitions a booking's status.
func (r *Repository) UpdateStatus(ctx context.Context, businessID string, id uuid.UUID, status Status) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE bookings
		SET status = $3, updated_at = now()
		WHERE business_id = $1 AND id = $2`, businessID, id, string(status))
	if err != nil {
		return fmt.Errorf("bookings: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	var status string
	err := row.Scan(
		&b.ID, &b.BusinessID, &b.CustomerID, &b.ServiceTypeID,
		&b.ScheduledStart, &b.ScheduledEnd, &status, &b.Notes,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	b.Status = Status(status)
	return &b, nil
}

func scanBookings(rows pgx.Rows) ([]Booking, error) {
	var result []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("bookings: scan booking: %w", err)
		}
		result = append(result, *b)
	}
	return result, rows.Err()
}
