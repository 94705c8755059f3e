package reminders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// MaxDueBatch bounds one sweep's delivery batch.
const MaxDueBatch = 150

// Store provides persistence for reminders. One row per (booking, type);
// re-seeding upserts on that pair so at-least-once callers stay idempotent.
type Store struct {
	db DB
}

// NewStore creates a reminder store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// Refresh upserts the reminder pair for a booking at the given start time.
// Rows already sent or errored are left untouched. Returns how many rows
// were inserted or re-pointed at a new scheduled_for.
func (s *Store) Refresh(ctx context.Context, businessID string, bookingID uuid.UUID, start time.Time) (int, error) {
	seeded := 0
	for _, t := range Types {
		tag, err := s.db.Exec(ctx, `
			INSERT INTO reminders (id, business_id, booking_id, type, scheduled_for, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, 'pending', now(), now())
			ON CONFLICT (booking_id, type) DO UPDATE
			SET scheduled_for = EXCLUDED.scheduled_for, status = 'pending', detail = '', updated_at = now()
			WHERE reminders.status NOT IN ('sent', 'error')`,
			uuid.New(), businessID, bookingID, string(t), start.Add(-t.Offset()),
		)
		if err != nil {
			return seeded, fmt.Errorf("reminders: refresh %s: %w", t, err)
		}
		seeded += int(tag.RowsAffected())
	}
	return seeded, nil
}

// SkipPending marks all pending rows for a booking as skipped with a reason.
// Called when a booking leaves the active set or is about to be re-timed.
func (s *Store) SkipPending(ctx context.Context, businessID string, bookingID uuid.UUID, reason string) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE reminders
		SET status = 'skipped', detail = $3, updated_at = now()
		WHERE business_id = $1 AND booking_id = $2 AND status = 'pending'`,
		businessID, bookingID, reason)
	if err != nil {
		return 0, fmt.Errorf("reminders: skip pending: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListDue returns pending reminders whose scheduled_for is at or before asOf,
// oldest first, bounded to limit (capped at MaxDueBatch).
func (s *Store) ListDue(ctx context.Context, businessID string, asOf time.Time, limit int) ([]Reminder, error) {
	if limit <= 0 || limit > MaxDueBatch {
		limit = MaxDueBatch
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, business_id, booking_id, type, scheduled_for, status, sent_at, message_id, detail, created_at, updated_at
		FROM reminders
		WHERE business_id = $1 AND status = 'pending' AND scheduled_for <= $2
		ORDER BY scheduled_for ASC
		LIMIT $3`, businessID, asOf, limit)
	if err != nil {
		return nil, fmt.Errorf("reminders: list due: %w", err)
	}
	defer rows.Close()
	return scanReminders(rows)
}

// MarkSent transitions pending → sent with the gateway message id.
func (s *Store) MarkSent(ctx context.Context, id uuid.UUID, messageID string, at time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE reminders
		SET status = 'sent', sent_at = $2, message_id = $3, updated_at = now()
		WHERE id = $1 AND status = 'pending'`, id, at, messageID)
	if err != nil {
		return fmt.Errorf("reminders: mark sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("reminders: mark sent: no pending reminder with id %s", id)
	}
	return nil
}

// MarkSkipped transitions a single row to skipped with a reason.
func (s *Store) MarkSkipped(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE reminders
		SET status = 'skipped', detail = $2, updated_at = now()
		WHERE id = $1 AND status = 'pending'`, id, reason)
	if err != nil {
		return fmt.Errorf("reminders: mark skipped: %w", err)
	}
	return nil
}

// MarkError records a gateway failure for the row.
func (s *Store) MarkError(ctx context.Context, id uuid.UUID, errText string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE reminders
		SET status = 'error', detail = $2, updated_at = now()
		WHERE id = $1 AND status = 'pending'`, id, errText)
	if err != nil {
		return fmt.Errorf("reminders: mark error: %w", err)
	}
	return nil
}

func scanReminders(rows pgx.Rows) ([]Reminder, error) {
	var result []Reminder
	for rows.Next() {
		var r Reminder
		var typ, status string
		err := rows.Scan(
			&r.ID, &r.BusinessID, &r.BookingID, &typ, &r.ScheduledFor,
			&status, &r.SentAt, &r.MessageID, &r.Detail,
			&r.CreatedAt, &r.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("reminders: scan reminder: %w", err)
		}
		r.Type = Type(typ)
		r.Status = Status(status)
		result = append(result, r)
	}
	return result, rows.Err()
}
