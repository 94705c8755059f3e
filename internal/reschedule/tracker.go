package reschedule

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/booklinehq/bookline-platform/pkg/logging"
)

var tracer = otel.Tracer("bookline/reschedule-tracker")

// ErrNotFound is returned when no negotiation exists for the booking.
var ErrNotFound = errors.New("reschedule: request not found")

const requestColumns = `id, business_id, booking_id, status, requested_at, resolved_at,
	assigned_to, assigned_at, sla_due_at, escalation_level, last_escalated_at,
	last_customer_message, option_batch, selected_index, selected_start, selected_end,
	reason, note, created_at, updated_at`

// Tracker persists reschedule negotiations. All writes upsert on booking id:
// a booking has at most one negotiation, and at-least-once webhook delivery
// means any transition may be replayed.
type Tracker struct {
	db     *sql.DB
	logger *logging.Logger
	now    func() time.Time
}

// NewTracker creates a reschedule request tracker.
func NewTracker(db *sql.DB, logger *logging.Logger) *Tracker {
	if logger == nil {
		logger = logging.Default()
	}
	return &Tracker{
		db:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// UpsertOptions records that a fresh option batch went out to the customer.
// Resets the SLA clock, escalation, and any stale selection from a previous
// negotiation cycle on the same booking.
func (t *Tracker) UpsertOptions(ctx context.Context, businessID string, bookingID uuid.UUID, batch int, customerMessage string) error {
	ctx, span := tracer.Start(ctx, "reschedule.upsert_options")
	defer span.End()
	span.SetAttributes(
		attribute.String("bookline.business_id", businessID),
		attribute.Int("reschedule.batch", batch),
	)

	now := t.now()
	slaDue := now.Add(SLAOptionsWindow)
	query := `
		INSERT INTO reschedule_requests (
			id, business_id, booking_id, status, requested_at, resolved_at, sla_due_at,
			escalation_level, last_customer_message, option_batch, reason, created_at, updated_at
		) VALUES ($1, $2, $3, 'options_sent', $4, NULL, $5, 0, $6, $7, '', $4, $4)
		ON CONFLICT (booking_id) DO UPDATE SET
			status = 'options_sent', requested_at = $4, resolved_at = NULL, sla_due_at = $5,
			escalation_level = 0, last_escalated_at = NULL, last_customer_message = $6,
			option_batch = $7, selected_index = NULL, selected_start = NULL,
			selected_end = NULL, reason = '', updated_at = $4
		WHERE reschedule_requests.business_id = $2
	`
	_, err := t.db.ExecContext(ctx, query, uuid.New(), businessID, bookingID, now, slaDue, customerMessage, batch)
	if err != nil {
		return fmt.Errorf("reschedule: upsert options: %w", err)
	}

	t.logger.Info("reschedule options recorded",
		"booking_id", bookingID, "batch", batch, "sla_due_at", slaDue)
	return nil
}

// MarkConfirmed records the customer's slot choice. Terminal for this cycle;
// a later reschedule re-upserts the same row.
func (t *Tracker) MarkConfirmed(ctx context.Context, businessID string, bookingID uuid.UUID, selectedIndex int, start, end time.Time) error {
	ctx, span := tracer.Start(ctx, "reschedule.mark_confirmed")
	defer span.End()
	span.SetAttributes(attribute.Int("reschedule.selected_index", selectedIndex))

	now := t.now()
	query := `
		INSERT INTO reschedule_requests (
			id, business_id, booking_id, status, requested_at, resolved_at, sla_due_at,
			escalation_level, option_batch, selected_index, selected_start, selected_end,
			reason, created_at, updated_at
		) VALUES ($1, $2, $3, 'confirmed', $4, $4, NULL, 0, 0, $5, $6, $7, '', $4, $4)
		ON CONFLICT (booking_id) DO UPDATE SET
			status = 'confirmed', resolved_at = $4, sla_due_at = NULL, escalation_level = 0,
			selected_index = $5, selected_start = $6, selected_end = $7, reason = '', updated_at = $4
		WHERE reschedule_requests.business_id = $2
	`
	_, err := t.db.ExecContext(ctx, query, uuid.New(), businessID, bookingID, now, selectedIndex, start, end)
	if err != nil {
		return fmt.Errorf("reschedule: mark confirmed: %w", err)
	}

	t.logger.Info("reschedule confirmed",
		"booking_id", bookingID, "selected_index", selectedIndex, "start", start)
	return nil
}

// MarkHandoff escalates the negotiation to a human with a short SLA window.
func (t *Tracker) MarkHandoff(ctx context.Context, businessID string, bookingID uuid.UUID, reason string) error {
	ctx, span := tracer.Start(ctx, "reschedule.mark_handoff")
	defer span.End()
	span.SetAttributes(attribute.String("reschedule.reason", reason))

	now := t.now()
	slaDue := now.Add(SLAHandoffWindow)
	query := `
		INSERT INTO reschedule_requests (
			id, business_id, booking_id, status, requested_at, resolved_at, sla_due_at,
			escalation_level, option_batch, reason, created_at, updated_at
		) VALUES ($1, $2, $3, 'handoff', $4, NULL, $5, 0, 0, $6, $4, $4)
		ON CONFLICT (booking_id) DO UPDATE SET
			status = 'handoff', resolved_at = NULL, sla_due_at = $5, escalation_level = 0,
			last_escalated_at = NULL, reason = $6, updated_at = $4
		WHERE reschedule_requests.business_id = $2
	`
	_, err := t.db.ExecContext(ctx, query, uuid.New(), businessID, bookingID, now, slaDue, reason)
	if err != nil {
		return fmt.Errorf("reschedule: mark handoff: %w", err)
	}

	t.logger.Info("reschedule handed off", "booking_id", bookingID, "reason", reason)
	return nil
}

// MarkClosed resolves the negotiation without a slot change.
func (t *Tracker) MarkClosed(ctx context.Context, businessID string, bookingID uuid.UUID, reason string) error {
	ctx, span := tracer.Start(ctx, "reschedule.mark_closed")
	defer span.End()

	now := t.now()
	query := `
		INSERT INTO reschedule_requests (
			id, business_id, booking_id, status, requested_at, resolved_at, sla_due_at,
			escalation_level, option_batch, reason, created_at, updated_at
		) VALUES ($1, $2, $3, 'closed', $4, $4, NULL, 0, 0, $5, $4, $4)
		ON CONFLICT (booking_id) DO UPDATE SET
			status = 'closed', resolved_at = $4, sla_due_at = NULL, escalation_level = 0,
			reason = $5, updated_at = $4
		WHERE reschedule_requests.business_id = $2
	`
	_, err := t.db.ExecContext(ctx, query, uuid.New(), businessID, bookingID, now, reason)
	if err != nil {
		return fmt.Errorf("reschedule: mark closed: %w", err)
	}
	return nil
}

// Patch carries a staff-driven partial update. Nil fields are left untouched.
type Patch struct {
	AssignedTo *string
	SLADueAt   *time.Time
	Note       *string
	Status     *Status
}

// Update merges the supplied fields into an existing request. Driving status
// to closed zeroes the SLA deadline unless the same call supplies a new one.
func (t *Tracker) Update(ctx context.Context, businessID string, bookingID uuid.UUID, patch Patch) error {
	ctx, span := tracer.Start(ctx, "reschedule.update")
	defer span.End()

	now := t.now()
	set := "updated_at = $1"
	args := []any{now}
	next := 2

	add := func(clause string, value any) {
		set += fmt.Sprintf(", %s = $%d", clause, next)
		args = append(args, value)
		next++
	}

	if patch.AssignedTo != nil {
		add("assigned_to", *patch.AssignedTo)
		add("assigned_at", now)
	}
	if patch.Note != nil {
		add("note", *patch.Note)
	}
	if patch.SLADueAt != nil {
		add("sla_due_at", *patch.SLADueAt)
	}
	if patch.Status != nil {
		add("status", string(*patch.Status))
		switch *patch.Status {
		case StatusClosed:
			add("resolved_at", now)
			if patch.SLADueAt == nil {
				set += ", sla_due_at = NULL, escalation_level = 0"
			}
		case StatusConfirmed:
			add("resolved_at", now)
		default:
			set += ", resolved_at = NULL"
		}
	}

	query := fmt.Sprintf(`
		UPDATE reschedule_requests SET %s
		WHERE business_id = $%d AND booking_id = $%d`, set, next, next+1)
	args = append(args, businessID, bookingID)

	result, err := t.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("reschedule: update: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// Get returns the negotiation for a booking with derived flags filled in.
func (t *Tracker) Get(ctx context.Context, businessID string, bookingID uuid.UUID) (*Request, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM reschedule_requests
		WHERE business_id = $1 AND booking_id = $2
	`
	row := t.db.QueryRowContext(ctx, query, businessID, bookingID)
	r, err := scanRequest(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reschedule: get: %w", err)
	}
	t.derive(r)
	return r, nil
}

// ListQueue returns open negotiations for the staff queue, most urgent first.
// Overdue and escalated are computed here, never stored.
func (t *Tracker) ListQueue(ctx context.Context, businessID string, limit int) ([]Request, error) {
	ctx, span := tracer.Start(ctx, "reschedule.list_queue")
	defer span.End()

	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT ` + requestColumns + `
		FROM reschedule_requests
		WHERE business_id = $1 AND status != 'closed'
		ORDER BY sla_due_at ASC NULLS LAST, requested_at ASC
		LIMIT $2
	`
	rows, err := t.db.QueryContext(ctx, query, businessID, limit)
	if err != nil {
		return nil, fmt.Errorf("reschedule: list queue: %w", err)
	}
	defer rows.Close()

	var result []Request
	for rows.Next() {
		r, err := scanRequest(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("reschedule: scan request: %w", err)
		}
		t.derive(r)
		result = append(result, *r)
	}
	return result, rows.Err()
}

// EscalationSweep bumps the escalation level of every overdue open request
// and stamps when it happened. Returns how many rows escalated.
func (t *Tracker) EscalationSweep(ctx context.Context, businessID string) (int64, error) {
	ctx, span := tracer.Start(ctx, "reschedule.escalation_sweep")
	defer span.End()

	now := t.now()
	query := `
		UPDATE reschedule_requests
		SET escalation_level = escalation_level + 1, last_escalated_at = $1, updated_at = $1
		WHERE business_id = $2 AND sla_due_at IS NOT NULL AND sla_due_at < $1
			AND status IN ('pending', 'options_sent', 'handoff')
	`
	result, err := t.db.ExecContext(ctx, query, now, businessID)
	if err != nil {
		return 0, fmt.Errorf("reschedule: escalation sweep: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows > 0 {
		t.logger.Info("reschedule requests escalated", "business_id", businessID, "count", rows)
	}
	span.SetAttributes(attribute.Int64("reschedule.escalated", rows))
	return rows, nil
}

func (t *Tracker) derive(r *Request) {
	now := t.now()
	r.Overdue = r.SLADueAt != nil && r.SLADueAt.Before(now) && r.Status.actionable()
	r.Escalated = r.EscalationLevel > 0
}

func scanRequest(scan func(dest ...any) error) (*Request, error) {
	var r Request
	var status string
	var assignedTo, lastMessage, reason, note sql.NullString
	var resolvedAt, assignedAt, slaDueAt, lastEscalatedAt, selectedStart, selectedEnd sql.NullTime
	var selectedIndex sql.NullInt64

	err := scan(
		&r.ID, &r.BusinessID, &r.BookingID, &status, &r.RequestedAt, &resolvedAt,
		&assignedTo, &assignedAt, &slaDueAt, &r.EscalationLevel, &lastEscalatedAt,
		&lastMessage, &r.OptionBatch, &selectedIndex, &selectedStart, &selectedEnd,
		&reason, &note, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.Status = Status(status)
	r.AssignedTo = assignedTo.String
	r.LastCustomerMessage = lastMessage.String
	r.Reason = reason.String
	r.Note = note.String
	if resolvedAt.Valid {
		r.ResolvedAt = &resolvedAt.Time
	}
	if assignedAt.Valid {
		r.AssignedAt = &assignedAt.Time
	}
	if slaDueAt.Valid {
		r.SLADueAt = &slaDueAt.Time
	}
	if lastEscalatedAt.Valid {
		r.LastEscalatedAt = &lastEscalatedAt.Time
	}
	if selectedIndex.Valid {
		idx := int(selectedIndex.Int64)
		r.SelectedIndex = &idx
	}
	if selectedStart.Valid {
		r.SelectedStart = &selectedStart.Time
	}
	if selectedEnd.Valid {
		r.SelectedEnd = &selectedEnd.Time
	}
	return &r, nil
}
