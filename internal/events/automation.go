// Package events records automation outcomes and webhook delivery dedup state.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/booklinehq/bookline-platform/internal/tenancy"
	"github.com/booklinehq/bookline-platform/pkg/logging"
)

// Event types written by the automation core.
const (
	TypeReminderSent        = "reminder_sent"
	TypeReminderFailed      = "reminder_failed"
	TypeOptionsSent         = "reschedule_options_sent"
	TypeRescheduleConfirmed = "reschedule_confirmed"
	TypeRescheduleHandoff   = "reschedule_handoff"
	TypeBookingConfirmed    = "booking_confirmed"
	TypeSweepCompleted      = "reminder_sweep_completed"
	TypeOptOut              = "sms_opt_out"
)

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// AutomationLog appends automation events for observability. The core never
// reads these rows back; failures to write are logged and swallowed so a
// broken audit trail cannot break the automation itself.
type AutomationLog struct {
	db     execer
	logger *logging.Logger
}

// NewAutomationLog creates an automation event writer.
func NewAutomationLog(db execer, logger *logging.Logger) *AutomationLog {
	if logger == nil {
		logger = logging.Default()
	}
	return &AutomationLog{db: db, logger: logger}
}

// Record appends one event row. payload must be JSON-serializable. An empty
// businessID falls back to the tenancy scope carried on the context, so
// events written deep inside a turn stay attributed to the right business.
func (l *AutomationLog) Record(ctx context.Context, businessID, eventType string, payload map[string]any, success bool, errText string) {
	if l == nil || l.db == nil {
		return
	}
	if businessID == "" {
		businessID, _ = tenancy.BusinessIDFromContext(ctx)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		l.logger.Error("automation event payload not serializable", "event_type", eventType, "error", err)
		data = []byte(`{}`)
	}
	_, err = l.db.Exec(ctx, `
		INSERT INTO automation_events (business_id, event_type, payload, success, error)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''))`,
		businessID, eventType, data, success, errText)
	if err != nil {
		l.logger.Error("automation event write failed", "event_type", eventType, "error", err)
	}
}

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ProcessedStore records webhook events that were already handled.
type ProcessedStore struct {
	db rowQuerier
}

// NewProcessedStore creates a dedup store.
func NewProcessedStore(db rowQuerier) *ProcessedStore {
	if db == nil {
		panic("events: db required")
	}
	return &ProcessedStore{db: db}
}

// AlreadyProcessed checks if we've seen this provider event id.
func (s *ProcessedStore) AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	query := `SELECT 1 FROM processed_events WHERE provider = $1 AND event_id = $2`
	var exists int
	if err := s.db.QueryRow(ctx, query, provider, eventID).Scan(&exists); err != nil {
		if err == pgx.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("events: check processed: %w", err)
	}
	return true, nil
}

// MarkProcessed inserts an event id for the provider, returning false if it already exists.
func (s *ProcessedStore) MarkProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	query := `
		INSERT INTO processed_events (provider, event_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`
	ct, err := s.db.Exec(ctx, query, provider, eventID)
	if err != nil {
		return false, fmt.Errorf("events: mark processed: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}
