// Package reminders seeds, sweeps, and delivers time-based booking reminders.
package reminders

import (
	"time"

	"github.com/google/uuid"
)

// Type identifies which offset a reminder fires at.
type Type string

const (
	Type24Hour Type = "24h"
	Type2Hour  Type = "2h"
)

// Types lists all reminder types seeded per booking, in delivery order.
var Types = []Type{Type24Hour, Type2Hour}

// Offset returns how long before the booking start this type fires.
func (t Type) Offset() time.Duration {
	switch t {
	case Type24Hour:
		return 24 * time.Hour
	case Type2Hour:
		return 2 * time.Hour
	}
	return 0
}

// Status tracks delivery state. Rows are never deleted; skipped and error
// rows remain as the audit trail.
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusSkipped Status = "skipped"
	StatusError   Status = "error"
)

// Reminder is one scheduled notification for a booking.
type Reminder struct {
	ID           uuid.UUID `json:"id"`
	BusinessID   string    `json:"business_id"`
	BookingID    uuid.UUID `json:"booking_id"`
	Type         Type      `json:"type"`
	ScheduledFor time.Time `json:"scheduled_for"`
	Status       Status    `json:"status"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
	// MessageID is the gateway's id for the delivered message.
	MessageID string `json:"message_id,omitempty"`
	// Detail carries the skip reason or the gateway error text.
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
