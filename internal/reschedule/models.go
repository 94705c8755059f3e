// Package reschedule tracks per-booking reschedule negotiations for staff
// visibility: status, SLA deadline, escalation, and the chosen option.
package reschedule

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle of a reschedule negotiation.
type Status string

const (
	StatusPending     Status = "pending"
	StatusOptionsSent Status = "options_sent"
	StatusConfirmed   Status = "confirmed"
	StatusHandoff     Status = "handoff"
	StatusClosed      Status = "closed"
)

// Handoff and closure reasons written by the conversation engine.
const (
	ReasonOptionsExpired     = "options_expired"
	ReasonNoMoreSlots        = "no_more_slots"
	ReasonBookingMissing     = "booking_missing"
	ReasonOptionsUnavailable = "auto_options_unavailable"
	ReasonCustomerConfirmed  = "customer_confirmed"
	ReasonStaffClosed        = "staff_closed"
)

// SLA windows applied on transition.
const (
	SLAOptionsWindow = 120 * time.Minute
	SLAHandoffWindow = 30 * time.Minute
)

// Request is the durable negotiation record, one per booking.
type Request struct {
	ID             uuid.UUID  `json:"id"`
	BusinessID     string     `json:"business_id"`
	BookingID      uuid.UUID  `json:"booking_id"`
	Status         Status     `json:"status"`
	RequestedAt    time.Time  `json:"requested_at"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	AssignedTo     string     `json:"assigned_to,omitempty"`
	AssignedAt     *time.Time `json:"assigned_at,omitempty"`
	SLADueAt       *time.Time `json:"sla_due_at,omitempty"`
	EscalationLevel int       `json:"escalation_level"`
	LastEscalatedAt *time.Time `json:"last_escalated_at,omitempty"`
	// LastCustomerMessage is the most recent customer text that drove a transition.
	LastCustomerMessage string `json:"last_customer_message,omitempty"`
	OptionBatch         int    `json:"option_batch"`
	SelectedIndex       *int       `json:"selected_index,omitempty"`
	SelectedStart       *time.Time `json:"selected_start,omitempty"`
	SelectedEnd         *time.Time `json:"selected_end,omitempty"`
	Reason              string     `json:"reason,omitempty"`
	Note                string     `json:"note,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`

	// Derived at read time, never stored.
	Overdue   bool `json:"overdue"`
	Escalated bool `json:"escalated"`
}

// actionable statuses count toward the overdue computation.
func (s Status) actionable() bool {
	return s == StatusPending || s == StatusOptionsSent || s == StatusHandoff
}
