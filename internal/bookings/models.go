package bookings

import (
	"time"

	"github.com/google/uuid"
)

// Status tracks the lifecycle of a booking.
type Status string

const (
	StatusPending     Status = "pending"
	StatusConfirmed   Status = "confirmed"
	StatusCompleted   Status = "completed"
	StatusCancelled   Status = "cancelled"
	StatusRescheduled Status = "rescheduled"
)

// ActiveStatuses are the statuses that occupy calendar time and receive reminders.
var ActiveStatuses = []Status{StatusPending, StatusConfirmed, StatusRescheduled}

// IsActive reports whether the status occupies calendar time.
func (s Status) IsActive() bool {
	for _, a := range ActiveStatuses {
		if s == a {
			return true
		}
	}
	return false
}

// Booking represents a scheduled appointment.
type Booking struct {
	ID             uuid.UUID  `json:"id"`
	BusinessID     string     `json:"business_id"`
	CustomerID     uuid.UUID  `json:"customer_id"`
	ServiceTypeID  *uuid.UUID `json:"service_type_id,omitempty"`
	ScheduledStart time.Time  `json:"scheduled_start"`
	ScheduledEnd   *time.Time `json:"scheduled_end,omitempty"`
	Status         Status     `json:"status"`
	Notes          string     `json:"notes,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// EffectiveEnd returns the booking's end, defaulting to start+120m when unset.
func (b *Booking) EffectiveEnd() time.Time {
	if b.ScheduledEnd != nil {
		return *b.ScheduledEnd
	}
	return b.ScheduledStart.Add(120 * time.Minute)
}

// DurationMinutes returns the booked length in minutes.
func (b *Booking) DurationMinutes() int {
	return int(b.EffectiveEnd().Sub(b.ScheduledStart).Minutes())
}
