// Package conversation handles inbound SMS turns: intent routing,
// pending-selection consumption, and the bookkeeping every turn performs.
package conversation

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/booklinehq/bookline-platform/internal/scheduling"
)

// State is the lifecycle of a conversation.
type State string

const (
	StateOpen    State = "open"
	StateHandoff State = "handoff"
	StateClosed  State = "closed"
)

// ChannelSMS is the only channel the engine currently serves.
const ChannelSMS = "sms"

// Lead statuses driven by booking activity.
const (
	LeadStatusNew       = "new"
	LeadStatusQualified = "qualified"
	LeadStatusBooked    = "booked"
)

// Customer is a phone-identified contact scoped to one business.
type Customer struct {
	ID         uuid.UUID `json:"id"`
	BusinessID string    `json:"business_id"`
	Phone      string    `json:"phone"`
	Name       string    `json:"name,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Conversation is one thread with a customer on a channel. Metadata is a
// free-form map; the pending reschedule selection lives under one key.
type Conversation struct {
	ID            uuid.UUID                  `json:"id"`
	BusinessID    string                     `json:"business_id"`
	CustomerID    uuid.UUID                  `json:"customer_id"`
	LeadID        *uuid.UUID                 `json:"lead_id,omitempty"`
	Channel       string                     `json:"channel"`
	State         State                      `json:"state"`
	Metadata      map[string]json.RawMessage `json:"metadata,omitempty"`
	LastMessageAt *time.Time                 `json:"last_message_at,omitempty"`
	CreatedAt     time.Time                  `json:"created_at"`
}

// Lead tracks the sales-facing status of a customer.
type Lead struct {
	ID             uuid.UUID  `json:"id"`
	BusinessID     string     `json:"business_id"`
	CustomerID     uuid.UUID  `json:"customer_id"`
	Status         string     `json:"status"`
	LastActivityAt *time.Time `json:"last_activity_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Message is one inbound or outbound SMS tied to a conversation.
type Message struct {
	ID             uuid.UUID `json:"id"`
	BusinessID     string    `json:"business_id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	Direction      string    `json:"direction"` // "inbound" or "outbound"
	Body           string    `json:"body"`
	FromPhone      string    `json:"from_phone"`
	ToPhone        string    `json:"to_phone"`
	// ProviderMessageID dedups redelivered webhooks.
	ProviderMessageID string    `json:"provider_message_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// AIRun is the audit record written after every handled turn.
type AIRun struct {
	ID             uuid.UUID `json:"id"`
	BusinessID     string    `json:"business_id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	Intent         string    `json:"intent"`
	Outcome        string    `json:"outcome"`
	DriftScore     float64   `json:"drift_score"`
	Tokens         int       `json:"tokens"`
	LatencyMS      int64     `json:"latency_ms"`
	CreatedAt      time.Time `json:"created_at"`
}

// pendingSelectionKey is the metadata slot holding the active option set.
const pendingSelectionKey = "pending_reschedule"

// PendingSelectionTTL is how long an offered option set stays selectable.
const PendingSelectionTTL = 60 * time.Minute

// MaxPendingOptions caps how many slots one batch may carry.
const MaxPendingOptions = 9

// PendingSelection is the ephemeral option set awaiting a numeric reply.
// A conversation holds at most one; new batches replace it wholesale.
type PendingSelection struct {
	BookingID uuid.UUID               `json:"booking_id"`
	Options   []scheduling.SlotOption `json:"options"`
	Batch     int                     `json:"batch"`
	CreatedAt time.Time               `json:"created_at"`
	ExpiresAt time.Time               `json:"expires_at"`
}

// Expired reports whether the option set is no longer selectable.
func (p *PendingSelection) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

// Option returns the slot with the given 1-based index, or nil.
func (p *PendingSelection) Option(index int) *scheduling.SlotOption {
	for i := range p.Options {
		if p.Options[i].Index == index {
			return &p.Options[i]
		}
	}
	return nil
}

// LastStart returns the start of the latest option in the batch.
func (p *PendingSelection) LastStart() time.Time {
	var last time.Time
	for _, o := range p.Options {
		if o.Start.After(last) {
			last = o.Start
		}
	}
	return last
}

// PendingSelection decodes the selection from conversation metadata, or nil.
func (c *Conversation) PendingSelection() *PendingSelection {
	raw, ok := c.Metadata[pendingSelectionKey]
	if !ok || len(raw) == 0 {
		return nil
	}
	var p PendingSelection
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil
	}
	return &p
}
