package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
	"unicode/utf8"

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

// Store persists customers, conversations, leads, messages, and AI-run audit
// rows. Everything is scoped by business id.
type Store struct {
	db DB
}

// NewStore creates a conversation store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// ResolveCustomer finds or creates the customer for a sender phone.
func (s *Store) ResolveCustomer(ctx context.Context, businessID, phone string) (*Customer, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO customers (id, business_id, phone, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (business_id, phone) DO UPDATE SET phone = EXCLUDED.phone
		RETURNING id, business_id, phone, COALESCE(name, ''), created_at`,
		uuid.New(), businessID, phone)

	var c Customer
	if err := row.Scan(&c.ID, &c.BusinessID, &c.Phone, &c.Name, &c.CreatedAt); err != nil {
		return nil, fmt.Errorf("conversation: resolve customer: %w", err)
	}
	return &c, nil
}

// ContactPhone resolves a customer's SMS-reachable number. Satisfies the
// reminder sweep's directory contract.
func (s *Store) ContactPhone(ctx context.Context, businessID string, customerID uuid.UUID) (string, error) {
	var phone string
	err := s.db.QueryRow(ctx, `
		SELECT phone FROM customers
		WHERE business_id = $1 AND id = $2`, businessID, customerID).Scan(&phone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("conversation: contact phone: %w", err)
	}
	return phone, nil
}

const conversationColumns = `id, business_id, customer_id, lead_id, channel, state, metadata, last_message_at, created_at`

// OpenConversation returns the customer's current open or handoff
// conversation on the channel, creating a fresh open one when none exists.
// At most one open/handoff conversation exists per (business, customer, channel).
func (s *Store) OpenConversation(ctx context.Context, businessID string, customerID uuid.UUID, channel string) (*Conversation, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE business_id = $1 AND customer_id = $2 AND channel = $3
			AND state IN ('open', 'handoff')
		ORDER BY created_at DESC
		LIMIT 1`, businessID, customerID, channel)

	conv, err := scanConversation(row)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("conversation: find open: %w", err)
	}

	row = s.db.QueryRow(ctx, `
		INSERT INTO conversations (id, business_id, customer_id, channel, state, metadata, created_at)
		VALUES ($1, $2, $3, $4, 'open', '{}'::jsonb, now())
		RETURNING `+conversationColumns,
		uuid.New(), businessID, customerID, channel)
	conv, err = scanConversation(row)
	if err != nil {
		return nil, fmt.Errorf("conversation: create: %w", err)
	}
	return conv, nil
}

// SetPendingSelection replaces the conversation's option set wholesale.
func (s *Store) SetPendingSelection(ctx context.Context, businessID string, conversationID uuid.UUID, sel *PendingSelection) error {
	data, err := json.Marshal(sel)
	if err != nil {
		return fmt.Errorf("conversation: marshal pending selection: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		UPDATE conversations
		SET metadata = jsonb_set(COALESCE(metadata, '{}'::jsonb), '{pending_reschedule}', $3::jsonb)
		WHERE business_id = $1 AND id = $2`, businessID, conversationID, data)
	if err != nil {
		return fmt.Errorf("conversation: set pending selection: %w", err)
	}
	return nil
}

// ClearPendingSelection removes the option set from conversation metadata.
func (s *Store) ClearPendingSelection(ctx context.Context, businessID string, conversationID uuid.UUID) error {
	_, err := s.db.Exec(ctx, `
		UPDATE conversations
		SET metadata = COALESCE(metadata, '{}'::jsonb) - 'pending_reschedule'
		WHERE business_id = $1 AND id = $2`, businessID, conversationID)
	if err != nil {
		return fmt.Errorf("conversation: clear pending selection: %w", err)
	}
	return nil
}

// Touch bumps the conversation's last_message_at and state.
func (s *Store) Touch(ctx context.Context, businessID string, conversationID uuid.UUID, state State, at time.Time) error {
	_, err := s.db.Exec(ctx, `
		UPDATE conversations
		SET state = $3, last_message_at = $4
		WHERE business_id = $1 AND id = $2`, businessID, conversationID, string(state), at)
	if err != nil {
		return fmt.Errorf("conversation: touch: %w", err)
	}
	return nil
}

// SaveInbound upserts an inbound message keyed on the provider's message id,
// so redelivered webhooks never produce duplicate rows.
func (s *Store) SaveInbound(ctx context.Context, m *Message) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO messages (id, business_id, conversation_id, direction, body, from_phone, to_phone, provider_message_id, created_at)
		VALUES ($1, $2, $3, 'inbound', $4, $5, $6, NULLIF($7, ''), now())
		ON CONFLICT (provider_message_id) DO UPDATE
		SET body = EXCLUDED.body, conversation_id = EXCLUDED.conversation_id`,
		m.ID, m.BusinessID, m.ConversationID, m.Body, m.FromPhone, m.ToPhone, m.ProviderMessageID)
	if err != nil {
		return fmt.Errorf("conversation: save inbound: %w", err)
	}
	return nil
}

// SaveOutbound records a reply the engine produced.
func (s *Store) SaveOutbound(ctx context.Context, m *Message) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO messages (id, business_id, conversation_id, direction, body, from_phone, to_phone, provider_message_id, created_at)
		VALUES ($1, $2, $3, 'outbound', $4, $5, $6, NULLIF($7, ''), now())`,
		m.ID, m.BusinessID, m.ConversationID, m.Body, m.FromPhone, m.ToPhone, m.ProviderMessageID)
	if err != nil {
		return fmt.Errorf("conversation: save outbound: %w", err)
	}
	return nil
}

// EnsureLead finds or creates the lead tied to a customer.
func (s *Store) EnsureLead(ctx context.Context, businessID string, customerID uuid.UUID) (*Lead, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO leads (id, business_id, customer_id, status, created_at)
		VALUES ($1, $2, $3, 'new', now())
		ON CONFLICT (business_id, customer_id) DO UPDATE SET status = leads.status
		RETURNING id, business_id, customer_id, status, last_activity_at, created_at`,
		uuid.New(), businessID, customerID)

	var l Lead
	if err := row.Scan(&l.ID, &l.BusinessID, &l.CustomerID, &l.Status, &l.LastActivityAt, &l.CreatedAt); err != nil {
		return nil, fmt.Errorf("conversation: ensure lead: %w", err)
	}
	return &l, nil
}

// SetLeadStatus updates a lead's status and activity timestamp.
func (s *Store) SetLeadStatus(ctx context.Context, businessID string, leadID uuid.UUID, status string, at time.Time) error {
	_, err := s.db.Exec(ctx, `
		UPDATE leads
		SET status = $3, last_activity_at = $4
		WHERE business_id = $1 AND id = $2`, businessID, leadID, status, at)
	if err != nil {
		return fmt.Errorf("conversation: set lead status: %w", err)
	}
	return nil
}

// TouchLead bumps a lead's activity timestamp without changing status.
func (s *Store) TouchLead(ctx context.Context, businessID string, leadID uuid.UUID, at time.Time) error {
	_, err := s.db.Exec(ctx, `
		UPDATE leads
		SET last_activity_at = $3
		WHERE business_id = $1 AND id = $2`, businessID, leadID, at)
	if err != nil {
		return fmt.Errorf("conversation: touch lead: %w", err)
	}
	return nil
}

// RecordAIRun appends the audit row for a handled turn.
func (s *Store) RecordAIRun(ctx context.Context, run *AIRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO ai_runs (id, business_id, conversation_id, intent, outcome, drift_score, tokens, latency_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())`,
		run.ID, run.BusinessID, run.ConversationID, run.Intent, run.Outcome,
		run.DriftScore, run.Tokens, run.LatencyMS)
	if err != nil {
		return fmt.Errorf("conversation: record ai run: %w", err)
	}
	return nil
}

// EstimateTokens approximates the model-token cost of a text for the audit
// trail: character count over four, rounded up, never below one.
func EstimateTokens(text string) int {
	n := int(math.Ceil(float64(utf8.RuneCountInString(text)) / 4))
	if n < 1 {
		n = 1
	}
	return n
}

func scanConversation(row pgx.Row) (*Conversation, error) {
	var c Conversation
	var state string
	var metadata []byte
	err := row.Scan(&c.ID, &c.BusinessID, &c.CustomerID, &c.LeadID, &c.Channel,
		&state, &metadata, &c.LastMessageAt, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	c.State = State(state)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &c.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return &c, nil
}
