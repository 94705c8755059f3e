package conversation

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var storeNow = time.Date(2025, 3, 4, 15, 0, 0, 0, time.UTC)

func conversationRows(mock pgxmock.PgxPoolIface, conv *Conversation, metadata string) *pgxmock.Rows {
	return mock.NewRows([]string{
		"id", "business_id", "customer_id", "lead_id", "channel", "state",
		"metadata", "last_message_at", "created_at",
	}).AddRow(conv.ID, conv.BusinessID, conv.CustomerID, conv.LeadID, conv.Channel,
		string(conv.State), []byte(metadata), conv.LastMessageAt, conv.CreatedAt)
}

func TestResolveCustomerUpsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	customerID := uuid.New()
	mock.ExpectQuery("INSERT INTO customers").
		WithArgs(pgxmock.AnyArg(), "biz-1", "+15557770000").
		WillReturnRows(mock.NewRows([]string{"id", "business_id", "phone", "coalesce", "created_at"}).
			AddRow(customerID, "biz-1", "+15557770000", "Dana", storeNow))

	store := NewStore(mock)
	c, err := store.ResolveCustomer(context.Background(), "biz-1", "+15557770000")
	require.NoError(t, err)
	assert.Equal(t, customerID, c.ID)
	assert.Equal(t, "Dana", c.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestContactPhoneMissingCustomer(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	customerID := uuid.New()
	mock.ExpectQuery("SELECT phone FROM customers").
		WithArgs("biz-1", customerID).
		WillReturnRows(mock.NewRows([]string{"phone"}))

	store := NewStore(mock)
	phone, err := store.ContactPhone(context.Background(), "biz-1", customerID)
	require.NoError(t, err)
	assert.Empty(t, phone)
}

func TestOpenConversationReturnsExisting(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	customerID := uuid.New()
	existing := &Conversation{
		ID:         uuid.New(),
		BusinessID: "biz-1",
		CustomerID: customerID,
		Channel:    ChannelSMS,
		State:      StateHandoff,
		CreatedAt:  storeNow,
	}
	metadata := `{"pending_reschedule":{"batch":2}}`
	mock.ExpectQuery("SELECT (.+) FROM conversations").
		WithArgs("biz-1", customerID, ChannelSMS).
		WillReturnRows(conversationRows(mock, existing, metadata))

	store := NewStore(mock)
	conv, err := store.OpenConversation(context.Background(), "biz-1", customerID, ChannelSMS)
	require.NoError(t, err)
	assert.Equal(t, existing.ID, conv.ID)
	assert.Equal(t, StateHandoff, conv.State)
	assert.Contains(t, conv.Metadata, "pending_reschedule")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenConversationCreatesWhenNoneOpen(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	customerID := uuid.New()
	created := &Conversation{
		ID:         uuid.New(),
		BusinessID: "biz-1",
		CustomerID: customerID,
		Channel:    ChannelSMS,
		State:      StateOpen,
		CreatedAt:  storeNow,
	}
	// Empty result set makes the lookup report ErrNoRows, forcing the insert.
	mock.ExpectQuery("SELECT (.+) FROM conversations").
		WithArgs("biz-1", customerID, ChannelSMS).
		WillReturnRows(mock.NewRows([]string{
			"id", "business_id", "customer_id", "lead_id", "channel", "state",
			"metadata", "last_message_at", "created_at",
		}))
	mock.ExpectQuery("INSERT INTO conversations").
		WithArgs(pgxmock.AnyArg(), "biz-1", customerID, ChannelSMS).
		WillReturnRows(conversationRows(mock, created, "{}"))

	store := NewStore(mock)
	conv, err := store.OpenConversation(context.Background(), "biz-1", customerID, ChannelSMS)
	require.NoError(t, err)
	assert.Equal(t, created.ID, conv.ID)
	assert.Equal(t, StateOpen, conv.State)
	assert.Nil(t, conv.PendingSelection())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetAndClearPendingSelection(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	convID := uuid.New()
	sel := &PendingSelection{
		BookingID: uuid.New(),
		Batch:     1,
		CreatedAt: storeNow,
		ExpiresAt: storeNow.Add(PendingSelectionTTL),
	}
	data, err := json.Marshal(sel)
	require.NoError(t, err)

	mock.ExpectExec("UPDATE conversations").
		WithArgs("biz-1", convID, data).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE conversations").
		WithArgs("biz-1", convID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	store := NewStore(mock)
	require.NoError(t, store.SetPendingSelection(context.Background(), "biz-1", convID, sel))
	require.NoError(t, store.ClearPendingSelection(context.Background(), "biz-1", convID))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveInboundDedupsOnProviderID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	convID := uuid.New()
	mock.ExpectExec("INSERT INTO messages").
		WithArgs(pgxmock.AnyArg(), "biz-1", convID, "hi there", "+15557770000", "+15550001111", "prov-1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	store := NewStore(mock)
	err = store.SaveInbound(context.Background(), &Message{
		BusinessID:        "biz-1",
		ConversationID:    convID,
		Body:              "hi there",
		FromPhone:         "+15557770000",
		ToPhone:           "+15550001111",
		ProviderMessageID: "prov-1",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureLeadKeepsExistingStatus(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	customerID := uuid.New()
	leadID := uuid.New()
	mock.ExpectQuery("INSERT INTO leads").
		WithArgs(pgxmock.AnyArg(), "biz-1", customerID).
		WillReturnRows(mock.NewRows([]string{
			"id", "business_id", "customer_id", "status", "last_activity_at", "created_at",
		}).AddRow(leadID, "biz-1", customerID, LeadStatusQualified, &storeNow, storeNow))

	store := NewStore(mock)
	lead, err := store.EnsureLead(context.Background(), "biz-1", customerID)
	require.NoError(t, err)
	assert.Equal(t, leadID, lead.ID)
	// The upsert's no-op SET preserves whatever status the lead already earned.
	assert.Equal(t, LeadStatusQualified, lead.Status)
}

func TestRecordAIRun(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	convID := uuid.New()
	mock.ExpectExec("INSERT INTO ai_runs").
		WithArgs(pgxmock.AnyArg(), "biz-1", convID, "confirm", OutcomeCompleted, 0.0, 12, int64(35)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	store := NewStore(mock)
	err = store.RecordAIRun(context.Background(), &AIRun{
		BusinessID:     "biz-1",
		ConversationID: convID,
		Intent:         "confirm",
		Outcome:        OutcomeCompleted,
		Tokens:         12,
		LatencyMS:      35,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
