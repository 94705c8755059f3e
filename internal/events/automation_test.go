package events

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/booklinehq/bookline-platform/internal/tenancy"
)

func TestAutomationLogRecord(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO automation_events").
		WithArgs("biz-1", TypeReminderSent, pgxmock.AnyArg(), true, "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	log := NewAutomationLog(mock, nil)
	log.Record(context.Background(), "biz-1", TypeReminderSent, map[string]any{"booking_id": "b-1"}, true, "")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAutomationLogRecordSwallowsWriteError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO automation_events").
		WithArgs("biz-1", TypeReminderFailed, pgxmock.AnyArg(), false, "send timed out").
		WillReturnError(assert.AnError)

	log := NewAutomationLog(mock, nil)
	log.Record(context.Background(), "biz-1", TypeReminderFailed, nil, false, "send timed out")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAutomationLogRecordScopesFromContext(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO automation_events").
		WithArgs("biz-2", TypeRescheduleConfirmed, pgxmock.AnyArg(), true, "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	ctx := tenancy.WithBusinessID(context.Background(), "biz-2")
	log := NewAutomationLog(mock, nil)
	log.Record(ctx, "", TypeRescheduleConfirmed, nil, true, "")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkProcessedFirstDelivery(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO processed_events").
		WithArgs("telnyx", "evt-123").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	store := NewProcessedStore(mock)
	fresh, err := store.MarkProcessed(context.Background(), "telnyx", "evt-123")
	require.NoError(t, err)
	assert.True(t, fresh)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkProcessedDuplicateDelivery(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO processed_events").
		WithArgs("telnyx", "evt-123").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	store := NewProcessedStore(mock)
	fresh, err := store.MarkProcessed(context.Background(), "telnyx", "evt-123")
	require.NoError(t, err)
	assert.False(t, fresh)
}

func TestAlreadyProcessed(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT 1 FROM processed_events").
		WithArgs("twilio", "SM-9").
		WillReturnRows(pgxmock.NewRows([]string{"?column?"}).AddRow(1))

	store := NewProcessedStore(mock)
	seen, err := store.AlreadyProcessed(context.Background(), "twilio", "SM-9")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestAlreadyProcessedMiss(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT 1 FROM processed_events").
		WithArgs("twilio", "SM-10").
		WillReturnRows(pgxmock.NewRows([]string{"?column?"}))

	store := NewProcessedStore(mock)
	seen, err := store.AlreadyProcessed(context.Background(), "twilio", "SM-10")
	require.NoError(t, err)
	assert.False(t, seen)
}
