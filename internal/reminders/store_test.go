package reminders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefreshSeedsBothTypes(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	bookingID := uuid.New()
	start := time.Date(2025, 6, 10, 15, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO reminders").
		WithArgs(pgxmock.AnyArg(), "biz-1", bookingID, "24h", start.Add(-24*time.Hour)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO reminders").
		WithArgs(pgxmock.AnyArg(), "biz-1", bookingID, "2h", start.Add(-2*time.Hour)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	store := NewStore(mock)
	seeded, err := store.Refresh(context.Background(), "biz-1", bookingID, start)
	require.NoError(t, err)
	assert.Equal(t, 2, seeded)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshLeavesSentRowsAlone(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	bookingID := uuid.New()
	start := time.Date(2025, 6, 10, 15, 0, 0, 0, time.UTC)

	// The conflict guard filters out sent/error rows, so the upsert touches
	// nothing and the tally stays at zero.
	mock.ExpectExec("INSERT INTO reminders").
		WithArgs(pgxmock.AnyArg(), "biz-1", bookingID, "24h", start.Add(-24*time.Hour)).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectExec("INSERT INTO reminders").
		WithArgs(pgxmock.AnyArg(), "biz-1", bookingID, "2h", start.Add(-2*time.Hour)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	store := NewStore(mock)
	seeded, err := store.Refresh(context.Background(), "biz-1", bookingID, start)
	require.NoError(t, err)
	assert.Equal(t, 1, seeded)
}

func TestSkipPending(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	bookingID := uuid.New()
	mock.ExpectExec("UPDATE reminders").
		WithArgs("biz-1", bookingID, "booking_cancelled").
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	store := NewStore(mock)
	n, err := store.SkipPending(context.Background(), "biz-1", bookingID, "booking_cancelled")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestListDueCapsBatchSize(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	asOf := time.Date(2025, 6, 10, 15, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT (.+) FROM reminders").
		WithArgs("biz-1", asOf, MaxDueBatch).
		WillReturnRows(reminderRows())

	store := NewStore(mock)
	_, err = store.ListDue(context.Background(), "biz-1", asOf, 10_000)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListDueScansRows(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	bookingID := uuid.New()
	asOf := time.Date(2025, 6, 10, 15, 0, 0, 0, time.UTC)
	scheduled := asOf.Add(-10 * time.Minute)

	mock.ExpectQuery("SELECT (.+) FROM reminders").
		WithArgs("biz-1", asOf, 50).
		WillReturnRows(reminderRows().AddRow(
			id, "biz-1", bookingID, "24h", scheduled, "pending",
			nil, "", "", asOf.Add(-time.Hour), asOf.Add(-time.Hour),
		))

	store := NewStore(mock)
	due, err := store.ListDue(context.Background(), "biz-1", asOf, 50)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, Type24Hour, due[0].Type)
	assert.Equal(t, StatusPending, due[0].Status)
	assert.Equal(t, bookingID, due[0].BookingID)
}

func TestMarkSentRequiresPendingRow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	at := time.Date(2025, 6, 10, 15, 0, 0, 0, time.UTC)
	mock.ExpectExec("UPDATE reminders").
		WithArgs(id, at, "msg-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	store := NewStore(mock)
	err = store.MarkSent(context.Background(), id, "msg-1", at)
	assert.Error(t, err)
}

func reminderRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "business_id", "booking_id", "type", "scheduled_for", "status",
		"sent_at", "message_id", "detail", "created_at", "updated_at",
	})
}
