package bookings

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func bookingRow(id uuid.UUID, businessID string, start time.Time, status string) *pgxmock.Rows {
	now := time.Now().UTC()
	return pgxmock.NewRows([]string{
		"id", "business_id", "customer_id", "service_type_id",
		"scheduled_start", "scheduled_end", "status", "notes",
		"created_at", "updated_at",
	}).AddRow(id, businessID, uuid.New(), (*uuid.UUID)(nil), start, (*time.Time)(nil), status, "", now, now)
}

func TestGetScopedToBusiness(t *testing.T) {
	mock := newMock(t)
	repo := NewRepository(mock)
	id := uuid.New()
	start := time.Now().Add(24 * time.Hour).UTC()

	mock.ExpectQuery("SELECT (.+) FROM bookings").
		WithArgs("biz_1", id).
		WillReturnRows(bookingRow(id, "biz_1", start, "confirmed"))

	b, err := repo.Get(context.Background(), "biz_1", id)
	require.NoError(t, err)
	assert.Equal(t, id, b.ID)
	assert.Equal(t, StatusConfirmed, b.Status)
	assert.Equal(t, start.Add(120*time.Minute), b.EffectiveEnd())
}

func TestGetNotFound(t *testing.T) {
	mock := newMock(t)
	repo := NewRepository(mock)
	id := uuid.New()

	mock.ExpectQuery("SELECT (.+) FROM bookings").
		WithArgs("biz_1", id).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "business_id", "customer_id", "service_type_id",
			"scheduled_start", "scheduled_end", "status", "notes",
			"created_at", "updated_at",
		}))

	_, err := repo.Get(context.Background(), "biz_1", id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNearestUpcomingNone(t *testing.T) {
	mock := newMock(t)
	repo := NewRepository(mock)
	customerID := uuid.New()
	from := time.Now().UTC()

	mock.ExpectQuery("SELECT (.+) FROM bookings").
		WithArgs("biz_1", customerID, from).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "business_id", "customer_id", "service_type_id",
			"scheduled_start", "scheduled_end", "status", "notes",
			"created_at", "updated_at",
		}))

	b, err := repo.NearestUpcoming(context.Background(), "biz_1", customerID, from)
	require.NoError(t, err)
	assert.Nil(t, b)
}

func TestBusyIntervals(t *testing.T) {
	mock := newMock(t)
	repo := NewRepository(mock)
	from := time.Now().UTC()
	to := from.AddDate(0, 0, 21)
	id := uuid.New()
	start := from.Add(48 * time.Hour)
	end := start.Add(time.Hour)

	mock.ExpectQuery("SELECT id, scheduled_start, scheduled_end FROM bookings").
		WithArgs("biz_1", from, to).
		WillReturnRows(pgxmock.NewRows([]string{"id", "scheduled_start", "scheduled_end"}).
			AddRow(id, start, &end))

	intervals, err := repo.BusyIntervals(context.Background(), "biz_1", from, to)
	require.NoError(t, err)
	require.Len(t, intervals, 1)
	assert.Equal(t, id, intervals[0].BookingID)
	assert.Equal(t, &end, intervals[0].End)
}

func TestRescheduleUpdatesWindow(t *testing.T) {
	mock := newMock(t)
	repo := NewRepository(mock)
	id := uuid.New()
	start := time.Now().Add(72 * time.Hour).UTC()
	end := start.Add(90 * time.Minute)

	mock.ExpectExec("UPDATE bookings").
		WithArgs("biz_1", id, start, end).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, repo.Reschedule(context.Background(), "biz_1", id, start, end))
}

func TestRescheduleMissingRow(t *testing.T) {
	mock := newMock(t)
	repo := NewRepository(mock)
	id := uuid.New()
	start := time.Now().UTC()

	mock.ExpectExec("UPDATE bookings").
		WithArgs("biz_1", id, start, start.Add(time.Hour)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.Reschedule(context.Background(), "biz_1", id, start, start.Add(time.Hour))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateStatus(t *testing.T) {
	mock := newMock(t)
	repo := NewRepository(mock)
	id := uuid.New()

	mock.ExpectExec("UPDATE bookings").
		WithArgs("biz_1", id, "confirmed").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, repo.UpdateStatus(context.Background(), "biz_1", id, StatusConfirmed))
}

func TestStatusIsActive(t *testing.T) {
	assert.True(t, StatusPending.IsActive())
	assert.True(t, StatusConfirmed.IsActive())
	assert.True(t, StatusRescheduled.IsActive())
	assert.False(t, StatusCancelled.IsActive())
	assert.False(t, StatusCompleted.IsActive())
}
