package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/booklinehq/bookline-platform/internal/reminders"
	"github.com/booklinehq/bookline-platform/internal/reschedule"
)

type fakeStaffTracker struct {
	queue     []reschedule.Request
	patched   map[uuid.UUID]reschedule.Patch
	getResult *reschedule.Request
	getErr    error
	updateErr error
	escalated int64
}

func (f *fakeStaffTracker) ListQueue(_ context.Context, _ string, _ int) ([]reschedule.Request, error) {
	return f.queue, nil
}

func (f *fakeStaffTracker) Get(_ context.Context, _ string, _ uuid.UUID) (*reschedule.Request, error) {
	return f.getResult, f.getErr
}

func (f *fakeStaffTracker) Update(_ context.Context, _ string, bookingID uuid.UUID, patch reschedule.Patch) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	if f.patched == nil {
		f.patched = map[uuid.UUID]reschedule.Patch{}
	}
	f.patched[bookingID] = patch
	return nil
}

func (f *fakeStaffTracker) EscalationSweep(context.Context, string) (int64, error) {
	return f.escalated, nil
}

type fakeSweeper struct {
	counts reminders.Counts
	dryRun *bool
}

func (f *fakeSweeper) RunSweep(_ context.Context, _ string, dryRun bool) (reminders.Counts, error) {
	f.dryRun = &dryRun
	return f.counts, nil
}

func patchRequest(t *testing.T, handler *StaffHandler, bookingID uuid.UUID, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Patch("/staff/reschedules/{bookingID}", handler.Patch)

	req := httptest.NewRequest(http.MethodPatch,
		"/staff/reschedules/"+bookingID.String()+"?business_id=biz-1",
		bytes.NewReader([]byte(body)))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestListQueueReturnsDerivedFlags(t *testing.T) {
	due := time.Now().Add(-time.Hour)
	tracker := &fakeStaffTracker{queue: []reschedule.Request{{
		BookingID: uuid.New(),
		Status:    reschedule.StatusHandoff,
		SLADueAt:  &due,
		Overdue:   true,
		Escalated: true,
	}}}
	h := NewStaffHandler(tracker, &fakeSweeper{}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/staff/reschedules?business_id=biz-1", nil)
	rec := httptest.NewRecorder()
	h.ListQueue(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Requests []reschedule.Request `json:"requests"`
		Count    int                  `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.True(t, resp.Requests[0].Overdue)
	assert.True(t, resp.Requests[0].Escalated)
}

func TestListQueueRequiresBusinessID(t *testing.T) {
	h := NewStaffHandler(&fakeStaffTracker{}, &fakeSweeper{}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/staff/reschedules", nil)
	rec := httptest.NewRecorder()
	h.ListQueue(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPatchAssignsRequest(t *testing.T) {
	bookingID := uuid.New()
	tracker := &fakeStaffTracker{getResult: &reschedule.Request{
		BookingID:  bookingID,
		Status:     reschedule.StatusHandoff,
		AssignedTo: "dana",
	}}
	h := NewStaffHandler(tracker, &fakeSweeper{}, nil, nil)

	rec := patchRequest(t, h, bookingID, `{"assigned_to":"dana"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	patch := tracker.patched[bookingID]
	require.NotNil(t, patch.AssignedTo)
	assert.Equal(t, "dana", *patch.AssignedTo)
	assert.Nil(t, patch.Status)
}

func TestPatchClosesRequest(t *testing.T) {
	bookingID := uuid.New()
	tracker := &fakeStaffTracker{getResult: &reschedule.Request{
		BookingID: bookingID,
		Status:    reschedule.StatusClosed,
	}}
	h := NewStaffHandler(tracker, &fakeSweeper{}, nil, nil)

	rec := patchRequest(t, h, bookingID, `{"status":"closed","note":"called the customer"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	patch := tracker.patched[bookingID]
	require.NotNil(t, patch.Status)
	assert.Equal(t, reschedule.StatusClosed, *patch.Status)
	require.NotNil(t, patch.Note)
	assert.Equal(t, "called the customer", *patch.Note)
}

func TestPatchRejectsUnknownStatus(t *testing.T) {
	h := NewStaffHandler(&fakeStaffTracker{}, &fakeSweeper{}, nil, nil)

	rec := patchRequest(t, h, uuid.New(), `{"status":"vanished"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPatchRejectsEmptyBody(t *testing.T) {
	h := NewStaffHandler(&fakeStaffTracker{}, &fakeSweeper{}, nil, nil)

	rec := patchRequest(t, h, uuid.New(), `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPatchMissingRequest(t *testing.T) {
	tracker := &fakeStaffTracker{updateErr: reschedule.ErrNotFound}
	h := NewStaffHandler(tracker, &fakeSweeper{}, nil, nil)

	rec := patchRequest(t, h, uuid.New(), `{"assigned_to":"dana"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTriggerSweepDryRun(t *testing.T) {
	sweeper := &fakeSweeper{counts: reminders.Counts{Seeded: 4, Due: 2, Sent: 2}}
	h := NewStaffHandler(&fakeStaffTracker{}, sweeper, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/staff/reminders/sweep?business_id=biz-1&dry_run=true", nil)
	rec := httptest.NewRecorder()
	h.TriggerSweep(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, sweeper.dryRun)
	assert.True(t, *sweeper.dryRun)

	var resp struct {
		DryRun bool             `json:"dry_run"`
		Counts reminders.Counts `json:"counts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.DryRun)
	assert.Equal(t, 2, resp.Counts.Sent)
}

func TestTriggerEscalation(t *testing.T) {
	tracker := &fakeStaffTracker{escalated: 3}
	h := NewStaffHandler(tracker, &fakeSweeper{}, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/staff/reschedules/escalate?business_id=biz-1", nil)
	rec := httptest.NewRecorder()
	h.TriggerEscalation(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]int64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(3), resp["escalated"])
}
