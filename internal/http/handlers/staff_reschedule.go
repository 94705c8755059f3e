package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	observemetrics "github.com/booklinehq/bookline-platform/internal/observability/metrics"
	"github.com/booklinehq/bookline-platform/internal/reminders"
	"github.com/booklinehq/bookline-platform/internal/reschedule"
	"github.com/booklinehq/bookline-platform/pkg/logging"
)

type rescheduleTracker interface {
	ListQueue(ctx context.Context, businessID string, limit int) ([]reschedule.Request, error)
	Get(ctx context.Context, businessID string, bookingID uuid.UUID) (*reschedule.Request, error)
	Update(ctx context.Context, businessID string, bookingID uuid.UUID, patch reschedule.Patch) error
	EscalationSweep(ctx context.Context, businessID string) (int64, error)
}

type sweepRunner interface {
	RunSweep(ctx context.Context, businessID string, dryRun bool) (reminders.Counts, error)
}

// StaffHandler serves the staff-facing reschedule queue and manual sweeps.
type StaffHandler struct {
	tracker rescheduleTracker
	sweeper sweepRunner
	logger  *logging.Logger
	metrics *observemetrics.PlatformMetrics
}

func NewStaffHandler(tracker rescheduleTracker, sweeper sweepRunner, metrics *observemetrics.PlatformMetrics, logger *logging.Logger) *StaffHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &StaffHandler{tracker: tracker, sweeper: sweeper, logger: logger, metrics: metrics}
}

// ListQueue returns open reschedule requests ordered by SLA urgency.
// GET /staff/reschedules?business_id=...&limit=...
func (h *StaffHandler) ListQueue(w http.ResponseWriter, r *http.Request) {
	businessID := r.URL.Query().Get("business_id")
	if businessID == "" {
		http.Error(w, "business_id required", http.StatusBadRequest)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	queue, err := h.tracker.ListQueue(r.Context(), businessID, limit)
	if err != nil {
		h.logger.Error("list reschedule queue failed", "business_id", businessID, "error", err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"requests": queue,
		"count":    len(queue),
	})
}

type staffPatchRequest struct {
	AssignedTo *string    `json:"assigned_to"`
	SLADueAt   *time.Time `json:"sla_due_at"`
	Note       *string    `json:"note"`
	Status     *string    `json:"status"`
}

// Patch applies a staff update to one reschedule request.
// PATCH /staff/reschedules/{bookingID}?business_id=...
func (h *StaffHandler) Patch(w http.ResponseWriter, r *http.Request) {
	businessID := r.URL.Query().Get("business_id")
	if businessID == "" {
		http.Error(w, "business_id required", http.StatusBadRequest)
		return
	}
	bookingID, err := uuid.Parse(chi.URLParam(r, "bookingID"))
	if err != nil {
		http.Error(w, "invalid booking id", http.StatusBadRequest)
		return
	}
	var body staffPatchRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	patch := reschedule.Patch{
		AssignedTo: body.AssignedTo,
		SLADueAt:   body.SLADueAt,
		Note:       body.Note,
	}
	if body.Status != nil {
		status := reschedule.Status(*body.Status)
		switch status {
		case reschedule.StatusPending, reschedule.StatusOptionsSent,
			reschedule.StatusConfirmed, reschedule.StatusHandoff, reschedule.StatusClosed:
			patch.Status = &status
		default:
			http.Error(w, "invalid status", http.StatusBadRequest)
			return
		}
	}
	if patch.AssignedTo == nil && patch.SLADueAt == nil && patch.Note == nil && patch.Status == nil {
		http.Error(w, "empty patch", http.StatusBadRequest)
		return
	}

	if err := h.tracker.Update(r.Context(), businessID, bookingID, patch); err != nil {
		if errors.Is(err, reschedule.ErrNotFound) {
			http.Error(w, "reschedule request not found", http.StatusNotFound)
			return
		}
		h.logger.Error("patch reschedule request failed", "booking_id", bookingID, "error", err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	updated, err := h.tracker.Get(r.Context(), businessID, bookingID)
	if err != nil {
		h.logger.Error("reload reschedule request failed", "booking_id", bookingID, "error", err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// TriggerSweep runs one reminder sweep on demand.
// POST /staff/reminders/sweep?business_id=...&dry_run=true
func (h *StaffHandler) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	businessID := r.URL.Query().Get("business_id")
	if businessID == "" {
		http.Error(w, "business_id required", http.StatusBadRequest)
		return
	}
	dryRun := r.URL.Query().Get("dry_run") == "true"

	start := time.Now()
	counts, err := h.sweeper.RunSweep(r.Context(), businessID, dryRun)
	if err != nil {
		h.logger.Error("manual sweep failed", "business_id", businessID, "error", err)
		http.Error(w, "sweep failed", http.StatusInternalServerError)
		return
	}
	if !dryRun && h.metrics != nil {
		h.metrics.ObserveSweep(counts.Sent, counts.Skipped, counts.Errored, time.Since(start).Seconds())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"dry_run": dryRun,
		"counts":  counts,
	})
}

// TriggerEscalation bumps overdue reschedule requests.
// POST /staff/reschedules/escalate?business_id=...
func (h *StaffHandler) TriggerEscalation(w http.ResponseWriter, r *http.Request) {
	businessID := r.URL.Query().Get("business_id")
	if businessID == "" {
		http.Error(w, "business_id required", http.StatusBadRequest)
		return
	}
	escalated, err := h.tracker.EscalationSweep(r.Context(), businessID)
	if err != nil {
		h.logger.Error("escalation sweep failed", "business_id", businessID, "error", err)
		http.Error(w, "sweep failed", http.StatusInternalServerError)
		return
	}
	if h.metrics != nil {
		h.metrics.ObserveEscalations(escalated)
	}
	writeJSON(w, http.StatusOK, map[string]any{"escalated": escalated})
}
