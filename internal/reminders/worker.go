package reminders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/booklinehq/bookline-platform/internal/bookings"
	"github.com/booklinehq/bookline-platform/internal/business"
	"github.com/booklinehq/bookline-platform/internal/events"
	"github.com/booklinehq/bookline-platform/internal/messaging"
	"github.com/booklinehq/bookline-platform/pkg/logging"
)

// Skip reasons recorded on reminder rows during sweep re-validation.
const (
	SkipBookingMissing       = "booking_missing"
	SkipBookingInactive      = "booking_inactive"
	SkipBookingInPast        = "booking_in_past"
	SkipNoContactPhone       = "no_contact_phone"
	SkipBusinessUnconfigured = "business_unconfigured"
	SkipGatewayUnconfigured  = "gateway_unconfigured"
)

// Sweep seeding window around now.
const (
	sweepLookback = 6 * time.Hour
	sweepHorizon  = 21 * 24 * time.Hour
)

// ProfileSource retrieves business configuration for outbound messaging.
type ProfileSource interface {
	Get(ctx context.Context, businessID string) (*business.Profile, error)
}

// BookingSource exposes the booking reads the sweep needs.
type BookingSource interface {
	Get(ctx context.Context, businessID string, id uuid.UUID) (*bookings.Booking, error)
	ListActiveInWindow(ctx context.Context, businessID string, from, to time.Time) ([]bookings.Booking, error)
}

// CustomerDirectory resolves a customer's SMS-reachable phone number.
type CustomerDirectory interface {
	ContactPhone(ctx context.Context, businessID string, customerID uuid.UUID) (string, error)
}

// EventLog records automation outcomes.
type EventLog interface {
	Record(ctx context.Context, businessID, eventType string, payload map[string]any, success bool, errText string)
}

// Counts summarizes one sweep run. Notes carries step-level failures so a
// caller can tell "nothing was due" from "lookup failed".
type Counts struct {
	Seeded  int      `json:"seeded"`
	Due     int      `json:"due"`
	Sent    int      `json:"sent"`
	Skipped int      `json:"skipped"`
	Errored int      `json:"errored"`
	Notes   []string `json:"notes,omitempty"`
}

// Worker seeds reminders for upcoming bookings and delivers the due ones.
type Worker struct {
	store     *Store
	bookings  BookingSource
	profiles  ProfileSource
	directory CustomerDirectory
	gateway   messaging.Gateway
	events    EventLog
	logger    *logging.Logger
	batchSize int
	clock     func() time.Time
}

// NewWorker creates a reminder sweep worker.
func NewWorker(store *Store, bookingSrc BookingSource, profiles ProfileSource, directory CustomerDirectory, gateway messaging.Gateway, eventLog EventLog, batchSize int, logger *logging.Logger) *Worker {
	if logger == nil {
		logger = logging.Default()
	}
	if batchSize <= 0 || batchSize > MaxDueBatch {
		batchSize = MaxDueBatch
	}
	return &Worker{
		store:     store,
		bookings:  bookingSrc,
		profiles:  profiles,
		directory: directory,
		gateway:   gateway,
		events:    eventLog,
		logger:    logger,
		batchSize: batchSize,
		clock:     func() time.Time { return time.Now().UTC() },
	}
}

// RunSweep seeds reminders for the business's upcoming active bookings, then
// delivers everything due. Per-row failures never abort the sweep. With
// dryRun, due rows that pass validation count as sent without calling the
// gateway or mutating the rows.
func (w *Worker) RunSweep(ctx context.Context, businessID string, dryRun bool) (Counts, error) {
	var counts Counts
	now := w.clock()

	profile, err := w.profiles.Get(ctx, businessID)
	if err != nil {
		counts.Notes = append(counts.Notes, fmt.Sprintf("business lookup failed: %v", err))
		profile = business.DefaultProfile(businessID)
	}

	upcoming, err := w.bookings.ListActiveInWindow(ctx, businessID, now.Add(-sweepLookback), now.Add(sweepHorizon))
	if err != nil {
		counts.Notes = append(counts.Notes, fmt.Sprintf("booking window lookup failed: %v", err))
	}
	for i := range upcoming {
		b := &upcoming[i]
		seeded, err := w.store.Refresh(ctx, businessID, b.ID, b.ScheduledStart)
		if err != nil {
			w.logger.Error("reminder sweep: seed failed", "booking_id", b.ID, "error", err)
			counts.Notes = append(counts.Notes, fmt.Sprintf("seed %s failed: %v", b.ID, err))
			continue
		}
		counts.Seeded += seeded
	}

	due, err := w.store.ListDue(ctx, businessID, now, w.batchSize)
	if err != nil {
		counts.Notes = append(counts.Notes, fmt.Sprintf("due lookup failed: %v", err))
		return counts, fmt.Errorf("reminders: sweep: %w", err)
	}
	counts.Due = len(due)
	if len(due) == 0 {
		return counts, nil
	}

	w.logger.Info("reminder sweep: processing due reminders",
		"business_id", businessID, "count", len(due), "dry_run", dryRun)

	for i := range due {
		w.processOne(ctx, profile, &due[i], now, dryRun, &counts)
	}
	return counts, nil
}

func (w *Worker) processOne(ctx context.Context, profile *business.Profile, r *Reminder, now time.Time, dryRun bool, counts *Counts) {
	skip := func(reason string) {
		if !dryRun {
			if err := w.store.MarkSkipped(ctx, r.ID, reason); err != nil {
				w.logger.Error("reminder sweep: mark skipped failed", "id", r.ID, "error", err)
			}
		}
		counts.Skipped++
	}

	// Re-fetch at decision time: a staff action or a retried webhook may have
	// mutated the booking since this row was seeded.
	booking, err := w.bookings.Get(ctx, r.BusinessID, r.BookingID)
	if err != nil {
		if errors.Is(err, bookings.ErrNotFound) {
			skip(SkipBookingMissing)
			return
		}
		counts.Notes = append(counts.Notes, fmt.Sprintf("booking lookup %s failed: %v", r.BookingID, err))
		return
	}
	if !booking.Status.IsActive() {
		skip(SkipBookingInactive)
		return
	}
	if !booking.ScheduledStart.After(now) {
		skip(SkipBookingInPast)
		return
	}

	phone, err := w.directory.ContactPhone(ctx, r.BusinessID, booking.CustomerID)
	if err != nil || phone == "" {
		skip(SkipNoContactPhone)
		return
	}
	if !profile.Configured() {
		skip(SkipBusinessUnconfigured)
		return
	}
	if w.gateway == nil {
		skip(SkipGatewayUnconfigured)
		return
	}

	body := MessageTemplate(r.Type, profile.Name, booking.ScheduledStart, profile.Location())
	if dryRun {
		counts.Sent++
		return
	}

	result, err := w.gateway.Send(ctx, phone, profile.SMSFrom, body)
	if err != nil {
		if markErr := w.store.MarkError(ctx, r.ID, err.Error()); markErr != nil {
			w.logger.Error("reminder sweep: mark error failed", "id", r.ID, "error", markErr)
		}
		w.emit(ctx, r, events.TypeReminderFailed, false, err.Error())
		counts.Errored++
		return
	}

	if err := w.store.MarkSent(ctx, r.ID, result.MessageID, now); err != nil {
		w.logger.Error("reminder sweep: mark sent failed", "id", r.ID, "error", err)
		counts.Notes = append(counts.Notes, fmt.Sprintf("mark sent %s failed: %v", r.ID, err))
	}
	w.emit(ctx, r, events.TypeReminderSent, true, "")
	counts.Sent++

	w.logger.Info("reminder sweep: reminder sent",
		"id", r.ID, "booking_id", r.BookingID, "type", string(r.Type))
}

func (w *Worker) emit(ctx context.Context, r *Reminder, eventType string, success bool, errText string) {
	if w.events == nil {
		return
	}
	w.events.Record(ctx, r.BusinessID, eventType, map[string]any{
		"reminder_id": r.ID.String(),
		"booking_id":  r.BookingID.String(),
		"type":        string(r.Type),
	}, success, errText)
}
