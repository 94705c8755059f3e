// Package sweeper runs the periodic reminder and escalation sweeps.
package sweeper

import (
	"context"
	"time"

	"github.com/booklinehq/bookline-platform/internal/events"
	observemetrics "github.com/booklinehq/bookline-platform/internal/observability/metrics"
	"github.com/booklinehq/bookline-platform/internal/reminders"
	"github.com/booklinehq/bookline-platform/pkg/logging"
)

type businessLister interface {
	ListBusinessIDs(ctx context.Context) ([]string, error)
}

type sweepRunner interface {
	RunSweep(ctx context.Context, businessID string, dryRun bool) (reminders.Counts, error)
}

type escalator interface {
	EscalationSweep(ctx context.Context, businessID string) (int64, error)
}

type eventLog interface {
	Record(ctx context.Context, businessID, eventType string, payload map[string]any, success bool, errText string)
}

// ReminderLoop drives the reminder sweep across all businesses on a ticker.
type ReminderLoop struct {
	worker    sweepRunner
	directory businessLister
	events    eventLog
	logger    *logging.Logger
	metrics   *observemetrics.PlatformMetrics
	interval  time.Duration
}

func NewReminderLoop(worker sweepRunner, directory businessLister, events eventLog, metrics *observemetrics.PlatformMetrics, logger *logging.Logger) *ReminderLoop {
	if logger == nil {
		logger = logging.Default()
	}
	return &ReminderLoop{
		worker:    worker,
		directory: directory,
		events:    events,
		logger:    logger,
		metrics:   metrics,
		interval:  5 * time.Minute,
	}
}

func (l *ReminderLoop) WithInterval(d time.Duration) *ReminderLoop {
	if d > 0 {
		l.interval = d
	}
	return l
}

func (l *ReminderLoop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	l.sweepAll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.sweepAll(ctx)
		}
	}
}

func (l *ReminderLoop) sweepAll(ctx context.Context) {
	ids, err := l.directory.ListBusinessIDs(ctx)
	if err != nil {
		l.logger.Error("sweep business listing failed", "error", err)
		return
	}
	for _, businessID := range ids {
		start := time.Now()
		counts, err := l.worker.RunSweep(ctx, businessID, false)
		if err != nil {
			l.logger.Error("reminder sweep failed", "business_id", businessID, "error", err)
			continue
		}
		if l.metrics != nil {
			l.metrics.ObserveSweep(counts.Sent, counts.Skipped, counts.Errored, time.Since(start).Seconds())
		}
		if l.events != nil {
			l.events.Record(ctx, businessID, events.TypeSweepCompleted, map[string]any{
				"seeded":  counts.Seeded,
				"due":     counts.Due,
				"sent":    counts.Sent,
				"skipped": counts.Skipped,
				"errored": counts.Errored,
				"notes":   counts.Notes,
			}, counts.Errored == 0, "")
		}
	}
}

// EscalationLoop bumps overdue reschedule requests on its own ticker.
type EscalationLoop struct {
	tracker   escalator
	directory businessLister
	logger    *logging.Logger
	metrics   *observemetrics.PlatformMetrics
	interval  time.Duration
}

func NewEscalationLoop(tracker escalator, directory businessLister, metrics *observemetrics.PlatformMetrics, logger *logging.Logger) *EscalationLoop {
	if logger == nil {
		logger = logging.Default()
	}
	return &EscalationLoop{
		tracker:   tracker,
		directory: directory,
		logger:    logger,
		metrics:   metrics,
		interval:  10 * time.Minute,
	}
}

func (l *EscalationLoop) WithInterval(d time.Duration) *EscalationLoop {
	if d > 0 {
		l.interval = d
	}
	return l
}

func (l *EscalationLoop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	l.escalateAll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.escalateAll(ctx)
		}
	}
}

func (l *EscalationLoop) escalateAll(ctx context.Context) {
	ids, err := l.directory.ListBusinessIDs(ctx)
	if err != nil {
		l.logger.Error("escalation business listing failed", "error", err)
		return
	}
	for _, businessID := range ids {
		n, err := l.tracker.EscalationSweep(ctx, businessID)
		if err != nil {
			l.logger.Error("escalation sweep failed", "business_id", businessID, "error", err)
			continue
		}
		if n > 0 {
			l.logger.Info("reschedule requests escalated", "business_id", businessID, "count", n)
		}
		if l.metrics != nil {
			l.metrics.ObserveEscalations(n)
		}
	}
}
