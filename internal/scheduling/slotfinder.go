package scheduling

import (
	"time"

	"github.com/google/uuid"
)

const (
	slotStep      = 30 * time.Minute
	leadTime      = 2 * time.Hour
	minDurationM  = 15
	maxDurationM  = 720
	defaultCount  = 3
	maxCount      = 9
	defaultDays   = 21
	maxDays       = 45
	maxIterations = 1500

	// Busy intervals with no explicit end block this long.
	defaultBusyDuration = 120 * time.Minute
)

// Search defaults shared with callers that size their own searches.
const (
	DefaultSlotCount   = defaultCount
	DefaultHorizonDays = defaultDays
)

// SlotOption is one offered appointment window.
type SlotOption struct {
	Index int       `json:"index"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Label string    `json:"label"`
}

// BusyInterval is an existing booking's occupied window.
type BusyInterval struct {
	BookingID uuid.UUID
	Start     time.Time
	End       *time.Time
}

// FindRequest describes a slot search.
type FindRequest struct {
	DurationMinutes int
	Timezone        *time.Location
	Hours           HoursPolicy
	Busy            []BusyInterval
	ExcludeBooking  uuid.UUID
	Count           int
	SearchFrom      time.Time
	HorizonDays     int
}

// Finder generates candidate slots with an injected clock so expiry and
// business-hours checks stay deterministic under test.
type Finder struct {
	now func() time.Time
}

// NewFinder creates a Finder using the given clock. A nil clock means wall time.
func NewFinder(now func() time.Time) *Finder {
	if now == nil {
		now = time.Now
	}
	return &Finder{now: now}
}

// FindSlots walks forward in 30-minute steps from the search anchor and
// returns up to Count non-conflicting windows inside the hours policy.
// An empty result is a valid "no availability" answer, not an error.
func (f *Finder) FindSlots(req FindRequest) []SlotOption {
	duration := clampDuration(req.DurationMinutes)
	count := req.Count
	if count <= 0 {
		count = defaultCount
	}
	if count > maxCount {
		count = maxCount
	}
	horizon := req.HorizonDays
	if horizon <= 0 {
		horizon = defaultDays
	}
	if horizon > maxDays {
		horizon = maxDays
	}
	loc := req.Timezone
	if loc == nil {
		loc = time.UTC
	}

	now := f.now()
	anchor := now.Add(leadTime)
	if req.SearchFrom.After(anchor) {
		anchor = req.SearchFrom
	}
	cursor := roundUpToStep(anchor)
	deadline := now.AddDate(0, 0, horizon)

	var options []SlotOption
	for i := 0; i < maxIterations && len(options) < count; i++ {
		if cursor.After(deadline) {
			break
		}
		start := cursor
		end := start.Add(duration)
		cursor = cursor.Add(slotStep)

		if !req.Hours.Allows(start, end, loc) {
			continue
		}
		if overlapsBusy(start, end, req.Busy, req.ExcludeBooking) {
			continue
		}
		options = append(options, SlotOption{
			Index: len(options) + 1,
			Start: start,
			End:   end,
			Label: FormatSlotLabel(start, loc),
		})
	}
	return options
}

// FormatSlotLabel renders a slot start for SMS display in the business's timezone.
func FormatSlotLabel(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("Mon, Jan 2, 3:04 PM")
}

func clampDuration(minutes int) time.Duration {
	if minutes < minDurationM {
		minutes = minDurationM
	}
	if minutes > maxDurationM {
		minutes = maxDurationM
	}
	return time.Duration(minutes) * time.Minute
}

func roundUpToStep(t time.Time) time.Time {
	rounded := t.Truncate(slotStep)
	if rounded.Before(t) {
		rounded = rounded.Add(slotStep)
	}
	return rounded
}

// overlapsBusy applies the half-open interval test start < busyEnd && end > busyStart.
func overlapsBusy(start, end time.Time, busy []BusyInterval, exclude uuid.UUID) bool {
	for _, b := range busy {
		if exclude != uuid.Nil && b.BookingID == exclude {
			continue
		}
		busyEnd := b.Start.Add(defaultBusyDuration)
		if b.End != nil {
			busyEnd = *b.End
		}
		if start.Before(busyEnd) && end.After(b.Start) {
			return true
		}
	}
	return false
}
