package conversation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/booklinehq/bookline-platform/internal/bookings"
	"github.com/booklinehq/bookline-platform/internal/business"
	"github.com/booklinehq/bookline-platform/internal/events"
	"github.com/booklinehq/bookline-platform/internal/reschedule"
	"github.com/booklinehq/bookline-platform/internal/scheduling"
	"github.com/booklinehq/bookline-platform/internal/tenancy"
	"github.com/booklinehq/bookline-platform/pkg/logging"
)

// StoreAPI is the persistence surface the engine drives each turn.
type StoreAPI interface {
	ResolveCustomer(ctx context.Context, businessID, phone string) (*Customer, error)
	OpenConversation(ctx context.Context, businessID string, customerID uuid.UUID, channel string) (*Conversation, error)
	SetPendingSelection(ctx context.Context, businessID string, conversationID uuid.UUID, sel *PendingSelection) error
	ClearPendingSelection(ctx context.Context, businessID string, conversationID uuid.UUID) error
	Touch(ctx context.Context, businessID string, conversationID uuid.UUID, state State, at time.Time) error
	SaveInbound(ctx context.Context, m *Message) error
	SaveOutbound(ctx context.Context, m *Message) error
	EnsureLead(ctx context.Context, businessID string, customerID uuid.UUID) (*Lead, error)
	SetLeadStatus(ctx context.Context, businessID string, leadID uuid.UUID, status string, at time.Time) error
	TouchLead(ctx context.Context, businessID string, leadID uuid.UUID, at time.Time) error
	RecordAIRun(ctx context.Context, run *AIRun) error
}

// BookingAPI is the booking surface the engine mutates.
type BookingAPI interface {
	Get(ctx context.Context, businessID string, id uuid.UUID) (*bookings.Booking, error)
	NearestUpcoming(ctx context.Context, businessID string, customerID uuid.UUID, from time.Time) (*bookings.Booking, error)
	BusyIntervals(ctx context.Context, businessID string, from, to time.Time) ([]scheduling.BusyInterval, error)
	Reschedule(ctx context.Context, businessID string, id uuid.UUID, start, end time.Time) error
	UpdateStatus(ctx context.Context, businessID string, id uuid.UUID, status bookings.Status) error
}

// TrackerAPI is the reschedule negotiation record.
type TrackerAPI interface {
	UpsertOptions(ctx context.Context, businessID string, bookingID uuid.UUID, batch int, customerMessage string) error
	MarkConfirmed(ctx context.Context, businessID string, bookingID uuid.UUID, selectedIndex int, start, end time.Time) error
	MarkHandoff(ctx context.Context, businessID string, bookingID uuid.UUID, reason string) error
	MarkClosed(ctx context.Context, businessID string, bookingID uuid.UUID, reason string) error
}

// ReminderAPI suppresses and re-seeds reminders around booking mutations.
type ReminderAPI interface {
	Refresh(ctx context.Context, businessID string, bookingID uuid.UUID, start time.Time) (int, error)
	SkipPending(ctx context.Context, businessID string, bookingID uuid.UUID, reason string) (int64, error)
}

// ProfileSource retrieves per-business configuration.
type ProfileSource interface {
	Get(ctx context.Context, businessID string) (*business.Profile, error)
}

// NumberResolver maps a receiving phone number to its business.
type NumberResolver interface {
	BusinessForNumber(ctx context.Context, phone string) (string, error)
}

// EventLog records automation outcomes.
type EventLog interface {
	Record(ctx context.Context, businessID, eventType string, payload map[string]any, success bool, errText string)
}

// Inbound is one normalized webhook delivery.
type Inbound struct {
	From      string
	To        string
	Body      string
	MessageID string
}

// EngineConfig wires the engine's collaborators.
type EngineConfig struct {
	Store       StoreAPI
	Bookings    BookingAPI
	Tracker     TrackerAPI
	Reminders   ReminderAPI
	Profiles    ProfileSource
	Numbers     NumberResolver
	Events      EventLog
	SlotCount   int
	HorizonDays int
	Logger      *logging.Logger
}

// Engine routes one inbound message per invocation. It holds no per-customer
// state: every turn re-reads the conversation record, so interleaved
// webhook deliveries and redeliveries stay safe.
type Engine struct {
	store       StoreAPI
	bookings    BookingAPI
	tracker     TrackerAPI
	reminders   ReminderAPI
	profiles    ProfileSource
	numbers     NumberResolver
	events      EventLog
	slotCount   int
	horizonDays int
	logger      *logging.Logger
	clock       func() time.Time
}

// NewEngine creates a conversation engine.
func NewEngine(cfg EngineConfig) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	slotCount := cfg.SlotCount
	if slotCount <= 0 {
		slotCount = scheduling.DefaultSlotCount
	}
	horizon := cfg.HorizonDays
	if horizon <= 0 {
		horizon = scheduling.DefaultHorizonDays
	}
	return &Engine{
		store:       cfg.Store,
		bookings:    cfg.Bookings,
		tracker:     cfg.Tracker,
		reminders:   cfg.Reminders,
		profiles:    cfg.Profiles,
		numbers:     cfg.Numbers,
		events:      cfg.Events,
		slotCount:   slotCount,
		horizonDays: horizon,
		logger:      logger,
		clock:       func() time.Time { return time.Now().UTC() },
	}
}

// turn carries one invocation's resolved context and the bookkeeping the
// branch handlers accumulate.
type turn struct {
	businessID string
	profile    *business.Profile
	customer   *Customer
	conv       *Conversation
	lead       *Lead
	body       string
	now        time.Time

	intent     Intent
	outcome    string
	drift      float64
	state      State
	leadStatus string
}

// Handle processes one inbound message and returns the reply to send. It
// never returns an empty reply: lookup failures degrade to the generic
// fallback so the webhook caller always has a well-formed response.
func (e *Engine) Handle(ctx context.Context, in Inbound) (string, error) {
	started := e.clock()

	businessID, err := e.numbers.BusinessForNumber(ctx, in.To)
	if err != nil || businessID == "" {
		e.logger.Error("conversation: unknown receiving number", "to", in.To, "error", err)
		return fallbackReply(), nil
	}
	ctx = tenancy.WithBusinessID(ctx, businessID)

	profile, err := e.profiles.Get(ctx, businessID)
	if err != nil {
		e.logger.Error("conversation: profile lookup failed", "business_id", businessID, "error", err)
		profile = business.DefaultProfile(businessID)
	}

	customer, err := e.store.ResolveCustomer(ctx, businessID, in.From)
	if err != nil {
		e.logger.Error("conversation: resolve customer failed", "error", err)
		return fallbackReply(), nil
	}
	conv, err := e.store.OpenConversation(ctx, businessID, customer.ID, ChannelSMS)
	if err != nil {
		e.logger.Error("conversation: open conversation failed", "error", err)
		return fallbackReply(), nil
	}
	lead, err := e.store.EnsureLead(ctx, businessID, customer.ID)
	if err != nil {
		e.logger.Error("conversation: ensure lead failed", "error", err)
	}

	if err := e.store.SaveInbound(ctx, &Message{
		BusinessID:        businessID,
		ConversationID:    conv.ID,
		Body:              in.Body,
		FromPhone:         in.From,
		ToPhone:           in.To,
		ProviderMessageID: in.MessageID,
	}); err != nil {
		e.logger.Error("conversation: save inbound failed", "error", err)
	}

	t := &turn{
		businessID: businessID,
		profile:    profile,
		customer:   customer,
		conv:       conv,
		lead:       lead,
		body:       in.Body,
		now:        started,
		outcome:    OutcomeCompleted,
		state:      conv.State,
	}

	reply := e.route(ctx, t)

	e.finishTurn(ctx, t, in, reply, started)
	return reply, nil
}

func (e *Engine) route(ctx context.Context, t *turn) string {
	pending := t.conv.PendingSelection()
	intent, n := ClassifyIntent(t.body, pending != nil)
	t.intent = intent

	switch intent {
	case IntentNumberedSelection:
		return e.handleSelection(ctx, t, pending, n)
	case IntentMoreOptions:
		// Bare "4" with nothing pending: explain, mutate nothing.
		return noActiveOptionsNotice()
	case IntentConfirm:
		return e.handleConfirm(ctx, t)
	case IntentReschedule:
		return e.handleReschedule(ctx, t)
	default:
		res := classifyFreeText(t.body)
		t.outcome = res.Outcome
		t.drift = res.DriftScore
		if res.Handoff {
			t.state = StateHandoff
			return handoffReply()
		}
		if res.Outcome == OutcomeCompleted {
			return guidedBookingReply()
		}
		return fallbackReply()
	}
}

func (e *Engine) handleSelection(ctx context.Context, t *turn, pending *PendingSelection, n int) string {
	if pending.Expired(t.now) {
		e.clearPending(ctx, t)
		e.markHandoff(ctx, t, pending.BookingID, reschedule.ReasonOptionsExpired)
		t.outcome = OutcomeFallback
		return expiryNotice()
	}

	if n == moreOptionsDigit {
		return e.handleMoreOptions(ctx, t, pending)
	}

	opt := pending.Option(n)
	if opt == nil {
		// Keep the pending set so the customer can retry.
		t.outcome = OutcomeFallback
		return invalidSelectionNotice(len(pending.Options))
	}

	booking, err := e.bookings.Get(ctx, t.businessID, pending.BookingID)
	if errors.Is(err, bookings.ErrNotFound) {
		e.clearPending(ctx, t)
		e.markHandoff(ctx, t, pending.BookingID, reschedule.ReasonBookingMissing)
		t.outcome = OutcomeFallback
		return bookingGoneNotice()
	}
	if err != nil {
		// Transient lookup failure: keep the pending set so the selection
		// still works on the next message.
		e.logger.Error("conversation: booking lookup failed", "booking_id", pending.BookingID, "error", err)
		t.outcome = OutcomeFallback
		return fallbackReply()
	}

	if err := e.bookings.Reschedule(ctx, t.businessID, booking.ID, opt.Start, opt.End); err != nil {
		e.logger.Error("conversation: reschedule booking failed", "booking_id", booking.ID, "error", err)
		t.outcome = OutcomeFallback
		return fallbackReply()
	}
	if _, err := e.reminders.SkipPending(ctx, t.businessID, booking.ID, "rescheduled"); err != nil {
		e.logger.Error("conversation: suppress reminders failed", "booking_id", booking.ID, "error", err)
	}
	if _, err := e.reminders.Refresh(ctx, t.businessID, booking.ID, opt.Start); err != nil {
		e.logger.Error("conversation: refresh reminders failed", "booking_id", booking.ID, "error", err)
	}
	if err := e.tracker.MarkConfirmed(ctx, t.businessID, booking.ID, n, opt.Start, opt.End); err != nil {
		e.logger.Error("conversation: mark confirmed failed", "booking_id", booking.ID, "error", err)
	}
	e.clearPending(ctx, t)
	t.leadStatus = LeadStatusBooked
	e.emit(ctx, t, events.TypeRescheduleConfirmed, map[string]any{
		"booking_id":     booking.ID.String(),
		"selected_index": n,
		"start":          opt.Start,
	})
	return rescheduleConfirmation(opt.Start, t.profile.Location())
}

func (e *Engine) handleMoreOptions(ctx context.Context, t *turn, pending *PendingSelection) string {
	duration := t.profile.DefaultDurationMinutes
	if booking, err := e.bookings.Get(ctx, t.businessID, pending.BookingID); err == nil {
		duration = booking.DurationMinutes()
	}

	// Anchor past everything already offered so the new batch is genuinely new.
	anchor := pending.LastStart().Add(30 * time.Minute)
	options := e.findSlots(ctx, t, pending.BookingID, duration, anchor)
	if len(options) == 0 {
		e.clearPending(ctx, t)
		e.markHandoff(ctx, t, pending.BookingID, reschedule.ReasonNoMoreSlots)
		t.state = StateHandoff
		t.leadStatus = LeadStatusQualified
		t.outcome = OutcomeHandoff
		return noMoreSlotsNotice()
	}

	batch := pending.Batch + 1
	e.storePending(ctx, t, pending.BookingID, options, batch)
	return FormatOptionList(options, optionsIntro(batch))
}

func (e *Engine) handleConfirm(ctx context.Context, t *turn) string {
	booking, err := e.bookings.NearestUpcoming(ctx, t.businessID, t.customer.ID, t.now.Add(-2*time.Hour))
	if err != nil || booking == nil {
		t.outcome = OutcomeFallback
		return noBookingReply()
	}

	alreadyConfirmed := booking.Status == bookings.StatusConfirmed
	if !alreadyConfirmed {
		if err := e.bookings.UpdateStatus(ctx, t.businessID, booking.ID, bookings.StatusConfirmed); err != nil {
			e.logger.Error("conversation: confirm booking failed", "booking_id", booking.ID, "error", err)
			t.outcome = OutcomeFallback
			return fallbackReply()
		}
	}
	if _, err := e.reminders.Refresh(ctx, t.businessID, booking.ID, booking.ScheduledStart); err != nil {
		e.logger.Error("conversation: refresh reminders failed", "booking_id", booking.ID, "error", err)
	}
	if err := e.tracker.MarkClosed(ctx, t.businessID, booking.ID, reschedule.ReasonCustomerConfirmed); err != nil {
		e.logger.Error("conversation: close reschedule request failed", "booking_id", booking.ID, "error", err)
	}
	t.leadStatus = LeadStatusBooked
	e.emit(ctx, t, events.TypeBookingConfirmed, map[string]any{
		"booking_id":        booking.ID.String(),
		"already_confirmed": alreadyConfirmed,
	})

	if alreadyConfirmed {
		return alreadyConfirmedReply(booking.ScheduledStart, t.profile.Location())
	}
	return confirmationReply(booking.ScheduledStart, t.profile.Location())
}

func (e *Engine) handleReschedule(ctx context.Context, t *turn) string {
	booking, err := e.bookings.NearestUpcoming(ctx, t.businessID, t.customer.ID, t.now.Add(-2*time.Hour))
	if err != nil || booking == nil {
		t.outcome = OutcomeFallback
		return noBookingReply()
	}

	if err := e.bookings.UpdateStatus(ctx, t.businessID, booking.ID, bookings.StatusRescheduled); err != nil {
		e.logger.Error("conversation: mark rescheduled failed", "booking_id", booking.ID, "error", err)
	}
	if _, err := e.reminders.SkipPending(ctx, t.businessID, booking.ID, "reschedule_requested"); err != nil {
		e.logger.Error("conversation: suppress reminders failed", "booking_id", booking.ID, "error", err)
	}

	options := e.findSlots(ctx, t, booking.ID, booking.DurationMinutes(), t.now)
	if len(options) == 0 {
		e.clearPending(ctx, t)
		e.markHandoff(ctx, t, booking.ID, reschedule.ReasonOptionsUnavailable)
		t.state = StateHandoff
		t.leadStatus = LeadStatusQualified
		t.outcome = OutcomeHandoff
		return noAvailabilityNotice()
	}

	e.storePending(ctx, t, booking.ID, options, 1)
	t.leadStatus = LeadStatusQualified
	return FormatOptionList(options, optionsIntro(1))
}

func (e *Engine) findSlots(ctx context.Context, t *turn, excludeBooking uuid.UUID, durationMinutes int, searchFrom time.Time) []scheduling.SlotOption {
	busy, err := e.bookings.BusyIntervals(ctx, t.businessID, t.now.Add(-6*time.Hour), t.now.AddDate(0, 0, e.horizonDays+1))
	if err != nil {
		e.logger.Error("conversation: busy interval lookup failed", "error", err)
		return nil
	}
	finder := scheduling.NewFinder(func() time.Time { return t.now })
	return finder.FindSlots(scheduling.FindRequest{
		DurationMinutes: durationMinutes,
		Timezone:        t.profile.Location(),
		Hours:           t.profile.HoursPolicy(),
		Busy:            busy,
		ExcludeBooking:  excludeBooking,
		Count:           e.slotCount,
		SearchFrom:      searchFrom,
		HorizonDays:     e.horizonDays,
	})
}

func (e *Engine) storePending(ctx context.Context, t *turn, bookingID uuid.UUID, options []scheduling.SlotOption, batch int) {
	if len(options) > MaxPendingOptions {
		options = options[:MaxPendingOptions]
	}
	sel := &PendingSelection{
		BookingID: bookingID,
		Options:   options,
		Batch:     batch,
		CreatedAt: t.now,
		ExpiresAt: t.now.Add(PendingSelectionTTL),
	}
	if err := e.store.SetPendingSelection(ctx, t.businessID, t.conv.ID, sel); err != nil {
		e.logger.Error("conversation: store pending selection failed", "error", err)
	}
	if err := e.tracker.UpsertOptions(ctx, t.businessID, bookingID, batch, t.body); err != nil {
		e.logger.Error("conversation: record options failed", "booking_id", bookingID, "error", err)
	}
	e.emit(ctx, t, events.TypeOptionsSent, map[string]any{
		"booking_id": bookingID.String(),
		"batch":      batch,
		"count":      len(options),
	})
}

func (e *Engine) clearPending(ctx context.Context, t *turn) {
	if err := e.store.ClearPendingSelection(ctx, t.businessID, t.conv.ID); err != nil {
		e.logger.Error("conversation: clear pending selection failed", "error", err)
	}
}

func (e *Engine) markHandoff(ctx context.Context, t *turn, bookingID uuid.UUID, reason string) {
	if err := e.tracker.MarkHandoff(ctx, t.businessID, bookingID, reason); err != nil {
		e.logger.Error("conversation: mark handoff failed", "booking_id", bookingID, "error", err)
	}
	e.emit(ctx, t, events.TypeRescheduleHandoff, map[string]any{
		"booking_id": bookingID.String(),
		"reason":     reason,
	})
}

// finishTurn runs the bookkeeping every reply path owes, whichever branch fired.
func (e *Engine) finishTurn(ctx context.Context, t *turn, in Inbound, reply string, started time.Time) {
	now := e.clock()

	if err := e.store.SaveOutbound(ctx, &Message{
		BusinessID:     t.businessID,
		ConversationID: t.conv.ID,
		Body:           reply,
		FromPhone:      in.To,
		ToPhone:        in.From,
	}); err != nil {
		e.logger.Error("conversation: save outbound failed", "error", err)
	}

	if err := e.store.RecordAIRun(ctx, &AIRun{
		BusinessID:     t.businessID,
		ConversationID: t.conv.ID,
		Intent:         string(t.intent),
		Outcome:        t.outcome,
		DriftScore:     t.drift,
		Tokens:         EstimateTokens(in.Body + reply),
		LatencyMS:      now.Sub(started).Milliseconds(),
	}); err != nil {
		e.logger.Error("conversation: record ai run failed", "error", err)
	}

	if err := e.store.Touch(ctx, t.businessID, t.conv.ID, t.state, now); err != nil {
		e.logger.Error("conversation: touch conversation failed", "error", err)
	}

	if t.lead != nil {
		if t.leadStatus != "" && t.leadStatus != t.lead.Status {
			if err := e.store.SetLeadStatus(ctx, t.businessID, t.lead.ID, t.leadStatus, now); err != nil {
				e.logger.Error("conversation: set lead status failed", "error", err)
			}
		} else if err := e.store.TouchLead(ctx, t.businessID, t.lead.ID, now); err != nil {
			e.logger.Error("conversation: touch lead failed", "error", err)
		}
	}
}

func (e *Engine) emit(ctx context.Context, t *turn, eventType string, payload map[string]any) {
	if e.events == nil {
		return
	}
	e.events.Record(ctx, t.businessID, eventType, payload, true, "")
}
