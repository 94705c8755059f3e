// Package handlers exposes the HTTP surface: the inbound SMS webhook and
// the staff reschedule queue.
package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/booklinehq/bookline-platform/internal/conversation"
	"github.com/booklinehq/bookline-platform/internal/events"
	"github.com/booklinehq/bookline-platform/internal/messaging"
	observemetrics "github.com/booklinehq/bookline-platform/internal/observability/metrics"
	"github.com/booklinehq/bookline-platform/pkg/logging"
)

type conversationEngine interface {
	Handle(ctx context.Context, in conversation.Inbound) (string, error)
}

type processedTracker interface {
	AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, provider, eventID string) (bool, error)
}

type signatureVerifier interface {
	Verify(timestamp, signature string, payload []byte) error
}

type eventLog interface {
	Record(ctx context.Context, businessID, eventType string, payload map[string]any, success bool, errText string)
}

// SMSWebhookHandler receives provider message webhooks, dedups redeliveries,
// and drives the conversation engine.
type SMSWebhookHandler struct {
	engine    conversationEngine
	processed processedTracker
	verifier  signatureVerifier
	gateway   messaging.Gateway
	events    eventLog
	logger    *logging.Logger
	stopAck   string
	helpAck   string
	metrics   *observemetrics.PlatformMetrics
}

type SMSWebhookConfig struct {
	Engine    conversationEngine
	Processed processedTracker
	Verifier  signatureVerifier
	Gateway   messaging.Gateway
	Events    eventLog
	Logger    *logging.Logger
	StopAck   string
	HelpAck   string
	Metrics   *observemetrics.PlatformMetrics
}

func NewSMSWebhookHandler(cfg SMSWebhookConfig) *SMSWebhookHandler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &SMSWebhookHandler{
		engine:    cfg.Engine,
		processed: cfg.Processed,
		verifier:  cfg.Verifier,
		gateway:   cfg.Gateway,
		events:    cfg.Events,
		logger:    cfg.Logger,
		stopAck:   defaultString(cfg.StopAck, "You have been opted out and will receive no further messages. Reply HELP for info."),
		helpAck:   defaultString(cfg.HelpAck, "Reply STOP to opt out, or call the business directly for assistance."),
		metrics:   cfg.Metrics,
	}
}

// HandleMessages processes provider message webhooks.
func (h *SMSWebhookHandler) HandleMessages(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if h.verifier != nil {
		if err := h.verifier.Verify(r.Header.Get("Telnyx-Timestamp"), r.Header.Get("Telnyx-Signature"), body); err != nil {
			h.logger.Warn("invalid webhook signature", "error", err)
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}
	}
	evt, err := parseProviderEvent(body)
	if err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if evt.EventType != "message.received" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if processed, err := h.processed.AlreadyProcessed(r.Context(), "telnyx", evt.ID); err != nil {
		h.logger.Error("processed lookup failed", "error", err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	} else if processed {
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := h.handleInbound(r.Context(), evt); err != nil {
		h.logger.Error("webhook handling failed", "error", err, "event_id", evt.ID)
		h.observeInbound(evt.EventType, "error")
		http.Error(w, "processing error", http.StatusInternalServerError)
		return
	}
	if h.metrics != nil {
		h.metrics.ObserveWebhookLatency(evt.EventType, time.Since(start).Seconds())
	}
	if _, err := h.processed.MarkProcessed(r.Context(), "telnyx", evt.ID); err != nil {
		h.logger.Error("failed to mark event processed", "error", err, "event_id", evt.ID)
	}
	w.WriteHeader(http.StatusOK)
}

func (h *SMSWebhookHandler) handleInbound(ctx context.Context, evt providerEvent) error {
	var payload providerMessagePayload
	if err := json.Unmarshal(evt.Payload, &payload); err != nil {
		return err
	}
	from := messaging.NormalizeE164(payload.FromNumber())
	to := messaging.NormalizeE164(payload.ToNumber())
	if from == "" || to == "" {
		h.logger.Warn("inbound webhook missing phone numbers", "event_id", evt.ID)
		h.observeInbound(evt.EventType, "dropped")
		return nil
	}

	// Carrier compliance keywords never reach the engine.
	if messaging.IsStopRequest(payload.Text) {
		if h.events != nil {
			h.events.Record(ctx, "", events.TypeOptOut, map[string]any{
				"phone": from, "keyword": strings.ToUpper(strings.TrimSpace(payload.Text)),
			}, true, "")
		}
		h.reply(ctx, to, from, h.stopAck)
		h.observeInbound(evt.EventType, "opt_out")
		return nil
	}
	if messaging.IsHelpRequest(payload.Text) {
		h.reply(ctx, to, from, h.helpAck)
		h.observeInbound(evt.EventType, "help")
		return nil
	}

	replyText, err := h.engine.Handle(ctx, conversation.Inbound{
		From:      from,
		To:        to,
		Body:      payload.Text,
		MessageID: payload.ID,
	})
	if err != nil {
		return err
	}
	h.reply(ctx, to, from, replyText)
	h.observeInbound(evt.EventType, "handled")
	return nil
}

func (h *SMSWebhookHandler) reply(ctx context.Context, from, to, body string) {
	if body == "" || h.gateway == nil {
		return
	}
	if _, err := h.gateway.Send(ctx, to, from, body); err != nil {
		h.logger.Error("reply send failed", "to", to, "error", err)
	}
}

func (h *SMSWebhookHandler) observeInbound(eventType, status string) {
	if h.metrics != nil {
		h.metrics.ObserveInbound(eventType, status)
	}
}

type providerEvent struct {
	ID         string          `json:"id"`
	EventType  string          `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// parseProviderEvent accepts both the event envelope format and the bare
// message record format some provider configurations deliver.
func parseProviderEvent(body []byte) (providerEvent, error) {
	var wrapper struct {
		Data providerEvent `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapper); err == nil && wrapper.Data.ID != "" {
		return wrapper.Data, nil
	}

	var record struct {
		ID         string    `json:"id"`
		RecordType string    `json:"record_type"`
		ReceivedAt time.Time `json:"received_at"`
		Direction  string    `json:"direction"`
	}
	if err := json.Unmarshal(body, &record); err != nil {
		return providerEvent{}, err
	}
	eventType := ""
	if record.RecordType == "message" && record.Direction == "inbound" {
		eventType = "message.received"
	}
	return providerEvent{
		ID:         record.ID,
		EventType:  eventType,
		OccurredAt: record.ReceivedAt,
		Payload:    body,
	}, nil
}

type providerMessagePayload struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	From struct {
		PhoneNumber string `json:"phone_number"`
	} `json:"from"`
	To []struct {
		PhoneNumber string `json:"phone_number"`
	} `json:"to"`
	FromNumberRaw string `json:"from_number"`
	ToNumberRaw   string `json:"to_number"`
}

func (p providerMessagePayload) FromNumber() string {
	if v := strings.TrimSpace(p.From.PhoneNumber); v != "" {
		return v
	}
	return strings.TrimSpace(p.FromNumberRaw)
}

func (p providerMessagePayload) ToNumber() string {
	if len(p.To) > 0 {
		if v := strings.TrimSpace(p.To[0].PhoneNumber); v != "" {
			return v
		}
	}
	return strings.TrimSpace(p.ToNumberRaw)
}

func defaultString(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
