package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/booklinehq/bookline-platform/pkg/logging"
)

var telnyxTracer = otel.Tracer("bookline.internal.messaging.telnyx")

const telnyxBaseURL = "https://api.telnyx.com/v2"

// TelnyxGateway sends SMS through Telnyx's REST API.
type TelnyxGateway struct {
	apiKey     string
	profileID  string
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewTelnyxGateway builds a gateway with sane defaults.
func NewTelnyxGateway(apiKey, profileID string, logger *logging.Logger) *TelnyxGateway {
	if logger == nil {
		logger = logging.Default()
	}
	return &TelnyxGateway{
		apiKey:    apiKey,
		profileID: profileID,
		baseURL:   telnyxBaseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

var _ Gateway = (*TelnyxGateway)(nil)

// Name identifies the provider.
func (g *TelnyxGateway) Name() string { return SMSProviderTelnyx }

type telnyxMessagePayload struct {
	From               string `json:"from"`
	To                 string `json:"to"`
	Text               string `json:"text"`
	MessagingProfileID string `json:"messaging_profile_id,omitempty"`
}

type telnyxMessageResponse struct {
	Data struct {
		ID   string `json:"id"`
		To   []struct {
			Status string `json:"status"`
		} `json:"to"`
	} `json:"data"`
	Errors []struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

// Send dispatches a single SMS.
func (g *TelnyxGateway) Send(ctx context.Context, to, from, body string) (*SendResult, error) {
	if g.apiKey == "" {
		return nil, errors.New("messaging: telnyx api key missing")
	}
	if to == "" || from == "" {
		return nil, errors.New("messaging: to and from required")
	}
	if strings.TrimSpace(body) == "" {
		return nil, errors.New("messaging: body required")
	}

	ctx, span := telnyxTracer.Start(ctx, "messaging.telnyx.send")
	defer span.End()
	span.SetAttributes(attribute.String("bookline.to", to))

	payload, err := json.Marshal(telnyxMessagePayload{
		From:               from,
		To:                 to,
		Text:               body,
		MessagingProfileID: g.profileID,
	})
	if err != nil {
		return nil, fmt.Errorf("messaging: marshal telnyx payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("messaging: build telnyx request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("messaging: telnyx send: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("messaging: read telnyx response: %w", err)
	}

	var parsed telnyxMessageResponse
	if err := json.Unmarshal(raw, &parsed); err != nil && resp.StatusCode < 300 {
		return nil, fmt.Errorf("messaging: decode telnyx response: %w", err)
	}

	if resp.StatusCode >= 300 {
		detail := strings.TrimSpace(string(raw))
		if len(parsed.Errors) > 0 {
			detail = parsed.Errors[0].Title
			if parsed.Errors[0].Detail != "" {
				detail = detail + ": " + parsed.Errors[0].Detail
			}
		}
		g.logger.Warn("telnyx send rejected", "status", resp.StatusCode, "detail", detail)
		return nil, fmt.Errorf("messaging: telnyx rejected send (%d): %s", resp.StatusCode, detail)
	}

	status := "queued"
	if len(parsed.Data.To) > 0 && parsed.Data.To[0].Status != "" {
		status = parsed.Data.To[0].Status
	}
	return &SendResult{MessageID: parsed.Data.ID, Status: status}, nil
}
