package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/booklinehq/bookline-platform/pkg/logging"
)

var twilioTracer = otel.Tracer("bookline.internal.messaging.twilio")

// TwilioGateway posts SMS messages using Twilio's REST API.
type TwilioGateway struct {
	accountSID string
	authToken  string
	from       string
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewTwilioGateway builds a gateway with sane defaults.
func NewTwilioGateway(accountSID, authToken, defaultFrom string, logger *logging.Logger) *TwilioGateway {
	if logger == nil {
		logger = logging.Default()
	}
	return &TwilioGateway{
		accountSID: accountSID,
		authToken:  authToken,
		from:       defaultFrom,
		baseURL:    "https://api.twilio.com",
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

var _ Gateway = (*TwilioGateway)(nil)

// Name identifies the provider.
func (g *TwilioGateway) Name() string { return SMSProviderTwilio }

type twilioMessageResponse struct {
	SID     string `json:"sid"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Send dispatches a single SMS.
func (g *TwilioGateway) Send(ctx context.Context, to, from, body string) (*SendResult, error) {
	if g.accountSID == "" || g.authToken == "" {
		return nil, errors.New("messaging: twilio credentials missing")
	}
	if to == "" {
		return nil, errors.New("messaging: to required")
	}
	if from == "" {
		from = g.from
	}
	if from == "" {
		return nil, errors.New("messaging: from required")
	}
	if strings.TrimSpace(body) == "" {
		return nil, errors.New("messaging: body required")
	}

	ctx, span := twilioTracer.Start(ctx, "messaging.twilio.send")
	defer span.End()
	span.SetAttributes(attribute.String("bookline.to", to))

	payload := url.Values{}
	payload.Set("To", to)
	payload.Set("From", from)
	payload.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", g.baseURL, g.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(payload.Encode()))
	if err != nil {
		return nil, fmt.Errorf("messaging: build twilio request: %w", err)
	}
	req.SetBasicAuth(g.accountSID, g.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("messaging: twilio send: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("messaging: read twilio response: %w", err)
	}

	var parsed twilioMessageResponse
	_ = json.Unmarshal(raw, &parsed)

	if resp.StatusCode >= 300 {
		detail := parsed.Message
		if detail == "" {
			detail = strings.TrimSpace(string(raw))
		}
		g.logger.Warn("twilio send rejected", "status", resp.StatusCode, "detail", detail)
		return nil, fmt.Errorf("messaging: twilio rejected send (%d): %s", resp.StatusCode, detail)
	}

	status := parsed.Status
	if status == "" {
		status = "queued"
	}
	return &SendResult{MessageID: parsed.SID, Status: status}, nil
}
