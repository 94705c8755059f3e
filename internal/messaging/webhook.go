package messaging

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const defaultSignatureSkew = 5 * time.Minute

// WebhookVerifier validates provider webhook signatures: HMAC-SHA256 over
// "timestamp.payload" with a bounded clock skew.
type WebhookVerifier struct {
	secret  string
	maxSkew time.Duration
	now     func() time.Time
}

// NewWebhookVerifier creates a verifier for the shared webhook secret.
func NewWebhookVerifier(secret string) *WebhookVerifier {
	return &WebhookVerifier{
		secret:  secret,
		maxSkew: defaultSignatureSkew,
		now:     time.Now,
	}
}

// Verify checks the signature header against the raw request body.
func (v *WebhookVerifier) Verify(timestamp, signature string, payload []byte) error {
	if v.secret == "" {
		return errors.New("messaging: webhook secret not configured")
	}
	ts := strings.TrimSpace(timestamp)
	if ts == "" {
		return errors.New("messaging: missing signature timestamp")
	}
	sec, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("messaging: invalid signature timestamp: %w", err)
	}
	sentAt := time.Unix(sec, 0)
	if diff := v.now().Sub(sentAt); diff > v.maxSkew || diff < -v.maxSkew {
		return fmt.Errorf("messaging: signature timestamp skew %s exceeds limit", diff)
	}

	mac := hmac.New(sha256.New, []byte(v.secret))
	mac.Write([]byte(ts + "."))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	actual := strings.ToLower(strings.TrimSpace(signature))
	if actual == "" {
		return errors.New("messaging: missing signature header")
	}
	if !hmac.Equal([]byte(expected), []byte(actual)) {
		return errors.New("messaging: signature mismatch")
	}
	return nil
}
