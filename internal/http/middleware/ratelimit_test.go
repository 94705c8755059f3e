package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiterBurstThenRefill(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	now := time.Date(2025, 3, 4, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	if !rl.Allow("203.0.113.9") || !rl.Allow("203.0.113.9") {
		t.Fatalf("expected burst of 2 to be allowed")
	}
	if rl.Allow("203.0.113.9") {
		t.Fatalf("expected third request in the same instant to be rejected")
	}
	// A different sender has its own bucket.
	if !rl.Allow("203.0.113.10") {
		t.Fatalf("expected a fresh ip to be allowed")
	}

	now = now.Add(time.Second)
	if !rl.Allow("203.0.113.9") {
		t.Fatalf("expected a token to refill after one second")
	}
}

func TestRateLimitRejectsWithRetryAfter(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mw := RateLimit(1, 1)

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/sms/messages", nil)
		req.Header.Set("X-Real-Ip", "198.51.100.7")
		rec := httptest.NewRecorder()
		mw(handler).ServeHTTP(rec, req)
		return rec
	}

	if rec := send(); rec.Code != http.StatusOK {
		t.Fatalf("expected first request to pass, got %d", rec.Code)
	}
	rec := send()
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected %d, got %d", http.StatusTooManyRequests, rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "1" {
		t.Fatalf("expected Retry-After header, got %q", got)
	}
}
