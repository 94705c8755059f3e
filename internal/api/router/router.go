// Package router assembles the chi route tree for the API server.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/booklinehq/bookline-platform/internal/http/handlers"
	httpmiddleware "github.com/booklinehq/bookline-platform/internal/http/middleware"
	"github.com/booklinehq/bookline-platform/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger             *logging.Logger
	SMSWebhooks        *handlers.SMSWebhookHandler
	Staff              *handlers.StaffHandler
	StaffAuthSecret    string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	WebhookRateLimit   float64
	WebhookRateBurst   int
}

// New creates the chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints: webhooks, health, metrics.
	r.Group(func(public chi.Router) {
		public.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		if cfg.SMSWebhooks != nil {
			rate := cfg.WebhookRateLimit
			burst := cfg.WebhookRateBurst
			if rate <= 0 {
				rate = 20
			}
			if burst <= 0 {
				burst = 40
			}
			public.With(httpmiddleware.RateLimit(rate, burst)).
				Post("/webhooks/sms/messages", cfg.SMSWebhooks.HandleMessages)
		}
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	// Staff endpoints, JWT-protected.
	if cfg.Staff != nil {
		r.Route("/staff", func(staff chi.Router) {
			staff.Use(httpmiddleware.StaffJWT(cfg.StaffAuthSecret))
			staff.Get("/reschedules", cfg.Staff.ListQueue)
			staff.Patch("/reschedules/{bookingID}", cfg.Staff.Patch)
			staff.Post("/reschedules/escalate", cfg.Staff.TriggerEscalation)
			staff.Post("/reminders/sweep", cfg.Staff.TriggerSweep)
		})
	}

	return r
}
