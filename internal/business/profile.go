// Package business provides per-business configuration and its Redis-backed store.
package business

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/booklinehq/bookline-platform/internal/scheduling"
)

// Profile holds the per-business settings the conversation engine and the
// reminder sweep need at request time.
type Profile struct {
	BusinessID string `json:"business_id"`
	Name       string `json:"name"`
	Timezone   string `json:"timezone"` // IANA name, e.g. "America/Chicago"
	SMSFrom    string `json:"sms_from"` // E.164 sending number
	// Default appointment length when a booking has no service type.
	DefaultDurationMinutes int `json:"default_duration_minutes"`
	// Optional overrides of the standard working window.
	OpenHour      int   `json:"open_hour,omitempty"`
	LastStartHour int   `json:"last_start_hour,omitempty"`
	CloseHour     int   `json:"close_hour,omitempty"`
	ClosedDays    []int `json:"closed_days,omitempty"` // time.Weekday values
}

// DefaultProfile returns a profile with the standard working window.
func DefaultProfile(businessID string) *Profile {
	return &Profile{
		BusinessID:             businessID,
		Timezone:               "America/New_York",
		DefaultDurationMinutes: 120,
	}
}

// Location resolves the profile timezone, falling back to UTC.
func (p *Profile) Location() *time.Location {
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil || p.Timezone == "" {
		return time.UTC
	}
	return loc
}

// Configured reports whether the profile can send outbound SMS.
func (p *Profile) Configured() bool {
	return p != nil && p.SMSFrom != ""
}

// HoursPolicy converts the profile's overrides into a scheduling policy,
// falling back to the standard window for unset fields.
func (p *Profile) HoursPolicy() scheduling.HoursPolicy {
	policy := scheduling.DefaultHoursPolicy()
	if p == nil {
		return policy
	}
	if p.OpenHour > 0 {
		policy.OpenHour = p.OpenHour
	}
	if p.LastStartHour > 0 {
		policy.LastStartHour = p.LastStartHour
	}
	if p.CloseHour > 0 {
		policy.CloseHour = p.CloseHour
	}
	if len(p.ClosedDays) > 0 {
		policy.ExcludedWeekdays = policy.ExcludedWeekdays[:0]
		for _, d := range p.ClosedDays {
			policy.ExcludedWeekdays = append(policy.ExcludedWeekdays, time.Weekday(d))
		}
	}
	return policy
}

// DefaultSource serves the default profile for every business. Used when
// Redis is unavailable so the engine and sweep keep working.
type DefaultSource struct{}

// Get returns the default profile for the business.
func (DefaultSource) Get(_ context.Context, businessID string) (*Profile, error) {
	return DefaultProfile(businessID), nil
}

// Store provides persistence for business profiles.
type Store struct {
	redis *redis.Client
}

// NewStore creates a new profile store.
func NewStore(redisClient *redis.Client) *Store {
	return &Store{redis: redisClient}
}

func (s *Store) key(businessID string) string {
	return fmt.Sprintf("business:profile:%s", businessID)
}

// Get retrieves a profile, returning the default if none is saved.
func (s *Store) Get(ctx context.Context, businessID string) (*Profile, error) {
	data, err := s.redis.Get(ctx, s.key(businessID)).Bytes()
	if err == redis.Nil {
		return DefaultProfile(businessID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("business: get profile: %w", err)
	}

	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("business: unmarshal profile: %w", err)
	}
	return &p, nil
}

// Set saves a profile.
func (s *Store) Set(ctx context.Context, p *Profile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("business: marshal profile: %w", err)
	}
	if err := s.redis.Set(ctx, s.key(p.BusinessID), data, 0).Err(); err != nil {
		return fmt.Errorf("business: set profile: %w", err)
	}
	return nil
}
