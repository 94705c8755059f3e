package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, "auto", cfg.SMSProvider)
	assert.Equal(t, 3, cfg.SlotCount)
	assert.Equal(t, 21, cfg.SlotHorizonDays)
	assert.Equal(t, 5*time.Minute, cfg.ReminderSweepEvery)
	assert.Equal(t, 150, cfg.ReminderBatchSize)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("SMS_PROVIDER", " Telnyx ")
	t.Setenv("SLOT_COUNT", "5")
	t.Setenv("REMINDER_SWEEP_INTERVAL", "90s")
	t.Setenv("REDIS_TLS", "true")

	cfg := Load()
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "telnyx", cfg.SMSProvider)
	assert.Equal(t, 5, cfg.SlotCount)
	assert.Equal(t, 90*time.Second, cfg.ReminderSweepEvery)
	assert.True(t, cfg.RedisTLS)
}

func TestLoadBadValuesFallBack(t *testing.T) {
	t.Setenv("SLOT_COUNT", "lots")
	t.Setenv("REMINDER_SWEEP_INTERVAL", "soon")

	cfg := Load()
	assert.Equal(t, 3, cfg.SlotCount)
	assert.Equal(t, 5*time.Minute, cfg.ReminderSweepEvery)
}
