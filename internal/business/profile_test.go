package business

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStore(client)
}

func TestStoreGetMissingReturnsDefault(t *testing.T) {
	store := newTestStore(t)
	p, err := store.Get(context.Background(), "biz_1")
	require.NoError(t, err)
	assert.Equal(t, "biz_1", p.BusinessID)
	assert.Equal(t, 120, p.DefaultDurationMinutes)
	assert.False(t, p.Configured())
}

func TestStoreRoundTrip(t *testing.T) {
	store := newTestStore(t)
	in := &Profile{
		BusinessID:             "biz_2",
		Name:                   "Apex Plumbing",
		Timezone:               "America/Chicago",
		SMSFrom:                "+15550001111",
		DefaultDurationMinutes: 90,
		ClosedDays:             []int{int(time.Sunday), int(time.Monday)},
	}
	require.NoError(t, store.Set(context.Background(), in))

	out, err := store.Get(context.Background(), "biz_2")
	require.NoError(t, err)
	assert.Equal(t, in, out)
	assert.True(t, out.Configured())
}

func TestProfileLocationFallback(t *testing.T) {
	p := &Profile{Timezone: "Not/AZone"}
	assert.Equal(t, time.UTC, p.Location())

	p = &Profile{Timezone: "America/Chicago"}
	assert.Equal(t, "America/Chicago", p.Location().String())
}

func TestProfileHoursPolicyOverrides(t *testing.T) {
	p := &Profile{OpenHour: 9, CloseHour: 17, ClosedDays: []int{int(time.Saturday), int(time.Sunday)}}
	policy := p.HoursPolicy()
	assert.Equal(t, 9, policy.OpenHour)
	assert.Equal(t, 17, policy.CloseHour)
	assert.Equal(t, 18, policy.LastStartHour)
	assert.Equal(t, []time.Weekday{time.Saturday, time.Sunday}, policy.ExcludedWeekdays)
}
