package tenancy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBusinessIDRoundTrip(t *testing.T) {
	ctx := WithBusinessID(context.Background(), "biz_123")
	got, ok := BusinessIDFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "biz_123", got)
}

func TestBusinessIDMissing(t *testing.T) {
	_, ok := BusinessIDFromContext(context.Background())
	assert.False(t, ok)
}

func TestBusinessIDEmpty(t *testing.T) {
	ctx := WithBusinessID(context.Background(), "")
	_, ok := BusinessIDFromContext(ctx)
	assert.False(t, ok)
}
