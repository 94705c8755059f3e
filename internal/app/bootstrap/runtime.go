// Package bootstrap wires shared runtime dependencies for the binaries.
package bootstrap

import (
	"context"
	"crypto/tls"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/booklinehq/bookline-platform/internal/business"
	appconfig "github.com/booklinehq/bookline-platform/internal/config"
	"github.com/booklinehq/bookline-platform/internal/messaging"
	"github.com/booklinehq/bookline-platform/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		return nil
	}
	return client
}

// BuildProfileStore returns the business profile store when Redis is available.
func BuildProfileStore(redisClient *redis.Client) *business.Store {
	if redisClient == nil {
		return nil
	}
	return business.NewStore(redisClient)
}

// BuildGateway selects the SMS provider from configuration.
func BuildGateway(cfg *appconfig.Config, logger *logging.Logger) (messaging.Gateway, string) {
	gateway, name, reason := messaging.BuildGateway(messaging.ProviderSelectionConfig{
		Preference:       cfg.SMSProvider,
		TelnyxAPIKey:     cfg.TelnyxAPIKey,
		TelnyxProfileID:  cfg.TelnyxMessagingProfileID,
		TwilioAccountSID: cfg.TwilioAccountSID,
		TwilioAuthToken:  cfg.TwilioAuthToken,
		TwilioFromNumber: cfg.TwilioFromNumber,
	}, logger)
	if gateway == nil && logger != nil {
		logger.Warn("no sms gateway configured", "reason", reason)
	}
	return gateway, name
}
