package messaging

import (
	"context"

	"github.com/booklinehq/bookline-platform/pkg/logging"
)

// FailoverGateway tries a primary gateway and falls back to a secondary when
// the primary returns an error.
type FailoverGateway struct {
	primary       Gateway
	primaryName   string
	secondary     Gateway
	secondaryName string
	logger        *logging.Logger
}

// NewFailoverGateway wraps two gateways in failover order.
func NewFailoverGateway(primary Gateway, primaryName string, secondary Gateway, secondaryName string, logger *logging.Logger) *FailoverGateway {
	if logger == nil {
		logger = logging.Default()
	}
	return &FailoverGateway{
		primary:       primary,
		primaryName:   primaryName,
		secondary:     secondary,
		secondaryName: secondaryName,
		logger:        logger,
	}
}

var _ Gateway = (*FailoverGateway)(nil)

// Name identifies the composite provider.
func (g *FailoverGateway) Name() string {
	return g.primaryName + "+" + g.secondaryName
}

// Send attempts the primary, then the secondary.
func (g *FailoverGateway) Send(ctx context.Context, to, from, body string) (*SendResult, error) {
	result, err := g.primary.Send(ctx, to, from, body)
	if err == nil {
		return result, nil
	}
	g.logger.Warn("primary sms provider failed, failing over",
		"primary", g.primaryName,
		"secondary", g.secondaryName,
		"error", err,
	)
	return g.secondary.Send(ctx, to, from, body)
}
