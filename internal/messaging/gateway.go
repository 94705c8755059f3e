// Package messaging sends outbound SMS through a pluggable gateway.
package messaging

import "context"

// SendResult reports a successful gateway dispatch.
type SendResult struct {
	MessageID string
	Status    string
}

// Gateway abstracts an SMS provider. Implementations must bound their own
// timeouts; errors carry the provider's human-readable failure text.
type Gateway interface {
	Name() string
	Send(ctx context.Context, to, from, body string) (*SendResult, error)
}
