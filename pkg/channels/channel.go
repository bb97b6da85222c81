package channels

import (
	"context"

	"github.com/tinyclaw/tinyclaw/pkg/bus"
)

// Channel is the capability set every inbound/outbound adapter implements:
// a start/stop lifecycle, an outbound delivery method, and a sender
// allowlist check. The agent loop and Manager only ever talk to this
// interface, never to a concrete adapter type.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Send(ctx context.Context, msg bus.OutboundMessage) error
	IsRunning() bool
	IsAllowed(senderID string) bool
}
