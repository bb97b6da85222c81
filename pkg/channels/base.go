package channels

import (
	"fmt"

	"github.com/tinyclaw/tinyclaw/pkg/bus"
)

// BaseChannel carries the behavior shared by every adapter: a name, a
// sender allowlist, and the inbound-publish path. Concrete channels embed
// it and add their own transport (long polling, a REPL, a webhook).
type BaseChannel struct {
	name      string
	cfg       interface{}
	bus       *bus.MessageBus
	allowFrom map[string]bool
}

// NewBaseChannel builds a BaseChannel. cfg is opaque here: it is whatever
// channel-specific config struct the concrete adapter needs, carried only
// so constructors have a single place to stash it.
func NewBaseChannel(name string, cfg interface{}, msgBus *bus.MessageBus, allowFrom []string) *BaseChannel {
	allowed := make(map[string]bool, len(allowFrom))
	for _, id := range allowFrom {
		allowed[id] = true
	}
	return &BaseChannel{
		name:      name,
		cfg:       cfg,
		bus:       msgBus,
		allowFrom: allowed,
	}
}

func (bc *BaseChannel) Name() string {
	return bc.name
}

// IsAllowed reports whether senderID may use this channel. An empty
// allowlist means the channel is open to everyone.
func (bc *BaseChannel) IsAllowed(senderID string) bool {
	if len(bc.allowFrom) == 0 {
		return true
	}
	return bc.allowFrom[senderID]
}

// HandleMessage publishes an inbound message from senderID if allowed,
// building the session key as "<channel>:<chatID>" per the convention
// every consumer of bus.InboundMessage.SessionKey relies on.
func (bc *BaseChannel) HandleMessage(senderID, chatID, content string, media []string, metadata map[string]string) {
	if !bc.IsAllowed(senderID) {
		return
	}
	bc.bus.PublishInbound(bus.InboundMessage{
		Channel:    bc.name,
		SenderID:   senderID,
		ChatID:     chatID,
		SessionKey: fmt.Sprintf("%s:%s", bc.name, chatID),
		Content:    content,
		Media:      media,
		Metadata:   metadata,
	})
}
