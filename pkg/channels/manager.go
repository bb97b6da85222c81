package channels

import (
	"context"
	"fmt"
	"sync"

	"github.com/tinyclaw/tinyclaw/pkg/bus"
	"github.com/tinyclaw/tinyclaw/pkg/logger"
)

// Manager owns the set of registered channel adapters and the single
// dispatcher goroutine that drains the bus's outbound queue and routes
// each message to the channel named in it.
type Manager struct {
	mu          sync.RWMutex
	channels    map[string]Channel
	bus         *bus.MessageBus
	dispatchCtx context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	started     bool
}

func NewManager(msgBus *bus.MessageBus) *Manager {
	return &Manager{
		channels: make(map[string]Channel),
		bus:      msgBus,
	}
}

func (m *Manager) RegisterChannel(name string, ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[name] = ch
}

func (m *Manager) UnregisterChannel(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.channels, name)
}

func (m *Manager) GetChannel(name string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.channels[name]
	return ch, ok
}

// GetEnabledChannels returns the names of every registered channel.
func (m *Manager) GetEnabledChannels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	return names
}

// StartAll starts every registered channel and the outbound dispatcher.
// Idempotent: a second call while already started is a no-op.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	dispatchCtx, cancel := context.WithCancel(context.Background())
	m.dispatchCtx = dispatchCtx
	m.cancel = cancel
	channels := make(map[string]Channel, len(m.channels))
	for name, ch := range m.channels {
		channels[name] = ch
	}
	m.mu.Unlock()

	for name, ch := range channels {
		if err := ch.Start(ctx); err != nil {
			return fmt.Errorf("start channel %s: %w", name, err)
		}
	}

	m.wg.Add(1)
	go m.dispatchOutbound(dispatchCtx)

	return nil
}

// StopAll stops the dispatcher and every registered channel.
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = false
	cancel := m.cancel
	channels := make(map[string]Channel, len(m.channels))
	for name, ch := range m.channels {
		channels[name] = ch
	}
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.wg.Wait()

	var firstErr error
	for name, ch := range channels {
		if err := ch.Stop(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("stop channel %s: %w", name, err)
		}
	}
	return firstErr
}

func (m *Manager) dispatchOutbound(ctx context.Context) {
	defer m.wg.Done()
	for {
		msg, ok := m.bus.SubscribeOutbound(ctx)
		if !ok {
			return
		}
		ch, found := m.GetChannel(msg.Channel)
		if !found {
			logger.WarnCF("channels", "No channel registered for outbound message", map[string]interface{}{"channel": msg.Channel})
			continue
		}
		if err := ch.Send(ctx, msg); err != nil {
			logger.ErrorCF("channels", "Send failed", map[string]interface{}{"channel": msg.Channel, "error": err.Error()})
		}
	}
}

// SendToChannel delivers content directly to chatID on the named channel,
// bypassing the outbound queue. Used for one-off sends outside the normal
// agent-loop reply path.
func (m *Manager) SendToChannel(ctx context.Context, name, chatID, content string) error {
	ch, ok := m.GetChannel(name)
	if !ok {
		return fmt.Errorf("unknown channel: %s", name)
	}
	return ch.Send(ctx, bus.OutboundMessage{Channel: name, ChatID: chatID, Content: content})
}

// GetStatus reports running/enabled state per registered channel.
func (m *Manager) GetStatus() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status := make(map[string]interface{}, len(m.channels))
	for name, ch := range m.channels {
		status[name] = map[string]interface{}{
			"running": ch.IsRunning(),
			"enabled": true,
		}
	}
	return status
}
