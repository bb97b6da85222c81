package bus

import (
	"context"
	"testing"
	"time"
)

// These guard a shutdown ordering bug: a channel adapter goroutine can
// still be mid-publish when the bus is torn down, and neither side should
// panic or hang as a result.
func TestOperationsAfterCloseDoNotPanicOrHang(t *testing.T) {
	t.Run("publishing inbound after close", func(t *testing.T) {
		mb := NewMessageBus()
		mb.Close()

		assertNoPanic(t, func() {
			mb.PublishInbound(InboundMessage{Channel: "telegram", ChatID: "chat-1", Content: "late arrival"})
		})
	})

	t.Run("publishing outbound after close", func(t *testing.T) {
		mb := NewMessageBus()
		mb.Close()

		assertNoPanic(t, func() {
			mb.PublishOutbound(OutboundMessage{Channel: "telegram", ChatID: "chat-1", Content: "late reply"})
		})
	})

	t.Run("consuming inbound after close returns immediately with ok=false", func(t *testing.T) {
		mb := NewMessageBus()
		mb.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		if _, ok := mb.ConsumeInbound(ctx); ok {
			t.Fatal("expected ok=false after Close")
		}
	})

	t.Run("subscribing outbound after close returns immediately with ok=false", func(t *testing.T) {
		mb := NewMessageBus()
		mb.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		if _, ok := mb.SubscribeOutbound(ctx); ok {
			t.Fatal("expected ok=false after Close")
		}
	})
}

func assertNoPanic(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("expected no panic, got: %v", r)
		}
	}()
	fn()
}
