package tools

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
)

func TestMessageToolDefinition(t *testing.T) {
	tool := NewMessageTool()

	if tool.Name() != "message" {
		t.Fatalf("Name() = %q, want %q", tool.Name(), "message")
	}

	props, ok := tool.Parameters()["properties"].(map[string]interface{})
	if !ok {
		t.Fatal("expected a 'properties' map in Parameters()")
	}

	media, ok := props["media"].(map[string]interface{})
	if !ok {
		t.Fatal("expected a 'media' property")
	}
	if media["type"] != "array" {
		t.Fatalf("media type = %q, want array", media["type"])
	}
	items, ok := media["items"].(map[string]interface{})
	if !ok || items["type"] != "string" {
		t.Fatalf("expected media.items.type = string, got %+v", media["items"])
	}
}

func TestMessageToolExecute(t *testing.T) {
	t.Run("delivers to an explicit channel and chat", func(t *testing.T) {
		tool := NewMessageTool()
		var gotChannel, gotChatID, gotContent string
		tool.SetSendCallback(func(channel, chatID, content string, media []string) error {
			gotChannel, gotChatID, gotContent = channel, chatID, content
			return nil
		})

		result, err := tool.Execute(context.Background(), map[string]interface{}{
			"content": "the package should arrive by Thursday",
			"channel": "telegram",
			"chat_id": "chat-884",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if gotChannel != "telegram" || gotChatID != "chat-884" {
			t.Fatalf("channel/chatID = %q/%q", gotChannel, gotChatID)
		}
		if gotContent != "the package should arrive by Thursday" {
			t.Fatalf("content = %q", gotContent)
		}
		if result == "" {
			t.Fatal("expected a non-empty result")
		}
	})

	t.Run("forwards media attachments in order", func(t *testing.T) {
		tool := NewMessageTool()
		var gotMedia []string
		tool.SetSendCallback(func(channel, chatID, content string, media []string) error {
			gotMedia = media
			return nil
		})

		_, err := tool.Execute(context.Background(), map[string]interface{}{
			"content": "here's the receipt and the warranty card",
			"channel": "telegram",
			"chat_id": "chat-884",
			"media":   []interface{}{"/tmp/receipt.jpg", "/tmp/warranty.pdf"},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(gotMedia) != 2 || gotMedia[0] != "/tmp/receipt.jpg" || gotMedia[1] != "/tmp/warranty.pdf" {
			t.Fatalf("media = %v", gotMedia)
		}
	})

	t.Run("requires content", func(t *testing.T) {
		tool := NewMessageTool()
		tool.SetSendCallback(func(string, string, string, []string) error { return nil })

		if _, err := tool.Execute(context.Background(), map[string]interface{}{}); err == nil {
			t.Fatal("expected an error for missing content")
		}
	})

	t.Run("reports a configuration error rather than failing the tool call when no callback is set", func(t *testing.T) {
		tool := NewMessageTool()

		result, err := tool.Execute(context.Background(), map[string]interface{}{
			"content": "reminder: standup in 10 minutes",
			"channel": "telegram",
			"chat_id": "chat-884",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result != "Error: Message sending not configured" {
			t.Fatalf("result = %q", result)
		}
	})

	t.Run("reports missing target when neither channel nor chat is supplied", func(t *testing.T) {
		tool := NewMessageTool()
		tool.SetSendCallback(func(string, string, string, []string) error { return nil })

		result, err := tool.Execute(context.Background(), map[string]interface{}{
			"content": "reminder: standup in 10 minutes",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result != "Error: No target channel/chat specified" {
			t.Fatalf("result = %q", result)
		}
	})

	t.Run("surfaces a delivery failure from the callback as a result string", func(t *testing.T) {
		tool := NewMessageTool()
		tool.SetSendCallback(func(string, string, string, []string) error {
			return fmt.Errorf("connection reset by peer")
		})

		result, err := tool.Execute(context.Background(), map[string]interface{}{
			"content": "reminder: standup in 10 minutes",
			"channel": "telegram",
			"chat_id": "chat-884",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result != "Error sending message: connection reset by peer" {
			t.Fatalf("result = %q", result)
		}
	})
}

func TestMessageToolPicksUpRegistryInjectedContext(t *testing.T) {
	tool := NewMessageTool()
	registry := NewToolRegistry()
	registry.Register(tool)

	var gotChannel, gotChatID string
	tool.SetSendCallback(func(channel, chatID, content string, media []string) error {
		gotChannel, gotChatID = channel, chatID
		return nil
	})

	if _, err := registry.ExecuteWithContext(context.Background(), "message", map[string]interface{}{
		"content": "standup notes posted",
	}, "telegram", "chat-ctx-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotChannel != "telegram" || gotChatID != "chat-ctx-1" {
		t.Fatalf("expected injected context telegram:chat-ctx-1, got %s:%s", gotChannel, gotChatID)
	}
}

func TestMessageToolConcurrentCallsDoNotCrossTalk(t *testing.T) {
	tool := NewMessageTool()
	registry := NewToolRegistry()
	registry.Register(tool)

	var mismatches atomic.Int32
	tool.SetSendCallback(func(channel, chatID, content string, media []string) error {
		if content != chatID {
			mismatches.Add(1)
		}
		return nil
	})

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			chatID := fmt.Sprintf("chat-%d", i)
			_, _ = registry.ExecuteWithContext(ctx, "message", map[string]interface{}{
				"content": chatID,
			}, "telegram", chatID)
		}(i)
	}
	wg.Wait()

	if got := mismatches.Load(); got != 0 {
		t.Fatalf("detected %d context/content mismatches across concurrent calls", got)
	}
}
