package providers

import "testing"

func TestChatOptionsToMap(t *testing.T) {
	t.Run("includes max_tokens when positive", func(t *testing.T) {
		opts := ChatOptions{MaxTokens: 2048, Temperature: 0.2}.ToMap()

		if got, ok := opts["max_tokens"].(int); !ok || got != 2048 {
			t.Fatalf("max_tokens = %#v, want 2048", opts["max_tokens"])
		}
		if got, ok := opts["temperature"].(float64); !ok || got != 0.2 {
			t.Fatalf("temperature = %#v, want 0.2", opts["temperature"])
		}
	})

	t.Run("omits max_tokens when zero or negative", func(t *testing.T) {
		for _, maxTokens := range []int{0, -1} {
			opts := ChatOptions{MaxTokens: maxTokens, Temperature: 0.9}.ToMap()
			if _, ok := opts["max_tokens"]; ok {
				t.Fatalf("MaxTokens=%d: expected max_tokens to be omitted", maxTokens)
			}
			if got, ok := opts["temperature"].(float64); !ok || got != 0.9 {
				t.Fatalf("temperature = %#v, want 0.9", opts["temperature"])
			}
		}
	})
}
