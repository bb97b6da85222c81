package providers

import (
	"context"
	"time"
)

// ChatWithTimeout bounds a single Chat call so one slow upstream round-trip
// can't stall an iteration loop indefinitely. timeout <= 0 disables the
// bound and just forwards ctx.
func ChatWithTimeout(
	ctx context.Context,
	timeout time.Duration,
	provider LLMProvider,
	messages []Message,
	tools []ToolDefinition,
	model string,
	options map[string]interface{},
) (*LLMResponse, error) {
	callCtx := ctx
	cancel := func() {}
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	return provider.Chat(callCtx, messages, tools, model, options)
}
