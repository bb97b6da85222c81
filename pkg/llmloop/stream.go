package llmloop

import (
	"context"
	"fmt"

	"github.com/tinyclaw/tinyclaw/pkg/providers"
)

// StreamProvider is satisfied by providers that can stream chat responses.
// Not every LLMProvider needs to implement it; ExecuteStream falls back to
// a non-streaming Run if the configured provider does not.
type StreamProvider interface {
	ChatStream(ctx context.Context, messages []providers.Message, tools []providers.ToolDefinition, model string, options map[string]interface{}, onChunk func(providers.StreamChunk)) error
}

// ExecuteStream runs the same iterate-until-final-text state machine as
// Run, but forwards assistant content chunks to chunkSink as they arrive
// and reassembles streamed tool-call deltas before resuming the loop.
func ExecuteStream(ctx context.Context, opts RunOptions, chunkSink func(string)) (RunResult, error) {
	streaming, ok := opts.Provider.(StreamProvider)
	if !ok {
		return Run(ctx, opts)
	}

	result := RunResult{
		Messages:  append([]providers.Message(nil), opts.Messages...),
		Exhausted: true,
	}
	if opts.MaxIterations <= 0 {
		return result, nil
	}

	for iteration := 1; iteration <= opts.MaxIterations; iteration++ {
		result.Iterations = iteration
		requestMessages := result.Messages
		if opts.MessageBudget.Enabled() {
			budgeted, stats := providers.ApplyMessageBudget(result.Messages, opts.MessageBudget)
			requestMessages = budgeted
			if opts.Hooks.MessagesBudgeted != nil && stats.Changed() {
				opts.Hooks.MessagesBudgeted(iteration, stats)
			}
		}

		var toolDefs []providers.ToolDefinition
		if opts.BuildToolDefs != nil {
			toolDefs = opts.BuildToolDefs(iteration, requestMessages)
		}
		if opts.Hooks.BeforeLLMCall != nil {
			opts.Hooks.BeforeLLMCall(iteration, requestMessages, toolDefs)
		}

		callCtx := ctx
		cancel := func() {}
		if opts.LLMTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, opts.LLMTimeout)
		}

		var content string
		var deltas []providers.ToolCallDelta
		var finishReason string
		err := streaming.ChatStream(callCtx, requestMessages, toolDefs, opts.Model, opts.ChatOptions, func(chunk providers.StreamChunk) {
			if chunk.Content != "" {
				content += chunk.Content
				if chunkSink != nil {
					chunkSink(chunk.Content)
				}
			}
			deltas = append(deltas, chunk.ToolCallDeltas...)
			if chunk.FinishReason != "" {
				finishReason = chunk.FinishReason
			}
		})
		cancel()
		if err != nil {
			if opts.Hooks.LLMCallFailed != nil {
				opts.Hooks.LLMCallFailed(iteration, err)
			}
			return result, fmt.Errorf("stream chat failed: %w", err)
		}

		toolCalls := providers.ReassembleToolCalls(deltas)
		if len(toolCalls) == 0 {
			result.FinalContent = content
			result.Exhausted = false
			if opts.Hooks.DirectResponse != nil {
				opts.Hooks.DirectResponse(iteration, content)
			}
			return result, nil
		}
		_ = finishReason

		if opts.Hooks.ToolCallsRequested != nil {
			opts.Hooks.ToolCallsRequested(iteration, toolCalls)
		}

		assistantMsg := providers.AssistantMessageFromResponse(&providers.LLMResponse{Content: content, ToolCalls: toolCalls})
		result.Messages = append(result.Messages, assistantMsg)
		if opts.Hooks.AssistantMessage != nil {
			opts.Hooks.AssistantMessage(iteration, assistantMsg)
		}

		var toolResults []providers.Message
		if opts.ExecuteTools != nil {
			toolResults = opts.ExecuteTools(ctx, toolCalls, iteration)
		}
		for _, tr := range toolResults {
			result.Messages = append(result.Messages, tr)
			if opts.Hooks.ToolResultMessage != nil {
				opts.Hooks.ToolResultMessage(iteration, tr)
			}
		}
	}

	return result, nil
}
