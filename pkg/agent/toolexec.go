package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/tinyclaw/tinyclaw/pkg/bus"
	"github.com/tinyclaw/tinyclaw/pkg/logger"
	"github.com/tinyclaw/tinyclaw/pkg/providers"
	"github.com/tinyclaw/tinyclaw/pkg/utils"
)

// executeToolsSequentially runs every tool call from one assistant turn,
// honoring al.maxParallelTools as a concurrency cap (1 = strictly
// sequential, the default). Results always come back in the model's
// declared order regardless of completion order, since a later call may
// depend on an earlier one's output even when dispatched concurrently. A
// statusNotifier provides periodic "still working" pings as a fallback for
// very long batches.
func (al *AgentLoop) executeToolsSequentially(
	ctx context.Context,
	toolCalls []providers.ToolCall,
	iteration int,
	opts processOptions,
) []providers.Message {
	n := len(toolCalls)
	results := make([]providers.Message, n)

	var notifier *statusNotifier
	sendProgress := opts.Channel != "system"
	if al.statusDelay > 0 && sendProgress {
		notifier = newStatusNotifier(al.bus, opts.Channel, opts.ChatID, al.statusDelay)
		notifier.start(fmt.Sprintf("%d tools", n))
	}

	run := func(idx int, tc providers.ToolCall) {
		argsJSON, _ := json.Marshal(tc.Arguments)
		argsPreview := utils.Truncate(string(argsJSON), 200)
		logger.InfoCF("agent", fmt.Sprintf("Tool call: %s(%s)", tc.Name, argsPreview),
			map[string]interface{}{
				"tool":      tc.Name,
				"iteration": iteration,
				"order":     idx,
			})

		callCtx := ctx
		cancel := func() {}
		if al.toolTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, al.toolTimeout)
		}
		result, err := al.tools.ExecuteWithContext(callCtx, tc.Name, tc.Arguments, opts.Channel, opts.ChatID)
		cancel()
		if err != nil {
			result = fmt.Sprintf("Error: %v", err)
		}

		results[idx] = providers.Message{
			Role:       "tool",
			Content:    result,
			ToolCallID: tc.ID,
		}

		if sendProgress && n > 1 {
			al.bus.PublishOutbound(bus.OutboundMessage{
				Channel: opts.Channel,
				ChatID:  opts.ChatID,
				Content: fmt.Sprintf("%s done (%d/%d)", tc.Name, idx+1, n),
			})
		}
	}

	if al.maxParallelTools <= 1 || n <= 1 {
		for idx, tc := range toolCalls {
			run(idx, tc)
		}
	} else {
		sem := make(chan struct{}, al.maxParallelTools)
		var wg sync.WaitGroup
		for idx, tc := range toolCalls {
			wg.Add(1)
			sem <- struct{}{}
			go func(idx int, tc providers.ToolCall) {
				defer wg.Done()
				defer func() { <-sem }()
				run(idx, tc)
			}(idx, tc)
		}
		wg.Wait()
	}

	if notifier != nil {
		notifier.stop()
	}

	return results
}
