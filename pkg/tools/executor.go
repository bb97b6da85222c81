package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/tinyclaw/tinyclaw/pkg/logger"
	"github.com/tinyclaw/tinyclaw/pkg/providers"
	"github.com/tinyclaw/tinyclaw/pkg/utils"
)

// ExecuteToolCallsOptions controls how a single LLM turn's batch of tool
// calls gets run: how many execute concurrently, how long each gets before
// it's treated as timed out, and where progress callbacks land so a caller
// (like the status notifier) can tell the user something is still moving.
type ExecuteToolCallsOptions struct {
	Channel     string
	ChatID      string
	Timeout     time.Duration
	MaxParallel int // <=0 means unlimited within this batch

	LogComponent string // default: "tool"
	Iteration    int

	OnToolComplete func(completed, total, index int, call providers.ToolCall, result providers.Message)
}

// ExecuteToolCalls runs a batch of tool calls from one assistant turn,
// each isolated from the others: a panic in one tool produces an error
// result for that call rather than taking down the batch, and a slow call
// is bounded by opts.Timeout rather than stalling the rest. Results come
// back in the same order toolCalls was given, regardless of finish order.
func (r *ToolRegistry) ExecuteToolCalls(
	ctx context.Context,
	toolCalls []providers.ToolCall,
	opts ExecuteToolCallsOptions,
) []providers.Message {
	n := len(toolCalls)
	if n == 0 {
		return nil
	}

	component := opts.LogComponent
	if component == "" {
		component = "tool"
	}

	parallelLimit := n
	if opts.MaxParallel > 0 && opts.MaxParallel < parallelLimit {
		parallelLimit = opts.MaxParallel
	}

	results := make([]providers.Message, n)
	sem := make(chan struct{}, parallelLimit)
	doneCh := make(chan int, n)

	var wg sync.WaitGroup
	for i, tc := range toolCalls {
		wg.Add(1)
		go func(idx int, tc providers.ToolCall) {
			acquired := false
			defer func() {
				if acquired {
					<-sem
				}
				if rec := recover(); rec != nil {
					result := fmt.Sprintf("Error: tool %s panicked: %v", tc.Name, rec)
					logger.ErrorCF(component, "Recovered panic in tool execution",
						map[string]interface{}{
							"tool":      tc.Name,
							"iteration": opts.Iteration,
							"panic":     fmt.Sprintf("%v", rec),
						})
					results[idx] = providers.ToolResultMessage(tc.ID, result)
				}
				doneCh <- idx
				wg.Done()
			}()

			select {
			case sem <- struct{}{}:
				acquired = true
			case <-ctx.Done():
				results[idx] = providers.ToolResultMessage(tc.ID, fmt.Sprintf("Error: %v", ctx.Err()))
				return
			}

			argsJSON, _ := json.Marshal(tc.Arguments)
			argsPreview := utils.Truncate(string(argsJSON), 200)
			logger.InfoCF(component, fmt.Sprintf("Tool call: %s(%s)", tc.Name, argsPreview),
				map[string]interface{}{
					"tool":      tc.Name,
					"iteration": opts.Iteration,
				})

			toolCtx := ctx
			cancel := func() {}
			if opts.Timeout > 0 {
				toolCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
			}
			result, err := r.ExecuteWithContext(toolCtx, tc.Name, tc.Arguments, opts.Channel, opts.ChatID)
			cancel()
			if err != nil {
				result = fmt.Sprintf("Error: %v", err)
			}

			results[idx] = providers.ToolResultMessage(tc.ID, result)
		}(i, tc)
	}

	progressDone := make(chan struct{})
	go func() {
		defer close(progressDone)
		completed := 0
		for range n {
			idx := <-doneCh
			completed++
			if opts.OnToolComplete != nil {
				opts.OnToolComplete(completed, n, idx, toolCalls[idx], results[idx])
			}
		}
	}()

	wg.Wait()
	<-progressDone

	return results
}
