package providers

// ChatOptions holds the per-call tuning knobs every provider accepts, typed
// instead of passed around as a raw map until the call site needs one.
type ChatOptions struct {
	MaxTokens   int
	Temperature float64
}

// ToMap renders o into the options map Chat expects. MaxTokens of 0 is
// treated as "use the provider's default" rather than an explicit cap.
func (o ChatOptions) ToMap() map[string]interface{} {
	opts := map[string]interface{}{
		"temperature": o.Temperature,
	}
	if o.MaxTokens > 0 {
		opts["max_tokens"] = o.MaxTokens
	}
	return opts
}
