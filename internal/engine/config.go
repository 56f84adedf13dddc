package engine

import "time"

// CompressionConfig defines how message history is compressed before each
// call.
type CompressionConfig struct {
	Enabled            bool
	SummarizeThreshold int // summarize once history exceeds this many messages
	KeepRecentCount    int // always keep the last N messages
	TruncateToolsAt    int // max chars of tool output
}

// DefaultCompressionConfig returns defaults with enough headroom that
// short sessions are never compressed.
func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{
		Enabled:            true,
		SummarizeThreshold: 30,
		KeepRecentCount:    40,
		TruncateToolsAt:    4000,
	}
}

// DefaultRetryConfig returns the default backoff policies for LLM and
// tool calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		LLMPolicy: RetryPolicy{
			MaxRetries:   3,
			InitialDelay: 1 * time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
			Jitter:       true,
		},
		ToolPolicy: RetryPolicy{
			MaxRetries:   2,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     10 * time.Second,
			Multiplier:   2.0,
			Jitter:       true,
		},
	}
}
