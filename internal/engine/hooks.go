package engine

import (
	"context"
	"time"
)

// Hook observes the loop. Implementations embed NopHook and override what
// they need.
type Hook interface {
	OnStepStart(ctx context.Context, st *State)
	OnBeforeLLM(ctx context.Context, st *State, messages []ChatMessage, toolSchemas []ToolSchema)
	OnAfterLLM(ctx context.Context, st *State, resp LLMResponse)
	OnToolCall(ctx context.Context, st *State, call ToolCall)
	OnToolSkipped(ctx context.Context, st *State, call ToolCall)
	OnToolResult(ctx context.Context, st *State, call ToolCall, result string, err error)
	OnHistoryChanged(ctx context.Context, st *State)
	OnSummarize(ctx context.Context, st *State, before, after []ChatMessage)
	OnStreamDelta(ctx context.Context, st *State, delta string)
	OnDone(ctx context.Context, st *State)
	OnRetryAttempt(ctx context.Context, st *State, attempt int, maxAttempts int, delay time.Duration, err error)
	OnRetryExhausted(ctx context.Context, st *State, err error)
	OnBudgetExceeded(ctx context.Context, st *State, tokenCount int, softLimit int, hardLimit int)
	OnBudgetCompression(ctx context.Context, st *State, beforeTokens, afterTokens int, strategy CompressionStrategy)
}

// NopHook lets you implement only the hooks you need.
type NopHook struct{}

func (NopHook) OnStepStart(context.Context, *State)                                        {}
func (NopHook) OnBeforeLLM(context.Context, *State, []ChatMessage, []ToolSchema)           {}
func (NopHook) OnAfterLLM(context.Context, *State, LLMResponse)                            {}
func (NopHook) OnToolCall(context.Context, *State, ToolCall)                               {}
func (NopHook) OnToolSkipped(context.Context, *State, ToolCall)                            {}
func (NopHook) OnToolResult(context.Context, *State, ToolCall, string, error)              {}
func (NopHook) OnHistoryChanged(context.Context, *State)                                   {}
func (NopHook) OnSummarize(context.Context, *State, []ChatMessage, []ChatMessage)          {}
func (NopHook) OnStreamDelta(context.Context, *State, string)                              {}
func (NopHook) OnDone(context.Context, *State)                                             {}
func (NopHook) OnRetryAttempt(context.Context, *State, int, int, time.Duration, error)     {}
func (NopHook) OnRetryExhausted(context.Context, *State, error)                            {}
func (NopHook) OnBudgetExceeded(context.Context, *State, int, int, int)                    {}
func (NopHook) OnBudgetCompression(context.Context, *State, int, int, CompressionStrategy) {}
