package engine

import (
	"context"
	"log"
	"time"
)

// LoggerHook writes a debug trace of the loop to a stdlib logger. The REPL
// enables it when OLLAMA_CODE_DEBUG is set; rendering for humans lives in
// the cmd layer, not here.
type LoggerHook struct{ L *log.Logger }

func (h LoggerHook) OnStepStart(_ context.Context, st *State) {
	h.L.Printf("step=%d/%d", st.Step, st.MaxSteps)
}

func (h LoggerHook) OnBeforeLLM(_ context.Context, st *State, msgs []ChatMessage, toolSchemas []ToolSchema) {
	tokenizer := GetTokenizerForModel(st.Model)
	messageTokens, _ := CountTokensForMessages(tokenizer, msgs, st.Model)

	schemaTokens := 0
	for _, schema := range toolSchemas {
		n, _ := tokenizer.CountTokens(schema.Name+schema.Description+schema.JSONSchema, st.Model)
		schemaTokens += n + 10 // per-tool wire overhead
	}

	if compressed := len(st.History) != len(msgs); compressed {
		h.L.Printf("send step=%d msgs=%d (compressed from %d) tokens~%d+%d cumulative=%d",
			st.Step, len(msgs), len(st.History), messageTokens, schemaTokens, st.Totals.Total)
	} else {
		h.L.Printf("send step=%d msgs=%d tokens~%d+%d cumulative=%d",
			st.Step, len(msgs), messageTokens, schemaTokens, st.Totals.Total)
	}
}

func (h LoggerHook) OnAfterLLM(_ context.Context, st *State, r LLMResponse) {
	h.L.Printf("finish=%s tokens: prompt=%d completion=%d total=%d (cumulative=%d)",
		r.FinishReason, r.Usage.Prompt, r.Usage.Completion, r.Usage.Total, st.Totals.Total)
}

func (h LoggerHook) OnToolCall(_ context.Context, _ *State, c ToolCall) {
	h.L.Printf("tool -> %s args=%v", c.Name, c.Args)
}

func (h LoggerHook) OnToolSkipped(_ context.Context, _ *State, c ToolCall) {
	h.L.Printf("tool %s skipped by user", c.Name)
}

func (h LoggerHook) OnToolResult(_ context.Context, _ *State, c ToolCall, result string, err error) {
	if err != nil {
		h.L.Printf("tool %s error: %v", c.Name, err)
		return
	}
	preview := result
	if len(preview) > 100 {
		preview = preview[:100] + "..."
	}
	h.L.Printf("tool %s result: %s", c.Name, preview)
}

func (h LoggerHook) OnStreamDelta(_ context.Context, _ *State, _ string) {}

func (h LoggerHook) OnDone(_ context.Context, st *State) {
	h.L.Printf("done: steps=%d tokens=%d", st.Step, st.Totals.Total)
}

func (h LoggerHook) OnHistoryChanged(_ context.Context, _ *State)                {}
func (h LoggerHook) OnSummarize(_ context.Context, _ *State, _, _ []ChatMessage) {}

func (h LoggerHook) OnRetryAttempt(_ context.Context, st *State, attempt int, maxAttempts int, delay time.Duration, err error) {
	st.Retries++
	h.L.Printf("retry attempt=%d/%d delay=%v error=%v", attempt, maxAttempts, delay, err)
}

func (h LoggerHook) OnRetryExhausted(_ context.Context, _ *State, err error) {
	h.L.Printf("retries exhausted: %v", err)
}

func (h LoggerHook) OnBudgetExceeded(_ context.Context, _ *State, tokenCount int, softLimit int, hardLimit int) {
	h.L.Printf("budget exceeded: tokens=%d soft_limit=%d hard_limit=%d", tokenCount, softLimit, hardLimit)
}

func (h LoggerHook) OnBudgetCompression(_ context.Context, _ *State, beforeTokens int, afterTokens int, strategy CompressionStrategy) {
	h.L.Printf("budget compression: %s before=%d after=%d", strategy, beforeTokens, afterTokens)
}
