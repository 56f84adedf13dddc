package engine

import (
	"context"
	"fmt"
	"time"
)

func getRetryConfig(opts ChatOptions) *RetryConfig {
	if opts.RetryConfig != nil {
		return opts.RetryConfig
	}
	cfg := DefaultRetryConfig()
	return &cfg
}

func handleRetryExhaustion(hooks Hooks, ctx context.Context, st *State, err error) {
	if IsRetryExhausted(err) {
		hooks.OnRetryExhausted(ctx, st, err)
	}
}

// prepareMessages builds the message slice for an LLM call: a copy of the
// history run through the compression processors, then squeezed under the
// token budget if one is configured.
func prepareMessages(ctx context.Context, st *State, llm LLMClient, hooks Hooks, compressionCfg *CompressionConfig) ([]ChatMessage, error) {
	msgs := append([]ChatMessage(nil), st.History...)

	cfg := compressionCfg
	if cfg == nil {
		defaultCfg := DefaultCompressionConfig()
		cfg = &defaultCfg
	}

	if cfg.Enabled {
		var err error
		var processors []Processor
		if cfg.KeepRecentCount > 0 {
			processors = append(processors, KeepRecentToolCalls(cfg.KeepRecentCount))
		}
		processors = append(processors, SummarizeOlderThanN(llm, cfg.SummarizeThreshold))
		if cfg.KeepRecentCount > 0 {
			processors = append(processors, KeepLastN(cfg.KeepRecentCount))
		}
		processors = append(processors, TruncateLongTools(cfg.TruncateToolsAt))

		msgs, err = ApplyProcessors(ctx, st, msgs, processors...)
		if err != nil {
			return nil, err
		}
	}

	if st.Budget.HardLimit > 0 {
		tokenizer := GetTokenizerForModel(st.Model)

		beforeTokens, err := CountTokensForMessages(tokenizer, msgs, st.Model)
		if err != nil {
			return nil, fmt.Errorf("failed to count tokens: %w", err)
		}

		if st.Budget.SoftLimit > 0 && beforeTokens > st.Budget.SoftLimit {
			hooks.OnBudgetExceeded(ctx, st, beforeTokens, st.Budget.SoftLimit, st.Budget.HardLimit)
		}

		effectiveHardLimit := st.Budget.HardLimit - st.Budget.ReserveTokens
		if beforeTokens > effectiveHardLimit {
			compressedMsgs, _, err := compressUntilUnderBudget(
				ctx, llm, st, msgs, st.Budget, tokenizer,
				func(before, after int, strategy CompressionStrategy) {
					hooks.OnBudgetCompression(ctx, st, before, after, strategy)
				},
			)
			if err != nil {
				return nil, fmt.Errorf("budget compression failed: %w", err)
			}
			msgs = compressedMsgs
		}
	}

	return msgs, nil
}

func executeTool(ctx context.Context, call ToolCall, reg ToolRegistry) (string, error) {
	t, ok := reg[call.Name]
	if !ok {
		return "", fmt.Errorf("tool not found: %s (available tools: %v)", call.Name, getToolNames(reg))
	}

	if err := t.ValidateArgs(call.Args); err != nil {
		return "", fmt.Errorf("validation failed for tool %s: %w", call.Name, err)
	}

	result, err := t.Fn(ctx, call.Args)
	if err != nil {
		return "", fmt.Errorf("execution failed for tool %s: %w", call.Name, err)
	}

	return result, nil
}

func getToolNames(reg ToolRegistry) []string {
	names := make([]string, 0, len(reg))
	for name := range reg {
		names = append(names, name)
	}
	return names
}

func callLLMWithRetry(ctx context.Context, llm LLMClient, model string, msgs []ChatMessage, schemas []ToolSchema, opts ChatOptions, retryConfig *RetryConfig, hooks Hooks, st *State) (LLMResponse, error) {
	resp, err := RetryLLMCall(
		ctx,
		retryConfig.LLMPolicy,
		llm,
		model,
		msgs,
		schemas,
		opts,
		func(attempt int, delay time.Duration, retryErr error) {
			hooks.OnRetryAttempt(ctx, st, attempt, retryConfig.LLMPolicy.MaxRetries, delay, retryErr)
		},
	)
	if err != nil {
		handleRetryExhaustion(hooks, ctx, st, err)
		return LLMResponse{}, err
	}
	return resp, nil
}

// processLLMResponse accumulates usage and appends the assistant message,
// with its tool calls, to the history.
func processLLMResponse(ctx context.Context, resp LLMResponse, st *State, hooks Hooks) {
	hooks.OnAfterLLM(ctx, st, resp)

	st.Totals.Prompt += resp.Usage.Prompt
	st.Totals.Completion += resp.Usage.Completion
	st.Totals.Total += resp.Usage.Total

	assistantMsg := resp.Assistant
	assistantMsg.ToolCalls = resp.ToolCalls
	st.Append(assistantMsg)
	hooks.OnHistoryChanged(ctx, st)
}

// executeToolCalls runs the calls one at a time, asking the approver about
// each before it executes. Execution is sequential because approval is an
// interactive prompt. Results are appended as tool messages keyed by the
// call ID; failures get an "ERROR: " prefix so the model can react.
// Returns the calls that actually ran; skipped calls are not in it.
func executeToolCalls(ctx context.Context, calls []ToolCall, reg ToolRegistry, approver Approver, retryConfig *RetryConfig, hooks Hooks, st *State) ([]ToolCall, error) {
	if len(calls) == 0 {
		return nil, nil
	}
	if approver == nil {
		approver = AutoApprover{}
	}

	var executed []ToolCall
	for _, call := range calls {
		select {
		case <-ctx.Done():
			return executed, fmt.Errorf("execution cancelled: %w", ctx.Err())
		default:
		}

		hooks.OnToolCall(ctx, st, call)

		decision, err := approver.Approve(ctx, call, reg[call.Name])
		if err != nil {
			return executed, fmt.Errorf("approval failed for tool %s: %w", call.Name, err)
		}
		switch decision {
		case DecisionQuit:
			hooks.OnToolSkipped(ctx, st, call)
			return executed, ErrRunAborted
		case DecisionSkip:
			st.Append(ChatMessage{Role: RoleTool, Name: toolCallID(call), Content: SkippedResultMessage})
			hooks.OnToolSkipped(ctx, st, call)
			continue
		}

		content, err := RetryToolCall(
			ctx,
			retryConfig.ToolPolicy,
			call,
			reg,
			func(attempt int, delay time.Duration, retryErr error) {
				hooks.OnRetryAttempt(ctx, st, attempt, retryConfig.ToolPolicy.MaxRetries, delay, retryErr)
			},
		)
		handleRetryExhaustion(hooks, ctx, st, err)
		if err != nil {
			content = "ERROR: " + err.Error()
		}
		st.Append(ChatMessage{Role: RoleTool, Name: toolCallID(call), Content: content})
		hooks.OnToolResult(ctx, st, call, content, err)
		executed = append(executed, call)
	}
	hooks.OnHistoryChanged(ctx, st)
	return executed, nil
}

// toolCallID returns the ID to key the tool message by, falling back to
// the tool name for providers that do not assign IDs.
func toolCallID(call ToolCall) string {
	if call.ID != "" {
		return call.ID
	}
	return call.Name
}

// appendFailedToolCalls records provider-side decode failures in the
// history so the model can see them and retry with better arguments.
func appendFailedToolCalls(ctx context.Context, failed []ToolCall, st *State, hooks Hooks) {
	for _, call := range failed {
		errorMsg := fmt.Sprintf("ERROR: Tool %s failed - %s", call.Name, call.Error)
		st.Append(ChatMessage{Role: RoleTool, Name: toolCallID(call), Content: errorMsg})
		hooks.OnToolResult(ctx, st, call, errorMsg, fmt.Errorf("%s", call.Error))
	}
	if len(failed) > 0 {
		hooks.OnHistoryChanged(ctx, st)
	}
}

// splitToolCalls separates calls the provider decoded cleanly from ones it
// flagged with an Error.
func splitToolCalls(calls []ToolCall) (valid, failed []ToolCall) {
	for _, call := range calls {
		if call.Error != "" {
			failed = append(failed, call)
		} else {
			valid = append(valid, call)
		}
	}
	return valid, failed
}

// stepOnce executes a single cycle: prepare messages, call the model,
// append its reply, run the requested tools, append their results.
func stepOnce(ctx context.Context, llm LLMClient, reg ToolRegistry, approver Approver, st *State, hooks Hooks, opts ChatOptions) error {
	hooks.OnStepStart(ctx, st)

	msgs, err := prepareMessages(ctx, st, llm, hooks, opts.Compression)
	if err != nil {
		return err
	}

	retryConfig := getRetryConfig(opts)
	toolSchemas := reg.Schemas()

	hooks.OnBeforeLLM(ctx, st, msgs, toolSchemas)

	resp, err := callLLMWithRetry(ctx, llm, st.Model, msgs, toolSchemas, opts, retryConfig, hooks, st)
	if err != nil {
		return err
	}

	processLLMResponse(ctx, resp, st, hooks)

	if len(resp.ToolCalls) == 0 {
		st.Done = true
		return nil
	}

	valid, failed := splitToolCalls(resp.ToolCalls)
	appendFailedToolCalls(ctx, failed, st, hooks)

	if len(valid) > 0 {
		executed, err := executeToolCalls(ctx, valid, reg, approver, retryConfig, hooks, st)
		if err != nil {
			return err
		}
		// Only a respond that actually ran ends the turn; a skipped one
		// leaves the model free to try another approach.
		for _, call := range executed {
			if call.Name == "respond" {
				st.Done = true
				break
			}
		}
	}
	// If every call failed to decode, the error messages in history will
	// prompt the model to retry on the next iteration.

	return nil
}
