package engine

import (
	"context"
	"strings"
)

// stepOnceStream is stepOnce over a streaming provider call. Text deltas
// are surfaced through OnStreamDelta as they arrive; tool calls and usage
// are collected until both channels close.
func stepOnceStream(ctx context.Context, llm LLMClient, reg ToolRegistry, approver Approver, st *State, hooks Hooks, opts ChatOptions) error {
	hooks.OnStepStart(ctx, st)

	msgs, err := prepareMessages(ctx, st, llm, hooks, opts.Compression)
	if err != nil {
		return err
	}

	retryConfig := getRetryConfig(opts)
	toolSchemas := reg.Schemas()

	hooks.OnBeforeLLM(ctx, st, msgs, toolSchemas)

	deltaCh, errCh := llm.Stream(ctx, st.Model, msgs, toolSchemas, opts)
	var assistantBuffer strings.Builder
	var respUsage Usage
	var toolCalls []ToolCall

	for deltaCh != nil || errCh != nil {
		select {
		case ev, ok := <-deltaCh:
			if !ok {
				deltaCh = nil
				continue
			}
			switch ev.Type {
			case "text_delta":
				assistantBuffer.WriteString(ev.Text)
				hooks.OnStreamDelta(ctx, st, ev.Text)
			case "tool_call":
				toolCalls = append(toolCalls, ev.ToolCall)
			case "usage":
				respUsage = ev.Usage
			}
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				handleRetryExhaustion(hooks, ctx, st, err)
				return err
			}
			errCh = nil
		}
	}

	resp := LLMResponse{
		Assistant: ChatMessage{Role: RoleAssistant, Content: assistantBuffer.String()},
		ToolCalls: toolCalls,
		Usage:     respUsage,
	}
	processLLMResponse(ctx, resp, st, hooks)

	if len(toolCalls) == 0 {
		st.Done = true
		return nil
	}

	valid, failed := splitToolCalls(toolCalls)
	appendFailedToolCalls(ctx, failed, st, hooks)

	if len(valid) > 0 {
		executed, err := executeToolCalls(ctx, valid, reg, approver, retryConfig, hooks, st)
		if err != nil {
			return err
		}
		for _, call := range executed {
			if call.Name == "respond" {
				st.Done = true
				break
			}
		}
	}

	return nil
}
