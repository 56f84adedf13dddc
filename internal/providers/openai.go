package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	openai "github.com/meguminnnnnnnnn/go-openai"

	"github.com/pmnowak/ollama-code/internal/engine"
)

// OpenAIClient implements engine.LLMClient against OpenAI and
// OpenAI-compatible endpoints (LM Studio, DeepSeek, Groq, and Ollama's
// /v1 shim).
type OpenAIClient struct {
	client  *openai.Client
	model   string
	baseURL string
}

func NewOpenAIClient(apiKey, modelName, baseURL string) (*OpenAIClient, error) {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAIClient{
		client:  openai.NewClientWithConfig(config),
		model:   modelName,
		baseURL: baseURL,
	}, nil
}

// convertToOpenAIMessages maps engine history to wire messages. The
// system message is returned separately so it can be prepended. Tool
// messages that do not follow an assistant tool call are dropped, and
// empty contents are padded because some backends serialize "" as null
// and then reject their own payload.
func convertToOpenAIMessages(messages []engine.ChatMessage) ([]openai.ChatCompletionMessage, string) {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	var systemMsg string
	var prevAssistantHadToolCalls bool

	for i, msg := range messages {
		switch msg.Role {
		case engine.RoleSystem:
			systemMsg = msg.Content
			prevAssistantHadToolCalls = false
		case engine.RoleUser:
			out = append(out, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: msg.Content,
			})
			prevAssistantHadToolCalls = false
		case engine.RoleAssistant:
			content := msg.Content
			if content == "" {
				content = " "
			}
			var toolCalls []openai.ToolCall
			for _, tc := range msg.ToolCalls {
				argsJSON, _ := json.Marshal(tc.Args)
				toolCalls = append(toolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: "function",
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(argsJSON),
					},
				})
			}
			out = append(out, openai.ChatCompletionMessage{
				Role:      openai.ChatMessageRoleAssistant,
				Content:   content,
				ToolCalls: toolCalls,
			})
			prevAssistantHadToolCalls = len(msg.ToolCalls) > 0
		case engine.RoleTool:
			if !prevAssistantHadToolCalls {
				continue
			}
			content := msg.Content
			if content == "" {
				content = "{}"
			}
			// msg.Name carries the tool call ID, not the tool name.
			out = append(out, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				ToolCallID: msg.Name,
				Content:    content,
			})
			if i+1 < len(messages) && messages[i+1].Role == engine.RoleAssistant {
				prevAssistantHadToolCalls = false
			}
		}
	}
	return out, systemMsg
}

func convertToOpenAITools(toolSchemas []engine.ToolSchema) ([]openai.Tool, error) {
	var tools []openai.Tool
	for _, ts := range toolSchemas {
		var schemaObj map[string]any
		if err := json.Unmarshal([]byte(ts.JSONSchema), &schemaObj); err != nil {
			return nil, fmt.Errorf("invalid tool schema JSON for %s: %w", ts.Name, err)
		}
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        ts.Name,
				Description: ts.Description,
				Parameters:  schemaObj,
			},
		})
	}
	return tools, nil
}

func buildOpenAIRequest(modelName string, messages []engine.ChatMessage, toolSchemas []engine.ToolSchema, opts engine.ChatOptions) (openai.ChatCompletionRequest, error) {
	openaiMsgs, systemMsg := convertToOpenAIMessages(messages)
	tools, err := convertToOpenAITools(toolSchemas)
	if err != nil {
		return openai.ChatCompletionRequest{}, err
	}

	req := openai.ChatCompletionRequest{
		Model:    modelName,
		Messages: openaiMsgs,
	}
	if systemMsg != "" {
		req.Messages = append([]openai.ChatCompletionMessage{{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemMsg,
		}}, req.Messages...)
	}
	if len(tools) > 0 {
		req.Tools = tools
		req.ToolChoice = "auto"
	}
	if opts.MaxOutputTokens > 0 {
		req.MaxTokens = opts.MaxOutputTokens
	}
	if opts.Temperature > 0 {
		req.Temperature = &opts.Temperature
	}
	return req, nil
}

// Chat implements engine.LLMClient.
func (c *OpenAIClient) Chat(ctx context.Context, modelName string, messages []engine.ChatMessage, toolSchemas []engine.ToolSchema, opts engine.ChatOptions) (engine.LLMResponse, error) {
	req, err := buildOpenAIRequest(modelName, messages, toolSchemas, opts)
	if err != nil {
		return engine.LLMResponse{}, err
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		httpStatus, retryAfter := extractErrorMetadata(err)
		return engine.LLMResponse{}, engine.WrapLLMError(err, httpStatus, retryAfter)
	}
	if len(resp.Choices) == 0 {
		return engine.LLMResponse{}, fmt.Errorf("empty response from provider")
	}

	choice := resp.Choices[0]
	var toolCalls []engine.ToolCall
	for _, tc := range choice.Message.ToolCalls {
		args := make(map[string]any)
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				args = make(map[string]any)
			}
		}
		toolCalls = append(toolCalls, engine.ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: args,
		})
	}

	finishReason := "stop"
	switch {
	case len(toolCalls) > 0:
		finishReason = "tool_calls"
	case choice.FinishReason == openai.FinishReasonLength:
		finishReason = "length"
	case choice.FinishReason == openai.FinishReasonContentFilter:
		finishReason = "content_filter"
	}

	return engine.LLMResponse{
		Assistant: engine.ChatMessage{
			Role:      engine.RoleAssistant,
			Content:   choice.Message.Content,
			ToolCalls: toolCalls,
		},
		ToolCalls: toolCalls,
		Usage: engine.Usage{
			Prompt:     resp.Usage.PromptTokens,
			Completion: resp.Usage.CompletionTokens,
			Total:      resp.Usage.TotalTokens,
		},
		FinishReason: finishReason,
	}, nil
}

// toolCallAccumulator assembles a tool call from per-field deltas. The
// arguments arrive as raw JSON fragments and can only be parsed once the
// stream ends.
type toolCallAccumulator struct {
	toolCall engine.ToolCall
	argsJSON strings.Builder
	index    int
}

// Stream implements engine.LLMClient.
func (c *OpenAIClient) Stream(ctx context.Context, modelName string, messages []engine.ChatMessage, toolSchemas []engine.ToolSchema, opts engine.ChatOptions) (<-chan engine.StreamEvent, <-chan error) {
	eventCh := make(chan engine.StreamEvent, 10)
	errCh := make(chan error, 1)

	go func() {
		defer close(eventCh)
		defer close(errCh)

		req, err := buildOpenAIRequest(modelName, messages, toolSchemas, opts)
		if err != nil {
			errCh <- err
			return
		}
		req.Stream = true
		req.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

		stream, err := c.client.CreateChatCompletionStream(ctx, req)
		if err != nil {
			httpStatus, retryAfter := extractErrorMetadata(err)
			errCh <- engine.WrapLLMError(err, httpStatus, retryAfter)
			return
		}
		defer stream.Close()

		accum := make(map[string]*toolCallAccumulator)
		nextIndex := 0
		var finalUsage engine.Usage

		for {
			response, err := stream.Recv()
			if err != nil {
				if !isStreamEOF(err) {
					httpStatus, retryAfter := extractErrorMetadata(err)
					errCh <- engine.WrapLLMError(err, httpStatus, retryAfter)
					return
				}
				emitAccumulatedCalls(ctx, eventCh, accum)
				if finalUsage.Total > 0 {
					select {
					case eventCh <- engine.StreamEvent{Type: "usage", Usage: finalUsage}:
					case <-ctx.Done():
					}
				}
				return
			}

			// The final chunk can carry usage with no choices when
			// stream_options.include_usage is on.
			if response.Usage != nil && response.Usage.TotalTokens > 0 {
				finalUsage = engine.Usage{
					Prompt:     response.Usage.PromptTokens,
					Completion: response.Usage.CompletionTokens,
					Total:      response.Usage.TotalTokens,
				}
			}
			if len(response.Choices) == 0 {
				continue
			}
			delta := response.Choices[0].Delta

			if delta.Content != "" {
				select {
				case eventCh <- engine.StreamEvent{Type: "text_delta", Text: delta.Content}:
				case <-ctx.Done():
					return
				}
			}

			for _, tcDelta := range delta.ToolCalls {
				acc := resolveAccumulator(accum, tcDelta, &nextIndex)
				if acc == nil {
					continue
				}
				if tcDelta.Function.Name != "" {
					acc.toolCall.Name = tcDelta.Function.Name
				}
				if tcDelta.Function.Arguments != "" {
					acc.argsJSON.WriteString(tcDelta.Function.Arguments)
				}
			}
		}
	}()

	return eventCh, errCh
}

// resolveAccumulator finds or creates the accumulator for a delta.
// Some backends omit the call ID on later fragments and address them by
// index instead, so both keys are honored.
func resolveAccumulator(accum map[string]*toolCallAccumulator, tcDelta openai.ToolCall, nextIndex *int) *toolCallAccumulator {
	if tcDelta.ID != "" {
		if acc, ok := accum[tcDelta.ID]; ok {
			return acc
		}
		if tcDelta.Index != nil {
			for key, acc := range accum {
				if acc.index == *tcDelta.Index {
					delete(accum, key)
					acc.toolCall.ID = tcDelta.ID
					accum[tcDelta.ID] = acc
					return acc
				}
			}
		}
		acc := &toolCallAccumulator{
			toolCall: engine.ToolCall{ID: tcDelta.ID},
			index:    *nextIndex,
		}
		if tcDelta.Index != nil {
			acc.index = *tcDelta.Index
		}
		*nextIndex = acc.index + 1
		accum[tcDelta.ID] = acc
		return acc
	}

	if tcDelta.Index == nil {
		return nil
	}
	for _, acc := range accum {
		if acc.index == *tcDelta.Index {
			return acc
		}
	}
	tempID := fmt.Sprintf("temp_%d", *tcDelta.Index)
	acc := &toolCallAccumulator{
		toolCall: engine.ToolCall{ID: tempID},
		index:    *tcDelta.Index,
	}
	accum[tempID] = acc
	return acc
}

// emitAccumulatedCalls parses each accumulated argument buffer and emits
// the calls in arrival order. Calls whose JSON never completed get their
// Error field set and are still emitted so the engine can report them.
func emitAccumulatedCalls(ctx context.Context, eventCh chan<- engine.StreamEvent, accum map[string]*toolCallAccumulator) {
	var calls []*toolCallAccumulator
	for _, acc := range accum {
		if acc.toolCall.Name == "" {
			continue
		}
		argsStr := strings.TrimSpace(acc.argsJSON.String())
		switch {
		case argsStr == "":
			acc.toolCall.Args = make(map[string]any)
		default:
			var args map[string]any
			if err := json.Unmarshal([]byte(argsStr), &args); err != nil {
				if strings.HasSuffix(argsStr, "}") || strings.HasSuffix(argsStr, "]") {
					acc.toolCall.Error = fmt.Sprintf("invalid JSON in arguments: %v", err)
				} else {
					acc.toolCall.Error = fmt.Sprintf("stream ended before arguments completed (%d bytes received)", len(argsStr))
				}
				acc.toolCall.Args = make(map[string]any)
			} else {
				acc.toolCall.Args = args
			}
		}
		calls = append(calls, acc)
	}
	sort.Slice(calls, func(i, j int) bool { return calls[i].index < calls[j].index })

	for _, acc := range calls {
		select {
		case eventCh <- engine.StreamEvent{Type: "tool_call", ToolCall: acc.toolCall}:
		case <-ctx.Done():
			return
		}
	}
}

func isStreamEOF(err error) bool {
	if errors.Is(err, io.EOF) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "EOF") || strings.Contains(errStr, "end of file")
}

// extractErrorMetadata pulls an HTTP status and Retry-After value out of
// SDK error strings, which is all some SDKs expose.
func extractErrorMetadata(err error) (int, string) {
	if err == nil {
		return 0, ""
	}
	errStr := err.Error()

	var httpStatus int
	for _, candidate := range []struct {
		needle string
		status int
	}{
		{"429", http.StatusTooManyRequests},
		{"500", http.StatusInternalServerError},
		{"502", http.StatusBadGateway},
		{"503", http.StatusServiceUnavailable},
		{"504", http.StatusGatewayTimeout},
		{"401", http.StatusUnauthorized},
		{"403", http.StatusForbidden},
		{"400", http.StatusBadRequest},
	} {
		if strings.Contains(errStr, candidate.needle) {
			httpStatus = candidate.status
			break
		}
	}

	var retryAfter string
	lower := strings.ToLower(errStr)
	if idx := strings.Index(lower, "retry-after"); idx != -1 {
		rest := strings.TrimLeft(errStr[idx+len("retry-after"):], ": ")
		if parts := strings.Fields(rest); len(parts) > 0 {
			retryAfter = parts[0]
		}
	} else if idx := strings.Index(lower, "retry after"); idx != -1 {
		rest := strings.TrimLeft(errStr[idx+len("retry after"):], ": ")
		if parts := strings.Fields(rest); len(parts) > 0 {
			retryAfter = parts[0]
		}
	}

	return httpStatus, retryAfter
}
