package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pmnowak/ollama-code/internal/engine"
)

// OllamaClient talks to a local Ollama server over its native API
// (/api/chat, /api/tags). It prefers native function calling and falls
// back to parsing fenced tool blocks when the model answers in text.
type OllamaClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewOllamaClient creates a client for the given base URL. Empty means
// http://localhost:11434.
func NewOllamaClient(baseURL string) *OllamaClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
			// Local models can take minutes on a cold load.
			Timeout: 10 * time.Minute,
		},
	}
}

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
}

type ollamaToolCall struct {
	Function ollamaFunction `json:"function"`
}

type ollamaFunction struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type ollamaTool struct {
	Type     string             `json:"type"`
	Function ollamaToolFunction `json:"function"`
}

type ollamaToolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

type ollamaOptions struct {
	NumCtx      int     `json:"num_ctx,omitempty"`
	Temperature float32 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Tools    []ollamaTool   `json:"tools,omitempty"`
	Stream   bool           `json:"stream"`
	Options  *ollamaOptions `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Model           string        `json:"model"`
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	DoneReason      string        `json:"done_reason"`
	PromptEvalCount int           `json:"prompt_eval_count"`
	EvalCount       int           `json:"eval_count"`
}

func convertToOllamaMessages(messages []engine.ChatMessage) []ollamaMessage {
	out := make([]ollamaMessage, 0, len(messages))
	for _, msg := range messages {
		om := ollamaMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		}
		if msg.Role == engine.RoleAssistant && len(msg.ToolCalls) > 0 {
			for _, tc := range msg.ToolCalls {
				om.ToolCalls = append(om.ToolCalls, ollamaToolCall{
					Function: ollamaFunction{Name: tc.Name, Arguments: tc.Args},
				})
			}
		}
		out = append(out, om)
	}
	return out
}

func convertToOllamaTools(schemas []engine.ToolSchema) ([]ollamaTool, error) {
	var tools []ollamaTool
	for _, ts := range schemas {
		if !json.Valid([]byte(ts.JSONSchema)) {
			return nil, fmt.Errorf("invalid tool schema JSON for %s", ts.Name)
		}
		tools = append(tools, ollamaTool{
			Type: "function",
			Function: ollamaToolFunction{
				Name:        ts.Name,
				Description: ts.Description,
				Parameters:  json.RawMessage(ts.JSONSchema),
			},
		})
	}
	return tools, nil
}

func buildOllamaOptions(opts engine.ChatOptions) *ollamaOptions {
	o := &ollamaOptions{
		NumCtx:      opts.NumCtx,
		Temperature: opts.Temperature,
		NumPredict:  opts.MaxOutputTokens,
	}
	if o.NumCtx == 0 && o.Temperature == 0 && o.NumPredict == 0 {
		return nil
	}
	return o
}

func (c *OllamaClient) post(ctx context.Context, path string, body any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, engine.WrapLLMError(err, 0, "")
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("ollama %s returned status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
		return nil, engine.WrapLLMError(err, resp.StatusCode, resp.Header.Get("Retry-After"))
	}
	return resp, nil
}

// Chat implements engine.LLMClient.
func (c *OllamaClient) Chat(ctx context.Context, model string, messages []engine.ChatMessage, toolSchemas []engine.ToolSchema, opts engine.ChatOptions) (engine.LLMResponse, error) {
	tools, err := convertToOllamaTools(toolSchemas)
	if err != nil {
		return engine.LLMResponse{}, err
	}
	req := ollamaChatRequest{
		Model:    model,
		Messages: convertToOllamaMessages(messages),
		Tools:    tools,
		Stream:   false,
		Options:  buildOllamaOptions(opts),
	}

	resp, err := c.post(ctx, "/api/chat", req)
	if err != nil {
		return engine.LLMResponse{}, err
	}
	defer resp.Body.Close()

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return engine.LLMResponse{}, fmt.Errorf("decode ollama response: %w", err)
	}
	return c.normalize(chatResp), nil
}

// normalize converts a completed ollama response into an LLMResponse,
// promoting fenced tool blocks when the model did not use native calls.
func (c *OllamaClient) normalize(resp ollamaChatResponse) engine.LLMResponse {
	var toolCalls []engine.ToolCall
	for _, tc := range resp.Message.ToolCalls {
		args := tc.Function.Arguments
		if args == nil {
			args = make(map[string]any)
		}
		toolCalls = append(toolCalls, engine.ToolCall{
			ID:   newCallID(),
			Name: tc.Function.Name,
			Args: args,
		})
	}

	content := resp.Message.Content
	if len(toolCalls) == 0 {
		if parsed := ParseFencedToolCalls(content); len(parsed) > 0 {
			toolCalls = parsed
			content = StripToolBlocks(content)
		}
	}

	finishReason := "stop"
	if len(toolCalls) > 0 {
		finishReason = "tool_calls"
	} else if resp.DoneReason == "length" {
		finishReason = "length"
	}

	usage := engine.Usage{
		Prompt:     resp.PromptEvalCount,
		Completion: resp.EvalCount,
		Total:      resp.PromptEvalCount + resp.EvalCount,
	}

	return engine.LLMResponse{
		Assistant: engine.ChatMessage{
			Role:      engine.RoleAssistant,
			Content:   content,
			ToolCalls: toolCalls,
		},
		ToolCalls:    toolCalls,
		Usage:        usage,
		FinishReason: finishReason,
	}
}

// Stream implements engine.LLMClient. Ollama streams NDJSON chunks; the
// final chunk carries done=true plus the token counts. Native tool calls
// arrive whole in single chunks. Fenced fallback calls can only be
// detected once the full text is buffered, so they are emitted after the
// stream ends.
func (c *OllamaClient) Stream(ctx context.Context, model string, messages []engine.ChatMessage, toolSchemas []engine.ToolSchema, opts engine.ChatOptions) (<-chan engine.StreamEvent, <-chan error) {
	eventCh := make(chan engine.StreamEvent, 10)
	errCh := make(chan error, 1)

	go func() {
		defer close(eventCh)
		defer close(errCh)

		tools, err := convertToOllamaTools(toolSchemas)
		if err != nil {
			errCh <- err
			return
		}
		req := ollamaChatRequest{
			Model:    model,
			Messages: convertToOllamaMessages(messages),
			Tools:    tools,
			Stream:   true,
			Options:  buildOllamaOptions(opts),
		}

		resp, err := c.post(ctx, "/api/chat", req)
		if err != nil {
			errCh <- err
			return
		}
		defer resp.Body.Close()

		var fullText strings.Builder
		sawNativeCalls := false

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			var chunk ollamaChatResponse
			if err := json.Unmarshal(line, &chunk); err != nil {
				errCh <- fmt.Errorf("decode ollama stream chunk: %w", err)
				return
			}

			if chunk.Message.Content != "" {
				fullText.WriteString(chunk.Message.Content)
				select {
				case eventCh <- engine.StreamEvent{Type: "text_delta", Text: chunk.Message.Content}:
				case <-ctx.Done():
					return
				}
			}

			for _, tc := range chunk.Message.ToolCalls {
				sawNativeCalls = true
				args := tc.Function.Arguments
				if args == nil {
					args = make(map[string]any)
				}
				select {
				case eventCh <- engine.StreamEvent{
					Type:     "tool_call",
					ToolCall: engine.ToolCall{ID: newCallID(), Name: tc.Function.Name, Args: args},
				}:
				case <-ctx.Done():
					return
				}
			}

			if chunk.Done {
				if !sawNativeCalls {
					for _, tc := range ParseFencedToolCalls(fullText.String()) {
						select {
						case eventCh <- engine.StreamEvent{Type: "tool_call", ToolCall: tc}:
						case <-ctx.Done():
							return
						}
					}
				}
				usage := engine.Usage{
					Prompt:     chunk.PromptEvalCount,
					Completion: chunk.EvalCount,
					Total:      chunk.PromptEvalCount + chunk.EvalCount,
				}
				select {
				case eventCh <- engine.StreamEvent{Type: "usage", Usage: usage}:
				case <-ctx.Done():
				}
				return
			}
		}
		if err := scanner.Err(); err != nil {
			errCh <- fmt.Errorf("read ollama stream: %w", err)
		}
	}()

	return eventCh, errCh
}

type ollamaTagsResponse struct {
	Models []struct {
		Name       string    `json:"name"`
		Size       int64     `json:"size"`
		ModifiedAt time.Time `json:"modified_at"`
	} `json:"models"`
}

// ListModels returns the names of the models present on the server, via
// /api/tags.
func (c *OllamaClient) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("ollama /api/tags returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("decode ollama tags: %w", err)
	}
	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// Ping checks that the server is reachable and, when model is non-empty,
// that the model is present locally.
func (c *OllamaClient) Ping(ctx context.Context, model string) error {
	names, err := c.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("ollama server unreachable at %s: %w", c.baseURL, err)
	}
	if model == "" {
		return nil
	}
	for _, n := range names {
		if n == model || strings.TrimSuffix(n, ":latest") == model {
			return nil
		}
	}
	return fmt.Errorf("model %q not found on server (run: ollama pull %s)", model, model)
}
