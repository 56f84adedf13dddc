package engine

import (
	"context"
	"fmt"
)

// MessageRole is the role of a chat message.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
)

// ChatMessage is the provider-agnostic message passed around the engine.
type ChatMessage struct {
	Role    MessageRole
	Content string
	Name    string // tool call ID for tool messages
	// ToolCalls records the calls made by an assistant message so the
	// conversation can be converted back to provider wire format.
	ToolCalls []ToolCall
}

// Validate checks that the message has a known role and, for tool
// messages, a Name linking it to the call it answers.
func (m ChatMessage) Validate() error {
	switch m.Role {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
	default:
		return fmt.Errorf("invalid message role: %s", m.Role)
	}
	if m.Role == RoleTool && m.Name == "" {
		return fmt.Errorf("tool messages must have a Name field")
	}
	return nil
}

// Usage holds token accounting returned by providers.
type Usage struct {
	Prompt     int
	Completion int
	Total      int
}

// ToolCall is a single tool invocation requested by the model.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
	// Error is set by the provider when the call could not be decoded
	// (malformed arguments, truncated stream). Such calls are never run.
	Error string
}

// LLMResponse is a normalized result of one chat call.
type LLMResponse struct {
	Assistant    ChatMessage
	ToolCalls    []ToolCall
	Usage        Usage
	FinishReason string // "stop" | "length" | "tool_calls" | "tool_error"
}

// LLMClient abstracts the model endpoint (Ollama, OpenAI-compatible,
// Anthropic). Stream sends events on the first channel and at most one
// error on the second; both are closed when the call ends.
type LLMClient interface {
	Chat(ctx context.Context, model string, messages []ChatMessage, toolSchemas []ToolSchema, opts ChatOptions) (LLMResponse, error)
	Stream(ctx context.Context, model string, messages []ChatMessage, toolSchemas []ToolSchema, opts ChatOptions) (<-chan StreamEvent, <-chan error)
}

// ChatOptions carries per-call knobs forwarded to the provider.
type ChatOptions struct {
	Temperature     float32
	MaxOutputTokens int
	NumCtx          int                // context window hint, honored by Ollama only
	RetryConfig     *RetryConfig       // nil = defaults
	Compression     *CompressionConfig // nil = defaults
}

// ToolSchema describes a tool to the model for function calling.
type ToolSchema struct {
	Name        string
	Description string
	JSONSchema  string // raw JSON Schema for the arguments object
	Retryable   bool
}

// StreamEvent is one unit of a streaming response.
type StreamEvent struct {
	Type     string // "text_delta" | "tool_call" | "usage"
	Text     string
	ToolCall ToolCall
	Usage    Usage
}

// BudgetConfig bounds the estimated prompt size for a run.
type BudgetConfig struct {
	SoftLimit            int // compress above this
	HardLimit            int // fail if compression cannot get below this
	MaxCompressionPasses int
	ReserveTokens        int // headroom kept for the response
}

// DefaultBudgetConfig returns a budget sized for common local models.
func DefaultBudgetConfig() BudgetConfig {
	return BudgetConfig{
		SoftLimit:            12000,
		HardLimit:            16000,
		MaxCompressionPasses: 5,
		ReserveTokens:        2000,
	}
}

// BudgetError indicates the history could not be compressed under the
// hard limit.
type BudgetError struct {
	RequiredTokens int
	HardLimit      int
	Attempts       int
}

func (e *BudgetError) Error() string {
	return fmt.Sprintf("budget exceeded: required %d tokens, hard limit %d (after %d compression attempts)", e.RequiredTokens, e.HardLimit, e.Attempts)
}

// ExecutionResult is the JSON contract for run_cmd output. Tool results
// are documents, not prose, so callers can unmarshal instead of parsing.
type ExecutionResult struct {
	Cmd             string `json:"cmd"`
	ExitCode        int    `json:"exit_code"`
	Stdout          string `json:"stdout"`
	Stderr          string `json:"stderr"`
	TimedOut        bool   `json:"timed_out,omitempty"`
	Status          string `json:"status,omitempty"` // "ok", "failed", "unavailable"
	Reason          string `json:"reason,omitempty"`
	StdoutTruncated bool   `json:"stdout_truncated,omitempty"`
	StderrTruncated bool   `json:"stderr_truncated,omitempty"`
}
