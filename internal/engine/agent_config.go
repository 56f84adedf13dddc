package engine

import "github.com/pmnowak/ollama-code/internal/prompts"

// AgentConfig holds configuration for an agent instance.
type AgentConfig struct {
	Model           string
	MaxSteps        int
	Budget          BudgetConfig
	RetryConfig     *RetryConfig
	Compression     *CompressionConfig
	ToolSet         ToolSet
	PromptID        string
	PromptVersion   prompts.PromptVersion
	Streaming       bool
	RepoRoot        string
	NumCtx          int
	MaxOutputTokens int // 0 = default
}

// DefaultMaxSteps is the per-turn step budget. A turn that needs more than
// this is better handled by the user re-prompting with the partial result.
const DefaultMaxSteps = 20

// DefaultAgentConfig returns a configuration for a local Ollama model.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		Model:           "qwen2.5-coder:7b",
		MaxSteps:        DefaultMaxSteps,
		ToolSet:         FullToolSet(),
		PromptID:        "coding",
		Streaming:       true,
		MaxOutputTokens: 8192,
	}
}
