package engine

import (
	"context"
	"fmt"
	"log"

	"github.com/pmnowak/ollama-code/internal/prompts"
)

// AgentBuilder constructs an Agent with a fluent API.
type AgentBuilder struct {
	config   AgentConfig
	llm      LLMClient
	tools    ToolRegistry
	approver Approver
	hooks    Hooks
	prompt   *prompts.Prompt
}

// NewAgentBuilder creates a builder with default configuration.
func NewAgentBuilder() *AgentBuilder {
	return &AgentBuilder{config: DefaultAgentConfig()}
}

func (b *AgentBuilder) WithModel(model string) *AgentBuilder {
	b.config.Model = model
	return b
}

func (b *AgentBuilder) WithLLM(llm LLMClient) *AgentBuilder {
	b.llm = llm
	return b
}

func (b *AgentBuilder) WithMaxSteps(maxSteps int) *AgentBuilder {
	b.config.MaxSteps = maxSteps
	return b
}

func (b *AgentBuilder) WithMaxOutputTokens(tokens int) *AgentBuilder {
	b.config.MaxOutputTokens = tokens
	return b
}

func (b *AgentBuilder) WithNumCtx(numCtx int) *AgentBuilder {
	b.config.NumCtx = numCtx
	return b
}

func (b *AgentBuilder) WithBudget(budget BudgetConfig) *AgentBuilder {
	b.config.Budget = budget
	return b
}

func (b *AgentBuilder) WithRetryConfig(retryConfig *RetryConfig) *AgentBuilder {
	b.config.RetryConfig = retryConfig
	return b
}

func (b *AgentBuilder) WithCompressionConfig(compression *CompressionConfig) *AgentBuilder {
	b.config.Compression = compression
	return b
}

// WithToolRegistry provides a fully constructed tool registry.
func (b *AgentBuilder) WithToolRegistry(reg ToolRegistry, repoRoot string, set ToolSet) *AgentBuilder {
	b.tools = reg
	b.config.RepoRoot = repoRoot
	b.config.ToolSet = set
	return b
}

// WithApprover sets the confirmation gate consulted before each tool runs.
func (b *AgentBuilder) WithApprover(approver Approver) *AgentBuilder {
	b.approver = approver
	return b
}

// WithPrompt sets the prompt ID and version.
func (b *AgentBuilder) WithPrompt(id string, version prompts.PromptVersion) (*AgentBuilder, error) {
	registry := prompts.DefaultRegistry()
	prompt, err := registry.Get(id, version)
	if err != nil {
		return nil, err
	}
	b.prompt = prompt
	b.config.PromptID = id
	b.config.PromptVersion = version
	return b, nil
}

// WithPromptContent overrides the system prompt with prebuilt content.
func (b *AgentBuilder) WithPromptContent(prompt *prompts.Prompt) *AgentBuilder {
	b.prompt = prompt
	return b
}

func (b *AgentBuilder) WithStreaming(streaming bool) *AgentBuilder {
	b.config.Streaming = streaming
	return b
}

func (b *AgentBuilder) WithHooks(hooks Hooks) *AgentBuilder {
	b.hooks = hooks
	return b
}

// Build constructs the Agent instance.
func (b *AgentBuilder) Build(ctx context.Context) (*Agent, error) {
	if b.llm == nil {
		return nil, fmt.Errorf("LLM client not configured: use WithLLM")
	}
	if b.tools == nil {
		return nil, fmt.Errorf("tools not configured: use WithToolRegistry")
	}

	if b.config.Budget.HardLimit == 0 {
		b.config.Budget = GetModelLimits(b.config.Model)
	}

	if b.prompt == nil {
		registry := prompts.DefaultRegistry()
		prompt, err := registry.GetLatest(b.config.PromptID)
		if err != nil {
			return nil, err
		}
		b.prompt = prompt
	}

	if b.approver == nil {
		b.approver = AutoApprover{}
	}
	if b.hooks == nil {
		b.hooks = Hooks{LoggerHook{L: log.Default()}}
	}

	return &Agent{
		llm:      b.llm,
		tools:    b.tools,
		approver: b.approver,
		config:   b.config,
		hooks:    b.hooks,
		prompt:   b.prompt,
	}, nil
}
