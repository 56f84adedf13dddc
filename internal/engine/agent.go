package engine

import (
	"context"

	"github.com/pmnowak/ollama-code/internal/prompts"
)

// Agent ties an LLM client, a tool registry and an approver into a
// reusable conversation. History is preserved across Run calls.
type Agent struct {
	llm       LLMClient
	tools     ToolRegistry
	approver  Approver
	config    AgentConfig
	hooks     Hooks
	prompt    *prompts.Prompt
	lastState *State
}

// Run executes a single user message through the loop.
func (a *Agent) Run(ctx context.Context, userMessage string) error {
	var st *State

	if a.lastState != nil && len(a.lastState.History) > 0 {
		st = &State{
			History:  make([]ChatMessage, len(a.lastState.History)),
			Model:    a.config.Model,
			MaxSteps: a.config.MaxSteps,
			Budget:   a.config.Budget,
			Totals:   a.lastState.Totals,
		}
		copy(st.History, a.lastState.History)
	} else {
		st = a.freshState()
	}

	st.Append(ChatMessage{Role: RoleUser, Content: userMessage})

	maxOutputTokens := a.config.MaxOutputTokens
	if maxOutputTokens == 0 {
		maxOutputTokens = 8192
	}
	opts := ChatOptions{
		MaxOutputTokens: maxOutputTokens,
		NumCtx:          a.config.NumCtx,
		RetryConfig:     a.config.RetryConfig,
		Compression:     a.config.Compression,
	}

	var err error
	if a.config.Streaming {
		err = RunStream(ctx, a.llm, a.tools, a.approver, st, a.hooks, opts)
	} else {
		err = Run(ctx, a.llm, a.tools, a.approver, st, a.hooks, opts)
	}
	a.lastState = st
	return err
}

func (a *Agent) freshState() *State {
	history := []ChatMessage{}
	if a.prompt != nil {
		history = append(history, ChatMessage{Role: RoleSystem, Content: a.prompt.Content})
	}
	return &State{
		History:  history,
		Model:    a.config.Model,
		MaxSteps: a.config.MaxSteps,
		Budget:   a.config.Budget,
	}
}

// Append injects a message into the conversation without running the
// loop. Used for restoring sessions and recording skipped turns.
func (a *Agent) Append(msg ChatMessage) {
	if a.lastState == nil {
		a.lastState = a.freshState()
	}
	a.lastState.Append(msg)
}

// History returns the current conversation, or nil before the first turn.
// Callers must treat it as read-only.
func (a *Agent) History() []ChatMessage {
	if a.lastState == nil {
		return nil
	}
	return a.lastState.History
}

// LastState returns the most recent state after Run completes.
func (a *Agent) LastState() *State { return a.lastState }

// Model returns the current model name.
func (a *Agent) Model() string { return a.config.Model }

// ClearHistory drops the conversation, keeping only the system prompt.
func (a *Agent) ClearHistory() {
	a.lastState = a.freshState()
}

// SetHistory replaces the conversation, e.g. when resuming a session or
// after a root change. The agent's own system prompt supersedes any
// leading system message in the restored history, so the model always
// sees the current working directory and prompt version.
func (a *Agent) SetHistory(history []ChatMessage) {
	st := a.freshState()
	if len(history) > 0 && history[0].Role == RoleSystem {
		history = history[1:]
	}
	st.History = append(st.History, history...)
	a.lastState = st
}

// SetLLM hot-swaps the client and model at runtime. History survives the
// swap, which is what makes the /model command cheap.
func (a *Agent) SetLLM(client LLMClient, modelName string) {
	a.llm = client
	a.config.Model = modelName
	if a.config.Budget.HardLimit == 0 || a.config.Budget == DefaultBudgetConfig() {
		a.config.Budget = GetModelLimits(modelName)
	}
	if a.lastState != nil {
		a.lastState.Model = modelName
		a.lastState.Budget = a.config.Budget
	}
}
