package session

import (
	"context"
	"strings"

	"github.com/pmnowak/ollama-code/internal/engine"
)

// titleWindow caps how much history the title prompt sees. The user's
// intent is in the opening messages, not the tool noise after them.
const titleWindow = 10

// Summarizer produces session titles and resume summaries with the LLM.
type Summarizer struct {
	llm   engine.LLMClient
	model string
}

func NewSummarizer(llm engine.LLMClient, model string) *Summarizer {
	return &Summarizer{llm: llm, model: model}
}

// GenerateTitle produces a 3-5 word title from the start of the history.
func (s *Summarizer) GenerateTitle(ctx context.Context, history []engine.ChatMessage) (string, error) {
	if len(history) == 0 {
		return "New Session", nil
	}
	window := history
	if len(window) > titleWindow {
		window = window[:titleWindow]
	}
	return s.ask(ctx,
		"Write a title of 3 to 5 words for a coding session, based on what the user asked for and what was done. No quotes, no trailing punctuation.",
		"Session so far:\n"+engine.RenderForSummary(window)+"\n\nTitle:",
		engine.ChatOptions{MaxOutputTokens: 20, Temperature: 0.3})
}

// GenerateSummary produces the context paragraph shown when the session
// is resumed later.
func (s *Summarizer) GenerateSummary(ctx context.Context, history []engine.ChatMessage) (string, error) {
	if len(history) == 0 {
		return "", nil
	}
	return s.ask(ctx,
		"You write handoff notes for a coding assistant. Condense the session below so a future session can pick up the work: decisions made, files touched, anything broken, and the obvious next step. A short paragraph, no preamble.",
		engine.RenderForSummary(history),
		engine.ChatOptions{MaxOutputTokens: 500, Temperature: 0.1})
}

func (s *Summarizer) ask(ctx context.Context, system, user string, opts engine.ChatOptions) (string, error) {
	msgs := []engine.ChatMessage{
		{Role: engine.RoleSystem, Content: system},
		{Role: engine.RoleUser, Content: user},
	}
	resp, err := s.llm.Chat(ctx, s.model, msgs, nil, opts)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Assistant.Content), nil
}
