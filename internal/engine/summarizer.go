package engine

import (
	"context"
	"strings"
)

const summarizeSystem = `You compress prior chat history for a coding assistant. Preserve decisions, file paths, function names, errors, and TODOs. Omit pleasantries and redundant logs.`

// SummarizeOld compresses a window of history into one system message.
// The summary replaces the window, so it must carry every fact the model
// could still need.
func SummarizeOld(ctx context.Context, llm LLMClient, st *State, window []ChatMessage) (ChatMessage, error) {
	msgs := []ChatMessage{
		{Role: RoleSystem, Content: summarizeSystem},
		{Role: RoleUser, Content: "Summarize the following history in <= 200 tokens, preserve facts and decisions:\n\n" + RenderForSummary(window)},
	}
	resp, err := llm.Chat(ctx, st.Model, msgs, nil, ChatOptions{MaxOutputTokens: 256})
	if err != nil {
		return ChatMessage{}, err
	}
	summary := strings.TrimSpace(resp.Assistant.Content)
	return ChatMessage{Role: RoleSystem, Content: "<history_summary>\n" + summary + "\n</history_summary>"}, nil
}

// RenderForSummary flattens messages to plain text for summarization
// prompts.
func RenderForSummary(ms []ChatMessage) string {
	var b strings.Builder
	for _, m := range ms {
		b.WriteString("[" + string(m.Role) + "] ")
		b.WriteString(m.Content)
		b.WriteString("\n\n")
	}
	return b.String()
}
