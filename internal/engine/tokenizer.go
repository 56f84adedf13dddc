package engine

import (
	"fmt"
	"strings"
)

// Tokenizer counts tokens for a given model. Local models do not expose
// their tokenizers over the API, so estimation is the norm here.
type Tokenizer interface {
	CountTokens(text string, model string) (int, error)
}

// EstimateTokens gives a rough count: ~4 characters per token for
// English and code, discounted a little for whitespace-heavy text.
func EstimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}

	charCount := len([]rune(text))
	whitespaceCount := strings.Count(text, " ") + strings.Count(text, "\n") + strings.Count(text, "\t")

	estimated := (charCount / 4) + (whitespaceCount / 6)
	if estimated < 1 {
		return 1
	}
	return estimated
}

// DefaultTokenizer estimates when no model-specific tokenizer exists.
type DefaultTokenizer struct{}

func (t DefaultTokenizer) CountTokens(text string, model string) (int, error) {
	return EstimateTokens(text), nil
}

// CountTokensForMessages counts tokens for a message slice, including
// role names, tool calls, and per-message formatting overhead.
func CountTokensForMessages(tokenizer Tokenizer, messages []ChatMessage, model string) (int, error) {
	total := 0

	for _, msg := range messages {
		roleTokens, err := tokenizer.CountTokens(string(msg.Role), model)
		if err != nil {
			return 0, fmt.Errorf("failed to count role tokens: %w", err)
		}
		total += roleTokens

		contentTokens, err := tokenizer.CountTokens(msg.Content, model)
		if err != nil {
			return 0, fmt.Errorf("failed to count content tokens: %w", err)
		}
		total += contentTokens

		for _, tc := range msg.ToolCalls {
			nameTokens, err := tokenizer.CountTokens(tc.Name, model)
			if err != nil {
				return 0, fmt.Errorf("failed to count tool call name tokens: %w", err)
			}
			argsTokens, err := tokenizer.CountTokens(fmt.Sprintf("%v", tc.Args), model)
			if err != nil {
				return 0, fmt.Errorf("failed to count tool call args tokens: %w", err)
			}
			total += nameTokens + argsTokens
		}

		// per-message wire overhead
		total += 4
	}

	return total, nil
}

// GetTokenizerForModel returns a tokenizer for the model. Everything uses
// estimation today; a tiktoken-backed implementation can slot in here.
func GetTokenizerForModel(model string) Tokenizer {
	return DefaultTokenizer{}
}
