package engine

import (
	"context"
	"fmt"
)

// CompressionStrategy names one way of shrinking the history. Strategies
// are tried in order of aggressiveness until the budget is met.
type CompressionStrategy string

const (
	CompressionTruncate  CompressionStrategy = "truncate"
	CompressionSummarize CompressionStrategy = "summarize"
	CompressionDrop      CompressionStrategy = "drop"
)

// compressWithTruncate trims long tool outputs to head and tail halves.
func compressWithTruncate(msgs []ChatMessage, maxChars int) ([]ChatMessage, error) {
	result := make([]ChatMessage, 0, len(msgs))
	modified := false

	for _, msg := range msgs {
		if msg.Role == RoleTool && len(msg.Content) > maxChars {
			head := msg.Content[:maxChars/2]
			tail := msg.Content[len(msg.Content)-maxChars/2:]
			msg.Content = head + "\n...\n" + tail
			modified = true
		}
		result = append(result, msg)
	}

	if !modified {
		return nil, fmt.Errorf("truncation did not reduce size")
	}
	return result, nil
}

// compressWithSummarize replaces everything but the last keepLastN
// messages with an LLM-written summary.
func compressWithSummarize(ctx context.Context, llm LLMClient, st *State, msgs []ChatMessage, keepLastN int) ([]ChatMessage, error) {
	if len(msgs) <= keepLastN {
		return nil, fmt.Errorf("not enough messages to summarize")
	}

	oldMsgs := msgs[:len(msgs)-keepLastN]
	recentMsgs := msgs[len(msgs)-keepLastN:]

	summary, err := SummarizeOld(ctx, llm, st, oldMsgs)
	if err != nil {
		return nil, fmt.Errorf("summarization failed: %w", err)
	}

	return append([]ChatMessage{summary}, recentMsgs...), nil
}

// compressWithDrop keeps only the system message and the last keepLastN
// others. Last resort when summarization is unavailable or did not help.
func compressWithDrop(msgs []ChatMessage, keepLastN int) ([]ChatMessage, error) {
	var systemMsg *ChatMessage
	var otherMsgs []ChatMessage

	for i, msg := range msgs {
		if msg.Role == RoleSystem && systemMsg == nil {
			systemMsg = &msgs[i]
		} else {
			otherMsgs = append(otherMsgs, msg)
		}
	}

	if len(otherMsgs) <= keepLastN {
		return nil, fmt.Errorf("not enough messages to drop")
	}

	result := otherMsgs[len(otherMsgs)-keepLastN:]
	if systemMsg != nil {
		result = append([]ChatMessage{*systemMsg}, result...)
	}
	return result, nil
}

func compressMessages(ctx context.Context, llm LLMClient, st *State, msgs []ChatMessage, strategy CompressionStrategy) ([]ChatMessage, error) {
	switch strategy {
	case CompressionTruncate:
		return compressWithTruncate(msgs, 2000)
	case CompressionSummarize:
		return compressWithSummarize(ctx, llm, st, msgs, 8)
	case CompressionDrop:
		return compressWithDrop(msgs, 4)
	default:
		return nil, fmt.Errorf("unknown compression strategy: %v", strategy)
	}
}

// compressUntilUnderBudget applies compression strategies until the
// estimated token count fits under HardLimit minus ReserveTokens, or
// returns a BudgetError when nothing more can be done.
func compressUntilUnderBudget(
	ctx context.Context,
	llm LLMClient,
	st *State,
	msgs []ChatMessage,
	budget BudgetConfig,
	tokenizer Tokenizer,
	onCompression func(beforeTokens, afterTokens int, strategy CompressionStrategy),
) ([]ChatMessage, int, error) {
	if budget.HardLimit <= 0 {
		tokenCount, err := CountTokensForMessages(tokenizer, msgs, st.Model)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to count tokens: %w", err)
		}
		return msgs, tokenCount, nil
	}

	effectiveHardLimit := budget.HardLimit - budget.ReserveTokens
	if effectiveHardLimit <= 0 {
		return nil, 0, fmt.Errorf("hard limit too small after reserving %d tokens", budget.ReserveTokens)
	}

	currentMsgs := msgs
	attempts := 0
	attempted := make(map[CompressionStrategy]bool)
	strategies := []CompressionStrategy{CompressionTruncate, CompressionSummarize, CompressionDrop}

	for attempts < budget.MaxCompressionPasses {
		select {
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		default:
		}

		tokenCount, err := CountTokensForMessages(tokenizer, currentMsgs, st.Model)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to count tokens: %w", err)
		}
		if tokenCount <= effectiveHardLimit {
			return currentMsgs, tokenCount, nil
		}

		compressed := false
		for _, strategy := range strategies {
			if attempted[strategy] {
				continue
			}
			attempted[strategy] = true

			newMsgs, err := compressMessages(ctx, llm, st, currentMsgs, strategy)
			if err != nil {
				continue
			}
			newTokenCount, err := CountTokensForMessages(tokenizer, newMsgs, st.Model)
			if err != nil || newTokenCount >= tokenCount {
				continue
			}

			currentMsgs = newMsgs
			compressed = true
			if onCompression != nil {
				onCompression(tokenCount, newTokenCount, strategy)
			}
			break
		}

		if !compressed {
			return nil, tokenCount, &BudgetError{
				RequiredTokens: tokenCount,
				HardLimit:      budget.HardLimit,
				Attempts:       attempts,
			}
		}
		attempts++
	}

	finalTokenCount, err := CountTokensForMessages(tokenizer, currentMsgs, st.Model)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count final tokens: %w", err)
	}
	if finalTokenCount > effectiveHardLimit {
		return nil, finalTokenCount, &BudgetError{
			RequiredTokens: finalTokenCount,
			HardLimit:      budget.HardLimit,
			Attempts:       attempts,
		}
	}
	return currentMsgs, finalTokenCount, nil
}
