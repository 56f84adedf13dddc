package engine

import (
	"context"
	"fmt"
	"strings"
)

// Processor transforms the message slice before it is sent to the model.
// Processors run in order and never mutate State.History itself.
type Processor func(ctx context.Context, st *State, msgs []ChatMessage) ([]ChatMessage, error)

func ApplyProcessors(ctx context.Context, st *State, msgs []ChatMessage, ps ...Processor) ([]ChatMessage, error) {
	var err error
	for _, p := range ps {
		msgs, err = p(ctx, st, msgs)
		if err != nil {
			return msgs, err
		}
	}
	return msgs, nil
}

// pinnedMessages returns the system message and the first user message.
// Those two are never compressed away; the agent must not lose the
// original task.
func pinnedMessages(msgs []ChatMessage) []ChatMessage {
	var pinned []ChatMessage
	for i, msg := range msgs {
		if i == 0 && msg.Role == RoleSystem {
			pinned = append(pinned, msg)
		} else if msg.Role == RoleUser {
			pinned = append(pinned, msg)
			break
		}
	}
	return pinned
}

func isPinned(msg ChatMessage, pinned []ChatMessage) bool {
	for _, p := range pinned {
		if p.Role == msg.Role && p.Content == msg.Content {
			return true
		}
	}
	return false
}

// mergePinned prepends the pinned messages to msgs, skipping duplicates.
func mergePinned(pinned, msgs []ChatMessage) []ChatMessage {
	result := make([]ChatMessage, 0, len(pinned)+len(msgs))
	result = append(result, pinned...)
	for _, msg := range msgs {
		if !isPinned(msg, pinned) {
			result = append(result, msg)
		}
	}
	return result
}

// KeepLastN keeps the last N messages plus the pinned ones.
func KeepLastN(n int) Processor {
	return func(ctx context.Context, st *State, msgs []ChatMessage) ([]ChatMessage, error) {
		if len(msgs) <= n {
			return msgs, nil
		}
		return mergePinned(pinnedMessages(msgs), msgs[len(msgs)-n:]), nil
	}
}

// TruncateLongTools trims huge tool outputs, keeping head and tail.
func TruncateLongTools(maxChars int) Processor {
	return func(ctx context.Context, st *State, msgs []ChatMessage) ([]ChatMessage, error) {
		out := make([]ChatMessage, 0, len(msgs))
		for _, m := range msgs {
			if m.Role == RoleTool && len(m.Content) > maxChars {
				head := m.Content[:maxChars/2]
				tail := m.Content[len(m.Content)-maxChars/2:]
				m.Content = head + "\n...\n" + tail
			}
			out = append(out, m)
		}
		return out, nil
	}
}

// SummarizeOlderThanN compresses everything older than the last N messages
// into an LLM-written summary. Pinned messages survive intact. On
// summarization failure the old messages are dropped rather than failing
// the step.
func SummarizeOlderThanN(llm LLMClient, keepLastN int) Processor {
	return func(ctx context.Context, st *State, msgs []ChatMessage) ([]ChatMessage, error) {
		if len(msgs) <= keepLastN {
			return msgs, nil
		}

		pinned := pinnedMessages(msgs)
		recent := msgs[len(msgs)-keepLastN:]

		var toSummarize []ChatMessage
		for _, msg := range msgs[:len(msgs)-keepLastN] {
			if !isPinned(msg, pinned) {
				toSummarize = append(toSummarize, msg)
			}
		}
		if len(toSummarize) == 0 {
			return mergePinned(pinned, recent), nil
		}

		summary, err := SummarizeOld(ctx, llm, st, toSummarize)
		if err != nil {
			return mergePinned(pinned, recent), nil
		}
		return mergePinned(pinned, append([]ChatMessage{summary}, recent...)), nil
	}
}

// KeepRecentToolCalls keeps the last N tool interaction cycles in full and
// collapses older cycles into one-line summaries. A cycle is an assistant
// message with tool calls followed by its tool results.
func KeepRecentToolCalls(keepCount int) Processor {
	return func(ctx context.Context, st *State, msgs []ChatMessage) ([]ChatMessage, error) {
		if len(msgs) <= keepCount+5 {
			return msgs, nil
		}

		var systemMsg *ChatMessage
		if len(msgs) > 0 && msgs[0].Role == RoleSystem {
			systemMsg = &msgs[0]
		}

		cycles := identifyToolCycles(msgs)
		if len(cycles) <= keepCount {
			return msgs, nil
		}

		keepCycles := cycles[len(cycles)-keepCount:]
		compressCycles := cycles[:len(cycles)-keepCount]

		var result []ChatMessage
		if systemMsg != nil {
			result = append(result, *systemMsg)
		}
		if len(compressCycles) > 0 {
			summary := summarizeToolCycles(compressCycles)
			result = append(result, ChatMessage{
				Role:    RoleUser,
				Content: fmt.Sprintf("[HISTORY SUMMARY]\nPrevious %d tool interaction cycles:\n%s\n[/HISTORY SUMMARY]", len(compressCycles), summary),
			})
		}
		for _, cycle := range keepCycles {
			result = append(result, cycle.Messages...)
		}
		return result, nil
	}
}

type toolCycle struct {
	Messages []ChatMessage
	Step     int
}

func identifyToolCycles(msgs []ChatMessage) []toolCycle {
	var cycles []toolCycle
	var current []ChatMessage
	step := 0
	inCycle := false

	closeCurrent := func() {
		if len(current) > 0 {
			cycles = append(cycles, toolCycle{Messages: current, Step: step})
			current = nil
		}
	}

	for _, msg := range msgs {
		switch {
		case msg.Role == RoleSystem:
			continue
		case msg.Role == RoleAssistant && len(msg.ToolCalls) > 0:
			closeCurrent()
			step++
			inCycle = true
			current = append(current, msg)
		case inCycle && msg.Role == RoleTool:
			current = append(current, msg)
		default:
			closeCurrent()
			inCycle = false
			current = []ChatMessage{msg}
		}
	}
	closeCurrent()
	return cycles
}

func summarizeToolCycles(cycles []toolCycle) string {
	var lines []string
	for _, cycle := range cycles {
		for _, msg := range cycle.Messages {
			if msg.Role != RoleAssistant || len(msg.ToolCalls) == 0 {
				continue
			}
			for _, tc := range msg.ToolCalls {
				var result string
				for _, resultMsg := range cycle.Messages {
					if resultMsg.Role == RoleTool && resultMsg.Name == tc.ID {
						result = resultMsg.Content
						break
					}
				}
				lines = append(lines, fmt.Sprintf("- Step %d: %s", cycle.Step, summarizeToolCall(tc, result)))
			}
		}
	}
	return strings.Join(lines, "\n")
}

// summarizeToolCall renders a one-line record of a call and its outcome.
func summarizeToolCall(tc ToolCall, result string) string {
	failed := strings.HasPrefix(result, "ERROR")
	switch tc.Name {
	case "read_file":
		if file, ok := tc.Args["path"].(string); ok {
			return fmt.Sprintf("read_file(%s): %d bytes", file, len(result))
		}
	case "write_file":
		if file, ok := tc.Args["path"].(string); ok {
			if failed {
				return fmt.Sprintf("write_file(%s): FAILED", file)
			}
			return fmt.Sprintf("write_file(%s): written", file)
		}
	case "search_replace":
		if file, ok := tc.Args["path"].(string); ok {
			if failed {
				return fmt.Sprintf("search_replace(%s): FAILED", file)
			}
			return fmt.Sprintf("search_replace(%s): edited", file)
		}
	case "list_files":
		if dir, ok := tc.Args["path"].(string); ok {
			return fmt.Sprintf("list_files(%s): listed", dir)
		}
	case "grep":
		if failed {
			return "grep: FAILED"
		}
		if strings.Contains(result, "\"count\":0") {
			return "grep: no matches"
		}
		return "grep: found matches"
	case "run_cmd":
		if cmd, ok := tc.Args["cmd"].(string); ok {
			if failed || !strings.Contains(result, "\"exit_code\":0") {
				return fmt.Sprintf("run_cmd(%s): failed", cmd)
			}
			return fmt.Sprintf("run_cmd(%s): ok", cmd)
		}
	case "think":
		return "think: reasoning logged"
	}
	if failed {
		return fmt.Sprintf("%s: error", tc.Name)
	}
	return fmt.Sprintf("%s: completed", tc.Name)
}
