package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/pmnowak/ollama-code/internal/engine"
)

// consoleHook renders the loop for a human: tool activity, assistant
// text and errors, each in its own style.
type consoleHook struct {
	engine.NopHook
	streaming bool
}

func (h consoleHook) OnToolCall(_ context.Context, _ *engine.State, call engine.ToolCall) {
	if call.Name == "respond" {
		return
	}
	fmt.Println(toolStyle.Render(fmt.Sprintf("  -> %s(%s)", call.Name, renderArgs(call.Args))))
}

func (h consoleHook) OnToolSkipped(_ context.Context, _ *engine.State, call engine.ToolCall) {
	fmt.Println(noticeStyle.Render(fmt.Sprintf("  skipped %s", call.Name)))
}

func (h consoleHook) OnToolResult(_ context.Context, _ *engine.State, call engine.ToolCall, result string, err error) {
	if err != nil {
		fmt.Println(errorStyle.Render(fmt.Sprintf("  %s failed: %v", call.Name, err)))
		return
	}
	if call.Name == "respond" {
		if text := respondText(result); text != "" {
			fmt.Println()
			fmt.Println(assistantStyle.Render(text))
		}
		return
	}
	if call.Name == "think" {
		if thought, ok := call.Args["thought"].(string); ok {
			fmt.Println(toolStyle.Render("  thinking: " + truncateLine(thought, 120)))
		}
	}
}

func (h consoleHook) OnAfterLLM(_ context.Context, _ *engine.State, resp engine.LLMResponse) {
	// Streaming already printed the text through OnStreamDelta.
	if h.streaming || len(resp.ToolCalls) > 0 {
		return
	}
	if content := strings.TrimSpace(resp.Assistant.Content); content != "" {
		fmt.Println(assistantStyle.Render(content))
	}
}

func (h consoleHook) OnStreamDelta(_ context.Context, _ *engine.State, delta string) {
	fmt.Print(assistantStyle.Render(delta))
}

func (h consoleHook) OnDone(_ context.Context, _ *engine.State) {
	if h.streaming {
		fmt.Println()
	}
}

func (h consoleHook) OnRetryAttempt(_ context.Context, _ *engine.State, attempt, maxAttempts int, delay time.Duration, err error) {
	fmt.Println(noticeStyle.Render(fmt.Sprintf("  model call failed, retrying in %s (%d/%d)", delay, attempt, maxAttempts)))
}

func (h consoleHook) OnBudgetExceeded(_ context.Context, _ *engine.State, tokenCount, softLimit, hardLimit int) {
	fmt.Println(noticeStyle.Render(fmt.Sprintf("  context is getting large (%d tokens), compressing history", tokenCount)))
}

// renderArgs flattens tool arguments to a compact, stable one-liner.
func renderArgs(args map[string]any) string {
	if len(args) == 0 {
		return ""
	}
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := fmt.Sprintf("%v", args[k])
		parts = append(parts, fmt.Sprintf("%s=%s", k, truncateLine(v, 60)))
	}
	return strings.Join(parts, ", ")
}

func truncateLine(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}

func respondText(result string) string {
	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(result), &parsed); err != nil {
		return result
	}
	return parsed.Text
}

// terminalApprover asks the user before each tool call runs.
type terminalApprover struct {
	in *bufio.Reader
}

func (a *terminalApprover) Approve(ctx context.Context, call engine.ToolCall, tool engine.Tool) (engine.Decision, error) {
	fmt.Println(confirmStyle.Render(fmt.Sprintf("  %s wants to run:", call.Name)))
	for _, k := range sortedKeys(call.Args) {
		fmt.Println(toolStyle.Render(fmt.Sprintf("    %s: %s", k, truncateLine(fmt.Sprintf("%v", call.Args[k]), 200))))
	}

	for {
		fmt.Print(confirmStyle.Render("  proceed? [y/n/q] "))
		line, err := a.in.ReadString('\n')
		if err != nil {
			// stdin closed, treat as quit
			return engine.DecisionQuit, nil
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "", "y", "yes":
			return engine.DecisionApprove, nil
		case "n", "no", "s", "skip":
			return engine.DecisionSkip, nil
		case "q", "quit":
			return engine.DecisionQuit, nil
		default:
			fmt.Println(noticeStyle.Render("  answer y (run), n (skip) or q (stop this turn)"))
		}
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func printError(err error) {
	fmt.Fprintln(os.Stderr, errorStyle.Render("error: "+err.Error()))
}
