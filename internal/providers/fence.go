package providers

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/pmnowak/ollama-code/internal/engine"
)

// Models without native function calling are prompted to answer with
//
//	```tool
//	{"tool": "<name>", "args": {...}}
//	```
//
// and this file promotes those blocks to engine.ToolCall values. A naked
// JSON object of the same shape is accepted as a last resort, since
// small models frequently drop the fence.

var (
	fencedToolRegex = regexp.MustCompile("(?s)```(?:tool|json)?\\s*\n?(\\{.*?\\})\\s*\n?```")
	nakedToolRegex  = regexp.MustCompile(`(?s)\{\s*"tool"\s*:.*?"args"\s*:\s*\{.*?\}\s*\}`)
)

type fencedCall struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

func newCallID() string {
	return "call_" + uuid.NewString()[:8]
}

// ParseFencedToolCalls extracts tool calls from model text. Fenced
// blocks win; naked JSON is only consulted when no fence parses.
func ParseFencedToolCalls(text string) []engine.ToolCall {
	var calls []engine.ToolCall

	for _, match := range fencedToolRegex.FindAllStringSubmatch(text, -1) {
		if tc, ok := decodeFencedCall(match[1]); ok {
			calls = append(calls, tc)
		}
	}
	if len(calls) > 0 {
		return calls
	}

	for _, match := range nakedToolRegex.FindAllString(text, -1) {
		if tc, ok := decodeFencedCall(match); ok {
			calls = append(calls, tc)
		}
	}
	return calls
}

func decodeFencedCall(raw string) (engine.ToolCall, bool) {
	var fc fencedCall
	if err := json.Unmarshal([]byte(raw), &fc); err != nil || fc.Tool == "" {
		return engine.ToolCall{}, false
	}
	if fc.Args == nil {
		fc.Args = make(map[string]any)
	}
	return engine.ToolCall{
		ID:   newCallID(),
		Name: fc.Tool,
		Args: fc.Args,
	}, true
}

// StripToolBlocks removes fenced tool blocks from text so the remaining
// prose can be shown to the user without the wire noise.
func StripToolBlocks(text string) string {
	stripped := fencedToolRegex.ReplaceAllStringFunc(text, func(block string) string {
		if sub := fencedToolRegex.FindStringSubmatch(block); sub != nil {
			if _, ok := decodeFencedCall(sub[1]); ok {
				return ""
			}
		}
		return block
	})
	return strings.TrimSpace(stripped)
}
