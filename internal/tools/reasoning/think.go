package reasoning

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pmnowak/ollama-code/internal/engine"
)

// NewThinkTool builds the think scratchpad. It performs no action; it
// lets small local models externalize a plan as a tool call instead of
// leaking it into their answer text.
func NewThinkTool() engine.Tool {
	return engine.Tool{
		Name:        "think",
		Description: "Record your reasoning or plan before acting. Nothing is executed. Use this after understanding the task, before edits, and when choosing between approaches.",
		SchemaJSON:  `{"type":"object","properties":{"thought":{"type":"string","description":"Your reasoning or plan. Name the files and functions involved."}},"required":["thought"]}`,
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			thought, ok := args["thought"].(string)
			if !ok || thought == "" {
				return "", fmt.Errorf("thought must be a non-empty string")
			}
			result := map[string]any{"status": "noted"}
			resultJSON, err := json.Marshal(result)
			if err != nil {
				return "", err
			}
			return string(resultJSON), nil
		},
		Retryable: true,
		Metadata: engine.ToolMetadata{
			Category: "meta",
			Tags:     []string{"read-only", "idempotent"},
		},
	}
}
