package reasoning

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pmnowak/ollama-code/internal/engine"
)

// RespondResult is the JSON document the respond tool returns. The
// engine treats a respond call as the end of the run.
type RespondResult struct {
	Status       string   `json:"status"`
	Text         string   `json:"text"`
	FilesChanged []string `json:"files_changed,omitempty"`
}

// NewRespondTool builds the respond tool that delivers the final answer
// and terminates the step loop.
func NewRespondTool() engine.Tool {
	return engine.Tool{
		Name:        "respond",
		Description: "Deliver the final answer and finish the task. Use this when the request is complete, with a concise summary of what was done and which files changed.",
		SchemaJSON:  `{"type":"object","properties":{"text":{"type":"string","description":"Final answer for the user (2-4 sentences)"},"files_changed":{"type":"array","items":{"type":"string"},"description":"Files that were created or modified"}},"required":["text"]}`,
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			text, ok := args["text"].(string)
			if !ok || text == "" {
				return "", fmt.Errorf("text must be a non-empty string")
			}

			var filesChanged []string
			if fc, ok := args["files_changed"].([]any); ok {
				for _, f := range fc {
					if s, ok := f.(string); ok {
						filesChanged = append(filesChanged, s)
					}
				}
			}

			result := RespondResult{
				Status:       "complete",
				Text:         text,
				FilesChanged: filesChanged,
			}
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
