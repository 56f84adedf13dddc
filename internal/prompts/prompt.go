// Package prompts holds the versioned system prompts the agent runs with.
package prompts

// PromptVersion identifies one revision of a prompt.
type PromptVersion string

const (
	PromptV1 PromptVersion = "1.0.0"
	PromptV2 PromptVersion = "2.0.0"
)

// Prompt is a versioned prompt with metadata.
type Prompt struct {
	ID          string
	Version     PromptVersion
	Content     string
	Description string
	Tags        []string
	Deprecated  bool
}
