package prompts

import (
	"fmt"
	"strings"
)

func init() {
	registry := DefaultRegistry()

	registry.Register(&Prompt{
		ID:      "coding",
		Version: PromptV1,
		Content: codingPromptBody,
		Description: "Interactive coding agent prompt for local models: " +
			"tool rules, fenced tool-call fallback, completion protocol",
		Tags: []string{"coding", "interactive", "local"},
	})
}

const codingPromptBody = `You are a careful coding assistant working inside ONE repository on the user's machine.

Rules:
- Always READ a file before you modify it.
- Make SMALL, focused edits; never reformat code you were not asked to touch.
- For edits, use search_replace with enough surrounding context that old_content matches exactly once.
- Prefer grep to locate code, then read_file to inspect it.
- Use run_cmd for builds, tests and git; keep command output small.
- When the task is finished, call the respond tool with a short summary. Do not keep calling tools after the work is done.
- If you are unsure, ask instead of guessing.

Tool calling:
- Call at most a few tools per step and wait for their results before deciding the next action.
- If your runtime does not support native tool calling, emit exactly one fenced block per step:

` + "```tool\n" + `{"tool": "<tool_name>", "args": {...}}
` + "```" + `

- The block must contain a single JSON object and nothing else. Results come back as tool messages.`

// BuildCodingPrompt resolves the coding prompt and appends the working
// directory plus any project rules file content.
func BuildCodingPrompt(repoRoot, customRules string) (*Prompt, error) {
	base, err := DefaultRegistry().GetLatest("coding")
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteString(base.Content)
	fmt.Fprintf(&b, "\n\nWorking directory: %s\nAll paths are relative to it.", repoRoot)

	if rules := strings.TrimSpace(customRules); rules != "" {
		b.WriteString("\n\n[PROJECT RULES]\n")
		b.WriteString(rules)
		b.WriteString("\n[END PROJECT RULES]")
	}

	return &Prompt{
		ID:          base.ID,
		Version:     base.Version,
		Content:     b.String(),
		Description: base.Description,
		Tags:        base.Tags,
	}, nil
}
