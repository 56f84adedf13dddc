package filesystem

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pmnowak/ollama-code/internal/engine"
)

const (
	fullContentLines = 200
	warnContentLines = 400
)

// readFileImpl returns file content in one of three tiers so large
// files never flood the context window: full text, full text with a
// size warning, or a structural outline.
func readFileImpl(fileSys FileSystem, repoRoot, path string) (string, error) {
	filePath, err := ResolveInRoot(repoRoot, path)
	if err != nil {
		return "", err
	}

	contentBytes, err := fileSys.ReadFile(filePath)
	if err != nil {
		return "", err
	}

	content := string(contentBytes)
	lineCount := strings.Count(content, "\n") + 1

	contentType := "full"
	switch {
	case lineCount < fullContentLines:
	case lineCount < warnContentLines:
		content = fmt.Sprintf("NOTE: this file has %d lines. Prefer small search_replace edits over rewriting it.\n\n%s", lineCount, content)
	default:
		content = generateOutline(content, path, lineCount)
		contentType = "outline"
	}

	result := map[string]any{
		"path":         path,
		"content":      content,
		"line_count":   lineCount,
		"content_type": contentType,
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return "", err
	}
	return string(resultJSON), nil
}

// generateOutline produces a declaration-level view of a large file.
// The model is told to narrow down with grep before editing.
func generateOutline(content, path string, lineCount int) string {
	var outline strings.Builder
	fmt.Fprintf(&outline, "OUTLINE MODE: %s has %d lines, too large to return in full.\n", path, lineCount)
	outline.WriteString("This is a structural outline, NOT the file content.\n")
	outline.WriteString("Use grep to locate the exact text you need, then make small search_replace edits.\n\n")

	switch filepath.Ext(path) {
	case ".go":
		writeDeclarationLines(&outline, content, []string{"package ", "import", "type ", "func ", "const ", "var "})
	case ".py":
		writeDeclarationLines(&outline, content, []string{"import ", "from ", "class ", "def ", "@"})
	case ".ts", ".tsx", ".js", ".jsx":
		writeDeclarationLines(&outline, content, []string{"import ", "export ", "class ", "function ", "interface ", "type "})
	default:
		writeHeadTail(&outline, content, 30)
	}

	return outline.String()
}

func writeDeclarationLines(outline *strings.Builder, content string, prefixes []string) {
	for i, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, "#") {
			continue
		}
		for _, prefix := range prefixes {
			if strings.HasPrefix(trimmed, prefix) {
				fmt.Fprintf(outline, "Line %4d: %s\n", i+1, trimmed)
				break
			}
		}
	}
}

func writeHeadTail(outline *strings.Builder, content string, n int) {
	lines := strings.Split(content, "\n")
	outline.WriteString("=== FIRST LINES ===\n")
	for i := 0; i < n && i < len(lines); i++ {
		fmt.Fprintf(outline, "Line %4d: %s\n", i+1, lines[i])
	}
	if len(lines) > 2*n {
		fmt.Fprintf(outline, "\n... %d lines omitted ...\n\n=== LAST LINES ===\n", len(lines)-2*n)
		for i := len(lines) - n; i < len(lines); i++ {
			fmt.Fprintf(outline, "Line %4d: %s\n", i+1, lines[i])
		}
	}
}

// NewReadFileTool builds the read_file tool rooted at repoRoot.
func NewReadFileTool(repoRoot string) engine.Tool {
	fileSys := NewOSFileSystem()
	return engine.Tool{
		Name:        "read_file",
		Description: "Reads the content of a file. Provide the path relative to the working directory. Large files are returned as a structural outline.",
		SchemaJSON:  `{"type":"object","properties":{"path":{"type":"string","description":"Path to the file relative to the working directory"}},"required":["path"]}`,
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			path, ok := args["path"].(string)
			if !ok {
				return "", fmt.Errorf("path must be a string")
			}
			return readFileImpl(fileSys, repoRoot, path)
		},
		Retryable: true,
		Metadata: engine.ToolMetadata{
			Category: "filesystem",
			Tags:     []string{"read-only", "idempotent"},
		},
	}
}
