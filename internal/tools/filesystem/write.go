package filesystem

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pmnowak/ollama-code/internal/engine"
)

func writeFileImpl(fileSys FileSystem, repoRoot, path, content string) (string, error) {
	filePath, err := ResolveInRoot(repoRoot, path)
	if err != nil {
		return "", err
	}

	if err := fileSys.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return "", fmt.Errorf("create directory: %w", err)
	}
	if err := fileSys.WriteFile(filePath, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}

	result := map[string]any{
		"path":       path,
		"success":    true,
		"bytes":      len(content),
		"line_count": strings.Count(content, "\n") + 1,
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return "", err
	}
	return string(resultJSON), nil
}

// NewWriteFileTool builds the write_file tool. Parent directories are
// created as needed.
func NewWriteFileTool(repoRoot string) engine.Tool {
	fileSys := NewOSFileSystem()
	return engine.Tool{
		Name:        "write_file",
		Description: "Writes content to a file. Creates the file and any missing parent directories; overwrites existing content.",
		SchemaJSON:  `{"type":"object","properties":{"path":{"type":"string","description":"Path to the file relative to the working directory"},"content":{"type":"string","description":"Full content to write"}},"required":["path","content"]}`,
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			path, ok := args["path"].(string)
			if !ok {
				return "", fmt.Errorf("path must be a string")
			}
			content, ok := args["content"].(string)
			if !ok {
				return "", fmt.Errorf("content must be a string")
			}
			return writeFileImpl(fileSys, repoRoot, path, content)
		},
		Retryable: false,
		Metadata: engine.ToolMetadata{
			Category: "filesystem",
			Tags:     []string{"write", "side-effect"},
		},
	}
}
