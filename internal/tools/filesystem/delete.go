package filesystem

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/pmnowak/ollama-code/internal/engine"
)

func deleteFileImpl(fileSys FileSystem, repoRoot, path string) (string, error) {
	absPath, err := ResolveInRoot(repoRoot, path)
	if err != nil {
		return "", err
	}

	info, err := fileSys.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			result := map[string]any{
				"path":    path,
				"success": true,
				"message": "file does not exist (already deleted)",
			}
			resultJSON, _ := json.Marshal(result)
			return string(resultJSON), nil
		}
		return "", fmt.Errorf("stat file: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("cannot delete directory %s, delete_file only removes files", path)
	}

	if err := fileSys.Remove(absPath); err != nil {
		return "", fmt.Errorf("delete file: %w", err)
	}

	result := map[string]any{
		"path":    path,
		"success": true,
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return "", err
	}
	return string(resultJSON), nil
}

// NewDeleteFileTool builds the delete_file tool. Directories are
// refused.
func NewDeleteFileTool(repoRoot string) engine.Tool {
	fileSys := NewOSFileSystem()
	return engine.Tool{
		Name:        "delete_file",
		Description: "Deletes a single file. Destructive; cannot delete directories.",
		SchemaJSON:  `{"type":"object","properties":{"path":{"type":"string","description":"Path to the file relative to the working directory"}},"required":["path"]}`,
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			path, ok := args["path"].(string)
			if !ok {
				return "", fmt.Errorf("path must be a string")
			}
			if path == "" {
				return "", fmt.Errorf("path cannot be empty")
			}
			return deleteFileImpl(fileSys, repoRoot, path)
		},
		Retryable: false,
		Metadata: engine.ToolMetadata{
			Category: "filesystem",
			Tags:     []string{"delete", "destructive", "side-effect"},
		},
	}
}
