package editing

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pmnowak/ollama-code/internal/engine"
	"github.com/pmnowak/ollama-code/internal/tools/filesystem"
)

const maxEditLines = 500

// searchReplaceImpl performs an exact-text edit. The old text must occur
// exactly once unless replaceAll is set. Failures are returned as JSON
// documents with actionable hints so the model can correct itself
// instead of retrying blindly.
func searchReplaceImpl(fileSys filesystem.FileSystem, repoRoot, path, oldContent, newContent string, replaceAll bool) (string, error) {
	fullPath, err := filesystem.ResolveInRoot(repoRoot, path)
	if err != nil {
		return "", err
	}

	if !isTextFile(fullPath) {
		return editFailure(path, "file type not allowed, search_replace only works on text files"), nil
	}

	contentBytes, err := fileSys.ReadFile(fullPath)
	if err != nil {
		return editFailure(path, fmt.Sprintf("read file: %v", err)), nil
	}
	content := string(contentBytes)

	if isGen, marker := isGeneratedFile(content); isGen {
		return editFailure(path, fmt.Sprintf("file appears to be generated (found %q), edit the generator instead", marker)), nil
	}
	if lines := strings.Count(oldContent, "\n"); lines > maxEditLines {
		return editFailure(path, fmt.Sprintf("old_content is %d lines (max %d), break the edit into smaller changes", lines, maxEditLines)), nil
	}
	if oldContent == newContent {
		return editFailure(path, "old_content and new_content are identical, nothing to change"), nil
	}

	count := strings.Count(content, oldContent)
	if count == 0 {
		hint := ""
		normalizedContent := strings.Join(strings.Fields(content), " ")
		normalizedOld := strings.Join(strings.Fields(oldContent), " ")
		if normalizedOld != "" && strings.Contains(normalizedContent, normalizedOld) {
			hint = " The text exists but with different whitespace or indentation."
		}
		return editFailure(path, fmt.Sprintf(
			"old_content not found in file (file indents with %s).%s Read the file again and copy the exact text.",
			detectIndentation(content), hint)), nil
	}
	if count > 1 && !replaceAll {
		return editFailure(path, fmt.Sprintf(
			"old_content appears %d times%s. Add more surrounding context to make it unique, or set replace_all.",
			count, occurrenceLines(content, oldContent))), nil
	}

	var updated string
	replacements := 1
	if replaceAll {
		updated = strings.ReplaceAll(content, oldContent, newContent)
		replacements = count
	} else {
		updated = strings.Replace(content, oldContent, newContent, 1)
	}

	if err := fileSys.WriteFile(fullPath, []byte(updated), 0o644); err != nil {
		return editFailure(path, fmt.Sprintf("write file: %v", err)), nil
	}

	result := map[string]any{
		"path":         path,
		"status":       "success",
		"replacements": replacements,
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return "", err
	}
	return string(resultJSON), nil
}

func editFailure(path, msg string) string {
	result := map[string]any{
		"path":   path,
		"status": "failed",
		"error":  msg,
	}
	resultJSON, _ := json.Marshal(result)
	return string(resultJSON)
}

// occurrenceLines reports the first lines where the edit target appears,
// to help the model pick a unique anchor.
func occurrenceLines(content, oldContent string) string {
	firstLine := strings.TrimSpace(strings.SplitN(oldContent, "\n", 2)[0])
	if firstLine == "" {
		return ""
	}
	var lineNums []int
	for i, line := range strings.Split(content, "\n") {
		if strings.Contains(line, firstLine) {
			lineNums = append(lineNums, i+1)
			if len(lineNums) == 5 {
				break
			}
		}
	}
	if len(lineNums) == 0 {
		return ""
	}
	return fmt.Sprintf(" (around lines %v)", lineNums)
}

var textFileExts = map[string]bool{
	".go": true, ".py": true, ".js": true, ".ts": true, ".jsx": true, ".tsx": true,
	".java": true, ".c": true, ".cpp": true, ".h": true, ".hpp": true,
	".rs": true, ".rb": true, ".php": true, ".html": true, ".css": true, ".scss": true,
	".md": true, ".txt": true, ".json": true, ".yaml": true, ".yml": true, ".toml": true,
	".sh": true, ".bash": true, ".zsh": true, ".sql": true, ".xml": true, ".mod": true, ".sum": true,
}

func isTextFile(path string) bool {
	return textFileExts[filepath.Ext(path)]
}

func isGeneratedFile(content string) (bool, string) {
	preview := content
	if len(preview) > 500 {
		preview = preview[:500]
	}
	for _, marker := range []string{
		"Code generated",
		"DO NOT EDIT",
		"Auto-generated",
		"automatically generated",
		"This file is generated",
	} {
		if strings.Contains(preview, marker) {
			return true, marker
		}
	}
	return false, ""
}

func detectIndentation(content string) string {
	switch {
	case strings.Contains(content, "\t"):
		return "tabs"
	case strings.Contains(content, "    "):
		return "4 spaces"
	case strings.Contains(content, "  "):
		return "2 spaces"
	}
	return "unknown"
}

// NewSearchReplaceTool builds the search_replace tool, the primary way
// to edit files.
func NewSearchReplaceTool(repoRoot string) engine.Tool {
	fileSys := filesystem.NewOSFileSystem()
	return engine.Tool{
		Name:        "search_replace",
		Description: "Performs an exact string replacement in a file. This is the PRIMARY editing tool. ALWAYS read the file first so old_content matches exactly, including indentation.",
		SchemaJSON:  `{"type":"object","properties":{"path":{"type":"string","description":"File path relative to the working directory"},"old_content":{"type":"string","description":"Exact text to find; must occur exactly once unless replace_all is set"},"new_content":{"type":"string","description":"Replacement text"},"replace_all":{"type":"boolean","description":"Replace every occurrence instead of requiring uniqueness"}},"required":["path","old_content","new_content"]}`,
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			path, ok := args["path"].(string)
			if !ok {
				return "", fmt.Errorf("path must be a string")
			}
			oldContent, ok := args["old_content"].(string)
			if !ok {
				return "", fmt.Errorf("old_content must be a string")
			}
			newContent, ok := args["new_content"].(string)
			if !ok {
				return "", fmt.Errorf("new_content must be a string")
			}
			replaceAll := false
			if ra, ok := args["replace_all"].(bool); ok {
				replaceAll = ra
			}
			return searchReplaceImpl(fileSys, repoRoot, path, oldContent, newContent, replaceAll)
		},
		Retryable: false,
		Metadata: engine.ToolMetadata{
			Category: "editing",
			Tags:     []string{"write", "side-effect"},
		},
	}
}
