package filesystem

import (
	"context"
	"encoding/json"
	"io/fs"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/pmnowak/ollama-code/internal/engine"
)

const defaultListLimit = 1000

var defaultIgnorePatterns = []string{".git/", "node_modules/", "__pycache__/", ".venv/", "vendor/"}

// loadIgnoreMatcher combines the repository's .gitignore with the
// built-in defaults. A missing or unreadable .gitignore is not an
// error.
func loadIgnoreMatcher(fileSys FileSystem, repoRoot string) *gitignore.GitIgnore {
	patterns := append([]string{}, defaultIgnorePatterns...)
	if data, err := fileSys.ReadFile(filepath.Join(repoRoot, ".gitignore")); err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line != "" && !strings.HasPrefix(line, "#") {
				patterns = append(patterns, line)
			}
		}
	}
	return gitignore.CompileIgnoreLines(patterns...)
}

func listFilesImpl(fileSys FileSystem, repoRoot, path string, recursive bool, limit int) (string, error) {
	dirPath, err := ResolveInRoot(repoRoot, path)
	if err != nil {
		return "", err
	}
	if limit <= 0 {
		limit = defaultListLimit
	}

	matcher := loadIgnoreMatcher(fileSys, repoRoot)
	skip := func(relPath string, isDir bool) bool {
		base := filepath.Base(relPath)
		if strings.HasPrefix(base, ".") {
			return true
		}
		if isDir {
			relPath += "/"
		}
		return matcher.MatchesPath(relPath)
	}

	files := make([]string, 0)
	truncated := false

	if recursive {
		err := fileSys.WalkDir(dirPath, func(walkPath string, d fs.DirEntry, err error) error {
			if err != nil || walkPath == dirPath {
				return nil
			}
			relPath, relErr := filepath.Rel(repoRoot, walkPath)
			if relErr != nil {
				return nil
			}
			if skip(relPath, d.IsDir()) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.IsDir() {
				files = append(files, relPath)
				if len(files) >= limit {
					truncated = true
					return filepath.SkipAll
				}
			}
			return nil
		})
		if err != nil {
			return "", err
		}
	} else {
		entries, err := fileSys.ReadDir(dirPath)
		if err != nil {
			return "", err
		}
		for _, entry := range entries {
			relPath := entry.Name()
			if path != "" {
				relPath = filepath.Join(path, entry.Name())
			}
			if skip(relPath, entry.IsDir()) {
				continue
			}
			name := entry.Name()
			if entry.IsDir() {
				name += "/"
			}
			files = append(files, name)
			if len(files) >= limit {
				truncated = true
				break
			}
		}
	}

	result := map[string]any{
		"path":      path,
		"files":     files,
		"recursive": recursive,
		"truncated": truncated,
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return "", err
	}
	return string(resultJSON), nil
}

// NewListFilesTool builds the list_files tool. Listings skip hidden
// entries and anything the repository's .gitignore excludes.
func NewListFilesTool(repoRoot string) engine.Tool {
	fileSys := NewOSFileSystem()
	return engine.Tool{
		Name:        "list_files",
		Description: "Lists files in the working directory. Use this to discover which files exist before reading them. Honors .gitignore and skips hidden entries.",
		SchemaJSON: `{"type":"object","properties":{
			"path":{"type":"string","description":"Optional: subdirectory relative to the working directory (empty for root)"},
			"recursive":{"type":"boolean","description":"If true, list files recursively. Default: false"},
			"limit":{"type":"integer","description":"Maximum number of entries to return. Default: 1000"}
		},"required":[]}`,
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			path := ""
			if p, ok := args["path"].(string); ok {
				path = p
			}
			recursive := false
			if r, ok := args["recursive"].(bool); ok {
				recursive = r
			}
			limit := defaultListLimit
			if l, ok := args["limit"].(float64); ok {
				limit = int(l)
			}
			return listFilesImpl(fileSys, repoRoot, path, recursive, limit)
		},
		Retryable: true,
		Metadata: engine.ToolMetadata{
			Category: "filesystem",
			Tags:     []string{"read-only", "idempotent"},
		},
	}
}
