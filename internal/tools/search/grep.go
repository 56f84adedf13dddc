package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pmnowak/ollama-code/internal/engine"
	"github.com/pmnowak/ollama-code/internal/tools/execution"
)

const (
	grepTimeout    = 10 * time.Second
	maxGrepResults = 100
)

// GrepResult is one match in the grep output document.
type GrepResult struct {
	Path    string `json:"path"`
	Line    int    `json:"line"`
	Content string `json:"content"`
}

// rgMessage mirrors the per-line JSON objects ripgrep emits with --json.
type rgMessage struct {
	Type string `json:"type"`
	Data struct {
		Path struct {
			Text string `json:"text"`
		} `json:"path"`
		Lines struct {
			Text string `json:"text"`
		} `json:"lines"`
		LineNumber int `json:"line_number"`
	} `json:"data"`
}

func grepImpl(ctx context.Context, runner execution.Runner, repoRoot, pattern, path, include string, caseInsensitive bool) (string, error) {
	args := []string{"--json"}
	if caseInsensitive {
		args = append(args, "-i")
	}
	for _, glob := range strings.Split(include, ",") {
		if glob = strings.TrimSpace(glob); glob != "" {
			args = append(args, "-g", glob)
		}
	}
	args = append(args, "-e", pattern)
	if path != "" {
		args = append(args, path)
	} else {
		args = append(args, ".")
	}

	res, err := runner.RunCmd(ctx, repoRoot, "rg", args, grepTimeout)
	if err != nil {
		// Exit code 1 is ripgrep's "no matches".
		if res.Code == 1 {
			return marshalGrepResponse(pattern, nil, false)
		}
		return "", fmt.Errorf("grep failed: %v, stderr: %s", err, res.Stderr)
	}

	results := make([]GrepResult, 0)
	truncated := false
	for _, line := range strings.Split(res.Stdout, "\n") {
		if line == "" {
			continue
		}
		var msg rgMessage
		if err := json.Unmarshal([]byte(line), &msg); err != nil || msg.Type != "match" {
			continue
		}
		results = append(results, GrepResult{
			Path:    msg.Data.Path.Text,
			Line:    msg.Data.LineNumber,
			Content: strings.TrimSpace(msg.Data.Lines.Text),
		})
		if len(results) >= maxGrepResults {
			truncated = true
			break
		}
	}

	return marshalGrepResponse(pattern, results, truncated)
}

func marshalGrepResponse(pattern string, results []GrepResult, truncated bool) (string, error) {
	if results == nil {
		results = make([]GrepResult, 0)
	}
	response := map[string]any{
		"pattern":   pattern,
		"results":   results,
		"count":     len(results),
		"truncated": truncated,
	}
	responseJSON, err := json.Marshal(response)
	if err != nil {
		return "", err
	}
	return string(responseJSON), nil
}

// NewGrepTool builds the grep tool, a thin wrapper over ripgrep.
func NewGrepTool(repoRoot string) engine.Tool {
	runner := execution.NewHostRunner()
	return engine.Tool{
		Name:        "grep",
		Description: "Regex code search using ripgrep. Use this to locate definitions and references before reading files. Supports glob filters and case-insensitive search.",
		SchemaJSON:  `{"type":"object","properties":{"pattern":{"type":"string","description":"Regex pattern to search for"},"path":{"type":"string","description":"Optional: file or directory to search in"},"include":{"type":"string","description":"Optional: comma-separated glob filters, e.g. *.go,*.md"},"case_insensitive":{"type":"boolean","description":"Optional: case-insensitive search"}},"required":["pattern"]}`,
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			pattern, ok := args["pattern"].(string)
			if !ok {
				return "", fmt.Errorf("pattern must be a string")
			}
			path := ""
			if p, ok := args["path"].(string); ok {
				path = p
			}
			include := ""
			if g, ok := args["include"].(string); ok {
				include = g
			}
			caseInsensitive := false
			if ci, ok := args["case_insensitive"].(bool); ok {
				caseInsensitive = ci
			}
			return grepImpl(ctx, runner, repoRoot, pattern, path, include, caseInsensitive)
		},
		Retryable: true,
		Metadata: engine.ToolMetadata{
			Category: "search",
			Tags:     []string{"read-only", "idempotent"},
		},
	}
}
