package execution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/pmnowak/ollama-code/internal/engine"
)

const (
	maxRunCmdTimeout = 5 * time.Minute
	minRunCmdTimeout = 5 * time.Second
	defaultCmdLines  = 40
	minCmdLines      = 5
	maxCmdLines      = 200
	maxCmdChars      = 4000
)

var runCmdAllowedCommands = []string{
	// Build tools
	"go", "gofmt", "goimports",
	"npm", "npx", "yarn", "pnpm", "bun",
	"python", "python3", "pip", "pip3", "pytest", "uv",
	"cargo", "rustc", "rustfmt",
	"make", "cmake",
	"gradle", "mvn",

	// Linters & formatters
	"eslint", "prettier", "biome",
	"ruff", "black", "isort", "mypy", "flake8",
	"tsc", "node",
	"golangci-lint",
	"shellcheck",

	// File operations
	"mkdir", "touch", "rm", "cp", "mv",
	"cat", "head", "tail",
	"ls", "find", "tree",
	"wc", "grep", "rg", "awk", "sed", "sort", "uniq", "diff",

	// Version control
	"git",

	// Network
	"curl", "wget",

	// Shell
	"sh", "bash", "zsh",

	// Utilities
	"echo", "printf", "date", "which", "env",
	"tar", "zip", "unzip", "gzip", "gunzip",
	"jq", "yq",
}

func isAllowedCommand(cmd string) bool {
	for _, allowed := range runCmdAllowedCommands {
		if cmd == allowed {
			return true
		}
	}
	return false
}

func runCmdImpl(ctx context.Context, runner Runner, repoRoot, cmd, argsStr string, timeout time.Duration, maxLines int) (string, error) {
	if !isAllowedCommand(cmd) {
		execResult := engine.ExecutionResult{
			Cmd:      cmd,
			ExitCode: 1,
			Status:   "failed",
			Reason:   fmt.Sprintf("command %q is not in the allowlist", cmd),
			Stderr:   fmt.Sprintf("Command %q is not allowed. Allowed commands: %s", cmd, strings.Join(runCmdAllowedCommands, ", ")),
		}
		resultJSON, _ := json.Marshal(execResult)
		return string(resultJSON), nil
	}

	var args []string
	if argsStr != "" {
		args = parseArgs(argsStr)
	}

	result, err := runner.RunCmd(ctx, repoRoot, cmd, args, timeout)

	cmdStr := cmd
	if len(args) > 0 {
		cmdStr += " " + strings.Join(args, " ")
	}

	stdout, stdoutTruncated := truncateOutput(result.Stdout, maxLines)
	stderr, stderrTruncated := truncateOutput(result.Stderr, maxLines)

	execResult := engine.ExecutionResult{
		Cmd:             cmdStr,
		ExitCode:        result.Code,
		Stdout:          stdout,
		Stderr:          stderr,
		StdoutTruncated: stdoutTruncated,
		StderrTruncated: stderrTruncated,
		Status:          "ok",
	}
	switch {
	case result.TimedOut || errors.Is(err, context.DeadlineExceeded):
		execResult.TimedOut = true
		execResult.Status = "failed"
		execResult.Reason = fmt.Sprintf("command exceeded its %s timeout", timeout)
	case err != nil && !isExitError(err):
		// The command never ran (binary missing, permission denied).
		// A non-zero exit would be an ExitError and is reported below.
		execResult.ExitCode = 1
		execResult.Status = "unavailable"
		execResult.Reason = fmt.Sprintf("command could not run: %v", err)
	case result.Code != 0:
		execResult.Status = "failed"
	}

	resultJSON, marshalErr := json.Marshal(execResult)
	if marshalErr != nil {
		return "", marshalErr
	}
	return string(resultJSON), nil
}

func isExitError(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr)
}

// parseArgs splits a command line on spaces, honoring single and double
// quotes.
func parseArgs(argsStr string) []string {
	var args []string
	var current strings.Builder
	inQuotes := false
	quoteChar := byte(0)

	for i := 0; i < len(argsStr); i++ {
		char := argsStr[i]
		switch {
		case char == '"' || char == '\'':
			if !inQuotes {
				inQuotes = true
				quoteChar = char
			} else if char == quoteChar {
				inQuotes = false
				quoteChar = 0
			} else {
				current.WriteByte(char)
			}
		case char == ' ' && !inQuotes:
			if current.Len() > 0 {
				args = append(args, current.String())
				current.Reset()
			}
		default:
			current.WriteByte(char)
		}
	}
	if current.Len() > 0 {
		args = append(args, current.String())
	}
	return args
}

func parseTimeoutArg(value any) time.Duration {
	var seconds float64
	switch v := value.(type) {
	case float64:
		seconds = v
	case int:
		seconds = float64(v)
	default:
		return defaultCmdTimeout
	}
	if seconds <= 0 {
		return defaultCmdTimeout
	}
	timeout := time.Duration(seconds) * time.Second
	if timeout < minRunCmdTimeout {
		return minRunCmdTimeout
	}
	if timeout > maxRunCmdTimeout {
		return maxRunCmdTimeout
	}
	return timeout
}

func parseMaxLinesArg(value any) int {
	var lines int
	switch v := value.(type) {
	case float64:
		lines = int(v)
	case int:
		lines = v
	default:
		return defaultCmdLines
	}
	if lines < minCmdLines {
		return minCmdLines
	}
	if lines > maxCmdLines {
		return maxCmdLines
	}
	return lines
}

func truncateOutput(output string, maxLines int) (string, bool) {
	if output == "" {
		return "", false
	}
	truncated := false
	lines := strings.Split(output, "\n")
	if len(lines) > maxLines {
		lines = lines[:maxLines]
		truncated = true
	}
	joined := strings.Join(lines, "\n")
	if len(joined) > maxCmdChars {
		joined = joined[:maxCmdChars]
		truncated = true
	}
	return joined, truncated
}

// NewRunCmdTool builds the run_cmd tool backed by the host runner.
func NewRunCmdTool(repoRoot string) engine.Tool {
	runner := NewHostRunner()
	return engine.Tool{
		Name:        "run_cmd",
		Description: "Runs an allowlisted command in the working directory. Allowed: build tools (go, npm, python, cargo, make), linters, file utilities (ls, cat, grep, find), git, curl, shells, jq. Output is truncated; keep it small with flags like -run or head.",
		SchemaJSON: `{
			"type": "object",
			"properties": {
				"cmd": {"type":"string","description":"Command name (must be in the allowlist)"},
				"args": {"type":"string","description":"Arguments as a space-separated string; quotes group words"},
				"timeout_sec": {"type":"integer","minimum":5,"maximum":300,"description":"Seconds to allow the command to run (default: 60)"},
				"max_lines": {"type":"integer","minimum":5,"maximum":200,"description":"Maximum stdout/stderr lines to return (default: 40)"}
			},
			"required": ["cmd"]
		}`,
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			cmd, ok := args["cmd"].(string)
			if !ok {
				return "", fmt.Errorf("cmd must be a string")
			}
			argsStr := ""
			if a, ok := args["args"].(string); ok {
				argsStr = a
			}
			timeout := parseTimeoutArg(args["timeout_sec"])
			maxLines := parseMaxLinesArg(args["max_lines"])
			return runCmdImpl(ctx, runner, repoRoot, cmd, argsStr, timeout, maxLines)
		},
		Retryable: true,
		Metadata: engine.ToolMetadata{
			Category: "execution",
			Tags:     []string{"side-effect"},
		},
	}
}
