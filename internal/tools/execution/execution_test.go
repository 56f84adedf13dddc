package execution

import (
	"context"
	"encoding/json"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/pmnowak/ollama-code/internal/engine"
)

// MockRunner is a mock implementation of the Runner interface.
type MockRunner struct {
	RunCmdFunc func(ctx context.Context, repoDir, name string, args []string, timeout time.Duration) (Result, error)
}

func (m *MockRunner) RunCmd(ctx context.Context, repoDir, name string, args []string, timeout time.Duration) (Result, error) {
	if m.RunCmdFunc != nil {
		return m.RunCmdFunc(ctx, repoDir, name, args, timeout)
	}
	return Result{}, nil
}

func decodeExecResult(t *testing.T, raw string) engine.ExecutionResult {
	t.Helper()
	var result engine.ExecutionResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		t.Fatalf("result is not valid JSON: %v", err)
	}
	return result
}

func TestRunCmdImplAllowlist(t *testing.T) {
	runner := &MockRunner{
		RunCmdFunc: func(ctx context.Context, repoDir, name string, args []string, timeout time.Duration) (Result, error) {
			t.Fatal("runner must not be called for disallowed commands")
			return Result{}, nil
		},
	}

	got, err := runCmdImpl(context.Background(), runner, "/repo", "sudo", "rm -rf /", defaultCmdTimeout, defaultCmdLines)
	if err != nil {
		t.Fatalf("runCmdImpl() error = %v", err)
	}
	result := decodeExecResult(t, got)
	if result.Status != "failed" {
		t.Errorf("status = %q, want failed", result.Status)
	}
	if !strings.Contains(result.Reason, "allowlist") {
		t.Errorf("reason %q should mention allowlist", result.Reason)
	}
}

func TestRunCmdImplSuccess(t *testing.T) {
	var gotName string
	var gotArgs []string
	runner := &MockRunner{
		RunCmdFunc: func(ctx context.Context, repoDir, name string, args []string, timeout time.Duration) (Result, error) {
			gotName = name
			gotArgs = args
			return Result{Stdout: "ok\n", Code: 0}, nil
		},
	}

	got, err := runCmdImpl(context.Background(), runner, "/repo", "go", `test ./... -run "TestFoo Bar"`, defaultCmdTimeout, defaultCmdLines)
	if err != nil {
		t.Fatalf("runCmdImpl() error = %v", err)
	}
	result := decodeExecResult(t, got)
	if result.Status != "ok" || result.ExitCode != 0 {
		t.Errorf("unexpected result: %+v", result)
	}
	if gotName != "go" {
		t.Errorf("ran %q, want go", gotName)
	}
	wantArgs := []string{"test", "./...", "-run", "TestFoo Bar"}
	if len(gotArgs) != len(wantArgs) {
		t.Fatalf("args = %v, want %v", gotArgs, wantArgs)
	}
	for i := range wantArgs {
		if gotArgs[i] != wantArgs[i] {
			t.Errorf("args[%d] = %q, want %q", i, gotArgs[i], wantArgs[i])
		}
	}
}

func TestRunCmdImplTimeout(t *testing.T) {
	runner := &MockRunner{
		RunCmdFunc: func(ctx context.Context, repoDir, name string, args []string, timeout time.Duration) (Result, error) {
			return Result{Stdout: "partial", Code: 1, TimedOut: true}, context.DeadlineExceeded
		},
	}

	got, err := runCmdImpl(context.Background(), runner, "/repo", "go", "test ./...", 30*time.Second, defaultCmdLines)
	if err != nil {
		t.Fatalf("runCmdImpl() error = %v", err)
	}
	result := decodeExecResult(t, got)
	if !result.TimedOut {
		t.Error("expected timed_out flag")
	}
	if result.Status != "failed" {
		t.Errorf("status = %q, want failed", result.Status)
	}
	if !strings.Contains(result.Reason, "timeout") {
		t.Errorf("reason %q should mention the timeout", result.Reason)
	}
}

func TestRunCmdImplTruncation(t *testing.T) {
	longOutput := strings.Repeat("line\n", 100)
	runner := &MockRunner{
		RunCmdFunc: func(ctx context.Context, repoDir, name string, args []string, timeout time.Duration) (Result, error) {
			return Result{Stdout: longOutput}, nil
		},
	}

	got, err := runCmdImpl(context.Background(), runner, "/repo", "cat", "big.txt", defaultCmdTimeout, 10)
	if err != nil {
		t.Fatalf("runCmdImpl() error = %v", err)
	}
	result := decodeExecResult(t, got)
	if !result.StdoutTruncated {
		t.Error("expected stdout_truncated flag")
	}
	if lines := strings.Count(result.Stdout, "\n") + 1; lines > 10 {
		t.Errorf("stdout has %d lines, want at most 10", lines)
	}
}

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"simple", "build -o bin", []string{"build", "-o", "bin"}},
		{"double quotes", `commit -m "fix the bug"`, []string{"commit", "-m", "fix the bug"}},
		{"single quotes", `-e 'func main'`, []string{"-e", "func main"}},
		{"empty", "", nil},
		{"repeated spaces", "a   b", []string{"a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseArgs(tt.input)
			if len(got) != len(tt.want) {
				t.Fatalf("parseArgs(%q) = %v, want %v", tt.input, got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("arg %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestParseTimeoutArg(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  time.Duration
	}{
		{"nil uses default", nil, defaultCmdTimeout},
		{"json number", float64(120), 120 * time.Second},
		{"below minimum clamps", float64(1), minRunCmdTimeout},
		{"above maximum clamps", float64(3600), maxRunCmdTimeout},
		{"zero uses default", float64(0), defaultCmdTimeout},
		{"wrong type uses default", "60", defaultCmdTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseTimeoutArg(tt.value); got != tt.want {
				t.Errorf("parseTimeoutArg(%v) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestParseMaxLinesArg(t *testing.T) {
	if got := parseMaxLinesArg(nil); got != defaultCmdLines {
		t.Errorf("nil = %d, want %d", got, defaultCmdLines)
	}
	if got := parseMaxLinesArg(float64(1000)); got != maxCmdLines {
		t.Errorf("1000 = %d, want %d", got, maxCmdLines)
	}
	if got := parseMaxLinesArg(float64(1)); got != minCmdLines {
		t.Errorf("1 = %d, want %d", got, minCmdLines)
	}
}

func TestRunCmdImplStartFailure(t *testing.T) {
	runner := &MockRunner{
		RunCmdFunc: func(ctx context.Context, repoDir, name string, args []string, timeout time.Duration) (Result, error) {
			return Result{}, &exec.Error{Name: name, Err: exec.ErrNotFound}
		},
	}

	got, err := runCmdImpl(context.Background(), runner, "/repo", "cargo", "check", defaultCmdTimeout, defaultCmdLines)
	if err != nil {
		t.Fatalf("runCmdImpl() error = %v", err)
	}
	result := decodeExecResult(t, got)
	if result.Status != "unavailable" {
		t.Errorf("status = %q, want unavailable", result.Status)
	}
	if result.ExitCode == 0 {
		t.Error("a command that never ran must not report exit code 0")
	}
	if !strings.Contains(result.Reason, "could not run") {
		t.Errorf("reason %q should say the command could not run", result.Reason)
	}
}

func TestRunCmdImplNonZeroExit(t *testing.T) {
	runner := &MockRunner{
		RunCmdFunc: func(ctx context.Context, repoDir, name string, args []string, timeout time.Duration) (Result, error) {
			// The runner surfaces non-zero exits as both a code and an
			// *exec.ExitError; that is a failure, not unavailability.
			return Result{Stderr: "FAIL\n", Code: 2}, &exec.ExitError{}
		},
	}

	got, err := runCmdImpl(context.Background(), runner, "/repo", "go", "vet ./...", defaultCmdTimeout, defaultCmdLines)
	if err != nil {
		t.Fatalf("runCmdImpl() error = %v", err)
	}
	result := decodeExecResult(t, got)
	if result.Status != "failed" {
		t.Errorf("status = %q, want failed", result.Status)
	}
	if result.ExitCode != 2 {
		t.Errorf("exit code = %d, want 2", result.ExitCode)
	}
}
