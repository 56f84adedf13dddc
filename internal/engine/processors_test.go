package engine

import (
	"context"
	"strings"
	"testing"
)

func TestKeepLastN(t *testing.T) {
	msgs := []ChatMessage{
		{Role: RoleSystem, Content: "system"},
		{Role: RoleUser, Content: "the task"},
		{Role: RoleAssistant, Content: "a1"},
		{Role: RoleAssistant, Content: "a2"},
		{Role: RoleAssistant, Content: "a3"},
	}

	got, err := KeepLastN(2)(context.Background(), &State{}, msgs)
	if err != nil {
		t.Fatalf("KeepLastN error = %v", err)
	}

	// pinned system + first user, then last two
	if len(got) != 4 {
		t.Fatalf("len = %d, want 4", len(got))
	}
	if got[0].Content != "system" || got[1].Content != "the task" {
		t.Errorf("pinned messages lost: %+v", got[:2])
	}
	if got[3].Content != "a3" {
		t.Errorf("recent tail wrong: %+v", got[2:])
	}
}

func TestKeepLastNShortHistoryUntouched(t *testing.T) {
	msgs := []ChatMessage{{Role: RoleUser, Content: "hi"}}
	got, err := KeepLastN(10)(context.Background(), &State{}, msgs)
	if err != nil || len(got) != 1 {
		t.Fatalf("got %v, %v", got, err)
	}
}

func TestTruncateLongTools(t *testing.T) {
	long := strings.Repeat("x", 500)
	msgs := []ChatMessage{
		{Role: RoleTool, Name: "c1", Content: long},
		{Role: RoleAssistant, Content: long},
	}

	got, err := TruncateLongTools(100)(context.Background(), &State{}, msgs)
	if err != nil {
		t.Fatalf("TruncateLongTools error = %v", err)
	}
	if len(got[0].Content) >= 500 {
		t.Error("tool output not truncated")
	}
	if !strings.Contains(got[0].Content, "\n...\n") {
		t.Error("truncation marker missing")
	}
	if len(got[1].Content) != 500 {
		t.Error("assistant content must not be truncated")
	}
}

func TestIdentifyToolCycles(t *testing.T) {
	msgs := []ChatMessage{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleUser, Content: "task"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "c1", Name: "read_file"}}},
		{Role: RoleTool, Name: "c1", Content: "data"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "c2", Name: "grep"}}},
		{Role: RoleTool, Name: "c2", Content: "matches"},
		{Role: RoleAssistant, Content: "final"},
	}

	cycles := identifyToolCycles(msgs)
	if len(cycles) != 4 {
		t.Fatalf("cycles = %d, want 4", len(cycles))
	}
	if len(cycles[1].Messages) != 2 {
		t.Errorf("first tool cycle has %d messages, want 2", len(cycles[1].Messages))
	}
}

func TestSummarizeToolCall(t *testing.T) {
	tests := []struct {
		name   string
		call   ToolCall
		result string
		want   string
	}{
		{
			name:   "read file",
			call:   ToolCall{Name: "read_file", Args: map[string]any{"path": "main.go"}},
			result: "package main",
			want:   "read_file(main.go)",
		},
		{
			name:   "failed edit",
			call:   ToolCall{Name: "search_replace", Args: map[string]any{"path": "a.go"}},
			result: "ERROR: no match",
			want:   "FAILED",
		},
		{
			name:   "grep with matches",
			call:   ToolCall{Name: "grep", Args: map[string]any{"pattern": "Run"}},
			result: `{"pattern":"Run","results":[{"path":"run.go","line":11,"content":"func Run()"}],"count":1,"truncated":false}`,
			want:   "grep: found matches",
		},
		{
			name:   "grep without matches",
			call:   ToolCall{Name: "grep", Args: map[string]any{"pattern": "zzz"}},
			result: `{"pattern":"zzz","results":[],"count":0,"truncated":false}`,
			want:   "grep: no matches",
		},
		{
			name:   "unknown tool",
			call:   ToolCall{Name: "mystery", Args: map[string]any{}},
			result: "whatever",
			want:   "mystery: completed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := summarizeToolCall(tt.call, tt.result)
			if !strings.Contains(got, tt.want) {
				t.Errorf("summarizeToolCall() = %q, want it to contain %q", got, tt.want)
			}
		})
	}
}
