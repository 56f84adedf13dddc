package providers

import (
	"strings"
	"testing"
)

func TestParseFencedToolCalls(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		wantNames []string
		wantArg   map[string]string // spot checks on the first call's args
	}{
		{
			name: "tool fence",
			text: "I'll read the file first.\n```tool\n{\"tool\": \"read_file\", \"args\": {\"path\": \"main.go\"}}\n```",
			wantNames: []string{"read_file"},
			wantArg:   map[string]string{"path": "main.go"},
		},
		{
			name: "json fence",
			text: "```json\n{\"tool\": \"grep\", \"args\": {\"pattern\": \"func main\"}}\n```",
			wantNames: []string{"grep"},
			wantArg:   map[string]string{"pattern": "func main"},
		},
		{
			name: "bare fence",
			text: "```\n{\"tool\": \"list_files\", \"args\": {\"path\": \".\"}}\n```",
			wantNames: []string{"list_files"},
		},
		{
			name: "multiple fences",
			text: "```tool\n{\"tool\": \"read_file\", \"args\": {\"path\": \"a.go\"}}\n```\nand then\n```tool\n{\"tool\": \"read_file\", \"args\": {\"path\": \"b.go\"}}\n```",
			wantNames: []string{"read_file", "read_file"},
			wantArg:   map[string]string{"path": "a.go"},
		},
		{
			name: "naked json without fence",
			text: "I will call {\"tool\": \"run_cmd\", \"args\": {\"cmd\": \"go\"}} now",
			wantNames: []string{"run_cmd"},
			wantArg:   map[string]string{"cmd": "go"},
		},
		{
			name:      "missing args defaults to empty map",
			text:      "```tool\n{\"tool\": \"respond\"}\n```",
			wantNames: []string{"respond"},
		},
		{
			name:      "plain prose",
			text:      "The function looks correct to me.",
			wantNames: nil,
		},
		{
			name:      "fence with invalid json",
			text:      "```tool\n{\"tool\": \"read_file\", \"args\":\n```",
			wantNames: nil,
		},
		{
			name:      "json fence that is not a tool call",
			text:      "```json\n{\"key\": \"value\"}\n```",
			wantNames: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := ParseFencedToolCalls(tt.text)
			if len(calls) != len(tt.wantNames) {
				t.Fatalf("got %d calls, want %d: %+v", len(calls), len(tt.wantNames), calls)
			}
			for i, name := range tt.wantNames {
				if calls[i].Name != name {
					t.Errorf("call %d: got name %q, want %q", i, calls[i].Name, name)
				}
				if calls[i].ID == "" {
					t.Errorf("call %d: expected synthetic ID", i)
				}
				if calls[i].Args == nil {
					t.Errorf("call %d: args should never be nil", i)
				}
			}
			for key, want := range tt.wantArg {
				got, ok := calls[0].Args[key].(string)
				if !ok || got != want {
					t.Errorf("args[%q] = %v, want %q", key, calls[0].Args[key], want)
				}
			}
		})
	}
}

func TestParseFencedToolCallsUniqueIDs(t *testing.T) {
	text := "```tool\n{\"tool\": \"read_file\", \"args\": {\"path\": \"a.go\"}}\n```\n```tool\n{\"tool\": \"read_file\", \"args\": {\"path\": \"b.go\"}}\n```"
	calls := ParseFencedToolCalls(text)
	if len(calls) != 2 {
		t.Fatalf("got %d calls, want 2", len(calls))
	}
	if calls[0].ID == calls[1].ID {
		t.Errorf("synthetic IDs must be unique, both were %q", calls[0].ID)
	}
}

func TestStripToolBlocks(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "removes tool fence keeps prose",
			text: "Let me check.\n```tool\n{\"tool\": \"read_file\", \"args\": {\"path\": \"x.go\"}}\n```",
			want: "Let me check.",
		},
		{
			name: "keeps code fences that are not tool calls",
			text: "Here is the fix:\n```\nfunc main() {}\n```",
			want: "Here is the fix:\n```\nfunc main() {}\n```",
		},
		{
			name: "no fences",
			text: "done",
			want: "done",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StripToolBlocks(tt.text)
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractErrorMetadata(t *testing.T) {
	tests := []struct {
		name           string
		errStr         string
		wantStatus     int
		wantRetryAfter string
	}{
		{"rate limit with retry-after", "status 429: rate limited, Retry-After: 30", 429, "30"},
		{"server error", "error, status code: 500, internal error", 500, ""},
		{"retry after prose", "error 429: too many requests, retry after 12 seconds", 429, "12"},
		{"no metadata", "connection refused", 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, retryAfter := extractErrorMetadata(stringError(tt.errStr))
			if status != tt.wantStatus {
				t.Errorf("status = %d, want %d", status, tt.wantStatus)
			}
			if retryAfter != tt.wantRetryAfter {
				t.Errorf("retryAfter = %q, want %q", retryAfter, tt.wantRetryAfter)
			}
		})
	}
}

type stringError string

func (e stringError) Error() string { return string(e) }

func TestStripToolBlocksTrimsWhitespace(t *testing.T) {
	text := "```tool\n{\"tool\": \"think\", \"args\": {\"thought\": \"hm\"}}\n```\n"
	if got := StripToolBlocks(text); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
	if strings.TrimSpace(text) == "" {
		t.Fatal("test input should not be blank")
	}
}
