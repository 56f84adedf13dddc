package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func mockToolFn(ctx context.Context, args map[string]any) (string, error) {
	if val, ok := args["should_error"]; ok && val.(bool) {
		return "", errors.New("mock error")
	}
	return "success", nil
}

// mockLLM returns queued responses in order.
type mockLLM struct {
	responses []LLMResponse
	calls     int
}

func (m *mockLLM) Chat(ctx context.Context, model string, msgs []ChatMessage, tools []ToolSchema, opts ChatOptions) (LLMResponse, error) {
	if m.calls >= len(m.responses) {
		return LLMResponse{Assistant: ChatMessage{Role: RoleAssistant, Content: "done"}}, nil
	}
	resp := m.responses[m.calls]
	m.calls++
	return resp, nil
}

func (m *mockLLM) Stream(ctx context.Context, model string, msgs []ChatMessage, tools []ToolSchema, opts ChatOptions) (<-chan StreamEvent, <-chan error) {
	events := make(chan StreamEvent, 8)
	errs := make(chan error, 1)
	resp, _ := m.Chat(ctx, model, msgs, tools, opts)
	go func() {
		defer close(events)
		defer close(errs)
		if resp.Assistant.Content != "" {
			events <- StreamEvent{Type: "text_delta", Text: resp.Assistant.Content}
		}
		for _, tc := range resp.ToolCalls {
			events <- StreamEvent{Type: "tool_call", ToolCall: tc}
		}
		events <- StreamEvent{Type: "usage", Usage: resp.Usage}
	}()
	return events, errs
}

func TestExecuteTool(t *testing.T) {
	ctx := context.Background()
	reg := make(ToolRegistry)
	reg["mock_tool"] = Tool{
		Name:       "mock_tool",
		Fn:         mockToolFn,
		SchemaJSON: `{"type": "object", "properties": {"should_error": {"type": "boolean"}}}`,
	}

	tests := []struct {
		name    string
		call    ToolCall
		want    string
		wantErr bool
	}{
		{
			name:    "success",
			call:    ToolCall{Name: "mock_tool", Args: map[string]any{"should_error": false}},
			want:    "success",
			wantErr: false,
		},
		{
			name:    "tool execution error",
			call:    ToolCall{Name: "mock_tool", Args: map[string]any{"should_error": true}},
			wantErr: true,
		},
		{
			name:    "tool not found",
			call:    ToolCall{Name: "no_such_tool", Args: map[string]any{}},
			wantErr: true,
		},
		{
			name:    "schema violation",
			call:    ToolCall{Name: "mock_tool", Args: map[string]any{"should_error": "yes"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := executeTool(ctx, tt.call, reg)
			if (err != nil) != tt.wantErr {
				t.Errorf("executeTool() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("executeTool() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExecuteToolCallsApproval(t *testing.T) {
	ctx := context.Background()
	reg := make(ToolRegistry)
	reg["mock_tool"] = Tool{Name: "mock_tool", Fn: mockToolFn}
	reg["read_tool"] = Tool{
		Name:     "read_tool",
		Fn:       mockToolFn,
		Metadata: ToolMetadata{Tags: []string{"read-only"}},
	}

	tests := []struct {
		name           string
		calls          []ToolCall
		approver       Approver
		wantHistoryLen int
		wantErr        error
		wantSkipped    bool
	}{
		{
			name:           "auto approve",
			calls:          []ToolCall{{ID: "call_1", Name: "mock_tool", Args: map[string]any{}}},
			approver:       AutoApprover{},
			wantHistoryLen: 1,
		},
		{
			name:  "skip appends skip message",
			calls: []ToolCall{{ID: "call_2", Name: "mock_tool", Args: map[string]any{}}},
			approver: ApproverFunc(func(ctx context.Context, call ToolCall, tool Tool) (Decision, error) {
				return DecisionSkip, nil
			}),
			wantHistoryLen: 1,
			wantSkipped:    true,
		},
		{
			name:  "quit aborts the run",
			calls: []ToolCall{{ID: "call_3", Name: "mock_tool", Args: map[string]any{}}},
			approver: ApproverFunc(func(ctx context.Context, call ToolCall, tool Tool) (Decision, error) {
				return DecisionQuit, nil
			}),
			wantHistoryLen: 0,
			wantErr:        ErrRunAborted,
		},
		{
			name:  "read-only bypasses inner approver",
			calls: []ToolCall{{ID: "call_4", Name: "read_tool", Args: map[string]any{}}},
			approver: ReadOnlyAutoApprover{Inner: ApproverFunc(func(ctx context.Context, call ToolCall, tool Tool) (Decision, error) {
				return DecisionQuit, nil
			})},
			wantHistoryLen: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := &State{Model: "test-model"}
			retryConfig := DefaultRetryConfig()

			_, err := executeToolCalls(ctx, tt.calls, reg, tt.approver, &retryConfig, Hooks{}, st)
			if !errors.Is(err, tt.wantErr) && (err != nil || tt.wantErr != nil) {
				t.Fatalf("executeToolCalls() error = %v, want %v", err, tt.wantErr)
			}
			if len(st.History) != tt.wantHistoryLen {
				t.Fatalf("history len = %d, want %d", len(st.History), tt.wantHistoryLen)
			}
			if tt.wantSkipped && st.History[0].Content != SkippedResultMessage {
				t.Errorf("expected skip message, got %q", st.History[0].Content)
			}
		})
	}
}

func TestRunStopsAtMaxSteps(t *testing.T) {
	reg := make(ToolRegistry)
	reg["mock_tool"] = Tool{Name: "mock_tool", Fn: mockToolFn}

	// Always ask for another tool call; the loop must stop on its own.
	loop := make([]LLMResponse, 25)
	for i := range loop {
		loop[i] = LLMResponse{
			Assistant: ChatMessage{Role: RoleAssistant},
			ToolCalls: []ToolCall{{ID: "c", Name: "mock_tool", Args: map[string]any{}}},
		}
	}
	llm := &mockLLM{responses: loop}

	st := &State{Model: "test-model", MaxSteps: 3}
	err := Run(context.Background(), llm, reg, AutoApprover{}, st, Hooks{}, ChatOptions{Compression: &CompressionConfig{}})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if st.Done {
		t.Error("expected run to stop on step budget, not completion")
	}
	if st.Step != 3 {
		t.Errorf("steps = %d, want 3", st.Step)
	}
}

func TestRunCompletesOnPlainAnswer(t *testing.T) {
	reg := make(ToolRegistry)
	reg["mock_tool"] = Tool{Name: "mock_tool", Fn: mockToolFn}

	llm := &mockLLM{responses: []LLMResponse{
		{
			Assistant: ChatMessage{Role: RoleAssistant},
			ToolCalls: []ToolCall{{ID: "c1", Name: "mock_tool", Args: map[string]any{}}},
		},
		{
			Assistant: ChatMessage{Role: RoleAssistant, Content: "all done"},
		},
	}}

	st := &State{Model: "test-model", MaxSteps: 10, History: []ChatMessage{{Role: RoleUser, Content: "task"}}}
	err := Run(context.Background(), llm, reg, AutoApprover{}, st, Hooks{}, ChatOptions{Compression: &CompressionConfig{}})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !st.Done {
		t.Fatal("expected Done")
	}
	last := st.History[len(st.History)-1]
	if last.Role != RoleAssistant || last.Content != "all done" {
		t.Errorf("unexpected final message: %+v", last)
	}
}

func TestRunCompletesOnRespondTool(t *testing.T) {
	reg := make(ToolRegistry)
	reg["respond"] = Tool{
		Name: "respond",
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			return "final answer", nil
		},
	}

	llm := &mockLLM{responses: []LLMResponse{
		{
			Assistant: ChatMessage{Role: RoleAssistant},
			ToolCalls: []ToolCall{{ID: "c1", Name: "respond", Args: map[string]any{}}},
		},
	}}

	st := &State{Model: "test-model", MaxSteps: 10}
	err := Run(context.Background(), llm, reg, AutoApprover{}, st, Hooks{}, ChatOptions{Compression: &CompressionConfig{}})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !st.Done {
		t.Error("respond tool should finish the run")
	}
}

func TestStepOnceRecordsProviderDecodeFailures(t *testing.T) {
	reg := make(ToolRegistry)
	reg["mock_tool"] = Tool{Name: "mock_tool", Fn: mockToolFn}

	llm := &mockLLM{responses: []LLMResponse{
		{
			Assistant: ChatMessage{Role: RoleAssistant},
			ToolCalls: []ToolCall{{ID: "bad", Name: "mock_tool", Error: "truncated arguments"}},
		},
	}}

	st := &State{Model: "test-model", MaxSteps: 10}
	if err := stepOnce(context.Background(), llm, reg, AutoApprover{}, st, Hooks{}, ChatOptions{Compression: &CompressionConfig{}}); err != nil {
		t.Fatalf("stepOnce() error = %v", err)
	}

	last := st.History[len(st.History)-1]
	if last.Role != RoleTool || !strings.Contains(last.Content, "truncated arguments") {
		t.Errorf("expected decode failure in history, got %+v", last)
	}
	if st.Done {
		t.Error("decode failure should not finish the run")
	}
}

func TestRunStream(t *testing.T) {
	reg := make(ToolRegistry)
	llm := &mockLLM{responses: []LLMResponse{
		{Assistant: ChatMessage{Role: RoleAssistant, Content: "streamed answer"}},
	}}

	var deltas []string
	hook := &streamCapture{}
	st := &State{Model: "test-model", MaxSteps: 5}
	err := RunStream(context.Background(), llm, reg, AutoApprover{}, st, Hooks{hook}, ChatOptions{Compression: &CompressionConfig{}})
	if err != nil {
		t.Fatalf("RunStream() error = %v", err)
	}
	deltas = hook.deltas
	if !st.Done {
		t.Fatal("expected Done")
	}
	if strings.Join(deltas, "") != "streamed answer" {
		t.Errorf("deltas = %q", deltas)
	}
}

type streamCapture struct {
	NopHook
	deltas []string
}

func (h *streamCapture) OnStreamDelta(_ context.Context, _ *State, d string) {
	h.deltas = append(h.deltas, d)
}

func TestSkippedRespondDoesNotEndTurn(t *testing.T) {
	reg := make(ToolRegistry)
	reg["respond"] = Tool{Name: "respond", Fn: mockToolFn}

	llm := &mockLLM{responses: []LLMResponse{{
		Assistant: ChatMessage{Role: RoleAssistant},
		ToolCalls: []ToolCall{{ID: "call_r", Name: "respond", Args: map[string]any{}}},
	}}}
	skip := ApproverFunc(func(ctx context.Context, call ToolCall, tool Tool) (Decision, error) {
		return DecisionSkip, nil
	})

	st := &State{Model: "test-model", MaxSteps: 5}
	if err := stepOnce(context.Background(), llm, reg, skip, st, Hooks{}, ChatOptions{Compression: &CompressionConfig{}}); err != nil {
		t.Fatalf("stepOnce() error = %v", err)
	}
	if st.Done {
		t.Error("a skipped respond must not end the turn")
	}
	last := st.History[len(st.History)-1]
	if last.Role != RoleTool || last.Content != SkippedResultMessage {
		t.Errorf("expected the skip notice as the last entry, got %+v", last)
	}
}

func TestApprovedRespondEndsTurn(t *testing.T) {
	reg := make(ToolRegistry)
	reg["respond"] = Tool{Name: "respond", Fn: mockToolFn}

	llm := &mockLLM{responses: []LLMResponse{{
		Assistant: ChatMessage{Role: RoleAssistant},
		ToolCalls: []ToolCall{{ID: "call_r", Name: "respond", Args: map[string]any{}}},
	}}}

	st := &State{Model: "test-model", MaxSteps: 5}
	if err := stepOnce(context.Background(), llm, reg, AutoApprover{}, st, Hooks{}, ChatOptions{Compression: &CompressionConfig{}}); err != nil {
		t.Fatalf("stepOnce() error = %v", err)
	}
	if !st.Done {
		t.Error("an executed respond should end the turn")
	}
}
