package engine

import (
	"context"
	"errors"
)

// Decision is the outcome of asking the user about a pending tool call.
type Decision int

const (
	DecisionApprove Decision = iota
	DecisionSkip
	DecisionQuit
)

// ErrRunAborted is returned when the user quits out of a confirmation
// prompt. The history up to that point is preserved.
var ErrRunAborted = errors.New("run aborted by user")

// SkippedResultMessage is appended as the tool result for a skipped call
// so the model knows the operation did not happen.
const SkippedResultMessage = "Tool execution was skipped by the user. Continue with a different approach or ask for clarification."

// Approver decides whether a tool call may execute. The REPL implements
// this with a [y/n/q] prompt; non-interactive callers use AutoApprover.
type Approver interface {
	Approve(ctx context.Context, call ToolCall, tool Tool) (Decision, error)
}

// AutoApprover approves every call. Used with the -yes flag and in tests.
type AutoApprover struct{}

func (AutoApprover) Approve(context.Context, ToolCall, Tool) (Decision, error) {
	return DecisionApprove, nil
}

// ApproverFunc adapts a function to the Approver interface.
type ApproverFunc func(ctx context.Context, call ToolCall, tool Tool) (Decision, error)

func (f ApproverFunc) Approve(ctx context.Context, call ToolCall, tool Tool) (Decision, error) {
	return f(ctx, call, tool)
}

// ReadOnlyAutoApprover approves read-only tools without consulting the
// inner approver and delegates everything else to it.
type ReadOnlyAutoApprover struct {
	Inner Approver
}

func (a ReadOnlyAutoApprover) Approve(ctx context.Context, call ToolCall, tool Tool) (Decision, error) {
	if tool.IsReadOnly() {
		return DecisionApprove, nil
	}
	if a.Inner == nil {
		return DecisionApprove, nil
	}
	return a.Inner.Approve(ctx, call, tool)
}
