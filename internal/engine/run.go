package engine

import (
	"context"
	"fmt"
)

// Run drives the loop until the model answers, MaxSteps is reached, or an
// error occurs. State is modified in place so callers keep the history.
// Steps increment only on success; retries are tracked separately.
func Run(ctx context.Context, llm LLMClient, reg ToolRegistry, approver Approver, st *State, hooks Hooks, opts ChatOptions) error {
	st.Step = 0

	for st.Step < st.MaxSteps && !st.Done {
		select {
		case <-ctx.Done():
			return fmt.Errorf("execution cancelled: %w", ctx.Err())
		default:
		}

		if err := stepOnce(ctx, llm, reg, approver, st, hooks, opts); err != nil {
			// stepOnce retries internally; an error here means retries
			// were exhausted, the user quit, or the error is terminal.
			return err
		}
		st.Step++
	}
	if st.Done {
		hooks.OnDone(ctx, st)
	}
	return nil
}

// RunStream is Run with incremental output: assistant text is delivered
// through OnStreamDelta as it arrives from the provider.
func RunStream(ctx context.Context, llm LLMClient, reg ToolRegistry, approver Approver, st *State, hooks Hooks, opts ChatOptions) error {
	st.Step = 0

	for st.Step < st.MaxSteps && !st.Done {
		select {
		case <-ctx.Done():
			return fmt.Errorf("execution cancelled: %w", ctx.Err())
		default:
		}

		if err := stepOnceStream(ctx, llm, reg, approver, st, hooks, opts); err != nil {
			return err
		}
		st.Step++
	}
	if st.Done {
		hooks.OnDone(ctx, st)
	}
	return nil
}
