package engine

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastPolicy(maxRetries int) RetryPolicy {
	return RetryPolicy{
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestRetryWithPolicy(t *testing.T) {
	ctx := context.Background()

	t.Run("succeeds after transient failures", func(t *testing.T) {
		attempts := 0
		got, err := RetryWithPolicy(ctx, fastPolicy(3), func(ctx context.Context) (string, error) {
			attempts++
			if attempts < 3 {
				return "", errors.New("connection refused")
			}
			return "ok", nil
		}, ClassifyLLMError, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != "ok" || attempts != 3 {
			t.Errorf("got %q after %d attempts", got, attempts)
		}
	})

	t.Run("non-retryable fails immediately", func(t *testing.T) {
		attempts := 0
		_, err := RetryWithPolicy(ctx, fastPolicy(3), func(ctx context.Context) (string, error) {
			attempts++
			return "", errors.New("invalid api key")
		}, ClassifyLLMError, nil)
		if err == nil {
			t.Fatal("expected error")
		}
		if attempts != 1 {
			t.Errorf("attempts = %d, want 1", attempts)
		}
		if IsRetryExhausted(err) {
			t.Error("non-retryable error must not be wrapped as exhaustion")
		}
	})

	t.Run("exhaustion wraps the last error", func(t *testing.T) {
		_, err := RetryWithPolicy(ctx, fastPolicy(2), func(ctx context.Context) (string, error) {
			return "", errors.New("503 service unavailable")
		}, ClassifyLLMError, nil)
		if !IsRetryExhausted(err) {
			t.Fatalf("expected RetryExhaustedError, got %v", err)
		}
	})

	t.Run("onRetry observes each attempt", func(t *testing.T) {
		var delays []time.Duration
		_, _ = RetryWithPolicy(ctx, fastPolicy(2), func(ctx context.Context) (string, error) {
			return "", errors.New("timeout")
		}, ClassifyLLMError, func(attempt int, delay time.Duration, err error) {
			delays = append(delays, delay)
		})
		if len(delays) != 2 {
			t.Errorf("onRetry calls = %d, want 2", len(delays))
		}
	})
}

func TestClassifyLLMError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want RetryClass
	}{
		{"nil", nil, RetryClassNonRetryable},
		{"rate limit", errors.New("429 too many requests"), RetryClassRetryable},
		{"server error", errors.New("502 bad gateway"), RetryClassRetryable},
		{"ollama still loading", errors.New("dial tcp: connection refused"), RetryClassRetryable},
		{"deadline", errors.New("context deadline exceeded"), RetryClassMaybe},
		{"context overflow", errors.New("maximum context length exceeded"), RetryClassMaybe},
		{"auth", errors.New("401 unauthorized"), RetryClassNonRetryable},
		{"bad request", errors.New("400 bad request"), RetryClassNonRetryable},
		{"missing model", errors.New("model not found"), RetryClassNonRetryable},
		{"unknown", errors.New("weird failure"), RetryClassNonRetryable},
		{"engine error metadata wins", NewEngineError(errors.New("whatever"), RetryClassRetryable), RetryClassRetryable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyLLMError(tt.err); got != tt.want {
				t.Errorf("ClassifyLLMError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClassifyToolError(t *testing.T) {
	if got := ClassifyToolError(errors.New("timeout"), false); got != RetryClassNonRetryable {
		t.Errorf("non-retryable tool should never retry, got %v", got)
	}
	if got := ClassifyToolError(errors.New("database is locked"), true); got != RetryClassRetryable {
		t.Errorf("transient error = %v, want retryable", got)
	}
	if got := ClassifyToolError(errors.New("no such file or directory"), true); got != RetryClassNonRetryable {
		t.Errorf("deterministic failure = %v, want non-retryable", got)
	}
}

func TestExtractRetryAfter(t *testing.T) {
	err := &EngineError{Err: errors.New("rate limited"), RetryAfter: "7"}
	if got := ExtractRetryAfter(err); got != 7*time.Second {
		t.Errorf("ExtractRetryAfter() = %v, want 7s", got)
	}
	if got := ExtractRetryAfter(errors.New("plain error")); got != 0 {
		t.Errorf("ExtractRetryAfter() = %v, want 0", got)
	}
}

func TestRetryToolCallRespectsRetryableFlag(t *testing.T) {
	attempts := 0
	reg := ToolRegistry{
		"flaky": Tool{
			Name: "flaky",
			Fn: func(ctx context.Context, args map[string]any) (string, error) {
				attempts++
				return "", errors.New("timeout")
			},
		},
	}

	_, err := RetryToolCall(context.Background(), fastPolicy(3), ToolCall{Name: "flaky", Args: map[string]any{}}, reg, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Errorf("non-retryable tool ran %d times, want 1", attempts)
	}
}
