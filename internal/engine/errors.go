package engine

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// RetryClass says whether an error is worth retrying.
type RetryClass string

const (
	RetryClassRetryable    RetryClass = "retryable"
	RetryClassMaybe        RetryClass = "maybe" // retry with a tight cap
	RetryClassNonRetryable RetryClass = "non_retryable"
)

// EngineError wraps a provider or tool error with classification metadata.
type EngineError struct {
	Err         error
	Class       RetryClass
	HTTPStatus  int
	RetryAfter  string // raw Retry-After header value
	IsRateLimit bool
	IsTimeout   bool
	IsNetwork   bool
	IsAuth      bool
}

func (e *EngineError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("engine error: %s", e.Class)
}

func (e *EngineError) Unwrap() error { return e.Err }

func NewEngineError(err error, class RetryClass) *EngineError {
	return &EngineError{Err: err, Class: class}
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// ClassifyLLMError classifies an error from a provider call. Providers
// attach EngineError metadata when they can; everything else is matched
// on the error text.
func ClassifyLLMError(err error) RetryClass {
	if err == nil {
		return RetryClassNonRetryable
	}

	var engineErr *EngineError
	if errors.As(err, &engineErr) {
		return engineErr.Class
	}

	errStr := strings.ToLower(err.Error())

	switch {
	// Rate limits and server-side failures recover on their own.
	case containsAny(errStr, "429", "rate limit", "too many requests"):
		return RetryClassRetryable
	case containsAny(errStr, "500", "502", "503", "504",
		"internal server error", "bad gateway", "service unavailable", "gateway timeout"):
		return RetryClassRetryable
	// Local endpoints come and go; connection refused usually means the
	// Ollama server is still loading the model.
	case containsAny(errStr, "timeout", "connection reset", "connection refused",
		"no such host", "network", "temporary failure", "eof"):
		return RetryClassRetryable
	case containsAny(errStr, "deadline exceeded"):
		return RetryClassMaybe
	case containsAny(errStr, "context length", "token limit", "maximum context length"):
		return RetryClassMaybe
	case containsAny(errStr, "401", "403", "unauthorized", "forbidden",
		"invalid api key", "authentication failed"):
		return RetryClassNonRetryable
	case containsAny(errStr, "400", "bad request", "invalid request", "malformed"):
		return RetryClassNonRetryable
	case containsAny(errStr, "model not found", "quota", "billing", "payment required"):
		return RetryClassNonRetryable
	}

	return RetryClassNonRetryable
}

// ClassifyToolError classifies an error from a tool execution. Validation
// and missing-file failures are deterministic and never retried.
func ClassifyToolError(err error, toolRetryable bool) RetryClass {
	if err == nil || !toolRetryable {
		return RetryClassNonRetryable
	}

	errStr := strings.ToLower(err.Error())

	switch {
	case containsAny(errStr, "timeout", "connection reset", "connection refused",
		"network", "temporary failure"):
		return RetryClassRetryable
	case containsAny(errStr, "resource temporarily unavailable", "file locked", "temporary"):
		return RetryClassRetryable
	case containsAny(errStr, "deadlock", "database is locked"):
		return RetryClassRetryable
	case containsAny(errStr, "no such file", "file not found", "not found",
		"permission denied", "invalid input", "validation failed"):
		return RetryClassNonRetryable
	}

	return RetryClassNonRetryable
}

// ExtractRetryAfter pulls a Retry-After duration out of an error, either
// from EngineError metadata or from the error text. Returns 0 if absent.
func ExtractRetryAfter(err error) time.Duration {
	var engineErr *EngineError
	if errors.As(err, &engineErr) && engineErr.RetryAfter != "" {
		var seconds int
		if _, err := fmt.Sscanf(engineErr.RetryAfter, "%d", &seconds); err == nil {
			return time.Duration(seconds) * time.Second
		}
		if t, err := time.Parse(time.RFC1123, engineErr.RetryAfter); err == nil {
			if now := time.Now(); t.After(now) {
				return t.Sub(now)
			}
		}
	}

	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "retry after") {
		var seconds int
		if _, err := fmt.Sscanf(errStr, "retry after %d", &seconds); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}

	return 0
}

// WrapLLMError attaches HTTP-level classification metadata to a provider
// error.
func WrapLLMError(err error, httpStatus int, retryAfter string) error {
	if err == nil {
		return nil
	}
	return &EngineError{
		Err:         err,
		Class:       ClassifyLLMError(err),
		HTTPStatus:  httpStatus,
		RetryAfter:  retryAfter,
		IsRateLimit: httpStatus == http.StatusTooManyRequests,
		IsTimeout:   httpStatus == http.StatusGatewayTimeout || httpStatus == http.StatusRequestTimeout,
		IsNetwork:   httpStatus == 0 || httpStatus >= 500,
		IsAuth:      httpStatus == http.StatusUnauthorized || httpStatus == http.StatusForbidden,
	}
}

// RetryExhaustedError indicates that all retry attempts have been used.
type RetryExhaustedError struct {
	Err         error
	Attempts    int
	MaxAttempts int
	IsGuarded   bool // "maybe" class error with the tight retry cap
}

func (e *RetryExhaustedError) Error() string {
	if e.IsGuarded {
		return fmt.Sprintf("guarded retries exhausted after %d attempts: %v", e.Attempts, e.Err)
	}
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Err }

func NewRetryExhaustedError(err error, attempts, maxAttempts int, isGuarded bool) *RetryExhaustedError {
	return &RetryExhaustedError{Err: err, Attempts: attempts, MaxAttempts: maxAttempts, IsGuarded: isGuarded}
}

func IsRetryExhausted(err error) bool {
	var retryExhausted *RetryExhaustedError
	return errors.As(err, &retryExhausted)
}

// ToolValidationError indicates tool arguments failed schema validation.
type ToolValidationError struct {
	ToolName string
	Errors   []string
}

func (e *ToolValidationError) Error() string {
	return fmt.Sprintf("tool %s validation failed: %s", e.ToolName, strings.Join(e.Errors, "; "))
}
