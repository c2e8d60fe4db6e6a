package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// transient reports whether waiting and asking again could succeed.
// Cancellation, truncation and missing credentials never improve; rate
// limits, outages, invalid replies and unclassified network errors might.
func transient(err error) bool {
	var (
		maxTok *ErrMaxTokensExceeded
		notCfg *ErrNotConfigured
	)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.As(err, &maxTok), errors.As(err, &notCfg):
		return false
	}
	return true
}

// ErrRateLimit indicates the provider returned a rate limit error (429).
type ErrRateLimit struct {
	RetryAfter time.Duration
	Err        error
}

func (e *ErrRateLimit) Error() string {
	return fmt.Sprintf("rate limited (retry after %s): %v", e.RetryAfter, e.Err)
}

func (e *ErrRateLimit) Unwrap() error { return e.Err }

// ErrInvalidResponse indicates the LLM returned content that does not
// conform to the requested schema.
type ErrInvalidResponse struct {
	Content json.RawMessage
	Err     error
}

func (e *ErrInvalidResponse) Error() string {
	return fmt.Sprintf("invalid LLM response: %v", e.Err)
}

func (e *ErrInvalidResponse) Unwrap() error { return e.Err }

// ErrProviderUnavailable indicates the provider is down or unreachable.
type ErrProviderUnavailable struct {
	Err error
}

func (e *ErrProviderUnavailable) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("LLM provider unavailable: %v", e.Err)
	}
	return "LLM provider unavailable"
}

func (e *ErrProviderUnavailable) Unwrap() error { return e.Err }

// ErrMaxTokensExceeded indicates the response was truncated because it
// hit the MaxTokens limit.
type ErrMaxTokensExceeded struct {
	Content json.RawMessage
}

func (e *ErrMaxTokensExceeded) Error() string {
	return "LLM response truncated: max tokens exceeded"
}

// ErrNotConfigured indicates no usable provider could be built, typically
// because credentials are missing. It is returned per request so a missing
// key never prevents the rest of the application from running.
type ErrNotConfigured struct {
	Err error
}

func (e *ErrNotConfigured) Error() string {
	return fmt.Sprintf("LLM provider not configured: %v", e.Err)
}

func (e *ErrNotConfigured) Unwrap() error { return e.Err }
