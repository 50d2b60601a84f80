package connectors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies a connector failure for retry and alerting decisions
type ErrorKind string

const (
	// ErrorKindTransient covers network failures and timeouts; retryable
	ErrorKindTransient ErrorKind = "transient"
	// ErrorKindRateLimited means the source asked us to back off
	ErrorKindRateLimited ErrorKind = "rate_limited"
	// ErrorKindSchemaChanged means the payload no longer matches the mapping
	// table; the source is disabled for the rest of the run
	ErrorKindSchemaChanged ErrorKind = "schema_changed"
	// ErrorKindAuth means credentials were rejected
	ErrorKindAuth ErrorKind = "auth"
)

// SourceError is a classified connector failure
type SourceError struct {
	Kind       ErrorKind
	SourceCode string
	// RetryAfter is the source-declared backoff hint for rate limits
	RetryAfter time.Duration
	Err        error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s: %s: %v", e.SourceCode, e.Kind, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the orchestrator may retry the fetch this run
func (e *SourceError) Retryable() bool {
	return e.Kind == ErrorKindTransient || e.Kind == ErrorKindRateLimited
}

// NewTransientError wraps a network or timeout failure
func NewTransientError(sourceCode string, err error) *SourceError {
	return &SourceError{Kind: ErrorKindTransient, SourceCode: sourceCode, Err: err}
}

// NewRateLimitError wraps a rate limit response with the source's hint
func NewRateLimitError(sourceCode string, retryAfter time.Duration, err error) *SourceError {
	return &SourceError{Kind: ErrorKindRateLimited, SourceCode: sourceCode, RetryAfter: retryAfter, Err: err}
}

// NewSchemaChangedError wraps an unexpected payload shape
func NewSchemaChangedError(sourceCode string, err error) *SourceError {
	return &SourceError{Kind: ErrorKindSchemaChanged, SourceCode: sourceCode, Err: err}
}

// NewAuthError wraps rejected credentials
func NewAuthError(sourceCode string, err error) *SourceError {
	return &SourceError{Kind: ErrorKindAuth, SourceCode: sourceCode, Err: err}
}

// AsSourceError extracts a SourceError from an error chain. Unclassified
// errors are treated as transient so a flaky source gets its retry budget.
func AsSourceError(sourceCode string, err error) *SourceError {
	var srcErr *SourceError
	if errors.As(err, &srcErr) {
		return srcErr
	}
	return NewTransientError(sourceCode, err)
}
