package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the failure taxonomy. Every upstream failure is
// converted into one of these typed values at the API client boundary;
// no panic propagates past it.
var (
	// ErrTransient indicates a transient network failure, retried by the client.
	ErrTransient = errors.New("transient network error")

	// ErrRateLimited indicates an upstream 429, retried with the server delay.
	ErrRateLimited = errors.New("rate limited")

	// ErrUpstreamClient indicates a non-retryable upstream 4xx (other than 429).
	ErrUpstreamClient = errors.New("upstream client error")

	// ErrUpstreamServer indicates an upstream 5xx, retried then surfaced.
	ErrUpstreamServer = errors.New("upstream server error")

	// ErrMalformedResponse indicates an unparseable body in a 200 response.
	ErrMalformedResponse = errors.New("malformed upstream response")

	// ErrEmptyQuery indicates a query with no extractable search terms.
	ErrEmptyQuery = errors.New("no search terms")
)

// ExternalAPIError carries the HTTP status and message of an upstream failure.
type ExternalAPIError struct {
	Source     string
	StatusCode int
	Message    string
	Cause      error
}

// Error implements the error interface.
func (e *ExternalAPIError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Source, e.StatusCode, e.Message)
}

// Unwrap maps the status code onto the failure taxonomy so callers can use
// errors.Is against the sentinels.
func (e *ExternalAPIError) Unwrap() error {
	if e.Cause != nil {
		return e.Cause
	}
	switch {
	case e.StatusCode == 429:
		return ErrRateLimited
	case e.StatusCode >= 500:
		return ErrUpstreamServer
	case e.StatusCode >= 400:
		return ErrUpstreamClient
	}
	return nil
}

// NewExternalAPIError creates a new ExternalAPIError.
func NewExternalAPIError(source string, statusCode int, message string, cause error) *ExternalAPIError {
	return &ExternalAPIError{
		Source:     source,
		StatusCode: statusCode,
		Message:    message,
		Cause:      cause,
	}
}

// RateLimitError reports an upstream 429 whose retry budget was exhausted.
type RateLimitError struct {
	Source     string
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited by %s: retry after %s", e.Source, e.RetryAfter)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// MalformedResponseError signals an upstream contract violation: a success
// status whose body could not be decoded. Distinct from network failures
// and never retried.
type MalformedResponseError struct {
	Source string
	Cause  error
}

// Error implements the error interface.
func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%s returned malformed response: %v", e.Source, e.Cause)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *MalformedResponseError) Unwrap() error {
	return ErrMalformedResponse
}
