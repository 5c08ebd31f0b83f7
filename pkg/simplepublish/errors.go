package simplepublish

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/google/uuid"
)

// Error types
var (
	// ErrItemNotFound indicates an item was not found
	ErrItemNotFound = errors.New("item not found")

	// ErrUnknownTarget indicates a target has no registered rules or publisher
	ErrUnknownTarget = errors.New("unknown target")

	// ErrInvalidTransition indicates a forbidden item status transition
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrTransitionConflict indicates another caller won a compare-and-set transition
	ErrTransitionConflict = errors.New("status transition conflict")

	// ErrInvalidItem indicates a submitted item failed validation
	ErrInvalidItem = errors.New("invalid item")

	// ErrNotCompatible indicates content failed compatibility testing
	ErrNotCompatible = errors.New("content not compatible with target")

	// ErrBreakerOpen indicates the target's circuit breaker rejected the call
	ErrBreakerOpen = errors.New("circuit breaker open")

	// ErrRetryExhausted indicates a retryable error outlived the retry budget
	ErrRetryExhausted = errors.New("retries exhausted")

	// ErrItemBeingPublished indicates an operation cannot proceed while the item is publishing
	ErrItemBeingPublished = errors.New("item is being published")

	// ErrSkipTarget is returned by a BeforePublish hook to veto a single target
	ErrSkipTarget = errors.New("target skipped by hook")
)

// ErrorKind classifies publish failures for retry decisions and reporting.
type ErrorKind string

// Error kind constants (typed).
const (
	ErrorKindValidation     ErrorKind = "validation"
	ErrorKindAuthentication ErrorKind = "authentication"
	ErrorKindClient         ErrorKind = "client"
	ErrorKindNetwork        ErrorKind = "network"
	ErrorKindTimeout        ErrorKind = "timeout"
	ErrorKindServer         ErrorKind = "server"
	ErrorKindRateLimit      ErrorKind = "rate_limit"
	ErrorKindBreakerOpen    ErrorKind = "breaker_open"
	ErrorKindRetryExhausted ErrorKind = "retry_exhausted"
	ErrorKindUnknown        ErrorKind = "unknown"
)

// Retryable reports whether errors of this kind are worth another attempt.
// Breaker-open and retry-exhausted are terminal for the current call; client
// and authentication failures will not improve by repeating them.
func (k ErrorKind) Retryable() bool {
	switch k {
	case ErrorKindNetwork, ErrorKindTimeout, ErrorKindServer, ErrorKindRateLimit:
		return true
	}
	return false
}

// PublishError represents an error from a publish operation against one target.
type PublishError struct {
	ItemID uuid.UUID
	Target string
	Op     string
	Err    error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish operation %s failed for item %s on target %s: %v", e.Op, e.ItemID, e.Target, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// ItemError represents an error related to item queue operations.
type ItemError struct {
	ItemID uuid.UUID
	Op     string
	Err    error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("item operation %s failed for item %s: %v", e.Op, e.ItemID, e.Err)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}

// HTTPError carries a remote status code from a publisher so the executor can
// classify it. Publishers return it for any non-2xx response.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	// Status already carries the code when it comes from http.Response.Status.
	status := e.Status
	if status == "" {
		status = fmt.Sprintf("%d", e.StatusCode)
	}
	if e.Body != "" {
		return fmt.Sprintf("remote returned %s: %s", status, e.Body)
	}
	return fmt.Sprintf("remote returned %s", status)
}

// ClassifyError maps an error onto the ErrorKind taxonomy. Sentinels win over
// typed errors, typed errors over substring fallbacks from the policy.
func ClassifyError(err error, retryableSubstrings []string) ErrorKind {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrBreakerOpen):
		return ErrorKindBreakerOpen
	case errors.Is(err, ErrRetryExhausted):
		return ErrorKindRetryExhausted
	case errors.Is(err, ErrNotCompatible), errors.Is(err, ErrInvalidItem):
		return ErrorKindValidation
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorKindTimeout
	case errors.Is(err, context.Canceled):
		return ErrorKindClient
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return classifyStatusCode(httpErr.StatusCode)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrorKindTimeout
		}
		return ErrorKindNetwork
	}

	msg := strings.ToLower(err.Error())
	for _, s := range retryableSubstrings {
		if s != "" && strings.Contains(msg, strings.ToLower(s)) {
			return ErrorKindNetwork
		}
	}
	switch {
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"):
		return ErrorKindTimeout
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "no such host"), strings.Contains(msg, "broken pipe"):
		return ErrorKindNetwork
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "too many requests"):
		return ErrorKindRateLimit
	case strings.Contains(msg, "unauthorized"), strings.Contains(msg, "forbidden"):
		return ErrorKindAuthentication
	}
	return ErrorKindUnknown
}

func classifyStatusCode(code int) ErrorKind {
	switch {
	case code == 408:
		return ErrorKindTimeout
	case code == 429:
		return ErrorKindRateLimit
	case code == 401 || code == 403:
		return ErrorKindAuthentication
	case code >= 500:
		return ErrorKindServer
	case code >= 400:
		return ErrorKindClient
	}
	return ErrorKindUnknown
}
