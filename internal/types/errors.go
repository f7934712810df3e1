// Package types provides shared types, interfaces, and errors for the application.
package types

import "errors"

// Sentinel errors for consistent error handling across the application.
// These errors can be checked with errors.Is() for type-safe error handling.
var (
	// Browser pool errors
	ErrBrowserPoolExhausted = errors.New("browser pool exhausted: no browsers available")
	ErrBrowserPoolClosed    = errors.New("browser pool is closed")
	ErrBrowserPoolTimeout   = errors.New("timeout waiting for browser from pool")
	ErrBrowserUnhealthy     = errors.New("browser is unhealthy")

	// Session errors
	ErrSessionNotFound      = errors.New("session not found")
	ErrSessionAlreadyExists = errors.New("session already exists")
	ErrSessionExpired       = errors.New("session has expired")
	ErrTooManySessions      = errors.New("maximum number of sessions reached")
	ErrSessionPageNil       = errors.New("session page is nil or has been closed")

	// Monitor errors
	ErrMonitorNotAttached = errors.New("page monitor is not attached")
	ErrRestrictedPage     = errors.New("page URL scheme does not permit instrumentation")
	ErrInjectionFailed    = errors.New("failed to inject monitor into page")

	// Analysis errors
	ErrNoReport        = errors.New("no report available for session")
	ErrAnalysisAborted = errors.New("analysis aborted")

	// Request errors
	ErrInvalidRequest = errors.New("invalid request")
	ErrInvalidURL     = errors.New("invalid URL")
	ErrInvalidCommand = errors.New("invalid command")
	ErrURLRequired    = errors.New("url is required")

	// Context errors
	ErrContextCanceled = errors.New("operation canceled")
)

// MonitorError provides detailed information about monitor attachment failures.
// Attachment failure is the one analysis error surfaced to the operator; all
// other degradations collapse into empty report sections.
type MonitorError struct {
	Stage   string // The stage that failed: "validate", "inject", "binding"
	URL     string // The page URL at the time of failure
	Message string // Human-readable error message
	Err     error  // Underlying error (for unwrapping)
}

// Error implements the error interface.
func (e *MonitorError) Error() string {
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *MonitorError) Unwrap() error {
	return e.Err
}

// NewRestrictedPageError creates an error for pages that cannot be instrumented.
func NewRestrictedPageError(url string) *MonitorError {
	return &MonitorError{
		Stage:   "validate",
		URL:     url,
		Message: "Page cannot be instrumented. Privileged and internal URL schemes do not accept injected scripts.",
		Err:     ErrRestrictedPage,
	}
}

// NewInjectionError creates an error for script injection failures.
func NewInjectionError(url string, err error) *MonitorError {
	return &MonitorError{
		Stage:   "inject",
		URL:     url,
		Message: "Failed to install the network monitor in the page.",
		Err:     errors.Join(ErrInjectionFailed, err),
	}
}

// NewBindingError creates an error for failures exposing the report callback.
func NewBindingError(url string, err error) *MonitorError {
	return &MonitorError{
		Stage:   "binding",
		URL:     url,
		Message: "Failed to expose the monitor reporting binding to the page.",
		Err:     errors.Join(ErrInjectionFailed, err),
	}
}

// PoolError provides detailed information about browser pool failures.
type PoolError struct {
	Operation string // The operation that failed
	Message   string // Human-readable error message
	Err       error  // Underlying error
}

// Error implements the error interface.
func (e *PoolError) Error() string {
	return e.Message
}

// Unwrap returns the underlying error.
func (e *PoolError) Unwrap() error {
	return e.Err
}

// NewPoolAcquireError creates an error for pool acquire failures.
func NewPoolAcquireError(reason string, err error) *PoolError {
	return &PoolError{
		Operation: "acquire",
		Message:   "Failed to acquire browser from pool: " + reason,
		Err:       err,
	}
}
