// Package errors provides the error taxonomy for the crawl pipeline.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// ErrorType categorizes errors for handling decisions.
type ErrorType int

const (
	// Unknown is an uncategorized error.
	Unknown ErrorType = iota
	// SessionStart means the browser session could not be created. Fatal for the run.
	SessionStart
	// Navigation means a page could not be loaded (timeout, network, CDP failure).
	Navigation
	// Extraction means a rendered document did not yield the required data.
	Extraction
	// Sink means category output could not be written.
	Sink
	// Cancelled represents context cancellation.
	Cancelled
)

// String returns the string representation of ErrorType.
func (t ErrorType) String() string {
	switch t {
	case SessionStart:
		return "session_start"
	case Navigation:
		return "navigation"
	case Extraction:
		return "extraction"
	case Sink:
		return "sink"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsFatal reports whether errors of this type abort the whole run.
func (t ErrorType) IsFatal() bool {
	return t == SessionStart
}

// CrawlError represents a categorized crawl error.
type CrawlError struct {
	Type      ErrorType
	URL       string
	Category  string
	Field     string
	Operation string
	Message   string
	Cause     error
	Timeout   bool
	Retryable bool
}

// Error implements the error interface.
func (e *CrawlError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s error during %s", e.Type.String(), e.Operation)
	if e.Category != "" {
		fmt.Fprintf(&b, " [%s]", e.Category)
	}
	if e.URL != "" {
		fmt.Fprintf(&b, " on %s", e.URL)
	}
	fmt.Fprintf(&b, ": %s", e.Message)
	if e.Field != "" {
		fmt.Fprintf(&b, " (field: %s)", e.Field)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, " (caused by: %v)", e.Cause)
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *CrawlError) Unwrap() error {
	return e.Cause
}

// Is matches on error type so errors.Is(err, &CrawlError{Type: Navigation}) works.
func (e *CrawlError) Is(target error) bool {
	t, ok := target.(*CrawlError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// NewCrawlError creates a new CrawlError.
func NewCrawlError(errType ErrorType, url, operation, message string, cause error) *CrawlError {
	return &CrawlError{
		Type:      errType,
		URL:       url,
		Operation: operation,
		Message:   message,
		Cause:     cause,
	}
}

// NewSessionStartError creates a session start error.
func NewSessionStartError(operation string, cause error) *CrawlError {
	return NewCrawlError(SessionStart, "", operation, "browser session could not be started", cause)
}

// NewNavigationError creates a navigation error. Timeouts are flagged and retryable.
func NewNavigationError(url string, cause error) *CrawlError {
	err := NewCrawlError(Navigation, url, "navigate", "page did not load", cause)
	if isTimeout(cause) {
		err.Timeout = true
		err.Message = "page load timed out"
	}
	err.Retryable = err.Timeout || isNetworkError(cause)
	return err
}

// NewExtractionError creates an item-scoped extraction error for a missing field.
func NewExtractionError(url, field string) *CrawlError {
	err := NewCrawlError(Extraction, url, "extract_record", "required field missing", nil)
	err.Field = field
	return err
}

// NewEmptyListingError is the category-scoped extraction error for a listing without links.
func NewEmptyListingError(category, url string) *CrawlError {
	err := NewCrawlError(Extraction, url, "extract_links", "no item links found", nil)
	err.Category = category
	err.Field = "links"
	return err
}

// NewSinkError creates a sink error.
func NewSinkError(category, path string, cause error) *CrawlError {
	err := NewCrawlError(Sink, path, "write", "output could not be written", cause)
	err.Category = category
	return err
}

// NewCancelledError creates a cancelled error.
func NewCancelledError(url, operation string) *CrawlError {
	return NewCrawlError(Cancelled, url, operation, "operation cancelled", context.Canceled)
}

// WithCategory tags err with a category label when it is a CrawlError without one.
func WithCategory(err error, category string) error {
	var crawlErr *CrawlError
	if errors.As(err, &crawlErr) && crawlErr.Category == "" {
		crawlErr.Category = category
	}
	return err
}

// isTimeout checks if an error is a timeout.
func isTimeout(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded")
}

// isNetworkError checks if an error is network-related.
func isNetworkError(err error) bool {
	if err == nil {
		return false
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return true
	}

	// Chrome reports these as net::ERR_* strings over CDP.
	errStr := err.Error()
	return strings.Contains(errStr, "net::ERR_") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset")
}

// IsTimeout reports whether err is a navigation timeout or wraps a deadline.
func IsTimeout(err error) bool {
	var crawlErr *CrawlError
	if errors.As(err, &crawlErr) {
		return crawlErr.Timeout
	}
	return isTimeout(err)
}

// IsRetryable checks if an error should be retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var crawlErr *CrawlError
	if errors.As(err, &crawlErr) {
		return crawlErr.Retryable
	}

	return isTimeout(err) || isNetworkError(err)
}

// IsFatal reports whether err must abort the run.
func IsFatal(err error) bool {
	return GetErrorType(err).IsFatal()
}

// IsCancelled reports whether err stems from context cancellation.
func IsCancelled(err error) bool {
	if err == nil {
		return false
	}
	if GetErrorType(err) == Cancelled {
		return true
	}
	return errors.Is(err, context.Canceled)
}

// GetErrorType extracts the error type from an error.
func GetErrorType(err error) ErrorType {
	var crawlErr *CrawlError
	if errors.As(err, &crawlErr) {
		return crawlErr.Type
	}
	return Unknown
}

// GetField extracts the missing field name of an extraction error.
func GetField(err error) string {
	var crawlErr *CrawlError
	if errors.As(err, &crawlErr) {
		return crawlErr.Field
	}
	return ""
}
