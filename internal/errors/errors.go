// Package errors provides the error taxonomy of the scanner.
//
// Every error type here is recovered locally by the component that raises
// it: a broken page ends one branch of the crawl, a failed probe is still a
// latency sample, a malformed or unclassifiable payload leaves the endpoint
// with an empty schema. Only startup failures reach the caller of a scan.
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
	// RenderFailure means a page failed to load or its traffic capture failed.
	RenderFailure
	// NetworkProbeFailure means an outbound fuzz request failed.
	NetworkProbeFailure
	// UnclassifiableInput means a payload value outside the classifier domain was seen.
	UnclassifiableInput
	// MalformedPayload means a request body or query string could not be decoded.
	MalformedPayload
	// Network represents network-related errors (DNS, connection).
	Network
	// Timeout represents timeout errors.
	Timeout
	// ClientError represents 4xx responses.
	ClientError
	// ServerError represents 5xx responses.
	ServerError
	// Cancelled represents context cancellation.
	Cancelled
)

// String returns the string representation of ErrorType.
func (t ErrorType) String() string {
	switch t {
	case RenderFailure:
		return "render_failure"
	case NetworkProbeFailure:
		return "network_probe_failure"
	case UnclassifiableInput:
		return "unclassifiable_input"
	case MalformedPayload:
		return "malformed_payload"
	case Network:
		return "network"
	case Timeout:
		return "timeout"
	case ClientError:
		return "client_error"
	case ServerError:
		return "server_error"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ScanError represents a categorized scan error.
type ScanError struct {
	Type       ErrorType
	URL        string
	Operation  string
	Message    string
	Cause      error
	StatusCode int
}

// Error implements the error interface.
func (e *ScanError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s error during %s on %s: %s (caused by: %v)",
			e.Type.String(), e.Operation, e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error during %s on %s: %s",
		e.Type.String(), e.Operation, e.URL, e.Message)
}

// Unwrap returns the underlying error.
func (e *ScanError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a ScanError of the same type.
func (e *ScanError) Is(target error) bool {
	t, ok := target.(*ScanError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// New creates a new ScanError.
func New(errType ErrorType, url, operation, message string, cause error) *ScanError {
	return &ScanError{
		Type:      errType,
		URL:       url,
		Operation: operation,
		Message:   message,
		Cause:     cause,
	}
}

// NewRenderFailure creates a render failure for a page.
func NewRenderFailure(url string, cause error) *ScanError {
	return New(RenderFailure, url, "render", "page could not be rendered", cause)
}

// NewProbeFailure wraps a failed fuzz request. The cause keeps the transport
// or status categorization.
func NewProbeFailure(url string, cause error) *ScanError {
	err := New(NetworkProbeFailure, url, "probe", "probe request failed", cause)
	err.StatusCode = GetStatusCode(cause)
	return err
}

// NewUnclassifiableInput reports a value the type classifier does not accept.
func NewUnclassifiableInput(field string, value any) *ScanError {
	return New(UnclassifiableInput, "", "classify",
		fmt.Sprintf("field %q has unsupported value %T", field, value), nil)
}

// NewMalformedPayload reports a request body or query that could not be decoded.
func NewMalformedPayload(url string, cause error) *ScanError {
	return New(MalformedPayload, url, "decode_payload", "payload could not be decoded", cause)
}

// NewNetworkError creates a network error.
func NewNetworkError(url, operation string, cause error) *ScanError {
	return New(Network, url, operation, "network failure", cause)
}

// NewTimeoutError creates a timeout error.
func NewTimeoutError(url, operation string, cause error) *ScanError {
	return New(Timeout, url, operation, "request timed out", cause)
}

// NewCancelledError creates a cancelled error.
func NewCancelledError(url, operation string) *ScanError {
	return New(Cancelled, url, operation, "operation cancelled", nil)
}

// Categorize determines the error type from a generic transport error.
func Categorize(err error, url string) *ScanError {
	if err == nil {
		return nil
	}

	var scanErr *ScanError
	if errors.As(err, &scanErr) {
		return scanErr
	}

	if errors.Is(err, context.Canceled) || strings.Contains(err.Error(), "context canceled") {
		return NewCancelledError(url, "request")
	}

	if isTimeout(err) {
		return NewTimeoutError(url, "request", err)
	}

	if isNetworkError(err) {
		return NewNetworkError(url, "request", err)
	}

	return New(Unknown, url, "request", err.Error(), err)
}

// CategorizeHTTPStatus creates an error for any non-2xx status code.
func CategorizeHTTPStatus(statusCode int, url string) *ScanError {
	var err *ScanError
	switch {
	case statusCode >= 200 && statusCode < 300:
		return nil
	case statusCode >= 500:
		err = New(ServerError, url, "request", fmt.Sprintf("server returned %d", statusCode), nil)
	case statusCode >= 400:
		err = New(ClientError, url, "request", fmt.Sprintf("client error %d", statusCode), nil)
	default:
		err = New(Unknown, url, "request", fmt.Sprintf("unexpected status %d", statusCode), nil)
	}
	err.StatusCode = statusCode
	return err
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded")
}

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

	errStr := err.Error()
	return strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "dial tcp")
}

// GetStatusCode extracts the status code from an error.
func GetStatusCode(err error) int {
	var scanErr *ScanError
	for errors.As(err, &scanErr) {
		if scanErr.StatusCode != 0 {
			return scanErr.StatusCode
		}
		err = scanErr.Cause
		scanErr = nil
	}
	return 0
}

// GetErrorType extracts the outermost error type from an error.
func GetErrorType(err error) ErrorType {
	var scanErr *ScanError
	if errors.As(err, &scanErr) {
		return scanErr.Type
	}
	return Unknown
}

// Cause returns the type of the innermost ScanError in the chain, which for a
// probe failure is the transport or status category.
func Cause(err error) ErrorType {
	t := Unknown
	var scanErr *ScanError
	for errors.As(err, &scanErr) {
		t = scanErr.Type
		err = scanErr.Cause
		scanErr = nil
	}
	return t
}
