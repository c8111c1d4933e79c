package livecheck

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors for the four resolution failure classes.
// A *ResolutionError matches exactly one of them with errors.Is.
var (
	// ErrConfig is returned when a source descriptor is malformed; never retried
	ErrConfig = errors.New("invalid livecheck source")
	// ErrFetch is returned when the upstream document could not be fetched
	ErrFetch = errors.New("upstream fetch failed")
	// ErrDecode is returned when the upstream document is not in the expected format
	ErrDecode = errors.New("malformed upstream document")
	// ErrNoMatch is returned when the extraction rule found no version
	ErrNoMatch = errors.New("no version found upstream")
)

// Error variables for extraction errors, wrapped inside a *ResolutionError
var (
	// ErrJSONPathNotFound is returned when the JSON path does not exist in the document
	ErrJSONPathNotFound = errors.New("JSON path not found in response")
	// ErrRegexNoMatch is returned when the regex pattern does not match the content
	ErrRegexNoMatch = errors.New("regex pattern did not match")
	// ErrInvalidJSONPath is returned when the JSON path syntax is invalid
	ErrInvalidJSONPath = errors.New("invalid JSON path syntax")
	// ErrInvalidRegexPattern is returned when the regex pattern is invalid
	ErrInvalidRegexPattern = errors.New("invalid regex pattern")
	// ErrNoCaptureGroup is returned when the regex pattern has no capture group
	ErrNoCaptureGroup = errors.New("regex pattern must contain at least one capture group")
	// ErrNoElementFound is returned when no element matches the selector/xpath
	ErrNoElementFound = errors.New("no element found matching selector")
)

// ErrorKind classifies a resolution failure.
type ErrorKind int

const (
	KindConfig ErrorKind = iota + 1
	KindFetch
	KindDecode
	KindNoMatch
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfig:
		return "config_error"
	case KindFetch:
		return "fetch_error"
	case KindDecode:
		return "decode_error"
	case KindNoMatch:
		return "no_match"
	default:
		return "unknown"
	}
}

// FetchReason refines a KindFetch failure.
type FetchReason string

const (
	ReasonTimeout   FetchReason = "timeout"
	ReasonCancelled FetchReason = "cancelled"
	ReasonStatus    FetchReason = "http_status"
	ReasonNetwork   FetchReason = "network"
)

// ResolutionError is the error type returned by every resolver.
type ResolutionError struct {
	Kind ErrorKind
	// Reason is set for KindFetch only
	Reason FetchReason
	// URL is the endpoint involved, if any
	URL string
	// StatusCode is the HTTP status for ReasonStatus failures
	StatusCode int
	Err        error
}

func (e *ResolutionError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Reason != "" {
		fmt.Fprintf(&b, " (%s", e.Reason)
		if e.StatusCode != 0 {
			fmt.Fprintf(&b, " %d", e.StatusCode)
		}
		b.WriteString(")")
	}
	if e.URL != "" {
		fmt.Fprintf(&b, " %s", e.URL)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// Is matches the sentinel for the error's kind.
func (e *ResolutionError) Is(target error) bool {
	switch target {
	case ErrConfig:
		return e.Kind == KindConfig
	case ErrFetch:
		return e.Kind == KindFetch
	case ErrDecode:
		return e.Kind == KindDecode
	case ErrNoMatch:
		return e.Kind == KindNoMatch
	}
	return false
}

// Retryable reports whether repeating the request may succeed:
// network failures, timeouts, 5xx and 429 responses.
func (e *ResolutionError) Retryable() bool {
	if e.Kind != KindFetch {
		return false
	}
	switch e.Reason {
	case ReasonCancelled:
		return false
	case ReasonStatus:
		return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
	}
	return true
}

// KindOf returns the kind of a resolution error, or 0 if err is not one.
func KindOf(err error) ErrorKind {
	var re *ResolutionError
	if errors.As(err, &re) {
		return re.Kind
	}
	return 0
}

// IsRetryable reports whether err is a retryable *ResolutionError.
func IsRetryable(err error) bool {
	var re *ResolutionError
	return errors.As(err, &re) && re.Retryable()
}

func configError(err error) *ResolutionError {
	return &ResolutionError{Kind: KindConfig, Err: err}
}

func configErrorf(format string, args ...interface{}) *ResolutionError {
	return configError(fmt.Errorf(format, args...))
}

func fetchError(url string, reason FetchReason, status int, err error) *ResolutionError {
	return &ResolutionError{Kind: KindFetch, Reason: reason, URL: url, StatusCode: status, Err: err}
}

func decodeError(url string, err error) *ResolutionError {
	return &ResolutionError{Kind: KindDecode, URL: url, Err: err}
}

func noMatchError(url string, err error) *ResolutionError {
	return &ResolutionError{Kind: KindNoMatch, URL: url, Err: err}
}
