package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrorCategory represents the category of error
type ErrorCategory string

const (
	CategoryRemote     ErrorCategory = "remote"
	CategoryStage      ErrorCategory = "stage"
	CategoryValidation ErrorCategory = "validation"
	CategoryStore      ErrorCategory = "store"
	CategorySystem     ErrorCategory = "system"
	CategoryUnknown    ErrorCategory = "unknown"
)

const (
	// Remote capability errors (1xxx)
	ErrConnectionFailed   = "REMOTE-1001" // Network connectivity issues
	ErrTimeout            = "REMOTE-1002" // Call exceeded its deadline
	ErrRateLimit          = "REMOTE-1003" // Upstream throttled the call
	ErrServiceUnavailable = "REMOTE-1004" // Upstream 5xx or task failure
	ErrUpstreamRejected   = "REMOTE-1101" // Upstream refused the request (4xx)
	ErrRetriesExhausted   = "REMOTE-1201" // Every attempt failed and nothing was collected

	// Stage errors (2xxx)
	ErrStageFatal = "STAGE-2001" // No usable data for a required input

	// Validation errors (3xxx)
	ErrInvalidInput    = "VALIDATION-3001"
	ErrMissingRequired = "VALIDATION-3002"

	// Persistence errors (4xxx)
	ErrStoreUnavailable = "STORE-4001"
	ErrStoreEncoding    = "STORE-4002"
	ErrNotFound         = "STORE-4004"
	ErrStateConflict    = "STORE-4009"

	// System errors (5xxx)
	ErrInternal = "SYSTEM-5001"
	ErrPanic    = "SYSTEM-5002"
)

// ErrorSeverity represents the severity level
type ErrorSeverity int

const (
	SeverityCritical ErrorSeverity = iota // Process-level failure
	SeverityHigh                          // Campaign cannot proceed
	SeverityMedium                        // Call degraded, may recover
	SeverityLow                           // Informational
)

// Error carries a taxonomy code alongside the underlying cause.
type Error struct {
	Code          string                 `json:"code"`
	Category      ErrorCategory          `json:"category"`
	Message       string                 `json:"message"`
	Severity      ErrorSeverity          `json:"severity"`
	Retryable     bool                   `json:"retryable"`
	Context       map[string]interface{} `json:"context,omitempty"`
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id"`
	Cause         error                  `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// ShouldRetry determines if the error is retryable
func (e *Error) ShouldRetry() bool {
	return e.Retryable && e.Severity > SeverityCritical
}

// WithContext adds context to the error
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// ToJSON serializes the error to JSON
func (e *Error) ToJSON() string {
	b, _ := json.Marshal(e)
	return string(b)
}

// New creates a coded error. Category, severity and retryability derive from the code.
func New(code string, message string) *Error {
	return &Error{
		Code:          code,
		Category:      getCategoryFromCode(code),
		Message:       message,
		Severity:      getSeverityFromCode(code),
		Retryable:     isRetryableCode(code),
		Timestamp:     time.Now(),
		CorrelationID: uuid.New().String(),
	}
}

// Newf is New with a format string.
func Newf(code string, format string, args ...interface{}) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap attaches a code to an existing error. The original stays reachable through errors.Is/As.
func Wrap(err error, code string, message string) *Error {
	if err == nil {
		return nil
	}
	e := New(code, message)
	e.Cause = err
	return e
}

// getCategoryFromCode determines category from the code prefix
func getCategoryFromCode(code string) ErrorCategory {
	prefix, _, ok := strings.Cut(code, "-")
	if !ok {
		return CategoryUnknown
	}
	switch prefix {
	case "REMOTE":
		return CategoryRemote
	case "STAGE":
		return CategoryStage
	case "VALIDATION":
		return CategoryValidation
	case "STORE":
		return CategoryStore
	case "SYSTEM":
		return CategorySystem
	default:
		return CategoryUnknown
	}
}

func getSeverityFromCode(code string) ErrorSeverity {
	switch code {
	case ErrPanic:
		return SeverityCritical
	case ErrStageFatal, ErrStoreUnavailable, ErrRetriesExhausted:
		return SeverityHigh
	case ErrRateLimit, ErrServiceUnavailable, ErrTimeout, ErrConnectionFailed:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

func isRetryableCode(code string) bool {
	switch code {
	case ErrConnectionFailed, ErrTimeout, ErrRateLimit, ErrServiceUnavailable, ErrStoreUnavailable:
		return true
	default:
		return false
	}
}

// IsRetryable classifies err as transient. Coded errors use their flag; deadline and
// net-style timeouts are transient. Cancellation and uncoded errors are not, so
// clients must classify their I/O failures.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var coded *Error
	if stderrors.As(err, &coded) {
		return coded.ShouldRetry()
	}
	if stderrors.Is(err, context.Canceled) {
		return false
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var t interface{ Timeout() bool }
	if stderrors.As(err, &t) && t.Timeout() {
		return true
	}
	return false
}

// CodeOf returns the outermost taxonomy code in err's chain, or "".
func CodeOf(err error) string {
	var coded *Error
	if stderrors.As(err, &coded) {
		return coded.Code
	}
	return ""
}

// HasCode reports whether any error in err's chain carries code.
func HasCode(err error, code string) bool {
	for err != nil {
		var coded *Error
		if !stderrors.As(err, &coded) {
			return false
		}
		if coded.Code == code {
			return true
		}
		err = coded.Cause
	}
	return false
}

// CategoryOf returns the category of the outermost coded error.
func CategoryOf(err error) ErrorCategory {
	var coded *Error
	if stderrors.As(err, &coded) {
		return coded.Category
	}
	return CategoryUnknown
}

func IsValidation(err error) bool { return CategoryOf(err) == CategoryValidation }

func IsStageFatal(err error) bool { return HasCode(err, ErrStageFatal) }

func IsNotFound(err error) bool { return HasCode(err, ErrNotFound) }

// FromHTTPStatus maps an upstream HTTP status to a remote code.
func FromHTTPStatus(status int, message string) *Error {
	var code string
	switch {
	case status == http.StatusTooManyRequests:
		code = ErrRateLimit
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		code = ErrTimeout
	case status >= 500:
		code = ErrServiceUnavailable
	default:
		code = ErrUpstreamRejected
	}
	return New(code, message).WithContext("status", status)
}
