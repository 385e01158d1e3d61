package errors

import (
	"fmt"
)

// ErrorType categorizes failures in the feedback pipeline. The category
// decides the recovery policy: storage and validation failures surface to
// the caller, everything else degrades locally.
type ErrorType int

const (
	// ErrorTypeValidation - malformed submission, rejected before classification
	ErrorTypeValidation ErrorType = iota
	// ErrorTypeStorage - persistence layer cannot be reached or opened
	ErrorTypeStorage
	// ErrorTypeEncryption - no usable key or AEAD failure; text is dropped
	ErrorTypeEncryption
	// ErrorTypeQuota - store over its size ceiling even after cleanup
	ErrorTypeQuota
	// ErrorTypeClassification - internal fault in spam analysis
	ErrorTypeClassification
	// ErrorTypeInternal - unexpected internal state
	ErrorTypeInternal
)

// Severity represents how critical an error is.
type Severity int

const (
	// SeverityLow - recovered locally, logged only
	SeverityLow Severity = iota
	// SeverityMedium - degraded behavior, submission still succeeds
	SeverityMedium
	// SeverityHigh - submission fails, nothing partial written
	SeverityHigh
)

// Error is a structured pipeline error.
type Error struct {
	Type     ErrorType
	Severity Severity
	Message  string
	Cause    error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches on error type so errors.Is(err, &Error{Type: ...}) works
// across wrapping.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// New creates an error with the given type, severity, and message.
func New(errType ErrorType, severity Severity, message string) *Error {
	return &Error{
		Type:     errType,
		Severity: severity,
		Message:  message,
	}
}

// Wrap wraps an existing error. Returns nil when err is nil.
func Wrap(err error, errType ErrorType, severity Severity, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Type:     errType,
		Severity: severity,
		Message:  message,
		Cause:    err,
	}
}

// ValidationError creates a validation error surfaced to the caller.
func ValidationError(message string) *Error {
	return New(ErrorTypeValidation, SeverityHigh, message)
}

// ValidationErrorf creates a validation error with formatting.
func ValidationErrorf(format string, args ...interface{}) *Error {
	return New(ErrorTypeValidation, SeverityHigh, fmt.Sprintf(format, args...))
}

// StorageError wraps a persistence failure. The submission fails; no
// partial record is left behind.
func StorageError(err error, message string) *Error {
	return Wrap(err, ErrorTypeStorage, SeverityHigh, message)
}

// StorageErrorf wraps a persistence failure with formatting.
func StorageErrorf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, ErrorTypeStorage, SeverityHigh, fmt.Sprintf(format, args...))
}

// EncryptionError wraps a crypto failure. Recovered by storing the record
// without its free text.
func EncryptionError(err error, message string) *Error {
	return Wrap(err, ErrorTypeEncryption, SeverityMedium, message)
}

// QuotaError signals the store stayed over its ceiling after cleanup. The
// write still proceeds; this is logged, not surfaced.
func QuotaError(message string) *Error {
	return New(ErrorTypeQuota, SeverityLow, message)
}

// ClassificationError wraps a fault inside spam analysis. Always recovered
// via the conservative fallback verdict, never surfaced.
func ClassificationError(err error, message string) *Error {
	return Wrap(err, ErrorTypeClassification, SeverityLow, message)
}

// InternalError creates an internal error.
func InternalError(message string) *Error {
	return New(ErrorTypeInternal, SeverityHigh, message)
}

// GetType returns the type of an error, ErrorTypeInternal for foreign errors.
func GetType(err error) ErrorType {
	if e, ok := err.(*Error); ok {
		return e.Type
	}
	return ErrorTypeInternal
}

// GetSeverity returns the severity of an error.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityLow
	}
	if e, ok := err.(*Error); ok {
		return e.Severity
	}
	return SeverityMedium
}
