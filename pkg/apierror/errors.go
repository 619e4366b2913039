// Package apierror defines the error taxonomy shared by the enrichment pipeline.
//
// Three families exist:
//   - ConfigurationError: invalid recipe parameters, fatal before any call is made.
//   - ServiceError: a failed remote call. Retryable errors are transient
//     (timeouts, network failures, quota, 5xx); the rest are permanent.
//   - ProgrammingError: a violated internal invariant, always fatal.
package apierror

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Common errors returned by the retry loop.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// Kind classifies a failed call.
type Kind string

const (
	KindQuotaExceeded     Kind = "QuotaExceeded"
	KindInvalidArgument   Kind = "InvalidArgument"
	KindPermissionDenied  Kind = "PermissionDenied"
	KindNotFound          Kind = "NotFound"
	KindTimeout           Kind = "Timeout"
	KindUnavailable       Kind = "Unavailable"
	KindMalformedResponse Kind = "MalformedResponse"
	KindCancelled         Kind = "Cancelled"
	KindUnknown           Kind = "Unknown"
)

// ConfigurationError reports an invalid parameter.
type ConfigurationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration error: " + e.Message
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Message)
}

// Configf builds a ConfigurationError for field.
func Configf(field, format string, args ...any) error {
	return &ConfigurationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ProgrammingError reports a broken internal invariant.
type ProgrammingError struct {
	Message string
}

// Error implements the error interface.
func (e *ProgrammingError) Error() string {
	return "programming error: " + e.Message
}

// Programmingf builds a ProgrammingError.
func Programmingf(format string, args ...any) error {
	return &ProgrammingError{Message: fmt.Sprintf(format, args...)}
}

// ServiceError represents a failed remote call with additional context.
type ServiceError struct {
	Kind       Kind
	Retryable  bool
	StatusCode int
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	class := "permanent"
	if e.Retryable {
		class = "transient"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s service error %s (status %d): %s: %v",
			class, e.Kind, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("%s service error %s (status %d): %s",
		class, e.Kind, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Transient returns a retryable ServiceError.
func Transient(kind Kind, message string, err error) *ServiceError {
	return &ServiceError{Kind: kind, Retryable: true, Message: message, Err: err}
}

// Permanent returns a non-retryable ServiceError.
func Permanent(kind Kind, message string, err error) *ServiceError {
	return &ServiceError{Kind: kind, Message: message, Err: err}
}

// FromStatus classifies an HTTP status code returned by the remote service.
func FromStatus(code int, message string, err error) *ServiceError {
	var se *ServiceError
	switch {
	case code == 429:
		se = Transient(KindQuotaExceeded, message, err)
	case code == 408 || code == 504:
		se = Transient(KindTimeout, message, err)
	case code >= 500:
		// 5xx server errors are retried
		se = Transient(KindUnavailable, message, err)
	case code == 401 || code == 403:
		se = Permanent(KindPermissionDenied, message, err)
	case code == 404:
		se = Permanent(KindNotFound, message, err)
	case code >= 400:
		// remaining 4xx must not be retried
		se = Permanent(KindInvalidArgument, message, err)
	default:
		se = Permanent(KindUnknown, message, err)
	}
	se.StatusCode = code
	return se
}

// Classify maps an arbitrary error onto a ServiceError. Errors that already
// are ServiceErrors are returned unchanged.
func Classify(err error) *ServiceError {
	if err == nil {
		return nil
	}
	var se *ServiceError
	if errors.As(err, &se) {
		return se
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrContextCancelled) {
		return Permanent(KindCancelled, "call cancelled", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Transient(KindTimeout, "call timed out", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return Transient(KindTimeout, "network timeout", err)
		}
		return Transient(KindUnavailable, "network error", err)
	}
	return Permanent(KindUnknown, "unclassified error", err)
}

// IsRetryable reports whether err is a transient service error.
func IsRetryable(err error) bool {
	se := Classify(err)
	return se != nil && se.Retryable
}

// KindOf returns the failure kind of err, or KindUnknown.
func KindOf(err error) Kind {
	if se := Classify(err); se != nil {
		return se.Kind
	}
	return KindUnknown
}

// IsConfiguration reports whether err is a ConfigurationError.
func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// IsProgramming reports whether err is a ProgrammingError.
func IsProgramming(err error) bool {
	var pe *ProgrammingError
	return errors.As(err, &pe)
}
