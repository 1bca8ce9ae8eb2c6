// Package errors provides standardized error handling for bridgekit components.
// It includes error classification, the subsystem's typed error taxonomy
// (discovery, stream, correlation, significance), and helpers for consistent
// error wrapping across the system.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/c360/bridgekit/pkg/retry"
)

// ErrorClass represents the classification of errors for handling purposes.
type ErrorClass int

const (
	// ErrorTransient represents temporary errors that may be retried
	ErrorTransient ErrorClass = iota
	// ErrorInvalid represents errors due to invalid input or configuration
	ErrorInvalid
	// ErrorFatal represents unrecoverable errors that should stop processing
	ErrorFatal
)

// String returns the string representation of ErrorClass.
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Discovery errors. Authentication failures are escalated to the caller and
// never silently retried.
var (
	ErrNotFound    = errors.New("no matching bridge found")
	ErrAuthFailed  = errors.New("bridge authentication failed")
	ErrRateLimited = errors.New("rate limited")
)

// Stream errors. SyncLost is surfaced only after reconnect attempts with
// exponential backoff are exhausted.
var (
	ErrStreamTimeout  = errors.New("stream timeout")
	ErrOverrun        = errors.New("stream buffer overrun")
	ErrSyncLost       = errors.New("stream synchronization lost")
	ErrRejectedParams = errors.New("requested stream parameters rejected")
)

// Correlation errors. ConstraintUnsatisfiable and DeadlineExceeded are
// escalated, never retried or silently downgraded to another mode.
var (
	ErrInsufficientData        = errors.New("insufficient data for correlation")
	ErrModeUnavailable         = errors.New("correlation mode unavailable")
	ErrConstraintUnsatisfiable = errors.New("no correlation mode satisfies stated constraints")
	ErrDeadlineExceeded        = errors.New("correlation deadline exceeded")
)

// Significance errors.
var ErrInsufficientSamples = errors.New("insufficient samples for significance evaluation")

// Shared infrastructure errors.
var (
	ErrAlreadyStarted = errors.New("component already started")
	ErrNotStarted     = errors.New("component not started")
	ErrAlreadyStopped = errors.New("component already stopped")
	ErrNoConnection   = errors.New("no connection available")
	ErrKeyNotFound    = errors.New("key not found")
	ErrInvalidConfig  = errors.New("invalid configuration")
	ErrMissingConfig  = errors.New("missing required configuration")
	ErrInvalidData    = errors.New("invalid data format")
)

// ClassifiedError wraps an error with its classification and the component
// context it originated from.
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

// Error implements the error interface.
func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

// Unwrap returns the underlying error.
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// Context carries the identifiers a caller needs to decide retry vs abandon vs
// fallback without re-deriving state. Zero-valued fields are omitted from the
// rendered message.
type Context struct {
	BridgeID  string
	StreamID  string
	RequestID string
}

// ContextError attaches bridge/stream/request identifiers to an error.
type ContextError struct {
	Ctx Context
	Err error
}

// Error implements the error interface.
func (e *ContextError) Error() string {
	parts := make([]string, 0, 3)
	if e.Ctx.BridgeID != "" {
		parts = append(parts, "bridge="+e.Ctx.BridgeID)
	}
	if e.Ctx.StreamID != "" {
		parts = append(parts, "stream="+e.Ctx.StreamID)
	}
	if e.Ctx.RequestID != "" {
		parts = append(parts, "request="+e.Ctx.RequestID)
	}
	if len(parts) == 0 {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s [%s]", e.Err.Error(), strings.Join(parts, " "))
}

// Unwrap returns the underlying error.
func (e *ContextError) Unwrap() error {
	return e.Err
}

// WithContext attaches structured identifiers to an error.
func WithContext(err error, ctx Context) error {
	if err == nil {
		return nil
	}
	return &ContextError{Ctx: ctx, Err: err}
}

// GetContext extracts attached identifiers from an error chain.
func GetContext(err error) (Context, bool) {
	var ce *ContextError
	if errors.As(err, &ce) {
		return ce.Ctx, true
	}
	return Context{}, false
}

// IsTransient checks if an error is transient and should be retried.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorTransient
	}

	if errors.Is(err, ErrStreamTimeout) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrNoConnection) ||
		errors.Is(err, ErrModeUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range []string{"timeout", "connection", "network", "temporary", "unavailable", "busy"} {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// IsFatal checks if an error is fatal and should stop processing.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorFatal
	}

	return errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingConfig) ||
		errors.Is(err, ErrSyncLost)
}

// IsInvalid checks if an error is due to invalid input.
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorInvalid
	}

	return errors.Is(err, ErrInvalidData) ||
		errors.Is(err, ErrRejectedParams) ||
		errors.Is(err, ErrConstraintUnsatisfiable) ||
		errors.Is(err, ErrInsufficientData) ||
		errors.Is(err, ErrInsufficientSamples)
}

// Classify returns the error class for an error. Unknown errors default to
// transient so callers err on the side of retrying.
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrorTransient
	}
	if IsTransient(err) {
		return ErrorTransient
	}
	if IsFatal(err) {
		return ErrorFatal
	}
	if IsInvalid(err) {
		return ErrorInvalid
	}
	return ErrorTransient
}

func newClassified(class ErrorClass, err error, component, operation, message string) *ClassifiedError {
	return &ClassifiedError{
		Class:     class,
		Err:       err,
		Message:   message,
		Component: component,
		Operation: operation,
	}
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// WrapTransient wraps an error as transient with context.
func WrapTransient(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorTransient, wrappedErr, component, method, wrappedErr.Error())
}

// WrapFatal wraps an error as fatal with context.
func WrapFatal(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorFatal, wrappedErr, component, method, wrappedErr.Error())
}

// WrapInvalid wraps an error as invalid with context.
func WrapInvalid(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorInvalid, wrappedErr, component, method, wrappedErr.Error())
}

// RetryConfig defines configuration for retry decisions based on error class.
type RetryConfig struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig returns a sensible default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
	}
}

// ShouldRetry determines if an error should be retried at the given attempt.
func (rc RetryConfig) ShouldRetry(err error, attempt int) bool {
	if err == nil || attempt >= rc.MaxRetries {
		return false
	}
	return IsTransient(err)
}

// ToRetryConfig converts to the retry framework's Config type. MaxRetries
// counts additional attempts beyond the first, so total attempts is one more.
func (rc RetryConfig) ToRetryConfig() retry.Config {
	return retry.Config{
		MaxAttempts:  rc.MaxRetries + 1,
		InitialDelay: rc.InitialDelay,
		MaxDelay:     rc.MaxDelay,
		Multiplier:   rc.BackoffFactor,
		AddJitter:    true,
	}
}
