package engine

import (
	"errors"
	"fmt"
)

// ConfigError reports a missing, out-of-order or inconsistent registration.
//
// Configuration errors are never retried: the caller fixes the setup and
// starts again.
type ConfigError struct {
	// Code identifies the error category.
	Code ConfigErrorCode

	// Message is a human-readable description.
	Message string

	// Details contains additional context.
	Details map[string]string
}

// ConfigErrorCode categorizes configuration errors.
type ConfigErrorCode string

const (
	// ErrCodeShapeNotRegistered indicates an operation that needs the shape ran before it.
	ErrCodeShapeNotRegistered ConfigErrorCode = "SHAPE_NOT_REGISTERED"

	// ErrCodeNotRegistered indicates a missing array, domain or loader.
	ErrCodeNotRegistered ConfigErrorCode = "NOT_REGISTERED"

	// ErrCodeOutOfOrder indicates a registration after the phase it belongs to.
	ErrCodeOutOfOrder ConfigErrorCode = "OUT_OF_ORDER"

	// ErrCodeSizeMismatch indicates arrays with differing extents.
	ErrCodeSizeMismatch ConfigErrorCode = "SIZE_MISMATCH"

	// ErrCodeRankMismatch indicates an array, domain or plan of the wrong rank.
	ErrCodeRankMismatch ConfigErrorCode = "RANK_MISMATCH"

	// ErrCodeInvalidKernel indicates a malformed guard, kernel or shape.
	ErrCodeInvalidKernel ConfigErrorCode = "INVALID_KERNEL"

	// ErrCodeInvalidDomain indicates a malformed domain or timestep count.
	ErrCodeInvalidDomain ConfigErrorCode = "INVALID_DOMAIN"

	// ErrCodeInvalidPlan indicates a plan whose sync vector or regions are malformed.
	ErrCodeInvalidPlan ConfigErrorCode = "INVALID_PLAN"

	// ErrCodeEmptyCatalog indicates a mode that needs catalog entries found none.
	ErrCodeEmptyCatalog ConfigErrorCode = "EMPTY_CATALOG"
)

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func configErr(code ConfigErrorCode, format string, args ...any) *ConfigError {
	return &ConfigError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ExternalError reports a failure of the code generator or module loader.
type ExternalError struct {
	// Command describes what was launched or loaded.
	Command string
	Err     error
}

// Error implements the error interface.
func (e *ExternalError) Error() string {
	return fmt.Sprintf("external: %s: %v", e.Command, e.Err)
}

// Unwrap returns the underlying error.
func (e *ExternalError) Unwrap() error { return e.Err }

// InternalError reports a broken invariant: diverging catalog counters,
// region indices outside the catalog, a stalled linearization or a
// recovered kernel panic.
type InternalError struct {
	Message string
	Err     error
}

// Error implements the error interface.
func (e *InternalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("internal: %s: %v", e.Message, e.Err)
	}
	return "internal: " + e.Message
}

// Unwrap returns the underlying error, if any.
func (e *InternalError) Unwrap() error { return e.Err }

func internalErr(format string, args ...any) *InternalError {
	return &InternalError{Message: fmt.Sprintf(format, args...)}
}

// IsConfigError returns true if err wraps a ConfigError.
// Uses errors.As to handle wrapped errors.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// HasConfigCode returns true if err wraps a ConfigError with code.
func HasConfigCode(err error, code ConfigErrorCode) bool {
	var ce *ConfigError
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}

// IsExternalError returns true if err wraps an ExternalError.
func IsExternalError(err error) bool {
	var ee *ExternalError
	return errors.As(err, &ee)
}

// IsInternalError returns true if err wraps an InternalError.
func IsInternalError(err error) bool {
	var ie *InternalError
	return errors.As(err, &ie)
}
