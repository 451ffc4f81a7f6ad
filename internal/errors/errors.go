// Package errors consolidates error definitions for the whole project.
//
// It provides:
// - Sentinel errors for all error conditions
// - Error category checking functions
// - Machine-readable kind strings for the HTTP surface
// - Error wrapping utilities
package errors

import (
	"errors"
	"fmt"
)

// ============================================================================
// Sentinel errors
// ============================================================================

var (
	// Capacity errors
	ErrBufferFull = errors.New("buffer full")

	// Concurrency errors
	ErrFlushInProgress      = errors.New("flush already in progress")
	ErrGenerationInProgress = errors.New("generation already in progress")

	// Validation errors
	ErrInvalidVariable  = errors.New("variable not declared by dataset version")
	ErrInvalidTimeRange = errors.New("time range outside version coverage")
	ErrReorderMismatch  = errors.New("reorder is not a permutation of current items")
	ErrMissingField     = errors.New("missing required field")
	ErrInvalidConfig    = errors.New("invalid configuration")

	// Not found errors
	ErrNotFound        = errors.New("not found")
	ErrStationNotFound = errors.New("station not found")
	ErrStackNotFound   = errors.New("stack not found")
	ErrVersionNotFound = errors.New("dataset version not found")
	ErrItemNotFound    = errors.New("stack item not found")

	// Pipeline errors
	ErrResolutionMismatch = errors.New("requested resolution finer than every stack item")
	ErrEmptyStack         = errors.New("stack has no items")
	ErrNoOverlap          = errors.New("stack time axis is empty")

	// Serialization errors
	ErrExportWrite   = errors.New("export write failed")
	ErrUnknownFormat = errors.New("unknown output format")

	// Storage errors
	ErrStorageUnavailable = errors.New("durable storage unavailable")
)

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// As is a convenience wrapper for errors.As
var As = errors.As

// ============================================================================
// Category helpers
// ============================================================================

// IsCapacity returns true if err is a capacity error.
func IsCapacity(err error) bool {
	return errors.Is(err, ErrBufferFull)
}

// IsConcurrency returns true if err is a try-again-later concurrency error.
func IsConcurrency(err error) bool {
	return errors.Is(err, ErrFlushInProgress) ||
		errors.Is(err, ErrGenerationInProgress)
}

// IsValidation returns true if err is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidVariable) ||
		errors.Is(err, ErrInvalidTimeRange) ||
		errors.Is(err, ErrReorderMismatch) ||
		errors.Is(err, ErrMissingField) ||
		errors.Is(err, ErrInvalidConfig)
}

// IsNotFound returns true if err is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrStationNotFound) ||
		errors.Is(err, ErrStackNotFound) ||
		errors.Is(err, ErrVersionNotFound) ||
		errors.Is(err, ErrItemNotFound)
}

// IsPipeline returns true if err aborts an aggregation run.
func IsPipeline(err error) bool {
	return errors.Is(err, ErrResolutionMismatch) ||
		errors.Is(err, ErrEmptyStack) ||
		errors.Is(err, ErrNoOverlap)
}

// IsSerialization returns true if err is an export error.
func IsSerialization(err error) bool {
	return errors.Is(err, ErrExportWrite) ||
		errors.Is(err, ErrUnknownFormat)
}

// ============================================================================
// Machine-readable kinds
// ============================================================================

// Kind returns the machine-readable kind string carried alongside every
// user-visible error message.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrBufferFull):
		return "buffer_full"
	case errors.Is(err, ErrFlushInProgress):
		return "flush_in_progress"
	case errors.Is(err, ErrGenerationInProgress):
		return "generation_in_progress"
	case errors.Is(err, ErrInvalidVariable):
		return "invalid_variable"
	case errors.Is(err, ErrInvalidTimeRange):
		return "invalid_time_range"
	case errors.Is(err, ErrReorderMismatch):
		return "reorder_mismatch"
	case errors.Is(err, ErrResolutionMismatch):
		return "resolution_mismatch"
	case errors.Is(err, ErrEmptyStack):
		return "empty_stack"
	case errors.Is(err, ErrNoOverlap):
		return "no_overlap"
	case errors.Is(err, ErrExportWrite):
		return "export_write"
	case errors.Is(err, ErrUnknownFormat):
		return "unknown_format"
	case IsNotFound(err):
		return "not_found"
	case IsValidation(err):
		return "invalid_request"
	default:
		return "internal"
	}
}

// Retriable returns true if the caller may retry the same request later
// without changing inputs. Capacity and validation errors are never
// retriable; the caller must change something first.
func Retriable(err error) bool {
	return IsConcurrency(err) || errors.Is(err, ErrStorageUnavailable)
}

// ============================================================================
// Wrapping utilities
// ============================================================================

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// NewNotFound creates a not-found error with context.
func NewNotFound(entityType, identifier string) error {
	return fmt.Errorf("%s '%s': %w", entityType, identifier, ErrNotFound)
}

// NewMissingField creates a missing field error.
func NewMissingField(field string) error {
	return fmt.Errorf("%s: %w", field, ErrMissingField)
}

// NewValidation creates a validation error with context.
func NewValidation(field, reason string) error {
	return fmt.Errorf("invalid %s: %s: %w", field, reason, ErrInvalidConfig)
}
