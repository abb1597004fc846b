package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/reviewlog/internal/ir"
	"github.com/roach88/reviewlog/internal/store"
)

// Error is a classified failure of ingestion or reconciliation.
//
// Callers branch on Code; Err keeps the underlying cause for errors.Is and
// errors.As.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// TaskID identifies the affected task, when known.
	TaskID string

	// LogID identifies the affected action log, when known.
	LogID string

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying cause.
	Err error
}

// ErrorCode categorizes reconciliation errors.
type ErrorCode string

const (
	// ErrCodeValidation indicates a malformed record. Nothing was stored.
	ErrCodeValidation ErrorCode = "VALIDATION"

	// ErrCodeDataIntegrity indicates an identifier collision with differing
	// content or a reference to a record that does not exist.
	ErrCodeDataIntegrity ErrorCode = "DATA_INTEGRITY"

	// ErrCodeConcurrencyConflict indicates the cache kept moving through
	// every retry. Retrying the submission is safe.
	ErrCodeConcurrencyConflict ErrorCode = "CONCURRENCY_CONFLICT"

	// ErrCodeStorageUnavailable indicates a storage failure or timeout. The
	// cache entry was not modified.
	ErrCodeStorageUnavailable ErrorCode = "STORAGE_UNAVAILABLE"

	// ErrCodeConflictingUpdate indicates sibling logs with the same parents
	// and contradicting outcomes.
	ErrCodeConflictingUpdate ErrorCode = "CONFLICTING_UPDATE"
)

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	switch {
	case e.TaskID != "" && e.LogID != "":
		msg = fmt.Sprintf("%s (task=%s, log=%s)", msg, e.TaskID, e.LogID)
	case e.TaskID != "":
		msg = fmt.Sprintf("%s (task=%s)", msg, e.TaskID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func hasCode(err error, code ErrorCode) bool {
	var re *Error
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsValidationError reports whether err is a VALIDATION error.
func IsValidationError(err error) bool { return hasCode(err, ErrCodeValidation) }

// IsDataIntegrityError reports whether err is a DATA_INTEGRITY error.
func IsDataIntegrityError(err error) bool { return hasCode(err, ErrCodeDataIntegrity) }

// IsConcurrencyConflict reports whether err is a CONCURRENCY_CONFLICT error.
func IsConcurrencyConflict(err error) bool { return hasCode(err, ErrCodeConcurrencyConflict) }

// IsStorageUnavailable reports whether err is a STORAGE_UNAVAILABLE error.
func IsStorageUnavailable(err error) bool { return hasCode(err, ErrCodeStorageUnavailable) }

// IsConflictingUpdate reports whether err is a CONFLICTING_UPDATE error.
func IsConflictingUpdate(err error) bool { return hasCode(err, ErrCodeConflictingUpdate) }

// IsRetryable reports whether resubmitting the same logs may succeed.
func IsRetryable(err error) bool {
	return IsConcurrencyConflict(err) || IsStorageUnavailable(err)
}

// NewValidationError creates a VALIDATION error from record validation
// results.
func NewValidationError(log ir.ActionLog, index int, errs []ir.ValidationError) *Error {
	details := make(map[string]string, len(errs)+1)
	details["index"] = fmt.Sprintf("%d", index)
	for _, ve := range errs {
		details[ve.Field] = ve.Message
	}
	msg := "invalid action log"
	if len(errs) > 0 {
		msg = fmt.Sprintf("invalid action log: %s", errs[0].Error())
	}
	return &Error{
		Code:    ErrCodeValidation,
		Message: msg,
		TaskID:  log.TaskID,
		LogID:   log.ID,
		Details: details,
	}
}

// classify maps an error from a store or fetcher into the taxonomy.
// Errors that are already classified pass through unchanged.
func classify(err error, taskID, logID string) error {
	if err == nil {
		return nil
	}
	var re *Error
	if errors.As(err, &re) {
		return err
	}

	e := &Error{TaskID: taskID, LogID: logID, Err: err}
	var ve ir.ValidationError
	switch {
	case errors.As(err, &ve):
		e.Code = ErrCodeValidation
		e.Message = "invalid record"
		e.Details = map[string]string{ve.Field: ve.Message}
	case errors.Is(err, store.ErrUnsupportedMimeType):
		e.Code = ErrCodeValidation
		e.Message = "unsupported attachment type"
	case errors.Is(err, store.ErrDataIntegrity):
		e.Code = ErrCodeDataIntegrity
		e.Message = "data integrity violation"
	case errors.Is(err, store.ErrConcurrencyConflict):
		e.Code = ErrCodeConcurrencyConflict
		e.Message = "cache entry changed concurrently"
	case errors.Is(err, context.DeadlineExceeded):
		e.Code = ErrCodeStorageUnavailable
		e.Message = "storage timed out"
	default:
		e.Code = ErrCodeStorageUnavailable
		e.Message = "storage failure"
	}
	return e
}
