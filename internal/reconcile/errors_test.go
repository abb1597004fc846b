package reconcile

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/reviewlog/internal/ir"
	"github.com/roach88/reviewlog/internal/store"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "bare",
			err:  &Error{Code: ErrCodeValidation, Message: "bad"},
			want: "VALIDATION: bad",
		},
		{
			name: "task",
			err:  &Error{Code: ErrCodeStorageUnavailable, Message: "down", TaskID: "t1"},
			want: "STORAGE_UNAVAILABLE: down (task=t1)",
		},
		{
			name: "task and log with cause",
			err:  &Error{Code: ErrCodeDataIntegrity, Message: "collision", TaskID: "t1", LogID: "l1", Err: errors.New("boom")},
			want: "DATA_INTEGRITY: collision (task=t1, log=l1): boom",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code ErrorCode
	}{
		{"validation", fmt.Errorf("wrap: %w", ir.ValidationError{Field: "id", Message: "mismatch"}), ErrCodeValidation},
		{"mime", fmt.Errorf("wrap: %w", store.ErrUnsupportedMimeType), ErrCodeValidation},
		{"integrity", fmt.Errorf("wrap: %w", store.ErrDataIntegrity), ErrCodeDataIntegrity},
		{"conflict", fmt.Errorf("wrap: %w", store.ErrConcurrencyConflict), ErrCodeConcurrencyConflict},
		{"deadline", fmt.Errorf("wrap: %w", context.DeadlineExceeded), ErrCodeStorageUnavailable},
		{"other", errors.New("io error"), ErrCodeStorageUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err, "t1", "l1")
			var re *Error
			assert.True(t, errors.As(got, &re))
			assert.Equal(t, tt.code, re.Code)
			assert.Equal(t, "t1", re.TaskID)
			assert.Equal(t, "l1", re.LogID)
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

func TestClassify_PassesThroughClassified(t *testing.T) {
	orig := &Error{Code: ErrCodeConflictingUpdate, Message: "x"}
	wrapped := fmt.Errorf("ctx: %w", orig)
	assert.Same(t, wrapped, classify(wrapped, "t", "l"))
	assert.Nil(t, classify(nil, "t", "l"))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&Error{Code: ErrCodeConcurrencyConflict}))
	assert.True(t, IsRetryable(&Error{Code: ErrCodeStorageUnavailable}))
	assert.False(t, IsRetryable(&Error{Code: ErrCodeValidation}))
	assert.False(t, IsRetryable(&Error{Code: ErrCodeDataIntegrity}))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestNewValidationError(t *testing.T) {
	log := ir.ActionLog{TaskID: "t1"}
	err := NewValidationError(log, 3, []ir.ValidationError{
		{Field: "task_id", Message: "is required"},
		{Field: "outcome", Message: "bad"},
	})
	assert.Equal(t, ErrCodeValidation, err.Code)
	assert.Equal(t, "invalid action log: task_id: is required", err.Message)
	assert.Equal(t, map[string]string{"index": "3", "task_id": "is required", "outcome": "bad"}, err.Details)
}
