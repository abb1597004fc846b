package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/reviewlog/internal/reconcile"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	err := formatter.Success(map[string]string{"result": "success"}, nil)
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
	assert.Nil(t, resp.Error)
}

func TestOutputFormatter_JSONFailureKeepsEngineCode(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	engineErr := &reconcile.Error{
		Code:    reconcile.ErrCodeDataIntegrity,
		Message: "prompts don't match their IDs",
		Details: map[string]string{"prompt_ids": "abc"},
	}
	err := formatter.Failure(ExitFailure, "ingest failed", engineErr, map[string]int{"stored": 0}, nil)

	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.ErrorIs(t, err, engineErr)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "DATA_INTEGRITY", resp.Error.Code)
	assert.Equal(t, "abc", resp.Error.Details["prompt_ids"])
	assert.NotNil(t, resp.Data)
}

func TestOutputFormatter_JSONFailurePlainError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	err := formatter.Failure(ExitCommandError, "failed", errors.New("disk full"), nil, nil)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "COMMAND", resp.Error.Code)
	assert.Equal(t, "disk full", resp.Error.Message)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Success("all tasks verified", nil))
	assert.Equal(t, "all tasks verified\n", buf.String())
}

func TestOutputFormatter_TextSuccessUsesRenderer(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	err := formatter.Success(42, func(w io.Writer) { fmt.Fprint(w, "rendered") })
	require.NoError(t, err)
	assert.Equal(t, "rendered", buf.String())
}

func TestOutputFormatter_TextFailure(t *testing.T) {
	engineErr := &reconcile.Error{
		Code:    reconcile.ErrCodeValidation,
		Message: "invalid action log",
		Details: map[string]string{"task_id": "is required"},
	}

	tests := []struct {
		name        string
		verbose     bool
		wantDetails bool
	}{
		{"quiet", false, false},
		{"verbose", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{Format: "text", Writer: buf, Verbose: tt.verbose}

			err := formatter.Failure(ExitFailure, "ingest failed", engineErr, nil, nil)
			require.Error(t, err)
			assert.Contains(t, buf.String(), "Error [VALIDATION]")
			assert.Contains(t, buf.String(), "invalid action log")
			if tt.wantDetails {
				assert.Contains(t, buf.String(), "Details:")
			} else {
				assert.NotContains(t, buf.String(), "Details:")
			}
		})
	}
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad flag")))

	wrapped := fmt.Errorf("outer: %w", WrapExitError(ExitFailure, "drift", errors.New("x")))
	assert.Equal(t, ExitFailure, GetExitCode(wrapped))
}

func TestExitError_Error(t *testing.T) {
	assert.Equal(t, "bad flag", NewExitError(ExitCommandError, "bad flag").Error())
	assert.Equal(t, "open: no such file", WrapExitError(ExitCommandError, "open", errors.New("no such file")).Error())
}

func TestExitCodeFor(t *testing.T) {
	assert.Equal(t, ExitFailure, exitCodeFor(&reconcile.Error{Code: reconcile.ErrCodeValidation}))
	assert.Equal(t, ExitFailure, exitCodeFor(&reconcile.Error{Code: reconcile.ErrCodeDataIntegrity}))
	assert.Equal(t, ExitCommandError, exitCodeFor(&reconcile.Error{Code: reconcile.ErrCodeStorageUnavailable}))
	assert.Equal(t, ExitCommandError, exitCodeFor(errors.New("plain")))
}
