package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/reviewlog/internal/reconcile"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Rejected input or detected drift
	ExitCommandError = 2 // Command error (bad flags, unreadable files, database errors)
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int    // Exit code (ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// exitCodeFor maps an engine error to an exit code. Errors the caller can
// fix by changing the submission exit with ExitFailure, everything else
// with ExitCommandError.
func exitCodeFor(err error) int {
	if reconcile.IsValidationError(err) || reconcile.IsDataIntegrityError(err) {
		return ExitFailure
	}
	return ExitCommandError
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format  string
	Writer  io.Writer
	Verbose bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string            `json:"code"`              // reconcile error code or "COMMAND"
	Message string            `json:"message"`           // human-readable message
	Details map[string]string `json:"details,omitempty"` // additional context
}

// errorBody converts err into a CLIError, keeping the engine's code and
// details when err carries them.
func errorBody(err error) *CLIError {
	var re *reconcile.Error
	if errors.As(err, &re) {
		return &CLIError{Code: string(re.Code), Message: err.Error(), Details: re.Details}
	}
	return &CLIError{Code: "COMMAND", Message: err.Error()}
}

// Success outputs data. In text mode render writes the human-readable form;
// a nil render prints data with %v.
func (f *OutputFormatter) Success(data any, render func(w io.Writer)) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{Status: "ok", Data: data})
	}
	if render == nil {
		fmt.Fprintln(f.Writer, data)
		return nil
	}
	render(f.Writer)
	return nil
}

// Failure outputs err together with any partial data and returns an
// ExitError carrying code.
func (f *OutputFormatter) Failure(code int, message string, err error, data any, render func(w io.Writer)) error {
	if f.Format == "json" {
		if encErr := f.encode(CLIResponse{Status: "error", Data: data, Error: errorBody(err)}); encErr != nil {
			return encErr
		}
		return WrapExitError(code, message, err)
	}

	if render != nil {
		render(f.Writer)
	}
	body := errorBody(err)
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", body.Code, body.Message)
	if f.Verbose && len(body.Details) > 0 {
		fmt.Fprintf(f.Writer, "Details: %v\n", body.Details)
	}
	return WrapExitError(code, message, err)
}

func (f *OutputFormatter) encode(resp CLIResponse) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}
