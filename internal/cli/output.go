package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/circlesync/internal/engine"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Check failed (scenario failed, log inconsistent, batch invalid)
	ExitCommandError = 2 // Command error (bad flags, unreadable file, database unavailable)
)

// Error codes reported in JSON output.
const (
	ErrCodeGeneric      = "E001" // Generic/unknown error
	ErrCodeNotFound     = "E002" // File, user, circle or letter not found
	ErrCodeInvalidInput = "E003" // Malformed file or flag value
	ErrCodeSchema       = "E004" // Push batch fails the schema
	ErrCodeForbidden    = "E005" // User is not a member of the circle
	ErrCodeConflict     = "E006" // Record already exists or letter already sealed
	ErrCodeStorage      = "E007" // Database failure
	ErrCodeInconsistent = "E101" // Verifier found issues
	ErrCodeTestFailed   = "E102" // Scenario failures
)

// ExitError carries the exit code a command wants.
type ExitError struct {
	Code    int
	ErrCode string // one of the ErrCode* constants, for JSON output
	Message string
	Err     error

	reported bool // already written by the command
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

// NewExitError creates an ExitError without a cause.
func NewExitError(code int, errCode, message string) *ExitError {
	return &ExitError{Code: code, ErrCode: errCode, Message: message}
}

// WrapExitError wraps err with an exit code.
func WrapExitError(code int, errCode, message string, err error) *ExitError {
	return &ExitError{Code: code, ErrCode: errCode, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// engineExitError maps an engine error to an exit error with a matching code.
func engineExitError(message string, err error) *ExitError {
	switch engine.CodeOf(err) {
	case engine.ErrCodeNotFound:
		return WrapExitError(ExitCommandError, ErrCodeNotFound, message, err)
	case engine.ErrCodeForbidden:
		return WrapExitError(ExitCommandError, ErrCodeForbidden, message, err)
	case engine.ErrCodeConflict:
		return WrapExitError(ExitCommandError, ErrCodeConflict, message, err)
	case engine.ErrCodeValidation:
		return WrapExitError(ExitCommandError, ErrCodeInvalidInput, message, err)
	case engine.ErrCodeStorage:
		return WrapExitError(ExitCommandError, ErrCodeStorage, message, err)
	}
	if engine.IsBatchTooLarge(err) {
		return WrapExitError(ExitCommandError, ErrCodeInvalidInput, message, err)
	}
	return WrapExitError(ExitCommandError, ErrCodeGeneric, message, err)
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // diagnostics; keeps JSON on Writer clean
	Verbose   bool
}

// CLIResponse is the JSON envelope of every command.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError is the error part of CLIResponse.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Success writes data as JSON, or text in text mode.
func (f *OutputFormatter) Success(data any, text string) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{Status: "ok", Data: data})
	}
	_, err := fmt.Fprintln(f.Writer, text)
	return err
}

// Failure writes a failed result that still carries data, such as a
// verification report, and returns the matching ExitError.
func (f *OutputFormatter) Failure(data any, text string, exit *ExitError) error {
	exit.reported = true
	if f.Format == "json" {
		if err := f.encode(CLIResponse{
			Status: "error",
			Data:   data,
			Error:  &CLIError{Code: exit.ErrCode, Message: exit.Message},
		}); err != nil {
			return err
		}
		return exit
	}
	fmt.Fprintln(f.Writer, text)
	return exit
}

// Error writes an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}
	fmt.Fprintf(f.errWriter(), "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.errWriter(), "Details: %v\n", details)
	}
	return nil
}

// VerboseLog writes a diagnostic line in verbose mode.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.errWriter(), format+"\n", args...)
}

func (f *OutputFormatter) encode(resp CLIResponse) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

func (f *OutputFormatter) errWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
