package cli

import (
	"errors"
	"fmt"

	"cycletrack/internal/config"
	"cycletrack/internal/event"
	"cycletrack/internal/recorder"
	"cycletrack/internal/sprint"
	"cycletrack/internal/timeparse"
	"cycletrack/internal/transition"
)

// Exit codes.
const (
	exitFailure = 1
	exitInvalid = 2
)

// ExitError represents a command execution failure with a specific exit code.
//
// Commands return it (usually wrapping the cause) instead of calling
// os.Exit, so tests can assert on exit codes without terminating the
// process. [Execute] turns it into the process exit status.
type ExitError struct {
	// Code is the exit code to return to the shell.
	Code int

	// Err is the underlying failure, if any.
	Err error
}

// Error returns the underlying message, or "exit status N" when there is none.
func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

// Unwrap returns the underlying error.
func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates an [ExitError] with the given exit code.
func NewExitError(code int) *ExitError {
	return &ExitError{Code: code}
}

// IsExitError checks if an error is an [ExitError] and extracts its exit code.
//
// Returns (code, true) if err is or wraps an *ExitError. Returns (0, false)
// for nil or other errors.
func IsExitError(err error) (int, bool) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code, true
	}
	return 0, false
}

// invalidInput lists errors caused by what the user typed. They exit with
// exitInvalid rather than exitFailure.
var invalidInput = []error{
	transition.ErrInvalidTransition,
	transition.ErrMissingReason,
	event.ErrUnknownKind,
	event.ErrUnknownReason,
	recorder.ErrMissingTrackerID,
	recorder.ErrMissingDeveloper,
	config.ErrMissingDevName,
	sprint.ErrInvalidFilter,
	sprint.ErrInvalidWindow,
	timeparse.ErrUnrecognized,
	errInvalidPoints,
}

// exitCode maps a command error to a process exit status.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if code, ok := IsExitError(err); ok {
		return code
	}
	for _, target := range invalidInput {
		if errors.Is(err, target) {
			return exitInvalid
		}
	}
	return exitFailure
}
