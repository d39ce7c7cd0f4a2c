package errs

import (
	"context"
	"errors"
)

// Code is a harness error code.
type Code string

const (
	BindError          Code = "bind_error"
	NavigationError    Code = "navigation_error"
	ElementNotFound    Code = "element_not_found"
	ElementNotEditable Code = "element_not_editable"
	AssertionTimeout   Code = "assertion_timeout"
	AssertionFailed    Code = "assertion_failed"
	DialogTimeout      Code = "dialog_timeout"
	ScreenshotWrite    Code = "screenshot_write_error"
	InvalidScenario    Code = "invalid_scenario"
	Canceled           Code = "canceled"
	Internal           Code = "internal"
)

// Error is a coded harness error.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a coded error with message.
func New(code Code, message string) error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a coded error with message and cause.
func Wrap(code Code, message string, cause error) error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     cause,
	}
}

// CodeOf returns the error code, defaulting to internal.
// Context cancellation anywhere in the chain maps to Canceled unless a
// more specific code was attached first.
func CodeOf(err error) Code {
	if err == nil {
		return Internal
	}
	var coded *Error
	if errors.As(err, &coded) {
		if coded.Code == "" {
			return Internal
		}
		return coded.Code
	}
	if errors.Is(err, context.Canceled) {
		return Canceled
	}
	return Internal
}

// MessageOf returns the message recorded for a scenario failure.
// Untyped errors keep their text: the runner reports them verbatim.
func MessageOf(err error) string {
	if err == nil {
		return string(Internal)
	}
	var coded *Error
	if errors.As(err, &coded) && coded.Message != "" {
		if coded.Err != nil {
			return coded.Message + ": " + coded.Err.Error()
		}
		return coded.Message
	}
	return err.Error()
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

// IsFatal reports whether an action error must abort its scenario.
// Screenshot write failures are recorded but never invalidate assertions
// that already passed.
func IsFatal(code Code) bool {
	return code != ScreenshotWrite
}

// ExitCode maps a process-level error code to an exit status.
func ExitCode(code Code) int {
	switch code {
	case InvalidScenario:
		return 2
	case Canceled:
		return 130
	default:
		return 1
	}
}
