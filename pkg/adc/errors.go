package adc

import "errors"

// Code is a stable error identifier. It is a comparable string newtype and
// implements error, so it can be used directly as a sentinel with errors.Is.
type Code string

func (c Code) Error() string { return string(c) }

const (
	InvalidArgument   Code = "invalid_argument"
	InvalidState      Code = "invalid_state"
	ResourceExhausted Code = "resource_exhausted"
	HardwareBusy      Code = "hardware_busy"
	UnsupportedMode   Code = "unsupported_mode"
	UnsupportedScheme Code = "unsupported_scheme"
	HardwareError     Code = "hardware_error"
)

// Error carries a Code together with the failing operation and an optional cause.
type Error struct {
	Code Code
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	s := e.Op + ": " + string(e.Code)
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports a match against a bare Code, so errors.Is(err, adc.HardwareBusy) works.
func (e *Error) Is(target error) bool {
	c, ok := target.(Code)
	return ok && c == e.Code
}

// CodeOf extracts the Code from err. It returns "" for nil and HardwareError for
// errors that carry no code.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	return HardwareError
}

func newError(code Code, op, msg string) error {
	return &Error{Code: code, Op: op, Msg: msg}
}

// hardwareError wraps a driver failure. Errors that already carry a Code pass through.
func hardwareError(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	var c Code
	if errors.As(err, &c) {
		return &Error{Code: c, Op: op}
	}
	return &Error{Code: HardwareError, Op: op, Err: err}
}
