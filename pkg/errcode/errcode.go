// Package errcode defines the error kinds shared by the driver, the sampler
// and the scale engine.
package errcode

import "errors"

// Code is a stable error identifier. It is comparable and implements error,
// so callers can branch with errors.Is(err, errcode.Timeout).
type Code string

func (c Code) Error() string { return string(c) }

const (
	Gpio            Code = "gpio"
	Timeout         Code = "timeout"
	Integrity       Code = "integrity"
	InvalidArgument Code = "invalid_argument"
	NoSamples       Code = "no_samples"
	NotReady        Code = "not_ready"
	Closed          Code = "closed"
	Unsupported     Code = "unsupported"

	Error Code = "error" // generic fallback
)

// E wraps a Code with the failing operation, a message and a cause.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

// New returns an *E for code c.
func New(c Code, op, msg string) *E {
	return &E{C: c, Op: op, Msg: msg}
}

// Wrap returns an *E for code c carrying err as its cause.
func Wrap(c Code, op string, err error) *E {
	return &E{C: c, Op: op, Err: err}
}

func (e *E) Error() string {
	s := string(e.C)
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Is reports whether target is the code of e, or the same *E.
func (e *E) Is(target error) bool {
	if c, ok := target.(Code); ok {
		return e.C == c
	}
	return e == target
}

// Of extracts a Code from err, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return ""
	}
	var e *E
	if errors.As(err, &e) {
		return e.C
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	return Error
}
