// Package apperr defines the error kinds shared by every engine component.
//
// Callers match kinds with errors.Is against the exported sentinels; the
// concrete *Error carries the operation and a human readable message.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrValidation             = errors.New("validation error")
	ErrInvalidWindow          = errors.New("invalid window")
	ErrInvalidTransition      = errors.New("invalid transition")
	ErrCapacityExceeded       = errors.New("capacity exceeded")
	ErrReservationTimeout     = errors.New("reservation timeout")
	ErrAlreadyTerminal        = errors.New("already terminal")
	ErrNotFound               = errors.New("not found")
	ErrConflict               = errors.New("concurrent update")
	ErrReconciliationRequired = errors.New("reconciliation required")
)

// Error is a kinded error. Kind is always one of the package sentinels.
type Error struct {
	Kind error
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	switch {
	case e.Op != "" && msg != "":
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	case msg != "":
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	default:
		return e.Kind.Error()
	}
}

// Is reports kind equality so errors.Is(err, apperr.ErrValidation) works through wrapping.
func (e *Error) Is(target error) bool {
	return e.Kind == target
}

func (e *Error) Unwrap() error { return e.Err }

func newf(kind error, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func Validation(op, format string, args ...any) error {
	return newf(ErrValidation, op, format, args...)
}

func InvalidWindow(op, format string, args ...any) error {
	return newf(ErrInvalidWindow, op, format, args...)
}

func InvalidTransition(op, format string, args ...any) error {
	return newf(ErrInvalidTransition, op, format, args...)
}

func CapacityExceeded(op, format string, args ...any) error {
	return newf(ErrCapacityExceeded, op, format, args...)
}

func ReservationTimeout(op, format string, args ...any) error {
	return newf(ErrReservationTimeout, op, format, args...)
}

// AlreadyTerminal also matches ErrInvalidTransition: leaving a terminal status is never permitted.
func AlreadyTerminal(op, format string, args ...any) error {
	e := newf(ErrAlreadyTerminal, op, format, args...)
	e.Err = ErrInvalidTransition
	return e
}

// TerminalTransition is AlreadyTerminal reported primarily as an invalid transition.
func TerminalTransition(op, format string, args ...any) error {
	e := newf(ErrInvalidTransition, op, format, args...)
	e.Err = ErrAlreadyTerminal
	return e
}

func NotFound(op, format string, args ...any) error {
	return newf(ErrNotFound, op, format, args...)
}

func Conflict(op, format string, args ...any) error {
	return newf(ErrConflict, op, format, args...)
}

// Reconciliation wraps cause so both the reconciliation kind and the original error match.
func Reconciliation(op string, cause error, format string, args ...any) error {
	return &Error{Kind: ErrReconciliationRequired, Op: op, Msg: fmt.Sprintf(format, args...), Err: cause}
}

var kinds = []error{
	ErrValidation, ErrInvalidWindow, ErrInvalidTransition, ErrCapacityExceeded,
	ErrReservationTimeout, ErrAlreadyTerminal, ErrNotFound, ErrConflict, ErrReconciliationRequired,
}

// KindByName maps a kind's message back to its sentinel, nil when unknown.
func KindByName(name string) error {
	for _, kind := range kinds {
		if kind.Error() == name {
			return kind
		}
	}
	return nil
}

// KindOf returns the sentinel kind of err or nil when err carries none.
func KindOf(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
