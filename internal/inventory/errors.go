package inventory

import (
	"errors"
	"fmt"
)

type ErrorKind string

func (k ErrorKind) Error() string { return string(k) }

const (
	DuplicateHost  ErrorKind = "DuplicateHost"
	InvalidAddress ErrorKind = "InvalidAddress"
)

var (
	ErrDuplicateHost  error = DuplicateHost
	ErrInvalidAddress error = InvalidAddress
)

// Error reports an invalid inventory entry. Line is 1-based and zero when
// the host did not come from a line-oriented source.
type Error struct {
	Kind ErrorKind
	Line int
	Host string
	Err  error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("inventory: %s: host %q", e.Kind, e.Host)
	if e.Line > 0 {
		msg = fmt.Sprintf("inventory: line %d: %s: host %q", e.Line, e.Kind, e.Host)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	k, ok := target.(ErrorKind)
	return ok && k == e.Kind
}

func KindOf(err error) (ErrorKind, bool) {
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Kind, true
	}
	return "", false
}
