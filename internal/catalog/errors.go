package catalog

import (
	"errors"
	"fmt"
)

// ErrorKind classifies catalog failures. Each kind is also a sentinel usable
// with errors.Is.
type ErrorKind string

func (k ErrorKind) Error() string { return string(k) }

const (
	MissingField      ErrorKind = "MissingField"
	InvalidPort       ErrorKind = "InvalidPort"
	InvalidProtocol   ErrorKind = "InvalidProtocol"
	InvalidSelector   ErrorKind = "InvalidSelector"
	DuplicateService  ErrorKind = "DuplicateService"
	InvalidDefinition ErrorKind = "InvalidDefinition"
)

var (
	ErrMissingField      error = MissingField
	ErrInvalidPort       error = InvalidPort
	ErrInvalidProtocol   error = InvalidProtocol
	ErrInvalidSelector   error = InvalidSelector
	ErrDuplicateService  error = DuplicateService
	ErrInvalidDefinition error = InvalidDefinition
)

// Error reports an invalid catalog entry.
type Error struct {
	Kind    ErrorKind
	Service string
	Field   string
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("catalog: %s: service %q", e.Kind, e.Service)
	if e.Field != "" {
		msg += fmt.Sprintf(" field %q", e.Field)
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

// KindOf returns the kind of a catalog error anywhere in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind, true
	}
	return "", false
}
