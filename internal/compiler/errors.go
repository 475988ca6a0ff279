package compiler

import "fmt"

type ErrorKind string

func (k ErrorKind) Error() string { return string(k) }

const NoMatches ErrorKind = "NoMatches"

var ErrNoMatches error = NoMatches

// Error aborts a compilation.
type Error struct {
	Kind    ErrorKind
	Service string
}

func (e *Error) Error() string {
	return fmt.Sprintf("compile: %s: required service %q resolved to no rules", e.Kind, e.Service)
}

func (e *Error) Is(target error) bool {
	k, ok := target.(ErrorKind)
	return ok && k == e.Kind
}
