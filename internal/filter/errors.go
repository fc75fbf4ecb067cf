package filter

import (
	"errors"
	"fmt"
)

// Reasons a filter fails validation. Match them with errors.Is.
var (
	ErrEmptyCombinator = errors.New("empty combinator")
	ErrNotArity        = errors.New("not requires exactly one child")
	ErrUnknownColumn   = errors.New("unknown column")
	ErrTypeMismatch    = errors.New("type mismatch")
	ErrOperator        = errors.New("invalid operator")
	ErrShape           = errors.New("malformed filter")
)

// ValidationError reports a filter that cannot be compiled. It is a client
// error: the request is rejected before any storage access.
type ValidationError struct {
	Reason  error
	Path    string
	Field   string
	Message string
}

func newError(reason error, path, field, message string) *ValidationError {
	return &ValidationError{Reason: reason, Path: path, Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: %v", e.Path, e.Reason)
	}
	return fmt.Sprintf("%s: %v: %s", e.Path, e.Reason, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Reason
}
