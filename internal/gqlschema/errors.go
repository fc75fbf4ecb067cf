package gqlschema

import (
	"errors"

	"relquery/internal/engine"
	"relquery/internal/planner"
)

const storageFailureMessage = "query failed; see server logs"

type queryError struct {
	message   string
	code      engine.ErrorClass
	retryable bool
	err       error
}

func (e *queryError) Error() string {
	return e.message
}

func (e *queryError) Unwrap() error {
	return e.err
}

func (e *queryError) Extensions() map[string]interface{} {
	extensions := map[string]interface{}{
		"code": string(e.code),
	}
	if e.code == engine.ClassStorage {
		extensions["retryable"] = e.retryable
	}
	return extensions
}

// newQueryError converts an engine failure into a GraphQL error with a
// machine-readable code. Client errors keep their message; storage and
// internal failures are reported generically.
func newQueryError(err error) error {
	var pagination *planner.PaginationError
	if engine.Class(err) == engine.ClassInternal && errors.As(err, &pagination) {
		err = &engine.ClientError{Class: engine.ClassPagination, Err: err}
	}

	class := engine.Class(err)
	qe := &queryError{message: err.Error(), code: class, err: err}
	switch class {
	case engine.ClassStorage:
		qe.message = storageFailureMessage
		var storage *engine.StorageError
		if errors.As(err, &storage) {
			qe.retryable = storage.Retryable()
		}
	case engine.ClassInternal:
		qe.message = storageFailureMessage
	}
	return qe
}
