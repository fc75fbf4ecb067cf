package engine

import (
	"errors"
	"fmt"

	"relquery/internal/batch"
	"relquery/internal/cursor"
	"relquery/internal/filter"
	"relquery/internal/planner"
	"relquery/internal/store"
)

// ErrorClass groups failures for callers and metrics.
type ErrorClass string

const (
	ClassValidation ErrorClass = "validation"
	ClassCursor     ErrorClass = "cursor"
	ClassPagination ErrorClass = "pagination"
	ClassOrdering   ErrorClass = "ordering"
	ClassRelation   ErrorClass = "relation"
	ClassEntity     ErrorClass = "unknown_entity"
	ClassStorage    ErrorClass = "storage"
	ClassInternal   ErrorClass = "internal"
)

// ClientError is a request the engine rejected before touching storage.
// Retrying it unchanged fails the same way.
type ClientError struct {
	Class ErrorClass
	Err   error
}

func (e *ClientError) Error() string {
	return e.Err.Error()
}

func (e *ClientError) Unwrap() error {
	return e.Err
}

// StorageError wraps a failure from the store. The engine never retries;
// Retryable tells the caller whether doing so could help.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the underlying failure is transient.
func (e *StorageError) Retryable() bool {
	return store.IsTransient(e.Err)
}

// UnknownEntityError reports a request for an entity the schema lacks.
type UnknownEntityError struct {
	Name string
}

func (e *UnknownEntityError) Error() string {
	return fmt.Sprintf("unknown entity %q", e.Name)
}

// classify wraps pre-storage failures as client errors.
func classify(err error) error {
	var (
		validation *filter.ValidationError
		cursorErr  *cursor.Error
		pagination *planner.PaginationError
		ordering   *planner.OrderingError
		relation   *batch.UnknownRelationError
		entity     *UnknownEntityError
	)
	switch {
	case errors.As(err, &validation):
		return &ClientError{Class: ClassValidation, Err: err}
	case errors.As(err, &cursorErr):
		return &ClientError{Class: ClassCursor, Err: err}
	case errors.As(err, &pagination):
		return &ClientError{Class: ClassPagination, Err: err}
	case errors.As(err, &ordering):
		return &ClientError{Class: ClassOrdering, Err: err}
	case errors.As(err, &relation):
		return &ClientError{Class: ClassRelation, Err: err}
	case errors.As(err, &entity):
		return &ClientError{Class: ClassEntity, Err: err}
	default:
		return err
	}
}

// Class returns the error class of err, or "" when err is nil or unclassified.
func Class(err error) ErrorClass {
	var client *ClientError
	if errors.As(err, &client) {
		return client.Class
	}
	var storage *StorageError
	if errors.As(err, &storage) {
		return ClassStorage
	}
	if err != nil {
		return ClassInternal
	}
	return ""
}
