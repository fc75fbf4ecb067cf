// Package store defines the storage collaborator the query core runs
// against: filtered ordered selects, counts, and batched key lookups.
package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"

	"relquery/internal/planner"
	"relquery/internal/predicate"
	"relquery/internal/schema"
	"relquery/internal/value"
)

// Row is one fetched row keyed by column name.
type Row map[string]value.Value

// Get returns a column value.
func (r Row) Get(column string) (value.Value, bool) {
	v, ok := r[column]
	return v, ok
}

// Query is a filtered, ordered, bounded select over one entity.
type Query struct {
	Entity *schema.Entity
	Where  predicate.Predicate
	Order  []planner.OrderTerm
	// Limit of zero means unbounded.
	Limit  int
	Offset int
}

// Store executes queries. Implementations must return rows in exactly the
// requested order and must be safe for concurrent use.
type Store interface {
	Select(ctx context.Context, q Query) ([]Row, error)
	Count(ctx context.Context, entity *schema.Entity, where predicate.Predicate) (int64, error)
	// LoadByKeys returns every row of entity whose column equals one of keys.
	LoadByKeys(ctx context.Context, entity *schema.Entity, column string, keys []value.Value) ([]Row, error)
}

// IsTransient reports whether err is a storage failure worth retrying by the
// caller: timeouts, dropped connections and network errors.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
