// Package memstore is an in-memory store.Store. It evaluates predicates
// directly against rows and counts fetches per entity so tests can assert
// how many round trips a request made. The demo server mode runs on it too.
package memstore

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"relquery/internal/planner"
	"relquery/internal/predicate"
	"relquery/internal/schema"
	"relquery/internal/store"
	"relquery/internal/value"
)

// Op names a store operation for fault injection and fetch accounting.
type Op string

const (
	OpSelect     Op = "select"
	OpCount      Op = "count"
	OpLoadByKeys Op = "load_by_keys"
)

// FaultFunc may fail an operation before it runs.
type FaultFunc func(ctx context.Context, op Op, table string) error

var _ store.Store = (*Store)(nil)

// Store holds rows per table.
type Store struct {
	mu     sync.RWMutex
	tables map[string][]store.Row
	fault  FaultFunc

	countsMu sync.Mutex
	fetches  map[string]map[Op]*atomic.Int64
}

// New creates a store over a copy of tables.
func New(tables map[string][]store.Row) *Store {
	s := &Store{
		tables:  make(map[string][]store.Row, len(tables)),
		fetches: make(map[string]map[Op]*atomic.Int64),
	}
	for name, rows := range tables {
		s.tables[name] = slices.Clone(rows)
	}
	return s
}

// SetFault installs a fault hook; nil removes it.
func (s *Store) SetFault(fn FaultFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = fn
}

// Insert appends a row to a table.
func (s *Store) Insert(table string, row store.Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[table] = append(s.tables[table], maps.Clone(row))
}

// Fetches returns how many times op ran against table.
func (s *Store) Fetches(table string, op Op) int64 {
	s.countsMu.Lock()
	defer s.countsMu.Unlock()
	if c := s.fetches[table][op]; c != nil {
		return c.Load()
	}
	return 0
}

// TotalFetches returns the number of operations of any kind against table.
func (s *Store) TotalFetches(table string) int64 {
	s.countsMu.Lock()
	defer s.countsMu.Unlock()
	var total int64
	for _, c := range s.fetches[table] {
		total += c.Load()
	}
	return total
}

// ResetFetches clears all fetch counters.
func (s *Store) ResetFetches() {
	s.countsMu.Lock()
	defer s.countsMu.Unlock()
	s.fetches = make(map[string]map[Op]*atomic.Int64)
}

func (s *Store) record(table string, op Op) {
	s.countsMu.Lock()
	byOp := s.fetches[table]
	if byOp == nil {
		byOp = make(map[Op]*atomic.Int64)
		s.fetches[table] = byOp
	}
	c := byOp[op]
	if c == nil {
		c = &atomic.Int64{}
		byOp[op] = c
	}
	s.countsMu.Unlock()
	c.Add(1)
}

func (s *Store) begin(ctx context.Context, op Op, entity *schema.Entity) ([]store.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, fmt.Errorf("memstore: nil entity")
	}
	s.record(entity.Table, op)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.fault != nil {
		if err := s.fault(ctx, op, entity.Table); err != nil {
			return nil, err
		}
	}
	rows, ok := s.tables[entity.Table]
	if !ok {
		return nil, fmt.Errorf("memstore: unknown table %q", entity.Table)
	}
	return rows, nil
}

// Select returns the matching rows in the requested order.
func (s *Store) Select(ctx context.Context, q store.Query) ([]store.Row, error) {
	rows, err := s.begin(ctx, OpSelect, q.Entity)
	if err != nil {
		return nil, err
	}

	matched := make([]store.Row, 0, len(rows))
	for _, row := range rows {
		if predicate.Eval(q.Where, row) {
			matched = append(matched, row)
		}
	}
	if len(q.Order) > 0 {
		key := planner.OrderingKey(q.Order)
		slices.SortStableFunc(matched, func(a, b store.Row) int { return key.Compare(a, b) })
	}

	if q.Offset > 0 {
		if q.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[q.Offset:]
		}
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return cloneRows(matched), nil
}

// Count returns the number of rows matching where.
func (s *Store) Count(ctx context.Context, entity *schema.Entity, where predicate.Predicate) (int64, error) {
	rows, err := s.begin(ctx, OpCount, entity)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, row := range rows {
		if predicate.Eval(where, row) {
			n++
		}
	}
	return n, nil
}

// LoadByKeys returns rows whose column matches one of keys, in table order.
func (s *Store) LoadByKeys(ctx context.Context, entity *schema.Entity, column string, keys []value.Value) ([]store.Row, error) {
	rows, err := s.begin(ctx, OpLoadByKeys, entity)
	if err != nil {
		return nil, err
	}
	want := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if !k.IsNull() {
			want[k.Key()] = struct{}{}
		}
	}
	var out []store.Row
	for _, row := range rows {
		v, ok := row[column]
		if !ok || v.IsNull() {
			continue
		}
		if _, hit := want[v.Key()]; hit {
			out = append(out, row)
		}
	}
	return cloneRows(out), nil
}

func cloneRows(rows []store.Row) []store.Row {
	out := make([]store.Row, len(rows))
	for i, row := range rows {
		out[i] = maps.Clone(row)
	}
	return out
}
