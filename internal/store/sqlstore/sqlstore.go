// Package sqlstore implements store.Store over database/sql. Queries are
// rendered with squirrel for MySQL, PostgreSQL or SQLite and run through a
// dbexec.QueryExecutor.
package sqlstore

import (
	"context"
	"fmt"
	"math"

	sq "github.com/Masterminds/squirrel"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"relquery/internal/dbexec"
	"relquery/internal/logging"
	"relquery/internal/planner"
	"relquery/internal/predicate"
	"relquery/internal/schema"
	"relquery/internal/store"
	"relquery/internal/value"
)

// DefaultMaxInClause bounds the number of keys bound into one IN list.
const DefaultMaxInClause = 1000

// SQLQuery is a rendered statement.
type SQLQuery struct {
	SQL  string
	Args []any
}

var _ store.Store = (*Store)(nil)

// Store runs queries against a SQL database.
type Store struct {
	exec        dbexec.QueryExecutor
	dialect     Dialect
	maxInClause int
}

// Option configures a Store.
type Option func(*Store)

// WithMaxInClause sets the IN list chunk size. Values below 1 are ignored.
func WithMaxInClause(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxInClause = n
		}
	}
}

// New creates a store.
func New(exec dbexec.QueryExecutor, dialect Dialect, opts ...Option) *Store {
	s := &Store{exec: exec, dialect: dialect, maxInClause: DefaultMaxInClause}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dialect returns the store's dialect.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// BuildSelect renders a select for q.
func (s *Store) BuildSelect(q store.Query) (SQLQuery, error) {
	if q.Entity == nil {
		return SQLQuery{}, fmt.Errorf("select: nil entity")
	}
	cond, err := s.dialect.condition(q.Where)
	if err != nil {
		return SQLQuery{}, err
	}
	builder := sq.Select(s.columnList(q.Entity)...).
		From(s.dialect.Quote(q.Entity.Table)).
		PlaceholderFormat(s.dialect.placeholders())
	if !predicate.IsTrivial(q.Where) {
		builder = builder.Where(cond)
	}
	if len(q.Order) > 0 {
		clauses := make([]string, len(q.Order))
		for i, term := range q.Order {
			clauses[i] = s.dialect.orderBy(term)
		}
		builder = builder.OrderBy(clauses...)
	}
	switch {
	case q.Limit > 0:
		builder = builder.Limit(uint64(q.Limit))
	case q.Offset > 0:
		// MySQL and SQLite reject OFFSET without LIMIT.
		builder = builder.Limit(math.MaxInt64)
	}
	if q.Offset > 0 {
		builder = builder.Offset(uint64(q.Offset))
	}
	sql, args, err := builder.ToSql()
	if err != nil {
		return SQLQuery{}, fmt.Errorf("render select on %s: %w", q.Entity.Table, err)
	}
	return SQLQuery{SQL: sql, Args: args}, nil
}

// BuildCount renders a COUNT(*) over the rows matching where.
func (s *Store) BuildCount(entity *schema.Entity, where predicate.Predicate) (SQLQuery, error) {
	builder := sq.Select("COUNT(*)").
		From(s.dialect.Quote(entity.Table)).
		PlaceholderFormat(s.dialect.placeholders())
	if !predicate.IsTrivial(where) {
		cond, err := s.dialect.condition(where)
		if err != nil {
			return SQLQuery{}, err
		}
		builder = builder.Where(cond)
	}
	sql, args, err := builder.ToSql()
	if err != nil {
		return SQLQuery{}, fmt.Errorf("render count on %s: %w", entity.Table, err)
	}
	return SQLQuery{SQL: sql, Args: args}, nil
}

// Select runs q and scans the rows.
func (s *Store) Select(ctx context.Context, q store.Query) ([]store.Row, error) {
	query, err := s.BuildSelect(q)
	if err != nil {
		return nil, err
	}
	ctx, span := startStoreSpan(ctx, "sqlstore.select", q.Entity.Table)
	rows, err := s.fetch(ctx, q.Entity, query)
	span.SetAttributes(attribute.Int("db.rows", len(rows)))
	finishStoreSpan(span, err)
	return rows, err
}

// Count runs a COUNT(*) over the rows matching where.
func (s *Store) Count(ctx context.Context, entity *schema.Entity, where predicate.Predicate) (int64, error) {
	query, err := s.BuildCount(entity, where)
	if err != nil {
		return 0, err
	}
	ctx, span := startStoreSpan(ctx, "sqlstore.count", entity.Table)
	count, err := s.count(ctx, query)
	finishStoreSpan(span, err)
	return count, err
}

func (s *Store) count(ctx context.Context, query SQLQuery) (int64, error) {
	logQuery(ctx, query)
	rows, err := s.exec.QueryContext(ctx, query.SQL, query.Args...)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var count int64
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			return 0, err
		}
	}
	return count, rows.Err()
}

// LoadByKeys selects every row whose column is in keys, chunking the IN
// list. Rows come back ordered by primary key within each chunk.
func (s *Store) LoadByKeys(ctx context.Context, entity *schema.Entity, column string, keys []value.Value) ([]store.Row, error) {
	ctx, span := startStoreSpan(ctx, "sqlstore.load_by_keys", entity.Table,
		attribute.String("db.key_column", column),
		attribute.Int("db.key_count", len(keys)),
	)
	var out []store.Row
	var err error
	defer func() { finishStoreSpan(span, err) }()

	chunks := chunkValues(keys, s.maxInClause)
	span.SetAttributes(attribute.Int("db.chunks", len(chunks)))
	for _, chunk := range chunks {
		var query SQLQuery
		query, err = s.BuildSelect(store.Query{
			Entity: entity,
			Where:  predicate.In{Column: column, Values: chunk},
			Order:  primaryKeyOrder(entity),
		})
		if err != nil {
			return nil, err
		}
		var rows []store.Row
		rows, err = s.fetch(ctx, entity, query)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}

func (s *Store) fetch(ctx context.Context, entity *schema.Entity, query SQLQuery) ([]store.Row, error) {
	logQuery(ctx, query)
	rows, err := s.exec.QueryContext(ctx, query.SQL, query.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRows(rows, entity)
}

func (s *Store) columnList(entity *schema.Entity) []string {
	cols := make([]string, len(entity.Columns))
	for i, col := range entity.Columns {
		cols[i] = s.dialect.Quote(col.Name)
	}
	return cols
}

func scanRows(rows dbexec.Rows, entity *schema.Entity) ([]store.Row, error) {
	var out []store.Row
	raw := make([]any, len(entity.Columns))
	dest := make([]any, len(entity.Columns))
	for i := range raw {
		dest[i] = &raw[i]
	}
	for rows.Next() {
		for i := range raw {
			raw[i] = nil
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		row := make(store.Row, len(entity.Columns))
		for i, col := range entity.Columns {
			if raw[i] == nil {
				row[col.Name] = value.Null(col.Kind)
				continue
			}
			v, err := value.Coerce(col.Kind, raw[i])
			if err != nil {
				return nil, fmt.Errorf("scan %s.%s: %w", entity.Table, col.Name, err)
			}
			row[col.Name] = v
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func primaryKeyOrder(entity *schema.Entity) []planner.OrderTerm {
	terms := make([]planner.OrderTerm, len(entity.PrimaryKey))
	for i, pk := range entity.PrimaryKey {
		terms[i] = planner.OrderTerm{Column: pk}
	}
	return terms
}

func chunkValues(values []value.Value, max int) [][]value.Value {
	if len(values) == 0 {
		return nil
	}
	if max <= 0 || len(values) <= max {
		return [][]value.Value{values}
	}
	chunks := make([][]value.Value, 0, (len(values)+max-1)/max)
	for start := 0; start < len(values); start += max {
		end := min(start+max, len(values))
		chunks = append(chunks, values[start:end])
	}
	return chunks
}

func logQuery(ctx context.Context, query SQLQuery) {
	logging.FromContext(ctx).Debug("sql query", "sql", query.SQL, "args", len(query.Args))
}

func startStoreSpan(ctx context.Context, name, table string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := otel.Tracer("relquery/sqlstore").Start(ctx, name)
	span.SetAttributes(attribute.String("db.table", table))
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

func finishStoreSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
