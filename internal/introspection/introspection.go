// Package introspection discovers tables, columns, keys and foreign keys
// from a live database and turns them into a schema.Schema.
package introspection

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"relquery/internal/naming"
	"relquery/internal/schema"
	"relquery/internal/store/sqlstore"
)

// Queryer is the subset of *sql.DB that introspection needs.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Options controls what is discovered.
type Options struct {
	Dialect sqlstore.Dialect
	// Database is the MySQL database or PostgreSQL schema to read. MySQL
	// falls back to DATABASE(), PostgreSQL to "public". SQLite ignores it.
	Database string
	Filter   schema.Filter
	Namer    *naming.Namer
	Logger   *slog.Logger
}

// Column is a column as the catalog reports it.
type Column struct {
	Name     string
	DataType string
	Unsigned bool
	Nullable bool
}

// ForeignKey is one column of a foreign key constraint.
type ForeignKey struct {
	ConstraintName   string
	ColumnName       string
	ReferencedTable  string
	ReferencedColumn string
	OrdinalPosition  int
}

// Table is the raw catalog description of one base table.
type Table struct {
	Name        string
	Columns     []Column
	PrimaryKey  []string
	ForeignKeys []ForeignKey
	// UniqueIndexes lists the columns of each unique index other than the
	// primary key.
	UniqueIndexes [][]string
}

type catalog interface {
	tables(ctx context.Context) ([]string, error)
	columns(ctx context.Context, table string) ([]Column, error)
	primaryKey(ctx context.Context, table string) ([]string, error)
	uniqueIndexes(ctx context.Context, table string) ([][]string, error)
	foreignKeys(ctx context.Context, table string) ([]ForeignKey, error)
}

// Introspect reads the catalog and returns a finalized schema.
func Introspect(ctx context.Context, db Queryer, opts Options) (*schema.Schema, error) {
	ctx, span := startSpan(ctx, "introspection.build_schema",
		attribute.String("db.system", string(opts.Dialect)),
		attribute.String("db.name", opts.Database),
	)
	defer span.End()

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tables, err := ReadTables(ctx, db, opts)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	s := Build(tables, logger)
	s.Apply(opts.Filter, logger)
	if err := s.Finalize(opts.Namer); err != nil {
		recordSpanError(span, err)
		return nil, fmt.Errorf("invalid introspected schema: %w", err)
	}
	span.SetAttributes(attribute.Int("schema.entities", len(s.Entities)))
	logger.Info("schema introspected",
		slog.String("dialect", string(opts.Dialect)),
		slog.Int("entities", len(s.Entities)),
	)
	return s, nil
}

// ReadTables reads every base table allowed by opts.Filter.
func ReadTables(ctx context.Context, db Queryer, opts Options) ([]Table, error) {
	cat, err := newCatalog(ctx, db, opts)
	if err != nil {
		return nil, err
	}

	names, err := cat.tables(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get tables: %w", err)
	}

	tables := make([]Table, 0, len(names))
	for _, name := range names {
		if !opts.Filter.Allows(name) {
			continue
		}
		table := Table{Name: name}
		if table.Columns, err = cat.columns(ctx, name); err != nil {
			return nil, fmt.Errorf("failed to get columns for %s: %w", name, err)
		}
		if table.PrimaryKey, err = cat.primaryKey(ctx, name); err != nil {
			return nil, fmt.Errorf("failed to get primary key for %s: %w", name, err)
		}
		if table.UniqueIndexes, err = cat.uniqueIndexes(ctx, name); err != nil {
			return nil, fmt.Errorf("failed to get unique indexes for %s: %w", name, err)
		}
		if table.ForeignKeys, err = cat.foreignKeys(ctx, name); err != nil {
			return nil, fmt.Errorf("failed to get foreign keys for %s: %w", name, err)
		}
		tables = append(tables, table)
	}
	return tables, nil
}

func newCatalog(ctx context.Context, db Queryer, opts Options) (catalog, error) {
	switch opts.Dialect {
	case sqlstore.MySQL, "":
		database := opts.Database
		if database == "" {
			current, err := currentDatabase(ctx, db)
			if err != nil {
				return nil, err
			}
			database = current
		}
		return &mysqlCatalog{db: db, database: database}, nil
	case sqlstore.Postgres:
		database := opts.Database
		if database == "" {
			database = "public"
		}
		return &postgresCatalog{db: db, schema: database}, nil
	case sqlstore.SQLite:
		return &sqliteCatalog{db: db}, nil
	default:
		return nil, fmt.Errorf("introspection does not support dialect %q", opts.Dialect)
	}
}

// queryAll runs a catalog query inside a span and scans every row.
func queryAll[T any](ctx context.Context, db Queryer, spanName, table, query string, args []any, scan func(*sql.Rows) (T, error)) ([]T, error) {
	attrs := []attribute.KeyValue{}
	if table != "" {
		attrs = append(attrs, attribute.String("db.table", table))
	}
	ctx, span := startSpan(ctx, spanName, attrs...)
	defer span.End()

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return out, nil
}

func scanString(rows *sql.Rows) (string, error) {
	var s string
	err := rows.Scan(&s)
	return s, err
}

type indexColumn struct {
	index  string
	column string
}

func scanIndexColumn(rows *sql.Rows) (indexColumn, error) {
	var ic indexColumn
	err := rows.Scan(&ic.index, &ic.column)
	return ic, err
}

// groupIndexes folds (index, column) rows, ordered by index then position,
// into per-index column lists.
func groupIndexes(rows []indexColumn) [][]string {
	var out [][]string
	last := ""
	for i, row := range rows {
		if i == 0 || row.index != last {
			out = append(out, nil)
			last = row.index
		}
		out[len(out)-1] = append(out[len(out)-1], row.column)
	}
	return out
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer("relquery/introspection")
	ctx, span := tracer.Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

func recordSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
