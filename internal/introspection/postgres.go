package introspection

import (
	"context"
	"database/sql"
	"strings"
)

// postgresCatalog reads information_schema on PostgreSQL.
type postgresCatalog struct {
	db     Queryer
	schema string
}

func (c *postgresCatalog) tables(ctx context.Context) ([]string, error) {
	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = $1
		AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`
	return queryAll(ctx, c.db, "introspection.get_tables", "", query, []any{c.schema}, scanString)
}

func (c *postgresCatalog) columns(ctx context.Context, table string) ([]Column, error) {
	query := `
		SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = $1
		AND table_name = $2
		ORDER BY ordinal_position
	`
	return queryAll(ctx, c.db, "introspection.get_columns", table, query, []any{c.schema, table},
		func(rows *sql.Rows) (Column, error) {
			var col Column
			var nullable string
			if err := rows.Scan(&col.Name, &col.DataType, &nullable); err != nil {
				return Column{}, err
			}
			col.Nullable = strings.EqualFold(nullable, "YES")
			return col, nil
		})
}

func (c *postgresCatalog) constraintColumns(ctx context.Context, spanName, table, constraintType string) ([]indexColumn, error) {
	query := `
		SELECT tc.constraint_name, kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		WHERE tc.table_schema = $1
		AND tc.table_name = $2
		AND tc.constraint_type = $3
		ORDER BY tc.constraint_name, kcu.ordinal_position
	`
	return queryAll(ctx, c.db, spanName, table, query, []any{c.schema, table, constraintType}, scanIndexColumn)
}

func (c *postgresCatalog) primaryKey(ctx context.Context, table string) ([]string, error) {
	rows, err := c.constraintColumns(ctx, "introspection.get_primary_keys", table, "PRIMARY KEY")
	if err != nil {
		return nil, err
	}
	var out []string
	for _, row := range rows {
		out = append(out, row.column)
	}
	return out, nil
}

func (c *postgresCatalog) uniqueIndexes(ctx context.Context, table string) ([][]string, error) {
	rows, err := c.constraintColumns(ctx, "introspection.get_indexes", table, "UNIQUE")
	if err != nil {
		return nil, err
	}
	return groupIndexes(rows), nil
}

func (c *postgresCatalog) foreignKeys(ctx context.Context, table string) ([]ForeignKey, error) {
	query := `
		SELECT kcu.column_name, ccu.table_name, ccu.column_name, tc.constraint_name, kcu.ordinal_position
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
			ON ccu.constraint_name = tc.constraint_name
			AND ccu.table_schema = tc.table_schema
		WHERE tc.table_schema = $1
		AND tc.table_name = $2
		AND tc.constraint_type = 'FOREIGN KEY'
		ORDER BY tc.constraint_name, kcu.ordinal_position
	`
	return queryAll(ctx, c.db, "introspection.get_foreign_keys", table, query, []any{c.schema, table},
		func(rows *sql.Rows) (ForeignKey, error) {
			var fk ForeignKey
			err := rows.Scan(&fk.ColumnName, &fk.ReferencedTable, &fk.ReferencedColumn, &fk.ConstraintName, &fk.OrdinalPosition)
			return fk, err
		})
}
