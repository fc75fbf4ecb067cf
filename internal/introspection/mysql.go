package introspection

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// mysqlCatalog reads INFORMATION_SCHEMA on MySQL, TiDB and MariaDB.
type mysqlCatalog struct {
	db       Queryer
	database string
}

func currentDatabase(ctx context.Context, db Queryer) (string, error) {
	names, err := queryAll(ctx, db, "introspection.current_database", "", "SELECT DATABASE()", nil,
		func(rows *sql.Rows) (string, error) {
			var name sql.NullString
			err := rows.Scan(&name)
			return name.String, err
		})
	if err != nil {
		return "", fmt.Errorf("failed to resolve current database: %w", err)
	}
	if len(names) == 0 || names[0] == "" {
		return "", errors.New("no database selected; set database.name")
	}
	return names[0], nil
}

func (c *mysqlCatalog) tables(ctx context.Context) ([]string, error) {
	query := `
		SELECT TABLE_NAME
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = ?
		AND TABLE_TYPE = 'BASE TABLE'
		ORDER BY TABLE_NAME
	`
	return queryAll(ctx, c.db, "introspection.get_tables", "", query, []any{c.database}, scanString)
}

func (c *mysqlCatalog) columns(ctx context.Context, table string) ([]Column, error) {
	query := `
		SELECT COLUMN_NAME, DATA_TYPE, COLUMN_TYPE, IS_NULLABLE
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = ?
		AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION
	`
	return queryAll(ctx, c.db, "introspection.get_columns", table, query, []any{c.database, table},
		func(rows *sql.Rows) (Column, error) {
			var col Column
			var columnType, nullable string
			if err := rows.Scan(&col.Name, &col.DataType, &columnType, &nullable); err != nil {
				return Column{}, err
			}
			col.Unsigned = strings.Contains(strings.ToLower(columnType), "unsigned")
			col.Nullable = strings.EqualFold(nullable, "YES")
			return col, nil
		})
}

func (c *mysqlCatalog) primaryKey(ctx context.Context, table string) ([]string, error) {
	query := `
		SELECT COLUMN_NAME
		FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE
		WHERE TABLE_SCHEMA = ?
		AND TABLE_NAME = ?
		AND CONSTRAINT_NAME = 'PRIMARY'
		ORDER BY ORDINAL_POSITION
	`
	return queryAll(ctx, c.db, "introspection.get_primary_keys", table, query, []any{c.database, table}, scanString)
}

func (c *mysqlCatalog) uniqueIndexes(ctx context.Context, table string) ([][]string, error) {
	query := `
		SELECT INDEX_NAME, COLUMN_NAME
		FROM INFORMATION_SCHEMA.STATISTICS
		WHERE TABLE_SCHEMA = ?
		AND TABLE_NAME = ?
		AND NON_UNIQUE = 0
		AND INDEX_NAME <> 'PRIMARY'
		ORDER BY INDEX_NAME, SEQ_IN_INDEX
	`
	rows, err := queryAll(ctx, c.db, "introspection.get_indexes", table, query, []any{c.database, table}, scanIndexColumn)
	if err != nil {
		return nil, err
	}
	return groupIndexes(rows), nil
}

func (c *mysqlCatalog) foreignKeys(ctx context.Context, table string) ([]ForeignKey, error) {
	query := `
		SELECT
			COLUMN_NAME,
			REFERENCED_TABLE_NAME,
			REFERENCED_COLUMN_NAME,
			CONSTRAINT_NAME,
			ORDINAL_POSITION
		FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE
		WHERE TABLE_SCHEMA = ?
			AND TABLE_NAME = ?
			AND REFERENCED_TABLE_NAME IS NOT NULL
		ORDER BY CONSTRAINT_NAME, ORDINAL_POSITION
	`
	return queryAll(ctx, c.db, "introspection.get_foreign_keys", table, query, []any{c.database, table},
		func(rows *sql.Rows) (ForeignKey, error) {
			var fk ForeignKey
			err := rows.Scan(&fk.ColumnName, &fk.ReferencedTable, &fk.ReferencedColumn, &fk.ConstraintName, &fk.OrdinalPosition)
			return fk, err
		})
}
