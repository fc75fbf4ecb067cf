package introspection

import (
	"context"
	"database/sql"
	"sort"
	"strconv"

	"relquery/internal/sqlutil"
)

// sqliteCatalog reads sqlite_master and the table PRAGMAs.
type sqliteCatalog struct {
	db Queryer
}

func (c *sqliteCatalog) tables(ctx context.Context) ([]string, error) {
	query := `
		SELECT name
		FROM sqlite_master
		WHERE type = 'table'
		AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`
	return queryAll(ctx, c.db, "introspection.get_tables", "", query, nil, scanString)
}

type sqliteColumn struct {
	Column
	pk int
}

func (c *sqliteCatalog) tableInfo(ctx context.Context, spanName, table string) ([]sqliteColumn, error) {
	query := "PRAGMA table_info(" + sqlutil.QuoteString(table) + ")"
	return queryAll(ctx, c.db, spanName, table, query, nil,
		func(rows *sql.Rows) (sqliteColumn, error) {
			var (
				cid      int
				col      sqliteColumn
				notNull  int
				defValue sql.NullString
			)
			if err := rows.Scan(&cid, &col.Name, &col.DataType, &notNull, &defValue, &col.pk); err != nil {
				return sqliteColumn{}, err
			}
			col.Nullable = notNull == 0 && col.pk == 0
			return col, nil
		})
}

func (c *sqliteCatalog) columns(ctx context.Context, table string) ([]Column, error) {
	info, err := c.tableInfo(ctx, "introspection.get_columns", table)
	if err != nil {
		return nil, err
	}
	out := make([]Column, len(info))
	for i, col := range info {
		out[i] = col.Column
	}
	return out, nil
}

func (c *sqliteCatalog) primaryKey(ctx context.Context, table string) ([]string, error) {
	info, err := c.tableInfo(ctx, "introspection.get_primary_keys", table)
	if err != nil {
		return nil, err
	}
	var pk []sqliteColumn
	for _, col := range info {
		if col.pk > 0 {
			pk = append(pk, col)
		}
	}
	sort.Slice(pk, func(i, j int) bool { return pk[i].pk < pk[j].pk })
	out := make([]string, len(pk))
	for i, col := range pk {
		out[i] = col.Name
	}
	return out, nil
}

func (c *sqliteCatalog) uniqueIndexes(ctx context.Context, table string) ([][]string, error) {
	type index struct {
		name   string
		unique bool
		origin string
	}
	query := "PRAGMA index_list(" + sqlutil.QuoteString(table) + ")"
	indexes, err := queryAll(ctx, c.db, "introspection.get_indexes", table, query, nil,
		func(rows *sql.Rows) (index, error) {
			var (
				seq     int
				idx     index
				unique  int
				partial int
			)
			if err := rows.Scan(&seq, &idx.name, &unique, &idx.origin, &partial); err != nil {
				return index{}, err
			}
			// Partial unique indexes do not make a column unique.
			idx.unique = unique == 1 && partial == 0
			return idx, nil
		})
	if err != nil {
		return nil, err
	}
	sort.Slice(indexes, func(i, j int) bool { return indexes[i].name < indexes[j].name })

	var out [][]string
	for _, idx := range indexes {
		if !idx.unique || idx.origin == "pk" {
			continue
		}
		query := "PRAGMA index_info(" + sqlutil.QuoteString(idx.name) + ")"
		cols, err := queryAll(ctx, c.db, "introspection.get_index_columns", table, query, nil,
			func(rows *sql.Rows) (string, error) {
				var seqno, cid int
				var name sql.NullString
				err := rows.Scan(&seqno, &cid, &name)
				return name.String, err
			})
		if err != nil {
			return nil, err
		}
		out = append(out, cols)
	}
	return out, nil
}

func (c *sqliteCatalog) foreignKeys(ctx context.Context, table string) ([]ForeignKey, error) {
	query := "PRAGMA foreign_key_list(" + sqlutil.QuoteString(table) + ")"
	return queryAll(ctx, c.db, "introspection.get_foreign_keys", table, query, nil,
		func(rows *sql.Rows) (ForeignKey, error) {
			var (
				id, seq            int
				fk                 ForeignKey
				to                 sql.NullString
				onUpdate, onDelete string
				match              string
			)
			if err := rows.Scan(&id, &seq, &fk.ReferencedTable, &fk.ColumnName, &to, &onUpdate, &onDelete, &match); err != nil {
				return ForeignKey{}, err
			}
			// SQLite has no constraint names; the id groups a constraint's columns.
			fk.ConstraintName = table + "_fk_" + strconv.Itoa(id)
			fk.ReferencedColumn = to.String
			fk.OrdinalPosition = seq + 1
			return fk, nil
		})
}
