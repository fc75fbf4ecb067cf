package introspection

import (
	"log/slog"
	"slices"

	"relquery/internal/schema"
	"relquery/internal/sqltype"
)

// Build converts catalog tables into an unfinalized schema. Tables without
// a primary key are skipped. Every single-column foreign key becomes a
// to-one relation on the referencing table and a reverse relation on the
// referenced table, to-one when the foreign key column is unique and
// to-many otherwise. Composite foreign keys are not exposed.
func Build(tables []Table, logger *slog.Logger) *schema.Schema {
	if logger == nil {
		logger = slog.Default()
	}

	s := &schema.Schema{}
	byTable := make(map[string]*schema.Entity, len(tables))
	for _, table := range tables {
		if len(table.PrimaryKey) == 0 {
			logger.Warn("skipping table without primary key", slog.String("table", table.Name))
			continue
		}
		entity := buildEntity(table)
		s.Entities = append(s.Entities, entity)
		byTable[table.Name] = entity
	}

	for _, table := range tables {
		local, ok := byTable[table.Name]
		if !ok {
			continue
		}
		for _, fk := range ForeignKeyConstraints(table) {
			if len(fk.ColumnNames) != 1 {
				logger.Info("skipping composite foreign key",
					slog.String("table", table.Name),
					slog.String("constraint", fk.ConstraintName),
					slog.Int("columns", len(fk.ColumnNames)),
				)
				continue
			}
			target, ok := byTable[fk.ReferencedTable]
			if !ok {
				logger.Debug("skipping foreign key to unexposed table",
					slog.String("table", table.Name),
					slog.String("references", fk.ReferencedTable),
				)
				continue
			}
			column := fk.ColumnNames[0]
			referenced := fk.ReferencedColumns[0]
			if referenced == "" && len(target.PrimaryKey) == 1 {
				// SQLite leaves the column out when the key references the PK.
				referenced = target.PrimaryKey[0]
			}
			if !hasColumn(target, referenced) {
				logger.Warn("skipping foreign key to unknown column",
					slog.String("table", table.Name),
					slog.String("constraint", fk.ConstraintName),
				)
				continue
			}

			local.Relations = append(local.Relations, schema.Relation{
				Target:       target.Table,
				Cardinality:  schema.One,
				LocalColumn:  column,
				RemoteColumn: referenced,
			})
			reverse := schema.Many
			if isUniqueColumn(local, column) {
				reverse = schema.One
			}
			target.Relations = append(target.Relations, schema.Relation{
				Target:       local.Table,
				Cardinality:  reverse,
				LocalColumn:  referenced,
				RemoteColumn: column,
			})
		}
	}
	return s
}

func buildEntity(table Table) *schema.Entity {
	unique := make(map[string]bool)
	if len(table.PrimaryKey) == 1 {
		unique[table.PrimaryKey[0]] = true
	}
	for _, idx := range table.UniqueIndexes {
		if len(idx) == 1 {
			unique[idx[0]] = true
		}
	}

	entity := &schema.Entity{
		Table:      table.Name,
		PrimaryKey: slices.Clone(table.PrimaryKey),
		Columns:    make([]schema.Column, 0, len(table.Columns)),
	}
	for _, col := range table.Columns {
		nullable := col.Nullable && !slices.Contains(table.PrimaryKey, col.Name)
		entity.Columns = append(entity.Columns, schema.Column{
			Name:     col.Name,
			Kind:     sqltype.FromSQL(col.DataType, col.Unsigned),
			Nullable: nullable,
			Unique:   unique[col.Name],
		})
	}
	return entity
}

// Entities are not indexed until Finalize, so look columns up by scanning.
func hasColumn(e *schema.Entity, name string) bool {
	return slices.ContainsFunc(e.Columns, func(c schema.Column) bool { return c.Name == name })
}

func isUniqueColumn(e *schema.Entity, name string) bool {
	return slices.ContainsFunc(e.Columns, func(c schema.Column) bool { return c.Name == name && c.Unique })
}
