package introspection

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strings"
)

// ForeignKeyConstraint is a foreign key with its columns in constraint order.
type ForeignKeyConstraint struct {
	ConstraintName    string
	ReferencedTable   string
	ColumnNames       []string
	ReferencedColumns []string
}

// ForeignKeyConstraints groups a table's per-column foreign key rows into
// constraints, sorted by constraint name.
func ForeignKeyConstraints(table Table) []ForeignKeyConstraint {
	if len(table.ForeignKeys) == 0 {
		return nil
	}

	type row struct {
		key string
		fk  ForeignKey
	}
	rows := make([]row, 0, len(table.ForeignKeys))
	for i, fk := range table.ForeignKeys {
		key := fk.ConstraintName
		if key == "" {
			// Never merge unnamed rows.
			key = fmt.Sprintf("__unnamed_%d", i)
		}
		rows = append(rows, row{key: key, fk: fk})
	}

	// Rows without a position sort after positioned ones.
	position := func(r row) int {
		if r.fk.OrdinalPosition == 0 {
			return math.MaxInt
		}
		return r.fk.OrdinalPosition
	}
	slices.SortStableFunc(rows, func(a, b row) int {
		return cmp.Or(
			strings.Compare(a.key, b.key),
			cmp.Compare(position(a), position(b)),
			strings.Compare(a.fk.ColumnName, b.fk.ColumnName),
		)
	})

	var result []ForeignKeyConstraint
	last := ""
	for i, item := range rows {
		if i == 0 || item.key != last {
			result = append(result, ForeignKeyConstraint{
				ConstraintName:  item.fk.ConstraintName,
				ReferencedTable: item.fk.ReferencedTable,
			})
			last = item.key
		}
		group := &result[len(result)-1]
		group.ColumnNames = append(group.ColumnNames, item.fk.ColumnName)
		group.ReferencedColumns = append(group.ReferencedColumns, item.fk.ReferencedColumn)
	}
	return result
}
