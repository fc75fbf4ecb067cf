package planner

import (
	"fmt"
	"strings"

	"relquery/internal/predicate"
	"relquery/internal/schema"
	"relquery/internal/sqltype"
	"relquery/internal/value"
)

// OrderTerm is one column of an ordering key. Kind and Nullable are filled
// from the schema by NormalizeOrdering.
type OrderTerm struct {
	Column   string
	Desc     bool
	Kind     sqltype.Kind
	Nullable bool
}

// Direction returns "ASC" or "DESC".
func (t OrderTerm) Direction() string {
	if t.Desc {
		return "DESC"
	}
	return "ASC"
}

// OrderingKey is an ordered list of terms defining a total order over rows.
// NULL sorts before every value in ascending order and after every value in
// descending order.
type OrderingKey []OrderTerm

// Columns lists the key's column names.
func (k OrderingKey) Columns() []string {
	out := make([]string, len(k))
	for i, term := range k {
		out[i] = term.Column
	}
	return out
}

// Kinds lists the key's column kinds.
func (k OrderingKey) Kinds() []sqltype.Kind {
	out := make([]sqltype.Kind, len(k))
	for i, term := range k {
		out[i] = term.Kind
	}
	return out
}

// Reverse flips every term's direction.
func (k OrderingKey) Reverse() OrderingKey {
	out := make(OrderingKey, len(k))
	for i, term := range k {
		term.Desc = !term.Desc
		out[i] = term
	}
	return out
}

// ValuesOf extracts the key's values from a row, typed to the key's kinds.
func (k OrderingKey) ValuesOf(row predicate.Row) []value.Value {
	out := make([]value.Value, len(k))
	for i, term := range k {
		v, ok := row.Get(term.Column)
		if !ok {
			v = value.Null(term.Kind)
		}
		out[i] = v
	}
	return out
}

// Compare orders two rows by the key.
func (k OrderingKey) Compare(a, b predicate.Row) int {
	for _, term := range k {
		av, _ := a.Get(term.Column)
		bv, _ := b.Get(term.Column)
		c := value.Compare(av, bv)
		if term.Desc {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return 0
}

// String renders the key for logs and span attributes.
func (k OrderingKey) String() string {
	parts := make([]string, len(k))
	for i, term := range k {
		parts[i] = term.Column + " " + term.Direction()
	}
	return strings.Join(parts, ", ")
}

// OrderingError reports an invalid orderBy argument.
type OrderingError struct {
	Column  string
	Message string
}

func (e *OrderingError) Error() string {
	return fmt.Sprintf("invalid ordering on %q: %s", e.Column, e.Message)
}

// NormalizeOrdering validates the requested terms against entity and makes
// the ordering total: primary key columns not already present are appended
// ascending unless the requested columns are already unique. An empty
// request yields primary key ascending.
func NormalizeOrdering(entity *schema.Entity, requested []OrderTerm) (OrderingKey, error) {
	key := make(OrderingKey, 0, len(requested)+len(entity.PrimaryKey))
	seen := make(map[string]bool, len(requested))
	for _, term := range requested {
		col, ok := entity.Column(term.Column)
		if !ok {
			col, ok = entity.ColumnByField(term.Column)
		}
		if !ok {
			return nil, &OrderingError{Column: term.Column, Message: "unknown column"}
		}
		if !col.Kind.IsOrderable() && col.Kind != sqltype.Bool {
			return nil, &OrderingError{Column: term.Column, Message: fmt.Sprintf("%s columns cannot be ordered", col.Kind)}
		}
		if seen[col.Name] {
			return nil, &OrderingError{Column: term.Column, Message: "column listed twice"}
		}
		seen[col.Name] = true
		key = append(key, OrderTerm{Column: col.Name, Desc: term.Desc, Kind: col.Kind, Nullable: col.Nullable})
	}

	if len(key) > 0 && entity.IsUnique(key.Columns()) {
		return key, nil
	}
	for _, pk := range entity.PrimaryKey {
		if seen[pk] {
			continue
		}
		col, ok := entity.Column(pk)
		if !ok {
			return nil, &OrderingError{Column: pk, Message: "primary key column missing from schema"}
		}
		key = append(key, OrderTerm{Column: col.Name, Kind: col.Kind, Nullable: col.Nullable})
	}
	if len(key) == 0 {
		return nil, &OrderingError{Column: entity.Table, Message: "entity has no primary key"}
	}
	return key, nil
}
