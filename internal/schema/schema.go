// Package schema models the entities exposed by the query layer: their typed
// columns, primary keys and relations. A Schema is built once at startup,
// either by introspection or from a YAML file, and is read-only afterwards.
package schema

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"relquery/internal/naming"
	"relquery/internal/sqltype"
)

// Cardinality is the shape of a relation's result.
type Cardinality string

const (
	// One resolves to a single related row or null.
	One Cardinality = "one"
	// Many resolves to a possibly empty list of related rows.
	Many Cardinality = "many"
)

// Column is a typed column of an entity.
type Column struct {
	Name     string       `yaml:"name"`
	Field    string       `yaml:"field,omitempty"`
	Kind     sqltype.Kind `yaml:"type"`
	Nullable bool         `yaml:"nullable,omitempty"`
	Unique   bool         `yaml:"unique,omitempty"`
}

// Relation joins an entity to a target entity on LocalColumn = RemoteColumn.
type Relation struct {
	Name         string      `yaml:"name,omitempty"`
	Target       string      `yaml:"target"`
	Cardinality  Cardinality `yaml:"cardinality"`
	LocalColumn  string      `yaml:"local_column"`
	RemoteColumn string      `yaml:"remote_column"`
}

// Entity is one table exposed as a GraphQL type.
type Entity struct {
	// Table is the SQL table name and the entity's identity.
	Table      string     `yaml:"table"`
	Name       string     `yaml:"name,omitempty"`
	Field      string     `yaml:"field,omitempty"`
	Columns    []Column   `yaml:"columns"`
	PrimaryKey []string   `yaml:"primary_key"`
	Relations  []Relation `yaml:"relations,omitempty"`

	columns   map[string]int
	fields    map[string]int
	relations map[string]int
}

// Schema is the set of entities.
type Schema struct {
	Entities []*Entity `yaml:"entities"`

	byTable map[string]*Entity
}

// Column returns the column with the given SQL name.
func (e *Entity) Column(name string) (Column, bool) {
	idx, ok := e.columns[name]
	if !ok {
		return Column{}, false
	}
	return e.Columns[idx], true
}

// ColumnByField returns the column exposed under a GraphQL field name.
func (e *Entity) ColumnByField(field string) (Column, bool) {
	idx, ok := e.fields[field]
	if !ok {
		return Column{}, false
	}
	return e.Columns[idx], true
}

// Relation returns the relation with the given field name.
func (e *Entity) Relation(name string) (Relation, bool) {
	idx, ok := e.relations[name]
	if !ok {
		return Relation{}, false
	}
	return e.Relations[idx], true
}

// IsUnique reports whether the listed columns identify a row: they contain
// the whole primary key or a single unique column.
func (e *Entity) IsUnique(columns []string) bool {
	if len(e.PrimaryKey) > 0 {
		covered := true
		for _, pk := range e.PrimaryKey {
			if !slices.Contains(columns, pk) {
				covered = false
				break
			}
		}
		if covered {
			return true
		}
	}
	for _, name := range columns {
		if col, ok := e.Column(name); ok && col.Unique && !col.Nullable {
			return true
		}
	}
	return false
}

// Entity returns an entity by table name, GraphQL type name or root field.
func (s *Schema) Entity(name string) (*Entity, bool) {
	if e, ok := s.byTable[name]; ok {
		return e, true
	}
	for _, e := range s.Entities {
		if e.Name == name || e.Field == name {
			return e, true
		}
	}
	return nil, false
}

// Finalize derives missing GraphQL names, builds lookup indexes and
// validates the schema. It must be called before the schema is used.
func (s *Schema) Finalize(namer *naming.Namer) error {
	if namer == nil {
		namer = naming.Default()
	}
	s.byTable = make(map[string]*Entity, len(s.Entities))
	for _, e := range s.Entities {
		if _, dup := s.byTable[e.Table]; dup {
			return fmt.Errorf("duplicate entity %q", e.Table)
		}
		s.byTable[e.Table] = e
	}

	for _, e := range s.Entities {
		if e.Name == "" {
			e.Name = namer.RegisterType(e.Table)
		}
		if e.Field == "" {
			e.Field = namer.RegisterQuery(e.Table)
		}
		for i := range e.Columns {
			if e.Columns[i].Field == "" {
				e.Columns[i].Field = namer.RegisterColumn(e.Name, e.Columns[i].Name)
			}
		}
	}

	for _, e := range s.Entities {
		for i := range e.Relations {
			rel := &e.Relations[i]
			if rel.Name != "" {
				continue
			}
			rel.Name = namer.RegisterRelation(e.Name, s.relationName(namer, e, *rel), e.Table+"."+rel.LocalColumn+"->"+rel.Target, rel.Cardinality == One)
		}
		e.reindex()
	}

	return s.Validate()
}

func (s *Schema) relationName(namer *naming.Namer, e *Entity, rel Relation) string {
	if rel.Cardinality == One {
		// The FK column sits on this side when the remote column is the
		// target's key; otherwise the target references us.
		if target, ok := s.byTable[rel.Target]; ok && slices.Equal(target.PrimaryKey, []string{rel.RemoteColumn}) {
			return namer.OneFieldName(rel.LocalColumn)
		}
		return namer.FieldName(rel.Target)
	}
	refs := 0
	if target, ok := s.byTable[rel.Target]; ok {
		for _, back := range target.Relations {
			if back.Target == e.Table && back.Cardinality == One {
				refs++
			}
		}
	}
	return namer.ManyFieldName(rel.Target, rel.RemoteColumn, refs <= 1)
}

func (e *Entity) reindex() {
	e.columns = make(map[string]int, len(e.Columns))
	e.fields = make(map[string]int, len(e.Columns))
	for i, col := range e.Columns {
		e.columns[col.Name] = i
		e.fields[col.Field] = i
	}
	e.relations = make(map[string]int, len(e.Relations))
	for i, rel := range e.Relations {
		e.relations[rel.Name] = i
	}
}

// Validate checks primary keys, relation targets and join columns.
func (s *Schema) Validate() error {
	var errs []error
	for _, e := range s.Entities {
		if len(e.Columns) == 0 {
			errs = append(errs, fmt.Errorf("entity %q has no columns", e.Table))
		}
		if len(e.PrimaryKey) == 0 {
			errs = append(errs, fmt.Errorf("entity %q has no primary key", e.Table))
		}
		for _, pk := range e.PrimaryKey {
			if _, ok := e.Column(pk); !ok {
				errs = append(errs, fmt.Errorf("entity %q: primary key column %q does not exist", e.Table, pk))
			}
		}
		for _, rel := range e.Relations {
			if rel.Cardinality != One && rel.Cardinality != Many {
				errs = append(errs, fmt.Errorf("entity %q relation %q: invalid cardinality %q", e.Table, rel.Name, rel.Cardinality))
			}
			if _, ok := e.Column(rel.LocalColumn); !ok {
				errs = append(errs, fmt.Errorf("entity %q relation %q: local column %q does not exist", e.Table, rel.Name, rel.LocalColumn))
			}
			target, ok := s.byTable[rel.Target]
			if !ok {
				errs = append(errs, fmt.Errorf("entity %q relation %q: unknown target %q", e.Table, rel.Name, rel.Target))
				continue
			}
			if _, ok := target.Column(rel.RemoteColumn); !ok {
				errs = append(errs, fmt.Errorf("entity %q relation %q: remote column %q does not exist on %q", e.Table, rel.Name, rel.RemoteColumn, rel.Target))
			}
		}
	}
	return errors.Join(errs...)
}

// Filter selects which tables are exposed. Patterns use path.Match syntax
// and match case-insensitively; exclusions win.
type Filter struct {
	Include []string `mapstructure:"include"`
	Exclude []string `mapstructure:"exclude"`
}

// Allows reports whether a table passes the filter.
func (f Filter) Allows(table string) bool {
	if matchesAny(table, f.Exclude) {
		return false
	}
	return len(f.Include) == 0 || matchesAny(table, f.Include)
}

// Apply drops filtered entities and any relation that targets them.
func (s *Schema) Apply(f Filter, logger *slog.Logger) {
	kept := s.Entities[:0]
	allowed := make(map[string]bool, len(s.Entities))
	for _, e := range s.Entities {
		if !f.Allows(e.Table) {
			if logger != nil {
				logger.Debug("table excluded by schema filter", slog.String("table", e.Table))
			}
			continue
		}
		kept = append(kept, e)
		allowed[e.Table] = true
	}
	s.Entities = kept
	for _, e := range s.Entities {
		e.Relations = slices.DeleteFunc(e.Relations, func(rel Relation) bool {
			return !allowed[rel.Target]
		})
	}
}

// TableNames lists entity tables in schema order.
func (s *Schema) TableNames() []string {
	names := make([]string, 0, len(s.Entities))
	for _, e := range s.Entities {
		names = append(names, e.Table)
	}
	return names
}

// String summarizes the schema for logs.
func (s *Schema) String() string {
	return fmt.Sprintf("schema(%s)", strings.Join(s.TableNames(), ","))
}
