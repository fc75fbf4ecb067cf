// Package naming converts SQL table and column names into GraphQL names,
// including pluralization, reserved word handling and collision suffixes.
package naming

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/jinzhu/inflection"
)

// Config holds naming overrides.
type Config struct {
	// PluralOverrides maps singular -> custom plural.
	PluralOverrides map[string]string `mapstructure:"plural_overrides" yaml:"plural_overrides,omitempty"`
	// SingularOverrides maps plural -> custom singular.
	SingularOverrides map[string]string `mapstructure:"singular_overrides" yaml:"singular_overrides,omitempty"`
}

// Namer derives GraphQL names and tracks which names are already taken so
// that collisions get a deterministic suffix.
type Namer struct {
	config  Config
	logger  *slog.Logger
	types   map[string]string
	fields  map[string]map[string]string
	queries map[string]string
}

// New creates a Namer with the given configuration.
func New(cfg Config, logger *slog.Logger) *Namer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Namer{
		config:  cfg,
		logger:  logger,
		types:   make(map[string]string),
		fields:  make(map[string]map[string]string),
		queries: make(map[string]string),
	}
}

// Default returns a Namer without overrides.
func Default() *Namer {
	return New(Config{}, nil)
}

// Pluralize converts a singular word to its plural form.
func (n *Namer) Pluralize(word string) string {
	if override, ok := n.config.PluralOverrides[word]; ok {
		return override
	}
	return inflection.Plural(word)
}

// Singularize converts a plural word to its singular form.
func (n *Namer) Singularize(word string) string {
	if override, ok := n.config.SingularOverrides[word]; ok {
		return override
	}
	return inflection.Singular(word)
}

// TypeName converts a table name to a GraphQL type name.
// Example: "film_actor" -> "FilmActor"
func (n *Namer) TypeName(table string) string {
	return toPascalCase(table)
}

// FieldName converts a column or table name to a GraphQL field name.
// Example: "payment_date" -> "paymentDate"
func (n *Namer) FieldName(column string) string {
	return toCamelCase(column)
}

// OneFieldName names the to-one side of a foreign key after its column with
// the key suffix stripped.
// Example: "customer_id" -> "customer", "manager_staff_id" -> "managerStaff"
func (n *Namer) OneFieldName(fkColumn string) string {
	name := fkColumn
	for _, suffix := range []string{"_id", "_fk"} {
		if len(name) > len(suffix) && strings.HasSuffix(strings.ToLower(name), suffix) {
			name = name[:len(name)-len(suffix)]
			break
		}
	}
	return n.FieldName(name)
}

// ManyFieldName names the to-many side of a foreign key. When the source
// table references the target only once the pluralized table name is used;
// otherwise the FK column disambiguates.
// Example: ("payment", "customer_id", true) -> "payments"
// Example: ("film", "original_language_id", false) -> "originalLanguageFilms"
func (n *Namer) ManyFieldName(sourceTable, fkColumn string, onlyFK bool) string {
	plural := n.Pluralize(n.FieldName(sourceTable))
	if onlyFK {
		return plural
	}
	prefix := n.OneFieldName(fkColumn)
	if plural == "" {
		return prefix
	}
	return prefix + strings.ToUpper(plural[:1]) + plural[1:]
}

// RegisterType registers a table and returns its unique GraphQL type name.
func (n *Namer) RegisterType(table string) string {
	return n.resolve(n.safeTypeName(n.TypeName(table)), n.types, "table:"+table)
}

// RegisterQuery registers a root query field for a table.
func (n *Namer) RegisterQuery(table string) string {
	return n.resolve(n.safeFieldName(n.FieldName(table)), n.queries, "table:"+table)
}

// RegisterColumn registers a column field on a type. Columns are registered
// before relations so they keep their natural names.
func (n *Namer) RegisterColumn(typeName, column string) string {
	return n.resolve(n.safeFieldName(n.FieldName(column)), n.typeFields(typeName), "column:"+column)
}

// RegisterRelation registers a relation field on a type. A relation that
// collides with an existing field gets a Ref (to-one) or Rel (to-many) suffix.
func (n *Namer) RegisterRelation(typeName, fieldName, source string, toOne bool) string {
	fieldName = n.safeFieldName(fieldName)
	seen := n.typeFields(typeName)
	if _, taken := seen[fieldName]; taken {
		if toOne {
			fieldName += "Ref"
		} else {
			fieldName += "Rel"
		}
	}
	return n.resolve(fieldName, seen, "relation:"+source)
}

func (n *Namer) typeFields(typeName string) map[string]string {
	if n.fields[typeName] == nil {
		n.fields[typeName] = make(map[string]string)
	}
	return n.fields[typeName]
}

// resolve records name in seen, applying the next free numeric suffix on
// collision.
func (n *Namer) resolve(name string, seen map[string]string, source string) string {
	existing, taken := seen[name]
	if !taken {
		seen[name] = source
		return name
	}
	n.logger.Warn("naming collision detected, applying suffix",
		slog.String("name", name),
		slog.String("existing_source", existing),
		slog.String("new_source", source),
	)
	for i := 2; ; i++ {
		suffixed := fmt.Sprintf("%s%d", name, i)
		if _, taken := seen[suffixed]; !taken {
			seen[suffixed] = source
			return suffixed
		}
	}
}

func (n *Namer) safeTypeName(name string) string {
	if isReservedTypeName(name) {
		n.logger.Warn("GraphQL name conflicts with reserved word, auto-suffixed",
			slog.String("original", name),
			slog.String("renamed", name+"_"),
		)
		return name + "_"
	}
	return name
}

func (n *Namer) safeFieldName(name string) string {
	if strings.HasPrefix(name, "__") {
		n.logger.Warn("GraphQL name conflicts with reserved word, auto-suffixed",
			slog.String("original", name),
			slog.String("renamed", name+"_"),
		)
		return name + "_"
	}
	return name
}

var reservedTypeWords = map[string]bool{
	"query":        true,
	"mutation":     true,
	"subscription": true,
	"schema":       true,
	"int":          true,
	"float":        true,
	"string":       true,
	"boolean":      true,
	"id":           true,
	"pageinfo":     true,
}

// generated type suffixes; a table named "payment_filter" would otherwise
// shadow the filter input of "payment".
var reservedTypeSuffixes = []string{"Filter", "OrderBy", "Result", "Edge", "Pagination"}

func isReservedTypeName(name string) bool {
	if strings.HasPrefix(name, "__") || reservedTypeWords[strings.ToLower(name)] {
		return true
	}
	for _, suffix := range reservedTypeSuffixes {
		if len(name) > len(suffix) && strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

func toPascalCase(s string) string {
	parts := strings.Split(s, "_")
	for i, part := range parts {
		if len(part) > 0 {
			parts[i] = strings.ToUpper(part[:1]) + part[1:]
		}
	}
	return strings.Join(parts, "")
}

func toCamelCase(s string) string {
	parts := strings.Split(s, "_")
	for i := 1; i < len(parts); i++ {
		if len(parts[i]) > 0 {
			parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
		}
	}
	out := strings.Join(parts, "")
	if len(out) > 0 {
		out = strings.ToLower(out[:1]) + out[1:]
	}
	return out
}
