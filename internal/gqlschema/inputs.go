package gqlschema

import (
	"fmt"

	"github.com/graphql-go/graphql"

	"relquery/internal/filter"
	"relquery/internal/scalars"
	"relquery/internal/schema"
	"relquery/internal/sqltype"
)

const (
	directionForward  = "forward"
	directionBackward = "backward"
)

// filterInput returns the <Entity>Filter input: one field per filterable
// column plus the and, or and not combinators.
func (b *Builder) filterInput(entity *schema.Entity) *graphql.InputObject {
	name := entity.Name + "Filter"
	if cached, ok := b.filters[name]; ok {
		return cached
	}
	var input *graphql.InputObject
	input = graphql.NewInputObject(graphql.InputObjectConfig{
		Name: name,
		Fields: graphql.InputObjectConfigFieldMapThunk(func() graphql.InputObjectConfigFieldMap {
			fields := graphql.InputObjectConfigFieldMap{}
			for _, col := range entity.Columns {
				if col.Kind == sqltype.Json {
					continue
				}
				fields[col.Field] = &graphql.InputObjectFieldConfig{Type: b.kindFilter(col.Kind)}
			}
			fields["and"] = &graphql.InputObjectFieldConfig{
				Type:        graphql.NewList(graphql.NewNonNull(input)),
				Description: "Every nested filter must match.",
			}
			fields["or"] = &graphql.InputObjectFieldConfig{
				Type:        graphql.NewList(graphql.NewNonNull(input)),
				Description: "At least one nested filter must match.",
			}
			fields["not"] = &graphql.InputObjectFieldConfig{
				Type:        input,
				Description: "The nested filter must not match.",
			}
			return fields
		}),
	})
	b.filters[name] = input
	return input
}

// kindFilter returns the operator input shared by every column of a kind,
// e.g. IntFilter{eq, ne, gt, ..., isNull}.
func (b *Builder) kindFilter(kind sqltype.Kind) *graphql.InputObject {
	name := kind.FilterTypeName()
	if cached, ok := b.kindFilters[name]; ok {
		return cached
	}
	scalar := scalars.ForKind(kind)
	fields := graphql.InputObjectConfigFieldMap{}
	for _, op := range filter.OperatorsFor(kind) {
		var t graphql.Input
		switch op {
		case filter.OpIsIn, filter.OpIsNotIn:
			t = graphql.NewList(graphql.NewNonNull(scalar))
		case filter.OpIsNull:
			t = graphql.Boolean
		case filter.OpLike, filter.OpNotLike:
			t = graphql.String
		default:
			t = scalar
		}
		fields[op] = &graphql.InputObjectFieldConfig{Type: t}
	}
	input := graphql.NewInputObject(graphql.InputObjectConfig{
		Name:        name,
		Description: fmt.Sprintf("Conditions on a %s value. All given operators must hold.", scalar.Name()),
		Fields:      fields,
	})
	b.kindFilters[name] = input
	return input
}

// orderByInput returns <Entity>OrderBy, or nil when no column can be ordered.
func (b *Builder) orderByInput(entity *schema.Entity) *graphql.InputObject {
	name := entity.Name + "OrderBy"
	if cached, ok := b.orderBys[name]; ok {
		return cached
	}
	values := graphql.EnumValueConfigMap{}
	for _, col := range entity.Columns {
		if !col.Kind.IsOrderable() && col.Kind != sqltype.Bool {
			continue
		}
		values[col.Field] = &graphql.EnumValueConfig{Value: col.Name}
	}
	if len(values) == 0 {
		b.orderBys[name] = nil
		return nil
	}
	fieldEnum := graphql.NewEnum(graphql.EnumConfig{
		Name:   entity.Name + "OrderField",
		Values: values,
	})
	input := graphql.NewInputObject(graphql.InputObjectConfig{
		Name: name,
		Fields: graphql.InputObjectConfigFieldMap{
			"field": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(fieldEnum)},
			"direction": &graphql.InputObjectFieldConfig{
				Type:         b.orderDirectionEnum(),
				DefaultValue: "ASC",
			},
		},
	})
	b.orderBys[name] = input
	return input
}

func (b *Builder) orderDirectionEnum() *graphql.Enum {
	if b.orderDirection != nil {
		return b.orderDirection
	}
	b.orderDirection = graphql.NewEnum(graphql.EnumConfig{
		Name: "OrderDirection",
		Values: graphql.EnumValueConfigMap{
			"ASC":  &graphql.EnumValueConfig{Value: "ASC"},
			"DESC": &graphql.EnumValueConfig{Value: "DESC"},
		},
	})
	return b.orderDirection
}

// paginationInput returns PaginationInput{pages, cursor}. Exactly one of the
// two may be given; neither means the first page.
func (b *Builder) paginationInput() *graphql.InputObject {
	if b.pagination != nil {
		return b.pagination
	}
	limit := b.engine.DefaultLimit()
	pages := graphql.NewInputObject(graphql.InputObjectConfig{
		Name: "PageInput",
		Fields: graphql.InputObjectConfigFieldMap{
			"page": &graphql.InputObjectFieldConfig{
				Type:         graphql.Int,
				DefaultValue: 1,
				Description:  "1-based page number.",
			},
			"limit": &graphql.InputObjectFieldConfig{
				Type:         graphql.Int,
				DefaultValue: limit,
				Description:  "Rows per page.",
			},
		},
	})
	direction := graphql.NewEnum(graphql.EnumConfig{
		Name: "PaginationDirection",
		Values: graphql.EnumValueConfigMap{
			"FORWARD":  &graphql.EnumValueConfig{Value: directionForward},
			"BACKWARD": &graphql.EnumValueConfig{Value: directionBackward},
		},
	})
	cursorInput := graphql.NewInputObject(graphql.InputObjectConfig{
		Name: "CursorInput",
		Fields: graphql.InputObjectConfigFieldMap{
			"limit": &graphql.InputObjectFieldConfig{
				Type:         graphql.Int,
				DefaultValue: limit,
			},
			"cursor": &graphql.InputObjectFieldConfig{
				Type:        graphql.String,
				Description: "Exclusive boundary from a previous startCursor or endCursor.",
			},
			"direction": &graphql.InputObjectFieldConfig{
				Type:         direction,
				DefaultValue: directionForward,
			},
		},
	})
	b.pagination = graphql.NewInputObject(graphql.InputObjectConfig{
		Name: "PaginationInput",
		Fields: graphql.InputObjectConfigFieldMap{
			"pages":  &graphql.InputObjectFieldConfig{Type: pages},
			"cursor": &graphql.InputObjectFieldConfig{Type: cursorInput},
		},
	})
	return b.pagination
}
