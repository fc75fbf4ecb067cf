// Package gqlschema exposes an engine as a GraphQL schema: one object type
// and one root query field per entity, with filter, ordering and pagination
// arguments. Relations selected anywhere under a root field are read from
// the query document and handed to the engine, which loads them in one batch
// per relation and page.
package gqlschema

import (
	"fmt"
	"log/slog"

	"github.com/graphql-go/graphql"

	"relquery/internal/engine"
	"relquery/internal/logging"
	"relquery/internal/scalars"
	"relquery/internal/schema"
)

// Builder assembles the GraphQL types for one engine. Types are created
// once and cached by name, so a Builder must not be shared across schemas.
type Builder struct {
	engine *engine.Engine
	schema *schema.Schema

	objects     map[string]*graphql.Object
	results     map[string]*graphql.Object
	edges       map[string]*graphql.Object
	filters     map[string]*graphql.InputObject
	kindFilters map[string]*graphql.InputObject
	orderBys    map[string]*graphql.InputObject

	pageInfo       *graphql.Object
	pagination     *graphql.InputObject
	orderDirection *graphql.Enum
}

// NewBuilder creates a builder for eng's schema.
func NewBuilder(eng *engine.Engine) *Builder {
	return &Builder{
		engine:      eng,
		schema:      eng.Schema(),
		objects:     make(map[string]*graphql.Object),
		results:     make(map[string]*graphql.Object),
		edges:       make(map[string]*graphql.Object),
		filters:     make(map[string]*graphql.InputObject),
		kindFilters: make(map[string]*graphql.InputObject),
		orderBys:    make(map[string]*graphql.InputObject),
	}
}

// Build constructs the executable schema for eng.
func Build(eng *engine.Engine) (graphql.Schema, error) {
	return NewBuilder(eng).Build()
}

// Build constructs the executable schema.
func (b *Builder) Build() (graphql.Schema, error) {
	queryFields := graphql.Fields{}
	for _, entity := range b.schema.Entities {
		queryFields[entity.Field] = b.rootField(entity)
	}

	if len(queryFields) == 0 {
		queryFields["_schema"] = &graphql.Field{
			Type: graphql.String,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return "No entities exposed", nil
			},
			Description: "Placeholder field when no entity is exposed",
		}
	}

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: graphql.NewObject(graphql.ObjectConfig{
			Name:   "Query",
			Fields: queryFields,
		}),
	})
}

func (b *Builder) rootField(entity *schema.Entity) *graphql.Field {
	args := graphql.FieldConfigArgument{
		"filters": &graphql.ArgumentConfig{
			Type:        b.filterInput(entity),
			Description: "Rows must match every condition; combine with and, or and not.",
		},
		"pagination": &graphql.ArgumentConfig{
			Type:        b.paginationInput(),
			Description: "Page-number or cursor pagination. Defaults to the first page.",
		},
	}
	if orderBy := b.orderByInput(entity); orderBy != nil {
		args["orderBy"] = &graphql.ArgumentConfig{
			Type:        graphql.NewList(graphql.NewNonNull(orderBy)),
			Description: "Sort terms in priority order. The primary key breaks ties.",
		}
	}

	return &graphql.Field{
		Type:        graphql.NewNonNull(b.resultType(entity)),
		Args:        args,
		Description: fmt.Sprintf("Query %s rows.", entity.Table),
		Resolve:     b.resolveEntity(entity),
	}
}

func (b *Builder) resolveEntity(entity *schema.Entity) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		req, err := requestFromArgs(entity, p.Args)
		if err != nil {
			return nil, newQueryError(err)
		}
		req.Relations = relationSelections(b.schema, entity, p.Info)

		result, err := b.engine.Execute(p.Context, req)
		if err != nil {
			if class := engine.Class(err); class == engine.ClassStorage || class == engine.ClassInternal {
				logging.FromContext(p.Context).Error("query failed",
					slog.String("entity", entity.Table),
					slog.String("error", err.Error()),
				)
			}
			return nil, newQueryError(err)
		}
		return result.Map(), nil
	}
}

func (b *Builder) objectType(entity *schema.Entity) *graphql.Object {
	if cached, ok := b.objects[entity.Name]; ok {
		return cached
	}
	// Fields are built lazily so that relations may refer back to types
	// still under construction.
	obj := graphql.NewObject(graphql.ObjectConfig{
		Name: entity.Name,
		Fields: graphql.FieldsThunk(func() graphql.Fields {
			return b.entityFields(entity)
		}),
	})
	b.objects[entity.Name] = obj
	return obj
}

func (b *Builder) entityFields(entity *schema.Entity) graphql.Fields {
	fields := graphql.Fields{}
	for _, col := range entity.Columns {
		var fieldType graphql.Output = scalars.ForKind(col.Kind)
		if !col.Nullable {
			fieldType = graphql.NewNonNull(fieldType)
		}
		fields[col.Field] = &graphql.Field{Type: fieldType}
	}
	for _, rel := range entity.Relations {
		target, ok := b.schema.Entity(rel.Target)
		if !ok {
			continue
		}
		targetType := b.objectType(target)
		if rel.Cardinality == schema.One {
			fields[rel.Name] = &graphql.Field{Type: targetType}
			continue
		}
		fields[rel.Name] = &graphql.Field{
			Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(targetType))),
		}
	}
	return fields
}

func (b *Builder) resultType(entity *schema.Entity) *graphql.Object {
	name := entity.Name + "Connection"
	if cached, ok := b.results[name]; ok {
		return cached
	}
	node := b.objectType(entity)
	result := graphql.NewObject(graphql.ObjectConfig{
		Name:        name,
		Description: fmt.Sprintf("A page of %s rows. Page mode fills nodes, pages and current; cursor mode fills edges and pageInfo.", entity.Name),
		Fields: graphql.Fields{
			"nodes":    &graphql.Field{Type: graphql.NewList(graphql.NewNonNull(node))},
			"pages":    &graphql.Field{Type: graphql.Int, Description: "Total number of pages for the filter."},
			"current":  &graphql.Field{Type: graphql.Int, Description: "The page returned."},
			"edges":    &graphql.Field{Type: graphql.NewList(graphql.NewNonNull(b.edgeType(entity)))},
			"pageInfo": &graphql.Field{Type: b.pageInfoType()},
		},
	})
	b.results[name] = result
	return result
}

func (b *Builder) edgeType(entity *schema.Entity) *graphql.Object {
	name := entity.Name + "Edge"
	if cached, ok := b.edges[name]; ok {
		return cached
	}
	edge := graphql.NewObject(graphql.ObjectConfig{
		Name: name,
		Fields: graphql.Fields{
			"node":   &graphql.Field{Type: graphql.NewNonNull(b.objectType(entity))},
			"cursor": &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
		},
	})
	b.edges[name] = edge
	return edge
}

func (b *Builder) pageInfoType() *graphql.Object {
	if b.pageInfo != nil {
		return b.pageInfo
	}
	b.pageInfo = graphql.NewObject(graphql.ObjectConfig{
		Name: "PageInfo",
		Fields: graphql.Fields{
			"hasPreviousPage": &graphql.Field{Type: graphql.NewNonNull(graphql.Boolean)},
			"hasNextPage":     &graphql.Field{Type: graphql.NewNonNull(graphql.Boolean)},
			"startCursor":     &graphql.Field{Type: graphql.String},
			"endCursor":       &graphql.Field{Type: graphql.String},
		},
	})
	return b.pageInfo
}
