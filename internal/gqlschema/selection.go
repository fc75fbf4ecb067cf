package gqlschema

import (
	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"

	"relquery/internal/batch"
	"relquery/internal/schema"
)

// relationSelections collects the relation fields requested under nodes and
// edges.node of a root field. Fragments are expanded; directives are not
// evaluated, so a skipped relation is still loaded.
func relationSelections(sch *schema.Schema, entity *schema.Entity, info graphql.ResolveInfo) []batch.Selection {
	var out []batch.Selection
	for _, root := range info.FieldASTs {
		for _, field := range collectFields(root.SelectionSet, info.Fragments) {
			switch field.Name.Value {
			case "nodes":
				out = append(out, entitySelections(sch, entity, field.SelectionSet, info.Fragments)...)
			case "edges":
				for _, edgeField := range collectFields(field.SelectionSet, info.Fragments) {
					if edgeField.Name.Value == "node" {
						out = append(out, entitySelections(sch, entity, edgeField.SelectionSet, info.Fragments)...)
					}
				}
			}
		}
	}
	return out
}

func entitySelections(sch *schema.Schema, entity *schema.Entity, set *ast.SelectionSet, fragments map[string]ast.Definition) []batch.Selection {
	var out []batch.Selection
	for _, field := range collectFields(set, fragments) {
		rel, ok := entity.Relation(field.Name.Value)
		if !ok {
			continue
		}
		sel := batch.Selection{Relation: rel.Name}
		if target, ok := sch.Entity(rel.Target); ok {
			sel.Children = entitySelections(sch, target, field.SelectionSet, fragments)
		}
		out = append(out, sel)
	}
	return out
}

// collectFields flattens a selection set, following fragment spreads and
// inline fragments.
func collectFields(set *ast.SelectionSet, fragments map[string]ast.Definition) []*ast.Field {
	if set == nil {
		return nil
	}
	var out []*ast.Field
	for _, sel := range set.Selections {
		switch s := sel.(type) {
		case *ast.Field:
			out = append(out, s)
		case *ast.InlineFragment:
			out = append(out, collectFields(s.SelectionSet, fragments)...)
		case *ast.FragmentSpread:
			if def, ok := fragments[s.Name.Value].(*ast.FragmentDefinition); ok {
				out = append(out, collectFields(def.SelectionSet, fragments)...)
			}
		}
	}
	return out
}
