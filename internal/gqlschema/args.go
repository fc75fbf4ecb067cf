package gqlschema

import (
	"relquery/internal/engine"
	"relquery/internal/planner"
	"relquery/internal/schema"
)

// requestFromArgs turns a root field's arguments into an engine request.
// Relations are filled in separately from the selection set.
func requestFromArgs(entity *schema.Entity, args map[string]interface{}) (engine.Request, error) {
	req := engine.Request{Entity: entity.Table}
	if f, ok := args["filters"].(map[string]interface{}); ok {
		req.Filter = f
	}
	if terms, ok := args["orderBy"].([]interface{}); ok {
		req.OrderBy = orderTerms(terms)
	}
	pagination, err := paginationFromArgs(args["pagination"])
	if err != nil {
		return engine.Request{}, err
	}
	req.Pagination = pagination
	return req, nil
}

func orderTerms(raw []interface{}) []planner.OrderTerm {
	terms := make([]planner.OrderTerm, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		column, _ := m["field"].(string)
		direction, _ := m["direction"].(string)
		terms = append(terms, planner.OrderTerm{Column: column, Desc: direction == "DESC"})
	}
	return terms
}

// paginationFromArgs reads PaginationInput. A nil request leaves the choice
// of the first page to the engine.
func paginationFromArgs(raw interface{}) (planner.Request, error) {
	args, _ := raw.(map[string]interface{})
	pages, hasPages := args["pages"].(map[string]interface{})
	cur, hasCursor := args["cursor"].(map[string]interface{})

	switch {
	case hasPages && hasCursor:
		return nil, &planner.PaginationError{Field: "pagination", Message: "give either pages or cursor, not both"}
	case hasCursor:
		return planner.CursorMode{
			Limit:    intArg(cur, "limit"),
			Cursor:   stringArg(cur, "cursor"),
			Backward: stringArg(cur, "direction") == directionBackward,
		}, nil
	case hasPages:
		return planner.PageMode{
			Page:  intArg(pages, "page"),
			Limit: intArg(pages, "limit"),
		}, nil
	default:
		return nil, nil
	}
}

func intArg(m map[string]interface{}, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func stringArg(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}
