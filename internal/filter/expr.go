// Package filter parses the wire filter format and compiles it against an
// entity into a storage-agnostic predicate.
package filter

import (
	"fmt"
	"sort"
)

// Expr is a parsed, not yet validated, filter tree.
type Expr interface {
	isExpr()
}

// All is an explicit "and" combinator.
type All []Expr

// Any is an explicit "or" combinator.
type Any []Expr

// Negation is a "not" combinator. It holds every child given on the wire so
// that arity can be reported during compilation.
type Negation []Expr

// Fields is the implicit conjunction of the keys of one filter object.
type Fields []Expr

// Leaf binds one field to one operator and its literal.
type Leaf struct {
	Field   string
	Op      string
	Literal any
}

func (All) isExpr()      {}
func (Any) isExpr()      {}
func (Negation) isExpr() {}
func (Fields) isExpr()   {}
func (Leaf) isExpr()     {}

const (
	keyAnd = "and"
	keyOr  = "or"
	keyNot = "not"
)

// Parse reads a wire filter: an object whose keys are field names or the
// combinators and, or, not. Field values are objects mapping operator names
// to literals. A nil or empty object parses to nil, which matches every row.
func Parse(wire map[string]any) (Expr, error) {
	return parseObject(wire, "filters")
}

func parseObject(obj map[string]any, path string) (Expr, error) {
	if len(obj) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(Fields, 0, len(keys))
	for _, key := range keys {
		expr, err := parseKey(key, obj[key], path+"."+key)
		if err != nil {
			return nil, err
		}
		out = append(out, expr)
	}
	if len(out) == 1 {
		return out[0], nil
	}
	return out, nil
}

func parseKey(key string, raw any, path string) (Expr, error) {
	switch key {
	case keyAnd, keyOr:
		list, ok := raw.([]any)
		if !ok {
			return nil, newError(ErrShape, path, "", fmt.Sprintf("%s expects a list of filter objects", key))
		}
		children := make([]Expr, 0, len(list))
		for i, item := range list {
			child, err := parseChild(item, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		}
		if key == keyAnd {
			return All(children), nil
		}
		return Any(children), nil
	case keyNot:
		if list, ok := raw.([]any); ok {
			children := make(Negation, 0, len(list))
			for i, item := range list {
				child, err := parseChild(item, fmt.Sprintf("%s[%d]", path, i))
				if err != nil {
					return nil, err
				}
				children = append(children, child)
			}
			return children, nil
		}
		child, err := parseChild(raw, path)
		if err != nil {
			return nil, err
		}
		return Negation{child}, nil
	default:
		ops, ok := raw.(map[string]any)
		if !ok {
			return nil, newError(ErrShape, path, key, "field filters must be an object of operators")
		}
		if len(ops) == 0 {
			return nil, newError(ErrOperator, path, key, "no operator given")
		}
		names := make([]string, 0, len(ops))
		for op := range ops {
			if !knownOperator(op) {
				return nil, newError(ErrOperator, path+"."+op, key, fmt.Sprintf("unknown operator %q", op))
			}
			names = append(names, op)
		}
		sort.Strings(names)
		if len(names) == 1 {
			return Leaf{Field: key, Op: names[0], Literal: ops[names[0]]}, nil
		}
		leaves := make(Fields, 0, len(names))
		for _, op := range names {
			leaves = append(leaves, Leaf{Field: key, Op: op, Literal: ops[op]})
		}
		return leaves, nil
	}
}

func parseChild(raw any, path string) (Expr, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, newError(ErrShape, path, "", "expected a filter object")
	}
	return parseObject(obj, path)
}
