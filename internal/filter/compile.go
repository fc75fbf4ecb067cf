package filter

import (
	"fmt"

	"relquery/internal/predicate"
	"relquery/internal/schema"
	"relquery/internal/sqltype"
	"relquery/internal/value"
)

// Operator names accepted on the wire.
const (
	OpEq      = "eq"
	OpNe      = "ne"
	OpGt      = "gt"
	OpGte     = "gte"
	OpLt      = "lt"
	OpLte     = "lte"
	OpIsIn    = "isIn"
	OpIsNotIn = "isNotIn"
	OpIsNull  = "isNull"
	OpLike    = "like"
	OpNotLike = "notLike"
)

var comparisonOps = map[string]predicate.Op{
	OpEq:  predicate.Eq,
	OpNe:  predicate.Ne,
	OpGt:  predicate.Gt,
	OpGte: predicate.Gte,
	OpLt:  predicate.Lt,
	OpLte: predicate.Lte,
}

// Operators lists every operator name in display order.
var Operators = []string{OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpIsIn, OpIsNotIn, OpIsNull, OpLike, OpNotLike}

func knownOperator(op string) bool {
	switch op {
	case OpIsIn, OpIsNotIn, OpIsNull, OpLike, OpNotLike:
		return true
	}
	_, ok := comparisonOps[op]
	return ok
}

// OperatorsFor returns the operators valid for a column kind.
func OperatorsFor(kind sqltype.Kind) []string {
	out := []string{OpEq, OpNe}
	if kind.IsOrderable() {
		out = append(out, OpGt, OpGte, OpLt, OpLte)
	}
	out = append(out, OpIsIn, OpIsNotIn, OpIsNull)
	if kind.IsText() {
		out = append(out, OpLike, OpNotLike)
	}
	return out
}

// Compile validates expr against entity and lowers it to a predicate.
// A nil expr compiles to predicate.True.
func Compile(entity *schema.Entity, expr Expr) (predicate.Predicate, error) {
	return compile(entity, expr, "filters")
}

// CompileWire parses and compiles a wire filter in one step.
func CompileWire(entity *schema.Entity, wire map[string]any) (predicate.Predicate, error) {
	expr, err := Parse(wire)
	if err != nil {
		return nil, err
	}
	return Compile(entity, expr)
}

func compile(entity *schema.Entity, expr Expr, path string) (predicate.Predicate, error) {
	switch e := expr.(type) {
	case nil:
		return predicate.True{}, nil
	case All:
		children, err := compileChildren(entity, e, path+".and", keyAnd)
		if err != nil {
			return nil, err
		}
		return predicate.And(children), nil
	case Any:
		children, err := compileChildren(entity, e, path+".or", keyOr)
		if err != nil {
			return nil, err
		}
		return predicate.Or(children), nil
	case Fields:
		children := make([]predicate.Predicate, 0, len(e))
		for _, child := range e {
			p, err := compile(entity, child, path)
			if err != nil {
				return nil, err
			}
			children = append(children, p)
		}
		return predicate.Conj(children...), nil
	case Negation:
		if len(e) != 1 {
			return nil, newError(ErrNotArity, path+".not", "", fmt.Sprintf("got %d children", len(e)))
		}
		child, err := compile(entity, e[0], path+".not")
		if err != nil {
			return nil, err
		}
		return predicate.Not{P: child}, nil
	case Leaf:
		return compileLeaf(entity, e, path)
	default:
		return nil, newError(ErrShape, path, "", fmt.Sprintf("unsupported node %T", expr))
	}
}

func compileChildren(entity *schema.Entity, children []Expr, path, name string) ([]predicate.Predicate, error) {
	if len(children) == 0 {
		return nil, newError(ErrEmptyCombinator, path, "", name+" requires at least one child")
	}
	out := make([]predicate.Predicate, 0, len(children))
	for i, child := range children {
		p, err := compile(entity, child, fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func compileLeaf(entity *schema.Entity, leaf Leaf, path string) (predicate.Predicate, error) {
	path = path + "." + leaf.Field + "." + leaf.Op
	col, ok := entity.ColumnByField(leaf.Field)
	if !ok {
		col, ok = entity.Column(leaf.Field)
	}
	if !ok {
		return nil, newError(ErrUnknownColumn, path, leaf.Field, fmt.Sprintf("%s has no column %q", entity.Name, leaf.Field))
	}

	if op, ok := comparisonOps[leaf.Op]; ok {
		if op != predicate.Eq && op != predicate.Ne && !col.Kind.IsOrderable() {
			return nil, newError(ErrOperator, path, leaf.Field, fmt.Sprintf("%s is not supported on %s columns", leaf.Op, col.Kind))
		}
		if leaf.Literal == nil {
			return nil, newError(ErrTypeMismatch, path, leaf.Field, "null literal; use isNull")
		}
		v, err := coerce(col, leaf.Literal, path, leaf.Field)
		if err != nil {
			return nil, err
		}
		return predicate.Cmp{Column: col.Name, Op: op, Value: v}, nil
	}

	switch leaf.Op {
	case OpIsIn, OpIsNotIn:
		list, ok := leaf.Literal.([]any)
		if !ok {
			return nil, newError(ErrTypeMismatch, path, leaf.Field, leaf.Op+" expects a list")
		}
		if len(list) == 0 {
			return nil, newError(ErrTypeMismatch, path, leaf.Field, leaf.Op+" requires a non-empty list")
		}
		values := make([]value.Value, 0, len(list))
		for i, item := range list {
			if item == nil {
				return nil, newError(ErrTypeMismatch, fmt.Sprintf("%s[%d]", path, i), leaf.Field, "null literal; use isNull")
			}
			v, err := coerce(col, item, fmt.Sprintf("%s[%d]", path, i), leaf.Field)
			if err != nil {
				return nil, err
			}
			values = append(values, v)
		}
		return predicate.In{Column: col.Name, Values: values, Negate: leaf.Op == OpIsNotIn}, nil
	case OpIsNull:
		isNull, ok := leaf.Literal.(bool)
		if !ok {
			return nil, newError(ErrTypeMismatch, path, leaf.Field, "isNull expects a boolean")
		}
		return predicate.Null{Column: col.Name, IsNull: isNull}, nil
	case OpLike, OpNotLike:
		if !col.Kind.IsText() {
			return nil, newError(ErrOperator, path, leaf.Field, fmt.Sprintf("%s is not supported on %s columns", leaf.Op, col.Kind))
		}
		pattern, ok := leaf.Literal.(string)
		if !ok {
			return nil, newError(ErrTypeMismatch, path, leaf.Field, leaf.Op+" expects a string pattern")
		}
		return predicate.Like{Column: col.Name, Pattern: pattern, Negate: leaf.Op == OpNotLike}, nil
	default:
		return nil, newError(ErrOperator, path, leaf.Field, fmt.Sprintf("unknown operator %q", leaf.Op))
	}
}

func coerce(col schema.Column, literal any, path, field string) (value.Value, error) {
	if _, isBool := literal.(bool); isBool && col.Kind != sqltype.Bool {
		return value.Value{}, newError(ErrTypeMismatch, path, field, fmt.Sprintf("boolean literal for %s column", col.Kind))
	}
	v, err := value.Coerce(col.Kind, literal)
	if err != nil {
		return value.Value{}, newError(ErrTypeMismatch, path, field, err.Error())
	}
	return v, nil
}
