package sqlstore

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"relquery/internal/predicate"
)

// condition renders a predicate as a squirrel condition. Placeholders are
// written as ? and converted by the statement builder.
func (d Dialect) condition(p predicate.Predicate) (sq.Sqlizer, error) {
	switch p := p.(type) {
	case nil, predicate.True:
		return sq.Expr("1=1"), nil
	case predicate.And:
		out := make(sq.And, 0, len(p))
		for _, child := range p {
			c, err := d.condition(child)
			if err != nil {
				return nil, err
			}
			out = append(out, c)
		}
		return out, nil
	case predicate.Or:
		out := make(sq.Or, 0, len(p))
		for _, child := range p {
			c, err := d.condition(child)
			if err != nil {
				return nil, err
			}
			out = append(out, c)
		}
		return out, nil
	case predicate.Not:
		inner, err := d.condition(p.P)
		if err != nil {
			return nil, err
		}
		return notExpr{inner: inner}, nil
	case predicate.Cmp:
		col := d.Quote(p.Column)
		arg := p.Value.Native()
		if raw, ok := arg.([]byte); ok {
			// squirrel would expand a byte slice into an IN list
			return sq.Expr(col+" "+sqlOperator(p.Op)+" ?", raw), nil
		}
		switch p.Op {
		case predicate.Eq:
			return sq.Eq{col: arg}, nil
		case predicate.Ne:
			return sq.NotEq{col: arg}, nil
		case predicate.Gt:
			return sq.Gt{col: arg}, nil
		case predicate.Gte:
			return sq.GtOrEq{col: arg}, nil
		case predicate.Lt:
			return sq.Lt{col: arg}, nil
		case predicate.Lte:
			return sq.LtOrEq{col: arg}, nil
		default:
			return nil, fmt.Errorf("unsupported comparison %q", p.Op)
		}
	case predicate.In:
		args := make([]any, len(p.Values))
		for i, v := range p.Values {
			args[i] = v.Native()
		}
		col := d.Quote(p.Column)
		if p.Negate {
			return sq.NotEq{col: args}, nil
		}
		return sq.Eq{col: args}, nil
	case predicate.Null:
		col := d.Quote(p.Column)
		if p.IsNull {
			return sq.Eq{col: nil}, nil
		}
		return sq.NotEq{col: nil}, nil
	case predicate.Like:
		col := d.Quote(p.Column)
		if p.Negate {
			return sq.NotLike{col: p.Pattern}, nil
		}
		return sq.Like{col: p.Pattern}, nil
	default:
		return nil, fmt.Errorf("unsupported predicate %T", p)
	}
}

func sqlOperator(op predicate.Op) string {
	switch op {
	case predicate.Ne:
		return "<>"
	case predicate.Gt:
		return ">"
	case predicate.Gte:
		return ">="
	case predicate.Lt:
		return "<"
	case predicate.Lte:
		return "<="
	default:
		return "="
	}
}

type notExpr struct {
	inner sq.Sqlizer
}

func (n notExpr) ToSql() (string, []any, error) {
	sql, args, err := n.inner.ToSql()
	if err != nil {
		return "", nil, err
	}
	return "NOT (" + sql + ")", args, nil
}
