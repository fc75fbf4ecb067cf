package planner

import (
	"relquery/internal/predicate"
	"relquery/internal/value"
)

// Boundary builds the predicate selecting rows strictly after the cursor
// tuple values in the order defined by key, or strictly before it when
// backward is set. It expands the lexicographic comparison term by term:
//
//	OR_i ( AND_{j<i} col_j = v_j  AND  col_i after v_i )
//
// so that each term can have its own direction and NULLs keep their place
// (first when ascending, last when descending).
func Boundary(key OrderingKey, values []value.Value, backward bool) predicate.Predicate {
	var disjuncts predicate.Or
	prefix := make([]predicate.Predicate, 0, len(key))
	for i, term := range key {
		v := values[i]
		if after := strictlyAfter(term, v, term.Desc != backward); after != nil {
			clause := make(predicate.And, 0, len(prefix)+1)
			clause = append(clause, prefix...)
			clause = append(clause, after)
			if len(clause) == 1 {
				disjuncts = append(disjuncts, after)
			} else {
				disjuncts = append(disjuncts, clause)
			}
		}
		prefix = append(prefix, equalTo(term, v))
	}
	if len(disjuncts) == 1 {
		return disjuncts[0]
	}
	return disjuncts
}

func equalTo(term OrderTerm, v value.Value) predicate.Predicate {
	if v.IsNull() {
		return predicate.Null{Column: term.Column, IsNull: true}
	}
	return predicate.Cmp{Column: term.Column, Op: predicate.Eq, Value: v}
}

// strictlyAfter returns the condition for rows that sort after v on one
// column, or nil when nothing can.
func strictlyAfter(term OrderTerm, v value.Value, desc bool) predicate.Predicate {
	if !desc {
		if v.IsNull() {
			if !term.Nullable {
				return predicate.True{}
			}
			return predicate.Null{Column: term.Column, IsNull: false}
		}
		return predicate.Cmp{Column: term.Column, Op: predicate.Gt, Value: v}
	}
	if v.IsNull() {
		return nil
	}
	less := predicate.Cmp{Column: term.Column, Op: predicate.Lt, Value: v}
	if !term.Nullable {
		return less
	}
	return predicate.Or{less, predicate.Null{Column: term.Column, IsNull: true}}
}
