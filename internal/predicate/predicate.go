// Package predicate defines the storage-agnostic boolean conditions that
// filters and cursor boundaries compile to. Stores either render them to SQL
// or evaluate them directly against rows.
package predicate

import (
	"regexp"
	"strings"

	"relquery/internal/value"
)

// Op is a binary comparison operator.
type Op string

const (
	Eq  Op = "eq"
	Ne  Op = "ne"
	Gt  Op = "gt"
	Gte Op = "gte"
	Lt  Op = "lt"
	Lte Op = "lte"
)

// Predicate is one node of the closed predicate AST. Only the types in this
// package implement it.
type Predicate interface {
	isPredicate()
}

// And is true when every child is true. An empty And is true.
type And []Predicate

// Or is true when any child is true. An empty Or is false.
type Or []Predicate

// Not negates its child.
type Not struct {
	P Predicate
}

// Cmp compares a column against a literal.
type Cmp struct {
	Column string
	Op     Op
	Value  value.Value
}

// In tests set membership. Negate turns it into NOT IN.
type In struct {
	Column string
	Values []value.Value
	Negate bool
}

// Null tests IS NULL, or IS NOT NULL when IsNull is false.
type Null struct {
	Column string
	IsNull bool
}

// Like matches a SQL LIKE pattern using % and _ wildcards.
type Like struct {
	Column  string
	Pattern string
	Negate  bool
}

// True matches every row.
type True struct{}

func (And) isPredicate()  {}
func (Or) isPredicate()   {}
func (Not) isPredicate()  {}
func (Cmp) isPredicate()  {}
func (In) isPredicate()   {}
func (Null) isPredicate() {}
func (Like) isPredicate() {}
func (True) isPredicate() {}

// Conj joins predicates with AND, dropping nil and True operands.
func Conj(preds ...Predicate) Predicate {
	out := make(And, 0, len(preds))
	for _, p := range preds {
		switch p := p.(type) {
		case nil, True:
			continue
		case And:
			out = append(out, p...)
		default:
			out = append(out, p)
		}
	}
	switch len(out) {
	case 0:
		return True{}
	case 1:
		return out[0]
	default:
		return out
	}
}

// IsTrivial reports whether p matches every row.
func IsTrivial(p Predicate) bool {
	switch p := p.(type) {
	case nil, True:
		return true
	case And:
		for _, child := range p {
			if !IsTrivial(child) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Row is the view of a row that Eval needs.
type Row interface {
	Get(column string) (value.Value, bool)
}

// MapRow adapts a column map to Row.
type MapRow map[string]value.Value

// Get returns the column value.
func (r MapRow) Get(column string) (value.Value, bool) {
	v, ok := r[column]
	return v, ok
}

// truth is SQL three-valued logic.
type truth int

const (
	unknown truth = iota
	no
	yes
)

func (t truth) not() truth {
	switch t {
	case yes:
		return no
	case no:
		return yes
	default:
		return unknown
	}
}

// Eval reports whether row satisfies p. Comparisons involving NULL are
// unknown, and unknown filters the row out just like WHERE does.
func Eval(p Predicate, row Row) bool {
	return eval(p, row) == yes
}

func eval(p Predicate, row Row) truth {
	switch p := p.(type) {
	case nil, True:
		return yes
	case And:
		result := yes
		for _, child := range p {
			switch eval(child, row) {
			case no:
				return no
			case unknown:
				result = unknown
			}
		}
		return result
	case Or:
		result := no
		for _, child := range p {
			switch eval(child, row) {
			case yes:
				return yes
			case unknown:
				result = unknown
			}
		}
		return result
	case Not:
		return eval(p.P, row).not()
	case Null:
		v, _ := row.Get(p.Column)
		if v.IsNull() == p.IsNull {
			return yes
		}
		return no
	case Cmp:
		v, _ := row.Get(p.Column)
		if v.IsNull() || p.Value.IsNull() {
			return unknown
		}
		return fromBool(compare(p.Op, value.Compare(v, p.Value)))
	case In:
		v, _ := row.Get(p.Column)
		if v.IsNull() {
			return unknown
		}
		result := no
		for _, candidate := range p.Values {
			if candidate.IsNull() {
				result = unknown
				continue
			}
			if value.Compare(v, candidate) == 0 {
				result = yes
				break
			}
		}
		if p.Negate {
			return result.not()
		}
		return result
	case Like:
		v, _ := row.Get(p.Column)
		if v.IsNull() {
			return unknown
		}
		matched := likePattern(p.Pattern).MatchString(v.String())
		return fromBool(matched != p.Negate)
	default:
		return no
	}
}

func fromBool(b bool) truth {
	if b {
		return yes
	}
	return no
}

func compare(op Op, c int) bool {
	switch op {
	case Eq:
		return c == 0
	case Ne:
		return c != 0
	case Gt:
		return c > 0
	case Gte:
		return c >= 0
	case Lt:
		return c < 0
	case Lte:
		return c <= 0
	}
	return false
}

func likePattern(pattern string) *regexp.Regexp {
	var b strings.Builder
	b.WriteString("(?s)^")
	escaped := false
	for _, r := range pattern {
		switch {
		case escaped:
			b.WriteString(regexp.QuoteMeta(string(r)))
			escaped = false
		case r == '\\':
			escaped = true
		case r == '%':
			b.WriteString(".*")
		case r == '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.MustCompile(b.String())
}

// Columns returns the distinct columns p references, in first-seen order.
func Columns(p Predicate) []string {
	seen := map[string]struct{}{}
	var out []string
	add := func(col string) {
		if _, ok := seen[col]; ok {
			return
		}
		seen[col] = struct{}{}
		out = append(out, col)
	}
	var walk func(Predicate)
	walk = func(p Predicate) {
		switch p := p.(type) {
		case And:
			for _, child := range p {
				walk(child)
			}
		case Or:
			for _, child := range p {
				walk(child)
			}
		case Not:
			walk(p.P)
		case Cmp:
			add(p.Column)
		case In:
			add(p.Column)
		case Null:
			add(p.Column)
		case Like:
			add(p.Column)
		}
	}
	walk(p)
	return out
}
