// Package scalars defines the GraphQL scalars for column kinds that the
// built-in Int, Float, String and Boolean cannot carry without loss.
package scalars

import (
	"math"
	"math/big"
	"strconv"

	"github.com/google/uuid"
	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"

	"relquery/internal/sqltype"
	"relquery/internal/value"
)

var (
	BigInt = graphql.NewScalar(graphql.ScalarConfig{
		Name:         "BigInt",
		Description:  "64-bit signed or unsigned integer serialized as a string.",
		Serialize:    integerText,
		ParseValue:   integerText,
		ParseLiteral: func(l ast.Value) interface{} { return parseLiteral(l, integerText) },
	})

	Decimal = kindScalar("Decimal", "Fixed-point decimal serialized as a string with its stored scale.", sqltype.Decimal)

	Date      = kindScalar("Date", "Calendar date serialized as YYYY-MM-DD.", sqltype.Date)
	Time      = kindScalar("Time", "Time of day serialized as HH:MM:SS[.fraction].", sqltype.Time)
	DateTime  = kindScalar("DateTime", "Date and time without zone serialized as YYYY-MM-DDTHH:MM:SS[.fraction].", sqltype.DateTime)
	Timestamp = kindScalar("Timestamp", "Instant serialized as RFC 3339.", sqltype.Timestamp)

	Bytes = kindScalar("Bytes", "Binary value serialized as standard base64.", sqltype.Bytes)
	JSON  = kindScalar("JSON", "Arbitrary JSON value serialized as a string.", sqltype.Json)

	UUID = graphql.NewScalar(graphql.ScalarConfig{
		Name:         "UUID",
		Description:  "UUID in canonical hyphenated form.",
		Serialize:    uuidText,
		ParseValue:   uuidText,
		ParseLiteral: func(l ast.Value) interface{} { return parseLiteral(l, uuidText) },
	})
)

// ForKind returns the scalar that carries values of kind.
func ForKind(kind sqltype.Kind) *graphql.Scalar {
	switch kind.GraphQLName() {
	case "Int":
		return graphql.Int
	case "BigInt":
		return BigInt
	case "Float":
		return graphql.Float
	case "Decimal":
		return Decimal
	case "Boolean":
		return graphql.Boolean
	case "Date":
		return Date
	case "Time":
		return Time
	case "DateTime":
		return DateTime
	case "Timestamp":
		return Timestamp
	case "UUID":
		return UUID
	case "Bytes":
		return Bytes
	case "JSON":
		return JSON
	default:
		return graphql.String
	}
}

// kindScalar builds a scalar whose wire form is the canonical text of a
// value of kind. Invalid input yields nil, which graphql-go reports as a
// type error.
func kindScalar(name, description string, kind sqltype.Kind) *graphql.Scalar {
	canonical := func(in interface{}) interface{} {
		if in == nil {
			return nil
		}
		v, err := value.Coerce(kind, in)
		if err != nil || v.IsNull() {
			return nil
		}
		return v.String()
	}
	return graphql.NewScalar(graphql.ScalarConfig{
		Name:         name,
		Description:  description,
		Serialize:    canonical,
		ParseValue:   canonical,
		ParseLiteral: func(l ast.Value) interface{} { return parseLiteral(l, canonical) },
	})
}

func parseLiteral(l ast.Value, parse func(interface{}) interface{}) interface{} {
	switch v := l.(type) {
	case *ast.StringValue:
		return parse(v.Value)
	case *ast.IntValue:
		return parse(v.Value)
	case *ast.FloatValue:
		return parse(v.Value)
	default:
		return nil
	}
}

// integerText accepts any integer in int64 or uint64 range, as a number or
// a numeric string, and returns its decimal text.
func integerText(in interface{}) interface{} {
	switch v := in.(type) {
	case int:
		return strconv.FormatInt(int64(v), 10)
	case int8:
		return strconv.FormatInt(int64(v), 10)
	case int16:
		return strconv.FormatInt(int64(v), 10)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint:
		return strconv.FormatUint(uint64(v), 10)
	case uint8:
		return strconv.FormatUint(uint64(v), 10)
	case uint16:
		return strconv.FormatUint(uint64(v), 10)
	case uint32:
		return strconv.FormatUint(uint64(v), 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) || v < math.MinInt64 || v >= math.MaxUint64 {
			return nil
		}
		n, _ := big.NewFloat(v).Int(nil)
		return n.String()
	case string:
		if _, err := strconv.ParseInt(v, 10, 64); err == nil {
			return v
		}
		if _, err := strconv.ParseUint(v, 10, 64); err == nil {
			return v
		}
		return nil
	case []byte:
		return integerText(string(v))
	default:
		return nil
	}
}

func uuidText(in interface{}) interface{} {
	var text string
	switch v := in.(type) {
	case string:
		text = v
	case []byte:
		if len(v) == 16 {
			id, err := uuid.FromBytes(v)
			if err != nil {
				return nil
			}
			return id.String()
		}
		text = string(v)
	case uuid.UUID:
		return v.String()
	default:
		return nil
	}
	id, err := uuid.Parse(text)
	if err != nil {
		return nil
	}
	return id.String()
}
