// Package sqltype provides the shared mapping from SQL data types to scalar kinds.
// A kind decides how a column's values are parsed, compared, tagged in cursors
// and exposed through GraphQL.
package sqltype

import "strings"

// Kind is the scalar kind of a column or literal.
type Kind int

const (
	// String is the default kind for text and unknown SQL types.
	String Kind = iota
	TinyInt
	SmallInt
	Int
	BigInt
	TinyUnsigned
	SmallUnsigned
	Unsigned
	BigUnsigned
	Float
	Double
	// Decimal is fixed-point and keeps arbitrary precision.
	Decimal
	Bool
	Date
	Time
	DateTime
	Timestamp
	Uuid
	Bytes
	Json
)

var kindTags = map[Kind]string{
	String:        "String",
	TinyInt:       "TinyInt",
	SmallInt:      "SmallInt",
	Int:           "Int",
	BigInt:        "BigInt",
	TinyUnsigned:  "TinyUnsigned",
	SmallUnsigned: "SmallUnsigned",
	Unsigned:      "Unsigned",
	BigUnsigned:   "BigUnsigned",
	Float:         "Float",
	Double:        "Double",
	Decimal:       "Decimal",
	Bool:          "Bool",
	Date:          "Date",
	Time:          "Time",
	DateTime:      "DateTime",
	Timestamp:     "Timestamp",
	Uuid:          "Uuid",
	Bytes:         "Bytes",
	Json:          "Json",
}

var tagKinds = func() map[string]Kind {
	out := make(map[string]Kind, len(kindTags))
	for kind, tag := range kindTags {
		out[tag] = kind
	}
	return out
}()

// Tag returns the cursor type tag for the kind.
func (k Kind) Tag() string {
	if tag, ok := kindTags[k]; ok {
		return tag
	}
	return kindTags[String]
}

func (k Kind) String() string {
	return k.Tag()
}

// ParseTag resolves a cursor type tag back to its kind.
func ParseTag(tag string) (Kind, bool) {
	kind, ok := tagKinds[tag]
	return kind, ok
}

// MarshalText encodes the kind as its tag, so schema files carry readable
// kind names.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.Tag()), nil
}

// UnmarshalText accepts a kind tag or a SQL type name.
func (k *Kind) UnmarshalText(text []byte) error {
	if kind, ok := ParseTag(string(text)); ok {
		*k = kind
		return nil
	}
	*k = FromSQL(string(text), false)
	return nil
}

// FromSQL maps a SQL data type to a kind. Size specifiers like (10,2) are
// stripped and the input is case-insensitive. MySQL, PostgreSQL and SQLite
// spellings are all recognized; unsigned applies to MySQL integer types.
func FromSQL(dataType string, unsigned bool) Kind {
	t := strings.ToUpper(strings.TrimSpace(dataType))
	if idx := strings.Index(t, "("); idx != -1 {
		t = strings.TrimSpace(t[:idx])
	}
	if strings.HasSuffix(t, " UNSIGNED") {
		unsigned = true
		t = strings.TrimSuffix(t, " UNSIGNED")
	}

	switch t {
	case "TINYINT", "INT1":
		return pick(unsigned, TinyUnsigned, TinyInt)
	case "SMALLINT", "INT2", "SMALLSERIAL", "YEAR":
		return pick(unsigned, SmallUnsigned, SmallInt)
	case "MEDIUMINT", "INT", "INTEGER", "INT4", "SERIAL":
		return pick(unsigned, Unsigned, Int)
	case "BIGINT", "INT8", "BIGSERIAL":
		return pick(unsigned, BigUnsigned, BigInt)
	case "BIT":
		return BigUnsigned
	case "FLOAT", "REAL", "FLOAT4":
		return Float
	case "DOUBLE", "DOUBLE PRECISION", "FLOAT8":
		return Double
	case "DECIMAL", "NUMERIC", "MONEY":
		return Decimal
	case "BOOL", "BOOLEAN":
		return Bool
	case "DATE":
		return Date
	case "TIME", "TIME WITHOUT TIME ZONE", "TIME WITH TIME ZONE", "TIMETZ":
		return Time
	case "DATETIME", "TIMESTAMP WITHOUT TIME ZONE":
		return DateTime
	case "TIMESTAMP", "TIMESTAMPTZ", "TIMESTAMP WITH TIME ZONE":
		return Timestamp
	case "UUID":
		return Uuid
	case "BLOB", "TINYBLOB", "MEDIUMBLOB", "LONGBLOB", "BINARY", "VARBINARY", "BYTEA":
		return Bytes
	case "JSON", "JSONB":
		return Json
	default:
		return String
	}
}

func pick(unsigned bool, u, s Kind) Kind {
	if unsigned {
		return u
	}
	return s
}

// IsSignedInteger reports whether the kind is a signed integer.
func (k Kind) IsSignedInteger() bool {
	switch k {
	case TinyInt, SmallInt, Int, BigInt:
		return true
	}
	return false
}

// IsUnsigned reports whether the kind is an unsigned integer.
func (k Kind) IsUnsigned() bool {
	switch k {
	case TinyUnsigned, SmallUnsigned, Unsigned, BigUnsigned:
		return true
	}
	return false
}

// IsInteger reports whether the kind is any integer width.
func (k Kind) IsInteger() bool {
	return k.IsSignedInteger() || k.IsUnsigned()
}

// IsNumeric reports whether the kind holds numbers.
func (k Kind) IsNumeric() bool {
	return k.IsInteger() || k == Float || k == Double || k == Decimal
}

// IsTemporal reports whether the kind holds dates or times.
func (k Kind) IsTemporal() bool {
	switch k {
	case Date, Time, DateTime, Timestamp:
		return true
	}
	return false
}

// IsOrderable reports whether range comparisons (gt, gte, lt, lte) are
// meaningful for the kind.
func (k Kind) IsOrderable() bool {
	return k.IsNumeric() || k.IsTemporal() || k == String || k == Uuid
}

// IsText reports whether pattern matching applies to the kind.
func (k Kind) IsText() bool {
	return k == String || k == Uuid
}

// Bits returns the integer width for integer kinds and 0 otherwise.
func (k Kind) Bits() int {
	switch k {
	case TinyInt, TinyUnsigned:
		return 8
	case SmallInt, SmallUnsigned:
		return 16
	case Int, Unsigned:
		return 32
	case BigInt, BigUnsigned:
		return 64
	}
	return 0
}

// GraphQLName returns the GraphQL scalar used to expose the kind. Integers
// that fit in 32 bits use Int; wider integers and decimals travel as strings
// so that precision survives JSON.
func (k Kind) GraphQLName() string {
	switch {
	case k.IsInteger() && k.Bits() <= 32 && k != Unsigned:
		return "Int"
	case k.IsInteger():
		return "BigInt"
	case k == Float || k == Double:
		return "Float"
	case k == Decimal:
		return "Decimal"
	case k == Bool:
		return "Boolean"
	case k.IsTemporal():
		return k.Tag()
	case k == Uuid:
		return "UUID"
	case k == Bytes:
		return "Bytes"
	case k == Json:
		return "JSON"
	default:
		return "String"
	}
}

// FilterTypeName returns the filter input type name used in filter
// arguments. Kinds sharing a scalar share a filter type.
func (k Kind) FilterTypeName() string {
	return k.GraphQLName() + "Filter"
}
