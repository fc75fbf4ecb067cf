// Package value holds typed scalar values tagged with their sqltype kind.
// Values are what filter literals compile to, what rows carry after scanning,
// and what cursors encode.
package value

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"relquery/internal/sqltype"
)

// Value is an immutable typed scalar. The zero Value is a NULL string.
type Value struct {
	kind sqltype.Kind
	v    any
}

// Null returns a NULL value of the given kind.
func Null(kind sqltype.Kind) Value {
	return Value{kind: kind}
}

// Int returns a signed integer value.
func Int(kind sqltype.Kind, n int64) Value {
	return Value{kind: kind, v: n}
}

// Uint returns an unsigned integer value.
func Uint(kind sqltype.Kind, n uint64) Value {
	return Value{kind: kind, v: n}
}

// Text returns a string value.
func Text(s string) Value {
	return Value{kind: sqltype.String, v: s}
}

// Kind returns the scalar kind.
func (v Value) Kind() sqltype.Kind {
	return v.kind
}

// IsNull reports whether the value is NULL.
func (v Value) IsNull() bool {
	return v.v == nil
}

// Native returns the Go representation used for SQL arguments and JSON
// output. Decimals are returned as text with their stored scale.
func (v Value) Native() any {
	switch n := v.v.(type) {
	case nil:
		return nil
	case decimal.Decimal:
		return formatDecimal(n)
	default:
		return n
	}
}

// String returns the canonical text form. Parse(kind, v.String()) restores v.
func (v Value) String() string {
	switch n := v.v.(type) {
	case nil:
		return ""
	case int64:
		return strconv.FormatInt(n, 10)
	case uint64:
		return strconv.FormatUint(n, 10)
	case float64:
		bits := 64
		if v.kind == sqltype.Float {
			bits = 32
		}
		return strconv.FormatFloat(n, 'g', -1, bits)
	case decimal.Decimal:
		return formatDecimal(n)
	case bool:
		return strconv.FormatBool(n)
	case time.Time:
		return formatTime(v.kind, n)
	case []byte:
		return base64.StdEncoding.EncodeToString(n)
	case string:
		return n
	default:
		return fmt.Sprint(n)
	}
}

// Key returns a canonical identity used to deduplicate and join values.
// Integer values of different widths share a key when numerically equal, and
// decimals share a key regardless of scale.
func (v Value) Key() string {
	switch n := v.v.(type) {
	case nil:
		return "null"
	case int64, uint64:
		return "i:" + v.String()
	case decimal.Decimal:
		if n.IsInteger() {
			return "i:" + n.String()
		}
		return "n:" + n.String()
	}
	if v.kind.IsNumeric() {
		return "n:" + v.String()
	}
	return v.kind.Tag() + ":" + v.String()
}

// Convert re-types the value to kind, range-checking integer widths.
func (v Value) Convert(kind sqltype.Kind) (Value, error) {
	if v.kind == kind {
		return v, nil
	}
	if v.IsNull() {
		return Null(kind), nil
	}
	if raw, ok := v.v.([]byte); ok && kind != sqltype.Bytes {
		return Coerce(kind, string(raw))
	}
	return Coerce(kind, v.Native())
}

// Parse reads the canonical text form produced by String.
func Parse(kind sqltype.Kind, text string) (Value, error) {
	return Coerce(kind, text)
}

// Coerce converts a Go value (JSON literal, driver scan result, or text) into
// a Value of the requested kind.
func Coerce(kind sqltype.Kind, in any) (Value, error) {
	if in == nil {
		return Null(kind), nil
	}
	if v, ok := in.(Value); ok {
		return v.Convert(kind)
	}
	switch {
	case kind.IsSignedInteger():
		n, err := toInt64(in)
		if err != nil {
			return Value{}, err
		}
		if err := checkSignedRange(kind, n); err != nil {
			return Value{}, err
		}
		return Int(kind, n), nil
	case kind.IsUnsigned():
		n, err := toUint64(in)
		if err != nil {
			return Value{}, err
		}
		if bits := kind.Bits(); bits < 64 && n > (uint64(1)<<bits)-1 {
			return Value{}, fmt.Errorf("value %d overflows %s", n, kind)
		}
		return Uint(kind, n), nil
	case kind == sqltype.Float || kind == sqltype.Double:
		f, err := toFloat64(in)
		if err != nil {
			return Value{}, err
		}
		return Value{kind: kind, v: f}, nil
	case kind == sqltype.Decimal:
		d, err := toDecimal(in)
		if err != nil {
			return Value{}, err
		}
		return Value{kind: kind, v: d}, nil
	case kind == sqltype.Bool:
		b, err := toBool(in)
		if err != nil {
			return Value{}, err
		}
		return Value{kind: kind, v: b}, nil
	case kind.IsTemporal():
		t, err := toTime(kind, in)
		if err != nil {
			return Value{}, err
		}
		return Value{kind: kind, v: t}, nil
	case kind == sqltype.Bytes:
		b, err := toBytes(in)
		if err != nil {
			return Value{}, err
		}
		return Value{kind: kind, v: b}, nil
	case kind == sqltype.Json:
		return toJSON(in)
	default:
		s, err := toString(in)
		if err != nil {
			return Value{}, err
		}
		return Value{kind: kind, v: s}, nil
	}
}

func checkSignedRange(kind sqltype.Kind, n int64) error {
	bits := kind.Bits()
	if bits >= 64 {
		return nil
	}
	limit := int64(1) << (bits - 1)
	if n < -limit || n > limit-1 {
		return fmt.Errorf("value %d overflows %s", n, kind)
	}
	return nil
}

func toInt64(in any) (int64, error) {
	switch n := in.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("value %d overflows int64", n)
		}
		return int64(n), nil
	case uint:
		if uint64(n) > math.MaxInt64 {
			return 0, fmt.Errorf("value %d overflows int64", n)
		}
		return int64(n), nil
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || n > math.MaxInt64 || n < math.MinInt64 {
			return 0, fmt.Errorf("value %v is not an integer", n)
		}
		return int64(n), nil
	case float32:
		return toInt64(float64(n))
	case json.Number:
		return toInt64(string(n))
	case decimal.Decimal:
		if !n.IsInteger() {
			return 0, fmt.Errorf("value %s is not an integer", n.String())
		}
		return n.IntPart(), nil
	case []byte:
		return toInt64(string(n))
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid integer %q", n)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("cannot use %T as an integer", in)
	}
}

func toUint64(in any) (uint64, error) {
	switch n := in.(type) {
	case uint:
		return uint64(n), nil
	case uint8:
		return uint64(n), nil
	case uint16:
		return uint64(n), nil
	case uint32:
		return uint64(n), nil
	case uint64:
		return n, nil
	case []byte:
		return toUint64(string(n))
	case string:
		parsed, err := strconv.ParseUint(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid unsigned integer %q", n)
		}
		return parsed, nil
	case json.Number:
		return toUint64(string(n))
	default:
		signed, err := toInt64(in)
		if err != nil {
			return 0, err
		}
		if signed < 0 {
			return 0, fmt.Errorf("value %d is negative", signed)
		}
		return uint64(signed), nil
	}
}

func toFloat64(in any) (float64, error) {
	switch n := in.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case decimal.Decimal:
		f, _ := n.Float64()
		return f, nil
	case json.Number:
		return toFloat64(string(n))
	case []byte:
		return toFloat64(string(n))
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number %q", n)
		}
		return f, nil
	default:
		if u, ok := in.(uint64); ok {
			return float64(u), nil
		}
		i, err := toInt64(in)
		if err != nil {
			return 0, fmt.Errorf("cannot use %T as a number", in)
		}
		return float64(i), nil
	}
}

func toDecimal(in any) (decimal.Decimal, error) {
	switch n := in.(type) {
	case decimal.Decimal:
		return n, nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(n))
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("invalid decimal %q", n)
		}
		return d, nil
	case []byte:
		return toDecimal(string(n))
	case json.Number:
		return toDecimal(string(n))
	case float64:
		return decimal.NewFromFloat(n), nil
	case float32:
		return decimal.NewFromFloat32(n), nil
	case uint64:
		return decimal.NewFromUint64(n), nil
	default:
		i, err := toInt64(in)
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("cannot use %T as a decimal", in)
		}
		return decimal.NewFromInt(i), nil
	}
}

func toBool(in any) (bool, error) {
	switch b := in.(type) {
	case bool:
		return b, nil
	case []byte:
		return toBool(string(b))
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		if err != nil {
			return false, fmt.Errorf("invalid boolean %q", b)
		}
		return parsed, nil
	default:
		i, err := toInt64(in)
		if err != nil {
			return false, fmt.Errorf("cannot use %T as a boolean", in)
		}
		return i != 0, nil
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
	"15:04:05.999999999",
}

func toTime(kind sqltype.Kind, in any) (time.Time, error) {
	switch t := in.(type) {
	case time.Time:
		return t, nil
	case []byte:
		return toTime(kind, string(t))
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, nil
			}
		}
		return time.Time{}, fmt.Errorf("invalid %s %q", kind, t)
	default:
		return time.Time{}, fmt.Errorf("cannot use %T as %s", in, kind)
	}
}

func formatTime(kind sqltype.Kind, t time.Time) string {
	switch kind {
	case sqltype.Date:
		return t.Format("2006-01-02")
	case sqltype.Time:
		return t.Format("15:04:05.999999999")
	case sqltype.DateTime:
		return t.Format("2006-01-02T15:04:05.999999999")
	default:
		return t.Format(time.RFC3339Nano)
	}
}

func formatDecimal(d decimal.Decimal) string {
	if exp := d.Exponent(); exp < 0 {
		return d.StringFixed(-exp)
	}
	return d.String()
}

func toBytes(in any) ([]byte, error) {
	switch b := in.(type) {
	case []byte:
		out := make([]byte, len(b))
		copy(out, b)
		return out, nil
	case string:
		decoded, err := base64.StdEncoding.DecodeString(b)
		if err != nil {
			return nil, fmt.Errorf("bytes must be base64 encoded")
		}
		return decoded, nil
	default:
		return nil, fmt.Errorf("cannot use %T as bytes", in)
	}
}

func toString(in any) (string, error) {
	switch s := in.(type) {
	case string:
		return s, nil
	case []byte:
		return string(s), nil
	case fmt.Stringer:
		return s.String(), nil
	default:
		return "", fmt.Errorf("cannot use %T as a string", in)
	}
}

func toJSON(in any) (Value, error) {
	switch s := in.(type) {
	case string:
		return Value{kind: sqltype.Json, v: s}, nil
	case []byte:
		return Value{kind: sqltype.Json, v: string(s)}, nil
	default:
		data, err := json.Marshal(in)
		if err != nil {
			return Value{}, err
		}
		return Value{kind: sqltype.Json, v: string(data)}, nil
	}
}

// Compare orders two values. NULL sorts before every non-NULL value.
// Values of unrelated kinds compare by their canonical text.
func Compare(a, b Value) int {
	switch {
	case a.IsNull() && b.IsNull():
		return 0
	case a.IsNull():
		return -1
	case b.IsNull():
		return 1
	}

	if a.kind.IsNumeric() && b.kind.IsNumeric() {
		return compareNumeric(a, b)
	}

	switch x := a.v.(type) {
	case time.Time:
		if y, ok := b.v.(time.Time); ok {
			return x.Compare(y)
		}
	case bool:
		if y, ok := b.v.(bool); ok {
			switch {
			case x == y:
				return 0
			case !x:
				return -1
			default:
				return 1
			}
		}
	case []byte:
		if y, ok := b.v.([]byte); ok {
			return bytes.Compare(x, y)
		}
	}
	return strings.Compare(a.String(), b.String())
}

func compareNumeric(a, b Value) int {
	switch x := a.v.(type) {
	case int64:
		switch y := b.v.(type) {
		case int64:
			return cmpOrdered(x, y)
		case uint64:
			if x < 0 {
				return -1
			}
			return cmpOrdered(uint64(x), y)
		}
	case uint64:
		switch y := b.v.(type) {
		case uint64:
			return cmpOrdered(x, y)
		case int64:
			if y < 0 {
				return 1
			}
			return cmpOrdered(x, uint64(y))
		}
	case float64:
		if y, ok := b.v.(float64); ok {
			return cmpOrdered(x, y)
		}
	}
	da, errA := toDecimal(a.v)
	db, errB := toDecimal(b.v)
	if errA != nil || errB != nil {
		return strings.Compare(a.String(), b.String())
	}
	return da.Cmp(db)
}

func cmpOrdered[T int64 | uint64 | float64](x, y T) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	default:
		return 0
	}
}

// Equal reports whether two non-NULL values compare equal.
func Equal(a, b Value) bool {
	if a.IsNull() || b.IsNull() {
		return false
	}
	return Compare(a, b) == 0
}
