// Package cursor encodes and decodes keyset pagination cursors.
//
// A cursor is the tuple of a row's ordering-column values. Each value is
// written as <Tag>[<n>]:<text>, where Tag names the scalar kind, text is the
// value's canonical form and n is the byte length of text; values are joined
// with ",". The length prefix makes any text safe, including text containing
// the separator, and the tag makes a cursor decodable without a schema.
package cursor

import (
	"fmt"
	"strconv"
	"strings"

	"relquery/internal/sqltype"
	"relquery/internal/value"
)

const (
	separator = ","
	nullTag   = "Null"
)

// ErrorKind classifies cursor failures.
type ErrorKind int

const (
	// Malformed means the string is not a cursor.
	Malformed ErrorKind = iota + 1
	// SchemaMismatch means the cursor does not fit the current ordering.
	SchemaMismatch
)

func (k ErrorKind) String() string {
	switch k {
	case Malformed:
		return "malformed"
	case SchemaMismatch:
		return "schema mismatch"
	default:
		return "unknown"
	}
}

// Error is returned for cursors that cannot be used. Both kinds are client
// errors.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid cursor (%s): %s", e.Kind, e.Message)
}

func malformed(format string, args ...any) *Error {
	return &Error{Kind: Malformed, Message: fmt.Sprintf(format, args...)}
}

// Encode builds a cursor from ordering values in ordering-key order.
func Encode(values []value.Value) string {
	var b strings.Builder
	for i, v := range values {
		if i > 0 {
			b.WriteString(separator)
		}
		tag := v.Kind().Tag()
		text := v.String()
		if v.IsNull() {
			tag, text = nullTag, ""
		}
		b.WriteString(tag)
		b.WriteByte('[')
		b.WriteString(strconv.Itoa(len(text)))
		b.WriteString("]:")
		b.WriteString(text)
	}
	return b.String()
}

// Decode parses a cursor back into typed values. It never panics; anything
// that does not match the format is a Malformed error.
func Decode(raw string) ([]value.Value, error) {
	if raw == "" {
		return nil, malformed("empty cursor")
	}

	var out []value.Value
	pos := 0
	for {
		open := strings.IndexByte(raw[pos:], '[')
		if open <= 0 {
			return nil, malformed("missing type tag at offset %d", pos)
		}
		tag := raw[pos : pos+open]
		pos += open + 1

		closing := strings.IndexByte(raw[pos:], ']')
		if closing <= 0 {
			return nil, malformed("missing length at offset %d", pos)
		}
		lengthText := raw[pos : pos+closing]
		for _, r := range lengthText {
			if r < '0' || r > '9' {
				return nil, malformed("invalid length %q", lengthText)
			}
		}
		n, err := strconv.Atoi(lengthText)
		if err != nil {
			return nil, malformed("invalid length %q", lengthText)
		}
		pos += closing + 1

		if pos >= len(raw) || raw[pos] != ':' {
			return nil, malformed("missing ':' after length at offset %d", pos)
		}
		pos++
		if n > len(raw)-pos {
			return nil, malformed("value length %d exceeds cursor", n)
		}
		text := raw[pos : pos+n]
		pos += n

		v, err := decodeValue(tag, text)
		if err != nil {
			return nil, err
		}
		out = append(out, v)

		if pos == len(raw) {
			return out, nil
		}
		if !strings.HasPrefix(raw[pos:], separator) {
			return nil, malformed("expected %q at offset %d", separator, pos)
		}
		pos += len(separator)
		if pos == len(raw) {
			return nil, malformed("trailing separator")
		}
	}
}

func decodeValue(tag, text string) (value.Value, error) {
	if tag == nullTag {
		if text != "" {
			return value.Value{}, malformed("null value carries text")
		}
		return value.Null(sqltype.String), nil
	}
	kind, ok := sqltype.ParseTag(tag)
	if !ok {
		return value.Value{}, malformed("unknown type tag %q", tag)
	}
	v, err := value.Parse(kind, text)
	if err != nil {
		return value.Value{}, malformed("%s value %q: %v", tag, text, err)
	}
	return v, nil
}

// Check validates decoded values against the kinds of the current ordering
// key and converts them to those kinds. A value tagged with a different
// integer width or signedness is accepted when it fits the column kind.
func Check(values []value.Value, kinds []sqltype.Kind) ([]value.Value, error) {
	if len(values) != len(kinds) {
		return nil, &Error{
			Kind:    SchemaMismatch,
			Message: fmt.Sprintf("cursor has %d values, ordering has %d columns", len(values), len(kinds)),
		}
	}
	out := make([]value.Value, len(values))
	for i, v := range values {
		if !v.IsNull() && !compatible(v.Kind(), kinds[i]) {
			return nil, &Error{
				Kind:    SchemaMismatch,
				Message: fmt.Sprintf("value %d is %s, ordering column is %s", i, v.Kind(), kinds[i]),
			}
		}
		converted, err := v.Convert(kinds[i])
		if err != nil {
			return nil, &Error{Kind: SchemaMismatch, Message: fmt.Sprintf("value %d: %v", i, err)}
		}
		out[i] = converted
	}
	return out, nil
}

func compatible(from, to sqltype.Kind) bool {
	switch {
	case from == to:
		return true
	case from.IsInteger():
		return to.IsNumeric()
	case from.IsNumeric():
		return to.IsNumeric() && !to.IsInteger()
	case from.IsTemporal():
		return to.IsTemporal()
	case from.IsText():
		return to.IsText()
	default:
		return false
	}
}
