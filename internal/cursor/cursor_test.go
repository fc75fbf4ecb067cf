package cursor

import (
	"errors"
	"testing"

	"relquery/internal/sqltype"
	"relquery/internal/value"
)

func mustParse(t *testing.T, kind sqltype.Kind, text string) value.Value {
	t.Helper()
	v, err := value.Parse(kind, text)
	if err != nil {
		t.Fatalf("parse %s %q: %v", kind, text, err)
	}
	return v
}

func TestEncode_ObservedFormat(t *testing.T) {
	tests := []struct {
		values []value.Value
		want   string
	}{
		{[]value.Value{value.Int(sqltype.Int, 342)}, "Int[3]:342"},
		{[]value.Value{value.Int(sqltype.Int, 5550)}, "Int[4]:5550"},
		{[]value.Value{value.Int(sqltype.Int, 15821)}, "Int[5]:15821"},
		{[]value.Value{value.Uint(sqltype.SmallUnsigned, 5550)}, "SmallUnsigned[4]:5550"},
		{
			[]value.Value{mustParse(t, sqltype.Decimal, "11.99"), value.Int(sqltype.Int, 342)},
			"Decimal[5]:11.99,Int[3]:342",
		},
		{[]value.Value{value.Null(sqltype.String), value.Int(sqltype.Int, 1)}, "Null[0]:,Int[1]:1"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := Encode(tt.values); got != tt.want {
				t.Errorf("Encode() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEncodeDecode_Roundtrip(t *testing.T) {
	tests := []struct {
		name   string
		values []value.Value
	}{
		{"single int", []value.Value{value.Int(sqltype.Int, 342)}},
		{"negative big int", []value.Value{value.Int(sqltype.BigInt, -9223372036854775808)}},
		{"unsigned max", []value.Value{value.Uint(sqltype.BigUnsigned, 18446744073709551615)}},
		{"text with separators", []value.Value{value.Text("a,b]:[c"), value.Int(sqltype.Int, 7)}},
		{"empty text", []value.Value{value.Text("")}},
		{"decimal and timestamp", []value.Value{
			mustParse(t, sqltype.Decimal, "11.9900"),
			mustParse(t, sqltype.Timestamp, "2005-07-29T03:58:49Z"),
		}},
		{"date", []value.Value{mustParse(t, sqltype.Date, "2006-02-15")}},
		{"bytes", []value.Value{mustParse(t, sqltype.Bytes, "LDo=")}},
		{"null", []value.Value{value.Null(sqltype.Int)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := Encode(tt.values)
			decoded, err := Decode(encoded)
			if err != nil {
				t.Fatalf("Decode(%q) error: %v", encoded, err)
			}
			if len(decoded) != len(tt.values) {
				t.Fatalf("got %d values, want %d", len(decoded), len(tt.values))
			}
			for i := range tt.values {
				if value.Compare(decoded[i], tt.values[i]) != 0 {
					t.Errorf("value %d: got %q, want %q", i, decoded[i].String(), tt.values[i].String())
				}
				if !tt.values[i].IsNull() && decoded[i].Kind() != tt.values[i].Kind() {
					t.Errorf("value %d: kind %s, want %s", i, decoded[i].Kind(), tt.values[i].Kind())
				}
			}
			if again := Encode(decoded); again != encoded && !tt.values[0].IsNull() {
				t.Errorf("re-encode = %q, want %q", again, encoded)
			}
		})
	}
}

func TestDecode_Malformed(t *testing.T) {
	inputs := []string{
		"",
		"garbage",
		"Int[3]342",
		"Int[3]:34",
		"Int[2]:342",
		"Int[x]:1",
		"Int[-1]:1",
		"Int[]:1",
		"[1]:1",
		"Widget[1]:1",
		"Int[3]:abc",
		"TinyInt[3]:999",
		"Int[1]:1,",
		"Int[1]:1;Int[1]:2",
		"Null[1]:x",
		"Int[99999999999999999999]:1",
	}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			_, err := Decode(in)
			var cerr *Error
			if !errors.As(err, &cerr) {
				t.Fatalf("Decode(%q) error = %v, want *Error", in, err)
			}
			if cerr.Kind != Malformed {
				t.Errorf("kind = %s, want malformed", cerr.Kind)
			}
		})
	}
}

func TestCheck(t *testing.T) {
	decoded, err := Decode("SmallUnsigned[4]:5550")
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}

	values, err := Check(decoded, []sqltype.Kind{sqltype.Int})
	if err != nil {
		t.Fatalf("Check error: %v", err)
	}
	if values[0].Kind() != sqltype.Int || values[0].String() != "5550" {
		t.Errorf("converted value = %s %q", values[0].Kind(), values[0].String())
	}

	nullFirst, err := Decode("Null[0]:,Int[1]:9")
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	values, err = Check(nullFirst, []sqltype.Kind{sqltype.String, sqltype.Int})
	if err != nil {
		t.Fatalf("Check error: %v", err)
	}
	if !values[0].IsNull() || values[0].Kind() != sqltype.String {
		t.Errorf("null value not typed to column: %v", values[0].Kind())
	}
}

func TestCheck_SchemaMismatch(t *testing.T) {
	tests := []struct {
		name   string
		cursor string
		kinds  []sqltype.Kind
	}{
		{"arity too long", "Decimal[5]:11.99,Int[3]:342", []sqltype.Kind{sqltype.Int}},
		{"arity too short", "Int[3]:342", []sqltype.Kind{sqltype.Decimal, sqltype.Int}},
		{"string for int", "String[3]:abc", []sqltype.Kind{sqltype.Int}},
		{"overflow after conversion", "Int[5]:70000", []sqltype.Kind{sqltype.SmallUnsigned}},
		{"decimal for int", "Decimal[4]:1.50", []sqltype.Kind{sqltype.Int}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoded, err := Decode(tt.cursor)
			if err != nil {
				t.Fatalf("Decode error: %v", err)
			}
			_, err = Check(decoded, tt.kinds)
			var cerr *Error
			if !errors.As(err, &cerr) || cerr.Kind != SchemaMismatch {
				t.Fatalf("Check error = %v, want schema mismatch", err)
			}
		})
	}
}
