package sqltype

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromSQL_IntegerWidths(t *testing.T) {
	tests := []struct {
		sqlType  string
		unsigned bool
		want     Kind
	}{
		{"tinyint", false, TinyInt},
		{"TINYINT(1)", true, TinyUnsigned},
		{"smallint", false, SmallInt},
		{"smallint unsigned", false, SmallUnsigned},
		{"SMALLINT", true, SmallUnsigned},
		{"int", false, Int},
		{"integer", false, Int},
		{"mediumint", true, Unsigned},
		{"int4", false, Int},
		{"serial", false, Int},
		{"bigint", false, BigInt},
		{"bigint(20) unsigned", false, BigUnsigned},
		{"int8", false, BigInt},
	}

	for _, tt := range tests {
		t.Run(tt.sqlType, func(t *testing.T) {
			assert.Equal(t, tt.want, FromSQL(tt.sqlType, tt.unsigned))
		})
	}
}

func TestFromSQL_OtherKinds(t *testing.T) {
	tests := map[string]Kind{
		"decimal(5,2)":                Decimal,
		"numeric":                     Decimal,
		"double precision":            Double,
		"real":                        Float,
		"boolean":                     Bool,
		"date":                        Date,
		"timestamp without time zone": DateTime,
		"timestamptz":                 Timestamp,
		"datetime":                    DateTime,
		"uuid":                        Uuid,
		"bytea":                       Bytes,
		"jsonb":                       Json,
		"varchar(255)":                String,
		"character varying":           String,
		"mpaa_rating":                 String,
	}
	for sqlType, want := range tests {
		t.Run(sqlType, func(t *testing.T) {
			assert.Equal(t, want, FromSQL(sqlType, false))
		})
	}
}

func TestTagRoundTrip(t *testing.T) {
	for kind := String; kind <= Json; kind++ {
		tag := kind.Tag()
		got, ok := ParseTag(tag)
		assert.True(t, ok, tag)
		assert.Equal(t, kind, got)
	}

	_, ok := ParseTag("Nope")
	assert.False(t, ok)
	assert.Equal(t, "SmallUnsigned", SmallUnsigned.Tag())
	assert.Equal(t, "Int", Int.Tag())
}

func TestKindPredicates(t *testing.T) {
	assert.True(t, Decimal.IsNumeric())
	assert.True(t, Decimal.IsOrderable())
	assert.False(t, Decimal.IsInteger())
	assert.True(t, SmallUnsigned.IsUnsigned())
	assert.False(t, SmallUnsigned.IsSignedInteger())
	assert.True(t, Timestamp.IsTemporal())
	assert.True(t, String.IsOrderable())
	assert.False(t, Bool.IsOrderable())
	assert.False(t, Json.IsOrderable())
	assert.False(t, Bytes.IsOrderable())
	assert.Equal(t, 16, SmallUnsigned.Bits())
	assert.Equal(t, 0, Decimal.Bits())
}

func TestGraphQLNames(t *testing.T) {
	assert.Equal(t, "Int", SmallUnsigned.GraphQLName())
	assert.Equal(t, "Int", Int.GraphQLName())
	assert.Equal(t, "BigInt", BigInt.GraphQLName())
	assert.Equal(t, "BigInt", Unsigned.GraphQLName())
	assert.Equal(t, "Decimal", Decimal.GraphQLName())
	assert.Equal(t, "Timestamp", Timestamp.GraphQLName())
	assert.Equal(t, "UUID", Uuid.GraphQLName())
	assert.Equal(t, "Float", Double.GraphQLName())
	assert.Equal(t, "Boolean", Bool.GraphQLName())

	assert.Equal(t, "IntFilter", Int.FilterTypeName())
	assert.Equal(t, "BigIntFilter", BigUnsigned.FilterTypeName())
	assert.Equal(t, "DecimalFilter", Decimal.FilterTypeName())
	assert.Equal(t, "DateFilter", Date.FilterTypeName())
	assert.Equal(t, "UUIDFilter", Uuid.FilterTypeName())
	assert.Equal(t, "StringFilter", String.FilterTypeName())
}
