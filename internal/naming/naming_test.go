package naming

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypeAndFieldNames(t *testing.T) {
	namer := Default()

	tests := []struct {
		input     string
		typeName  string
		fieldName string
	}{
		{"payment", "Payment", "payment"},
		{"film_actor", "FilmActor", "filmActor"},
		{"payment_date", "PaymentDate", "paymentDate"},
		{"api_v2_key", "ApiV2Key", "apiV2Key"},
		{"", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.typeName, namer.TypeName(tt.input))
			assert.Equal(t, tt.fieldName, namer.FieldName(tt.input))
		})
	}
}

func TestRelationFieldNames(t *testing.T) {
	namer := Default()

	assert.Equal(t, "customer", namer.OneFieldName("customer_id"))
	assert.Equal(t, "managerStaff", namer.OneFieldName("manager_staff_id"))
	assert.Equal(t, "owner", namer.OneFieldName("owner_fk"))
	assert.Equal(t, "id", namer.OneFieldName("id"))

	assert.Equal(t, "payments", namer.ManyFieldName("payment", "customer_id", true))
	assert.Equal(t, "originalLanguageFilms", namer.ManyFieldName("film", "original_language_id", false))
}

func TestPluralOverrides(t *testing.T) {
	namer := New(Config{
		PluralOverrides:   map[string]string{"staff": "staffMembers"},
		SingularOverrides: map[string]string{"data": "datum"},
	}, nil)

	assert.Equal(t, "staffMembers", namer.Pluralize("staff"))
	assert.Equal(t, "datum", namer.Singularize("data"))
	assert.Equal(t, "customers", namer.Pluralize("customer"))
	assert.Equal(t, "rentals", namer.ManyFieldName("rental", "staff_id", true))
}

func TestRegisterCollisions(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	namer := New(Config{}, logger)

	assert.Equal(t, "Store", namer.RegisterType("store"))
	assert.Equal(t, "Store2", namer.RegisterType("Store"))
	assert.Contains(t, buf.String(), "naming collision detected")

	assert.Equal(t, "address", namer.RegisterColumn("Store", "address"))
	assert.Equal(t, "addressRef", namer.RegisterRelation("Store", "address", "address_id", true))
	assert.Equal(t, "staffs", namer.RegisterRelation("Store", "staffs", "staff.store_id", false))
	assert.Equal(t, "staffsRel", namer.RegisterRelation("Store", "staffs", "staff.other_id", false))

	assert.Equal(t, "store", namer.RegisterQuery("store"))
}

func TestReservedNames(t *testing.T) {
	namer := Default()

	assert.Equal(t, "Query_", namer.RegisterType("query"))
	assert.Equal(t, "PaymentFilter_", namer.RegisterType("payment_filter"))
	assert.Equal(t, "Filter", namer.RegisterType("filter"))
}
