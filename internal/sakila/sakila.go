// Package sakila provides a small fixture modeled on the Sakila sample
// database: stores, staff, customers and payments with the relations between
// them. Tests and the demo server use it with the in-memory store.
package sakila

import (
	"fmt"
	"slices"
	"strings"

	"relquery/internal/schema"
	"relquery/internal/sqltype"
	"relquery/internal/store"
	"relquery/internal/value"
)

const schemaYAML = `
entities:
  - table: store
    columns:
      - {name: store_id, type: TinyUnsigned}
      - {name: manager_staff_id, type: TinyUnsigned, unique: true}
      - {name: last_update, type: Timestamp}
    primary_key: [store_id]
    relations:
      - {target: staff, cardinality: one, local_column: manager_staff_id, remote_column: staff_id}
      - {target: customer, cardinality: many, local_column: store_id, remote_column: store_id}
  - table: staff
    columns:
      - {name: staff_id, type: TinyUnsigned}
      - {name: first_name, type: String}
      - {name: last_name, type: String}
      - {name: store_id, type: TinyUnsigned}
      - {name: email, type: String, nullable: true}
    primary_key: [staff_id]
    relations:
      - {target: store, cardinality: one, local_column: store_id, remote_column: store_id}
      - {target: payment, cardinality: many, local_column: staff_id, remote_column: staff_id}
  - table: customer
    columns:
      - {name: customer_id, type: Int}
      - {name: store_id, type: TinyUnsigned}
      - {name: first_name, type: String}
      - {name: last_name, type: String}
      - {name: email, type: String, nullable: true}
      - {name: active, type: Int}
    primary_key: [customer_id]
    relations:
      - {target: store, cardinality: one, local_column: store_id, remote_column: store_id}
      - {target: payment, cardinality: many, local_column: customer_id, remote_column: customer_id}
  - table: payment
    columns:
      - {name: payment_id, type: Int}
      - {name: customer_id, type: SmallInt}
      - {name: staff_id, type: TinyUnsigned}
      - {name: amount, type: Decimal}
      - {name: payment_date, type: DateTime}
    primary_key: [payment_id]
    relations:
      - {target: customer, cardinality: one, local_column: customer_id, remote_column: customer_id}
      - {target: staff, cardinality: one, local_column: staff_id, remote_column: staff_id}
`

// PremiumPaymentIDs are the payments with amount 11.9900, in id order.
var PremiumPaymentIDs = []int64{342, 3146, 5280, 5281, 5550, 6409, 8272, 9803, 15821, 15850}

// InactiveCustomerIDs are the customers with active = 0, in id order. The ids
// are synthetic: with 1-based pages of 3, page 2 holds 315, 368 and 406.
var InactiveCustomerIDs = []int64{16, 64, 124, 315, 368, 406, 446, 482, 510, 534, 558, 592, 593, 594, 595}

type customerSeed struct {
	id    int64
	first string
	last  string
	store uint64
}

var premiumCustomers = []customerSeed{
	{13, "KAREN", "JACKSON", 2},
	{116, "VICTORIA", "GIBSON", 1},
	{195, "VANESSA", "SIMS", 1},
	{196, "ALMA", "AUSTIN", 1},
	{204, "ROSEMARY", "SCHMIDT", 1},
	{237, "TANYA", "GILBERT", 1},
	{305, "RICHARD", "MCCRARY", 1},
	{362, "NICHOLAS", "BARFIELD", 1},
	{591, "KENT", "ARSENAULT", 1},
	{592, "TERRANCE", "ROUSH", 1},
}

// Schema returns the finalized fixture schema.
func Schema() *schema.Schema {
	s, err := schema.Decode(strings.NewReader(schemaYAML))
	if err != nil {
		panic(err)
	}
	if err := s.Finalize(nil); err != nil {
		panic(err)
	}
	return s
}

// Tables returns fresh fixture rows keyed by table name.
func Tables() map[string][]store.Row {
	tables := map[string][]store.Row{
		"store": {
			{"store_id": tinyU(1), "manager_staff_id": tinyU(1), "last_update": ts("2006-02-15T09:57:12Z")},
			{"store_id": tinyU(2), "manager_staff_id": tinyU(2), "last_update": ts("2006-02-15T09:57:12Z")},
		},
		"staff": {
			staff(1, "Mike", "Hillyer", 1, "Mike.Hillyer@sakilastaff.com"),
			staff(2, "Jon", "Stephens", 2, ""),
		},
	}

	customers := map[int64]store.Row{}
	addCustomer := func(id int64, first, last string, storeID uint64, active bool) {
		email := value.Text(fmt.Sprintf("%s.%s@sakilacustomer.org", first, last))
		if id%7 == 0 {
			email = value.Null(sqltype.String)
		}
		activeFlag := int64(1)
		if !active {
			activeFlag = 0
		}
		customers[id] = store.Row{
			"customer_id": value.Int(sqltype.Int, id),
			"store_id":    tinyU(storeID),
			"first_name":  value.Text(first),
			"last_name":   value.Text(last),
			"email":       email,
			"active":      value.Int(sqltype.Int, activeFlag),
		}
	}

	addCustomer(1, "MARY", "SMITH", 1, true)
	addCustomer(2, "PATRICIA", "JOHNSON", 1, true)
	addCustomer(3, "LINDA", "WILLIAMS", 1, true)
	inactive := map[int64]bool{}
	for _, id := range InactiveCustomerIDs {
		inactive[id] = true
	}
	for _, c := range premiumCustomers {
		addCustomer(c.id, c.first, c.last, c.store, !inactive[c.id])
	}
	for _, id := range InactiveCustomerIDs {
		if _, ok := customers[id]; !ok {
			addCustomer(id, fmt.Sprintf("CUSTOMER%d", id), "INACTIVE", uint64(1+id%2), false)
		}
	}
	tables["customer"] = sortedByID(customers, "customer_id")

	var payments []store.Row
	fillers := []string{"2.9900", "0.9900", "5.9900", "0.9900", "9.9900", "4.9900", "4.9900", "0.9900", "3.9900", "5.9900", "10.9900", "11.0000"}
	for i, amount := range fillers {
		id := int64(i + 1)
		payments = append(payments, payment(id, 1+id%3, uint64(1+id%2), amount, "2005-05-25T11:30:37"))
	}
	for i, id := range PremiumPaymentIDs {
		c := premiumCustomers[i]
		payments = append(payments, payment(id, c.id, uint64(1+i%2), "11.9900", "2005-07-29T03:58:49"))
	}
	// cheaper neighbours keep the filter doing real work between premium ids;
	// dedupeByID keeps the premium row where ids collide
	for i, id := range PremiumPaymentIDs {
		payments = append(payments, payment(id+1, premiumCustomers[i].id, 1, "1.9900", "2005-07-30T10:11:12"))
	}
	tables["payment"] = dedupeByID(payments, "payment_id")
	return tables
}

func tinyU(n uint64) value.Value {
	return value.Uint(sqltype.TinyUnsigned, n)
}

func ts(s string) value.Value {
	v, err := value.Parse(sqltype.Timestamp, s)
	if err != nil {
		panic(err)
	}
	return v
}

func staff(id uint64, first, last string, storeID uint64, email string) store.Row {
	emailValue := value.Null(sqltype.String)
	if email != "" {
		emailValue = value.Text(email)
	}
	return store.Row{
		"staff_id":   tinyU(id),
		"first_name": value.Text(first),
		"last_name":  value.Text(last),
		"store_id":   tinyU(storeID),
		"email":      emailValue,
	}
}

func payment(id, customerID int64, staffID uint64, amount, date string) store.Row {
	amt, err := value.Parse(sqltype.Decimal, amount)
	if err != nil {
		panic(err)
	}
	when, err := value.Parse(sqltype.DateTime, date)
	if err != nil {
		panic(err)
	}
	return store.Row{
		"payment_id":   value.Int(sqltype.Int, id),
		"customer_id":  value.Int(sqltype.SmallInt, customerID),
		"staff_id":     tinyU(staffID),
		"amount":       amt,
		"payment_date": when,
	}
}

func sortedByID(rows map[int64]store.Row, column string) []store.Row {
	out := make([]store.Row, 0, len(rows))
	for _, row := range rows {
		out = append(out, row)
	}
	sortRows(out, column)
	return out
}

func dedupeByID(rows []store.Row, column string) []store.Row {
	byID := make(map[int64]store.Row, len(rows))
	for _, row := range rows {
		id := row[column].Native().(int64)
		if _, ok := byID[id]; !ok {
			byID[id] = row
		}
	}
	return sortedByID(byID, column)
}

func sortRows(rows []store.Row, column string) {
	slices.SortFunc(rows, func(a, b store.Row) int {
		return value.Compare(a[column], b[column])
	})
}
