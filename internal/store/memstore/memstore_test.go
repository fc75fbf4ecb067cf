package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relquery/internal/planner"
	"relquery/internal/predicate"
	"relquery/internal/sakila"
	"relquery/internal/schema"
	"relquery/internal/sqltype"
	"relquery/internal/store"
	"relquery/internal/value"
)

func fixture(t *testing.T) (*Store, *schema.Schema) {
	t.Helper()
	return New(sakila.Tables()), sakila.Schema()
}

func ids(rows []store.Row, column string) []string {
	out := make([]string, len(rows))
	for i, row := range rows {
		out[i] = row[column].String()
	}
	return out
}

func TestSelect_FilterOrderLimit(t *testing.T) {
	s, sch := fixture(t)
	payment, _ := sch.Entity("payment")

	rows, err := s.Select(context.Background(), store.Query{
		Entity: payment,
		Where:  predicate.Cmp{Column: "amount", Op: predicate.Gt, Value: value.Int(sqltype.Decimal, 11)},
		Order:  []planner.OrderTerm{{Column: "payment_id", Kind: sqltype.Int}},
		Limit:  3,
		Offset: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"3146", "5280", "5281"}, ids(rows, "payment_id"))
	assert.Equal(t, int64(1), s.Fetches("payment", OpSelect))
}

func TestSelect_DescendingAndOffsetPastEnd(t *testing.T) {
	s, sch := fixture(t)
	payment, _ := sch.Entity("payment")
	premium := predicate.Cmp{Column: "amount", Op: predicate.Gt, Value: value.Int(sqltype.Decimal, 11)}

	rows, err := s.Select(context.Background(), store.Query{
		Entity: payment,
		Where:  premium,
		Order:  []planner.OrderTerm{{Column: "payment_id", Desc: true, Kind: sqltype.Int}},
		Limit:  2,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"15850", "15821"}, ids(rows, "payment_id"))

	rows, err = s.Select(context.Background(), store.Query{Entity: payment, Where: premium, Offset: 500})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestCount(t *testing.T) {
	s, sch := fixture(t)
	customer, _ := sch.Entity("customer")

	n, err := s.Count(context.Background(), customer, predicate.Cmp{Column: "active", Op: predicate.Eq, Value: value.Int(sqltype.Int, 0)})
	require.NoError(t, err)
	assert.Equal(t, int64(len(sakila.InactiveCustomerIDs)), n)
}

func TestLoadByKeys(t *testing.T) {
	s, sch := fixture(t)
	customer, _ := sch.Entity("customer")

	rows, err := s.LoadByKeys(context.Background(), customer, "customer_id", []value.Value{
		value.Int(sqltype.SmallInt, 592),
		value.Int(sqltype.SmallInt, 13),
		value.Null(sqltype.SmallInt),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"13", "592"}, ids(rows, "customer_id"))
	assert.Equal(t, int64(1), s.Fetches("customer", OpLoadByKeys))
}

func TestReturnedRowsAreCopies(t *testing.T) {
	s, sch := fixture(t)
	store_, _ := sch.Entity("store")

	rows, err := s.Select(context.Background(), store.Query{Entity: store_})
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	rows[0]["store_id"] = value.Int(sqltype.Int, 99)

	again, err := s.Select(context.Background(), store.Query{Entity: store_})
	require.NoError(t, err)
	assert.NotEqual(t, "99", again[0]["store_id"].String())
}

func TestFaultAndCancellation(t *testing.T) {
	s, sch := fixture(t)
	payment, _ := sch.Entity("payment")
	boom := errors.New("boom")
	s.SetFault(func(_ context.Context, op Op, table string) error {
		if op == OpCount {
			return boom
		}
		return nil
	})

	_, err := s.Count(context.Background(), payment, nil)
	assert.ErrorIs(t, err, boom)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Select(ctx, store.Query{Entity: payment})
	assert.ErrorIs(t, err, context.Canceled)

	s.ResetFetches()
	assert.Equal(t, int64(0), s.TotalFetches("payment"))
}
