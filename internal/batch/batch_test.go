package batch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relquery/internal/predicate"
	"relquery/internal/sakila"
	"relquery/internal/schema"
	"relquery/internal/sqltype"
	"relquery/internal/store"
	"relquery/internal/store/memstore"
	"relquery/internal/value"
)

type fixture struct {
	store  *memstore.Store
	schema *schema.Schema
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	return fixture{store: memstore.New(sakila.Tables()), schema: sakila.Schema()}
}

func (f fixture) entity(t *testing.T, name string) *schema.Entity {
	t.Helper()
	e, ok := f.schema.Entity(name)
	require.True(t, ok, name)
	return e
}

func (f fixture) premiumPayments(t *testing.T) []store.Row {
	t.Helper()
	rows, err := f.store.Select(context.Background(), store.Query{
		Entity: f.entity(t, "payment"),
		Where:  predicate.Cmp{Column: "amount", Op: predicate.Gt, Value: value.Int(sqltype.Decimal, 11)},
	})
	require.NoError(t, err)
	require.Len(t, rows, len(sakila.PremiumPaymentIDs))
	f.store.ResetFetches()
	return rows
}

func TestLoad_OneFetchPerRelation(t *testing.T) {
	f := newFixture(t)
	rows := f.premiumPayments(t)

	loader := New(f.store, f.schema)
	nodes, err := loader.Load(context.Background(), f.entity(t, "payment"), rows, []Selection{
		{Relation: "customer"},
		{Relation: "staff"},
	})
	require.NoError(t, err)
	require.Len(t, nodes, len(rows))

	assert.Equal(t, int64(1), f.store.Fetches("customer", memstore.OpLoadByKeys))
	assert.Equal(t, int64(1), f.store.Fetches("staff", memstore.OpLoadByKeys))

	wantFirst := []string{"KAREN", "VICTORIA", "VANESSA", "ALMA", "ROSEMARY", "TANYA", "RICHARD", "NICHOLAS", "KENT", "TERRANCE"}
	for i, node := range nodes {
		customer := node.One["customer"]
		require.NotNil(t, customer, "payment %s", node.Row["payment_id"])
		assert.Equal(t, wantFirst[i], customer.Row["first_name"].String())
		assert.Equal(t, node.Row["customer_id"].String(), customer.Row["customer_id"].String())
		require.NotNil(t, node.One["staff"])
	}
}

func TestLoad_NestedSelections(t *testing.T) {
	f := newFixture(t)
	customer := f.entity(t, "customer")
	rows, err := f.store.Select(context.Background(), store.Query{
		Entity: customer,
		Where:  predicate.Cmp{Column: "active", Op: predicate.Eq, Value: value.Int(sqltype.Int, 0)},
	})
	require.NoError(t, err)
	f.store.ResetFetches()

	loader := New(f.store, f.schema, WithConcurrency(1))
	nodes, err := loader.Load(context.Background(), customer, rows, []Selection{
		{Relation: "payments", Children: []Selection{{Relation: "staff", Children: []Selection{{Relation: "store"}}}}},
		{Relation: "store"},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1), f.store.Fetches("payment", memstore.OpLoadByKeys))
	assert.Equal(t, int64(1), f.store.Fetches("staff", memstore.OpLoadByKeys))
	// one fetch for customer.store, one for staff.store
	assert.Equal(t, int64(2), f.store.Fetches("store", memstore.OpLoadByKeys))

	var withPayments, without int
	for _, node := range nodes {
		payments, ok := node.Many["payments"]
		require.True(t, ok)
		require.NotNil(t, payments)
		if len(payments) == 0 {
			without++
			continue
		}
		withPayments++
		for _, p := range payments {
			assert.Equal(t, node.Row["customer_id"].String(), p.Row["customer_id"].String())
			staff := p.One["staff"]
			require.NotNil(t, staff)
			require.NotNil(t, staff.One["store"])
		}
	}
	assert.Positive(t, withPayments)
	assert.Positive(t, without)
}

func TestLoad_ConcurrencyCapSpansNestedLevels(t *testing.T) {
	f := newFixture(t)
	rows := f.premiumPayments(t)

	var inFlight, peak atomic.Int64
	f.store.SetFault(func(_ context.Context, op memstore.Op, _ string) error {
		if op != memstore.OpLoadByKeys {
			return nil
		}
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		return nil
	})

	const limit = 2
	loader := New(f.store, f.schema, WithConcurrency(limit))
	nodes, err := loader.Load(context.Background(), f.entity(t, "payment"), rows, []Selection{
		{Relation: "customer", Children: []Selection{{Relation: "store"}, {Relation: "payments"}}},
		{Relation: "staff", Children: []Selection{{Relation: "store"}, {Relation: "payments"}}},
	})
	require.NoError(t, err)
	require.Len(t, nodes, len(rows))

	assert.Equal(t, int64(2), f.store.Fetches("store", memstore.OpLoadByKeys))
	assert.Equal(t, int64(2), f.store.Fetches("payment", memstore.OpLoadByKeys))
	assert.LessOrEqual(t, peak.Load(), int64(limit))
	assert.Positive(t, peak.Load())
}

func TestLoad_NullForeignKeyAndNoKeys(t *testing.T) {
	f := newFixture(t)
	customer := f.entity(t, "customer")
	orphan := store.Row{
		"customer_id": value.Int(sqltype.Int, 9000),
		"store_id":    value.Null(sqltype.TinyUnsigned),
		"first_name":  value.Text("NO"),
		"last_name":   value.Text("STORE"),
		"email":       value.Null(sqltype.String),
		"active":      value.Int(sqltype.Int, 1),
	}

	loader := New(f.store, f.schema)
	nodes, err := loader.Load(context.Background(), customer, []store.Row{orphan}, []Selection{{Relation: "store"}, {Relation: "payments"}})
	require.NoError(t, err)
	require.Len(t, nodes, 1)

	storeNode, ok := nodes[0].One["store"]
	assert.True(t, ok)
	assert.Nil(t, storeNode)
	assert.Equal(t, []*Node{}, nodes[0].Many["payments"])
	// no non-null keys for store: no fetch at all
	assert.Equal(t, int64(0), f.store.Fetches("store", memstore.OpLoadByKeys))
	assert.Equal(t, int64(1), f.store.Fetches("payment", memstore.OpLoadByKeys))
}

func TestLoad_DuplicateSelectionsFetchOnce(t *testing.T) {
	f := newFixture(t)
	rows := f.premiumPayments(t)

	loader := New(f.store, f.schema)
	_, err := loader.Load(context.Background(), f.entity(t, "payment"), rows, []Selection{
		{Relation: "customer"},
		{Relation: "customer", Children: []Selection{{Relation: "store"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), f.store.Fetches("customer", memstore.OpLoadByKeys))
	assert.Equal(t, int64(1), f.store.Fetches("store", memstore.OpLoadByKeys))
}

func TestLoad_FailureLeavesNoPartialState(t *testing.T) {
	f := newFixture(t)
	rows := f.premiumPayments(t)
	boom := errors.New("connection reset")
	f.store.SetFault(func(_ context.Context, op memstore.Op, table string) error {
		if op == memstore.OpLoadByKeys && table == "staff" {
			return boom
		}
		return nil
	})

	loader := New(f.store, f.schema)
	nodes, err := loader.Load(context.Background(), f.entity(t, "payment"), rows, []Selection{
		{Relation: "customer"},
		{Relation: "staff"},
	})
	require.ErrorIs(t, err, boom)
	assert.Nil(t, nodes)
}

func TestLoad_Cancelled(t *testing.T) {
	f := newFixture(t)
	rows := f.premiumPayments(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(f.store, f.schema).Load(ctx, f.entity(t, "payment"), rows, []Selection{{Relation: "customer"}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestValidate(t *testing.T) {
	f := newFixture(t)
	payment := f.entity(t, "payment")

	require.NoError(t, Validate(f.schema, payment, []Selection{{Relation: "customer", Children: []Selection{{Relation: "payments"}}}}))

	err := Validate(f.schema, payment, []Selection{{Relation: "customer", Children: []Selection{{Relation: "nope"}}}})
	var relErr *UnknownRelationError
	require.ErrorAs(t, err, &relErr)
	assert.Equal(t, "nope", relErr.Relation)
}

func TestNodeMap(t *testing.T) {
	f := newFixture(t)
	rows := f.premiumPayments(t)

	nodes, err := New(f.store, f.schema).Load(context.Background(), f.entity(t, "payment"), rows[:1], []Selection{{Relation: "customer"}})
	require.NoError(t, err)

	m := nodes[0].Map()
	assert.Equal(t, int64(342), m["paymentId"])
	assert.Equal(t, "11.9900", m["amount"])
	customer, ok := m["customer"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "KAREN", customer["firstName"])
}
