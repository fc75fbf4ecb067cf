package assemble

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relquery/internal/batch"
	"relquery/internal/planner"
	"relquery/internal/sakila"
	"relquery/internal/schema"
	"relquery/internal/sqltype"
	"relquery/internal/store"
	"relquery/internal/value"
)

func paymentRows(ids ...int64) []store.Row {
	rows := make([]store.Row, len(ids))
	for i, id := range ids {
		rows[i] = store.Row{"payment_id": value.Int(sqltype.Int, id)}
	}
	return rows
}

func wrap(entity *schema.Entity, rows []store.Row) []*batch.Node {
	nodes := make([]*batch.Node, len(rows))
	for i, row := range rows {
		nodes[i] = &batch.Node{Entity: entity, Row: row}
	}
	return nodes
}

func plan(t *testing.T, req planner.Request) (*schema.Entity, *planner.FetchPlan) {
	t.Helper()
	payment, ok := sakila.Schema().Entity("payment")
	require.True(t, ok)
	key, err := planner.NormalizeOrdering(payment, nil)
	require.NoError(t, err)
	p, err := planner.New(planner.DefaultLimits()).Plan(payment, nil, key, req)
	require.NoError(t, err)
	return payment, p
}

func cursors(r *ConnectionResult) []string {
	out := make([]string, len(r.Edges))
	for i, e := range r.Edges {
		out[i] = e.Cursor
	}
	return out
}

func TestPage(t *testing.T) {
	payment, p := plan(t, planner.PageMode{Page: 2, Limit: 3})
	result := Page(wrap(payment, paymentRows(315, 368, 406)), 15, p)
	assert.Equal(t, 5, result.Pages)
	assert.Equal(t, 2, result.Current)
	assert.Len(t, result.Nodes, 3)

	_, past := plan(t, planner.PageMode{Page: 9, Limit: 3})
	empty := Page(nil, 15, past)
	assert.Equal(t, 9, empty.Current)
	assert.Equal(t, 5, empty.Pages)
	assert.NotNil(t, empty.Nodes)
	assert.Empty(t, empty.Nodes)

	m := empty.Map()
	assert.Equal(t, []map[string]any{}, m["nodes"])
	assert.Equal(t, 5, m["pages"])
}

func TestConnection_ForwardFirstPage(t *testing.T) {
	payment, p := plan(t, planner.CursorMode{Limit: 5})
	w := Trim(paymentRows(342, 3146, 5280, 5281, 5550, 6409), p)
	require.True(t, w.HasMore)
	require.Len(t, w.Rows, 5)

	result := Connection(wrap(payment, w.Rows), w.HasMore, p)
	assert.Equal(t, []string{"Int[3]:342", "Int[4]:3146", "Int[4]:5280", "Int[4]:5281", "Int[4]:5550"}, cursors(result))
	assert.True(t, result.PageInfo.HasNextPage)
	assert.False(t, result.PageInfo.HasPreviousPage)
	assert.Equal(t, "Int[3]:342", *result.PageInfo.StartCursor)
	assert.Equal(t, "Int[4]:5550", *result.PageInfo.EndCursor)
}

func TestConnection_ForwardLastPage(t *testing.T) {
	payment, p := plan(t, planner.CursorMode{Limit: 3, Cursor: "Int[4]:9803"})
	w := Trim(paymentRows(15821, 15850), p)
	result := Connection(wrap(payment, w.Rows), w.HasMore, p)

	assert.Equal(t, []string{"Int[5]:15821", "Int[5]:15850"}, cursors(result))
	assert.False(t, result.PageInfo.HasNextPage)
	assert.True(t, result.PageInfo.HasPreviousPage)
}

func TestConnection_Backward(t *testing.T) {
	payment, p := plan(t, planner.CursorMode{Limit: 2, Cursor: "Int[4]:6409", Backward: true})
	// fetched in reverse order with a sentinel
	w := Trim(paymentRows(5550, 5281, 5280), p)
	require.True(t, w.HasMore)

	result := Connection(wrap(payment, w.Rows), w.HasMore, p)
	assert.Equal(t, []string{"Int[4]:5281", "Int[4]:5550"}, cursors(result))
	assert.True(t, result.PageInfo.HasPreviousPage)
	assert.True(t, result.PageInfo.HasNextPage)
}

func TestConnection_Empty(t *testing.T) {
	_, p := plan(t, planner.CursorMode{Limit: 3, Cursor: "Int[5]:15850"})
	w := Trim(nil, p)
	result := Connection(nil, w.HasMore, p)

	assert.Empty(t, result.Edges)
	assert.Nil(t, result.PageInfo.StartCursor)
	assert.Nil(t, result.PageInfo.EndCursor)
	assert.False(t, result.PageInfo.HasNextPage)
	assert.True(t, result.PageInfo.HasPreviousPage)

	info := result.Map()["pageInfo"].(map[string]any)
	assert.Nil(t, info["startCursor"])
	assert.Equal(t, false, info["hasNextPage"])
}
