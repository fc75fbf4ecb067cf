package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relquery/internal/assemble"
	"relquery/internal/batch"
	"relquery/internal/planner"
	"relquery/internal/sakila"
	"relquery/internal/store/memstore"
)

func newEngine(t *testing.T) (*Engine, *memstore.Store) {
	t.Helper()
	st := memstore.New(sakila.Tables())
	return New(sakila.Schema(), st, Options{}), st
}

var premium = map[string]any{"amount": map[string]any{"gt": "11"}}

func edgeIDs(c *assemble.ConnectionResult, column string) []string {
	out := make([]string, len(c.Edges))
	for i, e := range c.Edges {
		out[i] = e.Node.Row[column].String()
	}
	return out
}

func nodeIDs(p *assemble.PageResult, column string) []string {
	out := make([]string, len(p.Nodes))
	for i, n := range p.Nodes {
		out[i] = n.Row[column].String()
	}
	return out
}

func TestExecute_PremiumPaymentCursors(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()

	first, err := e.Execute(ctx, Request{Entity: "payment", Filter: premium, Pagination: planner.CursorMode{Limit: 5}})
	require.NoError(t, err)
	require.NotNil(t, first.Connection)
	assert.Equal(t, []string{"342", "3146", "5280", "5281", "5550"}, edgeIDs(first.Connection, "payment_id"))
	assert.False(t, first.Connection.PageInfo.HasPreviousPage)
	assert.True(t, first.Connection.PageInfo.HasNextPage)
	assert.Equal(t, "Int[4]:5550", *first.Connection.PageInfo.EndCursor)

	second, err := e.Execute(ctx, Request{Entity: "payment", Filter: premium, Pagination: planner.CursorMode{Limit: 3, Cursor: "SmallUnsigned[4]:5550"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"6409", "8272", "9803"}, edgeIDs(second.Connection, "payment_id"))
	assert.True(t, second.Connection.PageInfo.HasPreviousPage)
	assert.True(t, second.Connection.PageInfo.HasNextPage)

	third, err := e.Execute(ctx, Request{Entity: "payment", Filter: premium, Pagination: planner.CursorMode{Limit: 3, Cursor: *second.Connection.PageInfo.EndCursor}})
	require.NoError(t, err)
	assert.Equal(t, []string{"15821", "15850"}, edgeIDs(third.Connection, "payment_id"))
	assert.False(t, third.Connection.PageInfo.HasNextPage)
	assert.True(t, third.Connection.PageInfo.HasPreviousPage)
}

func TestExecute_PageMode(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	inactive := map[string]any{"active": map[string]any{"eq": 0}}

	res, err := e.Execute(ctx, Request{Entity: "customer", Filter: inactive, Pagination: planner.PageMode{Page: 2, Limit: 3}})
	require.NoError(t, err)
	require.NotNil(t, res.Page)
	assert.Equal(t, []string{"315", "368", "406"}, nodeIDs(res.Page, "customer_id"))
	assert.Equal(t, 5, res.Page.Pages)
	assert.Equal(t, 2, res.Page.Current)

	again, err := e.Execute(ctx, Request{Entity: "customer", Filter: inactive, Pagination: planner.PageMode{Page: 2, Limit: 3}})
	require.NoError(t, err)
	assert.Equal(t, res.Page.Map(), again.Page.Map())

	payments, err := e.Execute(ctx, Request{
		Entity:     "payment",
		Filter:     map[string]any{"amount": map[string]any{"gt": "11.1"}},
		Pagination: planner.PageMode{Page: 3, Limit: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"5550", "6409"}, nodeIDs(payments.Page, "payment_id"))
	assert.Equal(t, 5, payments.Page.Pages)
	assert.Equal(t, 3, payments.Page.Current)

	// pages are 1-based: 8272 and 9803 are the seventh and eighth matches
	fourth, err := e.Execute(ctx, Request{
		Entity:     "payment",
		Filter:     map[string]any{"amount": map[string]any{"gt": "11.1"}},
		Pagination: planner.PageMode{Page: 4, Limit: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"8272", "9803"}, nodeIDs(fourth.Page, "payment_id"))
	assert.Equal(t, "11.9900", fourth.Page.Nodes[0].Row["amount"].String())
}

func TestExecute_PageBeyondEnd(t *testing.T) {
	e, _ := newEngine(t)

	res, err := e.Execute(context.Background(), Request{Entity: "payment", Filter: premium, Pagination: planner.PageMode{Page: 7, Limit: 3}})
	require.NoError(t, err)
	assert.Empty(t, res.Page.Nodes)
	assert.Equal(t, 7, res.Page.Current)
	assert.Equal(t, 4, res.Page.Pages)
}

func TestExecute_PagesMatchCount(t *testing.T) {
	e, st := newEngine(t)
	payment, _ := sakila.Schema().Entity("payment")
	total, err := st.Count(context.Background(), payment, nil)
	require.NoError(t, err)

	for _, limit := range []int{1, 2, 3, 7, 10, 25, 100} {
		res, err := e.Execute(context.Background(), Request{Entity: "payment", Pagination: planner.PageMode{Page: 1, Limit: limit}})
		require.NoError(t, err)
		assert.Equal(t, planner.TotalPages(total, limit), res.Page.Pages, "limit %d", limit)
		assert.Equal(t, int((total+int64(limit)-1)/int64(limit)), res.Page.Pages, "limit %d", limit)
	}
}

func TestExecute_ForwardPaginationIsExhaustive(t *testing.T) {
	tests := []struct {
		name    string
		entity  string
		filter  map[string]any
		orderBy []planner.OrderTerm
		idCol   string
	}{
		{"payment id", "payment", nil, nil, "payment_id"},
		{"amount desc", "payment", nil, []planner.OrderTerm{{Column: "amount", Desc: true}}, "payment_id"},
		{"date then amount", "payment", premium, []planner.OrderTerm{{Column: "paymentDate"}, {Column: "amount", Desc: true}}, "payment_id"},
		{"nullable email", "customer", nil, []planner.OrderTerm{{Column: "email"}}, "customer_id"},
		{"nullable email desc", "customer", nil, []planner.OrderTerm{{Column: "email", Desc: true}}, "customer_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newEngine(t)
			ctx := context.Background()

			full, err := e.Execute(ctx, Request{Entity: tt.entity, Filter: tt.filter, OrderBy: tt.orderBy, Pagination: planner.CursorMode{Limit: planner.MaxLimit}})
			require.NoError(t, err)
			require.False(t, full.Connection.PageInfo.HasNextPage)
			want := edgeIDs(full.Connection, tt.idCol)
			require.NotEmpty(t, want)

			for _, limit := range []int{1, 2, 3, 4} {
				var got []string
				cursor := ""
				for pages := 0; ; pages++ {
					require.Less(t, pages, len(want)+2, "pagination did not terminate")
					res, err := e.Execute(ctx, Request{Entity: tt.entity, Filter: tt.filter, OrderBy: tt.orderBy, Pagination: planner.CursorMode{Limit: limit, Cursor: cursor}})
					require.NoError(t, err)
					got = append(got, edgeIDs(res.Connection, tt.idCol)...)
					if !res.Connection.PageInfo.HasNextPage {
						break
					}
					cursor = *res.Connection.PageInfo.EndCursor
				}
				assert.Equal(t, want, got, "limit %d", limit)
			}
		})
	}
}

func TestExecute_BackwardThenForwardReturnsToBoundary(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	orderBy := []planner.OrderTerm{{Column: "amount", Desc: true}}

	full, err := e.Execute(ctx, Request{Entity: "payment", OrderBy: orderBy, Pagination: planner.CursorMode{Limit: planner.MaxLimit}})
	require.NoError(t, err)
	edges := full.Connection.Edges
	require.Greater(t, len(edges), 8)

	for _, pos := range []int{3, 5, 8} {
		boundary := edges[pos]
		back, err := e.Execute(ctx, Request{Entity: "payment", OrderBy: orderBy, Pagination: planner.CursorMode{Limit: 3, Cursor: boundary.Cursor, Backward: true}})
		require.NoError(t, err)
		require.Len(t, back.Connection.Edges, 3)
		assert.Equal(t, edges[pos-3].Cursor, back.Connection.Edges[0].Cursor)
		assert.Equal(t, pos > 3, back.Connection.PageInfo.HasPreviousPage)
		assert.True(t, back.Connection.PageInfo.HasNextPage)

		forward, err := e.Execute(ctx, Request{Entity: "payment", OrderBy: orderBy, Pagination: planner.CursorMode{Limit: 3, Cursor: *back.Connection.PageInfo.StartCursor}})
		require.NoError(t, err)
		require.Len(t, forward.Connection.Edges, 3)
		assert.Equal(t, boundary.Cursor, forward.Connection.Edges[2].Cursor)
	}
}

func TestExecute_BackwardWithoutCursorReturnsLastPage(t *testing.T) {
	e, _ := newEngine(t)

	res, err := e.Execute(context.Background(), Request{Entity: "payment", Filter: premium, Pagination: planner.CursorMode{Limit: 3, Backward: true}})
	require.NoError(t, err)
	assert.Equal(t, []string{"9803", "15821", "15850"}, edgeIDs(res.Connection, "payment_id"))
	assert.True(t, res.Connection.PageInfo.HasPreviousPage)
	assert.False(t, res.Connection.PageInfo.HasNextPage)
}

func TestExecute_RelationsBatchOncePerPage(t *testing.T) {
	for _, limit := range []int{2, 5, 10} {
		e, st := newEngine(t)
		res, err := e.Execute(context.Background(), Request{
			Entity:     "payment",
			Filter:     premium,
			Pagination: planner.CursorMode{Limit: limit},
			Relations: []batch.Selection{
				{Relation: "customer", Children: []batch.Selection{{Relation: "store"}}},
				{Relation: "staff"},
			},
		})
		require.NoError(t, err)
		require.Len(t, res.Connection.Edges, limit)

		assert.Equal(t, int64(1), st.Fetches("payment", memstore.OpSelect))
		assert.Equal(t, int64(1), st.Fetches("customer", memstore.OpLoadByKeys), "limit %d", limit)
		assert.Equal(t, int64(1), st.Fetches("staff", memstore.OpLoadByKeys), "limit %d", limit)
		assert.Equal(t, int64(1), st.Fetches("store", memstore.OpLoadByKeys), "limit %d", limit)

		for _, edge := range res.Connection.Edges {
			customer := edge.Node.One["customer"]
			require.NotNil(t, customer)
			assert.NotNil(t, customer.One["store"])
		}
	}
}

func TestExecute_RelationsOnlyForReturnedRows(t *testing.T) {
	e, _ := newEngine(t)
	res, err := e.Execute(context.Background(), Request{
		Entity:     "payment",
		Filter:     premium,
		Pagination: planner.CursorMode{Limit: 1},
		Relations:  []batch.Selection{{Relation: "customer"}},
	})
	require.NoError(t, err)
	require.Len(t, res.Connection.Edges, 1)
	assert.True(t, res.Connection.PageInfo.HasNextPage)
	assert.Equal(t, "KAREN", res.Connection.Edges[0].Node.One["customer"].Row["first_name"].String())
}

func TestExecute_ClientErrorsTouchNoStorage(t *testing.T) {
	tests := []struct {
		name  string
		req   Request
		class ErrorClass
	}{
		{"unknown entity", Request{Entity: "rental"}, ClassEntity},
		{"unknown column", Request{Entity: "payment", Filter: map[string]any{"tip": map[string]any{"eq": 1}}}, ClassValidation},
		{"empty and", Request{Entity: "payment", Filter: map[string]any{"and": []any{}}}, ClassValidation},
		{"bad literal", Request{Entity: "payment", Filter: map[string]any{"amount": map[string]any{"gt": "lots"}}}, ClassValidation},
		{"malformed cursor", Request{Entity: "payment", Pagination: planner.CursorMode{Limit: 3, Cursor: "Int[9]:1"}}, ClassCursor},
		{"cursor arity", Request{Entity: "payment", Pagination: planner.CursorMode{Limit: 3, Cursor: "Int[1]:1,Int[1]:2"}}, ClassCursor},
		{"page zero", Request{Entity: "payment", Pagination: planner.PageMode{Page: 0, Limit: 3}}, ClassPagination},
		{"bad ordering", Request{Entity: "payment", OrderBy: []planner.OrderTerm{{Column: "tip"}}}, ClassOrdering},
		{"unknown relation", Request{Entity: "payment", Relations: []batch.Selection{{Relation: "rentals"}}}, ClassRelation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, st := newEngine(t)
			_, err := e.Execute(context.Background(), tt.req)
			var client *ClientError
			require.ErrorAs(t, err, &client)
			assert.Equal(t, tt.class, client.Class)
			assert.Equal(t, tt.class, Class(err))
			for _, table := range []string{"payment", "customer", "staff", "store"} {
				assert.Zero(t, st.TotalFetches(table), table)
			}
		})
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestExecute_StorageErrors(t *testing.T) {
	t.Run("count failure is retryable network error", func(t *testing.T) {
		e, st := newEngine(t)
		st.SetFault(func(_ context.Context, op memstore.Op, _ string) error {
			if op == memstore.OpCount {
				return timeoutErr{}
			}
			return nil
		})
		_, err := e.Execute(context.Background(), Request{Entity: "payment"})
		var storageErr *StorageError
		require.ErrorAs(t, err, &storageErr)
		assert.Equal(t, "count", storageErr.Op)
		assert.True(t, storageErr.Retryable())
		assert.Equal(t, ClassStorage, Class(err))
	})

	t.Run("relation failure is not retryable", func(t *testing.T) {
		e, st := newEngine(t)
		broken := errors.New("table is corrupt")
		st.SetFault(func(_ context.Context, op memstore.Op, table string) error {
			if op == memstore.OpLoadByKeys && table == "customer" {
				return broken
			}
			return nil
		})
		res, err := e.Execute(context.Background(), Request{Entity: "payment", Relations: []batch.Selection{{Relation: "customer"}}})
		assert.Nil(t, res)
		require.ErrorIs(t, err, broken)
		var storageErr *StorageError
		require.ErrorAs(t, err, &storageErr)
		assert.False(t, storageErr.Retryable())
	})

	t.Run("cancellation propagates", func(t *testing.T) {
		e, _ := newEngine(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := e.Execute(ctx, Request{Entity: "payment"})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestExecute_ConcurrentRequests(t *testing.T) {
	e, _ := newEngine(t)
	var wg sync.WaitGroup
	results := make([][]string, 16)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := e.Execute(context.Background(), Request{
				Entity:     "payment",
				Filter:     premium,
				Pagination: planner.CursorMode{Limit: 3, Cursor: "Int[4]:5550"},
				Relations:  []batch.Selection{{Relation: "customer"}},
			})
			if err == nil {
				results[i] = edgeIDs(res.Connection, "payment_id")
			}
		}()
	}
	wg.Wait()
	for _, ids := range results {
		assert.Equal(t, []string{"6409", "8272", "9803"}, ids)
	}
}

func TestExecute_DefaultsToFirstPage(t *testing.T) {
	e, _ := newEngine(t)
	res, err := e.Execute(context.Background(), Request{Entity: "payment", Filter: premium})
	require.NoError(t, err)
	require.NotNil(t, res.Page)
	assert.Equal(t, 1, res.Page.Current)
	assert.Equal(t, 1, res.Page.Pages)
	assert.Len(t, res.Page.Nodes, len(sakila.PremiumPaymentIDs))
	assert.Equal(t, e.DefaultLimit(), planner.DefaultLimit)
}
