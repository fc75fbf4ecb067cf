// Package assemble shapes fetched rows into paginated results. It does no
// I/O: rows arrive already fetched and their relations already loaded.
package assemble

import (
	"slices"

	"relquery/internal/batch"
	"relquery/internal/cursor"
	"relquery/internal/planner"
	"relquery/internal/store"
)

// PageResult is a page-mode result.
type PageResult struct {
	Nodes   []*batch.Node
	Pages   int
	Current int
}

// Map renders the result for JSON and GraphQL output.
func (r *PageResult) Map() map[string]any {
	nodes := make([]map[string]any, len(r.Nodes))
	for i, n := range r.Nodes {
		nodes[i] = n.Map()
	}
	return map[string]any{
		"nodes":   nodes,
		"pages":   r.Pages,
		"current": r.Current,
	}
}

// Edge pairs a node with the cursor that resumes after it.
type Edge struct {
	Node   *batch.Node
	Cursor string
}

// PageInfo carries cursor-mode continuation flags. Start and end cursors are
// nil for an empty page.
type PageInfo struct {
	HasPreviousPage bool
	HasNextPage     bool
	StartCursor     *string
	EndCursor       *string
}

// ConnectionResult is a cursor-mode result.
type ConnectionResult struct {
	Edges    []Edge
	PageInfo PageInfo
}

// Map renders the result for JSON and GraphQL output.
func (r *ConnectionResult) Map() map[string]any {
	edges := make([]map[string]any, len(r.Edges))
	for i, e := range r.Edges {
		edges[i] = map[string]any{"node": e.Node.Map(), "cursor": e.Cursor}
	}
	info := map[string]any{
		"hasPreviousPage": r.PageInfo.HasPreviousPage,
		"hasNextPage":     r.PageInfo.HasNextPage,
		"startCursor":     nil,
		"endCursor":       nil,
	}
	if r.PageInfo.StartCursor != nil {
		info["startCursor"] = *r.PageInfo.StartCursor
	}
	if r.PageInfo.EndCursor != nil {
		info["endCursor"] = *r.PageInfo.EndCursor
	}
	return map[string]any{"edges": edges, "pageInfo": info}
}

// Window is a cursor-mode fetch with the sentinel row removed, in declared
// order. HasMore reports whether the sentinel was present.
type Window struct {
	Rows    []store.Row
	HasMore bool
}

// Trim drops the sentinel row of a keyset fetch and restores declared order
// for backward fetches, which arrive reversed.
func Trim(rows []store.Row, plan *planner.FetchPlan) Window {
	w := Window{Rows: rows}
	if len(rows) > plan.PageSize {
		w.Rows = rows[:plan.PageSize]
		w.HasMore = true
	}
	if plan.Backward {
		w.Rows = slices.Clone(w.Rows)
		slices.Reverse(w.Rows)
	}
	return w
}

// Page builds a page-mode result. A page past the end has no nodes but still
// reports the requested page as current.
func Page(nodes []*batch.Node, count int64, plan *planner.FetchPlan) *PageResult {
	if nodes == nil {
		nodes = []*batch.Node{}
	}
	return &PageResult{
		Nodes:   nodes,
		Pages:   planner.TotalPages(count, plan.PageSize),
		Current: plan.Page,
	}
}

// Connection builds a cursor-mode result from nodes in declared order.
// Forward pages have a next page when the fetch overflowed and a previous
// page when they started from a cursor; backward pages mirror that.
func Connection(nodes []*batch.Node, hasMore bool, plan *planner.FetchPlan) *ConnectionResult {
	edges := make([]Edge, len(nodes))
	for i, n := range nodes {
		edges[i] = Edge{Node: n, Cursor: cursor.Encode(plan.Ordering.ValuesOf(n.Row))}
	}

	info := PageInfo{}
	if plan.Backward {
		info.HasPreviousPage = hasMore
		info.HasNextPage = plan.HasCursor
	} else {
		info.HasNextPage = hasMore
		info.HasPreviousPage = plan.HasCursor
	}
	if len(edges) > 0 {
		start, end := edges[0].Cursor, edges[len(edges)-1].Cursor
		info.StartCursor = &start
		info.EndCursor = &end
	}
	return &ConnectionResult{Edges: edges, PageInfo: info}
}
