// Package engine resolves one query request end to end: compile the filter,
// plan pagination, fetch the page and its count concurrently, batch-load the
// selected relations, and assemble the paginated result.
package engine

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"relquery/internal/assemble"
	"relquery/internal/batch"
	"relquery/internal/filter"
	"relquery/internal/logging"
	"relquery/internal/observability"
	"relquery/internal/planner"
	"relquery/internal/predicate"
	"relquery/internal/schema"
	"relquery/internal/store"
)

// Request is one query against an entity.
type Request struct {
	Entity string
	// Filter is the wire-format filter tree; nil matches every row.
	Filter     map[string]any
	OrderBy    []planner.OrderTerm
	Pagination planner.Request
	Relations  []batch.Selection
}

// Result holds exactly one of Page or Connection.
type Result struct {
	Page       *assemble.PageResult
	Connection *assemble.ConnectionResult
}

// Map renders the result for JSON and GraphQL output.
func (r *Result) Map() map[string]any {
	if r.Connection != nil {
		return r.Connection.Map()
	}
	if r.Page != nil {
		return r.Page.Map()
	}
	return nil
}

// Engine executes requests against a store. It is safe for concurrent use
// and holds no per-request state.
type Engine struct {
	schema  *schema.Schema
	store   store.Store
	planner *planner.Planner
	loader  *batch.Loader
	metrics *observability.QueryMetrics
}

// Options tunes an Engine. Zero values use the defaults.
type Options struct {
	Limits           planner.Limits
	BatchConcurrency int
	Metrics          *observability.QueryMetrics
}

// New creates an engine.
func New(sch *schema.Schema, st store.Store, opts Options) *Engine {
	return &Engine{
		schema:  sch,
		store:   st,
		planner: planner.New(opts.Limits),
		loader:  batch.New(st, sch, batch.WithConcurrency(opts.BatchConcurrency)),
		metrics: opts.Metrics,
	}
}

// Schema returns the schema the engine serves.
func (e *Engine) Schema() *schema.Schema {
	return e.schema
}

// DefaultLimit returns the page size used when a request omits one.
func (e *Engine) DefaultLimit() int {
	return e.planner.DefaultLimit()
}

// Execute runs one request. Invalid requests fail with a *ClientError before
// storage is touched; store failures come back as *StorageError.
func (e *Engine) Execute(ctx context.Context, req Request) (result *Result, err error) {
	start := time.Now()
	ctx, span := startSpan(ctx, "engine.execute", attribute.String("relquery.entity", req.Entity))
	if e.metrics != nil && observability.QueryMetricsFromContext(ctx) == nil {
		ctx = observability.ContextWithQueryMetrics(ctx, e.metrics)
	}
	e.metrics.IncrementActiveRequests(ctx)
	mode := paginationMode(req.Pagination)
	defer func() {
		e.metrics.DecrementActiveRequests(ctx)
		e.metrics.RecordRequest(ctx, time.Since(start), req.Entity, mode, string(Class(err)))
		finishSpan(span, err)
	}()

	plan, err := e.prepare(ctx, req)
	if err != nil {
		logging.FromContext(ctx).Debug("query rejected",
			slog.String("entity", req.Entity),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	span.SetAttributes(
		attribute.String("relquery.pagination_mode", mode),
		attribute.String("relquery.ordering", plan.Ordering.String()),
		attribute.Int("relquery.limit", plan.Limit),
		attribute.Int("relquery.offset", plan.Offset),
	)

	rows, count, err := e.fetch(ctx, plan)
	if err != nil {
		return nil, err
	}

	hasMore := false
	if plan.Keyset {
		w := assemble.Trim(rows, plan)
		rows, hasMore = w.Rows, w.HasMore
	}

	nodes, err := e.load(ctx, plan.Entity, rows, req.Relations)
	if err != nil {
		return nil, err
	}
	e.metrics.RecordResultRows(ctx, int64(len(nodes)), plan.Entity.Name)

	logging.FromContext(ctx).Debug("query resolved",
		slog.String("entity", plan.Entity.Name),
		slog.String("mode", mode),
		slog.Int("rows", len(nodes)),
		slog.Duration("duration", time.Since(start)),
	)

	if plan.Keyset {
		return &Result{Connection: assemble.Connection(nodes, hasMore, plan)}, nil
	}
	return &Result{Page: assemble.Page(nodes, count, plan)}, nil
}

// prepare does every check that needs no storage access.
func (e *Engine) prepare(ctx context.Context, req Request) (*planner.FetchPlan, error) {
	_, span := startSpan(ctx, "engine.plan")
	plan, err := e.buildPlan(req)
	finishSpan(span, err)
	return plan, err
}

func (e *Engine) buildPlan(req Request) (*planner.FetchPlan, error) {
	entity, ok := e.schema.Entity(req.Entity)
	if !ok {
		return nil, classify(&UnknownEntityError{Name: req.Entity})
	}
	pred, err := filter.CompileWire(entity, req.Filter)
	if err != nil {
		return nil, classify(err)
	}
	ordering, err := planner.NormalizeOrdering(entity, req.OrderBy)
	if err != nil {
		return nil, classify(err)
	}
	if err := batch.Validate(e.schema, entity, req.Relations); err != nil {
		return nil, classify(err)
	}
	plan, err := e.planner.Plan(entity, pred, ordering, req.Pagination)
	if err != nil {
		return nil, classify(err)
	}
	return plan, nil
}

// fetch runs the row query and, in page mode, the count concurrently. The
// two may observe different snapshots under concurrent writes.
func (e *Engine) fetch(ctx context.Context, plan *planner.FetchPlan) ([]store.Row, int64, error) {
	var (
		rows  []store.Row
		count int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ctx, span := startSpan(gctx, "engine.fetch")
		var err error
		rows, err = e.store.Select(ctx, store.Query{
			Entity: plan.Entity,
			Where:  plan.Where,
			Order:  plan.FetchOrder,
			Limit:  plan.Limit,
			Offset: plan.Offset,
		})
		span.SetAttributes(attribute.Int("relquery.rows", len(rows)))
		finishSpan(span, err)
		if err != nil {
			return &StorageError{Op: "select", Err: err}
		}
		return nil
	})
	if plan.NeedsCount {
		g.Go(func() error {
			ctx, span := startSpan(gctx, "engine.count")
			var err error
			count, err = e.store.Count(ctx, plan.Entity, countPredicate(plan))
			finishSpan(span, err)
			if err != nil {
				return &StorageError{Op: "count", Err: err}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return rows, count, nil
}

func (e *Engine) load(ctx context.Context, entity *schema.Entity, rows []store.Row, selections []batch.Selection) ([]*batch.Node, error) {
	ctx, span := startSpan(ctx, "engine.batch", attribute.Int("relquery.relations", len(selections)))
	nodes, err := e.loader.Load(ctx, entity, rows, selections)
	finishSpan(span, err)
	if err != nil {
		return nil, &StorageError{Op: "load relations", Err: err}
	}
	return nodes, nil
}

// countPredicate is the filter alone: the total does not depend on where a
// page starts.
func countPredicate(plan *planner.FetchPlan) predicate.Predicate {
	return plan.Filter
}

func paginationMode(req planner.Request) string {
	if _, ok := req.(planner.CursorMode); ok {
		return "cursor"
	}
	return "page"
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := otel.Tracer("relquery/engine").Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

func finishSpan(span trace.Span, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.String("relquery.outcome", outcome))
	span.End()
}
