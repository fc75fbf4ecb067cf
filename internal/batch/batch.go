// Package batch resolves relation selections for a page of rows with one
// store round trip per relation, however many rows the page holds.
//
// Loading runs in phases: collect and deduplicate the join keys of every row
// in the page, fetch the related rows with a single LoadByKeys call, then
// join them back in memory and recurse into nested selections. Relations
// load concurrently; one Load never has more than its concurrency limit of
// LoadByKeys calls in flight, at any nesting depth.
package batch

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"relquery/internal/observability"
	"relquery/internal/schema"
	"relquery/internal/store"
	"relquery/internal/value"
)

// DefaultConcurrency bounds the relation fetches in flight per Load.
const DefaultConcurrency = 4

// Selection requests one relation and, recursively, relations of the rows
// it loads.
type Selection struct {
	Relation string
	Children []Selection
}

// Node is a row with its loaded relations. One holds nil for a one-side
// relation with no match; Many holds an empty slice when nothing matched.
type Node struct {
	Entity *schema.Entity
	Row    store.Row
	One    map[string]*Node
	Many   map[string][]*Node
}

// Map renders the node with GraphQL field names as keys.
func (n *Node) Map() map[string]any {
	if n == nil {
		return nil
	}
	out := make(map[string]any, len(n.Row)+len(n.One)+len(n.Many))
	for _, col := range n.Entity.Columns {
		if v, ok := n.Row[col.Name]; ok {
			out[col.Field] = v.Native()
		}
	}
	for name, child := range n.One {
		if child == nil {
			out[name] = nil
			continue
		}
		out[name] = child.Map()
	}
	for name, children := range n.Many {
		list := make([]map[string]any, len(children))
		for i, child := range children {
			list[i] = child.Map()
		}
		out[name] = list
	}
	return out
}

// UnknownRelationError reports a selection naming no relation of its entity.
type UnknownRelationError struct {
	Entity   string
	Relation string
}

func (e *UnknownRelationError) Error() string {
	return fmt.Sprintf("unknown relation %q on %s", e.Relation, e.Entity)
}

// Validate checks every selection against the schema without touching storage.
func Validate(sch *schema.Schema, entity *schema.Entity, selections []Selection) error {
	for _, sel := range selections {
		rel, ok := entity.Relation(sel.Relation)
		if !ok {
			return &UnknownRelationError{Entity: entity.Name, Relation: sel.Relation}
		}
		target, ok := sch.Entity(rel.Target)
		if !ok {
			return fmt.Errorf("relation %s.%s targets unknown entity %q", entity.Name, rel.Name, rel.Target)
		}
		if err := Validate(sch, target, sel.Children); err != nil {
			return err
		}
	}
	return nil
}

// Loader loads relation selections.
type Loader struct {
	store       store.Store
	schema      *schema.Schema
	concurrency int
}

// Option configures a Loader.
type Option func(*Loader)

// WithConcurrency bounds concurrent relation fetches per Load. Values below
// 1 are ignored.
func WithConcurrency(n int) Option {
	return func(l *Loader) {
		if n > 0 {
			l.concurrency = n
		}
	}
}

// New creates a loader.
func New(st store.Store, sch *schema.Schema, opts ...Option) *Loader {
	l := &Loader{store: st, schema: sch, concurrency: DefaultConcurrency}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load wraps rows in nodes and attaches every selected relation. On error no
// node carries partial relation state.
func (l *Loader) Load(ctx context.Context, entity *schema.Entity, rows []store.Row, selections []Selection) ([]*Node, error) {
	nodes := wrap(entity, rows)
	fetches := semaphore.NewWeighted(int64(l.concurrency))
	if err := l.attach(ctx, fetches, entity, nodes, selections); err != nil {
		return nil, err
	}
	return nodes, nil
}

type loaded struct {
	rel     schema.Relation
	grouped map[string][]*Node
}

// attach loads selections for nodes. fetches is shared by every level of one
// Load and is held only around LoadByKeys, never across recursion.
func (l *Loader) attach(ctx context.Context, fetches *semaphore.Weighted, entity *schema.Entity, nodes []*Node, selections []Selection) error {
	selections = merge(selections)
	if len(nodes) == 0 || len(selections) == 0 {
		return nil
	}

	results := make([]loaded, len(selections))
	g, gctx := errgroup.WithContext(ctx)
	for i, sel := range selections {
		g.Go(func() error {
			res, err := l.loadRelation(gctx, fetches, entity, nodes, sel)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, node := range nodes {
		for _, res := range results {
			local := node.Row[res.rel.LocalColumn]
			var matches []*Node
			if !local.IsNull() {
				matches = res.grouped[local.Key()]
			}
			if res.rel.Cardinality == schema.One {
				if node.One == nil {
					node.One = make(map[string]*Node)
				}
				if len(matches) > 0 {
					node.One[res.rel.Name] = matches[0]
				} else {
					node.One[res.rel.Name] = nil
				}
				continue
			}
			if node.Many == nil {
				node.Many = make(map[string][]*Node)
			}
			if matches == nil {
				matches = []*Node{}
			}
			node.Many[res.rel.Name] = matches
		}
	}
	return nil
}

func (l *Loader) loadRelation(ctx context.Context, fetches *semaphore.Weighted, entity *schema.Entity, nodes []*Node, sel Selection) (loaded, error) {
	rel, ok := entity.Relation(sel.Relation)
	if !ok {
		return loaded{}, &UnknownRelationError{Entity: entity.Name, Relation: sel.Relation}
	}
	target, ok := l.schema.Entity(rel.Target)
	if !ok {
		return loaded{}, fmt.Errorf("relation %s.%s targets unknown entity %q", entity.Name, rel.Name, rel.Target)
	}

	keys := distinctKeys(nodes, rel.LocalColumn)
	res := loaded{rel: rel, grouped: map[string][]*Node{}}
	if len(keys) == 0 {
		return res, nil
	}

	ctx, span := otel.Tracer("relquery/batch").Start(ctx, "batch.load_relation")
	defer span.End()
	span.SetAttributes(
		attribute.String("relation.name", rel.Name),
		attribute.String("relation.target", target.Table),
		attribute.String("relation.cardinality", string(rel.Cardinality)),
		attribute.Int("relation.parent_rows", len(nodes)),
		attribute.Int("relation.keys", len(keys)),
	)

	if err := fetches.Acquire(ctx, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return loaded{}, err
	}
	rows, err := l.store.LoadByKeys(ctx, target, rel.RemoteColumn, keys)
	fetches.Release(1)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return loaded{}, fmt.Errorf("load %s.%s: %w", entity.Name, rel.Name, err)
	}
	span.SetAttributes(attribute.Int("relation.rows", len(rows)))
	observability.QueryMetricsFromContext(ctx).RecordBatch(ctx, rel.Name, string(rel.Cardinality), len(nodes), len(keys), len(rows))

	children := wrap(target, rows)
	if err := l.attach(ctx, fetches, target, children, sel.Children); err != nil {
		return loaded{}, err
	}
	for _, child := range children {
		remote := child.Row[rel.RemoteColumn]
		if remote.IsNull() {
			continue
		}
		res.grouped[remote.Key()] = append(res.grouped[remote.Key()], child)
	}
	return res, nil
}

func wrap(entity *schema.Entity, rows []store.Row) []*Node {
	nodes := make([]*Node, len(rows))
	for i, row := range rows {
		nodes[i] = &Node{Entity: entity, Row: row}
	}
	return nodes
}

// distinctKeys collects the non-null join keys of nodes in first-seen order.
func distinctKeys(nodes []*Node, column string) []value.Value {
	seen := make(map[string]struct{}, len(nodes))
	keys := make([]value.Value, 0, len(nodes))
	for _, node := range nodes {
		v := node.Row[column]
		if v.IsNull() {
			continue
		}
		k := v.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, v)
	}
	return keys
}

// merge folds repeated selections of the same relation into one, so a
// relation requested twice (aliases, fragments) is still fetched once.
func merge(selections []Selection) []Selection {
	if len(selections) < 2 {
		return selections
	}
	index := make(map[string]int, len(selections))
	out := make([]Selection, 0, len(selections))
	for _, sel := range selections {
		if i, ok := index[sel.Relation]; ok {
			out[i].Children = append(out[i].Children, sel.Children...)
			continue
		}
		index[sel.Relation] = len(out)
		out = append(out, Selection{Relation: sel.Relation, Children: append([]Selection(nil), sel.Children...)})
	}
	return out
}
