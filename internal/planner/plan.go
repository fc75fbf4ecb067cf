// Package planner turns a compiled filter, an ordering and a pagination
// request into a concrete fetch plan. Planning is pure: all continuation
// state lives in the cursor, never on the server.
package planner

import (
	"errors"
	"fmt"

	"relquery/internal/cursor"
	"relquery/internal/predicate"
	"relquery/internal/schema"
)

const (
	// DefaultLimit is the page size used when a request does not give one.
	DefaultLimit = 25
	// MaxLimit caps the page size; larger requests are clamped.
	MaxLimit = 100
)

// Limits bounds page sizes.
type Limits struct {
	Default int
	Max     int
}

// DefaultLimits returns the built-in page size bounds.
func DefaultLimits() Limits {
	return Limits{Default: DefaultLimit, Max: MaxLimit}
}

// Request is a pagination request: PageMode or CursorMode.
type Request interface {
	isRequest()
}

// PageMode requests a numbered page. Pages start at 1.
type PageMode struct {
	Page  int
	Limit int
}

// CursorMode requests a keyset page after (or, when Backward, before) the
// row identified by Cursor. An empty Cursor starts from the beginning, or
// from the end when Backward.
type CursorMode struct {
	Limit    int
	Cursor   string
	Backward bool
}

func (PageMode) isRequest()   {}
func (CursorMode) isRequest() {}

// PaginationError reports invalid page or limit values.
type PaginationError struct {
	Field   string
	Message string
}

func (e *PaginationError) Error() string {
	return fmt.Sprintf("invalid pagination %s: %s", e.Field, e.Message)
}

// FetchPlan is the per-request plan the engine executes.
type FetchPlan struct {
	Entity *schema.Entity
	// Filter is the compiled filter alone; counts use it.
	Filter predicate.Predicate
	// Where is Filter plus the cursor boundary.
	Where predicate.Predicate
	// Ordering is the declared total order, used for cursors and output.
	Ordering OrderingKey
	// FetchOrder is the order rows are fetched in; reversed when backward.
	FetchOrder OrderingKey
	// Limit is the number of rows to fetch, including any sentinel row.
	Limit  int
	Offset int
	// PageSize is the number of rows the caller asked for after clamping.
	PageSize int

	// Keyset is set for cursor-mode plans.
	Keyset     bool
	Page       int
	NeedsCount bool
	Backward   bool
	HasCursor  bool
}

// Planner produces fetch plans.
type Planner struct {
	limits Limits
}

// New creates a planner. Zero limit fields fall back to the defaults.
func New(limits Limits) *Planner {
	if limits.Default <= 0 {
		limits.Default = DefaultLimit
	}
	if limits.Max <= 0 {
		limits.Max = MaxLimit
	}
	if limits.Default > limits.Max {
		limits.Default = limits.Max
	}
	return &Planner{limits: limits}
}

// DefaultLimit returns the configured default page size.
func (p *Planner) DefaultLimit() int {
	return p.limits.Default
}

// Plan builds the fetch plan for one request.
func (p *Planner) Plan(entity *schema.Entity, filter predicate.Predicate, ordering OrderingKey, req Request) (*FetchPlan, error) {
	if entity == nil {
		return nil, errors.New("plan: nil entity")
	}
	if len(ordering) == 0 {
		return nil, errors.New("plan: empty ordering key")
	}
	if filter == nil {
		filter = predicate.True{}
	}

	switch r := req.(type) {
	case PageMode:
		if r.Page < 1 {
			return nil, &PaginationError{Field: "page", Message: fmt.Sprintf("must be >= 1, got %d", r.Page)}
		}
		limit, err := p.clamp(r.Limit)
		if err != nil {
			return nil, err
		}
		return &FetchPlan{
			Entity:     entity,
			Filter:     filter,
			Where:      filter,
			Ordering:   ordering,
			FetchOrder: ordering,
			Limit:      limit,
			Offset:     (r.Page - 1) * limit,
			PageSize:   limit,
			Page:       r.Page,
			NeedsCount: true,
		}, nil

	case CursorMode:
		limit, err := p.clamp(r.Limit)
		if err != nil {
			return nil, err
		}
		plan := &FetchPlan{
			Entity:     entity,
			Filter:     filter,
			Where:      filter,
			Ordering:   ordering,
			FetchOrder: ordering,
			Limit:      limit + 1,
			PageSize:   limit,
			Keyset:     true,
			Backward:   r.Backward,
		}
		if r.Backward {
			plan.FetchOrder = ordering.Reverse()
		}
		if r.Cursor != "" {
			decoded, err := cursor.Decode(r.Cursor)
			if err != nil {
				return nil, err
			}
			values, err := cursor.Check(decoded, ordering.Kinds())
			if err != nil {
				return nil, err
			}
			plan.HasCursor = true
			plan.Where = predicate.Conj(filter, Boundary(ordering, values, r.Backward))
		}
		return plan, nil

	case nil:
		return p.Plan(entity, filter, ordering, PageMode{Page: 1, Limit: p.limits.Default})

	default:
		return nil, fmt.Errorf("plan: unsupported pagination request %T", req)
	}
}

func (p *Planner) clamp(limit int) (int, error) {
	if limit < 1 {
		return 0, &PaginationError{Field: "limit", Message: fmt.Sprintf("must be >= 1, got %d", limit)}
	}
	if limit > p.limits.Max {
		return p.limits.Max, nil
	}
	return limit, nil
}

// TotalPages returns ceil(count / limit).
func TotalPages(count int64, limit int) int {
	if limit <= 0 || count <= 0 {
		return 0
	}
	return int((count + int64(limit) - 1) / int64(limit))
}
