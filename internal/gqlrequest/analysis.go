package gqlrequest

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
	"github.com/graphql-go/graphql/language/source"
)

// Analysis is the derived metadata for one GraphQL request.
type Analysis struct {
	Envelope Envelope

	OperationName string
	OperationType string
	OperationHash string

	// RootFields are the distinct top-level fields selected, sorted. Each is
	// an entity root field or an introspection field.
	RootFields     []string
	FieldCount     int
	SelectionDepth int
	VariableCount  int

	// Err is the first decode, parse or operation selection failure. The
	// GraphQL handler reports these to the client itself.
	Err error
}

// Analyze decodes r and analyzes its document.
func Analyze(r *http.Request) *Analysis {
	env, err := DecodeEnvelope(r)
	analysis := AnalyzeEnvelope(env)
	if err != nil {
		analysis.Err = err
	}
	return analysis
}

// AnalyzeEnvelope parses the envelope's query and selects its operation.
func AnalyzeEnvelope(env Envelope) *Analysis {
	analysis := &Analysis{Envelope: env}
	if strings.TrimSpace(env.Query) == "" {
		return analysis
	}

	doc, err := parser.Parse(parser.ParseParams{
		Source: source.NewSource(&source.Source{Body: []byte(env.Query), Name: "graphql"}),
	})
	if err != nil {
		analysis.Err = err
		return analysis
	}

	fragments := fragmentsOf(doc)
	op, err := selectOperation(doc, env.OperationName)
	if err != nil {
		analysis.Err = err
		return analysis
	}

	analysis.OperationName = operationName(op)
	analysis.OperationType = string(op.Operation)
	analysis.VariableCount = len(op.VariableDefinitions)
	analysis.RootFields = rootFields(op.SelectionSet, fragments)

	w := &walker{fragments: fragments, active: map[string]bool{}}
	analysis.FieldCount, analysis.SelectionDepth = w.walk(op.SelectionSet, 1)

	hash, err := operationHash(op, fragments)
	if err != nil {
		analysis.Err = err
		return analysis
	}
	analysis.OperationHash = hash
	return analysis
}

func fragmentsOf(doc *ast.Document) map[string]*ast.FragmentDefinition {
	fragments := map[string]*ast.FragmentDefinition{}
	for _, def := range doc.Definitions {
		if frag, ok := def.(*ast.FragmentDefinition); ok && frag.Name != nil && frag.Name.Value != "" {
			fragments[frag.Name.Value] = frag
		}
	}
	return fragments
}

func selectOperation(doc *ast.Document, name string) (*ast.OperationDefinition, error) {
	var ops []*ast.OperationDefinition
	for _, def := range doc.Definitions {
		if op, ok := def.(*ast.OperationDefinition); ok && op != nil {
			ops = append(ops, op)
		}
	}

	if name != "" {
		for _, op := range ops {
			if op.Name != nil && op.Name.Value == name {
				return op, nil
			}
		}
		return nil, fmt.Errorf("unknown operation named %q", name)
	}
	switch len(ops) {
	case 0:
		return nil, fmt.Errorf("request does not include an operation")
	case 1:
		return ops[0], nil
	default:
		return nil, fmt.Errorf("operationName is required when request has multiple operations")
	}
}

func rootFields(set *ast.SelectionSet, fragments map[string]*ast.FragmentDefinition) []string {
	seen := map[string]bool{}
	var visit func(*ast.SelectionSet, map[string]bool)
	visit = func(set *ast.SelectionSet, spread map[string]bool) {
		if set == nil {
			return
		}
		for _, selection := range set.Selections {
			switch sel := selection.(type) {
			case *ast.Field:
				if sel.Name != nil {
					seen[sel.Name.Value] = true
				}
			case *ast.InlineFragment:
				visit(sel.SelectionSet, spread)
			case *ast.FragmentSpread:
				if sel.Name == nil || spread[sel.Name.Value] {
					continue
				}
				spread[sel.Name.Value] = true
				if frag := fragments[sel.Name.Value]; frag != nil {
					visit(frag.SelectionSet, spread)
				}
			}
		}
	}
	visit(set, map[string]bool{})

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// walker counts fields and selection depth. A fragment spread already being
// expanded on the current path is skipped so cyclic fragments terminate.
type walker struct {
	fragments map[string]*ast.FragmentDefinition
	active    map[string]bool
}

func (w *walker) walk(set *ast.SelectionSet, depth int) (fields, maxDepth int) {
	if set == nil {
		return 0, depth - 1
	}
	maxDepth = depth
	merge := func(f, d int) {
		fields += f
		if d > maxDepth {
			maxDepth = d
		}
	}

	for _, selection := range set.Selections {
		switch sel := selection.(type) {
		case *ast.Field:
			fields++
			if sel.SelectionSet != nil {
				merge(w.walk(sel.SelectionSet, depth+1))
			}
		case *ast.InlineFragment:
			merge(w.walk(sel.SelectionSet, depth))
		case *ast.FragmentSpread:
			if sel.Name == nil || w.active[sel.Name.Value] {
				continue
			}
			frag := w.fragments[sel.Name.Value]
			if frag == nil {
				continue
			}
			w.active[sel.Name.Value] = true
			merge(w.walk(frag.SelectionSet, depth))
			delete(w.active, sel.Name.Value)
		}
	}
	return fields, maxDepth
}

type analysisContextKey struct{}

// WithAnalysis stores analysis in ctx.
func WithAnalysis(ctx context.Context, analysis *Analysis) context.Context {
	return context.WithValue(ctx, analysisContextKey{}, analysis)
}

// FromContext returns the request analysis, or nil.
func FromContext(ctx context.Context) *Analysis {
	if ctx == nil {
		return nil
	}
	analysis, _ := ctx.Value(analysisContextKey{}).(*Analysis)
	return analysis
}
