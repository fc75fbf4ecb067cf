package gqlrequest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/printer"
)

const anonymousOperation = "<anonymous>"

func operationName(op *ast.OperationDefinition) string {
	if op == nil || op.Name == nil || op.Name.Value == "" {
		return anonymousOperation
	}
	return op.Name.Value
}

// operationHash fingerprints the selected operation and the fragments it
// reaches, printed in canonical form. Whitespace, comments and unrelated
// definitions in the document do not change the hash.
func operationHash(op *ast.OperationDefinition, fragments map[string]*ast.FragmentDefinition) (string, error) {
	names := map[string]bool{}
	reachableFragments(op.SelectionSet, fragments, names)
	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	definitions := []ast.Node{op}
	for _, name := range sorted {
		frag, ok := fragments[name]
		if !ok {
			return "", fmt.Errorf("fragment %q not found", name)
		}
		definitions = append(definitions, frag)
	}

	printed, ok := printer.Print(ast.NewDocument(&ast.Document{Definitions: definitions})).(string)
	if !ok {
		return "", fmt.Errorf("operation did not print as a string")
	}

	h := sha256.New()
	for _, part := range []string{printed, operationName(op)} {
		_, _ = fmt.Fprintf(h, "%d:%s|", len(part), part)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func reachableFragments(set *ast.SelectionSet, fragments map[string]*ast.FragmentDefinition, seen map[string]bool) {
	if set == nil {
		return
	}
	for _, selection := range set.Selections {
		switch sel := selection.(type) {
		case *ast.Field:
			reachableFragments(sel.SelectionSet, fragments, seen)
		case *ast.InlineFragment:
			reachableFragments(sel.SelectionSet, fragments, seen)
		case *ast.FragmentSpread:
			if sel.Name == nil || seen[sel.Name.Value] {
				continue
			}
			seen[sel.Name.Value] = true
			if frag := fragments[sel.Name.Value]; frag != nil {
				reachableFragments(frag.SelectionSet, fragments, seen)
			}
		}
	}
}
