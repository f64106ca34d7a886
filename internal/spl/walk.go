package spl

import (
	language "github.com/hanpama/splgraph/internal/language"
	"github.com/hanpama/splgraph/internal/treepath"
)

// Visitor receives every field carrying a resolvable @SPL query together with
// the response path of that field.
type Visitor func(path treepath.Path, query string, field *language.Field)

// Walk traverses the field selections of the operation named operationName
// in pre-order and calls visit for each annotated field. An empty name
// selects the only operation of the document.
//
// Path segments are response keys: the alias when present, else the field
// name. Inline fragments and fragment spreads contribute their selections at
// the current path; a spread that is already being expanded is skipped.
func Walk(doc *language.QueryDocument, operationName string, visit Visitor) {
	if doc == nil || visit == nil {
		return
	}
	op := doc.Operations.ForName(operationName)
	if op == nil {
		return
	}
	w := &walker{doc: doc, visit: visit, expanding: make(map[string]bool)}
	w.selectionSet(op.SelectionSet, nil)
}

type walker struct {
	doc       *language.QueryDocument
	visit     Visitor
	expanding map[string]bool
}

func (w *walker) selectionSet(set language.SelectionSet, path treepath.Path) {
	for _, sel := range set {
		switch sel := sel.(type) {
		case *language.Field:
			fieldPath := path.Append(responseKey(sel))
			if query, ok := ResolveDirective(sel); ok {
				w.visit(fieldPath, query, sel)
			}
			w.selectionSet(sel.SelectionSet, fieldPath)
		case *language.InlineFragment:
			w.selectionSet(sel.SelectionSet, path)
		case *language.FragmentSpread:
			if w.expanding[sel.Name] {
				continue
			}
			def := w.doc.Fragments.ForName(sel.Name)
			if def == nil {
				continue
			}
			w.expanding[sel.Name] = true
			w.selectionSet(def.SelectionSet, path)
			delete(w.expanding, sel.Name)
		}
	}
}

func responseKey(f *language.Field) string {
	if f.Alias != "" {
		return f.Alias
	}
	return f.Name
}
