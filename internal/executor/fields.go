package executor

import (
	"slices"

	language "github.com/hanpama/splgraph/internal/language"
	schema "github.com/hanpama/splgraph/internal/schema"
)

// fieldGroup is every field node that writes to one response key.
type fieldGroup struct {
	ResponseName string
	Fields       []*language.Field
}

// groupedFields keeps field groups in the order their response keys first
// appear in the selection set.
type groupedFields struct {
	groups []fieldGroup
	byName map[string]int
}

func (g *groupedFields) add(field *language.Field) {
	name := field.Alias
	if name == "" {
		name = field.Name
	}
	if i, ok := g.byName[name]; ok {
		g.groups[i].Fields = append(g.groups[i].Fields, field)
		return
	}
	g.byName[name] = len(g.groups)
	g.groups = append(g.groups, fieldGroup{ResponseName: name, Fields: []*language.Field{field}})
}

func (g *groupedFields) orderedFields() []fieldGroup { return g.groups }

// collectFields implements CollectFields from the GraphQL execution
// algorithm for objectType. Each fragment is expanded at most once.
func collectFields(state *executionState, objectType *schema.Type, selectionSet language.SelectionSet) *groupedFields {
	g := &groupedFields{byName: make(map[string]int)}
	c := fieldCollector{state: state, objectType: objectType, visited: make(map[string]bool), out: g}
	c.collect(selectionSet)
	return g
}

type fieldCollector struct {
	state      *executionState
	objectType *schema.Type
	visited    map[string]bool
	out        *groupedFields
}

func (c *fieldCollector) collect(selectionSet language.SelectionSet) {
	for _, selection := range selectionSet {
		switch sel := selection.(type) {
		case *language.Field:
			if c.included(sel.Directives) {
				c.out.add(sel)
			}
		case *language.InlineFragment:
			if c.included(sel.Directives) && c.applies(sel.TypeCondition) {
				c.collect(sel.SelectionSet)
			}
		case *language.FragmentSpread:
			if c.visited[sel.Name] || !c.included(sel.Directives) {
				continue
			}
			c.visited[sel.Name] = true
			frag := c.state.document.Fragments.ForName(sel.Name)
			if frag == nil || !c.applies(frag.TypeCondition) || !c.included(frag.Directives) {
				continue
			}
			c.collect(frag.SelectionSet)
		}
	}
}

// applies reports whether a fragment with the given type condition applies
// to the object type being collected.
func (c *fieldCollector) applies(condition string) bool {
	if condition == "" || condition == c.objectType.Name {
		return true
	}
	cond := c.state.schema.Types[condition]
	if cond == nil {
		return false
	}
	switch cond.Kind {
	case schema.TypeKindInterface:
		return slices.Contains(c.objectType.Interfaces, condition) || slices.Contains(cond.PossibleTypes, c.objectType.Name)
	case schema.TypeKindUnion:
		return slices.Contains(cond.PossibleTypes, c.objectType.Name)
	}
	return false
}

// included evaluates @skip and @include. A condition that cannot be read as
// a boolean leaves the node in.
func (c *fieldCollector) included(directives language.DirectiveList) bool {
	if v, ok := c.condition(directives.ForName("skip")); ok && v {
		return false
	}
	if v, ok := c.condition(directives.ForName("include")); ok && !v {
		return false
	}
	return true
}

func (c *fieldCollector) condition(d *language.Directive) (value, ok bool) {
	if d == nil {
		return false, false
	}
	arg := d.Arguments.ForName("if")
	if arg == nil {
		return false, false
	}
	value, ok = literal(arg.Value, c.state.variableValues).(bool)
	return value, ok
}
