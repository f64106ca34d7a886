// Package spl rewrites list values in execution results according to @SPL
// directives found on the executed query's field selections.
package spl

import language "github.com/hanpama/splgraph/internal/language"

const (
	// DirectiveName is the name of the result filtering directive.
	DirectiveName = "SPL"
	// QueryArgument is the directive argument holding the filter query.
	QueryArgument = "query"
)

// DirectiveTypeDefs declares @SPL. Host schemas merge it into their SDL so
// that queries using the directive pass validation.
const DirectiveTypeDefs = `"""
Sorts, filters or paginates the list value of the annotated field once the
operation has been executed. The query is evaluated by the server's filter
engine with the list bound to items and each element bound to item.
"""
directive @SPL(
  """
  Filter engine query, for example "item.age > 25" or "items.slice(0, 10)".
  """
  query: String
) on FIELD
`

// ResolveDirective returns the query of the first @SPL directive on field.
// The query argument must be a string literal; variables and other kinds of
// values are ignored.
func ResolveDirective(field *language.Field) (string, bool) {
	if field == nil {
		return "", false
	}
	d := field.Directives.ForName(DirectiveName)
	if d == nil {
		return "", false
	}
	arg := d.Arguments.ForName(QueryArgument)
	if arg == nil || arg.Value == nil {
		return "", false
	}
	switch arg.Value.Kind {
	case language.StringValue, language.BlockValue:
		return arg.Value.Raw, true
	}
	return "", false
}
