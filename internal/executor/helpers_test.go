package executor

import (
	"testing"

	"github.com/stretchr/testify/require"

	language "github.com/hanpama/splgraph/internal/language"
	schema "github.com/hanpama/splgraph/internal/schema"
)

func newTestSchema(query *schema.Type, types ...*schema.Type) *schema.Schema {
	sch := schema.NewSchema("").SetQueryType(query.Name).AddType(query)
	for _, t := range types {
		sch.AddType(t)
	}
	return sch
}

func testObject(name string, fields ...*schema.Field) *schema.Type {
	t := schema.NewType(name, schema.TypeKindObject, "")
	t.Fields = fields
	return t
}

func mustParse(t *testing.T, query string) *language.QueryDocument {
	t.Helper()
	doc, err := language.ParseQuery(query)
	require.NoError(t, err)
	return doc
}
