package introspection

import (
	"fmt"
	"strings"
	"sync"

	language "github.com/hanpama/splgraph/internal/language"
	schema "github.com/hanpama/splgraph/internal/schema"
)

// preludeSchema is a minimal validated schema used to lift the meta types
// (__Schema, __Type, ...) out of the gqlparser prelude for schemas that were
// assembled by hand.
var preludeSchema = sync.OnceValues(func() (*language.ValidatedSchema, error) {
	return language.LoadSchema(&language.Source{Name: "introspection.graphql", Input: "type Query { ok: Boolean }"})
})

// metaTypes converts the introspection types declared by the prelude.
func metaTypes(sch *schema.Schema) (map[string]*schema.Type, error) {
	src := sch.Validated
	if src == nil {
		var err error
		if src, err = preludeSchema(); err != nil {
			return nil, fmt.Errorf("load introspection prelude: %w", err)
		}
	}
	out := make(map[string]*schema.Type)
	for name, def := range src.Types {
		if !strings.HasPrefix(name, "__") {
			continue
		}
		if t := schema.BuildType(src, def); t != nil {
			out[name] = t
		}
	}
	if out["__Schema"] == nil || out["__Type"] == nil {
		return nil, fmt.Errorf("introspection types missing from prelude")
	}
	return out, nil
}

// extend returns a copy of sch with the meta types and the __schema/__type
// root fields added. sch itself is not modified.
func extend(sch *schema.Schema) (*schema.Schema, error) {
	meta, err := metaTypes(sch)
	if err != nil {
		return nil, err
	}
	extended := &schema.Schema{
		QueryType:        sch.QueryType,
		MutationType:     sch.MutationType,
		SubscriptionType: sch.SubscriptionType,
		Types:            make(map[string]*schema.Type, len(sch.Types)+len(meta)),
		Directives:       sch.Directives,
		Description:      sch.Description,
		Validated:        sch.Validated,
	}
	for name, t := range sch.Types {
		extended.Types[name] = t
	}
	for name, t := range meta {
		extended.Types[name] = t
	}

	query := sch.GetQueryType()
	if query == nil {
		return extended, nil
	}
	root := *query
	root.Fields = append(append([]*schema.Field(nil), query.Fields...),
		schema.NewField("__schema", "Access the current type schema of this server.",
			schema.NonNullType(schema.NamedType("__Schema"))),
		schema.NewField("__type", "Request the type information of a single type.",
			schema.NamedType("__Type")).
			AddArgument(schema.NewInputValue("name", "The name of the type to look up.",
				schema.NonNullType(schema.NamedType("String")))),
	)
	extended.Types[root.Name] = &root
	return extended, nil
}
