// Package introspection answers the __schema and __type meta fields on top of
// any executor.Runtime.
package introspection

import (
	"cmp"
	"context"
	"slices"
	"strings"

	executor "github.com/hanpama/splgraph/internal/executor"
	schema "github.com/hanpama/splgraph/internal/schema"
)

// Runtime resolves introspection fields and delegates everything else to the
// wrapped runtime. Subscriptions are forwarded when the wrapped runtime
// supports them.
type Runtime struct {
	base   executor.Runtime
	schema *schema.Schema
}

var (
	_ executor.Runtime             = (*Runtime)(nil)
	_ executor.SubscriptionRuntime = (*Runtime)(nil)
)

// Wrap extends sch with the introspection types and returns a runtime that
// serves them. The returned schema must be used to build the executor.
func Wrap(base executor.Runtime, sch *schema.Schema) (*Runtime, *schema.Schema, error) {
	extended, err := extend(sch)
	if err != nil {
		return nil, nil, err
	}
	return &Runtime{base: base, schema: extended}, extended, nil
}

func (r *Runtime) ResolveSync(ctx context.Context, objectType, field string, source any, args map[string]any) (any, error) {
	switch src := source.(type) {
	case *schema.Schema:
		return r.schemaField(src, field), nil
	case *schema.Type:
		return r.typeField(src, field, args), nil
	case *schema.TypeRef:
		return r.typeRefField(src, field, args), nil
	case *schema.Field:
		return fieldField(src, field, args), nil
	case *schema.InputValue:
		return inputValueField(src, field), nil
	case *schema.EnumValue:
		return enumValueField(src, field), nil
	case *schema.Directive:
		return directiveField(src, field, args), nil
	}

	if objectType == r.schema.QueryType {
		switch field {
		case "__schema":
			return r.schema, nil
		case "__type":
			name, _ := args["name"].(string)
			if t, ok := r.schema.Types[name]; ok {
				return t, nil
			}
			return nil, nil
		}
	}
	return r.base.ResolveSync(ctx, objectType, field, source, args)
}

func (r *Runtime) BatchResolveAsync(ctx context.Context, tasks []executor.AsyncResolveTask) []executor.AsyncResolveResult {
	return r.base.BatchResolveAsync(ctx, tasks)
}

func (r *Runtime) ResolveType(ctx context.Context, abstractType string, value any) (string, error) {
	return r.base.ResolveType(ctx, abstractType, value)
}

func (r *Runtime) ResolveUnionConcreteValue(ctx context.Context, unionTypeName string, value any) (any, error) {
	return r.base.ResolveUnionConcreteValue(ctx, unionTypeName, value)
}

func (r *Runtime) ResolveInterfaceConcreteValue(ctx context.Context, interfaceTypeName string, value any) (any, error) {
	return r.base.ResolveInterfaceConcreteValue(ctx, interfaceTypeName, value)
}

func (r *Runtime) SerializeLeafValue(ctx context.Context, typ string, value any) (any, error) {
	return r.base.SerializeLeafValue(ctx, typ, value)
}

func (r *Runtime) Subscribe(ctx context.Context, objectType, field string, args map[string]any) (<-chan any, error) {
	srt, ok := r.base.(executor.SubscriptionRuntime)
	if !ok {
		return nil, executor.ErrSubscriptionsUnsupported
	}
	return srt.Subscribe(ctx, objectType, field, args)
}

func (r *Runtime) schemaField(sch *schema.Schema, field string) any {
	switch field {
	case "types":
		types := make([]*schema.Type, 0, len(sch.Types))
		for _, t := range sch.Types {
			types = append(types, t)
		}
		return sortByName(types, func(t *schema.Type) string { return t.Name })
	case "queryType":
		return nullable(sch.GetQueryType())
	case "mutationType":
		return nullable(sch.GetMutationType())
	case "subscriptionType":
		return nullable(sch.GetSubscriptionType())
	case "directives":
		dirs := make([]*schema.Directive, 0, len(sch.Directives))
		for _, d := range sch.Directives {
			dirs = append(dirs, d)
		}
		return sortByName(dirs, func(d *schema.Directive) string { return d.Name })
	case "description":
		return optional(sch.Description)
	}
	return nil
}

func (r *Runtime) typeField(t *schema.Type, field string, args map[string]any) any {
	switch field {
	case "kind":
		return string(t.Kind)
	case "name":
		return t.Name
	case "description":
		return optional(t.Description)
	case "specifiedByURL":
		if t.SpecifiedByURL == nil {
			return nil
		}
		return *t.SpecifiedByURL
	case "fields":
		if t.Kind != schema.TypeKindObject && t.Kind != schema.TypeKindInterface {
			return nil
		}
		fields := slices.DeleteFunc(slices.Clone(t.Fields), func(f *schema.Field) bool {
			return strings.HasPrefix(f.Name, "__")
		})
		return visible(fields, args, func(f *schema.Field) bool { return f.IsDeprecated })
	case "interfaces":
		if t.Kind != schema.TypeKindObject && t.Kind != schema.TypeKindInterface {
			return nil
		}
		return r.lookup(t.Interfaces)
	case "possibleTypes":
		if t.Kind != schema.TypeKindInterface && t.Kind != schema.TypeKindUnion {
			return nil
		}
		return r.lookup(t.PossibleTypes)
	case "enumValues":
		if t.Kind != schema.TypeKindEnum {
			return nil
		}
		return visible(t.EnumValues, args, func(v *schema.EnumValue) bool { return v.IsDeprecated })
	case "inputFields":
		if t.Kind != schema.TypeKindInputObject {
			return nil
		}
		return visible(t.InputFields, args, func(v *schema.InputValue) bool { return v.IsDeprecated })
	case "isOneOf":
		if t.Kind != schema.TypeKindInputObject {
			return nil
		}
		return t.OneOf
	case "ofType":
		// Named types are leaves; wrappers are *schema.TypeRef.
		return nil
	}
	return nil
}

func (r *Runtime) typeRefField(tr *schema.TypeRef, field string, args map[string]any) any {
	if tr.Kind == schema.TypeRefKindNamed {
		if t, ok := r.schema.Types[tr.Named]; ok {
			return r.typeField(t, field, args)
		}
		return nil
	}
	switch field {
	case "kind":
		return string(tr.Kind)
	case "ofType":
		return tr.OfType
	}
	return nil
}

// lookup returns the named types in name order, skipping unknown names.
func (r *Runtime) lookup(names []string) []*schema.Type {
	out := make([]*schema.Type, 0, len(names))
	for _, name := range names {
		if t, ok := r.schema.Types[name]; ok {
			out = append(out, t)
		}
	}
	return sortByName(out, func(t *schema.Type) string { return t.Name })
}

func fieldField(f *schema.Field, field string, args map[string]any) any {
	switch field {
	case "name":
		return f.Name
	case "description":
		return optional(f.Description)
	case "args":
		return visible(f.Arguments, args, func(v *schema.InputValue) bool { return v.IsDeprecated })
	case "type":
		return f.Type
	case "isDeprecated":
		return f.IsDeprecated
	case "deprecationReason":
		return reason(f.IsDeprecated, f.DeprecationReason)
	}
	return nil
}

func inputValueField(v *schema.InputValue, field string) any {
	switch field {
	case "name":
		return v.Name
	case "description":
		return optional(v.Description)
	case "type":
		return v.Type
	case "defaultValue":
		if v.DefaultValue == nil {
			return nil
		}
		return schema.RenderValue(v.DefaultValue)
	case "isDeprecated":
		return v.IsDeprecated
	case "deprecationReason":
		return reason(v.IsDeprecated, v.DeprecationReason)
	}
	return nil
}

func enumValueField(v *schema.EnumValue, field string) any {
	switch field {
	case "name":
		return v.Name
	case "description":
		return optional(v.Description)
	case "isDeprecated":
		return v.IsDeprecated
	case "deprecationReason":
		return reason(v.IsDeprecated, v.DeprecationReason)
	}
	return nil
}

func directiveField(d *schema.Directive, field string, args map[string]any) any {
	switch field {
	case "name":
		return d.Name
	case "description":
		return optional(d.Description)
	case "isRepeatable":
		return d.IsRepeatable
	case "locations":
		return slices.Clone(d.Locations)
	case "args":
		return visible(d.Arguments, args, func(v *schema.InputValue) bool { return v.IsDeprecated })
	}
	return nil
}

// visible drops deprecated entries unless includeDeprecated is set.
func visible[T any](items []T, args map[string]any, deprecated func(T) bool) []T {
	if include, _ := args["includeDeprecated"].(bool); include {
		return slices.Clone(items)
	}
	out := make([]T, 0, len(items))
	for _, item := range items {
		if !deprecated(item) {
			out = append(out, item)
		}
	}
	return out
}

func sortByName[T any](items []T, name func(T) string) []T {
	slices.SortFunc(items, func(a, b T) int { return cmp.Compare(name(a), name(b)) })
	return items
}

// nullable keeps a missing root type from becoming a typed nil.
func nullable(t *schema.Type) any {
	if t == nil {
		return nil
	}
	return t
}

func optional(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func reason(deprecated bool, r string) any {
	if !deprecated {
		return nil
	}
	return r
}
