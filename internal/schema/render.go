package schema

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"
)

// Render produces SDL from the Schema. Directives come first, then types,
// each group sorted by name. Built-in scalars and @include/@skip are left out.
func Render(s *Schema) string {
	if s == nil {
		return ""
	}
	var blocks []string
	if def := schemaDefinition(s); def != nil {
		blocks = append(blocks, format(&ast.SchemaDocument{Schema: ast.SchemaDefinitionList{def}}))
	}
	for _, name := range slices.Sorted(maps.Keys(s.Directives)) {
		d := s.Directives[name]
		if isBuiltinDirective(d) {
			continue
		}
		blocks = append(blocks, format(&ast.SchemaDocument{Directives: ast.DirectiveDefinitionList{directiveToAST(d)}}))
	}
	for _, name := range slices.Sorted(maps.Keys(s.Types)) {
		t := s.Types[name]
		if isBuiltinType(t) {
			continue
		}
		blocks = append(blocks, format(&ast.SchemaDocument{Definitions: ast.DefinitionList{typeToAST(t)}}))
	}
	return strings.Join(blocks, "\n")
}

func format(doc *ast.SchemaDocument) string {
	var b strings.Builder
	formatter.NewFormatter(&b, formatter.WithIndent("  ")).FormatSchemaDocument(doc)
	return b.String()
}

// schemaDefinition returns nil when every root type uses its default name.
func schemaDefinition(s *Schema) *ast.SchemaDefinition {
	roots := []struct {
		op   ast.Operation
		name string
		def  string
	}{
		{ast.Query, s.QueryType, "Query"},
		{ast.Mutation, s.MutationType, "Mutation"},
		{ast.Subscription, s.SubscriptionType, "Subscription"},
	}
	custom := s.Description != ""
	def := &ast.SchemaDefinition{Description: s.Description}
	for _, r := range roots {
		if r.name == "" {
			continue
		}
		custom = custom || r.name != r.def
		def.OperationTypes = append(def.OperationTypes, &ast.OperationTypeDefinition{Operation: r.op, Type: r.name})
	}
	if !custom {
		return nil
	}
	return def
}

func directiveToAST(d *Directive) *ast.DirectiveDefinition {
	out := &ast.DirectiveDefinition{
		Name:         d.Name,
		Description:  d.Description,
		Arguments:    argumentsToAST(d.Arguments),
		IsRepeatable: d.IsRepeatable,
		Position:     &ast.Position{Src: &ast.Source{}},
	}
	for _, loc := range d.Locations {
		out.Locations = append(out.Locations, ast.DirectiveLocation(loc))
	}
	return out
}

var definitionKinds = map[TypeKind]ast.DefinitionKind{
	TypeKindScalar:      ast.Scalar,
	TypeKindObject:      ast.Object,
	TypeKindInterface:   ast.Interface,
	TypeKindUnion:       ast.Union,
	TypeKindEnum:        ast.Enum,
	TypeKindInputObject: ast.InputObject,
}

func typeToAST(t *Type) *ast.Definition {
	def := &ast.Definition{
		Kind:        definitionKinds[t.Kind],
		Name:        t.Name,
		Description: t.Description,
	}
	switch t.Kind {
	case TypeKindScalar:
		if t.SpecifiedByURL != nil {
			def.Directives = append(def.Directives, directiveUse("specifiedBy", "url", *t.SpecifiedByURL))
		}
	case TypeKindObject, TypeKindInterface:
		def.Interfaces = t.Interfaces
		for _, f := range t.Fields {
			def.Fields = append(def.Fields, &ast.FieldDefinition{
				Name:        f.Name,
				Description: f.Description,
				Arguments:   argumentsToAST(f.Arguments),
				Type:        typeRefToAST(f.Type),
				Directives:  deprecated(f.IsDeprecated, f.DeprecationReason),
			})
		}
	case TypeKindUnion:
		def.Types = t.PossibleTypes
	case TypeKindEnum:
		for _, v := range t.EnumValues {
			def.EnumValues = append(def.EnumValues, &ast.EnumValueDefinition{
				Name:        v.Name,
				Description: v.Description,
				Directives:  deprecated(v.IsDeprecated, v.DeprecationReason),
			})
		}
	case TypeKindInputObject:
		if t.OneOf {
			def.Directives = append(def.Directives, &ast.Directive{Name: "oneOf"})
		}
		for _, f := range t.InputFields {
			def.Fields = append(def.Fields, &ast.FieldDefinition{
				Name:         f.Name,
				Description:  f.Description,
				Type:         typeRefToAST(f.Type),
				DefaultValue: defaultToAST(f.DefaultValue),
				Directives:   deprecated(f.IsDeprecated, f.DeprecationReason),
			})
		}
	}
	return def
}

func argumentsToAST(args []*InputValue) ast.ArgumentDefinitionList {
	var out ast.ArgumentDefinitionList
	for _, a := range args {
		out = append(out, &ast.ArgumentDefinition{
			Name:         a.Name,
			Description:  a.Description,
			Type:         typeRefToAST(a.Type),
			DefaultValue: defaultToAST(a.DefaultValue),
			Directives:   deprecated(a.IsDeprecated, a.DeprecationReason),
		})
	}
	return out
}

func deprecated(is bool, reason string) ast.DirectiveList {
	switch {
	case !is:
		return nil
	case reason == "":
		return ast.DirectiveList{{Name: "deprecated"}}
	default:
		return ast.DirectiveList{directiveUse("deprecated", "reason", reason)}
	}
}

func directiveUse(name, arg, value string) *ast.Directive {
	return &ast.Directive{
		Name:      name,
		Arguments: ast.ArgumentList{{Name: arg, Value: &ast.Value{Kind: ast.StringValue, Raw: value}}},
	}
}

func typeRefToAST(t *TypeRef) *ast.Type {
	switch {
	case t == nil:
		return nil
	case t.Kind == TypeRefKindNonNull:
		inner := typeRefToAST(t.OfType)
		if inner == nil {
			return nil
		}
		inner.NonNull = true
		return inner
	case t.Kind == TypeRefKindList:
		return &ast.Type{Elem: typeRefToAST(t.OfType)}
	default:
		return &ast.Type{NamedType: t.Named}
	}
}

// defaultToAST keeps absent defaults absent; an explicit nil default is
// never produced by the builder.
func defaultToAST(v any) *ast.Value {
	if v == nil {
		return nil
	}
	return valueToAST(v)
}

func valueToAST(value any) *ast.Value {
	switch v := value.(type) {
	case nil:
		return &ast.Value{Kind: ast.NullValue, Raw: "null"}
	case string:
		return &ast.Value{Kind: ast.StringValue, Raw: v}
	case bool:
		return &ast.Value{Kind: ast.BooleanValue, Raw: strconv.FormatBool(v)}
	case int:
		return &ast.Value{Kind: ast.IntValue, Raw: strconv.Itoa(v)}
	case int32:
		return &ast.Value{Kind: ast.IntValue, Raw: strconv.FormatInt(int64(v), 10)}
	case int64:
		return &ast.Value{Kind: ast.IntValue, Raw: strconv.FormatInt(v, 10)}
	case float32:
		return &ast.Value{Kind: ast.FloatValue, Raw: strconv.FormatFloat(float64(v), 'g', -1, 32)}
	case float64:
		return &ast.Value{Kind: ast.FloatValue, Raw: strconv.FormatFloat(v, 'g', -1, 64)}
	case []any:
		list := &ast.Value{Kind: ast.ListValue}
		for _, item := range v {
			list.Children = append(list.Children, &ast.ChildValue{Value: valueToAST(item)})
		}
		return list
	case map[string]any:
		obj := &ast.Value{Kind: ast.ObjectValue}
		for _, k := range slices.Sorted(maps.Keys(v)) {
			obj.Children = append(obj.Children, &ast.ChildValue{Name: k, Value: valueToAST(v[k])})
		}
		return obj
	default:
		return &ast.Value{Kind: ast.EnumValue, Raw: fmt.Sprint(v)}
	}
}

// RenderValue renders a Go value as a GraphQL literal, the form used for
// default values in SDL and introspection.
func RenderValue(value any) string {
	return valueToAST(value).String()
}
