package schema

import (
	"fmt"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"

	language "github.com/hanpama/splgraph/internal/language"
)

// BuildFromSDL parses and validates the given SDL sources as a single schema
// and returns its executable form. Sources are merged in order, so a host
// schema and extra directive declarations can be passed side by side.
func BuildFromSDL(sources ...string) (*Schema, error) {
	srcs := make([]*language.Source, 0, len(sources))
	for i, sdl := range sources {
		srcs = append(srcs, &language.Source{Name: fmt.Sprintf("schema%d.graphql", i), Input: sdl})
	}
	return Load(srcs...)
}

// Load validates named SDL sources with gqlparser and builds the executable
// schema from the result.
func Load(sources ...*language.Source) (*Schema, error) {
	validated, err := language.LoadSchema(sources...)
	if err != nil {
		return nil, err
	}
	return BuildFromAST(validated), nil
}

// BuildFromAST converts a validated gqlparser schema. Prelude definitions
// other than the five standard scalars and @include/@skip are left out, as
// are introspection types and fields.
func BuildFromAST(src *ast.Schema) *Schema {
	s := NewSchema(src.Description)
	s.Validated = src
	if src.Query != nil {
		s.SetQueryType(src.Query.Name)
	}
	if src.Mutation != nil {
		s.SetMutationType(src.Mutation.Name)
	}
	if src.Subscription != nil {
		s.SetSubscriptionType(src.Subscription.Name)
	}

	for name, def := range src.Types {
		if strings.HasPrefix(name, "__") || def.BuiltIn || isBuiltIn(def.Position) {
			continue
		}
		if t := BuildType(src, def); t != nil {
			s.AddType(t)
		}
	}

	for name, dir := range src.Directives {
		if isBuiltIn(dir.Position) {
			continue
		}
		d := NewDirective(name, dir.Description).SetRepeatable(dir.IsRepeatable)
		for _, loc := range dir.Locations {
			d.Locations = append(d.Locations, string(loc))
		}
		for _, arg := range dir.Arguments {
			d.AddArgument(buildInputValue(arg.Name, arg.Description, arg.Type, arg.DefaultValue, arg.Directives))
		}
		s.AddDirective(d)
	}
	return s
}

// BuildType converts a single named definition of src. Prelude definitions
// are converted too, so callers can lift introspection types from it.
func BuildType(src *ast.Schema, def *ast.Definition) *Type {
	switch def.Kind {
	case ast.Object, ast.Interface:
		return buildObjectLike(src, def)
	case ast.Union:
		t := NewType(def.Name, TypeKindUnion, def.Description)
		for _, name := range def.Types {
			t.AddPossibleType(name)
		}
		return t
	case ast.Enum:
		t := NewType(def.Name, TypeKindEnum, def.Description)
		for _, v := range def.EnumValues {
			ev := NewEnumValue(v.Name, v.Description)
			if reason, ok := deprecation(v.Directives); ok {
				ev.Deprecate(reason)
			}
			t.AddEnumValue(ev)
		}
		return t
	case ast.InputObject:
		t := NewType(def.Name, TypeKindInputObject, def.Description).
			SetOneOf(def.Directives.ForName("oneOf") != nil)
		for _, f := range def.Fields {
			t.AddInputField(buildInputValue(f.Name, f.Description, f.Type, f.DefaultValue, f.Directives))
		}
		return t
	case ast.Scalar:
		t := NewType(def.Name, TypeKindScalar, def.Description)
		if sb := def.Directives.ForName("specifiedBy"); sb != nil {
			if arg := sb.Arguments.ForName("url"); arg != nil && arg.Value != nil {
				t.SetSpecifiedByURL(arg.Value.Raw)
			}
		}
		return t
	}
	return nil
}

func buildObjectLike(src *ast.Schema, def *ast.Definition) *Type {
	kind := TypeKindObject
	if def.Kind == ast.Interface {
		kind = TypeKindInterface
	}
	t := NewType(def.Name, kind, def.Description)
	for _, name := range def.Interfaces {
		t.AddInterface(name)
	}
	if kind == TypeKindInterface {
		for _, pt := range src.PossibleTypes[def.Name] {
			t.AddPossibleType(pt.Name)
		}
	}
	for _, fd := range def.Fields {
		if strings.HasPrefix(fd.Name, "__") {
			continue
		}
		f := NewField(fd.Name, fd.Description, TypeRefFromAST(fd.Type))
		for _, arg := range fd.Arguments {
			f.AddArgument(buildInputValue(arg.Name, arg.Description, arg.Type, arg.DefaultValue, arg.Directives))
		}
		if reason, ok := deprecation(fd.Directives); ok {
			f.Deprecate(reason)
		}
		t.AddField(f)
	}
	return t
}

func buildInputValue(name, description string, typ *ast.Type, def *ast.Value, dirs ast.DirectiveList) *InputValue {
	in := NewInputValue(name, description, TypeRefFromAST(typ))
	if def != nil {
		if v, err := def.Value(nil); err == nil {
			in.SetDefault(v)
		}
	}
	if reason, ok := deprecation(dirs); ok {
		in.Deprecate(reason)
	}
	return in
}

// TypeRefFromAST converts a gqlparser type expression.
func TypeRefFromAST(t *ast.Type) *TypeRef {
	if t == nil {
		return nil
	}
	if t.NonNull {
		return NonNullType(TypeRefFromAST(&ast.Type{NamedType: t.NamedType, Elem: t.Elem}))
	}
	if t.NamedType != "" {
		return NamedType(t.NamedType)
	}
	return ListType(TypeRefFromAST(t.Elem))
}

func deprecation(dirs ast.DirectiveList) (string, bool) {
	d := dirs.ForName("deprecated")
	if d == nil {
		return "", false
	}
	if arg := d.Arguments.ForName("reason"); arg != nil && arg.Value != nil {
		return arg.Value.Raw, true
	}
	return "", true
}

func isBuiltIn(pos *ast.Position) bool {
	return pos != nil && pos.Src != nil && pos.Src.BuiltIn
}
