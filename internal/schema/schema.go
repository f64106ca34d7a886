package schema

import (
	"slices"

	language "github.com/hanpama/splgraph/internal/language"
)

// Schema is the executable schema: named types, directives and the names of
// the root operation types.
type Schema struct {
	QueryType        string
	MutationType     string
	SubscriptionType string
	Types            map[string]*Type
	Directives       map[string]*Directive
	Description      string

	// Validated is the gqlparser schema the executable schema was built from.
	// Nil for schemas assembled by hand.
	Validated *language.ValidatedSchema `json:"-"`
}

// NewSchema returns an empty schema with the built-in scalars and the
// @include/@skip directives registered.
func NewSchema(description string) *Schema {
	s := &Schema{
		Types:       make(map[string]*Type),
		Directives:  make(map[string]*Directive),
		Description: description,
	}
	for _, t := range []*Type{stringType, intType, floatType, booleanType, idType} {
		s.AddType(t)
	}
	return s.AddDirective(includeDirective).AddDirective(skipDirective)
}

func (s *Schema) SetQueryType(name string) *Schema        { s.QueryType = name; return s }
func (s *Schema) SetMutationType(name string) *Schema     { s.MutationType = name; return s }
func (s *Schema) SetSubscriptionType(name string) *Schema { s.SubscriptionType = name; return s }

// AddType registers t, replacing a type of the same name.
func (s *Schema) AddType(t *Type) *Schema {
	s.Types[t.Name] = t
	return s
}

func (s *Schema) AddDirective(d *Directive) *Schema {
	s.Directives[d.Name] = d
	return s
}

// GetQueryType returns nil when the schema has no query root.
func (s *Schema) GetQueryType() *Type        { return s.Types[s.QueryType] }
func (s *Schema) GetMutationType() *Type     { return s.Types[s.MutationType] }
func (s *Schema) GetSubscriptionType() *Type { return s.Types[s.SubscriptionType] }

type TypeKind string

const (
	TypeKindScalar      TypeKind = "SCALAR"
	TypeKindObject      TypeKind = "OBJECT"
	TypeKindInterface   TypeKind = "INTERFACE"
	TypeKindUnion       TypeKind = "UNION"
	TypeKindEnum        TypeKind = "ENUM"
	TypeKindInputObject TypeKind = "INPUT_OBJECT"
)

// Type is a named type. Which member slices are used depends on Kind.
type Type struct {
	Name        string
	Kind        TypeKind
	Description string

	Fields        []*Field // object, interface
	Interfaces    []string // object, interface
	PossibleTypes []string // interface, union
	EnumValues    []*EnumValue
	InputFields   []*InputValue

	SpecifiedByURL *string
	OneOf          bool
}

func NewType(name string, kind TypeKind, description string) *Type {
	return &Type{Name: name, Kind: kind, Description: description}
}

func (t *Type) AddField(f *Field) *Type        { t.Fields = append(t.Fields, f); return t }
func (t *Type) AddInterface(name string) *Type { t.Interfaces = append(t.Interfaces, name); return t }
func (t *Type) AddPossibleType(name string) *Type {
	t.PossibleTypes = append(t.PossibleTypes, name)
	return t
}
func (t *Type) AddEnumValue(v *EnumValue) *Type    { t.EnumValues = append(t.EnumValues, v); return t }
func (t *Type) AddInputField(v *InputValue) *Type  { t.InputFields = append(t.InputFields, v); return t }
func (t *Type) SetOneOf(oneOf bool) *Type          { t.OneOf = oneOf; return t }
func (t *Type) SetSpecifiedByURL(url string) *Type { t.SpecifiedByURL = &url; return t }

// Field returns the field called name, or nil.
func (t *Type) Field(name string) *Field {
	i := slices.IndexFunc(t.Fields, func(f *Field) bool { return f.Name == name })
	if i < 0 {
		return nil
	}
	return t.Fields[i]
}

// Deprecation is shared by fields, arguments, input fields and enum values.
type Deprecation struct {
	IsDeprecated      bool
	DeprecationReason string
}

func (d *Deprecation) deprecate(reason string) {
	d.IsDeprecated = true
	d.DeprecationReason = reason
}

type Field struct {
	Name        string
	Description string
	Type        *TypeRef
	Arguments   []*InputValue
	// Async fields are resolved through Runtime.BatchResolveAsync.
	Async bool
	Deprecation
}

func NewField(name, description string, typ *TypeRef) *Field {
	return &Field{Name: name, Description: description, Type: typ}
}

func (f *Field) AddArgument(v *InputValue) *Field { f.Arguments = append(f.Arguments, v); return f }
func (f *Field) SetAsync(async bool) *Field       { f.Async = async; return f }
func (f *Field) Deprecate(reason string) *Field   { f.deprecate(reason); return f }

type EnumValue struct {
	Name        string
	Description string
	Deprecation
}

func NewEnumValue(name, description string) *EnumValue {
	return &EnumValue{Name: name, Description: description}
}

func (e *EnumValue) Deprecate(reason string) *EnumValue { e.deprecate(reason); return e }

// InputValue is an argument or an input object field. DefaultValue holds the
// coerced Go value, nil when there is no default.
type InputValue struct {
	Name         string
	Description  string
	Type         *TypeRef
	DefaultValue any
	Deprecation
}

func NewInputValue(name, description string, typ *TypeRef) *InputValue {
	return &InputValue{Name: name, Description: description, Type: typ}
}

func (v *InputValue) SetDefault(value any) *InputValue    { v.DefaultValue = value; return v }
func (v *InputValue) Deprecate(reason string) *InputValue { v.deprecate(reason); return v }

type Directive struct {
	Name         string
	Description  string
	Locations    []string
	Arguments    []*InputValue
	IsRepeatable bool
}

func NewDirective(name, description string) *Directive {
	return &Directive{Name: name, Description: description}
}

func (d *Directive) AddArgument(v *InputValue) *Directive {
	d.Arguments = append(d.Arguments, v)
	return d
}
func (d *Directive) SetRepeatable(r bool) *Directive { d.IsRepeatable = r; return d }
