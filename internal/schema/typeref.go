package schema

type TypeRefKind string

const (
	TypeRefKindNamed   TypeRefKind = "NAMED"
	TypeRefKindList    TypeRefKind = "LIST"
	TypeRefKindNonNull TypeRefKind = "NON_NULL"
)

// TypeRef is a possibly wrapped reference to a named type. Named is set only
// on the innermost reference.
type TypeRef struct {
	Kind   TypeRefKind
	OfType *TypeRef
	Named  string
}

func NamedType(name string) *TypeRef  { return &TypeRef{Kind: TypeRefKindNamed, Named: name} }
func ListType(t *TypeRef) *TypeRef    { return &TypeRef{Kind: TypeRefKindList, OfType: t} }
func NonNullType(t *TypeRef) *TypeRef { return &TypeRef{Kind: TypeRefKindNonNull, OfType: t} }

func (t *TypeRef) IsNonNull() bool { return t != nil && t.Kind == TypeRefKindNonNull }

// IsList reports a list, Non-Null or not.
func (t *TypeRef) IsList() bool {
	if t.IsNonNull() {
		t = t.OfType
	}
	return t != nil && t.Kind == TypeRefKindList
}

// Unwrap peels one List or Non-Null layer. A named reference is returned as is.
func (t *TypeRef) Unwrap() *TypeRef {
	if t.Kind == TypeRefKindNamed {
		return t
	}
	return t.OfType
}

func (t *TypeRef) GetNamedType() string {
	for t != nil && t.Named == "" {
		t = t.OfType
	}
	if t == nil {
		return ""
	}
	return t.Named
}

// String renders t in SDL notation, e.g. [User!]!.
func (t *TypeRef) String() string {
	switch {
	case t == nil:
		return ""
	case t.Kind == TypeRefKindNonNull:
		return t.OfType.String() + "!"
	case t.Kind == TypeRefKindList:
		return "[" + t.OfType.String() + "]"
	}
	return t.Named
}

func IsNonNull(t *TypeRef) bool      { return t.IsNonNull() }
func IsList(t *TypeRef) bool         { return t != nil && t.IsList() }
func Unwrap(t *TypeRef) *TypeRef     { return t.Unwrap() }
func GetNamedType(t *TypeRef) string { return t.GetNamedType() }
