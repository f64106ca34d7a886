package language

import (
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/parser"
	"github.com/vektah/gqlparser/v2/validator/rules"
)

// Error is a located GraphQL syntax or validation error.
type Error = gqlerror.Error

// ErrorList is an ordered list of located errors.
type ErrorList = gqlerror.List

func ParseQuery(source string) (*QueryDocument, error) {
	doc, err := parser.ParseQuery(&ast.Source{Input: source})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func ParseSchema(name, source string) (*SchemaDocument, error) {
	doc, err := parser.ParseSchema(&ast.Source{Name: name, Input: source})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// LoadSchema parses and validates SDL sources, merging them with the
// gqlparser prelude (built-in scalars and directives).
func LoadSchema(sources ...*Source) (*ValidatedSchema, error) {
	return gqlparser.LoadSchema(sources...)
}

// LoadQuery parses source and validates it against s.
func LoadQuery(s *ValidatedSchema, source string) (*QueryDocument, ErrorList) {
	return gqlparser.LoadQueryWithRules(s, source, rules.NewDefaultRules())
}
