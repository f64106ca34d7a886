package executor

import (
	"fmt"
	"math"
	"slices"
	"strconv"

	language "github.com/hanpama/splgraph/internal/language"
	schema "github.com/hanpama/splgraph/internal/schema"
)

// coerceVariableValues applies variable defaults and input coercion to the
// raw variables sent with a request. Variables the operation does not declare
// are dropped.
func coerceVariableValues(
	sch *schema.Schema,
	operation *language.OperationDefinition,
	raw map[string]any,
) (map[string]any, error) {
	coerced := make(map[string]any, len(operation.VariableDefinitions))
	for _, def := range operation.VariableDefinitions {
		val, provided := raw[def.Variable]
		if !provided {
			switch {
			case def.DefaultValue != nil:
				val = literal(def.DefaultValue, nil)
			case def.Type.NonNull:
				return nil, fmt.Errorf("variable $%s of required type %s was not provided", def.Variable, def.Type)
			default:
				continue
			}
		}
		cv, err := coerceInput(sch, val, schema.TypeRefFromAST(def.Type))
		if err != nil {
			return nil, fmt.Errorf("variable $%s of type %s: %w", def.Variable, def.Type, err)
		}
		coerced[def.Variable] = cv
	}
	return coerced, nil
}

// coerceArgumentValues resolves the arguments of one field. Problems are
// recorded on state at path and reported through ok; the field must not be
// resolved then.
func coerceArgumentValues(
	fieldDef *schema.Field,
	arguments language.ArgumentList,
	variables map[string]any,
	state *executionState,
	path Path,
) (coerced map[string]any, ok bool) {
	coerced = make(map[string]any, len(fieldDef.Arguments))
	ok = true
	for _, argDef := range fieldDef.Arguments {
		var value any
		if arg := arguments.ForName(argDef.Name); arg != nil && argumentProvided(arg.Value, variables) {
			value = literal(arg.Value, variables)
		} else if argDef.DefaultValue != nil {
			value = argDef.DefaultValue
		} else if schema.IsNonNull(argDef.Type) {
			state.addError(fmt.Sprintf("argument '%s' of required type was not provided", argDef.Name), path)
			ok = false
			continue
		} else {
			continue
		}
		cv, err := coerceInput(state.schema, value, argDef.Type)
		if err != nil {
			state.addError(fmt.Sprintf("argument '%s' cannot be coerced: %v", argDef.Name, err), path)
			ok = false
			continue
		}
		coerced[argDef.Name] = cv
	}
	return coerced, ok
}

// argumentProvided reports false for a bare variable reference to a variable
// that has no value, so the argument default applies.
func argumentProvided(v *language.Value, variables map[string]any) bool {
	if v == nil {
		return false
	}
	if v.Kind != language.Variable {
		return true
	}
	_, ok := variables[v.Raw]
	return ok
}

// literal evaluates an AST value, substituting variables. A literal that
// does not parse evaluates to nil.
func literal(v *language.Value, variables map[string]any) any {
	out, err := v.Value(variables)
	if err != nil {
		return nil
	}
	return out
}

// coerceInput coerces value to typ following the GraphQL input coercion
// rules. Custom scalars pass through unchanged.
func coerceInput(sch *schema.Schema, value any, typ *schema.TypeRef) (any, error) {
	if schema.IsNonNull(typ) {
		if value == nil {
			return nil, fmt.Errorf("null provided for non-null type %s", typ)
		}
		return coerceInput(sch, value, typ.OfType)
	}
	if value == nil {
		return nil, nil
	}
	if schema.IsList(typ) {
		items, ok := value.([]any)
		if !ok {
			// a single item is coerced to a list of one
			item, err := coerceInput(sch, value, typ.OfType)
			if err != nil {
				return nil, err
			}
			return []any{item}, nil
		}
		out := make([]any, len(items))
		for i, item := range items {
			cv, err := coerceInput(sch, item, typ.OfType)
			if err != nil {
				return nil, fmt.Errorf("item %d: %w", i, err)
			}
			out[i] = cv
		}
		return out, nil
	}

	name := schema.GetNamedType(typ)
	switch name {
	case "Int":
		return coerceInt(value)
	case "Float":
		return coerceFloat(value)
	case "String":
		if s, ok := value.(string); ok {
			return s, nil
		}
		return nil, fmt.Errorf("cannot use %v (%T) as String", value, value)
	case "Boolean":
		if b, ok := value.(bool); ok {
			return b, nil
		}
		return nil, fmt.Errorf("cannot use %v (%T) as Boolean", value, value)
	case "ID":
		return coerceID(value)
	}

	var named *schema.Type
	if sch != nil {
		named = sch.Types[name]
	}
	switch {
	case named == nil:
		return value, nil
	case named.Kind == schema.TypeKindEnum:
		s, ok := value.(string)
		if !ok || !slices.ContainsFunc(named.EnumValues, func(ev *schema.EnumValue) bool { return ev.Name == s }) {
			return nil, fmt.Errorf("%v is not a value of enum %s", value, name)
		}
		return s, nil
	case named.Kind == schema.TypeKindInputObject:
		return coerceInputObject(sch, value, named)
	default:
		return value, nil
	}
}

func coerceInputObject(sch *schema.Schema, value any, typ *schema.Type) (any, error) {
	fields, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("cannot use %v (%T) as input object %s", value, value, typ.Name)
	}
	for key := range fields {
		if !slices.ContainsFunc(typ.InputFields, func(f *schema.InputValue) bool { return f.Name == key }) {
			return nil, fmt.Errorf("field %q is not defined by input object %s", key, typ.Name)
		}
	}
	out := make(map[string]any, len(typ.InputFields))
	for _, f := range typ.InputFields {
		v, ok := fields[f.Name]
		switch {
		case ok:
		case f.DefaultValue != nil:
			v = f.DefaultValue
		case schema.IsNonNull(f.Type):
			return nil, fmt.Errorf("field %s.%s of required type was not provided", typ.Name, f.Name)
		default:
			continue
		}
		cv, err := coerceInput(sch, v, f.Type)
		if err != nil {
			return nil, fmt.Errorf("field %s.%s: %w", typ.Name, f.Name, err)
		}
		out[f.Name] = cv
	}
	if typ.OneOf && len(out) != 1 {
		return nil, fmt.Errorf("exactly one field of oneOf input object %s must be set", typ.Name)
	}
	return out, nil
}

func coerceInt(value any) (any, error) {
	var n int64
	switch v := value.(type) {
	case int:
		return v, nil
	case int32:
		n = int64(v)
	case int64:
		n = v
	case float64:
		// JSON numbers decode as float64
		if v != math.Trunc(v) {
			return nil, fmt.Errorf("cannot use non-integer %v as Int", v)
		}
		n = int64(v)
	default:
		return nil, fmt.Errorf("cannot use %v (%T) as Int", value, value)
	}
	if n < math.MinInt32 || n > math.MaxInt32 {
		return nil, fmt.Errorf("%d overflows Int", n)
	}
	return int(n), nil
}

func coerceFloat(value any) (any, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	}
	return nil, fmt.Errorf("cannot use %v (%T) as Float", value, value)
}

func coerceID(value any) (any, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case int:
		return strconv.Itoa(v), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		if v == math.Trunc(v) {
			return strconv.FormatInt(int64(v), 10), nil
		}
	}
	return nil, fmt.Errorf("cannot use %v (%T) as ID", value, value)
}
