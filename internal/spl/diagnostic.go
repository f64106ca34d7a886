package spl

import (
	"fmt"

	"github.com/hanpama/splgraph/internal/treepath"
)

// Severity ranks a Diagnostic.
type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarn
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarn:
		return "warn"
	case SeverityError:
		return "error"
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

// Kind identifies what happened to an annotated field.
type Kind string

const (
	// KindProcessed: the list was filtered and written back.
	KindProcessed Kind = "processed"
	// KindUndefined: nothing exists at the field's response path.
	KindUndefined Kind = "undefined"
	// KindNotArray: the value at the path is null or not a list.
	KindNotArray Kind = "not-array"
	// KindFailed: the filter engine returned an error or panicked.
	KindFailed Kind = "failed"
)

// Diagnostic records the outcome of one @SPL directive. Diagnostics never
// affect the execution result; they are meant for logs and metrics.
type Diagnostic struct {
	Severity Severity
	Kind     Kind
	Path     treepath.Path
	Query    string
	Message  string
	// Type is the JSON type found at Path for KindNotArray.
	Type string
	Err  error
	// Before and After count list items for KindProcessed.
	Before int
	After  int
}

func processed(path treepath.Path, query string, before, after int) Diagnostic {
	return Diagnostic{
		Severity: SeverityInfo,
		Kind:     KindProcessed,
		Path:     path,
		Query:    query,
		Before:   before,
		After:    after,
		Message:  fmt.Sprintf("@SPL filtering applied on field %q: %d -> %d items", path, before, after),
	}
}

func undefined(path treepath.Path, query string) Diagnostic {
	return Diagnostic{
		Severity: SeverityWarn,
		Kind:     KindUndefined,
		Path:     path,
		Query:    query,
		Message:  fmt.Sprintf("@SPL directive on field %q was ignored because the resolved value is undefined", path),
	}
}

func notArray(path treepath.Path, query string, value any) Diagnostic {
	typ := jsonType(value)
	return Diagnostic{
		Severity: SeverityWarn,
		Kind:     KindNotArray,
		Path:     path,
		Query:    query,
		Type:     typ,
		Message:  fmt.Sprintf("@SPL directive on field %q was ignored because the resolved value is not an array. Got: %s", path, typ),
	}
}

func failed(path treepath.Path, query string, err error) Diagnostic {
	return Diagnostic{
		Severity: SeverityError,
		Kind:     KindFailed,
		Path:     path,
		Query:    query,
		Err:      err,
		Message:  fmt.Sprintf("error applying @SPL directive %q to field %q: %v", query, path, err),
	}
}

func jsonType(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return "number"
	}
	return fmt.Sprintf("%T", v)
}
