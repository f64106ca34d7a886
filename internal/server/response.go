package server

import (
	"encoding/json"
	"net/http"

	executor "github.com/hanpama/splgraph/internal/executor"
	language "github.com/hanpama/splgraph/internal/language"
)

type errorLocation struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// responseError is the wire form of a GraphQL error.
type responseError struct {
	Message    string          `json:"message"`
	Locations  []errorLocation `json:"locations,omitempty"`
	Path       []any           `json:"path,omitempty"`
	Extensions map[string]any  `json:"extensions,omitempty"`
}

// response is the wire form of an execution result. Data is always present,
// null when the operation did not run.
type response struct {
	Data       any             `json:"data"`
	Errors     []responseError `json:"errors,omitempty"`
	Extensions map[string]any  `json:"extensions,omitempty"`
}

func failure(message string) response {
	return response{Errors: []responseError{{Message: message}}}
}

func fromGQL(err *language.Error) responseError {
	out := responseError{Message: err.Message, Extensions: err.Extensions}
	for _, loc := range err.Locations {
		out.Locations = append(out.Locations, errorLocation{Line: loc.Line, Column: loc.Column})
	}
	return out
}

func fromGQLList(errs language.ErrorList) []responseError {
	out := make([]responseError, len(errs))
	for i, err := range errs {
		out[i] = fromGQL(err)
	}
	return out
}

// responseFrom converts an execution result. Partial data is kept next to
// the errors.
func responseFrom(res *executor.ExecutionResult) response {
	out := response{Data: res.Data, Extensions: res.Extensions}
	for _, err := range res.Errors {
		re := responseError{Message: err.Message, Extensions: err.Extensions}
		if len(err.Path) > 0 {
			re.Path = make([]any, len(err.Path))
			for i, elem := range err.Path {
				re.Path[i] = elem
			}
		}
		out.Errors = append(out.Errors, re)
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any, pretty bool) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	_ = enc.Encode(v)
}
