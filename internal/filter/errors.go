package filter

import "fmt"

// CompileError reports a query that the engine could not compile.
type CompileError struct {
	Query string
	Err   error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compile %q: %v", e.Query, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

// OutputError reports a filter result that is not a list.
type OutputError struct {
	Got any
}

func (e *OutputError) Error() string {
	return fmt.Sprintf("filter output must be a list, got %T", e.Got)
}
