package events

import "time"

// SPLDirective is emitted for every @SPL directive evaluated against a result.
// Outcome is one of "processed", "undefined", "not-array" or "failed".
type SPLDirective struct {
	OperationName string
	Path          string
	Query         string
	Outcome       string
	Severity      string
	Message       string
	Type          string
	Before        int
	After         int
	Err           error
}

// SPLRewrite is emitted after a result went through the @SPL rewriter.
type SPLRewrite struct {
	OperationName string
	Directives    int
	Changed       bool
	Duration      time.Duration
}
