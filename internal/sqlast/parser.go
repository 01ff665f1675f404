package sqlast

import (
	"fmt"
)

// Parser turns a SQL string into a statement tree.
// Implementations are dialect-aware; the dialect tag names the platform the
// query was captured from (snowflake, bigquery, trino, ...).
type Parser interface {
	Parse(sql, dialect string) (*Node, error)
}

// Optimizer optionally rewrites a parsed tree so that table and column
// references point at base entities where possible (alias and CTE resolution).
// A failed optimization is treated like a parse failure by callers.
type Optimizer interface {
	Optimize(root *Node) (*Node, error)
}

// ParseError reports a statement that could not be parsed or optimized.
// It carries the offending SQL so the failure can be recorded as an error
// fact without aborting the batch.
type ParseError struct {
	SQL     string
	Dialect string
	Cause   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse failed (dialect %s): %v", e.Dialect, e.Cause)
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

// NewParseError creates a ParseError for the given statement.
func NewParseError(sql, dialect string, cause error) *ParseError {
	return &ParseError{SQL: sql, Dialect: dialect, Cause: cause}
}
