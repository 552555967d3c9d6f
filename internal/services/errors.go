package services

import (
	"errors"
	"fmt"
)

// ErrReconcileFailed is returned after a complete run whose report contains
// failed statements or unreadable tables.
var ErrReconcileFailed = errors.New("reconciliation finished with failures")

// IntrospectionError means a table's constraints could not be read.
type IntrospectionError struct {
	Table string
	Err   error
}

func (e *IntrospectionError) Error() string {
	return fmt.Sprintf("failed to read constraints for %s: %v", e.Table, e.Err)
}

func (e *IntrospectionError) Unwrap() error { return e.Err }

// ExecutionError means a single drop statement failed.
type ExecutionError struct {
	Table      string
	Constraint string
	Statement  string
	Err        error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("failed to drop %s on %s: %v", e.Constraint, e.Table, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
