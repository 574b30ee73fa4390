// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrWorkflowRunNotFound indicates a workflow run was not found by the given identifier.
	ErrWorkflowRunNotFound = errors.New("workflow run not found")

	// ErrNodeExecutionNotFound indicates a node execution was not found by the given identifier.
	ErrNodeExecutionNotFound = errors.New("node execution not found")

	// ErrDuplicateSequenceNumber indicates a sequence number collision within a (tenant, app) scope.
	ErrDuplicateSequenceNumber = errors.New("duplicate sequence number")

	// ErrRunAlreadyExists indicates a run with the same identifier already exists.
	ErrRunAlreadyExists = errors.New("workflow run already exists")
)

// RunError wraps run-related errors with additional context.
type RunError struct {
	Op    string // Operation being performed (e.g., "Create", "Update", "GetByID")
	RunID string // Workflow run ID if applicable
	Err   error  // Underlying error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%s operation failed for workflow run %s: %v", e.Op, e.RunID, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for run errors.
func (e *RunError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewRunError creates a new run error with context.
func NewRunError(op, runID string, err error) *RunError {
	return &RunError{
		Op:    op,
		RunID: runID,
		Err:   err,
	}
}

// NodeExecutionError wraps node-execution-related errors with additional context.
type NodeExecutionError struct {
	Op          string // Operation being performed
	RunID       string // Owning workflow run ID
	ExecutionID string // Node execution ID
	Err         error  // Underlying error
}

func (e *NodeExecutionError) Error() string {
	return fmt.Sprintf("%s operation failed for node execution %s in run %s: %v", e.Op, e.ExecutionID, e.RunID, e.Err)
}

func (e *NodeExecutionError) Unwrap() error {
	return e.Err
}

func (e *NodeExecutionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewNodeExecutionError creates a new node execution error with context.
func NewNodeExecutionError(op, runID, executionID string, err error) *NodeExecutionError {
	return &NodeExecutionError{
		Op:          op,
		RunID:       runID,
		ExecutionID: executionID,
		Err:         err,
	}
}

// IsWorkflowRunNotFound checks if an error indicates a workflow run was not found.
func IsWorkflowRunNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowRunNotFound)
}

// IsNodeExecutionNotFound checks if an error indicates a node execution was not found.
func IsNodeExecutionNotFound(err error) bool {
	return errors.Is(err, ErrNodeExecutionNotFound)
}

// IsDuplicateSequenceNumber checks if an error indicates a sequence number collision.
func IsDuplicateSequenceNumber(err error) bool {
	return errors.Is(err, ErrDuplicateSequenceNumber)
}
