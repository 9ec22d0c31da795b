package workflow

import (
	"errors"
	"fmt"
)

var (
	ErrNoTriggerNode      = errors.New("workflow has no trigger node")
	ErrStoppedByUser      = errors.New("StoppedByUser")
	ErrExecutionNotFound  = errors.New("execution not found")
	ErrNodeFailed         = errors.New("node failed")
	ErrExecutionIDReused  = errors.New("execution id already used")
	ErrNoExecutionRunning = errors.New("execution is not running")
)

// ExecutionError reports where an execution failed.
type ExecutionError struct {
	ExecutionID string
	NodeID      string
	Err         error
}

func (e *ExecutionError) Error() string {
	if e.NodeID == "" {
		return fmt.Sprintf("execution %s failed: %v", e.ExecutionID, e.Err)
	}

	return fmt.Sprintf("execution %s failed at node %s: %v", e.ExecutionID, e.NodeID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
