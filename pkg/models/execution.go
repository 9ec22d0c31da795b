package models

import (
	"maps"
	"slices"
	"time"
)

// ExecutionStatus is the lifecycle state of a workflow execution.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusPaused    ExecutionStatus = "paused"
)

// IsTerminal reports whether no further transitions happen from s.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed
}

// LogLevel is the severity of an execution log entry.
type LogLevel string

const (
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// ExecutionLog is one per-node entry of an execution log.
type ExecutionLog struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     LogLevel       `json:"level"`
	NodeID    string         `json:"node_id"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
}

// WorkflowExecution is the externally visible record of a run.
type WorkflowExecution struct {
	ID           string          `json:"id"`
	WorkflowID   string          `json:"workflow_id"`
	Status       ExecutionStatus `json:"status"`
	TriggeredBy  string          `json:"triggered_by"`
	StartTime    time.Time       `json:"start_time"`
	EndTime      *time.Time      `json:"end_time,omitempty"`
	Duration     time.Duration   `json:"duration"`
	Logs         []ExecutionLog  `json:"logs"`
	Output       map[string]any  `json:"output,omitempty"`
	Error        string          `json:"error,omitempty"`
	FailedNodeID string          `json:"failed_node_id,omitempty"`
}

// AppendLog adds an entry stamped with the current time.
func (e *WorkflowExecution) AppendLog(level LogLevel, nodeID, message string, data map[string]any) {
	e.Logs = append(e.Logs, ExecutionLog{
		Timestamp: time.Now().UTC(),
		Level:     level,
		NodeID:    nodeID,
		Message:   message,
		Data:      data,
	})
}

// Finish moves the execution to a terminal status.
func (e *WorkflowExecution) Finish(status ExecutionStatus, at time.Time) {
	e.Status = status
	e.EndTime = &at
	e.Duration = at.Sub(e.StartTime)
}

// Clone returns a copy that shares no slices or maps with e.
func (e *WorkflowExecution) Clone() *WorkflowExecution {
	c := *e
	c.Logs = slices.Clone(e.Logs)
	c.Output = maps.Clone(e.Output)

	if e.EndTime != nil {
		end := *e.EndTime
		c.EndTime = &end
	}

	return &c
}
