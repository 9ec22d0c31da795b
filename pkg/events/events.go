// Package events defines the messages carried on the event bus between
// trigger listeners and the workers running executions.
package events

import (
	"time"

	"github.com/dukex/crmflow/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Event is implemented by every bus message.
type Event interface {
	GetType() EventType
}

// Topic is the bus topic every workflow event is published on.
const Topic = "crmflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	WorkflowTriggeredEvent EventType = "workflow.triggered"
	WorkflowFinishedEvent  EventType = "workflow.finished"
	WorkflowFailedEvent    EventType = "workflow.failed"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id"`
	WorkerID   string         `json:"worker_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.NewString(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
	}
}

// WorkflowTriggered asks a worker to run WorkflowID for a fired trigger.
type WorkflowTriggered struct {
	BaseEvent

	TriggerType models.TriggerType `json:"trigger_type"`
	Source      string             `json:"source,omitempty"`
	TriggerData map[string]any     `json:"trigger_data,omitempty"`
}

func (w WorkflowTriggered) GetType() EventType {
	return WorkflowTriggeredEvent
}

type WorkflowFinished struct {
	BaseEvent

	ExecutionID string         `json:"execution_id"`
	Result      map[string]any `json:"result,omitempty"`
	Duration    time.Duration  `json:"duration"`
}

func (w WorkflowFinished) GetType() EventType {
	return WorkflowFinishedEvent
}

type WorkflowFailed struct {
	BaseEvent

	ExecutionID string        `json:"execution_id"`
	NodeID      string        `json:"node_id,omitempty"`
	Error       string        `json:"error"`
	Duration    time.Duration `json:"duration"`
}

func (w WorkflowFailed) GetType() EventType {
	return WorkflowFailedEvent
}

// ExecutionOutcome builds the finished or failed event for a terminal execution.
func ExecutionOutcome(execution *models.WorkflowExecution, workerID string) Event {
	if execution.Status == models.ExecutionStatusCompleted {
		base := NewBaseEvent(WorkflowFinishedEvent, execution.WorkflowID)
		base.WorkerID = workerID

		return WorkflowFinished{
			BaseEvent:   base,
			ExecutionID: execution.ID,
			Result:      execution.Output,
			Duration:    execution.Duration,
		}
	}

	base := NewBaseEvent(WorkflowFailedEvent, execution.WorkflowID)
	base.WorkerID = workerID

	return WorkflowFailed{
		BaseEvent:   base,
		ExecutionID: execution.ID,
		NodeID:      execution.FailedNodeID,
		Error:       execution.Error,
		Duration:    execution.Duration,
	}
}
