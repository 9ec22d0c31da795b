package web

import (
	"github.com/dukex/crmflow/pkg/models"
)

// ExecuteWorkflowRequest is the body of a manual execution. Data seeds the
// execution context.
type ExecuteWorkflowRequest struct {
	Data map[string]any `json:"data"`
}

// FireTriggerRequest is the body of POST /triggers/:type.
type FireTriggerRequest struct {
	Data   map[string]any `json:"data"`
	Source string         `json:"source" validate:"omitempty,max=128"`
}

// TriggerResponse acknowledges a fired trigger. Matching workflows run
// asynchronously.
type TriggerResponse struct {
	Event     models.TriggerEvent `json:"event"`
	Workflows []string            `json:"workflows"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Running int    `json:"running_executions"`
}
