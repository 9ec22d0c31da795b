// Package persistence provides the storage abstraction for workflow
// definitions and execution records.
package persistence

import (
	"context"

	"github.com/dukex/crmflow/pkg/models"
)

type Persistence interface {
	Workflows() WorkflowRepository
	Executions() ExecutionRepository
	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}

// WorkflowRepository stores workflow definitions.
type WorkflowRepository interface {
	GetAll(ctx context.Context) ([]*models.WorkflowDefinition, error)
	GetByID(ctx context.Context, id string) (*models.WorkflowDefinition, error)
	Save(ctx context.Context, workflow *models.WorkflowDefinition) error
	Delete(ctx context.Context, id string) error
}

// ExecutionRepository stores execution snapshots. Save is an upsert keyed by
// execution id; the latest snapshot wins.
type ExecutionRepository interface {
	Save(ctx context.Context, execution *models.WorkflowExecution) error
	GetByID(ctx context.Context, id string) (*models.WorkflowExecution, error)
	GetByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowExecution, error)
}
