// Package memory provides an in-process persistence implementation, used for
// local runs and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dukex/crmflow/pkg/models"
	"github.com/dukex/crmflow/pkg/persistence"
)

type Persistence struct {
	workflows  *WorkflowRepository
	executions *ExecutionRepository
}

func NewPersistence() *Persistence {
	return &Persistence{
		workflows:  &WorkflowRepository{items: make(map[string]*models.WorkflowDefinition)},
		executions: &ExecutionRepository{items: make(map[string]*models.WorkflowExecution)},
	}
}

func (p *Persistence) Workflows() persistence.WorkflowRepository   { return p.workflows }
func (p *Persistence) Executions() persistence.ExecutionRepository { return p.executions }
func (p *Persistence) HealthCheck(context.Context) error           { return nil }
func (p *Persistence) Close(context.Context) error                 { return nil }

type WorkflowRepository struct {
	mu    sync.RWMutex
	items map[string]*models.WorkflowDefinition
}

func (r *WorkflowRepository) GetAll(context.Context) ([]*models.WorkflowDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	workflows := make([]*models.WorkflowDefinition, 0, len(r.items))
	for _, wf := range r.items {
		workflows = append(workflows, wf)
	}

	sort.SliceStable(workflows, func(i, j int) bool {
		return workflows[i].CreatedAt.Before(workflows[j].CreatedAt)
	})

	return workflows, nil
}

func (r *WorkflowRepository) GetByID(_ context.Context, id string) (*models.WorkflowDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wf, ok := r.items[id]
	if !ok {
		return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
	}

	return wf, nil
}

func (r *WorkflowRepository) Save(_ context.Context, workflow *models.WorkflowDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now
	r.items[workflow.ID] = workflow

	return nil
}

func (r *WorkflowRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return persistence.NewWorkflowError("Delete", id, persistence.ErrWorkflowNotFound)
	}

	delete(r.items, id)

	return nil
}

// ExecutionRepository keeps copies of the saved snapshots so callers can keep
// mutating their own records.
type ExecutionRepository struct {
	mu    sync.RWMutex
	items map[string]*models.WorkflowExecution
}

func (r *ExecutionRepository) Save(_ context.Context, execution *models.WorkflowExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[execution.ID] = execution.Clone()

	return nil
}

func (r *ExecutionRepository) GetByID(_ context.Context, id string) (*models.WorkflowExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	execution, ok := r.items[id]
	if !ok {
		return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
	}

	return execution.Clone(), nil
}

func (r *ExecutionRepository) GetByWorkflow(_ context.Context, workflowID string) ([]*models.WorkflowExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	executions := make([]*models.WorkflowExecution, 0)

	for _, execution := range r.items {
		if execution.WorkflowID == workflowID {
			executions = append(executions, execution.Clone())
		}
	}

	sort.SliceStable(executions, func(i, j int) bool {
		return executions[i].StartTime.After(executions[j].StartTime)
	})

	return executions, nil
}
