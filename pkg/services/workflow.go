package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/crmflow/pkg/models"
	"github.com/dukex/crmflow/pkg/persistence"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var (
	// ErrWorkflowNotFound is returned when a workflow is not found.
	ErrWorkflowNotFound = persistence.ErrWorkflowNotFound
)

// NodeValidator checks that a node can be dispatched.
type NodeValidator interface {
	Validate(node *models.WorkflowNode) error
}

// Workflow validates and stores workflow definitions.
type Workflow struct {
	persistence persistence.Persistence
	nodes       NodeValidator
	validate    *validator.Validate
	now         func() time.Time
}

// NewWorkflow creates a new workflow service. nodes may be nil, in which case
// only structural validation is performed.
func NewWorkflow(persistence persistence.Persistence, nodes NodeValidator) *Workflow {
	return &Workflow{
		persistence: persistence,
		nodes:       nodes,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

func (w *Workflow) List(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	workflows, err := w.persistence.Workflows().GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	return workflows, nil
}

func (w *Workflow) FetchByID(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	workflow, err := w.persistence.Workflows().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	return workflow, nil
}

// Create validates and stores a new definition. An empty id is generated.
func (w *Workflow) Create(ctx context.Context, workflow *models.WorkflowDefinition) (*models.WorkflowDefinition, error) {
	if workflow == nil {
		return nil, NewValidationError("create", "WORKFLOW_NIL", "", ErrWorkflowNil)
	}

	if workflow.ID == "" {
		workflow.ID = uuid.NewString()
	}

	err := w.Validate(workflow)
	if err != nil {
		return nil, err
	}

	_, err = w.persistence.Workflows().GetByID(ctx, workflow.ID)
	switch {
	case err == nil:
		return nil, &ServiceError{Op: "create", Code: "WORKFLOW_EXISTS", Message: "workflow " + workflow.ID + " already exists", Err: ErrWorkflowExists}
	case !errors.Is(err, persistence.ErrWorkflowNotFound):
		return nil, fmt.Errorf("failed to check workflow: %w", err)
	}

	now := w.now()
	workflow.CreatedAt = now
	workflow.UpdatedAt = now

	err = w.persistence.Workflows().Save(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to save workflow: %w", err)
	}

	return workflow, nil
}

// Update replaces the definition stored under id, keeping its creation time.
func (w *Workflow) Update(ctx context.Context, id string, workflow *models.WorkflowDefinition) (*models.WorkflowDefinition, error) {
	if workflow == nil {
		return nil, NewValidationError("update", "WORKFLOW_NIL", "", ErrWorkflowNil)
	}

	if workflow.ID == "" {
		workflow.ID = id
	}

	if workflow.ID != id {
		return nil, NewValidationError("update", "ID_MISMATCH", fmt.Sprintf("body id %q does not match %q", workflow.ID, id), ErrIDMismatch)
	}

	existing, err := w.persistence.Workflows().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	err = w.Validate(workflow)
	if err != nil {
		return nil, err
	}

	workflow.CreatedAt = existing.CreatedAt
	workflow.UpdatedAt = w.now()

	err = w.persistence.Workflows().Save(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to save workflow: %w", err)
	}

	return workflow, nil
}

func (w *Workflow) Delete(ctx context.Context, workflowID string) error {
	return w.persistence.Workflows().Delete(ctx, workflowID)
}

// Validate checks the struct rules of workflow, its graph invariants, that it
// has a trigger node and that every node can be dispatched.
func (w *Workflow) Validate(workflow *models.WorkflowDefinition) error {
	if workflow == nil {
		return NewValidationError("validate", "WORKFLOW_NIL", "", ErrWorkflowNil)
	}

	err := w.validate.Struct(workflow)
	if err != nil {
		return NewValidationError("validate", "INVALID_REQUEST", err.Error(), fmt.Errorf("%w: %w", ErrInvalidRequest, err))
	}

	err = workflow.ValidateGraph()
	if err != nil {
		return NewValidationError("validate", "INVALID_GRAPH", err.Error(), fmt.Errorf("%w: %w", ErrInvalidGraph, err))
	}

	if len(workflow.TriggerNodes()) == 0 {
		return NewValidationError("validate", "TRIGGER_REQUIRED", "", ErrTriggerNodeRequired)
	}

	if w.nodes == nil {
		return nil
	}

	for _, node := range workflow.Nodes {
		err = w.nodes.Validate(node)
		if err != nil {
			return NewValidationError("validate", "INVALID_NODE", err.Error(), fmt.Errorf("%w: %w", ErrInvalidNode, err))
		}
	}

	return nil
}
