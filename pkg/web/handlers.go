// Package web provides HTTP handlers and REST API endpoints for workflow
// management and execution.
package web

import (
	"context"
	"errors"
	"maps"

	"github.com/dukex/crmflow/pkg/models"
	"github.com/dukex/crmflow/pkg/services"
	"github.com/dukex/crmflow/pkg/triggers"
	"github.com/dukex/crmflow/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

const manualSource = "api"

// Executor runs and inspects executions.
type Executor interface {
	Execute(ctx context.Context, definition *models.WorkflowDefinition, triggerData map[string]any, triggeredBy string) (*models.WorkflowExecution, error)
	Start(ctx context.Context, definition *models.WorkflowDefinition, triggerData map[string]any, triggeredBy string) (*models.WorkflowExecution, error)
	Stop(ctx context.Context, executionID string) (*models.WorkflowExecution, error)
	Execution(ctx context.Context, executionID string) (*models.WorkflowExecution, error)
	ExecutionsByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowExecution, error)
	Running() int
}

// Catalog is told about stored and deleted definitions so that triggers reach
// them without a reload.
type Catalog interface {
	Put(definition *models.WorkflowDefinition)
	Remove(workflowID string)
	Matching(triggerType models.TriggerType, target string) []*models.WorkflowDefinition
}

type APIHandlers struct {
	workflowService *services.Workflow
	executor        Executor
	firer           triggers.Firer
	catalog         Catalog
	validator       *validator.Validate
}

func NewAPIHandlers(
	workflowService *services.Workflow,
	executor Executor,
	firer triggers.Firer,
	catalog Catalog,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		workflowService: workflowService,
		executor:        executor,
		firer:           firer,
		catalog:         catalog,
		validator:       validator,
	}
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	workflows, err := h.workflowService.List(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflows)
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	workflow, err := h.workflowService.FetchByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var definition models.WorkflowDefinition

	if err := c.Bind().JSON(&definition); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	created, err := h.workflowService.Create(c.Context(), &definition)
	if err != nil {
		return handleServiceError(c, err)
	}

	if h.catalog != nil {
		h.catalog.Put(created)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	id := c.Params("id")

	var definition models.WorkflowDefinition

	if err := c.Bind().JSON(&definition); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	updated, err := h.workflowService.Update(c.Context(), id, &definition)
	if err != nil {
		return handleServiceError(c, err)
	}

	if h.catalog != nil {
		h.catalog.Put(updated)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	id := c.Params("id")

	err := h.workflowService.Delete(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	if h.catalog != nil {
		h.catalog.Remove(id)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// ExecuteWorkflow runs a workflow as a manual trigger. It answers 202 with the
// initial snapshot, or 200 with the final one when ?wait=true.
func (h *APIHandlers) ExecuteWorkflow(c fiber.Ctx) error {
	definition, err := h.workflowService.FetchByID(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	var req ExecuteWorkflowRequest

	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid request body: "+err.Error())
		}
	}

	if c.Query("wait") == "true" {
		execution, err := h.executor.Execute(c.Context(), definition, req.Data, manualSource)

		var execErr *workflow.ExecutionError
		if execution == nil || (err != nil && !errors.As(err, &execErr)) {
			return handleServiceError(c, err)
		}

		return c.JSON(execution)
	}

	execution, err := h.executor.Start(c.Context(), definition, req.Data, manualSource)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(execution)
}

func (h *APIHandlers) FireTrigger(c fiber.Ctx) error {
	triggerType := models.TriggerType(c.Params("type"))

	var req FireTriggerRequest

	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid request body: "+err.Error())
		}
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	source := req.Source
	if source == "" {
		source = manualSource
	}

	return h.fire(c, triggerType, req.Data, source)
}

// Webhook fires a webhook trigger aimed at a single workflow. The request body
// becomes the trigger data.
func (h *APIHandlers) Webhook(c fiber.Ctx) error {
	workflowID := c.Params("workflowId")

	data := map[string]any{}

	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&data); err != nil {
			return badRequest(c, "Invalid request body: "+err.Error())
		}
	}

	if _, err := h.workflowService.FetchByID(c.Context(), workflowID); err != nil {
		return handleServiceError(c, err)
	}

	data = maps.Clone(data)
	data[workflow.TargetWorkflowKey] = workflowID

	return h.fire(c, models.TriggerWebhook, data, "webhook")
}

func (h *APIHandlers) fire(c fiber.Ctx, triggerType models.TriggerType, data map[string]any, source string) error {
	if !triggerType.IsValid() {
		return handleServiceError(c, triggers.ErrUnknownTriggerType)
	}

	var matched []string

	if h.catalog != nil {
		for _, definition := range h.catalog.Matching(triggerType, stringValue(data, workflow.TargetWorkflowKey)) {
			matched = append(matched, definition.ID)
		}
	}

	event, err := h.firer.Fire(c.Context(), triggerType, data, source)
	if err != nil {
		return handleServiceError(c, err)
	}

	if matched == nil {
		matched = []string{}
	}

	return c.Status(fiber.StatusAccepted).JSON(TriggerResponse{Event: event, Workflows: matched})
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	execution, err := h.executor.Execution(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) GetWorkflowExecutions(c fiber.Ctx) error {
	id := c.Params("id")

	if _, err := h.workflowService.FetchByID(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	executions, err := h.executor.ExecutionsByWorkflow(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(executions)
}

func (h *APIHandlers) StopExecution(c fiber.Ctx) error {
	execution, err := h.executor.Stop(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	message, ok := h.workflowService.HealthCheck(c.Context())
	if !ok {
		return c.Status(fiber.StatusServiceUnavailable).JSON(HealthResponse{
			Status:  "unhealthy",
			Message: message,
			Running: h.executor.Running(),
		})
	}

	return c.JSON(HealthResponse{
		Status:  "healthy",
		Message: message,
		Running: h.executor.Running(),
	})
}

func stringValue(data map[string]any, key string) string {
	value, _ := data[key].(string)

	return value
}
