// Package createtask provides the create_task action.
package createtask

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/crmflow/pkg/actions"
	"github.com/dukex/crmflow/pkg/models"
	"github.com/dukex/crmflow/pkg/protocol"
)

type taskParams struct {
	Title       string  `mapstructure:"title"`
	Description string  `mapstructure:"description"`
	AssigneeID  string  `mapstructure:"assigneeId"`
	DueInHours  float64 `mapstructure:"dueInHours"`
}

type CreateTaskAction struct {
	contacts protocol.ContactStore
	now      func() time.Time
}

func NewCreateTaskAction(contacts protocol.ContactStore) *CreateTaskAction {
	return &CreateTaskAction{contacts: contacts, now: time.Now}
}

func (a *CreateTaskAction) ID() string {
	return "create_task"
}

func (a *CreateTaskAction) Execute(ctx context.Context, params map[string]any, execCtx *models.ExecutionContext, logger *slog.Logger) (*models.NodeExecutionResult, error) {
	var p taskParams
	if err := models.DecodeParams(params, &p); err != nil {
		return models.Failed(fmt.Sprintf("invalid task params: %v", err)), nil
	}

	if p.Title == "" {
		return models.Failed("no task title"), nil
	}

	contactID := actions.ContactID(params, execCtx)
	if contactID == "" {
		return models.Failed("no contact id"), nil
	}

	if a.contacts == nil {
		return models.Failed("no contact store configured"), nil
	}

	task := protocol.Task{
		ContactID:   contactID,
		Title:       p.Title,
		Description: p.Description,
		AssigneeID:  p.AssigneeID,
	}

	if p.DueInHours > 0 {
		due := a.now().UTC().Add(time.Duration(p.DueInHours * float64(time.Hour)))
		task.DueAt = &due
	}

	taskID, err := a.contacts.CreateTask(ctx, task)
	if err != nil {
		return nil, fmt.Errorf("create task for %s: %w", contactID, err)
	}

	logger.Info("Task created", "task_id", taskID, "contact_id", contactID)

	return models.Succeeded(map[string]any{
		"taskCreated": true,
		"taskId":      taskID,
	}, nil), nil
}
