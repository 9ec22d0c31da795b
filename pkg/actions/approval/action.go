// Package approval provides the request_approval action. It asks a human to
// approve the workflow and stops its branch until an operator resumes it.
package approval

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/crmflow/pkg/actions"
	"github.com/dukex/crmflow/pkg/models"
	"github.com/dukex/crmflow/pkg/protocol"
	"github.com/spf13/cast"
)

const Channel = "approval"

type RequestApprovalAction struct {
	notifier protocol.Notifier
}

func NewRequestApprovalAction(notifier protocol.Notifier) *RequestApprovalAction {
	return &RequestApprovalAction{notifier: notifier}
}

func (a *RequestApprovalAction) ID() string {
	return "request_approval"
}

// Execute publishes an approval request and soft-stops the branch.
func (a *RequestApprovalAction) Execute(ctx context.Context, params map[string]any, execCtx *models.ExecutionContext, logger *slog.Logger) (*models.NodeExecutionResult, error) {
	message := cast.ToString(params["message"])
	if message == "" {
		message = "Approval required"
	}

	if a.notifier != nil {
		err := a.notifier.Notify(ctx, protocol.Notification{
			Channel: Channel,
			UserID:  actions.String(params, execCtx, "approverId", "ownerId"),
			Title:   "Approval required",
			Message: message,
			Data: map[string]any{
				"executionId": execCtx.ExecutionID,
				"workflowId":  execCtx.WorkflowID,
				"nodeId":      execCtx.CurrentNodeID,
				"contactId":   actions.ContactID(params, execCtx),
			},
		})
		if err != nil {
			return nil, fmt.Errorf("request approval: %w", err)
		}
	}

	logger.Info("Approval requested, halting branch", "node_id", execCtx.CurrentNodeID)

	return models.SoftStop(map[string]any{
		"approvalPending": true,
		"approvalMessage": message,
	}), nil
}
