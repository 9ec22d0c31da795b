// Package notification provides the send_notification action.
package notification

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/crmflow/pkg/actions"
	"github.com/dukex/crmflow/pkg/models"
	"github.com/dukex/crmflow/pkg/protocol"
	"github.com/spf13/cast"
)

const DefaultChannel = "in_app"

type SendNotificationAction struct {
	notifier protocol.Notifier
}

func NewSendNotificationAction(notifier protocol.Notifier) *SendNotificationAction {
	return &SendNotificationAction{notifier: notifier}
}

func (a *SendNotificationAction) ID() string {
	return "send_notification"
}

func (a *SendNotificationAction) Execute(ctx context.Context, params map[string]any, execCtx *models.ExecutionContext, logger *slog.Logger) (*models.NodeExecutionResult, error) {
	message := cast.ToString(params["message"])
	if message == "" {
		return models.Failed("no notification message"), nil
	}

	channel := cast.ToString(params["channel"])
	if channel == "" {
		channel = DefaultChannel
	}

	title := cast.ToString(params["title"])
	if title == "" {
		title = "Workflow notification"
	}

	if a.notifier == nil {
		return models.Failed("no notifier configured"), nil
	}

	notification := protocol.Notification{
		Channel: channel,
		UserID:  actions.String(params, execCtx, "userId", "ownerId"),
		Title:   title,
		Message: message,
		Data: map[string]any{
			"executionId": execCtx.ExecutionID,
			"workflowId":  execCtx.WorkflowID,
			"contactId":   actions.ContactID(params, execCtx),
		},
	}

	if err := a.notifier.Notify(ctx, notification); err != nil {
		return nil, fmt.Errorf("notify %s: %w", channel, err)
	}

	logger.Info("Notification sent", "channel", channel, "user_id", notification.UserID)

	return models.Succeeded(map[string]any{
		"notificationSent":    true,
		"notificationChannel": channel,
	}, nil), nil
}
