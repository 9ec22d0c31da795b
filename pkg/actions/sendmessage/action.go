// Package sendmessage provides the send_message action, which delivers a
// templated message to a contact through the message gateway.
package sendmessage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/crmflow/pkg/actions"
	"github.com/dukex/crmflow/pkg/models"
	"github.com/dukex/crmflow/pkg/protocol"
	"github.com/dukex/crmflow/pkg/template"
	"github.com/spf13/cast"
)

var ErrNoGateway = errors.New("no message gateway configured")

type SendMessageAction struct {
	gateway protocol.MessageGateway
}

func NewSendMessageAction(gateway protocol.MessageGateway) *SendMessageAction {
	return &SendMessageAction{gateway: gateway}
}

func (a *SendMessageAction) ID() string {
	return "send_message"
}

// Execute sends params.message (or params.content) to params.recipient,
// falling back to the phone, then the contact id found in the execution data.
func (a *SendMessageAction) Execute(ctx context.Context, params map[string]any, execCtx *models.ExecutionContext, logger *slog.Logger) (*models.NodeExecutionResult, error) {
	recipient := actions.String(params, execCtx, "recipient", "phone", "contactId")
	if recipient == "" {
		return models.Failed("no recipient"), nil
	}

	content := cast.ToString(params["message"])
	if content == "" {
		content = cast.ToString(params["content"])
	}

	if content == "" {
		return models.Failed("no message content"), nil
	}

	if template.NeedsTemplating(content) {
		rendered, err := template.RenderString(content, template.Scope(execCtx))
		if err != nil {
			return models.Failed(err.Error()), nil
		}

		content = rendered
	}

	if a.gateway == nil {
		return models.Failed(ErrNoGateway.Error()), nil
	}

	delivery, err := a.gateway.SendMessage(ctx, recipient, content)
	if err != nil {
		return nil, fmt.Errorf("send message to %s: %w", recipient, err)
	}

	logger.Info("Message sent", "recipient", recipient, "message_id", delivery.MessageID)

	return models.Succeeded(map[string]any{
		"messageSent":    true,
		"messageId":      delivery.MessageID,
		"deliveryStatus": delivery.Status,
		"recipient":      recipient,
	}, nil), nil
}
