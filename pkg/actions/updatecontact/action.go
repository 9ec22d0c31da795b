// Package updatecontact provides the update_contact action.
package updatecontact

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/crmflow/pkg/actions"
	"github.com/dukex/crmflow/pkg/models"
	"github.com/dukex/crmflow/pkg/protocol"
)

type UpdateContactAction struct {
	contacts protocol.ContactStore
}

func NewUpdateContactAction(contacts protocol.ContactStore) *UpdateContactAction {
	return &UpdateContactAction{contacts: contacts}
}

func (a *UpdateContactAction) ID() string {
	return "update_contact"
}

// Execute writes params.fields to the contact. Without a fields map every
// param other than contactId is treated as a field.
func (a *UpdateContactAction) Execute(ctx context.Context, params map[string]any, execCtx *models.ExecutionContext, logger *slog.Logger) (*models.NodeExecutionResult, error) {
	contactID := actions.ContactID(params, execCtx)
	if contactID == "" {
		return models.Failed("no contact id"), nil
	}

	fields, ok := params["fields"].(map[string]any)
	if !ok {
		fields = make(map[string]any, len(params))

		for k, v := range params {
			if k != "contactId" && k != "leadId" {
				fields[k] = v
			}
		}
	}

	if len(fields) == 0 {
		return models.Failed("no fields to update"), nil
	}

	if a.contacts == nil {
		return models.Failed("no contact store configured"), nil
	}

	if err := a.contacts.UpdateContact(ctx, contactID, fields); err != nil {
		return nil, fmt.Errorf("update contact %s: %w", contactID, err)
	}

	logger.Info("Contact updated", "contact_id", contactID, "fields", len(fields))

	return models.Succeeded(map[string]any{
		"contactUpdated": true,
		"updatedFields":  fields,
	}, nil), nil
}
