// Package leadscore provides the update_lead_score action.
package leadscore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/crmflow/pkg/actions"
	"github.com/dukex/crmflow/pkg/models"
	"github.com/dukex/crmflow/pkg/protocol"
	"github.com/spf13/cast"
)

type UpdateLeadScoreAction struct {
	contacts protocol.ContactStore
}

func NewUpdateLeadScoreAction(contacts protocol.ContactStore) *UpdateLeadScoreAction {
	return &UpdateLeadScoreAction{contacts: contacts}
}

func (a *UpdateLeadScoreAction) ID() string {
	return "update_lead_score"
}

// Execute computes newScore = currentScore + scoreChange. currentScore is read
// from the params, then data.currentScore, then data.leadScore, else 0. The
// change is persisted when a contact id and a store are available.
func (a *UpdateLeadScoreAction) Execute(ctx context.Context, params map[string]any, execCtx *models.ExecutionContext, logger *slog.Logger) (*models.NodeExecutionResult, error) {
	change, err := cast.ToIntE(params["scoreChange"])
	if err != nil {
		return models.Failed(fmt.Sprintf("invalid scoreChange: %v", params["scoreChange"])), nil
	}

	current := 0

	for _, key := range []string{"currentScore", "leadScore"} {
		if v, ok := actions.Lookup(params, execCtx, key); ok {
			current, err = cast.ToIntE(v)
			if err != nil {
				return models.Failed(fmt.Sprintf("invalid %s: %v", key, v)), nil
			}

			break
		}
	}

	newScore := current + change
	persisted := false

	contactID := actions.ContactID(params, execCtx)
	if contactID != "" && a.contacts != nil {
		stored, err := a.contacts.AdjustLeadScore(ctx, contactID, change)
		if err != nil {
			return nil, fmt.Errorf("adjust lead score for %s: %w", contactID, err)
		}

		persisted = true

		if stored != newScore {
			logger.Warn("Stored lead score differs from computed score",
				"contact_id", contactID,
				"computed", newScore,
				"stored", stored,
			)
		}
	}

	logger.Info("Lead score updated", "previous", current, "change", change, "new", newScore)

	return models.Succeeded(map[string]any{
		"previousScore":  current,
		"scoreChange":    change,
		"newScore":       newScore,
		"currentScore":   newScore,
		"leadScore":      newScore,
		"scorePersisted": persisted,
	}, nil), nil
}
