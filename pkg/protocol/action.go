package protocol

import (
	"context"
	"log/slog"

	"github.com/dukex/crmflow/pkg/models"
)

// ActionHandler is one entry of the action catalog, selected by the
// actionType of an action node.
type ActionHandler interface {
	ID() string
	Execute(ctx context.Context, params map[string]any, execCtx *models.ExecutionContext, logger *slog.Logger) (*models.NodeExecutionResult, error)
}
