// Package trigger provides the executor for trigger nodes, the entry points of
// a workflow graph.
package trigger

import (
	"context"
	"log/slog"
	"maps"

	"github.com/dukex/crmflow/pkg/models"
)

// Executor runs trigger nodes. The event itself was handled before the
// execution started, so the node only publishes its static configuration.
type Executor struct{}

func NewExecutor() *Executor {
	return &Executor{}
}

func (e *Executor) Type() models.NodeType {
	return models.NodeTypeTrigger
}

func (e *Executor) Execute(_ context.Context, node *models.WorkflowNode, execCtx *models.ExecutionContext, logger *slog.Logger) (*models.NodeExecutionResult, error) {
	cfg, err := models.DecodeTriggerConfig(node.Config)
	if err != nil {
		return nil, err
	}

	data := make(map[string]any, len(cfg.Extra)+2)
	maps.Copy(data, cfg.Extra)

	data["triggered"] = true
	if cfg.TriggerType != "" {
		data["triggerType"] = string(cfg.TriggerType)
	}

	logger.Debug("Trigger node reached", "trigger_type", cfg.TriggerType)

	return models.Succeeded(data, execCtx.Successors(node.ID, "")), nil
}
