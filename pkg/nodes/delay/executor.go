// Package delay provides the delay node executor.
package delay

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukex/crmflow/pkg/models"
)

// Executor suspends the owning execution for the configured duration. Only
// the calling goroutine waits; cancelling ctx ends the wait early.
type Executor struct{}

func NewExecutor() *Executor {
	return &Executor{}
}

func (e *Executor) Type() models.NodeType {
	return models.NodeTypeDelay
}

func (e *Executor) Execute(ctx context.Context, node *models.WorkflowNode, execCtx *models.ExecutionContext, logger *slog.Logger) (*models.NodeExecutionResult, error) {
	cfg, err := models.DecodeDelayConfig(node.Config)
	if err != nil {
		return nil, err
	}

	wait, err := cfg.Wait()
	if err != nil {
		return nil, err
	}

	logger.Debug("Delaying execution", "delay", wait)

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	case <-timer.C:
	}

	return models.Succeeded(map[string]any{
		"delayApplied": wait.Milliseconds(),
	}, execCtx.Successors(node.ID, "")), nil
}
