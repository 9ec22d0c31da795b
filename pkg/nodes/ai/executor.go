// Package ai provides the executor for AI task nodes.
package ai

import (
	"context"
	"errors"
	"log/slog"
	"maps"

	"github.com/dukex/crmflow/pkg/models"
	"github.com/dukex/crmflow/pkg/protocol"
	"github.com/dukex/crmflow/pkg/template"
)

var ErrNoProvider = errors.New("no AI provider configured")

type Executor struct {
	provider protocol.AIProvider
}

func NewExecutor(provider protocol.AIProvider) *Executor {
	return &Executor{provider: provider}
}

func (e *Executor) Type() models.NodeType {
	return models.NodeTypeAI
}

// Execute runs the configured AI task. The task input is the node's input
// map rendered over the execution data, or the whole data bag when empty.
// The provider result becomes the data patch, nested under outputKey when set.
func (e *Executor) Execute(ctx context.Context, node *models.WorkflowNode, execCtx *models.ExecutionContext, logger *slog.Logger) (*models.NodeExecutionResult, error) {
	cfg, err := models.DecodeAIConfig(node.Config)
	if err != nil {
		return nil, err
	}

	if e.provider == nil {
		return models.Failed(ErrNoProvider.Error()), nil
	}

	scope := template.Scope(execCtx)

	input := execCtx.Snapshot()
	if input == nil {
		input = make(map[string]any)
	}

	if len(cfg.Input) > 0 {
		input, err = template.RenderParams(cfg.Input, scope)
		if err != nil {
			return models.Failed(err.Error()), nil
		}
	}

	if cfg.Prompt != "" {
		prompt, err := template.RenderString(cfg.Prompt, scope)
		if err != nil {
			return models.Failed(err.Error()), nil
		}

		input["prompt"] = prompt
	}

	logger.Info("Running AI task", "task", cfg.Task)

	output, err := e.provider.RunTask(ctx, cfg.Task, input)
	if err != nil {
		logger.Error("AI task failed", "task", cfg.Task, "error", err)

		return models.Failed(err.Error()), nil
	}

	patch := make(map[string]any, len(output)+1)
	if cfg.OutputKey != "" {
		patch[cfg.OutputKey] = output
	} else {
		maps.Copy(patch, output)
	}

	patch["aiTask"] = cfg.Task

	return models.Succeeded(patch, execCtx.Successors(node.ID, "")), nil
}
