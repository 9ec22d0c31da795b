// Package action provides the action node executor, which dispatches to the
// action handler catalog by actionType.
package action

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dukex/crmflow/pkg/models"
	"github.com/dukex/crmflow/pkg/protocol"
	"github.com/dukex/crmflow/pkg/template"
)

const defaultRetryDelay = 500 * time.Millisecond

var ErrHandlerPanic = errors.New("action handler panicked")

// Catalog looks up action handlers by action type.
type Catalog interface {
	Action(actionType string) (protocol.ActionHandler, bool)
}

type Executor struct {
	catalog  Catalog
	fallback protocol.ActionHandler
}

// NewExecutor creates an action executor. fallback handles action types the
// catalog does not know; when nil those nodes fail.
func NewExecutor(catalog Catalog, fallback protocol.ActionHandler) *Executor {
	return &Executor{catalog: catalog, fallback: fallback}
}

func (e *Executor) Type() models.NodeType {
	return models.NodeTypeAction
}

func (e *Executor) Execute(ctx context.Context, node *models.WorkflowNode, execCtx *models.ExecutionContext, logger *slog.Logger) (*models.NodeExecutionResult, error) {
	cfg, err := models.DecodeActionConfig(node.Config)
	if err != nil {
		return nil, err
	}

	logger = logger.With("action_type", cfg.ActionType)

	params, err := template.RenderParams(cfg.Params, template.Scope(execCtx))
	if err != nil {
		return models.Failed(fmt.Sprintf("render params: %v", err)), nil
	}

	handler, ok := e.catalog.Action(cfg.ActionType)
	if !ok {
		if e.fallback == nil {
			return models.Failed(fmt.Sprintf("unknown action type %q", cfg.ActionType)), nil
		}

		logger.Warn("Unknown action type, using fallback handler", "fallback", e.fallback.ID())

		params["actionType"] = cfg.ActionType
		handler = e.fallback
	}

	result, err := e.run(ctx, handler, params, execCtx, logger, cfg)
	if err != nil {
		if ctx.Err() != nil {
			return nil, context.Cause(ctx)
		}

		logger.Error("Action failed", "error", err)

		return models.Failed(err.Error()), nil
	}

	if result.Success && result.ShouldContinue && result.NextNodes == nil {
		result.NextNodes = execCtx.Successors(node.ID, "")
	}

	return result, nil
}

// run calls the handler, retrying returned errors and panics up to
// cfg.MaxRetries times with exponential backoff. Failed results are final.
func (e *Executor) run(ctx context.Context, handler protocol.ActionHandler, params map[string]any, execCtx *models.ExecutionContext, logger *slog.Logger, cfg models.ActionConfig) (*models.NodeExecutionResult, error) {
	if cfg.MaxRetries <= 0 {
		return safeExecute(ctx, handler, params, execCtx, logger)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = defaultRetryDelay
	if cfg.RetryDelayMs > 0 {
		policy.InitialInterval = time.Duration(cfg.RetryDelayMs) * time.Millisecond
	}
	policy.MaxElapsedTime = 0

	var result *models.NodeExecutionResult

	operation := func() error {
		var err error

		result, err = safeExecute(ctx, handler, params, execCtx, logger)

		return err
	}

	notify := func(err error, wait time.Duration) {
		logger.Warn("Action attempt failed, retrying", "error", err, "retry_in", wait)
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(cfg.MaxRetries)), ctx), notify)
	if err != nil {
		return nil, err
	}

	return result, nil
}

func safeExecute(ctx context.Context, handler protocol.ActionHandler, params map[string]any, execCtx *models.ExecutionContext, logger *slog.Logger) (result *models.NodeExecutionResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("%w: %s: %v", ErrHandlerPanic, handler.ID(), r)
		}
	}()

	result, err = handler.Execute(ctx, params, execCtx, logger)
	if err == nil && result == nil {
		err = fmt.Errorf("action %s returned no result", handler.ID())
	}

	return result, err
}
