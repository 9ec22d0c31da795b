// Package conditional provides the condition node executor, which routes
// execution down the "true" or "false" branch of a condition node.
package conditional

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dukex/crmflow/pkg/models"
)

var ErrMissingCondition = errors.New("condition node requires field and operator")

// Evaluator decides a single predicate against the execution data.
type Evaluator interface {
	Evaluate(cond models.ConditionConfig, data map[string]any) bool
}

type Executor struct {
	evaluator Evaluator
}

func NewExecutor(evaluator Evaluator) *Executor {
	return &Executor{evaluator: evaluator}
}

func (e *Executor) Type() models.NodeType {
	return models.NodeTypeCondition
}

// Execute evaluates the node's predicate and selects the matching branch.
func (e *Executor) Execute(_ context.Context, node *models.WorkflowNode, execCtx *models.ExecutionContext, logger *slog.Logger) (*models.NodeExecutionResult, error) {
	cond, err := models.DecodeConditionConfig(node.Config)
	if err != nil {
		return nil, err
	}

	if cond.Field == "" || cond.Operator == "" {
		return nil, ErrMissingCondition
	}

	result := e.evaluator.Evaluate(cond, execCtx.Data)

	branch := models.BranchFalse
	if result {
		branch = models.BranchTrue
	}

	logger.Debug("Condition evaluated",
		"field", cond.Field,
		"operator", cond.Operator,
		"result", result,
	)

	return models.Succeeded(map[string]any{
		"conditionResult": result,
		"conditionField":  cond.Field,
	}, execCtx.Successors(node.ID, branch)), nil
}
