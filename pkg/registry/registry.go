// Package registry maps node types to their executors and action types to
// their handlers, and dispatches workflow nodes to them.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/dukex/crmflow/pkg/models"
	"github.com/dukex/crmflow/pkg/protocol"
)

var (
	ErrNoExecutorFound   = errors.New("no executor registered for node type")
	ErrInvalidNodeConfig = errors.New("invalid node config")
)

type Registry struct {
	logger    *slog.Logger
	mu        sync.RWMutex
	executors map[models.NodeType]protocol.NodeExecutor
	actions   map[string]protocol.ActionHandler
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:    log.With("module", "registry"),
		executors: make(map[models.NodeType]protocol.NodeExecutor),
		actions:   make(map[string]protocol.ActionHandler),
	}
}

// Register installs executor for its node type, replacing any previous one.
func (r *Registry) Register(executor protocol.NodeExecutor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.executors[executor.Type()]; exists {
		r.logger.Warn("Replacing node executor", "node_type", executor.Type())
	}

	r.executors[executor.Type()] = executor
}

// RegisterAction installs handler under its action type.
func (r *Registry) RegisterAction(handler protocol.ActionHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.actions[handler.ID()] = handler
}

// Action returns the handler registered for actionType.
func (r *Registry) Action(actionType string) (protocol.ActionHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handler, ok := r.actions[actionType]

	return handler, ok
}

// NodeTypes returns the registered node types, sorted.
func (r *Registry) NodeTypes() []models.NodeType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]models.NodeType, 0, len(r.executors))
	for t := range r.executors {
		types = append(types, t)
	}

	slices.Sort(types)

	return types
}

// ActionTypes returns the registered action types, sorted.
func (r *Registry) ActionTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.actions))
	for t := range r.actions {
		types = append(types, t)
	}

	slices.Sort(types)

	return types
}

// Validate checks that node can be dispatched: an executor exists for its
// type and its config satisfies the type's schema.
func (r *Registry) Validate(node *models.WorkflowNode) error {
	r.mu.RLock()
	_, ok := r.executors[node.Type]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %q (node %s)", ErrNoExecutorFound, node.Type, node.ID)
	}

	if err := models.ValidateNodeConfig(node.Type, node.Config); err != nil {
		return fmt.Errorf("%w: node %s: %w", ErrInvalidNodeConfig, node.ID, err)
	}

	return nil
}

// Dispatch runs node with the executor registered for its type.
//
// ErrNoExecutorFound and ErrInvalidNodeConfig are fatal to the execution.
// Cancellation of ctx is returned as its cause.
func (r *Registry) Dispatch(ctx context.Context, node *models.WorkflowNode, execCtx *models.ExecutionContext, logger *slog.Logger) (*models.NodeExecutionResult, error) {
	if err := r.Validate(node); err != nil {
		return nil, err
	}

	r.mu.RLock()
	executor := r.executors[node.Type]
	r.mu.RUnlock()

	result, err := executor.Execute(ctx, node, execCtx, logger.With("node_id", node.ID, "node_type", node.Type))
	if err != nil {
		if ctx.Err() != nil {
			return nil, context.Cause(ctx)
		}

		return nil, fmt.Errorf("%w: node %s: %w", ErrInvalidNodeConfig, node.ID, err)
	}

	if result == nil {
		return nil, fmt.Errorf("%w: node %s: executor returned no result", ErrInvalidNodeConfig, node.ID)
	}

	return result, nil
}
