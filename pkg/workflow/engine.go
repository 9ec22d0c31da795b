// Package workflow runs workflow definitions: it walks the node graph from its
// trigger nodes, dispatches every node and records the execution.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/crmflow/pkg/models"
	"github.com/dukex/crmflow/pkg/otelhelper"
	"github.com/dukex/crmflow/pkg/persistence"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// finishedTTL bounds how long finished executions stay readable without a
// repository.
const finishedTTL = 15 * time.Minute

// Dispatcher runs a single node.
type Dispatcher interface {
	Dispatch(ctx context.Context, node *models.WorkflowNode, execCtx *models.ExecutionContext, logger *slog.Logger) (*models.NodeExecutionResult, error)
}

// ProgressPublisher receives progress of running executions.
type ProgressPublisher interface {
	BroadcastExecutionUpdate(execution *models.WorkflowExecution)
	BroadcastNodeUpdate(executionID, nodeID string, result *models.NodeExecutionResult)
}

type Option func(*Engine)

func WithProgressPublisher(publisher ProgressPublisher) Option {
	return func(e *Engine) { e.progress = publisher }
}

// WithExecutionRepository persists a snapshot at start, after each node and
// at the end of every execution.
func WithExecutionRepository(repository persistence.ExecutionRepository) Option {
	return func(e *Engine) { e.executions = repository }
}

func WithContextStore(store *ContextStore) Option {
	return func(e *Engine) { e.store = store }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) { e.tracer = tracer }
}

func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

type Engine struct {
	logger     *slog.Logger
	dispatcher Dispatcher
	store      *ContextStore
	progress   ProgressPublisher
	executions persistence.ExecutionRepository
	tracer     trace.Tracer
	newID      func() string
	finished   *cache.Cache

	mu   sync.RWMutex
	runs map[string]*run
}

type run struct {
	definition *models.WorkflowDefinition
	execCtx    *models.ExecutionContext
	execution  *models.WorkflowExecution
	cancel     context.CancelCauseFunc
	done       chan struct{}

	mu       sync.RWMutex
	snapshot *models.WorkflowExecution
}

func (r *run) latest() *models.WorkflowExecution {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.snapshot.Clone()
}

func NewEngine(logger *slog.Logger, dispatcher Dispatcher, opts ...Option) *Engine {
	engine := &Engine{
		logger:     logger.With("module", "workflow_engine"),
		dispatcher: dispatcher,
		store:      NewContextStore(),
		tracer:     otelhelper.NoopTracer(),
		newID:      func() string { return "exec-" + uuid.NewString() },
		finished:   cache.New(finishedTTL, finishedTTL),
		runs:       make(map[string]*run),
	}

	for _, opt := range opts {
		opt(engine)
	}

	return engine
}

// Execute runs definition to completion on the calling goroutine. A failed
// execution is returned together with an *ExecutionError.
func (e *Engine) Execute(ctx context.Context, definition *models.WorkflowDefinition, triggerData map[string]any, triggeredBy string) (*models.WorkflowExecution, error) {
	runCtx, r, err := e.prepare(ctx, definition, triggerData, triggeredBy)
	if err != nil {
		return nil, err
	}

	err = e.run(runCtx, r)

	return r.latest(), err
}

// Start runs definition on its own goroutine and returns the initial
// snapshot. The run outlives ctx cancellation; use Stop to end it.
func (e *Engine) Start(ctx context.Context, definition *models.WorkflowDefinition, triggerData map[string]any, triggeredBy string) (*models.WorkflowExecution, error) {
	runCtx, r, err := e.prepare(context.WithoutCancel(ctx), definition, triggerData, triggeredBy)
	if err != nil {
		return nil, err
	}

	initial := r.latest()

	go func() {
		_ = e.run(runCtx, r)
	}()

	return initial, nil
}

// Stop cancels a running execution and waits for it to settle. The execution
// ends failed with ErrStoppedByUser.
func (e *Engine) Stop(ctx context.Context, executionID string) (*models.WorkflowExecution, error) {
	e.mu.RLock()
	r, ok := e.runs[executionID]
	e.mu.RUnlock()

	if !ok {
		if _, err := e.Execution(ctx, executionID); err == nil {
			return nil, fmt.Errorf("%w: %s", ErrNoExecutionRunning, executionID)
		}

		return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, executionID)
	}

	e.logger.InfoContext(ctx, "Stopping execution", "execution_id", executionID)
	r.cancel(ErrStoppedByUser)

	select {
	case <-r.done:
		return r.latest(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Execution returns the latest snapshot of executionID.
func (e *Engine) Execution(ctx context.Context, executionID string) (*models.WorkflowExecution, error) {
	e.mu.RLock()
	r, ok := e.runs[executionID]
	e.mu.RUnlock()

	if ok {
		return r.latest(), nil
	}

	if value, ok := e.finished.Get(executionID); ok {
		return value.(*models.WorkflowExecution).Clone(), nil
	}

	if e.executions != nil {
		execution, err := e.executions.GetByID(ctx, executionID)
		if err == nil {
			return execution, nil
		}

		if !persistence.IsExecutionNotFound(err) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, executionID)
}

// ExecutionsByWorkflow lists stored executions of workflowID, newest first.
func (e *Engine) ExecutionsByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowExecution, error) {
	if e.executions == nil {
		return []*models.WorkflowExecution{}, nil
	}

	return e.executions.GetByWorkflow(ctx, workflowID)
}

// Running returns the number of executions in progress.
func (e *Engine) Running() int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return len(e.runs)
}

func (e *Engine) prepare(ctx context.Context, definition *models.WorkflowDefinition, triggerData map[string]any, triggeredBy string) (context.Context, *run, error) {
	executionID := e.newID()

	execCtx, err := e.store.Create(executionID, definition, triggerData, triggeredBy)
	if err != nil {
		return nil, nil, err
	}

	runCtx, cancel := context.WithCancelCause(ctx)

	r := &run{
		definition: definition,
		execCtx:    execCtx,
		execution: &models.WorkflowExecution{
			ID:          executionID,
			WorkflowID:  definition.ID,
			Status:      models.ExecutionStatusRunning,
			TriggeredBy: triggeredBy,
			StartTime:   execCtx.Metadata.StartTime,
			Logs:        []models.ExecutionLog{},
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}

	e.mu.Lock()
	e.runs[executionID] = r
	e.mu.Unlock()

	e.publish(ctx, r)

	return runCtx, r, nil
}

func (e *Engine) run(ctx context.Context, r *run) (err error) {
	execution := r.execution
	definition := r.definition

	logger := e.logger.With(
		"execution_id", execution.ID,
		"workflow_id", definition.ID,
	)

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.execute",
		attribute.String(otelhelper.ExecutionIDKey, execution.ID),
		attribute.String(otelhelper.WorkflowIDKey, definition.ID),
		attribute.String(otelhelper.WorkflowNameKey, definition.Name),
		attribute.String(otelhelper.TriggerTypeKey, execution.TriggeredBy),
	)

	defer func() {
		if err != nil {
			otelhelper.SetError(span, err)
		} else {
			otelhelper.SetOK(span)
		}

		span.End()
		e.retire(r)
	}()

	logger.InfoContext(ctx, "Starting execution", "triggered_by", execution.TriggeredBy)

	triggers := definition.TriggerNodes()
	if len(triggers) == 0 {
		return e.fail(ctx, r, "", ErrNoTriggerNode, ErrNoTriggerNode.Error())
	}

	visited := make(map[string]bool, len(definition.Nodes))

	for _, trigger := range triggers {
		queue := []string{trigger.ID}

		for len(queue) > 0 {
			if ctx.Err() != nil {
				cause := context.Cause(ctx)

				return e.fail(ctx, r, r.execCtx.CurrentNodeID, cause, cause.Error())
			}

			nodeID := queue[0]
			queue = queue[1:]

			if visited[nodeID] {
				continue
			}

			node, ok := definition.NodeByID(nodeID)
			if !ok {
				logger.WarnContext(ctx, "Dropping unknown next node", "node_id", nodeID)

				continue
			}

			visited[nodeID] = true

			next, err := e.visit(ctx, r, node, logger)
			if err != nil {
				return err
			}

			queue = append(queue, next...)
		}
	}

	e.complete(ctx, r)

	logger.InfoContext(ctx, "Execution completed",
		"steps", r.execCtx.Metadata.CurrentStep,
		"duration", execution.Duration,
	)

	return nil
}

// visit dispatches one node and returns the successors to enqueue.
func (e *Engine) visit(ctx context.Context, r *run, node *models.WorkflowNode, logger *slog.Logger) ([]string, error) {
	execCtx := r.execCtx
	execution := r.execution

	execCtx.CurrentNodeID = node.ID
	execCtx.Metadata.CurrentStep++

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.node",
		attribute.String(otelhelper.ExecutionIDKey, execution.ID),
		attribute.String(otelhelper.NodeIDKey, node.ID),
		attribute.String(otelhelper.NodeTypeKey, string(node.Type)),
	)
	defer span.End()

	logger.DebugContext(ctx, "Dispatching node", "node_id", node.ID, "node_type", node.Type, "step", execCtx.Metadata.CurrentStep)

	result, err := e.dispatcher.Dispatch(ctx, node, execCtx, logger)
	if err != nil {
		otelhelper.SetError(span, err)
		execution.AppendLog(models.LogLevelError, node.ID, err.Error(), nil)

		return nil, e.fail(ctx, r, node.ID, err, err.Error())
	}

	execCtx.Merge(result.Data)

	switch {
	case !result.Success:
		execution.AppendLog(models.LogLevelError, node.ID, result.Error, result.Data)
	case !result.ShouldContinue:
		execution.AppendLog(models.LogLevelInfo, node.ID, "Branch stopped", result.Data)
	default:
		execution.AppendLog(models.LogLevelInfo, node.ID, "Node completed", result.Data)
	}

	if e.progress != nil {
		e.progress.BroadcastNodeUpdate(execution.ID, node.ID, result)
	}

	if !result.Success {
		failure := fmt.Errorf("%w: %s", ErrNodeFailed, result.Error)
		otelhelper.SetError(span, failure)

		return nil, e.fail(ctx, r, node.ID, failure, result.Error)
	}

	otelhelper.SetOK(span)
	e.publish(ctx, r)

	if !result.ShouldContinue {
		logger.InfoContext(ctx, "Branch stopped", "node_id", node.ID)

		return nil, nil
	}

	return result.NextNodes, nil
}

func (e *Engine) complete(ctx context.Context, r *run) {
	execution := r.execution
	execution.Output = r.execCtx.Snapshot()
	execution.Finish(models.ExecutionStatusCompleted, time.Now().UTC())

	e.publish(ctx, r)
}

// fail finishes the execution as failed and returns the error for the caller
// of Execute. message is what the execution record carries.
func (e *Engine) fail(ctx context.Context, r *run, nodeID string, cause error, message string) error {
	execution := r.execution
	execution.Output = r.execCtx.Snapshot()
	execution.Error = message
	execution.FailedNodeID = nodeID
	execution.Finish(models.ExecutionStatusFailed, time.Now().UTC())

	level := slog.LevelError
	if errors.Is(cause, ErrStoppedByUser) {
		level = slog.LevelInfo
	}

	e.logger.Log(ctx, level, "Execution failed",
		"execution_id", execution.ID,
		"workflow_id", execution.WorkflowID,
		"node_id", nodeID,
		"error", message,
	)

	e.publish(context.WithoutCancel(ctx), r)

	return &ExecutionError{ExecutionID: execution.ID, NodeID: nodeID, Err: cause}
}

// publish stores a snapshot of the execution, persists it and broadcasts it.
func (e *Engine) publish(ctx context.Context, r *run) {
	snapshot := r.execution.Clone()

	r.mu.Lock()
	r.snapshot = snapshot
	r.mu.Unlock()

	if e.executions != nil {
		err := e.executions.Save(context.WithoutCancel(ctx), snapshot)
		if err != nil {
			e.logger.ErrorContext(ctx, "Failed to save execution", "execution_id", snapshot.ID, "error", err)
		}
	}

	if e.progress != nil {
		e.progress.BroadcastExecutionUpdate(snapshot.Clone())
	}
}

// retire releases the run: the context is deleted, the final snapshot stays
// readable and waiters on Stop are released.
func (e *Engine) retire(r *run) {
	id := r.execution.ID

	e.store.Delete(id)
	e.finished.SetDefault(id, r.latest())

	e.mu.Lock()
	delete(e.runs, id)
	e.mu.Unlock()

	r.cancel(nil)
	close(r.done)
}
