package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/dukex/crmflow/pkg/eventbus"
	"github.com/dukex/crmflow/pkg/events"
	"github.com/dukex/crmflow/pkg/models"
	"github.com/dukex/crmflow/pkg/persistence"
	"github.com/dukex/crmflow/pkg/protocol"
	"github.com/spf13/cast"
)

// TargetWorkflowKey in trigger data restricts a trigger to a single workflow.
const TargetWorkflowKey = "workflowId"

// ListenerRegistrar is where the manager installs its trigger listeners.
type ListenerRegistrar interface {
	RegisterListener(triggerType models.TriggerType, listener protocol.TriggerListener) error
}

// Scheduler keeps the cron entries of schedule trigger nodes.
type Scheduler interface {
	Add(id, expr string, data map[string]any) error
	Remove(id string)
	IDs() []string
}

// Manager connects trigger listeners to the engine through the event bus:
// listeners publish workflow.triggered events for every matching workflow and
// the subscriber side runs them, publishing the outcome when they end.
type Manager struct {
	id        string
	logger    *slog.Logger
	workflows persistence.WorkflowRepository
	engine    *Engine
	bus       eventbus.EventBus
	scheduler Scheduler

	mu          sync.RWMutex
	definitions map[string]*models.WorkflowDefinition
	wg          sync.WaitGroup
}

func NewManager(
	id string,
	logger *slog.Logger,
	workflows persistence.WorkflowRepository,
	engine *Engine,
	bus eventbus.EventBus,
	scheduler Scheduler,
) *Manager {
	return &Manager{
		id:          id,
		logger:      logger.With("module", "workflow_manager", "worker_id", id),
		workflows:   workflows,
		engine:      engine,
		bus:         bus,
		scheduler:   scheduler,
		definitions: make(map[string]*models.WorkflowDefinition),
	}
}

// Start loads the stored definitions, installs a listener for every trigger
// type and starts consuming workflow.triggered events.
func (m *Manager) Start(ctx context.Context, registrar ListenerRegistrar) error {
	m.logger.InfoContext(ctx, "Starting workflow manager")

	err := m.Load(ctx)
	if err != nil {
		return err
	}

	for _, triggerType := range models.TriggerTypes {
		err = registrar.RegisterListener(triggerType, m.onTrigger)
		if err != nil {
			return fmt.Errorf("register %s listener: %w", triggerType, err)
		}
	}

	err = m.bus.Handle(events.WorkflowTriggeredEvent, m.handleWorkflowTriggered)
	if err != nil {
		return err
	}

	err = m.bus.Subscribe(ctx)
	if err != nil {
		m.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	m.logger.InfoContext(ctx, "Workflow manager started", "workflows", len(m.Workflows()))

	return nil
}

// Wait blocks until every execution started by the manager has ended or ctx
// expires.
func (m *Manager) Wait(ctx context.Context) error {
	done := make(chan struct{})

	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Load replaces the known definitions with the stored ones.
func (m *Manager) Load(ctx context.Context) error {
	definitions, err := m.workflows.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("load workflows: %w", err)
	}

	m.mu.Lock()
	previous := m.definitions
	m.definitions = make(map[string]*models.WorkflowDefinition, len(definitions))

	for _, definition := range definitions {
		m.definitions[definition.ID] = definition
	}
	m.mu.Unlock()

	for id := range previous {
		m.unschedule(id)
	}

	for _, definition := range definitions {
		m.schedule(definition)
	}

	return nil
}

// Put makes definition eligible for triggers, replacing a previous version.
func (m *Manager) Put(definition *models.WorkflowDefinition) {
	m.mu.Lock()
	m.definitions[definition.ID] = definition
	m.mu.Unlock()

	m.unschedule(definition.ID)
	m.schedule(definition)
}

// Remove stops routing triggers to workflowID.
func (m *Manager) Remove(workflowID string) {
	m.mu.Lock()
	delete(m.definitions, workflowID)
	m.mu.Unlock()

	m.unschedule(workflowID)
}

// Workflows returns the ids of the known definitions, sorted.
func (m *Manager) Workflows() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return slices.Sorted(maps.Keys(m.definitions))
}

// Matching returns the definitions listening to triggerType. A non empty
// target restricts the result to that workflow.
func (m *Manager) Matching(triggerType models.TriggerType, target string) []*models.WorkflowDefinition {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []*models.WorkflowDefinition

	for _, id := range slices.Sorted(maps.Keys(m.definitions)) {
		definition := m.definitions[id]

		if target != "" && definition.ID != target {
			continue
		}

		if slices.Contains(definition.TriggerTypes(), triggerType) {
			matched = append(matched, definition)
		}
	}

	return matched
}

func (m *Manager) onTrigger(ctx context.Context, event models.TriggerEvent) error {
	target := cast.ToString(event.Data[TargetWorkflowKey])
	matched := m.Matching(event.Type, target)

	logger := m.logger.With("trigger_type", event.Type, "source", event.Source)
	logger.DebugContext(ctx, "Trigger received", "matched", len(matched))

	var errs []error

	for _, definition := range matched {
		triggered := events.WorkflowTriggered{
			BaseEvent:   events.NewBaseEvent(events.WorkflowTriggeredEvent, definition.ID),
			TriggerType: event.Type,
			Source:      event.Source,
			TriggerData: event.Data,
		}
		triggered.WorkerID = m.id

		err := m.bus.Publish(ctx, definition.ID, triggered)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to publish workflow triggered event", "workflow_id", definition.ID, "error", err)
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (m *Manager) handleWorkflowTriggered(ctx context.Context, event any) error {
	triggered, ok := event.(*events.WorkflowTriggered)
	if !ok {
		m.logger.ErrorContext(ctx, "Invalid event type for WorkflowTriggered")

		return nil
	}

	logger := m.logger.With("workflow_id", triggered.WorkflowID, "event_id", triggered.ID)

	definition, err := m.definition(ctx, triggered.WorkflowID)
	if err != nil {
		logger.ErrorContext(ctx, "Dropping trigger for unknown workflow", "error", err)

		return nil
	}

	triggeredBy := triggered.Source
	if triggeredBy == "" {
		triggeredBy = string(triggered.TriggerType)
	}

	m.wg.Add(1)

	go func() {
		defer m.wg.Done()

		m.run(ctx, logger, definition, triggered.TriggerData, triggeredBy)
	}()

	return nil
}

func (m *Manager) run(ctx context.Context, logger *slog.Logger, definition *models.WorkflowDefinition, data map[string]any, triggeredBy string) {
	execution, err := m.engine.Execute(ctx, definition, data, triggeredBy)
	if execution == nil {
		logger.ErrorContext(ctx, "Workflow could not start", "error", err)

		return
	}

	logger.InfoContext(ctx, "Workflow execution ended",
		"execution_id", execution.ID,
		"status", execution.Status,
	)

	err = m.bus.Publish(context.WithoutCancel(ctx), definition.ID, events.ExecutionOutcome(execution, m.id))
	if err != nil {
		logger.ErrorContext(ctx, "Failed to publish execution outcome", "execution_id", execution.ID, "error", err)
	}
}

func (m *Manager) definition(ctx context.Context, workflowID string) (*models.WorkflowDefinition, error) {
	m.mu.RLock()
	definition, ok := m.definitions[workflowID]
	m.mu.RUnlock()

	if ok {
		return definition, nil
	}

	return m.workflows.GetByID(ctx, workflowID)
}

func (m *Manager) schedule(definition *models.WorkflowDefinition) {
	if m.scheduler == nil {
		return
	}

	for _, node := range definition.TriggerNodes() {
		cfg, err := models.DecodeTriggerConfig(node.Config)
		if err != nil || cfg.TriggerType != models.TriggerSchedule || cfg.Cron == "" {
			continue
		}

		err = m.scheduler.Add(scheduleID(definition.ID, node.ID), cfg.Cron, map[string]any{TargetWorkflowKey: definition.ID})
		if err != nil {
			m.logger.Error("Invalid schedule on trigger node",
				"workflow_id", definition.ID,
				"node_id", node.ID,
				"error", err,
			)
		}
	}
}

func (m *Manager) unschedule(workflowID string) {
	if m.scheduler == nil {
		return
	}

	prefix := workflowID + ":"

	for _, id := range m.scheduler.IDs() {
		if strings.HasPrefix(id, prefix) {
			m.scheduler.Remove(id)
		}
	}
}

func scheduleID(workflowID, nodeID string) string {
	return workflowID + ":" + nodeID
}
