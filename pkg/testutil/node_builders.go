// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"time"

	"github.com/dukex/crmflow/pkg/models"
	"github.com/google/uuid"
)

// CreateTestNode creates a test WorkflowNode with default values that can be overridden.
func CreateTestNode(overrides ...func(*models.WorkflowNode)) *models.WorkflowNode {
	node := &models.WorkflowNode{
		ID:     uuid.New().String(),
		Type:   models.NodeTypeAction,
		Name:   "Test Node",
		Config: map[string]any{"actionType": "echo"},
	}

	for _, override := range overrides {
		override(node)
	}

	return node
}

// WithID sets the node id.
func WithID(id string) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.ID = id
	}
}

// WithType sets the node type.
func WithType(nodeType models.NodeType) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Type = nodeType
	}
}

// WithConfig sets the node configuration.
func WithConfig(config map[string]any) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Config = config
	}
}

// WithName sets the node name.
func WithName(name string) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Name = name
	}
}

// WorkflowBuilder assembles workflow definitions for tests.
type WorkflowBuilder struct {
	wf *models.WorkflowDefinition
}

// NewWorkflow starts a definition with the given id.
func NewWorkflow(id string) *WorkflowBuilder {
	now := time.Now().UTC()

	return &WorkflowBuilder{wf: &models.WorkflowDefinition{
		ID:        id,
		Name:      "Test workflow " + id,
		Variables: map[string]any{},
		CreatedAt: now,
		UpdatedAt: now,
	}}
}

// Node appends a node of any type.
func (b *WorkflowBuilder) Node(id string, nodeType models.NodeType, config map[string]any) *WorkflowBuilder {
	if config == nil {
		config = map[string]any{}
	}

	b.wf.Nodes = append(b.wf.Nodes, &models.WorkflowNode{ID: id, Type: nodeType, Name: id, Config: config})

	return b
}

// Trigger appends a trigger node.
func (b *WorkflowBuilder) Trigger(id string, triggerType models.TriggerType) *WorkflowBuilder {
	return b.Node(id, models.NodeTypeTrigger, map[string]any{"triggerType": string(triggerType)})
}

// Action appends an action node; params are merged next to actionType.
func (b *WorkflowBuilder) Action(id, actionType string, params map[string]any) *WorkflowBuilder {
	config := map[string]any{"actionType": actionType}
	for k, v := range params {
		config[k] = v
	}

	return b.Node(id, models.NodeTypeAction, config)
}

// Condition appends a condition node.
func (b *WorkflowBuilder) Condition(id, field, operator string, value any) *WorkflowBuilder {
	return b.Node(id, models.NodeTypeCondition, map[string]any{"field": field, "operator": operator, "value": value})
}

// Delay appends a delay node waiting durationMs.
func (b *WorkflowBuilder) Delay(id string, durationMs float64) *WorkflowBuilder {
	return b.Node(id, models.NodeTypeDelay, map[string]any{"durationMs": durationMs})
}

// Connect adds an unconditional edge.
func (b *WorkflowBuilder) Connect(from, to string) *WorkflowBuilder {
	return b.ConnectBranch(from, to, "")
}

// ConnectBranch adds an edge taken when a condition yields branch.
func (b *WorkflowBuilder) ConnectBranch(from, to, branch string) *WorkflowBuilder {
	b.wf.Connections = append(b.wf.Connections, &models.Connection{
		ID:     from + "->" + to,
		From:   from,
		To:     to,
		Branch: branch,
	})

	return b
}

// Build returns the assembled definition.
func (b *WorkflowBuilder) Build() *models.WorkflowDefinition {
	return b.wf
}

// NewExecutionContext creates a context for wf seeded with data.
func NewExecutionContext(wf *models.WorkflowDefinition, data map[string]any) *models.ExecutionContext {
	if data == nil {
		data = map[string]any{}
	}

	return &models.ExecutionContext{
		ExecutionID: "exec-" + uuid.NewString(),
		WorkflowID:  wf.ID,
		Data:        data,
		Variables:   map[string]any{},
		Metadata: models.ExecutionMetadata{
			StartTime:   time.Now().UTC(),
			TotalSteps:  len(wf.Nodes),
			TriggeredBy: "test",
		},
		Graph: wf,
	}
}
