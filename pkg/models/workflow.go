// Package models defines the core domain models for CRM workflow automation.
package models

import (
	"errors"
	"fmt"
	"time"
)

// Branch labels used on connections leaving a condition node.
const (
	BranchTrue  = "true"
	BranchFalse = "false"
)

var (
	ErrDuplicateNodeID   = errors.New("duplicate node id")
	ErrUnknownConnection = errors.New("connection references unknown node")
	ErrInvalidBranch     = errors.New("invalid connection branch")
)

// WorkflowDefinition is the immutable description of a workflow graph.
// Edges are first-class: every Connection links two nodes of the same definition.
type WorkflowDefinition struct {
	ID          string          `json:"id"                    yaml:"id"                    validate:"required"`
	Name        string          `json:"name"                  yaml:"name"                  validate:"required,min=3"`
	Description string          `json:"description,omitempty" yaml:"description,omitempty"`
	Nodes       []*WorkflowNode `json:"nodes"                 yaml:"nodes"                 validate:"required,min=1,dive"`
	Connections []*Connection   `json:"connections"           yaml:"connections"           validate:"dive"`
	Variables   map[string]any  `json:"variables,omitempty"   yaml:"variables,omitempty"`
	CreatedAt   time.Time       `json:"created_at"            yaml:"created_at,omitempty"`
	UpdatedAt   time.Time       `json:"updated_at"            yaml:"updated_at,omitempty"`
}

// Connection is a directed edge between two nodes. Branch is empty for
// unconditional edges and "true"/"false" for edges leaving a condition node.
type Connection struct {
	ID     string `json:"id,omitempty"     yaml:"id,omitempty"`
	From   string `json:"from"             yaml:"from"             validate:"required"`
	To     string `json:"to"               yaml:"to"               validate:"required"`
	Branch string `json:"branch,omitempty" yaml:"branch,omitempty" validate:"omitempty,oneof=true false"`
}

// NodeByID returns the node with the given id.
func (w *WorkflowDefinition) NodeByID(id string) (*WorkflowNode, bool) {
	for _, node := range w.Nodes {
		if node.ID == id {
			return node, true
		}
	}

	return nil, false
}

// TriggerNodes returns every trigger node in declaration order.
func (w *WorkflowDefinition) TriggerNodes() []*WorkflowNode {
	var triggers []*WorkflowNode

	for _, node := range w.Nodes {
		if node.Type == NodeTypeTrigger {
			triggers = append(triggers, node)
		}
	}

	return triggers
}

// Successors returns the ids of the nodes reached from nodeID through
// connections carrying the given branch label, in declaration order.
func (w *WorkflowDefinition) Successors(nodeID, branch string) []string {
	var next []string

	for _, conn := range w.Connections {
		if conn.From == nodeID && conn.Branch == branch {
			next = append(next, conn.To)
		}
	}

	return next
}

// TriggerTypes returns the distinct trigger types this workflow listens to.
func (w *WorkflowDefinition) TriggerTypes() []TriggerType {
	seen := make(map[TriggerType]bool)

	var types []TriggerType

	for _, node := range w.TriggerNodes() {
		cfg, err := DecodeTriggerConfig(node.Config)
		if err != nil || cfg.TriggerType == "" {
			continue
		}

		if !seen[cfg.TriggerType] {
			seen[cfg.TriggerType] = true
			types = append(types, cfg.TriggerType)
		}
	}

	return types
}

// ValidateGraph checks structural invariants that struct tags cannot express:
// unique node ids and connections that only reference known nodes.
func (w *WorkflowDefinition) ValidateGraph() error {
	ids := make(map[string]bool, len(w.Nodes))

	for _, node := range w.Nodes {
		if ids[node.ID] {
			return fmt.Errorf("%w: %s", ErrDuplicateNodeID, node.ID)
		}

		ids[node.ID] = true
	}

	for _, conn := range w.Connections {
		if !ids[conn.From] {
			return fmt.Errorf("%w: from %s", ErrUnknownConnection, conn.From)
		}

		if !ids[conn.To] {
			return fmt.Errorf("%w: to %s", ErrUnknownConnection, conn.To)
		}

		if conn.Branch != "" && conn.Branch != BranchTrue && conn.Branch != BranchFalse {
			return fmt.Errorf("%w: %q", ErrInvalidBranch, conn.Branch)
		}
	}

	return nil
}
