package models

import (
	"maps"
	"time"
)

// Graph resolves successor nodes for executors.
type Graph interface {
	Successors(nodeID, branch string) []string
}

// ExecutionMetadata carries bookkeeping for one run.
type ExecutionMetadata struct {
	StartTime   time.Time `json:"start_time"`
	CurrentStep int       `json:"current_step"`
	TotalSteps  int       `json:"total_steps"`
	TriggeredBy string    `json:"triggered_by"`
}

// ExecutionContext is the mutable state of one running execution. It is owned
// by the engine goroutine running that execution.
type ExecutionContext struct {
	ExecutionID   string            `json:"execution_id"`
	WorkflowID    string            `json:"workflow_id"`
	CurrentNodeID string            `json:"current_node_id"`
	Data          map[string]any    `json:"data"`
	Variables     map[string]any    `json:"variables"`
	Metadata      ExecutionMetadata `json:"metadata"`

	Graph Graph `json:"-"`
}

// Merge shallow-merges patch into Data; later keys overwrite earlier ones.
func (c *ExecutionContext) Merge(patch map[string]any) {
	if len(patch) == 0 {
		return
	}

	if c.Data == nil {
		c.Data = make(map[string]any, len(patch))
	}

	maps.Copy(c.Data, patch)
}

// Successors resolves the successors of nodeID on branch, or nil without a graph.
func (c *ExecutionContext) Successors(nodeID, branch string) []string {
	if c.Graph == nil {
		return nil
	}

	return c.Graph.Successors(nodeID, branch)
}

// Snapshot returns a copy of the data bag safe to hand to other goroutines.
func (c *ExecutionContext) Snapshot() map[string]any {
	return maps.Clone(c.Data)
}
