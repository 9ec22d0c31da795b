package models

// NodeType is the tag selecting which executor runs a node.
type NodeType string

const (
	NodeTypeTrigger   NodeType = "trigger"
	NodeTypeAction    NodeType = "action"
	NodeTypeCondition NodeType = "condition"
	NodeTypeDelay     NodeType = "delay"
	NodeTypeAI        NodeType = "ai"
)

// WorkflowNode is one step of a workflow graph. Config is the authored,
// untyped configuration; executors decode it into the typed config for Type.
type WorkflowNode struct {
	ID     string         `json:"id"     yaml:"id"     validate:"required"`
	Type   NodeType       `json:"type"   yaml:"type"   validate:"required"`
	Name   string         `json:"name"   yaml:"name"   validate:"required,min=1"`
	Config map[string]any `json:"config" yaml:"config"`
}

// NodeExecutionResult is what every node executor returns.
type NodeExecutionResult struct {
	Success        bool           `json:"success"`
	Data           map[string]any `json:"data,omitempty"`
	Error          string         `json:"error,omitempty"`
	NextNodes      []string       `json:"next_nodes,omitempty"`
	ShouldContinue bool           `json:"should_continue"`
}

// Halts reports whether traversal stops after this result. A failed result
// always halts, whatever ShouldContinue says.
func (r *NodeExecutionResult) Halts() bool {
	return !r.Success || !r.ShouldContinue
}

// Succeeded builds a successful result that continues to next.
func Succeeded(data map[string]any, next []string) *NodeExecutionResult {
	return &NodeExecutionResult{
		Success:        true,
		Data:           data,
		NextNodes:      next,
		ShouldContinue: true,
	}
}

// Failed builds a failed result carrying message.
func Failed(message string) *NodeExecutionResult {
	return &NodeExecutionResult{
		Success:        false,
		Error:          message,
		ShouldContinue: false,
	}
}

// SoftStop builds a successful result that ends its branch.
func SoftStop(data map[string]any) *NodeExecutionResult {
	return &NodeExecutionResult{
		Success:        true,
		Data:           data,
		ShouldContinue: false,
	}
}
