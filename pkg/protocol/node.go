// Package protocol defines the interfaces and contracts between the engine,
// its pluggable executors and the external collaborators they drive.
package protocol

import (
	"context"
	"log/slog"

	"github.com/dukex/crmflow/pkg/models"
)

// NodeExecutor runs one node type.
//
// A returned error means the node could not be run at all (malformed config)
// and is fatal to the execution. Expected failures are reported through a
// result with Success set to false.
type NodeExecutor interface {
	// Type returns the node type tag this executor handles
	Type() models.NodeType

	// Execute runs node against the execution context. The context's data bag
	// is read-only here; the engine merges the returned data patch.
	Execute(ctx context.Context, node *models.WorkflowNode, execCtx *models.ExecutionContext, logger *slog.Logger) (*models.NodeExecutionResult, error)
}
