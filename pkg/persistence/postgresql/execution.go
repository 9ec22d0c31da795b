package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/crmflow/pkg/models"
	"github.com/dukex/crmflow/pkg/persistence"
)

// ExecutionRepository stores execution snapshots, one row per execution.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

const executionColumns = `
	id
  , workflow_id
  , status
  , triggered_by
  , start_time
  , end_time
  , duration_ns
  , logs
  , output
  , error
  , failed_node_id
`

// Save upserts the latest snapshot of execution.
func (r *ExecutionRepository) Save(ctx context.Context, execution *models.WorkflowExecution) error {
	logsJSON, err := json.Marshal(execution.Logs)
	if err != nil {
		return fmt.Errorf("failed to marshal execution logs: %w", err)
	}

	var outputJSON []byte

	if execution.Output != nil {
		outputJSON, err = json.Marshal(execution.Output)
		if err != nil {
			return fmt.Errorf("failed to marshal execution output: %w", err)
		}
	}

	query := `
		INSERT INTO workflow_executions (` + executionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			end_time = EXCLUDED.end_time,
			duration_ns = EXCLUDED.duration_ns,
			logs = EXCLUDED.logs,
			output = EXCLUDED.output,
			error = EXCLUDED.error,
			failed_node_id = EXCLUDED.failed_node_id
	`

	_, err = r.db.ExecContext(ctx, query,
		execution.ID,
		execution.WorkflowID,
		execution.Status,
		execution.TriggeredBy,
		execution.StartTime,
		execution.EndTime,
		int64(execution.Duration),
		logsJSON,
		outputJSON,
		execution.Error,
		execution.FailedNodeID,
	)
	if err != nil {
		return persistence.NewExecutionError("Save", execution.ID, err)
	}

	return nil
}

func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+executionColumns+` FROM workflow_executions WHERE id = $1`, id)

	execution, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
		}

		return nil, fmt.Errorf("failed to scan execution: %w", err)
	}

	return execution, nil
}

// GetByWorkflow returns the executions of workflowID, newest first.
func (r *ExecutionRepository) GetByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowExecution, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+executionColumns+` FROM workflow_executions WHERE workflow_id = $1 ORDER BY start_time DESC`,
		workflowID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	executions := make([]*models.WorkflowExecution, 0)

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, execution)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return executions, nil
}

func scanExecution(row rowScanner) (*models.WorkflowExecution, error) {
	var (
		execution  models.WorkflowExecution
		endTime    sql.NullTime
		durationNs int64
		logsJSON   []byte
		outputJSON []byte
	)

	err := row.Scan(
		&execution.ID,
		&execution.WorkflowID,
		&execution.Status,
		&execution.TriggeredBy,
		&execution.StartTime,
		&endTime,
		&durationNs,
		&logsJSON,
		&outputJSON,
		&execution.Error,
		&execution.FailedNodeID,
	)
	if err != nil {
		return nil, err
	}

	if endTime.Valid {
		end := endTime.Time
		execution.EndTime = &end
	}

	execution.Duration = time.Duration(durationNs)

	if len(logsJSON) > 0 {
		err = json.Unmarshal(logsJSON, &execution.Logs)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal execution logs: %w", err)
		}
	}

	if len(outputJSON) > 0 {
		err = json.Unmarshal(outputJSON, &execution.Output)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal execution output: %w", err)
		}
	}

	return &execution, nil
}
