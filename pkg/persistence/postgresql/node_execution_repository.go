package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/runtrace/runtrace/pkg/models"
	"github.com/runtrace/runtrace/pkg/persistence"
)

// NodeExecutionRepository handles node execution database operations.
type NodeExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewNodeExecutionRepository creates a new node execution repository.
func NewNodeExecutionRepository(db *sql.DB, logger *slog.Logger) *NodeExecutionRepository {
	return &NodeExecutionRepository{db: db, logger: logger}
}

const executionColumns = `
	id, tenant_id, app_id, workflow_id, workflow_run_id, predecessor_node_id,
	"index", node_id, node_type, title, status, inputs, process_data, outputs,
	execution_metadata, error, elapsed_time, created_by, created_by_role,
	created_at, finished_at
`

// Create inserts a new node execution row.
func (r *NodeExecutionRepository) Create(ctx context.Context, execution *models.WorkflowNodeExecution) error {
	query := `
		INSERT INTO workflow_node_executions (` + executionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	`

	_, err := r.db.ExecContext(ctx, query,
		execution.ID,
		execution.TenantID,
		execution.AppID,
		execution.WorkflowID,
		execution.WorkflowRunID,
		nullString(execution.PredecessorNodeID),
		execution.Index,
		execution.NodeID,
		execution.NodeType,
		nullString(execution.Title),
		execution.Status,
		nullBytes(execution.Inputs),
		nullBytes(execution.ProcessData),
		nullBytes(execution.Outputs),
		nullBytes(execution.ExecutionMetadata),
		nullString(execution.Error),
		execution.ElapsedTime,
		nullString(execution.CreatedBy),
		nullString(string(execution.CreatedByRole)),
		execution.CreatedAt,
		execution.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create node execution: %w", err)
	}

	return nil
}

// Update overwrites the mutable columns of an existing node execution row.
func (r *NodeExecutionRepository) Update(ctx context.Context, execution *models.WorkflowNodeExecution) error {
	query := `
		UPDATE workflow_node_executions SET
			status = $2,
			inputs = $3,
			process_data = $4,
			outputs = $5,
			execution_metadata = $6,
			error = $7,
			elapsed_time = $8,
			finished_at = $9
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		execution.ID,
		execution.Status,
		nullBytes(execution.Inputs),
		nullBytes(execution.ProcessData),
		nullBytes(execution.Outputs),
		nullBytes(execution.ExecutionMetadata),
		nullString(execution.Error),
		execution.ElapsedTime,
		execution.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update node execution: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}

	if affected == 0 {
		return persistence.NewNodeExecutionError("Update", execution.WorkflowRunID, execution.ID, persistence.ErrNodeExecutionNotFound)
	}

	return nil
}

// GetByID fetches a node execution row by identifier.
func (r *NodeExecutionRepository) GetByID(ctx context.Context, id string) (*models.WorkflowNodeExecution, error) {
	query := `SELECT ` + executionColumns + ` FROM workflow_node_executions WHERE id = $1`

	row := r.db.QueryRowContext(ctx, query, id)

	execution, err := r.scanExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewNodeExecutionError("GetByID", "", id, persistence.ErrNodeExecutionNotFound)
		}

		return nil, fmt.Errorf("failed to scan node execution: %w", err)
	}

	return execution, nil
}

// ListByRun returns the node executions of a run in activation order.
func (r *NodeExecutionRepository) ListByRun(ctx context.Context, workflowRunID string) ([]*models.WorkflowNodeExecution, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM workflow_node_executions
		WHERE workflow_run_id = $1
		ORDER BY "index" ASC
	`

	rows, err := r.db.QueryContext(ctx, query, workflowRunID)
	if err != nil {
		return nil, fmt.Errorf("failed to query node executions: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	var executions []*models.WorkflowNodeExecution

	for rows.Next() {
		execution, err := r.scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node execution: %w", err)
		}

		executions = append(executions, execution)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating node executions: %w", err)
	}

	return executions, nil
}

// scanExecution scans a node execution from a database row.
func (r *NodeExecutionRepository) scanExecution(scanner interface {
	Scan(dest ...any) error
}) (*models.WorkflowNodeExecution, error) {
	var (
		execution                                 models.WorkflowNodeExecution
		predecessor, title, errMsg, createdBy, role sql.NullString
		inputs, processData, outputs, metadata    []byte
		finishedAt                                sql.NullTime
	)

	err := scanner.Scan(
		&execution.ID,
		&execution.TenantID,
		&execution.AppID,
		&execution.WorkflowID,
		&execution.WorkflowRunID,
		&predecessor,
		&execution.Index,
		&execution.NodeID,
		&execution.NodeType,
		&title,
		&execution.Status,
		&inputs,
		&processData,
		&outputs,
		&metadata,
		&errMsg,
		&execution.ElapsedTime,
		&createdBy,
		&role,
		&execution.CreatedAt,
		&finishedAt,
	)
	if err != nil {
		return nil, err
	}

	execution.PredecessorNodeID = predecessor.String
	execution.Title = title.String
	execution.Inputs = inputs
	execution.ProcessData = processData
	execution.Outputs = outputs
	execution.ExecutionMetadata = metadata
	execution.Error = errMsg.String
	execution.CreatedBy = createdBy.String
	execution.CreatedByRole = models.CreatedByRole(role.String)

	if finishedAt.Valid {
		finished := finishedAt.Time
		execution.FinishedAt = &finished
	}

	return &execution, nil
}
