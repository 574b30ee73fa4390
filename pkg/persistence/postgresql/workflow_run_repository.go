package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"
	"github.com/runtrace/runtrace/pkg/models"
	"github.com/runtrace/runtrace/pkg/persistence"
)

const uniqueViolationCode = "23505"

// WorkflowRunRepository handles workflow run database operations.
type WorkflowRunRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowRunRepository creates a new workflow run repository.
func NewWorkflowRunRepository(db *sql.DB, logger *slog.Logger) *WorkflowRunRepository {
	return &WorkflowRunRepository{db: db, logger: logger}
}

const runColumns = `
	id, tenant_id, app_id, sequence_number, workflow_id, type, triggered_from,
	version, graph, inputs, status, outputs, error, elapsed_time, total_tokens,
	total_steps, created_by, created_by_role, created_at, finished_at
`

// Create inserts a new run row. A sequence number collision within the
// (tenant, app) scope surfaces as ErrDuplicateSequenceNumber so callers
// can recompute and retry.
func (r *WorkflowRunRepository) Create(ctx context.Context, run *models.WorkflowRun) error {
	query := `
		INSERT INTO workflow_runs (` + runColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`

	_, err := r.db.ExecContext(ctx, query,
		run.ID,
		run.TenantID,
		run.AppID,
		run.SequenceNumber,
		run.WorkflowID,
		run.Type,
		run.TriggeredFrom,
		nullString(run.Version),
		nullBytes(run.Graph),
		nullBytes(run.Inputs),
		run.Status,
		nullBytes(run.Outputs),
		nullString(run.Error),
		run.ElapsedTime,
		run.TotalTokens,
		run.TotalSteps,
		nullString(run.CreatedBy),
		nullString(string(run.CreatedByRole)),
		run.CreatedAt,
		run.FinishedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolationCode {
			if pqErr.Constraint == "uq_workflow_runs_sequence" {
				return persistence.NewRunError("Create", run.ID, persistence.ErrDuplicateSequenceNumber)
			}

			return persistence.NewRunError("Create", run.ID, persistence.ErrRunAlreadyExists)
		}

		return fmt.Errorf("failed to create workflow run: %w", err)
	}

	return nil
}

// Update overwrites the mutable columns of an existing run row.
func (r *WorkflowRunRepository) Update(ctx context.Context, run *models.WorkflowRun) error {
	query := `
		UPDATE workflow_runs SET
			status = $2,
			outputs = $3,
			error = $4,
			elapsed_time = $5,
			total_tokens = $6,
			total_steps = $7,
			finished_at = $8
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		run.ID,
		run.Status,
		nullBytes(run.Outputs),
		nullString(run.Error),
		run.ElapsedTime,
		run.TotalTokens,
		run.TotalSteps,
		run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update workflow run: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}

	if affected == 0 {
		return persistence.NewRunError("Update", run.ID, persistence.ErrWorkflowRunNotFound)
	}

	return nil
}

// GetByID fetches a run row by identifier.
func (r *WorkflowRunRepository) GetByID(ctx context.Context, id string) (*models.WorkflowRun, error) {
	query := `SELECT ` + runColumns + ` FROM workflow_runs WHERE id = $1`

	row := r.db.QueryRowContext(ctx, query, id)

	run, err := r.scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRunError("GetByID", id, persistence.ErrWorkflowRunNotFound)
		}

		return nil, fmt.Errorf("failed to scan workflow run: %w", err)
	}

	return run, nil
}

// MaxSequenceNumber returns the highest sequence number allocated within a
// (tenant, app) scope, or zero when no run exists.
func (r *WorkflowRunRepository) MaxSequenceNumber(ctx context.Context, tenantID, appID string) (int, error) {
	var maxSequence int

	query := `SELECT COALESCE(MAX(sequence_number), 0) FROM workflow_runs WHERE tenant_id = $1 AND app_id = $2`

	err := r.db.QueryRowContext(ctx, query, tenantID, appID).Scan(&maxSequence)
	if err != nil {
		return 0, fmt.Errorf("failed to query max sequence number: %w", err)
	}

	return maxSequence, nil
}

// ListByApp returns runs of a (tenant, app) scope, newest first.
func (r *WorkflowRunRepository) ListByApp(ctx context.Context, tenantID, appID string, limit int) ([]*models.WorkflowRun, error) {
	query := `
		SELECT ` + runColumns + `
		FROM workflow_runs
		WHERE tenant_id = $1 AND app_id = $2
		ORDER BY sequence_number DESC
		LIMIT $3
	`

	rows, err := r.db.QueryContext(ctx, query, tenantID, appID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow runs: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	var runs []*models.WorkflowRun

	for rows.Next() {
		run, err := r.scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow run: %w", err)
		}

		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflow runs: %w", err)
	}

	return runs, nil
}

// scanRun scans a run from a database row.
func (r *WorkflowRunRepository) scanRun(scanner interface {
	Scan(dest ...any) error
}) (*models.WorkflowRun, error) {
	var (
		run                             models.WorkflowRun
		version, errMsg, createdBy, role sql.NullString
		graph, inputs, outputs          []byte
		finishedAt                      sql.NullTime
	)

	err := scanner.Scan(
		&run.ID,
		&run.TenantID,
		&run.AppID,
		&run.SequenceNumber,
		&run.WorkflowID,
		&run.Type,
		&run.TriggeredFrom,
		&version,
		&graph,
		&inputs,
		&run.Status,
		&outputs,
		&errMsg,
		&run.ElapsedTime,
		&run.TotalTokens,
		&run.TotalSteps,
		&createdBy,
		&role,
		&run.CreatedAt,
		&finishedAt,
	)
	if err != nil {
		return nil, err
	}

	run.Version = version.String
	run.Graph = graph
	run.Inputs = inputs
	run.Outputs = outputs
	run.Error = errMsg.String
	run.CreatedBy = createdBy.String
	run.CreatedByRole = models.CreatedByRole(role.String)

	if finishedAt.Valid {
		finished := finishedAt.Time
		run.FinishedAt = &finished
	}

	return &run, nil
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

func nullBytes(value []byte) []byte {
	if len(value) == 0 {
		return nil
	}

	return value
}
