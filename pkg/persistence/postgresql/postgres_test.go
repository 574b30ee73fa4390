package postgresql_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/runtrace/runtrace/pkg/models"
	"github.com/runtrace/runtrace/pkg/persistence"
	"github.com/runtrace/runtrace/pkg/persistence/postgresql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	// Drop tables in reverse dependency order (children first, parents last)
	for _, table := range []string{"workflow_node_executions", "workflow_runs", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("runtrace_test"),
			postgres.WithUsername("runtrace"),
			postgres.WithPassword("runtrace"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = p.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return p, ctx, databaseURL
}

func testRun(sequenceNumber int) *models.WorkflowRun {
	return &models.WorkflowRun{
		ID:             uuid.New().String(),
		TenantID:       "tenant-1",
		AppID:          "app-1",
		SequenceNumber: sequenceNumber,
		WorkflowID:     "wf-1",
		Type:           models.WorkflowTypeWorkflow,
		TriggeredFrom:  models.WorkflowRunTriggeredFromAppRun,
		Version:        "2024-01-01",
		Graph:          json.RawMessage(`{"nodes": []}`),
		Inputs:         json.RawMessage(`{"query": "hello", "sys.user_id": "user-1"}`),
		Status:         models.WorkflowRunStatusRunning,
		CreatedBy:      "account-1",
		CreatedByRole:  models.CreatedByRoleAccount,
		CreatedAt:      time.Now().UTC().Truncate(time.Microsecond),
	}
}

func testExecution(runID string, index int) *models.WorkflowNodeExecution {
	return &models.WorkflowNodeExecution{
		ID:            uuid.New().String(),
		TenantID:      "tenant-1",
		AppID:         "app-1",
		WorkflowID:    "wf-1",
		WorkflowRunID: runID,
		Index:         index,
		NodeID:        "llm-1",
		NodeType:      models.NodeTypeLLM,
		Title:         "Generate",
		Status:        models.NodeExecutionStatusRunning,
		CreatedBy:     "account-1",
		CreatedByRole: models.CreatedByRoleAccount,
		CreatedAt:     time.Now().UTC().Truncate(time.Microsecond),
	}
}

func TestNewPersistence_Migrations(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		err := db.Close()
		require.NoError(t, err)
	}()

	var exists bool

	err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM
information_schema.tables WHERE table_name = 'workflow_runs')`).Scan(&exists)
	require.NoError(t, err)
	assert.True(t, exists, "workflow_runs table should exist")

	err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM
information_schema.tables WHERE table_name = 'workflow_node_executions')`).Scan(&exists)
	require.NoError(t, err)
	assert.True(t, exists, "workflow_node_executions table should exist")

	var version int

	err = db.QueryRowContext(ctx, "SELECT version FROM schema_migrations WHERE version = 1").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 1, version)
}

func TestNewPersistence_HealthCheck(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	err := p.HealthCheck(ctx)
	assert.NoError(t, err)
}

func TestWorkflowRunRepository_CreateAndGet(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.WorkflowRunRepository()

	run := testRun(1)
	require.NoError(t, repo.Create(ctx, run))

	stored, err := repo.GetByID(ctx, run.ID)
	require.NoError(t, err)

	assert.Equal(t, run.SequenceNumber, stored.SequenceNumber)
	assert.Equal(t, run.Status, stored.Status)
	assert.Equal(t, run.TriggeredFrom, stored.TriggeredFrom)
	assert.Nil(t, stored.FinishedAt)

	inputs, err := stored.InputsMap()
	require.NoError(t, err)
	assert.Equal(t, "hello", inputs["query"])
}

func TestWorkflowRunRepository_DuplicateSequence(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.WorkflowRunRepository()

	require.NoError(t, repo.Create(ctx, testRun(1)))

	err := repo.Create(ctx, testRun(1))
	assert.True(t, persistence.IsDuplicateSequenceNumber(err))
}

func TestWorkflowRunRepository_Update(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.WorkflowRunRepository()

	run := testRun(1)
	require.NoError(t, repo.Create(ctx, run))

	finishedAt := time.Now().UTC().Truncate(time.Microsecond)
	run.Status = models.WorkflowRunStatusSucceeded
	run.Outputs = json.RawMessage(`{"answer": "42"}`)
	run.ElapsedTime = 1.5
	run.TotalTokens = 12
	run.TotalSteps = 3
	run.FinishedAt = &finishedAt

	require.NoError(t, repo.Update(ctx, run))

	stored, err := repo.GetByID(ctx, run.ID)
	require.NoError(t, err)

	assert.Equal(t, models.WorkflowRunStatusSucceeded, stored.Status)
	assert.Equal(t, 12, stored.TotalTokens)
	assert.Equal(t, 3, stored.TotalSteps)
	require.NotNil(t, stored.FinishedAt)
	assert.Equal(t, finishedAt.Unix(), stored.FinishedAt.Unix())
}

func TestWorkflowRunRepository_UpdateMissing(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	err := p.WorkflowRunRepository().Update(ctx, testRun(1))
	assert.True(t, persistence.IsWorkflowRunNotFound(err))
}

func TestWorkflowRunRepository_MaxSequenceNumber(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.WorkflowRunRepository()

	maxSequence, err := repo.MaxSequenceNumber(ctx, "tenant-1", "app-1")
	require.NoError(t, err)
	assert.Equal(t, 0, maxSequence)

	require.NoError(t, repo.Create(ctx, testRun(4)))

	maxSequence, err = repo.MaxSequenceNumber(ctx, "tenant-1", "app-1")
	require.NoError(t, err)
	assert.Equal(t, 4, maxSequence)
}

func TestWorkflowRunRepository_ListByApp(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.WorkflowRunRepository()

	for i := 1; i <= 3; i++ {
		require.NoError(t, repo.Create(ctx, testRun(i)))
	}

	runs, err := repo.ListByApp(ctx, "tenant-1", "app-1", 2)
	require.NoError(t, err)

	require.Len(t, runs, 2)
	assert.Equal(t, 3, runs[0].SequenceNumber)
	assert.Equal(t, 2, runs[1].SequenceNumber)
}

func TestWorkflowRunRepository_ConcurrentSequenceAllocation(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.WorkflowRunRepository()

	const writers = 10

	var wg sync.WaitGroup

	for range writers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for {
				maxSequence, err := repo.MaxSequenceNumber(ctx, "tenant-1", "app-1")
				if err != nil {
					t.Error(err)

					return
				}

				err = repo.Create(ctx, testRun(maxSequence+1))
				if err == nil {
					return
				}

				if !persistence.IsDuplicateSequenceNumber(err) {
					t.Error(err)

					return
				}
			}
		}()
	}

	wg.Wait()

	runs, err := repo.ListByApp(ctx, "tenant-1", "app-1", writers+1)
	require.NoError(t, err)
	require.Len(t, runs, writers)

	// The unique index plus retry yields a gapless 1..N allocation.
	for i, run := range runs {
		assert.Equal(t, writers-i, run.SequenceNumber)
	}
}

func TestNodeExecutionRepository_CreateAndList(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	run := testRun(1)
	require.NoError(t, p.WorkflowRunRepository().Create(ctx, run))

	repo := p.NodeExecutionRepository()

	for _, index := range []int{2, 1} {
		require.NoError(t, repo.Create(ctx, testExecution(run.ID, index)))
	}

	executions, err := repo.ListByRun(ctx, run.ID)
	require.NoError(t, err)

	require.Len(t, executions, 2)
	assert.Equal(t, 1, executions[0].Index)
	assert.Equal(t, 2, executions[1].Index)
}

func TestNodeExecutionRepository_Update(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	run := testRun(1)
	require.NoError(t, p.WorkflowRunRepository().Create(ctx, run))

	repo := p.NodeExecutionRepository()
	execution := testExecution(run.ID, 1)
	require.NoError(t, repo.Create(ctx, execution))

	finishedAt := time.Now().UTC().Truncate(time.Microsecond)
	execution.Status = models.NodeExecutionStatusSucceeded
	execution.Outputs = json.RawMessage(`{"text": "hi"}`)
	execution.ExecutionMetadata = json.RawMessage(`{"total_tokens": 9}`)
	execution.ElapsedTime = 0.8
	execution.FinishedAt = &finishedAt

	require.NoError(t, repo.Update(ctx, execution))

	stored, err := repo.GetByID(ctx, execution.ID)
	require.NoError(t, err)

	assert.Equal(t, models.NodeExecutionStatusSucceeded, stored.Status)
	require.NotNil(t, stored.FinishedAt)

	outputs, err := stored.OutputsMap()
	require.NoError(t, err)
	assert.Equal(t, "hi", outputs["text"])
}

func TestNodeExecutionRepository_GetMissing(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	execution, err := p.NodeExecutionRepository().GetByID(ctx, uuid.New().String())

	assert.True(t, persistence.IsNodeExecutionNotFound(err))
	assert.Nil(t, execution)
}
