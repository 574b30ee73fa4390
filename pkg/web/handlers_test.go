package web_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/runtrace/runtrace/pkg/models"
	"github.com/runtrace/runtrace/pkg/persistence/memory"
	"github.com/runtrace/runtrace/pkg/web"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestApp(t *testing.T) (*fiber.App, *memory.Persistence) {
	t.Helper()

	store := memory.NewPersistence()
	validate := validator.New(validator.WithRequiredStructEnabled())
	handlers := web.NewAPIHandlers(store, validate)

	app := fiber.New()

	v1 := app.Group("/v1")
	v1.Get("/runs/:id", handlers.GetRun)
	v1.Get("/runs/:id/node-executions", handlers.GetRunNodeExecutions)
	v1.Get("/apps/:appID/runs", handlers.GetRuns)

	app.Get("/health", handlers.HealthCheck)

	return app, store
}

func seedRun(t *testing.T, store *memory.Persistence, id string, sequenceNumber int) *models.WorkflowRun {
	t.Helper()

	run := &models.WorkflowRun{
		ID:             id,
		TenantID:       "tenant-1",
		AppID:          "app-1",
		SequenceNumber: sequenceNumber,
		WorkflowID:     "wf-1",
		Type:           models.WorkflowTypeWorkflow,
		TriggeredFrom:  models.WorkflowRunTriggeredFromAppRun,
		Status:         models.WorkflowRunStatusRunning,
		CreatedAt:      time.Now().UTC(),
	}

	require.NoError(t, store.WorkflowRunRepository().Create(context.Background(), run))

	return run
}

func decodeBody(t *testing.T, resp *http.Response, target any) {
	t.Helper()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(body, target))
}

func TestGetRun(t *testing.T) {
	app, store := setupTestApp(t)
	seedRun(t, store, "run-1", 1)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/v1/runs/run-1", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var run models.WorkflowRun

	decodeBody(t, resp, &run)
	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, models.WorkflowRunStatusRunning, run.Status)
}

func TestGetRun_NotFound(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/v1/runs/nope", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetRuns(t *testing.T) {
	app, store := setupTestApp(t)
	seedRun(t, store, "run-1", 1)
	seedRun(t, store, "run-2", 2)
	seedRun(t, store, "run-3", 3)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/v1/apps/app-1/runs?tenant_id=tenant-1&limit=2", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Runs  []models.WorkflowRun `json:"runs"`
		Limit int                  `json:"limit"`
	}

	decodeBody(t, resp, &result)
	require.Len(t, result.Runs, 2)
	assert.Equal(t, 3, result.Runs[0].SequenceNumber)
	assert.Equal(t, 2, result.Runs[1].SequenceNumber)
}

func TestGetRuns_MissingTenant(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/v1/apps/app-1/runs", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetRuns_InvalidLimit(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/v1/apps/app-1/runs?tenant_id=tenant-1&limit=lots", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetRunNodeExecutions(t *testing.T) {
	app, store := setupTestApp(t)
	run := seedRun(t, store, "run-1", 1)

	for index := 1; index <= 2; index++ {
		require.NoError(t, store.NodeExecutionRepository().Create(context.Background(), &models.WorkflowNodeExecution{
			ID:            run.ID + "-exec-" + string(rune('0'+index)),
			TenantID:      run.TenantID,
			AppID:         run.AppID,
			WorkflowID:    run.WorkflowID,
			WorkflowRunID: run.ID,
			Index:         index,
			NodeID:        "node",
			NodeType:      models.NodeTypeCode,
			Status:        models.NodeExecutionStatusSucceeded,
			CreatedAt:     time.Now().UTC(),
		}))
	}

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/v1/runs/run-1/node-executions", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		NodeExecutions []models.WorkflowNodeExecution `json:"node_executions"`
	}

	decodeBody(t, resp, &result)
	require.Len(t, result.NodeExecutions, 2)
	assert.Equal(t, 1, result.NodeExecutions[0].Index)
}

func TestGetRunNodeExecutions_UnknownRun(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/v1/runs/nope/node-executions", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthCheck(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
