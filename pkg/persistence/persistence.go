// Package persistence provides the durable storage abstraction for workflow
// runs and node executions.
package persistence

import (
	"context"

	"github.com/runtrace/runtrace/pkg/models"
)

// WorkflowRunRepository stores run records. Create must allocate the run's
// sequence number so that no two runs in the same (tenant, app) scope ever
// share one, even under concurrent creation.
type WorkflowRunRepository interface {
	Create(ctx context.Context, run *models.WorkflowRun) error
	Update(ctx context.Context, run *models.WorkflowRun) error
	GetByID(ctx context.Context, id string) (*models.WorkflowRun, error)
	MaxSequenceNumber(ctx context.Context, tenantID, appID string) (int, error)
	ListByApp(ctx context.Context, tenantID, appID string, limit int) ([]*models.WorkflowRun, error)
}

// NodeExecutionRepository stores node activation records. Node executions
// belong to exactly one run and never outlive it.
type NodeExecutionRepository interface {
	Create(ctx context.Context, execution *models.WorkflowNodeExecution) error
	Update(ctx context.Context, execution *models.WorkflowNodeExecution) error
	GetByID(ctx context.Context, id string) (*models.WorkflowNodeExecution, error)
	ListByRun(ctx context.Context, workflowRunID string) ([]*models.WorkflowNodeExecution, error)
}

type Persistence interface {
	WorkflowRunRepository() WorkflowRunRepository
	NodeExecutionRepository() NodeExecutionRepository
	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}
