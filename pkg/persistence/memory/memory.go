// Package memory provides an in-memory persistence implementation for unit
// tests and local development.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/runtrace/runtrace/pkg/models"
	"github.com/runtrace/runtrace/pkg/persistence"
)

// Persistence implements persistence.Persistence with mutex-guarded maps.
type Persistence struct {
	runRepo       *WorkflowRunRepository
	executionRepo *NodeExecutionRepository
}

// NewPersistence creates an empty in-memory persistence layer.
func NewPersistence() *Persistence {
	return &Persistence{
		runRepo: &WorkflowRunRepository{
			runs: make(map[string]*models.WorkflowRun),
		},
		executionRepo: &NodeExecutionRepository{
			executions: make(map[string]*models.WorkflowNodeExecution),
		},
	}
}

func (p *Persistence) WorkflowRunRepository() persistence.WorkflowRunRepository {
	return p.runRepo
}

func (p *Persistence) NodeExecutionRepository() persistence.NodeExecutionRepository {
	return p.executionRepo
}

func (p *Persistence) HealthCheck(_ context.Context) error {
	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// WorkflowRunRepository stores run records in memory.
type WorkflowRunRepository struct {
	mu   sync.RWMutex
	runs map[string]*models.WorkflowRun
}

func (r *WorkflowRunRepository) Create(_ context.Context, run *models.WorkflowRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.runs[run.ID]; exists {
		return persistence.NewRunError("Create", run.ID, persistence.ErrRunAlreadyExists)
	}

	for _, existing := range r.runs {
		if existing.TenantID == run.TenantID && existing.AppID == run.AppID &&
			existing.SequenceNumber == run.SequenceNumber {
			return persistence.NewRunError("Create", run.ID, persistence.ErrDuplicateSequenceNumber)
		}
	}

	copied := *run
	r.runs[run.ID] = &copied

	return nil
}

func (r *WorkflowRunRepository) Update(_ context.Context, run *models.WorkflowRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.runs[run.ID]; !exists {
		return persistence.NewRunError("Update", run.ID, persistence.ErrWorkflowRunNotFound)
	}

	copied := *run
	r.runs[run.ID] = &copied

	return nil
}

func (r *WorkflowRunRepository) GetByID(_ context.Context, id string) (*models.WorkflowRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	run, exists := r.runs[id]
	if !exists {
		return nil, persistence.NewRunError("GetByID", id, persistence.ErrWorkflowRunNotFound)
	}

	copied := *run

	return &copied, nil
}

func (r *WorkflowRunRepository) MaxSequenceNumber(_ context.Context, tenantID, appID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	maxSequence := 0

	for _, run := range r.runs {
		if run.TenantID == tenantID && run.AppID == appID && run.SequenceNumber > maxSequence {
			maxSequence = run.SequenceNumber
		}
	}

	return maxSequence, nil
}

func (r *WorkflowRunRepository) ListByApp(_ context.Context, tenantID, appID string, limit int) ([]*models.WorkflowRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var runs []*models.WorkflowRun

	for _, run := range r.runs {
		if run.TenantID == tenantID && run.AppID == appID {
			copied := *run
			runs = append(runs, &copied)
		}
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].SequenceNumber > runs[j].SequenceNumber
	})

	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}

	return runs, nil
}

// NodeExecutionRepository stores node activation records in memory.
type NodeExecutionRepository struct {
	mu         sync.RWMutex
	executions map[string]*models.WorkflowNodeExecution
}

func (r *NodeExecutionRepository) Create(_ context.Context, execution *models.WorkflowNodeExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *execution
	r.executions[execution.ID] = &copied

	return nil
}

func (r *NodeExecutionRepository) Update(_ context.Context, execution *models.WorkflowNodeExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.executions[execution.ID]; !exists {
		return persistence.NewNodeExecutionError("Update", execution.WorkflowRunID, execution.ID, persistence.ErrNodeExecutionNotFound)
	}

	copied := *execution
	r.executions[execution.ID] = &copied

	return nil
}

func (r *NodeExecutionRepository) GetByID(_ context.Context, id string) (*models.WorkflowNodeExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	execution, exists := r.executions[id]
	if !exists {
		return nil, persistence.NewNodeExecutionError("GetByID", "", id, persistence.ErrNodeExecutionNotFound)
	}

	copied := *execution

	return &copied, nil
}

func (r *NodeExecutionRepository) ListByRun(_ context.Context, workflowRunID string) ([]*models.WorkflowNodeExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var executions []*models.WorkflowNodeExecution

	for _, execution := range r.executions {
		if execution.WorkflowRunID == workflowRunID {
			copied := *execution
			executions = append(executions, &copied)
		}
	}

	sort.Slice(executions, func(i, j int) bool {
		return executions[i].Index < executions[j].Index
	})

	return executions, nil
}
