// Package cycle implements the workflow run and node execution state
// machine: it consumes execution events, drives run and node-execution
// records through their lifecycle, and keeps per-invocation task state.
package cycle

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/runtrace/runtrace/pkg/events"
	"github.com/runtrace/runtrace/pkg/models"
	"github.com/runtrace/runtrace/pkg/persistence"
)

// WorkflowStoppedMessage is recorded as the run error when a Stop event
// reconciles the run.
const WorkflowStoppedMessage = "Workflow stopped."

// SystemInputPrefix namespaces platform-supplied inputs so they cannot
// collide with user-supplied keys.
const SystemInputPrefix = "sys."

// maxSequenceRetries bounds recomputation when max-plus-one allocation
// collides with a concurrent run creation.
const maxSequenceRetries = 5

// Config carries the per-invocation collaborators of a Manager.
type Config struct {
	Logger        *slog.Logger
	Persistence   persistence.Persistence
	Sequences     persistence.SequenceAllocator // optional; max-plus-one when nil
	Workflow      *models.Workflow
	Operator      models.Operator
	TriggeredFrom models.WorkflowRunTriggeredFrom
	SystemInputs  map[string]any
	TaskID        string
}

// Manager drives the run/node-execution state machine for one workflow
// invocation. It is not safe for concurrent event delivery; the caller
// guarantees single-consumer, in-order processing per invocation.
type Manager struct {
	logger        *slog.Logger
	runs          persistence.WorkflowRunRepository
	executions    persistence.NodeExecutionRepository
	sequences     persistence.SequenceAllocator
	validate      *validator.Validate
	workflow      *models.Workflow
	operator      models.Operator
	triggeredFrom models.WorkflowRunTriggeredFrom
	systemInputs  map[string]any
	state         *TaskState
}

// NewManager creates a cycle manager for one invocation.
func NewManager(cfg Config) *Manager {
	return &Manager{
		logger:        cfg.Logger.With("task_id", cfg.TaskID, "workflow_id", cfg.Workflow.ID),
		runs:          cfg.Persistence.WorkflowRunRepository(),
		executions:    cfg.Persistence.NodeExecutionRepository(),
		sequences:     cfg.Sequences,
		validate:      validator.New(),
		workflow:      cfg.Workflow,
		operator:      cfg.Operator,
		triggeredFrom: cfg.TriggeredFrom,
		systemInputs:  cfg.SystemInputs,
		state:         NewTaskState(cfg.TaskID),
	}
}

// State exposes the task state for projection; callers must not mutate it.
func (m *Manager) State() *TaskState {
	return m.state
}

// HandleWorkflowStart allocates the run's sequence number, merges user and
// system inputs, and creates the run record in the running state.
func (m *Manager) HandleWorkflowStart(ctx context.Context, userInputs map[string]any) (*models.WorkflowRun, error) {
	m.state.StartAt = time.Now()

	err := m.validate.Struct(m.workflow)
	if err != nil {
		return nil, fmt.Errorf("invalid workflow snapshot: %w", err)
	}

	err = models.ValidateGraph(m.workflow.Graph)
	if err != nil {
		return nil, err
	}

	inputs := make(map[string]any, len(userInputs)+len(m.systemInputs))
	for key, value := range userInputs {
		inputs[key] = value
	}

	for key, value := range m.systemInputs {
		inputs[SystemInputPrefix+key] = value
	}

	inputsJSON, err := json.Marshal(inputs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal run inputs: %w", err)
	}

	run, err := m.createRun(ctx, inputsJSON)
	if err != nil {
		return nil, err
	}

	m.state.WorkflowRunID = run.ID

	m.logger.InfoContext(ctx, "Workflow run started",
		"workflow_run_id", run.ID, "sequence_number", run.SequenceNumber)

	return run, nil
}

func (m *Manager) createRun(ctx context.Context, inputsJSON []byte) (*models.WorkflowRun, error) {
	for attempt := 0; ; attempt++ {
		sequenceNumber, err := m.nextSequenceNumber(ctx)
		if err != nil {
			return nil, err
		}

		run := &models.WorkflowRun{
			ID:             uuid.New().String(),
			TenantID:       m.workflow.TenantID,
			AppID:          m.workflow.AppID,
			SequenceNumber: sequenceNumber,
			WorkflowID:     m.workflow.ID,
			Type:           m.workflow.Type,
			TriggeredFrom:  m.triggeredFrom,
			Version:        m.workflow.Version,
			Graph:          m.workflow.Graph,
			Inputs:         inputsJSON,
			Status:         models.WorkflowRunStatusRunning,
			CreatedBy:      m.operator.ID,
			CreatedByRole:  m.operator.Role,
			CreatedAt:      time.Now().UTC(),
		}

		err = m.runs.Create(ctx, run)
		if err == nil {
			return run, nil
		}

		if persistence.IsDuplicateSequenceNumber(err) && attempt < maxSequenceRetries {
			m.logger.WarnContext(ctx, "Sequence number collision, retrying",
				"sequence_number", sequenceNumber, "attempt", attempt+1)

			continue
		}

		return nil, err
	}
}

func (m *Manager) nextSequenceNumber(ctx context.Context) (int, error) {
	if m.sequences != nil {
		return m.sequences.Next(ctx, m.workflow.TenantID, m.workflow.AppID)
	}

	maxSequence, err := m.runs.MaxSequenceNumber(ctx, m.workflow.TenantID, m.workflow.AppID)
	if err != nil {
		return 0, err
	}

	return maxSequence + 1, nil
}

// HandleNodeStart creates a node execution record in the running state and
// registers its bookkeeping under the node id. The node id, not the
// execution id, is the key the eventual finish event resolves against.
func (m *Manager) HandleNodeStart(ctx context.Context, event *events.NodeStarted) (*models.WorkflowNodeExecution, error) {
	run, err := m.runs.GetByID(ctx, m.state.WorkflowRunID)
	if err != nil {
		return nil, err
	}

	execution := &models.WorkflowNodeExecution{
		ID:                uuid.New().String(),
		TenantID:          run.TenantID,
		AppID:             run.AppID,
		WorkflowID:        run.WorkflowID,
		WorkflowRunID:     run.ID,
		PredecessorNodeID: event.PredecessorNodeID,
		Index:             event.RunIndex,
		NodeID:            event.NodeID,
		NodeType:          event.NodeType,
		Title:             event.Title,
		Status:            models.NodeExecutionStatusRunning,
		CreatedBy:         run.CreatedBy,
		CreatedByRole:     run.CreatedByRole,
		CreatedAt:         time.Now().UTC(),
	}

	err = m.executions.Create(ctx, execution)
	if err != nil {
		return nil, err
	}

	info := &NodeExecutionInfo{
		NodeExecutionID: execution.ID,
		NodeType:        event.NodeType,
		StartAt:         time.Now(),
	}

	m.state.RanNodeExecutions[event.NodeID] = info
	m.state.LatestNodeExecution = info
	m.state.TotalSteps++

	return execution, nil
}

// HandleNodeFinished resolves a NodeSucceeded or NodeFailed event against
// the most recently started activation of its node id and commits the
// terminal transition. A finish for an already-terminal record is returned
// unchanged rather than re-applied.
func (m *Manager) HandleNodeFinished(ctx context.Context, event events.Event) (*models.WorkflowNodeExecution, error) {
	var nodeID string

	switch typed := event.(type) {
	case *events.NodeSucceeded:
		nodeID = typed.NodeID
	case *events.NodeFailed:
		nodeID = typed.NodeID
	default:
		return nil, fmt.Errorf("unexpected event type for node finish: %s", event.GetType())
	}

	info, ok := m.state.RanNodeExecutions[nodeID]
	if !ok {
		return nil, persistence.NewNodeExecutionError("Finish", m.state.WorkflowRunID, nodeID, persistence.ErrNodeExecutionNotFound)
	}

	execution, err := m.executions.GetByID(ctx, info.NodeExecutionID)
	if err != nil {
		return nil, err
	}

	if execution.Status.IsTerminal() {
		return execution, nil
	}

	finishedAt := time.Now().UTC()
	execution.ElapsedTime = time.Since(info.StartAt).Seconds()
	execution.FinishedAt = &finishedAt

	switch typed := event.(type) {
	case *events.NodeSucceeded:
		execution.Status = models.NodeExecutionStatusSucceeded
		execution.Inputs = marshalMap(typed.Inputs)
		execution.ProcessData = marshalMap(typed.ProcessData)
		execution.Outputs = marshalMap(typed.Outputs)
		execution.ExecutionMetadata = marshalMap(typed.ExecutionMetadata)

		m.state.TotalTokens += metadataTokens(typed.ExecutionMetadata)

		if execution.NodeType == models.NodeTypeLLM {
			if usage, ok := typed.Outputs["usage"].(map[string]any); ok {
				m.state.Metadata["usage"] = usage
			} else {
				m.state.Metadata["usage"] = map[string]any{}
			}
		}
	case *events.NodeFailed:
		execution.Status = models.NodeExecutionStatusFailed
		execution.Error = typed.Error
		execution.Inputs = marshalMap(typed.Inputs)
		execution.ProcessData = marshalMap(typed.ProcessData)
		execution.Outputs = marshalMap(typed.Outputs)
	}

	err = m.executions.Update(ctx, execution)
	if err != nil {
		return nil, err
	}

	return execution, nil
}

// HandleWorkflowFinished reconciles a Stop, WorkflowSucceeded, or
// WorkflowFailed event into the run's terminal state. A missing run is
// not an error: the run was already reconciled or never created, and
// there is nothing left to do.
func (m *Manager) HandleWorkflowFinished(ctx context.Context, event events.Event) (*models.WorkflowRun, error) {
	run, err := m.runs.GetByID(ctx, m.state.WorkflowRunID)
	if err != nil {
		if persistence.IsWorkflowRunNotFound(err) {
			return nil, nil
		}

		return nil, err
	}

	if run.Status.IsTerminal() {
		return run, nil
	}

	switch typed := event.(type) {
	case *events.Stop:
		run.Status = models.WorkflowRunStatusStopped
		run.Error = WorkflowStoppedMessage
	case *events.WorkflowFailed:
		run.Status = models.WorkflowRunStatusFailed
		run.Error = typed.Error
	case *events.WorkflowSucceeded:
		run.Status = models.WorkflowRunStatusSucceeded
		run.Outputs = nil

		if m.state.LatestNodeExecution != nil {
			latest, err := m.executions.GetByID(ctx, m.state.LatestNodeExecution.NodeExecutionID)
			if err != nil {
				return nil, err
			}

			run.Outputs = latest.Outputs
		}
	default:
		return nil, fmt.Errorf("unexpected event type for workflow finish: %s", event.GetType())
	}

	finishedAt := time.Now().UTC()
	run.ElapsedTime = time.Since(m.state.StartAt).Seconds()
	run.TotalTokens = m.state.TotalTokens
	run.TotalSteps = m.state.TotalSteps
	run.FinishedAt = &finishedAt

	err = m.runs.Update(ctx, run)
	if err != nil {
		return nil, err
	}

	m.state.WorkflowRunID = run.ID

	m.logger.InfoContext(ctx, "Workflow run finished",
		"workflow_run_id", run.ID, "status", run.Status, "total_steps", run.TotalSteps)

	return run, nil
}

func marshalMap(data map[string]any) []byte {
	if data == nil {
		return nil
	}

	encoded, err := json.Marshal(data)
	if err != nil {
		return nil
	}

	return encoded
}

// metadataTokens reads the reported token count out of execution metadata.
// Counts arrive as JSON numbers but tolerate integer-typed construction in
// tests; anything else contributes zero.
func metadataTokens(metadata map[string]any) int {
	raw, ok := metadata[models.MetadataKeyTotalTokens]
	if !ok {
		return 0
	}

	switch value := raw.(type) {
	case float64:
		return int(value)
	case int:
		return value
	case int64:
		return int(value)
	case json.Number:
		count, err := value.Int64()
		if err != nil {
			return 0
		}

		return int(count)
	default:
		return 0
	}
}
