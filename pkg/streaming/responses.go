// Package streaming projects persisted run and node-execution records into
// the external stream protocol. Projections are pure: they read records
// and derive messages, never touching storage or task state.
package streaming

import (
	"time"

	"github.com/runtrace/runtrace/pkg/models"
	"github.com/runtrace/runtrace/pkg/variables"
)

// Event tags the kind of a stream response.
type Event string

const (
	EventWorkflowStarted  Event = "workflow_started"
	EventWorkflowFinished Event = "workflow_finished"
	EventNodeStarted      Event = "node_started"
	EventNodeFinished     Event = "node_finished"
)

// Response is the envelope every stream message shares.
type Response struct {
	Event         Event  `json:"event"`
	TaskID        string `json:"task_id"`
	WorkflowRunID string `json:"workflow_run_id"`
	Data          any    `json:"data"`
}

// WorkflowStartData is the payload of a run-start message.
type WorkflowStartData struct {
	ID             string `json:"id"`
	WorkflowID     string `json:"workflow_id"`
	SequenceNumber int    `json:"sequence_number"`
	CreatedAt      int64  `json:"created_at"`
}

// WorkflowFinishData is the payload of a run-finish message.
type WorkflowFinishData struct {
	ID             string            `json:"id"`
	WorkflowID     string            `json:"workflow_id"`
	SequenceNumber int               `json:"sequence_number"`
	Status         string            `json:"status"`
	Outputs        map[string]any    `json:"outputs,omitempty"`
	Error          string            `json:"error,omitempty"`
	ElapsedTime    float64           `json:"elapsed_time"`
	TotalTokens    int               `json:"total_tokens"`
	TotalSteps     int               `json:"total_steps"`
	CreatedAt      int64             `json:"created_at"`
	FinishedAt     int64             `json:"finished_at"`
	Files          []*variables.File `json:"files"`
}

// NodeStartData is the payload of a node-start message.
type NodeStartData struct {
	ID                string         `json:"id"`
	NodeID            string         `json:"node_id"`
	NodeType          string         `json:"node_type"`
	Index             int            `json:"index"`
	PredecessorNodeID string         `json:"predecessor_node_id,omitempty"`
	Inputs            map[string]any `json:"inputs,omitempty"`
	CreatedAt         int64          `json:"created_at"`
}

// NodeFinishData is the payload of a node-finish message.
type NodeFinishData struct {
	ID                string            `json:"id"`
	NodeID            string            `json:"node_id"`
	NodeType          string            `json:"node_type"`
	Index             int               `json:"index"`
	PredecessorNodeID string            `json:"predecessor_node_id,omitempty"`
	Inputs            map[string]any    `json:"inputs,omitempty"`
	ProcessData       map[string]any    `json:"process_data,omitempty"`
	Outputs           map[string]any    `json:"outputs,omitempty"`
	Status            string            `json:"status"`
	Error             string            `json:"error,omitempty"`
	ElapsedTime       float64           `json:"elapsed_time"`
	ExecutionMetadata map[string]any    `json:"execution_metadata,omitempty"`
	CreatedAt         int64             `json:"created_at"`
	FinishedAt        int64             `json:"finished_at"`
	Files             []*variables.File `json:"files"`
}

// WorkflowStart projects a freshly created run into its start message.
func WorkflowStart(taskID string, run *models.WorkflowRun) *Response {
	return &Response{
		Event:         EventWorkflowStarted,
		TaskID:        taskID,
		WorkflowRunID: run.ID,
		Data: &WorkflowStartData{
			ID:             run.ID,
			WorkflowID:     run.WorkflowID,
			SequenceNumber: run.SequenceNumber,
			CreatedAt:      run.CreatedAt.Unix(),
		},
	}
}

// WorkflowFinish projects a terminal run into its finish message,
// including any file references discovered in its outputs.
func WorkflowFinish(taskID string, run *models.WorkflowRun) *Response {
	outputs, _ := run.OutputsMap()

	return &Response{
		Event:         EventWorkflowFinished,
		TaskID:        taskID,
		WorkflowRunID: run.ID,
		Data: &WorkflowFinishData{
			ID:             run.ID,
			WorkflowID:     run.WorkflowID,
			SequenceNumber: run.SequenceNumber,
			Status:         string(run.Status),
			Outputs:        outputs,
			Error:          run.Error,
			ElapsedTime:    run.ElapsedTime,
			TotalTokens:    run.TotalTokens,
			TotalSteps:     run.TotalSteps,
			CreatedAt:      run.CreatedAt.Unix(),
			FinishedAt:     unixOrZero(run.FinishedAt),
			Files:          variables.FilesFromOutputs(run.Outputs),
		},
	}
}

// NodeStart projects a freshly created node execution into its start message.
func NodeStart(taskID string, execution *models.WorkflowNodeExecution) *Response {
	inputs, _ := execution.InputsMap()

	return &Response{
		Event:         EventNodeStarted,
		TaskID:        taskID,
		WorkflowRunID: execution.WorkflowRunID,
		Data: &NodeStartData{
			ID:                execution.ID,
			NodeID:            execution.NodeID,
			NodeType:          string(execution.NodeType),
			Index:             execution.Index,
			PredecessorNodeID: execution.PredecessorNodeID,
			Inputs:            inputs,
			CreatedAt:         execution.CreatedAt.Unix(),
		},
	}
}

// NodeFinish projects a terminal node execution into its finish message,
// including any file references discovered in its outputs.
func NodeFinish(taskID string, execution *models.WorkflowNodeExecution) *Response {
	inputs, _ := execution.InputsMap()
	processData, _ := execution.ProcessDataMap()
	outputs, _ := execution.OutputsMap()
	metadata, _ := execution.ExecutionMetadataMap()

	return &Response{
		Event:         EventNodeFinished,
		TaskID:        taskID,
		WorkflowRunID: execution.WorkflowRunID,
		Data: &NodeFinishData{
			ID:                execution.ID,
			NodeID:            execution.NodeID,
			NodeType:          string(execution.NodeType),
			Index:             execution.Index,
			PredecessorNodeID: execution.PredecessorNodeID,
			Inputs:            inputs,
			ProcessData:       processData,
			Outputs:           outputs,
			Status:            string(execution.Status),
			Error:             execution.Error,
			ElapsedTime:       execution.ElapsedTime,
			ExecutionMetadata: metadata,
			CreatedAt:         execution.CreatedAt.Unix(),
			FinishedAt:        unixOrZero(execution.FinishedAt),
			Files:             variables.FilesFromOutputs(execution.Outputs),
		},
	}
}

func unixOrZero(t *time.Time) int64 {
	if t == nil {
		return 0
	}

	return t.Unix()
}
