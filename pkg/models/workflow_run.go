package models

import (
	"encoding/json"
	"time"
)

// WorkflowRunStatus represents the lifecycle state of a workflow run.
type WorkflowRunStatus string

const (
	WorkflowRunStatusRunning   WorkflowRunStatus = "running"
	WorkflowRunStatusSucceeded WorkflowRunStatus = "succeeded"
	WorkflowRunStatusFailed    WorkflowRunStatus = "failed"
	WorkflowRunStatusStopped   WorkflowRunStatus = "stopped"
)

// IsTerminal reports whether no further status transition is allowed.
func (s WorkflowRunStatus) IsTerminal() bool {
	return s == WorkflowRunStatusSucceeded || s == WorkflowRunStatusFailed || s == WorkflowRunStatusStopped
}

// WorkflowRunTriggeredFrom records the channel that started a run.
type WorkflowRunTriggeredFrom string

const (
	WorkflowRunTriggeredFromDebugging WorkflowRunTriggeredFrom = "debugging"
	WorkflowRunTriggeredFromAppRun    WorkflowRunTriggeredFrom = "app-run"
)

// WorkflowRun is one end-to-end execution of a workflow graph.
// SequenceNumber is unique and strictly increasing within a (tenant, app)
// pair; FinishedAt is set exactly when Status becomes terminal.
type WorkflowRun struct {
	ID             string                   `json:"id"              validate:"required"`
	TenantID       string                   `json:"tenant_id"       validate:"required"`
	AppID          string                   `json:"app_id"          validate:"required"`
	SequenceNumber int                      `json:"sequence_number" validate:"min=1"`
	WorkflowID     string                   `json:"workflow_id"     validate:"required"`
	Type           WorkflowType             `json:"type"            validate:"required"`
	TriggeredFrom  WorkflowRunTriggeredFrom `json:"triggered_from"  validate:"required"`
	Version        string                   `json:"version"`
	Graph          json.RawMessage          `json:"graph,omitempty"`
	Inputs         json.RawMessage          `json:"inputs,omitempty"`
	Status         WorkflowRunStatus        `json:"status"          validate:"required"`
	Outputs        json.RawMessage          `json:"outputs,omitempty"`
	Error          string                   `json:"error,omitempty"`
	ElapsedTime    float64                  `json:"elapsed_time"`
	TotalTokens    int                      `json:"total_tokens"`
	TotalSteps     int                      `json:"total_steps"`
	CreatedBy      string                   `json:"created_by"`
	CreatedByRole  CreatedByRole            `json:"created_by_role"`
	CreatedAt      time.Time                `json:"created_at"`
	FinishedAt     *time.Time               `json:"finished_at,omitempty"`
}

// InputsMap deserializes the stored inputs blob. A nil blob yields a nil map.
func (r *WorkflowRun) InputsMap() (map[string]any, error) {
	return decodeMap(r.Inputs)
}

// OutputsMap deserializes the stored outputs blob. A nil blob yields a nil map.
func (r *WorkflowRun) OutputsMap() (map[string]any, error) {
	return decodeMap(r.Outputs)
}

func decodeMap(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var out map[string]any

	err := json.Unmarshal(raw, &out)
	if err != nil {
		return nil, err
	}

	return out, nil
}
