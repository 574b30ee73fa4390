// Package models defines the core domain models for workflow run lifecycle tracking.
package models

import (
	"encoding/json"
	"time"
)

// WorkflowType distinguishes plain workflows from conversational ones.
type WorkflowType string

const (
	WorkflowTypeWorkflow WorkflowType = "workflow"
	WorkflowTypeChat     WorkflowType = "chat"
)

// Workflow is the published graph snapshot a run executes against.
// The tracker never interprets the graph; it carries it into run records
// so a run is replayable against the exact version that produced it.
type Workflow struct {
	ID        string          `json:"id"         validate:"required"`
	TenantID  string          `json:"tenant_id"  validate:"required"`
	AppID     string          `json:"app_id"     validate:"required"`
	Type      WorkflowType    `json:"type"       validate:"required"`
	Version   string          `json:"version"    validate:"required"`
	Graph     json.RawMessage `json:"graph"`
	CreatedBy string          `json:"created_by"`
	CreatedAt time.Time       `json:"created_at"`
}

// CreatedByRole records whether a platform account or an end user initiated a run.
type CreatedByRole string

const (
	CreatedByRoleAccount CreatedByRole = "account"
	CreatedByRoleEndUser CreatedByRole = "end_user"
)

// Operator identifies who triggered a workflow invocation.
type Operator struct {
	ID   string        `json:"id"   validate:"required"`
	Role CreatedByRole `json:"role" validate:"required,oneof=account end_user"`
}
