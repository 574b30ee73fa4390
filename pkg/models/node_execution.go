package models

import (
	"encoding/json"
	"time"
)

// NodeExecutionStatus represents the lifecycle state of a single node activation.
type NodeExecutionStatus string

const (
	NodeExecutionStatusRunning   NodeExecutionStatus = "running"
	NodeExecutionStatusSucceeded NodeExecutionStatus = "succeeded"
	NodeExecutionStatusFailed    NodeExecutionStatus = "failed"
)

// IsTerminal reports whether no further status transition is allowed.
func (s NodeExecutionStatus) IsTerminal() bool {
	return s == NodeExecutionStatusSucceeded || s == NodeExecutionStatusFailed
}

// NodeType identifies the kind of graph node an execution belongs to.
// The tracker treats all node types uniformly except NodeTypeLLM, whose
// usage metadata is surfaced on the owning run.
type NodeType string

const (
	NodeTypeStart              NodeType = "start"
	NodeTypeEnd                NodeType = "end"
	NodeTypeAnswer             NodeType = "answer"
	NodeTypeLLM                NodeType = "llm"
	NodeTypeKnowledgeRetrieval NodeType = "knowledge-retrieval"
	NodeTypeQuestionClassifier NodeType = "question-classifier"
	NodeTypeIfElse             NodeType = "if-else"
	NodeTypeCode               NodeType = "code"
	NodeTypeTemplateTransform  NodeType = "template-transform"
	NodeTypeHTTPRequest        NodeType = "http-request"
	NodeTypeTool               NodeType = "tool"
	NodeTypeVariableAssigner   NodeType = "variable-assigner"
)

// Execution metadata keys reported by the execution engine.
const (
	MetadataKeyTotalTokens = "total_tokens"
	MetadataKeyTotalPrice  = "total_price"
	MetadataKeyCurrency    = "currency"
)

// WorkflowNodeExecution is one activation of a graph node within a run.
// A node may activate multiple times (loops, retries); each activation is
// a distinct record. PredecessorNodeID links activations into a forest
// within the owning run.
type WorkflowNodeExecution struct {
	ID                string              `json:"id"          validate:"required"`
	TenantID          string              `json:"tenant_id"   validate:"required"`
	AppID             string              `json:"app_id"      validate:"required"`
	WorkflowID        string              `json:"workflow_id" validate:"required"`
	WorkflowRunID     string              `json:"workflow_run_id" validate:"required"`
	PredecessorNodeID string              `json:"predecessor_node_id,omitempty"`
	Index             int                 `json:"index"       validate:"min=1"`
	NodeID            string              `json:"node_id"     validate:"required"`
	NodeType          NodeType            `json:"node_type"   validate:"required"`
	Title             string              `json:"title"`
	Status            NodeExecutionStatus `json:"status"      validate:"required"`
	Inputs            json.RawMessage     `json:"inputs,omitempty"`
	ProcessData       json.RawMessage     `json:"process_data,omitempty"`
	Outputs           json.RawMessage     `json:"outputs,omitempty"`
	ExecutionMetadata json.RawMessage     `json:"execution_metadata,omitempty"`
	Error             string              `json:"error,omitempty"`
	ElapsedTime       float64             `json:"elapsed_time"`
	CreatedBy         string              `json:"created_by"`
	CreatedByRole     CreatedByRole       `json:"created_by_role"`
	CreatedAt         time.Time           `json:"created_at"`
	FinishedAt        *time.Time          `json:"finished_at,omitempty"`
}

// InputsMap deserializes the stored inputs blob.
func (e *WorkflowNodeExecution) InputsMap() (map[string]any, error) {
	return decodeMap(e.Inputs)
}

// ProcessDataMap deserializes the stored process data blob.
func (e *WorkflowNodeExecution) ProcessDataMap() (map[string]any, error) {
	return decodeMap(e.ProcessData)
}

// OutputsMap deserializes the stored outputs blob.
func (e *WorkflowNodeExecution) OutputsMap() (map[string]any, error) {
	return decodeMap(e.Outputs)
}

// ExecutionMetadataMap deserializes the stored execution metadata blob.
func (e *WorkflowNodeExecution) ExecutionMetadataMap() (map[string]any, error) {
	return decodeMap(e.ExecutionMetadata)
}
