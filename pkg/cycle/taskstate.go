package cycle

import (
	"time"

	"github.com/runtrace/runtrace/pkg/models"
)

// NodeExecutionInfo is the per-node bookkeeping kept between a node's
// start and finish events: the persisted record to close, its type, and
// the monotonic start time used for elapsed-time measurement.
type NodeExecutionInfo struct {
	NodeExecutionID string
	NodeType        models.NodeType
	StartAt         time.Time
}

// TaskState is the process-local aggregate for one workflow invocation.
// It is owned by a single Manager and is not safe for concurrent use;
// callers must deliver events for one invocation from one goroutine.
//
// RanNodeExecutions maps node id to the bookkeeping of that node's most
// recent activation. Repeated activations of the same node id overwrite
// the entry, so a finish event always resolves to the latest activation.
// TotalSteps still counts every activation.
type TaskState struct {
	TaskID              string
	StartAt             time.Time
	WorkflowRunID       string
	TotalTokens         int
	TotalSteps          int
	RanNodeExecutions   map[string]*NodeExecutionInfo
	LatestNodeExecution *NodeExecutionInfo
	Metadata            map[string]any
}

// NewTaskState creates an empty task state for one invocation.
func NewTaskState(taskID string) *TaskState {
	return &TaskState{
		TaskID:            taskID,
		RanNodeExecutions: make(map[string]*NodeExecutionInfo),
		Metadata:          make(map[string]any),
	}
}
