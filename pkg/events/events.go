// Package events defines the closed set of execution events consumed from
// the workflow execution engine.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/runtrace/runtrace/pkg/models"
)

type EventType string

// Kafka topics.
const ExecutionTopic = "runtrace.execution.events" // Events emitted by the execution engine
const ResponsesTopic = "runtrace.stream.responses" // Stream responses projected toward clients

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	NodeStartedEvent       EventType = "node.started"
	NodeSucceededEvent     EventType = "node.succeeded"
	NodeFailedEvent        EventType = "node.failed"
	StopEvent              EventType = "workflow.stop"
	WorkflowSucceededEvent EventType = "workflow.succeeded"
	WorkflowFailedEvent    EventType = "workflow.failed"
)

// Event is implemented by every execution event kind. The set is closed;
// consumers dispatch over it exhaustively.
type Event interface {
	GetType() EventType
}

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	TaskID     string         `json:"task_id"`
	WorkflowID string         `json:"workflow_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// NodeStarted announces a new activation of a graph node.
type NodeStarted struct {
	BaseEvent

	NodeID            string          `json:"node_id"`
	NodeType          models.NodeType `json:"node_type"`
	Title             string          `json:"title"`
	RunIndex          int             `json:"run_index"`
	PredecessorNodeID string          `json:"predecessor_node_id,omitempty"`
}

func (e NodeStarted) GetType() EventType {
	return NodeStartedEvent
}

// NodeSucceeded closes the most recently started activation of NodeID.
type NodeSucceeded struct {
	BaseEvent

	NodeID            string         `json:"node_id"`
	Inputs            map[string]any `json:"inputs,omitempty"`
	ProcessData       map[string]any `json:"process_data,omitempty"`
	Outputs           map[string]any `json:"outputs,omitempty"`
	ExecutionMetadata map[string]any `json:"execution_metadata,omitempty"`
}

func (e NodeSucceeded) GetType() EventType {
	return NodeSucceededEvent
}

// NodeFailed closes the most recently started activation of NodeID with an error.
type NodeFailed struct {
	BaseEvent

	NodeID      string         `json:"node_id"`
	Inputs      map[string]any `json:"inputs,omitempty"`
	ProcessData map[string]any `json:"process_data,omitempty"`
	Outputs     map[string]any `json:"outputs,omitempty"`
	Error       string         `json:"error"`
}

func (e NodeFailed) GetType() EventType {
	return NodeFailedEvent
}

// Stop requests the run be reconciled into the stopped terminal state.
type Stop struct {
	BaseEvent
}

func (e Stop) GetType() EventType {
	return StopEvent
}

// WorkflowSucceeded marks the run as succeeded; final outputs are taken
// from the most recently finished node execution.
type WorkflowSucceeded struct {
	BaseEvent
}

func (e WorkflowSucceeded) GetType() EventType {
	return WorkflowSucceededEvent
}

// WorkflowFailed marks the run as failed with the engine's error.
type WorkflowFailed struct {
	BaseEvent

	Error string `json:"error"`
}

func (e WorkflowFailed) GetType() EventType {
	return WorkflowFailedEvent
}

func NewBaseEvent(eventType EventType, taskID, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		TaskID:     taskID,
		WorkflowID: workflowID,
		Metadata:   make(map[string]any),
	}
}

// Decode deserializes an event payload of the given type. Unknown types
// are rejected so transport-level noise never reaches the state machine.
func Decode(eventType EventType, payload []byte) (Event, error) {
	var event Event

	switch eventType {
	case NodeStartedEvent:
		event = &NodeStarted{}
	case NodeSucceededEvent:
		event = &NodeSucceeded{}
	case NodeFailedEvent:
		event = &NodeFailed{}
	case StopEvent:
		event = &Stop{}
	case WorkflowSucceededEvent:
		event = &WorkflowSucceeded{}
	case WorkflowFailedEvent:
		event = &WorkflowFailed{}
	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}

	err := json.Unmarshal(payload, event)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s event: %w", eventType, err)
	}

	return event, nil
}
