// Package tracker runs the event-consuming service around the cycle
// manager: it owns one manager per workflow invocation, feeds it the
// engine's event stream, and publishes stream responses.
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/runtrace/runtrace/pkg/cycle"
	"github.com/runtrace/runtrace/pkg/eventbus"
	"github.com/runtrace/runtrace/pkg/events"
	"github.com/runtrace/runtrace/pkg/models"
	"github.com/runtrace/runtrace/pkg/otelhelper"
	"github.com/runtrace/runtrace/pkg/persistence"
	"github.com/runtrace/runtrace/pkg/streaming"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Invocation describes one workflow execution to track.
type Invocation struct {
	TaskID        string
	Workflow      *models.Workflow
	Operator      models.Operator
	TriggeredFrom models.WorkflowRunTriggeredFrom
	UserInputs    map[string]any
	SystemInputs  map[string]any
}

// Tracker routes execution events to per-invocation cycle managers.
// Events for one invocation must arrive in order on one stream (the bus
// keys messages by task id); the tracker adds no ordering of its own.
type Tracker struct {
	logger    *slog.Logger
	store     persistence.Persistence
	sequences persistence.SequenceAllocator
	bus       eventbus.EventBus
	tracer    trace.Tracer

	mu       sync.Mutex
	managers map[string]*cycle.Manager
}

// NewTracker creates a tracker. The sequence allocator may be nil, in
// which case managers fall back to max-plus-one allocation.
func NewTracker(
	logger *slog.Logger,
	store persistence.Persistence,
	sequences persistence.SequenceAllocator,
	bus eventbus.EventBus,
	tracer trace.Tracer,
) *Tracker {
	return &Tracker{
		logger:    logger,
		store:     store,
		sequences: sequences,
		bus:       bus,
		tracer:    tracer,
		managers:  make(map[string]*cycle.Manager),
	}
}

// Start registers handlers for the closed event set and begins consuming.
func (t *Tracker) Start(ctx context.Context) error {
	for _, eventType := range []events.EventType{
		events.NodeStartedEvent,
		events.NodeSucceededEvent,
		events.NodeFailedEvent,
		events.StopEvent,
		events.WorkflowSucceededEvent,
		events.WorkflowFailedEvent,
	} {
		err := t.bus.Handle(eventType, t.handleEvent)
		if err != nil {
			return fmt.Errorf("failed to register handler for %s: %w", eventType, err)
		}
	}

	err := t.bus.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to execution events: %w", err)
	}

	t.logger.InfoContext(ctx, "Tracker started")

	return nil
}

// StartInvocation creates the run record for a new invocation, registers
// its cycle manager, and publishes the run-start stream response.
func (t *Tracker) StartInvocation(ctx context.Context, invocation Invocation) (*models.WorkflowRun, error) {
	manager := cycle.NewManager(cycle.Config{
		Logger:        t.logger,
		Persistence:   t.store,
		Sequences:     t.sequences,
		Workflow:      invocation.Workflow,
		Operator:      invocation.Operator,
		TriggeredFrom: invocation.TriggeredFrom,
		SystemInputs:  invocation.SystemInputs,
		TaskID:        invocation.TaskID,
	})

	run, err := manager.HandleWorkflowStart(ctx, invocation.UserInputs)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	t.managers[invocation.TaskID] = manager
	t.mu.Unlock()

	err = t.bus.PublishResponse(ctx, invocation.TaskID, streaming.WorkflowStart(invocation.TaskID, run))
	if err != nil {
		return nil, fmt.Errorf("failed to publish workflow start response: %w", err)
	}

	return run, nil
}

// handleEvent dispatches one decoded event to its invocation's manager.
// The event set is closed; every kind is matched here.
func (t *Tracker) handleEvent(ctx context.Context, event events.Event) error {
	taskID := taskIDOf(event)

	ctx, span := otelhelper.StartSpan(ctx, t.tracer, "tracker.handleEvent",
		attribute.String(otelhelper.TaskIDKey, taskID),
		attribute.String(otelhelper.EventTypeKey, string(event.GetType())),
	)
	defer span.End()

	manager := t.manager(taskID)
	if manager == nil {
		// Tracker restart or late event after reconciliation. Nothing to
		// resolve against; drop rather than poison the stream.
		t.logger.WarnContext(ctx, "No manager for task, dropping event",
			"task_id", taskID, "event_type", event.GetType())

		return nil
	}

	var err error

	switch typed := event.(type) {
	case *events.NodeStarted:
		err = t.handleNodeStarted(ctx, manager, typed)
	case *events.NodeSucceeded, *events.NodeFailed:
		err = t.handleNodeFinished(ctx, manager, event, taskID)
	case *events.Stop, *events.WorkflowSucceeded, *events.WorkflowFailed:
		err = t.handleWorkflowFinished(ctx, manager, event, taskID)
	default:
		err = fmt.Errorf("unhandled event type: %s", event.GetType())
	}

	if err != nil {
		otelhelper.SetError(span, err)
	}

	return err
}

func (t *Tracker) handleNodeStarted(ctx context.Context, manager *cycle.Manager, event *events.NodeStarted) error {
	execution, err := manager.HandleNodeStart(ctx, event)
	if err != nil {
		return err
	}

	return t.bus.PublishResponse(ctx, event.TaskID, streaming.NodeStart(event.TaskID, execution))
}

func (t *Tracker) handleNodeFinished(ctx context.Context, manager *cycle.Manager, event events.Event, taskID string) error {
	execution, err := manager.HandleNodeFinished(ctx, event)
	if err != nil {
		return err
	}

	return t.bus.PublishResponse(ctx, taskID, streaming.NodeFinish(taskID, execution))
}

func (t *Tracker) handleWorkflowFinished(ctx context.Context, manager *cycle.Manager, event events.Event, taskID string) error {
	run, err := manager.HandleWorkflowFinished(ctx, event)
	if err != nil {
		return err
	}

	t.mu.Lock()
	delete(t.managers, taskID)
	t.mu.Unlock()

	if run == nil {
		return nil
	}

	return t.bus.PublishResponse(ctx, taskID, streaming.WorkflowFinish(taskID, run))
}

func (t *Tracker) manager(taskID string) *cycle.Manager {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.managers[taskID]
}

func taskIDOf(event events.Event) string {
	switch typed := event.(type) {
	case *events.NodeStarted:
		return typed.TaskID
	case *events.NodeSucceeded:
		return typed.TaskID
	case *events.NodeFailed:
		return typed.TaskID
	case *events.Stop:
		return typed.TaskID
	case *events.WorkflowSucceeded:
		return typed.TaskID
	case *events.WorkflowFailed:
		return typed.TaskID
	default:
		return ""
	}
}
