package tracker

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/runtrace/runtrace/pkg/channels/gochannel"
	"github.com/runtrace/runtrace/pkg/eventbus"
	"github.com/runtrace/runtrace/pkg/events"
	"github.com/runtrace/runtrace/pkg/models"
	"github.com/runtrace/runtrace/pkg/persistence/memory"
	"github.com/runtrace/runtrace/pkg/streaming"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

const testGraph = `{"nodes": [{"id": "start", "data": {"type": "start"}}]}`

func newTestTracker(t *testing.T) (*Tracker, *memory.Persistence, eventbus.EventBus) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	pub, sub, err := gochannel.CreateTestChannel(watermill.NewSlogLogger(logger))
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)
	store := memory.NewPersistence()
	tracer := noop.NewTracerProvider().Tracer("test")

	return NewTracker(logger, store, nil, bus, tracer), store, bus
}

func testInvocation(taskID string) Invocation {
	return Invocation{
		TaskID: taskID,
		Workflow: &models.Workflow{
			ID:       "wf-1",
			TenantID: "tenant-1",
			AppID:    "app-1",
			Type:     models.WorkflowTypeWorkflow,
			Version:  "2024-01-01",
			Graph:    json.RawMessage(testGraph),
		},
		Operator: models.Operator{
			ID:   "account-1",
			Role: models.CreatedByRoleAccount,
		},
		TriggeredFrom: models.WorkflowRunTriggeredFromDebugging,
		UserInputs:    map[string]any{"query": "hello"},
		SystemInputs:  map[string]any{"user_id": "user-1"},
	}
}

func collectResponses(ctx context.Context, t *testing.T, bus eventbus.EventBus) <-chan *streaming.Response {
	t.Helper()

	wm, ok := bus.(*eventbus.WatermillEventBus)
	require.True(t, ok)

	responses := make(chan *streaming.Response, 32)

	messages, err := wm.SubscribeResponses(ctx)
	require.NoError(t, err)

	go func() {
		for msg := range messages {
			var response streaming.Response

			if err := json.Unmarshal(msg.Payload, &response); err == nil {
				responses <- &response
			}

			msg.Ack()
		}
	}()

	return responses
}

func waitForRunStatus(t *testing.T, store *memory.Persistence, runID string, status models.WorkflowRunStatus) *models.WorkflowRun {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)

	for time.Now().Before(deadline) {
		run, err := store.WorkflowRunRepository().GetByID(context.Background(), runID)
		require.NoError(t, err)

		if run.Status == status {
			return run
		}

		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("run %s never reached status %s", runID, status)

	return nil
}

func TestTracker_FullInvocation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tracker, store, bus := newTestTracker(t)
	responses := collectResponses(ctx, t, bus)

	require.NoError(t, tracker.Start(ctx))

	run, err := tracker.StartInvocation(ctx, testInvocation("task-1"))
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowRunStatusRunning, run.Status)

	started := &events.NodeStarted{
		BaseEvent: events.NewBaseEvent(events.NodeStartedEvent, "task-1", "wf-1"),
		NodeID:    "start",
		NodeType:  models.NodeTypeStart,
		RunIndex:  1,
	}
	require.NoError(t, bus.Publish(ctx, "task-1", started))

	succeeded := &events.NodeSucceeded{
		BaseEvent:         events.NewBaseEvent(events.NodeSucceededEvent, "task-1", "wf-1"),
		NodeID:            "start",
		Outputs:           map[string]any{"answer": "42"},
		ExecutionMetadata: map[string]any{models.MetadataKeyTotalTokens: float64(3)},
	}
	require.NoError(t, bus.Publish(ctx, "task-1", succeeded))

	finished := &events.WorkflowSucceeded{
		BaseEvent: events.NewBaseEvent(events.WorkflowSucceededEvent, "task-1", "wf-1"),
	}
	require.NoError(t, bus.Publish(ctx, "task-1", finished))

	final := waitForRunStatus(t, store, run.ID, models.WorkflowRunStatusSucceeded)
	assert.Equal(t, 1, final.TotalSteps)
	assert.Equal(t, 3, final.TotalTokens)

	outputs, err := final.OutputsMap()
	require.NoError(t, err)
	assert.Equal(t, "42", outputs["answer"])

	executions, err := store.NodeExecutionRepository().ListByRun(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, executions, 1)
	assert.Equal(t, models.NodeExecutionStatusSucceeded, executions[0].Status)

	var seen []streaming.Event

	timeout := time.After(5 * time.Second)
	for len(seen) < 4 {
		select {
		case response := <-responses:
			seen = append(seen, response.Event)
		case <-timeout:
			t.Fatalf("timed out waiting for stream responses, saw %v", seen)
		}
	}

	assert.Equal(t, []streaming.Event{
		streaming.EventWorkflowStarted,
		streaming.EventNodeStarted,
		streaming.EventNodeFinished,
		streaming.EventWorkflowFinished,
	}, seen)
}

func TestTracker_StopReconcilesRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tracker, store, bus := newTestTracker(t)

	require.NoError(t, tracker.Start(ctx))

	run, err := tracker.StartInvocation(ctx, testInvocation("task-2"))
	require.NoError(t, err)

	stop := &events.Stop{
		BaseEvent: events.NewBaseEvent(events.StopEvent, "task-2", "wf-1"),
	}
	require.NoError(t, bus.Publish(ctx, "task-2", stop))

	final := waitForRunStatus(t, store, run.ID, models.WorkflowRunStatusStopped)
	assert.Equal(t, "Workflow stopped.", final.Error)
	assert.NotNil(t, final.FinishedAt)
}

func TestTracker_UnknownTaskEventIsDropped(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tracker, store, bus := newTestTracker(t)

	require.NoError(t, tracker.Start(ctx))

	// No invocation was registered for this task id.
	orphan := &events.NodeStarted{
		BaseEvent: events.NewBaseEvent(events.NodeStartedEvent, "ghost-task", "wf-1"),
		NodeID:    "start",
		NodeType:  models.NodeTypeStart,
		RunIndex:  1,
	}
	require.NoError(t, bus.Publish(ctx, "ghost-task", orphan))

	time.Sleep(100 * time.Millisecond)

	runs, err := store.WorkflowRunRepository().ListByApp(ctx, "tenant-1", "app-1", 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}
