// Package eventbus carries execution events from the engine to the tracker
// and stream responses from the tracker to the transport layer.
package eventbus

import (
	"context"

	"github.com/runtrace/runtrace/pkg/events"
	"github.com/runtrace/runtrace/pkg/streaming"
)

// EventHandler processes one decoded execution event.
type EventHandler func(ctx context.Context, event events.Event) error

type EventBus interface {
	GenerateID() string
	Publish(ctx context.Context, key string, event events.Event) error
	PublishResponse(ctx context.Context, key string, response *streaming.Response) error
	Subscribe(ctx context.Context) error
	Handle(eventType events.EventType, handler EventHandler) error
	Close() error
}
