package eventbus

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/runtrace/runtrace/pkg/events"
	"github.com/runtrace/runtrace/pkg/streaming"
)

// WatermillEventBus implements EventBus over any watermill publisher and
// subscriber pair (kafka in production, gochannel in tests).
type WatermillEventBus struct {
	publisher     message.Publisher
	subscriber    message.Subscriber
	subscriptions map[events.EventType]EventHandler
}

func NewWatermillEventBus(pub message.Publisher, sub message.Subscriber) EventBus {
	return &WatermillEventBus{
		publisher:     pub,
		subscriber:    sub,
		subscriptions: make(map[events.EventType]EventHandler),
	}
}

func (eb *WatermillEventBus) GenerateID() string {
	return watermill.NewULID()
}

// Publish emits an execution event on the execution topic, keyed so one
// invocation's events stay ordered within a partition.
func (eb *WatermillEventBus) Publish(ctx context.Context, key string, event events.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := message.NewMessage("msg-"+eb.GenerateID(), payload)
	msg.Metadata.Set(events.EventMetadataKey, key)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))

	return eb.publisher.Publish(events.ExecutionTopic, msg)
}

// PublishResponse emits a stream response on the responses topic, keyed so
// one run's messages stay ordered within a partition.
func (eb *WatermillEventBus) PublishResponse(ctx context.Context, key string, response *streaming.Response) error {
	payload, err := json.Marshal(response)
	if err != nil {
		return err
	}

	msg := message.NewMessage("msg-"+eb.GenerateID(), payload)
	msg.Metadata.Set(events.EventMetadataKey, key)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(response.Event))

	return eb.publisher.Publish(events.ResponsesTopic, msg)
}

// Subscribe consumes the execution events topic, decodes the closed event
// set, and dispatches to registered handlers. Messages of unknown type are
// nacked; messages with no handler are acked and dropped.
func (eb *WatermillEventBus) Subscribe(ctx context.Context) error {
	messages, err := eb.subscriber.Subscribe(ctx, events.ExecutionTopic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))

			handler, exists := eb.subscriptions[eventType]
			if !exists {
				msg.Ack()

				continue
			}

			event, err := events.Decode(eventType, msg.Payload)
			if err != nil {
				msg.Nack()

				continue
			}

			err = handler(ctx, event)
			if err != nil {
				msg.Nack()

				continue
			}

			msg.Ack()
		}
	}()

	return nil
}

// SubscribeResponses exposes the raw stream response feed. Transport
// adapters consume it to fan responses out to clients.
func (eb *WatermillEventBus) SubscribeResponses(ctx context.Context) (<-chan *message.Message, error) {
	return eb.subscriber.Subscribe(ctx, events.ResponsesTopic)
}

func (eb *WatermillEventBus) Handle(eventType events.EventType, handler EventHandler) error {
	eb.subscriptions[eventType] = handler

	return nil
}

func (eb *WatermillEventBus) Close() error {
	err := eb.publisher.Close()
	if err != nil {
		return err
	}

	return eb.subscriber.Close()
}
