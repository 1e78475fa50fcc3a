package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/chatflow/pkg/events"
)

type WatermillEventBus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	logger     *slog.Logger

	mu       sync.RWMutex
	handlers map[events.EventType]EventHandler
	fallback EventHandler
}

type Option func(*WatermillEventBus)

func WithLogger(logger *slog.Logger) Option {
	return func(eb *WatermillEventBus) {
		eb.logger = logger
	}
}

func NewWatermillEventBus(pub message.Publisher, sub message.Subscriber, opts ...Option) EventBus {
	eb := &WatermillEventBus{
		publisher:  pub,
		subscriber: sub,
		logger:     slog.Default(),
		handlers:   make(map[events.EventType]EventHandler),
	}

	for _, opt := range opts {
		opt(eb)
	}

	return eb
}

func (eb *WatermillEventBus) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", event.GetType(), err)
	}

	msg := message.NewMessage(watermill.NewULID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set(events.EventMetadataKey, event.GetFlowKey())
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))

	return eb.publisher.Publish(events.Topic, msg)
}

func (eb *WatermillEventBus) Handle(handler EventHandler, eventTypes ...events.EventType) error {
	if handler == nil {
		return fmt.Errorf("nil handler for %v", eventTypes)
	}

	eb.mu.Lock()
	defer eb.mu.Unlock()

	if len(eventTypes) == 0 {
		eb.fallback = handler

		return nil
	}

	for _, eventType := range eventTypes {
		eb.handlers[eventType] = handler
	}

	return nil
}

func (eb *WatermillEventBus) Subscribe(ctx context.Context) error {
	messages, err := eb.subscriber.Subscribe(ctx, events.Topic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			if eb.dispatch(ctx, msg) {
				msg.Ack()
			} else {
				msg.Nack()
			}
		}
	}()

	return nil
}

// dispatch reports whether msg is done with. Messages nobody handles are
// done, and so are messages that can never be decoded. Only a handler error
// asks for redelivery.
func (eb *WatermillEventBus) dispatch(ctx context.Context, msg *message.Message) bool {
	eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))

	eb.mu.RLock()
	handler, ok := eb.handlers[eventType]
	if !ok {
		handler = eb.fallback
	}
	eb.mu.RUnlock()

	if handler == nil {
		return true
	}

	event := newEvent(eventType)
	if event == nil {
		eb.logger.WarnContext(ctx, "Dropping message with unknown event type",
			"message_id", msg.UUID, "event_type", eventType)

		return true
	}

	if err := json.Unmarshal(msg.Payload, event); err != nil {
		eb.logger.WarnContext(ctx, "Dropping undecodable event",
			"message_id", msg.UUID, "event_type", eventType, "error", err)

		return true
	}

	if err := handler(ctx, event); err != nil {
		eb.logger.ErrorContext(ctx, "Event handler failed",
			"message_id", msg.UUID, "event_type", eventType, "error", err)

		return false
	}

	return true
}

func (eb *WatermillEventBus) Close() error {
	err := eb.publisher.Close()
	if err != nil {
		return err
	}

	return eb.subscriber.Close()
}

func newEvent(eventType events.EventType) Event {
	switch eventType {
	case events.NodeAddedEvent:
		return &events.NodeAdded{}
	case events.NodesChangedEvent:
		return &events.NodesChanged{}
	case events.EdgeAddedEvent:
		return &events.EdgeAdded{}
	case events.EdgesChangedEvent:
		return &events.EdgesChanged{}
	case events.CardUpdatedEvent:
		return &events.CardUpdated{}
	case events.FlowResetEvent:
		return &events.FlowReset{}
	case events.FlowImportedEvent:
		return &events.FlowImported{}
	case events.FlowSavedEvent:
		return &events.FlowSaved{}
	case events.ModeChangedEvent:
		return &events.ModeChanged{}
	default:
		return nil
	}
}
