// Package eventbus carries flow change notifications between components.
package eventbus

import (
	"context"

	"github.com/dukex/chatflow/pkg/events"
)

// Event is a notification about one persisted flow.
type Event interface {
	GetType() events.EventType
	GetFlowKey() string
}

// EventPublisher announces flow changes. Events of one flow are partitioned
// together so consumers see them in order.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

type EventHandler func(ctx context.Context, event Event) error

type EventSubscriber interface {
	// Handle routes the listed types to handler. With no types it becomes the
	// handler for every type that has no handler of its own.
	Handle(handler EventHandler, eventTypes ...events.EventType) error
	Subscribe(ctx context.Context) error
}

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
}
