// Package eventbus provides event-driven communication infrastructure for execution orchestration.
package eventbus

import (
	"context"

	"github.com/flowlinehq/flowline/pkg/events"
)

type Event interface {
	GetType() events.EventType
}

// EventPublisher publishes an event fire-and-forget onto the bus, keyed so
// that all events of one execution share a partition.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

type EventHandler func(ctx context.Context, event interface{}) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}
