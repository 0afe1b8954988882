package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/flowlinehq/flowline/pkg/eventbus"
	"github.com/flowlinehq/flowline/pkg/events"
)

var ErrSubscriptionClosed = errors.New("subscription closed")

// Transport delivers events to an attached real-time channel (websocket hub,
// SSE fan-out, test recorder). Broadcast must not block; slow consumers are
// the transport's problem.
type Transport interface {
	Broadcast(executionID string, event eventbus.Event) error
}

// Subscription is a live observer of one execution's events. The channel
// first yields the buffered history present at subscribe time, then live
// events, in publish order.
type Subscription struct {
	ID          string
	ExecutionID string

	events chan eventbus.Event
	once   sync.Once
}

// Events is the subscription's delivery channel. It is closed on unsubscribe.
func (s *Subscription) Events() <-chan eventbus.Event {
	return s.events
}

func (s *Subscription) close() {
	s.once.Do(func() {
		close(s.events)
	})
}

// Bridge drains the event bus and fans execution events out to per-execution
// subscriptions and attached transports, backed by the replay buffer.
type Bridge struct {
	logger *slog.Logger
	buffer *Buffer

	mu            sync.Mutex
	subscriptions map[string]map[string]*Subscription
	transports    []Transport
}

func NewBridge(buffer *Buffer, logger *slog.Logger) *Bridge {
	return &Bridge{
		logger:        logger.With("module", "event_bridge"),
		buffer:        buffer,
		subscriptions: make(map[string]map[string]*Subscription),
	}
}

// AttachTransport adds a transport that receives every bridged event.
func (b *Bridge) AttachTransport(transport Transport) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.transports = append(b.transports, transport)
}

// RegisterHandlers hooks the bridge into the bus for every execution
// lifecycle event type. The caller still owns the subscriber's Subscribe loop.
func (b *Bridge) RegisterHandlers(subscriber eventbus.EventSubscriber) error {
	eventTypes := []events.EventType{
		events.NodeStartedEvent,
		events.NodeCompletedEvent,
		events.NodeFailedEvent,
		events.ExecutionProgressEvent,
		events.ExecutionCompletedEvent,
		events.ExecutionFailedEvent,
		events.ExecutionCancelledEvent,
		events.ExecutionPausedEvent,
		events.ExecutionResumedEvent,
		events.ExecutionTimeoutWarningEvent,
	}

	for _, eventType := range eventTypes {
		err := subscriber.Handle(eventType, b.HandleEvent)
		if err != nil {
			return fmt.Errorf("failed to register bridge handler for %s: %w", eventType, err)
		}
	}

	return nil
}

// HandleEvent is the bus-facing entry point: buffer first, then fan out, so a
// subscriber racing this call never misses the event entirely.
func (b *Bridge) HandleEvent(ctx context.Context, event any) error {
	typed, ok := event.(eventbus.Event)
	if !ok {
		return fmt.Errorf("bridge received non-event payload %T", event)
	}

	carrier, ok := event.(ExecutionEvent)
	if !ok || carrier.GetExecutionID() == "" {
		return nil
	}

	executionID := carrier.GetExecutionID()

	// Append and observer snapshot are atomic with respect to Subscribe, so
	// each event reaches an observer exactly once: via replay or live, never
	// both.
	b.mu.Lock()
	b.buffer.Append(carrier)

	observers := make([]*Subscription, 0, len(b.subscriptions[executionID]))
	for _, sub := range b.subscriptions[executionID] {
		observers = append(observers, sub)
	}

	transports := make([]Transport, len(b.transports))
	copy(transports, b.transports)
	b.mu.Unlock()

	for _, sub := range observers {
		b.deliver(sub, typed)
	}

	for _, transport := range transports {
		err := transport.Broadcast(executionID, typed)
		if err != nil {
			b.logger.ErrorContext(ctx, "Transport broadcast failed",
				"execution_id", executionID, "error", err)
		}
	}

	return nil
}

// Subscribe attaches an observer to an execution. The returned subscription's
// channel replays the buffered history before any later live event; the
// subscription value itself is the caller's acknowledgment.
func (b *Bridge) Subscribe(executionID string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	// The replay snapshot, channel fill and registration all happen under the
	// lock: an event handled by HandleEvent is either already in the snapshot
	// or delivered live after registration, never lost between the two.
	replay := b.buffer.Replay(executionID)

	capacity := b.buffer.config.MaxEventsPerExecution * 2
	if capacity < len(replay)+1 {
		capacity = len(replay) + 1
	}

	sub := &Subscription{
		ID:          uuid.New().String(),
		ExecutionID: executionID,
		events:      make(chan eventbus.Event, capacity),
	}

	for _, event := range replay {
		if typed, ok := event.(eventbus.Event); ok {
			sub.events <- typed
		}
	}

	if b.subscriptions[executionID] == nil {
		b.subscriptions[executionID] = make(map[string]*Subscription)
	}

	b.subscriptions[executionID][sub.ID] = sub

	return sub
}

// Unsubscribe detaches an observer and closes its channel.
func (b *Bridge) Unsubscribe(sub *Subscription) {
	b.mu.Lock()

	observers := b.subscriptions[sub.ExecutionID]
	if observers != nil {
		delete(observers, sub.ID)

		if len(observers) == 0 {
			delete(b.subscriptions, sub.ExecutionID)
		}
	}

	b.mu.Unlock()

	sub.close()
}

// deliver pushes an event without blocking; a full observer channel drops the
// event for that observer only.
func (b *Bridge) deliver(sub *Subscription, event eventbus.Event) {
	select {
	case sub.events <- event:
	default:
		b.logger.Warn("Dropping event for slow observer",
			"execution_id", sub.ExecutionID, "subscription_id", sub.ID, "event_type", event.GetType())
	}
}
