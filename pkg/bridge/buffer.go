// Package bridge adapts execution lifecycle events from the message bus to
// attached real-time transports, keeping a short replay window so observers
// that subscribe slightly late still see the recent history.
package bridge

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	DefaultMaxExecutions         = 1000
	DefaultMaxEventsPerExecution = 256
	DefaultRetention             = 60 * time.Second
	DefaultEvictionInterval      = 10 * time.Second
)

// ExecutionEvent is the slice of the event contract the bridge needs: every
// buffered event belongs to exactly one execution.
type ExecutionEvent interface {
	GetExecutionID() string
}

// BufferConfig bounds the replay buffer. Zero values fall back to defaults.
type BufferConfig struct {
	MaxExecutions         int
	MaxEventsPerExecution int
	Retention             time.Duration
	EvictionInterval      time.Duration
}

func (c BufferConfig) normalized() BufferConfig {
	if c.MaxExecutions <= 0 {
		c.MaxExecutions = DefaultMaxExecutions
	}

	if c.MaxEventsPerExecution <= 0 {
		c.MaxEventsPerExecution = DefaultMaxEventsPerExecution
	}

	if c.Retention <= 0 {
		c.Retention = DefaultRetention
	}

	if c.EvictionInterval <= 0 {
		c.EvictionInterval = DefaultEvictionInterval
	}

	return c
}

type executionBuffer struct {
	events   []ExecutionEvent
	lastSeen time.Time
}

// Buffer holds the recent events of in-flight executions, bounded by max
// tracked executions and max events per execution. Eviction runs periodically
// and removes executions whose last event is older than the retention window.
type Buffer struct {
	config BufferConfig
	logger *slog.Logger

	mu         sync.Mutex
	executions map[string]*executionBuffer
}

func NewBuffer(config BufferConfig, logger *slog.Logger) *Buffer {
	return &Buffer{
		config:     config.normalized(),
		logger:     logger.With("module", "event_buffer"),
		executions: make(map[string]*executionBuffer),
	}
}

// Append records an event for later replay. When a new execution would exceed
// the buffer's capacity, the least recently active execution is dropped first.
func (b *Buffer) Append(event ExecutionEvent) {
	executionID := event.GetExecutionID()
	if executionID == "" {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	buffer, ok := b.executions[executionID]
	if !ok {
		if len(b.executions) >= b.config.MaxExecutions {
			b.dropOldestLocked()
		}

		buffer = &executionBuffer{}
		b.executions[executionID] = buffer
	}

	buffer.events = append(buffer.events, event)
	if len(buffer.events) > b.config.MaxEventsPerExecution {
		buffer.events = buffer.events[len(buffer.events)-b.config.MaxEventsPerExecution:]
	}

	buffer.lastSeen = time.Now().UTC()
}

// Replay returns the buffered events of an execution in publish order.
func (b *Buffer) Replay(executionID string) []ExecutionEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	buffer, ok := b.executions[executionID]
	if !ok {
		return nil
	}

	replay := make([]ExecutionEvent, len(buffer.events))
	copy(replay, buffer.events)

	return replay
}

// Drop removes an execution's history immediately, typically once it is
// terminal and all observers have been served.
func (b *Buffer) Drop(executionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.executions, executionID)
}

// TrackedExecutions reports how many executions currently have buffered events.
func (b *Buffer) TrackedExecutions() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.executions)
}

// Start runs the eviction loop until the context is cancelled.
func (b *Buffer) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(b.config.EvictionInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				b.evict(now.UTC())
			}
		}
	}()
}

func (b *Buffer) evict(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for executionID, buffer := range b.executions {
		if now.Sub(buffer.lastSeen) > b.config.Retention {
			delete(b.executions, executionID)
			b.logger.Debug("Evicted stale execution from replay buffer", "execution_id", executionID)
		}
	}
}

// dropOldestLocked removes the execution with the oldest last activity.
// Caller holds the mutex.
func (b *Buffer) dropOldestLocked() {
	oldestID := ""

	var oldestSeen time.Time

	for executionID, buffer := range b.executions {
		if oldestID == "" || buffer.lastSeen.Before(oldestSeen) {
			oldestID = executionID
			oldestSeen = buffer.lastSeen
		}
	}

	if oldestID != "" {
		delete(b.executions, oldestID)
	}
}
