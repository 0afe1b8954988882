// Package timeout owns the per-execution timeout and manual-intervention
// state machines. All timers live in concurrency-safe maps keyed by execution
// id and are cancelled on every terminal-state exit path.
package timeout

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/flowlinehq/flowline/pkg/eventbus"
	"github.com/flowlinehq/flowline/pkg/events"
	"github.com/flowlinehq/flowline/pkg/models"
)

var ErrTimeoutNotTracked = errors.New("execution is not tracked by the timeout manager")

// TimeoutHandler is invoked exactly once when an execution exceeds its
// budget. The registered handler finalizes the execution as failed, releases
// its locks and clears the record.
type TimeoutHandler func(executionID string)

type executionTimer struct {
	record    *models.TimeoutRecord
	warnTimer *time.Timer
	mainTimer *time.Timer
}

// Manager drives the active -> warning (80% of budget) -> timeout (100%)
// state machine for every in-flight execution.
type Manager struct {
	logger    *slog.Logger
	publisher eventbus.EventPublisher

	mu        sync.Mutex
	timers    map[string]*executionTimer
	onTimeout TimeoutHandler
}

func NewManager(publisher eventbus.EventPublisher, logger *slog.Logger) *Manager {
	return &Manager{
		logger:    logger.With("module", "timeout"),
		publisher: publisher,
		timers:    make(map[string]*executionTimer),
	}
}

// SetTimeoutHandler registers the escalation callback. Must be called before
// Track; typically wired by the dispatcher at startup.
func (m *Manager) SetTimeoutHandler(handler TimeoutHandler) {
	m.onTimeout = handler
}

// Track starts the warning and timeout timers for an execution.
func (m *Manager) Track(ctx context.Context, executionID, workflowID string, budgetMs int64) {
	now := time.Now().UTC()
	warningMs := int64(float64(budgetMs) * models.WarningFraction)

	record := &models.TimeoutRecord{
		ExecutionID:  executionID,
		WorkflowID:   workflowID,
		StartedAt:    now,
		LastActivity: now,
		BudgetMs:     budgetMs,
		WarningMs:    warningMs,
		Status:       models.TimeoutStatusActive,
	}

	timer := &executionTimer{record: record}
	timer.warnTimer = time.AfterFunc(time.Duration(warningMs)*time.Millisecond, func() {
		m.fireWarning(executionID, timer)
	})
	timer.mainTimer = time.AfterFunc(time.Duration(budgetMs)*time.Millisecond, func() {
		m.fireTimeout(executionID, timer)
	})

	m.mu.Lock()
	// Redeliveries re-track the same execution id; the previous entry's
	// timers must stop or they keep firing against the fresh record.
	if previous, ok := m.timers[executionID]; ok {
		previous.warnTimer.Stop()
		previous.mainTimer.Stop()
	}

	m.timers[executionID] = timer
	m.mu.Unlock()

	m.logger.DebugContext(ctx, "Tracking execution timeout",
		"execution_id", executionID,
		"budget_ms", budgetMs,
	)
}

// UpdateActivity records liveness and resets a warning back to active. Used
// to suppress false warnings on long-but-healthy operations. It does not move
// the timeout deadline.
func (m *Manager) UpdateActivity(executionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	timer, ok := m.timers[executionID]
	if !ok {
		return
	}

	timer.record.LastActivity = time.Now().UTC()

	if timer.record.Status == models.TimeoutStatusWarning {
		timer.record.Status = models.TimeoutStatusActive
	}
}

// ExtendTimeout reschedules the main timer by additionalMs. Elapsed warning
// state is preserved: a warning already fired is not re-armed.
func (m *Manager) ExtendTimeout(executionID string, additionalMs int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	timer, ok := m.timers[executionID]
	if !ok {
		return ErrTimeoutNotTracked
	}

	if timer.record.Status == models.TimeoutStatusTimeout {
		return ErrTimeoutNotTracked
	}

	timer.record.BudgetMs += additionalMs

	deadline := timer.record.StartedAt.Add(time.Duration(timer.record.BudgetMs) * time.Millisecond)
	timer.mainTimer.Reset(time.Until(deadline))

	return nil
}

// Status returns a copy of the current timeout record.
func (m *Manager) Status(executionID string) (models.TimeoutRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	timer, ok := m.timers[executionID]
	if !ok {
		return models.TimeoutRecord{}, false
	}

	return *timer.record, true
}

// Clear cancels both timers and drops the record. Called on every exit path:
// success, failure, cancellation and timeout itself.
func (m *Manager) Clear(executionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	timer, ok := m.timers[executionID]
	if !ok {
		return
	}

	timer.warnTimer.Stop()
	timer.mainTimer.Stop()
	delete(m.timers, executionID)
}

func (m *Manager) fireWarning(executionID string, owner *executionTimer) {
	m.mu.Lock()

	timer, ok := m.timers[executionID]
	if !ok || timer != owner || timer.record.Status != models.TimeoutStatusActive {
		m.mu.Unlock()

		return
	}

	timer.record.Status = models.TimeoutStatusWarning
	record := *timer.record
	m.mu.Unlock()

	elapsed := time.Since(record.StartedAt).Milliseconds()

	event := events.ExecutionTimeoutWarning{
		BaseEvent: events.NewBaseEvent(events.ExecutionTimeoutWarningEvent, record.ExecutionID, record.WorkflowID),
		ElapsedMs: elapsed,
		BudgetMs:  record.BudgetMs,
	}

	err := m.publisher.Publish(context.Background(), record.ExecutionID, event)
	if err != nil {
		m.logger.Error("Failed to publish timeout warning", "execution_id", executionID, "error", err)
	}
}

func (m *Manager) fireTimeout(executionID string, owner *executionTimer) {
	m.mu.Lock()

	timer, ok := m.timers[executionID]
	if !ok || timer != owner || timer.record.Status == models.TimeoutStatusTimeout {
		m.mu.Unlock()

		return
	}

	timer.record.Status = models.TimeoutStatusTimeout
	m.mu.Unlock()

	m.logger.Warn("Execution exceeded timeout budget", "execution_id", executionID)

	if m.onTimeout != nil {
		m.onTimeout(executionID)
	}
}
