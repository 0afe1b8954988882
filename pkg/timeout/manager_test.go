package timeout

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowlinehq/flowline/pkg/eventbus"
	"github.com/flowlinehq/flowline/pkg/events"
	"github.com/flowlinehq/flowline/pkg/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

type capturingPublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (p *capturingPublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, event)

	return nil
}

func (p *capturingPublisher) count(eventType events.EventType) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0

	for _, event := range p.events {
		if event.GetType() == eventType {
			n++
		}
	}

	return n
}

func TestTrackReportsActiveStatus(t *testing.T) {
	manager := NewManager(&capturingPublisher{}, testLogger())
	defer manager.Clear("exec-1")

	manager.Track(context.Background(), "exec-1", "wf-1", 60_000)

	record, ok := manager.Status("exec-1")
	require.True(t, ok)
	assert.Equal(t, models.TimeoutStatusActive, record.Status)
	assert.Equal(t, int64(60_000), record.BudgetMs)
	assert.Equal(t, int64(48_000), record.WarningMs)
}

func TestWarningFiresAtEightyPercent(t *testing.T) {
	publisher := &capturingPublisher{}
	manager := NewManager(publisher, testLogger())
	defer manager.Clear("exec-warn")

	manager.Track(context.Background(), "exec-warn", "wf-1", 100)

	require.Eventually(t, func() bool {
		record, ok := manager.Status("exec-warn")

		return ok && record.Status == models.TimeoutStatusWarning
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, publisher.count(events.ExecutionTimeoutWarningEvent))
}

func TestTimeoutFiresHandlerOnce(t *testing.T) {
	manager := NewManager(&capturingPublisher{}, testLogger())

	var fired atomic.Int32

	manager.SetTimeoutHandler(func(executionID string) {
		assert.Equal(t, "exec-out", executionID)
		fired.Add(1)
	})

	manager.Track(context.Background(), "exec-out", "wf-1", 30)

	require.Eventually(t, func() bool {
		return fired.Load() == 1
	}, 2*time.Second, 5*time.Millisecond)

	record, ok := manager.Status("exec-out")
	require.True(t, ok)
	assert.Equal(t, models.TimeoutStatusTimeout, record.Status)

	// The handler owns cleanup; emulate it and verify the record is gone.
	manager.Clear("exec-out")
	_, ok = manager.Status("exec-out")
	assert.False(t, ok)
}

func TestUpdateActivityResetsWarning(t *testing.T) {
	manager := NewManager(&capturingPublisher{}, testLogger())
	defer manager.Clear("exec-act")

	manager.Track(context.Background(), "exec-act", "wf-1", 10_000)

	record, ok := manager.Status("exec-act")
	require.True(t, ok)
	before := record.LastActivity

	// Force the warning state directly through the timer callback path.
	manager.mu.Lock()
	owner := manager.timers["exec-act"]
	manager.mu.Unlock()
	manager.fireWarning("exec-act", owner)

	record, _ = manager.Status("exec-act")
	require.Equal(t, models.TimeoutStatusWarning, record.Status)

	manager.UpdateActivity("exec-act")

	record, _ = manager.Status("exec-act")
	assert.Equal(t, models.TimeoutStatusActive, record.Status)
	assert.False(t, record.LastActivity.Before(before))
}

func TestExtendTimeoutPostponesDeadline(t *testing.T) {
	manager := NewManager(&capturingPublisher{}, testLogger())
	defer manager.Clear("exec-ext")

	var fired atomic.Int32

	manager.SetTimeoutHandler(func(string) { fired.Add(1) })
	manager.Track(context.Background(), "exec-ext", "wf-1", 80)

	require.NoError(t, manager.ExtendTimeout("exec-ext", 10_000))

	record, ok := manager.Status("exec-ext")
	require.True(t, ok)
	assert.Equal(t, int64(10_080), record.BudgetMs)

	// The original 80ms deadline must not fire after the extension.
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}

func TestRetrackReplacesTimers(t *testing.T) {
	manager := NewManager(&capturingPublisher{}, testLogger())
	defer manager.Clear("exec-redeliver")

	var fired atomic.Int32

	manager.SetTimeoutHandler(func(string) { fired.Add(1) })

	// Job redelivery re-tracks the same execution with a fresh budget; the
	// first track's short timers must not fire against the new record.
	manager.Track(context.Background(), "exec-redeliver", "wf-1", 50)
	manager.Track(context.Background(), "exec-redeliver", "wf-1", 10*60*1000)

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())

	record, ok := manager.Status("exec-redeliver")
	require.True(t, ok)
	assert.Equal(t, models.TimeoutStatusActive, record.Status)
	assert.Equal(t, int64(10*60*1000), record.BudgetMs)
}

func TestExtendTimeoutUnknownExecution(t *testing.T) {
	manager := NewManager(&capturingPublisher{}, testLogger())

	assert.ErrorIs(t, manager.ExtendTimeout("exec-missing", 1000), ErrTimeoutNotTracked)
}

func TestClearStopsTimers(t *testing.T) {
	manager := NewManager(&capturingPublisher{}, testLogger())

	var fired atomic.Int32

	manager.SetTimeoutHandler(func(string) { fired.Add(1) })
	manager.Track(context.Background(), "exec-clear", "wf-1", 50)
	manager.Clear("exec-clear")

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())

	_, ok := manager.Status("exec-clear")
	assert.False(t, ok)
}
