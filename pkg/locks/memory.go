package locks

import (
	"context"
	"log/slog"
	"sync"

	"github.com/flowlinehq/flowline/pkg/models"
)

// MemoryManager tracks locks in process memory. Correct for direct-mode
// executions within a single process; queued deployments use the Redis
// manager so locks are visible across workers.
type MemoryManager struct {
	logger *slog.Logger

	mu sync.Mutex
	// exclusive holds nodeID -> isolated execution id.
	exclusive map[string]string
	// shared holds nodeID -> set of non-isolated execution ids.
	shared map[string]map[string]bool
	// held holds executionID -> node ids it locked, for release.
	held map[string][]string
	// isolated remembers which executions took exclusive locks.
	isolated map[string]bool
}

func NewMemoryManager(logger *slog.Logger) *MemoryManager {
	return &MemoryManager{
		logger:    logger.With("module", "locks"),
		exclusive: make(map[string]string),
		shared:    make(map[string]map[string]bool),
		held:      make(map[string][]string),
		isolated:  make(map[string]bool),
	}
}

func (m *MemoryManager) AcquireLocks(ctx context.Context, executionCtx *models.ExecutionContext, graph *models.Graph) (bool, error) {
	closure := graph.DownstreamClosure(executionCtx.TriggerNodeID)

	m.mu.Lock()
	defer m.mu.Unlock()

	if !executionCtx.Isolated {
		for _, nodeID := range closure {
			if m.shared[nodeID] == nil {
				m.shared[nodeID] = make(map[string]bool)
			}

			m.shared[nodeID][executionCtx.ID] = true
		}

		m.held[executionCtx.ID] = closure

		return true, nil
	}

	// Exclusive acquisition is all-or-nothing: check first, then take.
	for _, nodeID := range closure {
		holder, locked := m.exclusive[nodeID]
		if locked && holder != executionCtx.ID {
			m.logger.DebugContext(ctx, "Lock contention",
				"execution_id", executionCtx.ID,
				"node_id", nodeID,
				"held_by", holder,
			)

			return false, nil
		}
	}

	for _, nodeID := range closure {
		m.exclusive[nodeID] = executionCtx.ID
	}

	m.held[executionCtx.ID] = closure
	m.isolated[executionCtx.ID] = true

	return true, nil
}

func (m *MemoryManager) ReleaseLocks(_ context.Context, executionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	nodeIDs, ok := m.held[executionID]
	if !ok {
		return nil
	}

	for _, nodeID := range nodeIDs {
		if m.isolated[executionID] {
			if m.exclusive[nodeID] == executionID {
				delete(m.exclusive, nodeID)
			}
		} else if holders := m.shared[nodeID]; holders != nil {
			delete(holders, executionID)

			if len(holders) == 0 {
				delete(m.shared, nodeID)
			}
		}
	}

	delete(m.held, executionID)
	delete(m.isolated, executionID)

	return nil
}

// Holder returns the isolated execution currently holding a node, if any.
func (m *MemoryManager) Holder(nodeID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	holder, ok := m.exclusive[nodeID]

	return holder, ok
}
