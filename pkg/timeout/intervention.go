package timeout

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/flowlinehq/flowline/pkg/models"
	"github.com/google/uuid"
)

var ErrInterventionNotFound = errors.New("intervention not found")

// DefaultInterventionTimeout applies when a gate does not declare its own
// expiry budget.
const DefaultInterventionTimeout = 24 * time.Hour

// ResolutionHandler receives the resolved request exactly once. A nil
// response means the gate expired. The registered handler resumes or cancels
// the owning execution.
type ResolutionHandler func(ctx context.Context, request *models.ManualInterventionRequest, response *models.InterventionResponse)

type pendingGate struct {
	request *models.ManualInterventionRequest
	timer   *time.Timer
}

// InterventionManager drives the pending -> {approved, denied, timeout} state
// machine for manual gates. Each intervention id is single-use: a second
// response after resolution is rejected as not found.
type InterventionManager struct {
	logger *slog.Logger

	mu         sync.Mutex
	pending    map[string]*pendingGate
	onResolved ResolutionHandler
}

func NewInterventionManager(logger *slog.Logger) *InterventionManager {
	return &InterventionManager{
		logger:  logger.With("module", "intervention"),
		pending: make(map[string]*pendingGate),
	}
}

// SetResolutionHandler registers the resume/cancel callback. Must be called
// before Create.
func (m *InterventionManager) SetResolutionHandler(handler ResolutionHandler) {
	m.onResolved = handler
}

// Create registers a pending gate and starts its expiry timer. Returns the
// completed request with id and timestamps filled in.
func (m *InterventionManager) Create(ctx context.Context, request models.ManualInterventionRequest, timeoutMs int64) *models.ManualInterventionRequest {
	expiry := DefaultInterventionTimeout
	if timeoutMs > 0 {
		expiry = time.Duration(timeoutMs) * time.Millisecond
	}

	request.ID = "intervention-" + uuid.New().String()[:8]
	request.Status = models.InterventionStatusPending
	request.CreatedAt = time.Now().UTC()
	request.ExpiresAt = request.CreatedAt.Add(expiry)

	gate := &pendingGate{request: &request}
	gate.timer = time.AfterFunc(expiry, func() {
		m.expire(request.ID)
	})

	m.mu.Lock()
	m.pending[request.ID] = gate
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "Created manual intervention",
		"intervention_id", request.ID,
		"execution_id", request.ExecutionID,
		"node_id", request.NodeID,
		"type", request.Type,
		"expires_at", request.ExpiresAt,
	)

	return &request
}

// Respond resolves a pending gate with a human answer. The gate transitions
// to approved or denied and the resolution handler fires once.
func (m *InterventionManager) Respond(ctx context.Context, interventionID string, response models.InterventionResponse) error {
	m.mu.Lock()

	gate, ok := m.pending[interventionID]
	if !ok {
		m.mu.Unlock()

		return ErrInterventionNotFound
	}

	gate.timer.Stop()
	delete(m.pending, interventionID)

	if response.Approved {
		gate.request.Status = models.InterventionStatusApproved
	} else {
		gate.request.Status = models.InterventionStatusDenied
	}

	request := gate.request
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "Resolved manual intervention",
		"intervention_id", interventionID,
		"execution_id", request.ExecutionID,
		"status", request.Status,
	)

	if m.onResolved != nil {
		m.onResolved(ctx, request, &response)
	}

	return nil
}

// Get returns a pending request by id.
func (m *InterventionManager) Get(interventionID string) (*models.ManualInterventionRequest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	gate, ok := m.pending[interventionID]
	if !ok {
		return nil, false
	}

	request := *gate.request

	return &request, true
}

// List returns pending requests, optionally filtered by execution id.
func (m *InterventionManager) List(executionID string) []*models.ManualInterventionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()

	requests := make([]*models.ManualInterventionRequest, 0, len(m.pending))

	for _, gate := range m.pending {
		if executionID != "" && gate.request.ExecutionID != executionID {
			continue
		}

		request := *gate.request
		requests = append(requests, &request)
	}

	return requests
}

// CancelForExecution drops pending gates of a terminated execution without
// invoking the resolution handler.
func (m *InterventionManager) CancelForExecution(executionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, gate := range m.pending {
		if gate.request.ExecutionID == executionID {
			gate.timer.Stop()
			delete(m.pending, id)
		}
	}
}

func (m *InterventionManager) expire(interventionID string) {
	m.mu.Lock()

	gate, ok := m.pending[interventionID]
	if !ok {
		m.mu.Unlock()

		return
	}

	delete(m.pending, interventionID)
	gate.request.Status = models.InterventionStatusTimeout
	request := gate.request
	m.mu.Unlock()

	m.logger.Warn("Manual intervention expired",
		"intervention_id", interventionID,
		"execution_id", request.ExecutionID,
	)

	if m.onResolved != nil {
		m.onResolved(context.Background(), request, nil)
	}
}
