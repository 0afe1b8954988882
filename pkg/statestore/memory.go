package statestore

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/flowlinehq/flowline/pkg/models"
)

// MemoryStore is an in-process state store for direct-mode executions and
// tests. Snapshots go through JSON the same way the Redis store serializes
// them, so resume behavior matches production.
type MemoryStore struct {
	mu        sync.RWMutex
	contexts  map[string][]byte
	outputs   map[string][]byte
	cancelled map[string]bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		contexts:  make(map[string][]byte),
		outputs:   make(map[string][]byte),
		cancelled: make(map[string]bool),
	}
}

func (s *MemoryStore) SaveContext(_ context.Context, executionCtx *models.ExecutionContext) error {
	payload, err := json.Marshal(executionCtx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.contexts[executionCtx.ID] = payload

	return nil
}

func (s *MemoryStore) LoadContext(_ context.Context, executionID string) (*models.ExecutionContext, error) {
	s.mu.RLock()
	payload, ok := s.contexts[executionID]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrContextNotFound
	}

	var executionCtx models.ExecutionContext

	err := json.Unmarshal(payload, &executionCtx)
	if err != nil {
		return nil, err
	}

	return &executionCtx, nil
}

func (s *MemoryStore) DeleteContext(_ context.Context, executionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.contexts, executionID)
	delete(s.cancelled, executionID)

	return nil
}

func (s *MemoryStore) ExpireContext(_ context.Context, _ string, _ time.Duration) error {
	// Memory contents are process-scoped; expiry is a no-op.
	return nil
}

func (s *MemoryStore) SaveNodeOutput(_ context.Context, executionID, nodeID string, outputs map[string]models.NodeResult) error {
	payload, err := json.Marshal(outputs)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.outputs[OutputsKey(executionID, nodeID)] = payload

	return nil
}

func (s *MemoryStore) LoadNodeOutput(_ context.Context, executionID, nodeID string) (map[string]models.NodeResult, error) {
	s.mu.RLock()
	payload, ok := s.outputs[OutputsKey(executionID, nodeID)]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrContextNotFound
	}

	var outputs map[string]models.NodeResult

	err := json.Unmarshal(payload, &outputs)
	if err != nil {
		return nil, err
	}

	return outputs, nil
}

func (s *MemoryStore) RequestCancel(_ context.Context, executionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelled[executionID] = true

	return nil
}

func (s *MemoryStore) IsCancelRequested(_ context.Context, executionID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.cancelled[executionID], nil
}

func (s *MemoryStore) Ping(_ context.Context) error {
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
