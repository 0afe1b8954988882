// Package statestore persists execution contexts and node outputs in an
// external key-value store so that any worker can resume any execution.
package statestore

import (
	"context"
	"errors"
	"time"

	"github.com/flowlinehq/flowline/pkg/models"
)

// Key layout. Context snapshots live under context:{executionID}; individual
// node outputs under outputs:{executionID}:{nodeID}.
const (
	contextKeyPrefix = "context:"
	outputsKeyPrefix = "outputs:"
	cancelKeyPrefix  = "cancel:"
)

// Retention windows. Active executions keep a long TTL; completed ones are
// shortened to allow late debugging without unbounded growth.
const (
	ActiveTTL    = 24 * time.Hour
	CompletedTTL = 1 * time.Hour
)

var ErrContextNotFound = errors.New("execution context not found in state store")

// Store serializes execution state for checkpoint and resume. Snapshots are
// written whole per execution, last-writer-wins, never merged across workers.
type Store interface {
	SaveContext(ctx context.Context, executionCtx *models.ExecutionContext) error
	LoadContext(ctx context.Context, executionID string) (*models.ExecutionContext, error)
	DeleteContext(ctx context.Context, executionID string) error

	// ExpireContext shortens the retention of a finished execution's state.
	ExpireContext(ctx context.Context, executionID string, ttl time.Duration) error

	SaveNodeOutput(ctx context.Context, executionID, nodeID string, outputs map[string]models.NodeResult) error
	LoadNodeOutput(ctx context.Context, executionID, nodeID string) (map[string]models.NodeResult, error)

	// RequestCancel flags an execution for cooperative cancellation; the
	// owning executor observes the flag at the next scheduling boundary.
	RequestCancel(ctx context.Context, executionID string) error
	IsCancelRequested(ctx context.Context, executionID string) (bool, error)

	Ping(ctx context.Context) error
	Close() error
}

func ContextKey(executionID string) string {
	return contextKeyPrefix + executionID
}

func OutputsKey(executionID, nodeID string) string {
	return outputsKeyPrefix + executionID + ":" + nodeID
}

func CancelKey(executionID string) string {
	return cancelKeyPrefix + executionID
}
