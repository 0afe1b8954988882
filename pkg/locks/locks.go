// Package locks grants per-node execution locks so that isolated trigger
// executions do not race on shared nodes.
package locks

import (
	"context"

	"github.com/flowlinehq/flowline/pkg/models"
)

// Manager acquires and releases per-node locks for one execution. An isolated
// execution may proceed only if it can hold every node in the downstream
// closure of its trigger node exclusively; non-isolated executions share
// locks. AcquireLocks is all-or-nothing: on contention nothing is held and
// the caller decides whether to retry or reject the trigger.
type Manager interface {
	AcquireLocks(ctx context.Context, executionCtx *models.ExecutionContext, graph *models.Graph) (bool, error)
	ReleaseLocks(ctx context.Context, executionID string) error
}
