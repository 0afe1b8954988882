// Package schedule provides the cron trigger source that starts executions
// for published workflows with schedule triggers.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/flowlinehq/flowline/pkg/models"
	"github.com/flowlinehq/flowline/pkg/persistence"
	"github.com/flowlinehq/flowline/pkg/protocol"
)

var ErrAlreadyStarted = errors.New("schedule source already started")

// Source scans published workflows for enabled schedule triggers and fires the
// trigger callback on every cron tick. One cron runner covers all workflows.
type Source struct {
	persistence persistence.Persistence
	logger      *slog.Logger

	mu      sync.Mutex
	runner  *cron.Cron
	started bool
}

func NewSource(p persistence.Persistence, logger *slog.Logger) *Source {
	return &Source{
		persistence: p,
		logger:      logger.With("module", "schedule_source"),
	}
}

// Start registers every schedule trigger of every published workflow and
// begins firing. The callback runs on the cron goroutine; it should hand off
// quickly (the dispatcher's Run already returns immediately).
func (s *Source) Start(ctx context.Context, callback protocol.TriggerCallback) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}

	triggers, err := s.scheduleTriggers(ctx)
	if err != nil {
		return err
	}

	runner := cron.New()

	for _, trigger := range triggers {
		workflowID := trigger.workflowID
		nodeID := trigger.nodeID
		expression := trigger.expression

		_, err := runner.AddFunc(expression, func() {
			fireCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			err := callback(fireCtx, workflowID, nodeID, map[string]any{
				"cron":     expression,
				"fired_at": time.Now().UTC().Format(time.RFC3339),
			})
			if err != nil {
				s.logger.ErrorContext(fireCtx, "Schedule trigger failed to start execution",
					"workflow_id", workflowID, "node_id", nodeID, "error", err)
			}
		})
		if err != nil {
			return fmt.Errorf("invalid cron expression %q on workflow %s node %s: %w",
				expression, workflowID, nodeID, err)
		}

		s.logger.InfoContext(ctx, "Registered schedule trigger",
			"workflow_id", workflowID, "node_id", nodeID, "cron", expression)
	}

	runner.Start()
	s.runner = runner
	s.started = true

	return nil
}

// Stop halts the cron runner and waits for in-flight callbacks to return.
func (s *Source) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	stopCtx := s.runner.Stop()

	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	s.started = false
	s.runner = nil

	return nil
}

// Validate checks every registered schedule trigger's cron expression without
// starting anything.
func (s *Source) Validate(ctx context.Context) error {
	triggers, err := s.scheduleTriggers(ctx)
	if err != nil {
		return err
	}

	for _, trigger := range triggers {
		_, err := cron.ParseStandard(trigger.expression)
		if err != nil {
			return fmt.Errorf("invalid cron expression %q on workflow %s node %s: %w",
				trigger.expression, trigger.workflowID, trigger.nodeID, err)
		}
	}

	return nil
}

type scheduleTrigger struct {
	workflowID string
	nodeID     string
	expression string
}

func (s *Source) scheduleTriggers(ctx context.Context) ([]scheduleTrigger, error) {
	workflows, err := s.persistence.Workflows(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflows: %w", err)
	}

	var triggers []scheduleTrigger

	for _, workflow := range workflows {
		if workflow.Status != models.WorkflowStatusPublished {
			continue
		}

		for _, node := range workflow.Nodes {
			if node.Type != models.NodeTypeTriggerSchedule || !node.Enabled {
				continue
			}

			expression, ok := node.Config["cron"].(string)
			if !ok || expression == "" {
				s.logger.WarnContext(ctx, "Schedule trigger without cron expression",
					"workflow_id", workflow.ID, "node_id", node.ID)

				continue
			}

			triggers = append(triggers, scheduleTrigger{
				workflowID: workflow.ID,
				nodeID:     node.ID,
				expression: expression,
			})
		}
	}

	return triggers, nil
}

var _ protocol.TriggerSource = (*Source)(nil)
