// Package services exposes the execution control surface consumed by the API
// layer: starting, inspecting, cancelling and unblocking executions.
package services

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/flowlinehq/flowline/pkg/dispatcher"
	"github.com/flowlinehq/flowline/pkg/models"
	"github.com/flowlinehq/flowline/pkg/statestore"
	"github.com/flowlinehq/flowline/pkg/timeout"
)

// StartExecutionRequest asks for a new execution of a published workflow.
type StartExecutionRequest struct {
	WorkflowID    string                  `json:"workflow_id"     validate:"required"`
	TriggerNodeID string                  `json:"trigger_node_id" validate:"required"`
	UserID        string                  `json:"user_id"`
	TriggerData   map[string]any          `json:"trigger_data"`
	Options       models.ExecutionOptions `json:"options"`
}

// RespondInterventionRequest answers a pending manual gate.
type RespondInterventionRequest struct {
	Approved bool           `json:"approved"`
	Actor    string         `json:"actor" validate:"required"`
	Choice   string         `json:"choice"`
	Input    map[string]any `json:"input"`
}

// Execution handles execution-related business operations.
type Execution struct {
	dispatcher    *dispatcher.Dispatcher
	store         statestore.Store
	timeouts      *timeout.Manager
	interventions *timeout.InterventionManager
	validate      *validator.Validate
}

func NewExecution(d *dispatcher.Dispatcher, store statestore.Store, timeouts *timeout.Manager, interventions *timeout.InterventionManager) *Execution {
	return &Execution{
		dispatcher:    d,
		store:         store,
		timeouts:      timeouts,
		interventions: interventions,
		validate:      validator.New(),
	}
}

// Start admits a new execution and returns its id.
func (s *Execution) Start(ctx context.Context, req *StartExecutionRequest) (string, error) {
	err := s.validate.Struct(req)
	if err != nil {
		return "", &ServiceError{Op: "Start", Message: err.Error(), Err: ErrInvalidRequest}
	}

	return s.dispatcher.Run(ctx, req.WorkflowID, req.UserID, req.TriggerNodeID, req.TriggerData, req.Options)
}

// Status returns the live execution context from the state store.
func (s *Execution) Status(ctx context.Context, executionID string) (*models.ExecutionContext, error) {
	return s.store.LoadContext(ctx, executionID)
}

// Cancel requests cooperative cancellation of a running or paused execution.
func (s *Execution) Cancel(ctx context.Context, executionID, reason, actor string) error {
	return s.dispatcher.Cancel(ctx, executionID, reason, actor)
}

// ListInterventions returns the pending gates, optionally scoped to one
// execution. An empty execution id lists all pending gates.
func (s *Execution) ListInterventions(executionID string) []*models.ManualInterventionRequest {
	return s.interventions.List(executionID)
}

// GetIntervention returns one pending gate by id.
func (s *Execution) GetIntervention(interventionID string) (*models.ManualInterventionRequest, error) {
	request, ok := s.interventions.Get(interventionID)
	if !ok {
		return nil, timeout.ErrInterventionNotFound
	}

	return request, nil
}

// RespondIntervention resolves a pending gate. The gate is single-use: a
// second response returns ErrInterventionNotFound.
func (s *Execution) RespondIntervention(ctx context.Context, interventionID string, req *RespondInterventionRequest) error {
	err := s.validate.Struct(req)
	if err != nil {
		return &ServiceError{Op: "RespondIntervention", Message: err.Error(), Err: ErrInvalidRequest}
	}

	return s.interventions.Respond(ctx, interventionID, models.InterventionResponse{
		Approved: req.Approved,
		Actor:    req.Actor,
		Choice:   req.Choice,
		Input:    req.Input,
	})
}

// ExtendTimeout adds budget to a tracked execution's timeout clock.
func (s *Execution) ExtendTimeout(_ context.Context, executionID string, additionalMs int64) error {
	if additionalMs <= 0 {
		return &ServiceError{Op: "ExtendTimeout", Message: "additional_ms must be positive", Err: ErrInvalidRequest}
	}

	err := s.timeouts.ExtendTimeout(executionID, additionalMs)
	if err != nil {
		return fmt.Errorf("failed to extend timeout for execution %s: %w", executionID, err)
	}

	return nil
}

// TimeoutStatus reports the timeout clock of a tracked execution.
func (s *Execution) TimeoutStatus(executionID string) (models.TimeoutRecord, error) {
	record, ok := s.timeouts.Status(executionID)
	if !ok {
		return models.TimeoutRecord{}, timeout.ErrTimeoutNotTracked
	}

	return record, nil
}
