package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v3"

	"github.com/flowlinehq/flowline/pkg/services"
	"github.com/flowlinehq/flowline/pkg/statestore"
)

func (a *API) StartExecution(c fiber.Ctx) error {
	var req services.StartExecutionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	executionID, err := a.executions.Start(c.Context(), &req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"execution_id": executionID,
	})
}

// GetExecution returns the live context of a running execution, falling back
// to the terminal audit record once the context has been cleaned up.
func (a *API) GetExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	ectx, err := a.executions.Status(c.Context(), id)
	if err == nil {
		return c.JSON(ectx)
	}

	if !errors.Is(err, statestore.ErrContextNotFound) {
		return handleServiceError(c, err)
	}

	record, err := a.persistence.ExecutionByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(record)
}

type cancelRequest struct {
	Reason string `json:"reason"`
	Actor  string `json:"actor"`
}

func (a *API) CancelExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	var req cancelRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	err := a.executions.Cancel(c.Context(), id, req.Reason, req.Actor)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusAccepted)
}

// StreamExecutionEvents serves an SSE stream of one execution's lifecycle
// events: the bridge's buffered history first, then live events.
func (a *API) StreamExecutionEvents(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	sub := a.bridge.Subscribe(id)

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	return c.SendStreamWriter(func(w *bufio.Writer) {
		defer a.bridge.Unsubscribe(sub)

		for event := range sub.Events() {
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}

			_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.GetType(), data)
			if err != nil {
				return
			}

			// Flush failing means the client went away.
			if err := w.Flush(); err != nil {
				return
			}
		}
	})
}

func (a *API) GetTimeoutStatus(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	record, err := a.executions.TimeoutStatus(id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(record)
}

type extendTimeoutRequest struct {
	AdditionalMs int64 `json:"additional_ms" validate:"required,gt=0"`
}

func (a *API) ExtendTimeout(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	var req extendTimeoutRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := a.validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	err := a.executions.ExtendTimeout(c.Context(), id, req.AdditionalMs)
	if err != nil {
		return handleServiceError(c, err)
	}

	record, err := a.executions.TimeoutStatus(id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(record)
}

func (a *API) ListInterventions(c fiber.Ctx) error {
	executionID := c.Query("execution_id")

	pending := a.executions.ListInterventions(executionID)

	return c.JSON(fiber.Map{
		"interventions": pending,
		"count":         len(pending),
	})
}

func (a *API) GetIntervention(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Intervention ID is required")
	}

	request, err := a.executions.GetIntervention(id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(request)
}

func (a *API) RespondIntervention(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Intervention ID is required")
	}

	var req services.RespondInterventionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	err := a.executions.RespondIntervention(c.Context(), id, &req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (a *API) GetWorkflows(c fiber.Ctx) error {
	workflows, err := a.persistence.Workflows(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(workflows)
}

func (a *API) GetWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	workflow, err := a.persistence.WorkflowByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (a *API) PublishWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	workflow, err := a.workflows.Publish(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}
