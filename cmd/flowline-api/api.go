// Package main provides the Flowline API server implementation.
package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/flowlinehq/flowline/pkg/bridge"
	"github.com/flowlinehq/flowline/pkg/dispatcher"
	"github.com/flowlinehq/flowline/pkg/eventbus"
	"github.com/flowlinehq/flowline/pkg/locks"
	"github.com/flowlinehq/flowline/pkg/persistence"
	"github.com/flowlinehq/flowline/pkg/queue"
	"github.com/flowlinehq/flowline/pkg/registry"
	"github.com/flowlinehq/flowline/pkg/services"
	"github.com/flowlinehq/flowline/pkg/statestore"
	"github.com/flowlinehq/flowline/pkg/timeout"
)

type APIConfig struct {
	ID          string
	Persistence persistence.Persistence
	EventBus    eventbus.EventBus
	Store       statestore.Store
	JobQueue    queue.JobQueue
	LockManager locks.Manager
	Registry    *registry.Registry
	Logger      *slog.Logger
}

// API hosts the control surface and the event bridge. It carries its own
// dispatcher so that direct-mode runs and queued-mode admission both work
// without a separate worker when the queue is absent.
type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	buffer      *bridge.Buffer
	bridge      *bridge.Bridge
	executions  *services.Execution
	workflows   *services.Workflow
	validate    *validator.Validate
}

func NewAPI(config APIConfig) *API {
	timeouts := timeout.NewManager(config.EventBus, config.Logger)
	interventions := timeout.NewInterventionManager(config.Logger)

	d := dispatcher.NewDispatcher(
		config.ID,
		config.Persistence,
		config.Store,
		config.JobQueue,
		config.LockManager,
		timeouts,
		interventions,
		config.Registry,
		config.EventBus,
		config.Logger,
	)

	buffer := bridge.NewBuffer(bridge.BufferConfig{}, config.Logger)

	return &API{
		logger:      config.Logger,
		persistence: config.Persistence,
		eventBus:    config.EventBus,
		buffer:      buffer,
		bridge:      bridge.NewBridge(buffer, config.Logger),
		executions:  services.NewExecution(d, config.Store, timeouts, interventions),
		workflows:   services.NewWorkflow(config.Persistence),
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	app := fiber.New()
	app.Use(cors.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Flowline API")
	})

	e := app.Group("/executions")
	e.Post("/", a.StartExecution)
	e.Get("/:id", a.GetExecution)
	e.Post("/:id/cancel", a.CancelExecution)
	e.Get("/:id/events", a.StreamExecutionEvents)
	e.Get("/:id/timeout", a.GetTimeoutStatus)
	e.Post("/:id/timeout/extend", a.ExtendTimeout)

	i := app.Group("/interventions")
	i.Get("/", a.ListInterventions)
	i.Get("/:id", a.GetIntervention)
	i.Post("/:id/respond", a.RespondIntervention)

	w := app.Group("/workflows")
	w.Get("/", a.GetWorkflows)
	w.Get("/:id", a.GetWorkflow)
	w.Post("/:id/publish", a.PublishWorkflow)

	return app
}

// Start wires the bridge into the event bus, begins draining it and serves
// HTTP until the listener fails or the context ends.
func (a *API) Start(ctx context.Context, port int) error {
	err := a.bridge.RegisterHandlers(a.eventBus)
	if err != nil {
		return err
	}

	a.buffer.Start(ctx)

	go func() {
		err := a.eventBus.Subscribe(ctx)
		if err != nil {
			a.logger.ErrorContext(ctx, "Event bus subscription ended", "error", err)
		}
	}()

	app := a.App()

	return app.Listen(":" + strconv.Itoa(port))
}
