package main

import (
	"context"
	"os"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/flowlinehq/flowline/pkg/cmd"
	"github.com/flowlinehq/flowline/pkg/log"
)

const defaultPort = 9091

func main() {
	command := &cli.Command{
		Name:                  "flowline-api",
		Usage:                 "Control surface for starting, inspecting and unblocking executions",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence (postgres:// or a directory path)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:     "event-bus",
				Usage:    "Event bus provider (kafka, gochannel)",
				Required: true,
				Sources:  cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "state-store-url",
				Usage:   "State store URL (redis:// or memory)",
				Value:   "memory",
				Sources: cli.EnvVars("STATE_STORE_URL"),
			},
			&cli.StringFlag{
				Name:    "queue-url",
				Usage:   "Job queue URL (redis:// or memory; empty disables queued mode)",
				Value:   "",
				Sources: cli.EnvVars("QUEUE_URL"),
			},
			&cli.StringFlag{
				Name:    "lock-url",
				Usage:   "Resource lock backend URL (redis:// or memory)",
				Value:   "memory",
				Sources: cli.EnvVars("LOCK_URL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			apiID := "api-" + uuid.New().String()[:8]
			logger := log.WithModule("flowline-api").With("api_id", apiID)

			logger.InfoContext(ctx, "Initializing Flowline API")

			eventBus := cmd.NewEventBus(command.String("event-bus"), "flowline-api", logger)
			defer func() {
				err := eventBus.Close()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			persist := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				err := persist.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			api := NewAPI(APIConfig{
				ID:          apiID,
				Persistence: persist,
				EventBus:    eventBus,
				Store:       cmd.NewStateStore(ctx, command.String("state-store-url"), logger),
				JobQueue:    cmd.NewJobQueue(command.String("queue-url"), logger),
				LockManager: cmd.NewLockManager(command.String("lock-url"), logger),
				Registry:    cmd.NewRegistry(logger),
				Logger:      logger,
			})

			err := api.Start(ctx, command.Int("port"))
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)
			}

			return err
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
