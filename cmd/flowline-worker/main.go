package main

import (
	"context"
	"os"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/flowlinehq/flowline/pkg/cmd"
	"github.com/flowlinehq/flowline/pkg/log"
)

func main() {
	command := &cli.Command{
		Name:                  "flowline-worker",
		EnableShellCompletion: true,
		Usage:                 "Start a worker that executes queued workflow runs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
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
			&cli.IntFlag{
				Name:    "concurrency",
				Usage:   "Number of concurrent workers pulling jobs",
				Value:   5,
				Sources: cli.EnvVars("WORKER_CONCURRENCY"),
			},
			&cli.BoolFlag{
				Name:    "schedules",
				Usage:   "Run the cron schedule trigger source in this process",
				Value:   true,
				Sources: cli.EnvVars("ENABLE_SCHEDULES"),
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

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("flowline-worker").With("worker_id", workerID)

			logger.InfoContext(ctx, "Initializing Flowline worker")

			eventBus := cmd.NewEventBus(command.String("event-bus"), "flowline-worker", logger)
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

			manager := NewWorkerManager(WorkerManagerConfig{
				ID:          workerID,
				Persistence: persist,
				EventBus:    eventBus,
				Store:       cmd.NewStateStore(ctx, command.String("state-store-url"), logger),
				JobQueue:    cmd.NewJobQueue(command.String("queue-url"), logger),
				LockManager: cmd.NewLockManager(command.String("lock-url"), logger),
				Registry:    cmd.NewRegistry(logger),
				Concurrency: command.Int("concurrency"),
				Schedules:   command.Bool("schedules"),
				Logger:      logger,
			})

			return manager.Run(ctx)
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
