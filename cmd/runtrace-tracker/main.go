package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/runtrace/runtrace/pkg/cmd"
	"github.com/runtrace/runtrace/pkg/log"
	"github.com/runtrace/runtrace/pkg/otelhelper"
	"github.com/runtrace/runtrace/pkg/tracker"
	cli "github.com/urfave/cli/v3"
)

const serviceName = "runtrace-tracker"

func main() {
	command := &cli.Command{
		Name:                  serviceName,
		EnableShellCompletion: true,
		Usage:                 "Consume workflow execution events and persist run lifecycle records",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "tracker-id",
				Aliases: []string{"id"},
				Usage:   "Custom tracker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("TRACKER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:     "event-bus",
				Usage:    "Event bus type (kafka, gochannel)",
				Required: true,
				Sources:  cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis connection URL for sequence allocation (optional)",
				Value:   "",
				Sources: cli.EnvVars("REDIS_URL"),
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

			trackerID := command.String("tracker-id")
			if trackerID == "" {
				trackerID = "tracker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule(serviceName).With("trackerId", trackerID)

			logger.InfoContext(ctx, "Initializing Runtrace Tracker")

			tracer, err := otelhelper.NewTracer(ctx, serviceName)
			if err != nil {
				logger.ErrorContext(ctx, "Failed to initialize tracer", "error", err)

				return err
			}

			eventBus := cmd.NewEventBus(command.String("event-bus"), serviceName, logger)
			defer func() {
				err := eventBus.Close()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				err := persistence.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			sequences := cmd.NewSequenceAllocator(logger, command.String("redis-url"))

			service := tracker.NewTracker(
				logger,
				persistence,
				sequences,
				eventBus,
				tracer,
			)

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			err = service.Start(ctx)
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start tracker", "error", err)

				return err
			}

			<-ctx.Done()

			logger.Info("Shutting down tracker")

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
