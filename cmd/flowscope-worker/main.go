package main

import (
	"context"
	"os"
	"time"

	"github.com/dukex/flowscope/pkg/archiver"
	"github.com/dukex/flowscope/pkg/cmd"
	"github.com/dukex/flowscope/pkg/definitions"
	"github.com/dukex/flowscope/pkg/engine/rest"
	"github.com/dukex/flowscope/pkg/importer"
	"github.com/dukex/flowscope/pkg/log"
	"github.com/dukex/flowscope/pkg/operations"
	"github.com/dukex/flowscope/pkg/otelhelper"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
)

func main() {
	command := &cli.Command{
		Name:                  "flowscope-worker",
		EnableShellCompletion: true,
		Usage:                 "Run the import, archive and operation-execution loops",
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
				Usage:    "Document store URL (memory://, postgres://, redis://)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "engine-url",
				Usage:   "Base URL of the workflow engine's REST gateway",
				Value:   "http://localhost:8088",
				Sources: cli.EnvVars("ENGINE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.DurationFlag{
				Name:    "import-interval",
				Usage:   "Delay between import rounds",
				Value:   2 * time.Second,
				Sources: cli.EnvVars("IMPORT_INTERVAL"),
			},
			&cli.DurationFlag{
				Name:    "archive-interval",
				Usage:   "Delay between archive batches",
				Value:   time.Minute,
				Sources: cli.EnvVars("ARCHIVE_INTERVAL"),
			},
			&cli.DurationFlag{
				Name:    "executor-interval",
				Usage:   "Delay between operation-executor batches",
				Value:   5 * time.Second,
				Sources: cli.EnvVars("EXECUTOR_INTERVAL"),
			},
			&cli.DurationFlag{
				Name:    "archive-age",
				Usage:   "Minimum age of a finished instance before archiving",
				Value:   time.Hour,
				Sources: cli.EnvVars("ARCHIVE_AGE"),
			},
			&cli.IntFlag{
				Name:    "import-batch-size",
				Usage:   "Records fetched per value type per import round",
				Value:   100,
				Sources: cli.EnvVars("IMPORT_BATCH_SIZE"),
			},
			&cli.IntFlag{
				Name:    "archive-batch-size",
				Usage:   "Instances moved per archive batch",
				Value:   100,
				Sources: cli.EnvVars("ARCHIVE_BATCH_SIZE"),
			},
			&cli.IntFlag{
				Name:    "lock-size",
				Usage:   "Operations claimed per executor batch",
				Value:   20,
				Sources: cli.EnvVars("LOCK_SIZE"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export traces to the OTLP endpoint from the OTEL_EXPORTER_OTLP_* environment",
				Sources: cli.EnvVars("TRACING_ENABLED"),
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

			logger := log.WithModule("flowscope-worker").With("workerId", workerID)

			logger.InfoContext(ctx, "Initializing Flowscope Worker")

			if command.Bool("tracing") {
				if _, err := otelhelper.NewTracer(ctx, "flowscope-worker"); err != nil {
					return err
				}
			}

			documentStore, err := cmd.NewDocumentStore(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := documentStore.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close document store", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			if err := registerEventSink(ctx, eventBus, logger); err != nil {
				return err
			}

			engineClient := rest.NewClient(command.String("engine-url"), logger)

			cache := definitions.NewCache(engineClient, logger)
			converter := importer.NewConverter(cache, logger)

			importConfig := importer.DefaultConfig()
			importConfig.BatchSize = command.Int("import-batch-size")

			pipeline := importer.NewPipeline(engineClient, documentStore, converter, eventBus, logger, importConfig)

			archiveConfig := archiver.DefaultConfig()
			archiveConfig.BatchSize = command.Int("archive-batch-size")
			archiveConfig.MinimumAge = command.Duration("archive-age")

			archiverInstance := archiver.NewArchiver(documentStore, eventBus, logger, archiveConfig)

			executor := operations.NewExecutor(documentStore, engineClient, eventBus, logger, operations.ExecutorConfig{
				LockSize: command.Int("lock-size"),
			})

			worker := NewWorkerManager(
				workerID,
				pipeline,
				archiverInstance,
				executor,
				logger,
				Intervals{
					Import:   command.Duration("import-interval"),
					Archive:  command.Duration("archive-interval"),
					Executor: command.Duration("executor-interval"),
				},
			)

			if err := worker.Start(ctx); err != nil {
				logger.ErrorContext(ctx, "Failed to start worker", "error", err)
			}

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
