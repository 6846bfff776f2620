// Package main provides the Flowscope worker daemon: the import, archive and
// operation-execution loops on one shared cron scheduler.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/flowscope/pkg/archiver"
	"github.com/dukex/flowscope/pkg/importer"
	"github.com/dukex/flowscope/pkg/operations"
	"github.com/robfig/cron/v3"
)

// Intervals holds the periods of the three loops.
type Intervals struct {
	Import   time.Duration
	Archive  time.Duration
	Executor time.Duration
}

// WorkerManager schedules the periodic tasks. Each task is wrapped with
// SkipIfStillRunning so a slow round is never overlapped by the next tick of
// the same task; different tasks still run concurrently.
type WorkerManager struct {
	workerID  string
	pipeline  *importer.Pipeline
	archiver  *archiver.Archiver
	executor  *operations.Executor
	logger    *slog.Logger
	intervals Intervals
	cron      *cron.Cron
}

func NewWorkerManager(
	workerID string,
	pipeline *importer.Pipeline,
	archiverInstance *archiver.Archiver,
	executor *operations.Executor,
	logger *slog.Logger,
	intervals Intervals,
) *WorkerManager {
	return &WorkerManager{
		workerID:  workerID,
		pipeline:  pipeline,
		archiver:  archiverInstance,
		executor:  executor,
		logger:    logger,
		intervals: intervals,
	}
}

// Start schedules the loops and blocks until the context is canceled, then
// waits for running jobs to finish.
func (w *WorkerManager) Start(ctx context.Context) error {
	w.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	jobs := []struct {
		name     string
		interval time.Duration
		run      func(context.Context)
	}{
		{"import", w.intervals.Import, w.runImportRound},
		{"archive", w.intervals.Archive, w.runArchiveBatch},
		{"executor", w.intervals.Executor, w.runExecutorBatch},
	}

	for _, job := range jobs {
		run := job.run

		_, err := w.cron.AddFunc(fmt.Sprintf("@every %s", job.interval), func() {
			run(ctx)
		})
		if err != nil {
			return fmt.Errorf("failed to schedule %s job: %w", job.name, err)
		}
	}

	w.logger.InfoContext(ctx, "Worker started",
		"importInterval", w.intervals.Import,
		"archiveInterval", w.intervals.Archive,
		"executorInterval", w.intervals.Executor)

	w.cron.Start()

	<-ctx.Done()

	w.logger.Info("Worker shutting down, waiting for running jobs")
	<-w.cron.Stop().Done()

	return nil
}

func (w *WorkerManager) runImportRound(ctx context.Context) {
	if err := w.pipeline.PerformOneRound(ctx); err != nil {
		w.logger.ErrorContext(ctx, "Import round failed", "error", err)
	}
}

func (w *WorkerManager) runArchiveBatch(ctx context.Context) {
	moved, err := w.archiver.ArchiveNextBatch(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "Archive batch failed", "error", err, "moved", moved)

		return
	}

	if moved > 0 {
		w.logger.InfoContext(ctx, "Archived instances", "moved", moved)
	}
}

func (w *WorkerManager) runExecutorBatch(ctx context.Context) {
	futures, err := w.executor.ExecuteOneBatch(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "Executor batch failed", "error", err)

		return
	}

	for _, future := range futures {
		operation, err := future.Wait(ctx)
		if err != nil {
			w.logger.WarnContext(ctx, "Operation failed",
				"operationId", future.OperationID(), "error", err)

			continue
		}

		w.logger.InfoContext(ctx, "Operation completed",
			"operationId", operation.ID, "type", operation.Type)
	}
}
