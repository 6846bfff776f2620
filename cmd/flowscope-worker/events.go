package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/flowscope/pkg/eventbus"
	"github.com/dukex/flowscope/pkg/events"
)

// registerEventSink subscribes the worker to the bus and logs every
// lifecycle event, including those published by other processes.
func registerEventSink(ctx context.Context, bus eventbus.EventBus, logger *slog.Logger) error {
	sink := &eventSink{logger: logger}

	handlers := map[events.EventType]eventbus.EventHandler{
		events.ImportRoundFinishedEvent: sink.importRoundFinished,
		events.InstancesArchivedEvent:   sink.instancesArchived,
		events.OperationCompletedEvent:  sink.operationCompleted,
		events.OperationFailedEvent:     sink.operationFailed,
	}

	for eventType, handler := range handlers {
		if err := bus.Handle(eventType, handler); err != nil {
			return fmt.Errorf("failed to register handler for %s: %w", eventType, err)
		}
	}

	return bus.Subscribe(ctx)
}

type eventSink struct {
	logger *slog.Logger
}

func (s *eventSink) importRoundFinished(ctx context.Context, event any) error {
	finished, ok := event.(*events.ImportRoundFinished)
	if !ok {
		return fmt.Errorf("unexpected event payload %T", event)
	}

	s.logger.InfoContext(ctx, "Import round finished",
		"records", finished.RecordCount,
		"imported", finished.Imported,
		"scheduled", finished.Scheduled)

	return nil
}

func (s *eventSink) instancesArchived(ctx context.Context, event any) error {
	archived, ok := event.(*events.InstancesArchived)
	if !ok {
		return fmt.Errorf("unexpected event payload %T", event)
	}

	s.logger.InfoContext(ctx, "Instances archived",
		"instances", archived.InstanceCount,
		"partitions", archived.Partitions)

	return nil
}

func (s *eventSink) operationCompleted(ctx context.Context, event any) error {
	completed, ok := event.(*events.OperationCompleted)
	if !ok {
		return fmt.Errorf("unexpected event payload %T", event)
	}

	s.logger.InfoContext(ctx, "Operation completed",
		"operationId", completed.OperationID,
		"batchId", completed.BatchID,
		"type", completed.OperationType)

	return nil
}

func (s *eventSink) operationFailed(ctx context.Context, event any) error {
	failed, ok := event.(*events.OperationFailed)
	if !ok {
		return fmt.Errorf("unexpected event payload %T", event)
	}

	s.logger.WarnContext(ctx, "Operation failed",
		"operationId", failed.OperationID,
		"batchId", failed.BatchID,
		"type", failed.OperationType,
		"error", failed.ErrorMessage)

	return nil
}
