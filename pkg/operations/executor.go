package operations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/flowscope/pkg/engine"
	"github.com/dukex/flowscope/pkg/eventbus"
	"github.com/dukex/flowscope/pkg/events"
	"github.com/dukex/flowscope/pkg/models"
	"github.com/dukex/flowscope/pkg/otelhelper"
	"github.com/dukex/flowscope/pkg/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ExecutorConfig tunes one executor instance.
type ExecutorConfig struct {
	// LockSize caps the SCHEDULED operations claimed per ExecuteOneBatch
	// call.
	LockSize int
}

// DefaultExecutorConfig claims 20 operations per call.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{LockSize: 20}
}

// Executor drives persisted operations to a terminal state. Each claimed
// operation is dispatched on its own goroutine and fails independently of
// its siblings; there is no all-or-nothing rollback.
type Executor struct {
	documentStore store.DocumentStore
	engineClient  engine.Client
	publisher     eventbus.EventPublisher
	logger        *slog.Logger
	tracer        trace.Tracer
	config        ExecutorConfig

	now func() time.Time
}

// NewExecutor creates an operation executor. The publisher may be nil when
// no event bus is wired.
func NewExecutor(
	documentStore store.DocumentStore,
	engineClient engine.Client,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
	config ExecutorConfig,
) *Executor {
	if config.LockSize <= 0 {
		config.LockSize = DefaultExecutorConfig().LockSize
	}

	return &Executor{
		documentStore: documentStore,
		engineClient:  engineClient,
		publisher:     publisher,
		logger:        logger,
		tracer:        otel.Tracer("flowscope/operations"),
		config:        config,
		now:           time.Now,
	}
}

// ExecuteOneBatch claims up to LockSize SCHEDULED operations, marks them
// LOCKED and dispatches each engine command asynchronously. It returns one
// future per dispatched operation; awaiting them observes dispatch
// completion, not engine-side convergence.
func (e *Executor) ExecuteOneBatch(ctx context.Context) ([]*Future, error) {
	ctx, span := e.tracer.Start(ctx, "operations.execute")
	defer span.End()

	claimed, err := e.claimScheduled(ctx)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	span.SetAttributes(attribute.Int(otelhelper.ClaimedOperationsKey, len(claimed)))

	futures := make([]*Future, len(claimed))

	for i, operation := range claimed {
		future := newFuture(operation.ID)
		futures[i] = future

		// The dispatch outlives the caller's request scope.
		go e.dispatch(context.WithoutCancel(ctx), operation, future)
	}

	return futures, nil
}

// claimScheduled moves the oldest SCHEDULED operations to LOCKED so a
// concurrent executor round cannot dispatch them twice.
func (e *Executor) claimScheduled(ctx context.Context) ([]*models.Operation, error) {
	_, docs, err := e.documentStore.Search(ctx, store.IndexOperation, store.Query{
		Terms: map[string]any{"state": string(models.OperationStateScheduled)},
		Sorts: []store.Sort{{Field: "start_date", Order: store.SortAsc}},
		Size:  e.config.LockSize,
	})
	if errors.Is(err, store.ErrIndexNotFound) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to select scheduled operations: %w", err)
	}

	if len(docs) == 0 {
		return nil, nil
	}

	claimed := make([]*models.Operation, 0, len(docs))
	locked := make([]store.Document, 0, len(docs))

	for _, doc := range docs {
		operation := &models.Operation{}
		if err := json.Unmarshal(doc.Source, operation); err != nil {
			return nil, fmt.Errorf("corrupt operation document %s: %w", doc.ID, err)
		}

		operation.State = models.OperationStateLocked

		lockedDoc, err := store.NewDocument(operation)
		if err != nil {
			return nil, err
		}

		claimed = append(claimed, operation)
		locked = append(locked, lockedDoc)
	}

	if err := e.documentStore.BulkUpsert(ctx, store.IndexOperation, locked); err != nil {
		return nil, fmt.Errorf("failed to lock operations: %w", err)
	}

	return claimed, nil
}

func (e *Executor) dispatch(ctx context.Context, operation *models.Operation, future *Future) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "operations.dispatch",
		attribute.String(otelhelper.OperationIDKey, operation.ID),
		attribute.String(otelhelper.OperationTypeKey, string(operation.Type)))
	defer span.End()

	commandErr := e.issueCommand(ctx, operation)

	endDate := e.now().UTC()
	operation.EndDate = &endDate

	if commandErr != nil {
		operation.State = models.OperationStateFailed
		operation.ErrorMessage = commandErr.Error()

		otelhelper.SetError(span, commandErr)

		e.logger.WarnContext(ctx, "Operation failed",
			"operation_id", operation.ID,
			"operation_type", operation.Type,
			"error", commandErr)
	} else {
		operation.State = models.OperationStateCompleted
	}

	if err := e.persist(ctx, operation); err != nil {
		e.logger.ErrorContext(ctx, "Failed to persist operation result",
			"operation_id", operation.ID, "error", err)
	}

	e.publishResult(ctx, operation, commandErr)
	future.complete(operation, commandErr)
}

func (e *Executor) issueCommand(ctx context.Context, operation *models.Operation) error {
	switch operation.Type {
	case models.OperationTypeCancelWorkflowInstance:
		return e.engineClient.CancelInstance(ctx, operation.InstanceKey)
	case models.OperationTypeResolveIncident:
		return e.engineClient.ResolveIncident(ctx, operation.IncidentKey)
	case models.OperationTypeUpdateRetries:
		return e.engineClient.UpdateJobRetries(ctx, operation.JobKey, operation.Retries)
	case models.OperationTypeUpdateVariable:
		return e.engineClient.SetVariable(ctx, operation.ScopeKey, operation.VariableName, operation.VariableValue)
	default:
		return fmt.Errorf("%w: %q", ErrInvalidOperationType, operation.Type)
	}
}

func (e *Executor) persist(ctx context.Context, operation *models.Operation) error {
	doc, err := store.NewDocument(operation)
	if err != nil {
		return err
	}

	return e.documentStore.BulkUpsert(ctx, store.IndexOperation, []store.Document{doc})
}

func (e *Executor) publishResult(ctx context.Context, operation *models.Operation, commandErr error) {
	if e.publisher == nil {
		return
	}

	var event eventbus.Event

	if commandErr != nil {
		event = events.OperationFailed{
			BaseEvent:          events.NewBaseEvent(events.OperationFailedEvent),
			OperationID:        operation.ID,
			BatchID:            operation.BatchID,
			WorkflowInstanceID: operation.WorkflowInstanceID,
			OperationType:      string(operation.Type),
			ErrorMessage:       operation.ErrorMessage,
		}
	} else {
		event = events.OperationCompleted{
			BaseEvent:          events.NewBaseEvent(events.OperationCompletedEvent),
			OperationID:        operation.ID,
			BatchID:            operation.BatchID,
			WorkflowInstanceID: operation.WorkflowInstanceID,
			OperationType:      string(operation.Type),
		}
	}

	if err := e.publisher.Publish(ctx, "operations", event); err != nil {
		e.logger.ErrorContext(ctx, "Failed to publish operation event",
			"operation_id", operation.ID, "error", err)
	}
}
