package operations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/dukex/flowscope/pkg/models"
	"github.com/dukex/flowscope/pkg/readmodel"
	"github.com/dukex/flowscope/pkg/store"
	"github.com/google/uuid"
)

// BatchRequest selects target instances and names the mutation to schedule
// against each of them.
type BatchRequest struct {
	Type   models.OperationType `json:"type"`
	Filter readmodel.ListFilter `json:"filter"`

	// Retries applies to UPDATE_RETRIES batches.
	Retries int32 `json:"retries,omitempty"`

	// VariableName and VariableValue apply to UPDATE_VARIABLE batches; the
	// variable is set on each instance's top-level scope.
	VariableName  string `json:"variable_name,omitempty"`
	VariableValue string `json:"variable_value,omitempty"`
}

// BatchResult reports an accepted batch: its id and the operations persisted
// in SCHEDULED state.
type BatchResult struct {
	BatchID    string              `json:"batch_id"`
	Operations []*models.Operation `json:"operations"`
}

// WriterConfig tunes admission control.
type WriterConfig struct {
	// MaxBatchSize caps the instances one batch request may target. A
	// filter matching more rejects the whole request.
	MaxBatchSize int
}

// DefaultWriterConfig allows 50 instances per batch.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{MaxBatchSize: 50}
}

// Writer resolves batch requests to instance sets and persists one SCHEDULED
// operation per target. Admission is all-or-nothing: an oversized filter
// persists nothing.
type Writer struct {
	documentStore store.DocumentStore
	listReader    *readmodel.ListReader
	logger        *slog.Logger
	config        WriterConfig

	now func() time.Time
}

// NewWriter creates a batch operation writer.
func NewWriter(documentStore store.DocumentStore, listReader *readmodel.ListReader, logger *slog.Logger, config WriterConfig) *Writer {
	if config.MaxBatchSize <= 0 {
		config.MaxBatchSize = DefaultWriterConfig().MaxBatchSize
	}

	return &Writer{
		documentStore: documentStore,
		listReader:    listReader,
		logger:        logger,
		config:        config,
		now:           time.Now,
	}
}

// ScheduleBatch validates the request, resolves its filter, enforces the
// batch size cap and persists the resulting operations plus one batch
// document. The returned operations are all in SCHEDULED state.
func (w *Writer) ScheduleBatch(ctx context.Context, request BatchRequest) (*BatchResult, error) {
	if err := validateRequest(request); err != nil {
		return nil, err
	}

	// One page above the cap is enough to detect an oversized filter.
	resolved, err := w.listReader.ListInstances(ctx, request.Filter, readmodel.Page{Size: w.config.MaxBatchSize + 1})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve batch filter: %w", err)
	}

	if resolved.Total > int64(w.config.MaxBatchSize) {
		return nil, fmt.Errorf("%w: filter matched %d instances, maximum batch size is %d",
			ErrTooManyInstances, resolved.Total, w.config.MaxBatchSize)
	}

	batchID := uuid.New().String()
	startDate := w.now().UTC()

	operations := make([]*models.Operation, 0, len(resolved.Instances))

	for _, instance := range resolved.Instances {
		operation := &models.Operation{
			ID:                 uuid.New().String(),
			BatchID:            batchID,
			WorkflowInstanceID: instance.ID,
			Type:               request.Type,
			State:              models.OperationStateScheduled,
			StartDate:          startDate,
			InstanceKey:        instance.Key,
		}

		switch request.Type {
		case models.OperationTypeResolveIncident, models.OperationTypeUpdateRetries:
			incident, err := w.firstActiveIncident(ctx, instance.ID)
			if err != nil {
				return nil, err
			}

			if incident == nil {
				w.logger.WarnContext(ctx, "Skipping instance without active incident",
					"instance_id", instance.ID, "operation_type", request.Type)

				continue
			}

			operation.IncidentKey = incident.Key

			if request.Type == models.OperationTypeUpdateRetries {
				if incident.JobID == nil {
					w.logger.WarnContext(ctx, "Skipping non-job incident for retry update",
						"instance_id", instance.ID, "incident_id", incident.ID)

					continue
				}

				jobKey, err := strconv.ParseInt(*incident.JobID, 10, 64)
				if err != nil {
					return nil, fmt.Errorf("corrupt job id on incident %s: %w", incident.ID, err)
				}

				operation.JobKey = jobKey
				operation.Retries = request.Retries
			}
		case models.OperationTypeUpdateVariable:
			operation.ScopeKey = instance.Key
			operation.VariableName = request.VariableName
			operation.VariableValue = request.VariableValue
		case models.OperationTypeCancelWorkflowInstance:
		}

		operations = append(operations, operation)
	}

	docs := make([]store.Document, 0, len(operations))

	for _, operation := range operations {
		doc, err := store.NewDocument(operation)
		if err != nil {
			return nil, err
		}

		docs = append(docs, doc)
	}

	if len(docs) > 0 {
		if err := w.documentStore.BulkUpsert(ctx, store.IndexOperation, docs); err != nil {
			return nil, fmt.Errorf("failed to persist batch operations: %w", err)
		}
	}

	batchDoc, err := store.NewDocument(&models.Batch{
		ID:            batchID,
		Type:          request.Type,
		InstanceCount: len(operations),
		StartDate:     startDate,
	})
	if err != nil {
		return nil, err
	}

	if err := w.documentStore.BulkUpsert(ctx, store.IndexBatch, []store.Document{batchDoc}); err != nil {
		return nil, fmt.Errorf("failed to persist batch: %w", err)
	}

	w.logger.InfoContext(ctx, "Scheduled operation batch",
		"batch_id", batchID, "operation_type", request.Type, "operations", len(operations))

	return &BatchResult{BatchID: batchID, Operations: operations}, nil
}

func validateRequest(request BatchRequest) error {
	if !request.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidOperationType, request.Type)
	}

	if request.Type == models.OperationTypeUpdateVariable && request.VariableName == "" {
		return ErrVariableNameRequired
	}

	if request.Type == models.OperationTypeUpdateRetries && request.Retries < 1 {
		return ErrRetriesRequired
	}

	return nil
}

// firstActiveIncident returns the instance's oldest ACTIVE incident, or nil
// when it has none.
func (w *Writer) firstActiveIncident(ctx context.Context, instanceID string) (*models.Incident, error) {
	_, docs, err := w.documentStore.Search(ctx, store.Alias(store.IndexIncident), store.Query{
		Terms: map[string]any{
			"workflow_instance_id": instanceID,
			"state":                string(models.IncidentStateActive),
		},
		Sorts: []store.Sort{{Field: "creation_time", Order: store.SortAsc}},
		Size:  1,
	})
	if errors.Is(err, store.ErrIndexNotFound) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to look up incidents for %s: %w", instanceID, err)
	}

	if len(docs) == 0 {
		return nil, nil
	}

	incident := &models.Incident{}
	if err := json.Unmarshal(docs[0].Source, incident); err != nil {
		return nil, fmt.Errorf("corrupt incident document %s: %w", docs[0].ID, err)
	}

	return incident, nil
}
