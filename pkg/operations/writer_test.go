package operations

import (
	"fmt"
	"testing"
	"time"

	"github.com/dukex/flowscope/pkg/log"
	"github.com/dukex/flowscope/pkg/models"
	"github.com/dukex/flowscope/pkg/readmodel"
	"github.com/dukex/flowscope/pkg/store"
	"github.com/dukex/flowscope/pkg/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

func putDoc(t *testing.T, documentStore *memory.Store, index string, entity interface {
	DocumentID() string
},
) {
	t.Helper()

	doc, err := store.NewDocument(entity)
	require.NoError(t, err)
	require.NoError(t, documentStore.BulkUpsert(t.Context(), index, []store.Document{doc}))
}

func seedInstances(t *testing.T, documentStore *memory.Store, count int) {
	t.Helper()

	for i := range count {
		putDoc(t, documentStore, store.IndexInstance, &models.WorkflowInstance{
			ID:        fmt.Sprintf("inst-%02d", i),
			Key:       int64(100 + i),
			State:     models.InstanceStateActive,
			StartDate: baseTime.Add(time.Duration(i) * time.Minute),
		})
	}
}

func newTestWriter(documentStore *memory.Store, maxBatchSize int) *Writer {
	listReader := readmodel.NewListReader(documentStore, log.WithModule("readmodel"))

	return NewWriter(documentStore, listReader, log.WithModule("operations"),
		WriterConfig{MaxBatchSize: maxBatchSize})
}

func countOperations(t *testing.T, documentStore *memory.Store) int64 {
	t.Helper()

	total, _, err := documentStore.Search(t.Context(), store.Alias(store.IndexOperation), store.Query{})
	if err != nil {
		return 0
	}

	return total
}

func TestScheduleBatchRejectsInvalidType(t *testing.T) {
	writer := newTestWriter(memory.NewStore(), 5)

	_, err := writer.ScheduleBatch(t.Context(), BatchRequest{Type: "REBOOT"})
	require.ErrorIs(t, err, ErrInvalidOperationType)
	assert.True(t, IsValidationError(err))
}

func TestScheduleBatchRejectsOversizedFilter(t *testing.T) {
	documentStore := memory.NewStore()
	seedInstances(t, documentStore, 10)

	writer := newTestWriter(documentStore, 5)

	_, err := writer.ScheduleBatch(t.Context(), BatchRequest{
		Type: models.OperationTypeCancelWorkflowInstance,
	})
	require.ErrorIs(t, err, ErrTooManyInstances)
	assert.Contains(t, err.Error(), "too many instances")

	// All-or-nothing: the rejected request persists no operations.
	assert.Zero(t, countOperations(t, documentStore))
}

func TestScheduleBatchPersistsScheduledOperations(t *testing.T) {
	documentStore := memory.NewStore()
	seedInstances(t, documentStore, 3)

	writer := newTestWriter(documentStore, 5)

	result, err := writer.ScheduleBatch(t.Context(), BatchRequest{
		Type: models.OperationTypeCancelWorkflowInstance,
	})
	require.NoError(t, err)
	require.Len(t, result.Operations, 3)

	for _, operation := range result.Operations {
		assert.Equal(t, models.OperationStateScheduled, operation.State)
		assert.Equal(t, result.BatchID, operation.BatchID)
		assert.NotZero(t, operation.InstanceKey)
		assert.Nil(t, operation.EndDate)
	}

	assert.Equal(t, int64(3), countOperations(t, documentStore))

	batchDoc, err := documentStore.Get(t.Context(), store.IndexBatch, result.BatchID)
	require.NoError(t, err)
	assert.Equal(t, result.BatchID, batchDoc.ID)
}

func TestScheduleBatchByExplicitIDs(t *testing.T) {
	documentStore := memory.NewStore()
	seedInstances(t, documentStore, 4)

	writer := newTestWriter(documentStore, 5)

	result, err := writer.ScheduleBatch(t.Context(), BatchRequest{
		Type:   models.OperationTypeCancelWorkflowInstance,
		Filter: readmodel.ListFilter{IDs: []string{"inst-01", "inst-03"}},
	})
	require.NoError(t, err)
	assert.Len(t, result.Operations, 2)
}

func TestScheduleResolveIncidentTargetsIncidentKey(t *testing.T) {
	documentStore := memory.NewStore()
	seedInstances(t, documentStore, 2)

	putDoc(t, documentStore, store.IndexIncident, &models.Incident{
		ID:                 "301",
		Key:                301,
		WorkflowInstanceID: "inst-00",
		ActivityID:         "task1",
		ErrorType:          "JOB_NO_RETRIES",
		State:              models.IncidentStateActive,
		CreationTime:       baseTime,
	})

	writer := newTestWriter(documentStore, 5)

	result, err := writer.ScheduleBatch(t.Context(), BatchRequest{
		Type: models.OperationTypeResolveIncident,
	})
	require.NoError(t, err)

	// Only the instance with an active incident gets an operation.
	require.Len(t, result.Operations, 1)
	assert.Equal(t, "inst-00", result.Operations[0].WorkflowInstanceID)
	assert.Equal(t, int64(301), result.Operations[0].IncidentKey)
}

func TestScheduleUpdateRetriesRequiresJobIncident(t *testing.T) {
	documentStore := memory.NewStore()
	seedInstances(t, documentStore, 1)

	jobID := "501"
	putDoc(t, documentStore, store.IndexIncident, &models.Incident{
		ID:                 "301",
		Key:                301,
		WorkflowInstanceID: "inst-00",
		ErrorType:          "JOB_NO_RETRIES",
		JobID:              &jobID,
		State:              models.IncidentStateActive,
		CreationTime:       baseTime,
	})

	writer := newTestWriter(documentStore, 5)

	_, err := writer.ScheduleBatch(t.Context(), BatchRequest{
		Type: models.OperationTypeUpdateRetries,
	})
	require.ErrorIs(t, err, ErrRetriesRequired)

	result, err := writer.ScheduleBatch(t.Context(), BatchRequest{
		Type:    models.OperationTypeUpdateRetries,
		Retries: 3,
	})
	require.NoError(t, err)
	require.Len(t, result.Operations, 1)
	assert.Equal(t, int64(501), result.Operations[0].JobKey)
	assert.Equal(t, int32(3), result.Operations[0].Retries)
}

func TestScheduleUpdateVariableRequiresName(t *testing.T) {
	documentStore := memory.NewStore()
	seedInstances(t, documentStore, 1)

	writer := newTestWriter(documentStore, 5)

	_, err := writer.ScheduleBatch(t.Context(), BatchRequest{
		Type: models.OperationTypeUpdateVariable,
	})
	require.ErrorIs(t, err, ErrVariableNameRequired)

	result, err := writer.ScheduleBatch(t.Context(), BatchRequest{
		Type:          models.OperationTypeUpdateVariable,
		VariableName:  "total",
		VariableValue: `"10"`,
	})
	require.NoError(t, err)
	require.Len(t, result.Operations, 1)
	assert.Equal(t, "total", result.Operations[0].VariableName)
	assert.Equal(t, int64(100), result.Operations[0].ScopeKey)
}
