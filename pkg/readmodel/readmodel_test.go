package readmodel

import (
	"testing"
	"time"

	"github.com/dukex/flowscope/pkg/models"
	"github.com/dukex/flowscope/pkg/store"
	"github.com/dukex/flowscope/pkg/store/memory"
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

func seedInstance(t *testing.T, documentStore *memory.Store, id string, state models.InstanceState, startedAt time.Time) *models.WorkflowInstance {
	t.Helper()

	instance := &models.WorkflowInstance{
		ID:              id,
		WorkflowID:      "10",
		WorkflowName:    "Order Process",
		WorkflowVersion: 1,
		State:           state,
		StartDate:       startedAt,
	}

	if state.Terminal() {
		endDate := startedAt.Add(time.Minute)
		instance.EndDate = &endDate
	}

	putDoc(t, documentStore, store.IndexInstance, instance)

	return instance
}

func seedActivity(t *testing.T, documentStore *memory.Store, id, instanceID, parentID, activityID string, activityType models.ActivityType, state models.ActivityState, startedAt time.Time) {
	t.Helper()

	activity := &models.Activity{
		ID:                 id,
		WorkflowInstanceID: instanceID,
		ParentID:           parentID,
		ActivityID:         activityID,
		Type:               activityType,
		State:              state,
		StartDate:          startedAt,
	}

	if state.Terminal() {
		endDate := startedAt.Add(time.Second)
		activity.EndDate = &endDate
	}

	putDoc(t, documentStore, store.IndexActivity, activity)
}

func seedIncident(t *testing.T, documentStore *memory.Store, id, instanceID, activityID, activityInstanceID, errorType, errorMessage string, state models.IncidentState, createdAt time.Time) {
	t.Helper()

	putDoc(t, documentStore, store.IndexIncident, &models.Incident{
		ID:                 id,
		WorkflowInstanceID: instanceID,
		ActivityID:         activityID,
		ActivityInstanceID: activityInstanceID,
		ErrorType:          errorType,
		ErrorMessage:       errorMessage,
		State:              state,
		CreationTime:       createdAt,
	})
}
