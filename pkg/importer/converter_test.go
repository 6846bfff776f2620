package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/dukex/flowscope/pkg/definitions"
	"github.com/dukex/flowscope/pkg/engine"
	"github.com/dukex/flowscope/pkg/engine/enginetest"
	"github.com/dukex/flowscope/pkg/log"
	"github.com/dukex/flowscope/pkg/models"
	"github.com/dukex/flowscope/pkg/records"
	"github.com/dukex/flowscope/pkg/store"
	"github.com/dukex/flowscope/pkg/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTime = time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

func newTestConverter(t *testing.T) (*Converter, *memory.Store, *enginetest.Fake) {
	t.Helper()

	fake := enginetest.NewFake()
	fake.AddDefinition(engine.Definition{
		WorkflowID:    "10",
		BPMNProcessID: "order",
		Name:          "Order Process",
		Version:       2,
	})

	documentStore := memory.NewStore()
	cache := definitions.NewCache(fake, log.WithModule("definitions"))

	return NewConverter(cache, log.WithModule("converter")), documentStore, fake
}

func instanceRecord(position, instanceKey int64, intent records.Intent, at time.Time) records.Record {
	value := fmt.Sprintf(
		`{"bpmn_process_id":"order","workflow_key":10,"workflow_instance_key":%d,"element_id":"order","element_type":"PROCESS","flow_scope_key":0}`,
		instanceKey)

	return records.Record{
		Position:  position,
		Key:       instanceKey,
		ValueType: records.ValueTypeProcessInstance,
		Intent:    intent,
		Timestamp: at,
		Value:     json.RawMessage(value),
	}
}

func activityRecord(position, key, instanceKey, scopeKey int64, elementID, elementType string, intent records.Intent, at time.Time) records.Record {
	value := fmt.Sprintf(
		`{"bpmn_process_id":"order","workflow_key":10,"workflow_instance_key":%d,"element_id":"%s","element_type":"%s","flow_scope_key":%d}`,
		instanceKey, elementID, elementType, scopeKey)

	return records.Record{
		Position:  position,
		Key:       key,
		ValueType: records.ValueTypeProcessInstance,
		Intent:    intent,
		Timestamp: at,
		Value:     json.RawMessage(value),
	}
}

func convertAll(t *testing.T, converter *Converter, documentStore *memory.Store, recs ...records.Record) {
	t.Helper()

	batch := NewBatch(documentStore)

	for _, record := range recs {
		require.NoError(t, converter.Convert(t.Context(), record, batch))
	}

	require.NoError(t, batch.Flush(t.Context()))
}

func loadInstance(t *testing.T, documentStore *memory.Store, id string) *models.WorkflowInstance {
	t.Helper()

	doc, err := documentStore.Get(t.Context(), store.IndexInstance, id)
	require.NoError(t, err)

	instance := &models.WorkflowInstance{}
	require.NoError(t, json.Unmarshal(doc.Source, instance))

	return instance
}

func loadActivity(t *testing.T, documentStore *memory.Store, id string) *models.Activity {
	t.Helper()

	doc, err := documentStore.Get(t.Context(), store.IndexActivity, id)
	require.NoError(t, err)

	activity := &models.Activity{}
	require.NoError(t, json.Unmarshal(doc.Source, activity))

	return activity
}

func loadIncident(t *testing.T, documentStore *memory.Store, id string) *models.Incident {
	t.Helper()

	doc, err := documentStore.Get(t.Context(), store.IndexIncident, id)
	require.NoError(t, err)

	incident := &models.Incident{}
	require.NoError(t, json.Unmarshal(doc.Source, incident))

	return incident
}

func TestConvertInstanceActivatedUsesDefinitionCache(t *testing.T) {
	converter, documentStore, fake := newTestConverter(t)

	convertAll(t, converter, documentStore,
		instanceRecord(1, 100, records.IntentElementActivated, testTime))

	instance := loadInstance(t, documentStore, "100")
	assert.Equal(t, models.InstanceStateActive, instance.State)
	assert.Equal(t, "Order Process", instance.WorkflowName)
	assert.Equal(t, int32(2), instance.WorkflowVersion)
	assert.Equal(t, testTime, instance.StartDate)
	assert.Nil(t, instance.EndDate)
	assert.Equal(t, 1, fake.DefinitionCalls["10"])
}

func TestConvertInstanceCompletedSetsEndDate(t *testing.T) {
	converter, documentStore, _ := newTestConverter(t)

	endTime := testTime.Add(time.Minute)

	convertAll(t, converter, documentStore,
		instanceRecord(1, 100, records.IntentElementActivated, testTime),
		instanceRecord(2, 100, records.IntentElementCompleted, endTime))

	instance := loadInstance(t, documentStore, "100")
	assert.Equal(t, models.InstanceStateCompleted, instance.State)
	require.NotNil(t, instance.EndDate)
	assert.True(t, !instance.StartDate.After(*instance.EndDate))
}

func TestConvertActivityLifecycle(t *testing.T) {
	converter, documentStore, _ := newTestConverter(t)

	convertAll(t, converter, documentStore,
		instanceRecord(1, 100, records.IntentElementActivated, testTime),
		activityRecord(2, 201, 100, 100, "task1", "SERVICE_TASK", records.IntentElementActivated, testTime),
		activityRecord(3, 201, 100, 100, "task1", "SERVICE_TASK", records.IntentElementCompleted, testTime.Add(time.Second)))

	activity := loadActivity(t, documentStore, "201")
	assert.Equal(t, models.ActivityStateCompleted, activity.State)
	assert.Equal(t, models.ActivityTypeServiceTask, activity.Type)
	assert.Equal(t, "100", activity.ParentID)
	require.NotNil(t, activity.EndDate)
	assert.True(t, !activity.StartDate.After(*activity.EndDate))
}

func TestConvertActivityEndDateOnlyWhenTerminal(t *testing.T) {
	converter, documentStore, _ := newTestConverter(t)

	convertAll(t, converter, documentStore,
		activityRecord(1, 201, 100, 100, "task1", "SERVICE_TASK", records.IntentElementActivated, testTime))

	activity := loadActivity(t, documentStore, "201")
	assert.Equal(t, models.ActivityStateActive, activity.State)
	assert.Nil(t, activity.EndDate)
}

func TestConvertIsIdempotentOnReplay(t *testing.T) {
	converter, documentStore, _ := newTestConverter(t)

	activated := activityRecord(2, 201, 100, 100, "task1", "SERVICE_TASK", records.IntentElementActivated, testTime)
	completed := activityRecord(3, 201, 100, 100, "task1", "SERVICE_TASK", records.IntentElementCompleted, testTime.Add(time.Second))

	convertAll(t, converter, documentStore, activated, completed)
	first := loadActivity(t, documentStore, "201")

	// At-least-once delivery: the same records arrive again, including the
	// stale activation after the completion was applied.
	convertAll(t, converter, documentStore, activated, completed, activated)
	second := loadActivity(t, documentStore, "201")

	assert.Equal(t, first, second)
	assert.Equal(t, models.ActivityStateCompleted, second.State)
}

func TestConvertIncidentTrimsErrorMessage(t *testing.T) {
	converter, documentStore, _ := newTestConverter(t)

	record := records.Record{
		Position:  5,
		Key:       301,
		ValueType: records.ValueTypeIncident,
		Intent:    records.IntentCreated,
		Timestamp: testTime,
		Value:     json.RawMessage(`{"workflow_instance_key":100,"element_id":"task2","element_instance_key":202,"error_type":"JOB_NO_RETRIES","error_message":"  some error \n"}`),
	}

	convertAll(t, converter, documentStore, record)

	incident := loadIncident(t, documentStore, "301")
	assert.Equal(t, "some error", incident.ErrorMessage)
	assert.Equal(t, models.IncidentStateActive, incident.State)
	assert.Equal(t, "202", incident.ActivityInstanceID)
}

func TestConvertIncidentResolvedWithoutInstanceKeyKeepsPriorFields(t *testing.T) {
	converter, documentStore, _ := newTestConverter(t)

	created := records.Record{
		Position:  5,
		Key:       301,
		ValueType: records.ValueTypeIncident,
		Intent:    records.IntentCreated,
		Timestamp: testTime,
		Value:     json.RawMessage(`{"workflow_instance_key":100,"element_id":"task2","element_instance_key":202,"error_type":"JOB_NO_RETRIES","error_message":"boom"}`),
	}

	// Some feed versions omit the workflow instance key on resolution.
	resolved := records.Record{
		Position:  6,
		Key:       301,
		ValueType: records.ValueTypeIncident,
		Intent:    records.IntentResolved,
		Timestamp: testTime.Add(time.Minute),
		Value:     json.RawMessage(`{"element_instance_key":202,"error_type":"JOB_NO_RETRIES"}`),
	}

	convertAll(t, converter, documentStore, created, resolved)

	incident := loadIncident(t, documentStore, "301")
	assert.Equal(t, models.IncidentStateResolved, incident.State)
	assert.Equal(t, "100", incident.WorkflowInstanceID)
	assert.Equal(t, "boom", incident.ErrorMessage)
}

func TestConvertIncidentBeforeActivityDoesNotFail(t *testing.T) {
	converter, documentStore, _ := newTestConverter(t)

	// Cross-type ordering is not guaranteed: the incident may arrive before
	// the activity it references was converted.
	record := records.Record{
		Position:  1,
		Key:       301,
		ValueType: records.ValueTypeIncident,
		Intent:    records.IntentCreated,
		Timestamp: testTime,
		Value:     json.RawMessage(`{"workflow_instance_key":100,"element_id":"task2","element_instance_key":202,"error_type":"JOB_NO_RETRIES","error_message":"boom"}`),
	}

	convertAll(t, converter, documentStore, record)

	incident := loadIncident(t, documentStore, "301")
	assert.Equal(t, "202", incident.ActivityInstanceID)
}

func TestConvertCancellationPropagates(t *testing.T) {
	converter, documentStore, _ := newTestConverter(t)

	incidentRecord := records.Record{
		Position:  4,
		Key:       301,
		ValueType: records.ValueTypeIncident,
		Intent:    records.IntentCreated,
		Timestamp: testTime,
		Value:     json.RawMessage(`{"workflow_instance_key":100,"element_id":"task1","element_instance_key":201,"error_type":"JOB_NO_RETRIES","error_message":"boom"}`),
	}

	canceledAt := testTime.Add(time.Hour)

	convertAll(t, converter, documentStore,
		instanceRecord(1, 100, records.IntentElementActivated, testTime),
		activityRecord(2, 201, 100, 100, "task1", "SERVICE_TASK", records.IntentElementActivated, testTime),
		activityRecord(3, 202, 100, 100, "task2", "SERVICE_TASK", records.IntentElementActivated, testTime))

	convertAll(t, converter, documentStore, incidentRecord,
		instanceRecord(5, 100, records.IntentElementTerminated, canceledAt))

	instance := loadInstance(t, documentStore, "100")
	assert.Equal(t, models.InstanceStateCanceled, instance.State)

	for _, id := range []string{"201", "202"} {
		activity := loadActivity(t, documentStore, id)
		assert.Equal(t, models.ActivityStateTerminated, activity.State)
		require.NotNil(t, activity.EndDate)
		assert.Equal(t, canceledAt, *activity.EndDate)
	}

	incident := loadIncident(t, documentStore, "301")
	assert.Equal(t, models.IncidentStateResolved, incident.State)
}

func TestConvertSequenceFlow(t *testing.T) {
	converter, documentStore, _ := newTestConverter(t)

	convertAll(t, converter, documentStore,
		activityRecord(1, 401, 100, 100, "flow1", "SEQUENCE_FLOW", records.IntentSequenceFlowTaken, testTime))

	doc, err := documentStore.Get(t.Context(), store.IndexSequenceFlow, "401")
	require.NoError(t, err)

	flow := &models.SequenceFlow{}
	require.NoError(t, json.Unmarshal(doc.Source, flow))
	assert.Equal(t, "flow1", flow.ActivityID)
	assert.Equal(t, "100", flow.WorkflowInstanceID)
}

func TestConvertVariableUpsertsByScopeAndName(t *testing.T) {
	converter, documentStore, _ := newTestConverter(t)

	created := records.Record{
		Position:  1,
		Key:       100,
		ValueType: records.ValueTypeVariable,
		Intent:    records.IntentVariableCreated,
		Timestamp: testTime,
		Value:     json.RawMessage(`{"name":"total","value":"1","scope_key":100,"workflow_instance_key":100}`),
	}

	updated := records.Record{
		Position:  2,
		Key:       100,
		ValueType: records.ValueTypeVariable,
		Intent:    records.IntentVariableUpdated,
		Timestamp: testTime.Add(time.Second),
		Value:     json.RawMessage(`{"name":"total","value":"2","scope_key":100,"workflow_instance_key":100}`),
	}

	convertAll(t, converter, documentStore, created, updated)

	total, docs, err := documentStore.Search(t.Context(), store.IndexVariable, store.Query{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	variable := &models.Variable{}
	require.NoError(t, json.Unmarshal(docs[0].Source, variable))
	assert.Equal(t, "2", variable.Value)
}

func TestConvertJobRecordsProjectNothing(t *testing.T) {
	converter, documentStore, _ := newTestConverter(t)

	// The feed is known to repeat RETRIES_UPDATED; both deliveries are
	// no-ops either way.
	record := records.Record{
		Position:  1,
		Key:       500,
		ValueType: records.ValueTypeJob,
		Intent:    records.IntentRetriesUpdated,
		Timestamp: testTime,
		Value:     json.RawMessage(`{"type":"charge","workflow_instance_key":100,"element_instance_key":201,"retries":3}`),
	}

	batch := NewBatch(documentStore)
	require.NoError(t, converter.Convert(context.Background(), record, batch))
	require.NoError(t, converter.Convert(context.Background(), record, batch))
	assert.Equal(t, 0, batch.Size())
}
