package importer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/dukex/flowscope/pkg/definitions"
	"github.com/dukex/flowscope/pkg/engine"
	"github.com/dukex/flowscope/pkg/engine/enginetest"
	"github.com/dukex/flowscope/pkg/eventbus"
	"github.com/dukex/flowscope/pkg/log"
	"github.com/dukex/flowscope/pkg/records"
	"github.com/dukex/flowscope/pkg/store"
	"github.com/dukex/flowscope/pkg/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturingPublisher struct {
	published []eventbus.Event
}

func (p *capturingPublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	p.published = append(p.published, event)

	return nil
}

func newTestPipeline(t *testing.T, fake *enginetest.Fake, publisher eventbus.EventPublisher, config Config) (*Pipeline, *memory.Store) {
	t.Helper()

	documentStore := memory.NewStore()
	cache := definitions.NewCache(fake, log.WithModule("definitions"))
	converter := NewConverter(cache, log.WithModule("converter"))

	return NewPipeline(fake, documentStore, converter, publisher, log.WithModule("importer"), config), documentStore
}

func testConfig() Config {
	return Config{
		BatchSize:     10,
		WaitDelay:     time.Millisecond,
		MaxWaitRounds: 20,
	}
}

func seedFeed(fake *enginetest.Fake) {
	fake.AddDefinition(engine.Definition{
		WorkflowID:    "10",
		BPMNProcessID: "order",
		Name:          "Order Process",
		Version:       1,
	})

	fake.AddRecord(records.Record{
		Position:  1,
		Key:       10,
		ValueType: records.ValueTypeProcess,
		Intent:    records.IntentCreated,
		Timestamp: testTime,
		Value:     json.RawMessage(`{"bpmn_process_id":"order","version":1,"name":"Order Process"}`),
	})
	fake.AddRecord(instanceRecord(1, 100, records.IntentElementActivated, testTime))
	fake.AddRecord(activityRecord(2, 201, 100, 100, "task1", "SERVICE_TASK", records.IntentElementActivated, testTime))
	fake.AddRecord(records.Record{
		Position:  1,
		Key:       301,
		ValueType: records.ValueTypeIncident,
		Intent:    records.IntentCreated,
		Timestamp: testTime,
		Value:     json.RawMessage(`{"workflow_instance_key":100,"element_id":"task1","element_instance_key":201,"error_type":"JOB_NO_RETRIES","error_message":"boom"}`),
	})
	fake.AddRecord(records.Record{
		Position:  1,
		Key:       100,
		ValueType: records.ValueTypeVariable,
		Intent:    records.IntentVariableCreated,
		Timestamp: testTime,
		Value:     json.RawMessage(`{"name":"total","value":"1","scope_key":100,"workflow_instance_key":100}`),
	})
}

func TestPerformOneRoundImportsAllValueTypes(t *testing.T) {
	fake := enginetest.NewFake()
	seedFeed(fake)

	pipeline, documentStore := newTestPipeline(t, fake, nil, testConfig())

	require.NoError(t, pipeline.PerformOneRound(t.Context()))

	assert.Equal(t, int64(5), pipeline.ScheduledCount())
	assert.Equal(t, int64(5), pipeline.ImportedCount())

	for _, index := range []string{store.IndexProcess, store.IndexInstance, store.IndexActivity, store.IndexIncident, store.IndexVariable} {
		total, _, err := documentStore.Search(t.Context(), index, store.Query{})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total, index)
	}
}

func TestPerformOneRoundPersistsPositions(t *testing.T) {
	fake := enginetest.NewFake()
	seedFeed(fake)

	pipeline, documentStore := newTestPipeline(t, fake, nil, testConfig())

	require.NoError(t, pipeline.PerformOneRound(t.Context()))

	doc, err := documentStore.Get(t.Context(), store.IndexImportPosition, string(records.ValueTypeProcessInstance))
	require.NoError(t, err)

	position := &importPosition{}
	require.NoError(t, json.Unmarshal(doc.Source, position))
	assert.Equal(t, int64(2), position.Position)
}

func TestPerformOneRoundIsIncremental(t *testing.T) {
	fake := enginetest.NewFake()
	seedFeed(fake)

	pipeline, documentStore := newTestPipeline(t, fake, nil, testConfig())

	require.NoError(t, pipeline.PerformOneRound(t.Context()))

	// Nothing new: the second round must not re-import or re-count.
	require.NoError(t, pipeline.PerformOneRound(t.Context()))
	assert.Equal(t, int64(5), pipeline.ImportedCount())

	fake.AddRecord(instanceRecord(3, 100, records.IntentElementCompleted, testTime.Add(time.Minute)))

	require.NoError(t, pipeline.PerformOneRound(t.Context()))
	assert.Equal(t, int64(6), pipeline.ScheduledCount())
	assert.Equal(t, int64(6), pipeline.ImportedCount())

	instance := loadInstance(t, documentStore, "100")
	assert.NotNil(t, instance.EndDate)
}

func TestPerformOneRoundSkipsInvalidRecords(t *testing.T) {
	fake := enginetest.NewFake()
	fake.AddRecord(records.Record{
		Position:  1,
		Key:       100,
		ValueType: records.ValueTypeVariable,
		Intent:    records.IntentVariableCreated,
		Timestamp: testTime,
		Value:     json.RawMessage(`{"value":"1","scope_key":100,"workflow_instance_key":100}`),
	})

	pipeline, documentStore := newTestPipeline(t, fake, nil, testConfig())

	require.NoError(t, pipeline.PerformOneRound(t.Context()))

	// The malformed record is skipped but consumed: the position advances
	// past it so the next round does not fetch it again.
	assert.Equal(t, int64(1), pipeline.ImportedCount())

	total, _, err := documentStore.Search(t.Context(), store.IndexVariable, store.Query{})
	require.NoError(t, err)
	assert.Zero(t, total)

	doc, err := documentStore.Get(t.Context(), store.IndexImportPosition, string(records.ValueTypeVariable))
	require.NoError(t, err)

	position := &importPosition{}
	require.NoError(t, json.Unmarshal(doc.Source, position))
	assert.Equal(t, int64(1), position.Position)
}

func TestPerformOneRoundPublishesRoundEvent(t *testing.T) {
	fake := enginetest.NewFake()
	seedFeed(fake)

	publisher := &capturingPublisher{}
	pipeline, _ := newTestPipeline(t, fake, publisher, testConfig())

	require.NoError(t, pipeline.PerformOneRound(t.Context()))
	require.Len(t, publisher.published, 1)

	// An empty round stays silent.
	require.NoError(t, pipeline.PerformOneRound(t.Context()))
	assert.Len(t, publisher.published, 1)
}

func TestWaitUntilCaughtUpRecoversFromFlakyFeed(t *testing.T) {
	fake := enginetest.NewFake()
	seedFeed(fake)

	fake.ExportError = errors.New("connection reset")
	fake.FailExportsRemaining = 2

	pipeline, _ := newTestPipeline(t, fake, nil, testConfig())

	require.NoError(t, pipeline.WaitUntilCaughtUp(t.Context()))
	assert.Equal(t, pipeline.ScheduledCount(), pipeline.ImportedCount())
	assert.Equal(t, int64(5), pipeline.ImportedCount())
}

func TestWaitUntilCaughtUpTimesOut(t *testing.T) {
	fake := enginetest.NewFake()
	seedFeed(fake)

	fake.ExportError = errors.New("connection reset")
	fake.FailExportsRemaining = 1 << 20

	config := testConfig()
	config.MaxWaitRounds = 3

	pipeline, _ := newTestPipeline(t, fake, nil, config)

	err := pipeline.WaitUntilCaughtUp(t.Context())
	require.ErrorIs(t, err, ErrImportTimeout)
}

func TestWaitUntilCaughtUpHonorsContext(t *testing.T) {
	fake := enginetest.NewFake()
	seedFeed(fake)

	fake.ExportError = errors.New("connection reset")
	fake.FailExportsRemaining = 1 << 20

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	pipeline, _ := newTestPipeline(t, fake, nil, testConfig())

	err := pipeline.WaitUntilCaughtUp(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestStatusReadsSharedPositions(t *testing.T) {
	fake := enginetest.NewFake()
	seedFeed(fake)

	worker, documentStore := newTestPipeline(t, fake, nil, testConfig())

	// A second pipeline over the same store, as the API process has: its own
	// counters never move, yet its status must reflect the shared positions.
	cache := definitions.NewCache(fake, log.WithModule("definitions"))
	observer := NewPipeline(fake, documentStore, NewConverter(cache, log.WithModule("converter")),
		nil, log.WithModule("importer"), testConfig())

	_, caughtUp, err := observer.Status(t.Context())
	require.NoError(t, err)
	assert.False(t, caughtUp, "records are pending before any round ran")

	require.NoError(t, worker.WaitUntilCaughtUp(t.Context()))

	positions, caughtUp, err := observer.Status(t.Context())
	require.NoError(t, err)
	assert.True(t, caughtUp)
	assert.Zero(t, observer.ImportedCount())

	byType := make(map[string]int64, len(positions))
	for _, position := range positions {
		byType[position.ValueType] = position.Position
	}

	assert.Equal(t, int64(2), byType[string(records.ValueTypeProcessInstance)])
	assert.Equal(t, int64(1), byType[string(records.ValueTypeIncident)])
	assert.Equal(t, int64(1), byType[string(records.ValueTypeVariable)])
}

func TestResetCounters(t *testing.T) {
	fake := enginetest.NewFake()
	seedFeed(fake)

	pipeline, _ := newTestPipeline(t, fake, nil, testConfig())

	require.NoError(t, pipeline.PerformOneRound(t.Context()))
	require.Equal(t, int64(5), pipeline.ImportedCount())

	pipeline.ResetCounters()

	assert.Zero(t, pipeline.ScheduledCount())
	assert.Zero(t, pipeline.ImportedCount())

	// New records after a reset are counted from zero.
	fake.AddRecord(instanceRecord(3, 100, records.IntentElementCompleted, testTime.Add(time.Minute)))

	require.NoError(t, pipeline.PerformOneRound(t.Context()))
	assert.Equal(t, int64(1), pipeline.ScheduledCount())
	assert.Equal(t, int64(1), pipeline.ImportedCount())
}
