// Package importer pulls the engine's exported event log into the document
// store, one batch per record value type per round.
package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dukex/flowscope/pkg/engine"
	"github.com/dukex/flowscope/pkg/eventbus"
	"github.com/dukex/flowscope/pkg/events"
	"github.com/dukex/flowscope/pkg/otelhelper"
	"github.com/dukex/flowscope/pkg/records"
	"github.com/dukex/flowscope/pkg/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrImportTimeout is returned by WaitUntilCaughtUp when the imported count
// never reaches the scheduled count within the configured rounds.
var ErrImportTimeout = errors.New("import did not catch up in time")

// Config tunes one pipeline instance.
type Config struct {
	// BatchSize caps the records fetched per value type per round.
	BatchSize int

	// WaitDelay is the fixed sleep between catch-up rounds.
	WaitDelay time.Duration

	// MaxWaitRounds bounds WaitUntilCaughtUp before it times out.
	MaxWaitRounds int
}

// DefaultConfig matches the scheduler's expectations for a periodic import.
func DefaultConfig() Config {
	return Config{
		BatchSize:     200,
		WaitDelay:     100 * time.Millisecond,
		MaxWaitRounds: 50,
	}
}

// importPosition tracks the last imported stream position per value type.
type importPosition struct {
	ID        string `json:"id"`
	ValueType string `json:"value_type"`
	Position  int64  `json:"position"`
}

func (p *importPosition) DocumentID() string { return p.ID }

// Pipeline drains the exported record feed into the store. One round per
// invocation; rounds of the same pipeline never overlap (the scheduler
// guarantees single-flight), but rounds run concurrently with the archiver,
// the executor and query traffic.
type Pipeline struct {
	engineClient  engine.Client
	documentStore store.DocumentStore
	converter     *Converter
	publisher     eventbus.EventPublisher
	logger        *slog.Logger
	tracer        trace.Tracer
	config        Config

	scheduledCount atomic.Int64
	importedCount  atomic.Int64

	// scheduledPositions remembers the highest position already counted
	// into scheduledCount per value type, so a retried round does not count
	// the same records twice.
	mu                 sync.Mutex
	scheduledPositions map[records.ValueType]int64
}

// NewPipeline creates an import pipeline. The publisher may be nil when no
// event bus is wired (tests, one-shot imports).
func NewPipeline(
	engineClient engine.Client,
	documentStore store.DocumentStore,
	converter *Converter,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
	config Config,
) *Pipeline {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultConfig().BatchSize
	}

	if config.WaitDelay <= 0 {
		config.WaitDelay = DefaultConfig().WaitDelay
	}

	if config.MaxWaitRounds <= 0 {
		config.MaxWaitRounds = DefaultConfig().MaxWaitRounds
	}

	return &Pipeline{
		engineClient:       engineClient,
		documentStore:      documentStore,
		converter:          converter,
		publisher:          publisher,
		logger:             logger,
		tracer:             otel.Tracer("flowscope/importer"),
		config:             config,
		scheduledPositions: make(map[records.ValueType]int64),
	}
}

// PerformOneRound fetches, converts and flushes one batch per record value
// type. A failed round leaves the imported counter and the persisted
// positions unchanged for the failed types; the next round re-reads them.
func (p *Pipeline) PerformOneRound(ctx context.Context) error {
	ctx, span := p.tracer.Start(ctx, "import.round")
	defer span.End()

	roundTotal := 0

	for _, valueType := range records.AllValueTypes() {
		imported, err := p.importValueType(ctx, valueType)
		if err != nil {
			err = fmt.Errorf("import round failed for %s: %w", valueType, err)
			otelhelper.SetError(span, err, attribute.String(otelhelper.ValueTypeKey, string(valueType)))

			return err
		}

		roundTotal += imported
	}

	span.SetAttributes(attribute.Int(otelhelper.ImportedRecordsKey, roundTotal))

	if p.publisher != nil && roundTotal > 0 {
		event := events.ImportRoundFinished{
			BaseEvent:   events.NewBaseEvent(events.ImportRoundFinishedEvent),
			RecordCount: roundTotal,
			Imported:    p.ImportedCount(),
			Scheduled:   p.ScheduledCount(),
		}

		if err := p.publisher.Publish(ctx, "import", event); err != nil {
			p.logger.ErrorContext(ctx, "Failed to publish import round event", "error", err)
		}
	}

	return nil
}

func (p *Pipeline) importValueType(ctx context.Context, valueType records.ValueType) (int, error) {
	lastPosition, err := p.lastImportedPosition(ctx, valueType)
	if err != nil {
		return 0, err
	}

	batchRecords, err := p.engineClient.ExportedRecords(ctx, valueType, lastPosition, p.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch exported records: %w", err)
	}

	if len(batchRecords) == 0 {
		return 0, nil
	}

	p.markScheduled(valueType, batchRecords)

	batch := NewBatch(p.documentStore)

	highestPosition := lastPosition

	for _, record := range batchRecords {
		if err := records.Validate(record); err != nil {
			if errors.Is(err, records.ErrUnsupportedValueType) {
				p.logger.WarnContext(ctx, "Skipping unsupported record",
					"value_type", record.ValueType, "position", record.Position)
			} else {
				p.logger.WarnContext(ctx, "Skipping invalid record", "error", err)
			}

			highestPosition = record.Position

			continue
		}

		if err := p.converter.Convert(ctx, record, batch); err != nil {
			return 0, err
		}

		highestPosition = record.Position
	}

	if err := batch.Put(store.IndexImportPosition, &importPosition{
		ID:        string(valueType),
		ValueType: string(valueType),
		Position:  highestPosition,
	}); err != nil {
		return 0, err
	}

	if err := batch.Flush(ctx); err != nil {
		return 0, err
	}

	p.importedCount.Add(int64(len(batchRecords)))

	p.logger.DebugContext(ctx, "Imported record batch",
		"value_type", valueType,
		"records", len(batchRecords),
		"position", highestPosition)

	return len(batchRecords), nil
}

func (p *Pipeline) lastImportedPosition(ctx context.Context, valueType records.ValueType) (int64, error) {
	doc, err := p.documentStore.Get(ctx, store.IndexImportPosition, string(valueType))
	if errors.Is(err, store.ErrDocumentNotFound) || errors.Is(err, store.ErrIndexNotFound) {
		return 0, nil
	}

	if err != nil {
		return 0, fmt.Errorf("failed to read import position for %s: %w", valueType, err)
	}

	position := &importPosition{}
	if err := json.Unmarshal(doc.Source, position); err != nil {
		return 0, fmt.Errorf("corrupt import position for %s: %w", valueType, err)
	}

	return position.Position, nil
}

// markScheduled counts only records not seen by an earlier (possibly
// failed) round into the scheduled counter.
func (p *Pipeline) markScheduled(valueType records.ValueType, batch []records.Record) {
	p.mu.Lock()
	defer p.mu.Unlock()

	counted := p.scheduledPositions[valueType]
	fresh := 0

	for _, record := range batch {
		if record.Position > counted {
			fresh++
			counted = record.Position
		}
	}

	p.scheduledPositions[valueType] = counted
	p.scheduledCount.Add(int64(fresh))
}

// WaitUntilCaughtUp performs rounds with a fixed sleep between them until
// every scheduled record has been imported, or the round budget is spent.
func (p *Pipeline) WaitUntilCaughtUp(ctx context.Context) error {
	for attempt := range p.config.MaxWaitRounds {
		err := p.PerformOneRound(ctx)
		if err != nil {
			p.logger.ErrorContext(ctx, "Import round failed, retrying",
				"attempt", attempt+1, "error", err)
		} else if p.ImportedCount() == p.ScheduledCount() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.config.WaitDelay):
		}
	}

	return fmt.Errorf("%w after %d rounds (imported %d of %d)",
		ErrImportTimeout, p.config.MaxWaitRounds, p.ImportedCount(), p.ScheduledCount())
}

// ValueTypeStatus is one value type's persisted import progress.
type ValueTypeStatus struct {
	ValueType string `json:"value_type"`
	Position  int64  `json:"position"`
}

// Status reads the persisted stream positions and peeks the feed for records
// beyond them. Positions live in the document store, so the report is
// accurate even when the rounds run in a different process; the session
// counters are not consulted.
func (p *Pipeline) Status(ctx context.Context) ([]ValueTypeStatus, bool, error) {
	positions := make([]ValueTypeStatus, 0, len(records.AllValueTypes()))
	caughtUp := true

	for _, valueType := range records.AllValueTypes() {
		position, err := p.lastImportedPosition(ctx, valueType)
		if err != nil {
			return nil, false, err
		}

		pending, err := p.engineClient.ExportedRecords(ctx, valueType, position, 1)
		if err != nil {
			return nil, false, fmt.Errorf("failed to peek exported records for %s: %w", valueType, err)
		}

		if len(pending) > 0 {
			caughtUp = false
		}

		positions = append(positions, ValueTypeStatus{
			ValueType: string(valueType),
			Position:  position,
		})
	}

	return positions, caughtUp, nil
}

// ScheduledCount returns the records observed this session.
func (p *Pipeline) ScheduledCount() int64 {
	return p.scheduledCount.Load()
}

// ImportedCount returns the records successfully written this session.
func (p *Pipeline) ImportedCount() int64 {
	return p.importedCount.Load()
}

// ResetCounters zeroes both counters. It must not be called while a round
// is in flight; callers reset between wait cycles.
func (p *Pipeline) ResetCounters() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.scheduledCount.Store(0)
	p.importedCount.Store(0)
	p.scheduledPositions = make(map[records.ValueType]int64)
}
