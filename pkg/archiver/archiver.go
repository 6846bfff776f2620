// Package archiver relocates finished workflow instances and their dependent
// documents from the live indices into date-partitioned archive indices once
// they exceed a minimum age. Moves are copy-then-delete per partition group,
// so a crash mid-batch can duplicate documents across partitions but never
// lose them; alias reads deduplicate by id.
package archiver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dukex/flowscope/pkg/eventbus"
	"github.com/dukex/flowscope/pkg/events"
	"github.com/dukex/flowscope/pkg/models"
	"github.com/dukex/flowscope/pkg/otelhelper"
	"github.com/dukex/flowscope/pkg/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Config tunes one archiver instance.
type Config struct {
	// BatchSize caps the instances selected per ArchiveNextBatch call.
	BatchSize int

	// MinimumAge is how long a finished instance stays in the live index
	// before it qualifies for archiving.
	MinimumAge time.Duration

	// DateLayout formats an instance's end date into its partition suffix.
	DateLayout string
}

// DefaultConfig archives hourly-aged instances into daily partitions.
func DefaultConfig() Config {
	return Config{
		BatchSize:  100,
		MinimumAge: time.Hour,
		DateLayout: "2006-01-02",
	}
}

// Archiver moves qualifying instances in groups keyed by their formatted end
// date. One batch runs to completion before the next starts; the scheduler
// guarantees single-flight.
type Archiver struct {
	documentStore store.DocumentStore
	dependants    []store.Dependant
	publisher     eventbus.EventPublisher
	logger        *slog.Logger
	tracer        trace.Tracer
	config        Config

	now func() time.Time
}

// NewArchiver creates an archiver over the registered instance dependants.
// The publisher may be nil when no event bus is wired.
func NewArchiver(
	documentStore store.DocumentStore,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
	config Config,
) *Archiver {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultConfig().BatchSize
	}

	if config.MinimumAge <= 0 {
		config.MinimumAge = DefaultConfig().MinimumAge
	}

	if config.DateLayout == "" {
		config.DateLayout = DefaultConfig().DateLayout
	}

	return &Archiver{
		documentStore: documentStore,
		dependants:    store.InstanceDependants(),
		publisher:     publisher,
		logger:        logger,
		tracer:        otel.Tracer("flowscope/archiver"),
		config:        config,
		now:           time.Now,
	}
}

// ArchiveNextBatch selects up to one page of terminal instances older than
// the minimum age, moves them and their dependents into archive partitions
// grouped by end date, and returns the number of instances moved. It returns
// 0 when nothing qualifies; a group failure stops the batch and the rest is
// retried on the next invocation.
func (a *Archiver) ArchiveNextBatch(ctx context.Context) (int, error) {
	ctx, span := a.tracer.Start(ctx, "archive.batch")
	defer span.End()

	cutoff := a.now().Add(-a.config.MinimumAge)

	query := store.Query{
		Terms: map[string]any{
			"state": []any{
				string(models.InstanceStateCompleted),
				string(models.InstanceStateCanceled),
			},
		},
		EndDateBefore: &cutoff,
		Sorts:         []store.Sort{{Field: "end_date", Order: store.SortAsc}},
		Size:          a.config.BatchSize,
	}

	_, docs, err := a.documentStore.Search(ctx, store.IndexInstance, query)
	if errors.Is(err, store.ErrIndexNotFound) {
		return 0, nil
	}

	if err != nil {
		err = fmt.Errorf("failed to select archivable instances: %w", err)
		otelhelper.SetError(span, err)

		return 0, err
	}

	if len(docs) == 0 {
		return 0, nil
	}

	groups := make(map[string][]string)

	for _, doc := range docs {
		instance := &models.WorkflowInstance{}
		if err := json.Unmarshal(doc.Source, instance); err != nil {
			return 0, fmt.Errorf("corrupt instance document %s: %w", doc.ID, err)
		}

		if instance.EndDate == nil {
			continue
		}

		partition := instance.EndDate.UTC().Format(a.config.DateLayout)
		groups[partition] = append(groups[partition], instance.ID)
	}

	partitions := make([]string, 0, len(groups))
	for partition := range groups {
		partitions = append(partitions, partition)
	}

	sort.Strings(partitions)

	moved := 0

	for _, partition := range partitions {
		if err := a.archiveGroup(ctx, partition, groups[partition]); err != nil {
			otelhelper.SetError(span, err, attribute.String(otelhelper.ArchivePartitionKey, partition))

			return moved, err
		}

		moved += len(groups[partition])

		a.logger.InfoContext(ctx, "Archived instance group",
			"partition", partition, "instances", len(groups[partition]))
	}

	span.SetAttributes(attribute.Int(otelhelper.ArchivedInstancesKey, moved))

	if a.publisher != nil && moved > 0 {
		event := events.InstancesArchived{
			BaseEvent:     events.NewBaseEvent(events.InstancesArchivedEvent),
			InstanceCount: moved,
			Partitions:    partitions,
		}

		if err := a.publisher.Publish(ctx, "archive", event); err != nil {
			a.logger.ErrorContext(ctx, "Failed to publish archive event", "error", err)
		}
	}

	return moved, nil
}

// archiveGroup moves one end-date partition: copy every dependent index,
// copy the instances, then delete dependents and instances from the live
// partition. Deletes never precede their copies, so a failure anywhere
// leaves every document visible through the alias.
func (a *Archiver) archiveGroup(ctx context.Context, partition string, instanceIDs []string) error {
	dependantIDs := make(map[string][]string, len(a.dependants))

	for _, dependant := range a.dependants {
		_, docs, err := a.documentStore.Search(ctx, dependant.Index,
			store.TermQuery(dependant.InstanceKeyField, anySlice(instanceIDs)))
		if errors.Is(err, store.ErrIndexNotFound) {
			continue
		}

		if err != nil {
			return fmt.Errorf("failed to select dependants in %s: %w", dependant.Index, err)
		}

		if len(docs) == 0 {
			continue
		}

		ids := make([]string, len(docs))
		for i, doc := range docs {
			ids[i] = doc.ID
		}

		destination := store.ArchiveIndex(dependant.Index, partition)
		if err := a.documentStore.Reindex(ctx, dependant.Index, destination, ids); err != nil {
			return &ReindexError{Op: "archiveGroup", Index: dependant.Index, Err: err}
		}

		dependantIDs[dependant.Index] = ids
	}

	destination := store.ArchiveIndex(store.IndexInstance, partition)
	if err := a.documentStore.Reindex(ctx, store.IndexInstance, destination, instanceIDs); err != nil {
		return &ReindexError{Op: "archiveGroup", Index: store.IndexInstance, Err: err}
	}

	for _, dependant := range a.dependants {
		ids := dependantIDs[dependant.Index]
		if len(ids) == 0 {
			continue
		}

		if err := a.documentStore.DeleteByIDs(ctx, dependant.Index, ids); err != nil {
			return &PersistenceError{Op: "archiveGroup", Index: dependant.Index, Err: err}
		}
	}

	if err := a.documentStore.DeleteByIDs(ctx, store.IndexInstance, instanceIDs); err != nil {
		return &PersistenceError{Op: "archiveGroup", Index: store.IndexInstance, Err: err}
	}

	return nil
}

func anySlice(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}

	return out
}
