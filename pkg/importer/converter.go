package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/dukex/flowscope/pkg/definitions"
	"github.com/dukex/flowscope/pkg/models"
	"github.com/dukex/flowscope/pkg/records"
	"github.com/dukex/flowscope/pkg/store"
)

// Converter maps one exported record onto zero or more document upserts.
// Conversion is idempotent: each projected document carries the position of
// the last record applied to it, and older records never overwrite newer
// state, so replaying the at-least-once feed converges to the same index.
type Converter struct {
	cache  *definitions.Cache
	logger *slog.Logger
}

// NewConverter creates a converter consulting the given definition cache.
func NewConverter(cache *definitions.Cache, logger *slog.Logger) *Converter {
	return &Converter{cache: cache, logger: logger}
}

// Convert applies one record to the batch. Unknown intents are skipped, not
// fatal; a conversion error fails the round so the caller can retry it.
func (c *Converter) Convert(ctx context.Context, record records.Record, batch *Batch) error {
	switch record.ValueType {
	case records.ValueTypeProcess:
		return c.convertProcess(record, batch)
	case records.ValueTypeProcessInstance:
		return c.convertProcessInstance(ctx, record, batch)
	case records.ValueTypeIncident:
		return c.convertIncident(ctx, record, batch)
	case records.ValueTypeVariable:
		return c.convertVariable(ctx, record, batch)
	case records.ValueTypeJob:
		// Job records carry no projected state of their own; retries and
		// failures surface through INCIDENT records. The feed is known to
		// repeat RETRIES_UPDATED, so there is nothing safe to project here.
		return nil
	default:
		c.logger.WarnContext(ctx, "Skipping record of unsupported value type",
			"value_type", record.ValueType, "position", record.Position)

		return nil
	}
}

func (c *Converter) convertProcess(record records.Record, batch *Batch) error {
	var value records.ProcessValue
	if err := json.Unmarshal(record.Value, &value); err != nil {
		return fmt.Errorf("failed to decode PROCESS record at position %d: %w", record.Position, err)
	}

	workflow := &models.Workflow{
		ID:            keyString(record.Key),
		Key:           record.Key,
		BPMNProcessID: value.BPMNProcessID,
		Version:       value.Version,
		Name:          value.Name,
		BPMNXML:       value.BPMNXML,
	}

	return batch.Put(store.IndexProcess, workflow)
}

func (c *Converter) convertProcessInstance(ctx context.Context, record records.Record, batch *Batch) error {
	var value records.ProcessInstanceValue
	if err := json.Unmarshal(record.Value, &value); err != nil {
		return fmt.Errorf("failed to decode PROCESS_INSTANCE record at position %d: %w", record.Position, err)
	}

	switch value.ElementType {
	case records.ElementTypeProcess:
		return c.convertInstanceElement(ctx, record, value, batch)
	case records.ElementTypeSequenceFlow:
		if record.Intent != records.IntentSequenceFlowTaken {
			return nil
		}

		flow := &models.SequenceFlow{
			ID:                 keyString(record.Key),
			ActivityID:         value.ElementID,
			WorkflowInstanceID: keyString(value.WorkflowInstanceKey),
		}

		return batch.Put(store.IndexSequenceFlow, flow)
	default:
		return c.convertActivityElement(ctx, record, value, batch)
	}
}

func (c *Converter) convertInstanceElement(ctx context.Context, record records.Record, value records.ProcessInstanceValue, batch *Batch) error {
	id := keyString(value.WorkflowInstanceKey)

	instance := &models.WorkflowInstance{}

	exists, err := batch.Get(ctx, store.IndexInstance, id, instance)
	if err != nil {
		return err
	}

	if exists && instance.Position >= record.Position {
		return nil
	}

	if !exists {
		instance.ID = id
		instance.Key = value.WorkflowInstanceKey
		instance.State = models.InstanceStateActive
	}

	if value.WorkflowKey != 0 {
		instance.WorkflowID = keyString(value.WorkflowKey)

		name, err := c.cache.WorkflowName(ctx, instance.WorkflowID)
		if err != nil {
			return err
		}

		version, err := c.cache.WorkflowVersion(ctx, instance.WorkflowID)
		if err != nil {
			return err
		}

		if name != nil {
			instance.WorkflowName = *name
		} else {
			instance.WorkflowName = value.BPMNProcessID
		}

		if version != nil {
			instance.WorkflowVersion = *version
		}
	}

	switch record.Intent {
	case records.IntentElementActivated:
		instance.State = models.InstanceStateActive
		instance.StartDate = record.Timestamp
		instance.EndDate = nil
	case records.IntentElementCompleted:
		instance.State = models.InstanceStateCompleted
		endDate := record.Timestamp
		instance.EndDate = &endDate
	case records.IntentElementTerminated:
		instance.State = models.InstanceStateCanceled
		endDate := record.Timestamp
		instance.EndDate = &endDate

		if err := c.propagateCancellation(ctx, id, record.Timestamp, batch); err != nil {
			return err
		}
	default:
		c.logger.DebugContext(ctx, "Skipping instance record with unhandled intent",
			"intent", record.Intent, "position", record.Position)

		return nil
	}

	instance.Position = record.Position

	return batch.Put(store.IndexInstance, instance)
}

func (c *Converter) convertActivityElement(ctx context.Context, record records.Record, value records.ProcessInstanceValue, batch *Batch) error {
	id := keyString(record.Key)

	activity := &models.Activity{}

	exists, err := batch.Get(ctx, store.IndexActivity, id, activity)
	if err != nil {
		return err
	}

	if exists && activity.Position >= record.Position {
		return nil
	}

	if !exists {
		activity.ID = id
		activity.Key = record.Key
		activity.State = models.ActivityStateActive
	}

	activity.WorkflowInstanceID = keyString(value.WorkflowInstanceKey)
	activity.ActivityID = value.ElementID
	activity.Type = activityType(value.ElementType)

	if value.FlowScopeKey == value.WorkflowInstanceKey || value.FlowScopeKey == 0 {
		activity.ParentID = activity.WorkflowInstanceID
	} else {
		activity.ParentID = keyString(value.FlowScopeKey)
	}

	switch record.Intent {
	case records.IntentElementActivated:
		activity.State = models.ActivityStateActive
		activity.StartDate = record.Timestamp
		activity.EndDate = nil
	case records.IntentElementCompleted:
		activity.State = models.ActivityStateCompleted
		endDate := record.Timestamp
		activity.EndDate = &endDate
	case records.IntentElementTerminated:
		activity.State = models.ActivityStateTerminated
		endDate := record.Timestamp
		activity.EndDate = &endDate
	default:
		c.logger.DebugContext(ctx, "Skipping activity record with unhandled intent",
			"intent", record.Intent, "position", record.Position)

		return nil
	}

	activity.Position = record.Position

	return batch.Put(store.IndexActivity, activity)
}

func (c *Converter) convertIncident(ctx context.Context, record records.Record, batch *Batch) error {
	var value records.IncidentValue
	if err := json.Unmarshal(record.Value, &value); err != nil {
		return fmt.Errorf("failed to decode INCIDENT record at position %d: %w", record.Position, err)
	}

	id := keyString(record.Key)

	incident := &models.Incident{}

	exists, err := batch.Get(ctx, store.IndexIncident, id, incident)
	if err != nil {
		return err
	}

	if exists && incident.Position >= record.Position {
		return nil
	}

	if !exists {
		incident.ID = id
		incident.Key = record.Key
	}

	// Some feed versions omit the workflow instance key on follow-up
	// incident records; the previously imported document keeps it.
	if value.WorkflowInstanceKey != 0 {
		incident.WorkflowInstanceID = keyString(value.WorkflowInstanceKey)
	}

	if value.ElementID != "" {
		incident.ActivityID = value.ElementID
	}

	if value.ElementInstanceKey != 0 {
		incident.ActivityInstanceID = keyString(value.ElementInstanceKey)
	}

	if value.ErrorType != "" {
		incident.ErrorType = value.ErrorType
	}

	if value.ErrorMessage != "" {
		incident.ErrorMessage = strings.TrimSpace(value.ErrorMessage)
	}

	if value.JobKey != nil {
		jobID := keyString(*value.JobKey)
		incident.JobID = &jobID
	}

	switch record.Intent {
	case records.IntentCreated:
		incident.State = models.IncidentStateActive
		incident.CreationTime = record.Timestamp
	case records.IntentResolved:
		incident.State = models.IncidentStateResolved
	case records.IntentDeleted:
		incident.State = models.IncidentStateDeleted
	default:
		c.logger.DebugContext(ctx, "Skipping incident record with unhandled intent",
			"intent", record.Intent, "position", record.Position)

		return nil
	}

	incident.Position = record.Position

	return batch.Put(store.IndexIncident, incident)
}

func (c *Converter) convertVariable(ctx context.Context, record records.Record, batch *Batch) error {
	var value records.VariableValue
	if err := json.Unmarshal(record.Value, &value); err != nil {
		return fmt.Errorf("failed to decode VARIABLE record at position %d: %w", record.Position, err)
	}

	scopeID := keyString(value.ScopeKey)
	id := models.VariableID(scopeID, value.Name)

	variable := &models.Variable{}

	exists, err := batch.Get(ctx, store.IndexVariable, id, variable)
	if err != nil {
		return err
	}

	if exists && variable.Position >= record.Position {
		return nil
	}

	variable.ID = id
	variable.Name = value.Name
	variable.Value = value.Value
	variable.ScopeID = scopeID
	variable.WorkflowInstanceID = keyString(value.WorkflowInstanceKey)
	variable.Position = record.Position

	return batch.Put(store.IndexVariable, variable)
}

// propagateCancellation terminates every still-active activity and resolves
// every still-active incident of a canceled instance, stamping the
// cancellation time as the end date.
func (c *Converter) propagateCancellation(ctx context.Context, instanceID string, canceledAt time.Time, batch *Batch) error {
	activities, err := batch.DocumentsMatching(ctx, store.IndexActivity, "workflow_instance_id", instanceID)
	if err != nil {
		return err
	}

	for _, source := range activities {
		activity := &models.Activity{}
		if err := json.Unmarshal(source, activity); err != nil {
			return fmt.Errorf("corrupt activity document: %w", err)
		}

		if activity.State != models.ActivityStateActive {
			continue
		}

		endDate := canceledAt
		activity.State = models.ActivityStateTerminated
		activity.EndDate = &endDate

		if err := batch.Put(store.IndexActivity, activity); err != nil {
			return err
		}
	}

	incidents, err := batch.DocumentsMatching(ctx, store.IndexIncident, "workflow_instance_id", instanceID)
	if err != nil {
		return err
	}

	for _, source := range incidents {
		incident := &models.Incident{}
		if err := json.Unmarshal(source, incident); err != nil {
			return fmt.Errorf("corrupt incident document: %w", err)
		}

		if incident.State != models.IncidentStateActive {
			continue
		}

		incident.State = models.IncidentStateResolved

		if err := batch.Put(store.IndexIncident, incident); err != nil {
			return err
		}
	}

	return nil
}

func activityType(elementType string) models.ActivityType {
	switch models.ActivityType(elementType) {
	case models.ActivityTypeStartEvent,
		models.ActivityTypeEndEvent,
		models.ActivityTypeServiceTask,
		models.ActivityTypeSubProcess,
		models.ActivityTypeBoundaryEvent,
		models.ActivityTypeGateway:
		return models.ActivityType(elementType)
	}

	return models.ActivityTypeUnknown
}

func keyString(key int64) string {
	return strconv.FormatInt(key, 10)
}
