// Package events defines the lifecycle notifications published on the event
// bus by the importer, archiver and operation executor.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic is the bus topic all lifecycle events share.
const Topic = "flowscope.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	ImportRoundFinishedEvent EventType = "import.round.finished"
	InstancesArchivedEvent   EventType = "archive.instances.archived"
	OperationCompletedEvent  EventType = "operation.completed"
	OperationFailedEvent     EventType = "operation.failed"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewBaseEvent stamps a fresh event envelope.
func NewBaseEvent(eventType EventType) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
	}
}

// ImportRoundFinished reports one completed round of the import pipeline.
type ImportRoundFinished struct {
	BaseEvent

	RecordCount int   `json:"record_count"`
	Imported    int64 `json:"imported"`
	Scheduled   int64 `json:"scheduled"`
}

func (e ImportRoundFinished) GetType() EventType {
	return ImportRoundFinishedEvent
}

// InstancesArchived reports one archiver batch that moved instances into
// date-partitioned cold storage.
type InstancesArchived struct {
	BaseEvent

	InstanceCount int      `json:"instance_count"`
	Partitions    []string `json:"partitions,omitempty"`
}

func (e InstancesArchived) GetType() EventType {
	return InstancesArchivedEvent
}

// OperationCompleted reports a single batch operation that reached COMPLETED.
type OperationCompleted struct {
	BaseEvent

	OperationID        string `json:"operation_id"`
	BatchID            string `json:"batch_id"`
	WorkflowInstanceID string `json:"workflow_instance_id"`
	OperationType      string `json:"operation_type"`
}

func (e OperationCompleted) GetType() EventType {
	return OperationCompletedEvent
}

// OperationFailed reports a single batch operation that reached FAILED.
type OperationFailed struct {
	BaseEvent

	OperationID        string `json:"operation_id"`
	BatchID            string `json:"batch_id"`
	WorkflowInstanceID string `json:"workflow_instance_id"`
	OperationType      string `json:"operation_type"`
	ErrorMessage       string `json:"error_message"`
}

func (e OperationFailed) GetType() EventType {
	return OperationFailedEvent
}
