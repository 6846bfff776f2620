// Package models defines the persisted entities of the monitoring index.
package models

import "time"

// InstanceState represents the lifecycle state of a workflow instance.
type InstanceState string

const (
	InstanceStateActive    InstanceState = "ACTIVE"
	InstanceStateCompleted InstanceState = "COMPLETED"
	InstanceStateCanceled  InstanceState = "CANCELED"

	// InstanceStateIncident is never stored; it is the effective state
	// rendered when any activity of the instance carries an active incident.
	InstanceStateIncident InstanceState = "INCIDENT"
)

// Terminal reports whether the state marks a finished instance.
func (s InstanceState) Terminal() bool {
	return s == InstanceStateCompleted || s == InstanceStateCanceled
}

// WorkflowInstance is one execution of a deployed workflow definition.
// The engine assigns both the string id and the numeric key.
type WorkflowInstance struct {
	ID              string        `json:"id"`
	Key             int64         `json:"key"`
	WorkflowID      string        `json:"workflow_id"`
	WorkflowName    string        `json:"workflow_name"`
	WorkflowVersion int32         `json:"workflow_version"`
	State           InstanceState `json:"state"`
	StartDate       time.Time     `json:"start_date"`
	EndDate         *time.Time    `json:"end_date,omitempty"`

	// Position is the export-stream position of the last record applied to
	// this document. Conversion is last-write-wins on it, so replaying the
	// feed is idempotent.
	Position int64 `json:"position"`
}

// DocumentID implements store.Document.
func (w *WorkflowInstance) DocumentID() string { return w.ID }
