package models

import "time"

// IncidentState represents the lifecycle state of an incident.
type IncidentState string

const (
	IncidentStateActive   IncidentState = "ACTIVE"
	IncidentStateResolved IncidentState = "RESOLVED"
	IncidentStateDeleted  IncidentState = "DELETED"
)

// Incident is an engine-recorded failure attached to an activity scope.
// ErrorMessage is stored with leading and trailing whitespace trimmed.
// JobID is set only for job-related incidents.
type Incident struct {
	ID                 string        `json:"id"`
	Key                int64         `json:"key"`
	WorkflowInstanceID string        `json:"workflow_instance_id"`
	ActivityID         string        `json:"activity_id"`
	ActivityInstanceID string        `json:"activity_instance_id"`
	ErrorType          string        `json:"error_type"`
	ErrorMessage       string        `json:"error_message"`
	JobID              *string       `json:"job_id,omitempty"`
	State              IncidentState `json:"state"`
	CreationTime       time.Time     `json:"creation_time"`
	Position           int64         `json:"position"`
}

// DocumentID implements store.Document.
func (i *Incident) DocumentID() string { return i.ID }
