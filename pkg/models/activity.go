package models

import "time"

// ActivityState represents the stored lifecycle state of a flow-node instance.
type ActivityState string

const (
	ActivityStateActive     ActivityState = "ACTIVE"
	ActivityStateCompleted  ActivityState = "COMPLETED"
	ActivityStateTerminated ActivityState = "TERMINATED"
	ActivityStateIncident   ActivityState = "INCIDENT"
)

// Terminal reports whether the state marks a finished activity.
func (s ActivityState) Terminal() bool {
	return s == ActivityStateCompleted || s == ActivityStateTerminated
}

// ActivityType is the BPMN element type of a flow node.
type ActivityType string

const (
	ActivityTypeStartEvent    ActivityType = "START_EVENT"
	ActivityTypeEndEvent      ActivityType = "END_EVENT"
	ActivityTypeServiceTask   ActivityType = "SERVICE_TASK"
	ActivityTypeSubProcess    ActivityType = "SUB_PROCESS"
	ActivityTypeBoundaryEvent ActivityType = "BOUNDARY_EVENT"
	ActivityTypeGateway       ActivityType = "GATEWAY"
	ActivityTypeUnknown       ActivityType = "UNKNOWN"
)

// Activity is one execution of a BPMN flow node within a workflow instance.
// ParentID points at the enclosing scope: another Activity for nested
// elements, or the WorkflowInstance id for top-level children. The parent
// chain is always a finite tree rooted at the instance.
type Activity struct {
	ID                 string        `json:"id"`
	Key                int64         `json:"key"`
	WorkflowInstanceID string        `json:"workflow_instance_id"`
	ParentID           string        `json:"parent_id"`
	ActivityID         string        `json:"activity_id"`
	Type               ActivityType  `json:"type"`
	State              ActivityState `json:"state"`
	StartDate          time.Time     `json:"start_date"`
	EndDate            *time.Time    `json:"end_date,omitempty"`
	Position           int64         `json:"position"`
}

// DocumentID implements store.Document.
func (a *Activity) DocumentID() string { return a.ID }
