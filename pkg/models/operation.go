package models

import "time"

// OperationType identifies the engine command a scheduled operation issues.
type OperationType string

const (
	OperationTypeCancelWorkflowInstance OperationType = "CANCEL_WORKFLOW_INSTANCE"
	OperationTypeResolveIncident        OperationType = "RESOLVE_INCIDENT"
	OperationTypeUpdateRetries          OperationType = "UPDATE_RETRIES"
	OperationTypeUpdateVariable         OperationType = "UPDATE_VARIABLE"
)

// Valid reports whether the operation type is one the executor can dispatch.
func (t OperationType) Valid() bool {
	switch t {
	case OperationTypeCancelWorkflowInstance,
		OperationTypeResolveIncident,
		OperationTypeUpdateRetries,
		OperationTypeUpdateVariable:
		return true
	}

	return false
}

// OperationState represents the lifecycle state of a scheduled operation.
type OperationState string

const (
	OperationStateScheduled OperationState = "SCHEDULED"
	OperationStateLocked    OperationState = "LOCKED"
	OperationStateCompleted OperationState = "COMPLETED"
	OperationStateFailed    OperationState = "FAILED"
)

// Terminal reports whether the operation has reached a final state.
func (s OperationState) Terminal() bool {
	return s == OperationStateCompleted || s == OperationStateFailed
}

// Operation is one user-requested mutation against a single workflow
// instance, persisted by the batch writer and driven to a terminal state by
// the executor. EndDate is set exactly when the state becomes terminal.
type Operation struct {
	ID                 string         `json:"id"`
	BatchID            string         `json:"batch_id"`
	WorkflowInstanceID string         `json:"workflow_instance_id"`
	Type               OperationType  `json:"type"`
	State              OperationState `json:"state"`
	StartDate          time.Time      `json:"start_date"`
	EndDate            *time.Time     `json:"end_date,omitempty"`
	ErrorMessage       string         `json:"error_message,omitempty"`

	// Command parameters. Which ones are set depends on Type.
	InstanceKey   int64  `json:"instance_key,omitempty"`
	IncidentKey   int64  `json:"incident_key,omitempty"`
	JobKey        int64  `json:"job_key,omitempty"`
	Retries       int32  `json:"retries,omitempty"`
	ScopeKey      int64  `json:"scope_key,omitempty"`
	VariableName  string `json:"variable_name,omitempty"`
	VariableValue string `json:"variable_value,omitempty"`
}

// DocumentID implements store.Document.
func (o *Operation) DocumentID() string { return o.ID }
