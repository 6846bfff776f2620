// Package records defines the engine's exported event-log records consumed
// by the import pipeline. Records are immutable, strictly ordered per value
// type by their stream position, and may be delivered more than once.
package records

import (
	"encoding/json"
	"time"
)

// ValueType partitions the export stream by record kind.
type ValueType string

const (
	ValueTypeProcess         ValueType = "PROCESS"
	ValueTypeProcessInstance ValueType = "PROCESS_INSTANCE"
	ValueTypeIncident        ValueType = "INCIDENT"
	ValueTypeVariable        ValueType = "VARIABLE"
	ValueTypeJob             ValueType = "JOB"
)

// AllValueTypes returns every value type in the fixed order the import
// pipeline drains them. PROCESS comes first so definition metadata exists
// before instance records reference it; ordering across the other types is
// not guaranteed by the feed and conversion does not rely on it.
func AllValueTypes() []ValueType {
	return []ValueType{
		ValueTypeProcess,
		ValueTypeProcessInstance,
		ValueTypeIncident,
		ValueTypeVariable,
		ValueTypeJob,
	}
}

// Intent is the state transition a record describes.
type Intent string

const (
	// Process-instance element intents.
	IntentElementActivated  Intent = "ELEMENT_ACTIVATED"
	IntentElementCompleted  Intent = "ELEMENT_COMPLETED"
	IntentElementTerminated Intent = "ELEMENT_TERMINATED"
	IntentSequenceFlowTaken Intent = "SEQUENCE_FLOW_TAKEN"

	// Incident intents.
	IntentCreated  Intent = "CREATED"
	IntentResolved Intent = "RESOLVED"
	IntentDeleted  Intent = "DELETED"

	// Variable intents.
	IntentVariableCreated Intent = "VARIABLE_CREATED"
	IntentVariableUpdated Intent = "VARIABLE_UPDATED"

	// Job intents.
	IntentJobCreated     Intent = "JOB_CREATED"
	IntentJobCompleted   Intent = "JOB_COMPLETED"
	IntentJobFailed      Intent = "JOB_FAILED"
	IntentRetriesUpdated Intent = "RETRIES_UPDATED"
)

// Record is one entry of the exported event log. Key is the engine-native
// identity of the subject (element instance, incident, variable scope, job);
// Position is the record's offset within its value-type partition.
type Record struct {
	Position  int64           `json:"position"`
	Key       int64           `json:"key"`
	ValueType ValueType       `json:"value_type"`
	Intent    Intent          `json:"intent"`
	Timestamp time.Time       `json:"timestamp"`
	Value     json.RawMessage `json:"value"`
}

// ElementType mirrors the BPMN element type in process-instance records.
// PROCESS marks the instance-level element itself.
const (
	ElementTypeProcess      = "PROCESS"
	ElementTypeSequenceFlow = "SEQUENCE_FLOW"
)

// ProcessInstanceValue is the payload of PROCESS_INSTANCE records. The
// record key identifies the element instance; for ElementType PROCESS it is
// the workflow-instance key itself.
type ProcessInstanceValue struct {
	BPMNProcessID       string `json:"bpmn_process_id"`
	WorkflowKey         int64  `json:"workflow_key"`
	WorkflowInstanceKey int64  `json:"workflow_instance_key"`
	ElementID           string `json:"element_id"`
	ElementType         string `json:"element_type"`

	// FlowScopeKey is the key of the enclosing scope's element instance;
	// it equals WorkflowInstanceKey for top-level elements.
	FlowScopeKey int64 `json:"flow_scope_key"`
}

// IncidentValue is the payload of INCIDENT records. WorkflowInstanceKey may
// be absent on some feed versions; conversion falls back to the previously
// imported incident document in that case.
type IncidentValue struct {
	WorkflowInstanceKey int64  `json:"workflow_instance_key,omitempty"`
	ElementID           string `json:"element_id"`
	ElementInstanceKey  int64  `json:"element_instance_key"`
	ErrorType           string `json:"error_type"`
	ErrorMessage        string `json:"error_message"`
	JobKey              *int64 `json:"job_key,omitempty"`
}

// VariableValue is the payload of VARIABLE records. Value carries the raw
// JSON encoding of the variable.
type VariableValue struct {
	Name                string `json:"name"`
	Value               string `json:"value"`
	ScopeKey            int64  `json:"scope_key"`
	WorkflowInstanceKey int64  `json:"workflow_instance_key"`
}

// JobValue is the payload of JOB records.
type JobValue struct {
	Type                string `json:"type"`
	WorkflowInstanceKey int64  `json:"workflow_instance_key"`
	ElementInstanceKey  int64  `json:"element_instance_key"`
	Retries             int32  `json:"retries"`
}

// ProcessValue is the payload of PROCESS (deployment) records.
type ProcessValue struct {
	BPMNProcessID string `json:"bpmn_process_id"`
	Version       int32  `json:"version"`
	Name          string `json:"name"`
	BPMNXML       string `json:"bpmn_xml,omitempty"`
}
