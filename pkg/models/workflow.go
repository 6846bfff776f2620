package models

// Workflow is a deployed workflow (process) definition. Definitions are
// immutable once deployed; a new deployment of the same BPMN process id gets
// a new version and a new id.
type Workflow struct {
	ID            string `json:"id"`
	Key           int64  `json:"key"`
	BPMNProcessID string `json:"bpmn_process_id"`
	Version       int32  `json:"version"`
	Name          string `json:"name"`
	BPMNXML       string `json:"bpmn_xml,omitempty"`
}

// DocumentID implements store.Document.
func (w *Workflow) DocumentID() string { return w.ID }
