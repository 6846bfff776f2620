package models

// SequenceFlow records that a BPMN sequence flow was taken within an instance.
type SequenceFlow struct {
	ID                 string `json:"id"`
	ActivityID         string `json:"activity_id"`
	WorkflowInstanceID string `json:"workflow_instance_id"`
}

// DocumentID implements store.Document.
func (s *SequenceFlow) DocumentID() string { return s.ID }
