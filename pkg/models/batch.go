package models

import "time"

// Batch groups the operations persisted by one accepted batch request.
type Batch struct {
	ID            string        `json:"id"`
	Type          OperationType `json:"type"`
	InstanceCount int           `json:"instance_count"`
	StartDate     time.Time     `json:"start_date"`
}

// DocumentID implements store.Document.
func (b *Batch) DocumentID() string { return b.ID }
