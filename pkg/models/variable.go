package models

// Variable is one named value inside an activity or instance scope.
// Value holds the raw JSON encoding as exported by the engine.
type Variable struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Value              string `json:"value"`
	ScopeID            string `json:"scope_id"`
	WorkflowInstanceID string `json:"workflow_instance_id"`
	Position           int64  `json:"position"`
}

// DocumentID implements store.Document.
func (v *Variable) DocumentID() string { return v.ID }

// VariableID builds the composite document id of a variable. A variable is
// unique per scope and name, so re-imported records upsert in place.
func VariableID(scopeID, name string) string {
	return scopeID + "-" + name
}
