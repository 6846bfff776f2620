package store

// Dependant names an index whose documents belong to a workflow instance
// through a foreign-key field. The archiver iterates this list instead of
// discovering dependent types at runtime.
type Dependant struct {
	Index            string
	InstanceKeyField string
}

// InstanceDependants lists every index archived together with a finished
// workflow instance.
func InstanceDependants() []Dependant {
	return []Dependant{
		{Index: IndexActivity, InstanceKeyField: "workflow_instance_id"},
		{Index: IndexIncident, InstanceKeyField: "workflow_instance_id"},
		{Index: IndexVariable, InstanceKeyField: "workflow_instance_id"},
		{Index: IndexSequenceFlow, InstanceKeyField: "workflow_instance_id"},
		{Index: IndexOperation, InstanceKeyField: "workflow_instance_id"},
	}
}
