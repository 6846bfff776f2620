package readmodel

import "github.com/dukex/flowscope/pkg/models"

// foldIncidentStates annotates a forest with effective states in one
// bottom-up pass: a node renders INCIDENT when it or any descendant carries
// an ACTIVE incident, its stored state otherwise. Propagation follows the
// ancestor chain only; sibling branches keep their stored states. Reports
// whether any node in the forest carries an incident.
func foldIncidentStates(nodes []*TreeNode, incidentScopes map[string]struct{}) bool {
	forestHasIncident := false

	for _, node := range nodes {
		_, own := incidentScopes[node.ID]
		childHas := foldIncidentStates(node.Children, incidentScopes)

		if own || childHas {
			node.State = models.ActivityStateIncident
			forestHasIncident = true
		}
	}

	return forestHasIncident
}

// effectiveInstanceState renders the instance-level state: INCIDENT when any
// activity of the instance carries an ACTIVE incident, the stored state
// otherwise.
func effectiveInstanceState(stored models.InstanceState, hasActiveIncident bool) models.InstanceState {
	if hasActiveIncident {
		return models.InstanceStateIncident
	}

	return stored
}
