package readmodel

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/dukex/flowscope/pkg/models"
	"github.com/dukex/flowscope/pkg/store"
)

// TreeNode is one activity in the rendered tree. State is the effective
// state (incident propagation applied); the stored state remains available
// on the embedded activity's other fields.
type TreeNode struct {
	models.Activity

	State    models.ActivityState `json:"state"`
	Children []*TreeNode          `json:"children,omitempty"`
}

// TreeReader assembles the hierarchical activity view of an instance.
type TreeReader struct {
	documentStore store.DocumentStore
	logger        *slog.Logger
}

// NewTreeReader creates a tree reader backed by the given store.
func NewTreeReader(documentStore store.DocumentStore, logger *slog.Logger) *TreeReader {
	return &TreeReader{documentStore: documentStore, logger: logger}
}

// ActivityTree returns the instance's activities as a forest keyed by parent
// scope, siblings ordered by start date. Effective states reflect incident
// propagation even where the stored activity state is ACTIVE.
func (r *TreeReader) ActivityTree(ctx context.Context, instanceID string) ([]*TreeNode, error) {
	if strings.TrimSpace(instanceID) == "" {
		return nil, ErrInstanceIDRequired
	}

	if _, err := fetchInstance(ctx, r.documentStore, instanceID); err != nil {
		return nil, err
	}

	_, activityDocs, err := searchAlias(ctx, r.documentStore, store.IndexActivity,
		store.TermQuery("workflow_instance_id", instanceID))
	if err != nil {
		return nil, err
	}

	activities, err := decodeAll[models.Activity](activityDocs)
	if err != nil {
		return nil, err
	}

	_, incidentDocs, err := searchAlias(ctx, r.documentStore, store.IndexIncident,
		store.TermQuery("workflow_instance_id", instanceID))
	if err != nil {
		return nil, err
	}

	incidents, err := decodeAll[models.Incident](incidentDocs)
	if err != nil {
		return nil, err
	}

	nodes := make(map[string]*TreeNode, len(activities))
	for _, activity := range activities {
		nodes[activity.ID] = &TreeNode{Activity: *activity, State: activity.State}
	}

	roots := make([]*TreeNode, 0)

	for _, activity := range activities {
		node := nodes[activity.ID]

		parent, ok := nodes[activity.ParentID]
		if ok && activity.ParentID != activity.ID {
			parent.Children = append(parent.Children, node)

			continue
		}

		if activity.ParentID != instanceID {
			// The parent scope was not imported yet; surface the node at
			// the root rather than dropping it.
			r.logger.WarnContext(ctx, "Activity parent scope missing, attaching at root",
				"activity_id", activity.ID, "parent_id", activity.ParentID)
		}

		roots = append(roots, node)
	}

	sortSiblings(roots)
	foldIncidentStates(roots, activeIncidentScopes(incidents))

	return roots, nil
}

// sortSiblings orders each sibling group by activity start date, ties broken
// by id so the rendering is stable.
func sortSiblings(nodes []*TreeNode) {
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].StartDate.Equal(nodes[j].StartDate) {
			return nodes[i].ID < nodes[j].ID
		}

		return nodes[i].StartDate.Before(nodes[j].StartDate)
	})

	for _, node := range nodes {
		sortSiblings(node.Children)
	}
}
