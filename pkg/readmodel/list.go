package readmodel

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/dukex/flowscope/pkg/models"
	"github.com/dukex/flowscope/pkg/store"
)

const (
	defaultPageSize = 50
	maxPageSize     = 1000
)

// ListFilter selects instances for the list view. Conditions are ANDed; the
// zero value matches everything.
type ListFilter struct {
	// Running selects by stored lifecycle: true matches ACTIVE instances,
	// false matches finished ones (COMPLETED or CANCELED).
	Running *bool

	// WithIncidents restricts to instances carrying at least one ACTIVE
	// incident.
	WithIncidents bool

	// IDs restricts to an explicit instance-id set when non-empty.
	IDs []string
}

// Page is the offset/limit window of one list request.
type Page struct {
	Offset int
	Size   int
}

// InstanceSummary is one list-view row: the instance with its effective
// state and the operations scheduled against it.
type InstanceSummary struct {
	models.WorkflowInstance

	State      models.InstanceState `json:"state"`
	Operations []*models.Operation  `json:"operations,omitempty"`
}

// InstanceList is one page of the list view plus the total match count.
type InstanceList struct {
	Total     int64              `json:"total"`
	Instances []*InstanceSummary `json:"instances"`
}

// ListReader assembles the filterable, paginated instance list.
type ListReader struct {
	documentStore store.DocumentStore
	logger        *slog.Logger
}

// NewListReader creates a list reader backed by the given store.
func NewListReader(documentStore store.DocumentStore, logger *slog.Logger) *ListReader {
	return &ListReader{documentStore: documentStore, logger: logger}
}

// ListInstances returns the total matching count and one page of instance
// summaries ordered by start date descending. Each summary carries its
// effective state and embedded operations.
func (r *ListReader) ListInstances(ctx context.Context, filter ListFilter, page Page) (*InstanceList, error) {
	if page.Offset < 0 {
		page.Offset = 0
	}

	if page.Size <= 0 {
		page.Size = defaultPageSize
	}

	if page.Size > maxPageSize {
		page.Size = maxPageSize
	}

	query := store.Query{
		Terms: make(map[string]any),
		Sorts: []store.Sort{{Field: "start_date", Order: store.SortDesc}},
		From:  page.Offset,
		Size:  page.Size,
	}

	if filter.Running != nil {
		if *filter.Running {
			query.Terms["state"] = string(models.InstanceStateActive)
		} else {
			query.Terms["state"] = []any{
				string(models.InstanceStateCompleted),
				string(models.InstanceStateCanceled),
			}
		}
	}

	ids := filter.IDs

	if filter.WithIncidents {
		incidentIDs, err := r.instanceIDsWithActiveIncidents(ctx)
		if err != nil {
			return nil, err
		}

		ids = intersect(ids, incidentIDs)
		if len(ids) == 0 {
			return &InstanceList{Instances: []*InstanceSummary{}}, nil
		}
	}

	query.IDs = ids

	total, docs, err := searchAlias(ctx, r.documentStore, store.IndexInstance, query)
	if err != nil {
		return nil, err
	}

	instances, err := decodeAll[models.WorkflowInstance](docs)
	if err != nil {
		return nil, err
	}

	summaries, err := r.summarize(ctx, instances)
	if err != nil {
		return nil, err
	}

	return &InstanceList{Total: total, Instances: summaries}, nil
}

// Instance returns one instance summary by id.
func (r *ListReader) Instance(ctx context.Context, instanceID string) (*InstanceSummary, error) {
	if strings.TrimSpace(instanceID) == "" {
		return nil, ErrInstanceIDRequired
	}

	instance, err := fetchInstance(ctx, r.documentStore, instanceID)
	if err != nil {
		return nil, err
	}

	summaries, err := r.summarize(ctx, []*models.WorkflowInstance{instance})
	if err != nil {
		return nil, err
	}

	return summaries[0], nil
}

// summarize annotates a page of instances with effective states and their
// embedded operations, in two batched lookups.
func (r *ListReader) summarize(ctx context.Context, instances []*models.WorkflowInstance) ([]*InstanceSummary, error) {
	if len(instances) == 0 {
		return []*InstanceSummary{}, nil
	}

	pageIDs := make([]string, len(instances))
	for i, instance := range instances {
		pageIDs[i] = instance.ID
	}

	_, incidentDocs, err := searchAlias(ctx, r.documentStore, store.IndexIncident, store.Query{
		Terms: map[string]any{
			"workflow_instance_id": anySlice(pageIDs),
			"state":                string(models.IncidentStateActive),
		},
	})
	if err != nil {
		return nil, err
	}

	incidents, err := decodeAll[models.Incident](incidentDocs)
	if err != nil {
		return nil, err
	}

	hasIncident := make(map[string]bool, len(incidents))
	for _, incident := range incidents {
		hasIncident[incident.WorkflowInstanceID] = true
	}

	_, operationDocs, err := searchAlias(ctx, r.documentStore, store.IndexOperation,
		store.TermQuery("workflow_instance_id", anySlice(pageIDs)))
	if err != nil {
		return nil, err
	}

	operations, err := decodeAll[models.Operation](operationDocs)
	if err != nil {
		return nil, err
	}

	operationsByInstance := make(map[string][]*models.Operation)
	for _, operation := range operations {
		operationsByInstance[operation.WorkflowInstanceID] = append(
			operationsByInstance[operation.WorkflowInstanceID], operation)
	}

	summaries := make([]*InstanceSummary, len(instances))

	for i, instance := range instances {
		embedded := operationsByInstance[instance.ID]
		sort.SliceStable(embedded, func(a, b int) bool {
			if embedded[a].StartDate.Equal(embedded[b].StartDate) {
				return embedded[a].ID < embedded[b].ID
			}

			return embedded[a].StartDate.Before(embedded[b].StartDate)
		})

		summaries[i] = &InstanceSummary{
			WorkflowInstance: *instance,
			State:            effectiveInstanceState(instance.State, hasIncident[instance.ID]),
			Operations:       embedded,
		}
	}

	return summaries, nil
}

func (r *ListReader) instanceIDsWithActiveIncidents(ctx context.Context) ([]string, error) {
	_, docs, err := searchAlias(ctx, r.documentStore, store.IndexIncident,
		store.TermQuery("state", string(models.IncidentStateActive)))
	if err != nil {
		return nil, err
	}

	incidents, err := decodeAll[models.Incident](docs)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(incidents))
	ids := make([]string, 0, len(incidents))

	for _, incident := range incidents {
		if _, ok := seen[incident.WorkflowInstanceID]; ok {
			continue
		}

		seen[incident.WorkflowInstanceID] = struct{}{}
		ids = append(ids, incident.WorkflowInstanceID)
	}

	sort.Strings(ids)

	return ids, nil
}

// intersect restricts candidates to the allowed set; an empty candidate list
// means no restriction.
func intersect(candidates, allowed []string) []string {
	if len(candidates) == 0 {
		return allowed
	}

	allowedSet := make(map[string]struct{}, len(allowed))
	for _, id := range allowed {
		allowedSet[id] = struct{}{}
	}

	out := make([]string, 0, len(candidates))

	for _, id := range candidates {
		if _, ok := allowedSet[id]; ok {
			out = append(out, id)
		}
	}

	return out
}
