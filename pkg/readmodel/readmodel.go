package readmodel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dukex/flowscope/pkg/models"
	"github.com/dukex/flowscope/pkg/store"
)

func decodeAll[T any](docs []store.Document) ([]*T, error) {
	out := make([]*T, 0, len(docs))

	for _, doc := range docs {
		decoded := new(T)
		if err := json.Unmarshal(doc.Source, decoded); err != nil {
			return nil, fmt.Errorf("corrupt document %s: %w", doc.ID, err)
		}

		out = append(out, decoded)
	}

	return out, nil
}

// fetchInstance reads one instance through the alias, mapping a miss to
// ErrInstanceNotFound.
func fetchInstance(ctx context.Context, documentStore store.DocumentStore, id string) (*models.WorkflowInstance, error) {
	doc, err := documentStore.Get(ctx, store.Alias(store.IndexInstance), id)
	if errors.Is(err, store.ErrDocumentNotFound) || errors.Is(err, store.ErrIndexNotFound) {
		return nil, ErrInstanceNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read instance %s: %w", id, err)
	}

	instance := &models.WorkflowInstance{}
	if err := json.Unmarshal(doc.Source, instance); err != nil {
		return nil, fmt.Errorf("corrupt instance document %s: %w", id, err)
	}

	return instance, nil
}

// searchAlias searches an index through its alias, treating a missing index
// as an empty result.
func searchAlias(ctx context.Context, documentStore store.DocumentStore, index string, query store.Query) (int64, []store.Document, error) {
	total, docs, err := documentStore.Search(ctx, store.Alias(index), query)
	if errors.Is(err, store.ErrIndexNotFound) {
		return 0, nil, nil
	}

	if err != nil {
		return 0, nil, fmt.Errorf("failed to search %s: %w", index, err)
	}

	return total, docs, nil
}

// activeIncidentScopes collects the activity-instance ids carrying an ACTIVE
// incident.
func activeIncidentScopes(incidents []*models.Incident) map[string]struct{} {
	scopes := make(map[string]struct{})

	for _, incident := range incidents {
		if incident.State == models.IncidentStateActive {
			scopes[incident.ActivityInstanceID] = struct{}{}
		}
	}

	return scopes
}

func anySlice(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}

	return out
}
