package readmodel

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/dukex/flowscope/pkg/models"
	"github.com/dukex/flowscope/pkg/store"
)

// VariableReader lists the variables of one scope within an instance.
type VariableReader struct {
	documentStore store.DocumentStore
	logger        *slog.Logger
}

// NewVariableReader creates a variable reader backed by the given store.
func NewVariableReader(documentStore store.DocumentStore, logger *slog.Logger) *VariableReader {
	return &VariableReader{documentStore: documentStore, logger: logger}
}

// VariablesByScope returns the variables owned by one scope, sorted by name.
// The scope is an activity id or the instance id itself for top-level
// variables.
func (r *VariableReader) VariablesByScope(ctx context.Context, instanceID, scopeID string) ([]*models.Variable, error) {
	if strings.TrimSpace(instanceID) == "" {
		return nil, ErrInstanceIDRequired
	}

	if strings.TrimSpace(scopeID) == "" {
		return nil, ErrScopeIDRequired
	}

	if _, err := fetchInstance(ctx, r.documentStore, instanceID); err != nil {
		return nil, err
	}

	_, docs, err := searchAlias(ctx, r.documentStore, store.IndexVariable, store.Query{
		Terms: map[string]any{
			"workflow_instance_id": instanceID,
			"scope_id":             scopeID,
		},
	})
	if err != nil {
		return nil, err
	}

	variables, err := decodeAll[models.Variable](docs)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(variables, func(i, j int) bool {
		return variables[i].Name < variables[j].Name
	})

	return variables, nil
}
