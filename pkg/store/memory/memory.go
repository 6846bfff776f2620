// Package memory provides an in-memory document store used by tests and
// local development. It is the reference implementation of the store
// contract; the postgresql and redis stores mirror its semantics.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dukex/flowscope/pkg/store"
)

type indexData map[string]store.Document

// Store keeps every index as an id-keyed map guarded by one RW mutex.
type Store struct {
	mu      sync.RWMutex
	indices map[string]indexData
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{indices: make(map[string]indexData)}
}

func (s *Store) EnsureIndex(_ context.Context, index string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.indices[index]; !ok {
		s.indices[index] = make(indexData)
	}

	return nil
}

func (s *Store) Indices(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0)

	for name := range s.indices {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}

	sort.Strings(names)

	return names, nil
}

func (s *Store) BulkUpsert(_ context.Context, index string, docs []store.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.indices[index]
	if !ok {
		data = make(indexData)
		s.indices[index] = data
	}

	for _, doc := range docs {
		data[doc.ID] = doc
	}

	return nil
}

func (s *Store) Get(_ context.Context, target, id string) (*store.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, index := range s.resolveTarget(target) {
		if doc, ok := s.indices[index][id]; ok {
			return &doc, nil
		}
	}

	return nil, store.ErrDocumentNotFound
}

func (s *Store) Search(_ context.Context, target string, query store.Query) (int64, []store.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wantIDs := idSet(query.IDs)
	seen := make(map[string]bool)
	matched := make([]map[string]any, 0)
	raw := make(map[string]store.Document)

	// The live index is resolved first, so a document that exists both live
	// and archived (mid-archive) is returned exactly once from the live copy.
	for _, index := range s.resolveTarget(target) {
		for id, doc := range s.indices[index] {
			if seen[id] {
				continue
			}

			seen[id] = true

			if wantIDs != nil && !wantIDs[id] {
				continue
			}

			decoded := make(map[string]any)
			if err := json.Unmarshal(doc.Source, &decoded); err != nil {
				return 0, nil, store.NewIndexError("Search", index, fmt.Errorf("corrupt document %s: %w", id, err))
			}

			if _, ok := decoded["id"].(string); !ok {
				return 0, nil, store.NewIndexError("Search", index, fmt.Errorf("corrupt document %s: no string id", id))
			}

			if store.Matches(decoded, query) {
				matched = append(matched, decoded)
				raw[id] = doc
			}
		}
	}

	store.SortDocuments(matched, query.Sorts)

	total := int64(len(matched))
	page := store.Window(matched, query.From, query.Size)

	docs := make([]store.Document, 0, len(page))
	for _, decoded := range page {
		docs = append(docs, raw[decoded["id"].(string)])
	}

	return total, docs, nil
}

func (s *Store) DeleteByIDs(_ context.Context, index string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.indices[index]
	if !ok {
		return nil
	}

	for _, id := range ids {
		delete(data, id)
	}

	return nil
}

func (s *Store) Reindex(_ context.Context, src, dst string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	srcData, ok := s.indices[src]
	if !ok {
		return store.NewIndexError("Reindex", src, store.ErrIndexNotFound)
	}

	dstData, ok := s.indices[dst]
	if !ok {
		dstData = make(indexData)
		s.indices[dst] = dstData
	}

	for _, id := range ids {
		if doc, ok := srcData[id]; ok {
			dstData[id] = doc
		}
	}

	return nil
}

func (s *Store) HealthCheck(_ context.Context) error {
	return nil
}

func (s *Store) Close(_ context.Context) error {
	return nil
}

// resolveTarget expands an alias into its live index followed by every
// archive partition; a plain index name resolves to itself.
func (s *Store) resolveTarget(target string) []string {
	base, isAlias := strings.CutSuffix(target, "*")
	if !isAlias {
		return []string{target}
	}

	names := []string{base}

	for name := range s.indices {
		if name != base && strings.HasPrefix(name, base) {
			names = append(names, name)
		}
	}

	sort.Strings(names[1:])

	return names
}

func idSet(ids []string) map[string]bool {
	if ids == nil {
		return nil
	}

	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}

	return set
}
