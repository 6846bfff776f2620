package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dukex/flowscope/pkg/store"
)

// Batch accumulates the document upserts of one import round. Conversion
// reads through it so that a record can see documents written earlier in the
// same round before anything is flushed.
type Batch struct {
	store   store.DocumentStore
	pending map[string]map[string]store.Document // index -> id -> document
}

// NewBatch creates an empty batch reading through to the given store.
func NewBatch(documentStore store.DocumentStore) *Batch {
	return &Batch{
		store:   documentStore,
		pending: make(map[string]map[string]store.Document),
	}
}

// Put stages an entity upsert.
func (b *Batch) Put(index string, entity interface {
	DocumentID() string
},
) error {
	doc, err := store.NewDocument(entity)
	if err != nil {
		return fmt.Errorf("failed to encode document for %s: %w", index, err)
	}

	if b.pending[index] == nil {
		b.pending[index] = make(map[string]store.Document)
	}

	b.pending[index][doc.ID] = doc

	return nil
}

// Get unmarshals the current state of a document into out, preferring a
// pending write over the stored copy. It reports false when the document
// exists nowhere.
func (b *Batch) Get(ctx context.Context, index, id string, out any) (bool, error) {
	if doc, ok := b.pending[index][id]; ok {
		return true, json.Unmarshal(doc.Source, out)
	}

	doc, err := b.store.Get(ctx, index, id)
	if errors.Is(err, store.ErrDocumentNotFound) || errors.Is(err, store.ErrIndexNotFound) {
		return false, nil
	}

	if err != nil {
		return false, err
	}

	return true, json.Unmarshal(doc.Source, out)
}

// DocumentsMatching decodes every document of an index whose field equals
// value, unioning pending writes with stored documents. Pending writes win
// on id collisions.
func (b *Batch) DocumentsMatching(ctx context.Context, index, field string, value any) ([]json.RawMessage, error) {
	byID := make(map[string]json.RawMessage)

	_, stored, err := b.store.Search(ctx, index, store.TermQuery(field, value))
	if err != nil && !errors.Is(err, store.ErrIndexNotFound) {
		return nil, err
	}

	for _, doc := range stored {
		byID[doc.ID] = doc.Source
	}

	query := store.TermQuery(field, value)

	for id, doc := range b.pending[index] {
		decoded := make(map[string]any)
		if err := json.Unmarshal(doc.Source, &decoded); err != nil {
			return nil, fmt.Errorf("corrupt pending document %s: %w", id, err)
		}

		if store.Matches(decoded, query) {
			byID[id] = doc.Source
		} else {
			delete(byID, id)
		}
	}

	sources := make([]json.RawMessage, 0, len(byID))
	for _, source := range byID {
		sources = append(sources, source)
	}

	return sources, nil
}

// Flush bulk-writes every pending index and clears the batch.
func (b *Batch) Flush(ctx context.Context) error {
	for index, docs := range b.pending {
		upserts := make([]store.Document, 0, len(docs))
		for _, doc := range docs {
			upserts = append(upserts, doc)
		}

		if err := b.store.BulkUpsert(ctx, index, upserts); err != nil {
			return err
		}
	}

	b.pending = make(map[string]map[string]store.Document)

	return nil
}

// Size returns the number of staged documents.
func (b *Batch) Size() int {
	size := 0
	for _, docs := range b.pending {
		size += len(docs)
	}

	return size
}
