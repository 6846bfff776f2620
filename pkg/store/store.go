// Package store provides the document-store abstraction the importer,
// read models, archiver and operation executor share. An implementation
// offers bulk upserts, filtered queries and index-to-index copies; it is
// expected to give atomic per-document writes but no cross-document
// transactions.
package store

import (
	"context"
	"encoding/json"
)

// Document is one stored JSON document. Source is the full document body;
// ID must equal the id encoded in the body.
type Document struct {
	ID     string
	Source json.RawMessage
}

// NewDocument marshals an entity into a Document. The entity must carry a
// DocumentID, which every model in pkg/models does.
func NewDocument(entity interface {
	DocumentID() string
},
) (Document, error) {
	source, err := json.Marshal(entity)
	if err != nil {
		return Document{}, err
	}

	return Document{ID: entity.DocumentID(), Source: source}, nil
}

// DocumentStore is the contract every backing store implements. A target
// may be a concrete index name or an alias: an index name followed by "*",
// which unions the live index with every date-partitioned archive index
// derived from it. Alias reads deduplicate by document id, preferring the
// live copy, so a document copied but not yet deleted during archiving is
// seen exactly once.
type DocumentStore interface {
	EnsureIndex(ctx context.Context, index string) error
	Indices(ctx context.Context, prefix string) ([]string, error)

	BulkUpsert(ctx context.Context, index string, docs []Document) error
	Get(ctx context.Context, target, id string) (*Document, error)
	Search(ctx context.Context, target string, query Query) (int64, []Document, error)
	DeleteByIDs(ctx context.Context, index string, ids []string) error

	// Reindex copies the documents with the given ids from src into dst,
	// creating dst if needed. The source documents are left untouched.
	Reindex(ctx context.Context, src, dst string, ids []string) error

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// Live index names. Each entity type gets one live index; archived partitions
// append "-" plus the formatted end date. Names are chosen so that no index
// name is a prefix of another, which keeps alias expansion unambiguous.
const (
	IndexInstance       = "instance"
	IndexActivity       = "activity"
	IndexIncident       = "incident"
	IndexVariable       = "variable"
	IndexSequenceFlow   = "sequence-flow"
	IndexOperation      = "operation"
	IndexBatch          = "batch"
	IndexProcess        = "process"
	IndexImportPosition = "import-position"
)

// Alias returns the read alias spanning the live index and its archive
// partitions.
func Alias(index string) string {
	return index + "*"
}

// ArchiveIndex returns the name of the archive partition of an index for a
// formatted end date.
func ArchiveIndex(index, formattedDate string) string {
	return index + "-" + formattedDate
}

// LiveIndices lists every live index the system writes to.
func LiveIndices() []string {
	return []string{
		IndexInstance,
		IndexActivity,
		IndexIncident,
		IndexVariable,
		IndexSequenceFlow,
		IndexOperation,
		IndexBatch,
		IndexProcess,
		IndexImportPosition,
	}
}
