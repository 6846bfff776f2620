// Package engine defines the workflow-engine client this system consumes.
// The engine's command surface and its exported record feed are external
// collaborators; implementations wrap the engine's gRPC or REST API and are
// wired in at startup.
package engine

import (
	"context"

	"github.com/dukex/flowscope/pkg/records"
)

// Definition is the process metadata returned by the engine's definition
// lookup.
type Definition struct {
	WorkflowID    string
	BPMNProcessID string
	Name          string
	Version       int32
}

// Client is the full engine surface the core requires: a resumable,
// per-value-type record feed, a definition lookup, and the idempotent
// command operations the batch executor dispatches. Every command is keyed
// by an engine-native numeric key and safe to retry.
type Client interface {
	// ExportedRecords returns up to limit records of one value type with a
	// stream position strictly greater than afterPosition, ordered by
	// position.
	ExportedRecords(ctx context.Context, valueType records.ValueType, afterPosition int64, limit int) ([]records.Record, error)

	// Definition looks up deployed process metadata by workflow id. A nil
	// result with a nil error means the definition is unknown to the engine.
	Definition(ctx context.Context, workflowID string) (*Definition, error)

	CancelInstance(ctx context.Context, instanceKey int64) error
	ResolveIncident(ctx context.Context, incidentKey int64) error
	UpdateJobRetries(ctx context.Context, jobKey int64, retries int32) error
	SetVariable(ctx context.Context, scopeKey int64, name, value string) error
}
