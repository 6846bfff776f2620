// Package enginetest provides an in-memory engine.Client for tests.
package enginetest

import (
	"context"
	"sync"

	"github.com/dukex/flowscope/pkg/engine"
	"github.com/dukex/flowscope/pkg/records"
)

// Fake is a scriptable engine client. Records are appended per value type
// and served through the resumable feed; command calls are recorded and can
// be failed selectively.
type Fake struct {
	mu sync.Mutex

	recordLog   map[records.ValueType][]records.Record
	definitions map[string]*engine.Definition

	// DefinitionCalls counts lookups per workflow id, for asserting
	// single-flight cache population.
	DefinitionCalls map[string]int

	// CommandErrors maps an engine key to the error its next command
	// returns. Zero-valued keys succeed.
	CommandErrors map[int64]error

	// ExportError is returned by ExportedRecords while
	// FailExportsRemaining is positive, simulating a flaky feed.
	ExportError          error
	FailExportsRemaining int

	CanceledInstances []int64
	ResolvedIncidents []int64
	UpdatedJobs       map[int64]int32
	SetVariables      map[int64]map[string]string
}

// NewFake creates an empty fake engine.
func NewFake() *Fake {
	return &Fake{
		recordLog:       make(map[records.ValueType][]records.Record),
		definitions:     make(map[string]*engine.Definition),
		DefinitionCalls: make(map[string]int),
		CommandErrors:   make(map[int64]error),
		UpdatedJobs:     make(map[int64]int32),
		SetVariables:    make(map[int64]map[string]string),
	}
}

// AddRecord appends a record to its value-type partition. Positions must be
// appended in ascending order per partition, matching the engine contract.
func (f *Fake) AddRecord(record records.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.recordLog[record.ValueType] = append(f.recordLog[record.ValueType], record)
}

// AddDefinition registers deployed process metadata.
func (f *Fake) AddDefinition(definition engine.Definition) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.definitions[definition.WorkflowID] = &definition
}

func (f *Fake) ExportedRecords(_ context.Context, valueType records.ValueType, afterPosition int64, limit int) ([]records.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.FailExportsRemaining > 0 {
		f.FailExportsRemaining--

		return nil, f.ExportError
	}

	batch := make([]records.Record, 0, limit)

	for _, record := range f.recordLog[valueType] {
		if record.Position <= afterPosition {
			continue
		}

		batch = append(batch, record)
		if len(batch) == limit {
			break
		}
	}

	return batch, nil
}

func (f *Fake) Definition(_ context.Context, workflowID string) (*engine.Definition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.DefinitionCalls[workflowID]++

	definition, ok := f.definitions[workflowID]
	if !ok {
		return nil, nil
	}

	copied := *definition

	return &copied, nil
}

func (f *Fake) CancelInstance(_ context.Context, instanceKey int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.CommandErrors[instanceKey]; err != nil {
		return err
	}

	f.CanceledInstances = append(f.CanceledInstances, instanceKey)

	return nil
}

func (f *Fake) ResolveIncident(_ context.Context, incidentKey int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.CommandErrors[incidentKey]; err != nil {
		return err
	}

	f.ResolvedIncidents = append(f.ResolvedIncidents, incidentKey)

	return nil
}

func (f *Fake) UpdateJobRetries(_ context.Context, jobKey int64, retries int32) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.CommandErrors[jobKey]; err != nil {
		return err
	}

	f.UpdatedJobs[jobKey] = retries

	return nil
}

func (f *Fake) SetVariable(_ context.Context, scopeKey int64, name, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.CommandErrors[scopeKey]; err != nil {
		return err
	}

	if f.SetVariables[scopeKey] == nil {
		f.SetVariables[scopeKey] = make(map[string]string)
	}

	f.SetVariables[scopeKey][name] = value

	return nil
}
