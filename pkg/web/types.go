// Package web provides HTTP request and response types for the monitoring API.
package web

import (
	"github.com/dukex/flowscope/pkg/importer"
	"github.com/dukex/flowscope/pkg/models"
	"github.com/dukex/flowscope/pkg/operations"
	"github.com/dukex/flowscope/pkg/readmodel"
)

// BatchOperationRequest is the body of POST /operations/batch. The filter
// fields mirror the instance list view; the command fields apply per
// operation type.
type BatchOperationRequest struct {
	Type string `json:"type" validate:"required"`

	Running       *bool    `json:"running,omitempty"`
	WithIncidents bool     `json:"with_incidents,omitempty"`
	IDs           []string `json:"ids,omitempty"`

	Retries       int32  `json:"retries,omitempty"        validate:"min=0"`
	VariableName  string `json:"variable_name,omitempty"`
	VariableValue string `json:"variable_value,omitempty"`
}

func (r BatchOperationRequest) toBatchRequest() operations.BatchRequest {
	return operations.BatchRequest{
		Type: models.OperationType(r.Type),
		Filter: readmodel.ListFilter{
			Running:       r.Running,
			WithIncidents: r.WithIncidents,
			IDs:           r.IDs,
		},
		Retries:       r.Retries,
		VariableName:  r.VariableName,
		VariableValue: r.VariableValue,
	}
}

// ImportStatusResponse reports the persisted feed positions next to the
// serving process's session counters. Positions and caught-up come from
// shared state; the counters only move in the process performing rounds.
type ImportStatusResponse struct {
	Scheduled int64                      `json:"scheduled"`
	Imported  int64                      `json:"imported"`
	Positions []importer.ValueTypeStatus `json:"positions"`
	CaughtUp  bool                       `json:"caught_up"`
}

// ArchiveRunResponse reports one manually triggered archive batch.
type ArchiveRunResponse struct {
	Moved int `json:"moved"`
}
