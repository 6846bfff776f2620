package readmodel

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/dukex/flowscope/pkg/models"
	"github.com/dukex/flowscope/pkg/store"
)

// errorTypeTitles maps engine error-type codes to the titles the incident
// view groups by.
var errorTypeTitles = map[string]string{
	"UNKNOWN":               "Unknown",
	"IO_MAPPING_ERROR":      "I/O mapping error",
	"JOB_NO_RETRIES":        "No more retries left",
	"CONDITION_ERROR":       "Condition error",
	"EXTRACT_VALUE_ERROR":   "Extract value error",
	"CALLED_ELEMENT_ERROR":  "Called element error",
	"UNHANDLED_ERROR_EVENT": "Unhandled error event",
	"MESSAGE_SIZE_EXCEEDED": "Message size exceeded",
}

// ErrorTypeTitle renders an engine error-type code as a human-readable
// title. Codes without a registered title are humanized from the code
// itself.
func ErrorTypeTitle(errorType string) string {
	if title, ok := errorTypeTitles[errorType]; ok {
		return title
	}

	if errorType == "" {
		return errorTypeTitles["UNKNOWN"]
	}

	lowered := strings.ToLower(strings.ReplaceAll(errorType, "_", " "))

	return strings.ToUpper(lowered[:1]) + lowered[1:]
}

// IncidentView is the incident summary of one instance: every incident in
// the default ordering plus the two aggregations the overview panels render.
type IncidentView struct {
	Incidents []*models.Incident `json:"incidents"`

	// CountByFlowNode counts incidents per BPMN flow-node id.
	CountByFlowNode map[string]int `json:"count_by_flow_node"`

	// CountByErrorType counts incidents per human-readable error-type title.
	CountByErrorType map[string]int `json:"count_by_error_type"`
}

// IncidentReader assembles the incident view of an instance.
type IncidentReader struct {
	documentStore store.DocumentStore
	logger        *slog.Logger
}

// NewIncidentReader creates an incident reader backed by the given store.
func NewIncidentReader(documentStore store.DocumentStore, logger *slog.Logger) *IncidentReader {
	return &IncidentReader{documentStore: documentStore, logger: logger}
}

// IncidentView returns the instance's incidents sorted by creation time
// ascending, ties broken by id, together with counts per flow-node id and
// per error-type title.
func (r *IncidentReader) IncidentView(ctx context.Context, instanceID string) (*IncidentView, error) {
	if strings.TrimSpace(instanceID) == "" {
		return nil, ErrInstanceIDRequired
	}

	if _, err := fetchInstance(ctx, r.documentStore, instanceID); err != nil {
		return nil, err
	}

	_, docs, err := searchAlias(ctx, r.documentStore, store.IndexIncident,
		store.TermQuery("workflow_instance_id", instanceID))
	if err != nil {
		return nil, err
	}

	incidents, err := decodeAll[models.Incident](docs)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(incidents, func(i, j int) bool {
		if incidents[i].CreationTime.Equal(incidents[j].CreationTime) {
			return incidents[i].ID < incidents[j].ID
		}

		return incidents[i].CreationTime.Before(incidents[j].CreationTime)
	})

	view := &IncidentView{
		Incidents:        incidents,
		CountByFlowNode:  make(map[string]int),
		CountByErrorType: make(map[string]int),
	}

	for _, incident := range incidents {
		view.CountByFlowNode[incident.ActivityID]++
		view.CountByErrorType[ErrorTypeTitle(incident.ErrorType)]++
	}

	return view, nil
}
