package readmodel

import (
	"testing"
	"time"

	"github.com/dukex/flowscope/pkg/log"
	"github.com/dukex/flowscope/pkg/models"
	"github.com/dukex/flowscope/pkg/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActivityTreeRequiresInstanceID(t *testing.T) {
	reader := NewTreeReader(memory.NewStore(), log.WithModule("readmodel"))

	_, err := reader.ActivityTree(t.Context(), "  ")
	require.ErrorIs(t, err, ErrInstanceIDRequired)
	assert.True(t, IsValidationError(err))
}

func TestActivityTreeUnknownInstance(t *testing.T) {
	reader := NewTreeReader(memory.NewStore(), log.WithModule("readmodel"))

	_, err := reader.ActivityTree(t.Context(), "404")
	require.ErrorIs(t, err, ErrInstanceNotFound)
	assert.True(t, IsNotFound(err))
}

func TestActivityTreeNestsByParentAndOrdersByStart(t *testing.T) {
	documentStore := memory.NewStore()
	seedInstance(t, documentStore, "100", models.InstanceStateActive, baseTime)

	// Sub-process "sub" encloses two tasks; a later top-level task follows.
	seedActivity(t, documentStore, "201", "100", "100", "sub", models.ActivityTypeSubProcess, models.ActivityStateActive, baseTime)
	seedActivity(t, documentStore, "202", "100", "201", "inner2", models.ActivityTypeServiceTask, models.ActivityStateActive, baseTime.Add(2*time.Second))
	seedActivity(t, documentStore, "203", "100", "201", "inner1", models.ActivityTypeServiceTask, models.ActivityStateCompleted, baseTime.Add(time.Second))
	seedActivity(t, documentStore, "204", "100", "100", "after", models.ActivityTypeServiceTask, models.ActivityStateActive, baseTime.Add(3*time.Second))

	reader := NewTreeReader(documentStore, log.WithModule("readmodel"))

	roots, err := reader.ActivityTree(t.Context(), "100")
	require.NoError(t, err)
	require.Len(t, roots, 2)

	assert.Equal(t, "sub", roots[0].ActivityID)
	assert.Equal(t, "after", roots[1].ActivityID)

	require.Len(t, roots[0].Children, 2)
	assert.Equal(t, "inner1", roots[0].Children[0].ActivityID)
	assert.Equal(t, "inner2", roots[0].Children[1].ActivityID)
	assert.Empty(t, roots[1].Children)
}

func TestActivityTreeIncidentPropagatesThroughNestedScopes(t *testing.T) {
	documentStore := memory.NewStore()
	seedInstance(t, documentStore, "100", models.InstanceStateActive, baseTime)

	// A ⊃ B ⊃ task carries the incident; the sibling branch must not.
	seedActivity(t, documentStore, "201", "100", "100", "subA", models.ActivityTypeSubProcess, models.ActivityStateActive, baseTime)
	seedActivity(t, documentStore, "202", "100", "201", "subB", models.ActivityTypeSubProcess, models.ActivityStateActive, baseTime.Add(time.Second))
	seedActivity(t, documentStore, "203", "100", "202", "task", models.ActivityTypeServiceTask, models.ActivityStateActive, baseTime.Add(2*time.Second))
	seedActivity(t, documentStore, "204", "100", "100", "sibling", models.ActivityTypeServiceTask, models.ActivityStateActive, baseTime.Add(3*time.Second))

	seedIncident(t, documentStore, "301", "100", "task", "203", "JOB_NO_RETRIES", "boom", models.IncidentStateActive, baseTime.Add(4*time.Second))

	reader := NewTreeReader(documentStore, log.WithModule("readmodel"))

	roots, err := reader.ActivityTree(t.Context(), "100")
	require.NoError(t, err)
	require.Len(t, roots, 2)

	subA := roots[0]
	require.Equal(t, "subA", subA.ActivityID)
	assert.Equal(t, models.ActivityStateIncident, subA.State)

	subB := subA.Children[0]
	assert.Equal(t, models.ActivityStateIncident, subB.State)
	assert.Equal(t, models.ActivityStateIncident, subB.Children[0].State)

	assert.Equal(t, models.ActivityStateActive, roots[1].State)
}

func TestActivityTreeResolvedIncidentDoesNotPropagate(t *testing.T) {
	documentStore := memory.NewStore()
	seedInstance(t, documentStore, "100", models.InstanceStateActive, baseTime)
	seedActivity(t, documentStore, "201", "100", "100", "task", models.ActivityTypeServiceTask, models.ActivityStateActive, baseTime)
	seedIncident(t, documentStore, "301", "100", "task", "201", "JOB_NO_RETRIES", "boom", models.IncidentStateResolved, baseTime)

	reader := NewTreeReader(documentStore, log.WithModule("readmodel"))

	roots, err := reader.ActivityTree(t.Context(), "100")
	require.NoError(t, err)
	require.Len(t, roots, 1)
	assert.Equal(t, models.ActivityStateActive, roots[0].State)
}
