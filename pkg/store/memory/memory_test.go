package memory

import (
	"testing"
	"time"

	"github.com/dukex/flowscope/pkg/models"
	"github.com/dukex/flowscope/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func instanceDoc(t *testing.T, id string, state models.InstanceState, end *time.Time) store.Document {
	t.Helper()

	doc, err := store.NewDocument(&models.WorkflowInstance{
		ID:         id,
		WorkflowID: "wf-1",
		State:      state,
		StartDate:  time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
		EndDate:    end,
	})
	require.NoError(t, err)

	return doc
}

func TestBulkUpsertAndGet(t *testing.T) {
	s := NewStore()
	ctx := t.Context()

	doc := instanceDoc(t, "i-1", models.InstanceStateActive, nil)
	require.NoError(t, s.BulkUpsert(ctx, store.IndexInstance, []store.Document{doc}))

	got, err := s.Get(ctx, store.IndexInstance, "i-1")
	require.NoError(t, err)
	assert.Equal(t, doc.Source, got.Source)

	_, err = s.Get(ctx, store.IndexInstance, "missing")
	assert.ErrorIs(t, err, store.ErrDocumentNotFound)
}

func TestSearchTermsAndPaging(t *testing.T) {
	s := NewStore()
	ctx := t.Context()

	end := time.Date(2026, 8, 1, 11, 0, 0, 0, time.UTC)
	docs := []store.Document{
		instanceDoc(t, "i-1", models.InstanceStateActive, nil),
		instanceDoc(t, "i-2", models.InstanceStateCompleted, &end),
		instanceDoc(t, "i-3", models.InstanceStateCompleted, &end),
	}
	require.NoError(t, s.BulkUpsert(ctx, store.IndexInstance, docs))

	total, page, err := s.Search(ctx, store.IndexInstance, store.Query{
		Terms: map[string]any{"state": string(models.InstanceStateCompleted)},
		Sorts: []store.Sort{{Field: "id", Order: store.SortAsc}},
		Size:  1,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, page, 1)
	assert.Equal(t, "i-2", page[0].ID)
}

func TestSearchEndDateBefore(t *testing.T) {
	s := NewStore()
	ctx := t.Context()

	old := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	recent := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.BulkUpsert(ctx, store.IndexInstance, []store.Document{
		instanceDoc(t, "old", models.InstanceStateCompleted, &old),
		instanceDoc(t, "recent", models.InstanceStateCompleted, &recent),
		instanceDoc(t, "running", models.InstanceStateActive, nil),
	}))

	cutoff := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	total, page, err := s.Search(ctx, store.IndexInstance, store.Query{EndDateBefore: &cutoff})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, page, 1)
	assert.Equal(t, "old", page[0].ID)
}

func TestAliasDeduplicatesMidArchive(t *testing.T) {
	s := NewStore()
	ctx := t.Context()

	doc := instanceDoc(t, "i-1", models.InstanceStateCompleted, nil)
	require.NoError(t, s.BulkUpsert(ctx, store.IndexInstance, []store.Document{doc}))

	// Simulate a half-finished archive run: copied but not yet deleted.
	archive := store.ArchiveIndex(store.IndexInstance, "2026-08-01")
	require.NoError(t, s.Reindex(ctx, store.IndexInstance, archive, []string{"i-1"}))

	total, page, err := s.Search(ctx, store.Alias(store.IndexInstance), store.Query{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, page, 1)

	// After the delete completes the alias still sees the document once.
	require.NoError(t, s.DeleteByIDs(ctx, store.IndexInstance, []string{"i-1"}))

	total, page, err = s.Search(ctx, store.Alias(store.IndexInstance), store.Query{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, page, 1)
	assert.Equal(t, "i-1", page[0].ID)
}

func TestSearchRejectsDocumentWithoutID(t *testing.T) {
	s := NewStore()
	ctx := t.Context()

	require.NoError(t, s.BulkUpsert(ctx, store.IndexInstance, []store.Document{
		{ID: "i-1", Source: []byte(`{"state":"ACTIVE"}`)},
	}))

	_, _, err := s.Search(ctx, store.IndexInstance, store.Query{})
	require.Error(t, err)
	assert.ErrorContains(t, err, "no string id")
}

func TestReindexMissingSource(t *testing.T) {
	s := NewStore()

	err := s.Reindex(t.Context(), "nope", "nope-2026", []string{"x"})
	assert.ErrorIs(t, err, store.ErrIndexNotFound)
}

func TestSearchByIDs(t *testing.T) {
	s := NewStore()
	ctx := t.Context()

	require.NoError(t, s.BulkUpsert(ctx, store.IndexInstance, []store.Document{
		instanceDoc(t, "i-1", models.InstanceStateActive, nil),
		instanceDoc(t, "i-2", models.InstanceStateActive, nil),
		instanceDoc(t, "i-3", models.InstanceStateActive, nil),
	}))

	total, page, err := s.Search(ctx, store.IndexInstance, store.Query{
		IDs:   []string{"i-1", "i-3"},
		Sorts: []store.Sort{{Field: "id", Order: store.SortAsc}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, page, 2)
	assert.Equal(t, "i-1", page[0].ID)
	assert.Equal(t, "i-3", page[1].ID)
}
