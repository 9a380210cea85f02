package index

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strand-search/strand/internal/analyzer"
	strerrors "github.com/strand-search/strand/internal/errors"
	"github.com/strand-search/strand/internal/search"
	"github.com/strand-search/strand/internal/store"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	m, err := OpenManager("", analyzer.New(), log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestValidUID(t *testing.T) {
	tests := []struct {
		uid  string
		want bool
	}{
		{"movies", true},
		{"movies_2024", true},
		{"My-Index", true},
		{"", false},
		{"has space", false},
		{"sémantique", false},
		{"slash/uid", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ValidUID(tt.uid), tt.uid)
	}
}

func TestManager_CreateGetDelete(t *testing.T) {
	m := newTestManager(t)

	meta, err := m.Create("movies", "", "id")
	require.NoError(t, err)
	assert.Equal(t, "movies", meta.UID)
	assert.Equal(t, "movies", meta.Name, "name defaults to uid")

	ix, err := m.Get("movies")
	require.NoError(t, err)
	assert.Zero(t, ix.DocumentCount())

	require.NoError(t, m.Delete("movies"))
	_, err = m.Get("movies")
	assert.Equal(t, strerrors.ErrCodeIndexNotFound, strerrors.CodeOf(err))
}

func TestManager_CreateRejectsBadUID(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Create("bad uid!", "", "")
	require.Error(t, err)
	assert.Equal(t, strerrors.ErrCodeInvalidIndexUID, strerrors.CodeOf(err))
}

func TestManager_CreateDuplicate(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Create("movies", "", "")
	require.NoError(t, err)
	_, err = m.Create("movies", "", "")
	assert.Equal(t, strerrors.ErrCodeIndexExists, strerrors.CodeOf(err))
}

func TestManager_Rename(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Create("movies", "movies", "")
	require.NoError(t, err)

	meta, err := m.Rename("movies", "films")
	require.NoError(t, err)
	assert.Equal(t, "films", meta.Name)
	assert.Equal(t, "movies", meta.UID)

	_, err = m.Rename("ghost", "x")
	assert.Equal(t, strerrors.ErrCodeIndexNotFound, strerrors.CodeOf(err))
}

func TestManager_AddDocumentsInfersPrimaryKey(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Create("movies", "", "")
	require.NoError(t, err)

	pk, err := m.AddDocuments("movies", []map[string]any{
		{"movie_id": 1.0, "title": "Dune"},
		{"movie_id": 2.0, "title": "Alien"},
	}, "")
	require.NoError(t, err)
	assert.Equal(t, "movie_id", pk)

	ix, err := m.Get("movies")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), ix.DocumentCount())
}

func TestManager_AddDocumentsNoInferrablePK(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Create("movies", "", "")
	require.NoError(t, err)

	_, err = m.AddDocuments("movies", []map[string]any{
		{"title": "Dune"},
	}, "")
	require.Error(t, err)
	assert.Equal(t, strerrors.ErrCodeMissingPrimaryKey, strerrors.CodeOf(err))
}

func TestManager_AddDocumentsMissingPKField(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Create("movies", "", "id")
	require.NoError(t, err)

	_, err = m.AddDocuments("movies", []map[string]any{
		{"id": 1.0, "title": "ok"},
		{"title": "missing id"},
	}, "")
	require.Error(t, err)
	assert.Equal(t, strerrors.ErrCodeInvalidDocument, strerrors.CodeOf(err))
}

func TestManager_AddDocumentsUpsertsByExternalID(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Create("movies", "", "id")
	require.NoError(t, err)

	_, err = m.AddDocuments("movies", []map[string]any{
		{"id": 1.0, "title": "old title"},
	}, "")
	require.NoError(t, err)
	_, err = m.AddDocuments("movies", []map[string]any{
		{"id": 1.0, "title": "new title"},
	}, "")
	require.NoError(t, err)

	ix, err := m.Get("movies")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), ix.DocumentCount())

	txn, err := ix.BeginTxn()
	require.NoError(t, err)
	defer txn.Close()

	doc, err := txn.Document(0)
	require.NoError(t, err)
	assert.Equal(t, "new title", doc["title"])
}

func TestManager_SearchAfterIngestion(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Create("movies", "", "id")
	require.NoError(t, err)

	_, err = m.AddDocuments("movies", []map[string]any{
		{"id": 1.0, "title": "The Winter Soldier"},
		{"id": 2.0, "title": "Winter Sleep"},
		{"id": 3.0, "title": "Summer Nights"},
	}, "")
	require.NoError(t, err)

	ix, err := m.Get("movies")
	require.NoError(t, err)
	txn, err := ix.BeginTxn()
	require.NoError(t, err)
	defer txn.Close()

	res, err := search.Search(context.Background(), txn, m.Analyzer(), ix.Cache(),
		ix.Settings().RankingRules, search.Request{Query: "winter", Limit: 10}, search.NopLogger{})
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 1}, res.Docids)

	id, ok := txn.ExternalID(0)
	require.True(t, ok)
	assert.Equal(t, "1", id)
}

func TestManager_UpdateSettingsRebuilds(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Create("movies", "", "id")
	require.NoError(t, err)

	_, err = m.AddDocuments("movies", []map[string]any{
		{"id": 1.0, "title": "public", "internal": "secretword"},
	}, "")
	require.NoError(t, err)

	require.NoError(t, m.UpdateSettings("movies", Settings{
		SearchableAttributes: []string{"title"},
	}))

	ix, err := m.Get("movies")
	require.NoError(t, err)
	txn, err := ix.BeginTxn()
	require.NoError(t, err)
	defer txn.Close()

	hidden, err := txn.WordDocids("secretword")
	require.NoError(t, err)
	assert.True(t, hidden.IsEmpty(), "non-searchable fields leave the postings after rebuild")
}

func TestSettingsFrom_CorruptBlob(t *testing.T) {
	s, err := settingsFrom(nil)
	require.NoError(t, err)
	assert.Equal(t, Settings{}, s)

	s, err = settingsFrom([]byte(`{"rankingRules":["words"]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"words"}, s.RankingRules)

	_, err = settingsFrom([]byte("{not json"))
	require.Error(t, err)
	assert.Equal(t, strerrors.ErrCodeStoreCorruption, strerrors.CodeOf(err))
}

// A catalog whose settings blob no longer decodes must fail to open as
// corruption, not come up with default settings.
func TestManager_CorruptSettingsSurfaceAsCorruption(t *testing.T) {
	dir := t.TempDir()

	c, err := store.OpenCatalog(filepath.Join(dir, "catalog.db"))
	require.NoError(t, err)
	_, err = c.CreateIndex("movies", "movies", "", []byte("{not json"))
	require.NoError(t, err)
	require.NoError(t, c.Close())

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err = OpenManager(dir, analyzer.New(), log)
	require.Error(t, err)
	assert.Equal(t, strerrors.ErrCodeStoreCorruption, strerrors.CodeOf(err))
}

func TestManager_ListOrder(t *testing.T) {
	m := newTestManager(t)
	for _, uid := range []string{"c", "a", "b"} {
		_, err := m.Create(uid, "", "")
		require.NoError(t, err)
	}
	list := m.List()
	require.Len(t, list, 3)
	assert.ElementsMatch(t,
		[]string{"a", "b", "c"},
		[]string{list[0].UID, list[1].UID, list[2].UID})
}
