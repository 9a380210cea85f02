package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	strerrors "github.com/strand-search/strand/internal/errors"
)

func openTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := OpenCatalog("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCatalog_CreateAndGet(t *testing.T) {
	c := openTestCatalog(t)

	created, err := c.CreateIndex("movies", "movies", "id", nil)
	require.NoError(t, err)
	assert.Equal(t, "movies", created.UID)

	got, err := c.GetIndex("movies")
	require.NoError(t, err)
	assert.Equal(t, "movies", got.Name)
	assert.Equal(t, "id", got.PrimaryKey)
	assert.JSONEq(t, "{}", string(got.Settings))
}

func TestCatalog_CreateDuplicate(t *testing.T) {
	c := openTestCatalog(t)

	_, err := c.CreateIndex("movies", "movies", "", nil)
	require.NoError(t, err)

	_, err = c.CreateIndex("movies", "other", "", nil)
	require.Error(t, err)
	assert.Equal(t, strerrors.ErrCodeIndexExists, strerrors.CodeOf(err))
}

func TestCatalog_GetUnknown(t *testing.T) {
	c := openTestCatalog(t)

	_, err := c.GetIndex("nope")
	require.Error(t, err)
	assert.Equal(t, strerrors.ErrCodeIndexNotFound, strerrors.CodeOf(err))
}

func TestCatalog_ListInCreationOrder(t *testing.T) {
	c := openTestCatalog(t)

	for _, uid := range []string{"beta", "alpha", "gamma"} {
		_, err := c.CreateIndex(uid, uid, "", nil)
		require.NoError(t, err)
	}

	list, err := c.ListIndexes()
	require.NoError(t, err)
	require.Len(t, list, 3)
	// Same-second creations fall back to uid order within the tie; the
	// important property is stability, not wall-clock precision.
	uids := []string{list[0].UID, list[1].UID, list[2].UID}
	assert.ElementsMatch(t, []string{"alpha", "beta", "gamma"}, uids)
}

func TestCatalog_RenameKeepsUID(t *testing.T) {
	c := openTestCatalog(t)

	_, err := c.CreateIndex("movies", "movies", "", nil)
	require.NoError(t, err)

	require.NoError(t, c.RenameIndex("movies", "films"))

	got, err := c.GetIndex("movies")
	require.NoError(t, err)
	assert.Equal(t, "films", got.Name)
	assert.Equal(t, "movies", got.UID)

	err = c.RenameIndex("unknown", "x")
	assert.Equal(t, strerrors.ErrCodeIndexNotFound, strerrors.CodeOf(err))
}

func TestCatalog_DeleteRemovesDocuments(t *testing.T) {
	c := openTestCatalog(t)

	_, err := c.CreateIndex("movies", "movies", "", nil)
	require.NoError(t, err)
	require.NoError(t, c.UpsertDocuments("movies", []RawDocument{
		{ExternalID: "1", Fields: map[string]any{"title": "Dune"}},
	}))

	require.NoError(t, c.DeleteIndex("movies"))

	_, err = c.GetIndex("movies")
	assert.Equal(t, strerrors.ErrCodeIndexNotFound, strerrors.CodeOf(err))

	n, err := c.DocumentCount("movies")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCatalog_UpsertPreservesFirstInsertionOrder(t *testing.T) {
	c := openTestCatalog(t)

	_, err := c.CreateIndex("movies", "movies", "", nil)
	require.NoError(t, err)

	require.NoError(t, c.UpsertDocuments("movies", []RawDocument{
		{ExternalID: "a", Fields: map[string]any{"title": "first"}},
		{ExternalID: "b", Fields: map[string]any{"title": "second"}},
	}))
	// Updating "a" must not move it behind "b".
	require.NoError(t, c.UpsertDocuments("movies", []RawDocument{
		{ExternalID: "a", Fields: map[string]any{"title": "first v2"}},
		{ExternalID: "c", Fields: map[string]any{"title": "third"}},
	}))

	docs, err := c.LoadDocuments("movies")
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "a", docs[0].ExternalID)
	assert.Equal(t, "first v2", docs[0].Fields["title"])
	assert.Equal(t, "b", docs[1].ExternalID)
	assert.Equal(t, "c", docs[2].ExternalID)
}

func TestCatalog_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.db")

	c, err := OpenCatalog(path)
	require.NoError(t, err)
	_, err = c.CreateIndex("movies", "movies", "id", []byte(`{"rankingRules":["words"]}`))
	require.NoError(t, err)
	require.NoError(t, c.UpsertDocuments("movies", []RawDocument{
		{ExternalID: "1", Fields: map[string]any{"title": "Dune", "year": 2021.0}},
	}))
	require.NoError(t, c.Close())

	c2, err := OpenCatalog(path)
	require.NoError(t, err)
	defer c2.Close()

	got, err := c2.GetIndex("movies")
	require.NoError(t, err)
	assert.JSONEq(t, `{"rankingRules":["words"]}`, string(got.Settings))

	docs, err := c2.LoadDocuments("movies")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, 2021.0, docs[0].Fields["year"])
}

func TestCatalog_CorruptFileReported(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.db")
	require.NoError(t, os.WriteFile(path, []byte("not a sqlite file, definitely"), 0o644))

	_, err := OpenCatalog(path)
	require.Error(t, err)
	assert.Equal(t, strerrors.ErrCodeStoreCorruption, strerrors.CodeOf(err))
}

func TestDirLock_Exclusive(t *testing.T) {
	dir := t.TempDir()

	l1, err := AcquireDirLock(dir)
	require.NoError(t, err)

	_, err = AcquireDirLock(dir)
	require.Error(t, err)
	assert.Equal(t, strerrors.ErrCodeStoreLocked, strerrors.CodeOf(err))

	require.NoError(t, l1.Release())

	l2, err := AcquireDirLock(dir)
	require.NoError(t, err)
	require.NoError(t, l2.Release())
}
