package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strand-search/strand/internal/analyzer"
	"github.com/strand-search/strand/internal/config"
	"github.com/strand-search/strand/internal/index"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	mgr, err := index.OpenManager("", analyzer.New(), log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })
	return New(mgr, config.Default(), log)
}

func do(t *testing.T, s *Server, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var payload map[string]any
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &payload)
	}
	return rec, payload
}

func createMovies(t *testing.T, s *Server) {
	t.Helper()
	rec, _ := do(t, s, http.MethodPost, "/indexes", map[string]any{"uid": "movies", "primaryKey": "id"})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec, _ = do(t, s, http.MethodPost, "/indexes/movies/documents", []map[string]any{
		{"id": "1", "title": "The Winter Soldier", "genre": "action"},
		{"id": "2", "title": "Winter Sleep", "genre": "drama"},
		{"id": "3", "title": "Summer Nights", "genre": "drama"},
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
}

func TestCreateIndex(t *testing.T) {
	s := newTestServer(t)

	rec, payload := do(t, s, http.MethodPost, "/indexes", map[string]any{"uid": "movies"})
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "movies", payload["uid"])
	assert.Equal(t, "movies", payload["name"])
}

func TestCreateIndex_RequiresUID(t *testing.T) {
	s := newTestServer(t)

	rec, payload := do(t, s, http.MethodPost, "/indexes", map[string]any{"primaryKey": "id"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, payload["message"], "uid")
}

func TestCreateIndex_InvalidUID(t *testing.T) {
	s := newTestServer(t)

	rec, _ := do(t, s, http.MethodPost, "/indexes", map[string]any{"uid": "bad uid!"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateIndex_Duplicate(t *testing.T) {
	s := newTestServer(t)

	rec, _ := do(t, s, http.MethodPost, "/indexes", map[string]any{"uid": "movies"})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec, _ = do(t, s, http.MethodPost, "/indexes", map[string]any{"uid": "movies"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetIndex_Unknown(t *testing.T) {
	s := newTestServer(t)

	rec, payload := do(t, s, http.MethodGet, "/indexes/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, payload["message"], "ghost")
}

func TestRenameIndex(t *testing.T) {
	s := newTestServer(t)
	createMovies(t, s)

	rec, payload := do(t, s, http.MethodPut, "/indexes/movies", map[string]any{"name": "films"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "films", payload["name"])
	assert.Equal(t, "movies", payload["uid"], "uid is immutable")
}

func TestDeleteIndex(t *testing.T) {
	s := newTestServer(t)
	createMovies(t, s)

	rec, _ := do(t, s, http.MethodDelete, "/indexes/movies", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec, _ = do(t, s, http.MethodGet, "/indexes/movies", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListIndexes(t *testing.T) {
	s := newTestServer(t)
	for _, uid := range []string{"one", "two"} {
		rec, _ := do(t, s, http.MethodPost, "/indexes", map[string]any{"uid": uid})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/indexes", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var list []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 2)
}

func TestSearch_Basic(t *testing.T) {
	s := newTestServer(t)
	createMovies(t, s)

	rec, payload := do(t, s, http.MethodPost, "/indexes/movies/search", map[string]any{"q": "winter"})
	require.Equal(t, http.StatusOK, rec.Code)

	hits := payload["hits"].([]any)
	require.Len(t, hits, 2)
	first := hits[0].(map[string]any)
	assert.Equal(t, "The Winter Soldier", first["title"])
	assert.Equal(t, float64(2), payload["estimatedTotalHits"])
}

func TestSearch_GetWithQueryParams(t *testing.T) {
	s := newTestServer(t)
	createMovies(t, s)

	rec, payload := do(t, s, http.MethodGet, "/indexes/movies/search?q=winter&limit=1&offset=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	hits := payload["hits"].([]any)
	require.Len(t, hits, 1)
	assert.Equal(t, "Winter Sleep", hits[0].(map[string]any)["title"])
}

func TestSearch_Highlight(t *testing.T) {
	s := newTestServer(t)
	createMovies(t, s)

	rec, payload := do(t, s, http.MethodPost, "/indexes/movies/search", map[string]any{
		"q":                     "winter",
		"attributesToHighlight": []string{"title"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	first := payload["hits"].([]any)[0].(map[string]any)
	formatted := first["_formatted"].(map[string]any)
	assert.Equal(t, "The <em>Winter</em> Soldier", formatted["title"])
}

func TestSearch_UnknownIndex(t *testing.T) {
	s := newTestServer(t)

	rec, _ := do(t, s, http.MethodPost, "/indexes/ghost/search", map[string]any{"q": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSearch_InvalidSortField(t *testing.T) {
	s := newTestServer(t)
	createMovies(t, s)

	rec, payload := do(t, s, http.MethodPost, "/indexes/movies/search", map[string]any{
		"q":    "winter",
		"sort": []string{"missing:asc"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, payload["message"], "missing")
}

func TestSearch_LimitCapped(t *testing.T) {
	s := newTestServer(t)
	createMovies(t, s)

	rec, _ := do(t, s, http.MethodPost, "/indexes/movies/search", map[string]any{
		"q":     "winter",
		"limit": 100000,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSettings_RoundTrip(t *testing.T) {
	s := newTestServer(t)
	createMovies(t, s)

	rec, _ := do(t, s, http.MethodPost, "/indexes/movies/settings", map[string]any{
		"searchableAttributes": []string{"title"},
		"rankingRules":         []string{"words", "typo"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, payload := do(t, s, http.MethodGet, "/indexes/movies/settings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"words", "typo"}, payload["rankingRules"])
}

func TestSearch_DistinctAttribute(t *testing.T) {
	s := newTestServer(t)
	createMovies(t, s)

	rec, _ := do(t, s, http.MethodPost, "/indexes/movies/settings", map[string]any{
		"distinctAttribute": "genre",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, payload := do(t, s, http.MethodPost, "/indexes/movies/search", map[string]any{"q": ""})
	require.Equal(t, http.StatusOK, rec.Code)
	hits := payload["hits"].([]any)
	assert.Len(t, hits, 2, "one hit per distinct genre")
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec, payload := do(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "available", payload["status"])
}
