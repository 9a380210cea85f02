package index

import (
	"log/slog"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/strand-search/strand/internal/analyzer"
	strerrors "github.com/strand-search/strand/internal/errors"
	"github.com/strand-search/strand/internal/search"
	"github.com/strand-search/strand/internal/store"
)

// Manager owns the catalog, the data-directory lock and every live index.
// All mutations run under the manager lock; searches only need a snapshot
// transaction and run lock-free.
type Manager struct {
	mu      sync.RWMutex
	catalog *store.Catalog
	dirLock *store.DirLock
	an      *analyzer.Analyzer
	log     *slog.Logger

	indexes   map[string]*Index
	cacheSize int
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithConditionCacheSize sets the per-index condition cache size.
func WithConditionCacheSize(n int) ManagerOption {
	return func(m *Manager) { m.cacheSize = n }
}

// OpenManager locks dataDir, opens the catalog and rebuilds the postings of
// every stored index. An empty dataDir runs fully in memory (tests).
func OpenManager(dataDir string, an *analyzer.Analyzer, log *slog.Logger, opts ...ManagerOption) (*Manager, error) {
	m := &Manager{
		an:        an,
		log:       log,
		indexes:   map[string]*Index{},
		cacheSize: 4096,
	}
	for _, opt := range opts {
		opt(m)
	}

	catalogPath := ""
	if dataDir != "" {
		lock, err := store.AcquireDirLock(dataDir)
		if err != nil {
			return nil, err
		}
		m.dirLock = lock
		catalogPath = filepath.Join(dataDir, "catalog.db")
	}

	catalog, err := store.OpenCatalog(catalogPath)
	if err != nil {
		if m.dirLock != nil {
			_ = m.dirLock.Release()
		}
		return nil, err
	}
	m.catalog = catalog

	if err := m.loadAll(); err != nil {
		_ = m.Close()
		return nil, err
	}
	return m, nil
}

// loadAll rebuilds every stored index's postings, in parallel: rebuilds are
// CPU-bound tokenization and independent per index.
func (m *Manager) loadAll() error {
	metas, err := m.catalog.ListIndexes()
	if err != nil {
		return err
	}

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))

	var mu sync.Mutex
	for _, meta := range metas {
		g.Go(func() error {
			ix, err := m.buildIndex(meta)
			if err != nil {
				return err
			}
			mu.Lock()
			m.indexes[meta.UID] = ix
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if len(metas) > 0 {
		m.log.Info("indexes loaded", slog.Int("count", len(metas)))
	}
	return nil
}

func (m *Manager) buildIndex(meta *store.IndexMeta) (*Index, error) {
	settings, err := settingsFrom(meta.Settings)
	if err != nil {
		return nil, err
	}
	ix := &Index{
		meta:     meta,
		settings: settings,
		mem:      store.NewMemoryIndex(),
		cache:    search.NewConditionCache(m.cacheSize),
	}
	docs, err := m.catalog.LoadDocuments(meta.UID)
	if err != nil {
		return nil, err
	}
	if err := ix.mem.Rebuild(docs, settings.buildOptions(), m.an); err != nil {
		return nil, err
	}
	return ix, nil
}

// Close releases the catalog and the directory lock.
func (m *Manager) Close() error {
	err := m.catalog.Close()
	if m.dirLock != nil {
		if lerr := m.dirLock.Release(); err == nil {
			err = lerr
		}
	}
	return err
}

// Create registers a new empty index.
func (m *Manager) Create(uid, name, primaryKey string) (*store.IndexMeta, error) {
	if !ValidUID(uid) {
		return nil, strerrors.Newf(strerrors.ErrCodeInvalidIndexUID,
			"invalid index uid %q, expected [A-Za-z0-9_-]+", uid)
	}
	if name == "" {
		name = uid
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	meta, err := m.catalog.CreateIndex(uid, name, primaryKey, Settings{}.marshal())
	if err != nil {
		return nil, err
	}
	m.indexes[uid] = &Index{
		meta:     meta,
		settings: Settings{},
		mem:      store.NewMemoryIndex(),
		cache:    search.NewConditionCache(m.cacheSize),
	}
	m.log.Info("index created", slog.String("uid", uid))
	return meta, nil
}

// Get returns a live index.
func (m *Manager) Get(uid string) (*Index, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ix, ok := m.indexes[uid]
	if !ok {
		return nil, strerrors.IndexNotFound(uid)
	}
	return ix, nil
}

// List returns index metadata in creation order.
func (m *Manager) List() []*store.IndexMeta {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*store.IndexMeta, 0, len(m.indexes))
	for _, ix := range m.indexes {
		out = append(out, ix.meta)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].UID < out[j].UID
	})
	return out
}

// Rename changes the display name. The uid is immutable.
func (m *Manager) Rename(uid, name string) (*store.IndexMeta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ix, ok := m.indexes[uid]
	if !ok {
		return nil, strerrors.IndexNotFound(uid)
	}
	if err := m.catalog.RenameIndex(uid, name); err != nil {
		return nil, err
	}
	ix.meta.Name = name
	return ix.meta, nil
}

// Delete drops the index and its documents.
func (m *Manager) Delete(uid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.indexes[uid]; !ok {
		return strerrors.IndexNotFound(uid)
	}
	if err := m.catalog.DeleteIndex(uid); err != nil {
		return err
	}
	delete(m.indexes, uid)
	m.log.Info("index deleted", slog.String("uid", uid))
	return nil
}

// UpdateSettings persists new settings and rebuilds the postings, since
// the searchable attributes and the distinct field shape the build.
func (m *Manager) UpdateSettings(uid string, settings Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ix, ok := m.indexes[uid]
	if !ok {
		return strerrors.IndexNotFound(uid)
	}
	if err := m.catalog.UpdateSettings(uid, settings.marshal()); err != nil {
		return err
	}
	ix.settings = settings

	docs, err := m.catalog.LoadDocuments(uid)
	if err != nil {
		return err
	}
	if err := ix.mem.Rebuild(docs, settings.buildOptions(), m.an); err != nil {
		return err
	}
	ix.cache.Purge()
	return nil
}

// AddDocuments ingests documents. The primary key is taken from the index,
// the explicit argument, or inferred from the first document (a field whose
// name ends in "id", case-insensitive).
//
// Returns the primary key in effect.
func (m *Manager) AddDocuments(uid string, docs []map[string]any, primaryKey string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ix, ok := m.indexes[uid]
	if !ok {
		return "", strerrors.IndexNotFound(uid)
	}
	if len(docs) == 0 {
		return ix.meta.PrimaryKey, nil
	}

	pk := ix.meta.PrimaryKey
	if pk == "" {
		pk = primaryKey
	}
	if pk == "" {
		pk = inferPrimaryKey(docs[0])
	}
	if pk == "" {
		return "", strerrors.Newf(strerrors.ErrCodeMissingPrimaryKey,
			"no primary key set and none could be inferred from the first document")
	}

	raw := make([]store.RawDocument, len(docs))
	for i, fields := range docs {
		id, ok := externalID(fields[pk])
		if !ok {
			return "", strerrors.Newf(strerrors.ErrCodeInvalidDocument,
				"document %d is missing the primary key field %q", i, pk)
		}
		raw[i] = store.RawDocument{ExternalID: id, Fields: fields}
	}

	if err := m.catalog.UpsertDocuments(uid, raw); err != nil {
		return "", err
	}
	if ix.meta.PrimaryKey == "" {
		if err := m.catalog.UpdatePrimaryKey(uid, pk); err != nil {
			return "", err
		}
		ix.meta.PrimaryKey = pk
	}

	all, err := m.catalog.LoadDocuments(uid)
	if err != nil {
		return "", err
	}
	if err := ix.mem.Rebuild(all, ix.settings.buildOptions(), m.an); err != nil {
		return "", err
	}
	ix.cache.Purge()

	m.log.Info("documents indexed",
		slog.String("uid", uid),
		slog.Int("received", len(docs)),
		slog.Uint64("total", ix.mem.DocumentCount()))
	return pk, nil
}

// Analyzer returns the shared analysis chain.
func (m *Manager) Analyzer() *analyzer.Analyzer { return m.an }

// inferPrimaryKey picks the first field (alphabetically) whose name ends in
// "id", matching the original engine's auto-inference.
func inferPrimaryKey(doc map[string]any) string {
	var candidates []string
	for field := range doc {
		if strings.HasSuffix(strings.ToLower(field), "id") {
			candidates = append(candidates, field)
		}
	}
	if len(candidates) == 0 {
		return ""
	}
	sort.Strings(candidates)
	return candidates[0]
}

func externalID(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		if x == "" {
			return "", false
		}
		return x, true
	case float64:
		return store.Value{Kind: store.ValueNumber, Num: x}.String(), true
	default:
		return "", false
	}
}
