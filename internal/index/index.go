// Package index manages index lifecycle: creation, settings, document
// ingestion and the rebuild of in-memory postings from the catalog.
package index

import (
	"encoding/json"
	"fmt"
	"regexp"

	strerrors "github.com/strand-search/strand/internal/errors"
	"github.com/strand-search/strand/internal/search"
	"github.com/strand-search/strand/internal/store"
)

// uidPattern is the allowed shape of an index uid.
var uidPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// MaxUIDLength bounds index uids.
const MaxUIDLength = 400

// ValidUID reports whether uid is acceptable.
func ValidUID(uid string) bool {
	return uid != "" && len(uid) <= MaxUIDLength && uidPattern.MatchString(uid)
}

// Settings is the per-index configuration.
type Settings struct {
	// DisplayedAttributes limits the fields hits may contain.
	// Nil or ["*"] means every field.
	DisplayedAttributes []string `json:"displayedAttributes,omitempty"`

	// SearchableAttributes lists the indexed fields in attribute-ranking
	// order. Nil means every field.
	SearchableAttributes []string `json:"searchableAttributes,omitempty"`

	// RankingRules orders the retrieval pipeline. Nil means the default
	// [words, typo, proximity, attribute, exactness].
	RankingRules []string `json:"rankingRules,omitempty"`

	// DistinctAttribute keeps at most one document per value.
	DistinctAttribute string `json:"distinctAttribute,omitempty"`

	// SortableAttributes lists fields accepted in sort directives.
	SortableAttributes []string `json:"sortableAttributes,omitempty"`
}

// marshal serializes settings for the catalog.
func (s Settings) marshal() []byte {
	data, err := json.Marshal(s)
	if err != nil {
		return []byte("{}")
	}
	return data
}

// settingsFrom decodes a catalog settings blob. A blob that fails to decode
// is catalog corruption, not a reason to silently reset the index to
// default settings.
func settingsFrom(data []byte) (Settings, error) {
	var s Settings
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return Settings{}, strerrors.StoreCorruption(
			fmt.Errorf("index settings are not valid JSON: %w", err))
	}
	return s, nil
}

// buildOptions derives posting-build options from the settings.
func (s Settings) buildOptions() store.BuildOptions {
	return store.BuildOptions{
		SearchableFields: s.SearchableAttributes,
		DistinctField:    s.DistinctAttribute,
	}
}

// Index is one live index: catalog metadata, settings, and the in-memory
// postings the retrieval core reads.
type Index struct {
	meta     *store.IndexMeta
	settings Settings
	mem      *store.MemoryIndex
	cache    *search.ConditionCache
}

// Meta returns the catalog row.
func (ix *Index) Meta() *store.IndexMeta { return ix.meta }

// Settings returns the current settings.
func (ix *Index) Settings() Settings { return ix.settings }

// BeginTxn pins a snapshot of the postings.
func (ix *Index) BeginTxn() (store.Txn, error) { return ix.mem.BeginTxn() }

// Cache is the index's condition cache, purged on every rebuild.
func (ix *Index) Cache() *search.ConditionCache { return ix.cache }

// DocumentCount returns the number of live documents.
func (ix *Index) DocumentCount() uint64 { return ix.mem.DocumentCount() }
