package search

import (
	"context"
	"hash/fnv"

	"github.com/RoaringBitmap/roaring/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	strerrors "github.com/strand-search/strand/internal/errors"
	"github.com/strand-search/strand/internal/store"
)

// condCacheKey keys the condition cache. The same condition scoped to
// different universes yields different bitmaps, so the universe fingerprint
// is part of the key.
type condCacheKey struct {
	rule         string
	condition    string
	universeHash uint64
}

// ConditionCache memoizes resolved condition bitmaps across queries.
// Keys are content-based (rule id + condition key + universe fingerprint),
// never per-query handles, so entries stay valid between queries against the
// same snapshot generation.
type ConditionCache struct {
	cache *lru.Cache[condCacheKey, *roaring.Bitmap]
}

// NewConditionCache creates an LRU-bounded cache. size <= 0 disables caching.
func NewConditionCache(size int) *ConditionCache {
	if size <= 0 {
		return &ConditionCache{}
	}
	c, err := lru.New[condCacheKey, *roaring.Bitmap](size)
	if err != nil {
		return &ConditionCache{}
	}
	return &ConditionCache{cache: c}
}

func (c *ConditionCache) get(k condCacheKey) (*roaring.Bitmap, bool) {
	if c == nil || c.cache == nil {
		return nil, false
	}
	bm, ok := c.cache.Get(k)
	if !ok {
		return nil, false
	}
	return bm.Clone(), true
}

func (c *ConditionCache) add(k condCacheKey, bm *roaring.Bitmap) {
	if c == nil || c.cache == nil {
		return
	}
	c.cache.Add(k, bm.Clone())
}

// Purge drops every entry. Called when an index publishes a new snapshot.
func (c *ConditionCache) Purge() {
	if c != nil && c.cache != nil {
		c.cache.Purge()
	}
}

// Context is the per-query search context: the read transaction, the
// condition cache, and cancellation. It is single-threaded; nothing in it is
// shared across goroutines.
type Context struct {
	ctx   context.Context
	Txn   store.Txn
	cache *ConditionCache
}

// NewContext binds a query to its transaction and cache.
func NewContext(ctx context.Context, txn store.Txn, cache *ConditionCache) *Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Context{ctx: ctx, Txn: txn, cache: cache}
}

// CheckCancelled returns an ErrCodeInterrupted error when the request context
// is done.
// The driver polls this once per outer loop iteration, and the graph
// framework once per condition resolution.
func (c *Context) CheckCancelled() error {
	if err := c.ctx.Err(); err != nil {
		return strerrors.Interrupted(err)
	}
	return nil
}

// resolveCached resolves a condition through the cache.
func (c *Context) resolveCached(rule, condition string, universe *roaring.Bitmap,
	resolve func() (*roaring.Bitmap, error)) (*roaring.Bitmap, error) {

	fingerprint := universeFingerprint(universe)
	if fingerprint == ^uint64(0) {
		return resolve()
	}
	key := condCacheKey{rule: rule, condition: condition, universeHash: fingerprint}
	if bm, ok := c.cache.get(key); ok {
		return bm, nil
	}
	bm, err := resolve()
	if err != nil {
		return nil, err
	}
	c.cache.add(key, bm)
	return bm, nil
}

// universeFingerprint hashes the serialized universe. Cheaper keys
// (cardinality, bounds) would collide across different universes and make
// the cache unsound.
func universeFingerprint(u *roaring.Bitmap) uint64 {
	data, err := u.ToBytes()
	if err != nil {
		// Serialization of an in-memory bitmap does not fail in
		// practice; disable caching for this lookup if it ever does.
		return ^uint64(0)
	}
	h := fnv.New64a()
	_, _ = h.Write(data)
	return h.Sum64()
}
