package engine

import (
	"github.com/dgraph-io/ristretto/v2"
)

// hotCache is a best-effort read cache from "dbName\x00key" to the record
// bytes last known to be current, consulted only by the non-transactional
// find (findDirect) before it searches the B-tree. It is advisory only: a miss just means the normal walk
// runs, and it is never the source of truth for conflict resolution.
type hotCache struct {
	cache *ristretto.Cache[string, []byte]
}

func newHotCache() *hotCache {
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: 1e5,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		// A misconfigured cache is a programming error, not a runtime
		// condition callers can react to — the cache is advisory, so
		// degrade to "always miss" rather than fail database open.
		return &hotCache{}
	}
	return &hotCache{cache: c}
}

func hotCacheKey(dbName string, key []byte) string {
	return dbName + "\x00" + string(key)
}

func (h *hotCache) get(dbName string, key []byte) ([]byte, bool) {
	if h == nil || h.cache == nil {
		return nil, false
	}
	v, ok := h.cache.Get(hotCacheKey(dbName, key))
	return v, ok
}

func (h *hotCache) set(dbName string, key, record []byte) {
	if h == nil || h.cache == nil {
		return
	}
	h.cache.Set(hotCacheKey(dbName, key), record, int64(len(record)))
}

func (h *hotCache) invalidate(dbName string, key []byte) {
	if h == nil || h.cache == nil {
		return
	}
	h.cache.Del(hotCacheKey(dbName, key))
}
