package addrindex

import (
	"context"

	"github.com/bsv-blockchain/fullnode/model"
	"github.com/jellydator/ttlcache/v3"
)

// cacheState is the {clean, dirty, deleted} state machine Open Question (1)
// asks for: the eviction callback branches on this instead of inverting a
// possibly-nil check.
type cacheState int

const (
	stateClean cacheState = iota
	stateDirty
	stateDeleted
)

// cachedOutPoint is the out-point cache's value type: the unspent output's
// script/amount plus its write-back state.
type cachedOutPoint struct {
	script []byte
	amount uint64
	state  cacheState
}

const defaultOutPointCacheCapacity = 60000

// outPointCache is the LRU-like out-point cache (§4.4 step 1), backed by a
// jellydator/ttlcache/v3 cache whose eviction callback writes dirty entries
// through to repo and deletes consumed ones from it; stop does the same for
// every entry still cached.
type outPointCache struct {
	cache *ttlcache.Cache[model.OutPoint, *cachedOutPoint]
	repo  Repository
}

func newOutPointCache(repo Repository, capacity uint64) *outPointCache {
	if capacity == 0 {
		capacity = defaultOutPointCacheCapacity
	}

	c := &outPointCache{repo: repo}
	c.cache = ttlcache.New[model.OutPoint, *cachedOutPoint](
		ttlcache.WithCapacity[model.OutPoint, *cachedOutPoint](capacity),
		ttlcache.WithTTL[model.OutPoint, *cachedOutPoint](ttlcache.NoTTL),
	)
	c.cache.OnEviction(func(_ context.Context, _ ttlcache.EvictionReason, item *ttlcache.Item[model.OutPoint, *cachedOutPoint]) {
		entry := item.Value()
		switch entry.state {
		case stateDirty:
			_ = c.repo.PutOutPoint(item.Key(), entry.script, entry.amount)
		case stateDeleted:
			_ = c.repo.DeleteOutPoint(item.Key())
		case stateClean:
			// already on disk and unmodified, nothing to write back
		}
	})
	go c.cache.Start()
	return c
}

func (c *outPointCache) stop() {
	for op, item := range c.cache.Items() {
		entry := item.Value()
		switch entry.state {
		case stateDirty:
			_ = c.repo.PutOutPoint(op, entry.script, entry.amount)
		case stateDeleted:
			_ = c.repo.DeleteOutPoint(op)
		case stateClean:
		}
	}
	c.cache.Stop()
}

// add inserts a newly-created unspent out-point as dirty, per §4.4 step 1.
func (c *outPointCache) add(op model.OutPoint, script []byte, amount uint64) {
	c.cache.Set(op, &cachedOutPoint{script: script, amount: amount, state: stateDirty}, ttlcache.NoTTL)
}

// get returns the out-point's script/amount, falling back to repo when the
// cache has evicted (or never held) it.
func (c *outPointCache) get(op model.OutPoint) (script []byte, amount uint64, ok bool) {
	if item := c.cache.Get(op); item != nil {
		entry := item.Value()
		if entry.state == stateDeleted {
			return nil, 0, false
		}
		return entry.script, entry.amount, true
	}

	script, amount, err := c.repo.GetOutPoint(op)
	if err != nil {
		return nil, 0, false
	}
	return script, amount, true
}

// remove marks op consumed (§4.4 step 5: "delete consumed out-point entries
// from the cache"). A cached-but-clean entry is marked deleted so eviction
// issues the disk delete; an absent entry is deleted from repo directly.
func (c *outPointCache) remove(op model.OutPoint) {
	if item := c.cache.Get(op); item != nil {
		entry := item.Value()
		entry.state = stateDeleted
		c.cache.Set(op, entry, ttlcache.NoTTL)
		return
	}
	_ = c.repo.DeleteOutPoint(op)
}

// restore re-adds a consumed out-point on rewind (§4.4 "Reorg").
func (c *outPointCache) restore(op model.OutPoint, script []byte, amount uint64) {
	c.add(op, script, amount)
}

