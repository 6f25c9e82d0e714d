package collections

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/cuemby/syncstore/pkg/types"
)

// Loader resolves a collection name against a backend when the cache
// misses, and allocates a fresh id when the backend doesn't have it
// either. Implemented by each storage backend.
type Loader interface {
	LookupCollectionID(ctx context.Context, name string) (uint32, bool, error)
	AllocateCollectionID(ctx context.Context, name string) (uint32, error)
}

// Cache is the process-wide, concurrent name<->id bidirectional map.
type Cache struct {
	mu        sync.RWMutex
	nameToID  map[string]uint32
	idToName  map[uint32]string
	maxID     uint32
	loadGroup singleflight.Group
}

// New returns a Cache preloaded with the standard collections.
func New() *Cache {
	c := &Cache{
		nameToID: make(map[string]uint32, len(types.StandardCollections)+16),
		idToName: make(map[uint32]string, len(types.StandardCollections)+16),
		maxID:    types.FirstCustomCollectionID - 1,
	}
	for name, id := range types.StandardCollections {
		c.nameToID[name] = id
		c.idToName[id] = name
	}
	return c
}

// NameToID returns the id for name if cached.
func (c *Cache) NameToID(name string) (uint32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.nameToID[name]
	return id, ok
}

// IDToName returns the name for id if cached. The tombstone id (0) never
// resolves to a name.
func (c *Cache) IDToName(id uint32) (string, bool) {
	if id == types.TombstoneCollectionID {
		return "", false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	name, ok := c.idToName[id]
	return name, ok
}

// put registers the (name, id) pair and bumps the high-water mark used by
// id allocation. Safe to call redundantly.
func (c *Cache) put(name string, id uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nameToID[name] = id
	c.idToName[id] = name
	if id > c.maxID {
		c.maxID = id
	}
}

// Resolve returns the id for name, consulting the loader on a cache miss
// and, if the backend doesn't know the name either, allocating a new one.
// Concurrent misses for the same name are deduplicated via singleflight so
// only one backend round trip (and, on allocation, one INSERT) happens.
//
// Must NOT be called from inside an in-flight write transaction that could
// still roll back — see doc.go.
func (c *Cache) Resolve(ctx context.Context, loader Loader, name string) (uint32, error) {
	if id, ok := c.NameToID(name); ok {
		return id, nil
	}
	v, err, _ := c.loadGroup.Do(name, func() (interface{}, error) {
		if id, ok := c.NameToID(name); ok {
			return id, nil
		}
		id, found, err := loader.LookupCollectionID(ctx, name)
		if err != nil {
			return uint32(0), err
		}
		if !found {
			id, err = loader.AllocateCollectionID(ctx, name)
			if err != nil {
				return uint32(0), err
			}
		}
		c.put(name, id)
		return id, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(uint32), nil
}

// NextID returns the next id to allocate for a brand-new collection name:
// max(FirstCustomCollectionID, current_max_id + 1).
func (c *Cache) NextID() uint32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	next := c.maxID + 1
	if next < types.FirstCustomCollectionID {
		return types.FirstCustomCollectionID
	}
	return next
}

// Invalidate drops name from the cache. Used only for test teardown and
// administrative recovery; normal operation never needs it because the
// cache is append-only — collection ids are never reused, even once every
// user-collection row referencing one has been tombstoned.
func (c *Cache) Invalidate(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id, ok := c.nameToID[name]; ok {
		delete(c.nameToID, name)
		delete(c.idToName, id)
	}
}

// ErrUnknownID is returned by IDToName callers that need an error rather
// than the ok-boolean form.
type ErrUnknownID uint32

func (e ErrUnknownID) Error() string {
	return fmt.Sprintf("collections: no name cached for id %d", uint32(e))
}
