package collections

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cuemby/syncstore/pkg/types"
)

// fakeLoader simulates a backend's collection table: lookups hit the map
// directly, allocations hand out sequential ids and count how many times
// they were actually invoked.
type fakeLoader struct {
	mu        sync.Mutex
	known     map[string]uint32
	nextID    uint32
	allocated int32
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{known: make(map[string]uint32), nextID: types.FirstCustomCollectionID}
}

func (f *fakeLoader) LookupCollectionID(ctx context.Context, name string) (uint32, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.known[name]
	return id, ok, nil
}

func (f *fakeLoader) AllocateCollectionID(ctx context.Context, name string) (uint32, error) {
	atomic.AddInt32(&f.allocated, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.known[name]; ok {
		return id, nil
	}
	id := f.nextID
	f.nextID++
	f.known[name] = id
	return id, nil
}

func TestNewPreloadsStandardCollections(t *testing.T) {
	c := New()
	for name, id := range types.StandardCollections {
		got, ok := c.NameToID(name)
		assert.True(t, ok)
		assert.Equal(t, id, got)

		gotName, ok := c.IDToName(id)
		assert.True(t, ok)
		assert.Equal(t, name, gotName)
	}
}

func TestIDToNameRejectsTombstone(t *testing.T) {
	c := New()
	c.put("ghost", types.TombstoneCollectionID)
	_, ok := c.IDToName(types.TombstoneCollectionID)
	assert.False(t, ok, "tombstone id must never resolve to a name")
}

func TestResolveHitsCacheWithoutLoader(t *testing.T) {
	c := New()
	id, err := c.Resolve(context.Background(), nil, "bookmarks")
	assert.NoError(t, err)
	assert.Equal(t, types.StandardCollections["bookmarks"], id)
}

func TestResolveFallsBackToLoaderLookup(t *testing.T) {
	c := New()
	loader := newFakeLoader()
	loader.known["widgets"] = 150

	id, err := c.Resolve(context.Background(), loader, "widgets")
	assert.NoError(t, err)
	assert.Equal(t, uint32(150), id)
	assert.Equal(t, int32(0), loader.allocated, "a known name must not trigger allocation")

	// Second call must come from cache, not the loader.
	loader.known["widgets"] = 999
	id, err = c.Resolve(context.Background(), loader, "widgets")
	assert.NoError(t, err)
	assert.Equal(t, uint32(150), id)
}

func TestResolveAllocatesWhenUnknownEverywhere(t *testing.T) {
	c := New()
	loader := newFakeLoader()

	id, err := c.Resolve(context.Background(), loader, "gizmos")
	assert.NoError(t, err)
	assert.True(t, id >= types.FirstCustomCollectionID)
	assert.Equal(t, int32(1), loader.allocated)

	cached, ok := c.NameToID("gizmos")
	assert.True(t, ok)
	assert.Equal(t, id, cached)
}

func TestResolveDeduplicatesConcurrentMisses(t *testing.T) {
	c := New()
	loader := newFakeLoader()

	const goroutines = 50
	var wg sync.WaitGroup
	ids := make([]uint32, goroutines)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := c.Resolve(context.Background(), loader, "shared")
			assert.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Equal(t, int32(1), loader.allocated, "concurrent misses for the same name must allocate once")
}

func TestNextID(t *testing.T) {
	c := New()
	assert.Equal(t, uint32(types.FirstCustomCollectionID), c.NextID())

	c.put("custom", types.FirstCustomCollectionID+5)
	assert.Equal(t, types.FirstCustomCollectionID+6, c.NextID())
}

func TestInvalidate(t *testing.T) {
	c := New()
	c.put("temp", 500)
	_, ok := c.NameToID("temp")
	assert.True(t, ok)

	c.Invalidate("temp")
	_, ok = c.NameToID("temp")
	assert.False(t, ok)
	_, ok = c.IDToName(500)
	assert.False(t, ok)
}

func TestErrUnknownIDError(t *testing.T) {
	err := ErrUnknownID(42)
	assert.Equal(t, fmt.Sprintf("collections: no name cached for id %d", 42), err.Error())
}
