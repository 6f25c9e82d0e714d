package httpapi

import (
	"context"
	"sync"

	"github.com/cuemby/syncstore/pkg/apierr"
	"github.com/cuemby/syncstore/pkg/storage"
	"github.com/cuemby/syncstore/pkg/timestamp"
	"github.com/cuemby/syncstore/pkg/types"
)

// fakeBackend is a minimal in-memory storage.Backend used only by this
// package's handler tests: just enough semantics (locking, monotonic
// timestamps, BSO CRUD) to exercise the HTTP layer without a real database.
// It does not attempt batch or quota behavior beyond the bare interface
// contract; those get exercised in pkg/storage/storagetest against the real
// backends instead.
type fakeBackend struct {
	mu          sync.Mutex
	bsos        map[string]map[string]map[string]*types.BSO // user -> collection -> id -> bso
	collModTime map[string]map[string]timestamp.T           // user -> collection -> modified
	clock       timestamp.T
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		bsos:        make(map[string]map[string]map[string]*types.BSO),
		collModTime: make(map[string]map[string]timestamp.T),
		clock:       timestamp.FromMillis(1_700_000_000_000),
	}
}

func (b *fakeBackend) tick() timestamp.T {
	b.clock = b.clock.Add(10_000_000) // +10ms in nanoseconds terms handled by Add
	return b.clock
}

func (b *fakeBackend) NewSession(ctx context.Context, user types.Identity) (storage.Session, error) {
	return &fakeSession{backend: b, user: user.String()}, nil
}

func (b *fakeBackend) Limits() types.Limits {
	return types.Limits{
		MaxPostBytes:          200 * 1024 * 1024,
		MaxPostRecords:        100,
		MaxTotalBytes:         2 * 1024 * 1024 * 1024,
		MaxTotalRecords:       200_000,
		MaxRequestBytes:       200 * 1024 * 1024,
		MaxRecordPayloadBytes: 2 * 1024 * 1024,
	}
}

func (b *fakeBackend) QuotaLimitBytes() (int64, bool, bool) { return 0, false, false }
func (b *fakeBackend) PoolStats() storage.PoolStats         { return storage.PoolStats{Active: 1, Idle: 0, Max: 1} }
func (b *fakeBackend) Close() error                         { return nil }

// fakeSession implements storage.Session against fakeBackend's maps. A
// single mutex on the backend stands in for per-(user,collection) row
// locking: good enough to test conflict status codes, not concurrency.
type fakeSession struct {
	backend    *fakeBackend
	user       string
	mode       storage.LockMode
	collection string
	now        timestamp.T
	locked     bool
}

func (s *fakeSession) Lock(ctx context.Context, collection string, mode storage.LockMode) error {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	s.collection = collection
	s.mode = mode
	s.now = s.backend.tick()
	s.locked = true
	if s.backend.bsos[s.user] == nil {
		s.backend.bsos[s.user] = make(map[string]map[string]*types.BSO)
	}
	if s.backend.collModTime[s.user] == nil {
		s.backend.collModTime[s.user] = make(map[string]timestamp.T)
	}
	return nil
}

func (s *fakeSession) Now() timestamp.T { return s.now }

func (s *fakeSession) Commit(ctx context.Context) error   { return nil }
func (s *fakeSession) Rollback(ctx context.Context) error { return nil }

func (s *fakeSession) GetBSO(ctx context.Context, collection, id string) (*types.BSO, error) {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	bso := s.backend.bsos[s.user][collection][id]
	return bso, nil
}

func (s *fakeSession) GetBSOs(ctx context.Context, collection string, filter types.BSOFilter) (*types.BSOResult, error) {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	var items []types.BSO
	for _, bso := range s.backend.bsos[s.user][collection] {
		items = append(items, *bso)
	}
	return &types.BSOResult{Items: items}, nil
}

func (s *fakeSession) GetBSOIDs(ctx context.Context, collection string, filter types.BSOFilter) (*types.BSOResult, error) {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	var ids []string
	for id := range s.backend.bsos[s.user][collection] {
		ids = append(ids, id)
	}
	return &types.BSOResult{IDs: ids}, nil
}

func (s *fakeSession) GetBSOTimestamp(ctx context.Context, collection, id string) (timestamp.T, error) {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	bso := s.backend.bsos[s.user][collection][id]
	if bso == nil {
		return 0, nil
	}
	return timestamp.FromMillis(bso.Modified), nil
}

func (s *fakeSession) PutBSO(ctx context.Context, collection, id string, fields types.BSOFields) (timestamp.T, error) {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	if s.backend.bsos[s.user][collection] == nil {
		s.backend.bsos[s.user][collection] = make(map[string]*types.BSO)
	}
	existing := s.backend.bsos[s.user][collection][id]
	modified := s.now
	if existing == nil {
		existing = &types.BSO{ID: id, Modified: modified.Millis()}
	} else if fields.HasPayloadOrSortIndex() {
		existing.Modified = modified.Millis()
	}
	if fields.Payload != nil {
		existing.Payload = *fields.Payload
	}
	if fields.SortIndex != nil {
		existing.SortIndex = fields.SortIndex
	}
	ttl := types.DefaultTTLSeconds
	if fields.TTL != nil {
		ttl = *fields.TTL
	}
	existing.Expiry = existing.Modified + ttl*1000
	s.backend.bsos[s.user][collection][id] = existing
	s.backend.collModTime[s.user][collection] = modified
	return timestamp.FromMillis(existing.Modified), nil
}

func (s *fakeSession) PostBSOs(ctx context.Context, collection string, posts []storage.BSOPost) (*types.PostResult, error) {
	result := types.NewPostResult(s.now.Millis())
	for _, p := range posts {
		fields := types.BSOFields{Payload: p.Payload, SortIndex: p.SortIndex, TTL: p.TTL}
		if _, err := s.PutBSO(ctx, collection, p.ID, fields); err != nil {
			result.AddFailure(p.ID, err.Error())
			continue
		}
		result.AddSuccess(p.ID)
	}
	return result, nil
}

func (s *fakeSession) DeleteBSO(ctx context.Context, collection, id string) error {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	if s.backend.bsos[s.user][collection] == nil {
		return apierr.BsoNotFound()
	}
	if _, ok := s.backend.bsos[s.user][collection][id]; !ok {
		return apierr.BsoNotFound()
	}
	delete(s.backend.bsos[s.user][collection], id)
	s.backend.collModTime[s.user][collection] = s.now
	return nil
}

func (s *fakeSession) DeleteBSOs(ctx context.Context, collection string, ids []string) (timestamp.T, error) {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	for _, id := range ids {
		delete(s.backend.bsos[s.user][collection], id)
	}
	s.backend.collModTime[s.user][collection] = s.now
	return s.now, nil
}

func (s *fakeSession) GetCollectionTimestamp(ctx context.Context, collection string) (timestamp.T, error) {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	return s.backend.collModTime[s.user][collection], nil
}

func (s *fakeSession) GetCollectionTimestamps(ctx context.Context) (map[string]timestamp.T, error) {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	out := make(map[string]timestamp.T, len(s.backend.collModTime[s.user]))
	for name, ts := range s.backend.collModTime[s.user] {
		out[name] = ts
	}
	return out, nil
}

func (s *fakeSession) GetCollectionCounts(ctx context.Context) (map[string]int, error) {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	out := make(map[string]int)
	for name, bsos := range s.backend.bsos[s.user] {
		out[name] = len(bsos)
	}
	return out, nil
}

func (s *fakeSession) GetCollectionUsage(ctx context.Context) (map[string]int64, error) {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	out := make(map[string]int64)
	for name, bsos := range s.backend.bsos[s.user] {
		var total int64
		for _, b := range bsos {
			total += int64(len(b.Payload))
		}
		out[name] = total
	}
	return out, nil
}

func (s *fakeSession) GetStorageTimestamp(ctx context.Context) (timestamp.T, error) {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	var max timestamp.T
	for _, ts := range s.backend.collModTime[s.user] {
		if ts > max {
			max = ts
		}
	}
	return max, nil
}

func (s *fakeSession) GetStorageUsage(ctx context.Context) (int64, error) {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	var total int64
	for _, bsos := range s.backend.bsos[s.user] {
		for _, b := range bsos {
			total += int64(len(b.Payload))
		}
	}
	return total, nil
}

func (s *fakeSession) DeleteCollection(ctx context.Context, collection string) (timestamp.T, error) {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	delete(s.backend.bsos[s.user], collection)
	delete(s.backend.collModTime[s.user], collection)
	return s.now, nil
}

func (s *fakeSession) DeleteStorage(ctx context.Context) error {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	s.backend.bsos[s.user] = make(map[string]map[string]*types.BSO)
	s.backend.collModTime[s.user] = make(map[string]timestamp.T)
	return nil
}

// Batch operations aren't exercised by this package's tests (covered
// end-to-end against the real backends in pkg/storage/storagetest); this
// fake implements just enough of BatchEngine to satisfy storage.Session.

func (s *fakeSession) CreateBatch(ctx context.Context, collection string, posts []storage.BSOPost) (int64, error) {
	return 0, apierr.BatchNotFound()
}

func (s *fakeSession) ValidateBatch(ctx context.Context, collection string, id int64) (bool, error) {
	return false, nil
}

func (s *fakeSession) AppendToBatch(ctx context.Context, collection string, id int64, posts []storage.BSOPost) error {
	return apierr.BatchNotFound()
}

func (s *fakeSession) GetBatch(ctx context.Context, collection string, id int64) (*types.Batch, error) {
	return nil, nil
}

func (s *fakeSession) CommitBatch(ctx context.Context, collection string, id int64) (*types.PostResult, error) {
	return nil, apierr.BatchNotFound()
}

func (s *fakeSession) DeleteBatch(ctx context.Context, collection string, id int64) error {
	return nil
}
