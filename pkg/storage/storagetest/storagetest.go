// Package storagetest is a backend-agnostic conformance suite: Run exercises
// one storage.Backend against the behavioral rules every implementation
// must share (BSO round-trip, collection timestamp monotonicity, quota
// enforcement, batch lifecycle, pagination). Both pkg/storage/sqlstore and
// pkg/storage/spannerstore depend on this package from their own
// _test.go files rather than duplicating the assertions.
package storagetest

import (
	"context"
	"testing"

	"github.com/cuemby/syncstore/pkg/storage"
	"github.com/cuemby/syncstore/pkg/types"
)

// NewBackendFunc constructs a fresh, empty storage.Backend for one test.
type NewBackendFunc func(t *testing.T) storage.Backend

// Run executes the full conformance suite as subtests.
func Run(t *testing.T, newBackend NewBackendFunc) {
	t.Run("PutGetRoundTrip", func(t *testing.T) { testPutGetRoundTrip(t, newBackend) })
	t.Run("CollectionTimestampAdvances", func(t *testing.T) { testCollectionTimestampAdvances(t, newBackend) })
	t.Run("DeleteBSO", func(t *testing.T) { testDeleteBSO(t, newBackend) })
	t.Run("PostBSOsAllSucceed", func(t *testing.T) { testPostBSOsAllSucceed(t, newBackend) })
	t.Run("BatchLifecycle", func(t *testing.T) { testBatchLifecycle(t, newBackend) })
	t.Run("Pagination", func(t *testing.T) { testPagination(t, newBackend) })
	t.Run("WriteLockConflict", func(t *testing.T) { testWriteLockConflict(t, newBackend) })
	t.Run("TTLTouchIsolation", func(t *testing.T) { testTTLTouchIsolation(t, newBackend) })
	t.Run("DeleteCollectionTombstone", func(t *testing.T) { testDeleteCollectionTombstone(t, newBackend) })
	t.Run("QuotaEnforcement", func(t *testing.T) { testQuotaEnforcement(t, newBackend) })
}

func testUser() types.Identity {
	return types.Identity{FxAUID: "testuid", FxAKID: "testkid", UID: 42}
}

func withWriteSession(t *testing.T, b storage.Backend, collection string, fn func(ctx context.Context, s storage.Session)) {
	t.Helper()
	ctx := context.Background()
	sess, err := b.NewSession(ctx, testUser())
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if err := sess.Lock(ctx, collection, storage.LockWrite); err != nil {
		t.Fatalf("Lock(write): %v", err)
	}
	fn(ctx, sess)
	if err := sess.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func withReadSession(t *testing.T, b storage.Backend, collection string, fn func(ctx context.Context, s storage.Session)) {
	t.Helper()
	ctx := context.Background()
	sess, err := b.NewSession(ctx, testUser())
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if err := sess.Lock(ctx, collection, storage.LockRead); err != nil {
		t.Fatalf("Lock(read): %v", err)
	}
	fn(ctx, sess)
	if err := sess.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func strPtr(s string) *string { return &s }
