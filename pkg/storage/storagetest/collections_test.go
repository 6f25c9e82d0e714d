package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/cuemby/syncstore/pkg/storage"
	"github.com/cuemby/syncstore/pkg/types"
)

// testDeleteCollectionTombstone exercises tombstone monotonicity: deleting
// a user's only collection must still leave get_storage_timestamp
// advancing, not reset to zero, even though no user-collection row
// survives the delete.
func testDeleteCollectionTombstone(t *testing.T, newBackend NewBackendFunc) {
	b := newBackend(t)
	defer b.Close()

	withWriteSession(t, b, "history", func(ctx context.Context, s storage.Session) {
		if _, err := s.PutBSO(ctx, "history", "a", types.BSOFields{Payload: strPtr("v")}); err != nil {
			t.Fatalf("PutBSO: %v", err)
		}
	})

	time.Sleep(20 * time.Millisecond)

	var afterDelete int64
	withWriteSession(t, b, "history", func(ctx context.Context, s storage.Session) {
		ts, err := s.DeleteCollection(ctx, "history")
		if err != nil {
			t.Fatalf("DeleteCollection: %v", err)
		}
		afterDelete = ts.Millis()
	})

	if afterDelete == 0 {
		t.Fatal("get_storage_timestamp must stay non-zero after deleting the only collection; tombstone missing")
	}

	withReadSession(t, b, "history", func(ctx context.Context, s storage.Session) {
		ts, err := s.GetStorageTimestamp(ctx)
		if err != nil {
			t.Fatalf("GetStorageTimestamp: %v", err)
		}
		if ts.Millis() != afterDelete {
			t.Errorf("GetStorageTimestamp after delete = %d, want %d", ts.Millis(), afterDelete)
		}
	})
}
