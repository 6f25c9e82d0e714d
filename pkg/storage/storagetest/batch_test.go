package storagetest

import (
	"context"
	"testing"

	"github.com/cuemby/syncstore/pkg/storage"
)

func testBatchLifecycle(t *testing.T, newBackend NewBackendFunc) {
	b := newBackend(t)
	defer b.Close()

	var batchID int64
	withWriteSession(t, b, "bookmarks", func(ctx context.Context, s storage.Session) {
		id, err := s.CreateBatch(ctx, "bookmarks", []storage.BSOPost{
			{ID: "a", Payload: strPtr(`{"v":1}`)},
		})
		if err != nil {
			t.Fatalf("CreateBatch: %v", err)
		}
		batchID = id

		ok, err := s.ValidateBatch(ctx, "bookmarks", batchID)
		if err != nil || !ok {
			t.Fatalf("ValidateBatch: ok=%v err=%v", ok, err)
		}

		if err := s.AppendToBatch(ctx, "bookmarks", batchID, []storage.BSOPost{
			{ID: "a", Payload: strPtr(`{"v":2}`)}, // later append wins on commit
			{ID: "b", Payload: strPtr(`{"v":3}`)},
		}); err != nil {
			t.Fatalf("AppendToBatch: %v", err)
		}
	})

	withWriteSession(t, b, "bookmarks", func(ctx context.Context, s storage.Session) {
		result, err := s.CommitBatch(ctx, "bookmarks", batchID)
		if err != nil {
			t.Fatalf("CommitBatch: %v", err)
		}
		if len(result.Success) != 2 {
			t.Fatalf("expected 2 committed ids, got %d (%v)", len(result.Success), result.Success)
		}
	})

	withReadSession(t, b, "bookmarks", func(ctx context.Context, s storage.Session) {
		got, err := s.GetBSO(ctx, "bookmarks", "a")
		if err != nil {
			t.Fatalf("GetBSO: %v", err)
		}
		if got.Payload != `{"v":2}` {
			t.Errorf("expected later append to win, got %q", got.Payload)
		}
		if _, err := s.GetBatch(ctx, "bookmarks", batchID); err == nil {
			t.Error("expected batch to be gone after commit")
		}
	})
}
