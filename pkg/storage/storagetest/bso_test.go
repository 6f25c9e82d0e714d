package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/cuemby/syncstore/pkg/storage"
	"github.com/cuemby/syncstore/pkg/types"
)

func testPutGetRoundTrip(t *testing.T, newBackend NewBackendFunc) {
	b := newBackend(t)
	defer b.Close()

	withWriteSession(t, b, "bookmarks", func(ctx context.Context, s storage.Session) {
		fields := types.BSOFields{Payload: strPtr(`{"title":"hello"}`)}
		if _, err := s.PutBSO(ctx, "bookmarks", "bso1", fields); err != nil {
			t.Fatalf("PutBSO: %v", err)
		}
	})

	withReadSession(t, b, "bookmarks", func(ctx context.Context, s storage.Session) {
		got, err := s.GetBSO(ctx, "bookmarks", "bso1")
		if err != nil {
			t.Fatalf("GetBSO: %v", err)
		}
		if got.Payload != `{"title":"hello"}` {
			t.Errorf("payload = %q", got.Payload)
		}
		if got.Modified == 0 {
			t.Error("Modified must be set")
		}
	})
}

func testCollectionTimestampAdvances(t *testing.T, newBackend NewBackendFunc) {
	b := newBackend(t)
	defer b.Close()

	var first int64
	withWriteSession(t, b, "tabs", func(ctx context.Context, s storage.Session) {
		if _, err := s.PutBSO(ctx, "tabs", "a", types.BSOFields{Payload: strPtr("1")}); err != nil {
			t.Fatalf("PutBSO: %v", err)
		}
		ts, err := s.GetCollectionTimestamp(ctx, "tabs")
		if err != nil {
			t.Fatalf("GetCollectionTimestamp: %v", err)
		}
		first = ts.Millis()
	})

	withWriteSession(t, b, "tabs", func(ctx context.Context, s storage.Session) {
		if _, err := s.PutBSO(ctx, "tabs", "b", types.BSOFields{Payload: strPtr("2")}); err != nil {
			t.Fatalf("PutBSO: %v", err)
		}
		ts, err := s.GetCollectionTimestamp(ctx, "tabs")
		if err != nil {
			t.Fatalf("GetCollectionTimestamp: %v", err)
		}
		if ts.Millis() < first {
			t.Errorf("collection timestamp went backwards: %d < %d", ts.Millis(), first)
		}
	})
}

func testDeleteBSO(t *testing.T, newBackend NewBackendFunc) {
	b := newBackend(t)
	defer b.Close()

	withWriteSession(t, b, "history", func(ctx context.Context, s storage.Session) {
		if _, err := s.PutBSO(ctx, "history", "x", types.BSOFields{Payload: strPtr("v")}); err != nil {
			t.Fatalf("PutBSO: %v", err)
		}
	})
	withWriteSession(t, b, "history", func(ctx context.Context, s storage.Session) {
		if err := s.DeleteBSO(ctx, "history", "x"); err != nil {
			t.Fatalf("DeleteBSO: %v", err)
		}
	})
	withReadSession(t, b, "history", func(ctx context.Context, s storage.Session) {
		if _, err := s.GetBSO(ctx, "history", "x"); err == nil {
			t.Error("expected BsoNotFound after delete")
		}
	})
}

// testTTLTouchIsolation exercises the rule that a pure TTL re-put (no
// payload or sortindex change) extends expiry without advancing either the
// BSO's or the collection's modified timestamp.
func testTTLTouchIsolation(t *testing.T, newBackend NewBackendFunc) {
	b := newBackend(t)
	defer b.Close()

	var bsoModified, collModified int64
	withWriteSession(t, b, "meta", func(ctx context.Context, s storage.Session) {
		ts, err := s.PutBSO(ctx, "meta", "x", types.BSOFields{Payload: strPtr("v1")})
		if err != nil {
			t.Fatalf("PutBSO: %v", err)
		}
		bsoModified = ts.Millis()
	})
	withReadSession(t, b, "meta", func(ctx context.Context, s storage.Session) {
		ts, err := s.GetCollectionTimestamp(ctx, "meta")
		if err != nil {
			t.Fatalf("GetCollectionTimestamp: %v", err)
		}
		collModified = ts.Millis()
	})

	// Force the clock past the 10ms rounding window so a buggy
	// implementation that unconditionally stamps "now" would be caught
	// rather than accidentally matching by coincidence.
	time.Sleep(20 * time.Millisecond)

	ttl := int64(3600)
	withWriteSession(t, b, "meta", func(ctx context.Context, s storage.Session) {
		if _, err := s.PutBSO(ctx, "meta", "x", types.BSOFields{TTL: &ttl}); err != nil {
			t.Fatalf("PutBSO (ttl-only): %v", err)
		}
	})

	withReadSession(t, b, "meta", func(ctx context.Context, s storage.Session) {
		got, err := s.GetBSO(ctx, "meta", "x")
		if err != nil {
			t.Fatalf("GetBSO: %v", err)
		}
		if got.Modified != bsoModified {
			t.Errorf("ttl-only touch advanced BSO Modified: got %d, want %d", got.Modified, bsoModified)
		}

		ts, err := s.GetCollectionTimestamp(ctx, "meta")
		if err != nil {
			t.Fatalf("GetCollectionTimestamp: %v", err)
		}
		if ts.Millis() != collModified {
			t.Errorf("ttl-only touch advanced collection timestamp: got %d, want %d", ts.Millis(), collModified)
		}
	})
}

func testPostBSOsAllSucceed(t *testing.T, newBackend NewBackendFunc) {
	b := newBackend(t)
	defer b.Close()

	withWriteSession(t, b, "clients", func(ctx context.Context, s storage.Session) {
		posts := []storage.BSOPost{
			{ID: "ok1", Payload: strPtr(`{"a":1}`)},
			{ID: "ok2", Payload: strPtr(`{"a":2}`)},
		}
		result, err := s.PostBSOs(ctx, "clients", posts)
		if err != nil {
			t.Fatalf("PostBSOs: %v", err)
		}
		if len(result.Success) != 2 {
			t.Errorf("expected 2 successes, got %d (%v)", len(result.Success), result.Success)
		}
		if len(result.Failed) != 0 {
			t.Errorf("expected 0 failures, got %v", result.Failed)
		}
	})
}
