package storagetest

import (
	"context"
	"fmt"
	"testing"

	"github.com/cuemby/syncstore/pkg/storage"
	"github.com/cuemby/syncstore/pkg/types"
)

func testPagination(t *testing.T, newBackend NewBackendFunc) {
	b := newBackend(t)
	defer b.Close()

	withWriteSession(t, b, "addons", func(ctx context.Context, s storage.Session) {
		for i := 0; i < 5; i++ {
			id := fmt.Sprintf("bso%d", i)
			if _, err := s.PutBSO(ctx, "addons", id, types.BSOFields{Payload: strPtr("x")}); err != nil {
				t.Fatalf("PutBSO(%s): %v", id, err)
			}
		}
	})

	var seen []string
	offset := ""
	for i := 0; i < 10; i++ {
		var page *types.BSOResult
		withReadSession(t, b, "addons", func(ctx context.Context, s storage.Session) {
			res, err := s.GetBSOIDs(ctx, "addons", types.BSOFilter{Limit: 2, Offset: offset, Sort: types.SortNewest})
			if err != nil {
				t.Fatalf("GetBSOIDs: %v", err)
			}
			page = res
		})
		seen = append(seen, page.IDs...)
		if page.NextOffset == "" {
			break
		}
		offset = page.NextOffset
	}

	if len(seen) != 5 {
		t.Fatalf("expected 5 ids across all pages, got %d: %v", len(seen), seen)
	}
}
