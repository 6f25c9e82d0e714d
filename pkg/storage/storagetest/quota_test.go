package storagetest

import (
	"context"
	"strings"
	"testing"

	"github.com/cuemby/syncstore/pkg/apierr"
	"github.com/cuemby/syncstore/pkg/storage"
	"github.com/cuemby/syncstore/pkg/types"
)

// testQuotaEnforcement exercises per-user storage quota rejection: a write
// that would push the user's total stored bytes over the configured limit
// must fail with apierr.KindQuota and leave nothing committed. Skipped for
// a backend under test that wasn't configured with quota enforcement on.
func testQuotaEnforcement(t *testing.T, newBackend NewBackendFunc) {
	b := newBackend(t)
	defer b.Close()

	limitBytes, enabled, enforce := b.QuotaLimitBytes()
	if !enabled || !enforce || limitBytes <= 0 {
		t.Skip("backend under test has no quota enforcement configured")
	}

	ctx := context.Background()
	sess, err := b.NewSession(ctx, testUser())
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if err := sess.Lock(ctx, "history", storage.LockWrite); err != nil {
		t.Fatalf("Lock(write): %v", err)
	}

	big := strings.Repeat("x", int(limitBytes)+1)
	if _, err := sess.PutBSO(ctx, "history", "big", types.BSOFields{Payload: &big}); err == nil {
		t.Fatal("expected an over-quota write to be rejected")
	} else if apiErr, ok := apierr.As(err); !ok || apiErr.Kind != apierr.KindQuota {
		t.Fatalf("expected apierr.KindQuota, got %v", err)
	}
	if err := sess.Rollback(ctx); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	withReadSession(t, b, "history", func(ctx context.Context, s storage.Session) {
		if _, err := s.GetBSO(ctx, "history", "big"); err == nil {
			t.Error("rejected over-quota write must not be visible after rollback")
		}
	})
}
