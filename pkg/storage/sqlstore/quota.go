package sqlstore

import (
	"context"
	"database/sql"

	"github.com/cuemby/syncstore/pkg/apierr"
)

// recomputeQuota refreshes user_collections.total_bytes/count for the
// session's locked collection when quota accounting is enabled. It runs
// inside the same write transaction as the mutation that triggered it, so
// the counters never observe a partial write.
func (s *session) recomputeQuota(ctx context.Context) error {
	limitBytes, enabled, enforce := s.backend.QuotaLimitBytes()
	if !enabled {
		return nil
	}

	var totalBytes sql.NullInt64
	var count sql.NullInt64
	err := s.tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(LENGTH(payload)), 0), COUNT(*)
		FROM bsos WHERE userid = ? AND collection_id = ? AND expiry > ?`,
		s.user.UID, s.collectionID, s.now.Millis()).Scan(&totalBytes, &count)
	if err != nil {
		return apierr.Internal(err)
	}

	if _, err := s.tx.ExecContext(ctx, `
		UPDATE user_collections SET total_bytes = ?, count = ? WHERE userid = ? AND collection_id = ?`,
		totalBytes.Int64, count.Int64, s.user.UID, s.collectionID); err != nil {
		return apierr.Internal(err)
	}

	if !enforce {
		return nil
	}
	if limitBytes > 0 {
		var storageTotal sql.NullInt64
		if err := s.tx.QueryRowContext(ctx, `
			SELECT COALESCE(SUM(total_bytes), 0) FROM user_collections WHERE userid = ?`,
			s.user.UID).Scan(&storageTotal); err != nil {
			return apierr.Internal(err)
		}
		if storageTotal.Int64 > limitBytes {
			return apierr.Quota()
		}
	}
	return nil
}
