package sqlstore

import (
	"context"
	"database/sql"

	"github.com/cuemby/syncstore/pkg/apierr"
	"github.com/cuemby/syncstore/pkg/timestamp"
	"github.com/cuemby/syncstore/pkg/types"
)

func (s *session) GetCollectionTimestamp(ctx context.Context, collection string) (timestamp.T, error) {
	var modified int64
	err := s.queryer().QueryRowContext(ctx,
		`SELECT modified FROM user_collections WHERE userid = ? AND collection_id = ?`,
		s.user.UID, s.collectionID).Scan(&modified)
	if err == sql.ErrNoRows {
		return 0, apierr.CollectionNotFound()
	}
	if err != nil {
		return 0, apierr.Internal(err)
	}
	return timestamp.FromMillis(modified), nil
}

func (s *session) GetCollectionTimestamps(ctx context.Context) (map[string]timestamp.T, error) {
	rows, err := s.queryer().QueryContext(ctx, `
		SELECT c.name, uc.modified
		FROM user_collections uc JOIN collections c ON c.id = uc.collection_id
		WHERE uc.userid = ?`, s.user.UID)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	defer rows.Close()

	out := map[string]timestamp.T{}
	for rows.Next() {
		var name string
		var modified int64
		if err := rows.Scan(&name, &modified); err != nil {
			return nil, apierr.Internal(err)
		}
		out[name] = timestamp.FromMillis(modified)
	}
	return out, rows.Err()
}

func (s *session) GetCollectionCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.queryer().QueryContext(ctx, `
		SELECT c.name, COUNT(*)
		FROM bsos b JOIN collections c ON c.id = b.collection_id
		WHERE b.userid = ? AND b.expiry > ?
		GROUP BY c.name`, s.user.UID, timestamp.Now().Millis())
	if err != nil {
		return nil, apierr.Internal(err)
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var name string
		var count int
		if err := rows.Scan(&name, &count); err != nil {
			return nil, apierr.Internal(err)
		}
		out[name] = count
	}
	return out, rows.Err()
}

func (s *session) GetCollectionUsage(ctx context.Context) (map[string]int64, error) {
	rows, err := s.queryer().QueryContext(ctx, `
		SELECT c.name, COALESCE(SUM(LENGTH(b.payload)), 0)
		FROM bsos b JOIN collections c ON c.id = b.collection_id
		WHERE b.userid = ? AND b.expiry > ?
		GROUP BY c.name`, s.user.UID, timestamp.Now().Millis())
	if err != nil {
		return nil, apierr.Internal(err)
	}
	defer rows.Close()

	out := map[string]int64{}
	for rows.Next() {
		var name string
		var bytes int64
		if err := rows.Scan(&name, &bytes); err != nil {
			return nil, apierr.Internal(err)
		}
		out[name] = bytes
	}
	return out, rows.Err()
}

func (s *session) GetStorageTimestamp(ctx context.Context) (timestamp.T, error) {
	var modified sql.NullInt64
	err := s.queryer().QueryRowContext(ctx,
		`SELECT MAX(modified) FROM user_collections WHERE userid = ?`, s.user.UID).Scan(&modified)
	if err != nil {
		return 0, apierr.Internal(err)
	}
	if !modified.Valid {
		return timestamp.Zero, nil
	}
	return timestamp.FromMillis(modified.Int64), nil
}

func (s *session) GetStorageUsage(ctx context.Context) (int64, error) {
	var total sql.NullInt64
	err := s.queryer().QueryRowContext(ctx,
		`SELECT SUM(LENGTH(payload)) FROM bsos WHERE userid = ? AND expiry > ?`,
		s.user.UID, timestamp.Now().Millis()).Scan(&total)
	if err != nil {
		return 0, apierr.Internal(err)
	}
	if !total.Valid {
		return 0, nil
	}
	return total.Int64, nil
}

// DeleteCollection removes every BSO in the collection and its
// user_collections row, and returns the new overall storage timestamp that
// the caller stamps onto the response (the deletion itself does not bump
// any other collection's modified time). If the collection actually had a
// row, a tombstone is erected under the reserved collection id 0 so
// get_storage_timestamp keeps advancing even though the deleted
// collection's own row is gone.
func (s *session) DeleteCollection(ctx context.Context, collection string) (timestamp.T, error) {
	if _, err := s.tx.ExecContext(ctx, `DELETE FROM bsos WHERE userid = ? AND collection_id = ?`,
		s.user.UID, s.collectionID); err != nil {
		return 0, apierr.Internal(err)
	}
	res, err := s.tx.ExecContext(ctx, `DELETE FROM user_collections WHERE userid = ? AND collection_id = ?`,
		s.user.UID, s.collectionID)
	if err != nil {
		return 0, apierr.Internal(err)
	}
	if _, err := s.tx.ExecContext(ctx, `DELETE FROM batches WHERE userid = ? AND collection_id = ?`,
		s.user.UID, s.collectionID); err != nil {
		return 0, apierr.Internal(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, apierr.Internal(err)
	}
	if n > 0 {
		if err := s.erectTombstone(ctx); err != nil {
			return 0, apierr.Internal(err)
		}
	}
	return s.GetStorageTimestamp(ctx)
}

// erectTombstone records the deletion under the reserved collection id 0
// so a subsequent get_storage_timestamp reflects it even after the
// deleted collection's own row is gone.
func (s *session) erectTombstone(ctx context.Context) error {
	_, err := s.tx.ExecContext(ctx, `
		INSERT INTO user_collections (userid, collection_id, modified)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE modified = VALUES(modified)`,
		s.user.UID, types.TombstoneCollectionID, s.now.Millis())
	return err
}

func (s *session) DeleteStorage(ctx context.Context) error {
	if _, err := s.tx.ExecContext(ctx, `DELETE FROM bsos WHERE userid = ?`, s.user.UID); err != nil {
		return apierr.Internal(err)
	}
	if _, err := s.tx.ExecContext(ctx, `DELETE FROM user_collections WHERE userid = ?`, s.user.UID); err != nil {
		return apierr.Internal(err)
	}
	if _, err := s.tx.ExecContext(ctx, `DELETE FROM batches WHERE userid = ?`, s.user.UID); err != nil {
		return apierr.Internal(err)
	}
	return nil
}
