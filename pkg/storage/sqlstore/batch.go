package sqlstore

import (
	"context"
	"database/sql"
	"sync/atomic"

	"github.com/cuemby/syncstore/pkg/apierr"
	"github.com/cuemby/syncstore/pkg/storage"
	"github.com/cuemby/syncstore/pkg/storage/batchformat"
	"github.com/cuemby/syncstore/pkg/types"
)

// batchIDSeq disambiguates batch ids minted within the same millisecond by
// concurrent sessions against this backend. The legacy id scheme derives a
// batch id from the creating timestamp; two CreateBatch calls landing in
// the same millisecond would otherwise collide on the (userid,
// collection_id, batch_id) primary key.
var batchIDSeq uint32

func nextBatchID(nowMillis int64) int64 {
	n := atomic.AddUint32(&batchIDSeq, 1)
	return nowMillis*1000 + int64(n%1000)
}

const batchTTLSeconds = 2 * 60 * 60 // staged batches live 2 hours

func (s *session) CreateBatch(ctx context.Context, collection string, posts []storage.BSOPost) (int64, error) {
	id := nextBatchID(s.now.Millis())
	payload, err := batchformat.AppendPosts(nil, posts)
	if err != nil {
		return 0, apierr.Internal(err)
	}
	expiry := s.now.Millis() + batchTTLSeconds*1000
	_, err = s.tx.ExecContext(ctx, `
		INSERT INTO batches (userid, collection_id, batch_id, bsos, expiry) VALUES (?, ?, ?, ?, ?)`,
		s.user.UID, s.collectionID, id, payload, expiry)
	if err != nil {
		return 0, apierr.Internal(err)
	}
	return id, nil
}

func (s *session) ValidateBatch(ctx context.Context, collection string, id int64) (bool, error) {
	var expiry int64
	err := s.queryer().QueryRowContext(ctx,
		`SELECT expiry FROM batches WHERE userid = ? AND collection_id = ? AND batch_id = ?`,
		s.user.UID, s.collectionID, id).Scan(&expiry)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, apierr.Internal(err)
	}
	return expiry > s.now.Millis(), nil
}

func (s *session) AppendToBatch(ctx context.Context, collection string, id int64, posts []storage.BSOPost) error {
	valid, err := s.ValidateBatch(ctx, collection, id)
	if err != nil {
		return err
	}
	if !valid {
		return apierr.BatchNotFound()
	}

	var existing []byte
	if err := s.tx.QueryRowContext(ctx,
		`SELECT bsos FROM batches WHERE userid = ? AND collection_id = ? AND batch_id = ? FOR UPDATE`,
		s.user.UID, s.collectionID, id).Scan(&existing); err != nil {
		return apierr.Internal(err)
	}

	updated, err := batchformat.AppendPosts(existing, posts)
	if err != nil {
		return apierr.Internal(err)
	}

	if _, err := s.tx.ExecContext(ctx,
		`UPDATE batches SET bsos = ? WHERE userid = ? AND collection_id = ? AND batch_id = ?`,
		updated, s.user.UID, s.collectionID, id); err != nil {
		return apierr.Internal(err)
	}
	return nil
}

func (s *session) GetBatch(ctx context.Context, collection string, id int64) (*types.Batch, error) {
	var payload []byte
	var expiry int64
	err := s.queryer().QueryRowContext(ctx,
		`SELECT bsos, expiry FROM batches WHERE userid = ? AND collection_id = ? AND batch_id = ?`,
		s.user.UID, s.collectionID, id).Scan(&payload, &expiry)
	if err == sql.ErrNoRows {
		return nil, apierr.BatchNotFound()
	}
	if err != nil {
		return nil, apierr.Internal(err)
	}
	if expiry <= s.now.Millis() {
		return nil, apierr.BatchNotFound()
	}
	return &types.Batch{ID: id, Expiry: expiry, Payload: payload}, nil
}

// CommitBatch decodes every staged post, folds duplicates (later append
// wins per id), applies them as one PostBSOs call, and deletes the batch
// row. A decode failure aborts the whole commit: there is no partial
// commit of a batch.
func (s *session) CommitBatch(ctx context.Context, collection string, id int64) (*types.PostResult, error) {
	batch, err := s.GetBatch(ctx, collection, id)
	if err != nil {
		return nil, err
	}

	posts, err := batchformat.Decode(batch.Payload)
	if err != nil {
		return nil, apierr.InvalidWBO("malformed batch payload: " + err.Error())
	}
	posts = batchformat.Fold(posts)

	result, err := s.PostBSOs(ctx, collection, posts)
	if err != nil {
		return nil, err
	}

	if err := s.DeleteBatch(ctx, collection, id); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *session) DeleteBatch(ctx context.Context, collection string, id int64) error {
	if _, err := s.tx.ExecContext(ctx,
		`DELETE FROM batches WHERE userid = ? AND collection_id = ? AND batch_id = ?`,
		s.user.UID, s.collectionID, id); err != nil {
		return apierr.Internal(err)
	}
	return nil
}
