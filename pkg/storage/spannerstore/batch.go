package spannerstore

import (
	"context"
	"sync/atomic"
	"time"

	"cloud.google.com/go/spanner"
	"google.golang.org/grpc/codes"

	"github.com/cuemby/syncstore/pkg/apierr"
	"github.com/cuemby/syncstore/pkg/storage"
	"github.com/cuemby/syncstore/pkg/storage/batchformat"
	"github.com/cuemby/syncstore/pkg/types"
)

// batchIDSeq disambiguates batch ids minted within the same millisecond by
// concurrent sessions against this backend, mirroring sqlstore's scheme so
// both backends share one id format at the wire level.
var batchIDSeq uint32

func nextBatchID(nowMillis int64) int64 {
	n := atomic.AddUint32(&batchIDSeq, 1)
	return nowMillis*1000 + int64(n%1000)
}

const batchTTL = 2 * time.Hour

func (s *session) CreateBatch(ctx context.Context, collection string, posts []storage.BSOPost) (int64, error) {
	id := nextBatchID(s.now.Millis())
	payload, err := batchformat.AppendPosts(nil, posts)
	if err != nil {
		return 0, apierr.Internal(err)
	}
	expiry := s.now.Time().Add(batchTTL)
	s.mutations = append(s.mutations, spanner.Insert("Batches",
		[]string{"FxaUid", "CollectionId", "BatchId", "Bsos", "Expiry"},
		[]interface{}{s.user.String(), int64(s.collectionID), id, payload, expiry}))
	return id, nil
}

func (s *session) ValidateBatch(ctx context.Context, collection string, id int64) (bool, error) {
	row, err := s.reader().ReadRow(ctx, "Batches", spanner.Key{s.user.String(), int64(s.collectionID), id}, []string{"Expiry"})
	if spanner.ErrCode(err) == codes.NotFound {
		return false, nil
	}
	if err != nil {
		return false, apierr.Internal(err)
	}
	var expiry time.Time
	if err := row.Column(0, &expiry); err != nil {
		return false, apierr.Internal(err)
	}
	return expiry.After(s.now.Time()), nil
}

func (s *session) AppendToBatch(ctx context.Context, collection string, id int64, posts []storage.BSOPost) error {
	valid, err := s.ValidateBatch(ctx, collection, id)
	if err != nil {
		return err
	}
	if !valid {
		return apierr.BatchNotFound()
	}

	row, err := s.reader().ReadRow(ctx, "Batches", spanner.Key{s.user.String(), int64(s.collectionID), id}, []string{"Bsos"})
	if err != nil {
		return apierr.Internal(err)
	}
	var existing []byte
	if err := row.Column(0, &existing); err != nil {
		return apierr.Internal(err)
	}

	updated, err := batchformat.AppendPosts(existing, posts)
	if err != nil {
		return apierr.Internal(err)
	}

	s.mutations = append(s.mutations, spanner.Update("Batches",
		[]string{"FxaUid", "CollectionId", "BatchId", "Bsos"},
		[]interface{}{s.user.String(), int64(s.collectionID), id, updated}))
	return nil
}

func (s *session) GetBatch(ctx context.Context, collection string, id int64) (*types.Batch, error) {
	row, err := s.reader().ReadRow(ctx, "Batches", spanner.Key{s.user.String(), int64(s.collectionID), id},
		[]string{"Bsos", "Expiry"})
	if spanner.ErrCode(err) == codes.NotFound {
		return nil, apierr.BatchNotFound()
	}
	if err != nil {
		return nil, apierr.Internal(err)
	}
	var payload []byte
	var expiry time.Time
	if err := row.Columns(&payload, &expiry); err != nil {
		return nil, apierr.Internal(err)
	}
	if !expiry.After(s.now.Time()) {
		return nil, apierr.BatchNotFound()
	}
	return &types.Batch{ID: id, Payload: payload}, nil
}

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
	s.mutations = append(s.mutations, spanner.Delete("Batches", spanner.Key{s.user.String(), int64(s.collectionID), id}))
	return nil
}
