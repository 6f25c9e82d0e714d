package spannerstore

import (
	"context"
	"time"

	"cloud.google.com/go/spanner"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"

	"github.com/cuemby/syncstore/pkg/apierr"
	"github.com/cuemby/syncstore/pkg/timestamp"
	"github.com/cuemby/syncstore/pkg/types"
)

func (s *session) GetCollectionTimestamp(ctx context.Context, collection string) (timestamp.T, error) {
	row, err := s.reader().ReadRow(ctx, "UserCollections",
		spanner.Key{s.user.String(), int64(s.collectionID)}, []string{"Modified"})
	if spanner.ErrCode(err) == codes.NotFound {
		return 0, apierr.CollectionNotFound()
	}
	if err != nil {
		return 0, apierr.Internal(err)
	}
	var modified time.Time
	if err := row.Column(0, &modified); err != nil {
		return 0, apierr.Internal(err)
	}
	return timestamp.FromTime(modified), nil
}

func (s *session) GetCollectionTimestamps(ctx context.Context) (map[string]timestamp.T, error) {
	stmt := spanner.Statement{
		SQL: `SELECT c.Name, uc.Modified FROM UserCollections uc
		      JOIN Collections c ON c.CollectionId = uc.CollectionId
		      WHERE uc.FxaUid = @uid`,
		Params: map[string]interface{}{"uid": s.user.String()},
	}
	out := map[string]timestamp.T{}
	it := s.reader().Query(ctx, stmt)
	defer it.Stop()
	for {
		row, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, apierr.Internal(err)
		}
		var name string
		var modified time.Time
		if err := row.Columns(&name, &modified); err != nil {
			return nil, apierr.Internal(err)
		}
		out[name] = timestamp.FromTime(modified)
	}
	return out, nil
}

func (s *session) GetCollectionCounts(ctx context.Context) (map[string]int, error) {
	stmt := spanner.Statement{
		SQL: `SELECT c.Name, COUNT(*) FROM Bsos b
		      JOIN Collections c ON c.CollectionId = b.CollectionId
		      WHERE b.FxaUid = @uid AND b.Expiry > @now
		      GROUP BY c.Name`,
		Params: map[string]interface{}{"uid": s.user.String(), "now": s.now.Time()},
	}
	out := map[string]int{}
	it := s.reader().Query(ctx, stmt)
	defer it.Stop()
	for {
		row, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, apierr.Internal(err)
		}
		var name string
		var count int64
		if err := row.Columns(&name, &count); err != nil {
			return nil, apierr.Internal(err)
		}
		out[name] = int(count)
	}
	return out, nil
}

func (s *session) GetCollectionUsage(ctx context.Context) (map[string]int64, error) {
	stmt := spanner.Statement{
		SQL: `SELECT c.Name, COALESCE(SUM(BYTE_LENGTH(b.Payload)), 0) FROM Bsos b
		      JOIN Collections c ON c.CollectionId = b.CollectionId
		      WHERE b.FxaUid = @uid AND b.Expiry > @now
		      GROUP BY c.Name`,
		Params: map[string]interface{}{"uid": s.user.String(), "now": s.now.Time()},
	}
	out := map[string]int64{}
	it := s.reader().Query(ctx, stmt)
	defer it.Stop()
	for {
		row, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, apierr.Internal(err)
		}
		var name string
		var bytes int64
		if err := row.Columns(&name, &bytes); err != nil {
			return nil, apierr.Internal(err)
		}
		out[name] = bytes
	}
	return out, nil
}

func (s *session) GetStorageTimestamp(ctx context.Context) (timestamp.T, error) {
	stmt := spanner.Statement{
		SQL:    `SELECT MAX(Modified) FROM UserCollections WHERE FxaUid = @uid`,
		Params: map[string]interface{}{"uid": s.user.String()},
	}
	it := s.reader().Query(ctx, stmt)
	defer it.Stop()
	row, err := it.Next()
	if err == iterator.Done {
		return timestamp.Zero, nil
	}
	if err != nil {
		return 0, apierr.Internal(err)
	}
	var modified spanner.NullTime
	if err := row.Columns(&modified); err != nil {
		return 0, apierr.Internal(err)
	}
	if !modified.Valid {
		return timestamp.Zero, nil
	}
	return timestamp.FromTime(modified.Time), nil
}

func (s *session) GetStorageUsage(ctx context.Context) (int64, error) {
	stmt := spanner.Statement{
		SQL: `SELECT SUM(BYTE_LENGTH(Payload)) FROM Bsos WHERE FxaUid = @uid AND Expiry > @now`,
		Params: map[string]interface{}{"uid": s.user.String(), "now": s.now.Time()},
	}
	it := s.reader().Query(ctx, stmt)
	defer it.Stop()
	row, err := it.Next()
	if err == iterator.Done {
		return 0, nil
	}
	if err != nil {
		return 0, apierr.Internal(err)
	}
	var total spanner.NullInt64
	if err := row.Columns(&total); err != nil {
		return 0, apierr.Internal(err)
	}
	if !total.Valid {
		return 0, nil
	}
	return total.Int64, nil
}

// DeleteCollection deletes the interleaved Bsos and Batches rows and the
// UserCollections row itself via range-delete mutations, all buffered into
// the same commit as the rest of this write session. If the collection had
// a row, a tombstone is erected under the reserved collection id 0 so
// get_storage_timestamp keeps advancing even though the deleted
// collection's own row is gone.
func (s *session) DeleteCollection(ctx context.Context, collection string) (timestamp.T, error) {
	_, err := s.GetCollectionTimestamp(ctx, collection)
	existed := true
	if err != nil {
		apiErr, ok := apierr.As(err)
		if !ok || apiErr.Kind != apierr.KindCollectionNotFound {
			return 0, err
		}
		existed = false
	}

	key := spanner.Key{s.user.String(), int64(s.collectionID)}
	s.mutations = append(s.mutations,
		spanner.Delete("Bsos", key.AsPrefix()),
		spanner.Delete("Batches", key.AsPrefix()),
		spanner.Delete("UserCollections", key),
	)
	if existed {
		s.erectTombstone()
	}
	if err := s.rwTxn.BufferWrite(s.mutations); err != nil {
		return 0, apierr.Internal(err)
	}
	s.mutations = nil
	if existed {
		// Buffered mutations are invisible to reads in this transaction, so
		// the tombstone's value is returned directly.
		return s.now, nil
	}
	return s.GetStorageTimestamp(ctx)
}

// erectTombstone buffers an upsert of the reserved collection-id-0 row,
// recording a deletion so get_storage_timestamp stays monotonic even after
// the deleted collection's own row is gone.
func (s *session) erectTombstone() {
	s.mutations = append(s.mutations, spanner.InsertOrUpdate("UserCollections",
		[]string{"FxaUid", "CollectionId", "Modified"},
		[]interface{}{s.user.String(), int64(types.TombstoneCollectionID), s.now.Time()}))
}

func (s *session) DeleteStorage(ctx context.Context) error {
	uidKey := spanner.Key{s.user.String()}
	s.mutations = append(s.mutations,
		spanner.Delete("Bsos", uidKey.AsPrefix()),
		spanner.Delete("Batches", uidKey.AsPrefix()),
		spanner.Delete("UserCollections", uidKey.AsPrefix()),
	)
	if err := s.rwTxn.BufferWrite(s.mutations); err != nil {
		return apierr.Internal(err)
	}
	s.mutations = nil
	return nil
}
