package spannerstore

import (
	"context"

	"cloud.google.com/go/spanner"
	"google.golang.org/api/iterator"

	"github.com/cuemby/syncstore/pkg/apierr"
)

// recomputeQuota re-derives total_bytes/count for the session's locked
// collection from Bsos and buffers a UserCollections update in the same
// commit. Spanner mutations buffered via BufferWrite are invisible to reads
// in the same transaction, so the Bsos query alone would miss whatever
// this session just wrote; it is folded in explicitly via pendingBSO, which
// PutBSO/DeleteBSO/DeleteBSOs populate before calling here.
func (s *session) recomputeQuota(ctx context.Context) error {
	limitBytes, enabled, enforce := s.backend.QuotaLimitBytes()
	if !enabled {
		return nil
	}

	stmt := spanner.Statement{
		SQL: `SELECT BsoId, BYTE_LENGTH(Payload) FROM Bsos
		      WHERE FxaUid = @uid AND CollectionId = @cid AND Expiry > @now`,
		Params: map[string]interface{}{
			"uid": s.user.String(), "cid": int64(s.collectionID), "now": s.now.Time(),
		},
	}
	it := s.reader().Query(ctx, stmt)
	defer it.Stop()

	byID := make(map[string]int64)
	for {
		row, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return apierr.Internal(err)
		}
		var id string
		var byteLen int64
		if err := row.Columns(&id, &byteLen); err != nil {
			return apierr.Internal(err)
		}
		byID[id] = byteLen
	}

	for id, bso := range s.pendingBSO {
		if bso == nil || bso.Expiry <= s.now.Millis() {
			delete(byID, id)
			continue
		}
		byID[id] = int64(len(bso.Payload))
	}

	var totalBytes int64
	for _, n := range byID {
		totalBytes += n
	}
	count := int64(len(byID))

	s.mutations = append(s.mutations, spanner.InsertOrUpdate("UserCollections",
		[]string{"FxaUid", "CollectionId", "TotalBytes", "Count"},
		[]interface{}{s.user.String(), int64(s.collectionID), totalBytes, count}))

	if !enforce || limitBytes <= 0 {
		return nil
	}

	// Other collections' TotalBytes rows are already committed and
	// accurate; this collection's own row is stale until commit, so it's
	// excluded here and totalBytes (computed above) is added in instead.
	totalStmt := spanner.Statement{
		SQL: `SELECT COALESCE(SUM(TotalBytes), 0) FROM UserCollections
		      WHERE FxaUid = @uid AND CollectionId != @cid`,
		Params: map[string]interface{}{"uid": s.user.String(), "cid": int64(s.collectionID)},
	}
	tit := s.reader().Query(ctx, totalStmt)
	defer tit.Stop()
	var otherTotal int64
	trow, err := tit.Next()
	if err != nil && err != iterator.Done {
		return apierr.Internal(err)
	}
	if err == nil {
		if err := trow.Columns(&otherTotal); err != nil {
			return apierr.Internal(err)
		}
	}
	if otherTotal+totalBytes > limitBytes {
		return apierr.Quota()
	}
	return nil
}
