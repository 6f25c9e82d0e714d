package spannerstore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/spanner"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"

	"github.com/cuemby/syncstore/pkg/apierr"
	"github.com/cuemby/syncstore/pkg/pagination"
	"github.com/cuemby/syncstore/pkg/storage"
	"github.com/cuemby/syncstore/pkg/timestamp"
	"github.com/cuemby/syncstore/pkg/types"
)

func (s *session) GetBSO(ctx context.Context, collection, id string) (*types.BSO, error) {
	if b, ok := s.pendingBSO[id]; ok {
		if b == nil {
			return nil, apierr.BsoNotFound()
		}
		return b, nil
	}
	row, err := s.reader().ReadRow(ctx, "Bsos", spanner.Key{s.user.String(), int64(s.collectionID), id},
		[]string{"Payload", "SortIndex", "Modified", "Expiry"})
	if spanner.ErrCode(err) == codes.NotFound {
		return nil, apierr.BsoNotFound()
	}
	if err != nil {
		return nil, apierr.Internal(err)
	}
	b, err := bsoFromRow(id, row)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	if b.Expiry <= s.now.Millis() {
		return nil, apierr.BsoNotFound()
	}
	return b, nil
}

func bsoFromRow(id string, row *spanner.Row) (*types.BSO, error) {
	var payload string
	var sortIndex spanner.NullInt64
	var modified, expiry time.Time
	if err := row.Columns(&payload, &sortIndex, &modified, &expiry); err != nil {
		return nil, err
	}
	b := &types.BSO{
		ID:       id,
		Payload:  payload,
		Modified: timestamp.FromTime(modified).Millis(),
		Expiry:   timestamp.FromTime(expiry).Millis(),
	}
	if sortIndex.Valid {
		v := int32(sortIndex.Int64)
		b.SortIndex = &v
	}
	return b, nil
}

func (s *session) GetBSOTimestamp(ctx context.Context, collection, id string) (timestamp.T, error) {
	b, err := s.GetBSO(ctx, collection, id)
	if err != nil {
		if apiErr, ok := apierr.As(err); ok && apiErr.Kind == apierr.KindBsoNotFound {
			return timestamp.Zero, nil
		}
		return 0, err
	}
	return timestamp.FromMillis(b.Modified), nil
}

func (s *session) GetBSOs(ctx context.Context, collection string, filter types.BSOFilter) (*types.BSOResult, error) {
	items, err := s.queryBSOs(ctx, filter, true)
	if err != nil {
		return nil, err
	}
	offset, _ := pagination.Decode(filter.Offset)
	hasMore := false
	if filter.Limit > 0 && len(items) > filter.Limit {
		hasMore = true
		items = items[:filter.Limit]
	}
	if !filter.Full {
		for i := range items {
			items[i].Payload = ""
		}
	}
	result := &types.BSOResult{Items: items}
	if next, ok := pagination.Page(offset, len(items), hasMore); ok {
		result.NextOffset = next
	}
	return result, nil
}

func (s *session) GetBSOIDs(ctx context.Context, collection string, filter types.BSOFilter) (*types.BSOResult, error) {
	items, err := s.queryBSOs(ctx, filter, false)
	if err != nil {
		return nil, err
	}
	offset, _ := pagination.Decode(filter.Offset)
	hasMore := false
	if filter.Limit > 0 && len(items) > filter.Limit {
		hasMore = true
		items = items[:filter.Limit]
	}
	ids := make([]string, len(items))
	for i, b := range items {
		ids[i] = b.ID
	}
	result := &types.BSOResult{IDs: ids}
	if next, ok := pagination.Page(offset, len(ids), hasMore); ok {
		result.NextOffset = next
	}
	return result, nil
}

func (s *session) queryBSOs(ctx context.Context, filter types.BSOFilter, full bool) ([]types.BSO, error) {
	offset, _ := pagination.Decode(filter.Offset)

	where := "FxaUid = @uid AND CollectionId = @cid AND Expiry > @now"
	params := map[string]interface{}{
		"uid": s.user.String(), "cid": int64(s.collectionID), "now": s.now.Time(),
	}
	if len(filter.IDs) > 0 {
		where += " AND BsoId IN UNNEST(@ids)"
		params["ids"] = filter.IDs
	}
	if filter.Newer != nil {
		where += " AND Modified > @newer"
		params["newer"] = timestamp.FromMillis(*filter.Newer).Time()
	}
	if filter.Older != nil {
		where += " AND Modified < @older"
		params["older"] = timestamp.FromMillis(*filter.Older).Time()
	}

	order := "Modified DESC"
	switch filter.Sort {
	case types.SortIndex:
		order = "SortIndex DESC"
	case types.SortOldest:
		order = "Modified ASC, BsoId ASC"
	default:
		order = "Modified DESC, BsoId ASC"
	}

	sql := fmt.Sprintf("SELECT BsoId, Payload, SortIndex, Modified, Expiry FROM Bsos WHERE %s ORDER BY %s", where, order)
	limit := filter.Limit
	if limit > 0 {
		sql += fmt.Sprintf(" LIMIT %d", offset.Count+limit+1)
	}

	it := s.reader().Query(ctx, spanner.Statement{SQL: sql, Params: params})
	defer it.Stop()

	var out []types.BSO
	skip := offset.Count
	for {
		row, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, apierr.Internal(err)
		}
		if skip > 0 {
			skip--
			continue
		}
		var id, payload string
		var sortIndex spanner.NullInt64
		var modified, expiry time.Time
		if err := row.Columns(&id, &payload, &sortIndex, &modified, &expiry); err != nil {
			return nil, apierr.Internal(err)
		}
		b := types.BSO{ID: id, Payload: payload,
			Modified: timestamp.FromTime(modified).Millis(), Expiry: timestamp.FromTime(expiry).Millis()}
		if sortIndex.Valid {
			v := int32(sortIndex.Int64)
			b.SortIndex = &v
		}
		out = append(out, b)
	}
	return out, nil
}

func (s *session) PutBSO(ctx context.Context, collection, id string, fields types.BSOFields) (timestamp.T, error) {
	if fields.IsNoop() {
		return s.now, nil
	}
	now := s.now
	existing, err := s.GetBSO(ctx, collection, id)
	exists := err == nil
	if err != nil {
		if apiErr, ok := apierr.As(err); !ok || apiErr.Kind != apierr.KindBsoNotFound {
			return 0, err
		}
	}

	payload := ""
	var sortIndex *int32
	ttl := types.DefaultTTLSeconds
	if exists {
		payload = existing.Payload
		sortIndex = existing.SortIndex
		ttl = (existing.Expiry - existing.Modified) / 1000
	}
	if fields.Payload != nil {
		payload = *fields.Payload
	}
	if fields.SortIndex != nil {
		sortIndex = fields.SortIndex
	}
	if fields.TTL != nil {
		ttl = *fields.TTL
	}
	expiry := now.Millis() + ttl*1000

	var sortVal interface{}
	if sortIndex != nil {
		sortVal = int64(*sortIndex)
	}

	// A pure TTL refresh of a row that already exists (no payload or
	// sortindex change) only extends expiry; it must not advance modified
	// on the BSO or its owning collection, or a ttl-only touch would look
	// like a write to every client paginating by timestamp.
	ttlOnly := exists && !fields.HasPayloadOrSortIndex()
	modified := now.Millis()
	if ttlOnly {
		modified = existing.Modified
	}

	s.mutations = append(s.mutations, spanner.InsertOrUpdate("Bsos",
		[]string{"FxaUid", "CollectionId", "BsoId", "Payload", "SortIndex", "Modified", "Expiry"},
		[]interface{}{s.user.String(), int64(s.collectionID), id, payload, sortVal, timestamp.FromMillis(modified).Time(), timestamp.FromMillis(expiry).Time()}))

	s.pendingBSO[id] = &types.BSO{ID: id, Payload: payload, SortIndex: sortIndex, Modified: modified, Expiry: expiry}
	if !ttlOnly {
		s.ensureCollection(now)
	}
	if err := s.recomputeQuota(ctx); err != nil {
		return 0, err
	}
	if ttlOnly {
		return timestamp.FromMillis(modified), nil
	}
	return now, nil
}

func (s *session) PostBSOs(ctx context.Context, collection string, posts []storage.BSOPost) (*types.PostResult, error) {
	now := s.now
	result := types.NewPostResult(now.Millis())
	s.ensureCollection(now)

	limits := s.backend.Limits()
	for _, p := range posts {
		if p.Payload != nil && limits.MaxRecordPayloadBytes > 0 && int64(len(*p.Payload)) > limits.MaxRecordPayloadBytes {
			result.AddFailure(p.ID, "payload too large")
			continue
		}
		fields := types.BSOFields{Payload: p.Payload, SortIndex: p.SortIndex, TTL: p.TTL}
		if _, err := s.PutBSO(ctx, collection, p.ID, fields); err != nil {
			result.AddFailure(p.ID, err.Error())
			continue
		}
		result.AddSuccess(p.ID)
	}
	return result, nil
}

func (s *session) DeleteBSO(ctx context.Context, collection, id string) error {
	if _, err := s.GetBSO(ctx, collection, id); err != nil {
		return err
	}
	s.mutations = append(s.mutations, spanner.Delete("Bsos", spanner.Key{s.user.String(), int64(s.collectionID), id}))
	s.pendingBSO[id] = nil
	s.ensureCollection(s.now)
	return s.recomputeQuota(ctx)
}

func (s *session) DeleteBSOs(ctx context.Context, collection string, ids []string) (timestamp.T, error) {
	for _, id := range ids {
		s.mutations = append(s.mutations, spanner.Delete("Bsos", spanner.Key{s.user.String(), int64(s.collectionID), id}))
		s.pendingBSO[id] = nil
	}
	if len(ids) > 0 {
		s.ensureCollection(s.now)
		if err := s.recomputeQuota(ctx); err != nil {
			return 0, err
		}
	}
	return s.now, nil
}
