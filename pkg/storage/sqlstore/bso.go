package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/cuemby/syncstore/pkg/apierr"
	"github.com/cuemby/syncstore/pkg/pagination"
	"github.com/cuemby/syncstore/pkg/storage"
	"github.com/cuemby/syncstore/pkg/timestamp"
	"github.com/cuemby/syncstore/pkg/types"
)

func (s *session) GetBSO(ctx context.Context, collection, id string) (*types.BSO, error) {
	var b types.BSO
	var sortIndex sql.NullInt32
	err := s.queryer().QueryRowContext(ctx, `
		SELECT bso_id, payload, sortindex, modified, expiry
		FROM bsos WHERE userid = ? AND collection_id = ? AND bso_id = ? AND expiry > ?`,
		s.user.UID, s.collectionID, id, timestamp.Now().Millis()).
		Scan(&b.ID, &b.Payload, &sortIndex, &b.Modified, &b.Expiry)
	if err == sql.ErrNoRows {
		return nil, apierr.BsoNotFound()
	}
	if err != nil {
		return nil, apierr.Internal(err)
	}
	if sortIndex.Valid {
		v := sortIndex.Int32
		b.SortIndex = &v
	}
	return &b, nil
}

func (s *session) GetBSOTimestamp(ctx context.Context, collection, id string) (timestamp.T, error) {
	var modified int64
	err := s.queryer().QueryRowContext(ctx, `
		SELECT modified FROM bsos WHERE userid = ? AND collection_id = ? AND bso_id = ? AND expiry > ?`,
		s.user.UID, s.collectionID, id, timestamp.Now().Millis()).Scan(&modified)
	if err == sql.ErrNoRows {
		return timestamp.Zero, nil
	}
	if err != nil {
		return 0, apierr.Internal(err)
	}
	return timestamp.FromMillis(modified), nil
}

// buildFilterClause turns a types.BSOFilter into a WHERE fragment and its
// bound args, shared between GetBSOs and GetBSOIDs so the two queries stay
// in lockstep (only the select list differs between them).
func buildFilterClause(userID int64, collectionID uint32, filter types.BSOFilter, now int64) (string, []interface{}) {
	clauses := []string{"userid = ?", "collection_id = ?", "expiry > ?"}
	args := []interface{}{userID, collectionID, now}

	if len(filter.IDs) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(filter.IDs)), ",")
		clauses = append(clauses, fmt.Sprintf("bso_id IN (%s)", placeholders))
		for _, id := range filter.IDs {
			args = append(args, id)
		}
	}
	if filter.Newer != nil {
		clauses = append(clauses, "modified > ?")
		args = append(args, *filter.Newer)
	}
	if filter.Older != nil {
		clauses = append(clauses, "modified < ?")
		args = append(args, *filter.Older)
	}
	return strings.Join(clauses, " AND "), args
}

func orderByClause(sort types.Sort) string {
	switch sort {
	case types.SortIndex:
		return "ORDER BY sortindex DESC"
	case types.SortOldest:
		return "ORDER BY modified ASC"
	default:
		return "ORDER BY modified DESC"
	}
}

// offsetSkip returns how many leading rows to skip given a decoded paging
// offset. This backend does not order by bso_id as a secondary key (see
// doc.go), so the offset is plain row-count skip, not a keyset seek.
func offsetSkip(o pagination.Offset) int {
	return o.Count
}

func (s *session) GetBSOs(ctx context.Context, collection string, filter types.BSOFilter) (*types.BSOResult, error) {
	offset, _ := pagination.Decode(filter.Offset)
	where, args := buildFilterClause(int64(s.user.UID), s.collectionID, filter, timestamp.Now().Millis())

	limit := filter.Limit
	fetch := limit
	if fetch > 0 {
		fetch++ // fetch one extra row to detect "more available"
	}

	query := fmt.Sprintf(`
		SELECT bso_id, payload, sortindex, modified, expiry
		FROM bsos WHERE %s %s`, where, orderByClause(filter.Sort))
	args2 := append([]interface{}{}, args...)
	if fetch > 0 {
		query += " LIMIT ? OFFSET ?"
		args2 = append(args2, fetch, offsetSkip(offset))
	}

	rows, err := s.queryer().QueryContext(ctx, query, args2...)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	defer rows.Close()

	var items []types.BSO
	for rows.Next() {
		var b types.BSO
		var sortIndex sql.NullInt32
		if err := rows.Scan(&b.ID, &b.Payload, &sortIndex, &b.Modified, &b.Expiry); err != nil {
			return nil, apierr.Internal(err)
		}
		if sortIndex.Valid {
			v := sortIndex.Int32
			b.SortIndex = &v
		}
		if !filter.Full {
			b.Payload = ""
		}
		items = append(items, b)
	}
	if err := rows.Err(); err != nil {
		return nil, apierr.Internal(err)
	}

	result := &types.BSOResult{}
	hasMore := false
	if fetch > 0 && len(items) == fetch {
		hasMore = true
		items = items[:limit]
	}
	result.Items = items
	if next, ok := pagination.Page(offset, len(items), hasMore); ok {
		result.NextOffset = next
	}
	return result, nil
}

func (s *session) GetBSOIDs(ctx context.Context, collection string, filter types.BSOFilter) (*types.BSOResult, error) {
	offset, _ := pagination.Decode(filter.Offset)
	where, args := buildFilterClause(int64(s.user.UID), s.collectionID, filter, timestamp.Now().Millis())

	limit := filter.Limit
	fetch := limit
	if fetch > 0 {
		fetch++
	}

	query := fmt.Sprintf(`SELECT bso_id FROM bsos WHERE %s %s`, where, orderByClause(filter.Sort))
	args2 := append([]interface{}{}, args...)
	if fetch > 0 {
		query += " LIMIT ? OFFSET ?"
		args2 = append(args2, fetch, offsetSkip(offset))
	}

	rows, err := s.queryer().QueryContext(ctx, query, args2...)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apierr.Internal(err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, apierr.Internal(err)
	}

	result := &types.BSOResult{}
	hasMore := false
	if fetch > 0 && len(ids) == fetch {
		hasMore = true
		ids = ids[:limit]
	}
	result.IDs = ids
	if next, ok := pagination.Page(offset, len(ids), hasMore); ok {
		result.NextOffset = next
	}
	return result, nil
}

// PutBSO inserts or updates a single BSO. A write that sets payload or
// sortindex stamps both the BSO and the owning collection with the session
// timestamp in the same transaction; a ttl-only update of an existing BSO
// changes neither timestamp, and a call with no fields at all is a no-op
// that returns the session timestamp.
func (s *session) PutBSO(ctx context.Context, collection, id string, fields types.BSOFields) (timestamp.T, error) {
	if fields.IsNoop() {
		return s.now, nil
	}
	now := s.now
	ttl := int64(types.DefaultTTLSeconds)
	if fields.TTL != nil {
		ttl = *fields.TTL
	}
	expiry := now.Millis() + ttl*1000

	var existingPayload sql.NullString
	var existingSortIndex sql.NullInt32
	var existingModified sql.NullInt64
	var existingExpiry sql.NullInt64
	err := s.tx.QueryRowContext(ctx, `
		SELECT payload, sortindex, modified, expiry FROM bsos WHERE userid = ? AND collection_id = ? AND bso_id = ?`,
		s.user.UID, s.collectionID, id).Scan(&existingPayload, &existingSortIndex, &existingModified, &existingExpiry)
	exists := err == nil
	if err != nil && err != sql.ErrNoRows {
		return 0, apierr.Internal(err)
	}

	payload := ""
	if exists {
		payload = existingPayload.String
	}
	if fields.Payload != nil {
		payload = *fields.Payload
	}
	var sortIndex sql.NullInt32
	if exists && existingSortIndex.Valid {
		sortIndex = existingSortIndex
	}
	if fields.SortIndex != nil {
		sortIndex = sql.NullInt32{Int32: *fields.SortIndex, Valid: true}
	}
	if fields.TTL == nil && exists {
		expiry = existingExpiry.Int64
	}

	// A pure TTL refresh of a row that already exists (no payload or
	// sortindex change) only extends expiry; it must not advance modified
	// on the BSO or its owning collection, or a ttl-only touch would look
	// like a write to every client paginating by timestamp.
	ttlOnly := exists && !fields.HasPayloadOrSortIndex()
	modified := now.Millis()
	if ttlOnly {
		modified = existingModified.Int64
	} else {
		if err := s.ensureCollection(ctx, now); err != nil {
			return 0, apierr.Internal(err)
		}
	}

	_, err = s.tx.ExecContext(ctx, `
		INSERT INTO bsos (userid, collection_id, bso_id, payload, sortindex, modified, expiry)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE payload = VALUES(payload), sortindex = VALUES(sortindex),
			modified = VALUES(modified), expiry = VALUES(expiry)`,
		s.user.UID, s.collectionID, id, payload, sortIndex, modified, expiry)
	if err != nil {
		return 0, apierr.Internal(err)
	}

	if err := s.recomputeQuota(ctx); err != nil {
		return 0, err
	}
	if ttlOnly {
		return timestamp.FromMillis(modified), nil
	}
	return now, nil
}

// PostBSOs applies one post per BSO independently: a failure on one id
// (e.g. payload too large) is recorded in PostResult.Failed and does not
// abort the rest of the batch.
func (s *session) PostBSOs(ctx context.Context, collection string, posts []storage.BSOPost) (*types.PostResult, error) {
	now := s.now
	result := types.NewPostResult(now.Millis())

	if limit := s.backend.cfg.MaxPostPayloadBytes; limit > 0 {
		var total int64
		for _, p := range posts {
			if p.Payload != nil {
				total += int64(len(*p.Payload))
			}
		}
		if total > limit {
			return nil, apierr.SizeLimitExceeded()
		}
	}

	if err := s.ensureCollection(ctx, now); err != nil {
		return nil, apierr.Internal(err)
	}

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
	res, err := s.tx.ExecContext(ctx, `DELETE FROM bsos WHERE userid = ? AND collection_id = ? AND bso_id = ?`,
		s.user.UID, s.collectionID, id)
	if err != nil {
		return apierr.Internal(err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apierr.BsoNotFound()
	}
	if _, err := s.tx.ExecContext(ctx, `UPDATE user_collections SET modified = ? WHERE userid = ? AND collection_id = ?`,
		s.now.Millis(), s.user.UID, s.collectionID); err != nil {
		return apierr.Internal(err)
	}
	return s.recomputeQuota(ctx)
}

func (s *session) DeleteBSOs(ctx context.Context, collection string, ids []string) (timestamp.T, error) {
	if len(ids) == 0 {
		return s.now, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, 0, len(ids)+2)
	args = append(args, s.user.UID, s.collectionID)
	for _, id := range ids {
		args = append(args, id)
	}
	if _, err := s.tx.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM bsos WHERE userid = ? AND collection_id = ? AND bso_id IN (%s)`, placeholders),
		args...); err != nil {
		return 0, apierr.Internal(err)
	}
	if _, err := s.tx.ExecContext(ctx, `UPDATE user_collections SET modified = ? WHERE userid = ? AND collection_id = ?`,
		s.now.Millis(), s.user.UID, s.collectionID); err != nil {
		return 0, apierr.Internal(err)
	}
	if err := s.recomputeQuota(ctx); err != nil {
		return 0, err
	}
	return s.now, nil
}
