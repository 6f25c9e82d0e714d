package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cuemby/syncstore/pkg/apierr"
	"github.com/cuemby/syncstore/pkg/storage"
	"github.com/cuemby/syncstore/pkg/timestamp"
	"github.com/cuemby/syncstore/pkg/types"
)

// session is one request's bound connection/transaction.
type session struct {
	backend *Backend
	user    types.Identity

	tx   *sql.Tx
	mode storage.LockMode
	locked bool

	collectionName string
	collectionID   uint32

	now timestamp.T
}

func (s *session) Now() timestamp.T { return s.now }

// loaderAdapter lets session.Lock hand the shared collections.Cache a
// Loader bound to this session's in-flight transaction (a read-only one
// under a read lock), so a write-path allocation happens inside the same
// transaction it will commit/rollback with.
type loaderAdapter struct {
	s *session
}

func (l loaderAdapter) LookupCollectionID(ctx context.Context, name string) (uint32, bool, error) {
	return l.s.backend.lookupCollectionID(ctx, l.s.queryer(), name)
}

func (l loaderAdapter) AllocateCollectionID(ctx context.Context, name string) (uint32, error) {
	return l.s.backend.allocateCollectionID(ctx, l.s.execer(), name)
}

func (s *session) queryer() queryer {
	if s.tx != nil {
		return s.tx
	}
	return s.backend.db
}

func (s *session) execer() execer {
	if s.tx != nil {
		return s.tx
	}
	return s.backend.db
}

// Lock acquires a read or write lock on (user, collection).
func (s *session) Lock(ctx context.Context, collection string, mode storage.LockMode) error {
	if s.locked {
		if s.collectionName != collection {
			// A session is scoped to one (user, collection) per request;
			// re-locking a different name is a caller bug.
			return apierr.Internal(fmt.Errorf("sqlstore: session already locked on %q, cannot lock %q", s.collectionName, collection))
		}
		if mode == storage.LockWrite && s.mode == storage.LockRead {
			return apierr.Internal(fmt.Errorf("sqlstore: cannot promote read lock to write lock"))
		}
		return nil // idempotent
	}

	switch mode {
	case storage.LockRead:
		tx, err := s.backend.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
		if err != nil {
			return apierr.PoolTimeout(err)
		}
		s.tx = tx
		s.mode = mode

		id, found, err := s.backend.lookupCollectionID(ctx, s.queryer(), collection)
		if err != nil {
			s.rollbackSilently(ctx)
			return apierr.Internal(err)
		}
		if found {
			s.backend.cache.Resolve(ctx, loaderAdapter{s}, collection) // warm cache, ignore error: best-effort
		}
		if !found {
			id = 0 // a read lock on a collection that does not exist resolves to id 0
		}
		s.collectionID = id
		s.collectionName = collection
		s.now = timestamp.Now()
		s.locked = true
		return nil

	case storage.LockWrite:
		tx, err := s.backend.db.BeginTx(ctx, nil)
		if err != nil {
			return apierr.PoolTimeout(err)
		}
		s.tx = tx
		s.mode = mode

		id, err := s.backend.cache.Resolve(ctx, loaderAdapter{s}, collection)
		if err != nil {
			s.rollbackSilently(ctx)
			return apierr.Internal(fmt.Errorf("resolve collection id: %w", err))
		}
		s.collectionID = id
		s.collectionName = collection

		serverNow, err := s.dbNow(ctx)
		if err != nil {
			s.rollbackSilently(ctx)
			return apierr.Internal(err)
		}

		var modified sql.NullInt64
		row := tx.QueryRowContext(ctx,
			`SELECT modified FROM user_collections WHERE userid = ? AND collection_id = ? FOR UPDATE`,
			s.user.UID, id)
		if err := row.Scan(&modified); err != nil && err != sql.ErrNoRows {
			s.rollbackSilently(ctx)
			return apierr.Internal(err)
		}

		if modified.Valid && timestamp.T(modified.Int64) >= serverNow {
			s.rollbackSilently(ctx)
			return apierr.Conflict()
		}

		s.now = serverNow
		s.locked = true
		return nil
	default:
		return apierr.Internal(fmt.Errorf("sqlstore: unknown lock mode %d", mode))
	}
}

// dbNow reads the database's clock, rounded to the wire format, used so
// that the modified >= server_now comparison in Lock(write) is computed
// against the same clock user-collection rows are stamped with.
func (s *session) dbNow(ctx context.Context) (timestamp.T, error) {
	var ms int64
	err := s.tx.QueryRowContext(ctx, `SELECT CAST(UNIX_TIMESTAMP(NOW(6)) * 1000 AS SIGNED)`).Scan(&ms)
	if err != nil {
		return 0, err
	}
	return timestamp.FromMillis(ms), nil
}

func (s *session) rollbackSilently(ctx context.Context) {
	if s.tx != nil {
		_ = s.tx.Rollback()
		s.tx = nil
	}
}

func (s *session) Commit(ctx context.Context) error {
	if s.tx == nil {
		return nil
	}
	if s.mode == storage.LockRead {
		err := s.tx.Rollback() // read-only tx: nothing to flush, just release it
		s.tx = nil
		if err != nil && err != sql.ErrTxDone {
			return apierr.Internal(err)
		}
		return nil
	}
	err := s.tx.Commit()
	s.tx = nil
	if err != nil {
		return apierr.Internal(fmt.Errorf("commit: %w", err))
	}
	return nil
}

func (s *session) Rollback(ctx context.Context) error {
	if s.tx == nil {
		return nil
	}
	err := s.tx.Rollback()
	s.tx = nil
	if err != nil && err != sql.ErrTxDone {
		return apierr.Internal(err)
	}
	return nil
}

// ensureCollection implements the "write to (user, collection) creates the
// row if absent, as a single atomic effect with the BSO write" rule
// (invariant 4). On the quota-enabled path it also seeds zeroed counters.
func (s *session) ensureCollection(ctx context.Context, modified timestamp.T) error {
	_, quotaEnabled, _ := s.backend.QuotaLimitBytes()
	var err error
	if quotaEnabled {
		_, err = s.tx.ExecContext(ctx, `
			INSERT INTO user_collections (userid, collection_id, modified, total_bytes, count)
			VALUES (?, ?, ?, 0, 0)
			ON DUPLICATE KEY UPDATE modified = VALUES(modified)`,
			s.user.UID, s.collectionID, modified.Millis())
	} else {
		_, err = s.tx.ExecContext(ctx, `
			INSERT INTO user_collections (userid, collection_id, modified)
			VALUES (?, ?, ?)
			ON DUPLICATE KEY UPDATE modified = VALUES(modified)`,
			s.user.UID, s.collectionID, modified.Millis())
	}
	return err
}
