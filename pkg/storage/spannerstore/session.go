package spannerstore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/spanner"
	"google.golang.org/grpc/codes"

	"github.com/cuemby/syncstore/pkg/apierr"
	"github.com/cuemby/syncstore/pkg/storage"
	"github.com/cuemby/syncstore/pkg/timestamp"
	"github.com/cuemby/syncstore/pkg/types"
)

// session is one request's bound Spanner transaction. Reads on the write
// path are served from pendingBSO first (read-your-writes over buffered,
// not-yet-committed mutations), then from the transaction itself.
type session struct {
	backend *Backend
	user    types.Identity

	mode   storage.LockMode
	locked bool

	collectionName string
	collectionID   uint32

	now timestamp.T

	roTxn *spanner.ReadOnlyTransaction
	rwTxn *spanner.ReadWriteStmtBasedTransaction

	pendingBSO        map[string]*types.BSO // nil value means "deleted in this txn"
	pendingCollection bool                  // UserCollections row touched this txn
	mutations         []*spanner.Mutation
}

func (s *session) Now() timestamp.T { return s.now }

func (s *session) reader() spannerReader {
	if s.rwTxn != nil {
		return s.rwTxn
	}
	return s.roTxn
}

type loaderAdapter struct{ s *session }

func (l loaderAdapter) LookupCollectionID(ctx context.Context, name string) (uint32, bool, error) {
	return l.s.backend.lookupCollectionID(ctx, l.s.reader(), name)
}

func (l loaderAdapter) AllocateCollectionID(ctx context.Context, name string) (uint32, error) {
	if l.s.rwTxn == nil {
		return 0, fmt.Errorf("spannerstore: cannot allocate a collection id on a read-only session")
	}
	return l.s.backend.allocateCollectionID(ctx, l.s.rwTxn, name)
}

func (s *session) Lock(ctx context.Context, collection string, mode storage.LockMode) error {
	if s.locked {
		if s.collectionName != collection {
			return apierr.Internal(fmt.Errorf("spannerstore: session already locked on %q, cannot lock %q", s.collectionName, collection))
		}
		if mode == storage.LockWrite && s.mode == storage.LockRead {
			return apierr.Internal(fmt.Errorf("spannerstore: cannot promote read lock to write lock"))
		}
		return nil
	}

	switch mode {
	case storage.LockRead:
		s.roTxn = s.backend.client.ReadOnlyTransaction()
		s.mode = mode

		id, found, err := s.backend.lookupCollectionID(ctx, s.roTxn, collection)
		if err != nil {
			return apierr.Internal(err)
		}
		if !found {
			id = 0
		}
		s.collectionID = id
		s.collectionName = collection
		s.now = timestamp.Now()
		s.locked = true
		return nil

	case storage.LockWrite:
		txn, err := spanner.NewReadWriteStmtBasedTransaction(ctx, s.backend.client)
		if err != nil {
			return apierr.PoolTimeout(err)
		}
		s.rwTxn = txn
		s.mode = mode

		id, err := s.backend.cache.Resolve(ctx, loaderAdapter{s}, collection)
		if err != nil {
			s.rollbackSilently(ctx)
			return apierr.Internal(fmt.Errorf("resolve collection id: %w", err))
		}
		s.collectionID = id
		s.collectionName = collection
		s.now = timestamp.Now() // Spanner commit timestamp finalizes at Commit; this approximates it for response headers

		row, err := txn.ReadRow(ctx, "UserCollections", spanner.Key{s.user.String(), int64(id)}, []string{"Modified"})
		if err != nil && spanner.ErrCode(err) != codes.NotFound {
			s.rollbackSilently(ctx)
			return apierr.Internal(err)
		}
		if err == nil {
			var modifiedTS time.Time
			if err := row.Column(0, &modifiedTS); err != nil {
				s.rollbackSilently(ctx)
				return apierr.Internal(err)
			}
			if timestamp.FromTime(modifiedTS) >= s.now {
				s.rollbackSilently(ctx)
				return apierr.Conflict()
			}
		}

		s.locked = true
		return nil
	default:
		return apierr.Internal(fmt.Errorf("spannerstore: unknown lock mode %d", mode))
	}
}

func (s *session) rollbackSilently(ctx context.Context) {
	if s.rwTxn != nil {
		_ = s.rwTxn.Rollback(ctx)
		s.rwTxn = nil
	}
}

func (s *session) Commit(ctx context.Context) error {
	if s.roTxn != nil {
		s.roTxn.Close()
		s.roTxn = nil
		return nil
	}
	if s.rwTxn == nil {
		return nil
	}
	if len(s.mutations) > 0 {
		if err := s.rwTxn.BufferWrite(s.mutations); err != nil {
			s.rollbackSilently(ctx)
			return apierr.Internal(err)
		}
		s.mutations = nil
	}
	_, err := s.rwTxn.Commit(ctx)
	s.rwTxn = nil
	if err != nil {
		return apierr.Internal(fmt.Errorf("commit: %w", err))
	}
	return nil
}

func (s *session) Rollback(ctx context.Context) error {
	if s.roTxn != nil {
		s.roTxn.Close()
		s.roTxn = nil
		return nil
	}
	if s.rwTxn == nil {
		return nil
	}
	err := s.rwTxn.Rollback(ctx)
	s.rwTxn = nil
	if err != nil {
		return apierr.Internal(err)
	}
	return nil
}

// ensureCollection buffers an UPSERT of the UserCollections row so it lands
// atomically with the BSO mutation in the same Commit call.
func (s *session) ensureCollection(modified timestamp.T) {
	s.mutations = append(s.mutations, spanner.InsertOrUpdate("UserCollections",
		[]string{"FxaUid", "CollectionId", "Modified"},
		[]interface{}{s.user.String(), int64(s.collectionID), modified.Time()}))
	s.pendingCollection = true
}
