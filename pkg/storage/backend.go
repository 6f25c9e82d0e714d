package storage

import (
	"context"

	"github.com/cuemby/syncstore/pkg/timestamp"
	"github.com/cuemby/syncstore/pkg/types"
)

// BSOPost is one item of a post_bsos / batch-append payload: an id plus the
// fields to upsert. Payload/SortIndex/TTL follow the same "nil means
// unset" convention as types.BSOFields.
type BSOPost struct {
	ID        string
	Payload   *string
	SortIndex *int32
	TTL       *int64
}

// Backend is the capability set both storage engines implement. Dispatch
// and the HTTP handlers depend only on this interface.
type Backend interface {
	// NewSession opens one session for the duration of a single request,
	// acquiring a connection (or, for the distributed backend, a client
	// session) from the backend's pool. The caller must Commit or Rollback
	// exactly once.
	NewSession(ctx context.Context, user types.Identity) (Session, error)

	// Limits returns the server-configured bounds served at
	// GET /info/configuration.
	Limits() types.Limits

	// QuotaLimitBytes returns the configured per-user quota (summed over all
	// of the user's collections) and
	// whether quota accounting is enabled at all. When enabled is false,
	// GET /info/quota reports a null quota and writes are never rejected
	// for being over quota.
	QuotaLimitBytes() (limitBytes int64, enabled, enforce bool)

	// PoolStats reports connection/session pool telemetry for the
	// admission layer and for pkg/metrics.
	PoolStats() PoolStats

	// Close releases all pooled resources. Called once at server shutdown.
	Close() error
}

// PoolStats is a snapshot of backend connection pool health.
type PoolStats struct {
	Active int
	Idle   int
	Max    int
}

// LockMode distinguishes lock_for_read from lock_for_write.
type LockMode int

const (
	LockRead LockMode = iota
	LockWrite
)

// Session is one request's bound database session: at most one lock per
// (user, collection) is meaningful since a session is scoped to a single
// user, but the Lock call still takes the collection name because a
// request may reference more than one collection name across its lifetime
// only in the sense of re-resolving it; in practice each request acquires
// exactly one lock.
type Session interface {
	// Lock acquires a read or write lock on (user, collection). Calling it
	// again in the same session with the same mode and collection is a
	// no-op (idempotent); calling LockWrite after a prior LockRead in the
	// same session is an internal error (lock promotion is forbidden).
	Lock(ctx context.Context, collection string, mode LockMode) error

	// Now returns the session's current timestamp, fixed at lock
	// acquisition and shared by every write the session performs.
	Now() timestamp.T

	// Commit flushes buffered mutations atomically. A no-op on a read-only
	// session.
	Commit(ctx context.Context) error

	// Rollback discards the session's transaction/buffered mutations.
	// Safe to call after Commit (no-op) and required on any error or
	// cancellation path before the session is discarded.
	Rollback(ctx context.Context) error

	BSOStore
	CollectionStore
	BatchEngine
}

// BSOStore is the per-BSO CRUD and enumeration surface.
type BSOStore interface {
	GetBSO(ctx context.Context, collection, id string) (*types.BSO, error)
	GetBSOs(ctx context.Context, collection string, filter types.BSOFilter) (*types.BSOResult, error)
	GetBSOIDs(ctx context.Context, collection string, filter types.BSOFilter) (*types.BSOResult, error)
	GetBSOTimestamp(ctx context.Context, collection, id string) (timestamp.T, error)
	PutBSO(ctx context.Context, collection, id string, fields types.BSOFields) (timestamp.T, error)
	PostBSOs(ctx context.Context, collection string, posts []BSOPost) (*types.PostResult, error)
	DeleteBSO(ctx context.Context, collection, id string) error
	DeleteBSOs(ctx context.Context, collection string, ids []string) (timestamp.T, error)
}

// CollectionStore is the collection-level metadata and deletion surface.
type CollectionStore interface {
	GetCollectionTimestamp(ctx context.Context, collection string) (timestamp.T, error)
	GetCollectionTimestamps(ctx context.Context) (map[string]timestamp.T, error)
	GetCollectionCounts(ctx context.Context) (map[string]int, error)
	GetCollectionUsage(ctx context.Context) (map[string]int64, error)
	GetStorageTimestamp(ctx context.Context) (timestamp.T, error)
	GetStorageUsage(ctx context.Context) (int64, error)
	DeleteCollection(ctx context.Context, collection string) (timestamp.T, error)
	DeleteStorage(ctx context.Context) error
}

// BatchEngine is the staged-batch-upload surface.
type BatchEngine interface {
	CreateBatch(ctx context.Context, collection string, posts []BSOPost) (int64, error)
	ValidateBatch(ctx context.Context, collection string, id int64) (bool, error)
	AppendToBatch(ctx context.Context, collection string, id int64, posts []BSOPost) error
	GetBatch(ctx context.Context, collection string, id int64) (*types.Batch, error)
	CommitBatch(ctx context.Context, collection string, id int64) (*types.PostResult, error)
	DeleteBatch(ctx context.Context, collection string, id int64) error
}
