package dispatch

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/cuemby/syncstore/pkg/apierr"
	"github.com/cuemby/syncstore/pkg/metrics"
	"github.com/cuemby/syncstore/pkg/precondition"
	"github.com/cuemby/syncstore/pkg/storage"
	"github.com/cuemby/syncstore/pkg/timestamp"
	"github.com/cuemby/syncstore/pkg/types"
)

// Dispatcher opens one storage.Session per request against a fixed backend.
type Dispatcher struct {
	backend storage.Backend
	log     zerolog.Logger
}

// New returns a Dispatcher bound to backend.
func New(backend storage.Backend, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{backend: backend, log: log}
}

// Limits exposes the backend's configured limits for GET /info/configuration.
func (d *Dispatcher) Limits() types.Limits { return d.backend.Limits() }

// QuotaLimitBytes exposes the backend's quota configuration for GET /info/quota.
func (d *Dispatcher) QuotaLimitBytes() (limitBytes int64, enabled, enforce bool) {
	return d.backend.QuotaLimitBytes()
}

// Session wraps a storage.Session with the commit/rollback bookkeeping every
// handler needs; handlers call storage methods directly on Store and then
// always call Finish exactly once.
type Session struct {
	Store      storage.Session
	Collection string
	Now        timestamp.T
	finished   bool
}

// Finish commits the session if opErr is nil, otherwise rolls back. It
// returns opErr unchanged unless the commit/rollback itself fails, in which
// case that failure takes precedence (the caller's write may or may not
// have landed, so reporting it as successful would be worse than masking
// opErr).
func (s *Session) Finish(ctx context.Context, opErr error) error {
	if s.finished {
		return opErr
	}
	s.finished = true
	if opErr != nil {
		if err := s.Store.Rollback(ctx); err != nil {
			return apierr.Internal(err)
		}
		return opErr
	}
	if err := s.Store.Commit(ctx); err != nil {
		return apierr.Internal(err)
	}
	return nil
}

// Begin resolves user to a locked session on collection. When Begin fails
// it returns no Session. Otherwise the caller must call Finish exactly
// once, even on error paths that return before any storage call; Finish
// rolls back when given a non-nil error and commits otherwise.
func (d *Dispatcher) Begin(ctx context.Context, user types.Identity, collection string, mode storage.LockMode) (*Session, error) {
	timer := metrics.NewTimer()
	store, err := d.backend.NewSession(ctx, user)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	if err := store.Lock(ctx, collection, mode); err != nil {
		if apiErr, ok := apierr.As(err); ok && apiErr.Kind == apierr.KindConflict {
			metrics.ConflictsTotal.Inc()
		}
		modeLabel := "read"
		if mode == storage.LockWrite {
			modeLabel = "write"
		}
		timer.ObserveDurationVec(metrics.LockWaitDuration, modeLabel)
		return nil, err
	}
	modeLabel := "read"
	if mode == storage.LockWrite {
		modeLabel = "write"
	}
	timer.ObserveDurationVec(metrics.LockWaitDuration, modeLabel)

	stats := d.backend.PoolStats()
	metrics.ReportPoolStats(stats.Active, stats.Idle, stats.Max)

	return &Session{Store: store, Collection: collection, Now: store.Now()}, nil
}

// CheckPrecondition evaluates the request's conditional headers against a
// resource timestamp already known to the caller (e.g. a collection's
// GetCollectionTimestamp result), returning an *apierr.Error for the
// caller to propagate as a 304 or 412 response, or nil to proceed.
func CheckPrecondition(resourceTS timestamp.T, req precondition.Request) error {
	switch precondition.Evaluate(resourceTS, req) {
	case precondition.NotModified:
		return apierr.New304()
	case precondition.PreconditionFailed:
		return apierr.New412()
	default:
		return nil
	}
}
