package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/cuemby/syncstore/pkg/collections"
	"github.com/cuemby/syncstore/pkg/storage"
	"github.com/cuemby/syncstore/pkg/types"
)

// Config configures a Backend.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	PoolTimeout     time.Duration

	Limits types.Limits

	QuotaEnabled bool
	QuotaEnforce bool
	QuotaBytes   int64

	// MaxPostPayloadBytes is the per-request post_bsos/commit_batch cap:
	// rejects the request with PayloadTooLarge if the total exceeds it
	// (e.g. 100 MB).
	MaxPostPayloadBytes int64
}

// Backend is the relational storage.Backend implementation.
type Backend struct {
	db     *sql.DB
	cfg    Config
	cache  *collections.Cache
	maxOpen int
}

// Open connects to the database and returns a ready Backend. The caller
// owns the returned Backend and must call Close.
func Open(ctx context.Context, cfg Config, cache *collections.Cache) (*Backend, error) {
	if cfg.MaxPostPayloadBytes == 0 {
		cfg.MaxPostPayloadBytes = 100 * 1024 * 1024
	}
	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlstore: ping: %w", err)
	}
	return &Backend{db: db, cfg: cfg, cache: cache, maxOpen: cfg.MaxOpenConns}, nil
}

// NewForDB wraps an already-open *sql.DB, used by storagetest to point the
// backend at a test database without going through DSN parsing.
func NewForDB(db *sql.DB, cfg Config, cache *collections.Cache) *Backend {
	return &Backend{db: db, cfg: cfg, cache: cache, maxOpen: cfg.MaxOpenConns}
}

func (b *Backend) Limits() types.Limits { return b.cfg.Limits }

func (b *Backend) QuotaLimitBytes() (int64, bool, bool) {
	return b.cfg.QuotaBytes, b.cfg.QuotaEnabled, b.cfg.QuotaEnforce
}

func (b *Backend) PoolStats() storage.PoolStats {
	s := b.db.Stats()
	return storage.PoolStats{Active: s.InUse, Idle: s.Idle, Max: s.MaxOpenConnections}
}

func (b *Backend) Close() error { return b.db.Close() }

// NewSession opens one connection-scoped session for a request. No
// transaction is started until Lock is called, matching the dispatch
// sequencing: the lock call begins the transaction.
func (b *Backend) NewSession(ctx context.Context, user types.Identity) (storage.Session, error) {
	return &session{backend: b, user: user}, nil
}

// lookupCollectionID and allocateCollectionID implement collections.Loader
// against the shared `collections` table; used by session.Lock via the
// process-wide cache.
func (b *Backend) lookupCollectionID(ctx context.Context, q queryer, name string) (uint32, bool, error) {
	var id uint32
	err := q.QueryRowContext(ctx, `SELECT id FROM collections WHERE name = ?`, name).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func (b *Backend) allocateCollectionID(ctx context.Context, q execer, name string) (uint32, error) {
	id := b.cache.NextID()
	if _, err := q.ExecContext(ctx, `INSERT INTO collections (id, name) VALUES (?, ?)`, id, name); err != nil {
		return 0, err
	}
	return id, nil
}

// queryer/execer narrow *sql.DB/*sql.Tx to what the helpers above need, so
// they can run either inside or outside a transaction.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}
