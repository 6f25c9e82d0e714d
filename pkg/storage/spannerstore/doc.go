/*
Package spannerstore implements storage.Backend against Cloud Spanner via
cloud.google.com/go/spanner. It is the distributed-table backend: three
interleaved tables (UserCollections, Bsos, Batches, each keyed by fxa_uid
then collection_id) instead of the relational backend's row-locked flat
tables.

# Mutation buffering

A Spanner ReadWriteTransaction commits all of its buffered mutations
atomically at Commit, but unlike a SQL UPDATE, a buffered spanner.Mutation
is not visible to a later read inside the same transaction. Every write
path in this package therefore tracks its own BSO effects in
session.pendingBSO (a map keyed by BSO id, where a nil value marks a
delete), which GetBSO consults before issuing a read, and marks a touched
UserCollections row in session.pendingCollection, closely
mirroring the original Rust implementation's SpannerDbSession.mutations
buffer plus its coll_modified_cache read-your-writes cache.

# Locking

Spanner has no row-level LOCK IN SHARE MODE/FOR UPDATE statement; mutual
exclusion for lock_for_write comes from the ReadWriteTransaction's own
first-committer-wins abort-and-retry semantics plus an explicit read of
the UserCollections row (which Spanner internally locks for the lifetime
of the transaction once read). lock_for_read uses a multi-use
ReadOnlyTransaction with the client's default strong read bound, which
never blocks and never aborts.

# Batch id collisions

Because collection and user keys are request-scoped rather than backed by
an auto-increment column, CreateBatch mints an id from (session timestamp,
monotonic per-process counter) exactly like the relational backend, so the
two backends share one id scheme at the wire level.
*/
package spannerstore
