/*
Package sqlstore implements storage.Backend against a relational database
over database/sql, using github.com/go-sql-driver/mysql as the production
driver. It is the legacy SQL backend: four tables (collections,
user_collections, bsos, batches), explicit transactions, and row locking
via `SELECT ... FOR UPDATE` on the write path rather than the
distributed backend's interleaved-table cascade semantics.

# Locking

lock_for_read opens a read-only transaction and takes no row lock; readers
never block writers or other readers. lock_for_write opens a read-write
transaction and reads (server NOW(), user_collections.modified) with
`FOR UPDATE`, so a second concurrent write_lock on the same (user,
collection) blocks on the database's row lock until the first commits,
at which point its own NOW() observes the later timestamp and the
modified >= server_now conflict check naturally fails only within the
single-ms collision window, not across the whole transaction.

# Pagination

This backend does NOT append bso_id as a secondary ORDER BY key, to match
existing clients that stored paging position by modified alone — ties are
broken by whatever order MySQL returns equally-ranked rows, which is
stable in practice for a given table layout but not guaranteed by the SQL
standard. This mirrors the legacy server's behavior, not an oversight.
*/
package sqlstore
