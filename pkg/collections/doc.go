// Package collections implements the process-wide collection-name cache: a
// concurrent bidirectional map between collection name and collection id,
// preloaded with the 13 standard names and backed by a per-backend loader
// for everything else.
//
// Reads are contention-free in the common case (a single RWMutex read
// lock); a miss triggers a singleflight-deduplicated backend lookup, and if
// the backend doesn't have the name either, a new id is allocated.
//
// Both backends' write-lock path call Resolve while their own write
// transaction is still open, so a rolled-back write can in principle
// publish a collection id that the transaction never actually committed.
// In practice this is harmless: ids are never reused (see Invalidate), so
// a published-but-uncommitted id just becomes a small, permanent gap
// rather than a correctness problem, and resolving outside the
// transaction would cost every new-collection write a second round trip
// to re-validate the id still matches once inside it.
package collections
