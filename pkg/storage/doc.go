/*
Package storage defines the Backend capability interface that both
concrete storage engines — sqlstore (relational) and spannerstore
(distributed-table) — implement, and that pkg/dispatch and pkg/httpapi
depend on exclusively. Neither handler code nor the dispatch layer ever
imports a concrete backend package directly; cmd/syncstored wires one in
at startup, keeping backend-specific result types out of the request path.

# Architecture

	┌────────────────────── REQUEST DISPATCH ───────────────────────┐
	│                                                                  │
	│   pkg/httpapi            pkg/dispatch             pkg/storage   │
	│  ┌───────────┐         ┌───────────────┐        ┌────────────┐ │
	│  │  handler  │────────▶│    Session     │───────▶│  Backend   │ │
	│  │           │         │  acquire lock  │        │  interface │ │
	│  └───────────┘         │  precondition  │        └─────┬──────┘ │
	│                        │  dispatch op   │              │        │
	│                        │  commit/rollback│    ┌─────────┴────────┐
	│                        └───────────────┘    │                    │
	│                                        ┌─────▼─────┐     ┌──────▼──────┐
	│                                        │  sqlstore  │     │spannerstore │
	│                                        │ (MySQL)    │     │ (Spanner)   │
	│                                        └────────────┘     └─────────────┘
	└──────────────────────────────────────────────────────────────────┘

A Backend hands out one storage.Session per request (see pkg/dispatch),
which owns exactly one underlying connection/transaction for the request's
duration. Sessions are never cached or reused across requests.

# Conformance

Both backends must satisfy the same abstract contract: timestamp
monotonicity, TTL-touch isolation, delete invisibility, expiry invisibility,
pagination totality, quota identity, tombstone monotonicity, and batch
commit atomicity. pkg/storage/storagetest factors part of these into a
single `Run(t, newBackend)` suite that both backends' own test files
invoke, the way storj-storj's metabasetest exercises multiple metabase
adapters against one contract. The suite covers BSO round-trip, collection
timestamp advance, delete invisibility, TTL-touch isolation, pagination
totality, write-lock conflict, tombstone monotonicity, quota enforcement
and the batch lifecycle; it has no case for expiry invisibility or for the
quota usage counters.
*/
package storage
