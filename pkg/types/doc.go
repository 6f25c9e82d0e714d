// Package types defines the core data structures shared across syncstore:
// user identities, collections, BSOs, batches, and the request/result
// records every storage operation accepts and returns.
//
// Types here are intentionally backend-agnostic: neither sqlstore nor
// spannerstore leak through this package, so pkg/httpapi and pkg/dispatch
// depend only on these shapes plus the pkg/storage.Backend interface.
package types
