// Package dispatch binds an authenticated identity to one storage.Session
// per request and sequences acquire -> precondition check -> operation ->
// commit/rollback, the shape every pkg/httpapi handler follows. It is the
// only package besides pkg/storage itself that constructs a
// storage.Session, so handlers never see backend-specific types.
package dispatch
