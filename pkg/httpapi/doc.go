/*
Package httpapi implements the wire API routed at
/<api_version>/<numeric_uid>/..., wiring github.com/gorilla/mux paths to
pkg/dispatch calls and translating *apierr.Error into the legacy
single-integer error body, X-Last-Modified/X-Weave-Timestamp/X-Weave-Records
response headers, and conditional-request status codes.

	client ──HTTP──▶ httpapi.Router ──▶ pkg/dispatch.Dispatcher ──▶ pkg/storage.Backend

NewRoutes(logger, dispatcher) / Start(routes) follows the same two-step
constructor shape the reference syncstorage server's mux-based handler
used, so tests can build a *Routes and drive it directly without a real
listener. New combines both steps for callers that just want an
http.Handler.
*/
package httpapi
