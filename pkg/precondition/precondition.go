// Package precondition evaluates conditional-request headers
// (X-If-Modified-Since / X-If-Unmodified-Since) against a resource's
// current modification timestamp, before a handler runs.
package precondition

import (
	"github.com/cuemby/syncstore/pkg/timestamp"
)

// Outcome tells the caller what to do after evaluating preconditions.
type Outcome int

const (
	// Proceed means the handler should run.
	Proceed Outcome = iota
	// NotModified means respond 304 immediately, no handler call.
	NotModified
	// PreconditionFailed means respond 412 immediately, no handler call.
	PreconditionFailed
)

// Request carries the two conditional headers a caller may have sent, in
// their parsed T form, plus whether they were present at all.
type Request struct {
	IfModifiedSince   timestamp.T
	HasIfModifiedSince bool
	IfUnmodifiedSince timestamp.T
	HasIfUnmodifiedSince bool
}

// Evaluate computes the outcome given the resource's current modification
// timestamp (resourceTS) and the request's conditional headers. A missing
// resource is represented by the caller as resourceTS = 0, which satisfies
// any If-Modified-Since header, so Evaluate returns NotModified for it;
// Evaluate itself never reports not-found.
func Evaluate(resourceTS timestamp.T, req Request) Outcome {
	if req.HasIfModifiedSince && resourceTS <= req.IfModifiedSince {
		return NotModified
	}
	if req.HasIfUnmodifiedSince && resourceTS > req.IfUnmodifiedSince {
		return PreconditionFailed
	}
	return Proceed
}
