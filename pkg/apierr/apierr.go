// Package apierr is syncstore's error taxonomy: every error that can cross
// a pkg/storage.Backend boundary carries an HTTP status and the legacy
// Weave wire code the original protocol expects in the response body.
package apierr

import (
	"errors"
	"fmt"
)

// Kind enumerates the storage-core error kinds from the error taxonomy.
type Kind int

const (
	KindInternal Kind = iota
	KindCollectionNotFound
	KindBsoNotFound
	KindBatchNotFound
	KindConflict
	KindQuota
	KindSizeLimitExceeded
	KindInvalidWBO
	KindMalformedJSON
	KindUnauthorized
	KindPoolTimeout
	KindNotModified
	KindPreconditionFailed
)

// Error is a structured, wire-mappable error.
type Error struct {
	Kind       Kind
	HTTPStatus int
	WeaveCode  int // -1 means "no body code" (e.g. Unauthorized)
	Retryable  bool
	Message    string
	Err        error // wrapped cause, may be nil
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(kind Kind, status, weaveCode int, retryable bool, msg string) *Error {
	return &Error{Kind: kind, HTTPStatus: status, WeaveCode: weaveCode, Retryable: retryable, Message: msg}
}

// Constructors, one per error taxonomy row.

func CollectionNotFound() *Error {
	return newErr(KindCollectionNotFound, 404, 0, false, "collection not found")
}

func BsoNotFound() *Error {
	return newErr(KindBsoNotFound, 404, 0, false, "bso not found")
}

func BatchNotFound() *Error {
	return newErr(KindBatchNotFound, 400, 0, false, "batch not found")
}

// Conflict is the lock-acquisition conflict: a write-lock request observed
// modified >= server_now. Retryable once the clock advances.
func Conflict() *Error {
	return newErr(KindConflict, 409, 0, true, "conflict: concurrent write in progress")
}

func Quota() *Error {
	return newErr(KindQuota, 403, 14, false, "over quota")
}

func SizeLimitExceeded() *Error {
	return newErr(KindSizeLimitExceeded, 413, 17, false, "size limit exceeded")
}

func InvalidWBO(reason string) *Error {
	return newErr(KindInvalidWBO, 400, 8, false, "invalid weave basic object: "+reason)
}

func MalformedJSON() *Error {
	return newErr(KindMalformedJSON, 400, 6, false, "malformed json")
}

func Unauthorized() *Error {
	e := newErr(KindUnauthorized, 401, 0, false, "unauthorized")
	e.WeaveCode = -1
	return e
}

func PoolTimeout(cause error) *Error {
	e := newErr(KindPoolTimeout, 503, 0, true, "backend unavailable")
	e.Err = cause
	return e
}

func Internal(cause error) *Error {
	e := newErr(KindInternal, 500, 0, false, "internal error")
	e.Err = cause
	return e
}

// New304 signals a conditional GET matched If-Modified-Since: the caller
// should respond with an empty 304 body and no Weave error code.
func New304() *Error {
	e := newErr(KindNotModified, 304, 0, false, "not modified")
	e.WeaveCode = -1
	return e
}

// New412 signals a conditional write failed If-Unmodified-Since.
func New412() *Error {
	return newErr(KindPreconditionFailed, 412, 0, false, "precondition failed")
}

// As extracts a *Error from err, following the standard errors.As contract.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
