package apierr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name       string
		err        *Error
		wantKind   Kind
		wantStatus int
		wantWeave  int
		wantRetry  bool
	}{
		{"collection not found", CollectionNotFound(), KindCollectionNotFound, 404, 0, false},
		{"bso not found", BsoNotFound(), KindBsoNotFound, 404, 0, false},
		{"batch not found", BatchNotFound(), KindBatchNotFound, 400, 0, false},
		{"conflict is retryable", Conflict(), KindConflict, 409, 0, true},
		{"quota", Quota(), KindQuota, 403, 14, false},
		{"size limit exceeded", SizeLimitExceeded(), KindSizeLimitExceeded, 413, 17, false},
		{"malformed json", MalformedJSON(), KindMalformedJSON, 400, 6, false},
		{"unauthorized has no weave body code", Unauthorized(), KindUnauthorized, 401, -1, false},
		{"not modified has no weave body code", New304(), KindNotModified, 304, -1, false},
		{"precondition failed", New412(), KindPreconditionFailed, 412, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantKind, tt.err.Kind)
			assert.Equal(t, tt.wantStatus, tt.err.HTTPStatus)
			assert.Equal(t, tt.wantWeave, tt.err.WeaveCode)
			assert.Equal(t, tt.wantRetry, tt.err.Retryable)
		})
	}
}

func TestInvalidWBOIncludesReason(t *testing.T) {
	err := InvalidWBO("ttl out of range")
	assert.Contains(t, err.Message, "ttl out of range")
	assert.Equal(t, 400, err.HTTPStatus)
}

func TestWrappedErrorMessage(t *testing.T) {
	cause := errors.New("connection refused")
	err := PoolTimeout(cause)
	assert.Equal(t, fmt.Sprintf("backend unavailable: %v", cause), err.Error())
	assert.True(t, err.Retryable)
}

func TestUnwrappedErrorMessageHasNoCauseSuffix(t *testing.T) {
	err := Conflict()
	assert.Equal(t, "conflict: concurrent write in progress", err.Error())
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := Internal(cause)
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestAs(t *testing.T) {
	cause := errors.New("boom")
	wrapped := fmt.Errorf("wrapped: %w", Internal(cause))

	got, ok := As(wrapped)
	assert.True(t, ok)
	assert.Equal(t, KindInternal, got.Kind)

	_, ok = As(errors.New("plain error"))
	assert.False(t, ok)
}
