package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/cuemby/syncstore/pkg/apierr"
	"github.com/cuemby/syncstore/pkg/timestamp"
)

// writeJSON encodes v as the response body with a trailing newline, matching
// the original wire server's JsonNewline helper.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	enc := json.NewEncoder(w)
	_ = enc.Encode(v)
}

// setModifiedHeaders stamps every storage response with the two timestamp
// headers: X-Last-Modified (the resource's own modification time) and
// X-Weave-Timestamp (the session's server_now, which may be later).
func setModifiedHeaders(w http.ResponseWriter, lastModified, serverNow timestamp.T) {
	w.Header().Set("X-Last-Modified", lastModified.Seconds())
	w.Header().Set("X-Weave-Timestamp", serverNow.Seconds())
}

// writeError translates err into the legacy single-integer error body, or a
// bare empty body for the no-body-code kinds (304, 401).
func writeError(w http.ResponseWriter, err error) {
	apiErr, ok := apierr.As(err)
	if !ok {
		apiErr = apierr.Internal(err)
	}

	if apiErr.Kind == apierr.KindConflict {
		w.Header().Set("Retry-After", "10")
	}

	if apiErr.WeaveCode < 0 {
		w.WriteHeader(apiErr.HTTPStatus)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.HTTPStatus)
	_, _ = w.Write([]byte(strconv.Itoa(apiErr.WeaveCode)))
}
