package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/cuemby/syncstore/pkg/apierr"
	"github.com/cuemby/syncstore/pkg/precondition"
	"github.com/cuemby/syncstore/pkg/timestamp"
	"github.com/cuemby/syncstore/pkg/types"
)

// timestampParseHeader parses the two-decimal-seconds wire format shared by
// X-If-Modified-Since, X-If-Unmodified-Since, and the newer/older query
// parameters.
func timestampParseHeader(v string) (timestamp.T, bool) {
	return timestamp.ParseSeconds(v)
}

// maxIDsPerFilter caps the `ids` query parameter, matching the original
// wire server's BATCH_MAX_IDS.
const maxIDsPerFilter = 100

// identityFromPath derives the opaque (fxa_uid, fxa_kid) this core expects
// from the path's numeric uid segment. Credential verification happens
// upstream of this package; by the time a request reaches a
// handler, {uid} has already been authenticated by that collaborator, and
// this package's only remaining job is to turn it into types.Identity.
func identityFromPath(r *http.Request) (types.Identity, error) {
	uidStr := mux.Vars(r)["uid"]
	uid, err := strconv.ParseInt(uidStr, 10, 64)
	if err != nil || uid < 0 {
		return types.Identity{}, apierr.Unauthorized()
	}
	return types.Identity{
		FxAUID: uidStr,
		FxAKID: uidStr,
		UID:    types.UID(uid),
	}, nil
}

// collectionFromPath extracts and validates {collection}.
func collectionFromPath(r *http.Request) (string, error) {
	name := mux.Vars(r)["collection"]
	if !types.CollectionNameRe.MatchString(name) {
		return "", apierr.InvalidWBO("invalid collection name")
	}
	return name, nil
}

// bsoIDFromPath extracts and validates {bso}.
func bsoIDFromPath(r *http.Request) (string, error) {
	id := mux.Vars(r)["bso"]
	if !types.BSOIDRe.MatchString(id) {
		return "", apierr.InvalidWBO("invalid bso id")
	}
	return id, nil
}

// preconditionFromHeaders reads X-If-Modified-Since / X-If-Unmodified-Since.
func preconditionFromHeaders(r *http.Request) precondition.Request {
	var req precondition.Request
	if v := r.Header.Get("X-If-Modified-Since"); v != "" {
		if ts, ok := timestampParseHeader(v); ok {
			req.IfModifiedSince = ts
			req.HasIfModifiedSince = true
		}
	}
	if v := r.Header.Get("X-If-Unmodified-Since"); v != "" {
		if ts, ok := timestampParseHeader(v); ok {
			req.IfUnmodifiedSince = ts
			req.HasIfUnmodifiedSince = true
		}
	}
	return req
}

// parseBSOFilter reads the query parameters common to get_bsos / get_bso_ids:
// ids, newer, older, sort, limit, offset, full.
func parseBSOFilter(r *http.Request, maxLimit int) (types.BSOFilter, error) {
	if err := r.ParseForm(); err != nil {
		return types.BSOFilter{}, apierr.InvalidWBO("malformed query parameters")
	}
	form := r.Form

	var filter types.BSOFilter

	if v := form.Get("ids"); v != "" {
		ids := strings.Split(v, ",")
		if len(ids) > maxIDsPerFilter {
			return types.BSOFilter{}, apierr.InvalidWBO("too many ids")
		}
		for i, id := range ids {
			id = strings.TrimSpace(id)
			if !types.BSOIDRe.MatchString(id) {
				return types.BSOFilter{}, apierr.InvalidWBO("invalid bso id: " + id)
			}
			ids[i] = id
		}
		filter.IDs = ids
	}

	if v := form.Get("newer"); v != "" {
		ms, ok := timestampParseHeader(v)
		if !ok {
			return types.BSOFilter{}, apierr.InvalidWBO("invalid newer value")
		}
		n := ms.Millis()
		filter.Newer = &n
	}

	if v := form.Get("older"); v != "" {
		ms, ok := timestampParseHeader(v)
		if !ok {
			return types.BSOFilter{}, apierr.InvalidWBO("invalid older value")
		}
		o := ms.Millis()
		filter.Older = &o
	}

	switch form.Get("sort") {
	case "", "none":
		filter.Sort = types.SortNone
	case "newest":
		filter.Sort = types.SortNewest
	case "oldest":
		filter.Sort = types.SortOldest
	case "index":
		filter.Sort = types.SortIndex
	default:
		return types.BSOFilter{}, apierr.InvalidWBO("invalid sort value")
	}

	filter.Limit = maxLimit
	if v := form.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return types.BSOFilter{}, apierr.InvalidWBO("invalid limit value")
		}
		if n < filter.Limit || filter.Limit == 0 {
			filter.Limit = n
		}
	}

	filter.Offset = form.Get("offset")

	if v := form.Get("full"); v != "" {
		filter.Full = true
	}

	return filter, nil
}
