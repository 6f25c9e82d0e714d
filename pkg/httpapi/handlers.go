package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/cuemby/syncstore/pkg/apierr"
	"github.com/cuemby/syncstore/pkg/dispatch"
	"github.com/cuemby/syncstore/pkg/storage"
	"github.com/cuemby/syncstore/pkg/timestamp"
	"github.com/cuemby/syncstore/pkg/types"
)

// hInfoCollections handles GET /info/collections.
func (rt *Routes) hInfoCollections(w http.ResponseWriter, r *http.Request) {
	rt.withReadSession(w, r, "", func(sess *dispatch.Session) error {
		ts, err := sess.Store.GetCollectionTimestamps(r.Context())
		if err != nil {
			return err
		}
		out := make(map[string]float64, len(ts))
		for name, t := range ts {
			out[name] = seconds(t)
		}
		setModifiedHeaders(w, sess.Now, sess.Now)
		writeJSON(w, http.StatusOK, out)
		return nil
	})
}

// hInfoCollectionCounts handles GET /info/collection_counts.
func (rt *Routes) hInfoCollectionCounts(w http.ResponseWriter, r *http.Request) {
	rt.withReadSession(w, r, "", func(sess *dispatch.Session) error {
		counts, err := sess.Store.GetCollectionCounts(r.Context())
		if err != nil {
			return err
		}
		setModifiedHeaders(w, sess.Now, sess.Now)
		writeJSON(w, http.StatusOK, counts)
		return nil
	})
}

// hInfoCollectionUsage handles GET /info/collection_usage.
func (rt *Routes) hInfoCollectionUsage(w http.ResponseWriter, r *http.Request) {
	rt.withReadSession(w, r, "", func(sess *dispatch.Session) error {
		usage, err := sess.Store.GetCollectionUsage(r.Context())
		if err != nil {
			return err
		}
		// Wire usage in KB, matching the legacy protocol's units.
		outKB := make(map[string]float64, len(usage))
		for name, bytes := range usage {
			outKB[name] = float64(bytes) / 1024
		}
		setModifiedHeaders(w, sess.Now, sess.Now)
		writeJSON(w, http.StatusOK, outKB)
		return nil
	})
}

// hInfoConfiguration handles GET /info/configuration.
func (rt *Routes) hInfoConfiguration(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, rt.dispatcher.Limits())
}

// hInfoQuota handles GET /info/quota, reporting [used_kb, quota_kb_or_null].
func (rt *Routes) hInfoQuota(w http.ResponseWriter, r *http.Request) {
	rt.withReadSession(w, r, "", func(sess *dispatch.Session) error {
		usedBytes, err := sess.Store.GetStorageUsage(r.Context())
		if err != nil {
			return err
		}
		limitBytes, enabled, _ := rt.dispatcher.QuotaLimitBytes()
		usedKB := float64(usedBytes) / 1024
		var quotaKB *float64
		if enabled {
			q := float64(limitBytes) / 1024
			quotaKB = &q
		}
		setModifiedHeaders(w, sess.Now, sess.Now)
		writeJSON(w, http.StatusOK, []interface{}{usedKB, quotaKB})
		return nil
	})
}

// hDeleteStorage handles DELETE / and DELETE /storage (delete_storage).
func (rt *Routes) hDeleteStorage(w http.ResponseWriter, r *http.Request) {
	rt.withWriteSession(w, r, "", func(sess *dispatch.Session) error {
		return sess.Store.DeleteStorage(r.Context())
	}, func(w http.ResponseWriter, sess *dispatch.Session) {
		writeJSON(w, http.StatusOK, nil)
	})
}

// hCollectionGET handles GET /storage/{collection}: get_bsos or get_bso_ids
// depending on the `full` query parameter.
func (rt *Routes) hCollectionGET(w http.ResponseWriter, r *http.Request) {
	collection, err := collectionFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}

	filter, err := parseBSOFilter(r, rt.effectiveMaxLimit())
	if err != nil {
		writeError(w, err)
		return
	}

	rt.withReadSession(w, r, collection, func(sess *dispatch.Session) error {
		ts, err := sess.Store.GetCollectionTimestamp(r.Context(), collection)
		if err != nil {
			return err
		}
		if precErr := checkPrecondition(ts, r); precErr != nil {
			return precErr
		}

		var result *types.BSOResult
		if filter.Full {
			result, err = sess.Store.GetBSOs(r.Context(), collection, filter)
		} else {
			result, err = sess.Store.GetBSOIDs(r.Context(), collection, filter)
		}
		if err != nil {
			return err
		}

		setModifiedHeaders(w, ts, sess.Now)
		if filter.Full {
			w.Header().Set("X-Weave-Records", strconv.Itoa(len(result.Items)))
			writeJSON(w, http.StatusOK, bsosToWire(result.Items))
		} else {
			w.Header().Set("X-Weave-Records", strconv.Itoa(len(result.IDs)))
			writeJSON(w, http.StatusOK, result.IDs)
		}
		return nil
	})
}

// hCollectionPOST handles POST /storage/{collection}: post_bsos, plus the
// batch variants selected by ?batch= and ?commit=true.
func (rt *Routes) hCollectionPOST(w http.ResponseWriter, r *http.Request) {
	collection, err := collectionFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var wireRecords []wireBSO
	if err := json.NewDecoder(r.Body).Decode(&wireRecords); err != nil && err != io.EOF {
		writeError(w, apierr.MalformedJSON())
		return
	}
	posts, err := postsFromWire(wireRecords)
	if err != nil {
		writeError(w, err)
		return
	}

	batchParam := r.URL.Query().Get("batch")
	commit := r.URL.Query().Get("commit") == "true"

	// outcome is filled in by fn and rendered by onOK only after the
	// session has actually committed, so a response never claims success
	// for a write that didn't land.
	var outcome postOutcome

	rt.withWriteSession(w, r, collection, func(sess *dispatch.Session) error {
		if batchParam == "" {
			result, err := sess.Store.PostBSOs(r.Context(), collection, posts)
			if err != nil {
				return err
			}
			outcome = postOutcome{result: result}
			return nil
		}
		o, err := rt.handleBatch(r, sess, collection, batchParam, commit, posts)
		if err != nil {
			return err
		}
		outcome = o
		return nil
	}, func(w http.ResponseWriter, sess *dispatch.Session) {
		writeOutcome(w, sess.Now, outcome)
	})
}

// postOutcome is what a POST /storage/{collection} call produced, rendered
// only once the session holding it has committed.
type postOutcome struct {
	result        *types.PostResult // set for a plain post or a committed batch
	batchID       int64             // set for an uncommitted create/append
	batchAccepted bool
}

// handleBatch implements the ?batch= family: batch=true creates a new
// batch, batch=<id> appends to an existing one, and ?commit=true on either
// folds the batch's accumulated posts and applies them.
func (rt *Routes) handleBatch(r *http.Request, sess *dispatch.Session, collection, batchParam string, commit bool, posts []storage.BSOPost) (postOutcome, error) {
	ctx := r.Context()

	var batchID int64
	if batchParam == "true" {
		id, err := sess.Store.CreateBatch(ctx, collection, posts)
		if err != nil {
			return postOutcome{}, err
		}
		batchID = id
	} else {
		id, err := strconv.ParseInt(batchParam, 10, 64)
		if err != nil {
			return postOutcome{}, apierr.BatchNotFound()
		}
		ok, err := sess.Store.ValidateBatch(ctx, collection, id)
		if err != nil {
			return postOutcome{}, err
		}
		if !ok {
			return postOutcome{}, apierr.BatchNotFound()
		}
		if len(posts) > 0 {
			if err := sess.Store.AppendToBatch(ctx, collection, id, posts); err != nil {
				return postOutcome{}, err
			}
		}
		batchID = id
	}

	if !commit {
		return postOutcome{batchID: batchID, batchAccepted: true}, nil
	}

	result, err := sess.Store.CommitBatch(ctx, collection, batchID)
	if err != nil {
		return postOutcome{}, err
	}
	return postOutcome{result: result}, nil
}

func writeOutcome(w http.ResponseWriter, serverNow timestamp.T, o postOutcome) {
	if o.batchAccepted {
		setModifiedHeaders(w, serverNow, serverNow)
		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"modified": seconds(serverNow),
			"batch":    strconv.FormatInt(o.batchID, 10),
		})
		return
	}
	lastModified := timestamp.FromMillis(o.result.Modified)
	setModifiedHeaders(w, lastModified, serverNow)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"modified": seconds(lastModified),
		"success":  o.result.Success,
		"failed":   o.result.Failed,
	})
}

// hCollectionDELETE handles DELETE /storage/{collection}: delete_collection,
// or delete_bsos when ?ids= is present.
func (rt *Routes) hCollectionDELETE(w http.ResponseWriter, r *http.Request) {
	collection, err := collectionFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}

	idsParam := r.URL.Query().Get("ids")

	rt.withWriteSession(w, r, collection, func(sess *dispatch.Session) error {
		if idsParam == "" {
			_, err := sess.Store.DeleteCollection(r.Context(), collection)
			return err
		}
		filter, err := parseBSOFilter(r, rt.effectiveMaxLimit())
		if err != nil {
			return err
		}
		_, err = sess.Store.DeleteBSOs(r.Context(), collection, filter.IDs)
		return err
	}, func(w http.ResponseWriter, sess *dispatch.Session) {
		writeJSON(w, http.StatusOK, nil)
	})
}

// hBsoGET handles GET /storage/{collection}/{bso}.
func (rt *Routes) hBsoGET(w http.ResponseWriter, r *http.Request) {
	collection, err := collectionFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := bsoIDFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}

	rt.withReadSession(w, r, collection, func(sess *dispatch.Session) error {
		bso, err := sess.Store.GetBSO(r.Context(), collection, id)
		if err != nil {
			return err
		}
		if bso == nil {
			return apierr.BsoNotFound()
		}
		modified := timestamp.FromMillis(bso.Modified)
		if precErr := checkPrecondition(modified, r); precErr != nil {
			return precErr
		}
		setModifiedHeaders(w, modified, sess.Now)
		writeJSON(w, http.StatusOK, bsoToWire(*bso))
		return nil
	})
}

// hBsoPUT handles PUT /storage/{collection}/{bso}: put_bso.
func (rt *Routes) hBsoPUT(w http.ResponseWriter, r *http.Request) {
	collection, err := collectionFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := bsoIDFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var wire wireBSO
	if err := json.NewDecoder(r.Body).Decode(&wire); err != nil {
		writeError(w, apierr.MalformedJSON())
		return
	}
	fields := fieldsFromWire(wire)

	var newTS timestamp.T
	rt.withWriteSession(w, r, collection, func(sess *dispatch.Session) error {
		currentTS, err := sess.Store.GetBSOTimestamp(r.Context(), collection, id)
		if err != nil {
			return err
		}
		if precErr := checkPrecondition(currentTS, r); precErr != nil {
			return precErr
		}
		ts, err := sess.Store.PutBSO(r.Context(), collection, id, fields)
		if err != nil {
			return err
		}
		newTS = ts
		return nil
	}, func(w http.ResponseWriter, sess *dispatch.Session) {
		setModifiedHeaders(w, newTS, sess.Now)
		writeJSON(w, http.StatusOK, seconds(newTS))
	})
}

// hBsoDELETE handles DELETE /storage/{collection}/{bso}.
func (rt *Routes) hBsoDELETE(w http.ResponseWriter, r *http.Request) {
	collection, err := collectionFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := bsoIDFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}

	rt.withWriteSession(w, r, collection, func(sess *dispatch.Session) error {
		if precErr := rt.checkBSOPrecondition(r, sess, collection, id); precErr != nil {
			return precErr
		}
		return sess.Store.DeleteBSO(r.Context(), collection, id)
	}, func(w http.ResponseWriter, sess *dispatch.Session) {
		writeJSON(w, http.StatusOK, nil)
	})
}

func (rt *Routes) checkBSOPrecondition(r *http.Request, sess *dispatch.Session, collection, id string) error {
	ts, err := sess.Store.GetBSOTimestamp(r.Context(), collection, id)
	if err != nil {
		return err
	}
	return checkPrecondition(ts, r)
}

// checkPrecondition is the handler-facing wrapper around
// dispatch.CheckPrecondition: it reads the conditional headers off r and
// evaluates them against resourceTS.
func checkPrecondition(resourceTS timestamp.T, r *http.Request) error {
	return dispatch.CheckPrecondition(resourceTS, preconditionFromHeaders(r))
}

func seconds(t timestamp.T) float64 {
	f, _ := strconv.ParseFloat(t.Seconds(), 64)
	return f
}

func (rt *Routes) effectiveMaxLimit() int {
	limits := rt.dispatcher.Limits()
	if limits.MaxTotalRecords > 0 && limits.MaxTotalRecords < rt.maxBSOGetLimit {
		return limits.MaxTotalRecords
	}
	return rt.maxBSOGetLimit
}

// withReadSession opens a read-locked session, runs fn, and always
// commits/rolls back exactly once, translating any error into the wire
// error response.
func (rt *Routes) withReadSession(w http.ResponseWriter, r *http.Request, collection string, fn func(sess *dispatch.Session) error) {
	rt.runSession(w, r, collection, storage.LockRead, fn, nil)
}

// withWriteSession is withReadSession's write-locked counterpart. onOK, if
// non-nil, is called after a successful commit to write the response body
// (handlers that build their own response inside fn pass nil).
func (rt *Routes) withWriteSession(w http.ResponseWriter, r *http.Request, collection string, fn func(sess *dispatch.Session) error, onOK func(w http.ResponseWriter, sess *dispatch.Session)) {
	rt.runSession(w, r, collection, storage.LockWrite, fn, onOK)
}

func (rt *Routes) runSession(w http.ResponseWriter, r *http.Request, collection string, mode storage.LockMode, fn func(sess *dispatch.Session) error, onOK func(w http.ResponseWriter, sess *dispatch.Session)) {
	ctx := r.Context()
	user, err := identityFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}

	sess, err := rt.dispatcher.Begin(ctx, user, collection, mode)
	if err != nil {
		writeError(w, err)
		return
	}

	opErr := fn(sess)
	if finishErr := sess.Finish(ctx, opErr); finishErr != nil {
		writeError(w, finishErr)
		return
	}
	if onOK != nil {
		onOK(w, sess)
	}
}
