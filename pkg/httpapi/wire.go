package httpapi

import (
	"github.com/cuemby/syncstore/pkg/apierr"
	"github.com/cuemby/syncstore/pkg/storage"
	"github.com/cuemby/syncstore/pkg/types"
)

// wireBSO is the JSON shape of one BSO on the wire, shared by put_bso's
// request body and get_bso's response body.
type wireBSO struct {
	ID        string   `json:"id"`
	Payload   *string  `json:"payload,omitempty"`
	SortIndex *int32   `json:"sortindex,omitempty"`
	TTL       *int64   `json:"ttl,omitempty"`
	Modified  *float64 `json:"modified,omitempty"`
}

func bsoToWire(b types.BSO) wireBSO {
	payload := b.Payload
	modified := millisSeconds(b.Modified)
	return wireBSO{
		ID:        b.ID,
		Payload:   &payload,
		SortIndex: b.SortIndex,
		Modified:  &modified,
	}
}

func bsosToWire(bsos []types.BSO) []wireBSO {
	out := make([]wireBSO, len(bsos))
	for i, b := range bsos {
		out[i] = bsoToWire(b)
	}
	return out
}

func fieldsFromWire(w wireBSO) types.BSOFields {
	return types.BSOFields{
		Payload:   w.Payload,
		SortIndex: w.SortIndex,
		TTL:       w.TTL,
	}
}

// postsFromWire validates and converts a post_bsos / batch-append request
// body into the storage-layer post list.
func postsFromWire(records []wireBSO) ([]storage.BSOPost, error) {
	posts := make([]storage.BSOPost, 0, len(records))
	for _, r := range records {
		if !types.BSOIDRe.MatchString(r.ID) {
			return nil, apierr.InvalidWBO("invalid bso id: " + r.ID)
		}
		posts = append(posts, storage.BSOPost{
			ID:        r.ID,
			Payload:   r.Payload,
			SortIndex: r.SortIndex,
			TTL:       r.TTL,
		})
	}
	return posts, nil
}

// millisSeconds converts a raw millisecond timestamp to the two-decimal-seconds
// wire format used inside response bodies (as opposed to headers, which go
// through timestamp.T.Seconds() directly).
func millisSeconds(ms int64) float64 {
	return float64(ms) / 1000
}
