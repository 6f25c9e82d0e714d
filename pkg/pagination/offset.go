// Package pagination encodes and decodes the opaque continuation tokens
// get_bsos / get_bso_ids hand back to clients. The wire format is currently
// always a decimal integer offset, but the decoder also accepts the
// reserved "<ts>:<count>" shape so a future richer token can be introduced
// without breaking older servers mid-rollout.
package pagination

import (
	"strconv"
	"strings"
)

// Offset is a decoded continuation token.
type Offset struct {
	Timestamp int64 // 0 when the token carries no timestamp bound
	Count     int
	HasTS     bool
}

// Encode renders an Offset in the numeric form the engine currently emits.
// The richer "<ts>:<count>" form is reserved but not produced yet; the
// engine may emit either on output, defaulting to numeric.
func Encode(o Offset) string {
	return strconv.Itoa(o.Count)
}

// EncodeCount is a convenience wrapper for the common case of advancing a
// plain numeric offset by the number of rows returned.
func EncodeCount(count int) string {
	return strconv.Itoa(count)
}

// Decode parses a continuation token, accepting both the numeric form and
// the reserved "<ts>:<count>" form.
func Decode(token string) (Offset, bool) {
	if token == "" {
		return Offset{}, true // no offset supplied: start from the beginning
	}
	if idx := strings.IndexByte(token, ':'); idx >= 0 {
		tsPart, countPart := token[:idx], token[idx+1:]
		ts, err := strconv.ParseInt(tsPart, 10, 64)
		if err != nil || ts < 0 {
			return Offset{}, false
		}
		count, err := strconv.Atoi(countPart)
		if err != nil || count < 0 {
			return Offset{}, false
		}
		return Offset{Timestamp: ts, Count: count, HasTS: true}, true
	}
	count, err := strconv.Atoi(token)
	if err != nil || count < 0 {
		return Offset{}, false
	}
	return Offset{Count: count}, true
}

// Page computes the next-offset token for a page of results, following the
// "request limit+1, pop the extra row" contract: returned is the number of
// items actually handed back to the caller (after popping the lookahead
// row), and hasMore reports whether a lookahead row was present.
func Page(prevOffset Offset, returned int, hasMore bool) (nextOffset string, ok bool) {
	if !hasMore {
		return "", false
	}
	return EncodeCount(prevOffset.Count + returned), true
}
