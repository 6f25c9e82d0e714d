// Package batchformat serializes the BSO records staged inside a batch
// payload: one JSON object per line, self-describing ({id, sortindex?,
// payload?, ttl?}), matching the line-oriented record shape the wire
// protocol requires. Both backends store a batch's staged lines as one
// value and pass it whole to Decode at commit time.
package batchformat

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/cuemby/syncstore/pkg/storage"
)

// line is the on-the-wire shape of one staged BSO record.
type line struct {
	ID        string  `json:"id"`
	Payload   *string `json:"payload,omitempty"`
	SortIndex *int32  `json:"sortindex,omitempty"`
	TTL       *int64  `json:"ttl,omitempty"`
}

// AppendPosts serializes posts and appends them to an existing batch
// payload, one JSON line per post.
func AppendPosts(existing []byte, posts []storage.BSOPost) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(existing)
	for _, p := range posts {
		l := line{ID: p.ID, Payload: p.Payload, SortIndex: p.SortIndex, TTL: p.TTL}
		b, err := json.Marshal(l)
		if err != nil {
			return nil, fmt.Errorf("batchformat: marshal %q: %w", p.ID, err)
		}
		buf.Write(b)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// Decode parses a batch payload into the ordered list of posts it encodes.
// Ordering within an appended batch is preserved: on commit, later-appended
// entries with the same id overwrite earlier ones; callers fold the
// returned slice left-to-right (e.g. into a map keyed by id) to get that
// effect, Decode itself does not deduplicate.
//
// A malformed line surfaces as an error identifying the 1-based line number
// so the caller can report which staged record failed to parse. Commit is
// all-or-nothing (no partial commit), so the caller must treat any decode
// error as a reason to fail the whole commit_batch call.
func Decode(payload []byte) ([]storage.BSOPost, error) {
	posts := make([]storage.BSOPost, 0, bytes.Count(payload, []byte("\n"))+1)
	scanner := bufio.NewScanner(bytes.NewReader(payload))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := scanner.Bytes()
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}
		var l line
		if err := json.Unmarshal(raw, &l); err != nil {
			return nil, fmt.Errorf("batchformat: line %d: %w", lineNo, err)
		}
		posts = append(posts, storage.BSOPost{ID: l.ID, Payload: l.Payload, SortIndex: l.SortIndex, TTL: l.TTL})
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return nil, fmt.Errorf("batchformat: scan: %w", err)
	}
	return posts, nil
}

// Fold collapses a decoded, ordered post list into one post per id, with
// later entries overwriting earlier ones for the same id while preserving
// first-seen order.
func Fold(posts []storage.BSOPost) []storage.BSOPost {
	order := make([]string, 0, len(posts))
	byID := make(map[string]storage.BSOPost, len(posts))
	for _, p := range posts {
		if _, seen := byID[p.ID]; !seen {
			order = append(order, p.ID)
		}
		byID[p.ID] = p
	}
	out := make([]storage.BSOPost, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out
}
