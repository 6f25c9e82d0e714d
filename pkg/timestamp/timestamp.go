// Package timestamp provides the millisecond-precision, monotonic-per-write
// time value used throughout syncstore: every BSO, user-collection, and
// batch record is stamped with one, and every write within a single
// dispatch session shares the same value.
package timestamp

import (
	"strconv"
	"time"
)

// T is milliseconds since the Unix epoch, rounded down to the nearest 10ms
// to match the wire format used by X-Last-Modified / X-Weave-Timestamp.
type T int64

// Zero is the sentinel "no modification yet" value.
const Zero T = 0

// Now returns the current wall-clock time as a T, rounded per Round.
func Now() T {
	return Round(T(time.Now().UnixMilli()))
}

// Round truncates t down to the nearest 10ms.
func Round(t T) T {
	return t - t%10
}

// FromMillis wraps a raw millisecond count, rounding it.
func FromMillis(ms int64) T {
	return Round(T(ms))
}

// Millis returns the raw i64 millisecond count, as consumed by the SQL
// backend's column type.
func (t T) Millis() int64 {
	return int64(t)
}

// Seconds returns the two-decimal-seconds string used for the
// X-Last-Modified and X-Weave-Timestamp response headers and the
// X-If-Modified-Since / X-If-Unmodified-Since request headers.
func (t T) Seconds() string {
	whole := int64(t) / 1000
	frac := (int64(t) % 1000) / 10 // two decimal digits, 10ms resolution
	return strconv.FormatInt(whole, 10) + "." + pad2(frac)
}

func pad2(n int64) string {
	if n < 10 {
		return "0" + strconv.FormatInt(n, 10)
	}
	return strconv.FormatInt(n, 10)
}

// ParseSeconds parses the two-decimal-seconds wire format back into a T.
// Used to decode X-If-Modified-Since / X-If-Unmodified-Since headers.
func ParseSeconds(s string) (T, bool) {
	if s == "" {
		return 0, false
	}
	whole, frac, hasFrac := cutDot(s)
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || w < 0 {
		return 0, false
	}
	ms := w * 1000
	if hasFrac {
		f, err := strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return 0, false
		}
		switch len(frac) {
		case 1:
			ms += f * 100
		case 2:
			ms += f * 10
		default:
			// truncate to centiseconds precision, matching the wire format
			for len(frac) > 2 {
				f /= 10
				frac = frac[:len(frac)-1]
			}
			ms += f * 10
		}
	}
	return Round(T(ms)), true
}

func cutDot(s string) (whole, frac string, hasFrac bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			return s[:i], s[i+1:], true
		}
	}
	return s, "", false
}

// RFC3339 renders t as an RFC 3339 string, the format the distributed-table
// backend's timestamp columns use.
func (t T) RFC3339() string {
	return time.UnixMilli(int64(t)).UTC().Format(time.RFC3339Nano)
}

// FromRFC3339 parses the distributed-table backend's timestamp format.
func FromRFC3339(s string) (T, error) {
	tm, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return 0, err
	}
	return Round(T(tm.UnixMilli())), nil
}

// Time renders t as a time.Time, for backends (e.g. Spanner) whose native
// column type is a timestamp rather than an integer.
func (t T) Time() time.Time {
	return time.UnixMilli(int64(t)).UTC()
}

// FromTime wraps a time.Time, rounding it per Round.
func FromTime(tm time.Time) T {
	return Round(T(tm.UnixMilli()))
}

// Before reports whether t is strictly earlier than other.
func (t T) Before(other T) bool { return t < other }

// After reports whether t is strictly later than other.
func (t T) After(other T) bool { return t > other }

// Add returns t advanced by d.
func (t T) Add(d time.Duration) T {
	return Round(t + T(d.Milliseconds()))
}
