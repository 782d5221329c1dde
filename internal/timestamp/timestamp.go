// Package timestamp parses the fixed-format, zone-aware timestamps used by the
// last-played listing.
package timestamp

import (
	"errors"
	"fmt"
	"time"
)

// Layout is the listing's timestamp format, e.g. 2024-01-01T10:00:00+0000.
const Layout = "2006-01-02T15:04:05-0700"

// ParseError reports a timestamp that does not match Layout.
type ParseError struct {
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse timestamp %q: %v", e.Value, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

var errLength = errors.New("unexpected length")

// Instant is a parsed timestamp that remembers the string it came from.
// The zero Instant sorts before every parsed one.
type Instant struct {
	Raw  string
	Time time.Time
}

// Parse converts s into an Instant. Fractional seconds, "Z" suffixes and
// colon-separated offsets are rejected.
func Parse(s string) (Instant, error) {
	if len(s) != len(Layout) {
		return Instant{}, &ParseError{Value: s, Err: errLength}
	}
	t, err := time.Parse(Layout, s)
	if err != nil {
		return Instant{}, &ParseError{Value: s, Err: err}
	}
	return Instant{Raw: s, Time: t}, nil
}

// MustParse is Parse for literals known to be valid. It panics otherwise.
func MustParse(s string) Instant {
	in, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return in
}

// Format renders t in Layout.
func Format(t time.Time) string {
	return t.Format(Layout)
}

// IsZero reports whether the instant was never set.
func (i Instant) IsZero() bool {
	return i.Raw == "" && i.Time.IsZero()
}

// Compare returns -1, 0 or +1 depending on whether i is before, equal to or
// after other, comparing points in time rather than strings.
func (i Instant) Compare(other Instant) int {
	return i.Time.Compare(other.Time)
}

// Before reports whether i is strictly earlier than other.
func (i Instant) Before(other Instant) bool {
	return i.Time.Before(other.Time)
}

// After reports whether i is strictly later than other.
func (i Instant) After(other Instant) bool {
	return i.Time.After(other.Time)
}

// Equal reports whether both instants name the same point in time.
func (i Instant) Equal(other Instant) bool {
	return i.Time.Equal(other.Time)
}

func (i Instant) String() string {
	if i.Raw != "" {
		return i.Raw
	}
	if i.Time.IsZero() {
		return ""
	}
	return Format(i.Time)
}
