package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned by single-row lookups when no matching record
// exists.
var ErrNotFound = errors.New("store: not found")

// isoLayout is the ISO-8601 UTC timestamp format used across every table.
const isoLayout = time.RFC3339

// parseISO parses an isoLayout timestamp, returning the zero time on error
// rather than propagating a parse failure for what should always be a
// well-formed value written by this package.
func parseISO(s string) time.Time {
	t, err := time.Parse(isoLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
