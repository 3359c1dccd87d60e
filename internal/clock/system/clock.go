// Package system provides the wall clock used to stamp records.
package system

import "time"

// Clock implements bookmark.Clock using time.Now in UTC.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time, truncated to microseconds so values survive a
// round trip through Postgres timestamptz unchanged.
func (Clock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
