// Package system provides the wall clock that stamps run summaries.
package system

import "time"

// Clock reads the system time in UTC.
type Clock struct{}

// New returns a Clock.
func New() *Clock {
	return &Clock{}
}

// Now implements ingest.Clock.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
