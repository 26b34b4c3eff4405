// Package system provides the wall clock used to stamp observations.
package system

import "time"

// Clock implements catalog.Clock. Observation buckets are UTC calendar days, so
// the clock always reports UTC.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
