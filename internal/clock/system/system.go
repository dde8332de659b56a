// Package system provides crawler.Clock implementations.
package system

import "time"

// Clock implements crawler.Clock using time.Now.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time in UTC. Relative post dates are resolved
// against it, so it must never carry a local zone.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// Fixed is a clock frozen at one instant, for reproducible extraction.
type Fixed struct {
	At time.Time
}

// Now returns the frozen instant in UTC.
func (f Fixed) Now() time.Time {
	return f.At.UTC()
}
