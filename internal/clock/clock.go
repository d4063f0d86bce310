package clock

import "time"

// Clock provides time primitives behind an interface for deterministic tests.
// Params: none.
// Returns: current wall-clock time and timer channels.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// RealClock reads time from the system clock.
// Params: none.
// Returns: UTC timestamps and real timers.
type RealClock struct{}

// Now returns current UTC time.
// Params: none.
// Returns: current UTC timestamp.
func (RealClock) Now() time.Time {
	return time.Now().UTC()
}

// After returns a channel that fires once after the duration elapses.
// Params: wait duration.
// Returns: timer channel.
func (RealClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}
