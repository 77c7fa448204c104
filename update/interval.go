// Package update defines the poll interval and its rate-limit floor.
package update

import (
	"fmt"
	"time"
)

// Interval is the time between two polls of the remote API.
type Interval time.Duration

const (
	// MinInterval respects the remote rate limit (100 req/min = 1.67s minimum).
	MinInterval Interval = Interval(2 * time.Second)

	// DefaultInterval is used when the configuration does not specify one.
	DefaultInterval Interval = Interval(5 * time.Second)

	// MaxInterval is the longest supported interval.
	MaxInterval Interval = Interval(24 * time.Hour)
)

// FromSeconds converts a configured number of seconds into an Interval,
// clamped to [MinInterval, MaxInterval].
func FromSeconds(seconds int) Interval {
	if seconds > MaxInterval.Seconds() {
		return MaxInterval
	}
	i := Interval(time.Duration(seconds) * time.Second)
	if i < MinInterval {
		return MinInterval
	}
	return i
}

// Duration returns the interval as time.Duration.
func (i Interval) Duration() time.Duration {
	return time.Duration(i)
}

// Seconds returns the interval in whole seconds.
func (i Interval) Seconds() int {
	return int(time.Duration(i) / time.Second)
}

// String returns string representation.
func (i Interval) String() string {
	if i < MinInterval {
		return fmt.Sprintf("Invalid(%s)", time.Duration(i))
	}
	return fmt.Sprintf("Every(%s)", time.Duration(i))
}
