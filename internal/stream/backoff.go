package stream

import "time"

// NextBackoff returns the delay to use after one more consecutive failure.
// The delay doubles up to max and never decreases; reaching a connected
// session resets the caller's delay to the initial value.
func NextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}
