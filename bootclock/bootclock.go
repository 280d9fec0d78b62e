// Package bootclock reads the clocks battery observations are timestamped
// with: time since boot excluding suspend, and time since boot including it.
package bootclock

import "time"

// Now returns the uptime (not counting suspend) and the elapsed realtime
// (counting suspend).
func Now() (uptime, elapsedRealtime time.Duration, err error) {
	uptime, err = readClock(clockMonotonic)
	if err != nil {
		return 0, 0, err
	}
	elapsedRealtime, err = readClock(clockBoottime)
	if err != nil {
		return 0, 0, err
	}
	return uptime, elapsedRealtime, nil
}
