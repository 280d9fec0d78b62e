package bootclock

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

const (
	clockMonotonic = unix.CLOCK_MONOTONIC
	clockBoottime  = unix.CLOCK_BOOTTIME
)

func readClock(id int32) (time.Duration, error) {
	var ts unix.Timespec
	if err := unix.ClockGettime(id, &ts); err != nil {
		return 0, fmt.Errorf("failed to read clock %d: %w", id, err)
	}
	return time.Duration(ts.Nano()), nil
}
