package booth

import (
	"context"
	"time"
)

// toWallTime strips the monotonic reading from t so later subtractions
// use wall-clock time exclusively. Mixing monotonic and wall-clock
// readings across a process restart (the monotonic clock resets) would
// otherwise make elapsed-time math meaningless.
func toWallTime(t time.Time) time.Time {
	return time.Unix(t.Unix(), int64(t.Nanosecond()))
}

// startWallClockTimer polls at a fixed interval until the wall clock
// passes endTime, then invokes callback once. It returns a cancel
// function. A ticking poll rather than a single time.After is
// deliberate: it stays correct across system clock adjustments that
// would desynchronize a monotonic-backed timer from wall time.
func startWallClockTimer(endTime time.Time, callback func()) func() {
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !toWallTime(time.Now()).Before(endTime) {
					callback()
					return
				}
			}
		}
	}()

	return cancel
}
