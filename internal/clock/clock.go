// Package clock is the engine time source; tests freeze it for determinism.
package clock

import (
	"sync/atomic"
	"time"
)

var frozen atomic.Pointer[time.Time]

// Now returns current time, or the frozen time if set
func Now() time.Time {
	if at := frozen.Load(); at != nil {
		return *at
	}
	return time.Now()
}

// Freeze pins Now to at until restore is called
func Freeze(at time.Time) (restore func()) {
	previous := frozen.Swap(&at)
	return func() {
		frozen.Store(previous)
	}
}
