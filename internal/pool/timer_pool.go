// Package pool keeps reusable timers for the bounded waits on the request and motion paths.
package pool

import (
	"sync"
	"time"
)

var timerPool sync.Pool

// GetTimer returns a timer armed for duration d, reusing a pooled timer when one is available.
//
// Return the timer with PutTimer once the wait is over.
func GetTimer(d time.Duration) *time.Timer {
	v := timerPool.Get()
	if v == nil {
		return time.NewTimer(d)
	}

	t, _ := v.(*time.Timer) // only *time.Timer is ever put into the pool
	if t.Reset(d) {
		select {
		case <-t.C:
		default:
		}
	}

	return t
}

// PutTimer stops t and returns it to the pool.
//
// t must not be used after it has been returned.
func PutTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	timerPool.Put(t)
}

// Wait blocks until done is closed or d elapses, and reports whether done closed first.
func Wait(done <-chan struct{}, d time.Duration) bool {
	timer := GetTimer(d)
	defer PutTimer(timer)

	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}
