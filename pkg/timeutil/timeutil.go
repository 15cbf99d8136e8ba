package timeutil

import (
	"sync"
	"time"
)

// Clock is the wall-clock capability injected into components that make
// time-based decisions (cooldowns, day labels, soft-delete stamps).
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// System is the process wall clock.
var System Clock = systemClock{}

// Now returns the current wall-clock time.
func Now() time.Time { return System.Now() }

// UnixMillis converts t to Unix milliseconds, the unit used on the wire.
func UnixMillis(t time.Time) int64 { return t.UnixNano() / int64(time.Millisecond) }

// FromMillis converts Unix milliseconds back to a time.Time.
func FromMillis(ms int64) time.Time { return time.Unix(0, ms*int64(time.Millisecond)) }

// FakeClock is a manually advanced clock for tests and simulations.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (f *FakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves the clock forward by d.
func (f *FakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

// Set jumps the clock to t.
func (f *FakeClock) Set(t time.Time) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}
