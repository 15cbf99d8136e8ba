// Package cooldown gates send attempts with a per-identity cooldown.
//
// A Limiter is either Idle or Cooling until some instant. Remaining time is
// always derived from the wall clock, so a suspended process resumes with a
// correct value and nothing needs a background timer.
package cooldown

import (
	"sync"
	"time"

	"communitychat/pkg/timeutil"
)

// DefaultPeriod is the minimum interval between two sends by one identity.
const DefaultPeriod = 10 * time.Second

// Decision is the outcome of TrySend.
type Decision struct {
	Allowed bool
	// Remaining is how long the caller must wait; zero when Allowed.
	Remaining time.Duration
}

// Limiter is the cooldown state machine for a single identity.
type Limiter struct {
	mu      sync.Mutex
	clock   timeutil.Clock
	period  time.Duration
	cooling bool
	until   time.Time
}

// New returns an Idle limiter. A nil clock uses the system clock and a
// non-positive period uses DefaultPeriod.
func New(clock timeutil.Clock, period time.Duration) *Limiter {
	if clock == nil {
		clock = timeutil.System
	}
	if period <= 0 {
		period = DefaultPeriod
	}
	return &Limiter{clock: clock, period: period}
}

// Period returns the configured cooldown length.
func (l *Limiter) Period() time.Duration { return l.period }

// TrySend admits a send and starts a cooldown, or rejects it with the time
// left. An expired cooldown returns to Idle first, so the admitted send
// starts a fresh cooldown.
func (l *Limiter) TrySend() Decision {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock.Now()
	if l.cooling {
		if now.Before(l.until) {
			return Decision{Remaining: l.until.Sub(now)}
		}
		l.cooling = false
	}
	l.cooling = true
	l.until = now.Add(l.period)
	return Decision{Allowed: true}
}

// Remaining is max(0, until-now) while cooling and zero when idle.
func (l *Limiter) Remaining() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.cooling {
		return 0
	}
	d := l.until.Sub(l.clock.Now())
	if d < 0 {
		return 0
	}
	return d
}

// Reset returns the limiter to Idle. Used when an admitted send never
// reached the store.
func (l *Limiter) Reset() {
	l.mu.Lock()
	l.cooling = false
	l.until = time.Time{}
	l.mu.Unlock()
}

// Progress reports how much of the current cooldown has elapsed, in [0,1].
// An idle limiter reports 1.
func (l *Limiter) Progress() float64 {
	rem := l.Remaining()
	if rem <= 0 {
		return 1
	}
	return 1 - float64(rem)/float64(l.period)
}
