// Package clock abstracts the monotonic time source used by the timing-sensitive drivers so that
// echo timing can be driven deterministically in tests and in dummy hardware.
package clock

import (
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// Real returns the system clock.  time.Now carries a monotonic reading so Sub/Since are safe
// against wall clock adjustments.
func Real() Clock {
	return realClock{}
}

type realClock struct{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// Fake is a clock that only moves when it is read or slept on.  Every call to Now advances it by
// Step, which models the time a polling loop spends per iteration; Sleep advances by exactly d.
type Fake struct {
	lock sync.Mutex
	now  time.Time
	step time.Duration
}

func NewFake(step time.Duration) *Fake {
	return &Fake{
		now:  time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		step: step,
	}
}

func (f *Fake) Now() time.Time {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.now = f.now.Add(f.step)
	return f.now
}

// Peek returns the current time without advancing the clock.
func (f *Fake) Peek() time.Time {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.now
}

func (f *Fake) Sleep(d time.Duration) {
	f.Advance(d)
}

func (f *Fake) Advance(d time.Duration) {
	if d <= 0 {
		return
	}
	f.lock.Lock()
	f.now = f.now.Add(d)
	f.lock.Unlock()
}

var _ Clock = (*Fake)(nil)
