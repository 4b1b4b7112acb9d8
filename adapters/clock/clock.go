// Package clock provides Clock implementations.
package clock

import (
	"sync"
	"time"
)

// Real returns the wall clock time.
type Real struct{}

// Now returns the current time.
func (Real) Now() time.Time {
	return time.Now()
}

// Fake is a settable clock for tests. Replay support is stored with second
// precision, so the fake hands out times truncated to the second.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake creates a fake clock stopped at t.
func NewFake(t time.Time) *Fake {
	return &Fake{now: t.Truncate(time.Second)}
}

// Now returns the fake time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Set moves the fake clock to t.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	f.now = t.Truncate(time.Second)
	f.mu.Unlock()
}

// Advance moves the fake clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d).Truncate(time.Second)
	f.mu.Unlock()
}
