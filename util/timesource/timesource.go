// Package timesource provides the clocks the chain reads the current time
// from. Header timestamps are whole seconds, so every clock here is too.
package timesource

import (
	"sync"
	"time"
)

// Now returns the current local time truncated to the second.
func Now() time.Time {
	return time.Unix(time.Now().Unix(), 0)
}

// Manual is a clock that only moves when told to.
type Manual struct {
	mtx sync.Mutex
	now time.Time
}

// NewManual returns a Manual clock set to t.
func NewManual(t time.Time) *Manual {
	return &Manual{now: time.Unix(t.Unix(), 0)}
}

// Now returns the clock's current time.
func (m *Manual) Now() time.Time {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.now
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.now = m.now.Add(d)
}
