// Package session implements the capture-session lifecycle: the activity
// clock, the state controller and the inactivity watchdog.
package session

import (
	"sync"
	"time"
)

// ActivityClock tracks the time since the last operator activity. It is a
// pure timer abstraction with no I/O; the time source is injectable so the
// watchdog can be tested deterministically.
type ActivityClock struct {
	mu           sync.Mutex
	lastActivity time.Time
	now          func() time.Time
}

// NewActivityClock creates an ActivityClock using the real time source.
func NewActivityClock() *ActivityClock {
	return NewActivityClockWithNow(time.Now)
}

// NewActivityClockWithNow creates an ActivityClock with a custom time source.
func NewActivityClockWithNow(now func() time.Time) *ActivityClock {
	c := &ActivityClock{now: now}
	c.lastActivity = now()
	return c
}

// Reset records operator activity at the current instant.
func (c *ActivityClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastActivity = c.now()
}

// LastActivityAt returns the instant of the most recent activity.
func (c *ActivityClock) LastActivityAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

// IdleFor returns the elapsed time since the most recent activity.
func (c *ActivityClock) IdleFor() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now().Sub(c.lastActivity)
}
