// Package ratelimit provides the three admission-control policies used
// by the bot: a per-key sliding-window counter, a per-key cooldown, and
// a process-wide daily cap. All policies are safe for concurrent use;
// the check-then-update step is atomic under each policy's mutex.
package ratelimit

import (
	"sync"
	"time"
)

// Window admits at most max calls per key within each span-long window.
// Windows reset lazily on access; there is no background sweep.
type Window[K comparable] struct {
	mu      sync.Mutex
	now     func() time.Time
	max     int
	span    time.Duration
	entries map[K]windowEntry
}

type windowEntry struct {
	count   int
	resetAt time.Time
}

// NewWindow builds a sliding-window limiter. A nil clock uses time.Now.
func NewWindow[K comparable](max int, span time.Duration, now func() time.Time) *Window[K] {
	if now == nil {
		now = time.Now
	}

	return &Window[K]{
		now:     now,
		max:     max,
		span:    span,
		entries: make(map[K]windowEntry),
	}
}

// Allow admits and counts one call, or denies with the time remaining
// until the key's window rolls over.
func (w *Window[K]) Allow(key K) (bool, time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	entry, ok := w.entries[key]
	if !ok || !now.Before(entry.resetAt) {
		w.entries[key] = windowEntry{count: 1, resetAt: now.Add(w.span)}
		return true, 0
	}

	if entry.count < w.max {
		entry.count++
		w.entries[key] = entry
		return true, 0
	}

	return false, entry.resetAt.Sub(now)
}

// Cooldown admits one call per key every wait duration. Allow only
// checks; callers stamp the key with Mark once the guarded call is
// actually taken.
type Cooldown[K comparable] struct {
	mu    sync.Mutex
	now   func() time.Time
	wait  time.Duration
	marks map[K]time.Time
}

// NewCooldown builds a cooldown limiter. A nil clock uses time.Now.
func NewCooldown[K comparable](wait time.Duration, now func() time.Time) *Cooldown[K] {
	if now == nil {
		now = time.Now
	}

	return &Cooldown[K]{
		now:   now,
		wait:  wait,
		marks: make(map[K]time.Time),
	}
}

// Allow reports whether the key is out of cooldown, or the time
// remaining until it is.
func (c *Cooldown[K]) Allow(key K) (bool, time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	last, ok := c.marks[key]
	if !ok {
		return true, 0
	}

	elapsed := c.now().Sub(last)
	if elapsed >= c.wait {
		return true, 0
	}

	return false, c.wait - elapsed
}

// Mark stamps the key's last use at now.
func (c *Cooldown[K]) Mark(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.marks[key] = c.now()
}

// Daily is a process-wide cap that rolls over at each calendar-day
// boundary. The rollover happens on first access of the new day, under
// the mutex, so concurrent calls spanning midnight cannot double-reset.
type Daily struct {
	mu    sync.Mutex
	now   func() time.Time
	max   int
	count int
	day   string
}

// NewDaily builds a daily cap. A nil clock uses time.Now.
func NewDaily(max int, now func() time.Time) *Daily {
	if now == nil {
		now = time.Now
	}

	return &Daily{now: now, max: max}
}

// Allow reports whether the cap still has headroom today. It does not
// count the call; callers confirm with Hit after successful processing.
func (d *Daily) Allow() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.rollover()
	return d.count < d.max
}

// Hit counts one confirmed use against today's cap.
func (d *Daily) Hit() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.rollover()
	d.count++
}

// Used returns today's confirmed count.
func (d *Daily) Used() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.rollover()
	return d.count
}

func (d *Daily) rollover() {
	today := d.now().Format(time.DateOnly)
	if d.day != today {
		d.day = today
		d.count = 0
	}
}
