package ratelimit

import (
	"sync"
	"testing"
	"time"
)

type key struct {
	GroupID int64
	UserID  int64
}

// fakeClock is a hand-driven clock for deterministic window math.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestWindowAdmitsUpToMax(t *testing.T) {
	clock := newFakeClock()
	w := NewWindow[key](3, time.Minute, clock.Now)
	k := key{GroupID: 1, UserID: 2}

	for i := 0; i < 3; i++ {
		if ok, _ := w.Allow(k); !ok {
			t.Fatalf("call %d denied, want admit", i+1)
		}
	}

	ok, retry := w.Allow(k)
	if ok {
		t.Fatal("fourth call admitted, want deny")
	}
	if retry != time.Minute {
		t.Fatalf("retry_after = %v, want %v", retry, time.Minute)
	}
}

func TestWindowDenyReportsRemainingTime(t *testing.T) {
	clock := newFakeClock()
	w := NewWindow[key](1, time.Minute, clock.Now)
	k := key{GroupID: 1, UserID: 2}

	w.Allow(k)
	clock.Advance(40 * time.Second)

	ok, retry := w.Allow(k)
	if ok {
		t.Fatal("expected deny inside window")
	}
	if retry != 20*time.Second {
		t.Fatalf("retry_after = %v, want 20s", retry)
	}
}

func TestWindowResetsLazilyAfterSpan(t *testing.T) {
	clock := newFakeClock()
	w := NewWindow[key](1, time.Minute, clock.Now)
	k := key{GroupID: 1, UserID: 2}

	w.Allow(k)
	clock.Advance(time.Minute)

	if ok, _ := w.Allow(k); !ok {
		t.Fatal("expected fresh window after span elapsed")
	}
}

func TestWindowKeysAreIndependent(t *testing.T) {
	clock := newFakeClock()
	w := NewWindow[key](1, time.Minute, clock.Now)

	w.Allow(key{GroupID: 1, UserID: 2})

	if ok, _ := w.Allow(key{GroupID: 1, UserID: 3}); !ok {
		t.Fatal("different user must have its own window")
	}
	if ok, _ := w.Allow(key{GroupID: 2, UserID: 2}); !ok {
		t.Fatal("different group must have its own window")
	}
}

func TestWindowNeverExceedsMaxWithinAnyInterval(t *testing.T) {
	clock := newFakeClock()
	const max = 4
	w := NewWindow[key](max, time.Minute, clock.Now)
	k := key{GroupID: 7, UserID: 7}

	// Hammer the limiter over simulated time and count admissions per
	// window instance; none may exceed max.
	admitted := 0
	for step := 0; step < 600; step++ {
		if ok, _ := w.Allow(k); ok {
			admitted++
		}
		if admitted > max {
			t.Fatalf("window admitted %d calls, max is %d", admitted, max)
		}
		clock.Advance(time.Second)
		if step%60 == 59 {
			admitted = 0
		}
	}
}

func TestCooldownAllowDoesNotConsume(t *testing.T) {
	clock := newFakeClock()
	c := NewCooldown[key](10*time.Minute, clock.Now)
	k := key{GroupID: 1, UserID: 2}

	if ok, _ := c.Allow(k); !ok {
		t.Fatal("first call must be admitted")
	}
	// Without a Mark the key stays free.
	if ok, _ := c.Allow(k); !ok {
		t.Fatal("unmarked key must stay admitted")
	}
}

func TestCooldownDeniesUntilElapsed(t *testing.T) {
	clock := newFakeClock()
	c := NewCooldown[key](10*time.Minute, clock.Now)
	k := key{GroupID: 1, UserID: 2}

	c.Mark(k)
	clock.Advance(3 * time.Minute)

	ok, retry := c.Allow(k)
	if ok {
		t.Fatal("expected deny 3 minutes into a 10 minute cooldown")
	}
	if retry != 7*time.Minute {
		t.Fatalf("retry_after = %v, want 7m", retry)
	}

	clock.Advance(7 * time.Minute)
	if ok, _ := c.Allow(k); !ok {
		t.Fatal("expected admit once the cooldown elapsed")
	}
}

func TestDailyCapAndRollover(t *testing.T) {
	clock := newFakeClock()
	d := NewDaily(2, clock.Now)

	if !d.Allow() {
		t.Fatal("fresh day must admit")
	}
	d.Hit()
	d.Hit()

	if d.Allow() {
		t.Fatal("cap reached, must deny")
	}

	clock.Advance(24 * time.Hour)
	if !d.Allow() {
		t.Fatal("new day must admit again")
	}
	if d.Used() != 0 {
		t.Fatalf("count after rollover = %d, want 0", d.Used())
	}
}

func TestDailyDoesNotDoubleResetAcrossMidnight(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 23, 59, 59, 0, time.UTC)}
	d := NewDaily(1000, clock.Now)
	d.Hit()

	clock.Advance(2 * time.Second) // cross midnight

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Allow()
			d.Hit()
		}()
	}
	wg.Wait()

	// Exactly one reset: yesterday's hit is gone, today's 50 remain.
	if got := d.Used(); got != 50 {
		t.Fatalf("count = %d, want 50", got)
	}
}

func TestWindowConcurrentCallsStayAtomic(t *testing.T) {
	w := NewWindow[key](100, time.Minute, nil)
	k := key{GroupID: 1, UserID: 1}

	var wg sync.WaitGroup
	admitted := make(chan struct{}, 300)
	for i := 0; i < 300; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := w.Allow(k); ok {
				admitted <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(admitted)

	count := 0
	for range admitted {
		count++
	}
	if count != 100 {
		t.Fatalf("admitted = %d, want exactly 100", count)
	}
}
