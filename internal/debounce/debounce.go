package debounce

import (
	"sync"
	"time"
)

// Debouncer coalesces bursts of calls into a single trailing invocation of
// fn. At most one timer is outstanding; each Call replaces any pending
// invocation rather than queueing another. Used to bound the cost of cursor
// position recomputation under rapid presence/scroll event bursts.
type Debouncer struct {
	delay time.Duration
	fn    func()

	mu    sync.Mutex
	timer *time.Timer
}

func NewDebouncer(delay time.Duration, fn func()) *Debouncer {
	return &Debouncer{delay: delay, fn: fn}
}

// Call schedules fn to run after the delay, cancelling any pending run.
func (d *Debouncer) Call() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		d.timer = nil
		d.mu.Unlock()
		d.fn()
	})
}

// Cancel drops any pending invocation.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Flush runs fn immediately if an invocation is pending.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	pending := d.timer != nil
	if pending {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()

	if pending {
		d.fn()
	}
}

// Throttler enforces a minimum gap between events, admitting the leading
// event and dropping anything inside the gap.
type Throttler struct {
	gap time.Duration
	now func() time.Time

	mu   sync.Mutex
	last time.Time
}

func NewThrottler(gap time.Duration) *Throttler {
	return &Throttler{gap: gap, now: time.Now}
}

// Allow reports whether an event arriving now is outside the gap, and if so
// starts a new gap.
func (t *Throttler) Allow() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if !t.last.IsZero() && now.Sub(t.last) < t.gap {
		return false
	}
	t.last = now
	return true
}

// Reset forgets the last admitted event, so the next Allow succeeds.
func (t *Throttler) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = time.Time{}
}
