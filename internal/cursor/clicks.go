package cursor

import (
	"sync"
	"time"
)

// DefaultClickDisplayDuration is how long a received click stays renderable.
const DefaultClickDisplayDuration = time.Second

// clickExpiryGrace pads the expiry timer so it cannot fire marginally early.
const clickExpiryGrace = 50 * time.Millisecond

// ClickTracker derives click markers from the receiver's position stream. A
// click is recorded when a user's position arrives with the click flag set at
// coordinates different from their stored click. Exactly one expiry timer is
// ever outstanding, scheduled from the oldest stored click; with n
// simultaneous clickers this stays one timer instead of n.
type ClickTracker struct {
	duration time.Duration
	now      func() time.Time
	onChange func(map[string]ClickPosition)

	mu      sync.Mutex
	clicks  map[string]ClickPosition
	timer   *time.Timer
	stopped bool
}

func NewClickTracker(duration time.Duration, onChange func(map[string]ClickPosition)) *ClickTracker {
	if duration <= 0 {
		duration = DefaultClickDisplayDuration
	}
	return &ClickTracker{
		duration: duration,
		now:      time.Now,
		onChange: onChange,
		clicks:   make(map[string]ClickPosition),
	}
}

// Update feeds a new position map through the tracker.
func (ct *ClickTracker) Update(positions map[string]CursorPosition) {
	ct.mu.Lock()
	if ct.stopped {
		ct.mu.Unlock()
		return
	}

	changed := false
	for id, pos := range positions {
		if !pos.Click {
			continue
		}
		stored, ok := ct.clicks[id]
		if ok && (pos.ViewportX == stored.ViewportX || pos.ViewportY == stored.ViewportY) {
			continue // same click still being reported
		}
		ct.clicks[id] = ClickPosition{CursorPosition: pos, ClickTimestamp: ct.now()}
		changed = true
	}

	if changed {
		ct.reschedule()
	}
	snapshot := ct.snapshotLocked()
	ct.mu.Unlock()

	if changed && ct.onChange != nil {
		ct.onChange(snapshot)
	}
}

// Clicks returns a copy of the currently displayed clicks.
func (ct *ClickTracker) Clicks() map[string]ClickPosition {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	return ct.snapshotLocked()
}

// Stop cancels any outstanding expiry timer.
func (ct *ClickTracker) Stop() {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.stopped = true
	if ct.timer != nil {
		ct.timer.Stop()
		ct.timer = nil
	}
}

// expire prunes everything past its display duration and reschedules from
// whatever remains.
func (ct *ClickTracker) expire() {
	ct.mu.Lock()
	if ct.stopped {
		ct.mu.Unlock()
		return
	}
	ct.timer = nil

	now := ct.now()
	pruned := false
	for id, click := range ct.clicks {
		if !now.Before(click.ClickTimestamp.Add(ct.duration)) {
			delete(ct.clicks, id)
			pruned = true
		}
	}
	ct.reschedule()
	snapshot := ct.snapshotLocked()
	ct.mu.Unlock()

	// Only a real prune is surfaced downstream, so consumers are not
	// re-rendered for a timer that found nothing to do.
	if pruned && ct.onChange != nil {
		ct.onChange(snapshot)
	}
}

// reschedule replaces the outstanding timer based on the oldest stored
// click. Caller holds ct.mu.
func (ct *ClickTracker) reschedule() {
	if ct.timer != nil {
		ct.timer.Stop()
		ct.timer = nil
	}
	if len(ct.clicks) == 0 {
		return
	}

	var oldest time.Time
	for _, click := range ct.clicks {
		if oldest.IsZero() || click.ClickTimestamp.Before(oldest) {
			oldest = click.ClickTimestamp
		}
	}

	// All clicks share one display duration, so expiring from the oldest
	// timestamp is sufficient. Per-click durations would need a proper
	// expiry heap instead.
	delay := oldest.Add(ct.duration + clickExpiryGrace).Sub(ct.now())
	if delay < 0 {
		delay = 0
	}
	ct.timer = time.AfterFunc(delay, ct.expire)
}

func (ct *ClickTracker) snapshotLocked() map[string]ClickPosition {
	out := make(map[string]ClickPosition, len(ct.clicks))
	for id, click := range ct.clicks {
		out[id] = click
	}
	return out
}
