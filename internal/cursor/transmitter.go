package cursor

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/collabware/livecursor/internal/location"
	"github.com/collabware/livecursor/internal/presence"
)

// DefaultPositionUpdateInterval is how often the transmitter polls the mouse
// cell for changes worth sending.
const DefaultPositionUpdateInterval = 100 * time.Millisecond

// TransmitterConfig wires a Transmitter to its collaborators.
type TransmitterConfig struct {
	Presence        presence.Client
	Base            location.Location
	GroupID         string
	SendClicks      bool
	Interval        time.Duration // defaults to DefaultPositionUpdateInterval
	EventToLocation EventToLocationFunc
}

// Transmitter tracks the local pointer and publishes it as presence
// sub-locations of the base location. Pointer events land in a single-slot
// cell (last event wins); an interval ticker diffs the cell against the last
// transmitted location and only sends on change. Stop sends one clearing
// update and nothing after.
type Transmitter struct {
	cfg TransmitterConfig

	mu       sync.Mutex
	gen      uint64            // generation guard against stale async codec results
	current  location.Location // latest resolved pointer location, nil = off page
	lastSent location.Location
	stopped  bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewTransmitter(cfg TransmitterConfig) *Transmitter {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPositionUpdateInterval
	}
	return &Transmitter{cfg: cfg, done: make(chan struct{})}
}

// Start begins the interval loop. The context bounds all outbound presence
// writes except the final clearing update.
func (t *Transmitter) Start(ctx context.Context) {
	t.ctx, t.cancel = context.WithCancel(ctx)
	go t.run()
}

func (t *Transmitter) run() {
	defer close(t.done)

	ticker := time.NewTicker(t.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
			t.tick()
		}
	}
}

// OnMouseMove records a pointer movement into the mouse cell.
func (t *Transmitter) OnMouseMove(ev PointerEvent) {
	t.handleEvent(ev)
}

// OnMouseDown records a button press into the mouse cell.
func (t *Transmitter) OnMouseDown(ev PointerEvent) {
	t.handleEvent(ev)
}

// OnMouseLeave clears the mouse cell; the next tick withdraws presence.
func (t *Transmitter) OnMouseLeave() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.gen++ // invalidate in-flight translations
	t.current = nil
}

func (t *Transmitter) handleEvent(ev PointerEvent) {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.gen++
	gen := t.gen
	t.mu.Unlock()

	// Translation may consult the anchoring service, so it runs off the
	// caller's goroutine. Only the latest event's result may land in the
	// cell: a slower older translation must not clobber a newer one.
	go func() {
		loc, err := t.cfg.EventToLocation(t.ctx, ev, EventOptions{SendClicks: t.cfg.SendClicks})
		if err != nil || loc == nil {
			return
		}
		t.mu.Lock()
		if gen == t.gen && !t.stopped {
			t.current = loc
		}
		t.mu.Unlock()
	}()
}

func (t *Transmitter) tick() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	cur := t.current
	last := t.lastSent

	switch {
	case cur != nil && !cur.Equal(last):
		t.lastSent = cur
		t.mu.Unlock()
		t.send(t.ctx, cur, false)
	case cur == nil && last != nil:
		t.lastSent = nil
		t.mu.Unlock()
		t.send(t.ctx, last, true)
	default:
		t.mu.Unlock()
	}
}

// send publishes one update. Failures are the presence service's concern;
// the transmitter submits intent once per detected change and never retries.
func (t *Transmitter) send(ctx context.Context, loc location.Location, absent bool) {
	merged := loc.Merge(t.cfg.Base)
	err := t.cfg.Presence.SetPresent(ctx, merged, presence.SetOptions{
		ExclusiveWithin: t.cfg.Base,
		Absent:          absent,
		GroupID:         t.cfg.GroupID,
	})
	if err != nil {
		log.Printf("Error sending cursor presence update: %v", err)
	}
}

// Stop halts the interval loop and, if a location is currently transmitted,
// sends exactly one clearing update. No updates are sent afterwards.
func (t *Transmitter) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
		<-t.done
	}

	t.mu.Lock()
	last := t.lastSent
	t.lastSent = nil
	t.current = nil
	t.mu.Unlock()

	if last != nil {
		// The run context is gone; the final clear uses a fresh one so the
		// teardown write can still go out.
		t.send(context.Background(), last, true)
	}
}
