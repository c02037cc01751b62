package cursor

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/collabware/livecursor/internal/debounce"
	"github.com/collabware/livecursor/internal/location"
	"github.com/collabware/livecursor/internal/presence"
)

// DefaultRecomputeDebounce bounds how often received locations are
// re-translated into viewport positions under event bursts.
const DefaultRecomputeDebounce = 50 * time.Millisecond

// ReceiverConfig wires a Receiver to its collaborators.
type ReceiverConfig struct {
	Presence presence.Client
	Base     location.Location
	// ViewerID reports the viewer's identity once known. Until it is, no
	// positions are computed for anyone: self-exclusion depends on knowing
	// self.
	ViewerID           func() (string, bool)
	ShowViewerCursor   bool
	LocationToDocument LocationToDocumentFunc
	// BoundingRect, when set, discards positions outside the rectangle.
	BoundingRect func() (Rect, bool)
	Debounce     time.Duration // defaults to DefaultRecomputeDebounce
	// OnChange is called with each atomically replaced position map.
	OnChange func(map[string]CursorPosition)
}

// Receiver subscribes to the live cursor channel with partial matching and
// maintains the per-user location cache and the derived viewport position
// map. The cache is mutated only by the presence update callback; the
// recomputation pass iterates a snapshot copy, since it awaits codec calls
// and the cache may move underneath it.
type Receiver struct {
	cfg ReceiverConfig
	deb *debounce.Debouncer

	mu        sync.Mutex
	locations map[string]location.Location
	positions map[string]CursorPosition
	sub       presence.Subscription
	started   bool

	ctx    context.Context
	cancel context.CancelFunc
}

func NewReceiver(cfg ReceiverConfig) *Receiver {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultRecomputeDebounce
	}
	r := &Receiver{
		cfg:       cfg,
		locations: make(map[string]location.Location),
		positions: make(map[string]CursorPosition),
	}
	r.deb = debounce.NewDebouncer(cfg.Debounce, r.recompute)
	return r
}

// Start opens the presence subscription. The subscription uses partial
// matching because each remote user's presence key is a sub-location of the
// base, not the base itself.
func (r *Receiver) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	sub, err := r.cfg.Presence.ObservePresence(r.cfg.Base, r.onUpdate, presence.ObserveOptions{
		PartialMatch:   true,
		ExcludeDurable: true,
	})
	if err != nil {
		r.cancel()
		return fmt.Errorf("observe live cursor presence: %w", err)
	}

	r.mu.Lock()
	r.sub = sub
	r.started = true
	r.mu.Unlock()
	return nil
}

// onUpdate folds presence data into the location cache. The cache is
// populated even while the viewer's identity is still loading: the initial
// snapshot arrives exactly once, so dropping it would leave already-present
// idle users invisible forever. Identity is consulted at recompute time
// instead.
func (r *Receiver) onUpdate(updates []presence.UserLocationData) {
	r.mu.Lock()
	for _, u := range updates {
		var received location.Location
		if len(u.Ephemeral.Locations) > 0 {
			// An entry may report several locations; the first is
			// authoritative for this channel.
			received = u.Ephemeral.Locations[0]
		}
		if received != nil {
			r.locations[u.ID] = received
		} else {
			delete(r.locations, u.ID)
		}
	}
	r.mu.Unlock()

	r.deb.Call()
}

// ViewportChanged re-triggers the debounced recomputation; viewport-relative
// coordinates go stale on scroll, wheel and resize even without new data.
func (r *Receiver) ViewportChanged() {
	r.deb.Call()
}

// recompute translates a snapshot of the location cache into a fresh
// position map and swaps it in wholesale.
func (r *Receiver) recompute() {
	r.mu.Lock()
	snapshot := make(map[string]location.Location, len(r.locations))
	for id, loc := range r.locations {
		snapshot[id] = loc
	}
	r.mu.Unlock()

	// Until the viewer's identity loads, nothing is rendered for anyone:
	// self-exclusion depends on knowing self. The cached locations stay,
	// so the first recomputation after identity resolves renders them.
	viewerID, haveViewer := r.cfg.ViewerID()
	if !haveViewer {
		snapshot = nil
	}

	var rect Rect
	hasRect := false
	if r.cfg.BoundingRect != nil {
		rect, hasRect = r.cfg.BoundingRect()
	}

	next := make(map[string]CursorPosition, len(snapshot))
	for id, loc := range snapshot {
		if id == viewerID && !r.cfg.ShowViewerCursor {
			continue
		}
		pos, err := r.cfg.LocationToDocument(r.ctx, loc)
		if err != nil {
			log.Printf("Error translating cursor location for user %s: %v", id, err)
			continue
		}
		if pos == nil {
			continue // resolution miss: simply not rendered this pass
		}
		if hasRect && !rect.Contains(pos.ViewportX, pos.ViewportY) {
			continue
		}
		next[id] = *pos
	}

	r.mu.Lock()
	r.positions = next
	r.mu.Unlock()

	if r.cfg.OnChange != nil {
		r.cfg.OnChange(next)
	}
}

// Positions returns the current position map. The map is replaced wholesale
// on every recomputation and must not be mutated by callers.
func (r *Receiver) Positions() map[string]CursorPosition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.positions
}

// Stop releases the presence subscription; a dangling handle would leak
// server-side interest state.
func (r *Receiver) Stop() {
	r.mu.Lock()
	sub := r.sub
	started := r.started
	r.started = false
	r.mu.Unlock()

	if !started {
		return
	}
	r.deb.Cancel()
	if err := r.cfg.Presence.UnobservePresence(sub); err != nil {
		log.Printf("Error releasing cursor presence subscription: %v", err)
	}
	if r.cancel != nil {
		r.cancel()
	}
}
