package cursor

import (
	"context"
	"fmt"
	"sync"

	"github.com/collabware/livecursor/internal/location"
	"github.com/collabware/livecursor/internal/presence"
)

// fakePresence records presence traffic and lets tests push updates into
// observers by hand.
type fakePresence struct {
	mu          sync.Mutex
	sets        []setCall
	observers   map[presence.Subscription]presence.UpdateFunc
	unobserved  []presence.Subscription
	nextSub     int
	setPresence func(setCall) error

	// snapshot, when set, is delivered synchronously to each new observer,
	// the way the real service reports users already present at subscribe
	// time.
	snapshot []presence.UserLocationData
}

type setCall struct {
	loc  location.Location
	opts presence.SetOptions
}

func newFakePresence() *fakePresence {
	return &fakePresence{observers: make(map[presence.Subscription]presence.UpdateFunc)}
}

func (f *fakePresence) SetPresent(_ context.Context, loc location.Location, opts presence.SetOptions) error {
	f.mu.Lock()
	call := setCall{loc: loc, opts: opts}
	f.sets = append(f.sets, call)
	hook := f.setPresence
	f.mu.Unlock()

	if hook != nil {
		return hook(call)
	}
	return nil
}

func (f *fakePresence) ObservePresence(_ location.Location, fn presence.UpdateFunc, _ presence.ObserveOptions) (presence.Subscription, error) {
	f.mu.Lock()
	f.nextSub++
	sub := presence.Subscription(fmt.Sprintf("sub-%d", f.nextSub))
	f.observers[sub] = fn
	snapshot := f.snapshot
	f.mu.Unlock()

	if len(snapshot) > 0 {
		fn(snapshot)
	}
	return sub, nil
}

func (f *fakePresence) UnobservePresence(sub presence.Subscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.observers, sub)
	f.unobserved = append(f.unobserved, sub)
	return nil
}

// push delivers an update to every registered observer.
func (f *fakePresence) push(updates ...presence.UserLocationData) {
	f.mu.Lock()
	fns := make([]presence.UpdateFunc, 0, len(f.observers))
	for _, fn := range f.observers {
		fns = append(fns, fn)
	}
	f.mu.Unlock()

	for _, fn := range fns {
		fn(updates)
	}
}

func (f *fakePresence) setCalls() []setCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]setCall(nil), f.sets...)
}

func ephemeral(id string, locs ...location.Location) presence.UserLocationData {
	return presence.UserLocationData{
		ID:        id,
		Ephemeral: presence.EphemeralPresence{Locations: locs},
	}
}
