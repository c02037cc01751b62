package cursor

import (
	"context"
	"testing"
	"time"

	"github.com/collabware/livecursor/internal/location"
	"github.com/collabware/livecursor/internal/presence"
)

// rawEventToLocation is a synchronous codec for tests: page coordinates and
// the click flag, nothing else.
func rawEventToLocation(_ context.Context, ev PointerEvent, opts EventOptions) (location.Location, error) {
	return location.Location{
		location.CursorXKey:  ev.PageX,
		location.CursorYKey:  ev.PageY,
		location.CursorClick: opts.SendClicks && ev.Primary(),
	}, nil
}

const testInterval = 10 * time.Millisecond

// settle waits long enough for the async translation and at least one tick.
func settle() { time.Sleep(5 * testInterval) }

func startTransmitter(t *testing.T, fake *fakePresence, base location.Location) *Transmitter {
	t.Helper()

	tx := NewTransmitter(TransmitterConfig{
		Presence:        fake,
		Base:            base,
		GroupID:         "g1",
		Interval:        testInterval,
		EventToLocation: rawEventToLocation,
	})
	tx.Start(context.Background())
	return tx
}

func TestTransmitterSuppressesUnchangedLocations(t *testing.T) {
	fake := newFakePresence()
	base := location.WithMarker(location.Location{"page": "docs"})
	tx := startTransmitter(t, fake, base)
	defer tx.Stop()

	// L1, L1, L2: the repeat must not produce a second send.
	tx.OnMouseMove(PointerEvent{PageX: 10, PageY: 20})
	settle()
	tx.OnMouseMove(PointerEvent{PageX: 10, PageY: 20})
	settle()
	tx.OnMouseMove(PointerEvent{PageX: 30, PageY: 40})
	settle()

	calls := fake.setCalls()
	if len(calls) != 2 {
		t.Fatalf("expected exactly 2 setPresent calls for L1,L1,L2, got %d", len(calls))
	}
	if calls[0].loc[location.CursorXKey] != 10.0 || calls[1].loc[location.CursorXKey] != 30.0 {
		t.Errorf("unexpected call order: %v", calls)
	}
}

func TestTransmitterMergesBaseOverSubLocation(t *testing.T) {
	fake := newFakePresence()
	base := location.WithMarker(location.Location{"page": "docs"})
	tx := startTransmitter(t, fake, base)
	defer tx.Stop()

	tx.OnMouseMove(PointerEvent{PageX: 1, PageY: 2})
	settle()

	calls := fake.setCalls()
	if len(calls) == 0 {
		t.Fatal("expected a setPresent call")
	}
	sent := calls[0]
	if sent.loc[location.MarkerKey] != true || sent.loc["page"] != "docs" {
		t.Errorf("expected base location merged over cursor data, got %v", sent.loc)
	}
	if !sent.opts.ExclusiveWithin.Equal(base) {
		t.Errorf("expected exclusiveWithin base, got %v", sent.opts.ExclusiveWithin)
	}
	if sent.opts.GroupID != "g1" || sent.opts.Absent {
		t.Errorf("unexpected options %+v", sent.opts)
	}
}

func TestTransmitterClearsOnMouseLeave(t *testing.T) {
	fake := newFakePresence()
	base := location.WithMarker(location.Location{"page": "docs"})
	tx := startTransmitter(t, fake, base)
	defer tx.Stop()

	tx.OnMouseMove(PointerEvent{PageX: 1, PageY: 2})
	settle()
	tx.OnMouseLeave()
	settle()

	calls := fake.setCalls()
	if len(calls) != 2 {
		t.Fatalf("expected send then clear, got %d calls", len(calls))
	}
	if !calls[1].opts.Absent {
		t.Error("expected clearing update after mouse leave")
	}

	// Nothing more pending: no repeated clears.
	settle()
	if got := len(fake.setCalls()); got != 2 {
		t.Errorf("expected no further traffic after clear, got %d calls", got)
	}
}

func TestTransmitterStopSendsSingleClear(t *testing.T) {
	fake := newFakePresence()
	base := location.WithMarker(location.Location{"page": "docs"})
	tx := startTransmitter(t, fake, base)

	tx.OnMouseMove(PointerEvent{PageX: 1, PageY: 2})
	settle()

	tx.Stop()
	calls := fake.setCalls()
	if len(calls) != 2 || !calls[1].opts.Absent {
		t.Fatalf("expected exactly one clearing update on stop, got %v", calls)
	}

	// Events and timers after stop must not produce traffic.
	tx.OnMouseMove(PointerEvent{PageX: 9, PageY: 9})
	settle()
	if got := len(fake.setCalls()); got != 2 {
		t.Errorf("expected no updates after stop, got %d calls", got)
	}

	tx.Stop() // idempotent
	if got := len(fake.setCalls()); got != 2 {
		t.Errorf("expected repeated stop to stay silent, got %d calls", got)
	}
}

func TestTransmitterStopWithoutTrafficStaysSilent(t *testing.T) {
	fake := newFakePresence()
	tx := startTransmitter(t, fake, location.WithMarker(nil))
	tx.Stop()

	if got := len(fake.setCalls()); got != 0 {
		t.Errorf("expected no clearing update when nothing was transmitted, got %d", got)
	}
}

func TestTransmitterStaleTranslationDiscarded(t *testing.T) {
	fake := newFakePresence()
	base := location.WithMarker(location.Location{"page": "docs"})

	// A slow translation for the first event resolving after a faster second
	// one must not clobber the newer cell value.
	slowForX1 := func(ctx context.Context, ev PointerEvent, opts EventOptions) (location.Location, error) {
		if ev.PageX == 1 {
			time.Sleep(3 * testInterval)
		}
		return rawEventToLocation(ctx, ev, opts)
	}

	tx := NewTransmitter(TransmitterConfig{
		Presence:        fake,
		Base:            base,
		Interval:        testInterval,
		EventToLocation: slowForX1,
	})
	tx.Start(context.Background())
	defer tx.Stop()

	tx.OnMouseMove(PointerEvent{PageX: 1, PageY: 1})
	tx.OnMouseMove(PointerEvent{PageX: 2, PageY: 2})
	time.Sleep(8 * testInterval)

	var lastSent setCall
	calls := fake.setCalls()
	if len(calls) == 0 {
		t.Fatal("expected at least one send")
	}
	lastSent = calls[len(calls)-1]
	if lastSent.loc[location.CursorXKey] != 2.0 {
		t.Errorf("expected newest event to win, last sent %v", lastSent.loc)
	}
	for _, c := range calls {
		if c.loc[location.CursorXKey] == 1.0 {
			t.Errorf("stale translation was transmitted: %v", c.loc)
		}
	}
}

var _ presence.Client = (*fakePresence)(nil)
