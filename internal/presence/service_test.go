package presence

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/collabware/livecursor/internal/location"
)

type recorder struct {
	mu      sync.Mutex
	updates [][]UserLocationData
}

func (r *recorder) fn(updates []UserLocationData) {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := make([]UserLocationData, len(updates))
	copy(copied, updates)
	r.updates = append(r.updates, copied)
}

func (r *recorder) all() [][]UserLocationData {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]UserLocationData(nil), r.updates...)
}

func TestObserveLiveUpdates(t *testing.T) {
	svc := NewService(30*time.Second, nil)
	base := location.Location{"page": "docs", location.MarkerKey: true}

	rec := &recorder{}
	sub, err := svc.Observe("g1", base, rec.fn, ObserveOptions{PartialMatch: true, ExcludeDurable: true})
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	defer svc.Unobserve(sub)

	aliceLoc := base.Merge(nil)
	aliceLoc[location.CursorXKey] = 10.0
	if err := svc.SetPresent(context.Background(), "g1", "alice", aliceLoc, SetOptions{ExclusiveWithin: base}); err != nil {
		t.Fatalf("set present: %v", err)
	}

	updates := rec.all()
	if len(updates) != 1 {
		t.Fatalf("expected 1 update, got %d", len(updates))
	}
	got := updates[0][0]
	if got.ID != "alice" || len(got.Ephemeral.Locations) != 1 || !got.Ephemeral.Locations[0].Equal(aliceLoc) {
		t.Errorf("unexpected update %+v", got)
	}

	// Withdrawal shows up as empty locations.
	if err := svc.SetPresent(context.Background(), "g1", "alice", aliceLoc, SetOptions{ExclusiveWithin: base, Absent: true}); err != nil {
		t.Fatalf("set absent: %v", err)
	}
	updates = rec.all()
	last := updates[len(updates)-1][0]
	if last.ID != "alice" || len(last.Ephemeral.Locations) != 0 {
		t.Errorf("expected withdrawal update, got %+v", last)
	}
}

func TestObserveSnapshot(t *testing.T) {
	svc := NewService(30*time.Second, nil)
	base := location.Location{"page": "docs", location.MarkerKey: true}

	aliceLoc := base.Merge(nil)
	aliceLoc[location.CursorXKey] = 5.0
	if err := svc.SetPresent(context.Background(), "g1", "alice", aliceLoc, SetOptions{}); err != nil {
		t.Fatal(err)
	}

	rec := &recorder{}
	sub, err := svc.Observe("g1", base, rec.fn, ObserveOptions{PartialMatch: true, ExcludeDurable: true})
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	defer svc.Unobserve(sub)

	updates := rec.all()
	if len(updates) != 1 || len(updates[0]) != 1 || updates[0][0].ID != "alice" {
		t.Fatalf("expected snapshot containing alice, got %v", updates)
	}
}

func TestUnobserveStopsDelivery(t *testing.T) {
	svc := NewService(30*time.Second, nil)
	base := location.Location{"page": "docs"}

	rec := &recorder{}
	sub, err := svc.Observe("g1", base, rec.fn, ObserveOptions{PartialMatch: true})
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Unobserve(sub); err != nil {
		t.Fatalf("unobserve: %v", err)
	}
	if err := svc.Unobserve(sub); err == nil {
		t.Error("expected error for already-released handle")
	}

	svc.SetPresent(context.Background(), "g1", "alice", location.Location{"page": "docs"}, SetOptions{})
	if len(rec.all()) != 0 {
		t.Error("expected no delivery after unobserve")
	}
}

func TestDurablePresence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "presence.db")

	ds, err := OpenDurableStore(path)
	if err != nil {
		t.Fatalf("open durable store: %v", err)
	}

	svc := NewService(30*time.Second, ds)
	loc := location.Location{"page": "docs"}

	if err := svc.SetPresent(context.Background(), "g1", "alice", loc, SetOptions{Durable: true}); err != nil {
		t.Fatalf("durable set: %v", err)
	}
	if err := svc.SetPresent(context.Background(), "g1", "alice", loc, SetOptions{Durable: true, Absent: true}); err == nil {
		t.Error("expected absent+durable to be rejected")
	}

	// Durable users appear in snapshots unless excluded.
	rec := &recorder{}
	sub, err := svc.Observe("g1", loc, rec.fn, ObserveOptions{PartialMatch: true})
	if err != nil {
		t.Fatal(err)
	}
	svc.Unobserve(sub)

	updates := rec.all()
	if len(updates) != 1 || updates[0][0].Durable == nil {
		t.Fatalf("expected durable record in snapshot, got %v", updates)
	}
	if !updates[0][0].Durable.Location.Equal(loc) {
		t.Errorf("unexpected durable location %v", updates[0][0].Durable.Location)
	}

	excluded := &recorder{}
	sub, err = svc.Observe("g1", loc, excluded.fn, ObserveOptions{PartialMatch: true, ExcludeDurable: true})
	if err != nil {
		t.Fatal(err)
	}
	svc.Unobserve(sub)
	if len(excluded.all()) != 0 {
		t.Error("expected durable-only user to be invisible under ExcludeDurable")
	}

	// Records survive a reopen.
	if err := ds.Close(); err != nil {
		t.Fatal(err)
	}
	ds2, err := OpenDurableStore(path)
	if err != nil {
		t.Fatalf("reopen durable store: %v", err)
	}
	defer ds2.Close()

	rec2, err := ds2.NewestMatching("g1", "alice", loc, true)
	if err != nil {
		t.Fatal(err)
	}
	if rec2 == nil || !rec2.Location.Equal(loc) {
		t.Errorf("expected durable record to survive restart, got %+v", rec2)
	}

	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected database file on disk: %v", err)
	}
}

func TestMemoryClient(t *testing.T) {
	svc := NewService(30*time.Second, nil)
	base := location.Location{"page": "docs", location.MarkerKey: true}

	alice := NewMemoryClient(svc, "g1", "alice")
	bob := NewMemoryClient(svc, "g1", "bob")

	rec := &recorder{}
	sub, err := bob.ObservePresence(base, rec.fn, ObserveOptions{PartialMatch: true, ExcludeDurable: true})
	if err != nil {
		t.Fatal(err)
	}
	defer bob.UnobservePresence(sub)

	loc := base.Merge(nil)
	loc[location.CursorXKey] = 42.0
	if err := alice.SetPresent(context.Background(), loc, SetOptions{ExclusiveWithin: base}); err != nil {
		t.Fatal(err)
	}

	updates := rec.all()
	if len(updates) != 1 || updates[0][0].ID != "alice" {
		t.Fatalf("expected bob to see alice's update, got %v", updates)
	}
}
