package presence

import (
	"testing"
	"time"

	"github.com/collabware/livecursor/internal/location"
)

func testStore(t *testing.T) (*Store, *time.Time) {
	t.Helper()

	now := time.Unix(1000, 0)
	s := NewStore(30 * time.Second)
	s.now = func() time.Time { return now }
	return s, &now
}

func TestSetPresentAndLocations(t *testing.T) {
	s, _ := testStore(t)

	loc := location.Location{"page": "docs", location.MarkerKey: true, location.CursorXKey: 10.0}
	s.SetPresent("g1", "alice", loc, SetOptions{})

	got := s.Locations("g1", "alice")
	if len(got) != 1 || !got[0].Equal(loc) {
		t.Fatalf("expected stored location back, got %v", got)
	}
	if locs := s.Locations("g2", "alice"); len(locs) != 0 {
		t.Error("expected no presence in a different group")
	}
}

func TestExclusiveWithinReplacesSubLocation(t *testing.T) {
	s, _ := testStore(t)

	base := location.Location{"page": "docs", location.MarkerKey: true}
	first := base.Merge(nil)
	first[location.CursorXKey] = 10.0
	second := base.Merge(nil)
	second[location.CursorXKey] = 99.0

	s.SetPresent("g1", "alice", first, SetOptions{ExclusiveWithin: base})
	s.SetPresent("g1", "alice", second, SetOptions{ExclusiveWithin: base})

	got := s.Locations("g1", "alice")
	if len(got) != 1 {
		t.Fatalf("expected exclusivity region to hold a single location, got %d", len(got))
	}
	if !got[0].Equal(second) {
		t.Errorf("expected latest location to win, got %v", got[0])
	}
}

func TestAbsentWithdrawsPresence(t *testing.T) {
	s, _ := testStore(t)

	base := location.Location{"page": "docs"}
	loc := location.Location{"page": "docs", location.CursorXKey: 1.0}

	s.SetPresent("g1", "alice", loc, SetOptions{ExclusiveWithin: base})
	s.SetPresent("g1", "alice", loc, SetOptions{ExclusiveWithin: base, Absent: true})

	if got := s.Locations("g1", "alice"); len(got) != 0 {
		t.Errorf("expected presence withdrawn, got %v", got)
	}
}

func TestChangeNotifications(t *testing.T) {
	s, _ := testStore(t)

	var notified int
	s.SetOnChange(func(groupID, userID string) {
		if groupID != "g1" || userID != "alice" {
			t.Errorf("unexpected notification for %s/%s", groupID, userID)
		}
		notified++
	})

	loc := location.Location{"x": 1.0}
	s.SetPresent("g1", "alice", loc, SetOptions{})
	if notified != 1 {
		t.Fatalf("expected 1 notification after first write, got %d", notified)
	}

	// Renewal with an unchanged location refreshes the TTL silently.
	s.SetPresent("g1", "alice", loc, SetOptions{})
	if notified != 1 {
		t.Errorf("expected no notification for unchanged renewal, got %d", notified)
	}

	s.SetPresent("g1", "alice", location.Location{"x": 2.0}, SetOptions{})
	if notified != 2 {
		t.Errorf("expected notification for changed location, got %d", notified)
	}
}

func TestTTLExpiry(t *testing.T) {
	s, now := testStore(t)

	var lapsed []string
	s.SetOnChange(func(_, userID string) { lapsed = append(lapsed, userID) })

	s.SetPresent("g1", "alice", location.Location{"x": 1.0}, SetOptions{})
	lapsed = nil

	*now = now.Add(31 * time.Second)
	if got := s.Locations("g1", "alice"); len(got) != 0 {
		t.Errorf("expected expired record to be hidden from reads, got %v", got)
	}

	s.Cleanup()
	if len(lapsed) != 1 || lapsed[0] != "alice" {
		t.Errorf("expected cleanup to notify alice's expiry, got %v", lapsed)
	}
	s.Cleanup()
	if len(lapsed) != 1 {
		t.Error("expected no repeat notification once pruned")
	}
}

func TestUsersMatchingPartial(t *testing.T) {
	s, _ := testStore(t)

	base := location.Location{"page": "docs", location.MarkerKey: true}
	aliceLoc := base.Merge(nil)
	aliceLoc[location.CursorXKey] = 10.0
	s.SetPresent("g1", "alice", aliceLoc, SetOptions{})
	s.SetPresent("g1", "bob", location.Location{"page": "other"}, SetOptions{})

	ids := s.UsersMatching("g1", base, true)
	if len(ids) != 1 || ids[0] != "alice" {
		t.Errorf("expected only alice's sub-location to match, got %v", ids)
	}

	// Exact matching must not see the sub-location.
	if ids := s.UsersMatching("g1", base, false); len(ids) != 0 {
		t.Errorf("expected exact match to miss sub-locations, got %v", ids)
	}

	got := s.MatchingLocations("g1", "alice", base, true)
	if len(got) != 1 || !got[0].Equal(aliceLoc) {
		t.Errorf("expected alice's sub-location, got %v", got)
	}
}
