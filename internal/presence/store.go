package presence

import (
	"sort"
	"sync"
	"time"

	"github.com/collabware/livecursor/internal/location"
)

// DefaultTTL is how long an ephemeral presence record survives without being
// renewed. The cursor transmitter re-sends well inside this window whenever
// the cursor is live, so expiry only fires for clients that vanished without
// a clearing update.
const DefaultTTL = 30 * time.Second

type record struct {
	loc       location.Location
	expiresAt time.Time
}

// Store holds ephemeral presence state: per group and user, one location per
// exclusivity region. Writing a new location within a region replaces the
// old one, which is what clears a cursor's previous sub-location when it
// moves.
type Store struct {
	ttl time.Duration
	now func() time.Time

	mu     sync.RWMutex
	groups map[string]map[string]map[string]record // groupID -> userID -> regionKey -> record

	// onChange is invoked (outside the lock) whenever a user's effective
	// presence changed. Wired to the hub by the service.
	onChange func(groupID, userID string)
}

func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		ttl:    ttl,
		now:    time.Now,
		groups: make(map[string]map[string]map[string]record),
	}
}

// SetOnChange registers the change listener. Must be called before use.
func (s *Store) SetOnChange(fn func(groupID, userID string)) {
	s.onChange = fn
}

// regionKey derives the storage key for a write: the exclusivity region when
// given, otherwise the location itself.
func regionKey(loc location.Location, opts SetOptions) string {
	if len(opts.ExclusiveWithin) > 0 {
		return opts.ExclusiveWithin.Canonical()
	}
	return loc.Canonical()
}

// SetPresent records or withdraws a user's presence. Renewing an unchanged
// location only refreshes its TTL and does not notify observers.
func (s *Store) SetPresent(groupID, userID string, loc location.Location, opts SetOptions) {
	key := regionKey(loc, opts)

	s.mu.Lock()
	users := s.groups[groupID]
	if users == nil {
		users = make(map[string]map[string]record)
		s.groups[groupID] = users
	}
	regions := users[userID]
	if regions == nil {
		regions = make(map[string]record)
		users[userID] = regions
	}

	changed := false
	if opts.Absent {
		if _, ok := regions[key]; ok {
			delete(regions, key)
			changed = true
		}
		if len(regions) == 0 {
			delete(users, userID)
		}
	} else {
		prev, had := regions[key]
		regions[key] = record{loc: loc, expiresAt: s.now().Add(s.ttl)}
		changed = !had || !prev.loc.Equal(loc)
	}
	s.mu.Unlock()

	if changed && s.onChange != nil {
		s.onChange(groupID, userID)
	}
}

// Locations returns the user's unexpired locations in canonical order.
func (s *Store) Locations(groupID, userID string) []location.Location {
	now := s.now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	regions := s.groups[groupID][userID]
	out := make([]location.Location, 0, len(regions))
	for _, rec := range regions {
		if now.Before(rec.expiresAt) {
			out = append(out, rec.loc)
		}
	}
	sortLocations(out)
	return out
}

// MatchingLocations returns the user's live locations that match the
// matcher, using partial or exact matching.
func (s *Store) MatchingLocations(groupID, userID string, matcher location.Location, partial bool) []location.Location {
	all := s.Locations(groupID, userID)
	out := all[:0]
	for _, loc := range all {
		if matchesLocation(loc, matcher, partial) {
			out = append(out, loc)
		}
	}
	return out
}

// UsersMatching returns the IDs of all users in a group with at least one
// live location matching the matcher.
func (s *Store) UsersMatching(groupID string, matcher location.Location, partial bool) []string {
	now := s.now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for userID, regions := range s.groups[groupID] {
		for _, rec := range regions {
			if now.Before(rec.expiresAt) && matchesLocation(rec.loc, matcher, partial) {
				ids = append(ids, userID)
				break
			}
		}
	}
	return ids
}

// Cleanup drops expired records and notifies observers for every user whose
// presence lapsed. Run periodically from the server's cleanup loop.
func (s *Store) Cleanup() {
	now := s.now()
	type lapsed struct{ groupID, userID string }
	var notify []lapsed

	s.mu.Lock()
	for groupID, users := range s.groups {
		for userID, regions := range users {
			userLapsed := false
			for key, rec := range regions {
				if !now.Before(rec.expiresAt) {
					delete(regions, key)
					userLapsed = true
				}
			}
			if len(regions) == 0 {
				delete(users, userID)
			}
			if userLapsed {
				notify = append(notify, lapsed{groupID, userID})
			}
		}
		if len(users) == 0 {
			delete(s.groups, groupID)
		}
	}
	s.mu.Unlock()

	if s.onChange != nil {
		for _, l := range notify {
			s.onChange(l.groupID, l.userID)
		}
	}
}

func matchesLocation(loc, matcher location.Location, partial bool) bool {
	if partial {
		return loc.Matches(matcher)
	}
	return loc.Equal(matcher)
}

func sortLocations(locs []location.Location) {
	sort.Slice(locs, func(i, j int) bool {
		return location.Compare(locs[i], locs[j]) < 0
	})
}
