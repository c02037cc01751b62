package presence

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/collabware/livecursor/internal/location"
)

// Service is the server-side presence engine: the ephemeral store, the
// subscription hub and (optionally) durable presence storage.
type Service struct {
	store   *Store
	hub     *Hub
	durable *DurableStore // nil when durable presence is disabled
	now     func() time.Time
}

func NewService(ttl time.Duration, durable *DurableStore) *Service {
	svc := &Service{
		store:   NewStore(ttl),
		hub:     NewHub(),
		durable: durable,
		now:     time.Now,
	}
	svc.store.SetOnChange(svc.publish)
	return svc
}

// SetPresent applies one presence write for a user.
func (svc *Service) SetPresent(_ context.Context, groupID, userID string, loc location.Location, opts SetOptions) error {
	if groupID == "" || userID == "" {
		return errors.New("presence update requires a group and user")
	}
	if opts.Durable {
		if opts.Absent {
			return errors.New("absent cannot be combined with durable presence")
		}
		if svc.durable == nil {
			return errors.New("durable presence storage is not configured")
		}
		if err := svc.durable.Set(groupID, userID, loc, svc.now()); err != nil {
			return fmt.Errorf("record durable presence: %w", err)
		}
		return nil
	}

	svc.store.SetPresent(groupID, userID, loc, opts)
	return nil
}

// Observe registers an observer and synchronously delivers the current
// snapshot of every matching user before live updates start.
func (svc *Service) Observe(groupID string, matcher location.Location, fn UpdateFunc, opts ObserveOptions) (Subscription, error) {
	if groupID == "" {
		return "", errors.New("presence subscription requires a group")
	}

	sub := svc.hub.Subscribe(groupID, matcher, fn, opts)

	snapshot := svc.snapshot(groupID, matcher, opts)
	if len(snapshot) > 0 {
		fn(snapshot)
	}
	return sub, nil
}

// Unobserve releases a subscription handle. Holding onto a released handle is
// an error, since the server drops all interest state for it.
func (svc *Service) Unobserve(sub Subscription) error {
	if !svc.hub.Unsubscribe(sub) {
		return fmt.Errorf("unknown presence subscription %q", sub)
	}
	return nil
}

// Cleanup expires lapsed ephemeral records, notifying observers of the
// withdrawals.
func (svc *Service) Cleanup() {
	svc.store.Cleanup()
}

// publish fans one user's changed presence out to matching observers.
func (svc *Service) publish(groupID, userID string) {
	svc.hub.Deliver(groupID, func(_ Subscription, matcher location.Location, opts ObserveOptions) *UserLocationData {
		data := svc.userData(groupID, userID, matcher, opts)
		return &data
	})
}

func (svc *Service) userData(groupID, userID string, matcher location.Location, opts ObserveOptions) UserLocationData {
	data := UserLocationData{
		ID:        userID,
		Ephemeral: EphemeralPresence{Locations: svc.store.MatchingLocations(groupID, userID, matcher, opts.PartialMatch)},
	}
	if !opts.ExcludeDurable && svc.durable != nil {
		rec, err := svc.durable.NewestMatching(groupID, userID, matcher, opts.PartialMatch)
		if err != nil {
			log.Printf("Error loading durable presence for user %s: %v", userID, err)
		} else {
			data.Durable = rec
		}
	}
	return data
}

// snapshot builds the initial update for a new observer.
func (svc *Service) snapshot(groupID string, matcher location.Location, opts ObserveOptions) []UserLocationData {
	ids := svc.store.UsersMatching(groupID, matcher, opts.PartialMatch)
	seen := make(map[string]bool, len(ids))
	var out []UserLocationData
	for _, id := range ids {
		seen[id] = true
		out = append(out, svc.userData(groupID, id, matcher, opts))
	}

	// Users with only durable presence still appear in the snapshot.
	if !opts.ExcludeDurable && svc.durable != nil {
		durableIDs, err := svc.durable.UsersMatching(groupID, matcher, opts.PartialMatch)
		if err != nil {
			log.Printf("Error loading durable presence snapshot: %v", err)
		} else {
			for _, id := range durableIDs {
				if !seen[id] {
					out = append(out, svc.userData(groupID, id, matcher, opts))
				}
			}
		}
	}
	return out
}
