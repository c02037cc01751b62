package presence

import (
	"context"
	"time"

	"github.com/collabware/livecursor/internal/location"
)

// SetOptions control a single presence write.
type SetOptions struct {
	// ExclusiveWithin clears the user's presence at any other sub-location
	// within this region when the new presence is recorded.
	ExclusiveWithin location.Location
	// Absent withdraws presence instead of asserting it.
	Absent bool
	// Durable records the presence persistently instead of ephemerally.
	Durable bool
	// GroupID scopes the update to a group. Clients bound to a group may
	// leave this empty.
	GroupID string
}

// ObserveOptions control a presence subscription.
type ObserveOptions struct {
	// PartialMatch matches any location containing the matcher's pairs,
	// rather than the exact matcher only.
	PartialMatch bool
	// ExcludeDurable omits durable presence records from updates.
	ExcludeDurable bool
}

// EphemeralPresence carries the locations a user is currently present at.
// An empty Locations slice means the user's presence has been withdrawn.
type EphemeralPresence struct {
	Locations []location.Location `json:"locations"`
}

// DurableRecord is a persisted presence record.
type DurableRecord struct {
	Location  location.Location `json:"location"`
	Timestamp time.Time         `json:"timestamp"`
}

// UserLocationData is one user's presence as delivered to observers.
type UserLocationData struct {
	ID        string            `json:"id"`
	Ephemeral EphemeralPresence `json:"ephemeral"`
	Durable   *DurableRecord    `json:"durable,omitempty"`
}

// UpdateFunc receives presence updates. Implementations must not call back
// into the client synchronously.
type UpdateFunc func(updates []UserLocationData)

// Subscription is an opaque handle identifying an active observer.
type Subscription string

// Client is the presence service boundary consumed by the cursor engine.
type Client interface {
	SetPresent(ctx context.Context, loc location.Location, opts SetOptions) error
	ObservePresence(matcher location.Location, fn UpdateFunc, opts ObserveOptions) (Subscription, error)
	UnobservePresence(sub Subscription) error
}
