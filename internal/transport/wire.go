package transport

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"

	"github.com/collabware/livecursor/internal/location"
)

// Message types exchanged over the websocket.
const (
	MsgAuthenticate   = "authenticate"
	MsgAuthenticated  = "authenticated"
	MsgSetPresent     = "setPresent"
	MsgObserve        = "observe"
	MsgUnobserve      = "unobserve"
	MsgPresenceUpdate = "presenceUpdate"
	MsgError          = "error"
)

// AuthMessage is the first message a client must send after connecting.
// An empty UserID asks the server to assign one.
type AuthMessage struct {
	Type    string `json:"type" validate:"required,eq=authenticate"`
	UserID  string `json:"userId" validate:"omitempty,max=128"`
	GroupID string `json:"groupId" validate:"required,max=128"`
}

// AuthenticatedMessage confirms the handshake and carries the identity the
// server settled on.
type AuthenticatedMessage struct {
	Type    string `json:"type"`
	UserID  string `json:"userId"`
	GroupID string `json:"groupId"`
	Color   string `json:"color"`
}

// SetPresentMessage records or withdraws presence at a location.
type SetPresentMessage struct {
	Type            string            `json:"type" validate:"required,eq=setPresent"`
	Location        location.Location `json:"location" validate:"required"`
	ExclusiveWithin location.Location `json:"exclusiveWithin,omitempty"`
	Absent          bool              `json:"absent,omitempty"`
	Durable         bool              `json:"durable,omitempty"`
}

// ObserveMessage opens a presence subscription. The client picks the
// subscription ID so updates can be routed before the server replies.
type ObserveMessage struct {
	Type           string            `json:"type" validate:"required,eq=observe"`
	SubscriptionID string            `json:"subscriptionId" validate:"required,uuid4"`
	Matcher        location.Location `json:"matcher" validate:"required"`
	PartialMatch   bool              `json:"partialMatch,omitempty"`
	ExcludeDurable bool              `json:"excludeDurable,omitempty"`
}

// UnobserveMessage closes a previously opened subscription.
type UnobserveMessage struct {
	Type           string `json:"type" validate:"required,eq=unobserve"`
	SubscriptionID string `json:"subscriptionId" validate:"required,uuid4"`
}

// PresenceUpdateMessage delivers observer updates to the client.
type PresenceUpdateMessage struct {
	Type           string       `json:"type"`
	SubscriptionID string       `json:"subscriptionId"`
	Updates        []UserUpdate `json:"updates"`
}

// UserUpdate mirrors presence.UserLocationData on the wire.
type UserUpdate struct {
	ID        string              `json:"id"`
	Locations []location.Location `json:"locations"`
	Durable   *DurableUpdate      `json:"durable,omitempty"`
}

// DurableUpdate is the wire form of a persisted presence record.
type DurableUpdate struct {
	Location  location.Location `json:"location"`
	Timestamp int64             `json:"timestamp"`
}

// ErrorMessage reports a rejected request without closing the connection.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// SanitizeLocation normalizes loc and strips any markup from its string
// values. Locations echo back to every observer in the group, so string
// values are treated as untrusted input.
func SanitizeLocation(policy *bluemonday.Policy, loc location.Location) (location.Location, error) {
	normalized, err := loc.Normalize()
	if err != nil {
		return nil, err
	}
	for key, value := range normalized {
		if s, ok := value.(string); ok {
			normalized[key] = policy.Sanitize(s)
		}
	}
	return normalized, nil
}

// validateMessage runs struct validation and wraps failures with the
// message type for the error reply.
func validateMessage(v *validator.Validate, msgType string, msg any) error {
	if err := v.Struct(msg); err != nil {
		return fmt.Errorf("invalid %s message: %w", msgType, err)
	}
	return nil
}
