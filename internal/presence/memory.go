package presence

import (
	"context"

	"github.com/collabware/livecursor/internal/location"
)

// MemoryClient binds a Service to one authenticated user, giving in-process
// callers (tests, the demo) the same Client surface the websocket client
// provides.
type MemoryClient struct {
	svc     *Service
	groupID string
	userID  string
}

func NewMemoryClient(svc *Service, groupID, userID string) *MemoryClient {
	return &MemoryClient{svc: svc, groupID: groupID, userID: userID}
}

func (c *MemoryClient) SetPresent(ctx context.Context, loc location.Location, opts SetOptions) error {
	groupID := opts.GroupID
	if groupID == "" {
		groupID = c.groupID
	}
	return c.svc.SetPresent(ctx, groupID, c.userID, loc, opts)
}

func (c *MemoryClient) ObservePresence(matcher location.Location, fn UpdateFunc, opts ObserveOptions) (Subscription, error) {
	return c.svc.Observe(c.groupID, matcher, fn, opts)
}

func (c *MemoryClient) UnobservePresence(sub Subscription) error {
	return c.svc.Unobserve(sub)
}

var _ Client = (*MemoryClient)(nil)
