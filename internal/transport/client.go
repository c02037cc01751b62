package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/collabware/livecursor/internal/location"
	"github.com/collabware/livecursor/internal/presence"
)

// Client is a presence client backed by a websocket connection to a
// Server. It binds the user and group negotiated during the handshake.
type Client struct {
	ws      *websocket.Conn
	writeMu sync.Mutex

	mu   sync.Mutex
	subs map[presence.Subscription]presence.UpdateFunc

	userID  string
	groupID string
	color   string

	closeOnce sync.Once
	done      chan struct{}
}

var _ presence.Client = (*Client)(nil)

// Dial connects to a presence server and completes the authentication
// handshake. An empty userID asks the server to assign one.
func Dial(ctx context.Context, url, userID, groupID string) (*Client, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	auth, err := json.Marshal(AuthMessage{
		Type:    MsgAuthenticate,
		UserID:  userID,
		GroupID: groupID,
	})
	if err != nil {
		ws.Close()
		return nil, fmt.Errorf("marshal auth message: %w", err)
	}
	if err := ws.WriteMessage(websocket.TextMessage, auth); err != nil {
		ws.Close()
		return nil, fmt.Errorf("send auth message: %w", err)
	}

	ws.SetReadDeadline(time.Now().Add(authTimeout))
	_, msg, err := ws.ReadMessage()
	if err != nil {
		ws.Close()
		return nil, fmt.Errorf("read auth response: %w", err)
	}
	ws.SetReadDeadline(time.Time{})

	var resp AuthenticatedMessage
	if err := json.Unmarshal(msg, &resp); err != nil {
		ws.Close()
		return nil, fmt.Errorf("unmarshal auth response: %w", err)
	}
	if resp.Type != MsgAuthenticated {
		ws.Close()
		return nil, fmt.Errorf("expected %s message, got: %s", MsgAuthenticated, resp.Type)
	}

	c := &Client{
		ws:      ws,
		subs:    make(map[presence.Subscription]presence.UpdateFunc),
		userID:  resp.UserID,
		groupID: resp.GroupID,
		color:   resp.Color,
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// UserID returns the identity the server settled on during the
// handshake.
func (c *Client) UserID() string { return c.userID }

// Color returns the session color assigned by the server.
func (c *Client) Color() string { return c.color }

// SetPresent records or withdraws presence. Delivery is fire-and-forget:
// only transport failures are reported. The connection is bound to the
// group negotiated at handshake; opts.GroupID may be empty or equal to it,
// anything else is an error rather than a silently ignored redirect.
func (c *Client) SetPresent(_ context.Context, loc location.Location, opts presence.SetOptions) error {
	if opts.GroupID != "" && opts.GroupID != c.groupID {
		return fmt.Errorf("connection is bound to group %q, cannot set presence in group %q", c.groupID, opts.GroupID)
	}
	return c.send(SetPresentMessage{
		Type:            MsgSetPresent,
		Location:        loc,
		ExclusiveWithin: opts.ExclusiveWithin,
		Absent:          opts.Absent,
		Durable:         opts.Durable,
	})
}

// ObservePresence opens a subscription on the server. The callback is
// registered before the request is sent so the initial snapshot cannot
// race past it.
func (c *Client) ObservePresence(matcher location.Location, fn presence.UpdateFunc, opts presence.ObserveOptions) (presence.Subscription, error) {
	sub := presence.Subscription(uuid.NewString())

	c.mu.Lock()
	c.subs[sub] = fn
	c.mu.Unlock()

	err := c.send(ObserveMessage{
		Type:           MsgObserve,
		SubscriptionID: string(sub),
		Matcher:        matcher,
		PartialMatch:   opts.PartialMatch,
		ExcludeDurable: opts.ExcludeDurable,
	})
	if err != nil {
		c.mu.Lock()
		delete(c.subs, sub)
		c.mu.Unlock()
		return "", err
	}
	return sub, nil
}

// UnobservePresence closes a subscription opened on this client.
func (c *Client) UnobservePresence(sub presence.Subscription) error {
	c.mu.Lock()
	_, exists := c.subs[sub]
	delete(c.subs, sub)
	c.mu.Unlock()

	if !exists {
		return fmt.Errorf("unknown subscription: %s", sub)
	}

	return c.send(UnobserveMessage{
		Type:           MsgUnobserve,
		SubscriptionID: string(sub),
	})
}

// Close tears down the connection. Server-side subscriptions are
// released when the connection drops.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
		c.ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()

		err = c.ws.Close()
		<-c.done
	})
	return err
}

func (c *Client) send(v any) error {
	msg, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func (c *Client) readLoop() {
	defer close(c.done)

	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			return // Connection dead
		}

		var envelope struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(msg, &envelope); err != nil {
			log.Println("Error: Invalid server message:", err)
			continue
		}

		switch envelope.Type {
		case MsgPresenceUpdate:
			c.handleUpdate(msg)
		case MsgError:
			var serverErr ErrorMessage
			if err := json.Unmarshal(msg, &serverErr); err == nil {
				log.Printf("Server rejected request for user %s: %s", c.userID, serverErr.Message)
			}
		default:
			log.Println("Error: Unknown server message type:", envelope.Type)
		}
	}
}

func (c *Client) handleUpdate(msg []byte) {
	var update PresenceUpdateMessage
	if err := json.Unmarshal(msg, &update); err != nil {
		log.Println("Error: Invalid presence update:", err)
		return
	}

	c.mu.Lock()
	fn := c.subs[presence.Subscription(update.SubscriptionID)]
	c.mu.Unlock()
	if fn == nil {
		return // Subscription already closed locally
	}

	fn(fromWireUpdates(update.Updates))
}

func fromWireUpdates(wire []UserUpdate) []presence.UserLocationData {
	updates := make([]presence.UserLocationData, 0, len(wire))
	for _, wu := range wire {
		u := presence.UserLocationData{
			ID:        wu.ID,
			Ephemeral: presence.EphemeralPresence{Locations: wu.Locations},
		}
		if wu.Durable != nil {
			u.Durable = &presence.DurableRecord{
				Location:  wu.Durable.Location,
				Timestamp: time.UnixMilli(wu.Durable.Timestamp),
			}
		}
		updates = append(updates, u)
	}
	return updates
}
