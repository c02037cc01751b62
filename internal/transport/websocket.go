package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/microcosm-cc/bluemonday"

	"github.com/collabware/livecursor/internal/location"
	"github.com/collabware/livecursor/internal/middleware"
	"github.com/collabware/livecursor/internal/presence"
)

const (
	authTimeout  = 5 * time.Second
	writeTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	// CORS
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("origin")

		allowedDomains := strings.Split(os.Getenv("DOMAINS"), ",")

		for _, allowed := range allowedDomains {
			if origin == strings.TrimSpace(allowed) {
				return true
			}
		}

		return false
	},
}

// GetClientIP extracts the real client IP from the request
func GetClientIP(r *http.Request) string {
	// X-Forwarded-For
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	// X-Real-IP
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	// Fall back to RemoteAddr
	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx] // Remove port
	}
	return ip
}

// Server exposes the presence service over websocket connections.
type Server struct {
	svc       *presence.Service
	sessions  *SessionManager
	limits    *middleware.Limits
	ipLimiter *middleware.IPRateLimit
	validate  *validator.Validate
	sanitizer *bluemonday.Policy
}

// NewServer creates a websocket server backed by svc.
func NewServer(svc *presence.Service, sessions *SessionManager, limits *middleware.Limits, ipLimiter *middleware.IPRateLimit) *Server {
	return &Server{
		svc:       svc,
		sessions:  sessions,
		limits:    limits,
		ipLimiter: ipLimiter,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		sanitizer: bluemonday.StrictPolicy(),
	}
}

// conn wraps a websocket connection with a write lock and the
// subscriptions opened on it.
type conn struct {
	ws   *websocket.Conn
	mu   sync.Mutex
	subs map[string]presence.Subscription
}

// write marshals v and sends it as a single text message.
func (c *conn) write(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, msg)
}

func (c *conn) writeError(err error) {
	c.write(ErrorMessage{Type: MsgError, Message: err.Error()})
}

// HandleWebSocket upgrades HTTP to WebSocket and runs the session
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Check if rate limited
	clientIP := GetClientIP(r)
	if !s.ipLimiter.Allow(clientIP) {
		log.Printf("Rate limit exceeded for IP: %s", clientIP)
		http.Error(w, "Too many connections", http.StatusTooManyRequests)
		return
	}

	// Upgrade connection
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("Error upgrading connection -", err)
		return
	}
	defer ws.Close()

	// Wait for authentication message with timeout
	ws.SetReadDeadline(time.Now().Add(authTimeout))
	_, msg, err := ws.ReadMessage()
	if err != nil {
		log.Println("Error: Failed to receive auth message:", err)
		return
	}
	ws.SetReadDeadline(time.Time{}) // Clear timeout

	var authMsg AuthMessage
	if err := json.Unmarshal(msg, &authMsg); err != nil {
		log.Println("Error: Invalid auth message format:", err)
		return
	}
	if err := validateMessage(s.validate, MsgAuthenticate, authMsg); err != nil {
		log.Println("Error:", err)
		return
	}

	// Get or generate userID
	userID := authMsg.UserID
	if userID == "" {
		userID = uuid.NewString()
	}

	session := s.sessions.GetOrCreate(userID)

	c := &conn{
		ws:   ws,
		subs: make(map[string]presence.Subscription),
	}

	// Send userID back to client (for new users or confirmation)
	if err := c.write(AuthenticatedMessage{
		Type:    MsgAuthenticated,
		UserID:  userID,
		GroupID: authMsg.GroupID,
		Color:   session.Color,
	}); err != nil {
		log.Println("Error: Failed to send auth response:", err)
		return
	}

	s.run(c, session, authMsg.GroupID)

	// Release every subscription the connection left open
	for _, sub := range c.subs {
		if err := s.svc.Unobserve(sub); err != nil {
			log.Printf("Error releasing subscription for user %s: %v", userID, err)
		}
	}
}

// run handles the message loop for an authenticated connection
func (s *Server) run(c *conn, session *Session, groupID string) {
	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			log.Println("Error: Reading message", err)
			break // Connection dead
		}

		s.sessions.UpdateLastSeen(session.UserID, time.Now())

		// Validate message size
		if !s.limits.ValidateMessageSize(len(msg)) {
			log.Printf("Message too large from user %s: %d bytes", session.UserID, len(msg))
			continue // Drop oversized message
		}

		// Check rate limit from session
		if !session.RateLimiter.Allow() {
			log.Printf("Rate limit exceeded for user: %s", session.UserID)
			continue // Drop message
		}

		if err := s.route(c, session, groupID, msg); err != nil {
			log.Printf("Error handling message from user %s: %v", session.UserID, err)
			c.writeError(err)
			continue // Skip message
		}
	}
}

// route dispatches a message to the handler for its type
func (s *Server) route(c *conn, session *Session, groupID string, msg []byte) error {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &envelope); err != nil {
		return fmt.Errorf("unmarshal base message: %w", err)
	}

	switch envelope.Type {
	case MsgSetPresent:
		return s.handleSetPresent(session, groupID, msg)
	case MsgObserve:
		return s.handleObserve(c, groupID, msg)
	case MsgUnobserve:
		return s.handleUnobserve(c, msg)
	default:
		return fmt.Errorf("unknown message type: %s", envelope.Type)
	}
}

func (s *Server) handleSetPresent(session *Session, groupID string, msg []byte) error {
	var req SetPresentMessage
	if err := json.Unmarshal(msg, &req); err != nil {
		return fmt.Errorf("unmarshal setPresent: %w", err)
	}
	if err := validateMessage(s.validate, MsgSetPresent, req); err != nil {
		return err
	}

	loc, err := SanitizeLocation(s.sanitizer, req.Location)
	if err != nil {
		return fmt.Errorf("setPresent location: %w", err)
	}

	// Throttle cursor position updates (~30fps). Withdrawals always pass
	// so a leaving cursor is never left on screen.
	if _, isCursor := loc[location.MarkerKey]; isCursor && !req.Absent {
		if !session.CursorThrottle.Allow() {
			return nil // Ignore to throttle
		}
	}

	opts := presence.SetOptions{
		Absent:  req.Absent,
		Durable: req.Durable,
	}
	if req.ExclusiveWithin != nil {
		opts.ExclusiveWithin, err = SanitizeLocation(s.sanitizer, req.ExclusiveWithin)
		if err != nil {
			return fmt.Errorf("setPresent exclusiveWithin: %w", err)
		}
	}

	return s.svc.SetPresent(context.Background(), groupID, session.UserID, loc, opts)
}

func (s *Server) handleObserve(c *conn, groupID string, msg []byte) error {
	var req ObserveMessage
	if err := json.Unmarshal(msg, &req); err != nil {
		return fmt.Errorf("unmarshal observe: %w", err)
	}
	if err := validateMessage(s.validate, MsgObserve, req); err != nil {
		return err
	}

	if !s.limits.CanSubscribe(len(c.subs)) {
		return fmt.Errorf("subscription limit reached")
	}
	if _, exists := c.subs[req.SubscriptionID]; exists {
		return fmt.Errorf("subscription %s already open", req.SubscriptionID)
	}

	matcher, err := SanitizeLocation(s.sanitizer, req.Matcher)
	if err != nil {
		return fmt.Errorf("observe matcher: %w", err)
	}

	subID := req.SubscriptionID
	sub, err := s.svc.Observe(groupID, matcher, func(updates []presence.UserLocationData) {
		if err := c.write(PresenceUpdateMessage{
			Type:           MsgPresenceUpdate,
			SubscriptionID: subID,
			Updates:        toWireUpdates(updates),
		}); err != nil {
			log.Printf("Error delivering update for subscription %s: %v", subID, err)
		}
	}, presence.ObserveOptions{
		PartialMatch:   req.PartialMatch,
		ExcludeDurable: req.ExcludeDurable,
	})
	if err != nil {
		return fmt.Errorf("observe: %w", err)
	}

	c.subs[subID] = sub
	return nil
}

func (s *Server) handleUnobserve(c *conn, msg []byte) error {
	var req UnobserveMessage
	if err := json.Unmarshal(msg, &req); err != nil {
		return fmt.Errorf("unmarshal unobserve: %w", err)
	}
	if err := validateMessage(s.validate, MsgUnobserve, req); err != nil {
		return err
	}

	sub, exists := c.subs[req.SubscriptionID]
	if !exists {
		return fmt.Errorf("unknown subscription: %s", req.SubscriptionID)
	}
	delete(c.subs, req.SubscriptionID)

	return s.svc.Unobserve(sub)
}

func toWireUpdates(updates []presence.UserLocationData) []UserUpdate {
	wire := make([]UserUpdate, 0, len(updates))
	for _, u := range updates {
		wu := UserUpdate{
			ID:        u.ID,
			Locations: u.Ephemeral.Locations,
		}
		if u.Durable != nil {
			wu.Durable = &DurableUpdate{
				Location:  u.Durable.Location,
				Timestamp: u.Durable.Timestamp.UnixMilli(),
			}
		}
		wire = append(wire, wu)
	}
	return wire
}
