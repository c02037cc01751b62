package transport

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/collabware/livecursor/internal/debounce"
	"github.com/collabware/livecursor/internal/middleware"
	"github.com/collabware/livecursor/internal/user"
)

// cursorUpdateGap caps how often a single user's cursor presence is
// fanned out, roughly 30fps.
const cursorUpdateGap = 33 * time.Millisecond

// Session holds per-user connection state that survives reconnects.
type Session struct {
	UserID         string
	Color          string
	LastSeen       time.Time
	RateLimiter    *rate.Limiter
	CursorThrottle *debounce.Throttler
}

// SessionManager manages user sessions
type SessionManager struct {
	sessions map[string]*Session
	limits   *middleware.Limits
	colors   *user.ColorGenerator
	mu       sync.RWMutex
}

// NewSessionManager creates a new session manager
func NewSessionManager(limits *middleware.Limits) *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*Session),
		limits:   limits,
		colors:   user.NewColorGenerator(),
	}
}

// GetOrCreate gets an existing session or creates a new one
func (sm *SessionManager) GetOrCreate(userID string) *Session {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	session, exists := sm.sessions[userID]
	if exists {
		session.LastSeen = time.Now()
		return session
	}

	// Create new session with persistent color
	session = &Session{
		UserID:         userID,
		Color:          sm.colors.NextColor(),
		LastSeen:       time.Now(),
		RateLimiter:    sm.limits.NewSessionLimiter(),
		CursorThrottle: debounce.NewThrottler(cursorUpdateGap),
	}
	sm.sessions[userID] = session
	return session
}

// UpdateLastSeen updates the last seen time for a user session
func (sm *SessionManager) UpdateLastSeen(userID string, lastSeen time.Time) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if session, exists := sm.sessions[userID]; exists {
		session.LastSeen = lastSeen
	}
}

// Cleanup removes sessions inactive for 1 hour
func (sm *SessionManager) Cleanup() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	now := time.Now()
	for userID, session := range sm.sessions {
		if now.Sub(session.LastSeen) > 1*time.Hour {
			delete(sm.sessions, userID)
		}
	}
}
