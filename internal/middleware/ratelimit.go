package middleware

import (
	"golang.org/x/time/rate"
)

// Limits bound what a single connection or the server as a whole will
// accept.
type Limits struct {
	MaxMessageSize          int
	MaxSubscriptionsPerConn int
	MessagesPerSecond       float64
	BurstSize               int
}

// DefaultLimits: presence traffic is tiny but frequent; cursor updates
// arrive at most every position-update interval per client.
func DefaultLimits() *Limits {
	return &Limits{
		MaxMessageSize:          16 * 1024,
		MaxSubscriptionsPerConn: 16,
		MessagesPerSecond:       30,
		BurstSize:               10,
	}
}

// ValidateMessageSize: check if a message is within the size limit
func (l *Limits) ValidateMessageSize(msgSize int) bool {
	return msgSize <= l.MaxMessageSize
}

// CanSubscribe: check if a connection has room for another subscription
func (l *Limits) CanSubscribe(current int) bool {
	return current < l.MaxSubscriptionsPerConn
}

// NewSessionLimiter: per-connection message rate limiter
func (l *Limits) NewSessionLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Limit(l.MessagesPerSecond), l.BurstSize)
}
