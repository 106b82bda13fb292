package relay

import (
	"sync"

	"golang.org/x/time/rate"
)

// SenderLimiter throttles message sends per user. Each sender gets an
// independent token bucket; typing signals and presence events are not
// limited.
type SenderLimiter struct {
	mu      sync.Mutex
	senders map[string]*rate.Limiter
	limit   rate.Limit
	burst   int
}

// NewSenderLimiter allows perMinute sends sustained, with burst headroom
// for a user pasting a few messages back to back.
func NewSenderLimiter(perMinute, burst int) *SenderLimiter {
	if perMinute <= 0 {
		perMinute = 100
	}
	if burst <= 0 {
		burst = 20
	}
	return &SenderLimiter{
		senders: make(map[string]*rate.Limiter),
		limit:   rate.Limit(float64(perMinute) / 60.0),
		burst:   burst,
	}
}

// Allow reports whether the sender may send one more message now.
func (l *SenderLimiter) Allow(userID string) bool {
	l.mu.Lock()
	limiter, ok := l.senders[userID]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.senders[userID] = limiter
	}
	l.mu.Unlock()
	return limiter.Allow()
}

// Forget drops the sender's bucket, typically when the user goes
// offline, so the map does not grow with every identity ever seen.
func (l *SenderLimiter) Forget(userID string) {
	l.mu.Lock()
	delete(l.senders, userID)
	l.mu.Unlock()
}
