package services

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// RateLimiter enforces the per-(conversation, sender) message quota with a
// sliding window. It is a soft guard against runaway clients, not a security
// boundary, so an in-process counter is enough; each instance protects its
// own write path.
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	buckets map[rateKey][]time.Time
	now     func() time.Time
}

type rateKey struct {
	conversationID uuid.UUID
	senderID       uuid.UUID
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		window:  window,
		buckets: make(map[rateKey][]time.Time),
		now:     time.Now,
	}
}

// Allow records an attempt and reports whether it fits the quota. The call
// that exceeds the limit is rejected; the prior ones all stand.
func (rl *RateLimiter) Allow(conversationID, senderID uuid.UUID) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	key := rateKey{conversationID: conversationID, senderID: senderID}
	now := rl.now()
	cutoff := now.Add(-rl.window)

	stamps := rl.buckets[key]
	kept := stamps[:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= rl.limit {
		rl.buckets[key] = kept
		return false
	}
	rl.buckets[key] = append(kept, now)
	return true
}
