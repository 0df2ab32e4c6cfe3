package services

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestRateLimiterQuota(t *testing.T) {
	limiter := NewRateLimiter(3, time.Minute)
	now := time.Now()
	limiter.now = func() time.Time { return now }

	conversationID := uuid.New()
	senderID := uuid.New()

	for i := 0; i < 3; i++ {
		if !limiter.Allow(conversationID, senderID) {
			t.Fatalf("attempt %d should be allowed", i+1)
		}
	}
	if limiter.Allow(conversationID, senderID) {
		t.Fatal("attempt over the limit was allowed")
	}
}

func TestRateLimiterWindowSlides(t *testing.T) {
	limiter := NewRateLimiter(2, time.Minute)
	now := time.Now()
	limiter.now = func() time.Time { return now }

	conversationID := uuid.New()
	senderID := uuid.New()

	limiter.Allow(conversationID, senderID)
	limiter.Allow(conversationID, senderID)
	if limiter.Allow(conversationID, senderID) {
		t.Fatal("third attempt within the window was allowed")
	}

	now = now.Add(61 * time.Second)
	if !limiter.Allow(conversationID, senderID) {
		t.Fatal("attempt after the window slid was denied")
	}
}

func TestRateLimiterKeysAreIndependent(t *testing.T) {
	limiter := NewRateLimiter(1, time.Minute)

	conversationID := uuid.New()
	alice := uuid.New()
	bob := uuid.New()

	if !limiter.Allow(conversationID, alice) {
		t.Fatal("alice's first attempt denied")
	}
	if limiter.Allow(conversationID, alice) {
		t.Fatal("alice's second attempt allowed")
	}
	// Bob's quota on the same conversation is separate.
	if !limiter.Allow(conversationID, bob) {
		t.Fatal("bob's first attempt denied")
	}
	// So is alice's quota on another conversation.
	if !limiter.Allow(uuid.New(), alice) {
		t.Fatal("alice's attempt on another conversation denied")
	}
}
