package authcore

import (
	"testing"
	"time"
)

func TestSlidingWindowCounterLimits(t *testing.T) {
	current := time.Now().UTC()
	counter := NewSlidingWindowCounter(3, time.Minute)
	counter.now = func() time.Time { return current }

	for i := 0; i < 3; i++ {
		if !counter.Allow("client-a") {
			t.Fatalf("attempt %d must be allowed", i+1)
		}
	}
	if counter.Allow("client-a") {
		t.Fatalf("fourth attempt inside the window must be denied")
	}
	// Independent keys do not share the budget.
	if !counter.Allow("client-b") {
		t.Fatalf("a different key must be unaffected")
	}
}

func TestSlidingWindowCounterExpiresAttempts(t *testing.T) {
	current := time.Now().UTC()
	counter := NewSlidingWindowCounter(2, time.Minute)
	counter.now = func() time.Time { return current }

	if !counter.Allow("client-a") || !counter.Allow("client-a") {
		t.Fatalf("first two attempts must be allowed")
	}
	if counter.Allow("client-a") {
		t.Fatalf("third attempt must be denied")
	}

	current = current.Add(61 * time.Second)
	if !counter.Allow("client-a") {
		t.Fatalf("attempts outside the window must not count")
	}
}
