package authcore

import (
	"sync"
	"time"
)

// RateCounter bounds how often a given caller identity may attempt an
// operation. It is injected where needed rather than held as process-wide
// mutable state, so each surface owns its own limits.
type RateCounter interface {
	// Allow records an attempt for the key and reports whether it is
	// within the configured limit.
	Allow(key string) bool
}

// SlidingWindowCounter is an in-memory RateCounter counting attempts per
// key over a rolling window.
type SlidingWindowCounter struct {
	mutex  sync.Mutex
	hits   map[string][]time.Time
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewSlidingWindowCounter allows at most limit attempts per key within
// the window.
func NewSlidingWindowCounter(limit int, window time.Duration) *SlidingWindowCounter {
	return &SlidingWindowCounter{
		hits:   make(map[string][]time.Time),
		limit:  limit,
		window: window,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Allow records an attempt and reports whether the key stays under the
// limit.
func (counter *SlidingWindowCounter) Allow(key string) bool {
	counter.mutex.Lock()
	defer counter.mutex.Unlock()
	now := counter.now()
	recent := counter.pruneLocked(key, now)
	if len(recent) >= counter.limit {
		counter.hits[key] = recent
		return false
	}
	counter.hits[key] = append(recent, now)
	return true
}

func (counter *SlidingWindowCounter) pruneLocked(key string, now time.Time) []time.Time {
	cutoff := now.Add(-counter.window)
	previous := counter.hits[key]
	recent := previous[:0]
	for _, at := range previous {
		if at.After(cutoff) {
			recent = append(recent, at)
		}
	}
	if len(recent) == 0 {
		delete(counter.hits, key)
		return nil
	}
	return recent
}
