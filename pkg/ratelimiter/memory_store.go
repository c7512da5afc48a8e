package ratelimiter

import (
	"context"
	"sync"
	"time"
)

// pruneEvery is how many Take calls pass between sweeps for full buckets.
const pruneEvery = 1024

type bucketState struct {
	tokens int
	last   time.Time // start of the current refill interval
}

// MemoryStore keeps buckets in process. A full bucket behaves exactly like
// an absent one, so full buckets are dropped periodically.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*bucketState
	now     func() time.Time
	calls   int
}

type MemoryOption func(*MemoryStore)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		buckets: make(map[string]*bucketState),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Take(_ context.Context, key string, cfg Config) (int, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	b, ok := s.buckets[key]
	if !ok {
		b = &bucketState{tokens: cfg.Capacity, last: now}
		s.buckets[key] = b
	}
	refill(b, cfg, now)

	remaining := -1
	if b.tokens > 0 {
		b.tokens--
		remaining = b.tokens
	}
	resetAt := b.last.Add(cfg.RefillInterval)

	s.calls++
	if s.calls%pruneEvery == 0 {
		s.prune(cfg, now)
	}
	return remaining, resetAt, nil
}

func (s *MemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.buckets, key)
	s.mu.Unlock()
	return nil
}

// Len reports the number of tracked buckets.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

// prune assumes every bucket shares cfg, which holds for one store per Bucket.
func (s *MemoryStore) prune(cfg Config, now time.Time) {
	for key, b := range s.buckets {
		refill(b, cfg, now)
		if b.tokens >= cfg.Capacity {
			delete(s.buckets, key)
		}
	}
}

func refill(b *bucketState, cfg Config, now time.Time) {
	if elapsed := now.Sub(b.last); elapsed >= cfg.RefillInterval {
		n := int(elapsed / cfg.RefillInterval)
		if n >= cfg.Capacity {
			b.tokens = cfg.Capacity
		} else {
			b.tokens = min(cfg.Capacity, b.tokens+n*cfg.RefillRate)
		}
		b.last = b.last.Add(time.Duration(n) * cfg.RefillInterval)
	}
	if b.tokens >= cfg.Capacity {
		b.last = now
	}
}
