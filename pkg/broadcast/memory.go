package broadcast

import (
	"context"
	"sync"
)

// MemoryBroadcaster delivers messages within the process.
type MemoryBroadcaster[T any] struct {
	mu          sync.RWMutex
	subscribers map[*subscriber[T]]struct{}
	bufferSize  int
	keepSlow    bool
	closed      bool
	done        chan struct{}
	wg          sync.WaitGroup
}

// MemoryOption configures a MemoryBroadcaster.
type MemoryOption func(*memoryOptions)

type memoryOptions struct {
	keepSlow bool
}

// WithKeepSlowSubscribers makes Broadcast skip a subscriber whose buffer is
// full instead of dropping it. The subscriber misses only that message.
func WithKeepSlowSubscribers() MemoryOption {
	return func(o *memoryOptions) { o.keepSlow = true }
}

// NewMemoryBroadcaster creates a broadcaster whose subscribers buffer up to
// bufferSize messages (at least 1).
func NewMemoryBroadcaster[T any](bufferSize int, opts ...MemoryOption) *MemoryBroadcaster[T] {
	var o memoryOptions
	for _, opt := range opts {
		opt(&o)
	}
	return &MemoryBroadcaster[T]{
		subscribers: make(map[*subscriber[T]]struct{}),
		bufferSize:  max(bufferSize, 1),
		keepSlow:    o.keepSlow,
		done:        make(chan struct{}),
	}
}

// Subscribe returns a closed subscriber and ErrClosed after Close.
func (b *MemoryBroadcaster[T]) Subscribe(ctx context.Context) (Subscriber[T], error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return closedSubscriber[T](), ErrClosed
	}

	sub := newSubscriber[T](b.bufferSize)
	sub.onClose = func() { b.remove(sub) }
	b.subscribers[sub] = struct{}{}

	if ctx.Done() != nil {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			select {
			case <-ctx.Done():
				_ = sub.Close()
			case <-b.done:
			}
		}()
	}
	return sub, nil
}

// Broadcast drops subscribers whose buffer is full unless the broadcaster was
// created WithKeepSlowSubscribers.
func (b *MemoryBroadcaster[T]) Broadcast(_ context.Context, msg Message[T]) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	var slow []*subscriber[T]
	for sub := range b.subscribers {
		if !sub.send(msg) && !b.keepSlow {
			slow = append(slow, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range slow {
		_ = sub.Close()
	}
	return nil
}

// Close closes every subscriber. Safe to call more than once.
func (b *MemoryBroadcaster[T]) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.done)
	subs := make([]*subscriber[T], 0, len(b.subscribers))
	for sub := range b.subscribers {
		subs = append(subs, sub)
	}
	clear(b.subscribers)
	b.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Close()
	}
	b.wg.Wait()
	return nil
}

// Len returns the number of active subscribers.
func (b *MemoryBroadcaster[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

func (b *MemoryBroadcaster[T]) remove(sub *subscriber[T]) {
	b.mu.Lock()
	delete(b.subscribers, sub)
	b.mu.Unlock()
}
