package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/saasbilling/pkg/logger"
)

// RedisBroadcaster delivers JSON-encoded messages over a Redis pub/sub channel.
// Every process subscribed to the same channel receives every message,
// including its own.
type RedisBroadcaster[T any] struct {
	client     redis.UniversalClient
	channel    string
	bufferSize int
	log        *slog.Logger

	mu     sync.Mutex
	closed bool
	subs   map[*redisSubscriber[T]]struct{}
}

// RedisOption configures a RedisBroadcaster.
type RedisOption func(*redisOptions)

type redisOptions struct {
	bufferSize int
	log        *slog.Logger
}

func WithBufferSize(n int) RedisOption {
	return func(o *redisOptions) { o.bufferSize = n }
}

func WithLogger(l *slog.Logger) RedisOption {
	return func(o *redisOptions) {
		if l != nil {
			o.log = l
		}
	}
}

// NewRedisBroadcaster pings Redis before returning so callers can fall back
// to another transport when it is unreachable.
func NewRedisBroadcaster[T any](ctx context.Context, client redis.UniversalClient, channel string, opts ...RedisOption) (*RedisBroadcaster[T], error) {
	if client == nil {
		return nil, ErrNilClient
	}
	o := redisOptions{bufferSize: 16, log: logger.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Join(ErrUnreachable, err)
	}
	return &RedisBroadcaster[T]{
		client:     client,
		channel:    channel,
		bufferSize: max(o.bufferSize, 1),
		log:        o.log.With(logger.Component("broadcast"), logger.Channel(channel)),
		subs:       make(map[*redisSubscriber[T]]struct{}),
	}, nil
}

func (b *RedisBroadcaster[T]) Broadcast(ctx context.Context, msg Message[T]) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrClosed
	}

	payload, err := json.Marshal(msg.Data)
	if err != nil {
		return errors.Join(ErrEncode, err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return errors.Join(ErrUnreachable, err)
	}
	return nil
}

// Subscribe opens a dedicated pub/sub connection and waits for Redis to
// confirm the subscription.
func (b *RedisBroadcaster[T]) Subscribe(ctx context.Context) (Subscriber[T], error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return closedSubscriber[T](), ErrClosed
	}
	b.mu.Unlock()

	ps := b.client.Subscribe(ctx, b.channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return closedSubscriber[T](), errors.Join(ErrUnreachable, err)
	}

	rs := &redisSubscriber[T]{
		subscriber: newSubscriber[T](b.bufferSize),
		ps:         ps,
		stop:       make(chan struct{}),
	}
	rs.onClose = func() {
		close(rs.stop)
		_ = ps.Close()
		b.mu.Lock()
		delete(b.subs, rs)
		b.mu.Unlock()
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		_ = rs.Close()
		return rs, ErrClosed
	}
	b.subs[rs] = struct{}{}
	b.mu.Unlock()

	go b.pump(ctx, rs)
	return rs, nil
}

func (b *RedisBroadcaster[T]) pump(ctx context.Context, rs *redisSubscriber[T]) {
	defer func() { _ = rs.Close() }()

	ch := rs.ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case <-rs.stop:
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			var data T
			if err := json.Unmarshal([]byte(m.Payload), &data); err != nil {
				b.log.Warn("dropping undecodable message", logger.Error(err))
				continue
			}
			if !rs.send(Message[T]{Data: data}) {
				b.log.Warn("subscriber closed or too slow, dropping it")
				return
			}
		}
	}
}

// Close closes every subscriber. The Redis client is left open.
func (b *RedisBroadcaster[T]) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := make([]*redisSubscriber[T], 0, len(b.subs))
	for rs := range b.subs {
		subs = append(subs, rs)
	}
	b.mu.Unlock()

	for _, rs := range subs {
		_ = rs.Close()
	}
	return nil
}

type redisSubscriber[T any] struct {
	*subscriber[T]
	ps   *redis.PubSub
	stop chan struct{}
}
