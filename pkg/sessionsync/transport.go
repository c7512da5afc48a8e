package sessionsync

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/saasbilling/pkg/broadcast"
	"github.com/dmitrymomot/saasbilling/pkg/logger"
)

// TransportKind names the transport a channel selected during Init.
type TransportKind string

const (
	TransportNone      TransportKind = ""
	TransportBroadcast TransportKind = "broadcast"
	TransportStorage   TransportKind = "storage"
)

// TransportFactory constructs the primary transport for a channel name.
// An error makes the channel fall back to Storage.
type TransportFactory func(ctx context.Context, name string) (broadcast.Broadcaster[Envelope], error)

// MemoryTransports returns a factory sharing one in-process broadcaster per
// channel name.
func MemoryTransports(bufferSize int) TransportFactory {
	return NewMemoryHubs(bufferSize).Transport
}

// MemoryHubs hands out one in-process broadcaster per channel name. A hub is
// closed and forgotten once every channel using it has closed. Slow
// receivers miss messages rather than being disconnected.
type MemoryHubs struct {
	bufferSize int

	mu   sync.Mutex
	hubs map[string]*memoryHub
}

type memoryHub struct {
	b    *broadcast.MemoryBroadcaster[Envelope]
	refs int
}

func NewMemoryHubs(bufferSize int) *MemoryHubs {
	return &MemoryHubs{bufferSize: bufferSize, hubs: make(map[string]*memoryHub)}
}

// Transport is a TransportFactory. The returned broadcaster holds a lease on
// the hub until its subscriber or the broadcaster itself is closed.
func (m *MemoryHubs) Transport(_ context.Context, name string) (broadcast.Broadcaster[Envelope], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.hubs[name]
	if !ok {
		h = &memoryHub{b: broadcast.NewMemoryBroadcaster[Envelope](m.bufferSize, broadcast.WithKeepSlowSubscribers())}
		m.hubs[name] = h
	}
	h.refs++

	var once sync.Once
	return &hubLease{
		MemoryBroadcaster: h.b,
		release:           func() { once.Do(func() { m.release(name, h) }) },
	}, nil
}

// Len returns the number of live hubs.
func (m *MemoryHubs) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.hubs)
}

func (m *MemoryHubs) release(name string, h *memoryHub) {
	m.mu.Lock()
	h.refs--
	last := h.refs == 0
	if last {
		delete(m.hubs, name)
	}
	m.mu.Unlock()

	if last {
		_ = h.b.Close()
	}
}

type hubLease struct {
	*broadcast.MemoryBroadcaster[Envelope]
	release func()
}

func (l *hubLease) Subscribe(ctx context.Context) (broadcast.Subscriber[Envelope], error) {
	sub, err := l.MemoryBroadcaster.Subscribe(ctx)
	if err != nil {
		l.release()
		return sub, err
	}
	return &leasedSubscriber{Subscriber: sub, release: l.release}, nil
}

// Close gives up the lease. The hub stays open for other channels.
func (l *hubLease) Close() error {
	l.release()
	return nil
}

type leasedSubscriber struct {
	broadcast.Subscriber[Envelope]
	release func()
}

func (s *leasedSubscriber) Close() error {
	err := s.Subscriber.Close()
	s.release()
	return err
}

// RedisTransports returns a factory publishing over Redis pub/sub. The
// factory fails when Redis does not answer a ping.
func RedisTransports(client redis.UniversalClient, prefix string, log *slog.Logger) TransportFactory {
	return func(ctx context.Context, name string) (broadcast.Broadcaster[Envelope], error) {
		return broadcast.NewRedisBroadcaster[Envelope](ctx, client, prefix+name, broadcast.WithLogger(log))
	}
}

type transport interface {
	kind() TransportKind
	publish(ctx context.Context, env Envelope) error
	events() <-chan Envelope
	close() error
}

// broadcastTransport owns only its subscription. The broadcaster may be
// shared with other channels.
type broadcastTransport struct {
	b   broadcast.Broadcaster[Envelope]
	sub broadcast.Subscriber[Envelope]
	out chan Envelope
}

func newBroadcastTransport(ctx context.Context, b broadcast.Broadcaster[Envelope]) (*broadcastTransport, error) {
	sub, err := b.Subscribe(ctx)
	if err != nil {
		return nil, err
	}
	t := &broadcastTransport{b: b, sub: sub, out: make(chan Envelope)}
	go func() {
		defer close(t.out)
		for msg := range sub.Receive(ctx) {
			select {
			case t.out <- msg.Data:
			case <-ctx.Done():
				return
			}
		}
	}()
	return t, nil
}

func (t *broadcastTransport) kind() TransportKind { return TransportBroadcast }

func (t *broadcastTransport) publish(ctx context.Context, env Envelope) error {
	return t.b.Broadcast(ctx, broadcast.Message[Envelope]{Data: env})
}

func (t *broadcastTransport) events() <-chan Envelope { return t.out }

func (t *broadcastTransport) close() error { return t.sub.Close() }

// storageTransport publishes by writing the channel key and relies on change
// notifications to receive. The key is removed after delay so that the
// next identical write is still a change.
type storageTransport struct {
	store  Storage
	key    string
	delay  time.Duration
	log    *slog.Logger
	cancel context.CancelFunc
	out    chan Envelope
}

func newStorageTransport(ctx context.Context, store Storage, key string, delay time.Duration, log *slog.Logger) (*storageTransport, error) {
	ctx, cancel := context.WithCancel(ctx)
	changes, err := store.Watch(ctx, key)
	if err != nil {
		cancel()
		return nil, err
	}
	t := &storageTransport{store: store, key: key, delay: delay, log: log, cancel: cancel, out: make(chan Envelope)}
	go func() {
		defer close(t.out)
		for c := range changes {
			if c.Deleted || c.Value == "" {
				continue
			}
			var env Envelope
			if err := json.Unmarshal([]byte(c.Value), &env); err != nil {
				log.Debug("ignoring malformed storage value", logger.Error(err))
				continue
			}
			select {
			case t.out <- env:
			case <-ctx.Done():
				return
			}
		}
	}()
	return t, nil
}

func (t *storageTransport) kind() TransportKind { return TransportStorage }

func (t *storageTransport) publish(ctx context.Context, env Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	value := string(raw)

	if cur, ok, err := t.store.Get(ctx, t.key); err == nil && ok && cur == value {
		if err := t.store.Delete(ctx, t.key); err != nil {
			return err
		}
	}
	if err := t.store.Set(ctx, t.key, value); err != nil {
		return err
	}

	// Fire and forget: Close does not cancel pending deletes.
	time.AfterFunc(t.delay, func() {
		if err := t.store.Delete(context.Background(), t.key); err != nil {
			t.log.Debug("failed to clear session sync key", logger.Error(err))
		}
	})
	return nil
}

func (t *storageTransport) events() <-chan Envelope { return t.out }

func (t *storageTransport) close() error {
	t.cancel()
	return nil
}
