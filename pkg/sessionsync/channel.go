package sessionsync

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/saasbilling/pkg/logger"
)

// State is the channel lifecycle: Uninitialized, then Listening, then Closed.
type State int

const (
	StateUninitialized State = iota
	StateListening
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateListening:
		return "listening"
	case StateClosed:
		return "closed"
	default:
		return "uninitialized"
	}
}

// Channel is one participant of a named session sync channel.
type Channel struct {
	name          string
	origin        string
	loginURL      string
	primary       TransportFactory
	storage       Storage
	refresher     Refresher
	navigator     Navigator
	fallbackDelay time.Duration
	now           func() time.Time
	log           *slog.Logger

	mu        sync.Mutex
	state     State
	transport transport
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates an uninitialized channel. At least one of WithPrimary and
// WithFallback must be given for Init to succeed.
func New(opts ...Option) *Channel {
	c := &Channel{
		name:          DefaultChannelName,
		origin:        uuid.NewString(),
		loginURL:      "/login",
		fallbackDelay: 100 * time.Millisecond,
		now:           time.Now,
		log:           logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With(logger.Component("sessionsync"), logger.Channel(c.name))
	return c
}

func (c *Channel) Name() string {
	return c.name
}

// Origin is the identifier stamped on this channel's own events.
func (c *Channel) Origin() string {
	return c.origin
}

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Transport reports which transport Init selected.
func (c *Channel) Transport() TransportKind {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.transport == nil {
		return TransportNone
	}
	return c.transport.kind()
}

// Init selects the transport and starts handling inbound events. The
// primary transport is tried first; on failure the storage fallback is
// installed. The choice is not revisited.
func (c *Channel) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateListening:
		return ErrAlreadyInitialized
	case StateClosed:
		return ErrClosed
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	t, err := c.selectTransport(ctx, loopCtx)
	if err != nil {
		cancel()
		return err
	}

	c.transport = t
	c.cancel = cancel
	c.done = make(chan struct{})
	c.state = StateListening
	go c.loop(loopCtx, t)

	c.log.DebugContext(ctx, "session sync channel listening", slog.String("transport", string(t.kind())))
	return nil
}

func (c *Channel) selectTransport(ctx, loopCtx context.Context) (transport, error) {
	var errs []error
	if c.primary != nil {
		b, err := c.primary(ctx, c.name)
		if err == nil {
			t, subErr := newBroadcastTransport(loopCtx, b)
			if subErr == nil {
				return t, nil
			}
			err = subErr
		}
		errs = append(errs, err)
		c.log.WarnContext(ctx, "primary transport unavailable, using storage fallback", logger.Error(err))
	}
	if c.storage != nil {
		t, err := newStorageTransport(loopCtx, c.storage, c.name, c.fallbackDelay, c.log)
		if err == nil {
			return t, nil
		}
		errs = append(errs, err)
	}
	return nil, errors.Join(append([]error{ErrNoTransport}, errs...)...)
}

// loop handles inbound events one at a time.
func (c *Channel) loop(ctx context.Context, t transport) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-t.events():
			if !ok {
				c.abandon(ctx, t)
				return
			}
			if env.Origin == c.origin {
				continue
			}
			c.handle(ctx, env.Event)
		}
	}
}

// abandon closes the channel after its transport stopped delivering on its
// own. A concurrent Close has already moved the state on.
func (c *Channel) abandon(ctx context.Context, t transport) {
	c.mu.Lock()
	if c.state != StateListening {
		c.mu.Unlock()
		return
	}
	c.state = StateClosed
	cancel := c.cancel
	c.mu.Unlock()

	c.log.ErrorContext(ctx, "session sync transport stopped, channel closed", slog.String("transport", string(t.kind())))
	_ = t.close()
	cancel()
}

// handle reacts to an event. Clearing and logout navigate unconditionally,
// whatever the local session looks like.
func (c *Channel) handle(ctx context.Context, ev Event) {
	switch ev.Type {
	case SessionUpdated:
		if c.refresher == nil {
			return
		}
		if err := c.refresher.Refresh(ctx); err != nil {
			c.log.WarnContext(ctx, "session refresh failed", logger.EventType(string(ev.Type)), logger.Error(err))
		}
	case SessionCleared, UserLogout:
		if c.navigator == nil {
			return
		}
		if err := c.navigator.Navigate(ctx, c.loginURL); err != nil {
			c.log.WarnContext(ctx, "navigation to login failed", logger.EventType(string(ev.Type)), logger.Error(err))
		}
	default:
		c.log.DebugContext(ctx, "ignoring unknown session event", logger.EventType(string(ev.Type)))
	}
}

// Broadcast publishes an event to the other participants.
func (c *Channel) Broadcast(ctx context.Context, typ EventType) error {
	if !typ.Valid() {
		return ErrUnknownEvent
	}

	c.mu.Lock()
	t, state := c.transport, c.state
	c.mu.Unlock()
	if state != StateListening {
		return ErrNotListening
	}

	return t.publish(ctx, Envelope{
		Event:  Event{Type: typ, Timestamp: c.now().UnixMilli()},
		Origin: c.origin,
	})
}

// Close releases the transport and stops the event loop. Scheduled storage
// deletes still run. Safe to call more than once, but not from a Refresher
// or Navigator.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	prev := c.state
	c.state = StateClosed
	t, cancel, done := c.transport, c.cancel, c.done
	c.mu.Unlock()

	if prev == StateUninitialized {
		return nil
	}

	err := t.close()
	cancel()
	<-done
	return err
}
