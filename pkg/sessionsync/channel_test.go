package sessionsync_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/saasbilling/pkg/broadcast"
	"github.com/dmitrymomot/saasbilling/pkg/sessionsync"
)

// tab records what a channel participant was asked to do.
type tab struct {
	mu          sync.Mutex
	refreshes   int
	navigations []string
	validSess   bool
}

func (t *tab) Refresh(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.refreshes++
	return nil
}

func (t *tab) Navigate(_ context.Context, url string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.navigations = append(t.navigations, url)
	return nil
}

func (t *tab) counts() (int, []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.refreshes, append([]string(nil), t.navigations...)
}

func openTab(t *testing.T, opts ...sessionsync.Option) (*sessionsync.Channel, *tab) {
	t.Helper()
	rec := &tab{validSess: true}
	opts = append([]sessionsync.Option{
		sessionsync.WithRefresher(rec),
		sessionsync.WithNavigator(rec),
	}, opts...)
	ch := sessionsync.New(opts...)
	require.NoError(t, ch.Init(context.Background()))
	t.Cleanup(func() { _ = ch.Close() })
	return ch, rec
}

func failingPrimary(context.Context, string) (broadcast.Broadcaster[sessionsync.Envelope], error) {
	return nil, errors.New("broadcast unsupported")
}

func TestChannelLifecycle(t *testing.T) {
	t.Parallel()

	ch := sessionsync.New(sessionsync.WithPrimary(sessionsync.MemoryTransports(8)))
	assert.Equal(t, sessionsync.StateUninitialized, ch.State())
	assert.Equal(t, sessionsync.DefaultChannelName, ch.Name())
	assert.NotEmpty(t, ch.Origin())
	assert.ErrorIs(t, ch.Broadcast(context.Background(), sessionsync.SessionUpdated), sessionsync.ErrNotListening)

	require.NoError(t, ch.Init(context.Background()))
	assert.Equal(t, sessionsync.StateListening, ch.State())
	assert.Equal(t, sessionsync.TransportBroadcast, ch.Transport())
	assert.ErrorIs(t, ch.Init(context.Background()), sessionsync.ErrAlreadyInitialized)
	assert.ErrorIs(t, ch.Broadcast(context.Background(), "SOMETHING_ELSE"), sessionsync.ErrUnknownEvent)

	require.NoError(t, ch.Close())
	require.NoError(t, ch.Close())
	assert.Equal(t, sessionsync.StateClosed, ch.State())
	assert.ErrorIs(t, ch.Broadcast(context.Background(), sessionsync.SessionUpdated), sessionsync.ErrNotListening)
	assert.ErrorIs(t, ch.Init(context.Background()), sessionsync.ErrClosed)
}

func TestChannelInitWithoutTransport(t *testing.T) {
	t.Parallel()

	ch := sessionsync.New(sessionsync.WithPrimary(failingPrimary))
	err := ch.Init(context.Background())
	assert.ErrorIs(t, err, sessionsync.ErrNoTransport)
	assert.Equal(t, sessionsync.StateUninitialized, ch.State())
	assert.NoError(t, ch.Close())
}

func TestChannelPrimaryTransport(t *testing.T) {
	t.Parallel()

	primary := sessionsync.WithPrimary(sessionsync.MemoryTransports(8))
	sender, senderTab := openTab(t, primary)
	_, receiverTab := openTab(t, primary)
	_, otherChannelTab := openTab(t, primary, sessionsync.WithName("another-channel"))

	require.NoError(t, sender.Broadcast(context.Background(), sessionsync.SessionUpdated))

	assert.Eventually(t, func() bool {
		n, _ := receiverTab.counts()
		return n == 1
	}, time.Second, 5*time.Millisecond)

	n, _ := senderTab.counts()
	assert.Zero(t, n, "a channel ignores its own events")
	n, _ = otherChannelTab.counts()
	assert.Zero(t, n, "channels are isolated by name")
}

func TestChannelRedirectsRegardlessOfLocalSession(t *testing.T) {
	t.Parallel()

	for _, typ := range []sessionsync.EventType{sessionsync.SessionCleared, sessionsync.UserLogout} {
		t.Run(string(typ), func(t *testing.T) {
			t.Parallel()
			primary := sessionsync.WithPrimary(sessionsync.MemoryTransports(8))
			sender, _ := openTab(t, primary)
			_, receiver := openTab(t, primary, sessionsync.WithLoginURL("/auth/sign-in"))
			require.True(t, receiver.validSess)

			require.NoError(t, sender.Broadcast(context.Background(), typ))

			assert.Eventually(t, func() bool {
				_, nav := receiver.counts()
				return len(nav) == 1
			}, time.Second, 5*time.Millisecond)
			refreshes, nav := receiver.counts()
			assert.Equal(t, []string{"/auth/sign-in"}, nav)
			assert.Zero(t, refreshes, "no session check before redirect")
		})
	}
}

// gatedTab holds every Refresh until the test lets it through.
type gatedTab struct {
	tab
	entered chan struct{}
	proceed chan struct{}
}

func (g *gatedTab) Refresh(ctx context.Context) error {
	g.entered <- struct{}{}
	select {
	case <-g.proceed:
	case <-ctx.Done():
		return ctx.Err()
	}
	return g.tab.Refresh(ctx)
}

func TestChannelKeepsListeningAfterBurst(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	primary := sessionsync.WithPrimary(sessionsync.MemoryTransports(2))
	sender, _ := openTab(t, primary)

	rec := &gatedTab{entered: make(chan struct{}, 16), proceed: make(chan struct{})}
	receiver := sessionsync.New(primary, sessionsync.WithRefresher(rec), sessionsync.WithNavigator(rec))
	require.NoError(t, receiver.Init(ctx))
	t.Cleanup(func() { _ = receiver.Close() })

	require.NoError(t, sender.Broadcast(ctx, sessionsync.SessionUpdated))
	select {
	case <-rec.entered:
	case <-time.After(time.Second):
		t.Fatal("receiver never started refreshing")
	}
	for range 5 {
		require.NoError(t, sender.Broadcast(ctx, sessionsync.SessionUpdated))
	}

	rec.proceed <- struct{}{}
	for idle := false; !idle; {
		select {
		case <-rec.entered:
			rec.proceed <- struct{}{}
		case <-time.After(100 * time.Millisecond):
			idle = true
		}
	}
	assert.Equal(t, sessionsync.StateListening, receiver.State())

	require.NoError(t, sender.Broadcast(ctx, sessionsync.UserLogout))
	assert.Eventually(t, func() bool {
		_, nav := rec.counts()
		return len(nav) == 1
	}, time.Second, 5*time.Millisecond)

	refreshes, nav := rec.counts()
	assert.Equal(t, []string{"/login"}, nav)
	assert.GreaterOrEqual(t, refreshes, 3, "overflowing refreshes are skipped, not the receiver")
}

func TestChannelClosesWhenTransportStops(t *testing.T) {
	t.Parallel()

	b := broadcast.NewMemoryBroadcaster[sessionsync.Envelope](1)
	primary := sessionsync.WithPrimary(func(context.Context, string) (broadcast.Broadcaster[sessionsync.Envelope], error) {
		return b, nil
	})
	ch, _ := openTab(t, primary)
	require.Equal(t, sessionsync.StateListening, ch.State())

	require.NoError(t, b.Close())

	assert.Eventually(t, func() bool {
		return ch.State() == sessionsync.StateClosed
	}, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, ch.Broadcast(context.Background(), sessionsync.SessionUpdated), sessionsync.ErrNotListening)
	assert.NoError(t, ch.Close())
}

func TestMemoryHubsReleaseClosedChannels(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	hubs := sessionsync.NewMemoryHubs(4)
	primary := sessionsync.WithPrimary(hubs.Transport)

	a := sessionsync.New(primary, sessionsync.WithName("user-a"))
	b := sessionsync.New(primary, sessionsync.WithName("user-a"))
	c := sessionsync.New(primary, sessionsync.WithName("user-b"))
	for _, ch := range []*sessionsync.Channel{a, b, c} {
		require.NoError(t, ch.Init(ctx))
	}
	assert.Equal(t, 2, hubs.Len())

	require.NoError(t, a.Close())
	assert.Equal(t, 2, hubs.Len(), "hub stays while another channel uses it")
	require.NoError(t, b.Close())
	assert.Equal(t, 1, hubs.Len())
	require.NoError(t, c.Close())
	assert.Zero(t, hubs.Len())

	sender, _ := openTab(t, primary, sessionsync.WithName("user-a"))
	_, receiver := openTab(t, primary, sessionsync.WithName("user-a"))
	assert.Equal(t, 1, hubs.Len())

	require.NoError(t, sender.Broadcast(ctx, sessionsync.SessionCleared))
	assert.Eventually(t, func() bool {
		_, nav := receiver.counts()
		return len(nav) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestChannelFallsBackToStorage(t *testing.T) {
	t.Parallel()

	store := sessionsync.NewMemoryStorage()
	opts := []sessionsync.Option{sessionsync.WithPrimary(failingPrimary), sessionsync.WithFallback(store)}
	sender, _ := openTab(t, opts...)
	_, receiver := openTab(t, opts...)
	assert.Equal(t, sessionsync.TransportStorage, sender.Transport())

	require.NoError(t, sender.Broadcast(context.Background(), sessionsync.UserLogout))

	assert.Eventually(t, func() bool {
		_, nav := receiver.counts()
		return len(nav) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestStorageTransportRepeatsIdenticalEvents(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	store := sessionsync.NewMemoryStorage()
	opts := []sessionsync.Option{
		sessionsync.WithFallback(store),
		sessionsync.WithClock(func() time.Time { return fixed }),
	}
	sender, _ := openTab(t, append(opts, sessionsync.WithOrigin("tab-a"))...)
	_, receiver := openTab(t, append(opts, sessionsync.WithOrigin("tab-b"))...)

	require.NoError(t, sender.Broadcast(context.Background(), sessionsync.SessionUpdated))
	require.NoError(t, sender.Broadcast(context.Background(), sessionsync.SessionUpdated))

	assert.Eventually(t, func() bool {
		n, _ := receiver.counts()
		return n == 2
	}, time.Second, 5*time.Millisecond)
}

func TestStorageTransportDeletesAfterDelay(t *testing.T) {
	t.Parallel()

	store := sessionsync.NewMemoryStorage()
	sender, _ := openTab(t, sessionsync.WithFallback(store), sessionsync.WithFallbackDelay(20*time.Millisecond))

	require.NoError(t, sender.Broadcast(context.Background(), sessionsync.SessionCleared))
	_, ok, err := store.Get(context.Background(), sessionsync.DefaultChannelName)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, sender.Close())

	assert.Eventually(t, func() bool {
		_, ok, _ := store.Get(context.Background(), sessionsync.DefaultChannelName)
		return !ok
	}, time.Second, 5*time.Millisecond, "pending delete still runs after Close")
}

func TestOptionsPanics(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() { sessionsync.New(sessionsync.WithName("")) })
}
