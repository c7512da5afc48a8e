package sessionsync

import (
	"log/slog"
	"time"
)

// Option configures a Channel.
type Option func(*Channel)

// WithName sets the channel name. Empty names panic.
func WithName(name string) Option {
	return func(c *Channel) {
		if name == "" {
			panic("sessionsync: empty channel name")
		}
		c.name = name
	}
}

// WithOrigin sets the identifier used to skip this channel's own events.
func WithOrigin(id string) Option {
	return func(c *Channel) {
		if id != "" {
			c.origin = id
		}
	}
}

func WithLoginURL(url string) Option {
	return func(c *Channel) {
		if url != "" {
			c.loginURL = url
		}
	}
}

func WithPrimary(f TransportFactory) Option {
	return func(c *Channel) { c.primary = f }
}

func WithFallback(s Storage) Option {
	return func(c *Channel) { c.storage = s }
}

func WithRefresher(r Refresher) Option {
	return func(c *Channel) { c.refresher = r }
}

func WithNavigator(n Navigator) Option {
	return func(c *Channel) { c.navigator = n }
}

// WithFallbackDelay sets how long a storage write stays before it is deleted.
func WithFallbackDelay(d time.Duration) Option {
	return func(c *Channel) {
		if d > 0 {
			c.fallbackDelay = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Channel) {
		if now != nil {
			c.now = now
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Channel) {
		if l != nil {
			c.log = l
		}
	}
}
