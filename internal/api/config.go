package api

import "time"

// TabHeader carries the browser tab identifier used as the sync origin.
const TabHeader = "X-Tab-ID"

type Config struct {
	// SessionEventsTimeout bounds a single long-poll on /auth/session/events.
	SessionEventsTimeout time.Duration `env:"SESSION_EVENTS_TIMEOUT" envDefault:"25s"`
	LoginURL             string        `env:"LOGIN_URL" envDefault:"/login"`
	// MaxWebhookBodySize caps provider webhook payloads in bytes.
	MaxWebhookBodySize int64 `env:"MAX_WEBHOOK_BODY_SIZE" envDefault:"1048576"`
}

func (c Config) withDefaults() Config {
	if c.SessionEventsTimeout <= 0 {
		c.SessionEventsTimeout = 25 * time.Second
	}
	if c.LoginURL == "" {
		c.LoginURL = "/login"
	}
	if c.MaxWebhookBodySize <= 0 {
		c.MaxWebhookBodySize = 1 << 20
	}
	return c
}
