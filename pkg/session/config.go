package session

import "time"

type Config struct {
	CookieName    string        `env:"SESSION_COOKIE_NAME" envDefault:"sid"`
	TTL           time.Duration `env:"SESSION_TTL" envDefault:"720h"`
	SecureCookies bool          `env:"SESSION_SECURE_COOKIES" envDefault:"true"`
	RedisPrefix   string        `env:"SESSION_REDIS_PREFIX" envDefault:"session:"`
}
