package ratelimiter

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrymomot/saasbilling/pkg/logger"
)

// KeyFunc names the bucket for a request. An empty key skips limiting.
type KeyFunc func(r *http.Request) string

type middlewareOptions struct {
	denied http.Handler
	log    *slog.Logger
	now    func() time.Time
}

type MiddlewareOption func(*middlewareOptions)

// WithDeniedHandler renders the 429 response. Headers are already set
// when it runs.
func WithDeniedHandler(h http.Handler) MiddlewareOption {
	return func(o *middlewareOptions) {
		if h != nil {
			o.denied = h
		}
	}
}

func WithLogger(l *slog.Logger) MiddlewareOption {
	return func(o *middlewareOptions) {
		if l != nil {
			o.log = l
		}
	}
}

func WithMiddlewareClock(now func() time.Time) MiddlewareOption {
	return func(o *middlewareOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// Middleware limits requests per key. Store failures let the request
// through and are logged.
func Middleware(l Limiter, key KeyFunc, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	if l == nil || key == nil {
		panic("ratelimiter: limiter and key func are required")
	}
	o := middlewareOptions{
		denied: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}),
		log: logger.Nop(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	log := o.log.With(logger.Component("ratelimiter"))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			if k == "" {
				next.ServeHTTP(w, r)
				return
			}

			res, err := l.Allow(r.Context(), k)
			if err != nil {
				log.WarnContext(r.Context(), "rate limit check failed, allowing request", logger.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(max(res.Remaining, 0)))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

			if !res.Allowed() {
				secs := int(math.Ceil(res.RetryAfter(o.now()).Seconds()))
				h.Set("Retry-After", strconv.Itoa(max(secs, 1)))
				o.denied.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
