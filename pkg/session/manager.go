package session

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// Manager ties a Store to the cookie transport.
type Manager struct {
	store        Store
	transport    *CookieTransport
	ttl          time.Duration
	unauthorized http.Handler
}

// Option configures a Manager.
type Option func(*Manager)

// WithUnauthorizedHandler sets the response written by RequireAuth.
func WithUnauthorizedHandler(h http.Handler) Option {
	return func(m *Manager) {
		if h != nil {
			m.unauthorized = h
		}
	}
}

// NewManager panics when store is nil.
func NewManager(store Store, cfg Config, opts ...Option) *Manager {
	if store == nil {
		panic("session: store is required")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	m := &Manager{
		store:     store,
		transport: NewCookieTransport(cfg.CookieName, cfg.SecureCookies),
		ttl:       ttl,
		unauthorized: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create issues a session for userID and sets the cookie.
func (m *Manager) Create(ctx context.Context, w http.ResponseWriter, userID string) (*Session, error) {
	s, err := New(userID, m.ttl)
	if err != nil {
		return nil, err
	}
	if err := m.store.Create(ctx, s); err != nil {
		return nil, err
	}
	m.transport.SetToken(w, s.Token, m.ttl)
	return s, nil
}

// Get loads the session referenced by the request cookie.
func (m *Manager) Get(ctx context.Context, r *http.Request) (*Session, error) {
	token, err := m.transport.GetToken(r)
	if err != nil {
		return nil, err
	}
	return m.store.Get(ctx, token)
}

// Destroy deletes the request's session and clears the cookie.
// It returns the destroyed session, or ErrSessionNotFound when there was none;
// the cookie is cleared either way.
func (m *Manager) Destroy(ctx context.Context, w http.ResponseWriter, r *http.Request) (*Session, error) {
	defer m.transport.ClearToken(w)

	token, err := m.transport.GetToken(r)
	if err != nil {
		return nil, err
	}
	s, getErr := m.store.Get(ctx, token)
	if err := m.store.Delete(ctx, token); err != nil {
		return nil, err
	}
	if getErr != nil {
		return nil, getErr
	}
	return s, nil
}

// Middleware attaches a valid session to the request context when present.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := m.Get(r.Context(), r)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
	})
}

// RequireAuth rejects requests without an authenticated session.
func (m *Manager) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s, ok := FromContext(r.Context()); ok && s.IsAuthenticated() {
			next.ServeHTTP(w, r)
			return
		}
		s, err := m.Get(r.Context(), r)
		if err != nil || !s.IsAuthenticated() {
			m.unauthorized.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
	})
}

// IsNotFound reports whether err means the request carried no usable session.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrSessionExpired)
}
