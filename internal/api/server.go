package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/saasbilling/handler"
	"github.com/dmitrymomot/saasbilling/pkg/billing"
	"github.com/dmitrymomot/saasbilling/pkg/clientip"
	"github.com/dmitrymomot/saasbilling/pkg/logger"
	"github.com/dmitrymomot/saasbilling/pkg/ratelimiter"
	"github.com/dmitrymomot/saasbilling/pkg/requestid"
	"github.com/dmitrymomot/saasbilling/pkg/session"
	"github.com/dmitrymomot/saasbilling/pkg/sessionsync"
)

// Billing is the subset of billing.Service the routes call.
type Billing interface {
	GetOverview(ctx context.Context, userID string) (*billing.Overview, error)
	History(ctx context.Context, userID string, limit, offset int) (*billing.HistoryPage, error)
	Cancel(ctx context.Context, userID string) (*billing.CancelResult, error)
	Reactivate(ctx context.Context, userID string) (*billing.ReactivateResult, error)
	Portal(ctx context.Context, userID, returnURL string) (*billing.PortalSession, error)
	HandleWebhook(ctx context.Context, name billing.ProviderName, payload []byte, header http.Header) error
}

// Server holds the route dependencies.
type Server struct {
	billing  Billing
	sessions *session.Manager
	cfg      Config
	log      *slog.Logger

	syncPrimary  sessionsync.TransportFactory
	syncFallback sessionsync.Storage

	clientIP        *clientip.Resolver
	mutationLimiter ratelimiter.Limiter
	webhookLimiter  ratelimiter.Limiter

	health  http.Handler
	metrics http.Handler
}

type Option func(*Server)

func WithConfig(cfg Config) Option {
	return func(s *Server) { s.cfg = cfg.withDefaults() }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithSessionSync sets the transports for per-user session sync channels.
// Either may be nil; with both nil the session routes answer 503.
func WithSessionSync(primary sessionsync.TransportFactory, fallback sessionsync.Storage) Option {
	return func(s *Server) {
		s.syncPrimary = primary
		s.syncFallback = fallback
	}
}

// WithClientIP sets the resolver for the client address used in logs and
// webhook rate limits. The default trusts only RemoteAddr.
func WithClientIP(r *clientip.Resolver) Option {
	return func(s *Server) {
		if r != nil {
			s.clientIP = r
		}
	}
}

// WithRateLimits limits subscription changes per user and webhook deliveries
// per client address. A nil limiter leaves its routes unlimited.
func WithRateLimits(mutations, webhooks ratelimiter.Limiter) Option {
	return func(s *Server) {
		s.mutationLimiter = mutations
		s.webhookLimiter = webhooks
	}
}

// WithHealthCheck mounts h on /healthz.
func WithHealthCheck(h http.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetricsHandler mounts h on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// New panics when svc or sessions is nil.
func New(svc Billing, sessions *session.Manager, opts ...Option) *Server {
	if svc == nil || sessions == nil {
		panic("api: billing service and session manager are required")
	}
	s := &Server{
		billing:  svc,
		sessions: sessions,
		cfg:      Config{}.withDefaults(),
		log:      logger.Nop(),
		clientIP: clientip.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.Component("api"))
	return s
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestid.Middleware)
	r.Use(s.clientIP.Middleware)
	r.Use(s.sessions.Middleware)

	if s.health != nil {
		r.Method(http.MethodGet, "/healthz", s.health)
	}
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/billing", func(r chi.Router) {
		r.With(s.limit(s.webhookLimiter, byClientIP)).Post("/webhooks/{provider}", handler.Wrap(s.webhook,
			handler.WithBinders[handler.Context, webhookRequest](pathParams()),
			handler.WithErrorHandler[handler.Context, webhookRequest](s.errors(opWebhook)),
		))

		r.Group(func(r chi.Router) {
			r.Use(s.sessions.RequireAuth)

			r.Get("/subscription", handler.Wrap(s.subscription,
				handler.WithErrorHandler[handler.Context, struct{}](s.errors(opOverview)),
			))
			r.Get("/history", handler.Wrap(s.history,
				handler.WithBinders[handler.Context, historyRequest](queryParams()),
				handler.WithErrorHandler[handler.Context, historyRequest](s.errors(opHistory)),
			))

			r.Group(func(r chi.Router) {
				r.Use(s.limit(s.mutationLimiter, byUser))

				r.Post("/cancel", handler.Wrap(s.cancel,
					handler.WithErrorHandler[handler.Context, struct{}](s.errors(opCancel)),
				))
				r.Post("/reactivate", handler.Wrap(s.reactivate,
					handler.WithErrorHandler[handler.Context, struct{}](s.errors(opReactivate)),
				))
				r.Post("/portal", handler.Wrap(s.portal,
					handler.WithBinders[handler.Context, portalRequest](jsonBody()),
					handler.WithErrorHandler[handler.Context, portalRequest](s.errors(opPortal)),
				))
			})
		})
	})

	r.Route("/auth", func(r chi.Router) {
		r.Post("/sign-out", handler.Wrap(s.signOut,
			handler.WithBinders[handler.Context, tabRequest](queryParams()),
			handler.WithErrorHandler[handler.Context, tabRequest](s.errors(opSignOut)),
		))

		r.Group(func(r chi.Router) {
			r.Use(s.sessions.RequireAuth)

			r.Get("/session/events", handler.Wrap(s.sessionEvents,
				handler.WithBinders[handler.Context, tabRequest](queryParams()),
				handler.WithErrorHandler[handler.Context, tabRequest](s.errors(opSession)),
			))
			r.Post("/session/broadcast", handler.Wrap(s.broadcastSession,
				handler.WithBinders[handler.Context, broadcastRequest](queryParams(), jsonBody()),
				handler.WithErrorHandler[handler.Context, broadcastRequest](s.errors(opSession)),
			))
		})
	})

	return r
}

func (s *Server) errors(op operation) handler.ErrorHandler[handler.Context] {
	return handler.NewErrorHandler(s.log, classifier(op))
}

func (s *Server) limit(l ratelimiter.Limiter, key ratelimiter.KeyFunc) func(http.Handler) http.Handler {
	if l == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return ratelimiter.Middleware(l, key,
		ratelimiter.WithDeniedHandler(rateLimited()),
		ratelimiter.WithLogger(s.log),
	)
}

func byUser(r *http.Request) string {
	return currentUserID(r.Context())
}

func byClientIP(r *http.Request) string {
	return clientip.FromContext(r.Context())
}

func rateLimited() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = handler.JSONError(handler.ErrTooManyRequests).Render(w, r)
	})
}

// Unauthorized renders the 401 body. Pass it to session.WithUnauthorizedHandler.
func Unauthorized() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = handler.JSONError(handler.ErrUnauthorized).Render(w, r)
	})
}

// currentUserID is set by RequireAuth on every authenticated route.
func currentUserID(ctx context.Context) string {
	id, _ := session.UserIDFromContext(ctx)
	return id
}
