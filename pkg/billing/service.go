package billing

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/dmitrymomot/saasbilling/pkg/logger"
)

// Service is the subscription reconciler. It holds no per-user state and is
// safe for concurrent use.
type Service struct {
	store           UserStore
	providers       map[ProviderName]Provider
	notifier        Notifier
	metrics         *Metrics
	log             *slog.Logger
	portalReturnURL string
}

// Option configures a Service.
type Option func(*Service)

// WithProvider registers p under p.Name(). Nil providers are ignored, which
// leaves that variant unavailable.
func WithProvider(p Provider) Option {
	return func(s *Service) {
		if p == nil {
			return
		}
		if _, exists := s.providers[p.Name()]; exists {
			panic("billing: provider " + string(p.Name()) + " already registered")
		}
		s.providers[p.Name()] = p
	}
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics instruments every registered provider.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithPortalReturnURL sets the URL the provider portal links back to when
// the caller does not pass one.
func WithPortalReturnURL(u string) Option {
	return func(s *Service) { s.portalReturnURL = u }
}

// NewService panics when store is nil.
func NewService(store UserStore, opts ...Option) *Service {
	if store == nil {
		panic("billing: UserStore is required")
	}
	s := &Service{
		store:     store,
		providers: make(map[ProviderName]Provider),
		log:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.Component("billing"))
	if s.metrics != nil {
		for name, p := range s.providers {
			s.providers[name] = s.metrics.instrument(p)
		}
	}
	return s
}

func (s *Service) provider(name ProviderName) (Provider, error) {
	p, ok := s.providers[name]
	if !ok {
		return nil, providerErr(name, "lookup", ErrProviderUnavailable)
	}
	return p, nil
}

// reconcile builds the database view and overlays live provider data.
// It never fails: provider errors and panics leave the database view intact.
func (s *Service) reconcile(ctx context.Context, user User) (SubscriptionData, *LiveData) {
	view := SubscriptionFromUser(user)
	b := user.Binding()
	if !b.HasLiveSubscription() {
		return view, nil
	}

	live := s.fetchLive(ctx, b, user.ID)
	if live == nil {
		if s.metrics != nil {
			s.metrics.fallbacks.WithLabelValues(string(b.Provider)).Inc()
		}
		return view, nil
	}
	return mergeLive(view, *live), live
}

func (s *Service) fetchLive(ctx context.Context, b Binding, userID string) (live *LiveData) {
	p, err := s.provider(b.Provider)
	if err != nil {
		s.log.DebugContext(ctx, "no provider registered, using stored subscription",
			logger.Provider(string(b.Provider)),
			logger.UserID(userID),
		)
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			s.log.ErrorContext(ctx, "provider panicked while fetching live subscription",
				logger.Provider(string(b.Provider)),
				logger.UserID(userID),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			live = nil
		}
	}()

	live, err = p.FetchLiveData(ctx, b)
	if err != nil {
		s.log.WarnContext(ctx, "live subscription unavailable, using stored subscription",
			logger.Provider(string(b.Provider)),
			logger.SubscriptionID(b.SubscriptionID),
			logger.UserID(userID),
			logger.Error(err),
		)
		return nil
	}
	return live
}

func mergeLive(view SubscriptionData, live LiveData) SubscriptionData {
	if st := live.EffectiveStatus(); st != "" {
		view.Status = st
	}
	if live.CurrentPeriodEnd != nil {
		view.CurrentPeriodEnd = live.CurrentPeriodEnd
	}
	view.CancelAtPeriodEnd = live.CancelAtPeriodEnd
	view.TrialEnd = live.TrialEnd
	return view
}

// commitStatus writes target guarded by the status the caller read. Losing the
// race to a writer that stored the same target counts as success.
func (s *Service) commitStatus(ctx context.Context, user User, target Status, end *time.Time) error {
	expect := user.SubscriptionStatus
	err := s.store.UpdateSubscription(ctx, user.ID, SubscriptionUpdate{
		Status:       target,
		EndDate:      end,
		ExpectStatus: &expect,
	})
	if err == nil {
		return nil
	}

	if errors.Is(err, ErrStatusConflict) {
		current, getErr := s.store.GetUser(ctx, user.ID)
		if getErr == nil && current.SubscriptionStatus == target {
			s.log.InfoContext(ctx, "concurrent update already stored target status",
				logger.UserID(user.ID),
				slog.String("status", string(target)),
			)
			return nil
		}
	}
	return errors.Join(ErrPersistFailed, err)
}
