package billing

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/dmitrymomot/saasbilling/pkg/logger"
)

// HandleWebhook verifies and applies a provider-pushed subscription change.
// Events for unknown subscriptions are acknowledged and ignored, as are events
// older than the user's last write. Providers do not guarantee delivery order.
func (s *Service) HandleWebhook(ctx context.Context, name ProviderName, payload []byte, header http.Header) error {
	p, err := s.provider(name)
	if err != nil {
		return err
	}
	parser, ok := p.(WebhookParser)
	if !ok {
		return ErrWebhookNotSupported
	}

	ev, err := parser.ParseWebhook(payload, header)
	if err != nil {
		return err
	}
	if ev == nil || ev.SubscriptionID == "" {
		return nil
	}

	user, err := s.store.FindBySubscription(ctx, name, ev.SubscriptionID)
	if errors.Is(err, ErrUserNotFound) {
		s.log.InfoContext(ctx, "webhook for unknown subscription ignored",
			logger.Provider(string(name)),
			logger.SubscriptionID(ev.SubscriptionID),
			logger.EventType(ev.Type),
		)
		return nil
	}
	if err != nil {
		return err
	}

	if isStaleEvent(ev, user) {
		s.log.InfoContext(ctx, "stale webhook ignored",
			logger.Provider(string(name)),
			logger.UserID(user.ID),
			logger.EventType(ev.Type),
			slog.Time("occurred_at", ev.OccurredAt),
			slog.Time("updated_at", user.UpdatedAt),
		)
		return nil
	}

	status := LiveData{Status: ev.Status, CancelAtPeriodEnd: ev.CancelAtPeriodEnd}.EffectiveStatus()
	if err := s.store.UpdateSubscription(ctx, user.ID, SubscriptionUpdate{
		Status:  status,
		EndDate: ev.CurrentPeriodEnd,
	}); err != nil {
		return errors.Join(ErrPersistFailed, err)
	}

	s.log.InfoContext(ctx, "subscription updated from webhook",
		logger.Provider(string(name)),
		logger.UserID(user.ID),
		logger.EventType(ev.Type),
		slog.String("status", string(status)),
	)
	return nil
}

// isStaleEvent compares at second precision since Stripe event times are
// whole seconds.
func isStaleEvent(ev *WebhookEvent, user *User) bool {
	if ev.OccurredAt.IsZero() || user.UpdatedAt.IsZero() {
		return false
	}
	return ev.OccurredAt.Before(user.UpdatedAt.Truncate(time.Second))
}
