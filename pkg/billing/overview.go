package billing

import (
	"context"
	"log/slog"

	"github.com/dmitrymomot/saasbilling/pkg/logger"
)

// GetOverview returns the user's subscription merged with live provider data.
// Only store failures are returned; provider failures fall back to stored values.
func (s *Service) GetOverview(ctx context.Context, userID string) (*Overview, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	view, live := s.reconcile(ctx, *user)
	s.persistDrift(ctx, *user, live)

	out := &Overview{Subscription: view}
	if live != nil {
		out.PaymentMethod = live.PaymentMethod
		if inv := live.NextInvoice; inv != nil {
			amount := MajorUnits(inv.Amount, inv.Currency)
			code := NormalizeCurrency(inv.Currency)
			out.NextBillingAmount = &amount
			out.Currency = &code
		}
	}
	return out, nil
}

// persistDrift stores status or period-end changes reported by the provider so
// the local record converges after a half-completed mutation. Best effort.
func (s *Service) persistDrift(ctx context.Context, user User, live *LiveData) {
	if live == nil {
		return
	}

	status := live.EffectiveStatus()
	statusChanged := status != "" && status != user.SubscriptionStatus
	endChanged := live.CurrentPeriodEnd != nil &&
		(user.SubscriptionEndDate == nil || !live.CurrentPeriodEnd.Equal(*user.SubscriptionEndDate))
	if !statusChanged && !endChanged {
		return
	}

	upd := SubscriptionUpdate{EndDate: live.CurrentPeriodEnd, ExpectStatus: &user.SubscriptionStatus}
	if statusChanged {
		upd.Status = status
	}
	if err := s.store.UpdateSubscription(ctx, user.ID, upd); err != nil {
		s.log.WarnContext(ctx, "failed to persist provider subscription drift",
			logger.UserID(user.ID),
			slog.String("status", string(status)),
			logger.Error(err),
		)
		return
	}
	s.log.InfoContext(ctx, "synchronized stored subscription from provider",
		logger.UserID(user.ID),
		slog.String("from_status", string(user.SubscriptionStatus)),
		slog.String("to_status", string(status)),
	)
}
