package billing

import (
	"context"
	"log/slog"

	"github.com/dmitrymomot/saasbilling/pkg/logger"
)

const (
	cancelMessage     = "Your subscription will remain active until the end of the current billing period."
	reactivateMessage = "Your subscription has been reactivated."
)

// Cancel schedules cancellation at the end of the current period.
//
// Eligibility is checked in order: a free tier returns ErrFreePlan, an already
// scheduled cancellation returns ErrAlreadyScheduled, and a missing or ended
// provider subscription returns ErrNoSubscription. None of these call the
// provider's cancel operation.
//
// If the provider accepts the cancellation but the local write fails, the
// error wraps ErrPersistFailed and no compensation is attempted; the next
// GetOverview stores the provider's state.
func (s *Service) Cancel(ctx context.Context, userID string) (*CancelResult, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.SubscriptionTier.IsPaid() {
		return nil, ErrFreePlan
	}

	view, _ := s.reconcile(ctx, *user)
	if view.CancelAtPeriodEnd {
		return nil, ErrAlreadyScheduled
	}

	b := user.Binding()
	if !b.HasLiveSubscription() || view.Status == StatusCancelled || view.Status == StatusExpired {
		return nil, ErrNoSubscription
	}

	p, err := s.provider(b.Provider)
	if err != nil {
		return nil, err
	}

	live, err := p.CancelAtPeriodEnd(ctx, b)
	if err != nil {
		s.log.ErrorContext(ctx, "provider rejected cancellation",
			logger.Provider(string(b.Provider)),
			logger.SubscriptionID(b.SubscriptionID),
			logger.UserID(user.ID),
			logger.Error(err),
		)
		return nil, providerErr(b.Provider, "cancel", err)
	}

	effective := view.CurrentPeriodEnd
	if live != nil && live.CurrentPeriodEnd != nil {
		effective = live.CurrentPeriodEnd
	}

	if err := s.commitStatus(ctx, *user, StatusCancelled, effective); err != nil {
		s.log.ErrorContext(ctx, "subscription cancelled at provider but local record not updated",
			logger.Provider(string(b.Provider)),
			logger.SubscriptionID(b.SubscriptionID),
			logger.UserID(user.ID),
			logger.Error(err),
		)
		return nil, err
	}

	view.Status = StatusCancelled
	view.CancelAtPeriodEnd = true
	view.CurrentPeriodEnd = effective

	s.log.InfoContext(ctx, "subscription cancellation scheduled",
		logger.Provider(string(b.Provider)),
		logger.UserID(user.ID),
		slog.Any("effective_date", effective),
	)

	if s.notifier != nil {
		if err := s.notifier.SubscriptionCancelled(ctx, *user, effective); err != nil {
			s.log.WarnContext(ctx, "failed to send cancellation notice", logger.UserID(user.ID), logger.Error(err))
		}
	}

	return &CancelResult{
		Success:       true,
		Message:       cancelMessage,
		Subscription:  view,
		EffectiveDate: effective,
	}, nil
}

// Reactivate undoes a scheduled cancellation.
func (s *Service) Reactivate(ctx context.Context, userID string) (*ReactivateResult, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	b := user.Binding()
	if !b.HasLiveSubscription() {
		return nil, ErrNoSubscription
	}

	view, _ := s.reconcile(ctx, *user)
	if !view.CancelAtPeriodEnd {
		return nil, ErrNotScheduled
	}

	p, err := s.provider(b.Provider)
	if err != nil {
		return nil, err
	}

	live, err := p.Reactivate(ctx, b)
	if err != nil {
		s.log.ErrorContext(ctx, "provider rejected reactivation",
			logger.Provider(string(b.Provider)),
			logger.UserID(user.ID),
			logger.Error(err),
		)
		return nil, providerErr(b.Provider, "reactivate", err)
	}

	status, end := StatusActive, view.CurrentPeriodEnd
	if live != nil {
		if st := live.EffectiveStatus(); st != "" && st != StatusCancelled {
			status = st
		}
		if live.CurrentPeriodEnd != nil {
			end = live.CurrentPeriodEnd
		}
		view.TrialEnd = live.TrialEnd
	}

	if err := s.commitStatus(ctx, *user, status, end); err != nil {
		s.log.ErrorContext(ctx, "subscription reactivated at provider but local record not updated",
			logger.Provider(string(b.Provider)),
			logger.UserID(user.ID),
			logger.Error(err),
		)
		return nil, err
	}

	view.Status = status
	view.CancelAtPeriodEnd = false
	view.CurrentPeriodEnd = end

	return &ReactivateResult{Success: true, Message: reactivateMessage, Subscription: view}, nil
}
