package email

import (
	"context"
	"time"

	"github.com/dmitrymomot/saasbilling/pkg/billing"
	"github.com/dmitrymomot/saasbilling/pkg/email/templates"
)

// CancellationNotifier emails users when their cancellation is scheduled.
type CancellationNotifier struct {
	sender  EmailSender
	appName string
}

func NewCancellationNotifier(sender EmailSender, appName string) *CancellationNotifier {
	if sender == nil {
		panic("email: nil EmailSender")
	}
	return &CancellationNotifier{sender: sender, appName: appName}
}

// SubscriptionCancelled implements billing.Notifier. Users without an email
// address are skipped.
func (n *CancellationNotifier) SubscriptionCancelled(ctx context.Context, user billing.User, effectiveDate *time.Time) error {
	if user.Email == "" {
		return nil
	}

	data := templates.SubscriptionCancelledData{
		Name: user.Name,
		App:  n.appName,
		Tier: string(user.SubscriptionTier),
	}
	if effectiveDate != nil {
		data.EffectiveDate = effectiveDate.UTC().Format("January 2, 2006")
	}

	body, err := templates.Render(ctx, templates.SubscriptionCancelled(data))
	if err != nil {
		return err
	}
	return n.sender.SendEmail(ctx, SendEmailParams{
		SendTo:   user.Email,
		Subject:  "Your subscription has been cancelled",
		BodyHTML: body,
		Tag:      "subscription-cancelled",
	})
}

var _ billing.Notifier = (*CancellationNotifier)(nil)
