package billing

import (
	"context"
	"net/http"
	"time"
)

// Provider is the capability set every payment provider adapter implements.
// Implementations return ErrResourceMissing for unknown customers or
// subscriptions and wrap other failures with ErrProviderFailure.
type Provider interface {
	Name() ProviderName
	FetchLiveData(ctx context.Context, b Binding) (*LiveData, error)
	CancelAtPeriodEnd(ctx context.Context, b Binding) (*LiveData, error)
	Reactivate(ctx context.Context, b Binding) (*LiveData, error)
	PortalURL(ctx context.Context, b Binding, returnURL string) (string, error)
	ListInvoices(ctx context.Context, b Binding, q HistoryQuery) (*HistoryPage, error)
}

// WebhookParser is implemented by providers that push subscription changes.
type WebhookParser interface {
	// ParseWebhook verifies the request signature and decodes the event.
	// Events unrelated to subscriptions return a nil event and nil error.
	ParseWebhook(payload []byte, header http.Header) (*WebhookEvent, error)
}

// WebhookEvent is a provider-pushed subscription change.
type WebhookEvent struct {
	ID                string
	Type              string
	SubscriptionID    string
	CustomerID        string
	Status            Status
	CurrentPeriodEnd  *time.Time
	CancelAtPeriodEnd bool
	// OccurredAt is when the provider produced the change. Zero when unknown.
	OccurredAt time.Time
}

// Notifier is told about completed mutations. Failures are logged only.
type Notifier interface {
	SubscriptionCancelled(ctx context.Context, user User, effectiveDate *time.Time) error
}
