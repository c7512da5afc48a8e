package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// LemonSqueezyConfig is read from the environment. An empty APIURL uses the
// public API host.
type LemonSqueezyConfig struct {
	APIKey        string        `env:"LEMONSQUEEZY_API_KEY"`
	WebhookSecret string        `env:"LEMONSQUEEZY_WEBHOOK_SECRET"`
	APIURL        string        `env:"LEMONSQUEEZY_API_URL"`
	Timeout       time.Duration `env:"LEMONSQUEEZY_TIMEOUT" envDefault:"15s"`
}

// Enabled reports whether an API key is configured.
func (c LemonSqueezyConfig) Enabled() bool { return c.APIKey != "" }

// LemonSqueezyURLs holds the signed links LemonSqueezy attaches to
// subscriptions and customers.
type LemonSqueezyURLs struct {
	CustomerPortal string `json:"customer_portal"`
}

// LemonSqueezySubscription is the subset of subscription attributes the
// reconciler reads.
type LemonSqueezySubscription struct {
	Status       string           `json:"status"`
	Cancelled    bool             `json:"cancelled"`
	RenewsAt     *time.Time       `json:"renews_at"`
	EndsAt       *time.Time       `json:"ends_at"`
	TrialEndsAt  *time.Time       `json:"trial_ends_at"`
	UpdatedAt    *time.Time       `json:"updated_at"`
	CardBrand    string           `json:"card_brand"`
	CardLastFour string           `json:"card_last_four"`
	URLs         LemonSqueezyURLs `json:"urls"`
}

// LemonSqueezyInvoice is one subscription invoice. Total is in minor units.
type LemonSqueezyInvoice struct {
	ID         string
	Status     string
	Total      int64
	Currency   string
	CreatedAt  time.Time
	InvoiceURL string
}

// LemonSqueezyInvoicePage is one page of a subscription's invoices.
type LemonSqueezyInvoicePage struct {
	Invoices []LemonSqueezyInvoice
	LastPage int
	Total    int
}

// LemonSqueezyAPI is the slice of the LemonSqueezy SDK the provider uses.
// Missing resources are reported as ErrResourceMissing, every other failure
// as ErrProviderFailure.
type LemonSqueezyAPI interface {
	GetSubscription(ctx context.Context, id string) (*LemonSqueezySubscription, error)
	CancelSubscription(ctx context.Context, id string) (*LemonSqueezySubscription, error)
	ResumeSubscription(ctx context.Context, id string) (*LemonSqueezySubscription, error)
	CustomerPortalURL(ctx context.Context, customerID string) (string, error)
	ListSubscriptionInvoices(ctx context.Context, subscriptionID string, page, size int) (*LemonSqueezyInvoicePage, error)
	VerifyWebhook(ctx context.Context, signature string, payload []byte) bool
}

// LemonSqueezyProvider adapts LemonSqueezy subscriptions to Provider.
type LemonSqueezyProvider struct {
	api           LemonSqueezyAPI
	webhookSecret string
}

// LemonSqueezyOption configures a LemonSqueezyProvider.
type LemonSqueezyOption func(*LemonSqueezyProvider)

// WithLemonSqueezyAPI replaces the SDK-backed client.
func WithLemonSqueezyAPI(api LemonSqueezyAPI) LemonSqueezyOption {
	return func(p *LemonSqueezyProvider) {
		if api == nil {
			panic("billing: nil LemonSqueezyAPI")
		}
		p.api = api
	}
}

// NewLemonSqueezyProvider returns ErrMissingAPIKey when no API key is
// configured and no API was injected.
func NewLemonSqueezyProvider(cfg LemonSqueezyConfig, opts ...LemonSqueezyOption) (*LemonSqueezyProvider, error) {
	p := &LemonSqueezyProvider{webhookSecret: cfg.WebhookSecret}
	for _, opt := range opts {
		opt(p)
	}
	if p.api == nil {
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, fmt.Errorf("lemonsqueezy: %w", ErrMissingAPIKey)
		}
		p.api = newLemonSqueezyClient(cfg)
	}
	return p, nil
}

func (p *LemonSqueezyProvider) Name() ProviderName { return ProviderLemonSqueezy }

func (p *LemonSqueezyProvider) FetchLiveData(ctx context.Context, b Binding) (*LiveData, error) {
	sub, err := p.api.GetSubscription(ctx, b.SubscriptionID)
	if err != nil {
		return nil, err
	}
	return lsLiveData(sub), nil
}

// CancelAtPeriodEnd cancels through the API, which LemonSqueezy applies at
// the end of the billing period.
func (p *LemonSqueezyProvider) CancelAtPeriodEnd(ctx context.Context, b Binding) (*LiveData, error) {
	sub, err := p.api.CancelSubscription(ctx, b.SubscriptionID)
	if err != nil {
		return nil, err
	}
	return lsLiveData(sub), nil
}

func (p *LemonSqueezyProvider) Reactivate(ctx context.Context, b Binding) (*LiveData, error) {
	sub, err := p.api.ResumeSubscription(ctx, b.SubscriptionID)
	if err != nil {
		return nil, err
	}
	return lsLiveData(sub), nil
}

// PortalURL returns the customer's portal link, falling back to the
// subscription's when no customer ID is stored. LemonSqueezy portal links
// have no return URL.
func (p *LemonSqueezyProvider) PortalURL(ctx context.Context, b Binding, _ string) (string, error) {
	if b.CustomerID != "" {
		return p.api.CustomerPortalURL(ctx, b.CustomerID)
	}
	if b.SubscriptionID == "" {
		return "", ErrNoCustomer
	}
	sub, err := p.api.GetSubscription(ctx, b.SubscriptionID)
	if err != nil {
		return "", err
	}
	return sub.URLs.CustomerPortal, nil
}

// ListInvoices maps offset/limit onto LemonSqueezy's page number and size.
// An offset that is not a multiple of limit spans two provider pages.
func (p *LemonSqueezyProvider) ListInvoices(ctx context.Context, b Binding, q HistoryQuery) (*HistoryPage, error) {
	q = NormalizeHistoryQuery(q.Limit, q.Offset)
	page := &HistoryPage{Items: []Invoice{}}
	if b.SubscriptionID == "" {
		return page, nil
	}

	number := q.Offset/q.Limit + 1
	skip := q.Offset % q.Limit
	for len(page.Items) < q.Limit {
		list, err := p.api.ListSubscriptionInvoices(ctx, b.SubscriptionID, number, q.Limit)
		if err != nil {
			return nil, err
		}
		page.TotalCount = list.Total
		for _, inv := range list.Invoices {
			if skip > 0 {
				skip--
				continue
			}
			if len(page.Items) == q.Limit {
				break
			}
			page.Items = append(page.Items, Invoice{
				ID:          inv.ID,
				Date:        inv.CreatedAt.UTC(),
				Amount:      MajorUnits(inv.Total, inv.Currency),
				Currency:    NormalizeCurrency(inv.Currency),
				Status:      inv.Status,
				Description: "Subscription payment",
				InvoiceURL:  inv.InvoiceURL,
			})
		}
		if len(list.Invoices) == 0 || number >= list.LastPage {
			break
		}
		number++
	}
	page.HasMore = q.Offset+len(page.Items) < page.TotalCount
	return page, nil
}

// ParseWebhook verifies X-Signature and decodes subscription_* events. Other
// events yield a nil event.
func (p *LemonSqueezyProvider) ParseWebhook(payload []byte, header http.Header) (*WebhookEvent, error) {
	if p.webhookSecret == "" {
		return nil, ErrWebhookNotSupported
	}
	sig := strings.TrimSpace(header.Get("X-Signature"))
	if sig == "" || !p.api.VerifyWebhook(context.Background(), strings.ToLower(sig), payload) {
		return nil, ErrWebhookVerificationFailed
	}

	var body struct {
		Meta struct {
			EventName string `json:"event_name"`
		} `json:"meta"`
		Data struct {
			ID         string `json:"id"`
			Type       string `json:"type"`
			Attributes struct {
				LemonSqueezySubscription
				CustomerID json.Number `json:"customer_id"`
			} `json:"attributes"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, errors.Join(ErrInvalidWebhookPayload, err)
	}
	if !strings.HasPrefix(body.Meta.EventName, "subscription_") || body.Data.Type != "subscriptions" {
		return nil, nil
	}

	sub := body.Data.Attributes.LemonSqueezySubscription
	live := lsLiveData(&sub)
	ev := &WebhookEvent{
		Type:              body.Meta.EventName,
		SubscriptionID:    body.Data.ID,
		CustomerID:        body.Data.Attributes.CustomerID.String(),
		Status:            live.Status,
		CurrentPeriodEnd:  live.CurrentPeriodEnd,
		CancelAtPeriodEnd: live.CancelAtPeriodEnd,
	}
	if at := utcPtr(sub.UpdatedAt); at != nil {
		ev.OccurredAt = *at
	}
	return ev, nil
}

func lsLiveData(s *LemonSqueezySubscription) *LiveData {
	status := lsStatus(s.Status)
	live := &LiveData{
		Status:            status,
		CancelAtPeriodEnd: s.Cancelled && status != StatusExpired,
		TrialEnd:          utcPtr(s.TrialEndsAt),
		CurrentPeriodEnd:  utcPtr(s.RenewsAt),
	}
	if s.Cancelled || status == StatusExpired {
		if end := utcPtr(s.EndsAt); end != nil {
			live.CurrentPeriodEnd = end
		}
	}
	if s.CardBrand != "" || s.CardLastFour != "" {
		live.PaymentMethod = &PaymentMethod{Brand: s.CardBrand, Last4: s.CardLastFour}
	}
	return live
}

// lsStatus maps LemonSqueezy statuses. "cancelled" there means the
// subscription is still running until ends_at; the cancelled flag carries that.
func lsStatus(s string) Status {
	switch s {
	case "on_trial":
		return StatusTrialing
	case "past_due":
		return StatusPastDue
	case "unpaid":
		return StatusUnpaid
	case "paused":
		return StatusPaused
	case "expired":
		return StatusExpired
	case "cancelled":
		return StatusCancelled
	default:
		return StatusActive
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}
