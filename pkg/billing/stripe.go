package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/webhook"
	"golang.org/x/sync/errgroup"
)

// StripeConfig is read from the environment.
type StripeConfig struct {
	SecretKey     string `env:"STRIPE_SECRET_KEY"`
	WebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`
}

// Enabled reports whether a secret key is configured.
func (c StripeConfig) Enabled() bool { return c.SecretKey != "" }

// StripeAPI is the subset of the Stripe API the adapter calls.
type StripeAPI interface {
	GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error)
	SetCancelAtPeriodEnd(ctx context.Context, id string, cancel bool) (*stripe.Subscription, error)
	PreviewInvoice(ctx context.Context, customerID, subscriptionID string) (*stripe.Invoice, error)
	ListInvoices(ctx context.Context, customerID string) iter.Seq2[*stripe.Invoice, error]
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (*stripe.BillingPortalSession, error)
}

// StripeProvider adapts Stripe subscriptions.
type StripeProvider struct {
	api           StripeAPI
	webhookSecret string
}

// StripeOption configures a StripeProvider.
type StripeOption func(*StripeProvider)

// WithStripeAPI replaces the SDK-backed client.
func WithStripeAPI(api StripeAPI) StripeOption {
	return func(p *StripeProvider) {
		if api == nil {
			panic("billing: nil StripeAPI")
		}
		p.api = api
	}
}

// NewStripeProvider returns ErrMissingAPIKey when no secret key is configured
// and no API was injected.
func NewStripeProvider(cfg StripeConfig, opts ...StripeOption) (*StripeProvider, error) {
	p := &StripeProvider{webhookSecret: cfg.WebhookSecret}
	for _, opt := range opts {
		opt(p)
	}
	if p.api == nil {
		if cfg.SecretKey == "" {
			return nil, fmt.Errorf("stripe: %w", ErrMissingAPIKey)
		}
		p.api = &stripeClient{sc: stripe.NewClient(cfg.SecretKey)}
	}
	return p, nil
}

func (p *StripeProvider) Name() ProviderName { return ProviderStripe }

// FetchLiveData retrieves the subscription and, best effort, the upcoming invoice.
func (p *StripeProvider) FetchLiveData(ctx context.Context, b Binding) (*LiveData, error) {
	var (
		sub  *stripe.Subscription
		next *stripe.Invoice
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sub, err = p.api.GetSubscription(gctx, b.SubscriptionID)
		return stripeErr(err)
	})
	if b.CustomerID != "" {
		g.Go(func() error {
			// No upcoming invoice is normal for cancelled subscriptions.
			if inv, err := p.api.PreviewInvoice(gctx, b.CustomerID, b.SubscriptionID); err == nil {
				next = inv
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	live := stripeLiveData(sub)
	if next != nil {
		live.NextInvoice = &Money{Amount: next.AmountDue, Currency: NormalizeCurrency(string(next.Currency))}
	}
	return live, nil
}

func (p *StripeProvider) CancelAtPeriodEnd(ctx context.Context, b Binding) (*LiveData, error) {
	sub, err := p.api.SetCancelAtPeriodEnd(ctx, b.SubscriptionID, true)
	if err != nil {
		return nil, stripeErr(err)
	}
	return stripeLiveData(sub), nil
}

func (p *StripeProvider) Reactivate(ctx context.Context, b Binding) (*LiveData, error) {
	sub, err := p.api.SetCancelAtPeriodEnd(ctx, b.SubscriptionID, false)
	if err != nil {
		return nil, stripeErr(err)
	}
	return stripeLiveData(sub), nil
}

func (p *StripeProvider) PortalURL(ctx context.Context, b Binding, returnURL string) (string, error) {
	if b.CustomerID == "" {
		return "", ErrNoCustomer
	}
	sess, err := p.api.CreatePortalSession(ctx, b.CustomerID, returnURL)
	if err != nil {
		return "", stripeErr(err)
	}
	return sess.URL, nil
}

// MaxStripeInvoiceOffset bounds how far ListInvoices walks. Stripe lists are
// cursor based, so every skipped invoice is paged through.
const MaxStripeInvoiceOffset = 500

// stripeListPageSize is the largest page Stripe's list endpoints accept.
const stripeListPageSize = 100

// ListInvoices walks the customer's invoices newest first. Stripe does not
// report a total, so TotalCount is the number of invoices seen up to and
// including this page. Offsets past MaxStripeInvoiceOffset yield an empty
// page without calling Stripe.
func (p *StripeProvider) ListInvoices(ctx context.Context, b Binding, q HistoryQuery) (*HistoryPage, error) {
	q = NormalizeHistoryQuery(q.Limit, q.Offset)
	page := &HistoryPage{Items: []Invoice{}}
	if b.CustomerID == "" || q.Offset > MaxStripeInvoiceOffset {
		return page, nil
	}

	seen := 0
	for inv, err := range p.api.ListInvoices(ctx, b.CustomerID) {
		if err != nil {
			return nil, stripeErr(err)
		}
		seen++
		if seen <= q.Offset {
			continue
		}
		if len(page.Items) == q.Limit {
			page.HasMore = true
			break
		}
		page.Items = append(page.Items, stripeInvoice(inv))
	}
	page.TotalCount = q.Offset + len(page.Items)
	if page.HasMore {
		page.TotalCount++
	}
	return page, nil
}

// ParseWebhook verifies the Stripe-Signature header and decodes
// customer.subscription.* events. Other event types yield a nil event.
func (p *StripeProvider) ParseWebhook(payload []byte, header http.Header) (*WebhookEvent, error) {
	if p.webhookSecret == "" {
		return nil, ErrWebhookNotSupported
	}
	ev, err := webhook.ConstructEventWithOptions(payload, header.Get("Stripe-Signature"), p.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, errors.Join(ErrWebhookVerificationFailed, err)
	}
	if !strings.HasPrefix(string(ev.Type), "customer.subscription.") || ev.Data == nil {
		return nil, nil
	}

	var sub stripe.Subscription
	if err := json.Unmarshal(ev.Data.Raw, &sub); err != nil {
		return nil, errors.Join(ErrInvalidWebhookPayload, err)
	}
	live := stripeLiveData(&sub)
	out := &WebhookEvent{
		ID:                ev.ID,
		Type:              string(ev.Type),
		SubscriptionID:    sub.ID,
		Status:            live.Status,
		CurrentPeriodEnd:  live.CurrentPeriodEnd,
		CancelAtPeriodEnd: live.CancelAtPeriodEnd,
	}
	if ev.Created > 0 {
		out.OccurredAt = time.Unix(ev.Created, 0).UTC()
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	return out, nil
}

func stripeLiveData(sub *stripe.Subscription) *LiveData {
	if sub == nil {
		return &LiveData{}
	}
	live := &LiveData{
		Status:            stripeStatus(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		TrialEnd:          unixTime(sub.TrialEnd),
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0] != nil {
		live.CurrentPeriodEnd = unixTime(sub.Items.Data[0].CurrentPeriodEnd)
	}
	if pm := sub.DefaultPaymentMethod; pm != nil && pm.Card != nil {
		live.PaymentMethod = &PaymentMethod{
			Brand:    string(pm.Card.Brand),
			Last4:    pm.Card.Last4,
			ExpMonth: pm.Card.ExpMonth,
			ExpYear:  pm.Card.ExpYear,
		}
	}
	return live
}

func stripeStatus(s stripe.SubscriptionStatus) Status {
	switch s {
	case stripe.SubscriptionStatusTrialing:
		return StatusTrialing
	case stripe.SubscriptionStatusPastDue:
		return StatusPastDue
	case stripe.SubscriptionStatusUnpaid:
		return StatusUnpaid
	case stripe.SubscriptionStatusPaused:
		return StatusPaused
	case stripe.SubscriptionStatusIncomplete:
		return StatusIncomplete
	case stripe.SubscriptionStatusCanceled:
		return StatusCancelled
	case stripe.SubscriptionStatusIncompleteExpired:
		return StatusExpired
	default:
		return StatusActive
	}
}

func stripeInvoice(inv *stripe.Invoice) Invoice {
	out := Invoice{
		ID:            inv.ID,
		Date:          time.Unix(inv.Created, 0).UTC(),
		Amount:        MajorUnits(inv.Total, string(inv.Currency)),
		Currency:      NormalizeCurrency(string(inv.Currency)),
		Status:        string(inv.Status),
		Description:   inv.Description,
		InvoiceURL:    inv.HostedInvoiceURL,
		InvoicePDFURL: inv.InvoicePDF,
	}
	if out.Description == "" && inv.Number != "" {
		out.Description = "Invoice " + inv.Number
	}
	return out
}

func unixTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

func stripeErr(err error) error {
	if err == nil {
		return nil
	}
	var se *stripe.Error
	if errors.As(err, &se) {
		if se.Code == stripe.ErrorCodeResourceMissing || se.HTTPStatusCode == http.StatusNotFound {
			return errors.Join(ErrResourceMissing, err)
		}
	}
	return errors.Join(ErrProviderFailure, err)
}

// stripeClient implements StripeAPI with the stripe-go client.
type stripeClient struct {
	sc *stripe.Client
}

func (c *stripeClient) GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionRetrieveParams{}
	params.AddExpand("default_payment_method")
	return c.sc.V1Subscriptions.Retrieve(ctx, id, params)
}

func (c *stripeClient) SetCancelAtPeriodEnd(ctx context.Context, id string, cancel bool) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionUpdateParams{CancelAtPeriodEnd: stripe.Bool(cancel)}
	params.AddExpand("default_payment_method")
	return c.sc.V1Subscriptions.Update(ctx, id, params)
}

func (c *stripeClient) PreviewInvoice(ctx context.Context, customerID, subscriptionID string) (*stripe.Invoice, error) {
	params := &stripe.InvoiceCreatePreviewParams{Customer: stripe.String(customerID)}
	if subscriptionID != "" {
		params.Subscription = stripe.String(subscriptionID)
	}
	return c.sc.V1Invoices.CreatePreview(ctx, params)
}

func (c *stripeClient) ListInvoices(ctx context.Context, customerID string) iter.Seq2[*stripe.Invoice, error] {
	params := &stripe.InvoiceListParams{Customer: stripe.String(customerID)}
	params.Limit = stripe.Int64(stripeListPageSize)
	return func(yield func(*stripe.Invoice, error) bool) {
		for inv, err := range c.sc.V1Invoices.List(ctx, params) {
			if !yield(inv, err) {
				return
			}
		}
	}
}

func (c *stripeClient) CreatePortalSession(ctx context.Context, customerID, returnURL string) (*stripe.BillingPortalSession, error) {
	params := &stripe.BillingPortalSessionCreateParams{Customer: stripe.String(customerID)}
	if returnURL != "" {
		params.ReturnURL = stripe.String(returnURL)
	}
	return c.sc.V1BillingPortalSessions.Create(ctx, params)
}
