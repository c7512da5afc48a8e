package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/NdoleStudio/lemonsqueezy-go"
)

const defaultLemonSqueezyBaseURL = "https://api.lemonsqueezy.com"

// lemonSqueezyClient implements LemonSqueezyAPI on top of lemonsqueezy-go.
type lemonSqueezyClient struct {
	sdk        *lemonsqueezy.Client
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func newLemonSqueezyClient(cfg LemonSqueezyConfig) *lemonSqueezyClient {
	base := strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/")
	base = strings.TrimSuffix(base, "/v1")
	if base == "" {
		base = defaultLemonSqueezyBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	hc := &http.Client{Timeout: timeout}
	apiKey := strings.TrimSpace(cfg.APIKey)

	return &lemonSqueezyClient{
		sdk: lemonsqueezy.New(
			lemonsqueezy.WithAPIKey(apiKey),
			lemonsqueezy.WithSigningSecret(cfg.WebhookSecret),
			lemonsqueezy.WithBaseURL(base),
			lemonsqueezy.WithHTTPClient(hc),
		),
		apiKey:     apiKey,
		baseURL:    base,
		httpClient: hc,
	}
}

func (c *lemonSqueezyClient) GetSubscription(ctx context.Context, id string) (*LemonSqueezySubscription, error) {
	res, resp, err := c.sdk.Subscriptions.Get(ctx, id)
	if err := lsCheck("get subscription", resp, err); err != nil {
		return nil, err
	}
	return lsSubscriptionFrom(res.Data.Attributes)
}

func (c *lemonSqueezyClient) CancelSubscription(ctx context.Context, id string) (*LemonSqueezySubscription, error) {
	res, resp, err := c.sdk.Subscriptions.Cancel(ctx, id)
	if err := lsCheck("cancel subscription", resp, err); err != nil {
		return nil, err
	}
	return lsSubscriptionFrom(res.Data.Attributes)
}

// ResumeSubscription clears the cancelled flag, which resumes a subscription
// still inside its grace period.
func (c *lemonSqueezyClient) ResumeSubscription(ctx context.Context, id string) (*LemonSqueezySubscription, error) {
	params := &lemonsqueezy.SubscriptionUpdateParams{ID: id}
	params.Attributes.Cancelled = false

	res, resp, err := c.sdk.Subscriptions.Update(ctx, params)
	if err := lsCheck("resume subscription", resp, err); err != nil {
		return nil, err
	}
	return lsSubscriptionFrom(res.Data.Attributes)
}

func (c *lemonSqueezyClient) CustomerPortalURL(ctx context.Context, customerID string) (string, error) {
	res, resp, err := c.sdk.Customers.Get(ctx, customerID)
	if err := lsCheck("get customer", resp, err); err != nil {
		return "", err
	}
	var attrs struct {
		URLs LemonSqueezyURLs `json:"urls"`
	}
	if err := lsRemarshal(res.Data.Attributes, &attrs); err != nil {
		return "", err
	}
	return attrs.URLs.CustomerPortal, nil
}

// ListSubscriptionInvoices calls the subscription-invoices endpoint directly:
// the SDK's list has no filter or paging parameters and returns the whole
// store's invoices.
func (c *lemonSqueezyClient) ListSubscriptionInvoices(ctx context.Context, subscriptionID string, page, size int) (*LemonSqueezyInvoicePage, error) {
	v := url.Values{}
	v.Set("filter[subscription_id]", subscriptionID)
	v.Set("page[number]", strconv.Itoa(page))
	v.Set("page[size]", strconv.Itoa(size))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/subscription-invoices?"+v.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: lemonsqueezy list invoices: %w", ErrProviderFailure, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/vnd.api+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: lemonsqueezy list invoices: %w", ErrProviderFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("%w: lemonsqueezy list invoices: status=%d body=%s", ErrProviderFailure, resp.StatusCode, raw)
	}

	var list struct {
		Meta struct {
			Page struct {
				LastPage int `json:"lastPage"`
				Total    int `json:"total"`
			} `json:"page"`
		} `json:"meta"`
		Data []struct {
			ID         string `json:"id"`
			Attributes struct {
				Status    string    `json:"status"`
				Total     int64     `json:"total"`
				Currency  string    `json:"currency"`
				CreatedAt time.Time `json:"created_at"`
				URLs      struct {
					InvoiceURL string `json:"invoice_url"`
				} `json:"urls"`
			} `json:"attributes"`
		} `json:"data"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&list); err != nil {
		return nil, fmt.Errorf("%w: lemonsqueezy list invoices: %w", ErrProviderFailure, err)
	}

	out := &LemonSqueezyInvoicePage{
		Invoices: make([]LemonSqueezyInvoice, 0, len(list.Data)),
		LastPage: list.Meta.Page.LastPage,
		Total:    list.Meta.Page.Total,
	}
	for _, d := range list.Data {
		a := d.Attributes
		out.Invoices = append(out.Invoices, LemonSqueezyInvoice{
			ID:         d.ID,
			Status:     a.Status,
			Total:      a.Total,
			Currency:   a.Currency,
			CreatedAt:  a.CreatedAt,
			InvoiceURL: a.URLs.InvoiceURL,
		})
	}
	return out, nil
}

func (c *lemonSqueezyClient) VerifyWebhook(ctx context.Context, signature string, payload []byte) bool {
	return c.sdk.Webhooks.Verify(ctx, signature, payload)
}

// lsCheck classifies SDK failures. A 404 means the subscription or customer
// no longer exists on the provider side.
func lsCheck(op string, resp *lemonsqueezy.Response, err error) error {
	status := 0
	if resp != nil && resp.HTTPResponse != nil {
		status = resp.HTTPResponse.StatusCode
	}
	switch {
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: lemonsqueezy %s", ErrResourceMissing, op)
	case err != nil:
		return fmt.Errorf("%w: lemonsqueezy %s: %w", ErrProviderFailure, op, err)
	case status != 0 && (status < 200 || status >= 300):
		return fmt.Errorf("%w: lemonsqueezy %s: status=%d", ErrProviderFailure, op, status)
	}
	return nil
}

// lsSubscriptionFrom copies the SDK's attribute struct into the local view
// through its JSON form, so the mapping follows the API field names.
func lsSubscriptionFrom(attrs any) (*LemonSqueezySubscription, error) {
	var sub LemonSqueezySubscription
	if err := lsRemarshal(attrs, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

func lsRemarshal(in, out any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%w: lemonsqueezy decode: %w", ErrProviderFailure, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: lemonsqueezy decode: %w", ErrProviderFailure, err)
	}
	return nil
}
