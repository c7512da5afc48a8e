package billing_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/saasbilling/pkg/billing"
)

type fakeLemonSqueezyAPI struct {
	sub       *billing.LemonSqueezySubscription
	subErr    error
	portalURL string
	invoices  []billing.LemonSqueezyInvoice
	pages     []int
	calls     []string
	validSig  string
}

func (f *fakeLemonSqueezyAPI) GetSubscription(_ context.Context, id string) (*billing.LemonSqueezySubscription, error) {
	f.calls = append(f.calls, "get "+id)
	return f.sub, f.subErr
}

func (f *fakeLemonSqueezyAPI) CancelSubscription(_ context.Context, id string) (*billing.LemonSqueezySubscription, error) {
	f.calls = append(f.calls, "cancel "+id)
	if f.subErr != nil {
		return nil, f.subErr
	}
	s := *f.sub
	s.Status = "cancelled"
	s.Cancelled = true
	s.EndsAt = s.RenewsAt
	return &s, nil
}

func (f *fakeLemonSqueezyAPI) ResumeSubscription(_ context.Context, id string) (*billing.LemonSqueezySubscription, error) {
	f.calls = append(f.calls, "resume "+id)
	if f.subErr != nil {
		return nil, f.subErr
	}
	s := *f.sub
	s.Status = "active"
	s.Cancelled = false
	s.EndsAt = nil
	return &s, nil
}

func (f *fakeLemonSqueezyAPI) CustomerPortalURL(_ context.Context, customerID string) (string, error) {
	f.calls = append(f.calls, "customer "+customerID)
	return f.portalURL, nil
}

func (f *fakeLemonSqueezyAPI) ListSubscriptionInvoices(_ context.Context, _ string, page, size int) (*billing.LemonSqueezyInvoicePage, error) {
	f.pages = append(f.pages, page)
	out := &billing.LemonSqueezyInvoicePage{
		Invoices: []billing.LemonSqueezyInvoice{},
		LastPage: (len(f.invoices) + size - 1) / size,
		Total:    len(f.invoices),
	}
	for i := (page - 1) * size; i < page*size && i < len(f.invoices); i++ {
		out.Invoices = append(out.Invoices, f.invoices[i])
	}
	return out, nil
}

func (f *fakeLemonSqueezyAPI) VerifyWebhook(_ context.Context, signature string, _ []byte) bool {
	return signature == f.validSig
}

var lsBinding = billing.Binding{Provider: billing.ProviderLemonSqueezy, CustomerID: "7", SubscriptionID: "42"}

func lsActiveSubscription() *billing.LemonSqueezySubscription {
	renews := periodEnd
	return &billing.LemonSqueezySubscription{
		Status:       "active",
		RenewsAt:     &renews,
		CardBrand:    "mastercard",
		CardLastFour: "5555",
		URLs:         billing.LemonSqueezyURLs{CustomerPortal: "https://store.lemonsqueezy.com/billing?sub=42"},
	}
}

func newLemonSqueezy(t *testing.T, api *fakeLemonSqueezyAPI, secret string) *billing.LemonSqueezyProvider {
	t.Helper()
	p, err := billing.NewLemonSqueezyProvider(billing.LemonSqueezyConfig{WebhookSecret: secret}, billing.WithLemonSqueezyAPI(api))
	require.NoError(t, err)
	return p
}

func TestNewLemonSqueezyProvider(t *testing.T) {
	t.Parallel()

	_, err := billing.NewLemonSqueezyProvider(billing.LemonSqueezyConfig{APIKey: "  "})
	assert.ErrorIs(t, err, billing.ErrMissingAPIKey)

	p, err := billing.NewLemonSqueezyProvider(billing.LemonSqueezyConfig{APIKey: "ls_test"})
	require.NoError(t, err)
	assert.Equal(t, billing.ProviderLemonSqueezy, p.Name())

	assert.Panics(t, func() {
		_, _ = billing.NewLemonSqueezyProvider(billing.LemonSqueezyConfig{}, billing.WithLemonSqueezyAPI(nil))
	})
}

func TestLemonSqueezyFetchLiveData(t *testing.T) {
	t.Parallel()

	t.Run("active subscription", func(t *testing.T) {
		t.Parallel()
		live, err := newLemonSqueezy(t, &fakeLemonSqueezyAPI{sub: lsActiveSubscription()}, "").FetchLiveData(context.Background(), lsBinding)
		require.NoError(t, err)
		assert.Equal(t, billing.StatusActive, live.Status)
		assert.False(t, live.CancelAtPeriodEnd)
		require.NotNil(t, live.CurrentPeriodEnd)
		assert.True(t, periodEnd.Equal(*live.CurrentPeriodEnd))
		require.NotNil(t, live.PaymentMethod)
		assert.Equal(t, "5555", live.PaymentMethod.Last4)
		assert.Nil(t, live.NextInvoice)
	})

	t.Run("statuses", func(t *testing.T) {
		t.Parallel()
		cases := map[string]billing.Status{
			"on_trial": billing.StatusTrialing,
			"past_due": billing.StatusPastDue,
			"unpaid":   billing.StatusUnpaid,
			"paused":   billing.StatusPaused,
			"expired":  billing.StatusExpired,
			"active":   billing.StatusActive,
		}
		for in, want := range cases {
			sub := lsActiveSubscription()
			sub.Status = in
			live, err := newLemonSqueezy(t, &fakeLemonSqueezyAPI{sub: sub}, "").FetchLiveData(context.Background(), lsBinding)
			require.NoError(t, err)
			assert.Equal(t, want, live.Status, in)
		}
	})

	t.Run("missing subscription", func(t *testing.T) {
		t.Parallel()
		_, err := newLemonSqueezy(t, &fakeLemonSqueezyAPI{subErr: billing.ErrResourceMissing}, "").FetchLiveData(context.Background(), lsBinding)
		assert.ErrorIs(t, err, billing.ErrResourceMissing)
	})
}

func TestLemonSqueezyCancelAndReactivate(t *testing.T) {
	t.Parallel()

	api := &fakeLemonSqueezyAPI{sub: lsActiveSubscription()}
	p := newLemonSqueezy(t, api, "")

	live, err := p.CancelAtPeriodEnd(context.Background(), lsBinding)
	require.NoError(t, err)
	assert.True(t, live.CancelAtPeriodEnd)
	assert.Equal(t, billing.StatusCancelled, live.EffectiveStatus())
	require.NotNil(t, live.CurrentPeriodEnd)
	assert.True(t, periodEnd.Equal(*live.CurrentPeriodEnd))

	live, err = p.Reactivate(context.Background(), lsBinding)
	require.NoError(t, err)
	assert.False(t, live.CancelAtPeriodEnd)
	assert.Equal(t, billing.StatusActive, live.EffectiveStatus())

	assert.Equal(t, []string{"cancel 42", "resume 42"}, api.calls)
}

func TestLemonSqueezyPortalURL(t *testing.T) {
	t.Parallel()

	api := &fakeLemonSqueezyAPI{sub: lsActiveSubscription(), portalURL: "https://store.lemonsqueezy.com/billing?c=7"}
	p := newLemonSqueezy(t, api, "")

	url, err := p.PortalURL(context.Background(), lsBinding, "ignored")
	require.NoError(t, err)
	assert.Equal(t, "https://store.lemonsqueezy.com/billing?c=7", url)

	url, err = p.PortalURL(context.Background(), billing.Binding{Provider: billing.ProviderLemonSqueezy, SubscriptionID: "42"}, "")
	require.NoError(t, err)
	assert.Equal(t, "https://store.lemonsqueezy.com/billing?sub=42", url)

	_, err = p.PortalURL(context.Background(), billing.Binding{Provider: billing.ProviderLemonSqueezy}, "")
	assert.ErrorIs(t, err, billing.ErrNoCustomer)

	assert.Equal(t, []string{"customer 7", "get 42"}, api.calls)
}

func lsInvoices(n int) []billing.LemonSqueezyInvoice {
	out := make([]billing.LemonSqueezyInvoice, 0, n)
	for i := range n {
		out = append(out, billing.LemonSqueezyInvoice{
			ID:         strconv.Itoa(i),
			Status:     "paid",
			Total:      1000,
			Currency:   "USD",
			CreatedAt:  periodEnd.AddDate(0, -i, 0),
			InvoiceURL: fmt.Sprintf("https://ls/inv/%d", i),
		})
	}
	return out
}

func TestLemonSqueezyListInvoices(t *testing.T) {
	t.Parallel()

	ids := func(page *billing.HistoryPage) []string {
		out := make([]string, 0, len(page.Items))
		for _, it := range page.Items {
			out = append(out, it.ID)
		}
		return out
	}

	t.Run("aligned offset", func(t *testing.T) {
		t.Parallel()
		api := &fakeLemonSqueezyAPI{invoices: lsInvoices(5)}
		page, err := newLemonSqueezy(t, api, "").ListInvoices(context.Background(), lsBinding, billing.HistoryQuery{Limit: 2, Offset: 2})
		require.NoError(t, err)
		assert.Equal(t, []string{"2", "3"}, ids(page))
		assert.True(t, page.HasMore)
		assert.Equal(t, 5, page.TotalCount)
		assert.InDelta(t, 10.0, page.Items[0].Amount, 0.0001)
		assert.Equal(t, "https://ls/inv/2", page.Items[0].InvoiceURL)
		assert.Equal(t, []int{2}, api.pages)
	})

	t.Run("offset spanning two pages", func(t *testing.T) {
		t.Parallel()
		api := &fakeLemonSqueezyAPI{invoices: lsInvoices(5)}
		page, err := newLemonSqueezy(t, api, "").ListInvoices(context.Background(), lsBinding, billing.HistoryQuery{Limit: 2, Offset: 3})
		require.NoError(t, err)
		assert.Equal(t, []string{"3", "4"}, ids(page))
		assert.False(t, page.HasMore)
		assert.Equal(t, []int{2, 3}, api.pages)
	})

	t.Run("past the end", func(t *testing.T) {
		t.Parallel()
		api := &fakeLemonSqueezyAPI{invoices: lsInvoices(3)}
		page, err := newLemonSqueezy(t, api, "").ListInvoices(context.Background(), lsBinding, billing.HistoryQuery{Limit: 10, Offset: 20})
		require.NoError(t, err)
		assert.Empty(t, page.Items)
		assert.False(t, page.HasMore)
	})

	t.Run("no subscription", func(t *testing.T) {
		t.Parallel()
		api := &fakeLemonSqueezyAPI{}
		page, err := newLemonSqueezy(t, api, "").ListInvoices(context.Background(), billing.Binding{}, billing.HistoryQuery{})
		require.NoError(t, err)
		assert.Empty(t, page.Items)
		assert.Empty(t, api.pages)
	})
}

func TestLemonSqueezyParseWebhook(t *testing.T) {
	t.Parallel()

	const sig = "abc123"
	payload := []byte(`{
		"meta": {"event_name": "subscription_cancelled"},
		"data": {
			"type": "subscriptions",
			"id": "42",
			"attributes": {
				"customer_id": 7,
				"status": "cancelled",
				"cancelled": true,
				"ends_at": "2026-11-01T00:00:00.000000Z",
				"updated_at": "2026-10-02T08:00:00.000000Z"
			}
		}
	}`)

	t.Run("valid signature", func(t *testing.T) {
		t.Parallel()
		h := http.Header{}
		h.Set("X-Signature", "ABC123")

		ev, err := newLemonSqueezy(t, &fakeLemonSqueezyAPI{validSig: sig}, "ls_whsec").ParseWebhook(payload, h)
		require.NoError(t, err)
		require.NotNil(t, ev)
		assert.Equal(t, "subscription_cancelled", ev.Type)
		assert.Equal(t, "42", ev.SubscriptionID)
		assert.Equal(t, "7", ev.CustomerID)
		assert.True(t, ev.CancelAtPeriodEnd)
		require.NotNil(t, ev.CurrentPeriodEnd)
		assert.True(t, periodEnd.Equal(*ev.CurrentPeriodEnd))
		assert.Equal(t, time.Date(2026, 10, 2, 8, 0, 0, 0, time.UTC), ev.OccurredAt)
	})

	t.Run("invalid signature", func(t *testing.T) {
		t.Parallel()
		h := http.Header{}
		h.Set("X-Signature", "other")

		_, err := newLemonSqueezy(t, &fakeLemonSqueezyAPI{validSig: sig}, "ls_whsec").ParseWebhook(payload, h)
		assert.ErrorIs(t, err, billing.ErrWebhookVerificationFailed)
	})

	t.Run("missing signature", func(t *testing.T) {
		t.Parallel()
		_, err := newLemonSqueezy(t, &fakeLemonSqueezyAPI{}, "ls_whsec").ParseWebhook(payload, http.Header{})
		assert.ErrorIs(t, err, billing.ErrWebhookVerificationFailed)
	})

	t.Run("no secret configured", func(t *testing.T) {
		t.Parallel()
		_, err := newLemonSqueezy(t, &fakeLemonSqueezyAPI{validSig: sig}, "").ParseWebhook(payload, http.Header{})
		assert.ErrorIs(t, err, billing.ErrWebhookNotSupported)
	})

	t.Run("order events are ignored", func(t *testing.T) {
		t.Parallel()
		order := []byte(`{"meta":{"event_name":"order_created"},"data":{"type":"orders","id":"1","attributes":{}}}`)
		h := http.Header{}
		h.Set("X-Signature", sig)

		ev, err := newLemonSqueezy(t, &fakeLemonSqueezyAPI{validSig: sig}, "ls_whsec").ParseWebhook(order, h)
		require.NoError(t, err)
		assert.Nil(t, ev)
	})

	t.Run("malformed payload", func(t *testing.T) {
		t.Parallel()
		h := http.Header{}
		h.Set("X-Signature", sig)

		_, err := newLemonSqueezy(t, &fakeLemonSqueezyAPI{validSig: sig}, "ls_whsec").ParseWebhook([]byte(`{`), h)
		assert.ErrorIs(t, err, billing.ErrInvalidWebhookPayload)
	})
}

// The cases below go through the lemonsqueezy-go client against a local server.

const lsSubscriptionBody = `{
	"jsonapi": {"version": "1.0"},
	"links": {"self": "https://api.lemonsqueezy.com/v1/subscriptions/42"},
	"data": {
		"type": "subscriptions",
		"id": "42",
		"attributes": {
			"status": "active",
			"cancelled": false,
			"renews_at": "2026-11-01T00:00:00.000000Z",
			"ends_at": null,
			"trial_ends_at": null,
			"card_brand": "mastercard",
			"card_last_four": "5555",
			"urls": {"customer_portal": "https://store.lemonsqueezy.com/billing?sub=42"}
		}
	}
}`

func newLemonSqueezyHTTP(t *testing.T, h http.Handler, secret string) *billing.LemonSqueezyProvider {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	p, err := billing.NewLemonSqueezyProvider(billing.LemonSqueezyConfig{
		APIKey:        "ls_test",
		WebhookSecret: secret,
		APIURL:        srv.URL + "/v1/",
	})
	require.NoError(t, err)
	return p
}

func TestLemonSqueezyClient(t *testing.T) {
	t.Parallel()

	t.Run("fetch subscription", func(t *testing.T) {
		t.Parallel()
		mux := http.NewServeMux()
		mux.HandleFunc("GET /v1/subscriptions/42", func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer ls_test", r.Header.Get("Authorization"))
			w.Header().Set("Content-Type", "application/vnd.api+json")
			_, _ = io.WriteString(w, lsSubscriptionBody)
		})

		live, err := newLemonSqueezyHTTP(t, mux, "").FetchLiveData(context.Background(), lsBinding)
		require.NoError(t, err)
		assert.Equal(t, billing.StatusActive, live.Status)
		require.NotNil(t, live.CurrentPeriodEnd)
		assert.True(t, periodEnd.Equal(*live.CurrentPeriodEnd))
		require.NotNil(t, live.PaymentMethod)
		assert.Equal(t, "mastercard", live.PaymentMethod.Brand)
	})

	t.Run("not found", func(t *testing.T) {
		t.Parallel()
		mux := http.NewServeMux()
		mux.HandleFunc("GET /v1/subscriptions/42", func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, `{"errors":[{"status":"404","title":"Not Found"}]}`, http.StatusNotFound)
		})

		_, err := newLemonSqueezyHTTP(t, mux, "").FetchLiveData(context.Background(), lsBinding)
		assert.ErrorIs(t, err, billing.ErrResourceMissing)
	})

	t.Run("server error", func(t *testing.T) {
		t.Parallel()
		mux := http.NewServeMux()
		mux.HandleFunc("GET /v1/subscriptions/42", func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, `{"errors":[{"status":"502"}]}`, http.StatusBadGateway)
		})

		_, err := newLemonSqueezyHTTP(t, mux, "").FetchLiveData(context.Background(), lsBinding)
		assert.ErrorIs(t, err, billing.ErrProviderFailure)
	})

	t.Run("invoice pages", func(t *testing.T) {
		t.Parallel()
		const total = 5
		mux := http.NewServeMux()
		mux.HandleFunc("GET /v1/subscription-invoices", func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer ls_test", r.Header.Get("Authorization"))
			q := r.URL.Query()
			assert.Equal(t, "42", q.Get("filter[subscription_id]"))
			number, _ := strconv.Atoi(q.Get("page[number]"))
			size, _ := strconv.Atoi(q.Get("page[size]"))

			data := []map[string]any{}
			for i := (number - 1) * size; i < number*size && i < total; i++ {
				data = append(data, map[string]any{
					"type": "subscription-invoices",
					"id":   strconv.Itoa(i),
					"attributes": map[string]any{
						"status":     "paid",
						"total":      1000,
						"currency":   "USD",
						"created_at": "2026-10-01T00:00:00.000000Z",
						"urls":       map[string]any{"invoice_url": fmt.Sprintf("https://ls/inv/%d", i)},
					},
				})
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"meta": map[string]any{"page": map[string]any{"currentPage": number, "lastPage": (total + size - 1) / size, "total": total}},
				"data": data,
			})
		})

		page, err := newLemonSqueezyHTTP(t, mux, "").ListInvoices(context.Background(), lsBinding, billing.HistoryQuery{Limit: 2, Offset: 3})
		require.NoError(t, err)
		require.Len(t, page.Items, 2)
		assert.Equal(t, "3", page.Items[0].ID)
		assert.Equal(t, "https://ls/inv/4", page.Items[1].InvoiceURL)
		assert.Equal(t, 5, page.TotalCount)
		assert.False(t, page.HasMore)
	})

	t.Run("webhook signature", func(t *testing.T) {
		t.Parallel()
		const secret = "ls_whsec"
		payload := []byte(`{"meta":{"event_name":"subscription_updated"},"data":{"type":"subscriptions","id":"42","attributes":{"customer_id":7,"status":"active"}}}`)
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(payload)

		h := http.Header{}
		h.Set("X-Signature", hex.EncodeToString(mac.Sum(nil)))
		ev, err := newLemonSqueezyHTTP(t, http.NotFoundHandler(), secret).ParseWebhook(payload, h)
		require.NoError(t, err)
		require.NotNil(t, ev)
		assert.Equal(t, billing.StatusActive, ev.Status)

		h.Set("X-Signature", hex.EncodeToString(sha256.New().Sum(nil)))
		_, err = newLemonSqueezyHTTP(t, http.NotFoundHandler(), secret).ParseWebhook(payload, h)
		assert.ErrorIs(t, err, billing.ErrWebhookVerificationFailed)
	})
}
