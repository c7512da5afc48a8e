package billing

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts provider calls by outcome and records their latency.
type Metrics struct {
	requests  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	fallbacks *prometheus.CounterVec
}

// NewMetrics registers the billing collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "billing",
			Name:      "provider_requests_total",
			Help:      "Payment provider calls by provider, operation and outcome.",
		}, []string{"provider", "operation", "outcome"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "billing",
			Name:      "provider_request_duration_seconds",
			Help:      "Payment provider call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider", "operation"}),
		fallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "billing",
			Name:      "enrichment_fallbacks_total",
			Help:      "Overview requests served from stored data because live data was unavailable.",
		}, []string{"provider"}),
	}
}

func (m *Metrics) observe(p ProviderName, op string, start time.Time, err error) {
	outcome := "ok"
	switch {
	case errors.Is(err, ErrResourceMissing):
		outcome = "not_found"
	case err != nil:
		outcome = "error"
	}
	m.requests.WithLabelValues(string(p), op, outcome).Inc()
	m.duration.WithLabelValues(string(p), op).Observe(time.Since(start).Seconds())
}

func (m *Metrics) instrument(p Provider) Provider {
	return &instrumentedProvider{next: p, m: m}
}

type instrumentedProvider struct {
	next Provider
	m    *Metrics
}

func (p *instrumentedProvider) Name() ProviderName { return p.next.Name() }

func (p *instrumentedProvider) FetchLiveData(ctx context.Context, b Binding) (*LiveData, error) {
	start := time.Now()
	live, err := p.next.FetchLiveData(ctx, b)
	p.m.observe(p.next.Name(), "fetch_live_data", start, err)
	return live, err
}

func (p *instrumentedProvider) CancelAtPeriodEnd(ctx context.Context, b Binding) (*LiveData, error) {
	start := time.Now()
	live, err := p.next.CancelAtPeriodEnd(ctx, b)
	p.m.observe(p.next.Name(), "cancel", start, err)
	return live, err
}

func (p *instrumentedProvider) Reactivate(ctx context.Context, b Binding) (*LiveData, error) {
	start := time.Now()
	live, err := p.next.Reactivate(ctx, b)
	p.m.observe(p.next.Name(), "reactivate", start, err)
	return live, err
}

func (p *instrumentedProvider) PortalURL(ctx context.Context, b Binding, returnURL string) (string, error) {
	start := time.Now()
	url, err := p.next.PortalURL(ctx, b, returnURL)
	p.m.observe(p.next.Name(), "portal", start, err)
	return url, err
}

func (p *instrumentedProvider) ListInvoices(ctx context.Context, b Binding, q HistoryQuery) (*HistoryPage, error) {
	start := time.Now()
	page, err := p.next.ListInvoices(ctx, b, q)
	p.m.observe(p.next.Name(), "list_invoices", start, err)
	return page, err
}

func (p *instrumentedProvider) ParseWebhook(payload []byte, header http.Header) (*WebhookEvent, error) {
	parser, ok := p.next.(WebhookParser)
	if !ok {
		return nil, ErrWebhookNotSupported
	}
	start := time.Now()
	ev, err := parser.ParseWebhook(payload, header)
	p.m.observe(p.next.Name(), "webhook", start, err)
	return ev, err
}
