package billing

import (
	"encoding/json"
	"time"
)

// Tier is the plan level a user pays for.
type Tier string

const (
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// IsPaid reports whether t is a paid tier. An empty tier counts as free.
func (t Tier) IsPaid() bool {
	return t == TierPro || t == TierEnterprise
}

// Status is the normalized subscription status.
// StatusCancelled covers both "cancellation scheduled" and "ended".
type Status string

const (
	StatusActive     Status = "active"
	StatusTrialing   Status = "trialing"
	StatusPastDue    Status = "past_due"
	StatusUnpaid     Status = "unpaid"
	StatusPaused     Status = "paused"
	StatusIncomplete Status = "incomplete"
	StatusCancelled  Status = "cancelled"
	StatusExpired    Status = "expired"
)

// ProviderName tags the provider variant. The empty value is "no provider"
// and serializes as JSON null.
type ProviderName string

const (
	ProviderNone         ProviderName = ""
	ProviderStripe       ProviderName = "stripe"
	ProviderLemonSqueezy ProviderName = "lemonsqueezy"
)

func (p ProviderName) MarshalJSON() ([]byte, error) {
	if p == ProviderNone {
		return []byte("null"), nil
	}
	return json.Marshal(string(p))
}

func (p *ProviderName) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*p = ProviderNone
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*p = ProviderName(s)
	return nil
}

// User is the locally persisted account with its subscription fields.
type User struct {
	ID    string
	Email string
	Name  string

	SubscriptionTier    Tier
	SubscriptionStatus  Status
	SubscriptionEndDate *time.Time

	StripeCustomerID           string
	StripeSubscriptionID       string
	LemonSqueezyCustomerID     string
	LemonSqueezySubscriptionID string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Binding is the provider a user is attached to together with its identifiers.
type Binding struct {
	Provider       ProviderName
	CustomerID     string
	SubscriptionID string
}

// HasLiveSubscription reports whether the binding names a provider subscription.
func (b Binding) HasLiveSubscription() bool {
	return b.Provider != ProviderNone && b.SubscriptionID != ""
}

// Binding resolves the user's provider variant. Free users have no provider
// regardless of stale identifiers. Stripe wins if both pairs are populated.
func (u User) Binding() Binding {
	if !u.SubscriptionTier.IsPaid() {
		return Binding{}
	}
	switch {
	case u.StripeCustomerID != "" || u.StripeSubscriptionID != "":
		return Binding{Provider: ProviderStripe, CustomerID: u.StripeCustomerID, SubscriptionID: u.StripeSubscriptionID}
	case u.LemonSqueezyCustomerID != "" || u.LemonSqueezySubscriptionID != "":
		return Binding{Provider: ProviderLemonSqueezy, CustomerID: u.LemonSqueezyCustomerID, SubscriptionID: u.LemonSqueezySubscriptionID}
	default:
		return Binding{}
	}
}

// SubscriptionData is the per-request view returned to clients. It is never cached.
type SubscriptionData struct {
	Tier              Tier         `json:"tier"`
	Status            Status       `json:"status"`
	Provider          ProviderName `json:"provider"`
	CurrentPeriodEnd  *time.Time   `json:"currentPeriodEnd"`
	CancelAtPeriodEnd bool         `json:"cancelAtPeriodEnd"`
	TrialEnd          *time.Time   `json:"trialEnd"`
}

// SubscriptionFromUser builds the database-only view.
func SubscriptionFromUser(u User) SubscriptionData {
	tier := u.SubscriptionTier
	if tier == "" {
		tier = TierFree
	}
	status := u.SubscriptionStatus
	if status == "" {
		status = StatusActive
	}
	return SubscriptionData{
		Tier:              tier,
		Status:            status,
		Provider:          u.Binding().Provider,
		CurrentPeriodEnd:  u.SubscriptionEndDate,
		CancelAtPeriodEnd: status == StatusCancelled && tier.IsPaid(),
	}
}

// PaymentMethod summarizes the card on file.
type PaymentMethod struct {
	Brand    string `json:"brand"`
	Last4    string `json:"last4"`
	ExpMonth int64  `json:"expMonth,omitempty"`
	ExpYear  int64  `json:"expYear,omitempty"`
}

// Money is an amount in the currency's minor units.
type Money struct {
	Amount   int64
	Currency string
}

// LiveData is what a provider reports about a subscription right now.
// Fields a provider cannot supply stay nil.
type LiveData struct {
	Status            Status
	CurrentPeriodEnd  *time.Time
	CancelAtPeriodEnd bool
	TrialEnd          *time.Time
	PaymentMethod     *PaymentMethod
	NextInvoice       *Money
}

// EffectiveStatus folds a scheduled cancellation into the status the way it
// is stored locally: a still-running subscription set to end is "cancelled".
func (l LiveData) EffectiveStatus() Status {
	if l.CancelAtPeriodEnd && (l.Status == StatusActive || l.Status == StatusTrialing || l.Status == "") {
		return StatusCancelled
	}
	return l.Status
}

// Overview is the response of GetOverview.
type Overview struct {
	Subscription      SubscriptionData `json:"subscription"`
	PaymentMethod     *PaymentMethod   `json:"paymentMethod"`
	NextBillingAmount *float64         `json:"nextBillingAmount"`
	Currency          *string          `json:"currency"`
}

// CancelResult is returned by a successful Cancel.
type CancelResult struct {
	Success       bool             `json:"success"`
	Message       string           `json:"message"`
	Subscription  SubscriptionData `json:"subscription"`
	EffectiveDate *time.Time       `json:"effectiveDate"`
}

// ReactivateResult is returned by a successful Reactivate.
type ReactivateResult struct {
	Success      bool             `json:"success"`
	Message      string           `json:"message"`
	Subscription SubscriptionData `json:"subscription"`
}

// Invoice is one billing history entry. Amount is in major units.
type Invoice struct {
	ID            string    `json:"id"`
	Date          time.Time `json:"date"`
	Amount        float64   `json:"amount"`
	Currency      string    `json:"currency"`
	Status        string    `json:"status"`
	Description   string    `json:"description"`
	InvoiceURL    string    `json:"invoiceUrl"`
	InvoicePDFURL string    `json:"invoicePdfUrl"`
}

// HistoryQuery is a normalized page request.
type HistoryQuery struct {
	Limit  int
	Offset int
}

// HistoryPage is one page of invoices.
type HistoryPage struct {
	Items      []Invoice `json:"items"`
	HasMore    bool      `json:"hasMore"`
	TotalCount int       `json:"totalCount"`
}

// PortalSession is a provider-hosted customer portal link.
type PortalSession struct {
	URL      string       `json:"url"`
	Provider ProviderName `json:"provider"`
}
