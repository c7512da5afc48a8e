package userstore

import "github.com/dmitrymomot/saasbilling/pkg/billing"

// subscriptionColumn maps a provider to the column holding its subscription ID.
func subscriptionColumn(provider billing.ProviderName) (string, bool) {
	switch provider {
	case billing.ProviderStripe:
		return "stripe_subscription_id", true
	case billing.ProviderLemonSqueezy:
		return "lemonsqueezy_subscription_id", true
	default:
		return "", false
	}
}
