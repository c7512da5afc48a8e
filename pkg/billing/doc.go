// Package billing reconciles a user's locally stored subscription with the
// live state held by the payment provider that owns it.
//
// A User carries at most one provider binding (Stripe or LemonSqueezy).
// User.Binding resolves that variant once; Service then dispatches to the
// Provider registered for it. Every Provider exposes the same capabilities
// (live data, cancel at period end, reactivate, portal URL, invoices), and
// fields a provider cannot supply are left nil.
//
// Reads never fail because of a provider: GetOverview starts from the
// database view and only overlays live data when the provider answers.
// Mutations (Cancel, Reactivate) surface provider failures to the caller as
// a *ProviderError so the HTTP layer can classify them.
//
//	svc := billing.NewService(store,
//		billing.WithProvider(stripeProvider),
//		billing.WithProvider(lemonProvider),
//		billing.WithLogger(log),
//	)
//	overview, err := svc.GetOverview(ctx, userID)
package billing
