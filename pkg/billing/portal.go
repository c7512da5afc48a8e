package billing

import "context"

// Portal returns the provider-hosted page where the user manages billing.
// The caller redirects client-side.
func (s *Service) Portal(ctx context.Context, userID, returnURL string) (*PortalSession, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	b := user.Binding()
	if b.Provider == ProviderNone {
		return nil, ErrNoSubscription
	}

	p, err := s.provider(b.Provider)
	if err != nil {
		return nil, err
	}

	if returnURL == "" {
		returnURL = s.portalReturnURL
	}

	url, err := p.PortalURL(ctx, b, returnURL)
	if err != nil {
		return nil, providerErr(b.Provider, "portal", err)
	}
	if url == "" {
		return nil, providerErr(b.Provider, "portal", ErrNoPortalURL)
	}
	return &PortalSession{URL: url, Provider: b.Provider}, nil
}
