package billing

import "context"

const (
	DefaultHistoryLimit = 10
	MaxHistoryLimit     = 50
)

// NormalizeHistoryQuery applies the default limit, caps it at MaxHistoryLimit
// and clamps a negative offset to zero.
func NormalizeHistoryQuery(limit, offset int) HistoryQuery {
	switch {
	case limit <= 0:
		limit = DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		limit = MaxHistoryLimit
	}
	return HistoryQuery{Limit: limit, Offset: max(offset, 0)}
}

// History lists the user's invoices. Users without a provider get an empty page.
func (s *Service) History(ctx context.Context, userID string, limit, offset int) (*HistoryPage, error) {
	q := NormalizeHistoryQuery(limit, offset)

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	b := user.Binding()
	if b.Provider == ProviderNone {
		return &HistoryPage{Items: []Invoice{}}, nil
	}

	p, err := s.provider(b.Provider)
	if err != nil {
		return nil, err
	}

	page, err := p.ListInvoices(ctx, b, q)
	if err != nil {
		return nil, providerErr(b.Provider, "list invoices", err)
	}
	if page == nil {
		page = &HistoryPage{}
	}
	if page.Items == nil {
		page.Items = []Invoice{}
	}
	if len(page.Items) > q.Limit {
		page.Items = page.Items[:q.Limit]
		page.HasMore = true
	}
	return page, nil
}
