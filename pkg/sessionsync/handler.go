package sessionsync

import "context"

// Refresher re-fetches the current session from the server.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Navigator moves the client to url.
type Navigator interface {
	Navigate(ctx context.Context, url string) error
}

type RefresherFunc func(ctx context.Context) error

func (f RefresherFunc) Refresh(ctx context.Context) error { return f(ctx) }

type NavigatorFunc func(ctx context.Context, url string) error

func (f NavigatorFunc) Navigate(ctx context.Context, url string) error { return f(ctx, url) }
