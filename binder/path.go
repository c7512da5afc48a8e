package binder

import (
	"fmt"
	"net/http"
)

// Path creates a path parameter binder function using the provided extractor.
// Fields are matched by their `path:"name"` tag.
//
// Example with chi router:
//
//	type webhookRequest struct {
//		Provider string `path:"provider"`
//	}
//
//	r.Post("/billing/webhooks/{provider}", handler.Wrap(h.webhook,
//		handler.WithBinders[handler.Context, webhookRequest](binder.Path(chi.URLParam)),
//	))
func Path(extractor func(r *http.Request, key string) string) func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		if extractor == nil {
			return fmt.Errorf("%w: extractor function is nil", ErrInvalidPath)
		}
		return bindToStruct(v, "path", func(name string) string { return extractor(r, name) }, ErrInvalidPath)
	}
}
