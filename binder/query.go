package binder

import (
	"net/http"
)

// BindQuery creates a query parameter binder function.
//
// It supports struct tags for custom parameter names:
//   - `query:"name"` - binds to query parameter "name"
//   - `query:"-"` - skips the field
//
// Supported types are string, bool, the signed and unsigned integers and
// pointers to them. Missing parameters leave the field untouched.
//
// Example:
//
//	type historyRequest struct {
//		Limit  int `query:"limit"`
//		Offset int `query:"offset"`
//	}
func BindQuery() func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		query := r.URL.Query()
		return bindToStruct(v, "query", func(name string) string { return query.Get(name) }, ErrInvalidQuery)
	}
}
